package domain

import (
	"context"
	"time"
)

// FileRef points to a file held by the chat transport.
type FileRef struct {
	ID   string
	Name string
	Size int64
}

// Message is an incoming chat message, reduced to what the core reads.
type Message struct {
	ID        int64
	ChatID    int64
	ChatType  string
	FromID    int64
	FromBot   bool
	FirstName string
	Text      string
	Document  *FileRef
	Photo     *FileRef
}

// Transport is the driven port for the chat service. Any method may return a
// *RateLimitError.
type Transport interface {
	SendMessage(ctx context.Context, chatID int64, text string) (int64, error)
	SendDocument(ctx context.Context, chatID int64, path, caption string) error
	SendPhoto(ctx context.Context, chatID int64, path, caption string) error
	SendVideo(ctx context.Context, chatID int64, path, caption, thumb string) error
	DeleteMessage(ctx context.Context, chatID, messageID int64) error
	DownloadFile(ctx context.Context, fileID, dst string) error
}

// Prompter waits for the next message of a chat. It returns ErrWizardTimeout
// when nothing arrives in time.
type Prompter interface {
	Await(ctx context.Context, chatID int64, timeout time.Duration) (Message, error)
}

// Resolver turns a raw URL into an executable target. It never fails: misses
// degrade to a generic target.
type Resolver interface {
	Resolve(ctx context.Context, rawURL string, rc RuleContext) ResolvedTarget
}

// Dispatcher executes job.Target and updates the job outcome.
type Dispatcher interface {
	Execute(ctx context.Context, job *Job, params BatchParameters) error
}

// Deliverer sends a downloaded job artifact to the destination chat.
type Deliverer interface {
	Deliver(ctx context.Context, job *Job, params BatchParameters) error
}

// KeyExchange is the result of trading a protected URL for a playable one.
type KeyExchange struct {
	URL  string
	Keys []string
}

// KeyExchanger is the driven port for the external key-exchange API.
type KeyExchanger interface {
	Exchange(ctx context.Context, rawURL, token string) (KeyExchange, error)
}

// RunRepository is the driven port for batch history persistence.
type RunRepository interface {
	CreateRun(ctx context.Context, run *BatchRun) error
	RecordLink(ctx context.Context, runID string, r LinkResult) error
	FinishRun(ctx context.Context, runID string, stats BatchStats, status RunStatus, reason string) error
	GetRun(ctx context.Context, id string) (*BatchRun, error)
	ListRuns(ctx context.Context, limit int) ([]BatchRun, error)
	LinkResults(ctx context.Context, runID string) ([]LinkResult, error)
}

// SettingsRepository stores admins and the log channel.
type SettingsRepository interface {
	AddAdmin(ctx context.Context, userID int64) error
	IsAdmin(ctx context.Context, userID int64) (bool, error)
	SetLogChannel(ctx context.Context, chatID int64) error
	GetLogChannel(ctx context.Context) (int64, bool, error)
}
