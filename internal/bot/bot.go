// Package bot routes chat updates to command handlers and runs one session
// per chat at a time.
package bot

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cwygoda/linkbatch/internal/domain"
	"github.com/cwygoda/linkbatch/internal/logging"
	"github.com/cwygoda/linkbatch/internal/wizard"
	"github.com/cwygoda/linkbatch/internal/worker"
)

const pollErrorDelay = 3 * time.Second

// Updater is the long-poll side of the chat transport.
type Updater interface {
	Updates(ctx context.Context, offset int64, timeout time.Duration) ([]domain.Message, int64, error)
}

// BatchRunner executes a collected batch.
type BatchRunner interface {
	Run(ctx context.Context, b worker.Batch) (worker.Report, error)
}

// Config holds the session settings.
type Config struct {
	OwnerID        int64
	DownloadsDir   string
	CookiesFile    string
	Credit         string
	FilenamePrefix string
	PollTimeout    time.Duration
	UploadTimeout  time.Duration
	DRMTimeout     time.Duration
	FileTimeout    time.Duration
}

// Bot is the chat session router.
type Bot struct {
	cfg       Config
	transport domain.Transport
	updates   Updater
	settings  domain.SettingsRepository
	runner    BatchRunner
	inbox     *Inbox
	wizard    *wizard.Wizard
	restart   func() error
	logger    *slog.Logger

	mu       sync.Mutex
	sessions map[int64]context.CancelFunc
	wg       sync.WaitGroup
}

// Option configures a Bot.
type Option func(*Bot)

// WithRestart replaces the in-place re-exec used by /stop.
func WithRestart(fn func() error) Option {
	return func(b *Bot) { b.restart = fn }
}

// New creates a bot. settings may be nil, in which case only the owner is
// an admin and no log channel is used.
func New(cfg Config, transport domain.Transport, updates Updater, settings domain.SettingsRepository, runner BatchRunner, logger *slog.Logger, opts ...Option) *Bot {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Bot{
		cfg:       cfg,
		transport: transport,
		updates:   updates,
		settings:  settings,
		runner:    runner,
		inbox:     NewInbox(),
		restart:   Reexec,
		logger:    logger,
		sessions:  make(map[int64]context.CancelFunc),
	}
	b.wizard = wizard.New(transport, b.inbox, wizard.Defaults{
		Credit:         cfg.Credit,
		FilenamePrefix: cfg.FilenamePrefix,
	}, logging.WithComponent(logger, "wizard"))
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Run polls for updates until ctx is cancelled, then waits for running
// sessions to finish.
func (b *Bot) Run(ctx context.Context) error {
	b.logger.Info("bot started", "poll_timeout", b.cfg.PollTimeout)
	defer b.wait()

	var offset int64
	for {
		if ctx.Err() != nil {
			b.logger.Info("bot shutting down")
			return nil
		}
		msgs, next, err := b.updates.Updates(ctx, offset, b.cfg.PollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			wait := pollErrorDelay
			if d, ok := domain.RetryAfter(err); ok {
				wait = d
			}
			b.logger.Warn("poll error", "error", err, "retry_in", wait)
			sleepContext(ctx, wait)
			continue
		}
		offset = next
		for _, msg := range msgs {
			b.HandleUpdate(ctx, msg)
		}
	}
}

// wait blocks until every running session has ended.
func (b *Bot) wait() {
	b.wg.Wait()
}

// HandleUpdate routes one message. While a session runs in a chat, every
// message except /cancel is handed to that session.
func (b *Bot) HandleUpdate(ctx context.Context, msg domain.Message) {
	if msg.FromBot {
		return
	}
	cmd, args := parseCommand(msg.Text)
	if cmd == "cancel" {
		b.cancel(ctx, msg.ChatID)
		return
	}
	if b.busy(msg.ChatID) {
		if sessionCommands[cmd] {
			b.reply(ctx, msg.ChatID, "⏳ A task is already running here. Send /cancel to stop it.")
			return
		}
		if !b.inbox.Deliver(msg) {
			b.logger.Debug("message dropped, session not listening", "chat_id", msg.ChatID)
		}
		return
	}

	private := msg.ChatType == "" || msg.ChatType == "private"
	switch cmd {
	case "start":
		b.cmdStart(ctx, msg)
	case "upload":
		b.startSession(ctx, msg, "upload", b.batchSession(wizard.UploadFlow(b.cfg.FileTimeout, b.cfg.UploadTimeout)))
	case "drm":
		b.startSession(ctx, msg, "drm", b.batchSession(wizard.DRMFlow(b.cfg.DRMTimeout)))
	case "cookies":
		if private {
			b.startSession(ctx, msg, "cookies", b.cookiesSession)
		}
	case "getcookies":
		if private {
			b.cmdGetCookies(ctx, msg)
		}
	case "t2t":
		if private {
			b.startSession(ctx, msg, "t2t", b.textToFileSession)
		}
	case "setlog":
		if private {
			b.cmdSetLog(ctx, msg, args)
		}
	case "getlog":
		if private {
			b.cmdGetLog(ctx, msg)
		}
	case "stop":
		if private {
			b.cmdStop(ctx, msg)
		}
	case "":
		if private && hasLink(msg.Text) {
			b.startSession(ctx, msg, "quick", b.quickSession)
		}
	}
}

// sessionCommands start a session and are never treated as session input.
var sessionCommands = map[string]bool{"upload": true, "drm": true, "cookies": true, "t2t": true}

type sessionFunc func(ctx context.Context, msg domain.Message) error

// startSession runs fn in its own goroutine with a cancellable context and
// an open inbox for the chat.
func (b *Bot) startSession(ctx context.Context, msg domain.Message, name string, fn sessionFunc) {
	chatID := msg.ChatID
	b.mu.Lock()
	if _, ok := b.sessions[chatID]; ok {
		b.mu.Unlock()
		b.reply(ctx, chatID, "⏳ A task is already running here. Send /cancel to stop it.")
		return
	}
	sctx, cancel := context.WithCancel(ctx)
	b.sessions[chatID] = cancel
	b.mu.Unlock()

	b.inbox.Open(chatID)
	log := logging.WithChat(b.logger, chatID).With("session", name)
	log.Info("session started")

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer b.endSession(chatID)
		err := fn(sctx, msg)
		switch {
		case err == nil:
			log.Info("session finished")
		case errors.Is(err, context.Canceled):
			log.Info("session cancelled")
		default:
			log.Warn("session failed", "error", err)
		}
	}()
}

func (b *Bot) endSession(chatID int64) {
	b.inbox.Close(chatID)
	b.mu.Lock()
	cancel, ok := b.sessions[chatID]
	delete(b.sessions, chatID)
	b.mu.Unlock()
	if ok {
		cancel()
	}
}

func (b *Bot) busy(chatID int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.sessions[chatID]
	return ok
}

func (b *Bot) cancel(ctx context.Context, chatID int64) {
	b.mu.Lock()
	cancel, ok := b.sessions[chatID]
	b.mu.Unlock()
	if !ok {
		b.reply(ctx, chatID, "Nothing to cancel.")
		return
	}
	cancel()
	b.reply(ctx, chatID, "🛑 Cancelling the running task...")
}

func (b *Bot) isAdmin(ctx context.Context, userID int64) bool {
	if userID == 0 {
		return false
	}
	if userID == b.cfg.OwnerID {
		return true
	}
	if b.settings == nil {
		return false
	}
	ok, err := b.settings.IsAdmin(ctx, userID)
	if err != nil {
		b.logger.Warn("admin lookup failed", "user_id", userID, "error", err)
		return false
	}
	return ok
}

func (b *Bot) logChannel(ctx context.Context) int64 {
	if b.settings == nil {
		return 0
	}
	id, ok, err := b.settings.GetLogChannel(ctx)
	if err != nil {
		b.logger.Warn("log channel lookup failed", "error", err)
		return 0
	}
	if !ok {
		return 0
	}
	return id
}

func (b *Bot) workDir(chatID int64) string {
	return filepath.Join(b.cfg.DownloadsDir, strconv.FormatInt(chatID, 10))
}

func (b *Bot) reply(ctx context.Context, chatID int64, text string) {
	if _, err := b.transport.SendMessage(ctx, chatID, text); err != nil {
		b.logger.Warn("reply failed", "chat_id", chatID, "error", err)
	}
}

// parseCommand splits "/cmd@bot args" into a lowercase command and its
// arguments. Text that is not a command yields an empty command.
func parseCommand(text string) (string, string) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", text
	}
	cmd, args, _ := strings.Cut(text, " ")
	cmd = strings.TrimPrefix(cmd, "/")
	if i := strings.IndexByte(cmd, '@'); i >= 0 {
		cmd = cmd[:i]
	}
	return strings.ToLower(cmd), strings.TrimSpace(args)
}

func hasLink(text string) bool {
	return len(domain.ParseLinks(text)) > 0
}

func sleepContext(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
