// Package wizard collects batch parameters through a fixed sequence of chat
// prompts.
package wizard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cwygoda/linkbatch/internal/domain"
)

// State is one step of the parameter wizard.
type State int

const (
	AwaitFile State = iota
	AwaitStartIndex
	AwaitBatchName
	AwaitQuality
	AwaitWatermark
	AwaitCredit
	AwaitToken
	AwaitThumbnail
	AwaitChannel
	Ready
)

var stateNames = [...]string{
	"AwaitFile", "AwaitStartIndex", "AwaitBatchName", "AwaitQuality", "AwaitWatermark",
	"AwaitCredit", "AwaitToken", "AwaitThumbnail", "AwaitChannel", "Ready",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "State(" + strconv.Itoa(int(s)) + ")"
}

// DefaultInput accepts the documented default for any step.
const DefaultInput = "/d"

// Flow configures one conversational entry point.
type Flow struct {
	Name        string
	Kind        domain.Flow
	FileTimeout time.Duration
	StepTimeout time.Duration
	// Skip lists states that take their default without prompting.
	Skip map[State]bool
}

// Defaults are the configured fallbacks.
type Defaults struct {
	Credit         string
	FilenamePrefix string
}

// Result is the frozen output of a completed wizard.
type Result struct {
	Links    []domain.LinkEntry
	FileName string
	Params   domain.BatchParameters
}

// Wizard drives the prompt sequence for one chat.
type Wizard struct {
	transport domain.Transport
	prompter  domain.Prompter
	defaults  Defaults
	logger    *slog.Logger
}

// New creates a wizard.
func New(transport domain.Transport, prompter domain.Prompter, defaults Defaults, logger *slog.Logger) *Wizard {
	if logger == nil {
		logger = slog.Default()
	}
	return &Wizard{transport: transport, prompter: prompter, defaults: defaults, logger: logger}
}

type session struct {
	chatID  int64
	workDir string
	flow    Flow
	res     Result
}

type step struct {
	prompt    func(s *session) string
	apply     func(ctx context.Context, w *Wizard, s *session, msg domain.Message) error
	onTimeout func(w *Wizard, s *session) error
}

// Run walks AwaitFile through Ready. The link file and a custom thumbnail
// are downloaded into workDir. A missing file, an empty link list or an
// out-of-range start index abort the flow with an error and a chat notice;
// every later step falls back to its default on timeout.
func (w *Wizard) Run(ctx context.Context, chatID int64, workDir string, flow Flow) (Result, error) {
	s := &session{chatID: chatID, workDir: workDir, flow: flow}
	s.res.Params = domain.BatchParameters{
		StartIndex:     1,
		Quality:        domain.DefaultQuality,
		Watermark:      domain.DefaultWatermark,
		Credit:         w.defaults.Credit,
		FilenamePrefix: w.defaults.FilenamePrefix,
		Thumbnail:      domain.ThumbnailPolicy{Kind: domain.ThumbnailDefault},
		Channel:        chatID,
		Flow:           flow.Kind,
	}

	for state := AwaitFile; state < Ready; state++ {
		st := steps[state]
		if flow.Skip[state] && state != AwaitFile {
			if err := st.onTimeout(w, s); err != nil {
				return Result{}, err
			}
			continue
		}

		timeout := flow.StepTimeout
		if state == AwaitFile {
			timeout = flow.FileTimeout
		}

		if err := w.prompt(ctx, chatID, st.prompt(s)); err != nil {
			return Result{}, fmt.Errorf("prompt %s: %w", state, err)
		}

		msg, err := w.prompter.Await(ctx, chatID, timeout)
		switch {
		case errors.Is(err, domain.ErrWizardTimeout):
			w.logger.Debug("wizard step timed out, using default", "chat_id", chatID, "state", state)
			err = st.onTimeout(w, s)
		case err != nil:
			return Result{}, err
		default:
			err = st.apply(ctx, w, s, msg)
			if msg.ID != 0 {
				if derr := w.transport.DeleteMessage(ctx, chatID, msg.ID); derr != nil {
					w.logger.Debug("delete wizard reply", "chat_id", chatID, "error", derr)
				}
			}
		}
		if err != nil {
			w.notify(ctx, chatID, err)
			return Result{}, err
		}
	}

	if err := s.res.Params.Validate(len(s.res.Links)); err != nil {
		return Result{}, err
	}
	return s.res, nil
}

// prompt sends text, waiting out one rate limit before a second try.
func (w *Wizard) prompt(ctx context.Context, chatID int64, text string) error {
	_, err := w.transport.SendMessage(ctx, chatID, text)
	wait, ok := domain.RetryAfter(err)
	if !ok {
		return err
	}
	w.logger.Debug("wizard prompt rate limited", "chat_id", chatID, "wait", wait)
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
	}
	_, err = w.transport.SendMessage(ctx, chatID, text)
	return err
}

func (w *Wizard) notify(ctx context.Context, chatID int64, err error) {
	text := "❌ " + err.Error()
	if errors.Is(err, domain.ErrWizardTimeout) {
		text = "⏳ Timeout: no file received."
	}
	if _, serr := w.transport.SendMessage(ctx, chatID, text); serr != nil {
		w.logger.Warn("send wizard notice", "chat_id", chatID, "error", serr)
	}
}

func isDefault(msg domain.Message) bool {
	return strings.TrimSpace(msg.Text) == DefaultInput
}

var steps = map[State]step{
	AwaitFile: {
		prompt: func(s *session) string {
			return "📤 Send your .txt file with links (one \"Name: URL\" per line)."
		},
		apply: func(ctx context.Context, w *Wizard, s *session, msg domain.Message) error {
			if msg.Document == nil || !strings.HasSuffix(strings.ToLower(msg.Document.Name), ".txt") {
				return fmt.Errorf("%w: please send a .txt file", domain.ErrWizardAborted)
			}
			links, err := w.readLinks(ctx, s.workDir, msg.Document)
			if err != nil {
				return err
			}
			s.res.Links = links
			s.res.FileName = msg.Document.Name
			s.res.Params.BatchName = BatchNameFromFile(msg.Document.Name)
			return nil
		},
		onTimeout: func(*Wizard, *session) error { return domain.ErrWizardTimeout },
	},
	AwaitStartIndex: {
		prompt: func(s *session) string {
			return fmt.Sprintf("✅ Found %d links.\nSend starting index (1..%d) or %s for 1.", len(s.res.Links), len(s.res.Links), DefaultInput)
		},
		apply: func(_ context.Context, _ *Wizard, s *session, msg domain.Message) error {
			if isDefault(msg) {
				s.res.Params.StartIndex = 1
				return nil
			}
			n, err := strconv.Atoi(strings.TrimSpace(msg.Text))
			if err != nil {
				return fmt.Errorf("%w: %q is not a number, want 1..%d", domain.ErrStartOutOfRange, msg.Text, len(s.res.Links))
			}
			s.res.Params.StartIndex = n
			return s.res.Params.Validate(len(s.res.Links))
		},
		onTimeout: func(_ *Wizard, s *session) error {
			s.res.Params.StartIndex = 1
			return nil
		},
	},
	AwaitBatchName: {
		prompt: func(s *session) string {
			return fmt.Sprintf("📁 Enter batch name or %s for %q:", DefaultInput, s.res.Params.BatchName)
		},
		apply: func(_ context.Context, _ *Wizard, s *session, msg domain.Message) error {
			if name := strings.TrimSpace(msg.Text); name != "" && !isDefault(msg) {
				s.res.Params.BatchName = name
			}
			return nil
		},
		onTimeout: keepDefault,
	},
	AwaitQuality: {
		prompt: func(*session) string {
			return "🎚 Enter video quality (144/240/360/480/720/1080) or " + DefaultInput + " for 480:"
		},
		apply: func(_ context.Context, _ *Wizard, s *session, msg domain.Message) error {
			q, ok := domain.ParseQuality(msg.Text)
			if !ok {
				q = domain.DefaultQuality
			}
			s.res.Params.Quality = q
			return nil
		},
		onTimeout: keepDefault,
	},
	AwaitWatermark: {
		prompt: func(*session) string {
			return "💧 Enter watermark text or " + DefaultInput + " for none:"
		},
		apply: func(_ context.Context, _ *Wizard, s *session, msg domain.Message) error {
			if text := strings.TrimSpace(msg.Text); text != "" && !isDefault(msg) {
				s.res.Params.Watermark = text
			}
			return nil
		},
		onTimeout: keepDefault,
	},
	AwaitCredit: {
		prompt: func(s *session) string {
			return fmt.Sprintf("💬 Enter credit text or %s for %q:", DefaultInput, s.res.Params.Credit)
		},
		apply: func(_ context.Context, _ *Wizard, s *session, msg domain.Message) error {
			if text := strings.TrimSpace(msg.Text); text != "" && !isDefault(msg) {
				s.res.Params.Credit = text
			}
			return nil
		},
		onTimeout: keepDefault,
	},
	AwaitToken: {
		prompt: func(*session) string {
			return "🔐 Send your access token or " + DefaultInput + " to skip:"
		},
		apply: func(_ context.Context, _ *Wizard, s *session, msg domain.Message) error {
			if !isDefault(msg) {
				s.res.Params.AuthToken = strings.TrimSpace(msg.Text)
			}
			return nil
		},
		onTimeout: keepDefault,
	},
	AwaitThumbnail: {
		prompt: func(*session) string {
			return "🖼 Send a thumbnail photo, \"no\" for none, or " + DefaultInput + " for an auto-generated frame:"
		},
		apply: func(ctx context.Context, w *Wizard, s *session, msg domain.Message) error {
			switch {
			case msg.Photo != nil:
				dst := filepath.Join(s.workDir, "thumbnail.jpg")
				if err := w.transport.DownloadFile(ctx, msg.Photo.ID, dst); err != nil {
					w.logger.Warn("thumbnail download failed, using default", "chat_id", s.chatID, "error", err)
					return nil
				}
				s.res.Params.Thumbnail = domain.ThumbnailPolicy{Kind: domain.ThumbnailCustom, Path: dst}
			case strings.EqualFold(strings.TrimSpace(msg.Text), "no"), strings.EqualFold(strings.TrimSpace(msg.Text), "none"):
				s.res.Params.Thumbnail = domain.ThumbnailPolicy{Kind: domain.ThumbnailNone}
			}
			return nil
		},
		onTimeout: keepDefault,
	},
	AwaitChannel: {
		prompt: func(*session) string {
			return "📢 Send the destination channel id or " + DefaultInput + " for this chat:"
		},
		apply: func(_ context.Context, _ *Wizard, s *session, msg domain.Message) error {
			if id, err := strconv.ParseInt(strings.TrimSpace(msg.Text), 10, 64); err == nil && id != 0 {
				s.res.Params.Channel = id
			} else {
				s.res.Params.Channel = s.chatID
			}
			return nil
		},
		onTimeout: keepDefault,
	},
}

func keepDefault(*Wizard, *session) error { return nil }

func (w *Wizard) readLinks(ctx context.Context, workDir string, doc *domain.FileRef) ([]domain.LinkEntry, error) {
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(workDir, filepath.Base(doc.Name))
	if err := w.transport.DownloadFile(ctx, doc.ID, path); err != nil {
		return nil, fmt.Errorf("download link file: %w", err)
	}
	defer os.Remove(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read link file: %w", err)
	}
	links := domain.ParseLinks(string(data))
	if len(links) == 0 {
		return nil, domain.ErrNoLinks
	}
	return links, nil
}

// BatchNameFromFile derives the default batch name from the uploaded file.
func BatchNameFromFile(name string) string {
	base := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	base = strings.TrimSpace(strings.NewReplacer("_", " ").Replace(base))
	if base == "" {
		return "batch"
	}
	return base
}
