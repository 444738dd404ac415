package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/cwygoda/linkbatch/internal/domain"
)

const (
	noticeErrLimit = 200
	// maxLinkAttempts bounds dispatches of one link across rate-limit retries.
	maxLinkAttempts = 2
)

// Deps are the ports the orchestrator drives.
type Deps struct {
	Transport  domain.Transport
	Resolver   domain.Resolver
	Dispatcher domain.Dispatcher
	Deliverer  domain.Deliverer
	// Runs is optional. A nil repository disables run history.
	Runs domain.RunRepository
}

// Batch is one run request.
type Batch struct {
	ChatID     int64
	WorkDir    string
	Links      []domain.LinkEntry
	Params     domain.BatchParameters
	LogChannel int64
}

// Report is the outcome of a run.
type Report struct {
	RunID      string
	BatchName  string
	StartIndex int
	Total      int
	Categories map[domain.Category]int
	Stats      domain.BatchStats
	Results    []domain.LinkResult
	Status     domain.RunStatus
}

// Orchestrator processes the links of a batch one at a time.
type Orchestrator struct {
	deps   Deps
	logger *slog.Logger
	sleep  func(context.Context, time.Duration) error
	newID  func() string
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithSleep replaces the rate-limit wait.
func WithSleep(fn func(context.Context, time.Duration) error) Option {
	return func(o *Orchestrator) { o.sleep = fn }
}

// New creates an orchestrator.
func New(deps Deps, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		deps:   deps,
		logger: slog.Default(),
		sleep:  sleepContext,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run processes b.Links from b.Params.StartIndex to the end. Per-link
// failures are reported and counted; only an invalid start index or a
// fatal setup error is returned. The work directory is removed on every
// exit path.
func (o *Orchestrator) Run(ctx context.Context, b Batch) (Report, error) {
	if err := b.Params.Validate(len(b.Links)); err != nil {
		return Report{}, err
	}
	defer func() {
		if b.WorkDir == "" {
			return
		}
		if err := os.RemoveAll(b.WorkDir); err != nil {
			o.logger.Warn("work dir cleanup failed", "dir", b.WorkDir, "error", err)
		}
	}()

	pending := b.Links[b.Params.StartIndex-1:]
	rep := Report{
		RunID:      o.newID(),
		BatchName:  b.Params.BatchName,
		StartIndex: b.Params.StartIndex,
		Total:      len(b.Links),
		Categories: domain.CountCategories(pending),
		Stats:      domain.NewBatchStats(len(pending)),
		Status:     domain.RunRunning,
	}
	log := o.logger.With("batch", rep.BatchName, "run", rep.RunID, "chat_id", b.ChatID)
	o.createRun(ctx, b, rep, log)

	if err := o.announce(ctx, b); err != nil {
		rep.Status = domain.RunAborted
		log.Error("batch aborted", "error", err)
		o.notify(ctx, b.ChatID, "❌ Batch aborted: "+truncate(err.Error(), noticeErrLimit), log)
		o.finishRun(ctx, rep, err.Error(), log)
		return rep, err
	}

	log.Info("batch started", "links", len(pending), "start", rep.StartIndex)
	rep.Status = domain.RunCompleted
	var fatal error
	for i := b.Params.StartIndex - 1; i < len(b.Links); i++ {
		if ctx.Err() != nil {
			rep.Status = domain.RunCancelled
			break
		}
		job, err := o.processLink(ctx, b, i+1, log)
		res := domain.ResultOf(job)
		rep.Stats.Record(res)
		rep.Results = append(rep.Results, res)
		o.recordLink(ctx, rep.RunID, res, log)
		o.cleanup(job)

		if err != nil && domain.Classify(err) == domain.DispositionFatal {
			fatal = err
			rep.Status = domain.RunAborted
			break
		}
	}
	if rep.Status == domain.RunCompleted && ctx.Err() != nil {
		rep.Status = domain.RunCancelled
	}

	log.Info("batch finished",
		"status", rep.Status,
		"succeeded", rep.Stats.Succeeded,
		"failed", rep.Stats.Failed)

	summary := Summary(rep)
	o.notify(ctx, b.ChatID, summary, log)
	if b.LogChannel != 0 && b.LogChannel != b.ChatID {
		o.notify(ctx, b.LogChannel, summary, log)
	}
	reason := ""
	if fatal != nil {
		reason = fatal.Error()
	}
	o.finishRun(ctx, rep, reason, log)
	return rep, fatal
}

// processLink runs one link, retrying it once after a rate-limit wait.
func (o *Orchestrator) processLink(ctx context.Context, b Batch, index int, log *slog.Logger) (*domain.Job, error) {
	entry := b.Links[index-1]
	job := domain.NewJob(index, entry, b.WorkDir, b.Params.FilenamePrefix)
	log = log.With("index", index, "url", entry.URL)

	err := o.attempt(ctx, b, job, log)
	if wait, ok := domain.RetryAfter(err); ok && job.CanRetry(maxLinkAttempts) {
		log.Warn("rate limited, retrying link", "wait", wait)
		if serr := o.sleep(ctx, wait); serr != nil {
			err = serr
		} else {
			o.cleanup(job)
			job.Reset()
			err = o.attempt(ctx, b, job, log)
		}
	}

	if err != nil {
		if job.Outcome != domain.OutcomeFailed {
			job.Fail(err.Error())
		}
		log.Warn("link failed", "error", err, "strategy", job.Target.Strategy)
		o.notify(ctx, b.ChatID, failureNotice(job, err), log)
		return job, err
	}
	log.Info("link delivered", "strategy", job.Target.Strategy, "rule", job.Target.Rule)
	return job, nil
}

func (o *Orchestrator) attempt(ctx context.Context, b Batch, job *domain.Job, log *slog.Logger) error {
	progress := fmt.Sprintf("⬇️ Downloading %s (%d/%d)", job.Display, job.Index, len(b.Links))
	msgID, err := o.deps.Transport.SendMessage(ctx, b.ChatID, progress)
	switch {
	case err == nil:
		defer func() {
			if err := o.deps.Transport.DeleteMessage(context.WithoutCancel(ctx), b.ChatID, msgID); err != nil {
				log.Debug("progress message not deleted", "error", err)
			}
		}()
	case domain.Classify(err) == domain.DispositionRetryable:
		return err
	default:
		log.Debug("progress message failed", "error", err)
	}

	job.Target = o.deps.Resolver.Resolve(ctx, job.Entry.URL, b.Params.RuleContext())
	if job.Target.Degraded {
		log.Warn("key exchange missed, using generic download")
	}
	if err := o.deps.Dispatcher.Execute(ctx, job, b.Params); err != nil {
		return err
	}
	if job.Outcome == domain.OutcomeDownloaded {
		if err := o.deps.Deliverer.Deliver(ctx, job, b.Params); err != nil {
			return err
		}
	}
	if !job.Succeeded() {
		return domain.ErrNoOutput
	}
	return nil
}

func (o *Orchestrator) announce(ctx context.Context, b Batch) error {
	ch := b.Params.Channel
	if ch == 0 || ch == b.ChatID {
		return nil
	}
	text := fmt.Sprintf("📦 Batch: %s\n🔗 Links: %d", b.Params.BatchName, len(b.Links)-b.Params.StartIndex+1)
	if err := o.send(ctx, ch, text); err != nil {
		return domain.Fatal(fmt.Errorf("announce to channel %d: %w", ch, err))
	}
	return nil
}

// notify sends a message that must go out even after cancellation. Errors
// are logged only.
func (o *Orchestrator) notify(ctx context.Context, chatID int64, text string, log *slog.Logger) {
	if err := o.send(context.WithoutCancel(ctx), chatID, text); err != nil {
		log.Warn("notice not sent", "chat_id", chatID, "error", err)
	}
}

// send delivers text, waiting out one rate limit before a second try.
func (o *Orchestrator) send(ctx context.Context, chatID int64, text string) error {
	_, err := o.deps.Transport.SendMessage(ctx, chatID, text)
	wait, ok := domain.RetryAfter(err)
	if !ok {
		return err
	}
	if err := o.sleep(ctx, wait); err != nil {
		return err
	}
	_, err = o.deps.Transport.SendMessage(ctx, chatID, text)
	return err
}

func (o *Orchestrator) cleanup(job *domain.Job) {
	for _, p := range []string{job.LocalPath, job.Thumbnail} {
		if p == "" {
			continue
		}
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			o.logger.Debug("remove artifact", "path", p, "error", err)
		}
	}
}

func (o *Orchestrator) createRun(ctx context.Context, b Batch, rep Report, log *slog.Logger) {
	if o.deps.Runs == nil {
		return
	}
	run := &domain.BatchRun{
		ID:         rep.RunID,
		ChatID:     b.ChatID,
		BatchName:  rep.BatchName,
		StartIndex: rep.StartIndex,
		Total:      rep.Stats.Total,
		Status:     domain.RunRunning,
	}
	if err := o.deps.Runs.CreateRun(ctx, run); err != nil {
		log.Warn("create run record", "error", err)
	}
}

func (o *Orchestrator) recordLink(ctx context.Context, runID string, res domain.LinkResult, log *slog.Logger) {
	if o.deps.Runs == nil {
		return
	}
	if err := o.deps.Runs.RecordLink(context.WithoutCancel(ctx), runID, res); err != nil {
		log.Warn("record link result", "index", res.Index, "error", err)
	}
}

func (o *Orchestrator) finishRun(ctx context.Context, rep Report, reason string, log *slog.Logger) {
	if o.deps.Runs == nil {
		return
	}
	if err := o.deps.Runs.FinishRun(context.WithoutCancel(ctx), rep.RunID, rep.Stats, rep.Status, reason); err != nil {
		log.Warn("finish run record", "error", err)
	}
}

func failureNotice(job *domain.Job, err error) string {
	return fmt.Sprintf("❌ Error for [%03d] %s\n🔗 %s\n%s",
		job.Index, job.Display, job.Entry.URL, truncate(err.Error(), noticeErrLimit))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
