package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNoLinks         = errors.New("no valid links found")
	ErrStartOutOfRange = errors.New("start index out of range")
	ErrNoOutput        = errors.New("no output file produced")
	ErrWizardTimeout   = errors.New("timed out waiting for input")
	ErrWizardAborted   = errors.New("wizard aborted")
	ErrRunNotFound     = errors.New("batch run not found")
	ErrKeyExchangeMiss = errors.New("key exchange returned no usable data")
)

// RateLimitError is the transport's signal to back off before retrying.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

// FatalError aborts a whole batch run.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string { return "fatal: " + e.Err.Error() }
func (e *FatalError) Unwrap() error { return e.Err }

// Fatal wraps err so Classify reports DispositionFatal.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &FatalError{Err: err}
}

// Disposition tells the orchestrator what to do with a per-link error.
type Disposition int

const (
	DispositionNone Disposition = iota
	DispositionRetryable
	DispositionSkip
	DispositionFatal
)

func (d Disposition) String() string {
	switch d {
	case DispositionNone:
		return "none"
	case DispositionRetryable:
		return "retryable"
	case DispositionSkip:
		return "skip"
	case DispositionFatal:
		return "fatal"
	}
	return "unknown"
}

// Classify maps an error to a disposition.
func Classify(err error) Disposition {
	if err == nil {
		return DispositionNone
	}
	var fatal *FatalError
	if errors.As(err, &fatal) {
		return DispositionFatal
	}
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return DispositionRetryable
	}
	return DispositionSkip
}

// RetryAfter extracts the backoff of a rate-limit error.
func RetryAfter(err error) (time.Duration, bool) {
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return rl.RetryAfter, true
	}
	return 0, false
}
