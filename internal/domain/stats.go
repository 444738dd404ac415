package domain

import "time"

// LinkResult is the recorded outcome of one processed link.
type LinkResult struct {
	Index    int
	Label    string
	URL      string
	Category Category
	Strategy Strategy
	Outcome  Outcome
	Attempts int
	Error    string
}

// ResultOf snapshots a finished job.
func ResultOf(j *Job) LinkResult {
	return LinkResult{
		Index:    j.Index,
		Label:    j.Entry.Label,
		URL:      j.Entry.URL,
		Category: j.Category,
		Strategy: j.Target.Strategy,
		Outcome:  j.Outcome,
		Attempts: j.Attempts,
		Error:    j.Error,
	}
}

// BatchStats holds the counters of one run. Only the orchestrator writes it.
type BatchStats struct {
	Total      int
	Processed  int
	Succeeded  int
	Failed     int
	ByCategory map[Category]int
	ByStrategy map[Strategy]int
}

// NewBatchStats creates zeroed counters for a list of the given size.
func NewBatchStats(total int) BatchStats {
	return BatchStats{
		Total:      total,
		ByCategory: make(map[Category]int),
		ByStrategy: make(map[Strategy]int),
	}
}

// Record folds one link result into the counters.
func (s *BatchStats) Record(r LinkResult) {
	s.Processed++
	if r.Outcome == OutcomeSent {
		s.Succeeded++
		s.ByCategory[r.Category]++
	} else {
		s.Failed++
	}
	if r.Strategy != "" {
		s.ByStrategy[r.Strategy]++
	}
}

// RunStatus is the lifecycle state of a batch run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunAborted   RunStatus = "aborted"
	RunCancelled RunStatus = "cancelled"
)

// BatchRun is the persisted record of one batch.
type BatchRun struct {
	ID         string
	ChatID     int64
	BatchName  string
	StartIndex int
	Total      int
	Succeeded  int
	Failed     int
	Status     RunStatus
	Error      string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
