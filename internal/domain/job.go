package domain

// Outcome represents the processing state of a job.
type Outcome string

const (
	OutcomePending    Outcome = "pending"
	OutcomeDownloaded Outcome = "downloaded"
	OutcomeSent       Outcome = "sent"
	OutcomeFailed     Outcome = "failed"
)

// Job is the per-link execution record. It is owned by the orchestrator
// iteration that created it and discarded after cleanup.
type Job struct {
	Index     int // 1-based position in the link list
	Entry     LinkEntry
	Category  Category
	Target    ResolvedTarget
	Display   string
	BaseName  string
	WorkDir   string
	LocalPath string
	Thumbnail string
	Outcome   Outcome
	Attempts  int
	Error     string
}

// NewJob creates a pending job for the link at the given 1-based index.
func NewJob(index int, entry LinkEntry, workDir, prefix string) *Job {
	return &Job{
		Index:    index,
		Entry:    entry,
		Category: CategoryOf(entry.URL),
		Display:  DisplayName(entry.Label),
		BaseName: FileBaseName(index, entry.Label, prefix),
		WorkDir:  workDir,
		Outcome:  OutcomePending,
	}
}

// CanRetry returns true if the job may be attempted again.
func (j *Job) CanRetry(maxAttempts int) bool {
	return j.Attempts < maxAttempts && j.Outcome != OutcomeSent
}

// Downloaded records the local artifact.
func (j *Job) Downloaded(path string) {
	j.LocalPath = path
	j.Outcome = OutcomeDownloaded
}

// Sent marks the job delivered.
func (j *Job) Sent() {
	j.Outcome = OutcomeSent
	j.Error = ""
}

// Fail marks the job failed with a reason.
func (j *Job) Fail(reason string) {
	j.Outcome = OutcomeFailed
	j.Error = reason
}

// Succeeded reports whether the job ended delivered.
func (j *Job) Succeeded() bool {
	return j.Outcome == OutcomeSent
}

// Reset clears per-attempt state before a retry of the same link.
func (j *Job) Reset() {
	j.Target = ResolvedTarget{}
	j.LocalPath = ""
	j.Thumbnail = ""
	j.Outcome = OutcomePending
	j.Error = ""
}
