package domain

import "testing"

func TestJob_CanRetry(t *testing.T) {
	tests := []struct {
		name        string
		job         Job
		maxAttempts int
		want        bool
	}{
		{
			name:        "can retry when attempts below max",
			job:         Job{Attempts: 1, Outcome: OutcomeFailed},
			maxAttempts: 2,
			want:        true,
		},
		{
			name:        "cannot retry when attempts at max",
			job:         Job{Attempts: 2, Outcome: OutcomeFailed},
			maxAttempts: 2,
			want:        false,
		},
		{
			name:        "cannot retry when sent",
			job:         Job{Attempts: 1, Outcome: OutcomeSent},
			maxAttempts: 2,
			want:        false,
		},
		{
			name:        "can retry pending job",
			job:         Job{Attempts: 0, Outcome: OutcomePending},
			maxAttempts: 2,
			want:        true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.job.CanRetry(tt.maxAttempts); got != tt.want {
				t.Errorf("CanRetry() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestOutcome_Values(t *testing.T) {
	// Stored as text in the run history
	if OutcomePending != "pending" {
		t.Errorf("OutcomePending = %q, want %q", OutcomePending, "pending")
	}
	if OutcomeDownloaded != "downloaded" {
		t.Errorf("OutcomeDownloaded = %q, want %q", OutcomeDownloaded, "downloaded")
	}
	if OutcomeSent != "sent" {
		t.Errorf("OutcomeSent = %q, want %q", OutcomeSent, "sent")
	}
	if OutcomeFailed != "failed" {
		t.Errorf("OutcomeFailed = %q, want %q", OutcomeFailed, "failed")
	}
}

func TestNewJob(t *testing.T) {
	job := NewJob(7, LinkEntry{Label: "Lecture: 1/2", URL: "https://cdn.example.com/a.pdf"}, "/tmp/w", "")

	if job.Outcome != OutcomePending {
		t.Errorf("Outcome = %q, want %q", job.Outcome, OutcomePending)
	}
	if job.Category != CategoryPDF {
		t.Errorf("Category = %q, want %q", job.Category, CategoryPDF)
	}
	if job.BaseName != "007_Lecture_12" {
		t.Errorf("BaseName = %q, want %q", job.BaseName, "007_Lecture_12")
	}
}

func TestJob_Transitions(t *testing.T) {
	job := NewJob(1, LinkEntry{Label: "a", URL: "https://x.io/a.mp4"}, "", "")

	job.Downloaded("/tmp/a.mp4")
	if job.Outcome != OutcomeDownloaded || job.LocalPath != "/tmp/a.mp4" {
		t.Fatalf("after Downloaded: %+v", job)
	}
	job.Sent()
	if !job.Succeeded() {
		t.Error("Succeeded() = false after Sent()")
	}

	job.Fail("boom")
	if job.Succeeded() || job.Error != "boom" {
		t.Errorf("after Fail: outcome=%q error=%q", job.Outcome, job.Error)
	}

	job.Reset()
	if job.Outcome != OutcomePending || job.LocalPath != "" || job.Error != "" {
		t.Errorf("after Reset: %+v", job)
	}
}
