package export

import (
	"strings"
	"sync"
	"testing"
)

func newTestJob() *Job {
	return NewJob(FormatMP4, Request{StartTime: 1, EndTime: 3, DurationSeconds: 2})
}

func TestNewJob(t *testing.T) {
	job := newTestJob()

	if !strings.HasPrefix(job.ID, "exp-") {
		t.Errorf("expected export ID, got %s", job.ID)
	}
	if job.Status != StatusQueued {
		t.Errorf("expected status %s, got %s", StatusQueued, job.Status)
	}
	if job.OutputName != "freecut-edit.mp4" {
		t.Errorf("expected output name freecut-edit.mp4, got %s", job.OutputName)
	}
	if job.CreatedAt.IsZero() || job.UpdatedAt.IsZero() {
		t.Error("expected timestamps to be set")
	}
}

func TestJob_Transitions(t *testing.T) {
	tests := []struct {
		name    string
		from    Status
		to      Status
		wantErr bool
	}{
		{"QUEUED to RUNNING", StatusQueued, StatusRunning, false},
		{"QUEUED to FAILED", StatusQueued, StatusFailed, false},
		{"QUEUED to CANCELLED", StatusQueued, StatusCancelled, false},
		{"RUNNING to COMPLETED", StatusRunning, StatusCompleted, false},
		{"RUNNING to FAILED", StatusRunning, StatusFailed, false},
		{"RUNNING to CANCELLED", StatusRunning, StatusCancelled, false},
		{"QUEUED to COMPLETED", StatusQueued, StatusCompleted, true},
		{"RUNNING to QUEUED", StatusRunning, StatusQueued, true},
		{"COMPLETED to RUNNING", StatusCompleted, StatusRunning, true},
		{"FAILED to RUNNING", StatusFailed, StatusRunning, true},
		{"CANCELLED to COMPLETED", StatusCancelled, StatusCompleted, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := newTestJob()
			job.Status = tt.from

			err := job.TransitionTo(tt.to)
			if (err != nil) != tt.wantErr {
				t.Errorf("TransitionTo() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && job.Status != tt.to {
				t.Errorf("expected status %s, got %s", tt.to, job.Status)
			}
			if tt.wantErr && job.Status != tt.from {
				t.Errorf("status changed on rejected transition: %s", job.Status)
			}
		})
	}
}

func TestJob_Lifecycle(t *testing.T) {
	job := newTestJob()

	if err := job.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if job.StartedAt.IsZero() {
		t.Error("expected StartedAt to be set")
	}

	if err := job.Complete("/tmp/out/freecut-edit.mp4", 1024, "https://example/x"); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if job.Progress != 100 || job.Size != 1024 || job.URL == "" || job.OutputPath == "" {
		t.Errorf("unexpected completed job: %+v", job.Clone())
	}
	if job.CompletedAt.IsZero() {
		t.Error("expected CompletedAt to be set")
	}
	if !job.IsTerminal() {
		t.Error("expected completed job to be terminal")
	}
}

func TestJob_Fail(t *testing.T) {
	job := newTestJob()
	_ = job.Start()

	if err := job.Fail("encoder crashed"); err != nil {
		t.Fatalf("Fail() error = %v", err)
	}
	if job.Status != StatusFailed || job.Error != "encoder crashed" {
		t.Errorf("unexpected failed job: %s %q", job.Status, job.Error)
	}

	if err := job.Fail("again"); err == nil {
		t.Error("expected error failing a terminal job")
	}
	if job.Error != "encoder crashed" {
		t.Errorf("rejected Fail must not overwrite the message, got %q", job.Error)
	}
}

func TestJob_UpdateProgress(t *testing.T) {
	job := newTestJob()

	tests := []struct {
		input   int
		want    int
		changed bool
	}{
		{10, 10, true},
		{5, 10, false},
		{150, 100, true},
		{-5, 100, false},
	}
	for _, tt := range tests {
		changed := job.UpdateProgress(tt.input)
		if changed != tt.changed || job.Progress != tt.want {
			t.Errorf("UpdateProgress(%d) = %v, progress %d; want %v, %d",
				tt.input, changed, job.Progress, tt.changed, tt.want)
		}
	}
}

func TestJob_Clone(t *testing.T) {
	job := newTestJob()
	_ = job.Start()
	job.UpdateProgress(40)

	clone := job.Clone()
	if clone.ID != job.ID || clone.Status != job.Status || clone.Progress != 40 {
		t.Errorf("clone mismatch: %+v", clone)
	}

	job.UpdateProgress(80)
	if clone.Progress != 40 {
		t.Error("modifying the original should not affect the clone")
	}
}

func TestJob_ConcurrentAccess(t *testing.T) {
	job := newTestJob()
	_ = job.Start()

	var wg sync.WaitGroup
	for i := range 100 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			job.UpdateProgress(i)
		}()
		go func() {
			defer wg.Done()
			_ = job.IsTerminal()
			_ = job.Clone()
		}()
	}
	wg.Wait()
}
