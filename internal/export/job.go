package export

import (
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/maauso/freecut/internal/id"
)

// Status represents the current state of a Job.
type Status string

const (
	// StatusQueued indicates the job was accepted but the transcoder has not started.
	StatusQueued Status = "QUEUED"
	// StatusRunning indicates the transcoder is working on the job.
	StatusRunning Status = "RUNNING"
	// StatusCompleted indicates the output is ready for download.
	StatusCompleted Status = "COMPLETED"
	// StatusFailed indicates the transcoder reported an error.
	StatusFailed Status = "FAILED"
	// StatusCancelled indicates the job was cancelled, e.g. by a new media load.
	StatusCancelled Status = "CANCELLED"
)

// ErrInvalidTransition is returned when an invalid state transition is attempted.
var ErrInvalidTransition = errors.New("invalid state transition")

// validTransitions defines which state transitions are allowed.
var validTransitions = map[Status][]Status{
	StatusQueued:    {StatusRunning, StatusFailed, StatusCancelled},
	StatusRunning:   {StatusCompleted, StatusFailed, StatusCancelled},
	StatusCompleted: {},
	StatusFailed:    {},
	StatusCancelled: {},
}

func canTransition(from, to Status) bool {
	return slices.Contains(validTransitions[from], to)
}

// Job is one export of one trim window.
type Job struct {
	mu sync.RWMutex

	// ID is the unique identifier for this job.
	ID string
	// Status is the current job state.
	Status Status
	// Format is the output container.
	Format Format
	// Request is the trim window handed to the transcoder.
	Request Request
	// Backend names the transcoder that ran the job.
	Backend string
	// Progress is the percentage of completion (0-100).
	Progress int
	// Error contains the failure message if the job failed.
	Error string
	// OutputPath is the local file of a completed export.
	OutputPath string
	// OutputName is the file name the export is downloaded as.
	OutputName string
	// Size is the output size in bytes.
	Size int64
	// URL is set when the output was published to S3.
	URL string
	// CreatedAt is when the job was created.
	CreatedAt time.Time
	// UpdatedAt is when the job was last updated.
	UpdatedAt time.Time
	// StartedAt is when the transcoder started.
	StartedAt time.Time
	// CompletedAt is when the job reached a terminal state.
	CompletedAt time.Time
}

// NewJob creates a queued job with a generated ID.
func NewJob(format Format, req Request) *Job {
	now := time.Now()
	return &Job{
		ID:         id.Generate(id.PrefixExport),
		Status:     StatusQueued,
		Format:     format,
		Request:    req,
		OutputName: format.OutputName(),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// TransitionTo attempts to change the job status to the specified state.
// Returns ErrInvalidTransition if the transition is not allowed.
func (j *Job) TransitionTo(status Status) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.transitionLocked(status)
}

func (j *Job) transitionLocked(status Status) error {
	if !canTransition(j.Status, status) {
		return ErrInvalidTransition
	}

	j.Status = status
	j.UpdatedAt = time.Now()

	switch status {
	case StatusRunning:
		j.StartedAt = j.UpdatedAt
	case StatusCompleted:
		j.CompletedAt = j.UpdatedAt
		j.Progress = 100
	case StatusFailed, StatusCancelled:
		j.CompletedAt = j.UpdatedAt
	}
	return nil
}

// Start transitions the job from QUEUED to RUNNING.
func (j *Job) Start() error {
	return j.TransitionTo(StatusRunning)
}

// Complete records the output and transitions the job to COMPLETED.
func (j *Job) Complete(path string, size int64, url string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.transitionLocked(StatusCompleted); err != nil {
		return err
	}
	j.OutputPath = path
	j.Size = size
	j.URL = url
	return nil
}

// Fail transitions the job to FAILED with an error message.
func (j *Job) Fail(errMsg string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.transitionLocked(StatusFailed); err != nil {
		return err
	}
	j.Error = errMsg
	return nil
}

// Cancel transitions the job to CANCELLED.
func (j *Job) Cancel() error {
	return j.TransitionTo(StatusCancelled)
}

// UpdateProgress sets the progress percentage (0-100) and reports whether it
// changed. Progress never moves backwards.
func (j *Job) UpdateProgress(progress int) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	progress = max(0, min(100, progress))
	if progress <= j.Progress {
		return false
	}
	j.Progress = progress
	j.UpdatedAt = time.Now()
	return true
}

// IsTerminal returns true if the job is in a terminal state.
func (j *Job) IsTerminal() bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return isTerminal(j.Status)
}

func isTerminal(s Status) bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Clone creates a copy of the job for safe reads.
func (j *Job) Clone() *Job {
	j.mu.RLock()
	defer j.mu.RUnlock()

	return &Job{
		ID:          j.ID,
		Status:      j.Status,
		Format:      j.Format,
		Request:     j.Request,
		Backend:     j.Backend,
		Progress:    j.Progress,
		Error:       j.Error,
		OutputPath:  j.OutputPath,
		OutputName:  j.OutputName,
		Size:        j.Size,
		URL:         j.URL,
		CreatedAt:   j.CreatedAt,
		UpdatedAt:   j.UpdatedAt,
		StartedAt:   j.StartedAt,
		CompletedAt: j.CompletedAt,
	}
}
