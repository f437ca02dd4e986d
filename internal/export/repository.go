package export

import (
	"context"
	"errors"
)

// ErrJobNotFound is returned for an unknown export job ID.
var ErrJobNotFound = errors.New("export job not found")

// Repository keeps the export history of one session. Implementations hand
// out copies, so callers never share a *Job with the exporter.
type Repository interface {
	// Save records job, replacing an earlier record with the same ID.
	Save(ctx context.Context, job *Job) error
	// FindByID returns ErrJobNotFound for unknown IDs.
	FindByID(ctx context.Context, id string) (*Job, error)
	// List returns jobs in the order they were first saved.
	List(ctx context.Context) ([]*Job, error)
	// Delete forgets a job; ErrJobNotFound for unknown IDs.
	Delete(ctx context.Context, id string) error
}
