package export

import (
	"context"
	"slices"
	"sync"
)

var _ Repository = (*MemoryRepository)(nil)

// MemoryRepository is the export history of a session, kept in first-saved
// order. It lives and dies with the session.
type MemoryRepository struct {
	mu    sync.RWMutex
	order []string
	jobs  map[string]*Job
}

// NewMemoryRepository returns an empty history.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{jobs: make(map[string]*Job)}
}

func (r *MemoryRepository) Save(_ context.Context, job *Job) error {
	snap := job.Clone()
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[snap.ID]; !ok {
		r.order = append(r.order, snap.ID)
	}
	r.jobs[snap.ID] = snap
	return nil
}

func (r *MemoryRepository) FindByID(_ context.Context, id string) (*Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if j, ok := r.jobs[id]; ok {
		return j.Clone(), nil
	}
	return nil, ErrJobNotFound
}

func (r *MemoryRepository) List(_ context.Context) ([]*Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Job, len(r.order))
	for i, id := range r.order {
		out[i] = r.jobs[id].Clone()
	}
	return out, nil
}

func (r *MemoryRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[id]; !ok {
		return ErrJobNotFound
	}
	delete(r.jobs, id)
	r.order = slices.DeleteFunc(r.order, func(s string) bool { return s == id })
	return nil
}
