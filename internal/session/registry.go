package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Registry keeps a bounded set of sessions. The least recently used session
// is evicted when the limit is reached, and sessions idle for longer than
// the TTL expire. Evicted sessions are closed.
type Registry struct {
	cache  *expirable.LRU[string, *Session]
	create func() *Session
	logger *slog.Logger
	wg     sync.WaitGroup
}

// NewRegistry creates a registry of at most limit sessions built by create.
func NewRegistry(limit int, ttl time.Duration, create func() *Session, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{create: create, logger: logger}
	r.cache = expirable.NewLRU[string, *Session](limit, r.evicted, ttl)
	return r
}

// Create adds a new empty session.
func (r *Registry) Create() *Session {
	s := r.create()
	r.cache.Add(s.ID(), s)
	r.logger.Info("session created", slog.String("session_id", s.ID()))
	return s
}

// Get returns a session and refreshes its TTL.
func (r *Registry) Get(id string) (*Session, error) {
	s, ok := r.cache.Get(id)
	if !ok {
		return nil, ErrNotFound
	}
	r.cache.Add(id, s)
	return s, nil
}

// Delete closes and removes a session.
func (r *Registry) Delete(id string) error {
	if !r.cache.Remove(id) {
		return ErrNotFound
	}
	return nil
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	return r.cache.Len()
}

// Close closes every session and waits for them to release their resources.
func (r *Registry) Close(ctx context.Context) error {
	r.cache.Purge()
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// evicted runs under the cache lock, so closing happens elsewhere.
func (r *Registry) evicted(id string, s *Session) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := s.Close(context.Background()); err != nil {
			r.logger.Warn("failed to close session",
				slog.String("session_id", id),
				slog.String("error", err.Error()),
			)
			return
		}
		r.logger.Debug("session evicted", slog.String("session_id", id))
	}()
}
