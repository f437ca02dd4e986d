package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/freecut/internal/storage"
	"github.com/maauso/freecut/internal/transcode"
)

func newRegistry(t *testing.T, limit int, ttl time.Duration) *Registry {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	deps := Deps{
		Prober:     fakeProber{},
		Extractor:  &fakeExtractor{},
		Transcoder: transcode.NewSimulated(store, time.Millisecond, nil),
		Store:      store,
	}
	r := NewRegistry(limit, ttl, func() *Session { return New(deps, DefaultConfig(), nil) }, nil)
	t.Cleanup(func() { _ = r.Close(context.Background()) })
	return r
}

func TestRegistry_CreateGetDelete(t *testing.T) {
	r := newRegistry(t, 4, time.Hour)

	s := r.Create()
	got, err := r.Get(s.ID())
	require.NoError(t, err)
	assert.Same(t, s, got)
	assert.Equal(t, 1, r.Len())

	require.NoError(t, r.Delete(s.ID()))
	_, err = r.Get(s.ID())
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, r.Delete(s.ID()), ErrNotFound)

	require.Eventually(t, func() bool {
		_, err := s.Position()
		return errors.Is(err, ErrClosed)
	}, time.Second, time.Millisecond, "deleted sessions are closed")
}

func TestRegistry_EvictsLeastRecentlyUsed(t *testing.T) {
	r := newRegistry(t, 2, time.Hour)

	a := r.Create()
	b := r.Create()
	_, err := r.Get(a.ID()) // a is now most recent
	require.NoError(t, err)

	r.Create()
	assert.Equal(t, 2, r.Len())
	_, err = r.Get(b.ID())
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = r.Get(a.ID())
	assert.NoError(t, err)
}

func TestRegistry_Expires(t *testing.T) {
	r := newRegistry(t, 4, 20*time.Millisecond)
	s := r.Create()

	require.Eventually(t, func() bool {
		_, err := r.Get(s.ID())
		return err != nil
	}, time.Second, 50*time.Millisecond, "polling slower than the TTL lets it lapse")
}

func TestRegistry_Close(t *testing.T) {
	r := newRegistry(t, 4, time.Hour)
	s := r.Create()
	load(t, s, "")

	require.NoError(t, r.Close(context.Background()))
	assert.Equal(t, 0, r.Len())
	_, err := s.Position()
	assert.ErrorIs(t, err, ErrClosed)
}
