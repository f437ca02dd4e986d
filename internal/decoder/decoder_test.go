package decoder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSource records render times. When gate is set, each render blocks
// until a value is sent on it.
type fakeSource struct {
	mu      sync.Mutex
	renders []float64
	started chan float64
	gate    chan struct{}
	failAt  map[float64]error
}

func newFakeSource() *fakeSource {
	return &fakeSource{started: make(chan float64, 64), failAt: map[float64]error{}}
}

func (s *fakeSource) Render(ctx context.Context, t float64) ([]byte, error) {
	s.mu.Lock()
	s.renders = append(s.renders, t)
	gate := s.gate
	err := s.failAt[t]
	s.mu.Unlock()

	s.started <- t
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return []byte(fmt.Sprintf("frame@%.2f", t)), nil
}

func (s *fakeSource) calls() []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]float64(nil), s.renders...)
}

func TestQueue_SeekSettles(t *testing.T) {
	src := newFakeSource()
	q := New(src, nil)
	defer q.Close()

	f, err := q.Seek(context.Background(), 1.5)
	require.NoError(t, err)
	assert.Equal(t, 1.5, f.Time)
	assert.Equal(t, []byte("frame@1.50"), f.Image)

	shown, ok := q.Displayed()
	require.True(t, ok)
	assert.Equal(t, 1.5, shown.Time)
}

func TestQueue_CaptureKeepsDisplayedFrame(t *testing.T) {
	src := newFakeSource()
	q := New(src, nil)
	defer q.Close()

	_, err := q.Seek(context.Background(), 2)
	require.NoError(t, err)

	img, err := q.Capture(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, []byte("frame@7.00"), img)

	shown, _ := q.Displayed()
	assert.Equal(t, 2.0, shown.Time)
}

func TestQueue_RequestOrder(t *testing.T) {
	src := newFakeSource()
	src.gate = make(chan struct{})
	q := New(src, nil)
	defer q.Close()

	var wg sync.WaitGroup
	results := make([]float64, 3)
	for i, target := range []float64{1, 2, 3} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f, err := q.Seek(context.Background(), target)
			assert.NoError(t, err)
			results[i] = f.Time
		}()
		// wait until the request is queued or running before issuing the next
		require.Eventually(t, func() bool {
			return q.Pending()+len(src.calls()) == i+1
		}, time.Second, time.Millisecond)
	}

	for range 3 {
		<-src.started
		src.gate <- struct{}{}
	}
	wg.Wait()

	assert.Equal(t, []float64{1, 2, 3}, src.calls())
	assert.Equal(t, []float64{1, 2, 3}, results)
}

func TestQueue_ScrubCoalesces(t *testing.T) {
	src := newFakeSource()
	src.gate = make(chan struct{})
	q := New(src, nil)
	defer q.Close()

	var mu sync.Mutex
	var notified []float64
	notify := func(f Frame, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err == nil {
			notified = append(notified, f.Time)
		}
	}

	require.NoError(t, q.Scrub(1, notify))
	assert.Equal(t, 1.0, <-src.started)

	// 1 is running; 2, 3 and 4 collapse into the last one
	require.NoError(t, q.Scrub(2, notify))
	require.NoError(t, q.Scrub(3, notify))
	require.NoError(t, q.Scrub(4, notify))
	assert.Equal(t, 1, q.Pending())

	src.gate <- struct{}{}
	assert.Equal(t, 4.0, <-src.started)
	src.gate <- struct{}{}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(notified) == 2
	}, time.Second, time.Millisecond)

	assert.Equal(t, []float64{1, 4}, src.calls())
	assert.Equal(t, []float64{1, 4}, notified)
	shown, _ := q.Displayed()
	assert.Equal(t, 4.0, shown.Time)
}

func TestQueue_ScrubNeverSupersedesSeek(t *testing.T) {
	src := newFakeSource()
	src.gate = make(chan struct{})
	q := New(src, nil)
	defer q.Close()

	require.NoError(t, q.Scrub(1, nil))
	<-src.started

	seekDone := make(chan error, 1)
	go func() {
		_, err := q.Seek(context.Background(), 5)
		seekDone <- err
	}()
	require.Eventually(t, func() bool { return q.Pending() == 1 }, time.Second, time.Millisecond)
	require.NoError(t, q.Scrub(9, nil))
	assert.Equal(t, 2, q.Pending())

	for range 2 {
		src.gate <- struct{}{}
		<-src.started
	}
	src.gate <- struct{}{}
	require.NoError(t, <-seekDone)
	assert.Equal(t, []float64{1, 5, 9}, src.calls())
}

func TestQueue_RenderError(t *testing.T) {
	src := newFakeSource()
	boom := errors.New("decode failed")
	src.failAt[3] = boom
	q := New(src, nil)
	defer q.Close()

	_, err := q.Seek(context.Background(), 1)
	require.NoError(t, err)

	_, err = q.Seek(context.Background(), 3)
	require.ErrorIs(t, err, boom)

	shown, _ := q.Displayed()
	assert.Equal(t, 1.0, shown.Time, "failed seek leaves the displayed frame alone")
}

func TestQueue_CallerContext(t *testing.T) {
	src := newFakeSource()
	src.gate = make(chan struct{})
	q := New(src, nil)
	defer q.Close()

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := q.Seek(ctx, 2)
		errc <- err
	}()
	<-src.started
	cancel()
	require.ErrorIs(t, <-errc, context.Canceled)

	// the seek itself still completes
	src.gate <- struct{}{}
	require.Eventually(t, func() bool {
		f, ok := q.Displayed()
		return ok && f.Time == 2
	}, time.Second, time.Millisecond)
}

func TestQueue_Close(t *testing.T) {
	src := newFakeSource()
	src.gate = make(chan struct{})
	q := New(src, nil)

	errs := make(chan error, 3)
	go func() {
		_, err := q.Seek(context.Background(), 1)
		errs <- err
	}()
	<-src.started
	for _, target := range []float64{2, 3} {
		go func() {
			_, err := q.Capture(context.Background(), target)
			errs <- err
		}()
	}
	require.Eventually(t, func() bool { return q.Pending() == 2 }, time.Second, time.Millisecond)

	require.NoError(t, q.Close())
	for range 3 {
		assert.ErrorIs(t, <-errs, ErrClosed)
	}

	_, err := q.Seek(context.Background(), 4)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, q.Scrub(4, nil), ErrClosed)
	assert.NoError(t, q.Close())
}
