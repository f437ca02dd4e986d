package thumbnail

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/freecut/internal/media"
)

type fakeCapturer struct {
	mu       sync.Mutex
	times    []float64
	inFlight int
	maxSeen  int
	fail     func(t float64) error
	onCall   func(n int)
}

func (f *fakeCapturer) Capture(ctx context.Context, t float64) ([]byte, error) {
	f.mu.Lock()
	f.inFlight++
	f.maxSeen = max(f.maxSeen, f.inFlight)
	f.times = append(f.times, t)
	n := len(f.times)
	fail := f.fail
	onCall := f.onCall
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	if onCall != nil {
		onCall(n)
	}
	if fail != nil {
		if err := fail(t); err != nil {
			return nil, err
		}
	}
	return []byte(fmt.Sprintf("img@%.2f", t)), nil
}

func handle(duration, fps float64) *media.Handle {
	return &media.Handle{Path: "clip.mp4", Duration: duration, FrameRate: fps}
}

func TestGenerate_SampleTimes(t *testing.T) {
	capt := &fakeCapturer{}
	c := New(capt)

	entries, err := c.Generate(context.Background(), handle(10, 30), 5)
	require.NoError(t, err)
	require.Len(t, entries, 5)

	for i, e := range entries {
		assert.Equal(t, i, e.Index)
		assert.InDelta(t, float64(i)*2, e.SampleTime, 1e-9)
		assert.Equal(t, i*60, e.FrameIndex)
		assert.False(t, e.Placeholder)
		assert.NotEmpty(t, e.Image)
	}
	assert.Equal(t, 1, capt.maxSeen, "captures must be sequential")
	assert.Equal(t, Status{State: StateComplete, Done: 5, Total: 5}, c.Status())
}

func TestGenerate_FailuresBecomePlaceholders(t *testing.T) {
	capt := &fakeCapturer{fail: func(t float64) error {
		if t == 4 || t == 6 {
			return errors.New("decode error")
		}
		return nil
	}}
	c := New(capt)

	entries, err := c.Generate(context.Background(), handle(10, 30), 5)
	require.NoError(t, err)
	require.Len(t, entries, 5, "count is exact even with failures")

	assert.True(t, entries[2].Placeholder)
	assert.True(t, entries[3].Placeholder)
	assert.Nil(t, entries[2].Image)
	assert.Equal(t, 4.0, entries[2].SampleTime)
	assert.Equal(t, 120, entries[2].FrameIndex)
	assert.Contains(t, entries[2].Err, "decode error")
	assert.False(t, entries[0].Placeholder)
	assert.False(t, entries[4].Placeholder)
}

func TestGenerate_EmptyImageIsPlaceholder(t *testing.T) {
	c := New(captureFunc(func(context.Context, float64) ([]byte, error) { return nil, nil }))
	entries, err := c.Generate(context.Background(), handle(1, 30), 2)
	require.NoError(t, err)
	assert.True(t, entries[0].Placeholder)
	assert.Contains(t, entries[0].Err, media.ErrNoFrame.Error())
}

type captureFunc func(context.Context, float64) ([]byte, error)

func (f captureFunc) Capture(ctx context.Context, t float64) ([]byte, error) { return f(ctx, t) }

func TestGenerate_InvalidCount(t *testing.T) {
	capt := &fakeCapturer{}
	c := New(capt, WithMaxCount(10))

	for _, n := range []int{0, -1, 11} {
		_, err := c.Generate(context.Background(), handle(10, 30), n)
		assert.ErrorIs(t, err, ErrInvalidCount, "count %d", n)
	}
	assert.Empty(t, capt.times, "no seeks for rejected counts")
	assert.Equal(t, 10, c.MaxCount())
}

func TestGenerate_InvalidHandle(t *testing.T) {
	c := New(&fakeCapturer{})
	_, err := c.Generate(context.Background(), handle(0, 30), 5)
	assert.Error(t, err)
}

func TestGenerate_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	capt := &fakeCapturer{onCall: func(n int) {
		if n == 3 {
			cancel()
		}
	}}
	c := New(capt)

	entries, err := c.Generate(ctx, handle(10, 30), 10)
	require.ErrorIs(t, err, context.Canceled)
	// the third capture had already returned when cancellation was seen
	assert.Len(t, entries, 3)
	assert.Equal(t, StateCancelled, c.Status().State)
}

func TestGenerate_InvalidatesPrevious(t *testing.T) {
	c := New(&fakeCapturer{})
	_, err := c.Generate(context.Background(), handle(10, 30), 10)
	require.NoError(t, err)

	entries, err := c.Generate(context.Background(), handle(4, 25), 4)
	require.NoError(t, err)
	assert.Len(t, entries, 4)
	assert.Len(t, c.Entries(), 4)
	assert.Equal(t, 25, entries[1].FrameIndex)
}

func TestInvalidate_DuringGeneration(t *testing.T) {
	var c *Cache
	capt := &fakeCapturer{onCall: func(n int) {
		if n == 2 {
			c.Invalidate()
		}
	}}
	c = New(capt)

	_, err := c.Generate(context.Background(), handle(10, 30), 5)
	require.Error(t, err)
	assert.Empty(t, c.Entries())
	assert.Equal(t, StateEmpty, c.Status().State)
}

func TestGenerate_CancelledReturnsOwnEntries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var c *Cache
	var calls atomic.Int32
	var newer []Entry
	c = New(captureFunc(func(capCtx context.Context, at float64) ([]byte, error) {
		// the second capture of the first run starts a newer run, then fails cancelled
		if calls.Add(1) == 2 {
			cancel()
			var err error
			newer, err = c.Generate(context.Background(), handle(8, 25), 4)
			require.NoError(t, err)
			return nil, capCtx.Err()
		}
		return []byte(fmt.Sprintf("img@%.2f", at)), nil
	}))

	entries, err := c.Generate(ctx, handle(10, 30), 5)
	require.ErrorIs(t, err, context.Canceled)
	require.Len(t, entries, 1)
	assert.Zero(t, entries[0].SampleTime)

	// the newer run owns the cache
	assert.Len(t, newer, 4)
	assert.Equal(t, newer, c.Entries())
	assert.Equal(t, Status{State: StateComplete, Done: 4, Total: 4}, c.Status())
}

func TestNearest(t *testing.T) {
	c := New(&fakeCapturer{})
	// 10s at 30fps in 5 samples: frames 0, 60, 120, 180, 240
	_, err := c.Generate(context.Background(), handle(10, 30), 5)
	require.NoError(t, err)

	tests := []struct {
		frame   int
		wantIdx int
		wantOK  bool
	}{
		{0, 0, true},
		{1, 0, true},
		{59, 1, true},
		{61, 1, true},
		{62, 0, false},
		{240, 4, true},
		{-1, 0, true},
		{1000, 0, false},
	}
	for _, tc := range tests {
		e, ok := c.Nearest(tc.frame)
		assert.Equal(t, tc.wantOK, ok, "frame %d", tc.frame)
		if tc.wantOK {
			assert.Equal(t, tc.wantIdx, e.Index, "frame %d", tc.frame)
		}
	}
}

func TestNearest_TieBreaksToLowestIndex(t *testing.T) {
	// more samples than frames: neighbouring entries share or straddle frames
	c := New(&fakeCapturer{})
	_, err := c.Generate(context.Background(), handle(1, 4), 8)
	require.NoError(t, err)

	entries := c.Entries()
	require.Equal(t, 0, entries[0].FrameIndex)
	require.Equal(t, 0, entries[1].FrameIndex)

	e, ok := c.Nearest(0)
	require.True(t, ok)
	assert.Equal(t, 0, e.Index)

	// idempotent
	for range 5 {
		again, _ := c.Nearest(0)
		assert.Equal(t, e.Index, again.Index)
	}
}

func TestNearest_Tolerance(t *testing.T) {
	c := New(&fakeCapturer{}, WithTolerance(0))
	_, err := c.Generate(context.Background(), handle(10, 30), 5)
	require.NoError(t, err)

	_, ok := c.Nearest(61)
	assert.False(t, ok)
	e, ok := c.Nearest(60)
	require.True(t, ok)
	assert.Equal(t, 1, e.Index)
}

func TestEntry(t *testing.T) {
	c := New(&fakeCapturer{})
	_, ok := c.Entry(0)
	assert.False(t, ok)

	_, err := c.Generate(context.Background(), handle(10, 30), 3)
	require.NoError(t, err)

	e, ok := c.Entry(2)
	require.True(t, ok)
	assert.Equal(t, 2, e.Index)
	_, ok = c.Entry(3)
	assert.False(t, ok)
}

func TestCaptureError(t *testing.T) {
	inner := errors.New("boom")
	err := &CaptureError{Index: 3, Time: 1.5, Err: inner}
	assert.ErrorIs(t, err, inner)
	assert.Contains(t, err.Error(), "thumbnail 3")
}
