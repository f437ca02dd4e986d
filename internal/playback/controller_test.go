package playback

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/freecut/internal/decoder"
	"github.com/maauso/freecut/internal/frame"
)

// instantDecoder settles every request immediately.
type instantDecoder struct {
	mu     sync.Mutex
	seeks  []float64
	scrubs []float64
	err    error
}

func (d *instantDecoder) Seek(_ context.Context, t float64) (decoder.Frame, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seeks = append(d.seeks, t)
	if d.err != nil {
		return decoder.Frame{}, d.err
	}
	return decoder.Frame{Time: t}, nil
}

func (d *instantDecoder) Scrub(t float64, notify func(decoder.Frame, error)) error {
	d.mu.Lock()
	d.scrubs = append(d.scrubs, t)
	d.mu.Unlock()
	if notify != nil {
		notify(decoder.Frame{Time: t}, nil)
	}
	return nil
}

func (d *instantDecoder) Pending() int { return 0 }

func (d *instantDecoder) seekCalls() []float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]float64(nil), d.seeks...)
}

func newController(t *testing.T, dec Decoder, duration, fps float64, opts ...Option) *Controller {
	t.Helper()
	m, err := frame.NewMapper(duration, fps)
	require.NoError(t, err)
	c := New(dec, m, opts...)
	t.Cleanup(c.Close)
	return c
}

func TestSeek(t *testing.T) {
	dec := &instantDecoder{}
	c := newController(t, dec, 120, 30)

	pos, err := c.Seek(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, Position{Time: 7, Frame: 210, Fraction: 7.0 / 120}, pos)
	assert.Equal(t, pos, c.Position())

	pos, err = c.Seek(context.Background(), 500)
	require.NoError(t, err)
	assert.Equal(t, 120.0, pos.Time)
	assert.Equal(t, 3599, pos.Frame, "frame is clamped to the last one")
	assert.Equal(t, 1.0, pos.Fraction)

	pos, err = c.Seek(context.Background(), -1)
	require.NoError(t, err)
	assert.Equal(t, 0.0, pos.Time)

	assert.Equal(t, []float64{7, 120, 0}, dec.seekCalls())
}

func TestSeek_FailureKeepsPosition(t *testing.T) {
	dec := &instantDecoder{}
	c := newController(t, dec, 10, 30)
	_, err := c.Seek(context.Background(), 3)
	require.NoError(t, err)

	boom := errors.New("decode failed")
	dec.err = boom
	pos, err := c.Seek(context.Background(), 6)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 3.0, pos.Time)
}

func TestSubscribe(t *testing.T) {
	c := newController(t, &instantDecoder{}, 10, 30)

	var got []Position
	unsubscribe := c.Subscribe(func(p Position) { got = append(got, p) })

	_, _ = c.Seek(context.Background(), 1)
	_, _ = c.Seek(context.Background(), 2)
	require.Len(t, got, 2)
	assert.Equal(t, 2.0, got[1].Time)

	unsubscribe()
	_, _ = c.Seek(context.Background(), 3)
	assert.Len(t, got, 2)
}

func TestStepFrame(t *testing.T) {
	c := newController(t, &instantDecoder{}, 10, 25)

	_, err := c.Seek(context.Background(), 1)
	require.NoError(t, err)

	pos, err := c.StepFrame(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 26, pos.Frame)
	assert.InDelta(t, 26.0/25, pos.Time, 1e-9)

	pos, err = c.StepFrame(context.Background(), -1)
	require.NoError(t, err)
	assert.Equal(t, 25, pos.Frame)

	_, _ = c.Seek(context.Background(), 0)
	pos, err = c.StepFrame(context.Background(), -1)
	require.NoError(t, err)
	assert.Equal(t, 0, pos.Frame, "stepping before the first frame clamps")

	_, _ = c.GoToFrame(context.Background(), 249)
	pos, err = c.StepFrame(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 249, pos.Frame, "stepping past the last frame clamps")
}

func TestGoToFrame(t *testing.T) {
	c := newController(t, &instantDecoder{}, 10, 30)

	pos, err := c.GoToFrame(context.Background(), 45)
	require.NoError(t, err)
	assert.Equal(t, 45, pos.Frame)
	assert.InDelta(t, 1.5, pos.Time, 1e-9)

	pos, err = c.GoToFrame(context.Background(), 10_000)
	require.NoError(t, err)
	assert.Equal(t, 299, pos.Frame)
}

func TestScrub(t *testing.T) {
	dec := &instantDecoder{}
	c := newController(t, dec, 10, 30)

	require.NoError(t, c.Scrub(4))
	assert.Equal(t, 4.0, c.Position().Time)
	require.NoError(t, c.Scrub(99))
	assert.Equal(t, 10.0, c.Position().Time)
}

// staleDecoder holds scrub notifications until release is called.
type staleDecoder struct {
	instantDecoder
	held []func()
}

func (d *staleDecoder) Scrub(t float64, notify func(decoder.Frame, error)) error {
	d.held = append(d.held, func() { notify(decoder.Frame{Time: t}, nil) })
	return nil
}

func TestScrub_LateSettleIsIgnored(t *testing.T) {
	dec := &staleDecoder{}
	c := newController(t, dec, 10, 30)

	require.NoError(t, c.Scrub(4))
	_, err := c.Seek(context.Background(), 6)
	require.NoError(t, err)

	dec.held[0]()
	assert.Equal(t, 6.0, c.Position().Time)
}

func TestPlayPause(t *testing.T) {
	c := newController(t, &instantDecoder{}, 60, 30, WithTick(5*time.Millisecond))

	c.Play()
	assert.True(t, c.Position().Playing)
	require.Eventually(t, func() bool { return c.Position().Time > 0 }, time.Second, time.Millisecond)

	c.Pause()
	paused := c.Position()
	assert.False(t, paused.Playing)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, paused.Time, c.Position().Time, "clock stops when paused")

	assert.True(t, c.Toggle())
	assert.False(t, c.Toggle())
}

func TestPlay_StopsAtEnd(t *testing.T) {
	dec := &instantDecoder{}
	c := newController(t, dec, 0.05, 30, WithTick(5*time.Millisecond))

	var mu sync.Mutex
	var last Position
	c.Subscribe(func(p Position) {
		mu.Lock()
		last = p
		mu.Unlock()
	})

	c.Play()
	require.Eventually(t, func() bool { return !c.Position().Playing }, time.Second, time.Millisecond)
	assert.Equal(t, 0.05, c.Position().Time)

	mu.Lock()
	assert.False(t, last.Playing)
	assert.Equal(t, 0.05, last.Time)
	mu.Unlock()

	// playing from the end restarts
	c.Play()
	assert.Less(t, c.Position().Time, 0.05)
	c.Pause()
}

// slowSource renders every frame in a fixed delay.
type slowSource struct {
	delay time.Duration
}

func (s slowSource) Render(ctx context.Context, t float64) ([]byte, error) {
	select {
	case <-time.After(s.delay):
		return []byte("frame"), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestScrub_WhilePlayingMovesClock(t *testing.T) {
	q := decoder.New(slowSource{delay: 100 * time.Millisecond}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	t.Cleanup(func() { _ = q.Close() })
	c := newController(t, q, 120, 30, WithTick(40*time.Millisecond))

	c.Play()
	time.Sleep(150 * time.Millisecond)
	require.NoError(t, c.Scrub(50))
	time.Sleep(600 * time.Millisecond)

	pos := c.Position()
	assert.True(t, pos.Playing)
	assert.Greater(t, pos.Time, 49.0, "playback continues from the scrubbed point")
	assert.Less(t, pos.Time, 52.0)

	require.Eventually(t, func() bool {
		f, ok := q.Displayed()
		return ok && f.Time >= 50
	}, 2*time.Second, 10*time.Millisecond, "the scrubbed frame is rendered")
	c.Pause()
}

func TestScrub_PausedWaitsForFrame(t *testing.T) {
	dec := &staleDecoder{}
	c := newController(t, dec, 10, 30)

	require.NoError(t, c.Scrub(4))
	assert.Zero(t, c.Position().Time, "paused scrubs settle through the decoder")
	dec.held[0]()
	assert.Equal(t, 4.0, c.Position().Time)
}
