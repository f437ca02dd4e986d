// Package playback drives the playhead of a loaded media handle.
package playback

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/maauso/freecut/internal/decoder"
	"github.com/maauso/freecut/internal/frame"
)

// DefaultTick is the natural playback update interval.
const DefaultTick = 40 * time.Millisecond

// Decoder is the part of decoder.Queue the controller uses.
type Decoder interface {
	Seek(ctx context.Context, t float64) (decoder.Frame, error)
	Scrub(t float64, notify func(decoder.Frame, error)) error
	Pending() int
}

// Position is a playhead snapshot.
type Position struct {
	Time     float64 `json:"time"`
	Frame    int     `json:"frame"`
	Fraction float64 `json:"fraction"`
	Playing  bool    `json:"playing"`
}

// Option configures a Controller.
type Option func(*Controller)

// WithTick sets the natural playback interval.
func WithTick(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.tick = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Controller owns the playback clock. Every position change is routed
// through the decoder, and subscribers see a position only after its frame
// has settled (natural playback ticks excepted, which are fire-and-forget).
type Controller struct {
	dec    Decoder
	mapper frame.Mapper
	tick   time.Duration
	logger *slog.Logger

	mu      sync.Mutex
	time    float64
	playing bool
	seq     uint64
	stop    chan struct{}
	subs    map[int]func(Position)
	nextSub int
	wg      sync.WaitGroup
}

// New creates a paused controller at time 0.
func New(dec Decoder, mapper frame.Mapper, opts ...Option) *Controller {
	c := &Controller{
		dec:    dec,
		mapper: mapper,
		tick:   DefaultTick,
		logger: slog.Default(),
		subs:   make(map[int]func(Position)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Mapper returns the time/frame mapper of the loaded media.
func (c *Controller) Mapper() frame.Mapper {
	return c.mapper
}

// Position returns the current playhead.
func (c *Controller) Position() Position {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.positionLocked()
}

// Subscribe registers fn for position changes and returns its removal func.
// fn must not call back into the controller synchronously.
func (c *Controller) Subscribe(fn func(Position)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.subs, id)
	}
}

// Play starts natural playback. Playing from the end restarts at 0.
func (c *Controller) Play() {
	c.mu.Lock()
	if c.playing {
		c.mu.Unlock()
		return
	}
	if c.time >= c.mapper.Duration {
		c.time = 0
	}
	c.playing = true
	c.stop = make(chan struct{})
	c.wg.Add(1)
	go c.run(c.stop)
	pos := c.positionLocked()
	subs := c.subscribersLocked()
	c.mu.Unlock()

	notify(subs, pos)
}

// Pause stops natural playback.
func (c *Controller) Pause() {
	c.mu.Lock()
	if !c.playing {
		c.mu.Unlock()
		return
	}
	c.haltLocked()
	pos := c.positionLocked()
	subs := c.subscribersLocked()
	c.mu.Unlock()

	c.wg.Wait()
	notify(subs, pos)
}

// Toggle switches between playing and paused and reports the new state.
func (c *Controller) Toggle() bool {
	if c.Position().Playing {
		c.Pause()
		return false
	}
	c.Play()
	return true
}

// Seek moves the playhead to t, clamped to [0, duration], and returns once
// the decoder has settled on it.
func (c *Controller) Seek(ctx context.Context, t float64) (Position, error) {
	t = c.mapper.ClampTime(t)

	c.mu.Lock()
	c.seq++
	seq := c.seq
	c.mu.Unlock()

	if _, err := c.dec.Seek(ctx, t); err != nil {
		return c.Position(), err
	}
	return c.settle(seq, t), nil
}

// Scrub requests a live seek to t without waiting. Only the latest scrub
// or seek is ever applied. While playing, the clock jumps to t at once and
// playback continues from there.
func (c *Controller) Scrub(t float64) error {
	t = c.mapper.ClampTime(t)

	c.mu.Lock()
	c.seq++
	seq := c.seq
	playing := c.playing
	if playing {
		c.time = t
	}
	c.mu.Unlock()

	return c.dec.Scrub(t, func(_ decoder.Frame, err error) {
		if err != nil {
			c.logger.Debug("scrub failed",
				slog.Float64("time", t),
				slog.String("error", err.Error()),
			)
			return
		}
		if !playing {
			c.settle(seq, t)
		}
	})
}

// StepFrame pauses and moves by delta frames.
func (c *Controller) StepFrame(ctx context.Context, delta int) (Position, error) {
	c.Pause()
	current := c.mapper.FrameAt(c.Position().Time)
	return c.GoToFrame(ctx, current+delta)
}

// GoToFrame seeks to the start of frame f, clamped to the valid range.
func (c *Controller) GoToFrame(ctx context.Context, f int) (Position, error) {
	return c.Seek(ctx, c.mapper.TimeOf(f))
}

// Close stops playback and drops all subscribers.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.playing {
		c.haltLocked()
	}
	c.subs = make(map[int]func(Position))
	c.mu.Unlock()
	c.wg.Wait()
}

func (c *Controller) settle(seq uint64, t float64) Position {
	c.mu.Lock()
	if seq != c.seq {
		// Superseded by a later seek or scrub.
		pos := c.positionLocked()
		c.mu.Unlock()
		return pos
	}
	c.time = t
	pos := c.positionLocked()
	subs := c.subscribersLocked()
	c.mu.Unlock()

	notify(subs, pos)
	return pos
}

func (c *Controller) run(stop chan struct{}) {
	defer c.wg.Done()
	ticker := time.NewTicker(c.tick)
	defer ticker.Stop()
	last := time.Now()

	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			elapsed := now.Sub(last).Seconds()
			last = now

			c.mu.Lock()
			if !c.playing {
				c.mu.Unlock()
				return
			}
			c.time = c.mapper.ClampTime(c.time + elapsed)
			ended := c.time >= c.mapper.Duration
			if ended {
				c.playing = false
				c.stop = nil
			}
			t := c.time
			pos := c.positionLocked()
			subs := c.subscribersLocked()
			c.mu.Unlock()

			// drop the frame when the decoder is behind; a queued user scrub
			// must not be superseded by a tick
			if c.dec.Pending() == 0 {
				if err := c.dec.Scrub(t, nil); err != nil {
					c.logger.Debug("playback scrub failed", slog.String("error", err.Error()))
				}
			}
			notify(subs, pos)
			if ended {
				return
			}
		}
	}
}

func (c *Controller) haltLocked() {
	c.playing = false
	if c.stop != nil {
		close(c.stop)
		c.stop = nil
	}
}

func (c *Controller) positionLocked() Position {
	return Position{
		Time:     c.time,
		Frame:    c.mapper.FrameAt(c.time),
		Fraction: c.mapper.Fraction(c.time),
		Playing:  c.playing,
	}
}

func (c *Controller) subscribersLocked() []func(Position) {
	out := make([]func(Position), 0, len(c.subs))
	for _, fn := range c.subs {
		out = append(out, fn)
	}
	return out
}

func notify(subs []func(Position), pos Position) {
	for _, fn := range subs {
		fn(pos)
	}
}
