// Package thumbnail generates and indexes the evenly spaced preview frames
// shown under the timeline.
package thumbnail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/maauso/freecut/internal/media"
	"github.com/samber/lo"
)

// DefaultMaxCount bounds a single generation.
const DefaultMaxCount = 100

// DefaultTolerance is how many frames away an entry may be and still match.
const DefaultTolerance = 1

// ErrInvalidCount is returned when the requested count is outside [1, max].
var ErrInvalidCount = errors.New("thumbnail: invalid count")

// Capturer renders a still for a media time.
// decoder.Queue satisfies it.
type Capturer interface {
	Capture(ctx context.Context, t float64) ([]byte, error)
}

// Entry is one thumbnail. Placeholder entries carry no image but keep
// their sample position so the strip stays evenly spaced.
type Entry struct {
	Index       int     `json:"index"`
	SampleTime  float64 `json:"sample_time"`
	FrameIndex  int     `json:"frame_index"`
	Image       []byte  `json:"-"`
	Placeholder bool    `json:"placeholder"`
	Err         string  `json:"error,omitempty"`
}

// CaptureError reports a failed capture. It is logged, never returned.
type CaptureError struct {
	Index int
	Time  float64
	Err   error
}

func (e *CaptureError) Error() string {
	return fmt.Sprintf("capture thumbnail %d at %.3fs: %v", e.Index, e.Time, e.Err)
}

func (e *CaptureError) Unwrap() error {
	return e.Err
}

// State is the generation state of a Cache.
type State string

const (
	StateEmpty      State = "EMPTY"
	StateGenerating State = "GENERATING"
	StateComplete   State = "COMPLETE"
	StateCancelled  State = "CANCELLED"
)

// Status summarises generation progress.
type Status struct {
	State State `json:"state"`
	Done  int   `json:"done"`
	Total int   `json:"total"`
}

// Option configures a Cache.
type Option func(*Cache)

// WithTolerance sets the frame distance accepted by Nearest.
func WithTolerance(frames int) Option {
	return func(c *Cache) {
		if frames >= 0 {
			c.tolerance = frames
		}
	}
}

// WithMaxCount sets the largest count Generate accepts.
func WithMaxCount(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.maxCount = n
		}
	}
}

// WithLogger sets the logger for capture warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Cache holds the thumbnail sequence of one media handle.
type Cache struct {
	capturer  Capturer
	logger    *slog.Logger
	maxCount  int
	tolerance int

	mu         sync.RWMutex
	entries    []Entry
	status     Status
	generation uint64
}

// New creates an empty cache that captures through capturer.
func New(capturer Capturer, opts ...Option) *Cache {
	c := &Cache{
		capturer:  capturer,
		logger:    slog.Default(),
		maxCount:  DefaultMaxCount,
		tolerance: DefaultTolerance,
		status:    Status{State: StateEmpty},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// MaxCount returns the largest accepted count.
func (c *Cache) MaxCount() int {
	return c.maxCount
}

// Generate replaces the sequence with count entries sampled at
// i*duration/count. Captures run one at a time. A failed capture yields a
// placeholder and generation continues. Cancelling ctx stops between
// samples and returns the entries produced so far with ctx's error.
func (c *Cache) Generate(ctx context.Context, h *media.Handle, count int) ([]Entry, error) {
	if count < 1 || count > c.maxCount {
		return nil, fmt.Errorf("%w: %d not in [1, %d]", ErrInvalidCount, count, c.maxCount)
	}
	m, err := h.Mapper()
	if err != nil {
		return nil, err
	}

	gen := c.reset(count)
	interval := m.Duration / float64(count)
	// c.entries may belong to a newer generation by the time we return
	out := make([]Entry, 0, count)

	for i := range count {
		if err := ctx.Err(); err != nil {
			c.setState(gen, StateCancelled)
			return out, err
		}

		t := float64(i) * interval
		e := Entry{Index: i, SampleTime: t, FrameIndex: m.FrameAt(t)}

		img, err := c.capturer.Capture(ctx, t)
		switch {
		case err == nil && len(img) > 0:
			e.Image = img
		case ctx.Err() != nil:
			c.setState(gen, StateCancelled)
			return out, ctx.Err()
		default:
			if err == nil {
				err = media.ErrNoFrame
			}
			capErr := &CaptureError{Index: i, Time: t, Err: err}
			c.logger.Warn("thumbnail capture failed",
				slog.Int("index", i),
				slog.Float64("time", t),
				slog.String("error", capErr.Error()),
			)
			e.Placeholder = true
			e.Err = err.Error()
		}

		if !c.append(gen, e) {
			// Invalidated while capturing.
			return nil, context.Canceled
		}
		out = append(out, e)
	}

	c.setState(gen, StateComplete)
	return out, nil
}

// Invalidate drops the sequence and stops any generation from publishing.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	c.entries = nil
	c.status = Status{State: StateEmpty}
}

// Entries returns a copy of the current sequence.
func (c *Cache) Entries() []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Entry returns the entry at index i.
func (c *Cache) Entry(i int) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if i < 0 || i >= len(c.entries) {
		return Entry{}, false
	}
	return c.entries[i], true
}

// Status returns the generation status.
func (c *Cache) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// Nearest returns the entry whose frame is closest to frameIndex, provided it
// is within the tolerance. Ties go to the lowest index.
func (c *Cache) Nearest(frameIndex int) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	dist := func(e Entry) int { return abs(e.FrameIndex - frameIndex) }
	candidates := lo.Filter(c.entries, func(e Entry, _ int) bool {
		return dist(e) <= c.tolerance
	})
	if len(candidates) == 0 {
		return Entry{}, false
	}
	return lo.MinBy(candidates, func(a, b Entry) bool { return dist(a) < dist(b) }), true
}

func (c *Cache) reset(count int) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	c.entries = make([]Entry, 0, count)
	c.status = Status{State: StateGenerating, Total: count}
	return c.generation
}

func (c *Cache) append(gen uint64, e Entry) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.generation {
		return false
	}
	c.entries = append(c.entries, e)
	c.status.Done = len(c.entries)
	return true
}

func (c *Cache) setState(gen uint64, s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen == c.generation {
		c.status.State = s
	}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
