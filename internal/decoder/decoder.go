// Package decoder serializes access to the single shared frame decoder.
//
// Requests run one at a time, in the order they were made. Each request is
// settled (its frame rendered or its error known) before the next starts.
// Seek and Capture requests are never dropped: they complete, fail, or fail
// with ErrClosed. Scrub requests coalesce so that a burst of pointer moves
// costs at most one pending render.
package decoder

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
)

// ErrClosed is returned for requests made after, or pending at, Close.
var ErrClosed = errors.New("decoder: closed")

// Source renders the frame displayed at a media time.
type Source interface {
	Render(ctx context.Context, t float64) ([]byte, error)
}

// Frame is a settled frame.
type Frame struct {
	Time  float64
	Image []byte
}

type kind int

const (
	kindSeek kind = iota
	kindCapture
	kindScrub
)

func (k kind) String() string {
	switch k {
	case kindSeek:
		return "seek"
	case kindCapture:
		return "capture"
	default:
		return "scrub"
	}
}

type result struct {
	frame Frame
	err   error
}

type request struct {
	kind   kind
	t      float64
	done   chan result
	notify func(Frame, error)
}

// Queue owns one Source and executes requests against it sequentially.
type Queue struct {
	source Source
	logger *slog.Logger

	mu        sync.Mutex
	pending   []*request
	displayed Frame
	shown     bool
	closed    bool

	wake   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// New starts a queue over source. A nil logger uses slog.Default().
func New(source Source, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		source: source,
		logger: logger,
		wake:   make(chan struct{}, 1),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go q.run()
	return q
}

// Seek moves the displayed frame to t and waits until it has settled.
// If ctx ends first the seek still runs; only the wait is abandoned.
func (q *Queue) Seek(ctx context.Context, t float64) (Frame, error) {
	return q.await(ctx, kindSeek, t)
}

// Capture renders the frame at t without changing the displayed frame.
func (q *Queue) Capture(ctx context.Context, t float64) ([]byte, error) {
	f, err := q.await(ctx, kindCapture, t)
	if err != nil {
		return nil, err
	}
	return f.Image, nil
}

// Scrub requests a display update to t without waiting. A scrub that has
// not started yet is superseded by this one and its notify is never called.
// notify, if non-nil, runs on the worker goroutine once the frame settles.
func (q *Queue) Scrub(t float64, notify func(Frame, error)) error {
	return q.enqueue(&request{kind: kindScrub, t: t, notify: notify})
}

// Displayed returns the last settled seek or scrub frame.
func (q *Queue) Displayed() (Frame, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.displayed, q.shown
}

// Pending returns the number of requests waiting to start.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Close aborts the running request, fails all pending ones with ErrClosed
// and stops the worker. It is safe to call more than once.
func (q *Queue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		<-q.done
		return nil
	}
	q.closed = true
	pending := q.pending
	q.pending = nil
	q.mu.Unlock()

	q.cancel()
	<-q.done

	for _, r := range pending {
		q.finish(r, Frame{}, ErrClosed)
	}
	return nil
}

func (q *Queue) await(ctx context.Context, k kind, t float64) (Frame, error) {
	r := &request{kind: k, t: t, done: make(chan result, 1)}
	if err := q.enqueue(r); err != nil {
		return Frame{}, err
	}
	select {
	case res := <-r.done:
		return res.frame, res.err
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	}
}

func (q *Queue) enqueue(r *request) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	if r.kind == kindScrub {
		q.pending = slices.DeleteFunc(q.pending, func(p *request) bool {
			return p.kind == kindScrub
		})
	}
	q.pending = append(q.pending, r)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return nil
}

func (q *Queue) next() *request {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed || len(q.pending) == 0 {
		return nil
	}
	r := q.pending[0]
	q.pending = q.pending[1:]
	return r
}

func (q *Queue) run() {
	defer close(q.done)
	for {
		select {
		case <-q.ctx.Done():
			return
		case <-q.wake:
		}
		for r := q.next(); r != nil; r = q.next() {
			q.execute(r)
		}
	}
}

func (q *Queue) execute(r *request) {
	img, err := q.source.Render(q.ctx, r.t)
	if err != nil {
		if q.ctx.Err() != nil {
			err = ErrClosed
		}
		q.logger.Debug("decoder request failed",
			slog.String("kind", r.kind.String()),
			slog.Float64("time", r.t),
			slog.String("error", err.Error()),
		)
		q.finish(r, Frame{}, err)
		return
	}

	f := Frame{Time: r.t, Image: img}
	if r.kind != kindCapture {
		q.mu.Lock()
		q.displayed = f
		q.shown = true
		q.mu.Unlock()
	}
	q.finish(r, f, nil)
}

func (q *Queue) finish(r *request, f Frame, err error) {
	if r.done != nil {
		r.done <- result{frame: f, err: err}
	}
	if r.notify != nil {
		r.notify(f, err)
	}
}
