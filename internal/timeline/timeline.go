// Package timeline holds the marker state machine behind the trim
// timeline: the playhead, the in/out marks, zoom, and pointer drags.
//
// States are Idle (no media), Ready and Dragging. Every operation keeps the
// invariant 0 <= start <= end <= duration on the resolved range. Conflicting
// input is never rejected; it is resolved by clearing the end mark, so the
// start mark acts as the anchor.
package timeline

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/samber/lo"

	"github.com/maauso/freecut/internal/frame"
)

// Static errors for timeline operations.
var (
	// ErrNotReady is returned when an operation needs loaded media.
	ErrNotReady = errors.New("timeline: no media loaded")
	// ErrDragging is returned when an operation is not allowed mid-drag.
	ErrDragging = errors.New("timeline: drag in progress")
	// ErrNotDragging is returned by PointerMove outside a drag.
	ErrNotDragging = errors.New("timeline: no drag in progress")
	// ErrUnknownTarget is returned for an unrecognised drag target.
	ErrUnknownTarget = errors.New("timeline: unknown drag target")
	// ErrUnknownEdge is returned for an unrecognised quick-trim edge.
	ErrUnknownEdge = errors.New("timeline: unknown edge")
	// ErrInvalidDuration is returned when loading a non-positive duration.
	ErrInvalidDuration = errors.New("timeline: duration must be positive")
)

// State is the machine state.
type State string

const (
	StateIdle     State = "IDLE"
	StateReady    State = "READY"
	StateDragging State = "DRAGGING"
)

// Target is what a drag moves.
type Target string

const (
	TargetPlayhead  Target = "playhead"
	TargetMarkStart Target = "markStart"
	TargetMarkEnd   Target = "markEnd"
)

// Edge selects which mark a quick trim moves.
type Edge string

const (
	EdgeStart Edge = "start"
	EdgeEnd   Edge = "end"
)

// Mark is an optional point in time. The zero Mark is unset.
type Mark struct {
	Seconds float64 `json:"seconds"`
	Set     bool    `json:"set"`
}

// At returns a set mark.
func At(seconds float64) Mark {
	return Mark{Seconds: seconds, Set: true}
}

// TrimRange is the pair of in/out marks.
type TrimRange struct {
	Start Mark `json:"start"`
	End   Mark `json:"end"`
}

// Resolve returns the effective bounds: an unset start is 0 and an unset end
// is duration.
func (r TrimRange) Resolve(duration float64) (start, end float64) {
	start, end = 0, duration
	if r.Start.Set {
		start = r.Start.Seconds
	}
	if r.End.Set {
		end = r.End.Seconds
	}
	return start, end
}

// DragSession exists only between pointer-down and pointer-up or cancel.
type DragSession struct {
	Target         Target  `json:"target"`
	OriginX        float64 `json:"origin_x"`
	OriginFraction float64 `json:"origin_fraction"`
	Width          float64 `json:"width"`
}

// DragUpdate tells the caller what a pointer move changed.
type DragUpdate struct {
	Target Target `json:"target"`
	// Seconds is where the dragged element now sits.
	Seconds float64 `json:"seconds"`
	// Seek reports that the playhead should scrub to Seconds.
	Seek  bool      `json:"seek"`
	Range TrimRange `json:"range"`
}

// Offsets are render positions of the playhead and resolved marks.
type Offsets struct {
	Playhead   float64 `json:"playhead"`
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	PlayheadPx float64 `json:"playhead_px"`
	StartPx    float64 `json:"start_px"`
	EndPx      float64 `json:"end_px"`
	Width      float64 `json:"width"`
}

// Config holds the track geometry and zoom bounds.
type Config struct {
	// BaseWidth is the track width in pixels at 100% zoom.
	BaseWidth float64
	ZoomMin   int
	ZoomMax   int
	ZoomStep  int
}

// DefaultConfig returns a 1000px track zoomable from 100% to 300% in 25% steps.
func DefaultConfig() Config {
	return Config{BaseWidth: 1000, ZoomMin: 100, ZoomMax: 300, ZoomStep: 25}
}

// dragHandlers is the per-target behaviour of the single drag binding.
var dragHandlers = map[Target]func(*Timeline, float64) DragUpdate{
	TargetPlayhead:  (*Timeline).dragPlayhead,
	TargetMarkStart: (*Timeline).dragStart,
	TargetMarkEnd:   (*Timeline).dragEnd,
}

// Timeline is safe for concurrent use.
type Timeline struct {
	cfg Config

	mu       sync.Mutex
	state    State
	duration float64
	playhead float64
	rng      TrimRange
	zoom     int
	drag     *DragSession
}

// New returns an Idle timeline.
func New(cfg Config) *Timeline {
	def := DefaultConfig()
	if cfg.BaseWidth <= 0 {
		cfg.BaseWidth = def.BaseWidth
	}
	if cfg.ZoomMin <= 0 {
		cfg.ZoomMin = def.ZoomMin
	}
	if cfg.ZoomMax < cfg.ZoomMin {
		cfg.ZoomMax = cfg.ZoomMin
	}
	if cfg.ZoomStep <= 0 {
		cfg.ZoomStep = def.ZoomStep
	}
	return &Timeline{cfg: cfg, state: StateIdle, zoom: cfg.ZoomMin}
}

// Load moves to Ready for media of the given duration and resets marks,
// playhead, zoom and any drag.
func (tl *Timeline) Load(duration float64) error {
	if duration <= 0 || math.IsNaN(duration) || math.IsInf(duration, 0) {
		return fmt.Errorf("%w: got %v", ErrInvalidDuration, duration)
	}
	tl.mu.Lock()
	defer tl.mu.Unlock()
	tl.state = StateReady
	tl.duration = duration
	tl.playhead = 0
	tl.rng = TrimRange{}
	tl.zoom = tl.cfg.ZoomMin
	tl.drag = nil
	return nil
}

// Unload returns to Idle and forgets everything.
func (tl *Timeline) Unload() {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	tl.state = StateIdle
	tl.duration = 0
	tl.playhead = 0
	tl.rng = TrimRange{}
	tl.zoom = tl.cfg.ZoomMin
	tl.drag = nil
}

// State returns the machine state.
func (tl *Timeline) State() State {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	return tl.state
}

// Drag returns the active drag, if any.
func (tl *Timeline) Drag() (DragSession, bool) {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	if tl.drag == nil {
		return DragSession{}, false
	}
	return *tl.drag, true
}

// Duration returns the loaded duration, 0 when Idle.
func (tl *Timeline) Duration() float64 {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	return tl.duration
}

// Range returns the stored marks.
func (tl *Timeline) Range() TrimRange {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	return tl.rng
}

// Playhead returns the last position reported through SetPlayhead.
func (tl *Timeline) Playhead() float64 {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	return tl.playhead
}

// SetPlayhead records the settled playback position.
func (tl *Timeline) SetPlayhead(t float64) {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	if tl.state == StateIdle {
		return
	}
	tl.playhead = tl.clamp(t)
}

// MarkIn sets the start mark. An end mark before it is cleared.
func (tl *Timeline) MarkIn(t float64) (TrimRange, error) {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	if tl.state == StateIdle {
		return TrimRange{}, ErrNotReady
	}
	tl.setStart(tl.clamp(t))
	return tl.rng, nil
}

// MarkOut sets the end mark. An end before the resolved start is not kept.
func (tl *Timeline) MarkOut(t float64) (TrimRange, error) {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	if tl.state == StateIdle {
		return TrimRange{}, ErrNotReady
	}
	tl.setEnd(tl.clamp(t))
	return tl.rng, nil
}

// QuickTrim trims seconds off one edge: start becomes min(seconds, duration)
// or end becomes max(duration-seconds, 0).
func (tl *Timeline) QuickTrim(edge Edge, seconds float64) (TrimRange, error) {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	if tl.state == StateIdle {
		return TrimRange{}, ErrNotReady
	}
	if seconds < 0 || math.IsNaN(seconds) {
		seconds = 0
	}
	switch edge {
	case EdgeStart:
		tl.setStart(math.Min(seconds, tl.duration))
	case EdgeEnd:
		tl.setEnd(math.Max(tl.duration-seconds, 0))
	default:
		return tl.rng, fmt.Errorf("%w: %q", ErrUnknownEdge, edge)
	}
	return tl.rng, nil
}

// ClearMarks unsets both marks.
func (tl *Timeline) ClearMarks() {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	tl.rng = TrimRange{}
}

// Zoom returns the zoom level in percent.
func (tl *Timeline) Zoom() int {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	return tl.zoom
}

// SetZoom snaps level to the zoom step, clamps it to the bounds and returns
// the applied level. Stored times are never touched.
func (tl *Timeline) SetZoom(level int) int {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	tl.zoom = tl.quantize(level)
	return tl.zoom
}

// ZoomIn raises zoom by one step.
func (tl *Timeline) ZoomIn() int {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	tl.zoom = tl.quantize(tl.zoom + tl.cfg.ZoomStep)
	return tl.zoom
}

// ZoomOut lowers zoom by one step.
func (tl *Timeline) ZoomOut() int {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	tl.zoom = tl.quantize(tl.zoom - tl.cfg.ZoomStep)
	return tl.zoom
}

// ClickSeek converts a click at x on the track into a time. Clicks are
// ignored while dragging.
func (tl *Timeline) ClickSeek(x float64) (float64, error) {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	switch tl.state {
	case StateIdle:
		return 0, ErrNotReady
	case StateDragging:
		return 0, ErrDragging
	}
	t := frame.FractionToSeconds(frame.PixelToFraction(x, tl.width()), tl.duration)
	tl.playhead = t
	return t, nil
}

// PointerDown starts dragging target from pixel x.
func (tl *Timeline) PointerDown(target Target, x float64) (DragSession, error) {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	if _, ok := dragHandlers[target]; !ok {
		return DragSession{}, fmt.Errorf("%w: %q", ErrUnknownTarget, target)
	}
	switch tl.state {
	case StateIdle:
		return DragSession{}, ErrNotReady
	case StateDragging:
		return DragSession{}, ErrDragging
	}

	start, end := tl.rng.Resolve(tl.duration)
	origin := tl.playhead
	switch target {
	case TargetMarkStart:
		origin = start
	case TargetMarkEnd:
		origin = end
	}

	tl.drag = &DragSession{
		Target:         target,
		OriginX:        x,
		OriginFraction: tl.fraction(origin),
		Width:          tl.width(),
	}
	tl.state = StateDragging
	return *tl.drag, nil
}

// PointerMove applies a drag to pixel x. The fraction is computed from the
// pixel delta against the current rendered width.
func (tl *Timeline) PointerMove(x float64) (DragUpdate, error) {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	if tl.state != StateDragging || tl.drag == nil {
		return DragUpdate{}, ErrNotDragging
	}
	p := tl.drag.OriginFraction + (x-tl.drag.OriginX)/tl.width()
	if math.IsNaN(p) {
		p = tl.drag.OriginFraction
	}
	p = lo.Clamp(p, 0, 1)
	return dragHandlers[tl.drag.Target](tl, frame.FractionToSeconds(p, tl.duration)), nil
}

// PointerUp ends the drag.
func (tl *Timeline) PointerUp() {
	tl.endDrag()
}

// PointerCancel ends the drag the same way PointerUp does; the last applied
// update stays in effect.
func (tl *Timeline) PointerCancel() {
	tl.endDrag()
}

// Offsets returns render positions at the current zoom.
func (tl *Timeline) Offsets() Offsets {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	w := tl.width()
	if tl.state == StateIdle {
		return Offsets{Width: w}
	}
	start, end := tl.rng.Resolve(tl.duration)
	o := Offsets{
		Playhead: tl.fraction(tl.playhead),
		Start:    tl.fraction(start),
		End:      tl.fraction(end),
		Width:    w,
	}
	o.PlayheadPx = o.Playhead * w
	o.StartPx = o.Start * w
	o.EndPx = o.End * w
	return o
}

func (tl *Timeline) dragPlayhead(t float64) DragUpdate {
	tl.playhead = t
	return DragUpdate{Target: TargetPlayhead, Seconds: t, Seek: true, Range: tl.rng}
}

func (tl *Timeline) dragStart(t float64) DragUpdate {
	_, end := tl.rng.Resolve(tl.duration)
	t = math.Min(t, end)
	tl.rng.Start = At(t)
	tl.playhead = t
	return DragUpdate{Target: TargetMarkStart, Seconds: t, Seek: true, Range: tl.rng}
}

func (tl *Timeline) dragEnd(t float64) DragUpdate {
	start, _ := tl.rng.Resolve(tl.duration)
	t = math.Max(t, start)
	tl.rng.End = At(t)
	tl.playhead = t
	return DragUpdate{Target: TargetMarkEnd, Seconds: t, Seek: true, Range: tl.rng}
}

func (tl *Timeline) setStart(t float64) {
	tl.rng.Start = At(t)
	if tl.rng.End.Set && tl.rng.End.Seconds < t {
		tl.rng.End = Mark{}
	}
}

func (tl *Timeline) setEnd(t float64) {
	start, _ := tl.rng.Resolve(tl.duration)
	if t < start {
		tl.rng.End = Mark{}
		return
	}
	tl.rng.End = At(t)
}

func (tl *Timeline) endDrag() {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	tl.drag = nil
	if tl.state == StateDragging {
		tl.state = StateReady
	}
}

func (tl *Timeline) clamp(t float64) float64 {
	if math.IsNaN(t) {
		return 0
	}
	return lo.Clamp(t, 0, tl.duration)
}

func (tl *Timeline) fraction(t float64) float64 {
	p, err := frame.SecondsToFraction(t, tl.duration)
	if err != nil {
		return 0
	}
	return p
}

func (tl *Timeline) width() float64 {
	return tl.cfg.BaseWidth * float64(tl.zoom) / 100
}

func (tl *Timeline) quantize(level int) int {
	steps := math.Round(float64(level-tl.cfg.ZoomMin) / float64(tl.cfg.ZoomStep))
	q := tl.cfg.ZoomMin + int(steps)*tl.cfg.ZoomStep
	return lo.Clamp(q, tl.cfg.ZoomMin, tl.cfg.ZoomMax)
}
