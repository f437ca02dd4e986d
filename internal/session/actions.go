package session

import (
	"context"
	"fmt"

	"github.com/maauso/freecut/internal/decoder"
	"github.com/maauso/freecut/internal/export"
	"github.com/maauso/freecut/internal/playback"
	"github.com/maauso/freecut/internal/thumbnail"
	"github.com/maauso/freecut/internal/timeline"
)

// Play starts natural playback.
func (s *Session) Play() error {
	l, err := s.media()
	if err != nil {
		return err
	}
	l.ctrl.Play()
	return nil
}

// Pause stops natural playback.
func (s *Session) Pause() error {
	l, err := s.media()
	if err != nil {
		return err
	}
	l.ctrl.Pause()
	return nil
}

// Toggle switches play/pause and reports whether playback is now running.
func (s *Session) Toggle() (bool, error) {
	l, err := s.media()
	if err != nil {
		return false, err
	}
	return l.ctrl.Toggle(), nil
}

// Position returns the current playhead.
func (s *Session) Position() (playback.Position, error) {
	l, err := s.media()
	if err != nil {
		return playback.Position{}, err
	}
	return l.ctrl.Position(), nil
}

// Seek moves the playhead to t seconds and waits for the frame.
func (s *Session) Seek(ctx context.Context, t float64) (playback.Position, error) {
	l, err := s.media()
	if err != nil {
		return playback.Position{}, err
	}
	return l.ctrl.Seek(ctx, t)
}

// StepFrame pauses and moves by delta frames.
func (s *Session) StepFrame(ctx context.Context, delta int) (playback.Position, error) {
	l, err := s.media()
	if err != nil {
		return playback.Position{}, err
	}
	return l.ctrl.StepFrame(ctx, delta)
}

// GoToFrame seeks to frame f.
func (s *Session) GoToFrame(ctx context.Context, f int) (playback.Position, error) {
	l, err := s.media()
	if err != nil {
		return playback.Position{}, err
	}
	return l.ctrl.GoToFrame(ctx, f)
}

// Frame returns the displayed frame, rendering the playhead position if
// nothing has been displayed yet.
func (s *Session) Frame(ctx context.Context) (decoder.Frame, error) {
	l, err := s.media()
	if err != nil {
		return decoder.Frame{}, err
	}
	if f, ok := l.queue.Displayed(); ok {
		return f, nil
	}
	return l.queue.Seek(ctx, l.ctrl.Position().Time)
}

// ClickSeek seeks to the time under a click at pixel x of the track.
func (s *Session) ClickSeek(ctx context.Context, x float64) (playback.Position, error) {
	l, err := s.media()
	if err != nil {
		return playback.Position{}, err
	}
	t, err := s.tl.ClickSeek(x)
	if err != nil {
		return l.ctrl.Position(), err
	}
	return l.ctrl.Seek(ctx, t)
}

// PointerDown starts dragging target from pixel x.
func (s *Session) PointerDown(target timeline.Target, x float64) (timeline.DragSession, error) {
	if _, err := s.media(); err != nil {
		return timeline.DragSession{}, err
	}
	d, err := s.tl.PointerDown(target, x)
	if err == nil {
		s.emit(Event{Type: EventState, State: timeline.StateDragging})
	}
	return d, err
}

// PointerMove applies the drag at pixel x and scrubs the playhead when the
// drag asks for it.
func (s *Session) PointerMove(x float64) (timeline.DragUpdate, error) {
	l, err := s.media()
	if err != nil {
		return timeline.DragUpdate{}, err
	}
	u, err := s.tl.PointerMove(x)
	if err != nil {
		return u, err
	}
	if u.Seek {
		if err := l.ctrl.Scrub(u.Seconds); err != nil {
			return u, err
		}
	}
	if u.Target != timeline.TargetPlayhead {
		s.emitRange(u.Range)
	}
	return u, nil
}

// PointerUp ends the drag.
func (s *Session) PointerUp() {
	s.tl.PointerUp()
	s.emit(Event{Type: EventState, State: s.tl.State()})
}

// PointerCancel ends the drag, keeping the last update.
func (s *Session) PointerCancel() {
	s.tl.PointerCancel()
	s.emit(Event{Type: EventState, State: s.tl.State()})
}

// MarkIn sets the start mark at the playhead.
func (s *Session) MarkIn() (timeline.TrimRange, error) {
	l, err := s.media()
	if err != nil {
		return timeline.TrimRange{}, err
	}
	return s.SetMark(timeline.EdgeStart, l.ctrl.Position().Time)
}

// MarkOut sets the end mark at the playhead.
func (s *Session) MarkOut() (timeline.TrimRange, error) {
	l, err := s.media()
	if err != nil {
		return timeline.TrimRange{}, err
	}
	return s.SetMark(timeline.EdgeEnd, l.ctrl.Position().Time)
}

// SetMark sets the start or end mark at t seconds.
func (s *Session) SetMark(edge timeline.Edge, t float64) (timeline.TrimRange, error) {
	var (
		rng timeline.TrimRange
		err error
	)
	switch edge {
	case timeline.EdgeStart:
		rng, err = s.tl.MarkIn(t)
	case timeline.EdgeEnd:
		rng, err = s.tl.MarkOut(t)
	default:
		return s.tl.Range(), fmt.Errorf("%w: %q", timeline.ErrUnknownEdge, edge)
	}
	if err == nil {
		s.emitRange(rng)
	}
	return rng, err
}

// QuickTrim trims seconds off one edge.
func (s *Session) QuickTrim(edge timeline.Edge, seconds float64) (timeline.TrimRange, error) {
	rng, err := s.tl.QuickTrim(edge, seconds)
	if err == nil {
		s.emitRange(rng)
	}
	return rng, err
}

// ClearMarks unsets both marks.
func (s *Session) ClearMarks() timeline.TrimRange {
	s.tl.ClearMarks()
	rng := s.tl.Range()
	s.emitRange(rng)
	return rng
}

// Range returns the current marks.
func (s *Session) Range() timeline.TrimRange {
	return s.tl.Range()
}

// State returns the timeline state.
func (s *Session) State() timeline.State {
	return s.tl.State()
}

// Offsets returns the render positions at the current zoom.
func (s *Session) Offsets() timeline.Offsets {
	return s.tl.Offsets()
}

// SetZoom sets the zoom percentage and returns the applied level.
func (s *Session) SetZoom(level int) int {
	z := s.tl.SetZoom(level)
	s.emitZoom()
	return z
}

// ZoomIn steps the zoom up.
func (s *Session) ZoomIn() int {
	z := s.tl.ZoomIn()
	s.emitZoom()
	return z
}

// ZoomOut steps the zoom down.
func (s *Session) ZoomOut() int {
	z := s.tl.ZoomOut()
	s.emitZoom()
	return z
}

// Thumbnails returns the generated entries and the generation status.
func (s *Session) Thumbnails() ([]thumbnail.Entry, thumbnail.Status, error) {
	l, err := s.media()
	if err != nil {
		return nil, thumbnail.Status{State: thumbnail.StateEmpty}, err
	}
	return l.thumbs.Entries(), l.thumbs.Status(), nil
}

// Thumbnail returns entry i.
func (s *Session) Thumbnail(i int) (thumbnail.Entry, bool, error) {
	l, err := s.media()
	if err != nil {
		return thumbnail.Entry{}, false, err
	}
	e, ok := l.thumbs.Entry(i)
	return e, ok, nil
}

// SeekToThumbnail seeks to the frame of thumbnail i.
func (s *Session) SeekToThumbnail(ctx context.Context, i int) (playback.Position, error) {
	l, err := s.media()
	if err != nil {
		return playback.Position{}, err
	}
	e, ok := l.thumbs.Entry(i)
	if !ok {
		return l.ctrl.Position(), fmt.Errorf("%w: thumbnail %d", ErrNotFound, i)
	}
	return l.ctrl.GoToFrame(ctx, e.FrameIndex)
}

// Export starts exporting the current trim range.
func (s *Session) Export(ctx context.Context, format export.Format, opts export.Options) (*export.Job, error) {
	l, err := s.media()
	if err != nil {
		return nil, err
	}
	return s.exporter.Start(ctx, l.handle, s.tl.Range(), format, opts)
}

// ExportRequest previews the request an export would submit.
func (s *Session) ExportRequest() (export.Request, error) {
	l, err := s.media()
	if err != nil {
		return export.Request{}, err
	}
	return export.BuildTrimRequest(s.tl.Range(), l.handle.Duration)
}

// ExportJob returns a snapshot of an export.
func (s *Session) ExportJob(ctx context.Context, jobID string) (*export.Job, error) {
	return s.exporter.Get(ctx, jobID)
}

// Exports lists this session's exports, oldest first.
func (s *Session) Exports(ctx context.Context) ([]*export.Job, error) {
	return s.exporter.List(ctx)
}

// WaitExport blocks until an export finishes.
func (s *Session) WaitExport(ctx context.Context, jobID string) (*export.Job, error) {
	return s.exporter.Wait(ctx, jobID)
}

// RemoveExport deletes a finished export and its output file.
func (s *Session) RemoveExport(ctx context.Context, jobID string) error {
	return s.exporter.Remove(ctx, jobID)
}

// CancelExport stops the running export, if any.
func (s *Session) CancelExport() {
	s.exporter.Cancel()
}

func (s *Session) emitRange(rng timeline.TrimRange) {
	s.emit(Event{Type: EventRange, Range: &rng})
}

func (s *Session) emitZoom() {
	o := s.tl.Offsets()
	s.emit(Event{Type: EventZoom, Zoom: s.tl.Zoom(), Offsets: &o})
}
