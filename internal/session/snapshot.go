package session

import (
	"context"

	"github.com/maauso/freecut/internal/export"
	"github.com/maauso/freecut/internal/media"
	"github.com/maauso/freecut/internal/playback"
	"github.com/maauso/freecut/internal/thumbnail"
	"github.com/maauso/freecut/internal/timeline"
)

// Snapshot is a consistent-enough view of a session for rendering.
type Snapshot struct {
	ID        string
	State     timeline.State
	Media     *media.Handle
	Position  playback.Position
	Range     timeline.TrimRange
	Request   *export.Request
	Zoom      int
	Offsets   timeline.Offsets
	Drag      *timeline.DragSession
	Thumbs    thumbnail.Status
	Highlight int // -1 when no thumbnail matches the current frame
	Export    *export.Job
}

// Snapshot collects the current state of every component.
func (s *Session) Snapshot(ctx context.Context) Snapshot {
	snap := Snapshot{
		ID:        s.id,
		State:     s.tl.State(),
		Range:     s.tl.Range(),
		Zoom:      s.tl.Zoom(),
		Offsets:   s.tl.Offsets(),
		Thumbs:    thumbnail.Status{State: thumbnail.StateEmpty},
		Highlight: -1,
	}
	if d, ok := s.tl.Drag(); ok {
		snap.Drag = &d
	}

	if l, err := s.media(); err == nil {
		snap.Media = l.handle
		snap.Position = l.ctrl.Position()
		snap.Thumbs = l.thumbs.Status()
		if e, ok := l.thumbs.Nearest(snap.Position.Frame); ok {
			snap.Highlight = e.Index
		}
		if req, err := export.BuildTrimRequest(snap.Range, l.handle.Duration); err == nil {
			snap.Request = &req
		}
	}

	if j, ok := s.exporter.Active(); ok {
		snap.Export = j
	} else if jobs, err := s.exporter.List(ctx); err == nil && len(jobs) > 0 {
		snap.Export = jobs[len(jobs)-1]
	}
	return snap
}
