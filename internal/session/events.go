package session

import (
	"github.com/maauso/freecut/internal/export"
	"github.com/maauso/freecut/internal/playback"
	"github.com/maauso/freecut/internal/thumbnail"
	"github.com/maauso/freecut/internal/timeline"
)

// EventType names what an Event carries.
type EventType string

// Event types.
const (
	EventState      EventType = "state"
	EventPosition   EventType = "position"
	EventRange      EventType = "range"
	EventZoom       EventType = "zoom"
	EventThumbnails EventType = "thumbnails"
	EventExport     EventType = "export"
)

// Event is a change pushed to subscribers. Only the fields of its Type are set.
type Event struct {
	Type       EventType           `json:"type"`
	State      timeline.State      `json:"state,omitempty"`
	Error      string              `json:"error,omitempty"`
	Position   *playback.Position  `json:"position,omitempty"`
	Thumbnail  *int                `json:"thumbnail,omitempty"`
	Range      *timeline.TrimRange `json:"range,omitempty"`
	Zoom       int                 `json:"zoom,omitempty"`
	Offsets    *timeline.Offsets   `json:"offsets,omitempty"`
	Thumbnails *thumbnail.Status   `json:"thumbnails,omitempty"`
	Export     *export.Job         `json:"-"`
}

// Subscribe registers fn for session events and returns its removal func.
// fn runs on the goroutine that caused the change and must not block.
func (s *Session) Subscribe(fn func(Event)) func() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	n := s.nextSub
	s.nextSub++
	s.subs[n] = fn
	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		delete(s.subs, n)
	}
}

func (s *Session) emit(ev Event) {
	s.subMu.Lock()
	fns := make([]func(Event), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}
