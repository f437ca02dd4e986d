// Package server provides the HTTP API of the editor.
// It includes handlers, middleware, routes, and DTOs separated from domain types.
package server

import (
	"time"

	"github.com/maauso/freecut/internal/export"
	"github.com/maauso/freecut/internal/media"
	"github.com/maauso/freecut/internal/playback"
	"github.com/maauso/freecut/internal/thumbnail"
	"github.com/maauso/freecut/internal/timeline"
)

// Playback actions.
const (
	ActionPlay   = "play"
	ActionPause  = "pause"
	ActionToggle = "toggle"
	ActionSeek   = "seek"
	ActionStep   = "step"
	ActionFrame  = "frame"
)

// Pointer phases.
const (
	PhaseDown   = "down"
	PhaseMove   = "move"
	PhaseUp     = "up"
	PhaseCancel = "cancel"
)

// Mark actions.
const (
	MarkIn    = "in"
	MarkOut   = "out"
	MarkSet   = "set"
	MarkQuick = "quick"
	MarkClear = "clear"
)

// PlaybackRequest is the body of POST /sessions/{id}/playback.
type PlaybackRequest struct {
	// Action is one of play, pause, toggle, seek, step, frame.
	Action string `json:"action" validate:"required,oneof=play pause toggle seek step frame"`
	// Time is the seek target in seconds.
	Time *float64 `json:"time,omitempty" validate:"required_if=Action seek"`
	// Delta is the number of frames to step.
	Delta int `json:"delta,omitempty" validate:"required_if=Action step"`
	// Frame is the frame index to go to.
	Frame *int `json:"frame,omitempty" validate:"required_if=Action frame"`
}

// ClickRequest is the body of POST /sessions/{id}/timeline/click.
type ClickRequest struct {
	// X is the pixel offset from the left edge of the track.
	X float64 `json:"x"`
}

// PointerRequest is the body of POST /sessions/{id}/pointer.
type PointerRequest struct {
	Phase  string  `json:"phase" validate:"required,oneof=down move up cancel"`
	Target string  `json:"target,omitempty" validate:"required_if=Phase down,omitempty,oneof=playhead markStart markEnd"`
	X      float64 `json:"x"`
}

// MarkRequest is the body of POST /sessions/{id}/marks.
type MarkRequest struct {
	Action string `json:"action" validate:"required,oneof=in out set quick clear"`
	// Edge selects the mark for set and quick.
	Edge string `json:"edge,omitempty" validate:"required_if=Action set,required_if=Action quick,omitempty,oneof=start end"`
	// Time is the absolute mark position for set.
	Time *float64 `json:"time,omitempty" validate:"required_if=Action set"`
	// Seconds is the quick trim amount.
	Seconds float64 `json:"seconds,omitempty" validate:"required_if=Action quick,gte=0"`
}

// KeyRequest is the body of POST /sessions/{id}/keys.
type KeyRequest struct {
	Key string `json:"key" validate:"required"`
}

// ZoomRequest is the body of PUT /sessions/{id}/zoom. Either Level or Step is set.
type ZoomRequest struct {
	Level *int   `json:"level,omitempty" validate:"required_without=Step,omitempty,min=1"`
	Step  string `json:"step,omitempty" validate:"required_without=Level,omitempty,oneof=in out"`
}

// ThumbnailsRequest is the body of POST /sessions/{id}/thumbnails.
type ThumbnailsRequest struct {
	Count int `json:"count" validate:"required,min=1"`
}

// CreateExportRequest is the body of POST /sessions/{id}/exports.
type CreateExportRequest struct {
	// Format is mp4 (default) or gif.
	Format string `json:"format,omitempty" validate:"omitempty,oneof=mp4 gif MP4 GIF"`
	// Publish uploads the output to S3 when it is configured.
	Publish bool `json:"publish,omitempty"`
}

// MediaResponse describes the loaded media.
type MediaResponse struct {
	Name               string  `json:"name"`
	ContentType        string  `json:"content_type"`
	Duration           float64 `json:"duration"`
	FrameRate          float64 `json:"frame_rate"`
	FrameRateEstimated bool    `json:"frame_rate_estimated"`
	TotalFrames        int     `json:"total_frames"`
	Width              int     `json:"width,omitempty"`
	Height             int     `json:"height,omitempty"`
	VideoCodec         string  `json:"video_codec,omitempty"`
	Size               int64   `json:"size,omitempty"`
}

// JobResponse is the HTTP view of an export job.
type JobResponse struct {
	// ID is the unique identifier for the job.
	ID string `json:"id"`
	// Status is the current job status.
	Status string `json:"status"`
	// Format is the output container.
	Format string `json:"format"`
	// Progress is the percentage of completion (0-100).
	Progress int            `json:"progress"`
	Request  export.Request `json:"request"`
	Backend  string         `json:"backend,omitempty"`
	// Error contains any error message if the job failed.
	Error string `json:"error,omitempty"`
	// FileName is the name the output downloads as.
	FileName string `json:"file_name"`
	Size     int64  `json:"size,omitempty"`
	// DownloadURL is set once the output can be fetched.
	DownloadURL string    `json:"download_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// SessionResponse is the HTTP view of a session snapshot.
type SessionResponse struct {
	ID         string                `json:"id"`
	State      timeline.State        `json:"state"`
	Media      *MediaResponse        `json:"media,omitempty"`
	Position   playback.Position     `json:"position"`
	Range      timeline.TrimRange    `json:"range"`
	Request    *export.Request       `json:"request,omitempty"`
	Zoom       int                   `json:"zoom"`
	Offsets    timeline.Offsets      `json:"offsets"`
	Drag       *timeline.DragSession `json:"drag,omitempty"`
	Thumbnails thumbnail.Status      `json:"thumbnails"`
	// Highlight is the thumbnail matching the current frame, or -1.
	Highlight int          `json:"highlight"`
	Export    *JobResponse `json:"export,omitempty"`
}

// ThumbnailsResponse lists generated thumbnails.
type ThumbnailsResponse struct {
	Status  thumbnail.Status    `json:"status"`
	Entries []ThumbnailResponse `json:"entries"`
}

// ThumbnailResponse is one thumbnail without its image.
type ThumbnailResponse struct {
	thumbnail.Entry
	ImageURL string `json:"image_url,omitempty"`
}

// RangeResponse reports the trim range and the export it resolves to.
type RangeResponse struct {
	Range   timeline.TrimRange `json:"range"`
	Request *export.Request    `json:"request,omitempty"`
}

// PointerResponse reports the outcome of a pointer event. Only the field
// for the phase is set.
type PointerResponse struct {
	State  timeline.State        `json:"state"`
	Drag   *timeline.DragSession `json:"drag,omitempty"`
	Update *timeline.DragUpdate  `json:"update,omitempty"`
}

// KeyResponse reports the session after a key press.
type KeyResponse struct {
	Key     string          `json:"key"`
	Session SessionResponse `json:"session"`
}

// ZoomResponse reports the zoom level and the resulting offsets.
type ZoomResponse struct {
	Zoom    int              `json:"zoom"`
	Offsets timeline.Offsets `json:"offsets"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the human-readable error message.
	Error string `json:"error"`
	// Code is the error code for programmatic handling.
	Code string `json:"code"`
}

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	// Status is the health status of the service.
	Status string `json:"status"`
	// Sessions is the number of live sessions.
	Sessions int `json:"sessions"`
}

func toMediaResponse(h *media.Handle) *MediaResponse {
	if h == nil {
		return nil
	}
	return &MediaResponse{
		Name:               h.Name,
		ContentType:        h.ContentType,
		Duration:           h.Duration,
		FrameRate:          h.FrameRate,
		FrameRateEstimated: h.FrameRateEstimated,
		TotalFrames:        h.TotalFrames(),
		Width:              h.Width,
		Height:             h.Height,
		VideoCodec:         h.VideoCodec,
		Size:               h.Size,
	}
}
