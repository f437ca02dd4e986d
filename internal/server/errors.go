package server

import (
	"errors"
	"net/http"

	"github.com/maauso/freecut/internal/export"
	"github.com/maauso/freecut/internal/media"
	"github.com/maauso/freecut/internal/session"
	"github.com/maauso/freecut/internal/thumbnail"
	"github.com/maauso/freecut/internal/timeline"
	"github.com/maauso/freecut/internal/transcode"
)

// errorMapping pairs a domain error with its HTTP status and code.
type errorMapping struct {
	target error
	status int
	code   string
}

// Checked in order; the first match wins.
var errorMappings = []errorMapping{
	{session.ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
	{export.ErrJobNotFound, http.StatusNotFound, "EXPORT_NOT_FOUND"},
	{session.ErrClosed, http.StatusGone, "SESSION_CLOSED"},
	{media.ErrNotVideo, http.StatusUnsupportedMediaType, "NOT_VIDEO"},
	{session.ErrNotReady, http.StatusConflict, "NO_MEDIA"},
	{timeline.ErrNotReady, http.StatusConflict, "NO_MEDIA"},
	{export.ErrNoMedia, http.StatusConflict, "NO_MEDIA"},
	{export.ErrExportInProgress, http.StatusConflict, "EXPORT_IN_PROGRESS"},
	{export.ErrNoOpExport, http.StatusUnprocessableEntity, "NOOP_EXPORT"},
	{timeline.ErrDragging, http.StatusConflict, "DRAG_IN_PROGRESS"},
	{timeline.ErrNotDragging, http.StatusConflict, "NOT_DRAGGING"},
	{timeline.ErrUnknownTarget, http.StatusBadRequest, "UNKNOWN_TARGET"},
	{timeline.ErrUnknownEdge, http.StatusBadRequest, "UNKNOWN_EDGE"},
	{session.ErrUnknownKey, http.StatusBadRequest, "UNKNOWN_KEY"},
	{export.ErrUnsupportedFormat, http.StatusBadRequest, "UNSUPPORTED_FORMAT"},
	{thumbnail.ErrInvalidCount, http.StatusBadRequest, "INVALID_COUNT"},
	{transcode.ErrInvalidArgs, http.StatusBadRequest, "INVALID_ARGS"},
}

// statusFor maps err to an HTTP status and error code.
func statusFor(err error) (int, string) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return http.StatusRequestEntityTooLarge, "UPLOAD_TOO_LARGE"
	}
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			return m.status, m.code
		}
	}
	var loadErr *session.LoadError
	if errors.As(err, &loadErr) {
		return http.StatusUnprocessableEntity, "LOAD_FAILED"
	}
	var tcErr *transcode.TranscodeError
	if errors.As(err, &tcErr) {
		return http.StatusBadGateway, "TRANSCODE_FAILED"
	}
	return http.StatusInternalServerError, "INTERNAL_ERROR"
}
