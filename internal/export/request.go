// Package export turns the final trim state into a transcode request and
// runs it as a single long-lived job per session.
package export

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/maauso/freecut/internal/media"
	"github.com/maauso/freecut/internal/timeline"
)

// OutputBase is the file name every export is delivered under, plus the
// container extension.
const OutputBase = "freecut-edit"

var (
	// ErrInvalidDuration is returned when the media duration is not positive.
	ErrInvalidDuration = errors.New("export: duration must be positive")
	// ErrUnsupportedFormat is returned for containers other than mp4 and gif.
	ErrUnsupportedFormat = errors.New("export: unsupported format")
)

// Request is the resolved trim window handed to the transcoder.
type Request struct {
	StartTime       float64 `json:"start_time"`
	EndTime         float64 `json:"end_time"`
	DurationSeconds float64 `json:"duration_seconds"`
	// NoOp flags a zero-length window. It is a warning, not an error.
	NoOp bool `json:"no_op"`
}

// BuildTrimRequest resolves unset marks and guarantees
// 0 <= StartTime <= EndTime <= duration.
func BuildTrimRequest(rng timeline.TrimRange, duration float64) (Request, error) {
	if duration <= 0 || math.IsNaN(duration) || math.IsInf(duration, 0) {
		return Request{}, fmt.Errorf("%w: got %v", ErrInvalidDuration, duration)
	}

	start, end := rng.Resolve(duration)
	start = clamp(start, 0, duration)
	end = clamp(end, 0, duration)
	if end < start {
		end = start
	}

	d := end - start
	return Request{
		StartTime:       start,
		EndTime:         end,
		DurationSeconds: d,
		NoOp:            d == 0,
	}, nil
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return max(lo, min(hi, v))
}

// Format is an output container.
type Format string

// Supported containers.
const (
	FormatMP4 Format = media.FormatMP4
	FormatGIF Format = media.FormatGIF
)

// ParseFormat accepts "mp4" or "gif" in any case. Empty means mp4.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatMP4, nil
	case FormatMP4, FormatGIF:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
	}
}

// OutputName returns the deterministic download name for f.
func (f Format) OutputName() string {
	return OutputBase + "." + string(f)
}

// ContentType returns the MIME type of f.
func (f Format) ContentType() string {
	return media.ContentTypeFor(string(f))
}
