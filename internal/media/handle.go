package media

import (
	"github.com/maauso/freecut/internal/frame"
)

// Handle is an opaque reference to a loaded media resource.
// It is created by a successful probe and never mutated afterwards.
type Handle struct {
	// Path is the local file backing the media.
	Path string
	// Name is the user-facing file name of the upload.
	Name string
	// ContentType is the detected media type, e.g. "video/mp4".
	ContentType string
	// Duration is the length in seconds, always positive.
	Duration float64
	// FrameRate is the detected frame rate, or frame.DefaultFPS when unknown.
	FrameRate float64
	// FrameRateEstimated is true when FrameRate is the fallback value.
	FrameRateEstimated bool
	// Width is the video width in pixels.
	Width int
	// Height is the video height in pixels.
	Height int
	// VideoCodec is the codec of the first video stream.
	VideoCodec string
	// Size is the file size in bytes.
	Size int64
}

// Mapper returns the time/frame mapper for the handle.
func (h *Handle) Mapper() (frame.Mapper, error) {
	return frame.NewMapper(h.Duration, h.FrameRate)
}

// TotalFrames returns floor(duration*fps).
func (h *Handle) TotalFrames() int {
	return frame.TotalFrames(h.Duration, h.FrameRate)
}
