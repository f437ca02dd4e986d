package media

import (
	"context"
	"math"
)

// FrameSource renders frames of a single handle. It satisfies
// decoder.Source without importing it.
type FrameSource struct {
	extractor FrameExtractor
	handle    *Handle
	width     int
}

// NewFrameSource binds an extractor to a handle at a fixed capture width.
func NewFrameSource(extractor FrameExtractor, handle *Handle, width int) *FrameSource {
	return &FrameSource{extractor: extractor, handle: handle, width: width}
}

// Render captures the frame displayed at t. Seeking to the end of a
// stream yields no frame in ffmpeg, so t never passes the start of the
// last whole frame.
func (s *FrameSource) Render(ctx context.Context, t float64) ([]byte, error) {
	last := float64(s.handle.TotalFrames()-1) / s.handle.FrameRate
	t = math.Max(0, math.Min(t, last))
	return s.extractor.ExtractFrame(ctx, s.handle.Path, t, s.width)
}
