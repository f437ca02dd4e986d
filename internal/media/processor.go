// Package media wraps the ffmpeg and ffprobe command-line tools used to probe
// uploaded videos, capture still frames and run trim transcodes.
package media

import "context"

// Prober extracts the metadata needed to build a Handle.
type Prober interface {
	// Probe inspects the media file at path and returns an immutable Handle.
	// Files without a decodable video stream are rejected.
	Probe(ctx context.Context, path string) (*Handle, error)
}

// FrameExtractor captures single still frames from a media file.
type FrameExtractor interface {
	// ExtractFrame decodes the frame displayed at t seconds and returns it as
	// a JPEG scaled to the given width (height keeps the aspect ratio).
	ExtractFrame(ctx context.Context, path string, t float64, width int) ([]byte, error)
}

// Trimmer cuts a segment out of a media file into a new container.
type Trimmer interface {
	// Trim writes the segment described by opts to opts.Output. progress, if
	// non-nil, receives the encoded output time in seconds as it advances.
	Trim(ctx context.Context, opts TrimOptions, progress func(outSeconds float64)) error
}
