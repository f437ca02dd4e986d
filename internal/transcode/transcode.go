// Package transcode defines the collaborator that turns a trim request into
// an output file, and its backends: a local ffmpeg process, a simulated
// engine for demos and tests, and a remote HTTP transcode service.
package transcode

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// Backend names accepted by the EXPORT_BACKEND setting.
const (
	BackendFFmpeg    = "ffmpeg"
	BackendSimulated = "simulated"
	BackendRemote    = "remote"
)

// ErrInvalidArgs is returned when filter arguments are out of range.
var ErrInvalidArgs = errors.New("transcode: invalid filter arguments")

// Input is media made available to a backend by LoadInput.
type Input struct {
	// ID identifies the input inside the backend.
	ID string
	// Name is the original upload name.
	Name string
	// Path is the local file, when the backend keeps one.
	Path string
	// Owned is true when the backend made its own copy and Release removes it.
	Owned bool
}

// FilterArgs describes one trim transcode.
type FilterArgs struct {
	TrimStart    float64
	TrimDuration float64
	// OutputFormat is "mp4" or "gif".
	OutputFormat string
	// OutputName is the file name the result is delivered under.
	OutputName string
	// FilterGraph optionally overrides the backend's default graph.
	FilterGraph string
}

// Validate checks the arguments every backend relies on.
func (a FilterArgs) Validate() error {
	switch {
	case a.TrimStart < 0:
		return fmt.Errorf("%w: negative start %.3f", ErrInvalidArgs, a.TrimStart)
	case a.TrimDuration <= 0:
		return fmt.Errorf("%w: non-positive duration %.3f", ErrInvalidArgs, a.TrimDuration)
	case a.OutputFormat == "":
		return fmt.Errorf("%w: missing output format", ErrInvalidArgs)
	case a.OutputName == "":
		return fmt.Errorf("%w: missing output name", ErrInvalidArgs)
	}
	return nil
}

// Output is a finished transcode on local disk.
type Output struct {
	Path        string
	Name        string
	ContentType string
	Size        int64
}

// Progress receives the completed fraction in [0, 1].
type Progress func(fraction float64)

// Transcoder is the export collaborator.
type Transcoder interface {
	// LoadInput makes the media readable by the backend.
	LoadInput(ctx context.Context, name string, r io.Reader) (Input, error)
	// RunFilter produces the trimmed output, reporting progress as it goes.
	// A failed or cancelled run leaves no output file behind.
	RunFilter(ctx context.Context, in Input, args FilterArgs, progress Progress) (Output, error)
	// Release frees whatever LoadInput allocated.
	Release(ctx context.Context, in Input) error
}

// TranscodeError reports a failed export. The core never retries it.
type TranscodeError struct {
	Backend string
	Op      string
	Err     error
}

func (e *TranscodeError) Error() string {
	return fmt.Sprintf("transcode %s (%s): %v", e.Op, e.Backend, e.Err)
}

func (e *TranscodeError) Unwrap() error {
	return e.Err
}

func wrap(backend, op string, err error) error {
	if err == nil {
		return nil
	}
	var te *TranscodeError
	if errors.As(err, &te) {
		return err
	}
	return &TranscodeError{Backend: backend, Op: op, Err: err}
}

// report clamps and forwards a progress value.
func report(progress Progress, fraction float64) {
	if progress == nil {
		return
	}
	progress(max(0, min(1, fraction)))
}
