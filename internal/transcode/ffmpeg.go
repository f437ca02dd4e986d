package transcode

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/maauso/freecut/internal/media"
	"github.com/maauso/freecut/internal/storage"
)

// Compile-time check that FFmpeg implements Transcoder.
var _ Transcoder = (*FFmpeg)(nil)

// FFmpeg runs exports through a local ffmpeg binary.
type FFmpeg struct {
	trimmer media.Trimmer
	store   storage.Storage
	logger  *slog.Logger
}

// NewFFmpeg creates the local backend. A nil logger uses slog.Default().
func NewFFmpeg(trimmer media.Trimmer, store storage.Storage, logger *slog.Logger) *FFmpeg {
	if logger == nil {
		logger = slog.Default()
	}
	return &FFmpeg{trimmer: trimmer, store: store, logger: logger}
}

// LoadInput references r's file directly when it is an *os.File; any other
// reader is copied to storage first.
func (f *FFmpeg) LoadInput(ctx context.Context, name string, r io.Reader) (Input, error) {
	if file, ok := r.(*os.File); ok {
		if _, err := os.Stat(file.Name()); err == nil {
			return Input{ID: file.Name(), Name: name, Path: file.Name()}, nil
		}
	}
	path, err := f.store.SaveTemp(ctx, "input", r)
	if err != nil {
		return Input{}, wrap(BackendFFmpeg, "load", err)
	}
	return Input{ID: path, Name: name, Path: path, Owned: true}, nil
}

// RunFilter trims in to a fresh output file.
func (f *FFmpeg) RunFilter(ctx context.Context, in Input, args FilterArgs, progress Progress) (Output, error) {
	if err := args.Validate(); err != nil {
		return Output{}, wrap(BackendFFmpeg, "filter", err)
	}

	out, err := f.store.OutputPath(ctx, args.OutputName)
	if err != nil {
		return Output{}, wrap(BackendFFmpeg, "filter", err)
	}

	f.logger.Debug("running ffmpeg trim",
		slog.String("input", in.Path),
		slog.String("output", out),
		slog.Float64("start", args.TrimStart),
		slog.Float64("duration", args.TrimDuration),
		slog.String("format", args.OutputFormat),
	)

	report(progress, 0)
	err = f.trimmer.Trim(ctx, media.TrimOptions{
		Input:       in.Path,
		Output:      out,
		Start:       args.TrimStart,
		Duration:    args.TrimDuration,
		Format:      args.OutputFormat,
		FilterGraph: args.FilterGraph,
	}, func(outSeconds float64) {
		report(progress, outSeconds/args.TrimDuration)
	})
	if err != nil {
		_ = f.store.CleanupTemp(context.WithoutCancel(ctx), []string{out})
		return Output{}, wrap(BackendFFmpeg, "filter", err)
	}

	info, err := os.Stat(out)
	if err != nil {
		_ = f.store.CleanupTemp(context.WithoutCancel(ctx), []string{out})
		return Output{}, wrap(BackendFFmpeg, "filter", err)
	}
	report(progress, 1)

	return Output{
		Path:        out,
		Name:        args.OutputName,
		ContentType: media.ContentTypeFor(args.OutputFormat),
		Size:        info.Size(),
	}, nil
}

// Release removes the copy made by LoadInput, if any.
func (f *FFmpeg) Release(ctx context.Context, in Input) error {
	if !in.Owned {
		return nil
	}
	return wrap(BackendFFmpeg, "release", f.store.CleanupTemp(ctx, []string{in.Path}))
}
