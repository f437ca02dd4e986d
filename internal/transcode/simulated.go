package transcode

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/maauso/freecut/internal/media"
	"github.com/maauso/freecut/internal/storage"
)

// DefaultSimulatedStep is the delay between 5% progress ticks.
const DefaultSimulatedStep = 100 * time.Millisecond

// Compile-time check that Simulated implements Transcoder.
var _ Transcoder = (*Simulated)(nil)

// Simulated reports progress in 5% steps and then delivers the untouched
// input under the output name. It never decodes anything.
type Simulated struct {
	store  storage.Storage
	step   time.Duration
	logger *slog.Logger
}

// NewSimulated creates the simulated backend. step <= 0 uses DefaultSimulatedStep.
func NewSimulated(store storage.Storage, step time.Duration, logger *slog.Logger) *Simulated {
	if step <= 0 {
		step = DefaultSimulatedStep
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Simulated{store: store, step: step, logger: logger}
}

// LoadInput copies r into storage.
func (s *Simulated) LoadInput(ctx context.Context, name string, r io.Reader) (Input, error) {
	path, err := s.store.SaveTemp(ctx, "input", r)
	if err != nil {
		return Input{}, wrap(BackendSimulated, "load", err)
	}
	return Input{ID: path, Name: name, Path: path, Owned: true}, nil
}

// RunFilter ticks progress to 100% and copies the input to the output.
func (s *Simulated) RunFilter(ctx context.Context, in Input, args FilterArgs, progress Progress) (Output, error) {
	if err := args.Validate(); err != nil {
		return Output{}, wrap(BackendSimulated, "filter", err)
	}

	ticker := time.NewTicker(s.step)
	defer ticker.Stop()
	for pct := 5; pct <= 100; pct += 5 {
		select {
		case <-ctx.Done():
			return Output{}, wrap(BackendSimulated, "filter", ctx.Err())
		case <-ticker.C:
		}
		report(progress, float64(pct)/100)
	}

	out, err := s.store.OutputPath(ctx, args.OutputName)
	if err != nil {
		return Output{}, wrap(BackendSimulated, "filter", err)
	}
	size, err := s.copy(ctx, in.Path, out)
	if err != nil {
		_ = s.store.CleanupTemp(context.WithoutCancel(ctx), []string{out})
		return Output{}, wrap(BackendSimulated, "filter", err)
	}

	s.logger.Debug("simulated export delivered",
		slog.String("output", out),
		slog.Int64("size", size),
	)

	return Output{
		Path:        out,
		Name:        args.OutputName,
		ContentType: media.ContentTypeFor(args.OutputFormat),
		Size:        size,
	}, nil
}

// Release removes the input copy.
func (s *Simulated) Release(ctx context.Context, in Input) error {
	return wrap(BackendSimulated, "release", s.store.CleanupTemp(ctx, []string{in.Path}))
}

func (s *Simulated) copy(ctx context.Context, src, dst string) (int64, error) {
	r, err := s.store.Open(ctx, src)
	if err != nil {
		return 0, err
	}
	defer func() { _ = r.Close() }()

	w, err := os.Create(dst) // #nosec G304 - dst comes from storage.OutputPath
	if err != nil {
		return 0, fmt.Errorf("create output: %w", err)
	}
	n, err := io.Copy(w, r)
	if cerr := w.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return 0, fmt.Errorf("write output: %w", err)
	}
	return n, nil
}
