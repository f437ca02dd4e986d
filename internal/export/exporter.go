package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"sync"

	"github.com/maauso/freecut/internal/media"
	"github.com/maauso/freecut/internal/storage"
	"github.com/maauso/freecut/internal/timeline"
	"github.com/maauso/freecut/internal/transcode"
)

var (
	// ErrNoOpExport is returned when the trim window has zero length.
	ErrNoOpExport = errors.New("export: trim range is empty")
	// ErrExportInProgress is returned while another export is running.
	ErrExportInProgress = errors.New("export: another export is in progress")
	// ErrNoMedia is returned when exporting without a loaded handle.
	ErrNoMedia = errors.New("export: no media loaded")
)

// Options tune a single export.
type Options struct {
	// Publish uploads the output to S3 when storage supports it.
	Publish bool
	// FilterGraph overrides the backend's default filter graph.
	FilterGraph string
}

// Option configures an Exporter.
type Option func(*Exporter)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Exporter) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithRepository replaces the default in-memory job repository.
func WithRepository(repo Repository) Option {
	return func(e *Exporter) {
		e.repo = repo
	}
}

// WithBackend records the backend name on every job.
func WithBackend(name string) Option {
	return func(e *Exporter) {
		e.backend = name
	}
}

// WithOnUpdate registers fn to receive a snapshot after every job change.
func WithOnUpdate(fn func(*Job)) Option {
	return func(e *Exporter) {
		e.onUpdate = fn
	}
}

// Exporter runs at most one export at a time against a transcoder.
type Exporter struct {
	tc       transcode.Transcoder
	store    storage.Storage
	repo     Repository
	logger   *slog.Logger
	backend  string
	onUpdate func(*Job)

	mu     sync.Mutex
	active *run
	wg     sync.WaitGroup
}

type run struct {
	job    *Job
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates an Exporter.
func New(tc transcode.Transcoder, store storage.Storage, opts ...Option) *Exporter {
	e := &Exporter{
		tc:     tc,
		store:  store,
		repo:   NewMemoryRepository(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start validates the trim window and launches the transcode in the
// background. The returned job is a snapshot; poll Get for progress.
// The export outlives ctx; use Cancel to stop it.
func (e *Exporter) Start(ctx context.Context, h *media.Handle, rng timeline.TrimRange, format Format, opts Options) (*Job, error) {
	if h == nil {
		return nil, ErrNoMedia
	}
	req, err := BuildTrimRequest(rng, h.Duration)
	if err != nil {
		return nil, err
	}
	if req.NoOp {
		return nil, fmt.Errorf("%w: start and end are both %.3fs", ErrNoOpExport, req.StartTime)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active != nil {
		return nil, ErrExportInProgress
	}

	job := NewJob(format, req)
	job.Backend = e.backend
	if err := e.repo.Save(ctx, job); err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r := &run{job: job, cancel: cancel, done: make(chan struct{})}
	e.active = r

	e.logger.Info("export started",
		slog.String("job_id", job.ID),
		slog.String("format", string(format)),
		slog.Float64("start", req.StartTime),
		slog.Float64("end", req.EndTime),
	)

	e.wg.Add(1)
	go e.execute(runCtx, r, h, opts)

	return job.Clone(), nil
}

// Get returns a snapshot of a job.
func (e *Exporter) Get(ctx context.Context, jobID string) (*Job, error) {
	return e.repo.FindByID(ctx, jobID)
}

// List returns snapshots of every job of this exporter.
func (e *Exporter) List(ctx context.Context) ([]*Job, error) {
	return e.repo.List(ctx)
}

// Active returns the in-flight job, if any.
func (e *Exporter) Active() (*Job, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active == nil {
		return nil, false
	}
	return e.active.job.Clone(), true
}

// Wait blocks until the job with jobID is no longer running, then returns
// its final snapshot.
func (e *Exporter) Wait(ctx context.Context, jobID string) (*Job, error) {
	e.mu.Lock()
	r := e.active
	e.mu.Unlock()

	if r != nil && r.job.ID == jobID {
		select {
		case <-r.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return e.repo.FindByID(ctx, jobID)
}

// Cancel stops the in-flight export and waits for it to release its
// resources. It is a no-op when nothing is running.
func (e *Exporter) Cancel() {
	e.mu.Lock()
	r := e.active
	e.mu.Unlock()
	if r == nil {
		return
	}
	r.cancel()
	<-r.done
}

// Close cancels any running export and removes every delivered output.
// Remove deletes a finished job's output and forgets the job. Jobs still
// queued or running are refused with ErrExportInProgress.
func (e *Exporter) Remove(ctx context.Context, id string) error {
	job, err := e.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if !job.IsTerminal() {
		return ErrExportInProgress
	}
	if job.OutputPath != "" {
		if err := e.store.CleanupTemp(ctx, []string{job.OutputPath}); err != nil {
			return fmt.Errorf("remove export output: %w", err)
		}
	}
	e.logger.Info("export removed", slog.String("job_id", id))
	return e.repo.Delete(ctx, id)
}

// Close cancels the active export, then deletes every output and forgets
// the jobs.
func (e *Exporter) Close(ctx context.Context) error {
	e.Cancel()
	e.wg.Wait()

	jobs, err := e.repo.List(ctx)
	if err != nil {
		return err
	}
	var paths []string
	for _, j := range jobs {
		if j.OutputPath != "" {
			paths = append(paths, j.OutputPath)
		}
	}
	if len(paths) > 0 {
		if err := e.store.CleanupTemp(ctx, paths); err != nil {
			return err
		}
	}
	for _, j := range jobs {
		if err := e.repo.Delete(ctx, j.ID); err != nil && !errors.Is(err, ErrJobNotFound) {
			return err
		}
	}
	return nil
}

func (e *Exporter) execute(ctx context.Context, r *run, h *media.Handle, opts Options) {
	defer e.wg.Done()
	defer func() {
		r.cancel()
		e.mu.Lock()
		if e.active == r {
			e.active = nil
		}
		e.mu.Unlock()
		close(r.done)
	}()

	job := r.job
	logger := e.logger.With(slog.String("job_id", job.ID))

	if err := job.Start(); err != nil {
		logger.Error("failed to start export", slog.String("error", err.Error()))
		return
	}
	e.save(job)

	out, err := e.transcode(ctx, job, h, opts)
	if err != nil {
		if ctx.Err() != nil {
			_ = job.Cancel()
			logger.Info("export cancelled")
		} else {
			_ = job.Fail(err.Error())
			logger.Error("export failed", slog.String("error", err.Error()))
		}
		e.save(job)
		return
	}

	url := ""
	if opts.Publish && e.store.CanPublish() {
		url, err = e.publish(ctx, job, out)
		if err != nil {
			// The local download still works.
			logger.Warn("failed to publish export", slog.String("error", err.Error()))
		}
	}

	if err := job.Complete(out.Path, out.Size, url); err != nil {
		logger.Error("failed to complete export", slog.String("error", err.Error()))
		_ = e.store.CleanupTemp(context.WithoutCancel(ctx), []string{out.Path})
		return
	}
	e.save(job)

	logger.Info("export completed",
		slog.String("output", out.Path),
		slog.Int64("size", out.Size),
		slog.Bool("published", url != ""),
	)
}

func (e *Exporter) transcode(ctx context.Context, job *Job, h *media.Handle, opts Options) (transcode.Output, error) {
	src, err := os.Open(h.Path)
	if err != nil {
		return transcode.Output{}, &transcode.TranscodeError{Backend: e.backend, Op: "open", Err: err}
	}
	defer func() { _ = src.Close() }()

	in, err := e.tc.LoadInput(ctx, h.Name, src)
	if err != nil {
		return transcode.Output{}, err
	}
	defer func() {
		if err := e.tc.Release(context.WithoutCancel(ctx), in); err != nil {
			e.logger.Warn("failed to release transcode input",
				slog.String("job_id", job.ID),
				slog.String("error", err.Error()),
			)
		}
	}()

	req := job.Request
	return e.tc.RunFilter(ctx, in, transcode.FilterArgs{
		TrimStart:    req.StartTime,
		TrimDuration: req.DurationSeconds,
		OutputFormat: string(job.Format),
		OutputName:   job.OutputName,
		FilterGraph:  opts.FilterGraph,
	}, func(fraction float64) {
		if job.UpdateProgress(int(fraction * 100)) {
			e.save(job)
		}
	})
}

func (e *Exporter) publish(ctx context.Context, job *Job, out transcode.Output) (string, error) {
	f, err := e.store.Open(ctx, out.Path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()
	return e.store.Publish(ctx, path.Join(job.ID, out.Name), job.Format.ContentType(), f)
}

// save persists job and notifies the observer.
func (e *Exporter) save(job *Job) {
	if err := e.repo.Save(context.Background(), job); err != nil {
		e.logger.Error("failed to save export job",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
	}
	if e.onUpdate != nil {
		e.onUpdate(job.Clone())
	}
}
