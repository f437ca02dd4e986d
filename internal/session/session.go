// Package session owns everything derived from one loaded media file: the
// decoder queue, playback controller, timeline, thumbnails and exports.
// Front-ends (HTTP, terminal, CLI) drive a Session and never touch the
// components directly.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/maauso/freecut/internal/decoder"
	"github.com/maauso/freecut/internal/export"
	"github.com/maauso/freecut/internal/id"
	"github.com/maauso/freecut/internal/media"
	"github.com/maauso/freecut/internal/playback"
	"github.com/maauso/freecut/internal/storage"
	"github.com/maauso/freecut/internal/thumbnail"
	"github.com/maauso/freecut/internal/timeline"
	"github.com/maauso/freecut/internal/transcode"
)

var (
	// ErrNotReady is returned by actions that need loaded media.
	ErrNotReady = errors.New("session: no media loaded")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("session: closed")
	// ErrNotFound is returned for missing thumbnails and sessions.
	ErrNotFound = errors.New("session: not found")
)

// LoadError reports media that could not be opened. The session is left
// with nothing loaded.
type LoadError struct {
	Name string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %q: %v", e.Name, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// Deps are the collaborators shared by all sessions.
type Deps struct {
	Prober     media.Prober
	Extractor  media.FrameExtractor
	Transcoder transcode.Transcoder
	Store      storage.Storage
	// Backend names the transcoder for job records.
	Backend string
}

// Config tunes per-session behaviour.
type Config struct {
	Timeline timeline.Config
	// ThumbnailCount is how many thumbnails a load generates.
	ThumbnailCount int
	// ThumbnailMax bounds any requested thumbnail count.
	ThumbnailMax int
	// FrameWidth is the capture width of preview frames and thumbnails.
	FrameWidth int
	// Tick is the natural playback interval.
	Tick time.Duration
}

// DefaultConfig returns the settings used when none are configured.
func DefaultConfig() Config {
	return Config{
		Timeline:       timeline.DefaultConfig(),
		ThumbnailCount: 10,
		ThumbnailMax:   thumbnail.DefaultMaxCount,
		FrameWidth:     320,
		Tick:           playback.DefaultTick,
	}
}

// loaded is everything bound to one handle.
type loaded struct {
	handle *media.Handle
	owned  bool
	queue  *decoder.Queue
	ctrl   *playback.Controller
	thumbs *thumbnail.Cache

	cancelThumbs context.CancelFunc
	thumbsDone   chan struct{}
}

// Session is one editing context. It is safe for concurrent use.
type Session struct {
	id     string
	deps   Deps
	cfg    Config
	logger *slog.Logger

	tl       *timeline.Timeline
	exporter *export.Exporter

	loadMu sync.Mutex // serializes Load, Unload and Close

	mu     sync.RWMutex
	cur    *loaded
	closed bool

	subMu   sync.Mutex
	subs    map[int]func(Event)
	nextSub int
}

// New creates an empty session. A nil logger uses slog.Default().
func New(deps Deps, cfg Config, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.ThumbnailMax <= 0 {
		cfg.ThumbnailMax = def.ThumbnailMax
	}
	if cfg.ThumbnailCount <= 0 {
		cfg.ThumbnailCount = def.ThumbnailCount
	}
	if cfg.FrameWidth <= 0 {
		cfg.FrameWidth = def.FrameWidth
	}
	if cfg.Tick <= 0 {
		cfg.Tick = def.Tick
	}

	sid := id.Generate(id.PrefixSession)
	s := &Session{
		id:     sid,
		deps:   deps,
		cfg:    cfg,
		logger: logger.With(slog.String("session_id", sid)),
		tl:     timeline.New(cfg.Timeline),
		subs:   make(map[int]func(Event)),
	}
	s.exporter = export.New(deps.Transcoder, deps.Store,
		export.WithLogger(s.logger),
		export.WithBackend(deps.Backend),
		export.WithOnUpdate(func(j *export.Job) {
			s.emit(Event{Type: EventExport, Export: j})
		}),
	)
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Handle returns the loaded media.
func (s *Session) Handle() (*media.Handle, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cur == nil {
		return nil, false
	}
	return s.cur.handle, true
}

// Load replaces the session's media with an upload. The declared content
// type and the sniffed one must both describe a video; otherwise a
// LoadError wrapping media.ErrNotVideo is returned and the current media is
// kept. Any other failure leaves the session with nothing loaded.
func (s *Session) Load(ctx context.Context, name, contentType string, r io.Reader) (*media.Handle, error) {
	detected, replay, err := media.DetectType(r)
	if err != nil {
		return nil, &LoadError{Name: name, Err: err}
	}
	if err := media.ValidateVideo(contentType, detected); err != nil {
		return nil, &LoadError{Name: name, Err: err}
	}

	s.loadMu.Lock()
	defer s.loadMu.Unlock()
	if err := s.teardown(ctx); err != nil {
		return nil, err
	}

	path, err := s.deps.Store.SaveTemp(ctx, "upload_"+name, replay)
	if err != nil {
		return nil, s.loadFailed(name, err)
	}
	return s.open(ctx, name, detected, path, true)
}

// LoadPath loads a local file in place without copying it.
func (s *Session) LoadPath(ctx context.Context, path string) (*media.Handle, error) {
	name := filepath.Base(path)
	f, err := os.Open(path) // #nosec G304 - path is chosen by the local user
	if err != nil {
		return nil, &LoadError{Name: name, Err: err}
	}
	detected, _, err := media.DetectType(f)
	_ = f.Close()
	if err != nil {
		return nil, &LoadError{Name: name, Err: err}
	}
	if err := media.ValidateVideo("", detected); err != nil {
		return nil, &LoadError{Name: name, Err: err}
	}

	s.loadMu.Lock()
	defer s.loadMu.Unlock()
	if err := s.teardown(ctx); err != nil {
		return nil, err
	}
	return s.open(ctx, name, detected, path, false)
}

// Unload releases the media and returns to the empty state.
func (s *Session) Unload(ctx context.Context) error {
	s.loadMu.Lock()
	defer s.loadMu.Unlock()
	if err := s.teardown(ctx); err != nil {
		return err
	}
	s.emit(Event{Type: EventState, State: timeline.StateIdle})
	return nil
}

// Close releases everything, including delivered exports. The session
// cannot be used afterwards.
func (s *Session) Close(ctx context.Context) error {
	s.loadMu.Lock()
	defer s.loadMu.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	err := s.teardown(ctx)
	if cerr := s.exporter.Close(context.WithoutCancel(ctx)); cerr != nil {
		err = errors.Join(err, cerr)
	}

	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.subMu.Lock()
	s.subs = make(map[int]func(Event))
	s.subMu.Unlock()

	s.logger.Info("session closed")
	return err
}

func (s *Session) open(ctx context.Context, name, contentType, path string, owned bool) (*media.Handle, error) {
	h, err := s.deps.Prober.Probe(ctx, path)
	if err != nil {
		if owned {
			s.cleanup(path)
		}
		return nil, s.loadFailed(name, err)
	}
	h.Name = name
	h.ContentType = contentType

	mapper, err := h.Mapper()
	if err != nil {
		if owned {
			s.cleanup(path)
		}
		return nil, s.loadFailed(name, err)
	}
	if err := s.tl.Load(h.Duration); err != nil {
		if owned {
			s.cleanup(path)
		}
		return nil, s.loadFailed(name, err)
	}

	queue := decoder.New(media.NewFrameSource(s.deps.Extractor, h, s.cfg.FrameWidth), s.logger)
	thumbs := thumbnail.New(queue,
		thumbnail.WithMaxCount(s.cfg.ThumbnailMax),
		thumbnail.WithLogger(s.logger),
	)
	ctrl := playback.New(queue, mapper,
		playback.WithTick(s.cfg.Tick),
		playback.WithLogger(s.logger),
	)

	l := &loaded{handle: h, owned: owned, queue: queue, ctrl: ctrl, thumbs: thumbs}
	ctrl.Subscribe(func(p playback.Position) {
		s.tl.SetPlayhead(p.Time)
		ev := Event{Type: EventPosition, Position: &p}
		if e, ok := thumbs.Nearest(p.Frame); ok {
			ev.Thumbnail = &e.Index
		}
		s.emit(ev)
	})

	s.mu.Lock()
	s.cur = l
	s.mu.Unlock()

	s.logger.Info("media loaded",
		slog.String("name", name),
		slog.String("content_type", contentType),
		slog.Float64("duration", h.Duration),
		slog.Float64("fps", h.FrameRate),
		slog.Bool("fps_estimated", h.FrameRateEstimated),
	)
	s.emit(Event{Type: EventState, State: timeline.StateReady})

	s.startThumbnails(l, min(s.cfg.ThumbnailCount, s.cfg.ThumbnailMax))
	return h, nil
}

// GenerateThumbnails regenerates the strip with count entries.
func (s *Session) GenerateThumbnails(count int) error {
	l, err := s.media()
	if err != nil {
		return err
	}
	if count < 1 || count > l.thumbs.MaxCount() {
		return fmt.Errorf("%w: %d not in [1, %d]", thumbnail.ErrInvalidCount, count, l.thumbs.MaxCount())
	}
	s.stopThumbnails(l)
	s.startThumbnails(l, count)
	return nil
}

func (s *Session) startThumbnails(l *loaded, count int) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	s.mu.Lock()
	l.cancelThumbs = cancel
	l.thumbsDone = done
	s.mu.Unlock()

	go func() {
		defer close(done)
		defer cancel()
		entries, err := l.thumbs.Generate(ctx, l.handle, count)
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Warn("thumbnail generation failed", slog.String("error", err.Error()))
		}
		placeholders := 0
		for _, e := range entries {
			if e.Placeholder {
				placeholders++
			}
		}
		s.logger.Debug("thumbnail generation finished",
			slog.Int("entries", len(entries)),
			slog.Int("placeholders", placeholders),
		)
		st := l.thumbs.Status()
		s.emit(Event{Type: EventThumbnails, Thumbnails: &st})
	}()
}

func (s *Session) stopThumbnails(l *loaded) {
	s.mu.RLock()
	cancel, done := l.cancelThumbs, l.thumbsDone
	s.mu.RUnlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// teardown cancels background work and releases the current media.
// Callers hold loadMu.
func (s *Session) teardown(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	l := s.cur
	s.cur = nil
	s.mu.Unlock()

	s.exporter.Cancel()
	s.tl.Unload()
	if l == nil {
		return nil
	}

	s.stopThumbnails(l)
	l.thumbs.Invalidate()
	l.ctrl.Close()
	if err := l.queue.Close(); err != nil {
		s.logger.Warn("failed to close decoder", slog.String("error", err.Error()))
	}
	if l.owned {
		if err := s.deps.Store.CleanupTemp(context.WithoutCancel(ctx), []string{l.handle.Path}); err != nil {
			s.logger.Warn("failed to remove upload",
				slog.String("path", l.handle.Path),
				slog.String("error", err.Error()),
			)
		}
	}
	s.logger.Debug("media released", slog.String("name", l.handle.Name))
	return nil
}

func (s *Session) loadFailed(name string, err error) error {
	s.tl.Unload()
	s.logger.Warn("media load failed",
		slog.String("name", name),
		slog.String("error", err.Error()),
	)
	s.emit(Event{Type: EventState, State: timeline.StateIdle, Error: err.Error()})
	return &LoadError{Name: name, Err: err}
}

func (s *Session) cleanup(path string) {
	if err := s.deps.Store.CleanupTemp(context.Background(), []string{path}); err != nil {
		s.logger.Warn("failed to remove upload",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
	}
}

// media returns the current media or ErrNotReady.
func (s *Session) media() (*loaded, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	if s.cur == nil {
		return nil, ErrNotReady
	}
	return s.cur, nil
}
