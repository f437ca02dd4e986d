package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/freecut/internal/export"
	"github.com/maauso/freecut/internal/media"
	"github.com/maauso/freecut/internal/storage"
	"github.com/maauso/freecut/internal/thumbnail"
	"github.com/maauso/freecut/internal/timeline"
	"github.com/maauso/freecut/internal/transcode"
)

// upload builds a sniffable mp4 whose payload tells fakeProber what to report.
func upload(payload string) []byte {
	head := []byte{
		0x00, 0x00, 0x00, 0x18, 'f', 't', 'y', 'p',
		'i', 's', 'o', 'm', 0x00, 0x00, 0x02, 0x00,
		'i', 's', 'o', 'm', 'm', 'p', '4', '1',
	}
	return append(append(head, make([]byte, 64)...), payload...)
}

// fakeProber reports 120s at 30fps unless the file says "corrupt" or
// carries a "duration=N" payload.
type fakeProber struct{}

func (fakeProber) Probe(_ context.Context, path string) (*media.Handle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if bytes.Contains(data, []byte("corrupt")) {
		return nil, media.ErrNoVideoStream
	}
	duration := 120.0
	if i := bytes.Index(data, []byte("duration=")); i >= 0 {
		_, _ = fmt.Sscanf(string(data[i:]), "duration=%g", &duration)
	}
	return &media.Handle{Path: path, Duration: duration, FrameRate: 30, Width: 640, Height: 360}, nil
}

type fakeExtractor struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeExtractor) ExtractFrame(_ context.Context, _ string, t float64, _ int) ([]byte, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return []byte(fmt.Sprintf("frame@%.3f", t)), nil
}

type fixture struct {
	s     *Session
	store *storage.LocalStorage
}

func newFixture(t *testing.T, step time.Duration) fixture {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.ThumbnailCount = 5
	cfg.Tick = 5 * time.Millisecond

	s := New(Deps{
		Prober:     fakeProber{},
		Extractor:  &fakeExtractor{},
		Transcoder: transcode.NewSimulated(store, step, nil),
		Store:      store,
		Backend:    transcode.BackendSimulated,
	}, cfg, nil)
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return fixture{s: s, store: store}
}

func load(t *testing.T, s *Session, payload string) *media.Handle {
	t.Helper()
	h, err := s.Load(context.Background(), "clip.mp4", "video/mp4", bytes.NewReader(upload(payload)))
	require.NoError(t, err)
	return h
}

func TestLoad(t *testing.T) {
	fx := newFixture(t, time.Millisecond)
	s := fx.s

	var mu sync.Mutex
	var events []Event
	s.Subscribe(func(ev Event) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	})

	h := load(t, s, "")
	assert.Equal(t, "clip.mp4", h.Name)
	assert.Equal(t, "video/mp4", h.ContentType)
	assert.Equal(t, 120.0, h.Duration)

	snap := s.Snapshot(context.Background())
	assert.Equal(t, timeline.StateReady, snap.State)
	assert.Equal(t, 100, snap.Zoom)
	require.NotNil(t, snap.Request)
	assert.Equal(t, export.Request{StartTime: 0, EndTime: 120, DurationSeconds: 120}, *snap.Request)

	require.Eventually(t, func() bool {
		_, st, err := s.Thumbnails()
		return err == nil && st.State == thumbnail.StateComplete
	}, 2*time.Second, time.Millisecond)

	entries, _, err := s.Thumbnails()
	require.NoError(t, err)
	require.Len(t, entries, 5)
	assert.Equal(t, 24.0, entries[1].SampleTime)

	mu.Lock()
	defer mu.Unlock()
	var types []EventType
	for _, ev := range events {
		types = append(types, ev.Type)
	}
	assert.Contains(t, types, EventState)
	assert.Contains(t, types, EventThumbnails)
}

func TestLoad_RejectsNonVideo(t *testing.T) {
	fx := newFixture(t, time.Millisecond)
	s := fx.s
	first := load(t, s, "")

	_, err := s.Load(context.Background(), "notes.txt", "text/plain", strings.NewReader("hello"))
	var le *LoadError
	require.ErrorAs(t, err, &le)
	assert.ErrorIs(t, err, media.ErrNotVideo)
	assert.Equal(t, "notes.txt", le.Name)

	h, ok := s.Handle()
	require.True(t, ok, "a rejected upload keeps the current media")
	assert.Same(t, first, h)
}

func TestLoad_ProbeFailureRevertsToIdle(t *testing.T) {
	fx := newFixture(t, time.Millisecond)
	s := fx.s
	load(t, s, "")
	_, err := s.MarkIn()
	require.NoError(t, err)

	_, err = s.Load(context.Background(), "bad.mp4", "", bytes.NewReader(upload("corrupt")))
	var le *LoadError
	require.ErrorAs(t, err, &le)
	assert.ErrorIs(t, err, media.ErrNoVideoStream)

	snap := s.Snapshot(context.Background())
	assert.Equal(t, timeline.StateIdle, snap.State)
	assert.Nil(t, snap.Media)
	assert.Equal(t, timeline.TrimRange{}, snap.Range, "no marks retained")

	_, _, err = s.Thumbnails()
	assert.ErrorIs(t, err, ErrNotReady)
	_, err = s.Seek(context.Background(), 1)
	assert.ErrorIs(t, err, ErrNotReady)

	uploads, _ := os.ReadDir(fx.store.TempDir())
	assert.Empty(t, uploads, "uploads are removed")
}

func TestMarks_ResetPolicyScenario(t *testing.T) {
	fx := newFixture(t, time.Millisecond)
	s := fx.s
	load(t, s, "")

	_, err := s.SetMark(timeline.EdgeEnd, 5)
	require.NoError(t, err)
	rng, err := s.SetMark(timeline.EdgeStart, 10)
	require.NoError(t, err)
	assert.False(t, rng.End.Set, "end before the new start is cleared")

	req, err := s.ExportRequest()
	require.NoError(t, err)
	assert.Equal(t, export.Request{StartTime: 10, EndTime: 120, DurationSeconds: 110}, req)

	_, err = s.SetMark("middle", 3)
	assert.ErrorIs(t, err, timeline.ErrUnknownEdge)
}

func TestHandleKey(t *testing.T) {
	fx := newFixture(t, time.Millisecond)
	s := fx.s
	load(t, s, "")
	ctx := context.Background()

	_, err := s.Seek(ctx, 2)
	require.NoError(t, err)

	require.NoError(t, s.HandleKey(ctx, KeyArrowRight))
	pos, err := s.Position()
	require.NoError(t, err)
	assert.Equal(t, 61, pos.Frame)

	require.NoError(t, s.HandleKey(ctx, "left"))
	pos, _ = s.Position()
	assert.Equal(t, 60, pos.Frame)

	require.NoError(t, s.HandleKey(ctx, KeyMarkIn))
	assert.Equal(t, timeline.At(2), s.Range().Start)

	_, _ = s.Seek(ctx, 1)
	require.NoError(t, s.HandleKey(ctx, KeyMarkOut))
	assert.False(t, s.Range().End.Set, "mark out before mark in is not kept")

	require.NoError(t, s.HandleKey(ctx, "space"))
	pos, _ = s.Position()
	assert.True(t, pos.Playing)
	require.NoError(t, s.HandleKey(ctx, KeySpace))
	pos, _ = s.Position()
	assert.False(t, pos.Playing)

	assert.ErrorIs(t, s.HandleKey(ctx, "q"), ErrUnknownKey)
}

func TestDragMarkScrubsPlayhead(t *testing.T) {
	fx := newFixture(t, time.Millisecond)
	s := fx.s
	load(t, s, "")

	_, err := s.PointerDown(timeline.TargetMarkStart, 0)
	require.NoError(t, err)
	assert.Equal(t, timeline.StateDragging, s.Snapshot(context.Background()).State)

	u, err := s.PointerMove(100)
	require.NoError(t, err)
	assert.InDelta(t, 12.0, u.Seconds, 1e-9)
	assert.True(t, u.Seek)
	s.PointerUp()

	assert.Equal(t, timeline.StateReady, s.Snapshot(context.Background()).State)
	assert.InDelta(t, 12.0, s.Range().Start.Seconds, 1e-9)
	require.Eventually(t, func() bool {
		pos, _ := s.Position()
		return pos.Time > 11.99 && pos.Time < 12.01
	}, time.Second, time.Millisecond)
}

func TestClickSeekAndZoom(t *testing.T) {
	fx := newFixture(t, time.Millisecond)
	s := fx.s
	load(t, s, "")
	ctx := context.Background()

	pos, err := s.ClickSeek(ctx, 500)
	require.NoError(t, err)
	assert.InDelta(t, 60.0, pos.Time, 1e-9)

	assert.Equal(t, 200, s.SetZoom(210))
	pos, err = s.ClickSeek(ctx, 500)
	require.NoError(t, err)
	assert.InDelta(t, 30.0, pos.Time, 1e-9, "zoom rescales pixels, not times")
	assert.Equal(t, 225, s.ZoomIn())
	assert.Equal(t, 200, s.ZoomOut())
}

func TestSeekToThumbnail(t *testing.T) {
	fx := newFixture(t, time.Millisecond)
	s := fx.s
	load(t, s, "")

	require.Eventually(t, func() bool {
		_, st, _ := s.Thumbnails()
		return st.State == thumbnail.StateComplete
	}, 2*time.Second, time.Millisecond)

	pos, err := s.SeekToThumbnail(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, 1440, pos.Frame)
	assert.Equal(t, 2, s.Snapshot(context.Background()).Highlight)

	_, err = s.SeekToThumbnail(context.Background(), 99)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGenerateThumbnails(t *testing.T) {
	fx := newFixture(t, time.Millisecond)
	s := fx.s
	load(t, s, "")

	assert.ErrorIs(t, s.GenerateThumbnails(0), thumbnail.ErrInvalidCount)
	require.NoError(t, s.GenerateThumbnails(3))
	require.Eventually(t, func() bool {
		entries, st, _ := s.Thumbnails()
		return st.State == thumbnail.StateComplete && len(entries) == 3
	}, 2*time.Second, time.Millisecond)
}

func TestFrame(t *testing.T) {
	fx := newFixture(t, time.Millisecond)
	s := fx.s
	load(t, s, "")

	_, err := s.Seek(context.Background(), 3)
	require.NoError(t, err)
	f, err := s.Frame(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "frame@3.000", string(f.Image))
}

func TestExport(t *testing.T) {
	fx := newFixture(t, time.Millisecond)
	s := fx.s
	load(t, s, "")
	ctx := context.Background()

	var mu sync.Mutex
	var progress []int
	s.Subscribe(func(ev Event) {
		if ev.Type == EventExport {
			mu.Lock()
			progress = append(progress, ev.Export.Progress)
			mu.Unlock()
		}
	})

	_, err := s.SetMark(timeline.EdgeStart, 10)
	require.NoError(t, err)
	job, err := s.Export(ctx, export.FormatGIF, export.Options{})
	require.NoError(t, err)

	final, err := s.WaitExport(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, export.StatusCompleted, final.Status)
	assert.Equal(t, "freecut-edit.gif", final.OutputName)
	assert.FileExists(t, final.OutputPath)
	assert.Equal(t, transcode.BackendSimulated, final.Backend)

	mu.Lock()
	assert.NotEmpty(t, progress)
	mu.Unlock()

	jobs, err := s.Exports(ctx)
	require.NoError(t, err)
	assert.Len(t, jobs, 1)

	// zero-length exports are refused
	_, err = s.SetMark(timeline.EdgeEnd, 10)
	require.NoError(t, err)
	_, err = s.Export(ctx, export.FormatMP4, export.Options{})
	assert.ErrorIs(t, err, export.ErrNoOpExport)
}

func TestNewLoadCancelsExport(t *testing.T) {
	fx := newFixture(t, 50*time.Millisecond)
	s := fx.s
	load(t, s, "")
	ctx := context.Background()

	job, err := s.Export(ctx, export.FormatMP4, export.Options{})
	require.NoError(t, err)
	_, err = s.Export(ctx, export.FormatMP4, export.Options{})
	require.ErrorIs(t, err, export.ErrExportInProgress)

	load(t, s, "duration=30")

	final, err := s.ExportJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, export.StatusCancelled, final.Status)

	h, _ := s.Handle()
	assert.Equal(t, 30.0, h.Duration)
	assert.Equal(t, timeline.TrimRange{}, s.Range())
}

func TestLoadPath(t *testing.T) {
	fx := newFixture(t, time.Millisecond)
	path := fx.store.TempDir() + "/local.mp4"
	require.NoError(t, os.WriteFile(path, upload("duration=8"), 0o600))

	h, err := fx.s.LoadPath(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "local.mp4", h.Name)
	assert.Equal(t, 8.0, h.Duration)

	require.NoError(t, fx.s.Unload(context.Background()))
	assert.FileExists(t, path, "files loaded in place are never removed")
}

func TestClose(t *testing.T) {
	fx := newFixture(t, time.Millisecond)
	s := fx.s
	load(t, s, "")

	require.NoError(t, s.Close(context.Background()))
	require.NoError(t, s.Close(context.Background()), "close is idempotent")

	_, err := s.Seek(context.Background(), 1)
	assert.ErrorIs(t, err, ErrClosed)
	_, err = s.Load(context.Background(), "clip.mp4", "video/mp4", bytes.NewReader(upload("")))
	assert.ErrorIs(t, err, ErrClosed)
}

func TestActions_NotReady(t *testing.T) {
	fx := newFixture(t, time.Millisecond)
	s := fx.s
	ctx := context.Background()

	assert.ErrorIs(t, s.Play(), ErrNotReady)
	_, err := s.StepFrame(ctx, 1)
	assert.ErrorIs(t, err, ErrNotReady)
	_, err = s.PointerDown(timeline.TargetPlayhead, 0)
	assert.ErrorIs(t, err, ErrNotReady)
	_, err = s.Export(ctx, export.FormatMP4, export.Options{})
	assert.ErrorIs(t, err, ErrNotReady)
	_, err = s.MarkIn()
	assert.ErrorIs(t, err, ErrNotReady)

	var le *LoadError
	assert.False(t, errors.As(err, &le))
	_, err = s.Frame(ctx)
	assert.ErrorIs(t, err, ErrNotReady)
}
