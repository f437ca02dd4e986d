package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"

	"github.com/maauso/freecut/internal/export"
	"github.com/maauso/freecut/internal/session"
	"github.com/maauso/freecut/internal/storage"
	"github.com/maauso/freecut/internal/thumbnail"
	"github.com/maauso/freecut/internal/timeline"
)

// defaultUploadName is used when a raw upload carries no name.
const defaultUploadName = "upload"

// ErrNoFilePart is returned for multipart uploads without a "file" part.
var ErrNoFilePart = errors.New("multipart body has no file part")

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	registry  *session.Registry
	store     storage.Storage
	validator *validator.Validate
	logger    *slog.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(registry *session.Registry, store storage.Storage, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		registry:  registry,
		store:     store,
		validator: validator.New(),
		logger:    logger,
	}
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Sessions: h.registry.Len()})
}

// CreateSession handles POST /sessions.
func (h *Handlers) CreateSession(w http.ResponseWriter, r *http.Request) {
	s := h.registry.Create()
	writeJSON(w, http.StatusCreated, h.snapshot(r, s))
}

// GetSession handles GET /sessions/{id}.
func (h *Handlers) GetSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.snapshot(r, s))
}

// DeleteSession handles DELETE /sessions/{id}.
func (h *Handlers) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.registry.Delete(chi.URLParam(r, "id")); err != nil {
		h.fail(w, "delete session", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UploadMedia handles PUT /sessions/{id}/media. The body is either a
// multipart form with a "file" part or the raw media bytes.
func (h *Handlers) UploadMedia(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	name, contentType, body, err := uploadBody(r)
	if err != nil {
		h.logger.Warn("invalid upload", slog.String("error", err.Error()))
		writeError(w, http.StatusBadRequest, err.Error(), "INVALID_UPLOAD")
		return
	}

	handle, err := s.Load(r.Context(), name, contentType, body)
	if err != nil {
		h.fail(w, "load media", err)
		return
	}

	h.logger.Info("media loaded",
		slog.String("session_id", s.ID()),
		slog.String("name", handle.Name),
		slog.Float64("duration", handle.Duration),
		slog.Float64("fps", handle.FrameRate),
	)
	writeJSON(w, http.StatusOK, h.snapshot(r, s))
}

// GetFrame handles GET /sessions/{id}/frame.
func (h *Handlers) GetFrame(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	f, err := s.Frame(r.Context())
	if err != nil {
		h.fail(w, "render frame", err)
		return
	}
	w.Header().Set("X-Frame-Time", strconv.FormatFloat(f.Time, 'f', 3, 64))
	writeImage(w, f.Image)
}

// ListThumbnails handles GET /sessions/{id}/thumbnails.
func (h *Handlers) ListThumbnails(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	entries, status, err := s.Thumbnails()
	if err != nil {
		h.fail(w, "list thumbnails", err)
		return
	}
	writeJSON(w, http.StatusOK, ThumbnailsResponse{
		Status: status,
		Entries: lo.Map(entries, func(e thumbnail.Entry, _ int) ThumbnailResponse {
			resp := ThumbnailResponse{Entry: e}
			if !e.Placeholder {
				resp.ImageURL = fmt.Sprintf("/sessions/%s/thumbnails/%d", s.ID(), e.Index)
			}
			return resp
		}),
	})
}

// GenerateThumbnails handles POST /sessions/{id}/thumbnails.
func (h *Handlers) GenerateThumbnails(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req ThumbnailsRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := s.GenerateThumbnails(req.Count); err != nil {
		h.fail(w, "generate thumbnails", err)
		return
	}
	_, status, _ := s.Thumbnails()
	writeJSON(w, http.StatusAccepted, status)
}

// GetThumbnail handles GET /sessions/{id}/thumbnails/{index}.
func (h *Handlers) GetThumbnail(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	index, ok := h.index(w, r)
	if !ok {
		return
	}
	e, found, err := s.Thumbnail(index)
	if err != nil {
		h.fail(w, "get thumbnail", err)
		return
	}
	if !found || e.Placeholder {
		writeError(w, http.StatusNotFound, "thumbnail not available", "THUMBNAIL_NOT_FOUND")
		return
	}
	writeImage(w, e.Image)
}

// SeekThumbnail handles POST /sessions/{id}/thumbnails/{index}/seek.
func (h *Handlers) SeekThumbnail(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	index, ok := h.index(w, r)
	if !ok {
		return
	}
	pos, err := s.SeekToThumbnail(r.Context(), index)
	if err != nil {
		h.fail(w, "seek to thumbnail", err)
		return
	}
	writeJSON(w, http.StatusOK, pos)
}

// Playback handles POST /sessions/{id}/playback.
func (h *Handlers) Playback(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req PlaybackRequest
	if !h.decode(w, r, &req) {
		return
	}

	var err error
	switch req.Action {
	case ActionPlay:
		err = s.Play()
	case ActionPause:
		err = s.Pause()
	case ActionToggle:
		_, err = s.Toggle()
	case ActionSeek:
		_, err = s.Seek(r.Context(), *req.Time)
	case ActionStep:
		_, err = s.StepFrame(r.Context(), req.Delta)
	case ActionFrame:
		_, err = s.GoToFrame(r.Context(), *req.Frame)
	}
	if err != nil {
		h.fail(w, "playback "+req.Action, err)
		return
	}

	pos, err := s.Position()
	if err != nil {
		h.fail(w, "playback position", err)
		return
	}
	writeJSON(w, http.StatusOK, pos)
}

// TimelineClick handles POST /sessions/{id}/timeline/click.
func (h *Handlers) TimelineClick(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req ClickRequest
	if !h.decode(w, r, &req) {
		return
	}
	pos, err := s.ClickSeek(r.Context(), req.X)
	if err != nil {
		h.fail(w, "timeline click", err)
		return
	}
	writeJSON(w, http.StatusOK, pos)
}

// Pointer handles POST /sessions/{id}/pointer.
func (h *Handlers) Pointer(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req PointerRequest
	if !h.decode(w, r, &req) {
		return
	}

	var resp PointerResponse
	switch req.Phase {
	case PhaseDown:
		d, err := s.PointerDown(timeline.Target(req.Target), req.X)
		if err != nil {
			h.fail(w, "pointer down", err)
			return
		}
		resp.Drag = &d
	case PhaseMove:
		u, err := s.PointerMove(req.X)
		if err != nil {
			h.fail(w, "pointer move", err)
			return
		}
		resp.Update = &u
	case PhaseUp:
		s.PointerUp()
	case PhaseCancel:
		s.PointerCancel()
	}
	resp.State = s.State()
	writeJSON(w, http.StatusOK, resp)
}

// Marks handles POST /sessions/{id}/marks.
func (h *Handlers) Marks(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req MarkRequest
	if !h.decode(w, r, &req) {
		return
	}

	var (
		rng timeline.TrimRange
		err error
	)
	switch req.Action {
	case MarkIn:
		rng, err = s.MarkIn()
	case MarkOut:
		rng, err = s.MarkOut()
	case MarkSet:
		rng, err = s.SetMark(timeline.Edge(req.Edge), *req.Time)
	case MarkQuick:
		rng, err = s.QuickTrim(timeline.Edge(req.Edge), req.Seconds)
	case MarkClear:
		rng = s.ClearMarks()
	}
	if err != nil {
		h.fail(w, "mark "+req.Action, err)
		return
	}

	resp := RangeResponse{Range: rng}
	if preview, err := s.ExportRequest(); err == nil {
		resp.Request = &preview
	}
	writeJSON(w, http.StatusOK, resp)
}

// Keys handles POST /sessions/{id}/keys.
func (h *Handlers) Keys(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req KeyRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := s.HandleKey(r.Context(), req.Key); err != nil {
		h.fail(w, "handle key", err)
		return
	}
	writeJSON(w, http.StatusOK, KeyResponse{Key: req.Key, Session: h.snapshot(r, s)})
}

// Zoom handles PUT /sessions/{id}/zoom.
func (h *Handlers) Zoom(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req ZoomRequest
	if !h.decode(w, r, &req) {
		return
	}

	var zoom int
	switch {
	case req.Level != nil:
		zoom = s.SetZoom(*req.Level)
	case req.Step == "in":
		zoom = s.ZoomIn()
	default:
		zoom = s.ZoomOut()
	}
	writeJSON(w, http.StatusOK, ZoomResponse{Zoom: zoom, Offsets: s.Offsets()})
}

// CreateExport handles POST /sessions/{id}/exports.
func (h *Handlers) CreateExport(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req CreateExportRequest
	if r.ContentLength != 0 && !h.decode(w, r, &req) {
		return
	}
	format, err := export.ParseFormat(req.Format)
	if err != nil {
		h.fail(w, "parse export format", err)
		return
	}

	job, err := s.Export(r.Context(), format, export.Options{Publish: req.Publish})
	if err != nil {
		h.fail(w, "start export", err)
		return
	}

	h.logger.Info("export started",
		slog.String("session_id", s.ID()),
		slog.String("job_id", job.ID),
		slog.String("format", string(format)),
		slog.Float64("start", job.Request.StartTime),
		slog.Float64("end", job.Request.EndTime),
	)
	writeJSON(w, http.StatusAccepted, toJobResponse(s.ID(), job))
}

// ListExports handles GET /sessions/{id}/exports.
func (h *Handlers) ListExports(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	jobs, err := s.Exports(r.Context())
	if err != nil {
		h.fail(w, "list exports", err)
		return
	}
	writeJSON(w, http.StatusOK, lo.Map(jobs, func(j *export.Job, _ int) JobResponse {
		return toJobResponse(s.ID(), j)
	}))
}

// CancelExport handles DELETE /sessions/{id}/exports.
func (h *Handlers) CancelExport(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	s.CancelExport()
	w.WriteHeader(http.StatusNoContent)
}

// GetExport handles GET /sessions/{id}/exports/{jobID}.
func (h *Handlers) GetExport(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	job, err := s.ExportJob(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		h.fail(w, "get export", err)
		return
	}
	writeJSON(w, http.StatusOK, toJobResponse(s.ID(), job))
}

// DeleteExport handles DELETE /sessions/{id}/exports/{jobID}.
func (h *Handlers) DeleteExport(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := s.RemoveExport(r.Context(), chi.URLParam(r, "jobID")); err != nil {
		h.fail(w, "delete export", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DownloadExport handles GET /sessions/{id}/exports/{jobID}/download.
// Published exports redirect to their URL.
func (h *Handlers) DownloadExport(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	jobID := chi.URLParam(r, "jobID")
	job, err := s.ExportJob(r.Context(), jobID)
	if err != nil {
		h.fail(w, "get export", err)
		return
	}
	if job.Status != export.StatusCompleted {
		writeError(w, http.StatusConflict, "export is "+string(job.Status), "EXPORT_NOT_READY")
		return
	}
	if job.URL != "" {
		http.Redirect(w, r, job.URL, http.StatusFound)
		return
	}
	if job.OutputPath == "" {
		writeError(w, http.StatusGone, "export output was removed", "EXPORT_GONE")
		return
	}

	f, err := h.store.Open(r.Context(), job.OutputPath)
	if err != nil {
		h.logger.Error("failed to open export output",
			slog.String("job_id", jobID),
			slog.String("path", job.OutputPath),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusGone, "export output is not available", "EXPORT_GONE")
		return
	}
	defer func() { _ = f.Close() }()

	w.Header().Set("Content-Type", job.Format.ContentType())
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": job.OutputName}))
	if job.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(job.Size, 10))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, f); err != nil {
		h.logger.Warn("export download interrupted",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
	}
}

// session resolves the {id} path parameter, writing a 404 when it is unknown.
func (h *Handlers) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sid := chi.URLParam(r, "id")
	s, err := h.registry.Get(sid)
	if err != nil {
		writeError(w, http.StatusNotFound, "session not found", "SESSION_NOT_FOUND")
		return nil, false
	}
	return s, true
}

func (h *Handlers) index(w http.ResponseWriter, r *http.Request) (int, bool) {
	i, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil || i < 0 {
		writeError(w, http.StatusBadRequest, "index must be a non-negative integer", "INVALID_INDEX")
		return 0, false
	}
	return i, true
}

// decode reads and validates a JSON body into dst.
func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.logger.Warn("failed to decode request body",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return false
	}
	if err := h.validator.Struct(dst); err != nil {
		h.logger.Warn("request validation failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return false
	}
	return true
}

// fail logs err and writes the mapped error response.
func (h *Handlers) fail(w http.ResponseWriter, op string, err error) {
	status, code := statusFor(err)
	attrs := []any{
		slog.String("op", op),
		slog.String("code", code),
		slog.String("error", err.Error()),
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", attrs...)
	} else {
		h.logger.Debug("request rejected", attrs...)
	}
	writeError(w, status, err.Error(), code)
}

func (h *Handlers) snapshot(r *http.Request, s *session.Session) SessionResponse {
	snap := s.Snapshot(r.Context())
	resp := SessionResponse{
		ID:         snap.ID,
		State:      snap.State,
		Media:      toMediaResponse(snap.Media),
		Position:   snap.Position,
		Range:      snap.Range,
		Request:    snap.Request,
		Zoom:       snap.Zoom,
		Offsets:    snap.Offsets,
		Drag:       snap.Drag,
		Thumbnails: snap.Thumbs,
		Highlight:  snap.Highlight,
	}
	if snap.Export != nil {
		j := toJobResponse(snap.ID, snap.Export)
		resp.Export = &j
	}
	return resp
}

func toJobResponse(sessionID string, j *export.Job) JobResponse {
	resp := JobResponse{
		ID:        j.ID,
		Status:    string(j.Status),
		Format:    string(j.Format),
		Progress:  j.Progress,
		Request:   j.Request,
		Backend:   j.Backend,
		Error:     j.Error,
		FileName:  j.OutputName,
		Size:      j.Size,
		CreatedAt: j.CreatedAt,
	}
	if j.Status == export.StatusCompleted {
		resp.DownloadURL = j.URL
		if resp.DownloadURL == "" && j.OutputPath != "" {
			resp.DownloadURL = fmt.Sprintf("/sessions/%s/exports/%s/download", sessionID, j.ID)
		}
	}
	return resp
}

// uploadBody returns the media stream of an upload request.
func uploadBody(r *http.Request) (name, contentType string, body io.Reader, err error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		name = r.URL.Query().Get("name")
		if name == "" {
			name = defaultUploadName
		}
		return name, r.Header.Get("Content-Type"), r.Body, nil
	}

	mr, err := r.MultipartReader()
	if err != nil {
		return "", "", nil, fmt.Errorf("read multipart body: %w", err)
	}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return "", "", nil, ErrNoFilePart
		}
		if err != nil {
			return "", "", nil, fmt.Errorf("read multipart body: %w", err)
		}
		if part.FormName() != "file" {
			continue
		}
		name = part.FileName()
		if name == "" {
			name = defaultUploadName
		}
		return name, part.Header.Get("Content-Type"), part, nil
	}
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError writes an error response in the standard format.
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

func writeImage(w http.ResponseWriter, img []byte) {
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Content-Length", strconv.Itoa(len(img)))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(img)
}
