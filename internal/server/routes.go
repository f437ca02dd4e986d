package server

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Config contains server configuration options.
type Config struct {
	// AllowedOrigins is the list of allowed CORS origins.
	AllowedOrigins []string
	// MaxUploadBytes bounds request bodies; 0 disables the limit.
	MaxUploadBytes int64
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		AllowedOrigins: []string{"*"},
		MaxUploadBytes: 2 << 30,
	}
}

// NewRouter creates a new HTTP router with all routes configured.
func NewRouter(h *Handlers, logger *slog.Logger, cfg Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(RecoveryMiddleware(logger))
	r.Use(LoggingMiddleware(logger))
	r.Use(CORSMiddleware(cfg.AllowedOrigins))
	r.Use(MaxBodyMiddleware(cfg.MaxUploadBytes))

	r.Get("/health", h.Health)

	r.Post("/sessions", h.CreateSession)
	r.Route("/sessions/{id}", func(r chi.Router) {
		r.Get("/", h.GetSession)
		r.Delete("/", h.DeleteSession)
		r.Get("/events", h.Events)

		r.Put("/media", h.UploadMedia)
		r.Get("/frame", h.GetFrame)

		r.Get("/thumbnails", h.ListThumbnails)
		r.Post("/thumbnails", h.GenerateThumbnails)
		r.Get("/thumbnails/{index}", h.GetThumbnail)
		r.Post("/thumbnails/{index}/seek", h.SeekThumbnail)

		r.Post("/playback", h.Playback)
		r.Post("/timeline/click", h.TimelineClick)
		r.Post("/pointer", h.Pointer)
		r.Post("/marks", h.Marks)
		r.Post("/keys", h.Keys)
		r.Put("/zoom", h.Zoom)

		r.Get("/exports", h.ListExports)
		r.Post("/exports", h.CreateExport)
		r.Delete("/exports", h.CancelExport)
		r.Get("/exports/{jobID}", h.GetExport)
		r.Delete("/exports/{jobID}", h.DeleteExport)
		r.Get("/exports/{jobID}/download", h.DownloadExport)
	})

	return r
}
