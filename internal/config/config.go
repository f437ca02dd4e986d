// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sethvargo/go-envconfig"

	"github.com/maauso/freecut/internal/session"
	"github.com/maauso/freecut/internal/timeline"
)

// Static errors for configuration validation.
var (
	// ErrInvalid wraps struct-tag validation failures.
	ErrInvalid = errors.New("config: invalid value")
	// ErrTranscodeURLRequired is returned when EXPORT_BACKEND=remote has no TRANSCODE_URL.
	ErrTranscodeURLRequired = errors.New("config: TRANSCODE_URL is required for the remote export backend")
	// ErrThumbnailCountTooLarge is returned when THUMBNAIL_COUNT exceeds THUMBNAIL_MAX.
	ErrThumbnailCountTooLarge = errors.New("config: THUMBNAIL_COUNT must not exceed THUMBNAIL_MAX")
	// ErrZoomBounds is returned when ZOOM_MAX is below ZOOM_MIN.
	ErrZoomBounds = errors.New("config: ZOOM_MAX must not be below ZOOM_MIN")
	// ErrS3Incomplete is returned when only one of S3_BUCKET and S3_REGION is set.
	ErrS3Incomplete = errors.New("config: S3_BUCKET and S3_REGION must be set together")
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	Port        int           `env:"PORT, default=8080" json:"port" validate:"min=1,max=65535"`
	MaxUploadMB int64         `env:"MAX_UPLOAD_MB, default=2048" json:"max_upload_mb" validate:"min=1"`
	SessionMax  int           `env:"SESSION_LIMIT, default=16" json:"session_limit" validate:"min=1"`
	SessionTTL  time.Duration `env:"SESSION_TTL, default=1h" json:"session_ttl" validate:"min=1s"`

	// Storage settings
	TempDir string `env:"TEMP_DIR" json:"temp_dir"`

	// Media tools
	FFmpegPath  string  `env:"FFMPEG_PATH, default=ffmpeg" json:"ffmpeg_path" validate:"required"`
	FFprobePath string  `env:"FFPROBE_PATH, default=ffprobe" json:"ffprobe_path" validate:"required"`
	DefaultFPS  float64 `env:"DEFAULT_FPS, default=30" json:"default_fps" validate:"gt=0,lte=240"`

	// Editor settings
	ThumbnailCount int           `env:"THUMBNAIL_COUNT, default=10" json:"thumbnail_count" validate:"min=1"`
	ThumbnailMax   int           `env:"THUMBNAIL_MAX, default=100" json:"thumbnail_max" validate:"min=1,max=1000"`
	ThumbnailWidth int           `env:"THUMBNAIL_WIDTH, default=320" json:"thumbnail_width" validate:"min=16,max=3840"`
	TimelineWidth  float64       `env:"TIMELINE_WIDTH, default=1000" json:"timeline_width" validate:"gt=0"`
	ZoomMin        int           `env:"ZOOM_MIN, default=100" json:"zoom_min" validate:"min=1"`
	ZoomMax        int           `env:"ZOOM_MAX, default=300" json:"zoom_max" validate:"min=1"`
	ZoomStep       int           `env:"ZOOM_STEP, default=25" json:"zoom_step" validate:"min=1"`
	PlaybackTick   time.Duration `env:"PLAYBACK_TICK, default=40ms" json:"playback_tick" validate:"min=1ms"`

	// Export settings
	ExportBackend     string        `env:"EXPORT_BACKEND, default=ffmpeg" json:"export_backend" validate:"oneof=ffmpeg simulated remote"`
	SimulatedStep     time.Duration `env:"SIMULATED_STEP, default=100ms" json:"simulated_step" validate:"min=1ms"`
	TranscodeURL      string        `env:"TRANSCODE_URL" json:"transcode_url,omitempty" validate:"omitempty,url"`
	TranscodeAPIKey   string        `env:"TRANSCODE_API_KEY" json:"-"` // Masked in JSON
	TranscodePollTime time.Duration `env:"TRANSCODE_POLL_INTERVAL, default=2s" json:"transcode_poll_interval" validate:"min=10ms"`

	// Optional S3 settings
	S3Bucket           string `env:"S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Region           string `env:"S3_REGION" json:"s3_region,omitempty"`
	S3Endpoint         string `env:"S3_ENDPOINT" json:"s3_endpoint,omitempty" validate:"omitempty,url"`
	S3Prefix           string `env:"S3_PREFIX" json:"s3_prefix,omitempty"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON

	// Logging settings
	LogFormat string `env:"LOG_FORMAT, default=text" json:"log_format" validate:"oneof=json text JSON TEXT"` // "json" or "text"
	LogLevel  string `env:"LOG_LEVEL, default=info" json:"log_level"`                                         // "debug", "info", "warn", "error"
}

// S3Enabled returns true if S3 configuration is provided.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != "" && c.S3Region != ""
}

// Load reads configuration from environment variables using go-envconfig
// and validates it.
func Load() (*Config, error) {
	return LoadWith(context.Background(), envconfig.OsLookuper())
}

// LoadWith reads configuration from l instead of the process environment.
func LoadWith(ctx context.Context, l envconfig.Lookuper) (*Config, error) {
	cfg := &Config{}
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: cfg, Lookuper: l}); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field ranges and the settings that depend on each other.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if c.ThumbnailCount > c.ThumbnailMax {
		return ErrThumbnailCountTooLarge
	}
	if c.ZoomMax < c.ZoomMin {
		return ErrZoomBounds
	}
	if c.ExportBackend == "remote" && c.TranscodeURL == "" {
		return ErrTranscodeURLRequired
	}
	if (c.S3Bucket == "") != (c.S3Region == "") {
		return ErrS3Incomplete
	}
	return nil
}

// Session returns the per-session editor settings.
func (c *Config) Session() session.Config {
	return session.Config{
		Timeline: timeline.Config{
			BaseWidth: c.TimelineWidth,
			ZoomMin:   c.ZoomMin,
			ZoomMax:   c.ZoomMax,
			ZoomStep:  c.ZoomStep,
		},
		ThumbnailCount: c.ThumbnailCount,
		ThumbnailMax:   c.ThumbnailMax,
		FrameWidth:     c.ThumbnailWidth,
		Tick:           c.PlaybackTick,
	}
}

// MaxUploadBytes returns the upload limit in bytes.
func (c *Config) MaxUploadBytes() int64 {
	return c.MaxUploadMB << 20
}

// NewLogger creates a structured logger based on the configuration.
// When LogFormat is "json", it outputs JSON logs suitable for production.
// Otherwise, it outputs human-readable text logs.
func (c *Config) NewLogger() *slog.Logger {
	return NewLogger(c.LogFormat, c.LogLevel, os.Stdout)
}

// NewLogger builds a text or JSON slog logger writing to w.
func NewLogger(format, level string, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(level)}

	var handler slog.Handler
	if strings.ToLower(format) == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// String returns a string representation of the config with sensitive values masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Port: %d, TempDir: %s, ExportBackend: %s, TranscodeURL: %s, ThumbnailCount: %d, ThumbnailMax: %d, SessionLimit: %d, SessionTTL: %s, S3Bucket: %s, S3Region: %s, LogFormat: %s, LogLevel: %s}",
		c.Port,
		c.TempDir,
		c.ExportBackend,
		c.TranscodeURL,
		c.ThumbnailCount,
		c.ThumbnailMax,
		c.SessionMax,
		c.SessionTTL,
		c.S3Bucket,
		c.S3Region,
		c.LogFormat,
		c.LogLevel,
	)
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
