package config

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/sethvargo/go-envconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := LoadWith(context.Background(), envconfig.MapLookuper(map[string]string{}))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "", cfg.TempDir)
	assert.Equal(t, "ffmpeg", cfg.FFmpegPath)
	assert.Equal(t, "ffprobe", cfg.FFprobePath)
	assert.Equal(t, 30.0, cfg.DefaultFPS)
	assert.Equal(t, 10, cfg.ThumbnailCount)
	assert.Equal(t, 100, cfg.ThumbnailMax)
	assert.Equal(t, 100, cfg.ZoomMin)
	assert.Equal(t, 300, cfg.ZoomMax)
	assert.Equal(t, 25, cfg.ZoomStep)
	assert.Equal(t, 40*time.Millisecond, cfg.PlaybackTick)
	assert.Equal(t, "ffmpeg", cfg.ExportBackend)
	assert.Equal(t, time.Hour, cfg.SessionTTL)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.S3Enabled())
}

func TestLoad_CustomValues(t *testing.T) {
	t.Setenv("PORT", "3000")
	t.Setenv("TEMP_DIR", "/custom/temp")
	t.Setenv("EXPORT_BACKEND", "remote")
	t.Setenv("TRANSCODE_URL", "https://transcode.example.com/v1")
	t.Setenv("TRANSCODE_API_KEY", "secret")
	t.Setenv("THUMBNAIL_COUNT", "20")
	t.Setenv("PLAYBACK_TICK", "20ms")
	t.Setenv("S3_BUCKET", "my-bucket")
	t.Setenv("S3_REGION", "us-east-1")
	t.Setenv("AWS_ACCESS_KEY_ID", "access-key")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "secret-key")
	t.Setenv("LOG_FORMAT", "json")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Port)
	assert.Equal(t, "/custom/temp", cfg.TempDir)
	assert.Equal(t, "remote", cfg.ExportBackend)
	assert.Equal(t, "https://transcode.example.com/v1", cfg.TranscodeURL)
	assert.Equal(t, "secret", cfg.TranscodeAPIKey)
	assert.Equal(t, 20, cfg.ThumbnailCount)
	assert.Equal(t, 20*time.Millisecond, cfg.PlaybackTick)
	assert.True(t, cfg.S3Enabled())
	assert.Equal(t, "access-key", cfg.AWSAccessKeyID)
	assert.Equal(t, "json", cfg.LogFormat)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want error
	}{
		{"port not a number", map[string]string{"PORT": "not-a-number"}, nil},
		{"port out of range", map[string]string{"PORT": "70000"}, ErrInvalid},
		{"unknown backend", map[string]string{"EXPORT_BACKEND": "cloud"}, ErrInvalid},
		{"remote without url", map[string]string{"EXPORT_BACKEND": "remote"}, ErrTranscodeURLRequired},
		{"bad transcode url", map[string]string{"TRANSCODE_URL": "not a url"}, ErrInvalid},
		{"count above max", map[string]string{"THUMBNAIL_COUNT": "50", "THUMBNAIL_MAX": "10"}, ErrThumbnailCountTooLarge},
		{"zoom bounds", map[string]string{"ZOOM_MIN": "300", "ZOOM_MAX": "100"}, ErrZoomBounds},
		{"bucket without region", map[string]string{"S3_BUCKET": "b"}, ErrS3Incomplete},
		{"fps too high", map[string]string{"DEFAULT_FPS": "1000"}, ErrInvalid},
		{"log format", map[string]string{"LOG_FORMAT": "xml"}, ErrInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadWith(context.Background(), envconfig.MapLookuper(tt.env))
			require.Error(t, err)
			if tt.want != nil {
				assert.ErrorIs(t, err, tt.want)
			}
		})
	}
}

func TestConfig_S3Enabled(t *testing.T) {
	tests := []struct {
		name     string
		bucket   string
		region   string
		expected bool
	}{
		{"both set", "bucket", "region", true},
		{"only bucket", "bucket", "", false},
		{"only region", "", "region", false},
		{"neither set", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				S3Bucket: tt.bucket,
				S3Region: tt.region,
			}
			assert.Equal(t, tt.expected, cfg.S3Enabled())
		})
	}
}

func TestConfig_Session(t *testing.T) {
	cfg, err := LoadWith(context.Background(), envconfig.MapLookuper(map[string]string{
		"TIMELINE_WIDTH":  "800",
		"THUMBNAIL_WIDTH": "160",
	}))
	require.NoError(t, err)

	sc := cfg.Session()
	assert.Equal(t, 800.0, sc.Timeline.BaseWidth)
	assert.Equal(t, 25, sc.Timeline.ZoomStep)
	assert.Equal(t, 160, sc.FrameWidth)
	assert.Equal(t, 10, sc.ThumbnailCount)
	assert.Equal(t, 40*time.Millisecond, sc.Tick)
	assert.Equal(t, int64(2048)<<20, cfg.MaxUploadBytes())
}

func TestConfig_String(t *testing.T) {
	cfg := &Config{
		Port:            8080,
		TempDir:         "/tmp/test",
		ExportBackend:   "remote",
		TranscodeAPIKey: "super-secret",
		S3Bucket:        "bucket",
		S3Region:        "region",
		LogFormat:       "json",
		LogLevel:        "info",
	}

	str := cfg.String()
	assert.Contains(t, str, "8080")
	assert.Contains(t, str, "remote")
	assert.NotContains(t, str, "super-secret")
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger("json", "warn", &buf)
	logger.Info("hidden")
	logger.Warn("shown", slog.String("k", "v"))

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"shown"`)
	assert.Contains(t, out, `"k":"v"`)
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"unknown", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseLogLevel(tt.input))
		})
	}
}
