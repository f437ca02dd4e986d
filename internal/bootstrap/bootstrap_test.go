package bootstrap

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/sethvargo/go-envconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/freecut/internal/config"
	"github.com/maauso/freecut/internal/storage"
	"github.com/maauso/freecut/internal/transcode"
)

func loadConfig(t *testing.T, env map[string]string) *config.Config {
	t.Helper()
	env["TEMP_DIR"] = t.TempDir()
	cfg, err := config.LoadWith(context.Background(), envconfig.MapLookuper(env))
	require.NoError(t, err)
	return cfg
}

func TestNewDependencies_Backends(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want any
	}{
		{"ffmpeg", map[string]string{}, &transcode.FFmpeg{}},
		{"simulated", map[string]string{"EXPORT_BACKEND": "simulated"}, &transcode.Simulated{}},
		{"remote", map[string]string{"EXPORT_BACKEND": "remote", "TRANSCODE_URL": "http://transcoder.local"}, &transcode.Remote{}},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := NewDependencies(loadConfig(t, tt.env), logger)
			require.NoError(t, err)
			t.Cleanup(func() { _ = d.Close(context.Background()) })

			assert.IsType(t, tt.want, d.deps.Transcoder)
			assert.Equal(t, tt.name, d.deps.Backend)
			assert.IsType(t, &storage.LocalStorage{}, d.Store)
			assert.NotNil(t, d.Processor)
		})
	}
}

func TestDependencies_Sessions(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	d, err := NewDependencies(loadConfig(t, map[string]string{
		"EXPORT_BACKEND": "simulated",
		"SESSION_LIMIT":  "2",
	}), logger)
	require.NoError(t, err)

	a := d.Registry.Create()
	b := d.Registry.Create()
	assert.NotEqual(t, a.ID(), b.ID())
	assert.Equal(t, 2, d.Registry.Len())

	got, err := d.Registry.Get(a.ID())
	require.NoError(t, err)
	assert.Same(t, a, got)

	standalone := d.NewSession()
	assert.NotEmpty(t, standalone.ID())
	assert.Equal(t, 2, d.Registry.Len(), "NewSession does not register")
	require.NoError(t, standalone.Close(context.Background()))

	require.NoError(t, d.Close(context.Background()))
	assert.Zero(t, d.Registry.Len())
}
