// Package bootstrap wires the editor's collaborators from configuration.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/maauso/freecut/internal/config"
	"github.com/maauso/freecut/internal/media"
	"github.com/maauso/freecut/internal/session"
	"github.com/maauso/freecut/internal/storage"
	"github.com/maauso/freecut/internal/transcode"
)

// Dependencies holds everything a front-end needs to create sessions.
type Dependencies struct {
	Processor *media.FFmpegProcessor
	Store     storage.Storage
	Registry  *session.Registry

	deps   session.Deps
	cfg    session.Config
	logger *slog.Logger
}

// NewDependencies creates and initializes all dependencies for the application.
func NewDependencies(cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	store, err := initStorage(cfg, logger)
	if err != nil {
		return nil, err
	}

	processor := media.NewFFmpegProcessor(cfg.FFmpegPath,
		media.WithFFprobePath(cfg.FFprobePath),
		media.WithDefaultFPS(cfg.DefaultFPS),
	)
	if !processor.Available() {
		logger.Warn("ffmpeg not found on PATH, probing and previews will fail",
			slog.String("ffmpeg_path", cfg.FFmpegPath),
		)
	}

	tc, err := initTranscoder(cfg, processor, store, logger)
	if err != nil {
		return nil, err
	}

	d := &Dependencies{
		Processor: processor,
		Store:     store,
		deps: session.Deps{
			Prober:     processor,
			Extractor:  processor,
			Transcoder: tc,
			Store:      store,
			Backend:    cfg.ExportBackend,
		},
		cfg:    cfg.Session(),
		logger: logger,
	}
	d.Registry = session.NewRegistry(cfg.SessionMax, cfg.SessionTTL, d.NewSession, logger)

	logger.Info("export backend configured",
		slog.String("backend", cfg.ExportBackend),
	)
	return d, nil
}

// NewSession creates a session outside the registry.
func (d *Dependencies) NewSession() *session.Session {
	return session.New(d.deps, d.cfg, d.logger)
}

// Close closes all registered sessions.
func (d *Dependencies) Close(ctx context.Context) error {
	return d.Registry.Close(ctx)
}

// initTranscoder selects the export backend.
func initTranscoder(cfg *config.Config, processor *media.FFmpegProcessor, store storage.Storage, logger *slog.Logger) (transcode.Transcoder, error) {
	switch cfg.ExportBackend {
	case transcode.BackendSimulated:
		return transcode.NewSimulated(store, cfg.SimulatedStep, logger), nil
	case transcode.BackendRemote:
		remote, err := transcode.NewRemote(cfg.TranscodeURL, store,
			transcode.WithAPIKey(cfg.TranscodeAPIKey),
			transcode.WithPollInterval(cfg.TranscodePollTime),
			transcode.WithRemoteLogger(logger),
		)
		if err != nil {
			return nil, fmt.Errorf("create remote transcoder: %w", err)
		}
		return remote, nil
	default:
		return transcode.NewFFmpeg(processor, store, logger), nil
	}
}

// initStorage creates the appropriate storage backend based on configuration.
func initStorage(cfg *config.Config, logger *slog.Logger) (storage.Storage, error) {
	if cfg.S3Enabled() {
		s3Cfg := storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
			Prefix:          cfg.S3Prefix,
		}
		s3Store, err := storage.NewS3Storage(cfg.TempDir, s3Cfg)
		if err != nil {
			return nil, fmt.Errorf("create S3 storage: %w", err)
		}
		logger.Info("S3 storage configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
		)
		return s3Store, nil
	}

	localStore, err := storage.NewLocalStorage(cfg.TempDir)
	if err != nil {
		return nil, fmt.Errorf("create local storage: %w", err)
	}
	logger.Info("local storage configured",
		slog.String("temp_dir", localStore.TempDir()),
	)
	return localStore, nil
}
