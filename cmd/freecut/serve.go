package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/maauso/freecut/internal/bootstrap"
	"github.com/maauso/freecut/internal/config"
	"github.com/maauso/freecut/internal/server"
)

func serveCmd() *cobra.Command {
	var (
		port    int
		origins []string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and WebSocket editor backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if cmd.Flags().Changed("port") {
				cfg.Port = port
			}
			return serve(cfg, origins)
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "listen port (overrides PORT)")
	cmd.Flags().StringSliceVar(&origins, "allow-origin", []string{"*"}, "allowed CORS origins")
	return cmd
}

func serve(cfg *config.Config, origins []string) error {
	logger := cfg.NewLogger()
	slog.SetDefault(logger)

	logger.Info("starting freecut",
		slog.Int("port", cfg.Port),
		slog.String("log_format", cfg.LogFormat),
		slog.String("log_level", cfg.LogLevel),
		slog.String("temp_dir", cfg.TempDir),
		slog.String("export_backend", cfg.ExportBackend),
		slog.Int("session_limit", cfg.SessionMax),
		slog.Duration("session_ttl", cfg.SessionTTL),
		slog.Bool("s3_enabled", cfg.S3Enabled()),
	)

	deps, err := bootstrap.NewDependencies(cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize dependencies: %w", err)
	}

	handlers := server.NewHandlers(deps.Registry, deps.Store, logger)
	router := server.NewRouter(handlers, logger, server.Config{
		AllowedOrigins: origins,
		MaxUploadBytes: cfg.MaxUploadBytes(),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening",
			slog.String("addr", srv.Addr),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server failed: %w", err)
		}
	}()

	select {
	case sig := <-shutdownCh:
		logger.Info("received shutdown signal",
			slog.String("signal", sig.String()),
		)
	case err := <-errCh:
		_ = deps.Close(context.Background())
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	logger.Info("shutting down server...")
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	if err := deps.Close(ctx); err != nil {
		logger.Warn("closing sessions failed", slog.String("error", err.Error()))
	}

	logger.Info("server stopped gracefully")
	return nil
}
