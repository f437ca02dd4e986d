package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/maauso/freecut/internal/bootstrap"
	"github.com/maauso/freecut/internal/config"
	"github.com/maauso/freecut/internal/tui"
)

func editCmd() *cobra.Command {
	var logFile string
	cmd := &cobra.Command{
		Use:   "edit <video>",
		Short: "Open a video in the terminal editor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			// the editor owns the terminal, so logs only go to a file
			var w io.Writer = io.Discard
			if logFile != "" {
				f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
				if err != nil {
					return fmt.Errorf("open log file: %w", err)
				}
				defer func() { _ = f.Close() }()
				w = f
			}
			logger := config.NewLogger(cfg.LogFormat, cfg.LogLevel, w)
			slog.SetDefault(logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return edit(ctx, cfg, logger, args[0])
		},
	}
	cmd.Flags().StringVar(&logFile, "log-file", "", "write logs to this file")
	return cmd
}

func edit(ctx context.Context, cfg *config.Config, logger *slog.Logger, path string) error {
	deps, err := bootstrap.NewDependencies(cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize dependencies: %w", err)
	}
	defer func() { _ = deps.Close(context.Background()) }()

	sess := deps.NewSession()
	defer func() { _ = sess.Close(context.Background()) }()

	if _, err := sess.LoadPath(ctx, path); err != nil {
		return err
	}
	return tui.Run(ctx, sess)
}
