package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/maauso/freecut/internal/bootstrap"
	"github.com/maauso/freecut/internal/config"
	"github.com/maauso/freecut/internal/export"
	"github.com/maauso/freecut/internal/frame"
	"github.com/maauso/freecut/internal/session"
	"github.com/maauso/freecut/internal/timeline"
)

var (
	errExportFailed    = errors.New("export failed")
	errExportCancelled = errors.New("export cancelled")
	errEndBeforeStart  = errors.New("--end must not be before --start")
)

type trimOptions struct {
	start   string
	end     string
	format  string
	output  string
	publish bool
	quiet   bool
}

func trimCmd() *cobra.Command {
	var opts trimOptions
	cmd := &cobra.Command{
		Use:   "trim <video>",
		Short: "Cut a range out of a video without opening the editor",
		Example: `  freecut trim talk.mp4 --start 00:01:05 --end 00:02:00 -o intro.mp4
  freecut trim clip.webm --start 3.5 --format gif`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger := config.NewLogger(cfg.LogFormat, cfg.LogLevel, os.Stderr)
			slog.SetDefault(logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return trim(ctx, cfg, logger, args[0], opts, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&opts.start, "start", "", "in point, seconds or HH:MM:SS (default: start of video)")
	cmd.Flags().StringVar(&opts.end, "end", "", "out point, seconds or HH:MM:SS (default: end of video)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", string(export.FormatMP4), "output format: mp4 or gif")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "output file (default: trimmed.<format>)")
	cmd.Flags().BoolVar(&opts.publish, "publish", false, "upload the result to S3 and print its URL")
	cmd.Flags().BoolVarP(&opts.quiet, "quiet", "q", false, "hide the progress bar")
	return cmd
}

func trim(ctx context.Context, cfg *config.Config, logger *slog.Logger, path string, opts trimOptions, stdout io.Writer) error {
	format, err := export.ParseFormat(opts.format)
	if err != nil {
		return err
	}

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
	if err := applyMarks(sess, opts.start, opts.end); err != nil {
		return err
	}

	req, err := sess.ExportRequest()
	if err != nil {
		return err
	}
	logger.Info("trimming",
		slog.String("from", frame.FormatClock(req.StartTime)),
		slog.String("to", frame.FormatClock(req.EndTime)),
		slog.Float64("seconds", req.DurationSeconds),
	)

	bar := newProgressBar(format, opts.quiet)
	unsubscribe := sess.Subscribe(func(ev session.Event) {
		if ev.Type == session.EventExport && ev.Export != nil {
			_ = bar.Set(ev.Export.Progress)
		}
	})
	defer unsubscribe()

	job, err := sess.Export(ctx, format, export.Options{Publish: opts.publish})
	if err != nil {
		return err
	}
	done, err := sess.WaitExport(ctx, job.ID)
	if err != nil {
		sess.CancelExport()
		return err
	}

	switch done.Status {
	case export.StatusCompleted:
		_ = bar.Finish()
	case export.StatusFailed:
		return fmt.Errorf("%w: %s", errExportFailed, done.Error)
	default:
		return errExportCancelled
	}

	if done.URL != "" {
		_, _ = fmt.Fprintln(stdout, done.URL)
		if opts.output == "" {
			return nil
		}
	}

	dest := opts.output
	if dest == "" {
		dest = done.OutputName
	}
	if err := copyOutput(ctx, deps, done.OutputPath, dest); err != nil {
		return err
	}
	_, _ = fmt.Fprintln(stdout, dest)
	return nil
}

// applyMarks sets the in point before the out point so an out point earlier
// than the old in point is never rejected.
func applyMarks(sess *session.Session, start, end string) error {
	if start != "" {
		t, err := frame.ParseClock(start)
		if err != nil {
			return fmt.Errorf("--start: %w", err)
		}
		if _, err := sess.SetMark(timeline.EdgeStart, t); err != nil {
			return err
		}
	}
	if end != "" {
		t, err := frame.ParseClock(end)
		if err != nil {
			return fmt.Errorf("--end: %w", err)
		}
		rng, err := sess.SetMark(timeline.EdgeEnd, t)
		if err != nil {
			return err
		}
		if !rng.End.Set {
			return errEndBeforeStart
		}
	}
	return nil
}

func newProgressBar(format export.Format, quiet bool) *progressbar.ProgressBar {
	if quiet {
		return progressbar.DefaultSilent(100)
	}
	return progressbar.NewOptions(100,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription(fmt.Sprintf("Exporting %s", format)),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "▐",
			BarEnd:        "▌",
		}),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionOnCompletion(func() { _, _ = fmt.Fprintln(os.Stderr) }),
	)
}

func copyOutput(ctx context.Context, deps *bootstrap.Dependencies, src, dest string) error {
	rc, err := deps.Store.Open(ctx, src)
	if err != nil {
		return fmt.Errorf("open export: %w", err)
	}
	defer func() { _ = rc.Close() }()

	f, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("create %s: %w", dest, err)
	}
	if _, err := io.Copy(f, rc); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", dest, err)
	}
	return f.Close()
}
