package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/maauso/freecut/internal/config"
	"github.com/maauso/freecut/internal/frame"
	"github.com/maauso/freecut/internal/media"
)

type probeResult struct {
	Name               string  `json:"name"`
	ContentType        string  `json:"content_type"`
	Duration           float64 `json:"duration"`
	Clock              string  `json:"clock"`
	FrameRate          float64 `json:"frame_rate"`
	FrameRateEstimated bool    `json:"frame_rate_estimated"`
	TotalFrames        int     `json:"total_frames"`
	Width              int     `json:"width"`
	Height             int     `json:"height"`
	VideoCodec         string  `json:"video_codec"`
	Size               int64   `json:"size"`
}

func probeCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "probe <video>",
		Short: "Print what the editor detects about a video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			processor := media.NewFFmpegProcessor(cfg.FFmpegPath,
				media.WithFFprobePath(cfg.FFprobePath),
				media.WithDefaultFPS(cfg.DefaultFPS),
			)

			path := args[0]
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			contentType, _, err := media.DetectType(f)
			_ = f.Close()
			if err != nil {
				return err
			}
			if err := media.ValidateVideo("", contentType); err != nil {
				return err
			}

			h, err := processor.Probe(cmd.Context(), path)
			if err != nil {
				return err
			}
			res := probeResult{
				Name:               filepath.Base(path),
				ContentType:        contentType,
				Duration:           h.Duration,
				Clock:              frame.FormatClock(h.Duration),
				FrameRate:          h.FrameRate,
				FrameRateEstimated: h.FrameRateEstimated,
				TotalFrames:        h.TotalFrames(),
				Width:              h.Width,
				Height:             h.Height,
				VideoCodec:         h.VideoCodec,
				Size:               h.Size,
			}
			return printProbe(cmd.OutOrStdout(), res, asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func printProbe(w io.Writer, res probeResult, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	fps := fmt.Sprintf("%.3f", res.FrameRate)
	if res.FrameRateEstimated {
		fps += " (estimated)"
	}
	_, err := fmt.Fprintf(w, "name:      %s\ntype:      %s\nduration:  %s (%.3fs)\nfps:       %s\nframes:    %d\nsize:      %dx%d %s\nbytes:     %d\n",
		res.Name, res.ContentType, res.Clock, res.Duration, fps, res.TotalFrames,
		res.Width, res.Height, res.VideoCodec, res.Size)
	return err
}
