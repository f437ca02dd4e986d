// Package main provides the freecut command line: an HTTP editor backend,
// a terminal editor and one-shot trimming.
package main

import (
	"fmt"
	"os"
	"runtime/debug"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "freecut",
		Short:         "Frame-accurate video trimming",
		Long:          "freecut loads a video, lets you scrub and mark an in/out range, and exports the cut as MP4 or GIF.\nSettings are read from the environment (PORT, EXPORT_BACKEND, S3_BUCKET, ...).",
		Version:       appVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		serveCmd(),
		editCmd(),
		trimCmd(),
		probeCmd(),
	)
	return root
}

func appVersion() string {
	bi, ok := debug.ReadBuildInfo()
	if !ok || bi.Main.Version == "" {
		return "unknown"
	}
	return bi.Main.Version
}
