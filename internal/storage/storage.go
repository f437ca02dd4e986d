// Package storage keeps uploaded media and export results on local disk and
// optionally publishes finished exports to S3.
package storage

import (
	"context"
	"io"
)

// Storage defines where uploads, transcoder workspaces and export outputs live.
type Storage interface {
	// SaveTemp writes data to a new file whose name starts with name and
	// returns its path.
	SaveTemp(ctx context.Context, name string, data io.Reader) (path string, err error)

	// OutputPath reserves a fresh directory and returns the path of name
	// inside it, so every export keeps its deterministic file name.
	OutputPath(ctx context.Context, name string) (path string, err error)

	// Open reads a stored file. The caller closes the returned ReadCloser.
	Open(ctx context.Context, path string) (io.ReadCloser, error)

	// CleanupTemp removes the given files or output directories.
	// It continues cleanup even if some removals fail.
	CleanupTemp(ctx context.Context, paths []string) error

	// Publish uploads data under key and returns its public URL.
	// Returns ErrS3NotConfigured when no bucket is configured.
	Publish(ctx context.Context, key, contentType string, data io.Reader) (url string, err error)

	// CanPublish reports whether Publish is available.
	CanPublish() bool
}
