package transcode

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/maauso/freecut/internal/media"
	"github.com/maauso/freecut/internal/storage"
)

// Static errors for the remote transcode client.
var (
	// ErrBaseURLRequired is returned when the service URL is not provided.
	ErrBaseURLRequired = errors.New("remote transcode: base URL is required")
	// ErrNoIDReturned is returned when the service accepts a request without an ID.
	ErrNoIDReturned = errors.New("remote transcode: no ID returned")
	// ErrJobFailed is returned when the service reports a failed job.
	ErrJobFailed = errors.New("remote transcode: job failed")
	// ErrServerError is returned when the server returns a 5xx status code.
	ErrServerError = errors.New("remote transcode: server error")
	// ErrRateLimited is returned when the server returns a 429 status code.
	ErrRateLimited = errors.New("remote transcode: rate limited")
	// ErrRequestFailed is returned when the request fails with a non-2xx status code.
	ErrRequestFailed = errors.New("remote transcode: request failed")
)

// Compile-time check that Remote implements Transcoder.
var _ Transcoder = (*Remote)(nil)

// Remote drives an external transcode service over HTTP: inputs are
// uploaded, a job is submitted and polled, and the output is downloaded
// into local storage.
type Remote struct {
	baseURL      string
	apiKey       string
	httpClient   *http.Client
	store        storage.Storage
	logger       *slog.Logger
	maxRetries   int
	baseBackoff  time.Duration
	pollInterval time.Duration
}

// RemoteOption configures a Remote.
type RemoteOption func(*Remote)

// WithAPIKey sets the bearer token sent with every request.
func WithAPIKey(key string) RemoteOption {
	return func(r *Remote) {
		r.apiKey = key
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) RemoteOption {
	return func(r *Remote) {
		r.httpClient = c
	}
}

// WithMaxRetries sets the maximum number of retries for transient failures.
func WithMaxRetries(n int) RemoteOption {
	return func(r *Remote) {
		r.maxRetries = n
	}
}

// WithBaseBackoff sets the initial backoff duration for retries.
func WithBaseBackoff(d time.Duration) RemoteOption {
	return func(r *Remote) {
		r.baseBackoff = d
	}
}

// WithPollInterval sets how often job status is polled.
func WithPollInterval(d time.Duration) RemoteOption {
	return func(r *Remote) {
		if d > 0 {
			r.pollInterval = d
		}
	}
}

// WithRemoteLogger sets the logger.
func WithRemoteLogger(logger *slog.Logger) RemoteOption {
	return func(r *Remote) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRemote creates a client for the service at baseURL.
func NewRemote(baseURL string, store storage.Storage, opts ...RemoteOption) (*Remote, error) {
	if baseURL == "" {
		return nil, ErrBaseURLRequired
	}

	r := &Remote{
		baseURL:      strings.TrimRight(baseURL, "/"),
		httpClient:   &http.Client{Timeout: 5 * time.Minute},
		store:        store,
		logger:       slog.Default(),
		maxRetries:   3,
		baseBackoff:  1 * time.Second,
		pollInterval: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// LoadInput uploads the media and returns the service's input ID.
func (r *Remote) LoadInput(ctx context.Context, name string, data io.Reader) (Input, error) {
	body, err := io.ReadAll(data)
	if err != nil {
		return Input{}, wrap(BackendRemote, "load", fmt.Errorf("read input: %w", err))
	}

	endpoint := r.baseURL + "/inputs?name=" + url.QueryEscape(name)
	var resp uploadResponse
	if err := r.doRequestWithRetry(ctx, http.MethodPost, endpoint, "application/octet-stream", body, &resp); err != nil {
		return Input{}, wrap(BackendRemote, "load", err)
	}
	if resp.ID == "" {
		if resp.Error != "" {
			return Input{}, wrap(BackendRemote, "load", fmt.Errorf("%w: %s", ErrRequestFailed, resp.Error))
		}
		return Input{}, wrap(BackendRemote, "load", ErrNoIDReturned)
	}
	return Input{ID: resp.ID, Name: name}, nil
}

// RunFilter submits a job, polls it to completion and downloads the result.
// Cancelling ctx asks the service to cancel the job.
func (r *Remote) RunFilter(ctx context.Context, in Input, args FilterArgs, progress Progress) (Output, error) {
	if err := args.Validate(); err != nil {
		return Output{}, wrap(BackendRemote, "filter", err)
	}

	jobID, err := r.submit(ctx, in, args)
	if err != nil {
		return Output{}, wrap(BackendRemote, "filter", err)
	}
	r.logger.Info("remote transcode submitted", slog.String("remote_job_id", jobID))

	if err := r.waitForCompletion(ctx, jobID, progress); err != nil {
		if ctx.Err() != nil {
			r.cancelJob(jobID)
		}
		return Output{}, wrap(BackendRemote, "filter", err)
	}

	out, err := r.download(ctx, jobID, args)
	if err != nil {
		return Output{}, wrap(BackendRemote, "download", err)
	}
	report(progress, 1)
	return out, nil
}

// Release deletes the uploaded input from the service.
func (r *Remote) Release(ctx context.Context, in Input) error {
	if in.ID == "" {
		return nil
	}
	endpoint := r.baseURL + "/inputs/" + url.PathEscape(in.ID)
	return wrap(BackendRemote, "release", r.doRequestWithRetry(ctx, http.MethodDelete, endpoint, "", nil, nil))
}

func (r *Remote) submit(ctx context.Context, in Input, args FilterArgs) (string, error) {
	body, err := json.Marshal(jobRequest{
		InputID:      in.ID,
		TrimStart:    args.TrimStart,
		TrimDuration: args.TrimDuration,
		OutputFormat: args.OutputFormat,
		OutputName:   args.OutputName,
		FilterGraph:  args.FilterGraph,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	var resp jobResponse
	if err := r.doRequestWithRetry(ctx, http.MethodPost, r.baseURL+"/jobs", "application/json", body, &resp); err != nil {
		return "", err
	}
	if resp.ID == "" {
		if resp.Error != "" {
			return "", fmt.Errorf("%w: %s", ErrJobFailed, resp.Error)
		}
		return "", ErrNoIDReturned
	}
	return resp.ID, nil
}

func (r *Remote) waitForCompletion(ctx context.Context, jobID string, progress Progress) error {
	endpoint := r.baseURL + "/jobs/" + url.PathEscape(jobID)
	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		var resp jobResponse
		if err := r.doRequestWithRetry(ctx, http.MethodGet, endpoint, "", nil, &resp); err != nil {
			return err
		}

		status := RemoteStatus(resp.Status)
		switch status {
		case RemoteCompleted:
			return nil
		case RemoteFailed, RemoteCancelled, RemoteTimedOut:
			msg := resp.Error
			if msg == "" {
				msg = string(status)
			}
			return fmt.Errorf("%w: %s", ErrJobFailed, msg)
		}
		report(progress, resp.Progress)

		select {
		case <-ctx.Done():
			return fmt.Errorf("remote transcode: context cancelled: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

func (r *Remote) cancelJob(jobID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	endpoint := r.baseURL + "/jobs/" + url.PathEscape(jobID) + "/cancel"
	if err := r.doRequest(ctx, http.MethodPost, endpoint, "", nil, nil); err != nil {
		r.logger.Warn("failed to cancel remote transcode",
			slog.String("remote_job_id", jobID),
			slog.String("error", err.Error()),
		)
	}
}

func (r *Remote) download(ctx context.Context, jobID string, args FilterArgs) (Output, error) {
	endpoint := r.baseURL + "/jobs/" + url.PathEscape(jobID) + "/output"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Output{}, fmt.Errorf("create request: %w", err)
	}
	r.authorize(req)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return Output{}, fmt.Errorf("download output: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return Output{}, fmt.Errorf("%w with status %d: %s", ErrRequestFailed, resp.StatusCode, string(msg))
	}

	out, err := r.store.OutputPath(ctx, args.OutputName)
	if err != nil {
		return Output{}, err
	}
	f, err := os.Create(out) // #nosec G304 - out comes from storage.OutputPath
	if err != nil {
		return Output{}, fmt.Errorf("create output: %w", err)
	}
	n, err := io.Copy(f, resp.Body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = r.store.CleanupTemp(context.WithoutCancel(ctx), []string{out})
		return Output{}, fmt.Errorf("write output: %w", err)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = media.ContentTypeFor(args.OutputFormat)
	}
	return Output{Path: out, Name: args.OutputName, ContentType: contentType, Size: n}, nil
}

// doRequestWithRetry performs an HTTP request with exponential backoff retry.
func (r *Remote) doRequestWithRetry(ctx context.Context, method, endpoint, contentType string, body []byte, result any) error {
	var lastErr error
	backoff := r.baseBackoff

	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("remote transcode: context cancelled: %w", ctx.Err())
			case <-time.After(backoff):
				backoff *= 2 // Exponential backoff
			}
		}

		err := r.doRequest(ctx, method, endpoint, contentType, body, result)
		if err == nil {
			return nil
		}

		if !isRetryable(err) {
			return err
		}

		lastErr = err
	}

	return fmt.Errorf("remote transcode: max retries exceeded: %w", lastErr)
}

// doRequest performs a single HTTP request.
func (r *Remote) doRequest(ctx context.Context, method, endpoint, contentType string, body []byte, result any) error {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, bodyReader)
	if err != nil {
		return fmt.Errorf("remote transcode: create request: %w", err)
	}
	r.authorize(req)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("remote transcode: %w", ctx.Err())
		}
		return &retryableError{err: fmt.Errorf("remote transcode: request failed: %w", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &retryableError{err: fmt.Errorf("remote transcode: read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// 5xx errors are retryable
		if resp.StatusCode >= 500 {
			return &retryableError{err: fmt.Errorf("%w %d: %s", ErrServerError, resp.StatusCode, string(respBody))}
		}
		// 429 (rate limit) is retryable
		if resp.StatusCode == http.StatusTooManyRequests {
			return &retryableError{err: fmt.Errorf("%w: %s", ErrRateLimited, string(respBody))}
		}
		return fmt.Errorf("%w with status %d: %s", ErrRequestFailed, resp.StatusCode, string(respBody))
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("remote transcode: unmarshal response: %w", err)
		}
	}

	return nil
}

func (r *Remote) authorize(req *http.Request) {
	if r.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}
}

// retryableError wraps errors that should be retried.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string {
	return e.err.Error()
}

func (e *retryableError) Unwrap() error {
	return e.err
}

// isRetryable returns true if the error should be retried.
func isRetryable(err error) bool {
	var re *retryableError
	return errors.As(err, &re)
}
