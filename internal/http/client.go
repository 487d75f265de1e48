package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Common errors.
var (
	ErrNotFound     = errors.New("http: resource not found")
	ErrForbidden    = errors.New("http: access forbidden")
	ErrUnauthorized = errors.New("http: unauthorized")
	ErrServerError  = errors.New("http: server error")
	ErrShortBody    = errors.New("http: body shorter than content-length")
)

// Options configures the HTTP client.
type Options struct {
	// MaxIdleConnsPerHost sets the maximum idle connections per host.
	// Default: 4
	MaxIdleConnsPerHost int

	// Timeout bounds the wait for response headers. The body itself may
	// stream for as long as it takes.
	// Default: 30s
	Timeout time.Duration

	// Retry bounds attempts per transfer.
	// Default: 3 attempts, 5s apart
	Retry RetryPolicy

	// BlockSize is the read size used when streaming a body.
	// Default: 1024
	BlockSize int

	// UserAgent is sent with every request when set.
	UserAgent string

	// Logger receives per-attempt failures. nil discards them.
	Logger *slog.Logger
}

// DefaultOptions returns options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		MaxIdleConnsPerHost: 4,
		Timeout:             30 * time.Second,
		Retry:               DefaultRetryPolicy(),
		BlockSize:           1024,
		UserAgent:           "fwslurp",
	}
}

// Sink receives the body of one transfer attempt. Commit makes the written
// bytes durable; Abort discards them. Exactly one of the two is called.
type Sink interface {
	io.Writer
	Commit() error
	Abort() error
}

// OpenSinkFunc opens a fresh sink for each attempt.
type OpenSinkFunc func(ctx context.Context) (Sink, error)

// ProgressFunc is called as bytes arrive. total is the declared
// Content-Length, or -1 when the server did not send one.
type ProgressFunc func(written, total int64)

// FetchStatus is the outcome of a transfer.
type FetchStatus int

const (
	FetchFailed FetchStatus = iota
	FetchSucceeded
)

func (s FetchStatus) String() string {
	if s == FetchSucceeded {
		return "success"
	}
	return "failed"
}

// FetchResult describes a finished transfer.
type FetchResult struct {
	Status        FetchStatus
	BytesWritten  int64
	ContentLength int64
	Attempts      int
	Elapsed       time.Duration
}

// TransferError is returned when every attempt of a transfer failed.
type TransferError struct {
	URL      string
	Attempts int
	Err      error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("transfer %s failed after %d attempts: %v", e.URL, e.Attempts, e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

// writeError marks a failure of the sink rather than the network.
type writeError struct {
	err error
}

func (e *writeError) Error() string { return "write: " + e.err.Error() }
func (e *writeError) Unwrap() error { return e.err }

// Client is an HTTP client for streamed, retried transfers.
type Client struct {
	client *http.Client
	opts   Options
	log    *slog.Logger
}

// NewClient creates a new HTTP client with the given options.
func NewClient(opts Options) *Client {
	defaults := DefaultOptions()
	if opts.MaxIdleConnsPerHost <= 0 {
		opts.MaxIdleConnsPerHost = defaults.MaxIdleConnsPerHost
	}
	if opts.BlockSize <= 0 {
		opts.BlockSize = defaults.BlockSize
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaults.Timeout
	}
	if opts.Retry.Attempts <= 0 {
		opts.Retry.Attempts = 1
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConnsPerHost:   opts.MaxIdleConnsPerHost,
		MaxIdleConns:          opts.MaxIdleConnsPerHost * 2,
		IdleConnTimeout:       90 * time.Second,
		ResponseHeaderTimeout: opts.Timeout,
	}

	return &Client{
		client: &http.Client{Transport: transport},
		opts:   opts,
		log:    logger,
	}
}

// Fetch streams url into sinks opened by open, retrying transport failures.
// Sink failures are returned as-is without retrying.
func (c *Client) Fetch(ctx context.Context, url string, open OpenSinkFunc, progress ProgressFunc) (FetchResult, error) {
	start := time.Now()
	attempts := c.opts.Retry.Attempts
	res := FetchResult{Status: FetchFailed, ContentLength: -1}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 && c.opts.Retry.Backoff != nil {
			if err := c.opts.Retry.Backoff.Wait(ctx, attempt-1); err != nil {
				res.Elapsed = time.Since(start)
				return res, err
			}
		}
		res.Attempts = attempt

		sink, err := open(ctx)
		if err != nil {
			res.Elapsed = time.Since(start)
			return res, err
		}

		written, total, err := c.fetchOnce(ctx, url, sink, progress)
		res.BytesWritten = written
		res.ContentLength = total

		if err == nil {
			if err := sink.Commit(); err != nil {
				res.Elapsed = time.Since(start)
				return res, err
			}
			res.Status = FetchSucceeded
			res.Elapsed = time.Since(start)
			return res, nil
		}

		if abortErr := sink.Abort(); abortErr != nil {
			c.log.Warn("discard partial payload", "url", url, "error", abortErr)
		}

		if ctx.Err() != nil {
			res.Elapsed = time.Since(start)
			return res, ctx.Err()
		}

		var we *writeError
		if errors.As(err, &we) {
			res.Elapsed = time.Since(start)
			return res, we.err
		}

		lastErr = err
		if attempt < attempts {
			c.log.Warn("transfer attempt failed, retrying",
				"url", url, "attempt", attempt, "of", attempts, "error", err)
		}
	}

	c.log.Error("max retries reached, skipping",
		"url", url, "attempts", attempts, "error", lastErr)

	res.Elapsed = time.Since(start)
	return res, &TransferError{URL: url, Attempts: attempts, Err: lastErr}
}

// fetchOnce performs a single GET and copies the body into sink.
func (c *Client) fetchOnce(ctx context.Context, url string, sink Sink, progress ProgressFunc) (int64, int64, error) {
	req, err := c.newRequest(ctx, url)
	if err != nil {
		return 0, -1, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, -1, err
	}
	defer resp.Body.Close()

	if err := checkStatusCode(resp.StatusCode); err != nil {
		return 0, -1, err
	}

	total := resp.ContentLength
	if progress != nil {
		progress(0, total)
	}

	buf := make([]byte, c.opts.BlockSize)
	var written int64
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, err := sink.Write(buf[:n]); err != nil {
				return written, total, &writeError{err: err}
			}
			written += int64(n)
			if progress != nil {
				progress(written, total)
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return written, total, fmt.Errorf("read body: %w", readErr)
		}
	}

	if total >= 0 && written != total {
		return written, total, fmt.Errorf("%w: got %d of %d bytes", ErrShortBody, written, total)
	}
	return written, total, nil
}

// Get performs a simple GET request. Server errors are retried; client
// errors are returned immediately.
func (c *Client) Get(ctx context.Context, url string) (io.ReadCloser, error) {
	var lastErr error

	for attempt := 1; attempt <= c.opts.Retry.Attempts; attempt++ {
		if attempt > 1 && c.opts.Retry.Backoff != nil {
			if err := c.opts.Retry.Backoff.Wait(ctx, attempt-1); err != nil {
				return nil, err
			}
		}

		req, err := c.newRequest(ctx, url)
		if err != nil {
			return nil, err
		}

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = err
			c.log.Warn("get attempt failed", "url", url, "attempt", attempt, "error", err)
			continue
		}

		if resp.StatusCode >= 500 {
			resp.Body.Close()
			lastErr = fmt.Errorf("%w: %s", ErrServerError, resp.Status)
			c.log.Warn("get attempt failed", "url", url, "attempt", attempt, "error", lastErr)
			continue
		}

		if err := checkStatusCode(resp.StatusCode); err != nil {
			resp.Body.Close()
			return nil, err
		}

		return resp.Body, nil
	}

	return nil, fmt.Errorf("get request failed after %d attempts: %w", c.opts.Retry.Attempts, lastErr)
}

func (c *Client) newRequest(ctx context.Context, url string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if c.opts.UserAgent != "" {
		req.Header.Set("User-Agent", c.opts.UserAgent)
	}
	return req, nil
}

// checkStatusCode returns an appropriate error for non-success status codes.
func checkStatusCode(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusNotFound:
		return ErrNotFound
	case code == http.StatusForbidden:
		return ErrForbidden
	case code == http.StatusUnauthorized:
		return ErrUnauthorized
	case code >= 500:
		return fmt.Errorf("%w: %d", ErrServerError, code)
	default:
		return fmt.Errorf("unexpected status code: %d", code)
	}
}

// Fraction returns written/total, or false when total is unknown.
func Fraction(written, total int64) (float64, bool) {
	if total <= 0 {
		return 0, false
	}
	return float64(written) / float64(total), true
}
