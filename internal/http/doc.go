// Package http provides the retrying HTTP client used to fetch firmware
// payloads and catalogs.
//
// This package handles:
//   - Streamed GET transfers written block by block to a caller-supplied sink
//   - Byte progress reporting against the declared Content-Length
//   - Bounded retries with a pluggable backoff strategy
//   - Typed errors for common status codes
//
// # Usage
//
//	client := http.NewClient(http.Options{
//	    Retry:     http.RetryPolicy{Attempts: 3, Backoff: http.FixedBackoff{Delay: 5 * time.Second}},
//	    BlockSize: 1024,
//	    Logger:    logger,
//	})
//
//	res, err := client.Fetch(ctx, url, func(ctx context.Context) (http.Sink, error) {
//	    return store.OpenPayload(ctx, entry)
//	}, tracker.Update)
//
// Every attempt starts from byte zero on a freshly opened sink. A failed
// attempt aborts its sink, so nothing it wrote becomes visible.
package http
