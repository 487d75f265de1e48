package downloader

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/segmentio/ksuid"

	"github.com/ligustah/fwslurp/internal/catalog"
	slurphttp "github.com/ligustah/fwslurp/internal/http"
	"github.com/ligustah/fwslurp/internal/progress"
	"github.com/ligustah/fwslurp/internal/report"
	"github.com/ligustah/fwslurp/internal/storage"
)

// DefaultEntryDelay is the pause between two entries.
const DefaultEntryDelay = 5 * time.Second

// Fetcher streams one URL into sinks. *slurphttp.Client implements it.
type Fetcher interface {
	Fetch(ctx context.Context, url string, open slurphttp.OpenSinkFunc, progress slurphttp.ProgressFunc) (slurphttp.FetchResult, error)
}

// Store persists entry payloads and sidecars.
type Store interface {
	OpenPayload(ctx context.Context, e catalog.Entry) (slurphttp.Sink, error)
	WriteChecksum(ctx context.Context, e catalog.Entry) error
	RemovePayload(ctx context.Context, e catalog.Entry) error
}

// blobStore adapts *storage.Store to Store.
type blobStore struct {
	*storage.Store
}

func (s blobStore) OpenPayload(ctx context.Context, e catalog.Entry) (slurphttp.Sink, error) {
	return s.Store.OpenPayload(ctx, e)
}

// FromStorage returns a Store backed by s.
func FromStorage(s *storage.Store) Store {
	return blobStore{Store: s}
}

// Options configures the downloader.
type Options struct {
	// EntryDelay is waited after every entry except the last.
	// Default: 5s. Negative disables the delay.
	EntryDelay time.Duration

	// Sleep waits between entries. It must return early with the context
	// error when ctx is cancelled.
	// Default: slurphttp.Sleep
	Sleep func(ctx context.Context, d time.Duration) error

	// Logger receives per-entry results. nil discards them.
	Logger *slog.Logger

	// Progress is an optional progress reporter.
	Progress *progress.Reporter

	// Source names the catalog in the report.
	Source string

	// RunID identifies the run. A new KSUID is used when empty.
	RunID string

	// Now returns the current time.
	// Default: time.Now
	Now func() time.Time
}

// Downloader fetches catalog entries one after another.
type Downloader struct {
	fetcher Fetcher
	store   Store
	opts    Options
	log     *slog.Logger
}

// New creates a downloader.
func New(fetcher Fetcher, store Store, opts Options) *Downloader {
	if opts.EntryDelay == 0 {
		opts.EntryDelay = DefaultEntryDelay
	}
	if opts.Sleep == nil {
		opts.Sleep = slurphttp.Sleep
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Downloader{
		fetcher: fetcher,
		store:   store,
		opts:    opts,
		log:     logger,
	}
}

// Run attempts every entry in order and records one outcome per attempted
// entry. Entry failures are recorded, never returned. The only error is the
// context error when the run was cancelled; the partial report is returned
// alongside it.
func (d *Downloader) Run(ctx context.Context, entries []catalog.Entry) (*report.Report, error) {
	runID := d.opts.RunID
	if runID == "" {
		runID = ksuid.New().String()
	}

	rep := report.New(runID, d.opts.Source, d.opts.Now())
	log := d.log.With("run", runID)
	log.Info("starting run", "entries", len(entries), "source", d.opts.Source)

	for i, e := range entries {
		if err := ctx.Err(); err != nil {
			return d.finish(rep, log, err)
		}

		o := d.fetchEntry(ctx, e)
		rep.Record(o)
		d.logOutcome(log, o)

		if o.Kind == report.KindCanceled {
			return d.finish(rep, log, ctx.Err())
		}

		if i < len(entries)-1 && d.opts.EntryDelay > 0 {
			if err := d.opts.Sleep(ctx, d.opts.EntryDelay); err != nil {
				return d.finish(rep, log, err)
			}
		}
	}

	return d.finish(rep, log, nil)
}

func (d *Downloader) finish(rep *report.Report, log *slog.Logger, err error) (*report.Report, error) {
	rep.Finish(d.opts.Now())
	s := rep.Summary()
	if err != nil {
		log.Warn("run cancelled", "total", s.Total, "success", s.Succeeded, "failure", s.Failed, "error", err)
		return rep, err
	}
	log.Info("run finished", "total", s.Total, "success", s.Succeeded, "failure", s.Failed,
		"duration", rep.Duration().Round(time.Millisecond))
	return rep, nil
}

// fetchEntry downloads one entry and stores its sidecar.
func (d *Downloader) fetchEntry(ctx context.Context, e catalog.Entry) report.Outcome {
	var tracker *progress.Tracker
	if d.opts.Progress != nil {
		tracker = d.opts.Progress.Track(e.Key())
	}

	open := func(ctx context.Context) (slurphttp.Sink, error) {
		return d.store.OpenPayload(ctx, e)
	}
	res, err := d.fetcher.Fetch(ctx, e.URL, open, tracker.Update)

	o := report.Outcome{
		Entry:        e,
		BytesWritten: res.BytesWritten,
		Elapsed:      res.Elapsed,
		Attempts:     res.Attempts,
	}

	if err == nil && res.Status == slurphttp.FetchSucceeded {
		if err = d.store.WriteChecksum(ctx, e); err != nil {
			if rmErr := d.store.RemovePayload(context.WithoutCancel(ctx), e); rmErr != nil {
				d.log.Warn("remove payload after sidecar failure", "key", e.Key(), "error", rmErr)
			}
		}
	} else if err == nil {
		err = errors.New("transfer did not complete")
	}

	if err != nil {
		o.Status = report.StatusFailed
		o.Kind = classify(ctx, err)
		o.Reason = err.Error()
		tracker.Done(false)
		return o
	}

	o.Status = report.StatusSuccess
	tracker.Done(true)
	return o
}

// classify maps an entry error onto a failure kind.
func classify(ctx context.Context, err error) report.FailureKind {
	var se *storage.Error
	switch {
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		return report.KindCanceled
	case errors.As(err, &se):
		return report.KindStorage
	default:
		return report.KindTransfer
	}
}

func (d *Downloader) logOutcome(log *slog.Logger, o report.Outcome) {
	attrs := []any{
		"section", o.Entry.Section.String(),
		"version", o.Entry.Version,
		"status", string(o.Status),
		"attempts", o.Attempts,
	}

	if o.Succeeded() {
		attrs = append(attrs,
			"bytes", o.BytesWritten,
			"elapsed", o.Elapsed.Round(time.Millisecond),
			"speed", progress.FormatSpeed(o.AverageSpeed()),
		)
		log.Info("entry complete", attrs...)
		return
	}

	attrs = append(attrs, "kind", string(o.Kind), "error", o.Reason)
	log.Warn("entry failed", attrs...)
}
