package downloader

import (
	"context"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"gocloud.dev/blob/memblob"

	"github.com/ligustah/fwslurp/internal/catalog"
	slurphttp "github.com/ligustah/fwslurp/internal/http"
	"github.com/ligustah/fwslurp/internal/progress"
	"github.com/ligustah/fwslurp/internal/report"
	"github.com/ligustah/fwslurp/internal/storage"
	"github.com/ligustah/fwslurp/internal/testutils"
)

type noBackoff struct{}

func (noBackoff) Wait(ctx context.Context, attempt int) error { return ctx.Err() }

func testClient() *slurphttp.Client {
	opts := slurphttp.DefaultOptions()
	opts.Retry = slurphttp.RetryPolicy{Attempts: 3, Backoff: noBackoff{}}
	return slurphttp.NewClient(opts)
}

// sleepRecorder counts pauses without waiting.
type sleepRecorder struct {
	calls []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.calls = append(s.calls, d)
	return ctx.Err()
}

func newMemStore(t *testing.T) *storage.Store {
	t.Helper()
	bucket := memblob.OpenBucket(nil)
	t.Cleanup(func() { bucket.Close() })
	return storage.New(bucket)
}

func parseServed(t *testing.T, srv *testutils.FirmwareServer) []catalog.Entry {
	t.Helper()
	entries, err := catalog.Parse(srv.Catalog())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return entries
}

func TestRunSingleEntry(t *testing.T) {
	data := testutils.GenerateTestData(1000)
	srv := testutils.StartFirmwareServer(t, []testutils.Firmware{
		{Section: catalog.SectionRetail, Version: "4.91", Data: data, Checksum: "abc123"},
	})
	store := newMemStore(t)
	ctx := context.Background()

	d := New(testClient(), FromStorage(store), Options{Sleep: (&sleepRecorder{}).sleep})
	rep, err := d.Run(ctx, parseServed(t, srv))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	s := rep.Summary()
	if s.Total != 1 || s.Succeeded != 1 || s.Failed != 0 {
		t.Fatalf("unexpected summary %+v", s)
	}
	o := rep.Outcomes()[0]
	if o.BytesWritten != 1000 || o.Attempts != 1 {
		t.Errorf("unexpected outcome %+v", o)
	}
	if rep.RunID == "" || rep.FinishedAt.IsZero() {
		t.Error("expected run id and finish time")
	}

	e := o.Entry
	r, err := store.OpenPayloadReader(ctx, e)
	if err != nil {
		t.Fatalf("OpenPayloadReader: %v", err)
	}
	defer r.Close()
	testutils.CompareReaderToData(t, r, data)

	sum, err := store.ReadChecksum(ctx, e)
	if err != nil {
		t.Fatalf("ReadChecksum: %v", err)
	}
	if sum != "abc123" {
		t.Errorf("expected sidecar abc123, got %q", sum)
	}
}

func TestRunEntryAlwaysFails(t *testing.T) {
	srv := testutils.StartFirmwareServer(t, []testutils.Firmware{
		{Section: catalog.SectionRetail, Version: "4.91", Data: []byte("x"), Status: http.StatusBadGateway},
	})
	store := newMemStore(t)
	ctx := context.Background()

	entries := parseServed(t, srv)
	rep, err := New(testClient(), FromStorage(store), Options{}).Run(ctx, entries)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	s := rep.Summary()
	if s.Total != 1 || s.Failed != 1 {
		t.Fatalf("unexpected summary %+v", s)
	}
	o := rep.Outcomes()[0]
	if o.Kind != report.KindTransfer || o.Attempts != 3 {
		t.Errorf("unexpected outcome %+v", o)
	}
	if got := srv.Requests(testutils.Firmware{Section: catalog.SectionRetail, Version: "4.91"}.Path()); got != 3 {
		t.Errorf("expected 3 requests, got %d", got)
	}

	in, err := store.Inspect(ctx, entries[0], false)
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if in.HasPayload || in.HasChecksum {
		t.Errorf("failed entry left files behind: %+v", in)
	}
}

func TestRunMixedOutcomes(t *testing.T) {
	srv := testutils.StartFirmwareServer(t, []testutils.Firmware{
		{Section: catalog.SectionRetail, Version: "4.91", Data: testutils.GenerateTestData(2048)},
		{Section: catalog.SectionRetail, Version: "4.90", Data: testutils.GenerateTestData(10), FailFirst: 2},
		{Section: catalog.SectionTestkit, Version: "4.91", Data: []byte("x"), Status: http.StatusNotFound},
		{Section: catalog.SectionDECR, Version: "3.41", Data: testutils.GenerateTestData(100)},
	})
	store := newMemStore(t)
	sleeps := &sleepRecorder{}

	rep, err := New(testClient(), FromStorage(store), Options{
		EntryDelay: time.Second,
		Sleep:      sleeps.sleep,
		Progress:   progress.NewReporter(progress.Options{Output: io.Discard}),
	}).Run(context.Background(), parseServed(t, srv))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := []struct {
		key      string
		status   report.Status
		attempts int
	}{
		{"Retail/4.91", report.StatusSuccess, 1},
		{"Retail/4.90", report.StatusSuccess, 3},
		{"Testkit/4.91", report.StatusFailed, 3},
		{"DECR/3.41", report.StatusSuccess, 1},
	}
	outcomes := rep.Outcomes()
	if len(outcomes) != len(want) {
		t.Fatalf("expected %d outcomes, got %d", len(want), len(outcomes))
	}
	for i, w := range want {
		o := outcomes[i]
		if o.Entry.Key() != w.key || o.Status != w.status || o.Attempts != w.attempts {
			t.Errorf("outcome %d = %s %s (%d attempts), want %s %s (%d attempts)",
				i, o.Entry.Key(), o.Status, o.Attempts, w.key, w.status, w.attempts)
		}
	}

	if len(sleeps.calls) != 3 {
		t.Errorf("expected 3 entry delays, got %d", len(sleeps.calls))
	}
	for _, d := range sleeps.calls {
		if d != time.Second {
			t.Errorf("unexpected delay %v", d)
		}
	}
}

func TestRunIsRepeatable(t *testing.T) {
	srv := testutils.StartFirmwareServer(t, []testutils.Firmware{
		{Section: catalog.SectionRetail, Version: "4.91", Data: testutils.GenerateTestData(64)},
		{Section: catalog.SectionGEX, Version: "4.80", Data: []byte("x"), Status: http.StatusForbidden},
	})
	store := newMemStore(t)
	entries := parseServed(t, srv)
	opts := Options{EntryDelay: -1}

	first, err := New(testClient(), FromStorage(store), opts).Run(context.Background(), entries)
	if err != nil {
		t.Fatalf("first Run: %v", err)
	}
	second, err := New(testClient(), FromStorage(store), opts).Run(context.Background(), entries)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}

	if changes := report.Diff(first, second); len(changes) != 0 {
		t.Errorf("expected identical runs, got %+v", changes)
	}
	if first.RunID == second.RunID {
		t.Error("expected distinct run ids")
	}
}

func TestRunEmptyCatalog(t *testing.T) {
	sleeps := &sleepRecorder{}
	rep, err := New(testClient(), FromStorage(newMemStore(t)), Options{Sleep: sleeps.sleep}).
		Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if s := rep.Summary(); s != (report.Summary{}) {
		t.Errorf("expected zero summary, got %+v", s)
	}
	if len(sleeps.calls) != 0 {
		t.Errorf("expected no delays, got %d", len(sleeps.calls))
	}
}

// fakeFetcher serves canned results without any network.
type fakeFetcher struct {
	fetch func(ctx context.Context, url string, open slurphttp.OpenSinkFunc) (slurphttp.FetchResult, error)
	calls int
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string, open slurphttp.OpenSinkFunc, progress slurphttp.ProgressFunc) (slurphttp.FetchResult, error) {
	f.calls++
	return f.fetch(ctx, url, open)
}

// writeAndCommit emulates a successful transfer of data.
func writeAndCommit(ctx context.Context, open slurphttp.OpenSinkFunc, data []byte) (slurphttp.FetchResult, error) {
	sink, err := open(ctx)
	if err != nil {
		return slurphttp.FetchResult{}, err
	}
	if _, err := sink.Write(data); err != nil {
		sink.Abort()
		return slurphttp.FetchResult{}, err
	}
	if err := sink.Commit(); err != nil {
		return slurphttp.FetchResult{}, err
	}
	return slurphttp.FetchResult{
		Status:       slurphttp.FetchSucceeded,
		BytesWritten: int64(len(data)),
		Attempts:     1,
		Elapsed:      time.Millisecond,
	}, nil
}

func testEntries(n int) []catalog.Entry {
	versions := []string{"4.91", "4.90", "4.89", "4.88"}
	entries := make([]catalog.Entry, n)
	for i := range entries {
		entries[i] = catalog.Entry{
			Section:  catalog.SectionRetail,
			Version:  versions[i],
			URL:      "http://x/" + versions[i] + "/fw.pup",
			Checksum: "sum",
			Index:    i,
		}
	}
	return entries
}

func TestRunCancelledMidTransfer(t *testing.T) {
	store := newMemStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f := &fakeFetcher{fetch: func(ctx context.Context, url string, open slurphttp.OpenSinkFunc) (slurphttp.FetchResult, error) {
		sink, err := open(ctx)
		if err != nil {
			return slurphttp.FetchResult{}, err
		}
		sink.Write([]byte("partial"))
		cancel()
		sink.Abort()
		return slurphttp.FetchResult{Attempts: 1}, ctx.Err()
	}}

	entries := testEntries(3)
	rep, err := New(f, FromStorage(store), Options{EntryDelay: -1}).Run(ctx, entries)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if f.calls != 1 {
		t.Errorf("expected remaining entries to be skipped, got %d fetches", f.calls)
	}

	outcomes := rep.Outcomes()
	if len(outcomes) != 1 || outcomes[0].Kind != report.KindCanceled {
		t.Fatalf("unexpected outcomes %+v", outcomes)
	}
	if rep.FinishedAt.IsZero() {
		t.Error("partial report should be finished")
	}

	in, err := store.Inspect(context.Background(), entries[0], false)
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if in.HasPayload {
		t.Error("aborted transfer left a payload")
	}
}

func TestRunCancelledDuringDelay(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f := &fakeFetcher{fetch: func(ctx context.Context, url string, open slurphttp.OpenSinkFunc) (slurphttp.FetchResult, error) {
		return writeAndCommit(ctx, open, []byte("fw"))
	}}
	sleep := func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}

	rep, err := New(f, FromStorage(newMemStore(t)), Options{Sleep: sleep}).Run(ctx, testEntries(3))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if s := rep.Summary(); s.Total != 1 || s.Succeeded != 1 {
		t.Errorf("unexpected summary %+v", s)
	}
}

// failingStore wraps a Store and fails selected operations.
type failingStore struct {
	Store
	checksumErr error
	removed     []string
}

func (s *failingStore) WriteChecksum(ctx context.Context, e catalog.Entry) error {
	if s.checksumErr != nil {
		return s.checksumErr
	}
	return s.Store.WriteChecksum(ctx, e)
}

func (s *failingStore) RemovePayload(ctx context.Context, e catalog.Entry) error {
	s.removed = append(s.removed, e.Key())
	return s.Store.RemovePayload(ctx, e)
}

func TestRunSidecarFailureRemovesPayload(t *testing.T) {
	backing := newMemStore(t)
	store := &failingStore{
		Store:       FromStorage(backing),
		checksumErr: &storage.Error{Op: "write checksum", Err: errors.New("disk full")},
	}
	f := &fakeFetcher{fetch: func(ctx context.Context, url string, open slurphttp.OpenSinkFunc) (slurphttp.FetchResult, error) {
		return writeAndCommit(ctx, open, []byte("firmware"))
	}}

	entries := testEntries(1)
	rep, err := New(f, store, Options{}).Run(context.Background(), entries)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	o := rep.Outcomes()[0]
	if o.Status != report.StatusFailed || o.Kind != report.KindStorage {
		t.Errorf("unexpected outcome %+v", o)
	}
	if len(store.removed) != 1 {
		t.Errorf("expected payload removal, got %v", store.removed)
	}

	in, err := backing.Inspect(context.Background(), entries[0], false)
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if in.HasPayload {
		t.Error("payload should have been removed")
	}
}

func TestRunStorageWriteFailure(t *testing.T) {
	f := &fakeFetcher{fetch: func(ctx context.Context, url string, open slurphttp.OpenSinkFunc) (slurphttp.FetchResult, error) {
		return slurphttp.FetchResult{Attempts: 1}, &storage.Error{Op: "write payload", Err: errors.New("read-only")}
	}}

	rep, err := New(f, FromStorage(newMemStore(t)), Options{EntryDelay: -1}).Run(context.Background(), testEntries(2))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for _, o := range rep.Outcomes() {
		if o.Kind != report.KindStorage {
			t.Errorf("expected storage failure, got %+v", o)
		}
	}
	if f.calls != 2 {
		t.Errorf("a failed entry must not stop the run, got %d fetches", f.calls)
	}
}

func TestRunUsesGivenRunID(t *testing.T) {
	now := time.Date(2024, 6, 24, 12, 0, 0, 0, time.UTC)
	rep, err := New(&fakeFetcher{}, FromStorage(newMemStore(t)), Options{
		RunID:  "fixed",
		Source: "fwlist.html",
		Now:    func() time.Time { return now },
	}).Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.RunID != "fixed" || rep.Source != "fwlist.html" || !rep.StartedAt.Equal(now) {
		t.Errorf("unexpected report header %+v", rep)
	}
}
