// Package downloader runs a catalog through the fetch pipeline.
//
// Entries are processed strictly one after another: open a payload sink,
// stream the firmware through the retrying HTTP client, then write the
// checksum sidecar next to it. Every attempted entry yields exactly one
// report.Outcome; a failing entry never stops the run.
//
// # Usage
//
//	store, err := storage.Open(ctx, "./firmware")
//	client := slurphttp.NewClient(slurphttp.DefaultOptions())
//
//	d := downloader.New(client, downloader.FromStorage(store), downloader.Options{
//	    EntryDelay: 5 * time.Second,
//	    Logger:     logger,
//	})
//	rep, err := d.Run(ctx, entries)
//
// # Cancellation
//
// The context is checked before each entry and during the pause between
// entries. A transfer in flight when the context ends is aborted through its
// sink, so no truncated payload becomes visible, and is recorded as failed
// with kind "canceled". Run then returns the partial report together with
// the context error.
package downloader
