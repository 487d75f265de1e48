// Package progress renders live download progress for a run.
//
// Each entry gets its own byte bar while it transfers; bars fall back to a
// spinner when the server does not send a length. The reporter also keeps
// run totals and prints them once the run ends.
//
// # Usage
//
//	reporter := progress.NewReporter(progress.Options{
//	    Output: os.Stderr,
//	    Bars:   true,
//	    Total:  len(entries),
//	})
//
//	t := reporter.Track("Retail/4.91")
//	t.Update(written, total)
//	t.Done(true)
//
//	reporter.Summary()
//
// # Output Format
//
//	[3/12] Retail/4.91  45% |█████████         | (89 MiB/199 MiB, 11 MiB/s)
//	[fwslurp] Entries: 11 completed | 1 failed | 12 attempted
//	[fwslurp] Stored: 2.1 GiB | Total time: 4m 12s | Average speed: 8.6 MiB/s
package progress
