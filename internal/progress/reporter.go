package progress

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/schollz/progressbar/v3"
)

// Options configures the progress reporter.
type Options struct {
	// Output is where bars and the summary are written.
	// Default: os.Stderr
	Output io.Writer

	// Bars enables the per-entry byte bars. When false the reporter only
	// counts.
	Bars bool

	// Throttle limits how often a bar redraws.
	// Default: 100ms
	Throttle time.Duration

	// Total is the number of entries the run will attempt, for display.
	Total int
}

// Reporter tracks run totals and renders one bar per entry.
type Reporter struct {
	opts Options

	started   atomic.Int32
	completed atomic.Int32
	failed    atomic.Int32
	inFlight  atomic.Int32
	bytes     atomic.Int64

	mu        sync.Mutex
	startTime time.Time
}

// NewReporter creates a new progress reporter.
func NewReporter(opts Options) *Reporter {
	if opts.Output == nil {
		opts.Output = os.Stderr
	}
	if opts.Throttle == 0 {
		opts.Throttle = 100 * time.Millisecond
	}

	return &Reporter{opts: opts}
}

// Tracker follows the transfer of one entry.
type Tracker struct {
	r     *Reporter
	label string
	bar   *progressbar.ProgressBar
	max   int64
	last  int64
	done  bool
}

// Track marks an entry as started and returns its tracker.
func (r *Reporter) Track(label string) *Tracker {
	r.mu.Lock()
	if r.startTime.IsZero() {
		r.startTime = time.Now()
	}
	r.mu.Unlock()

	n := r.started.Add(1)
	r.inFlight.Add(1)

	if r.opts.Total > 0 {
		label = fmt.Sprintf("[%d/%d] %s", n, r.opts.Total, label)
	}
	return &Tracker{r: r, label: label, max: -2}
}

// Update reports bytes written so far. total is -1 when the length is
// unknown. Counters restart from zero when written goes backwards, which
// happens when a transfer is retried.
func (t *Tracker) Update(written, total int64) {
	if t == nil || t.done {
		return
	}

	if written < t.last {
		t.r.bytes.Add(-t.last)
		t.last = 0
	}
	t.r.bytes.Add(written - t.last)
	t.last = written

	if !t.r.opts.Bars {
		return
	}
	if t.bar == nil || total != t.max {
		t.newBar(total)
	}
	_ = t.bar.Set64(written)
}

func (t *Tracker) newBar(total int64) {
	if t.bar != nil {
		_ = t.bar.Exit()
	}
	t.max = total
	t.bar = progressbar.NewOptions64(
		total,
		progressbar.OptionSetWriter(t.r.opts.Output),
		progressbar.OptionSetWidth(30),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetDescription(t.label),
		progressbar.OptionThrottle(t.r.opts.Throttle),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprintln(t.r.opts.Output)
		}),
	)
}

// Done marks the entry as finished. Bytes of a failed entry are not
// counted toward the run total.
func (t *Tracker) Done(ok bool) {
	if t == nil || t.done {
		return
	}
	t.done = true
	t.r.inFlight.Add(-1)

	if ok {
		t.r.completed.Add(1)
	} else {
		t.r.failed.Add(1)
		t.r.bytes.Add(-t.last)
	}

	if t.bar != nil {
		if ok {
			_ = t.bar.Finish()
		} else {
			_ = t.bar.Exit()
			fmt.Fprintln(t.r.opts.Output)
		}
	}
}

// Counts is a snapshot of the reporter.
type Counts struct {
	Started   int
	Completed int
	Failed    int
	InFlight  int
	Bytes     int64
}

// Counts returns the current totals.
func (r *Reporter) Counts() Counts {
	return Counts{
		Started:   int(r.started.Load()),
		Completed: int(r.completed.Load()),
		Failed:    int(r.failed.Load()),
		InFlight:  int(r.inFlight.Load()),
		Bytes:     r.bytes.Load(),
	}
}

// Summary writes the run totals.
func (r *Reporter) Summary() {
	r.mu.Lock()
	start := r.startTime
	r.mu.Unlock()

	c := r.Counts()
	var duration time.Duration
	if !start.IsZero() {
		duration = time.Since(start)
	}
	var avg float64
	if duration > 0 {
		avg = float64(c.Bytes) / duration.Seconds()
	}

	fmt.Fprintf(r.opts.Output, "[fwslurp] Entries: %d completed | %d failed | %d attempted\n",
		c.Completed, c.Failed, c.Started)
	fmt.Fprintf(r.opts.Output, "[fwslurp] Stored: %s | Total time: %s | Average speed: %s\n",
		FormatBytes(c.Bytes),
		formatDuration(duration),
		FormatSpeed(avg),
	)
}

// formatDuration formats a duration as a human-readable string.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.0fs", d.Seconds())
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm %ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%dh %dm %ds", h, m, s)
}

var iecUnits = []string{"KiB", "MiB", "GiB", "TiB"}

// FormatBytes formats bytes with IEC units. Values below ten keep one
// decimal.
func FormatBytes(b int64) string {
	if b < 1024 {
		return fmt.Sprintf("%d B", b)
	}

	v := float64(b)
	unit := ""
	for _, u := range iecUnits {
		v /= 1024
		unit = u
		if v < 1024 {
			break
		}
	}

	if v < 10 {
		return fmt.Sprintf("%.1f %s", v, unit)
	}
	return fmt.Sprintf("%.0f %s", v, unit)
}

// FormatSpeed formats a bytes-per-second rate.
func FormatSpeed(bytesPerSecond float64) string {
	if bytesPerSecond < 0 {
		bytesPerSecond = 0
	}
	return FormatBytes(int64(bytesPerSecond)) + "/s"
}

var byteSuffixes = []struct {
	suffix     string
	multiplier int64
}{
	{"TiB", 1 << 40},
	{"GiB", 1 << 30},
	{"MiB", 1 << 20},
	{"KiB", 1 << 10},
	{"TB", 1000 * 1000 * 1000 * 1000},
	{"GB", 1000 * 1000 * 1000},
	{"MB", 1000 * 1000},
	{"KB", 1000},
	{"B", 1},
}

// ParseBytes parses a human-readable byte string such as "1KiB" or "16MB".
// IEC suffixes are powers of 1024, SI suffixes powers of 1000.
func ParseBytes(s string) (int64, error) {
	s = strings.TrimSpace(s)
	var multiplier int64 = 1

	for _, bs := range byteSuffixes {
		if strings.HasSuffix(s, bs.suffix) {
			multiplier = bs.multiplier
			s = strings.TrimSpace(strings.TrimSuffix(s, bs.suffix))
			break
		}
	}

	value, err := strconv.ParseFloat(s, 64)
	if err != nil || value < 0 {
		return 0, fmt.Errorf("invalid byte string: %q", s)
	}

	return int64(value * float64(multiplier)), nil
}
