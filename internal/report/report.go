package report

import (
	"time"

	"github.com/ligustah/fwslurp/internal/catalog"
)

// Status is the result of attempting one entry.
type Status string

const (
	StatusSuccess Status = "Success"
	StatusFailed  Status = "Failed"
)

// FailureKind says why an entry failed.
type FailureKind string

const (
	KindTransfer FailureKind = "transfer"
	KindStorage  FailureKind = "storage"
	KindCanceled FailureKind = "canceled"
)

// Outcome records what happened to one entry. Metrics are only meaningful
// when Status is StatusSuccess.
type Outcome struct {
	Entry        catalog.Entry
	Status       Status
	BytesWritten int64
	Elapsed      time.Duration
	Attempts     int

	Kind   FailureKind
	Reason string
}

// Succeeded reports whether the entry was stored.
func (o Outcome) Succeeded() bool {
	return o.Status == StatusSuccess
}

// AverageSpeed returns bytes per second, or 0 for failed or instantaneous
// transfers.
func (o Outcome) AverageSpeed() float64 {
	if !o.Succeeded() || o.Elapsed <= 0 {
		return 0
	}
	return float64(o.BytesWritten) / o.Elapsed.Seconds()
}

// Summary holds the run-level counts.
type Summary struct {
	Total     int `json:"total" yaml:"total"`
	Succeeded int `json:"success" yaml:"success"`
	Failed    int `json:"failure" yaml:"failure"`
}

// Report is the ordered record of one run.
type Report struct {
	RunID      string
	Source     string
	StartedAt  time.Time
	FinishedAt time.Time

	outcomes []Outcome
}

// New starts a report for a run.
func New(runID, source string, startedAt time.Time) *Report {
	return &Report{
		RunID:     runID,
		Source:    source,
		StartedAt: startedAt,
	}
}

// Restore rebuilds a finished report from persisted state.
func Restore(runID, source string, startedAt, finishedAt time.Time, outcomes []Outcome) *Report {
	r := New(runID, source, startedAt)
	r.FinishedAt = finishedAt
	r.outcomes = append([]Outcome(nil), outcomes...)
	return r
}

// Record appends an outcome.
func (r *Report) Record(o Outcome) {
	r.outcomes = append(r.outcomes, o)
}

// Finish sets the end time. Later calls are ignored.
func (r *Report) Finish(t time.Time) {
	if r.FinishedAt.IsZero() {
		r.FinishedAt = t
	}
}

// Outcomes returns a copy of the recorded outcomes in record order.
func (r *Report) Outcomes() []Outcome {
	return append([]Outcome(nil), r.outcomes...)
}

// Summary counts outcomes by status.
func (r *Report) Summary() Summary {
	s := Summary{Total: len(r.outcomes)}
	for _, o := range r.outcomes {
		if o.Succeeded() {
			s.Succeeded++
		} else {
			s.Failed++
		}
	}
	return s
}

// Duration returns the wall time of the run, or zero if it has not finished.
func (r *Report) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
