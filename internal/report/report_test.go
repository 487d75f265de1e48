package report

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ligustah/fwslurp/internal/catalog"
)

var testStart = time.Date(2024, 6, 24, 10, 0, 0, 0, time.UTC)

func entry(section catalog.Section, version string) catalog.Entry {
	return catalog.Entry{
		Section:  section,
		Version:  version,
		Size:     "199 MB",
		URL:      "http://x/" + version + "/fw.pup",
		Checksum: "sum-" + version,
	}
}

func success(e catalog.Entry, bytes int64, elapsed time.Duration) Outcome {
	return Outcome{Entry: e, Status: StatusSuccess, BytesWritten: bytes, Elapsed: elapsed, Attempts: 1}
}

func failure(e catalog.Entry, kind FailureKind, reason string) Outcome {
	return Outcome{Entry: e, Status: StatusFailed, Attempts: 3, Kind: kind, Reason: reason}
}

func sampleReport() *Report {
	r := New("run-1", "fwlist.html", testStart)
	r.Record(success(entry(catalog.SectionRetail, "4.91"), 2048, 2*time.Second))
	r.Record(failure(entry(catalog.SectionDECR, "3.41"), KindTransfer, "http: server error: 503"))
	r.Finish(testStart.Add(time.Minute))
	return r
}

func TestSummary(t *testing.T) {
	s := sampleReport().Summary()
	if s.Total != 2 || s.Succeeded != 1 || s.Failed != 1 {
		t.Errorf("unexpected summary %+v", s)
	}
}

func TestFinishOnce(t *testing.T) {
	r := New("run", "", testStart)
	r.Finish(testStart.Add(time.Second))
	r.Finish(testStart.Add(time.Hour))
	if r.Duration() != time.Second {
		t.Errorf("expected 1s duration, got %v", r.Duration())
	}
}

func TestOutcomesIsCopy(t *testing.T) {
	r := sampleReport()
	out := r.Outcomes()
	out[0].Status = StatusFailed
	if r.Outcomes()[0].Status != StatusSuccess {
		t.Error("Outcomes must not expose internal state")
	}
}

func TestAverageSpeed(t *testing.T) {
	o := success(entry(catalog.SectionRetail, "4.91"), 1000, 2*time.Second)
	if o.AverageSpeed() != 500 {
		t.Errorf("expected 500 B/s, got %v", o.AverageSpeed())
	}
	f := failure(entry(catalog.SectionRetail, "4.90"), KindTransfer, "")
	if f.AverageSpeed() != 0 {
		t.Errorf("expected 0 for failed outcome, got %v", f.AverageSpeed())
	}
}

func TestRenderJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := sampleReport().Render(&buf, FormatJSON); err != nil {
		t.Fatalf("Render: %v", err)
	}

	var doc document
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	if doc.RunID != "run-1" {
		t.Errorf("expected run-1, got %s", doc.RunID)
	}
	if doc.StartedAt != "2024-06-24T10:00:00Z" || doc.FinishedAt != "2024-06-24T10:01:00Z" {
		t.Errorf("unexpected timestamps %s / %s", doc.StartedAt, doc.FinishedAt)
	}
	if doc.Summary.Total != 2 || doc.Summary.Failed != 1 {
		t.Errorf("unexpected summary %+v", doc.Summary)
	}
	if len(doc.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(doc.Entries))
	}

	ok := doc.Entries[0]
	if ok.Section != "Retail Firmwares" || ok.Status != StatusSuccess || ok.Elapsed != "2.00s" {
		t.Errorf("unexpected success row %+v", ok)
	}
	if ok.BytesPerSecond == nil || *ok.BytesPerSecond != 1024 {
		t.Errorf("expected 1024 B/s, got %v", ok.BytesPerSecond)
	}

	failed := doc.Entries[1]
	if failed.Elapsed != NotAvailable || failed.Speed != NotAvailable {
		t.Errorf("expected N/A metrics, got %q / %q", failed.Elapsed, failed.Speed)
	}
	if failed.ElapsedSeconds != nil || failed.BytesPerSecond != nil {
		t.Error("failed rows must not carry numeric metrics")
	}
	if !strings.HasPrefix(failed.Failure, "transfer: ") {
		t.Errorf("unexpected failure %q", failed.Failure)
	}
}

func TestRenderCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := sampleReport().Render(&buf, FormatCSV); err != nil {
		t.Fatalf("Render: %v", err)
	}

	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected header + 2 rows, got %d", len(records))
	}
	if records[0][0] != "Section" || records[0][7] != "Speed" {
		t.Errorf("unexpected header %v", records[0])
	}
	if records[2][2] != "Failed" || records[2][6] != NotAvailable {
		t.Errorf("unexpected failed row %v", records[2])
	}
}

func TestRenderText(t *testing.T) {
	var buf bytes.Buffer
	if err := sampleReport().Render(&buf, FormatText); err != nil {
		t.Fatalf("Render: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"Run:      run-1", "Total: 2 | Success: 1 | Failure: 1", "Retail Firmwares", "N/A"} {
		if !strings.Contains(out, want) {
			t.Errorf("text report missing %q:\n%s", want, out)
		}
	}
}

func TestRenderHTMLEscapes(t *testing.T) {
	r := New("run", "", testStart)
	e := entry(catalog.SectionRetail, "4.91")
	e.Checksum = "<script>"
	r.Record(success(e, 1, time.Second))

	var buf bytes.Buffer
	if err := r.Render(&buf, FormatHTML); err != nil {
		t.Fatalf("Render: %v", err)
	}
	if strings.Contains(buf.String(), "<script>") {
		t.Error("checksum was not escaped")
	}
}

func TestRenderEmpty(t *testing.T) {
	r := New("empty", "", testStart)
	r.Finish(testStart)

	for _, f := range []Format{FormatText, FormatJSON, FormatCSV, FormatHTML, FormatYAML} {
		var buf bytes.Buffer
		if err := r.Render(&buf, f); err != nil {
			t.Errorf("Render(%s): %v", f, err)
		}
	}

	var buf bytes.Buffer
	r.Render(&buf, FormatYAML)
	var doc document
	if err := yaml.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if doc.Summary != (Summary{}) || len(doc.Entries) != 0 {
		t.Errorf("expected zero counts, got %+v", doc.Summary)
	}

	buf.Reset()
	r.Render(&buf, FormatJSON)
	if !strings.Contains(buf.String(), `"entries": []`) {
		t.Errorf("expected empty entries array:\n%s", buf.String())
	}
}

func TestRenderUnknownFormat(t *testing.T) {
	if err := sampleReport().Render(&bytes.Buffer{}, Format("pdf")); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		input    string
		expected Format
	}{
		{"json", FormatJSON},
		{"YAML", FormatYAML},
		{"yml", FormatYAML},
		{"htm", FormatHTML},
		{"", FormatText},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.input)
		if err != nil || got != tt.expected {
			t.Errorf("ParseFormat(%q) = %q, %v; want %q", tt.input, got, err, tt.expected)
		}
	}
	if _, err := ParseFormat("pdf"); err == nil {
		t.Error("expected error for pdf")
	}
}

func TestFormatFromPath(t *testing.T) {
	tests := map[string]Format{
		"report.json": FormatJSON,
		"report.csv":  FormatCSV,
		"report.html": FormatHTML,
		"report.yml":  FormatYAML,
		"report":      FormatText,
		"report.pdf":  FormatText,
	}
	for path, want := range tests {
		if got := FormatFromPath(path); got != want {
			t.Errorf("FormatFromPath(%q) = %q, want %q", path, got, want)
		}
	}
}

func TestDiff(t *testing.T) {
	retail := entry(catalog.SectionRetail, "4.91")
	testkit := entry(catalog.SectionTestkit, "4.91")
	decr := entry(catalog.SectionDECR, "3.41")
	gex := entry(catalog.SectionGEX, "4.80")

	prev := New("a", "", testStart)
	prev.Record(success(retail, 1, time.Second))
	prev.Record(failure(testkit, KindTransfer, ""))
	prev.Record(success(decr, 1, time.Second))

	cur := New("b", "", testStart)
	cur.Record(success(retail, 1, time.Second))
	cur.Record(success(testkit, 1, time.Second))
	cur.Record(failure(gex, KindStorage, ""))

	changes := Diff(prev, cur)
	want := []Change{
		{Key: "Testkit/4.91", Before: StatusFailed, After: StatusSuccess},
		{Key: "GEX/4.80", After: StatusFailed},
		{Key: "DECR/3.41", Before: StatusSuccess},
	}
	if len(changes) != len(want) {
		t.Fatalf("expected %d changes, got %d: %+v", len(want), len(changes), changes)
	}
	for i := range want {
		if changes[i] != want[i] {
			t.Errorf("change %d = %+v, want %+v", i, changes[i], want[i])
		}
	}

	if d := Diff(cur, cur); len(d) != 0 {
		t.Errorf("expected no changes against itself, got %+v", d)
	}
}

func TestRestore(t *testing.T) {
	orig := sampleReport()
	r := Restore(orig.RunID, orig.Source, orig.StartedAt, orig.FinishedAt, orig.Outcomes())
	if r.Summary() != orig.Summary() {
		t.Errorf("restored summary %+v != %+v", r.Summary(), orig.Summary())
	}
	if !r.FinishedAt.Equal(orig.FinishedAt) {
		t.Error("restored report lost its end time")
	}
}
