package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ligustah/fwslurp/internal/progress"
)

// Format selects a report rendering.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
	FormatHTML Format = "html"
	FormatYAML Format = "yaml"
)

// NotAvailable is rendered in place of metrics of failed entries.
const NotAvailable = "N/A"

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatText, FormatJSON, FormatCSV, FormatHTML, FormatYAML:
		return f, nil
	case "yml":
		return FormatYAML, nil
	case "htm":
		return FormatHTML, nil
	case "txt", "":
		return FormatText, nil
	default:
		return "", fmt.Errorf("report: unknown format %q", s)
	}
}

// FormatFromPath picks a format from the file extension, defaulting to text.
func FormatFromPath(path string) Format {
	f, err := ParseFormat(strings.TrimPrefix(filepath.Ext(path), "."))
	if err != nil {
		return FormatText
	}
	return f
}

type row struct {
	Section        string   `json:"section" yaml:"section"`
	Version        string   `json:"version" yaml:"version"`
	Status         Status   `json:"status" yaml:"status"`
	URL            string   `json:"url" yaml:"url"`
	Size           string   `json:"size" yaml:"size"`
	Checksum       string   `json:"checksum" yaml:"checksum"`
	Elapsed        string   `json:"elapsed" yaml:"elapsed"`
	Speed          string   `json:"average_speed" yaml:"average_speed"`
	Bytes          int64    `json:"bytes,omitempty" yaml:"bytes,omitempty"`
	ElapsedSeconds *float64 `json:"elapsed_seconds,omitempty" yaml:"elapsed_seconds,omitempty"`
	BytesPerSecond *float64 `json:"bytes_per_second,omitempty" yaml:"bytes_per_second,omitempty"`
	Attempts       int      `json:"attempts" yaml:"attempts"`
	Failure        string   `json:"failure,omitempty" yaml:"failure,omitempty"`
}

type document struct {
	RunID      string  `json:"run_id" yaml:"run_id"`
	Source     string  `json:"source,omitempty" yaml:"source,omitempty"`
	StartedAt  string  `json:"started_at" yaml:"started_at"`
	FinishedAt string  `json:"finished_at" yaml:"finished_at"`
	Summary    Summary `json:"summary" yaml:"summary"`
	Entries    []row   `json:"entries" yaml:"entries"`
}

func (r *Report) document() document {
	doc := document{
		RunID:      r.RunID,
		Source:     r.Source,
		StartedAt:  formatTime(r.StartedAt),
		FinishedAt: formatTime(r.FinishedAt),
		Summary:    r.Summary(),
		Entries:    make([]row, 0, len(r.outcomes)),
	}

	for _, o := range r.outcomes {
		rw := row{
			Section:  o.Entry.Section.Label(),
			Version:  o.Entry.Version,
			Status:   o.Status,
			URL:      o.Entry.URL,
			Size:     o.Entry.Size,
			Checksum: o.Entry.Checksum,
			Elapsed:  NotAvailable,
			Speed:    NotAvailable,
			Attempts: o.Attempts,
		}
		if o.Succeeded() {
			secs := o.Elapsed.Seconds()
			speed := o.AverageSpeed()
			rw.Bytes = o.BytesWritten
			rw.ElapsedSeconds = &secs
			rw.BytesPerSecond = &speed
			rw.Elapsed = fmt.Sprintf("%.2fs", secs)
			rw.Speed = progress.FormatSpeed(speed)
		} else {
			rw.Failure = string(o.Kind)
			if o.Reason != "" {
				rw.Failure += ": " + o.Reason
			}
		}
		doc.Entries = append(doc.Entries, rw)
	}

	return doc
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}

// Render writes the report in the given format.
func (r *Report) Render(w io.Writer, format Format) error {
	doc := r.document()

	switch format {
	case FormatText, "":
		return renderText(w, doc)
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return err
		}
		return enc.Close()
	case FormatCSV:
		return renderCSV(w, doc)
	case FormatHTML:
		return htmlTemplate.Execute(w, doc)
	default:
		return fmt.Errorf("report: unknown format %q", format)
	}
}

var columns = []string{"Section", "Version", "Status", "URL", "Size", "Checksum", "Time", "Speed"}

func (rw row) cells() []string {
	return []string{rw.Section, rw.Version, string(rw.Status), rw.URL, rw.Size, rw.Checksum, rw.Elapsed, rw.Speed}
}

func renderText(w io.Writer, doc document) error {
	fmt.Fprintf(w, "Run:      %s\n", doc.RunID)
	if doc.Source != "" {
		fmt.Fprintf(w, "Catalog:  %s\n", doc.Source)
	}
	fmt.Fprintf(w, "Started:  %s\n", doc.StartedAt)
	fmt.Fprintf(w, "Finished: %s\n", doc.FinishedAt)
	fmt.Fprintf(w, "Total: %d | Success: %d | Failure: %d\n\n",
		doc.Summary.Total, doc.Summary.Succeeded, doc.Summary.Failed)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(columns, "\t"))
	for _, rw := range doc.Entries {
		fmt.Fprintln(tw, strings.Join(rw.cells(), "\t"))
	}
	return tw.Flush()
}

func renderCSV(w io.Writer, doc document) error {
	cw := csv.NewWriter(w)
	header := append(append([]string(nil), columns...), "Attempts", "Failure")
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, rw := range doc.Entries {
		record := append(rw.cells(), strconv.Itoa(rw.Attempts), rw.Failure)
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

var htmlTemplate = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Firmware download report {{.RunID}}</title>
<style>
table { border-collapse: collapse; }
th, td { border: 1px solid #ccc; padding: 4px 8px; text-align: left; }
tr.Failed { background: #fdd; }
</style>
</head>
<body>
<h1>Firmware download report</h1>
<p>Run {{.RunID}}{{if .Source}} of {{.Source}}{{end}}</p>
<p>Started {{.StartedAt}} &middot; Finished {{.FinishedAt}}</p>
<p>Total: {{.Summary.Total}} &middot; Success: {{.Summary.Succeeded}} &middot; Failure: {{.Summary.Failed}}</p>
<table>
<tr><th>Section</th><th>Version</th><th>Status</th><th>URL</th><th>Size</th><th>Checksum</th><th>Time</th><th>Speed</th></tr>
{{- range .Entries}}
<tr class="{{.Status}}"><td>{{.Section}}</td><td>{{.Version}}</td><td>{{.Status}}</td><td><a href="{{.URL}}">{{.URL}}</a></td><td>{{.Size}}</td><td>{{.Checksum}}</td><td>{{.Elapsed}}</td><td>{{.Speed}}</td></tr>
{{- end}}
</table>
</body>
</html>
`))
