// Package report accumulates per-entry outcomes of a run and renders them.
//
// A Report is filled by the downloader, one Outcome per catalog entry in
// traversal order, and is never re-derived from storage. It renders as an
// aligned text table, JSON, CSV, HTML or YAML:
//
//	rep.Render(os.Stdout, report.FormatText)
//
// Reports from two runs of the same catalog can be compared with Diff.
package report
