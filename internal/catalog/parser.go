package catalog

import (
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Column layout of a section table row.
const (
	colVersion  = 1
	colSize     = 2
	colDownload = 3
	colChecksum = 4
	numColumns  = 5
)

// Parse extracts every entry from the catalog markup. It never returns a
// partial catalog: on the first structural defect the result is nil.
func Parse(markup string) ([]Entry, error) {
	doc, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return nil, &CatalogStructureError{Reason: fmt.Sprintf("parse markup: %v", err)}
	}

	nodes := flatten(doc)

	var entries []Entry
	for _, section := range Sections() {
		table, err := sectionTable(nodes, section)
		if err != nil {
			return nil, err
		}

		rows := findAll(table, atom.Tr)
		if len(rows) == 0 {
			return nil, &CatalogStructureError{Section: section, Reason: "table has no header row"}
		}

		seen := make(map[string]bool)
		for i, row := range rows[1:] {
			entry, reason := parseRow(section, row)
			if reason == "" && seen[entry.Version] {
				reason = fmt.Sprintf("duplicate version %q", entry.Version)
			}
			if reason != "" {
				return nil, &CatalogStructureError{Section: section, Row: i + 1, Reason: reason}
			}
			seen[entry.Version] = true
			entry.Index = len(entries)
			entries = append(entries, entry)
		}
	}

	return entries, nil
}

// sectionTable finds the labelled span for section and returns the first
// table that follows it in document order.
func sectionTable(nodes []*html.Node, section Section) (*html.Node, error) {
	label := -1
	for i, n := range nodes {
		if n.Type == html.ElementNode && n.DataAtom == atom.Span && strings.TrimSpace(textContent(n)) == section.Label() {
			label = i
			break
		}
	}
	if label < 0 {
		return nil, &CatalogStructureError{Section: section, Reason: fmt.Sprintf("label %q not found", section.Label())}
	}

	for _, n := range nodes[label+1:] {
		if n.Type == html.ElementNode && n.DataAtom == atom.Table {
			return n, nil
		}
	}
	return nil, &CatalogStructureError{Section: section, Reason: "no table follows the section label"}
}

// parseRow returns the entry for one data row, or a non-empty reason when the
// row does not have the expected shape.
func parseRow(section Section, row *html.Node) (Entry, string) {
	cells := findAll(row, atom.Td)
	if len(cells) < numColumns {
		return Entry{}, fmt.Sprintf("expected %d columns, got %d", numColumns, len(cells))
	}

	version := strings.TrimSpace(textContent(cells[colVersion]))
	if reason := checkVersion(version); reason != "" {
		return Entry{}, reason
	}

	button := findFirst(cells[colDownload], atom.Button)
	if button == nil {
		return Entry{}, "download column has no button"
	}
	downloadURL, ok := attr(button, "data-url")
	if !ok {
		return Entry{}, "download button has no data-url attribute"
	}
	downloadURL = strings.TrimSpace(downloadURL)
	if reason := checkURL(downloadURL); reason != "" {
		return Entry{}, reason
	}

	link := findFirst(cells[colChecksum], atom.A)
	if link == nil {
		return Entry{}, "checksum column has no link"
	}
	checksum, ok := attr(link, "data-copy")
	if !ok {
		return Entry{}, "checksum link has no data-copy attribute"
	}

	return Entry{
		Section:  section,
		Version:  version,
		Size:     strings.TrimSpace(textContent(cells[colSize])),
		URL:      downloadURL,
		Checksum: strings.TrimSpace(checksum),
	}, ""
}

// checkVersion rejects versions that cannot be used as a storage key.
func checkVersion(v string) string {
	switch {
	case v == "":
		return "empty version"
	case v == "." || v == "..":
		return fmt.Sprintf("version %q is not a valid path segment", v)
	case strings.ContainsAny(v, "/\\\x00"):
		return fmt.Sprintf("version %q contains a path separator", v)
	}
	return ""
}

func checkURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Sprintf("invalid download url %q: %v", raw, err)
	}
	if !u.IsAbs() || u.Host == "" {
		return fmt.Sprintf("download url %q is not absolute", raw)
	}
	return ""
}

// flatten returns the nodes below n in document order.
func flatten(n *html.Node) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		out = append(out, n)
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return out
}

func findAll(n *html.Node, a atom.Atom) []*html.Node {
	var out []*html.Node
	for _, c := range flatten(n)[1:] {
		if c.Type == html.ElementNode && c.DataAtom == a {
			out = append(out, c)
		}
	}
	return out
}

func findFirst(n *html.Node, a atom.Atom) *html.Node {
	for _, c := range flatten(n)[1:] {
		if c.Type == html.ElementNode && c.DataAtom == a {
			return c
		}
	}
	return nil
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	for _, c := range flatten(n) {
		if c.Type == html.TextNode {
			sb.WriteString(c.Data)
		}
	}
	return sb.String()
}
