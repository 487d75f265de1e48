package catalog

import (
	"fmt"
	"strings"
)

// Section is one of the four fixed catalog groupings.
type Section int

const (
	SectionRetail Section = iota + 1
	SectionTestkit
	SectionGEX
	SectionDECR
)

var sectionLabels = map[Section]string{
	SectionRetail:  "Retail Firmwares",
	SectionTestkit: "Testkit Firmwares",
	SectionGEX:     "PS3 GEX FW",
	SectionDECR:    "DECR Firmware",
}

var sectionNames = map[Section]string{
	SectionRetail:  "Retail",
	SectionTestkit: "Testkit",
	SectionGEX:     "GEX",
	SectionDECR:    "DECR",
}

// Sections returns all sections in catalog traversal order.
func Sections() []Section {
	return []Section{SectionRetail, SectionTestkit, SectionGEX, SectionDECR}
}

// Valid reports whether s is one of the known sections.
func (s Section) Valid() bool {
	_, ok := sectionNames[s]
	return ok
}

func (s Section) String() string {
	if name, ok := sectionNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Section(%d)", int(s))
}

// Label returns the heading text that introduces the section in the markup.
func (s Section) Label() string {
	return sectionLabels[s]
}

// Dir returns the storage directory name for the section.
func (s Section) Dir() string {
	return strings.ReplaceAll(s.Label(), " ", "_")
}

// MarshalText implements encoding.TextMarshaler.
func (s Section) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("catalog: invalid section %d", int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Section) UnmarshalText(text []byte) error {
	parsed, err := ParseSection(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseSection resolves a short name ("retail"), a markup label
// ("Retail Firmwares") or a directory name ("Retail_Firmwares").
func ParseSection(v string) (Section, error) {
	v = strings.TrimSpace(v)
	for _, s := range Sections() {
		if strings.EqualFold(v, s.String()) || v == s.Label() || v == s.Dir() {
			return s, nil
		}
	}
	return 0, fmt.Errorf("catalog: unknown section %q", v)
}

// Entry is one catalog row. Entries are values and never modified after
// parsing.
type Entry struct {
	Section  Section `json:"section" yaml:"section"`
	Version  string  `json:"version" yaml:"version"`
	Size     string  `json:"size" yaml:"size"`
	URL      string  `json:"url" yaml:"url"`
	Checksum string  `json:"checksum" yaml:"checksum"`

	// Index is the position of the entry in traversal order.
	Index int `json:"index" yaml:"index"`
}

// Key identifies the entry across runs.
func (e Entry) Key() string {
	return e.Section.String() + "/" + e.Version
}

// CatalogStructureError reports markup that does not match the expected
// four-section schema. Row is 1-based and counts data rows only; it is zero
// when the defect is not tied to a row.
type CatalogStructureError struct {
	Section Section
	Row     int
	Reason  string
}

func (e *CatalogStructureError) Error() string {
	switch {
	case e.Row > 0:
		return fmt.Sprintf("catalog: %s row %d: %s", e.Section, e.Row, e.Reason)
	case e.Section.Valid():
		return fmt.Sprintf("catalog: %s: %s", e.Section, e.Reason)
	default:
		return "catalog: " + e.Reason
	}
}

// Filter returns the entries that belong to one of sections, in their
// original order. An empty sections list keeps everything.
func Filter(entries []Entry, sections []Section) []Entry {
	if len(sections) == 0 {
		return entries
	}
	keep := make(map[Section]bool, len(sections))
	for _, s := range sections {
		keep[s] = true
	}
	var out []Entry
	for _, e := range entries {
		if keep[e.Section] {
			out = append(out, e)
		}
	}
	return out
}
