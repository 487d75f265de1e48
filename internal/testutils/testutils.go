// Package testutils provides shared test infrastructure: an HTTP server that
// publishes a firmware catalog and its payloads, and (behind the integration
// build tag) a Minio container.
package testutils

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/ligustah/fwslurp/internal/catalog"
)

// Firmware is one catalog row served by a FirmwareServer.
type Firmware struct {
	Section catalog.Section
	Version string
	Data    []byte

	// Checksum is published in the catalog. Defaults to the MD5 of Data.
	Checksum string

	// FailFirst makes the first n requests for the payload fail with 503.
	FailFirst int

	// Status, when set, is returned for every payload request.
	Status int
}

// Path returns the URL path the payload is served under.
func (f Firmware) Path() string {
	return "/fw/" + f.Section.Dir() + "/" + f.Version + "/PS3UPDAT.PUP"
}

func (f Firmware) checksum() string {
	if f.Checksum != "" {
		return f.Checksum
	}
	return MD5(f.Data)
}

// MD5 returns the lowercase hex MD5 of data.
func MD5(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

// GenerateTestData generates deterministic test data of the given size.
func GenerateTestData(size int) []byte {
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i % 251)
	}
	return data
}

// CatalogHTML renders a catalog page listing fws with payload URLs under
// baseURL. Every section gets a label and table, empty or not.
func CatalogHTML(baseURL string, fws []Firmware) string {
	bySection := make(map[catalog.Section][]Firmware)
	for _, f := range fws {
		bySection[f.Section] = append(bySection[f.Section], f)
	}

	var sb strings.Builder
	sb.WriteString("<!DOCTYPE html>\n<html><head><title>PS3 Firmware</title></head><body>\n")
	for _, s := range catalog.Sections() {
		fmt.Fprintf(&sb, "<div class=\"section\"><span>%s</span></div>\n<table>\n", s.Label())
		sb.WriteString("<tr><th>#</th><th>Version</th><th>Size</th><th>Download</th><th>MD5</th></tr>\n")
		for i, f := range bySection[s] {
			fmt.Fprintf(&sb, "<tr><td>%d</td><td>%s</td><td>%d B</td>"+
				"<td><button data-url=\"%s%s\">Download</button></td>"+
				"<td><a data-copy=\"%s\">Copy</a></td></tr>\n",
				i+1, f.Version, len(f.Data), baseURL, f.Path(), f.checksum())
		}
		sb.WriteString("</table>\n")
	}
	sb.WriteString("</body></html>\n")
	return sb.String()
}

// FirmwareServer serves a catalog at /catalog.html and the payloads it lists.
type FirmwareServer struct {
	*httptest.Server

	mu       sync.Mutex
	fws      map[string]*Firmware
	requests map[string]int
	catalog  string
}

// StartFirmwareServer starts a server for fws. It is closed when the test
// ends.
func StartFirmwareServer(t *testing.T, fws []Firmware) *FirmwareServer {
	t.Helper()

	s := &FirmwareServer{
		fws:      make(map[string]*Firmware, len(fws)),
		requests: make(map[string]int),
	}
	for i := range fws {
		f := fws[i]
		s.fws[f.Path()] = &f
	}

	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	s.catalog = CatalogHTML(s.URL, fws)
	t.Cleanup(s.Close)
	return s
}

// CatalogURL returns the URL of the catalog page.
func (s *FirmwareServer) CatalogURL() string {
	return s.URL + "/catalog.html"
}

// Catalog returns the catalog markup.
func (s *FirmwareServer) Catalog() string {
	return s.catalog
}

// Requests returns how many times path was requested.
func (s *FirmwareServer) Requests(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[path]
}

func (s *FirmwareServer) serve(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/catalog.html" {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		io.WriteString(w, s.catalog)
		return
	}

	s.mu.Lock()
	f, ok := s.fws[r.URL.Path]
	s.requests[r.URL.Path]++
	n := s.requests[r.URL.Path]
	s.mu.Unlock()

	switch {
	case !ok:
		http.NotFound(w, r)
	case f.Status != 0:
		w.WriteHeader(f.Status)
	case n <= f.FailFirst:
		w.WriteHeader(http.StatusServiceUnavailable)
	default:
		w.Header().Set("Content-Length", strconv.Itoa(len(f.Data)))
		w.Write(f.Data)
	}
}

// CompareReaderToData compares reader output with expected data in chunks.
func CompareReaderToData(t *testing.T, reader io.Reader, expected []byte) {
	t.Helper()

	buf := make([]byte, 64*1024)
	offset := 0

	for {
		n, err := reader.Read(buf)
		if n > 0 {
			if offset+n > len(expected) {
				t.Fatalf("read more data than expected: offset=%d, n=%d, expected len=%d",
					offset, n, len(expected))
			}
			if !bytes.Equal(buf[:n], expected[offset:offset+n]) {
				t.Fatalf("data mismatch at offset %d", offset)
			}
			offset += n
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("read error at offset %d: %v", offset, err)
		}
	}

	if offset != len(expected) {
		t.Fatalf("incomplete read: got %d bytes, want %d", offset, len(expected))
	}
}
