package catalog

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type fakeGetter struct {
	body string
	err  error
	url  string
}

func (g *fakeGetter) Get(ctx context.Context, url string) (io.ReadCloser, error) {
	g.url = url
	if g.err != nil {
		return nil, g.err
	}
	return io.NopCloser(strings.NewReader(g.body)), nil
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fwlist.html")
	if err := os.WriteFile(path, []byte("<html></html>"), 0644); err != nil {
		t.Fatalf("write catalog: %v", err)
	}

	markup, err := Load(context.Background(), path, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if markup != "<html></html>" {
		t.Errorf("unexpected markup %q", markup)
	}
}

func TestLoadRemote(t *testing.T) {
	getter := &fakeGetter{body: "<html>remote</html>"}

	markup, err := Load(context.Background(), "https://example.com/PS3/FWlist", getter)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if markup != "<html>remote</html>" {
		t.Errorf("unexpected markup %q", markup)
	}
	if getter.url != "https://example.com/PS3/FWlist" {
		t.Errorf("getter called with %q", getter.url)
	}
}

func TestLoadRemoteError(t *testing.T) {
	boom := errors.New("boom")
	_, err := Load(context.Background(), "http://example.com/list", &fakeGetter{err: boom})
	if !errors.Is(err, boom) {
		t.Errorf("expected wrapped error, got %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(context.Background(), filepath.Join(t.TempDir(), "nope.html"), nil)
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected ErrNotExist, got %v", err)
	}
}
