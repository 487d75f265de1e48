package catalog

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
)

// Getter fetches a remote document.
type Getter interface {
	Get(ctx context.Context, url string) (io.ReadCloser, error)
}

// Load reads catalog markup from a local file or, when source is an http(s)
// URL, from the network.
func Load(ctx context.Context, source string, getter Getter) (string, error) {
	if source == "" {
		return "", fmt.Errorf("catalog: no source given")
	}

	if !isRemote(source) {
		data, err := os.ReadFile(source)
		if err != nil {
			return "", fmt.Errorf("read catalog: %w", err)
		}
		return string(data), nil
	}

	if getter == nil {
		return "", fmt.Errorf("catalog: no client to fetch %s", source)
	}
	body, err := getter.Get(ctx, source)
	if err != nil {
		return "", fmt.Errorf("fetch catalog: %w", err)
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return "", fmt.Errorf("read catalog body: %w", err)
	}
	return string(data), nil
}

func isRemote(source string) bool {
	lower := strings.ToLower(source)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}
