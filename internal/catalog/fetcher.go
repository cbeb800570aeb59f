package catalog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// maxFetchBytes caps catalog downloads. The toy catalog is a few hundred
// bytes; 8 MB leaves room for larger demonstration samples without letting
// a misconfigured URL consume unbounded memory.
const maxFetchBytes = 8 * 1024 * 1024

// Fetcher retrieves raw catalog data from a remote source.
type Fetcher struct {
	sourceURL  string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewFetcher creates a Fetcher for the given source URL.
func NewFetcher(sourceURL string, logger *slog.Logger) *Fetcher {
	return &Fetcher{
		sourceURL: sourceURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

// SourceURL returns the configured source URL.
func (f *Fetcher) SourceURL() string {
	return f.sourceURL
}

// Fetch performs an HTTP GET to retrieve raw catalog data.
func (f *Fetcher) Fetch(ctx context.Context) ([]byte, error) {
	if f.sourceURL == "" {
		return nil, fmt.Errorf("no catalog source URL configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.sourceURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching catalog data: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code %d from %s", resp.StatusCode, f.sourceURL)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	if len(body) > maxFetchBytes {
		return nil, fmt.Errorf("catalog response exceeds %d byte limit", maxFetchBytes)
	}

	return body, nil
}
