package extract

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Default fetcher configuration.
const (
	DefaultFetchTimeout = 30 * time.Second

	// maxBodyBytes caps a single page read so one oversized response cannot
	// exhaust memory during a batch ingest.
	maxBodyBytes = 10 << 20 // 10 MiB
)

// Fetcher retrieves raw HTML documents over HTTP with a bounded timeout.
type Fetcher struct {
	client    *http.Client
	userAgent string
}

// NewFetcher creates a Fetcher. A zero timeout falls back to
// DefaultFetchTimeout.
func NewFetcher(timeout time.Duration, userAgent string) *Fetcher {
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	return &Fetcher{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
	}
}

// Fetch downloads the page at rawURL and returns its body.
// Non-2xx statuses are errors; transient failures propagate to the caller,
// which decides whether they are fatal (single URL) or logged (batch).
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("fetch %s: unexpected status %d", rawURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("read %s: %w", rawURL, err)
	}

	return string(body), nil
}
