package stories

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/japaniel/rtkstories/pkg/apperr"
)

const (
	// DefaultBaseURL is the RTK reference site.
	DefaultBaseURL = "http://hochanh.github.io/rtk"

	// 10 MB is far above any kanji page; it only guards against runaway bodies.
	maxBodySize = 10 * 1024 * 1024
)

// Fetcher downloads pages from the reference site.
type Fetcher struct {
	baseURL string
	client  *http.Client
}

// NewFetcher creates a Fetcher rooted at baseURL. A nil client gets a
// 30 second timeout.
func NewFetcher(baseURL string, client *http.Client) *Fetcher {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Fetcher{baseURL: baseURL, client: client}
}

// PageURL returns the address of the page for key.
func (f *Fetcher) PageURL(key string) string {
	return f.baseURL + "/" + url.PathEscape(key) + "/index.html"
}

// LegacyURL returns the address of the RTK v4 page with the given number.
func (f *Fetcher) LegacyURL(id string) string {
	return f.baseURL + "/v4/" + url.PathEscape(id) + ".html"
}

// Page downloads the page for key.
func (f *Fetcher) Page(ctx context.Context, key string) ([]byte, error) {
	body, status, err := f.get(ctx, f.PageURL(key))
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, &apperr.TransportError{Op: "GET", URL: f.PageURL(key), Err: fmt.Errorf("unexpected status %d", status)}
	}
	return body, nil
}

// Legacy downloads the RTK v4 page for id. A 404 from the site means the id
// is unknown.
func (f *Fetcher) Legacy(ctx context.Context, id string) ([]byte, error) {
	body, status, err := f.get(ctx, f.LegacyURL(id))
	if err != nil {
		return nil, err
	}
	switch status {
	case http.StatusOK:
		return body, nil
	case http.StatusNotFound:
		return nil, fmt.Errorf("legacy page %s: %w", id, apperr.ErrNotFound)
	default:
		return nil, &apperr.TransportError{Op: "GET", URL: f.LegacyURL(id), Err: fmt.Errorf("unexpected status %d", status)}
	}
}

func (f *Fetcher) get(ctx context.Context, target string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("build request for %s: %w", target, err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9,ja;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, 0, &apperr.TransportError{Op: "GET", URL: target, Err: err}
	}
	defer resp.Body.Close()

	if resp.ContentLength > maxBodySize {
		return nil, 0, &apperr.TransportError{Op: "GET", URL: target, Err: fmt.Errorf("content-length %d exceeds limit of %d bytes", resp.ContentLength, maxBodySize)}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize+1))
	if err != nil {
		return nil, 0, &apperr.TransportError{Op: "GET", URL: target, Err: fmt.Errorf("read body: %w", err)}
	}
	if len(body) > maxBodySize {
		return nil, 0, &apperr.TransportError{Op: "GET", URL: target, Err: fmt.Errorf("body exceeds limit of %d bytes", maxBodySize)}
	}
	return body, resp.StatusCode, nil
}
