package consensus

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPSource fetches consensus rows from a JSON endpoint that returns an
// array of row objects. It covers the common case of a per-site scraper
// service exposing its output over HTTP.
type HTTPSource struct {
	id         string
	url        string
	httpClient *http.Client
	headers    map[string]string
}

// HTTPSourceOption configures an HTTPSource.
type HTTPSourceOption func(*HTTPSource)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) HTTPSourceOption {
	return func(s *HTTPSource) { s.httpClient = c }
}

// WithHeader adds a request header, typically an API key.
func WithHeader(key, value string) HTTPSourceOption {
	return func(s *HTTPSource) { s.headers[key] = value }
}

// NewHTTPSource builds a source that GETs rows from url.
func NewHTTPSource(id, url string, opts ...HTTPSourceOption) *HTTPSource {
	s := &HTTPSource{
		id:         id,
		url:        url,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		headers:    make(map[string]string),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ID implements Source.
func (s *HTTPSource) ID() string { return s.id }

// Fetch implements Source.
func (s *HTTPSource) Fetch(ctx context.Context) ([]Row, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range s.headers {
		req.Header.Set(k, v)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", s.id, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("fetch %s: status %d: %s", s.id, resp.StatusCode, body)
	}

	var rows []Row
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.id, err)
	}
	return rows, nil
}
