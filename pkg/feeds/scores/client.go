// Package scores fetches final contest results from the results feed and
// caches them in Redis between settlement passes.
package scores

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

const defaultBaseURL = "https://api.the-odds-api.com"

// Score is one contest's final (or in-progress) result.
type Score struct {
	Sport        string    `json:"sport"`
	Home         string    `json:"home"`
	Away         string    `json:"away"`
	HomeScore    int       `json:"home_score"`
	AwayScore    int       `json:"away_score"`
	Completed    bool      `json:"completed"`
	CommenceTime time.Time `json:"commence_time"`
}

// Provider supplies results for a sport. The settlement engine depends on
// this rather than the concrete client.
type Provider interface {
	FetchScores(ctx context.Context, sport string, daysFrom int) ([]Score, error)
}

// Client talks to the results feed over HTTP.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithBaseURL points the client at a different feed host.
func WithBaseURL(u string) ClientOption {
	return func(c *Client) { c.baseURL = u }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// WithRateLimit overrides the default request rate.
func WithRateLimit(rps float64, burst int) ClientOption {
	return func(c *Client) { c.limiter = rate.NewLimiter(rate.Limit(rps), burst) }
}

// NewClient creates a results feed client.
func NewClient(apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    defaultBaseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(2), 5),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// scoreEntry matches the feed's wire format. Score values arrive as
// strings.
type scoreEntry struct {
	SportKey     string `json:"sport_key"`
	CommenceTime string `json:"commence_time"`
	Completed    bool   `json:"completed"`
	HomeTeam     string `json:"home_team"`
	AwayTeam     string `json:"away_team"`
	Scores       []struct {
		Name  string `json:"name"`
		Score string `json:"score"`
	} `json:"scores"`
}

// FetchScores returns results for contests that started within the last
// daysFrom days. Entries without score data yet are returned with
// Completed=false and zero scores.
func (c *Client) FetchScores(ctx context.Context, sport string, daysFrom int) ([]Score, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	if daysFrom <= 0 {
		daysFrom = 3
	}

	endpoint := fmt.Sprintf("%s/v4/sports/%s/scores", c.baseURL, url.PathEscape(sport))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("scores: build request: %w", err)
	}
	q := req.URL.Query()
	q.Set("apiKey", c.apiKey)
	q.Set("daysFrom", strconv.Itoa(daysFrom))
	req.URL.RawQuery = q.Encode()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("scores: fetch %s: %w", sport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("scores: fetch %s: status %d: %s", sport, resp.StatusCode, body)
	}

	var entries []scoreEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("scores: decode %s: %w", sport, err)
	}

	out := make([]Score, 0, len(entries))
	for _, e := range entries {
		s := Score{
			Sport:     sport,
			Home:      e.HomeTeam,
			Away:      e.AwayTeam,
			Completed: e.Completed,
		}
		if t, err := time.Parse(time.RFC3339, e.CommenceTime); err == nil {
			s.CommenceTime = t.UTC()
		}
		for _, sc := range e.Scores {
			v, err := strconv.Atoi(sc.Score)
			if err != nil {
				continue
			}
			switch sc.Name {
			case e.HomeTeam:
				s.HomeScore = v
			case e.AwayTeam:
				s.AwayScore = v
			}
		}
		out = append(out, s)
	}
	return out, nil
}
