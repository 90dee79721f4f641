package scores

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

const feedResponse = `[
  {
    "sport_key": "basketball_nba",
    "commence_time": "2026-03-15T23:30:00Z",
    "completed": true,
    "home_team": "Los Angeles Lakers",
    "away_team": "Boston Celtics",
    "scores": [
      {"name": "Los Angeles Lakers", "score": "112"},
      {"name": "Boston Celtics", "score": "108"}
    ]
  },
  {
    "sport_key": "basketball_nba",
    "commence_time": "2026-03-16T00:00:00Z",
    "completed": false,
    "home_team": "Chicago Bulls",
    "away_team": "Miami Heat",
    "scores": null
  }
]`

func TestFetchScores(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v4/sports/basketball_nba/scores" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.URL.Query().Get("apiKey") != "test-key" {
			t.Error("missing apiKey")
		}
		if r.URL.Query().Get("daysFrom") != "3" {
			t.Errorf("daysFrom = %s", r.URL.Query().Get("daysFrom"))
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(feedResponse))
	}))
	defer srv.Close()

	c := NewClient("test-key", WithBaseURL(srv.URL))
	got, err := c.FetchScores(context.Background(), "basketball_nba", 3)
	if err != nil {
		t.Fatalf("FetchScores: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("scores = %d, want 2", len(got))
	}

	final := got[0]
	if !final.Completed || final.HomeScore != 112 || final.AwayScore != 108 {
		t.Errorf("final = %+v", final)
	}
	if final.Home != "Los Angeles Lakers" || final.Away != "Boston Celtics" {
		t.Errorf("teams = %q vs %q", final.Home, final.Away)
	}

	live := got[1]
	if live.Completed || live.HomeScore != 0 {
		t.Errorf("live = %+v", live)
	}
}

func TestFetchScoresUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient("test-key", WithBaseURL(srv.URL))
	if _, err := c.FetchScores(context.Background(), "basketball_nba", 3); err == nil {
		t.Fatal("expected error on non-200 response")
	}
}
