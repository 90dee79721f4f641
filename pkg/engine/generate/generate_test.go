package generate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rrajkowski/pickline/pkg/engine/gamectx"
	"github.com/rrajkowski/pickline/pkg/engine/llm"
	"github.com/rrajkowski/pickline/pkg/feeds/consensus"
	"github.com/rrajkowski/pickline/pkg/pick"
)

// mockBackend returns a canned response or error and records calls.
type mockBackend struct {
	name     string
	response string
	err      error
	calls    int
}

func (m *mockBackend) Name() string { return m.name }
func (m *mockBackend) Complete(ctx context.Context, prompt, systemPrompt string) (string, error) {
	m.calls++
	if m.err != nil {
		return "", m.err
	}
	return m.response, nil
}

func testContexts() []gamectx.GameContext {
	start := time.Date(2026, 3, 15, 19, 30, 0, 0, time.UTC)
	return []gamectx.GameContext{
		{
			ContestID:   "basketball_nba:2026-03-15:boston-celtics@los-angeles-lakers",
			Sport:       "basketball_nba",
			Home:        "Los Angeles Lakers",
			Away:        "Boston Celtics",
			ScheduledAt: start,
			Consensus: []consensus.Record{
				{SourceID: "covers", Market: pick.MarketSpread, Side: "Los Angeles Lakers"},
			},
		},
	}
}

const goodResponse = `Here are my picks:
` + "```json" + `
[
  {
    "game": "Boston Celtics @ Los Angeles Lakers",
    "market": "spreads",
    "selection": "Los Angeles Lakers",
    "line": -3.5,
    "odds": -110,
    "confidence": 4,
    "rationale": "Consensus lean plus rest advantage."
  }
]
` + "```"

func TestGenerateFirstBackendWins(t *testing.T) {
	first := &mockBackend{name: "a", response: goodResponse}
	second := &mockBackend{name: "b", response: goodResponse}

	gen := NewGenerator(backends(first, second), Config{})

	candidates, outcome := gen.Generate(context.Background(), testContexts(), Params{TargetCount: 3})
	if outcome.Exhausted {
		t.Fatal("chain should not be exhausted")
	}
	if outcome.Backend != "a" {
		t.Errorf("winning backend = %q, want a", outcome.Backend)
	}
	if second.calls != 0 {
		t.Errorf("second backend called %d times, want 0", second.calls)
	}
	if len(candidates) != 1 {
		t.Fatalf("candidates = %d, want 1", len(candidates))
	}

	c := candidates[0]
	if c.Market != pick.MarketSpread || c.Selection != "Los Angeles Lakers" {
		t.Errorf("candidate = %+v", c)
	}
	if c.Line.String() != "-3.5" || c.Odds != -110 || c.Confidence != 4 {
		t.Errorf("line/odds/confidence = %s/%d/%d", c.Line, c.Odds, c.Confidence)
	}
	if c.ContestID == "" || c.ScheduledAt.IsZero() {
		t.Error("candidate should inherit contest identity from context")
	}
}

func TestGenerateFallsThroughOnError(t *testing.T) {
	first := &mockBackend{name: "a", err: errors.New("rate limited")}
	second := &mockBackend{name: "b", response: `[{"game":"Boston Celtics @ Los Angeles Lakers","market":"h2h","selection":"Lakers","confidence":3}]`}

	gen := NewGenerator(backends(first, second), Config{})
	candidates, outcome := gen.Generate(context.Background(), testContexts(), Params{})

	if outcome.Backend != "b" {
		t.Errorf("winning backend = %q, want b", outcome.Backend)
	}
	if len(outcome.Attempts) != 2 {
		t.Errorf("attempts = %d, want 2", len(outcome.Attempts))
	}
	if outcome.Attempts[0].Err == nil {
		t.Error("first attempt should carry the error")
	}
	if len(candidates) != 1 {
		t.Errorf("candidates = %d, want 1", len(candidates))
	}
}

func TestGenerateFallsThroughOnGarbage(t *testing.T) {
	first := &mockBackend{name: "a", response: "I cannot make picks today."}
	second := &mockBackend{name: "b", response: goodResponse}

	gen := NewGenerator(backends(first, second), Config{})
	_, outcome := gen.Generate(context.Background(), testContexts(), Params{})

	if outcome.Backend != "b" {
		t.Errorf("winning backend = %q, want b", outcome.Backend)
	}
}

func TestGenerateExhaustedChain(t *testing.T) {
	first := &mockBackend{name: "a", err: errors.New("down")}
	second := &mockBackend{name: "b", response: "no json here"}

	gen := NewGenerator(backends(first, second), Config{})
	candidates, outcome := gen.Generate(context.Background(), testContexts(), Params{})

	if !outcome.Exhausted {
		t.Error("outcome should be exhausted")
	}
	if candidates != nil {
		t.Errorf("candidates = %v, want nil", candidates)
	}
	if len(outcome.Attempts) != 2 {
		t.Errorf("attempts = %d, want 2", len(outcome.Attempts))
	}
}

func TestGenerateEmptyContextBatch(t *testing.T) {
	first := &mockBackend{name: "a", response: goodResponse}
	gen := NewGenerator(backends(first), Config{})

	candidates, outcome := gen.Generate(context.Background(), nil, Params{})
	if len(candidates) != 0 || !outcome.Exhausted {
		t.Error("empty batch should produce no candidates and no calls")
	}
	if first.calls != 0 {
		t.Errorf("backend called %d times, want 0", first.calls)
	}
}

func TestParseCandidatesWrapperObject(t *testing.T) {
	response := `{"picks":[{"game":"Boston Celtics @ Los Angeles Lakers","market":"totals","selection":"Over 224.5","line":"224.5","confidence":"4"}]}`
	candidates, _, err := parseCandidates(response, testContexts())
	if err != nil {
		t.Fatalf("parseCandidates: %v", err)
	}
	if len(candidates) != 1 {
		t.Fatalf("candidates = %d", len(candidates))
	}
	c := candidates[0]
	if c.Market != pick.MarketTotal || c.Line.String() != "224.5" || c.Confidence != 4 {
		t.Errorf("candidate = %+v", c)
	}
	if c.Odds != -110 {
		t.Errorf("odds default = %d, want -110", c.Odds)
	}
}

func TestParseCandidatesDropsUnknownGames(t *testing.T) {
	response := `[
		{"game":"Miami Heat @ Chicago Bulls","market":"h2h","selection":"Bulls"},
		{"game":"Boston Celtics @ Los Angeles Lakers","market":"h2h","selection":"Lakers"}
	]`
	candidates, unmatched, err := parseCandidates(response, testContexts())
	if err != nil {
		t.Fatalf("parseCandidates: %v", err)
	}
	if len(candidates) != 1 || unmatched != 1 {
		t.Errorf("candidates = %d unmatched = %d", len(candidates), unmatched)
	}
}

func TestParseCandidatesParlayLegs(t *testing.T) {
	response := `[{
		"game": "Boston Celtics @ Los Angeles Lakers",
		"market": "parlay",
		"confidence": 3,
		"legs": [
			{"market": "h2h", "selection": "Los Angeles Lakers"},
			{"market": "totals", "selection": "Under 224.5", "line": 224.5}
		]
	}]`
	candidates, _, err := parseCandidates(response, testContexts())
	if err != nil {
		t.Fatalf("parseCandidates: %v", err)
	}
	if len(candidates) != 1 {
		t.Fatalf("candidates = %d", len(candidates))
	}
	c := candidates[0]
	if c.Market != pick.MarketParlay || len(c.Legs) != 2 {
		t.Fatalf("candidate = %+v", c)
	}
	for _, leg := range c.Legs {
		if leg.Result != pick.ResultPending {
			t.Errorf("leg result = %v, want Pending", leg.Result)
		}
	}
}

func TestParseCandidatesParlayLegGames(t *testing.T) {
	contexts := append(testContexts(), gamectx.GameContext{
		ContestID:   "basketball_nba:2026-03-16:miami-heat@chicago-bulls",
		Sport:       "basketball_nba",
		Home:        "Chicago Bulls",
		Away:        "Miami Heat",
		ScheduledAt: time.Date(2026, 3, 16, 23, 0, 0, 0, time.UTC),
	})
	response := `[{
		"game": "Boston Celtics @ Los Angeles Lakers",
		"market": "parlay",
		"confidence": 3,
		"legs": [
			{"game": "Boston Celtics @ Los Angeles Lakers", "market": "h2h", "selection": "Los Angeles Lakers"},
			{"game": "Miami Heat @ Chicago Bulls", "market": "h2h", "selection": "Chicago Bulls"}
		]
	}]`
	candidates, _, err := parseCandidates(response, contexts)
	if err != nil {
		t.Fatalf("parseCandidates: %v", err)
	}
	if len(candidates) != 1 || len(candidates[0].Legs) != 2 {
		t.Fatalf("candidates = %+v", candidates)
	}

	// Each leg carries its own game's schedule so a parlay spanning
	// slates can settle leg by leg.
	legs := candidates[0].Legs
	if legs[0].Sport != "basketball_nba" || !legs[0].ScheduledAt.Equal(contexts[0].ScheduledAt) {
		t.Errorf("leg 0 sport/start = %s/%v", legs[0].Sport, legs[0].ScheduledAt)
	}
	if legs[1].Game != "Miami Heat @ Chicago Bulls" {
		t.Errorf("leg 1 game = %q", legs[1].Game)
	}
	if !legs[1].ScheduledAt.Equal(contexts[1].ScheduledAt) {
		t.Errorf("leg 1 start = %v, want %v", legs[1].ScheduledAt, contexts[1].ScheduledAt)
	}
}

// backends adapts mocks to the chain type.
func backends(ms ...*mockBackend) []llm.Backend {
	out := make([]llm.Backend, len(ms))
	for i, m := range ms {
		out[i] = m
	}
	return out
}
