package runner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/rrajkowski/pickline/pkg/engine/generate"
	"github.com/rrajkowski/pickline/pkg/engine/llm"
	"github.com/rrajkowski/pickline/pkg/engine/policy"
	"github.com/rrajkowski/pickline/pkg/engine/settle"
	"github.com/rrajkowski/pickline/pkg/feeds/consensus"
	"github.com/rrajkowski/pickline/pkg/feeds/scores"
	"github.com/rrajkowski/pickline/pkg/feeds/teams"
	"github.com/rrajkowski/pickline/pkg/pick"
	"github.com/rrajkowski/pickline/pkg/pick/store"
)

type stubSource struct {
	id   string
	rows []consensus.Row
	err  error
}

func (s *stubSource) ID() string { return s.id }

func (s *stubSource) Fetch(ctx context.Context) ([]consensus.Row, error) {
	return s.rows, s.err
}

type stubBackend struct {
	name       string
	response   string
	err        error
	calls      int
	lastPrompt string
}

func (b *stubBackend) Name() string { return b.name }

func (b *stubBackend) Complete(ctx context.Context, prompt, systemPrompt string) (string, error) {
	b.calls++
	b.lastPrompt = prompt
	return b.response, b.err
}

type memStore struct {
	mu      sync.Mutex
	picks   map[uuid.UUID]*pick.Pick
	results []store.GameResult
}

func newMemStore() *memStore {
	return &memStore{picks: make(map[uuid.UUID]*pick.Pick)}
}

func (m *memStore) UpsertGameResults(ctx context.Context, results []store.GameResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, results...)
	return nil
}

func (m *memStore) ListGameResults(ctx context.Context, sport string, since time.Time) ([]store.GameResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []store.GameResult
	for _, r := range m.results {
		if r.Sport == sport && !r.GameDate.Before(since) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memStore) Insert(ctx context.Context, p pick.Pick) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.picks {
		if existing.ContestID == p.ContestID && existing.Market == p.Market &&
			existing.Selection == p.Selection && existing.Line.Equal(p.Line) {
			return false, nil
		}
	}
	cp := p
	m.picks[p.ID] = &cp
	return true, nil
}

func (m *memStore) ListPending(ctx context.Context, sport string) ([]pick.Pick, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []pick.Pick
	for _, p := range m.picks {
		if p.Result != pick.ResultPending {
			continue
		}
		if sport != "" && p.Sport != sport {
			continue
		}
		out = append(out, *p)
	}
	return out, nil
}

func (m *memStore) Settle(ctx context.Context, id uuid.UUID, result pick.Result, legs []pick.Leg) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.picks[id]
	if !ok {
		return false, pick.ErrNotFound
	}
	if p.Result != pick.ResultPending {
		return false, nil
	}
	p.Result = result
	if legs != nil {
		p.Legs = legs
	}
	return true, nil
}

func (m *memStore) UpdateLegs(ctx context.Context, id uuid.UUID, legs []pick.Leg) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.picks[id]
	if !ok {
		return pick.ErrNotFound
	}
	p.Legs = legs
	return nil
}

type stubProvider struct {
	scores []scores.Score
	err    error
}

func (s *stubProvider) FetchScores(ctx context.Context, sport string, daysFrom int) ([]scores.Score, error) {
	return s.scores, s.err
}

func newRunner(t *testing.T, sources []consensus.Source, backend *stubBackend, store *memStore, provider *stubProvider, callbacks Callbacks) *Runner {
	t.Helper()
	resolver := teams.NewResolver()
	collector := consensus.NewCollector(consensus.NewNormalizer(resolver), sources, 0)
	generator := generate.NewGenerator([]llm.Backend{backend}, generate.Config{})
	validator := policy.NewEngine(policy.DefaultAcceptancePolicy(), resolver)
	settler := settle.NewEngine(store, provider, resolver, settle.Config{})
	cfg := Config{Sports: []string{"basketball_nba"}}
	return New(collector, generator, validator, settler, store, cfg, callbacks)
}

func testRows(start time.Time) []consensus.Row {
	return []consensus.Row{
		{
			Game:   "Boston Celtics @ Los Angeles Lakers",
			Sport:  "basketball_nba",
			Market: "Spread",
			Side:   "Los Angeles Lakers -3.5",
			Line:   "-3.5",
			Odds:   "-110",
			Start:  start.Format(time.RFC3339),
		},
		{
			Game:   "Boston Celtics @ Los Angeles Lakers",
			Sport:  "basketball_nba",
			Market: "ML",
			Side:   "Boston Celtics",
			Odds:   "+140",
			Start:  start.Format(time.RFC3339),
		},
	}
}

func backendResponse() string {
	return `[
		{
			"game": "Boston Celtics @ Los Angeles Lakers",
			"market": "spreads",
			"selection": "Los Angeles Lakers -3.5",
			"line": -3.5,
			"odds": -110,
			"confidence": 4,
			"rationale": "Lakers at home off a rest day."
		}
	]`
}

func TestRunOncePersistsAcceptedPicks(t *testing.T) {
	start := time.Now().Add(24 * time.Hour).UTC()
	src := &stubSource{id: "lines-a", rows: testRows(start)}
	backend := &stubBackend{name: "primary", response: backendResponse()}
	store := newMemStore()

	var accepted []pick.Pick
	var runs []RunSummary
	r := newRunner(t, []consensus.Source{src}, backend, store, &stubProvider{}, Callbacks{
		OnPickAccepted: func(p pick.Pick) { accepted = append(accepted, p) },
		OnRunComplete:  func(s RunSummary) { runs = append(runs, s) },
	})

	summary, err := r.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if summary.Records != 2 {
		t.Errorf("records = %d, want 2", summary.Records)
	}
	if summary.Contexts != 1 {
		t.Errorf("contexts = %d, want 1", summary.Contexts)
	}
	if summary.Accepted != 1 {
		t.Fatalf("accepted = %d, want 1 (rejected: %d)", summary.Accepted, summary.Rejected)
	}
	if summary.Backend != "primary" {
		t.Errorf("backend = %q, want primary", summary.Backend)
	}
	if len(accepted) != 1 {
		t.Fatalf("OnPickAccepted fired %d times, want 1", len(accepted))
	}
	if accepted[0].Market != pick.MarketSpread {
		t.Errorf("market = %s, want spreads", accepted[0].Market)
	}
	if len(runs) != 1 {
		t.Errorf("OnRunComplete fired %d times, want 1", len(runs))
	}
	if got := r.LastRun(); got == nil || got.Accepted != 1 {
		t.Errorf("LastRun = %+v, want accepted 1", got)
	}

	pending, _ := store.ListPending(context.Background(), "basketball_nba")
	if len(pending) != 1 {
		t.Fatalf("store holds %d pending picks, want 1", len(pending))
	}
}

func TestRunOnceSecondRunDedupesAgainstStore(t *testing.T) {
	start := time.Now().Add(24 * time.Hour).UTC()
	src := &stubSource{id: "lines-a", rows: testRows(start)}
	backend := &stubBackend{name: "primary", response: backendResponse()}
	store := newMemStore()

	var rejections []policy.Rejection
	r := newRunner(t, []consensus.Source{src}, backend, store, &stubProvider{}, Callbacks{
		OnRejection: func(rej policy.Rejection) { rejections = append(rejections, rej) },
	})

	if _, err := r.RunOnce(context.Background()); err != nil {
		t.Fatalf("first run: %v", err)
	}
	summary, err := r.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if summary.Accepted != 0 {
		t.Errorf("second run accepted = %d, want 0", summary.Accepted)
	}
	if summary.Rejected != 1 {
		t.Errorf("second run rejected = %d, want 1", summary.Rejected)
	}
	if len(rejections) != 1 || rejections[0].Reason != policy.ReasonDuplicate {
		t.Errorf("rejections = %+v, want one duplicate", rejections)
	}
}

func TestRunOnceEmptyWindowSkipsGeneration(t *testing.T) {
	src := &stubSource{id: "lines-a", rows: nil}
	backend := &stubBackend{name: "primary", response: backendResponse()}
	r := newRunner(t, []consensus.Source{src}, backend, newMemStore(), &stubProvider{}, Callbacks{})

	summary, err := r.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if summary.Contexts != 0 || summary.Candidates != 0 {
		t.Errorf("summary = %+v, want no contexts and no candidates", summary)
	}
	if backend.calls != 0 {
		t.Errorf("backend called %d times on empty window, want 0", backend.calls)
	}
}

func TestRunOnceExhaustedChainIsNotAnError(t *testing.T) {
	start := time.Now().Add(24 * time.Hour).UTC()
	src := &stubSource{id: "lines-a", rows: testRows(start)}
	backend := &stubBackend{name: "primary", err: errors.New("rate limited")}

	var stageErrs []Stage
	r := newRunner(t, []consensus.Source{src}, backend, newMemStore(), &stubProvider{}, Callbacks{
		OnError: func(stage Stage, err error) { stageErrs = append(stageErrs, stage) },
	})

	summary, err := r.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if summary.Accepted != 0 || summary.Candidates != 0 {
		t.Errorf("summary = %+v, want empty", summary)
	}
	if len(stageErrs) != 1 || stageErrs[0] != StageGenerate {
		t.Errorf("stage errors = %v, want [generate]", stageErrs)
	}
}

func TestRunOnceAttachesRecentResultSignals(t *testing.T) {
	start := time.Now().Add(24 * time.Hour).UTC()
	src := &stubSource{id: "lines-a", rows: testRows(start)}
	backend := &stubBackend{name: "primary", response: backendResponse()}
	st := newMemStore()
	st.results = []store.GameResult{{
		Sport:     "basketball_nba",
		GameDate:  time.Now().Add(-48 * time.Hour).UTC().Truncate(24 * time.Hour),
		Home:      "Los Angeles Lakers",
		Away:      "Denver Nuggets",
		HomeScore: 118,
		AwayScore: 110,
		Completed: true,
	}}

	r := newRunner(t, []consensus.Source{src}, backend, st, &stubProvider{}, Callbacks{})
	r.AttachHistory(st, nil, teams.NewResolver())

	if _, err := r.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if backend.calls != 1 {
		t.Fatalf("backend called %d times, want 1", backend.calls)
	}
	if !strings.Contains(backend.lastPrompt, "recent_result") ||
		!strings.Contains(backend.lastPrompt, "W 118-110 vs Denver Nuggets") {
		t.Errorf("prompt missing recent-result signal:\n%s", backend.lastPrompt)
	}
}

func TestSettleOnceGradesAndBroadcasts(t *testing.T) {
	store := newMemStore()
	start := time.Now().Add(-3 * time.Hour).UTC()
	p := pick.Pick{
		ID:          uuid.New(),
		ContestID:   "basketball_nba:test",
		Sport:       "basketball_nba",
		Game:        "Boston Celtics @ Los Angeles Lakers",
		Market:      pick.MarketMoneyline,
		Selection:   "Los Angeles Lakers",
		Result:      pick.ResultPending,
		ScheduledAt: start,
	}
	if ok, err := store.Insert(context.Background(), p); err != nil || !ok {
		t.Fatalf("seed insert: ok=%v err=%v", ok, err)
	}

	provider := &stubProvider{scores: []scores.Score{{
		Sport:        "basketball_nba",
		Home:         "Los Angeles Lakers",
		Away:         "Boston Celtics",
		HomeScore:    112,
		AwayScore:    104,
		Completed:    true,
		CommenceTime: start,
	}}}

	var events []settle.Event
	r := newRunner(t, nil, &stubBackend{name: "primary"}, store, provider, Callbacks{
		OnSettlement: func(ev settle.Event) { events = append(events, ev) },
	})

	settled := r.SettleOnce(context.Background())
	if settled != 1 {
		t.Fatalf("settled = %d, want 1", settled)
	}
	if len(events) != 1 || events[0].Result != pick.ResultWin {
		t.Fatalf("events = %+v, want one Win", events)
	}
}

func TestSettleOnceFeedFailureReportsError(t *testing.T) {
	store := newMemStore()
	var stageErrs []error
	r := newRunner(t, nil, &stubBackend{name: "primary"}, store,
		&stubProvider{err: fmt.Errorf("feed down")}, Callbacks{
			OnError: func(stage Stage, err error) { stageErrs = append(stageErrs, err) },
		})

	// An empty pending set never hits the feed.
	if settled := r.SettleOnce(context.Background()); settled != 0 {
		t.Fatalf("settled = %d, want 0", settled)
	}
	if len(stageErrs) != 0 {
		t.Fatalf("unexpected errors with no pending picks: %v", stageErrs)
	}

	p := pick.Pick{
		ID:          uuid.New(),
		ContestID:   "basketball_nba:test",
		Sport:       "basketball_nba",
		Game:        "Boston Celtics @ Los Angeles Lakers",
		Market:      pick.MarketMoneyline,
		Selection:   "Los Angeles Lakers",
		Result:      pick.ResultPending,
		ScheduledAt: time.Now().Add(-time.Hour),
	}
	if _, err := store.Insert(context.Background(), p); err != nil {
		t.Fatalf("seed insert: %v", err)
	}
	if settled := r.SettleOnce(context.Background()); settled != 0 {
		t.Fatalf("settled = %d, want 0", settled)
	}
	if len(stageErrs) != 1 {
		t.Fatalf("errors = %v, want one feed failure", stageErrs)
	}
}
