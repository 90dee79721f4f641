package policy

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rrajkowski/pickline/pkg/engine/gamectx"
	"github.com/rrajkowski/pickline/pkg/feeds/consensus"
	"github.com/rrajkowski/pickline/pkg/feeds/teams"
	"github.com/rrajkowski/pickline/pkg/pick"
)

const testContest = "basketball_nba:2026-03-15:boston-celtics@los-angeles-lakers"

var testStart = time.Date(2026, 3, 15, 19, 30, 0, 0, time.UTC)

func newTestEngine() *Engine {
	return NewEngine(DefaultAcceptancePolicy(), teams.NewResolver())
}

func candidate(market pick.Market, selection, line string, odds, confidence int) pick.Candidate {
	c := pick.Candidate{
		ContestID:   testContest,
		Game:        "Boston Celtics @ Los Angeles Lakers",
		Sport:       "basketball_nba",
		Market:      market,
		Selection:   selection,
		Odds:        odds,
		Confidence:  confidence,
		ScheduledAt: testStart,
	}
	if line != "" {
		c.Line = decimal.RequireFromString(line)
	}
	return c
}

func validate(t *testing.T, e *Engine, cands []pick.Candidate, ctxs []gamectx.GameContext, pending []pick.Pick) ([]pick.Pick, []Rejection) {
	t.Helper()
	return e.ValidateBatch(cands, ctxs, pending, time.Now())
}

func wantRejected(t *testing.T, rejected []Rejection, reason Reason) {
	t.Helper()
	if len(rejected) != 1 {
		t.Fatalf("rejected = %d, want 1", len(rejected))
	}
	if rejected[0].Reason != reason {
		t.Errorf("reason = %q, want %q", rejected[0].Reason, reason)
	}
}

func TestValidateAcceptsCleanCandidate(t *testing.T) {
	e := newTestEngine()
	accepted, rejected := validate(t, e,
		[]pick.Candidate{candidate(pick.MarketSpread, "Los Angeles Lakers", "-3.5", -110, 4)}, nil, nil)
	if len(rejected) != 0 {
		t.Fatalf("rejected = %v", rejected)
	}
	if len(accepted) != 1 {
		t.Fatalf("accepted = %d", len(accepted))
	}
	if accepted[0].Result != pick.ResultPending {
		t.Errorf("result = %v, want Pending", accepted[0].Result)
	}
	if accepted[0].ID.String() == "00000000-0000-0000-0000-000000000000" {
		t.Error("accepted pick should get an ID")
	}
}

func TestValidateCompleteness(t *testing.T) {
	e := newTestEngine()

	missing := candidate(pick.MarketMoneyline, "", "", -110, 4)
	_, rejected := validate(t, e, []pick.Candidate{missing}, nil, nil)
	wantRejected(t, rejected, ReasonIncomplete)

	noLine := candidate(pick.MarketTotal, "Over", "", -110, 4)
	_, rejected = validate(t, e, []pick.Candidate{noLine}, nil, nil)
	wantRejected(t, rejected, ReasonIncomplete)

	thinParlay := candidate(pick.MarketParlay, "1-leg parlay", "", -110, 4)
	thinParlay.Legs = []pick.Leg{{Market: pick.MarketMoneyline, Selection: "Lakers", Result: pick.ResultPending}}
	_, rejected = validate(t, e, []pick.Candidate{thinParlay}, nil, nil)
	wantRejected(t, rejected, ReasonIncomplete)
}

func TestValidateDefaultsMissingStartTime(t *testing.T) {
	e := newTestEngine()
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	// No context known for the contest: assume the game starts now.
	c := candidate(pick.MarketMoneyline, "Los Angeles Lakers", "", -110, 4)
	c.ScheduledAt = time.Time{}
	accepted, rejected := e.ValidateBatch([]pick.Candidate{c}, nil, nil, now)
	if len(rejected) != 0 {
		t.Fatalf("rejected = %v, want candidate accepted with defaulted start", rejected)
	}
	if len(accepted) != 1 || !accepted[0].ScheduledAt.Equal(now) {
		t.Fatalf("accepted = %+v, want start defaulted to %s", accepted, now)
	}

	// With a context the contest's own schedule wins over "now".
	c = candidate(pick.MarketMoneyline, "Los Angeles Lakers", "", -110, 4)
	c.ScheduledAt = time.Time{}
	accepted, rejected = e.ValidateBatch([]pick.Candidate{c}, totalsContext(), nil, now)
	if len(rejected) != 0 {
		t.Fatalf("rejected = %v", rejected)
	}
	if len(accepted) != 1 || !accepted[0].ScheduledAt.Equal(testStart) {
		t.Fatalf("start = %s, want context schedule %s", accepted[0].ScheduledAt, testStart)
	}
}

func TestValidateConfidenceFloor(t *testing.T) {
	e := newTestEngine()
	low := candidate(pick.MarketMoneyline, "Los Angeles Lakers", "", -110, 2)
	_, rejected := validate(t, e, []pick.Candidate{low}, nil, nil)
	wantRejected(t, rejected, ReasonLowConfidence)
}

func TestValidateOddsBand(t *testing.T) {
	e := newTestEngine()

	// Heavy favorite is out of band even at max confidence.
	heavy := candidate(pick.MarketMoneyline, "Los Angeles Lakers", "", -200, 5)
	_, rejected := validate(t, e, []pick.Candidate{heavy}, nil, nil)
	wantRejected(t, rejected, ReasonOddsBand)

	longshot := candidate(pick.MarketMoneyline, "Boston Celtics", "", 240, 5)
	_, rejected = validate(t, e, []pick.Candidate{longshot}, nil, nil)
	wantRejected(t, rejected, ReasonOddsBand)

	edge := candidate(pick.MarketMoneyline, "Boston Celtics", "", 150, 3)
	accepted, _ := validate(t, e, []pick.Candidate{edge}, nil, nil)
	if len(accepted) != 1 {
		t.Error("odds exactly on the band edge should pass")
	}
}

func totalsContext(votes ...string) []gamectx.GameContext {
	ctx := gamectx.GameContext{
		ContestID:   testContest,
		Sport:       "basketball_nba",
		Home:        "Los Angeles Lakers",
		Away:        "Boston Celtics",
		ScheduledAt: testStart,
	}
	for i, side := range votes {
		ctx.Consensus = append(ctx.Consensus, consensus.Record{
			SourceID: string(rune('a' + i)),
			Market:   pick.MarketTotal,
			Side:     side,
		})
	}
	return []gamectx.GameContext{ctx}
}

func TestValidateConsensusDirection(t *testing.T) {
	e := newTestEngine()

	against := candidate(pick.MarketTotal, "Under 224.5", "224.5", -110, 4)
	_, rejected := validate(t, e, []pick.Candidate{against}, totalsContext("Over", "Over", "Under"), nil)
	wantRejected(t, rejected, ReasonAgainstConsensus)

	with := candidate(pick.MarketTotal, "Over 224.5", "224.5", -110, 4)
	accepted, _ := validate(t, e, []pick.Candidate{with}, totalsContext("Over", "Over", "Under"), nil)
	if len(accepted) != 1 {
		t.Error("candidate agreeing with the majority should pass")
	}

	// A tied vote accepts either direction.
	tied := candidate(pick.MarketTotal, "Under 224.5", "224.5", -110, 4)
	accepted, _ = validate(t, e, []pick.Candidate{tied}, totalsContext("Over", "Under"), nil)
	if len(accepted) != 1 {
		t.Error("tied consensus should accept")
	}

	// Too few votes: permissive by default.
	thin := candidate(pick.MarketTotal, "Under 224.5", "224.5", -110, 4)
	accepted, _ = validate(t, e, []pick.Candidate{thin}, totalsContext("Over"), nil)
	if len(accepted) != 1 {
		t.Error("single-vote consensus should accept by default")
	}
}

func TestValidateRequireConsensus(t *testing.T) {
	p := DefaultAcceptancePolicy()
	p.RequireConsensus = true
	e := NewEngine(p, teams.NewResolver())

	thin := candidate(pick.MarketTotal, "Under 224.5", "224.5", -110, 4)
	_, rejected := validate(t, e, []pick.Candidate{thin}, totalsContext("Over"), nil)
	wantRejected(t, rejected, ReasonNoConsensus)
}

func TestValidateExactDuplicate(t *testing.T) {
	e := newTestEngine()
	existing := pick.FromCandidate(candidate(pick.MarketSpread, "Lakers", "-3.5", -110, 4), time.Now())

	dup := candidate(pick.MarketSpread, "Los Angeles Lakers -3.5", "-3.5", -105, 5)
	_, rejected := validate(t, e, []pick.Candidate{dup}, nil, []pick.Pick{existing})
	wantRejected(t, rejected, ReasonDuplicate)

	// Same side at a different number is allowed.
	moved := candidate(pick.MarketSpread, "Los Angeles Lakers", "-4.5", -110, 4)
	accepted, _ := validate(t, e, []pick.Candidate{moved}, nil, []pick.Pick{existing})
	if len(accepted) != 1 {
		t.Error("same side at a moved line should pass")
	}
}

func TestValidateConflicts(t *testing.T) {
	e := newTestEngine()

	t.Run("moneyline opposite sides", func(t *testing.T) {
		existing := pick.FromCandidate(candidate(pick.MarketMoneyline, "Los Angeles Lakers", "", -110, 4), time.Now())
		opp := candidate(pick.MarketMoneyline, "Boston Celtics", "", 120, 4)
		_, rejected := validate(t, e, []pick.Candidate{opp}, nil, []pick.Pick{existing})
		wantRejected(t, rejected, ReasonConflict)
	})

	t.Run("totals over vs under", func(t *testing.T) {
		existing := pick.FromCandidate(candidate(pick.MarketTotal, "Over 224.5", "224.5", -110, 4), time.Now())
		opp := candidate(pick.MarketTotal, "Under 226.5", "226.5", -110, 4)
		_, rejected := validate(t, e, []pick.Candidate{opp}, nil, []pick.Pick{existing})
		wantRejected(t, rejected, ReasonConflict)
	})

	t.Run("conflict is symmetric", func(t *testing.T) {
		over := candidate(pick.MarketTotal, "Over 224.5", "224.5", -110, 4)
		under := candidate(pick.MarketTotal, "Under 224.5", "224.5", -110, 4)

		accepted, rejected := validate(t, e, []pick.Candidate{over, under}, nil, nil)
		if len(accepted) != 1 || len(rejected) != 1 {
			t.Fatalf("accepted = %d rejected = %d", len(accepted), len(rejected))
		}

		accepted, rejected = validate(t, e, []pick.Candidate{under, over}, nil, nil)
		if len(accepted) != 1 || len(rejected) != 1 {
			t.Fatalf("reversed order: accepted = %d rejected = %d", len(accepted), len(rejected))
		}
		if rejected[0].Reason != ReasonConflict {
			t.Errorf("reason = %q", rejected[0].Reason)
		}
	})

	t.Run("spread opposite sides", func(t *testing.T) {
		existing := pick.FromCandidate(candidate(pick.MarketSpread, "Los Angeles Lakers", "-3.5", -110, 4), time.Now())
		opp := candidate(pick.MarketSpread, "Boston Celtics", "3.5", -110, 4)
		_, rejected := validate(t, e, []pick.Candidate{opp}, nil, []pick.Pick{existing})
		wantRejected(t, rejected, ReasonConflict)
	})

	t.Run("different contests never conflict", func(t *testing.T) {
		existing := pick.FromCandidate(candidate(pick.MarketMoneyline, "Los Angeles Lakers", "", -110, 4), time.Now())
		other := candidate(pick.MarketMoneyline, "Chicago Bulls", "", -110, 4)
		other.ContestID = "basketball_nba:2026-03-15:miami-heat@chicago-bulls"
		other.Game = "Miami Heat @ Chicago Bulls"
		accepted, _ := validate(t, e, []pick.Candidate{other}, nil, []pick.Pick{existing})
		if len(accepted) != 1 {
			t.Error("picks in different contests should not interact")
		}
	})
}

func TestValidateIntraBatchDuplicate(t *testing.T) {
	e := newTestEngine()
	a := candidate(pick.MarketMoneyline, "Los Angeles Lakers", "", -110, 4)
	b := candidate(pick.MarketMoneyline, "Lakers", "", -115, 3)

	accepted, rejected := validate(t, e, []pick.Candidate{a, b}, nil, nil)
	if len(accepted) != 1 {
		t.Errorf("accepted = %d, want 1", len(accepted))
	}
	wantRejected(t, rejected, ReasonDuplicate)
}
