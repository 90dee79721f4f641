// Package settle grades pending picks against final contest results and
// records the outcomes. Settlement is idempotent: a settled pick is never
// re-graded, and a pass that finds no usable result leaves the pick pending
// for the next run.
package settle

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rrajkowski/pickline/pkg/engine/metrics"
	"github.com/rrajkowski/pickline/pkg/feeds/scores"
	"github.com/rrajkowski/pickline/pkg/feeds/teams"
	"github.com/rrajkowski/pickline/pkg/pick"
)

// PickStore is the slice of the store the settlement engine needs.
type PickStore interface {
	ListPending(ctx context.Context, sport string) ([]pick.Pick, error)
	Settle(ctx context.Context, id uuid.UUID, result pick.Result, legs []pick.Leg) (bool, error)
	UpdateLegs(ctx context.Context, id uuid.UUID, legs []pick.Leg) error
}

// Event is one settled pick, for streaming and logs.
type Event struct {
	Pick   pick.Pick   `json:"pick"`
	Result pick.Result `json:"result"`
}

// Summary reports one settlement pass.
type Summary struct {
	Checked int
	Settled int
	Skipped int
	Events  []Event
}

// Config controls a settlement pass.
type Config struct {
	// DaysFrom bounds how far back the results feed is queried.
	DaysFrom int
}

// Engine grades pending picks.
type Engine struct {
	store    PickStore
	provider scores.Provider
	resolver *teams.Resolver
	cfg      Config
	metrics  *metrics.PipelineMetrics
}

// NewEngine builds a settlement engine.
func NewEngine(store PickStore, provider scores.Provider, resolver *teams.Resolver, cfg Config) *Engine {
	if cfg.DaysFrom <= 0 {
		cfg.DaysFrom = 3
	}
	return &Engine{
		store:    store,
		provider: provider,
		resolver: resolver,
		cfg:      cfg,
		metrics:  metrics.Default(),
	}
}

// SettleSport runs one settlement pass for a sport. Feed failures abort the
// pass with an error; per-pick problems only skip that pick.
func (e *Engine) SettleSport(ctx context.Context, sport string) (Summary, error) {
	var sum Summary

	pending, err := e.store.ListPending(ctx, sport)
	if err != nil {
		return sum, fmt.Errorf("settle: list pending: %w", err)
	}
	sum.Checked = len(pending)
	e.metrics.UpdatePending(sport, len(pending))
	if len(pending) == 0 {
		return sum, nil
	}

	results, err := e.provider.FetchScores(ctx, sport, e.cfg.DaysFrom)
	if err != nil {
		return sum, fmt.Errorf("settle: fetch scores for %s: %w", sport, err)
	}
	// Parlay legs may live in another sport; those feeds are fetched
	// lazily, once per pass, and a failure only leaves the leg pending.
	cache := &resultCache{
		provider: e.provider,
		daysFrom: e.cfg.DaysFrom,
		bySport:  map[string][]scores.Score{sport: results},
	}

	for _, p := range pending {
		result, legs, reason := e.gradePick(ctx, p, cache)
		if !result.Settled() {
			sum.Skipped++
			e.metrics.RecordSettleSkip(reason)
			// Persist partial leg progress so a parlay's settled legs
			// survive across passes.
			if p.Market == pick.MarketParlay && legs != nil {
				if err := e.store.UpdateLegs(ctx, p.ID, legs); err != nil {
					log.Printf("[SETTLE] update legs for %s: %v", p.ID, err)
				}
			}
			continue
		}

		updated, err := e.store.Settle(ctx, p.ID, result, legs)
		if err != nil {
			log.Printf("[SETTLE] persist %s: %v", p.ID, err)
			sum.Skipped++
			continue
		}
		if !updated {
			// Another pass got here first.
			continue
		}

		p.Result = result
		if legs != nil {
			p.Legs = legs
		}
		sum.Settled++
		sum.Events = append(sum.Events, Event{Pick: p, Result: result})
		e.metrics.RecordSettlement(sport, string(result))
		log.Printf("[SETTLE] %s -> %s", p.String(), result)
	}

	e.metrics.UpdatePending(sport, len(pending)-sum.Settled)
	return sum, nil
}

// resultCache holds per-sport score fetches for one settlement pass.
type resultCache struct {
	provider scores.Provider
	daysFrom int
	bySport  map[string][]scores.Score
}

func (c *resultCache) get(ctx context.Context, sport string) []scores.Score {
	if results, ok := c.bySport[sport]; ok {
		return results
	}
	results, err := c.provider.FetchScores(ctx, sport, c.daysFrom)
	if err != nil {
		log.Printf("[SETTLE] fetch scores for leg sport %s: %v", sport, err)
		results = nil
	}
	c.bySport[sport] = results
	return results
}

// gradePick grades one pick against the fetched results. The returned
// reason explains a Pending outcome. For parlays the returned legs carry
// updated per-leg results even when the parlay itself stays pending.
func (e *Engine) gradePick(ctx context.Context, p pick.Pick, cache *resultCache) (pick.Result, []pick.Leg, string) {
	if p.Market == pick.MarketParlay {
		return e.gradeParlay(ctx, p, cache)
	}

	score, ok := e.matchScore(p.Game, p.Sport, p.ScheduledAt, cache.get(ctx, p.Sport))
	if !ok {
		return pick.ResultPending, nil, "no_result"
	}

	result, err := e.gradeSingle(p.Market, p.Selection, p.Line, p.Sport, score)
	if err != nil {
		log.Printf("[SETTLE] cannot grade %s: %v", p.ID, err)
		return pick.ResultPending, nil, "ungradable"
	}
	return result, nil, ""
}

// gradeParlay grades each unsettled leg independently: a leg's own sport and
// start time win over the parlay's, so legs from other slates or dates still
// settle as their games finish.
func (e *Engine) gradeParlay(ctx context.Context, p pick.Pick, cache *resultCache) (pick.Result, []pick.Leg, string) {
	legs := append([]pick.Leg(nil), p.Legs...)
	progressed := false

	for i, leg := range legs {
		if leg.Result.Settled() {
			continue
		}
		game := leg.Game
		if game == "" {
			game = p.Game
		}
		sport := leg.Sport
		if sport == "" {
			sport = p.Sport
		}
		start := leg.ScheduledAt
		if start.IsZero() {
			start = p.ScheduledAt
		}
		score, ok := e.matchScore(game, sport, start, cache.get(ctx, sport))
		if !ok {
			continue
		}
		result, err := e.gradeSingle(leg.Market, leg.Selection, leg.Line, sport, score)
		if err != nil {
			log.Printf("[SETTLE] cannot grade leg %d of %s: %v", i, p.ID, err)
			continue
		}
		legs[i].Result = result
		progressed = true
	}

	result := pick.GradeParlay(legs)
	if result.Settled() {
		return result, legs, ""
	}
	if progressed {
		return pick.ResultPending, legs, "legs_pending"
	}
	return pick.ResultPending, nil, "legs_pending"
}

// matchScore finds the completed result for a game string. The contest date
// must match the pick's scheduled date; a name match on the wrong date is
// ignored. Home/away order in the pick's game string is not trusted: both
// orientations are tried.
func (e *Engine) matchScore(game, sport string, scheduledAt time.Time, results []scores.Score) (scores.Score, bool) {
	away, home := pick.SplitGame(game)
	if away == "" || home == "" {
		return scores.Score{}, false
	}
	pickDate := scheduledAt.UTC().Format("2006-01-02")

	for _, s := range results {
		if !s.Completed {
			continue
		}
		if s.CommenceTime.UTC().Format("2006-01-02") != pickDate {
			continue
		}
		straight := e.resolver.Match(home, s.Home, sport) && e.resolver.Match(away, s.Away, sport)
		swapped := e.resolver.Match(home, s.Away, sport) && e.resolver.Match(away, s.Home, sport)
		if straight || swapped {
			return s, true
		}
	}
	return scores.Score{}, false
}

// gradeSingle grades one non-parlay selection against a final score.
func (e *Engine) gradeSingle(market pick.Market, selection string, line decimal.Decimal, sport string, s scores.Score) (pick.Result, error) {
	side := pick.SideHome
	if market != pick.MarketTotal {
		name := teams.StripLine(selection)
		matchesHome := e.resolver.Match(name, s.Home, sport)
		matchesAway := e.resolver.Match(name, s.Away, sport)
		switch {
		case matchesHome && !matchesAway:
			side = pick.SideHome
		case matchesAway && !matchesHome:
			side = pick.SideAway
		default:
			return pick.ResultPending, fmt.Errorf("selection %q matches neither or both of %q / %q", selection, s.Home, s.Away)
		}
	}

	grader, err := pick.NewGrader(market, selection, side, line)
	if err != nil {
		return pick.ResultPending, err
	}
	return grader.Grade(s.HomeScore, s.AwayScore), nil
}
