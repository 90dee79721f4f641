package runner

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/rrajkowski/pickline/pkg/engine/gamectx"
	"github.com/rrajkowski/pickline/pkg/engine/sportcfg"
	"github.com/rrajkowski/pickline/pkg/feeds/scores"
	"github.com/rrajkowski/pickline/pkg/feeds/teams"
	"github.com/rrajkowski/pickline/pkg/pick/store"
)

// HistoryStore persists completed game results for context signals.
type HistoryStore interface {
	UpsertGameResults(ctx context.Context, results []store.GameResult) error
	ListGameResults(ctx context.Context, sport string, since time.Time) ([]store.GameResult, error)
}

// maxSignalsPerTeam bounds how many recent results each team contributes.
const maxSignalsPerTeam = 5

// AttachHistory enables recent-result signals on merged contexts. The feed is
// optional; with a nil provider only previously stored results are used.
func (r *Runner) AttachHistory(history HistoryStore, feed scores.Provider, resolver *teams.Resolver) {
	r.history = history
	r.scoresFeed = feed
	r.resolver = resolver
}

// attachSignals loads recent completed results per sport and appends them to
// each context as signals. History problems never fail a run.
func (r *Runner) attachSignals(ctx context.Context, contexts []gamectx.GameContext, now time.Time) {
	bySport := make(map[string][]int)
	for i, gc := range contexts {
		bySport[gc.Sport] = append(bySport[gc.Sport], i)
	}

	for sport, idxs := range bySport {
		results := r.recentResults(ctx, sport, now)
		if len(results) == 0 {
			continue
		}
		for _, i := range idxs {
			gc := &contexts[i]
			gc.Signals = append(gc.Signals, r.teamSignals(sport, gc.Home, results)...)
			gc.Signals = append(gc.Signals, r.teamSignals(sport, gc.Away, results)...)
		}
	}
}

// recentResults returns stored results inside the sport's lookback window,
// refreshed from the feed when one is configured.
func (r *Runner) recentResults(ctx context.Context, sport string, now time.Time) []store.GameResult {
	if r.scoresFeed != nil {
		fresh, err := r.scoresFeed.FetchScores(ctx, sport, 3)
		if err != nil {
			log.Printf("[HIST] scores feed for %s: %v", sport, err)
		} else if rows := completedResults(fresh, now); len(rows) > 0 {
			if err := r.history.UpsertGameResults(ctx, rows); err != nil {
				log.Printf("[HIST] upsert results for %s: %v", sport, err)
			}
		}
	}

	since := now.Add(-sportcfg.Lookup(sport).Lookback)
	results, err := r.history.ListGameResults(ctx, sport, since)
	if err != nil {
		log.Printf("[HIST] list results for %s: %v", sport, err)
		return nil
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].GameDate.After(results[j].GameDate)
	})
	return results
}

func completedResults(feed []scores.Score, now time.Time) []store.GameResult {
	var rows []store.GameResult
	for _, s := range feed {
		if !s.Completed {
			continue
		}
		rows = append(rows, store.GameResult{
			Sport:     s.Sport,
			GameDate:  s.CommenceTime.UTC().Truncate(24 * time.Hour),
			Home:      s.Home,
			Away:      s.Away,
			HomeScore: s.HomeScore,
			AwayScore: s.AwayScore,
			Completed: true,
			FetchedAt: now,
		})
	}
	return rows
}

// teamSignals renders up to maxSignalsPerTeam recent results for one team.
func (r *Runner) teamSignals(sport, team string, results []store.GameResult) []gamectx.Signal {
	var sigs []gamectx.Signal
	for _, res := range results {
		var teamScore, oppScore int
		var opponent string
		switch {
		case r.resolver.Match(team, res.Home, sport):
			teamScore, oppScore, opponent = res.HomeScore, res.AwayScore, res.Away
		case r.resolver.Match(team, res.Away, sport):
			teamScore, oppScore, opponent = res.AwayScore, res.HomeScore, res.Home
		default:
			continue
		}
		outcome := "W"
		if teamScore < oppScore {
			outcome = "L"
		} else if teamScore == oppScore {
			outcome = "T"
		}
		sigs = append(sigs, gamectx.Signal{
			Kind: "recent_result",
			Team: team,
			Value: fmt.Sprintf("%s %d-%d vs %s (%s)",
				outcome, teamScore, oppScore, opponent, res.GameDate.Format("2006-01-02")),
		})
		if len(sigs) == maxSignalsPerTeam {
			break
		}
	}
	return sigs
}
