// Package gamectx merges per-source consensus records into one context
// object per upcoming contest, the unit handed to pick generation.
package gamectx

import (
	"sort"
	"time"

	"github.com/rrajkowski/pickline/pkg/engine/sportcfg"
	"github.com/rrajkowski/pickline/pkg/feeds/consensus"
)

// Signal is an auxiliary piece of context attached to a contest, such as a
// recent result or a ranking. Kind names the signal family.
type Signal struct {
	Kind  string `json:"kind"`
	Team  string `json:"team,omitempty"`
	Value string `json:"value"`
}

// GameContext is everything known about one upcoming contest: identity,
// schedule, every source's consensus view, and optional signals.
type GameContext struct {
	ContestID   string             `json:"contest_id"`
	Sport       string             `json:"sport"`
	Home        string             `json:"home"`
	Away        string             `json:"away"`
	ScheduledAt time.Time          `json:"scheduled_at"`
	Consensus   []consensus.Record `json:"consensus"`
	Signals     []Signal           `json:"signals,omitempty"`
}

// Game renders the contest in "Away @ Home" form.
func (g GameContext) Game() string {
	return g.Away + " @ " + g.Home
}

// Merge groups records by contest and keeps the contests starting inside
// the sport's forward horizon from now. Records for contests already under
// way, or with no usable start time, are dropped. Merge is pure: it never
// mutates its input and the output ordering is deterministic (soonest
// contest first).
func Merge(records []consensus.Record, now time.Time) []GameContext {
	now = now.UTC()
	byContest := make(map[string]*GameContext)
	var order []string

	for _, rec := range records {
		if rec.ScheduledAt.IsZero() {
			continue
		}
		start := rec.ScheduledAt.UTC()
		horizon := sportcfg.Lookup(rec.Sport).Horizon
		if !start.After(now) || start.After(now.Add(horizon)) {
			continue
		}

		ctx, ok := byContest[rec.ContestID]
		if !ok {
			ctx = &GameContext{
				ContestID:   rec.ContestID,
				Sport:       rec.Sport,
				Home:        rec.Home,
				Away:        rec.Away,
				ScheduledAt: start,
			}
			byContest[rec.ContestID] = ctx
			order = append(order, rec.ContestID)
		}
		ctx.Consensus = append(ctx.Consensus, rec)
	}

	out := make([]GameContext, 0, len(order))
	for _, id := range order {
		ctx := byContest[id]
		sort.SliceStable(ctx.Consensus, func(i, j int) bool {
			a, b := ctx.Consensus[i], ctx.Consensus[j]
			if a.SourceID != b.SourceID {
				return a.SourceID < b.SourceID
			}
			return a.Market < b.Market
		})
		out = append(out, *ctx)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].ScheduledAt.Equal(out[j].ScheduledAt) {
			return out[i].ScheduledAt.Before(out[j].ScheduledAt)
		}
		return out[i].ContestID < out[j].ContestID
	})
	return out
}

// TotalsDirection tallies how many sources lean Over versus Under for the
// contest's totals market. Validation uses it to score a candidate against
// the consensus lean.
func TotalsDirection(ctx GameContext) (over, under int) {
	seen := make(map[string]string)
	for _, rec := range ctx.Consensus {
		if rec.Market != "totals" {
			continue
		}
		// One vote per source; a source quoting both sides cancels itself.
		if prev, ok := seen[rec.SourceID]; ok && prev != rec.Side {
			seen[rec.SourceID] = ""
			continue
		}
		seen[rec.SourceID] = rec.Side
	}
	for _, side := range seen {
		switch side {
		case "Over":
			over++
		case "Under":
			under++
		}
	}
	return over, under
}
