// Package policy is the validation and conflict engine: every candidate
// pick passes its ordered rule chain before it may be persisted.
package policy

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/rrajkowski/pickline/pkg/engine/gamectx"
	"github.com/rrajkowski/pickline/pkg/engine/metrics"
	"github.com/rrajkowski/pickline/pkg/feeds/teams"
	"github.com/rrajkowski/pickline/pkg/pick"
)

// Reason labels why a candidate was rejected. Rejections are ordinary
// values, not errors; a fully rejected batch is a valid outcome.
type Reason string

const (
	ReasonIncomplete       Reason = "incomplete"
	ReasonLowConfidence    Reason = "low_confidence"
	ReasonOddsBand         Reason = "odds_band"
	ReasonAgainstConsensus Reason = "against_consensus"
	ReasonNoConsensus      Reason = "no_consensus"
	ReasonDuplicate        Reason = "duplicate"
	ReasonConflict         Reason = "conflict"
)

// AcceptancePolicy holds the tunable validation thresholds.
type AcceptancePolicy struct {
	// MinConfidence is the inclusive floor on the 1-5 confidence scale.
	MinConfidence int
	// MaxOddsMagnitude rejects odds outside the +/- band.
	MaxOddsMagnitude int
	// MinConsensusSources is the number of totals votes needed before the
	// consensus-direction rule applies.
	MinConsensusSources int
	// RequireConsensus rejects totals candidates when fewer than
	// MinConsensusSources sources voted. Off by default: thin coverage is
	// normal early in a slate.
	RequireConsensus bool
}

// DefaultAcceptancePolicy returns the standard thresholds.
func DefaultAcceptancePolicy() AcceptancePolicy {
	return AcceptancePolicy{
		MinConfidence:       3,
		MaxOddsMagnitude:    150,
		MinConsensusSources: 2,
	}
}

// Rejection pairs a rejected candidate with its reason.
type Rejection struct {
	Candidate pick.Candidate `json:"candidate"`
	Reason    Reason         `json:"reason"`
	Detail    string         `json:"detail,omitempty"`
}

// Engine applies the acceptance policy to candidate batches.
type Engine struct {
	policy   AcceptancePolicy
	resolver *teams.Resolver
	metrics  *metrics.PipelineMetrics
}

// NewEngine builds a validation engine.
func NewEngine(policy AcceptancePolicy, resolver *teams.Resolver) *Engine {
	return &Engine{policy: policy, resolver: resolver, metrics: metrics.Default()}
}

// ValidateBatch runs every candidate through the rule chain, in order:
// completeness, confidence floor, odds band, totals consensus direction,
// exact duplicate, conflict. Duplicate and conflict checks see both the
// pending snapshot and the candidates accepted earlier in this batch, so
// one batch can never admit a mutually exclusive pair.
func (e *Engine) ValidateBatch(candidates []pick.Candidate, contexts []gamectx.GameContext, pending []pick.Pick, now time.Time) ([]pick.Pick, []Rejection) {
	byContest := make(map[string]gamectx.GameContext, len(contexts))
	for _, ctx := range contexts {
		byContest[ctx.ContestID] = ctx
	}

	prior := append([]pick.Pick(nil), pending...)
	var accepted []pick.Pick
	var rejected []Rejection

	for _, c := range candidates {
		var gctx *gamectx.GameContext
		if ctx, ok := byContest[c.ContestID]; ok {
			gctx = &ctx
		}

		// A missing start time is not disqualifying: take the contest's
		// schedule when known, otherwise assume the game is imminent.
		if c.ScheduledAt.IsZero() {
			if gctx != nil && !gctx.ScheduledAt.IsZero() {
				c.ScheduledAt = gctx.ScheduledAt
			} else {
				c.ScheduledAt = now
				log.Printf("[POLICY] %s %s missing start time, defaulting to now", c.Game, c.Market)
			}
		}

		reason, detail := e.check(c, gctx, prior)
		if reason != "" {
			rejected = append(rejected, Rejection{Candidate: c, Reason: reason, Detail: detail})
			e.metrics.RecordAcceptance(c.Sport, string(c.Market), false, string(reason))
			continue
		}

		p := pick.FromCandidate(c, now)
		accepted = append(accepted, p)
		prior = append(prior, p)
		e.metrics.RecordAcceptance(c.Sport, string(c.Market), true, "")
	}

	return accepted, rejected
}

func (e *Engine) check(c pick.Candidate, gctx *gamectx.GameContext, prior []pick.Pick) (Reason, string) {
	if reason, detail := e.checkCompleteness(c); reason != "" {
		return reason, detail
	}
	if c.Confidence < e.policy.MinConfidence {
		return ReasonLowConfidence, fmt.Sprintf("confidence %d below floor %d", c.Confidence, e.policy.MinConfidence)
	}
	if band := e.policy.MaxOddsMagnitude; band > 0 {
		if c.Odds > band || c.Odds < -band {
			return ReasonOddsBand, fmt.Sprintf("odds %+d outside +/-%d", c.Odds, band)
		}
	}
	if c.Market == pick.MarketTotal {
		if reason, detail := e.checkConsensusDirection(c, gctx); reason != "" {
			return reason, detail
		}
	}
	for _, p := range prior {
		if p.ContestID != c.ContestID || p.Market != c.Market {
			continue
		}
		if e.isExactDuplicate(c, p) {
			return ReasonDuplicate, fmt.Sprintf("duplicates pick %s", p.ID)
		}
	}
	for _, p := range prior {
		if p.ContestID != c.ContestID || p.Market != c.Market {
			continue
		}
		if reason, detail := e.checkConflict(c, p); reason != "" {
			return reason, detail
		}
	}
	return "", ""
}

func (e *Engine) checkCompleteness(c pick.Candidate) (Reason, string) {
	if c.Game == "" || c.ContestID == "" {
		return ReasonIncomplete, "missing game"
	}
	if !c.Market.Valid() {
		return ReasonIncomplete, fmt.Sprintf("unknown market %q", c.Market)
	}
	if c.Selection == "" {
		return ReasonIncomplete, "missing selection"
	}
	switch c.Market {
	case pick.MarketTotal:
		if c.Line.Sign() <= 0 {
			return ReasonIncomplete, "totals pick without a line"
		}
	case pick.MarketParlay:
		if len(c.Legs) < 2 {
			return ReasonIncomplete, fmt.Sprintf("parlay with %d legs", len(c.Legs))
		}
	}
	return "", ""
}

// checkConsensusDirection applies only to totals: with enough source votes,
// a candidate leaning against the majority is rejected. A tied vote accepts.
func (e *Engine) checkConsensusDirection(c pick.Candidate, gctx *gamectx.GameContext) (Reason, string) {
	if gctx == nil {
		if e.policy.RequireConsensus {
			return ReasonNoConsensus, "no consensus data for contest"
		}
		return "", ""
	}
	over, under := gamectx.TotalsDirection(*gctx)
	if over+under < e.policy.MinConsensusSources {
		if e.policy.RequireConsensus {
			return ReasonNoConsensus, fmt.Sprintf("only %d totals votes", over+under)
		}
		return "", ""
	}
	if over == under {
		return "", ""
	}

	pickedOver := isOverSelection(c.Selection)
	majorityOver := over > under
	if pickedOver != majorityOver {
		majority := "Under"
		if majorityOver {
			majority = "Over"
		}
		return ReasonAgainstConsensus, fmt.Sprintf("consensus leans %s %d-%d", majority, max(over, under), min(over, under))
	}
	return "", ""
}

func (e *Engine) isExactDuplicate(c pick.Candidate, p pick.Pick) bool {
	if !e.sameSelection(c, p) {
		return false
	}
	switch c.Market {
	case pick.MarketSpread:
		// Sources disagree on sign conventions, so spreads compare by
		// magnitude once the side matches.
		return c.Line.Abs().Equal(p.Line.Abs())
	default:
		return c.Line.Equal(p.Line)
	}
}

func (e *Engine) checkConflict(c pick.Candidate, p pick.Pick) (Reason, string) {
	switch c.Market {
	case pick.MarketMoneyline:
		if !e.sameSelection(c, p) {
			return ReasonConflict, fmt.Sprintf("opposite moneyline to pick %s", p.ID)
		}
	case pick.MarketTotal:
		if isOverSelection(c.Selection) != isOverSelection(p.Selection) {
			return ReasonConflict, fmt.Sprintf("opposite total to pick %s", p.ID)
		}
	case pick.MarketSpread:
		if !e.sameSelection(c, p) {
			return ReasonConflict, fmt.Sprintf("opposite spread to pick %s", p.ID)
		}
	}
	return "", ""
}

func (e *Engine) sameSelection(c pick.Candidate, p pick.Pick) bool {
	if c.Market == pick.MarketTotal {
		return isOverSelection(c.Selection) == isOverSelection(p.Selection)
	}
	return e.resolver.Match(teams.StripLine(c.Selection), teams.StripLine(p.Selection), c.Sport)
}

func isOverSelection(selection string) bool {
	norm := teams.NormalizeName(selection)
	return norm == "over" || strings.HasPrefix(norm, "over ")
}
