// Package pick defines the pick lifecycle domain: markets, candidate picks
// produced by generation, durable picks, and the grading variants used at
// settlement time.
package pick

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Market identifies the bet market a pick belongs to.
type Market string

const (
	MarketMoneyline Market = "h2h"
	MarketSpread    Market = "spreads"
	MarketTotal     Market = "totals"
	MarketParlay    Market = "parlay"
)

// Valid reports whether m is a known market.
func (m Market) Valid() bool {
	switch m {
	case MarketMoneyline, MarketSpread, MarketTotal, MarketParlay:
		return true
	}
	return false
}

// Result is the settlement state of a pick or a parlay leg.
type Result string

const (
	ResultPending Result = "Pending"
	ResultWin     Result = "Win"
	ResultLoss    Result = "Loss"
	ResultPush    Result = "Push"
)

// Settled reports whether r is a terminal state.
func (r Result) Settled() bool {
	return r == ResultWin || r == ResultLoss || r == ResultPush
}

// Candidate is a pick proposed by a generation backend. It has not been
// validated or persisted yet.
type Candidate struct {
	ContestID   string          `json:"contest_id,omitempty"`
	Game        string          `json:"game"` // "Away @ Home"
	Sport       string          `json:"sport"`
	Market      Market          `json:"market"`
	Selection   string          `json:"selection"`
	Line        decimal.Decimal `json:"line"`
	Odds        int             `json:"odds"`
	Confidence  int             `json:"confidence"` // 1-5
	Rationale   string          `json:"rationale,omitempty"`
	Sources     []string        `json:"sources,omitempty"`
	Legs        []Leg           `json:"legs,omitempty"`
	ScheduledAt time.Time       `json:"scheduled_at"`
}

// Leg is one component of a parlay. Sport and ScheduledAt may differ from
// the parlay's own, so each leg carries its own; empty values fall back to
// the parent pick at settlement time.
type Leg struct {
	Game        string          `json:"game"`
	Sport       string          `json:"sport,omitempty"`
	Market      Market          `json:"market"`
	Selection   string          `json:"selection"`
	Line        decimal.Decimal `json:"line"`
	Result      Result          `json:"result"`
	ScheduledAt time.Time       `json:"scheduled_at,omitzero"`
}

// Pick is the durable betting pick entity.
type Pick struct {
	ID          uuid.UUID       `json:"id" db:"id"`
	ContestID   string          `json:"contest_id" db:"contest_id"`
	Game        string          `json:"game" db:"game"`
	Sport       string          `json:"sport" db:"sport"`
	Market      Market          `json:"market" db:"market"`
	Selection   string          `json:"selection" db:"selection"`
	Line        decimal.Decimal `json:"line" db:"line"`
	Odds        int             `json:"odds" db:"odds"`
	Confidence  int             `json:"confidence" db:"confidence"`
	Rationale   string          `json:"rationale" db:"rationale"`
	ScheduledAt time.Time       `json:"scheduled_at" db:"scheduled_at"`
	Result      Result          `json:"result" db:"result"`
	Legs        []Leg           `json:"legs,omitempty" db:"-"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	SettledAt   *time.Time      `json:"settled_at,omitempty" db:"-"`
}

// FromCandidate promotes an accepted candidate into a pending pick.
func FromCandidate(c Candidate, now time.Time) Pick {
	return Pick{
		ID:          uuid.New(),
		ContestID:   c.ContestID,
		Game:        c.Game,
		Sport:       c.Sport,
		Market:      c.Market,
		Selection:   c.Selection,
		Line:        c.Line,
		Odds:        c.Odds,
		Confidence:  c.Confidence,
		Rationale:   c.Rationale,
		ScheduledAt: c.ScheduledAt.UTC(),
		Result:      ResultPending,
		Legs:        append([]Leg(nil), c.Legs...),
		CreatedAt:   now.UTC(),
	}
}

// HomeTeam returns the home side of the pick's game string, or "" when the
// string is not in "Away @ Home" form.
func (p Pick) HomeTeam() string {
	_, home := SplitGame(p.Game)
	return home
}

// AwayTeam returns the away side of the pick's game string.
func (p Pick) AwayTeam() string {
	away, _ := SplitGame(p.Game)
	return away
}

// SplitGame splits an "Away @ Home" game string into its sides. Both values
// are empty when the separator is missing.
func SplitGame(game string) (away, home string) {
	parts := strings.SplitN(game, "@", 2)
	if len(parts) != 2 {
		return "", ""
	}
	return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
}

// String implements fmt.Stringer for log lines.
func (p Pick) String() string {
	if p.Market == MarketParlay {
		return fmt.Sprintf("%s parlay (%d legs) [%s]", p.Game, len(p.Legs), p.Result)
	}
	return fmt.Sprintf("%s %s %s %s [%s]", p.Game, p.Market, p.Selection, p.Line, p.Result)
}
