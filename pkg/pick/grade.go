package pick

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Side is the resolved side of a team-market pick within a contest.
type Side int

const (
	SideHome Side = iota
	SideAway
)

// Grader grades one market variant against a final score. Implementations
// are pure; the same inputs always produce the same result.
type Grader interface {
	Grade(homeScore, awayScore int) Result
}

// MoneylineGrader grades an outright winner pick.
type MoneylineGrader struct {
	Side Side
}

// Grade returns Win when the picked side outscored the opponent, Push on a
// tied final, Loss otherwise.
func (g MoneylineGrader) Grade(homeScore, awayScore int) Result {
	picked, other := homeScore, awayScore
	if g.Side == SideAway {
		picked, other = awayScore, homeScore
	}
	switch {
	case picked > other:
		return ResultWin
	case picked < other:
		return ResultLoss
	default:
		return ResultPush
	}
}

// SpreadGrader grades a point-spread pick. Line carries the sign as quoted
// for the picked side (favorites negative, underdogs positive).
type SpreadGrader struct {
	Side Side
	Line decimal.Decimal
}

// Grade adds the line to the picked side's score and compares against the
// opponent. An exact cover is a Push.
func (g SpreadGrader) Grade(homeScore, awayScore int) Result {
	picked, other := homeScore, awayScore
	if g.Side == SideAway {
		picked, other = awayScore, homeScore
	}
	adjusted := decimal.NewFromInt(int64(picked)).Add(g.Line)
	cmp := adjusted.Cmp(decimal.NewFromInt(int64(other)))
	switch {
	case cmp > 0:
		return ResultWin
	case cmp < 0:
		return ResultLoss
	default:
		return ResultPush
	}
}

// TotalGrader grades an Over/Under pick against the combined final score.
type TotalGrader struct {
	Over bool
	Line decimal.Decimal
}

// Grade compares the score sum to the line. Landing exactly on the line is
// a Push for either direction.
func (g TotalGrader) Grade(homeScore, awayScore int) Result {
	sum := decimal.NewFromInt(int64(homeScore + awayScore))
	cmp := sum.Cmp(g.Line)
	if cmp == 0 {
		return ResultPush
	}
	if g.Over {
		if cmp > 0 {
			return ResultWin
		}
		return ResultLoss
	}
	if cmp < 0 {
		return ResultWin
	}
	return ResultLoss
}

// GradeParlay folds leg results into a parlay result. It returns Pending
// until every leg has settled; then any Loss makes the parlay a Loss, all
// Wins make it a Win, and any other settled mix is a Push.
func GradeParlay(legs []Leg) Result {
	if len(legs) == 0 {
		return ResultPending
	}
	for _, leg := range legs {
		if !leg.Result.Settled() {
			return ResultPending
		}
	}
	allWin := true
	for _, leg := range legs {
		switch leg.Result {
		case ResultLoss:
			return ResultLoss
		case ResultPush:
			allWin = false
		}
	}
	if allWin {
		return ResultWin
	}
	return ResultPush
}

// NewGrader builds the grading variant for a single-market pick whose
// selection has been resolved to a side of the contest. Totals ignore side
// and read the Over/Under direction from the selection text.
func NewGrader(market Market, selection string, side Side, line decimal.Decimal) (Grader, error) {
	switch market {
	case MarketMoneyline:
		return MoneylineGrader{Side: side}, nil
	case MarketSpread:
		return SpreadGrader{Side: side, Line: line}, nil
	case MarketTotal:
		sel := strings.ToLower(selection)
		switch {
		case strings.HasPrefix(sel, "over"):
			return TotalGrader{Over: true, Line: line}, nil
		case strings.HasPrefix(sel, "under"):
			return TotalGrader{Over: false, Line: line}, nil
		default:
			return nil, fmt.Errorf("%w: totals selection %q", ErrMissingField, selection)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidMarket, market)
	}
}
