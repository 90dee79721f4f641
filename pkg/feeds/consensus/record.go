// Package consensus ingests betting-consensus rows from third-party sources
// and normalizes them into canonical records keyed by contest.
package consensus

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rrajkowski/pickline/pkg/feeds/teams"
	"github.com/rrajkowski/pickline/pkg/pick"
)

// Record is one canonical consensus observation: a single source's view of
// one side of one market in one contest. Optional fields stay nil when the
// source did not quote them.
type Record struct {
	SourceID    string          `json:"source_id"`
	ContestID   string          `json:"contest_id"`
	Sport       string          `json:"sport"`
	Home        string          `json:"home"`
	Away        string          `json:"away"`
	Market      pick.Market     `json:"market"`
	Side        string          `json:"side"`
	Line        decimal.NullDecimal `json:"line"`
	Odds        *int            `json:"odds,omitempty"`
	Strength    *float64        `json:"strength,omitempty"`
	ScheduledAt time.Time       `json:"scheduled_at"`
	ObservedAt  time.Time       `json:"observed_at"`
}

// Game renders the record's contest in "Away @ Home" form.
func (r Record) Game() string {
	return fmt.Sprintf("%s @ %s", r.Away, r.Home)
}

// ContestKey derives a stable contest identity from resolved team names and
// the contest date. Two sources quoting the same matchup on the same day
// land on the same key.
func ContestKey(sport, away, home string, start time.Time) string {
	return strings.Join([]string{
		sport,
		start.UTC().Format("2006-01-02"),
		slug(away) + "@" + slug(home),
	}, ":")
}

func slug(name string) string {
	return strings.ReplaceAll(teams.NormalizeName(name), " ", "-")
}
