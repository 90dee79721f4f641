package consensus

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rrajkowski/pickline/pkg/engine/metrics"
	"github.com/rrajkowski/pickline/pkg/feeds/teams"
	"github.com/rrajkowski/pickline/pkg/pick"
)

// Row is a raw consensus row as scraped or fetched from one source, before
// any cleaning. All fields are source-flavored text.
type Row struct {
	Game     string // "Away @ Home" or "Away at Home"
	Sport    string
	Market   string // "ML", "Spread", "Total", "O/U", ...
	Side     string // team name, or "Over"/"Under"
	Line     string // "-3.5", "44.5", may be empty
	Odds     string // "+150", "-110", "EVEN", may be empty
	Strength string // "72%", "0.72", may be empty
	Start    string // contest start, several layouts tolerated
}

// Normalizer converts source rows into canonical Records. Malformed rows are
// dropped and counted, never fatal.
type Normalizer struct {
	resolver *teams.Resolver
	metrics  *metrics.PipelineMetrics
}

// NewNormalizer builds a normalizer over the given resolver.
func NewNormalizer(resolver *teams.Resolver) *Normalizer {
	return &Normalizer{resolver: resolver, metrics: metrics.Default()}
}

// Normalize canonicalizes rows from a single source, stamping each record
// with observedAt. The dropped count covers rows that could not be
// canonicalized.
func (n *Normalizer) Normalize(sourceID string, rows []Row, observedAt time.Time) (records []Record, dropped int) {
	for _, row := range rows {
		rec, reason := n.normalizeRow(sourceID, row, observedAt)
		if reason != "" {
			dropped++
			n.metrics.RecordDropped(sourceID, reason)
			continue
		}
		records = append(records, rec)
		n.metrics.RecordNormalized(sourceID, rec.Sport, 1)
	}
	return records, dropped
}

func (n *Normalizer) normalizeRow(sourceID string, row Row, observedAt time.Time) (Record, string) {
	away, home, ok := splitGameRow(row.Game)
	if !ok {
		return Record{}, "bad_game"
	}

	market, ok := canonicalMarket(row.Market)
	if !ok {
		return Record{}, "bad_market"
	}

	start, ok := parseStart(row.Start)
	if !ok {
		return Record{}, "bad_start"
	}

	home = n.resolver.Resolve(home, row.Sport)
	away = n.resolver.Resolve(away, row.Sport)

	side := strings.TrimSpace(row.Side)
	if side == "" {
		return Record{}, "missing_side"
	}
	switch market {
	case pick.MarketTotal:
		lower := strings.ToLower(side)
		switch {
		case strings.HasPrefix(lower, "over"):
			side = "Over"
		case strings.HasPrefix(lower, "under"):
			side = "Under"
		default:
			return Record{}, "bad_total_side"
		}
	default:
		side = n.resolver.Resolve(teams.StripLine(side), row.Sport)
	}

	rec := Record{
		SourceID:    sourceID,
		ContestID:   ContestKey(row.Sport, away, home, start),
		Sport:       row.Sport,
		Home:        home,
		Away:        away,
		Market:      market,
		Side:        side,
		ScheduledAt: start,
		ObservedAt:  observedAt.UTC(),
	}

	if line, ok := parseLine(row.Line); ok {
		rec.Line = decimal.NewNullDecimal(line)
	} else if market != pick.MarketMoneyline {
		// Spreads and totals are meaningless without a line.
		return Record{}, "missing_line"
	}

	if odds, ok := parseOdds(row.Odds); ok {
		rec.Odds = &odds
	}
	if strength, ok := parseStrength(row.Strength); ok {
		rec.Strength = &strength
	}

	return rec, ""
}

func splitGameRow(game string) (away, home string, ok bool) {
	sep := "@"
	if !strings.Contains(game, "@") {
		sep = " at "
	}
	parts := strings.SplitN(game, sep, 2)
	if len(parts) != 2 {
		return "", "", false
	}
	away = strings.TrimSpace(parts[0])
	home = strings.TrimSpace(parts[1])
	return away, home, away != "" && home != ""
}

func canonicalMarket(raw string) (pick.Market, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "ml", "h2h", "moneyline", "money line":
		return pick.MarketMoneyline, true
	case "spread", "spreads", "ats", "point spread":
		return pick.MarketSpread, true
	case "total", "totals", "o/u", "ou", "over/under":
		return pick.MarketTotal, true
	}
	return "", false
}

// startLayouts are tried in order; sources disagree on timestamp formats.
var startLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

func parseStart(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range startLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func parseLine(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "+"))
	if s == "" {
		return decimal.Decimal{}, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}

func parseOdds(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if strings.EqualFold(s, "even") || strings.EqualFold(s, "ev") {
		return 100, true
	}
	s = strings.TrimPrefix(s, "+")
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return v, true
}

func parseStrength(s string) (float64, bool) {
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "%"))
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	// Percent-style values normalize to a 0-1 fraction.
	if v > 1 {
		v = v / 100
	}
	if v < 0 || v > 1 {
		return 0, false
	}
	return v, true
}
