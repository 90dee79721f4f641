// Package sportcfg is the registry of supported sports: feed keys, display
// names, generation horizons and season windows.
package sportcfg

import "time"

// Sport keys match the results-feed sport identifiers.
const (
	NBA  = "basketball_nba"
	NFL  = "americanfootball_nfl"
	MLB  = "baseball_mlb"
	NHL  = "icehockey_nhl"
	NCAB = "basketball_ncaab"
	NCAF = "americanfootball_ncaaf"
	MMA  = "mma_mixed_martial_arts"
)

// Config describes one sport's scheduling characteristics.
type Config struct {
	Key         string
	DisplayName string
	// Horizon bounds how far ahead of now a contest may start and still be
	// merged into a generation window.
	Horizon time.Duration
	// Lookback bounds the historical results window attached as context.
	Lookback time.Duration
	// SeasonMonths lists the months (1-12) the sport is normally active.
	// Empty means year-round.
	SeasonMonths []time.Month
}

const day = 24 * time.Hour

var registry = map[string]Config{
	NBA:  {Key: NBA, DisplayName: "NBA", Horizon: 3 * day, Lookback: 14 * day, SeasonMonths: []time.Month{1, 2, 3, 4, 5, 6, 10, 11, 12}},
	NFL:  {Key: NFL, DisplayName: "NFL", Horizon: 3 * day, Lookback: 21 * day, SeasonMonths: []time.Month{1, 2, 9, 10, 11, 12}},
	MLB:  {Key: MLB, DisplayName: "MLB", Horizon: 3 * day, Lookback: 14 * day, SeasonMonths: []time.Month{3, 4, 5, 6, 7, 8, 9, 10, 11}},
	NHL:  {Key: NHL, DisplayName: "NHL", Horizon: 3 * day, Lookback: 14 * day, SeasonMonths: []time.Month{1, 2, 3, 4, 5, 6, 10, 11, 12}},
	NCAB: {Key: NCAB, DisplayName: "NCAAB", Horizon: 3 * day, Lookback: 14 * day, SeasonMonths: []time.Month{1, 2, 3, 4, 11, 12}},
	NCAF: {Key: NCAF, DisplayName: "NCAAF", Horizon: 3 * day, Lookback: 21 * day, SeasonMonths: []time.Month{1, 8, 9, 10, 11, 12}},
	// Fight cards are sparse, so the generation window is wider.
	MMA: {Key: MMA, DisplayName: "MMA", Horizon: 7 * day, Lookback: 30 * day},
}

// Lookup returns the config for key. Unknown sports fall back to a generic
// 3-day horizon so an unrecognized feed key degrades instead of failing.
func Lookup(key string) Config {
	if cfg, ok := registry[key]; ok {
		return cfg
	}
	return Config{Key: key, DisplayName: key, Horizon: 3 * day, Lookback: 14 * day}
}

// Known reports whether key is a registered sport.
func Known(key string) bool {
	_, ok := registry[key]
	return ok
}

// Keys returns all registered sport keys.
func Keys() []string {
	out := make([]string, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	return out
}

// InSeason reports whether the sport is normally active during t's month.
func (c Config) InSeason(t time.Time) bool {
	if len(c.SeasonMonths) == 0 {
		return true
	}
	m := t.Month()
	for _, sm := range c.SeasonMonths {
		if sm == m {
			return true
		}
	}
	return false
}
