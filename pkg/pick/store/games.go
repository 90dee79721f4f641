package store

import (
	"context"
	"fmt"
	"time"
)

// GameResult is one cached final score.
type GameResult struct {
	Sport     string    `db:"sport" json:"sport"`
	GameDate  time.Time `db:"game_date" json:"game_date"`
	Home      string    `db:"home" json:"home"`
	Away      string    `db:"away" json:"away"`
	HomeScore int       `db:"home_score" json:"home_score"`
	AwayScore int       `db:"away_score" json:"away_score"`
	Completed bool      `db:"completed" json:"completed"`
	FetchedAt time.Time `db:"fetched_at" json:"fetched_at"`
}

// UpsertGameResults caches a batch of final scores, replacing stale rows for
// the same contest. Repeated settlement passes hit this cache instead of the
// upstream feed.
func (s *Store) UpsertGameResults(ctx context.Context, results []GameResult) error {
	query := `
		INSERT INTO game_results
			(sport, game_date, home, away, home_score, away_score, completed, fetched_at)
		VALUES
			(:sport, :game_date, :home, :away, :home_score, :away_score, :completed, now())
		ON CONFLICT (sport, game_date, home, away) DO UPDATE SET
			home_score = EXCLUDED.home_score,
			away_score = EXCLUDED.away_score,
			completed  = EXCLUDED.completed,
			fetched_at = now()`
	for _, r := range results {
		if _, err := s.db.NamedExecContext(ctx, query, r); err != nil {
			return fmt.Errorf("store.UpsertGameResults: %w", err)
		}
	}
	return nil
}

// ListGameResults returns cached completed results for a sport since the
// given date, newest first.
func (s *Store) ListGameResults(ctx context.Context, sport string, since time.Time) ([]GameResult, error) {
	var rows []GameResult
	err := s.db.SelectContext(ctx, &rows, `
		SELECT * FROM game_results
		WHERE sport = $1 AND completed AND game_date >= $2
		ORDER BY game_date DESC`,
		sport, since)
	if err != nil {
		return nil, fmt.Errorf("store.ListGameResults: %w", err)
	}
	return rows, nil
}
