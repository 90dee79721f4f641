package store

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

const schema = `
CREATE TABLE IF NOT EXISTS picks (
	id           UUID PRIMARY KEY,
	contest_id   TEXT NOT NULL,
	game         TEXT NOT NULL,
	sport        TEXT NOT NULL,
	market       TEXT NOT NULL,
	selection    TEXT NOT NULL,
	line         NUMERIC(12,3) NOT NULL DEFAULT 0,
	odds         INTEGER NOT NULL DEFAULT 0,
	confidence   INTEGER NOT NULL DEFAULT 0,
	rationale    TEXT NOT NULL DEFAULT '',
	scheduled_at TIMESTAMPTZ NOT NULL,
	result       TEXT NOT NULL DEFAULT 'Pending',
	legs         JSONB,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	settled_at   TIMESTAMPTZ,
	UNIQUE (contest_id, market, selection, line)
);

CREATE INDEX IF NOT EXISTS idx_picks_pending
	ON picks (sport, scheduled_at) WHERE result = 'Pending';

CREATE TABLE IF NOT EXISTS game_results (
	sport      TEXT NOT NULL,
	game_date  DATE NOT NULL,
	home       TEXT NOT NULL,
	away       TEXT NOT NULL,
	home_score INTEGER NOT NULL,
	away_score INTEGER NOT NULL,
	completed  BOOLEAN NOT NULL,
	fetched_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (sport, game_date, home, away)
);
`

// EnsureSchema creates the tables and indexes if they do not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("store.EnsureSchema: %w", err)
	}
	return nil
}

func decimalFromString(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Decimal{}, nil
	}
	return decimal.NewFromString(s)
}
