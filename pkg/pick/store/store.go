// Package store persists picks and cached game results in Postgres.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/rrajkowski/pickline/pkg/pick"
)

// Store handles all database operations for picks.
type Store struct {
	db *sqlx.DB
}

// Open connects to Postgres and verifies the connection.
func Open(dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("store.Open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

// NewStore creates a store over an open connection.
func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// pickRow is the database projection of a pick. Legs travel as JSONB.
// Keep the field set in sync with pickColumns and the schema.
type pickRow struct {
	ID          uuid.UUID    `db:"id"`
	ContestID   string       `db:"contest_id"`
	Game        string       `db:"game"`
	Sport       string       `db:"sport"`
	Market      string       `db:"market"`
	Selection   string       `db:"selection"`
	Line        string       `db:"line"`
	Odds        int          `db:"odds"`
	Confidence  int          `db:"confidence"`
	Rationale   string       `db:"rationale"`
	ScheduledAt time.Time    `db:"scheduled_at"`
	Result      string       `db:"result"`
	Legs        []byte       `db:"legs"`
	CreatedAt   time.Time    `db:"created_at"`
	SettledAt   sql.NullTime `db:"settled_at"`
}

// pickColumns enumerates every picks column, in schema order. Reads select
// these explicitly so a schema migration cannot silently break StructScan.
const pickColumns = `id, contest_id, game, sport, market, selection, line,
	odds, confidence, rationale, scheduled_at, result, legs, created_at,
	settled_at`

func toRow(p pick.Pick) (pickRow, error) {
	row := pickRow{
		ID:          p.ID,
		ContestID:   p.ContestID,
		Game:        p.Game,
		Sport:       p.Sport,
		Market:      string(p.Market),
		Selection:   p.Selection,
		Line:        p.Line.String(),
		Odds:        p.Odds,
		Confidence:  p.Confidence,
		Rationale:   p.Rationale,
		ScheduledAt: p.ScheduledAt,
		Result:      string(p.Result),
		CreatedAt:   p.CreatedAt,
	}
	if len(p.Legs) > 0 {
		enc, err := json.Marshal(p.Legs)
		if err != nil {
			return pickRow{}, fmt.Errorf("marshal legs: %w", err)
		}
		row.Legs = enc
	}
	return row, nil
}

func fromRow(row pickRow) (pick.Pick, error) {
	p := pick.Pick{
		ID:          row.ID,
		ContestID:   row.ContestID,
		Game:        row.Game,
		Sport:       row.Sport,
		Market:      pick.Market(row.Market),
		Selection:   row.Selection,
		Odds:        row.Odds,
		Confidence:  row.Confidence,
		Rationale:   row.Rationale,
		ScheduledAt: row.ScheduledAt,
		Result:      pick.Result(row.Result),
		CreatedAt:   row.CreatedAt,
	}
	var err error
	if p.Line, err = decimalFromString(row.Line); err != nil {
		return pick.Pick{}, fmt.Errorf("pick %s: %w", row.ID, err)
	}
	if row.SettledAt.Valid {
		t := row.SettledAt.Time
		p.SettledAt = &t
	}
	if len(row.Legs) > 0 {
		if err := json.Unmarshal(row.Legs, &p.Legs); err != nil {
			return pick.Pick{}, fmt.Errorf("pick %s: unmarshal legs: %w", row.ID, err)
		}
	}
	return p, nil
}

// Insert persists a new pick. It returns false without error when the
// uniqueness constraint on (contest, market, selection, line) already holds
// an equivalent pick.
func (s *Store) Insert(ctx context.Context, p pick.Pick) (bool, error) {
	row, err := toRow(p)
	if err != nil {
		return false, err
	}
	query := `
		INSERT INTO picks
			(id, contest_id, game, sport, market, selection, line, odds,
			 confidence, rationale, scheduled_at, result, legs, created_at)
		VALUES
			(:id, :contest_id, :game, :sport, :market, :selection, :line, :odds,
			 :confidence, :rationale, :scheduled_at, :result, :legs, :created_at)
		ON CONFLICT (contest_id, market, selection, line) DO NOTHING`
	res, err := s.db.NamedExecContext(ctx, query, row)
	if err != nil {
		return false, fmt.Errorf("store.Insert: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("store.Insert: %w", err)
	}
	return n > 0, nil
}

// GetByID fetches one pick.
func (s *Store) GetByID(ctx context.Context, id uuid.UUID) (pick.Pick, error) {
	var row pickRow
	err := s.db.GetContext(ctx, &row,
		`SELECT `+pickColumns+` FROM picks WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return pick.Pick{}, pick.ErrNotFound
		}
		return pick.Pick{}, fmt.Errorf("store.GetByID: %w", err)
	}
	return fromRow(row)
}

// ListPending returns unsettled picks, oldest first. An empty sport matches
// all sports.
func (s *Store) ListPending(ctx context.Context, sport string) ([]pick.Pick, error) {
	var rows []pickRow
	var err error
	if sport == "" {
		err = s.db.SelectContext(ctx, &rows,
			`SELECT `+pickColumns+` FROM picks WHERE result = 'Pending' ORDER BY scheduled_at ASC`)
	} else {
		err = s.db.SelectContext(ctx, &rows,
			`SELECT `+pickColumns+` FROM picks WHERE result = 'Pending' AND sport = $1 ORDER BY scheduled_at ASC`,
			sport)
	}
	if err != nil {
		return nil, fmt.Errorf("store.ListPending: %w", err)
	}
	return fromRows(rows)
}

// ListRecent returns the newest picks regardless of result.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]pick.Pick, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []pickRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT `+pickColumns+` FROM picks ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("store.ListRecent: %w", err)
	}
	return fromRows(rows)
}

func fromRows(rows []pickRow) ([]pick.Pick, error) {
	out := make([]pick.Pick, 0, len(rows))
	for _, row := range rows {
		p, err := fromRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// Settle moves a pick from Pending to a terminal result. Re-settling is a
// no-op: the update only matches pending rows, so it returns false when the
// pick was already settled.
func (s *Store) Settle(ctx context.Context, id uuid.UUID, result pick.Result, legs []pick.Leg) (bool, error) {
	if !result.Settled() {
		return false, fmt.Errorf("store.Settle: %q is not a terminal result", result)
	}
	var legsJSON []byte
	if len(legs) > 0 {
		var err error
		if legsJSON, err = json.Marshal(legs); err != nil {
			return false, fmt.Errorf("store.Settle: marshal legs: %w", err)
		}
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE picks
		SET result = $1,
		    legs = COALESCE($2, legs),
		    settled_at = now()
		WHERE id = $3 AND result = 'Pending'`,
		string(result), legsJSON, id)
	if err != nil {
		return false, fmt.Errorf("store.Settle: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// UpdateLegs stores refreshed leg results for a still-pending parlay.
func (s *Store) UpdateLegs(ctx context.Context, id uuid.UUID, legs []pick.Leg) error {
	legsJSON, err := json.Marshal(legs)
	if err != nil {
		return fmt.Errorf("store.UpdateLegs: marshal: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE picks SET legs = $1 WHERE id = $2 AND result = 'Pending'`, legsJSON, id)
	if err != nil {
		return fmt.Errorf("store.UpdateLegs: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return pick.ErrNotFound
	}
	return nil
}

// OverrideResult force-sets a pick's result regardless of its current
// state. Operator tooling only.
func (s *Store) OverrideResult(ctx context.Context, id uuid.UUID, result pick.Result) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE picks SET result = $1, settled_at = now() WHERE id = $2`,
		string(result), id)
	if err != nil {
		return fmt.Errorf("store.OverrideResult: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return pick.ErrNotFound
	}
	return nil
}

// ResultCounts tallies picks per result for one sport, or all sports when
// sport is empty.
func (s *Store) ResultCounts(ctx context.Context, sport string) (map[pick.Result]int, error) {
	type countRow struct {
		Result string `db:"result"`
		Count  int    `db:"count"`
	}
	var rows []countRow
	var err error
	if sport == "" {
		err = s.db.SelectContext(ctx, &rows,
			`SELECT result, COUNT(*) AS count FROM picks GROUP BY result`)
	} else {
		err = s.db.SelectContext(ctx, &rows,
			`SELECT result, COUNT(*) AS count FROM picks WHERE sport = $1 GROUP BY result`, sport)
	}
	if err != nil {
		return nil, fmt.Errorf("store.ResultCounts: %w", err)
	}
	out := make(map[pick.Result]int, len(rows))
	for _, row := range rows {
		out[pick.Result(row.Result)] = row.Count
	}
	return out, nil
}
