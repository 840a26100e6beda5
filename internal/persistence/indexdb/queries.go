package indexdb

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

var ErrNotFound = errors.New("indexdb: not found")

type MatchRow struct {
	MatchID      string    `json:"match_id"`
	FirstTick    uint64    `json:"first_tick"`
	FirstAt      time.Time `json:"first_at"`
	LastTick     uint64    `json:"last_tick"`
	LastAt       time.Time `json:"last_at"`
	State        string    `json:"state"`
	LiveTick     *uint64   `json:"live_tick,omitempty"`
	EndTick      *uint64   `json:"end_tick,omitempty"`
	Winner       string    `json:"winner,omitempty"`
	Spawns       int       `json:"spawns"`
	Eliminations int       `json:"eliminations"`
	Shots        int       `json:"shots"`
	Peak         int       `json:"peak"`
}

type EliminationRow struct {
	Tick  uint64 `json:"tick"`
	Name  string `json:"name"`
	Cause string `json:"cause"`
}

const matchCols = `match_id,first_tick,first_at,last_tick,last_at,state,live_tick,end_tick,winner,spawns,eliminations,shots,peak`

type scanner interface {
	Scan(dest ...any) error
}

func scanMatch(sc scanner) (MatchRow, error) {
	var (
		m               MatchRow
		firstAt, lastAt string
		live, end       sql.NullInt64
	)
	if err := sc.Scan(&m.MatchID, &m.FirstTick, &firstAt, &m.LastTick, &lastAt, &m.State, &live, &end, &m.Winner, &m.Spawns, &m.Eliminations, &m.Shots, &m.Peak); err != nil {
		return MatchRow{}, err
	}
	m.FirstAt, _ = time.Parse(timeLayout, firstAt)
	m.LastAt, _ = time.Parse(timeLayout, lastAt)
	if live.Valid {
		v := uint64(live.Int64)
		m.LiveTick = &v
	}
	if end.Valid {
		v := uint64(end.Int64)
		m.EndTick = &v
	}
	return m, nil
}

// Matches returns the most recent matches first.
func (s *SQLiteIndex) Matches(ctx context.Context, limit int) ([]MatchRow, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+matchCols+` FROM matches ORDER BY first_at DESC, match_id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []MatchRow{}
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *SQLiteIndex) Match(ctx context.Context, id string) (MatchRow, error) {
	m, err := scanMatch(s.db.QueryRowContext(ctx, `SELECT `+matchCols+` FROM matches WHERE match_id=?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return MatchRow{}, ErrNotFound
	}
	return m, err
}

// Eliminations lists a match's eliminations in the order they happened.
func (s *SQLiteIndex) Eliminations(ctx context.Context, matchID string) ([]EliminationRow, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT tick,name,cause FROM eliminations WHERE match_id=? ORDER BY tick, name`, matchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []EliminationRow{}
	for rows.Next() {
		var r EliminationRow
		if err := rows.Scan(&r.Tick, &r.Name, &r.Cause); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// CauseCounts tallies eliminations by cause across every indexed match.
func (s *SQLiteIndex) CauseCounts(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT cause, COUNT(*) FROM eliminations GROUP BY cause`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]int{}
	for rows.Next() {
		var (
			cause string
			n     int
		)
		if err := rows.Scan(&cause, &n); err != nil {
			return nil, err
		}
		out[cause] = n
	}
	return out, rows.Err()
}
