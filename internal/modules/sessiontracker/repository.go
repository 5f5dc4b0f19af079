package sessiontracker

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jask/nextool/internal/database"
)

const sessionColumns = `id, game_name, started_at, ended_at, duration_seconds, notes`

func insertSession(ctx context.Context, s *database.Session, g GameSession) error {
	_, err := s.ExecContext(ctx, `
	INSERT INTO game_sessions(id, game_name, started_at, duration_seconds)
	VALUES (?, ?, ?, 0)
	`, g.ID, g.GameName, g.StartedAt)
	return err
}

// finishSession closes an open session. It returns false when the row was
// already closed or does not exist.
func finishSession(ctx context.Context, s *database.Session, id string, end time.Time, seconds int64) (bool, error) {
	res, err := s.ExecContext(ctx, `
	UPDATE game_sessions SET ended_at = ?, duration_seconds = ?
	WHERE id = ? AND ended_at IS NULL
	`, end, seconds, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// openSession returns the newest unfinished session, or nil.
func openSession(ctx context.Context, s *database.Session) (*GameSession, error) {
	row := s.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM game_sessions
	WHERE ended_at IS NULL ORDER BY started_at DESC LIMIT 1`)
	g, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &g, nil
}

// recentSessions returns finished sessions, most recently ended first.
func recentSessions(ctx context.Context, s *database.Session, limit int) ([]GameSession, error) {
	rows, err := s.QueryContext(ctx, `SELECT `+sessionColumns+` FROM game_sessions
	WHERE ended_at IS NOT NULL ORDER BY ended_at DESC, started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []GameSession
	for rows.Next() {
		g, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(sc scanner) (GameSession, error) {
	var (
		g     GameSession
		ended sql.NullTime
	)
	if err := sc.Scan(&g.ID, &g.GameName, &g.StartedAt, &ended, &g.DurationSeconds, &g.Notes); err != nil {
		return GameSession{}, err
	}
	if ended.Valid {
		t := ended.Time
		g.EndedAt = &t
	}
	return g, nil
}
