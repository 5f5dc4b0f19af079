package database

import (
	"context"
	"database/sql"
	"errors"
)

// ErrNoDatabase is returned by a Sessions factory without a backing database.
var ErrNoDatabase = errors.New("database: session factory has no database")

// Session is one scoped unit of work. It is only valid inside the function
// passed to Sessions.Do.
type Session struct {
	*sql.Tx
}

// Sessions hands out scoped sessions. One factory is shared by every module.
type Sessions struct {
	db *sql.DB
}

// NewSessions wraps db. A nil db yields a factory whose Do always fails.
func NewSessions(db *sql.DB) *Sessions {
	return &Sessions{db: db}
}

// Do runs fn inside a transaction. The transaction commits when fn returns
// nil and rolls back on error or panic, so the session is released on every
// exit path.
func (s *Sessions) Do(ctx context.Context, fn func(*Session) error) error {
	if s == nil || s.db == nil {
		return ErrNoDatabase
	}
	return WithTx(ctx, s.db, func(tx *sql.Tx) error {
		return fn(&Session{Tx: tx})
	})
}
