package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// Store is the host's storage collaborator: it prepares the schema, hands
// out the session factory and releases the database on exit.
type Store struct {
	path        string
	db          *sql.DB
	sessions    *Sessions
	sets        []MigrationSet
	syncTimeout time.Duration
	logger      *zap.Logger
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithMigrations replaces the registered migration sets.
func WithMigrations(sets ...MigrationSet) StoreOption {
	return func(s *Store) {
		s.sets = sets
	}
}

// WithSyncTimeout bounds how long SyncSchema retries a busy database.
func WithSyncTimeout(d time.Duration) StoreOption {
	return func(s *Store) {
		s.syncTimeout = d
	}
}

// WithLogger sets the store logger.
func WithLogger(l *zap.Logger) StoreOption {
	return func(s *Store) {
		s.logger = l
	}
}

// NewStore opens the database at path, creating its directory.
func NewStore(path string, opts ...StoreOption) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir db dir: %w", err)
	}
	db, err := Open(path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	s := &Store{
		path:        path,
		db:          db,
		sessions:    NewSessions(db),
		sets:        RegisteredMigrations(),
		syncTimeout: 10 * time.Second,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Sessions returns the shared session factory.
func (s *Store) Sessions() *Sessions {
	return s.sessions
}

// DB exposes the underlying handle for tests and maintenance.
func (s *Store) DB() *sql.DB {
	return s.db
}

// SyncSchema applies every migration set. It is idempotent. A database held
// by another process is retried with exponential backoff until the sync
// timeout elapses; any other failure is returned immediately.
func (s *Store) SyncSchema(ctx context.Context) error {
	attempt := 0
	op := func() error {
		attempt++
		if err := s.db.PingContext(ctx); err != nil {
			return classify(err)
		}
		for _, set := range s.sets {
			if err := RunMigrations(s.path, set); err != nil {
				s.logger.Warn("schema sync failed", zap.String("set", set.Name), zap.Int("attempt", attempt), zap.Error(err))
				return classify(fmt.Errorf("migrate %s: %w", set.Name, err))
			}
			s.logger.Debug("schema in sync", zap.String("set", set.Name))
		}
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxElapsedTime = s.syncTimeout
	if err := backoff.Retry(op, backoff.WithContext(b, ctx)); err != nil {
		return err
	}
	s.logger.Info("database schema synchronized", zap.Int("sets", len(s.sets)), zap.String("path", s.path))
	return nil
}

// Dispose closes the database.
func (s *Store) Dispose(ctx context.Context) error {
	_ = ctx
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// classify marks every error except sqlite busy/locked as permanent so the
// retry loop gives up straight away.
func classify(err error) error {
	if isBusy(err) {
		return err
	}
	return backoff.Permanent(err)
}

func isBusy(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked
	}
	// golang-migrate flattens driver errors into strings
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY")
}
