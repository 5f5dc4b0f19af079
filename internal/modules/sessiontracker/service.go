package sessiontracker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jask/nextool/internal/database"
)

// DefaultHistoryLimit is how many finished sessions Recent returns by default.
const DefaultHistoryLimit = 20

// MaxGameNameLength is the longest accepted game name, in characters.
const MaxGameNameLength = 100

var (
	ErrBusy            = errors.New("another session operation is in progress")
	ErrEmptyGameName   = errors.New("game name is required")
	ErrGameNameTooLong = fmt.Errorf("game name is longer than %d characters", MaxGameNameLength)
	ErrAlreadyTracking = errors.New("a session is already being tracked")
	ErrNotTracking     = errors.New("no session is being tracked")
)

// Service records game sessions. At most one session is tracked at a time,
// and Start and Stop never run concurrently with each other.
type Service struct {
	sessions *database.Sessions
	logger   *zap.Logger
	now      func() time.Time

	busy    atomic.Bool
	mu      sync.Mutex
	current *GameSession
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithClock replaces the time source.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		s.now = now
	}
}

// WithServiceLogger sets the service logger.
func WithServiceLogger(l *zap.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = l
	}
}

func NewService(sessions *database.Sessions, opts ...ServiceOption) *Service {
	s := &Service{
		sessions: sessions,
		logger:   zap.NewNop(),
		now:      database.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// acquire claims the operation slot. The returned func releases it.
func (s *Service) acquire() (func(), error) {
	if !s.busy.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	return func() { s.busy.Store(false) }, nil
}

// Start begins tracking gameName.
func (s *Service) Start(ctx context.Context, gameName string) (GameSession, error) {
	release, err := s.acquire()
	if err != nil {
		return GameSession{}, err
	}
	defer release()

	name := strings.TrimSpace(gameName)
	if name == "" {
		return GameSession{}, ErrEmptyGameName
	}
	if utf8.RuneCountInString(name) > MaxGameNameLength {
		return GameSession{}, ErrGameNameTooLong
	}
	if s.IsTracking() {
		return GameSession{}, ErrAlreadyTracking
	}

	g := GameSession{
		ID:        uuid.NewString(),
		GameName:  name,
		StartedAt: s.now(),
	}
	if err := s.sessions.Do(ctx, func(tx *database.Session) error {
		return insertSession(ctx, tx, g)
	}); err != nil {
		return GameSession{}, fmt.Errorf("start session: %w", err)
	}

	s.mu.Lock()
	s.current = &g
	s.mu.Unlock()
	s.logger.Info("session started", zap.String("session", g.ID), zap.String("game", g.GameName))
	return g, nil
}

// Stop ends the tracked session and records its whole-second duration.
func (s *Service) Stop(ctx context.Context) (GameSession, error) {
	release, err := s.acquire()
	if err != nil {
		return GameSession{}, err
	}
	defer release()

	cur, ok := s.Current()
	if !ok {
		return GameSession{}, ErrNotTracking
	}
	end := s.now()
	if end.Before(cur.StartedAt) {
		end = cur.StartedAt
	}
	seconds := int64(end.Sub(cur.StartedAt) / time.Second)

	var closed bool
	if err := s.sessions.Do(ctx, func(tx *database.Session) error {
		var err error
		closed, err = finishSession(ctx, tx, cur.ID, end, seconds)
		return err
	}); err != nil {
		return GameSession{}, fmt.Errorf("stop session: %w", err)
	}
	if !closed {
		s.logger.Warn("session row was already closed", zap.String("session", cur.ID))
	}

	cur.EndedAt = &end
	cur.DurationSeconds = seconds
	s.mu.Lock()
	s.current = nil
	s.mu.Unlock()
	s.logger.Info("session stopped", zap.String("session", cur.ID), zap.Int64("seconds", seconds))
	return cur, nil
}

// Recent returns up to limit finished sessions, most recently ended first.
// A non-positive limit means DefaultHistoryLimit.
func (s *Service) Recent(ctx context.Context, limit int) ([]GameSession, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	var out []GameSession
	err := s.sessions.Do(ctx, func(tx *database.Session) error {
		var err error
		out, err = recentSessions(ctx, tx, limit)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("recent sessions: %w", err)
	}
	return out, nil
}

// Restore resumes tracking the newest unfinished session left by an earlier
// run. It returns false when there is none.
func (s *Service) Restore(ctx context.Context) (GameSession, bool, error) {
	var open *GameSession
	err := s.sessions.Do(ctx, func(tx *database.Session) error {
		var err error
		open, err = openSession(ctx, tx)
		return err
	})
	if err != nil {
		return GameSession{}, false, fmt.Errorf("restore session: %w", err)
	}
	if open == nil {
		return GameSession{}, false, nil
	}
	s.mu.Lock()
	s.current = open
	s.mu.Unlock()
	s.logger.Info("session restored", zap.String("session", open.ID), zap.String("game", open.GameName))
	return *open, true, nil
}

// Current returns the tracked session.
func (s *Service) Current() (GameSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return GameSession{}, false
	}
	return *s.current, true
}

func (s *Service) IsTracking() bool {
	_, ok := s.Current()
	return ok
}

// Now returns the service clock's current time.
func (s *Service) Now() time.Time {
	return s.now()
}
