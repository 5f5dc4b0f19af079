package sessiontracker

import (
	"database/sql"
	"time"
)

// GameSession is one tracked play session. EndedAt is nil while the
// session is running.
type GameSession struct {
	ID              string
	GameName        string
	StartedAt       time.Time
	EndedAt         *time.Time
	DurationSeconds int64
	Notes           sql.NullString
}

// Finished reports whether the session has been stopped.
func (g GameSession) Finished() bool {
	return g.EndedAt != nil
}
