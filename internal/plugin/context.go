package plugin

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/jask/nextool/internal/database"
)

// Context grants modules access to the host's shared services. It is built
// once before any module initializes and lives for the whole run.
//
// The registry is mutated only from the orchestrator's control goroutine and
// is not locked. Widget callbacks must not call Register.
type Context struct {
	sessions *database.Sessions
	logger   *zap.Logger
	modules  map[string]Module
	order    []string
}

// NewContext builds a Context. sessions must not be nil.
func NewContext(sessions *database.Sessions, logger *zap.Logger) *Context {
	if sessions == nil {
		panic("plugin: NewContext needs a session factory")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Context{
		sessions: sessions,
		logger:   logger,
		modules:  make(map[string]Module),
	}
}

// Sessions returns the shared session factory.
func (c *Context) Sessions() *database.Sessions {
	return c.sessions
}

// Logger returns the host logger. Modules should derive a named child.
func (c *Context) Logger() *zap.Logger {
	return c.logger
}

// Register records an initialized module. An id that is already registered
// is rejected and the existing entry is kept.
func (c *Context) Register(m Module) error {
	if m == nil {
		return fmt.Errorf("%w: nil module", ErrInvalidModule)
	}
	id := m.ID()
	if id == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidModule)
	}
	if _, exists := c.modules[id]; exists {
		return fmt.Errorf("module %q: %w", id, ErrDuplicateModule)
	}
	c.modules[id] = m
	c.order = append(c.order, id)
	return nil
}

// Lookup returns the registered module with the given id.
func (c *Context) Lookup(id string) (Module, bool) {
	m, ok := c.modules[id]
	return m, ok
}

// Modules returns registered modules in registration order.
func (c *Context) Modules() []Module {
	out := make([]Module, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.modules[id])
	}
	return out
}

// Len returns the number of registered modules.
func (c *Context) Len() int {
	return len(c.order)
}
