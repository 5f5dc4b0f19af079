package plugin

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
)

// Module is the contract every module implements.
type Module interface {
	// ID is the registry key. It must be non-empty and constant.
	ID() string

	// DisplayName labels the module's tab.
	DisplayName() string

	// Initialize performs slow setup and captures the services the module
	// needs from hc; it is the module's only way to reach them. It is called
	// at most once.
	Initialize(ctx context.Context, hc *Context) error

	// Widget returns the module's already-built UI. Calling it before a
	// successful Initialize is a programmer error.
	Widget() Widget
}

// Shutdowner is implemented by modules that hold resources acquired during
// Initialize. Modules without it shut down as a no-op.
type Shutdowner interface {
	Shutdown(ctx context.Context) error
}

// Widget is the UI a module hands to the host window. It follows the
// bubbletea model loop but renders into the box the window gives it.
type Widget interface {
	Init() tea.Cmd
	Update(msg tea.Msg) (Widget, tea.Cmd)
	View(width, height int) string
}

// Shutdown runs m's shutdown hook when it has one.
func Shutdown(ctx context.Context, m Module) error {
	if s, ok := m.(Shutdowner); ok {
		return s.Shutdown(ctx)
	}
	return nil
}
