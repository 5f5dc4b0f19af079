// Package tui hosts module widgets in a tabbed bubbletea window.
package tui

import (
	"context"
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/jask/nextool/internal/plugin"
)

// Window implements the host's UI collaborator.
type Window struct {
	model       *model
	logger      *zap.Logger
	programOpts []tea.ProgramOption
}

// Option configures a Window.
type Option func(*Window)

// WithLogger sets the window logger.
func WithLogger(l *zap.Logger) Option {
	return func(w *Window) {
		w.logger = l
	}
}

// WithProgramOptions appends bubbletea program options, e.g. for tests.
func WithProgramOptions(opts ...tea.ProgramOption) Option {
	return func(w *Window) {
		w.programOpts = append(w.programOpts, opts...)
	}
}

// New creates an empty window titled title.
func New(title string, opts ...Option) *Window {
	w := &Window{
		model:  newModel(title),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Mount adds one tab per module, labeled with its display name. Each
// module's Widget is called exactly once here.
func (w *Window) Mount(modules []plugin.Module) {
	for _, m := range modules {
		wd, err := widgetOf(m)
		if err != nil {
			w.logger.Error("module widget unavailable", zap.String("module", m.ID()), zap.Error(err))
			continue
		}
		w.model.tabs = append(w.model.tabs, tab{id: m.ID(), label: m.DisplayName(), widget: wd})
	}
	w.model.status = fmt.Sprintf("%d modules loaded", len(w.model.tabs))
}

func widgetOf(m plugin.Module) (wd plugin.Widget, err error) {
	defer plugin.Recover(&err)
	wd = m.Widget()
	if wd == nil {
		return nil, errors.New("nil widget")
	}
	return wd, nil
}

// Notify shows a non-blocking notice next to the status readout.
func (w *Window) Notify(text string) {
	w.model.notice = text
}

// Status returns the status readout.
func (w *Window) Status() string {
	return w.model.status
}

// Run shows the window until the user quits or ctx is cancelled.
func (w *Window) Run(ctx context.Context) error {
	opts := append([]tea.ProgramOption{tea.WithAltScreen(), tea.WithContext(ctx)}, w.programOpts...)
	p := tea.NewProgram(w.model, opts...)
	if _, err := p.Run(); err != nil {
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("run window: %w", err)
	}
	return nil
}
