// Package sessiontracker is the bundled game session tracker module.
package sessiontracker

import (
	"context"
	"embed"
	"fmt"

	"go.uber.org/zap"

	"github.com/jask/nextool/internal/database"
	"github.com/jask/nextool/internal/plugin"
)

// ID is the module id. It is also the catalog package the module is
// exported under, so the candidate directory must carry the same name.
const ID = "session_tracker"

//go:embed migrations/*.sql
var migrations embed.FS

func init() {
	plugin.Export(ID, "Plugin", New)
	database.RegisterMigrations(ID, migrations, "migrations")
}

// Plugin adapts the tracker to the module contract.
type Plugin struct {
	svc    *Service
	widget *Widget
	logger *zap.Logger
}

var _ plugin.Module = (*Plugin)(nil)
var _ plugin.Shutdowner = (*Plugin)(nil)

// New returns an uninitialized tracker.
func New() *Plugin {
	return &Plugin{}
}

func (p *Plugin) ID() string          { return ID }
func (p *Plugin) DisplayName() string { return "Game Sessions" }

// Initialize builds the service over the shared session factory and resumes
// a session an earlier run left open.
func (p *Plugin) Initialize(ctx context.Context, hc *plugin.Context) error {
	if p.svc != nil {
		return plugin.ErrAlreadyInitialized
	}
	logger := hc.Logger().Named(ID)
	svc := NewService(hc.Sessions(), WithServiceLogger(logger))
	if _, _, err := svc.Restore(ctx); err != nil {
		return err
	}
	p.svc = svc
	p.logger = logger
	p.widget = newWidget(svc, logger)
	return nil
}

// Widget returns the tracker UI. It panics before Initialize.
func (p *Plugin) Widget() plugin.Widget {
	if p.widget == nil {
		panic(fmt.Sprintf("%s: Widget called before Initialize", ID))
	}
	return p.widget
}

// Shutdown leaves a running session open; the next run restores it.
func (p *Plugin) Shutdown(context.Context) error {
	if p.svc == nil {
		return nil
	}
	if cur, ok := p.svc.Current(); ok {
		p.logger.Info("session left running", zap.String("session", cur.ID), zap.String("game", cur.GameName))
	}
	return nil
}
