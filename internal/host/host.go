// Package host sequences the module lifecycle: storage preparation, module
// initialization, mounting, the wait for termination and teardown.
package host

import (
	"context"
	"fmt"

	"github.com/jask/nextool/internal/database"
	"github.com/jask/nextool/internal/plugin"
)

// Phase is the orchestrator's lifecycle position.
type Phase int

const (
	PhaseCreated Phase = iota
	PhaseStorageReady
	PhaseModulesInitializing
	PhaseRunning
	PhaseShuttingDown
	PhaseStopped
)

func (p Phase) String() string {
	switch p {
	case PhaseCreated:
		return "created"
	case PhaseStorageReady:
		return "storage-ready"
	case PhaseModulesInitializing:
		return "modules-initializing"
	case PhaseRunning:
		return "running"
	case PhaseShuttingDown:
		return "shutting-down"
	case PhaseStopped:
		return "stopped"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Storage prepares the schema and owns the session factory.
type Storage interface {
	SyncSchema(ctx context.Context) error
	Sessions() *database.Sessions
	Dispose(ctx context.Context) error
}

// Source yields module instances, uninitialized.
type Source interface {
	Load(ctx context.Context) ([]plugin.Module, error)
}

// Static is a Source over a fixed list, for hosts that skip discovery.
type Static []plugin.Module

func (s Static) Load(context.Context) ([]plugin.Module, error) {
	return append([]plugin.Module(nil), s...), nil
}

// diagnosed is implemented by sources that keep per-candidate failures.
type diagnosed interface {
	Diagnostics() []*plugin.DiscoveryError
}

// Window presents live modules. Run blocks until the user quits or ctx is
// cancelled.
type Window interface {
	Mount(modules []plugin.Module)
	Notify(text string)
	Run(ctx context.Context) error
}

// StorageFatalError means the schema could not be prepared. No module was
// initialized and the host must exit.
type StorageFatalError struct {
	Err error
}

func (e *StorageFatalError) Error() string {
	return fmt.Sprintf("storage unavailable: %v", e.Err)
}

func (e *StorageFatalError) Unwrap() error { return e.Err }
