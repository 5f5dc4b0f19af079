package plugin

import (
	"errors"
	"fmt"
)

// Module system errors.
var (
	// ErrNoModule is returned when a candidate holds nothing that satisfies Module.
	ErrNoModule = errors.New("no module found")

	// ErrAmbiguousModule is returned when the fallback scan finds more than one module.
	ErrAmbiguousModule = errors.New("more than one module found")

	// ErrSymbolNotFound is returned when a manifest names a symbol the catalog does not have.
	ErrSymbolNotFound = errors.New("designated symbol not found")

	// ErrNotModule is returned when a designated symbol does not satisfy Module.
	ErrNotModule = errors.New("symbol does not implement the module contract")

	// ErrInvalidModule is returned for instances with an empty id or display name.
	ErrInvalidModule = errors.New("invalid module")

	// ErrInvalidManifest is returned when module.toml cannot be used.
	ErrInvalidManifest = errors.New("invalid manifest")

	// ErrDuplicateModule is returned when a module id is already registered.
	ErrDuplicateModule = errors.New("module id already registered")

	// ErrAlreadyInitialized is returned by modules whose Initialize ran before.
	ErrAlreadyInitialized = errors.New("module already initialized")

	// ErrPanic marks a recovered panic from module code.
	ErrPanic = errors.New("module panicked")
)

// DiscoveryError reports a candidate directory that could not be resolved to
// a module. It never stops the scan.
type DiscoveryError struct {
	Candidate string
	Err       error
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("discover %s: %v", e.Candidate, e.Err)
}

func (e *DiscoveryError) Unwrap() error { return e.Err }

// InitializationError reports a module whose Initialize failed. The module is
// left out of the live set.
type InitializationError struct {
	ModuleID string
	Err      error
}

func (e *InitializationError) Error() string {
	return fmt.Sprintf("initialize %s: %v", e.ModuleID, e.Err)
}

func (e *InitializationError) Unwrap() error { return e.Err }

// ShutdownError reports a module whose Shutdown failed.
type ShutdownError struct {
	ModuleID string
	Err      error
}

func (e *ShutdownError) Error() string {
	return fmt.Sprintf("shutdown %s: %v", e.ModuleID, e.Err)
}

func (e *ShutdownError) Unwrap() error { return e.Err }

// Recover converts a panic into an ErrPanic error stored in *err. Use it as
// a deferred call around module code.
func Recover(err *error) {
	if p := recover(); p != nil {
		*err = fmt.Errorf("%w: %v", ErrPanic, p)
	}
}
