// Package plugin is the module lifecycle core of the host.
//
// A module is an independently written feature unit that contributes a tab
// to the host window. Modules implement the Module interface and may also
// implement Shutdowner to release resources on exit.
//
// # Publishing a module
//
// Go has no runtime class scanning, so compiled modules publish named
// constructors ("symbols") from an init function:
//
//	func init() {
//	    plugin.Export("session_tracker", "Plugin", New)
//	}
//
// The first argument is the catalog package name and must match the name of
// the module's directory under the modules directory. The directory enables
// the module for a run and may carry a manifest.
//
// # Module directory
//
//	plugins/
//	├── session_tracker/
//	│   └── module.toml    # entry = "Plugin"
//	├── clock/
//	│   └── init.lua       # script module, found by the fallback scan
//	└── _scratch/          # reserved prefix, never scanned
//
// The manifest is optional. It names either a catalog symbol (entry) or a
// Lua file (script). Without one the loader accepts the directory only when
// exactly one catalog symbol of that package satisfies Module, or the
// directory holds an init.lua and no such symbol exists.
//
// # Lifecycle
//
// The loader only instantiates. The host orchestrator calls Initialize once
// per module with the shared Context, registers successful modules, mounts
// their widgets, and on exit calls Shutdown in reverse order. Every failure
// is contained at the module boundary.
package plugin
