package plugin

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/agnivade/levenshtein"
	"go.uber.org/zap"

	"github.com/jask/nextool/internal/metrics"
)

// DefaultDir is the modules directory, relative to the working directory.
const DefaultDir = "plugins"

// ScriptOpener turns a script file into a module. It is injected so the
// core does not depend on a particular script runtime.
type ScriptOpener func(path string) (Module, error)

// Loader discovers module candidates in a directory and instantiates them.
type Loader struct {
	dir         string
	catalog     *Catalog
	openScript  ScriptOpener
	logger      *zap.Logger
	metrics     *metrics.Lifecycle
	diagnostics []*DiscoveryError
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithCatalog replaces the default catalog.
func WithCatalog(c *Catalog) LoaderOption {
	return func(l *Loader) {
		l.catalog = c
	}
}

// WithScriptOpener enables script modules.
func WithScriptOpener(open ScriptOpener) LoaderOption {
	return func(l *Loader) {
		l.openScript = open
	}
}

// WithLogger sets the loader logger.
func WithLogger(logger *zap.Logger) LoaderOption {
	return func(l *Loader) {
		l.logger = logger
	}
}

// WithMetrics records discovery outcomes.
func WithMetrics(m *metrics.Lifecycle) LoaderOption {
	return func(l *Loader) {
		l.metrics = m
	}
}

// NewLoader creates a loader over dir.
func NewLoader(dir string, opts ...LoaderOption) *Loader {
	if dir == "" {
		dir = DefaultDir
	}
	l := &Loader{
		dir:     dir,
		catalog: defaultCatalog,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Dir returns the scanned directory.
func (l *Loader) Dir() string {
	return l.dir
}

// Diagnostics returns the candidates rejected by the last Load.
func (l *Loader) Diagnostics() []*DiscoveryError {
	return l.diagnostics
}

// Load discovers and instantiates every module under the directory, in
// directory order. A missing directory is created and yields no modules. A
// candidate that fails to resolve or construct is logged and skipped; it
// never aborts the scan.
func (l *Loader) Load(ctx context.Context) ([]Module, error) {
	l.diagnostics = nil

	entries, err := os.ReadDir(l.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if err := os.MkdirAll(l.dir, 0o755); err != nil {
				return nil, fmt.Errorf("create modules dir: %w", err)
			}
			l.logger.Warn("modules directory missing, created it", zap.String("dir", l.dir))
			return []Module{}, nil
		}
		return nil, fmt.Errorf("read modules dir: %w", err)
	}

	modules := make([]Module, 0, len(entries))
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return modules, err
		}
		name := entry.Name()
		if reserved(name) {
			continue
		}
		path := filepath.Join(l.dir, name)
		if fi, err := os.Stat(path); err != nil || !fi.IsDir() {
			continue
		}

		m, err := l.loadCandidate(name, path)
		if err != nil {
			derr := &DiscoveryError{Candidate: name, Err: err}
			l.diagnostics = append(l.diagnostics, derr)
			l.metrics.Failed(metrics.StageDiscovery)
			l.logger.Warn("module candidate skipped", zap.String("candidate", name), zap.String("path", path), zap.Error(err))
			continue
		}
		l.metrics.Discovered()
		l.logger.Info("module loaded", zap.String("candidate", name), zap.String("module", m.ID()))
		modules = append(modules, m)
	}
	return modules, nil
}

// reserved reports names the loader never treats as candidates.
func reserved(name string) bool {
	return strings.HasPrefix(name, "_") || strings.HasPrefix(name, ".")
}

func (l *Loader) loadCandidate(name, dir string) (m Module, err error) {
	defer Recover(&err)

	open, err := l.resolve(name, dir)
	if err != nil {
		return nil, err
	}
	m, err = open()
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(m.ID()) == "" {
		return nil, fmt.Errorf("%w: empty id", ErrInvalidModule)
	}
	if strings.TrimSpace(m.DisplayName()) == "" {
		return nil, fmt.Errorf("%w: %s has an empty display name", ErrInvalidModule, m.ID())
	}
	return m, nil
}

type opener func() (Module, error)

func (l *Loader) resolve(name, dir string) (opener, error) {
	manifest, err := readManifest(dir)
	if err != nil {
		return nil, err
	}
	if manifest != nil {
		switch {
		case manifest.Entry != "":
			return l.designated(name, manifest.Entry)
		case manifest.Script != "":
			return l.script(filepath.Join(dir, manifest.Script))
		}
	}
	return l.scan(name, dir)
}

// designated resolves the symbol a manifest names.
func (l *Loader) designated(pkg, entry string) (opener, error) {
	sym, ok := l.catalog.Lookup(pkg, entry)
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s%s", ErrSymbolNotFound, pkg, entry, l.suggest(pkg, entry))
	}
	if !sym.Satisfies() {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotModule, sym, sym.Type)
	}
	return construct(sym), nil
}

func (l *Loader) script(path string) (opener, error) {
	if l.openScript == nil {
		return nil, fmt.Errorf("%w: script modules are disabled (%s)", ErrNoModule, filepath.Base(path))
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}
	return func() (Module, error) { return l.openScript(path) }, nil
}

// scan is the fallback when nothing is designated: exactly one compiled
// symbol or script must satisfy the contract.
func (l *Loader) scan(pkg, dir string) (opener, error) {
	var (
		found []string
		open  opener
	)
	for _, sym := range l.catalog.Symbols(pkg) {
		if !sym.Satisfies() {
			continue
		}
		found = append(found, sym.String())
		open = construct(sym)
	}
	if l.openScript != nil {
		path := filepath.Join(dir, ScriptEntry)
		if fi, err := os.Stat(path); err == nil && !fi.IsDir() {
			found = append(found, ScriptEntry)
			open = func() (Module, error) { return l.openScript(path) }
		}
	}

	switch len(found) {
	case 0:
		return nil, fmt.Errorf("%w in package %q", ErrNoModule, pkg)
	case 1:
		return open, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrAmbiguousModule, strings.Join(found, ", "))
	}
}

func construct(sym Symbol) opener {
	return func() (Module, error) {
		v := sym.New()
		rv := reflect.ValueOf(v)
		if !rv.IsValid() || (rv.Kind() == reflect.Pointer && rv.IsNil()) {
			return nil, fmt.Errorf("%w: %s returned nil", ErrInvalidModule, sym)
		}
		m, ok := v.(Module)
		if !ok {
			return nil, fmt.Errorf("%w: %s built %T", ErrNotModule, sym, v)
		}
		return m, nil
	}
}

// suggest returns a " (did you mean ...)" hint for a mistyped package or
// symbol, or an empty string.
func (l *Loader) suggest(pkg, entry string) string {
	symbols := l.catalog.Symbols(pkg)
	if len(symbols) == 0 {
		if best := closest(pkg, l.catalog.Packages()); best != "" {
			return fmt.Sprintf(" (no compiled package %q; did you mean %q?)", pkg, best)
		}
		return fmt.Sprintf(" (no compiled package %q)", pkg)
	}
	names := make([]string, 0, len(symbols))
	for _, s := range symbols {
		names = append(names, s.Name)
	}
	if best := closest(entry, names); best != "" {
		return fmt.Sprintf(" (did you mean %q?)", best)
	}
	return ""
}

func closest(target string, candidates []string) string {
	best, bestDist := "", -1
	limit := max(2, len(target)/3)
	for _, c := range candidates {
		d := levenshtein.ComputeDistance(strings.ToLower(target), strings.ToLower(c))
		if d > limit {
			continue
		}
		if bestDist < 0 || d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}
