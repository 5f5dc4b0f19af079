package plugin

import (
	"fmt"
	"reflect"
	"sort"
	"sync"
)

var moduleType = reflect.TypeFor[Module]()

// Symbol is one constructor a compiled package publishes.
type Symbol struct {
	Package string
	Name    string
	Type    reflect.Type
	New     func() any
}

// Satisfies reports whether the symbol's static type implements Module. The
// Module interface itself and other interface types are excluded.
func (s Symbol) Satisfies() bool {
	if s.Type == nil || s.Type.Kind() == reflect.Interface {
		return false
	}
	return s.Type.Implements(moduleType)
}

func (s Symbol) String() string {
	return s.Package + "." + s.Name
}

// Catalog maps package names to their published symbols. It replaces
// reflective class discovery: entries are added at link time by init
// functions and looked up by the loader.
type Catalog struct {
	mu      sync.RWMutex
	symbols map[string]map[string]Symbol
}

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{symbols: make(map[string]map[string]Symbol)}
}

var defaultCatalog = NewCatalog()

// DefaultCatalog returns the catalog that Export writes to.
func DefaultCatalog() *Catalog {
	return defaultCatalog
}

// Export publishes ctor as pkg.name in the default catalog.
func Export[T any](pkg, name string, ctor func() T) {
	ExportTo(defaultCatalog, pkg, name, ctor)
}

// ExportTo publishes ctor as pkg.name in c. Publishing the same symbol twice
// panics, as it can only be a build mistake.
func ExportTo[T any](c *Catalog, pkg, name string, ctor func() T) {
	if pkg == "" || name == "" || ctor == nil {
		panic("plugin: Export needs a package, a name and a constructor")
	}
	c.add(Symbol{
		Package: pkg,
		Name:    name,
		Type:    reflect.TypeFor[T](),
		New:     func() any { return ctor() },
	})
}

func (c *Catalog) add(s Symbol) {
	c.mu.Lock()
	defer c.mu.Unlock()
	byName, ok := c.symbols[s.Package]
	if !ok {
		byName = make(map[string]Symbol)
		c.symbols[s.Package] = byName
	}
	if _, exists := byName[s.Name]; exists {
		panic(fmt.Sprintf("plugin: symbol %s already exported", s))
	}
	byName[s.Name] = s
}

// Lookup returns pkg.name.
func (c *Catalog) Lookup(pkg, name string) (Symbol, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.symbols[pkg][name]
	return s, ok
}

// Symbols returns every symbol of pkg sorted by name.
func (c *Catalog) Symbols(pkg string) []Symbol {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Symbol, 0, len(c.symbols[pkg]))
	for _, s := range c.symbols[pkg] {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Packages returns the names of all packages with at least one symbol.
func (c *Catalog) Packages() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.symbols))
	for pkg := range c.symbols {
		out = append(out, pkg)
	}
	sort.Strings(out)
	return out
}
