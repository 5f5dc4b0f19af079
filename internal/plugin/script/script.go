// Package script adapts Lua files to the module contract.
//
// A script module is a Lua chunk that returns a table:
//
//	return {
//	    id = "clock",
//	    name = "Clock",
//	    initialize = function(host) host.log("ready") end, -- optional
//	    render = function() return os.date("%H:%M:%S") end,
//	    shutdown = function() end,                         -- optional
//	}
//
// initialize receives a host table with log(msg) and modules(), which
// returns how many modules are registered so far. The state is confined to
// the goroutine that drives the window.
package script

import (
	"context"
	"fmt"
	"sync"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/jask/nextool/internal/plugin"
)

// Module is a Lua-backed module.
type Module struct {
	path   string
	L      *lua.LState
	table  *lua.LTable
	id     string
	name   string
	logger *zap.Logger

	initialized bool
	widget      *widget
	closeOnce   sync.Once
}

var _ plugin.Module = (*Module)(nil)
var _ plugin.Shutdowner = (*Module)(nil)

// Open evaluates the file at path and adapts the table it returns. It has
// the plugin.ScriptOpener signature.
func Open(path string) (plugin.Module, error) {
	L := newState()
	m, err := adapt(L, path)
	if err != nil {
		L.Close()
		return nil, err
	}
	return m, nil
}

func newState() *lua.LState {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	for _, lib := range []struct {
		name string
		open lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
		{lua.OsLibName, lua.OpenOs},
	} {
		L.Push(L.NewFunction(lib.open))
		L.Push(lua.LString(lib.name))
		L.Call(1, 0)
	}
	for _, name := range []string{"dofile", "loadfile"} {
		L.SetGlobal(name, lua.LNil)
	}
	return L
}

func adapt(L *lua.LState, path string) (*Module, error) {
	top := L.GetTop()
	if err := L.DoFile(path); err != nil {
		return nil, fmt.Errorf("evaluate %s: %w", path, err)
	}
	if L.GetTop() == top {
		return nil, fmt.Errorf("%w: %s returned nothing", plugin.ErrNotModule, path)
	}
	ret := L.Get(top + 1)
	L.SetTop(top)

	tbl, ok := ret.(*lua.LTable)
	if !ok {
		return nil, fmt.Errorf("%w: %s returned a %s, want a table", plugin.ErrNotModule, path, ret.Type())
	}
	if _, ok := tbl.RawGetString("render").(*lua.LFunction); !ok {
		return nil, fmt.Errorf("%w: %s has no render function", plugin.ErrNotModule, path)
	}
	id, err := stringField(tbl, "id")
	if err != nil {
		return nil, err
	}
	name, err := stringField(tbl, "name")
	if err != nil {
		return nil, err
	}
	return &Module{
		path:   path,
		L:      L,
		table:  tbl,
		id:     id,
		name:   name,
		logger: zap.NewNop(),
	}, nil
}

func stringField(tbl *lua.LTable, key string) (string, error) {
	s, ok := tbl.RawGetString(key).(lua.LString)
	if !ok || s == "" {
		return "", fmt.Errorf("%w: field %q must be a non-empty string", plugin.ErrInvalidModule, key)
	}
	return string(s), nil
}

func (m *Module) ID() string          { return m.id }
func (m *Module) DisplayName() string { return m.name }
func (m *Module) Path() string        { return m.path }

// Initialize runs the script's initialize function, if any, and builds the
// widget. On failure the Lua state is closed.
func (m *Module) Initialize(ctx context.Context, hc *plugin.Context) (err error) {
	if m.initialized {
		return plugin.ErrAlreadyInitialized
	}
	m.logger = hc.Logger().Named("script").With(zap.String("module", m.id))
	defer func() {
		if err != nil {
			m.close()
		}
	}()

	if fn, ok := m.table.RawGetString("initialize").(*lua.LFunction); ok {
		host := m.L.NewTable()
		host.RawSetString("log", m.L.NewFunction(func(L *lua.LState) int {
			m.logger.Info(L.CheckString(1))
			return 0
		}))
		host.RawSetString("modules", m.L.NewFunction(func(L *lua.LState) int {
			L.Push(lua.LNumber(hc.Len()))
			return 1
		}))
		if err := m.call(ctx, fn, host); err != nil {
			return fmt.Errorf("lua initialize: %w", err)
		}
	}

	m.widget = newWidget(m)
	m.initialized = true
	return nil
}

// Widget returns the module's widget. It panics before Initialize.
func (m *Module) Widget() plugin.Widget {
	if m.widget == nil {
		panic(fmt.Sprintf("script: Widget called on %s before Initialize", m.id))
	}
	return m.widget
}

// Shutdown runs the script's shutdown function and closes the state.
func (m *Module) Shutdown(ctx context.Context) error {
	if m.L.IsClosed() {
		return nil
	}
	defer m.close()
	if fn, ok := m.table.RawGetString("shutdown").(*lua.LFunction); ok {
		if err := m.call(ctx, fn); err != nil {
			return fmt.Errorf("lua shutdown: %w", err)
		}
	}
	return nil
}

// render calls the script's render function.
func (m *Module) render() (string, error) {
	if m.L.IsClosed() {
		return "", fmt.Errorf("script %s is closed", m.id)
	}
	fn := m.table.RawGetString("render").(*lua.LFunction)
	if err := m.L.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}); err != nil {
		return "", err
	}
	ret := m.L.Get(-1)
	m.L.Pop(1)
	if ret == lua.LNil {
		return "", nil
	}
	return ret.String(), nil
}

func (m *Module) call(ctx context.Context, fn *lua.LFunction, args ...lua.LValue) error {
	m.L.SetContext(ctx)
	defer m.L.RemoveContext()
	return m.L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}, args...)
}

func (m *Module) close() {
	m.closeOnce.Do(m.L.Close)
}
