package script

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/jask/nextool/internal/database"
	"github.com/jask/nextool/internal/plugin"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "init.lua")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

const counterScript = `
local count = 0
return {
    id = "counter",
    name = "Counter",
    initialize = function(host)
        host.log("counter ready, " .. host.modules() .. " modules before me")
    end,
    render = function()
        count = count + 1
        return "renders: " .. count
    end,
    shutdown = function()
        count = -1
    end,
}
`

func TestOpenAndRun(t *testing.T) {
	t.Parallel()

	m, err := Open(writeScript(t, counterScript))
	require.NoError(t, err)
	require.Equal(t, "counter", m.ID())
	require.Equal(t, "Counter", m.DisplayName())
	require.Panics(t, func() { m.Widget() })

	core, logs := observer.New(zapcore.InfoLevel)
	hc := plugin.NewContext(database.NewSessions(nil), zap.New(core))
	require.NoError(t, m.Initialize(context.Background(), hc))

	entries := logs.FilterMessage("counter ready, 0 modules before me").All()
	require.Len(t, entries, 1)
	require.Equal(t, "counter", entries[0].ContextMap()["module"])

	w := m.Widget()
	require.Contains(t, w.View(40, 10), "renders: 1")
	w, _ = w.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("r")})
	require.Contains(t, w.View(40, 10), "renders: 2")
	w, _ = w.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("x")})
	require.Contains(t, w.View(40, 10), "renders: 2")

	require.ErrorIs(t, m.Initialize(context.Background(), hc), plugin.ErrAlreadyInitialized)

	require.NoError(t, plugin.Shutdown(context.Background(), m))
	require.True(t, m.(*Module).L.IsClosed())
	require.NoError(t, plugin.Shutdown(context.Background(), m), "second shutdown is a no-op")
}

func TestOpenRejectsBadScripts(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		body    string
		wantErr error
	}{
		{name: "no return", body: `local x = 1`, wantErr: plugin.ErrNotModule},
		{name: "not a table", body: `return "clock"`, wantErr: plugin.ErrNotModule},
		{name: "no render", body: `return { id = "a", name = "A" }`, wantErr: plugin.ErrNotModule},
		{name: "no id", body: `return { name = "A", render = function() end }`, wantErr: plugin.ErrInvalidModule},
		{name: "numeric name", body: `return { id = "a", name = 3, render = function() end }`, wantErr: plugin.ErrInvalidModule},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, err := Open(writeScript(t, tc.body))
			require.ErrorIs(t, err, tc.wantErr)
		})
	}

	_, err := Open(writeScript(t, `return {`))
	require.ErrorContains(t, err, "evaluate")
}

func TestInitializeFailureClosesState(t *testing.T) {
	t.Parallel()

	m, err := Open(writeScript(t, `
return {
    id = "broken",
    name = "Broken",
    initialize = function(host) error("no config") end,
    render = function() return "" end,
}
`))
	require.NoError(t, err)

	hc := plugin.NewContext(database.NewSessions(nil), nil)
	err = m.Initialize(context.Background(), hc)
	require.ErrorContains(t, err, "no config")
	require.True(t, m.(*Module).L.IsClosed())
}

func TestRenderErrorShownInWidget(t *testing.T) {
	t.Parallel()

	m, err := Open(writeScript(t, `
return {
    id = "flaky",
    name = "Flaky",
    render = function() error("sensor offline") end,
}
`))
	require.NoError(t, err)
	require.NoError(t, m.Initialize(context.Background(), plugin.NewContext(database.NewSessions(nil), nil)))
	require.Contains(t, m.Widget().View(400, 10), "sensor offline")
}
