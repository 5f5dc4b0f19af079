package tui

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/require"

	"github.com/jask/nextool/internal/plugin"
)

type recordingWidget struct {
	label string
	seen  *[]string
}

func (w recordingWidget) Init() tea.Cmd { return nil }

func (w recordingWidget) Update(msg tea.Msg) (plugin.Widget, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		*w.seen = append(*w.seen, w.label+":"+msg.String())
	case pingMsg:
		*w.seen = append(*w.seen, w.label+":ping")
	}
	return w, nil
}

func (w recordingWidget) View(width, height int) string {
	return "body of " + w.label
}

type pingMsg struct{}

type countingModule struct {
	id      string
	calls   int
	widget  plugin.Widget
	initErr error
}

func (m *countingModule) ID() string                                        { return m.id }
func (m *countingModule) DisplayName() string                               { return strings.ToUpper(m.id) }
func (m *countingModule) Initialize(context.Context, *plugin.Context) error { return m.initErr }
func (m *countingModule) Widget() plugin.Widget {
	m.calls++
	if m.widget == nil {
		panic("not initialized")
	}
	return m.widget
}

func mountTwo(t *testing.T) (*Window, *[]string, []*countingModule) {
	t.Helper()
	seen := &[]string{}
	mods := []*countingModule{
		{id: "alpha", widget: recordingWidget{label: "alpha", seen: seen}},
		{id: "beta", widget: recordingWidget{label: "beta", seen: seen}},
	}
	w := New("NexTool - Game Assistant")
	w.Mount([]plugin.Module{mods[0], mods[1]})
	return w, seen, mods
}

func press(s string) tea.KeyMsg {
	switch s {
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "shift+tab":
		return tea.KeyMsg{Type: tea.KeyShiftTab}
	case "ctrl+c":
		return tea.KeyMsg{Type: tea.KeyCtrlC}
	}
	if strings.HasPrefix(s, "alt+") {
		return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s[4:]), Alt: true}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestMountCallsWidgetOnce(t *testing.T) {
	t.Parallel()

	w, _, mods := mountTwo(t)
	require.Equal(t, "2 modules loaded", w.Status())
	for _, m := range mods {
		require.Equal(t, 1, m.calls)
	}

	view := w.model.View()
	require.Contains(t, view, "1:ALPHA")
	require.Contains(t, view, "2:BETA")
	require.Contains(t, view, "2 modules loaded")
	require.Contains(t, view, "body of alpha")
	for _, m := range mods {
		require.Equal(t, 1, m.calls, "rendering never asks the module again")
	}
}

func TestMountSkipsBrokenWidget(t *testing.T) {
	t.Parallel()

	w := New("host")
	w.Mount([]plugin.Module{&countingModule{id: "broken"}})
	require.Equal(t, "0 modules loaded", w.Status())
	require.Contains(t, w.model.View(), "No modules loaded.")
}

func TestNotifyShowsNotice(t *testing.T) {
	t.Parallel()

	w, _, _ := mountTwo(t)
	w.model.width = 160
	w.Notify("1 module(s) failed to load; see log")
	require.Contains(t, w.model.View(), "1 module(s) failed to load; see log")
}

func TestKeyRouting(t *testing.T) {
	t.Parallel()

	w, seen, _ := mountTwo(t)
	m := w.model

	m.Update(press("x"))
	m.Update(press("tab"))
	m.Update(press("y"))
	require.Contains(t, m.View(), "body of beta")
	m.Update(press("tab"))
	require.Equal(t, 0, m.active, "tab wraps around")
	m.Update(press("shift+tab"))
	require.Equal(t, 1, m.active)
	m.Update(press("alt+1"))
	require.Equal(t, 0, m.active)
	m.Update(press("alt+9"))
	require.Equal(t, 0, m.active, "out of range jump is ignored")

	m.Update(pingMsg{})
	require.Equal(t, []string{"alpha:x", "beta:y", "alpha:ping", "beta:ping"}, *seen)

	_, cmd := m.Update(press("ctrl+c"))
	require.NotNil(t, cmd)
	require.IsType(t, tea.QuitMsg{}, cmd())
}

func TestWindowSizeReachesWidgets(t *testing.T) {
	t.Parallel()

	w, _, _ := mountTwo(t)
	w.model.Update(tea.WindowSizeMsg{Width: 60, Height: 12})
	require.Equal(t, 60, w.model.width)
	view := w.model.View()
	require.Len(t, strings.Split(view, "\n"), 12)
}

func TestRunReturnsOnCancel(t *testing.T) {
	t.Parallel()

	w, _, _ := mountTwo(t)
	w.programOpts = append(w.programOpts, tea.WithInput(nil), tea.WithOutput(io.Discard), tea.WithoutSignalHandler())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.NoError(t, w.Run(ctx))
}
