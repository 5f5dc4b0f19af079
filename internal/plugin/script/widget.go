package script

import (
	"errors"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	lua "github.com/yuin/gopher-lua"

	"github.com/jask/nextool/internal/plugin"
)

var (
	bodyStyle  = lipgloss.NewStyle().Padding(1, 2)
	hintStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
)

// widget shows the last render output. r re-renders.
type widget struct {
	m    *Module
	text string
	err  error
}

func newWidget(m *Module) *widget {
	w := &widget{m: m}
	w.refresh()
	return w
}

func (w *widget) refresh() {
	w.text, w.err = w.m.render()
}

func (w *widget) Init() tea.Cmd { return nil }

func (w *widget) Update(msg tea.Msg) (plugin.Widget, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok && key.String() == "r" {
		w.refresh()
	}
	return w, nil
}

func (w *widget) View(width, height int) string {
	body := w.text
	if w.err != nil {
		body = errorStyle.Render("render failed: " + luaMessage(w.err))
	}
	return bodyStyle.Width(width).MaxHeight(height).Render(
		lipgloss.JoinVertical(lipgloss.Left, body, "", hintStyle.Render("r refresh")),
	)
}

// luaMessage drops the stack traceback from Lua errors.
func luaMessage(err error) string {
	var apiErr *lua.ApiError
	if errors.As(err, &apiErr) && apiErr.Object != nil {
		return apiErr.Object.String()
	}
	return err.Error()
}
