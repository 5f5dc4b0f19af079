package tui

import (
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jask/nextool/internal/plugin"
)

type tab struct {
	id     string
	label  string
	widget plugin.Widget
}

// model is the bubbletea root. Key presses go to the active widget, every
// other message to all of them.
type model struct {
	title  string
	tabs   []tab
	active int
	width  int
	height int
	status string
	notice string
	keys   keyMap
}

func newModel(title string) *model {
	return &model{
		title:  title,
		status: "0 modules loaded",
		width:  100,
		height: 32,
		keys:   defaultKeys(),
	}
}

func (m *model) Init() tea.Cmd {
	cmds := make([]tea.Cmd, 0, len(m.tabs))
	for _, t := range m.tabs {
		if cmd := t.widget.Init(); cmd != nil {
			cmds = append(cmds, cmd)
		}
	}
	return tea.Batch(cmds...)
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m, m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	}
	return m, m.broadcast(msg)
}

func (m *model) handleKey(msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return tea.Quit
	case len(m.tabs) == 0:
		return nil
	case key.Matches(msg, m.keys.Next):
		m.active = (m.active + 1) % len(m.tabs)
		return nil
	case key.Matches(msg, m.keys.Prev):
		m.active = (m.active - 1 + len(m.tabs)) % len(m.tabs)
		return nil
	case key.Matches(msg, m.keys.Jump):
		if i := jumpIndex(msg); i >= 0 && i < len(m.tabs) {
			m.active = i
		}
		return nil
	}
	t := &m.tabs[m.active]
	var cmd tea.Cmd
	t.widget, cmd = t.widget.Update(msg)
	return cmd
}

func (m *model) broadcast(msg tea.Msg) tea.Cmd {
	cmds := make([]tea.Cmd, 0, len(m.tabs))
	for i := range m.tabs {
		var cmd tea.Cmd
		m.tabs[i].widget, cmd = m.tabs[i].widget.Update(msg)
		if cmd != nil {
			cmds = append(cmds, cmd)
		}
	}
	return tea.Batch(cmds...)
}
