package sessiontracker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/jask/nextool/internal/plugin"
)

// opTimeout bounds one storage call started from the widget.
const opTimeout = 5 * time.Second

var (
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#a6adc8"))
	timerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#89b4fa")).Bold(true)
	actionStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#a6e3a1")).Bold(true)
	stopStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#f38ba8")).Bold(true)
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#7f849c"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#f38ba8"))
	boxStyle    = lipgloss.NewStyle().Padding(1, 2)
)

type startedMsg struct {
	session GameSession
	err     error
}

type stoppedMsg struct {
	session GameSession
	err     error
}

type historyMsg struct {
	sessions []GameSession
	err      error
}

type tickMsg struct {
	gen int
}

// Widget is the tracker UI: a game name input, an elapsed timer, a
// start/stop action on enter and the recent history table.
type Widget struct {
	svc    *Service
	logger *zap.Logger

	input   textinput.Model
	history table.Model

	tracking  bool
	startedAt time.Time
	busy      bool
	errLine   string
	tickGen   int
}

var _ plugin.Widget = (*Widget)(nil)

func newWidget(svc *Service, logger *zap.Logger) *Widget {
	if logger == nil {
		logger = zap.NewNop()
	}
	in := textinput.New()
	in.Placeholder = "Enter the game you are playing..."
	in.CharLimit = MaxGameNameLength
	in.Width = 40
	in.Focus()

	hist := table.New(
		table.WithColumns([]table.Column{
			{Title: "Game", Width: 28},
			{Title: "Started", Width: 16},
			{Title: "Ended", Width: 8},
			{Title: "Duration", Width: 10},
		}),
		table.WithHeight(8),
		table.WithFocused(false),
	)

	w := &Widget{svc: svc, logger: logger, input: in, history: hist}
	if cur, ok := svc.Current(); ok {
		w.track(cur)
	}
	return w
}

func (w *Widget) track(g GameSession) {
	w.tracking = true
	w.startedAt = g.StartedAt
	w.input.SetValue(g.GameName)
	w.input.Blur()
	w.tickGen++
}

func (w *Widget) Init() tea.Cmd {
	cmds := []tea.Cmd{w.loadHistory(), textinput.Blink}
	if w.tracking {
		cmds = append(cmds, w.tick())
	}
	return tea.Batch(cmds...)
}

func (w *Widget) Update(msg tea.Msg) (plugin.Widget, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return w, w.handleKey(msg)

	case startedMsg:
		w.busy = false
		if msg.err != nil {
			w.fail("Start failed", msg.err)
			return w, nil
		}
		w.errLine = ""
		w.track(msg.session)
		return w, w.tick()

	case stoppedMsg:
		w.busy = false
		if msg.err != nil {
			w.fail("Stop failed", msg.err)
			return w, nil
		}
		w.errLine = ""
		w.tracking = false
		w.tickGen++
		w.input.SetValue("")
		return w, tea.Batch(w.input.Focus(), w.loadHistory())

	case historyMsg:
		if msg.err != nil {
			w.fail("Loading history failed", msg.err)
			return w, nil
		}
		w.history.SetRows(historyRows(msg.sessions))
		return w, nil

	case tickMsg:
		if !w.tracking || msg.gen != w.tickGen {
			return w, nil
		}
		return w, w.tick()
	}

	var cmd tea.Cmd
	w.input, cmd = w.input.Update(msg)
	return w, cmd
}

func (w *Widget) handleKey(msg tea.KeyMsg) tea.Cmd {
	if msg.String() != "enter" {
		if w.tracking || w.busy {
			return nil
		}
		var cmd tea.Cmd
		w.input, cmd = w.input.Update(msg)
		return cmd
	}
	if w.busy {
		return nil
	}
	if w.tracking {
		w.busy = true
		return w.stop()
	}
	name := strings.TrimSpace(w.input.Value())
	if name == "" {
		w.errLine = ErrEmptyGameName.Error()
		return nil
	}
	w.busy = true
	return w.start(name)
}

func (w *Widget) fail(what string, err error) {
	w.errLine = fmt.Sprintf("%s: %v", what, err)
	w.logger.Warn(strings.ToLower(what), zap.Error(err))
}

func (w *Widget) start(name string) tea.Cmd {
	svc := w.svc
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		g, err := svc.Start(ctx, name)
		return startedMsg{session: g, err: err}
	}
}

func (w *Widget) stop() tea.Cmd {
	svc := w.svc
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		g, err := svc.Stop(ctx)
		return stoppedMsg{session: g, err: err}
	}
}

func (w *Widget) loadHistory() tea.Cmd {
	svc := w.svc
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		sessions, err := svc.Recent(ctx, DefaultHistoryLimit)
		return historyMsg{sessions: sessions, err: err}
	}
}

func (w *Widget) tick() tea.Cmd {
	gen := w.tickGen
	return tea.Tick(time.Second, func(time.Time) tea.Msg {
		return tickMsg{gen: gen}
	})
}

// Elapsed returns the timer text.
func (w *Widget) Elapsed() string {
	if !w.tracking {
		return formatClock(0)
	}
	return formatClock(w.svc.Now().Sub(w.startedAt))
}

// Busy reports whether a start or stop is pending.
func (w *Widget) Busy() bool {
	return w.busy
}

func (w *Widget) View(width, height int) string {
	action := actionStyle.Render("[enter] Start")
	if w.tracking {
		action = stopStyle.Render("[enter] Stop")
	}
	if w.busy {
		action = mutedStyle.Render("working...")
	}
	controls := lipgloss.JoinHorizontal(lipgloss.Center,
		labelStyle.Render("Game: "),
		w.input.View(),
		"  ",
		timerStyle.Render(w.Elapsed()),
		"  ",
		action,
	)

	lines := []string{controls}
	if w.errLine != "" {
		lines = append(lines, errorStyle.Render(w.errLine))
	} else {
		lines = append(lines, "")
	}
	lines = append(lines, labelStyle.Render("Recent history"))

	w.history.SetHeight(max(3, height-8))
	lines = append(lines, w.history.View())
	return boxStyle.Width(width).MaxHeight(height).Render(strings.Join(lines, "\n"))
}

func historyRows(sessions []GameSession) []table.Row {
	rows := make([]table.Row, 0, len(sessions))
	for _, g := range sessions {
		ended := "-"
		if g.EndedAt != nil {
			ended = g.EndedAt.Local().Format("15:04")
		}
		rows = append(rows, table.Row{
			g.GameName,
			g.StartedAt.Local().Format("2006-01-02 15:04"),
			ended,
			formatDuration(g.DurationSeconds),
		})
	}
	return rows
}

// formatClock renders d as HH:MM:SS.
func formatClock(d time.Duration) string {
	total := max(0, int64(d/time.Second))
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, total%3600/60, total%60)
}

// formatDuration renders seconds as H:MM:SS.
func formatDuration(seconds int64) string {
	seconds = max(0, seconds)
	return fmt.Sprintf("%d:%02d:%02d", seconds/3600, seconds%3600/60, seconds%60)
}
