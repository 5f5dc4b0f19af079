package plugin

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/require"
)

type stubWidget struct{ text string }

func (w stubWidget) Init() tea.Cmd                    { return nil }
func (w stubWidget) Update(tea.Msg) (Widget, tea.Cmd) { return w, nil }
func (w stubWidget) View(int, int) string             { return w.text }

type stubModule struct {
	id   string
	name string
}

func (m *stubModule) ID() string                                 { return m.id }
func (m *stubModule) DisplayName() string                        { return m.name }
func (m *stubModule) Initialize(context.Context, *Context) error { return nil }
func (m *stubModule) Widget() Widget                             { return stubWidget{text: m.name} }

// notModule has a constructor but no Module methods.
type notModule struct{}

func mkdirs(t *testing.T, root string, names ...string) {
	t.Helper()
	for _, name := range names {
		require.NoError(t, os.MkdirAll(filepath.Join(root, name), 0o755))
	}
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func moduleIDs(modules []Module) []string {
	ids := make([]string, 0, len(modules))
	for _, m := range modules {
		ids = append(ids, m.ID())
	}
	return ids
}
