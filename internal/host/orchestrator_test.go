package host

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/jask/nextool/internal/database"
	"github.com/jask/nextool/internal/metrics"
	"github.com/jask/nextool/internal/plugin"
	"github.com/jask/nextool/internal/tui"
)

// journal records lifecycle calls across fakes in order.
type journal struct {
	mu      sync.Mutex
	entries []string
}

func (j *journal) add(s string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, s)
}

func (j *journal) all() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.entries...)
}

type fakeStorage struct {
	j       *journal
	syncErr error
}

func (s *fakeStorage) SyncSchema(context.Context) error {
	s.j.add("sync")
	return s.syncErr
}

func (s *fakeStorage) Sessions() *database.Sessions { return database.NewSessions(nil) }

func (s *fakeStorage) Dispose(context.Context) error {
	s.j.add("dispose")
	return nil
}

type fakeWindow struct {
	j       *journal
	mounted []string
	notices []string
	run     func(ctx context.Context) error
}

func (w *fakeWindow) Mount(modules []plugin.Module) {
	for _, m := range modules {
		w.mounted = append(w.mounted, m.ID())
		_ = m.Widget()
	}
	w.j.add("mount")
}

func (w *fakeWindow) Notify(text string) { w.notices = append(w.notices, text) }

func (w *fakeWindow) Run(ctx context.Context) error {
	w.j.add("window")
	if w.run != nil {
		return w.run(ctx)
	}
	return nil
}

type nopWidget struct{}

func (nopWidget) Init() tea.Cmd                           { return nil }
func (nopWidget) Update(tea.Msg) (plugin.Widget, tea.Cmd) { return nopWidget{}, nil }
func (nopWidget) View(int, int) string                    { return "" }

type fakeModule struct {
	id          string
	j           *journal
	initErr     error
	initPanic   bool
	shutErr     error
	shutPanic   bool
	initialized bool
}

func (m *fakeModule) ID() string          { return m.id }
func (m *fakeModule) DisplayName() string { return "Module " + m.id }

func (m *fakeModule) Initialize(_ context.Context, hc *plugin.Context) error {
	m.j.add("init " + m.id)
	if m.initPanic {
		panic("init exploded")
	}
	if m.initErr != nil {
		return m.initErr
	}
	if hc.Sessions() == nil {
		return errors.New("no sessions")
	}
	m.initialized = true
	return nil
}

func (m *fakeModule) Widget() plugin.Widget {
	if !m.initialized {
		panic("widget before initialize")
	}
	return nopWidget{}
}

func (m *fakeModule) Shutdown(context.Context) error {
	m.j.add("shutdown " + m.id)
	if m.shutPanic {
		panic("shutdown exploded")
	}
	return m.shutErr
}

func newHarness(mods ...*fakeModule) (*journal, *fakeStorage, *fakeWindow, Static) {
	j := &journal{}
	src := make(Static, 0, len(mods))
	for _, m := range mods {
		m.j = j
		src = append(src, m)
	}
	return j, &fakeStorage{j: j}, &fakeWindow{j: j}, src
}

func TestRunOrdersLifecycle(t *testing.T) {
	t.Parallel()

	j, st, win, src := newHarness(&fakeModule{id: "a"}, &fakeModule{id: "b"}, &fakeModule{id: "c"})
	o := New(st, src, win)
	require.Equal(t, PhaseCreated, o.Phase())
	require.NoError(t, o.Run(context.Background()))

	want := []string{
		"sync",
		"init a", "init b", "init c",
		"mount",
		"window",
		"shutdown c", "shutdown b", "shutdown a",
		"dispose",
	}
	if diff := cmp.Diff(want, j.all()); diff != "" {
		t.Fatalf("lifecycle (-want +got):\n%s", diff)
	}
	require.Equal(t, []string{"a", "b", "c"}, win.mounted)
	require.Empty(t, win.notices)
	require.Equal(t, PhaseStopped, o.Phase())
	require.Empty(t, o.Live())
}

func TestStartIsolatesInitializeFailures(t *testing.T) {
	t.Parallel()

	boom := errors.New("config missing")
	j, st, win, src := newHarness(
		&fakeModule{id: "a"},
		&fakeModule{id: "b", initErr: boom},
		&fakeModule{id: "c", initPanic: true},
		&fakeModule{id: "d"},
	)
	reg := prometheus.NewRegistry()
	o := New(st, src, win, WithMetrics(metrics.NewLifecycle(reg)))
	require.NoError(t, o.Start(context.Background()))
	require.Equal(t, PhaseRunning, o.Phase())
	require.NoError(t, o.Ready())

	require.Equal(t, []string{"a", "d"}, win.mounted)
	require.Len(t, win.notices, 1)
	require.Contains(t, win.notices[0], "2 module(s) failed")
	require.Equal(t, 2, o.Context().Len())

	failures := o.Failures()
	require.Len(t, failures, 2)
	var ierr *plugin.InitializationError
	require.ErrorAs(t, failures[0], &ierr)
	require.Equal(t, "b", ierr.ModuleID)
	require.ErrorIs(t, failures[0], boom)
	require.ErrorAs(t, failures[1], &ierr)
	require.Equal(t, "c", ierr.ModuleID)
	require.ErrorIs(t, failures[1], plugin.ErrPanic)

	require.NoError(t, o.Stop(context.Background()))
	shutdowns := 0
	for _, e := range j.all() {
		if e == "shutdown b" || e == "shutdown c" {
			t.Fatalf("failed module was shut down: %s", e)
		}
		if len(e) > 9 && e[:9] == "shutdown " {
			shutdowns++
		}
	}
	require.Equal(t, 2, shutdowns)
}

func TestStorageFailurePreventsInitialize(t *testing.T) {
	t.Parallel()

	j, st, win, src := newHarness(&fakeModule{id: "a"})
	st.syncErr = errors.New("disk full")
	o := New(st, src, win)

	err := o.Run(context.Background())
	var fatal *StorageFatalError
	require.ErrorAs(t, err, &fatal)
	require.ErrorContains(t, err, "disk full")
	require.Equal(t, []string{"sync", "dispose"}, j.all())
	require.Nil(t, win.mounted)
	require.Equal(t, PhaseStopped, o.Phase())
	require.Nil(t, o.Context())
	require.NoError(t, o.Stop(context.Background()))
}

func TestDuplicateIDRejected(t *testing.T) {
	t.Parallel()

	j, st, win, src := newHarness(&fakeModule{id: "a"}, &fakeModule{id: "a"}, &fakeModule{id: "b"})
	o := New(st, src, win)
	require.NoError(t, o.Start(context.Background()))

	require.Equal(t, []string{"a", "b"}, win.mounted)
	require.Len(t, o.Failures(), 1)
	require.ErrorIs(t, o.Failures()[0], plugin.ErrDuplicateModule)
	require.Equal(t, []string{"sync", "init a", "init b", "mount"}, j.all(), "the duplicate is never initialized")
	first, ok := o.Context().Lookup("a")
	require.True(t, ok)
	require.Same(t, src[0], first)
}

func TestStopContinuesPastShutdownErrors(t *testing.T) {
	t.Parallel()

	stuck := errors.New("file locked")
	core, logs := observer.New(zapcore.InfoLevel)
	j, st, win, src := newHarness(
		&fakeModule{id: "a"},
		&fakeModule{id: "b", shutErr: stuck},
		&fakeModule{id: "c", shutPanic: true},
	)
	o := New(st, src, win, WithLogger(zap.New(core)))
	require.NoError(t, o.Start(context.Background()))

	err := o.Stop(context.Background())
	require.ErrorIs(t, err, stuck)
	require.ErrorIs(t, err, plugin.ErrPanic)
	var serr *plugin.ShutdownError
	require.ErrorAs(t, err, &serr)

	want := []string{"shutdown c", "shutdown b", "shutdown a", "dispose"}
	got := j.all()
	require.Equal(t, want, got[len(got)-len(want):])
	require.Equal(t, 2, logs.FilterMessage("module shutdown failed").Len())

	require.NoError(t, o.Stop(context.Background()), "stop is idempotent")
	require.Equal(t, got, j.all())
}

func TestStartTwiceFails(t *testing.T) {
	t.Parallel()

	_, st, win, src := newHarness(&fakeModule{id: "a"})
	o := New(st, src, win)
	require.NoError(t, o.Start(context.Background()))
	require.Error(t, o.Start(context.Background()))
}

func TestRunStopsOnCancel(t *testing.T) {
	t.Parallel()

	j, st, win, src := newHarness(&fakeModule{id: "a"})
	ctx, cancel := context.WithCancel(context.Background())
	win.run = func(ctx context.Context) error {
		cancel()
		<-ctx.Done()
		return nil
	}
	o := New(st, src, win, WithShutdownTimeout(time.Second))
	require.NoError(t, o.Run(ctx))
	require.Equal(t, []string{"sync", "init a", "mount", "window", "shutdown a", "dispose"}, j.all())
}

// scenarioModule is exported into a test catalog so the loader can find it.
type scenarioModule struct {
	id          string
	initialized bool
}

func (m *scenarioModule) ID() string          { return m.id }
func (m *scenarioModule) DisplayName() string { return m.id }
func (m *scenarioModule) Initialize(context.Context, *plugin.Context) error {
	m.initialized = true
	return nil
}
func (m *scenarioModule) Widget() plugin.Widget { return nopWidget{} }

func TestLoaderScenario(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "plugins")
	cat := plugin.NewCatalog()
	plugin.ExportTo(cat, "a", "Plugin", func() *scenarioModule { return &scenarioModule{id: "a"} })
	plugin.ExportTo(cat, "c", "Plugin", func() *scenarioModule { return &scenarioModule{id: "c"} })

	// First run: the directory does not exist yet.
	j := &journal{}
	win := &fakeWindow{j: j}
	o := New(&fakeStorage{j: j}, plugin.NewLoader(dir, plugin.WithCatalog(cat)), win)
	require.NoError(t, o.Run(context.Background()))
	require.Empty(t, win.mounted)

	for _, name := range []string{"a", "b", "c"} {
		require.NoError(t, os.MkdirAll(filepath.Join(dir, name), 0o755))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a", plugin.ManifestFile), []byte(`entry = "Plugin"`), 0o644))

	core, logs := observer.New(zapcore.WarnLevel)
	loader := plugin.NewLoader(dir, plugin.WithCatalog(cat), plugin.WithLogger(zap.New(core)))
	window := tui.New("NexTool - Game Assistant")
	o = New(&fakeStorage{j: &journal{}}, loader, window)
	require.NoError(t, o.Start(context.Background()))

	require.Equal(t, []string{"a", "c"}, moduleIDs(o.Live()))
	require.Equal(t, "2 modules loaded", window.Status())
	require.Len(t, loader.Diagnostics(), 1)
	require.Equal(t, "b", loader.Diagnostics()[0].Candidate)
	require.Equal(t, 1, logs.FilterMessage("module candidate skipped").Len())
	require.Empty(t, o.Failures())
	require.NoError(t, o.Stop(context.Background()))
}

func moduleIDs(modules []plugin.Module) []string {
	ids := make([]string, 0, len(modules))
	for _, m := range modules {
		ids = append(ids, m.ID())
	}
	return ids
}
