package host

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jask/nextool/internal/metrics"
	"github.com/jask/nextool/internal/plugin"
)

// DefaultShutdownTimeout bounds Stop when Run drives the lifecycle.
const DefaultShutdownTimeout = 5 * time.Second

// Orchestrator drives one host run. All lifecycle methods must be called
// from the same goroutine; Phase, Live and Ready may be called from any.
type Orchestrator struct {
	storage Storage
	source  Source
	window  Window

	logger          *zap.Logger
	metrics         *metrics.Lifecycle
	shutdownTimeout time.Duration

	hc       *plugin.Context
	failures []error

	mu    sync.Mutex
	phase Phase
	live  []plugin.Module
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the host logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = l
	}
}

// WithMetrics records lifecycle outcomes.
func WithMetrics(m *metrics.Lifecycle) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// WithShutdownTimeout bounds the teardown Run performs.
func WithShutdownTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		o.shutdownTimeout = d
	}
}

// New creates an orchestrator in PhaseCreated.
func New(storage Storage, source Source, window Window, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		storage:         storage,
		source:          source,
		window:          window,
		logger:          zap.NewNop(),
		shutdownTimeout: DefaultShutdownTimeout,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = o.logger.With(zap.String("run", uuid.NewString()))
	return o
}

// Phase returns the current lifecycle phase.
func (o *Orchestrator) Phase() Phase {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.phase
}

// Live returns the initialized modules in initialization order.
func (o *Orchestrator) Live() []plugin.Module {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]plugin.Module(nil), o.live...)
}

// Ready reports nil once the host is running.
func (o *Orchestrator) Ready() error {
	if p := o.Phase(); p != PhaseRunning {
		return fmt.Errorf("host is %s", p)
	}
	return nil
}

// Failures returns the initialization failures of the last Start.
func (o *Orchestrator) Failures() []error {
	return append([]error(nil), o.failures...)
}

// Context returns the capability context, or nil before storage is ready.
func (o *Orchestrator) Context() *plugin.Context {
	return o.hc
}

func (o *Orchestrator) setPhase(p Phase) {
	o.mu.Lock()
	o.phase = p
	o.mu.Unlock()
	o.logger.Debug("phase changed", zap.Stringer("phase", p))
}

// Start prepares storage, initializes every module the source yields and
// mounts the survivors. Only a storage failure is returned; module failures
// are logged, counted and reported through Failures.
func (o *Orchestrator) Start(ctx context.Context) error {
	if p := o.Phase(); p != PhaseCreated {
		return fmt.Errorf("host: start in phase %s", p)
	}

	if err := o.storage.SyncSchema(ctx); err != nil {
		o.logger.Error("schema sync failed", zap.Error(err))
		if derr := o.storage.Dispose(ctx); derr != nil {
			o.logger.Warn("dispose storage", zap.Error(derr))
		}
		o.setPhase(PhaseStopped)
		return &StorageFatalError{Err: err}
	}
	o.hc = plugin.NewContext(o.storage.Sessions(), o.logger.Named("modules"))
	o.setPhase(PhaseStorageReady)

	modules, err := o.source.Load(ctx)
	if err != nil {
		o.logger.Error("module discovery failed", zap.Error(err))
	}
	skipped := 0
	if d, ok := o.source.(diagnosed); ok {
		skipped = len(d.Diagnostics())
	}

	o.setPhase(PhaseModulesInitializing)
	o.failures = nil
	for _, m := range modules {
		if err := o.bringUp(ctx, m); err != nil {
			o.failures = append(o.failures, err)
		}
	}

	live := o.Live()
	o.metrics.SetLive(len(live))
	o.window.Mount(live)
	if failed := skipped + len(o.failures); failed > 0 {
		o.window.Notify(fmt.Sprintf("%d module(s) failed to load; see log", failed))
	}
	o.logger.Info("modules ready",
		zap.Int("live", len(live)),
		zap.Int("skipped", skipped),
		zap.Int("failed", len(o.failures)),
	)
	o.setPhase(PhaseRunning)
	return nil
}

// bringUp initializes and registers one module. The returned error is an
// *plugin.InitializationError.
func (o *Orchestrator) bringUp(ctx context.Context, m plugin.Module) error {
	id := m.ID()
	if _, exists := o.hc.Lookup(id); exists {
		o.metrics.Failed(metrics.StageRegister)
		o.logger.Warn("module rejected", zap.String("module", id), zap.Error(plugin.ErrDuplicateModule))
		return &plugin.InitializationError{ModuleID: id, Err: plugin.ErrDuplicateModule}
	}

	start := time.Now()
	err := initialize(ctx, m, o.hc)
	o.metrics.ObserveInit(id, time.Since(start))
	if err != nil {
		o.metrics.Failed(metrics.StageInitialize)
		o.logger.Error("module initialize failed", zap.String("module", id), zap.Error(err))
		return &plugin.InitializationError{ModuleID: id, Err: err}
	}

	if err := o.hc.Register(m); err != nil {
		o.metrics.Failed(metrics.StageRegister)
		o.logger.Error("module register failed", zap.String("module", id), zap.Error(err))
		if serr := shutdown(ctx, m); serr != nil {
			o.logger.Warn("module shutdown after register failure", zap.String("module", id), zap.Error(serr))
		}
		return &plugin.InitializationError{ModuleID: id, Err: err}
	}

	o.mu.Lock()
	o.live = append(o.live, m)
	o.mu.Unlock()
	o.logger.Info("module initialized", zap.String("module", id), zap.String("name", m.DisplayName()))
	return nil
}

func initialize(ctx context.Context, m plugin.Module, hc *plugin.Context) (err error) {
	defer plugin.Recover(&err)
	return m.Initialize(ctx, hc)
}

func shutdown(ctx context.Context, m plugin.Module) (err error) {
	defer plugin.Recover(&err)
	return plugin.Shutdown(ctx, m)
}

// Run starts the host, blocks in the window, then tears down within the
// shutdown timeout.
func (o *Orchestrator) Run(ctx context.Context) error {
	if err := o.Start(ctx); err != nil {
		return err
	}
	werr := o.window.Run(ctx)
	if werr != nil {
		o.logger.Error("window stopped", zap.Error(werr))
	}

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.shutdownTimeout)
	defer cancel()
	return errors.Join(werr, o.Stop(stopCtx))
}

// Stop shuts live modules down in reverse initialization order and then
// disposes storage. A failing module does not stop the others. Stop is
// idempotent; the joined failures are returned for logging.
func (o *Orchestrator) Stop(ctx context.Context) error {
	o.mu.Lock()
	switch o.phase {
	case PhaseShuttingDown, PhaseStopped:
		o.mu.Unlock()
		return nil
	}
	o.phase = PhaseShuttingDown
	live := o.live
	o.live = nil
	o.mu.Unlock()

	var errs []error
	for i := len(live) - 1; i >= 0; i-- {
		m := live[i]
		if err := shutdown(ctx, m); err != nil {
			o.metrics.Failed(metrics.StageShutdown)
			o.logger.Error("module shutdown failed", zap.String("module", m.ID()), zap.Error(err))
			errs = append(errs, &plugin.ShutdownError{ModuleID: m.ID(), Err: err})
			continue
		}
		o.logger.Debug("module stopped", zap.String("module", m.ID()))
	}
	o.metrics.SetLive(0)

	if err := o.storage.Dispose(ctx); err != nil {
		o.logger.Error("dispose storage", zap.Error(err))
		errs = append(errs, fmt.Errorf("dispose storage: %w", err))
	}
	o.setPhase(PhaseStopped)
	return errors.Join(errs...)
}
