package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/jask/nextool/internal/config"
	"github.com/jask/nextool/internal/database"
	"github.com/jask/nextool/internal/host"
	"github.com/jask/nextool/internal/logging"
	"github.com/jask/nextool/internal/metrics"
	_ "github.com/jask/nextool/internal/modules"
	"github.com/jask/nextool/internal/plugin"
	"github.com/jask/nextool/internal/plugin/script"
	"github.com/jask/nextool/internal/tui"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Printf("config: %v", err)
		return 1
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		log.Printf("logging: %v", err)
		return 1
	}
	defer func() { _ = logger.Sync() }()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	lifecycle := metrics.NewLifecycle(reg)

	store, err := database.NewStore(cfg.Database.Path,
		database.WithSyncTimeout(cfg.Database.SyncTimeout),
		database.WithLogger(logger.Named("database")),
	)
	if err != nil {
		logger.Error("open storage", zap.Error(err))
		return 1
	}

	loader := plugin.NewLoader(cfg.Modules.Dir,
		plugin.WithScriptOpener(script.Open),
		plugin.WithLogger(logger.Named("loader")),
		plugin.WithMetrics(lifecycle),
	)
	window := tui.New(cfg.UI.Title, tui.WithLogger(logger.Named("window")))
	orch := host.New(store, loader, window,
		host.WithLogger(logger.Named("host")),
		host.WithMetrics(lifecycle),
		host.WithShutdownTimeout(cfg.Modules.ShutdownTimeout),
	)

	if cfg.Metrics.Listen != "" {
		srv := metrics.NewServer(cfg.Metrics.Listen, reg, orch.Ready, logger.Named("diagnostics"))
		if err := srv.Start(); err != nil {
			logger.Warn("diagnostics disabled", zap.Error(err))
		} else {
			defer func() {
				sctx, cancel := context.WithTimeout(context.Background(), cfg.Modules.ShutdownTimeout)
				defer cancel()
				_ = srv.Shutdown(sctx)
			}()
		}
	}

	logger.Info("starting", zap.String("modules_dir", loader.Dir()), zap.String("database", cfg.Database.Path))
	if err := orch.Run(ctx); err != nil {
		var fatal *host.StorageFatalError
		if errors.As(err, &fatal) {
			logger.Error("cannot start", zap.Error(err))
			log.Printf("nextool: %v", err)
			return 1
		}
		logger.Warn("finished with errors", zap.Error(err))
	}
	logger.Info("stopped")
	return 0
}
