package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"companion/internal/app"
	"companion/internal/bridge"
	"companion/internal/config"
	"companion/internal/external/claudecode"
	"companion/internal/logging"
	"companion/internal/observability"
	"companion/internal/registry"
	"companion/internal/session/filestore"
	"companion/internal/tui"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

func runCompanion(ctx context.Context, cfg config.RuntimeConfig) error {
	if ctx == nil {
		ctx = context.Background()
	}

	logPath := cfg.LogFile
	if logPath == "" {
		logPath = logging.DefaultLogPath()
	}
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logCloser, err := logging.Setup(logging.Options{Path: logPath, Level: level})
	if err != nil {
		return err
	}
	defer logCloser.Close()
	logger := logging.NewComponentLogger("Main")

	store, err := filestore.New(cfg.SessionsDir())
	if err != nil {
		return err
	}
	profiles, err := registry.LoadProfiles(cfg.EnvsDir(), logging.NewComponentLogger("Profiles"))
	if err != nil {
		logger.Warn("Failed to load environment profiles: %v", err)
	}
	reg := registry.New(store,
		registry.WithProfiles(profiles),
		registry.WithLogger(logging.NewComponentLogger("Registry")),
	)
	loaded, err := reg.Load()
	if err != nil {
		logger.Warn("Failed to load sessions: %v", err)
	}
	logger.Info("Loaded %d sessions from %s", loaded, store.Dir())

	launcher := claudecode.New(claudecode.Config{
		BinaryPath: cfg.BinaryPath,
		Port:       cfg.Port,
	})
	if reg.Len() == 0 {
		if cfg.ConnectOnly {
			s := reg.CreateDetached("", cfg.CWD, "")
			logger.Info("Waiting for an agent on %s", launcher.SDKURL(s.ID))
		} else {
			reg.Create("", cfg.CWD, "")
		}
	}

	metrics := observability.DefaultMetrics()
	loop := app.New(reg, launcher, app.Config{
		DefaultCWD:   cfg.CWD,
		DefaultModel: cfg.Model,
		Port:         cfg.Port,
		TickInterval: cfg.TickInterval,
		FlashTTL:     cfg.FlashTTL,
		Metrics:      metrics,
	})

	srv := bridge.New(bridge.Config{
		ListenAddr: bridge.ListenAddrForPort(cfg.Port),
		Metrics:    metrics,
	}, loop.BridgeHandler())
	if err := srv.Start(); err != nil {
		return err
	}

	var metricsSrv *observability.MetricsServer
	if cfg.MetricsAddr != "" {
		metricsSrv, err = observability.StartMetricsServer(cfg.MetricsAddr, prometheus.DefaultGatherer)
		if err != nil {
			logger.Warn("Metrics disabled: %v", err)
		} else {
			logger.Info("Serving metrics on %s", metricsSrv.Addr())
		}
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		return loop.Run(gctx)
	})
	g.Go(func() error {
		defer cancel()
		return tui.Run(gctx, loop, tui.Options{})
	})
	g.Go(func() error {
		<-gctx.Done()
		closeCtx, closeCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer closeCancel()
		if metricsSrv != nil {
			if err := metricsSrv.Close(closeCtx); err != nil {
				logger.Warn("Metrics server close: %v", err)
			}
		}
		return srv.Close(closeCtx)
	})
	runErr := g.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := loop.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Agents still running after %s: %v", shutdownTimeout, err)
	}
	logger.Info("Companion stopped")
	return runErr
}
