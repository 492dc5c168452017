package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"voicelog/internal/connectivity"
	"voicelog/internal/handler"
	"voicelog/internal/platform"
	"voicelog/internal/router"
	"voicelog/internal/server"
	"voicelog/internal/service"
	"voicelog/internal/syncer"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the agent: local API, connectivity monitor and sync engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), ctx)
		},
	}
}

func runServe(cmdCtx context.Context, ctx *commandContext) error {
	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := ctx.ensureConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	a, err := openApp(cfg, "")
	if err != nil {
		return err
	}
	defer a.Close()
	log := a.log.Logger

	lock, err := a.lock()
	if err != nil {
		return err
	}
	defer func() { _ = lock.Unlock() }()

	log.Info("Starting voicelog agent",
		zap.String("env", cfg.Env),
		zap.String("config_path", *ctx.configFlag),
		zap.String("device_id", a.deviceID),
		zap.String("user_id", cfg.User.ID),
	)

	// Nothing else can be submitting while we hold the lock.
	if n, err := a.entryRepo.ResetSyncing(signalCtx); err != nil {
		return fmt.Errorf("reset interrupted submissions: %w", err)
	} else if n > 0 {
		log.Warn("Requeued entries interrupted by the previous run", zap.Int64("count", n))
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	monitor := connectivity.NewMonitor(false, cfg.Connectivity.Debounce, log.Named("connectivity"))
	defer monitor.Close()

	g, gctx := errgroup.WithContext(signalCtx)
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	var notifier service.AppendNotifier
	if cfg.Backend.BaseURL != "" {
		api := a.apiClient()
		engine := syncer.NewEngine(a.entryRepo, api, monitor, a.clock, syncer.Config{
			SweepInterval: cfg.Sync.SweepInterval,
			BaseBackoff:   cfg.Sync.BaseBackoff,
			MaxBackoff:    cfg.Sync.MaxBackoff,
			StuckTimeout:  cfg.Sync.StuckTimeout,
			SubmitTimeout: cfg.Backend.Timeout,
			Concurrency:   cfg.Sync.Concurrency,
			BatchSize:     cfg.Sync.BatchSize,
			DeviceID:      a.deviceID,
		}, syncer.NewMetrics(reg), log.Named("syncer"))
		notifier = engine

		prober := connectivity.NewProber(api, monitor, cfg.Connectivity.ProbeInterval, cfg.Connectivity.ProbeTimeout, log.Named("prober"))
		watcher := platform.NewNetworkWatcher(log.Named("platform"))

		g.Go(func() error { return engine.Run(gctx) })
		g.Go(func() error {
			prober.Run(gctx)
			return nil
		})
		g.Go(func() error {
			if err := watcher.Watch(gctx, prober.Kick); err != nil {
				log.Warn("Network change notifications unavailable, relying on periodic probes", zap.Error(err))
			}
			return nil
		})
	} else {
		log.Warn("backend.base_url is not set; entries will be kept locally and not synced")
	}

	entries := a.entryService(notifier, monitor)
	capture := service.NewCaptureService(entries, cfg.User.ID, cfg.Capture.DefaultDurationMinutes, a.clock, log.Named("capture"))

	if cfg.Server.Enabled {
		h := router.New(log.Named("http"), reg,
			handler.NewEntryHandler(entries, a.cal, cfg.User.ID, log),
			handler.NewCaptureHandler(capture, log),
			handler.NewSessionHandler(a.sessions, cfg.User.ID, log),
			handler.NewStatusHandler(entries, cfg.User.ID, a.deviceID, log),
		)
		srv := server.New(cfg.ServerAddr(), h, log.Named("http"))
		g.Go(func() error { return srv.Run(gctx) })
	} else {
		log.Info("Local API disabled in configuration")
	}

	log.Info("Voicelog agent started")
	err = g.Wait()
	log.Info("Voicelog agent stopped")
	return err
}
