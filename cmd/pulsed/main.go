// cmd/pulsed/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/opsforge/pulse/internal/alerting"
	"github.com/opsforge/pulse/internal/api"
	"github.com/opsforge/pulse/internal/config"
	"github.com/opsforge/pulse/internal/events"
	"github.com/opsforge/pulse/internal/metrics"
	"github.com/opsforge/pulse/internal/risk"
	"github.com/opsforge/pulse/internal/scaling"
	"github.com/opsforge/pulse/internal/storage"
)

func main() {
	configPath := flag.String("config", "", "path to config file (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.LogLevel)
	defer func() { _ = logger.Sync() }()

	// Config source: hot-reloading when a file was given, static otherwise.
	var source config.Source = config.Static(cfg)
	if *configPath != "" {
		watcher, err := config.NewWatcher(*configPath, cfg, logger)
		if err != nil {
			logger.Fatal("failed to watch config file", zap.Error(err))
		}
		defer func() { _ = watcher.Close() }()
		source = watcher
	}

	store := metrics.NewStore()
	telemetry := metrics.NewTelemetry(nil)
	sampler := metrics.NewSystemSampler(logger)

	bus := events.NewBus(cfg.Collector.PublishGrace, telemetry, logger)

	// Snapshot history, served by the API and optionally mirrored to
	// PostgreSQL for long-term retention.
	history := storage.NewMemoryStore(cfg.Storage.Retention)
	bus.Subscribe("history", func(ctx context.Context, snap *metrics.MetricSnapshot) {
		if err := history.Save(ctx, snap); err != nil {
			logger.Warn("history save failed", zap.Error(err))
		}
	})

	if cfg.Storage.PostgresURL != "" {
		pg, err := storage.NewPostgresStore(cfg.Storage.PostgresURL, cfg.Storage.Retention, logger)
		if err != nil {
			logger.Fatal("failed to open postgres sink", zap.Error(err))
		}
		defer func() { _ = pg.Close() }()
		bus.Subscribe("postgres", func(ctx context.Context, snap *metrics.MetricSnapshot) {
			if err := pg.Save(ctx, snap); err != nil {
				logger.Warn("postgres save failed", zap.Error(err))
			}
		})
		logger.Info("postgres snapshot sink enabled")
	}

	// Risk, alerting and scaling pipeline.
	scorer := risk.NewScorer(source, logger)
	alertEngine := alerting.NewEngine(source, logger)
	scalingEngine := scaling.NewEngine(source, logger)

	alertLog := alerting.NewMemoryLog(200)
	dispatcher := alerting.NewDispatcher(alerting.DispatcherConfig{
		PerSinkTimeout: 5 * time.Second,
		RatePerMinute:  60,
		Burst:          10,
	}, telemetry, logger)
	dispatcher.AddSink(alertLog)
	dispatcher.AddSink(alerting.NotifierFunc{
		SinkName: "log",
		Fn: func(_ context.Context, alert alerting.Alert) error {
			logger.Warn("alert fired",
				zap.String("type", alert.Type),
				zap.String("severity", alert.Severity),
				zap.String("message", alert.Message))
			return nil
		},
	})

	decisions := scaling.NewLog(200)
	bus.Subscribe("pipeline", func(ctx context.Context, snap *metrics.MetricSnapshot) {
		assessment := scorer.Assess(risk.SnapshotSubject{Snapshot: snap}, nil)
		dispatcher.Dispatch(ctx, alertEngine.Evaluate(snap, &assessment))

		decision := scalingEngine.Decide(snap, &assessment)
		decisions.Record(&decision)
		telemetry.Decisions.WithLabelValues(string(decision.Strategy)).Inc()
	})

	collector := metrics.NewCollector(store, sampler, source, telemetry, bus, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go collector.Run(ctx)

	server := api.NewServer(cfg, logger, history, decisions, alertLog)

	metricsServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.MetricsPort),
		Handler:           telemetry.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("metrics server listening", zap.String("addr", metricsServer.Addr))
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("shutting down...")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("metrics server shutdown error", zap.Error(err))
		}
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown error", zap.Error(err))
		}
	}()

	if err := server.Start(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func newLogger(level string) *zap.Logger {
	cfg := zap.NewProductionConfig()
	if lvl, err := zap.ParseAtomicLevel(level); err == nil {
		cfg.Level = lvl
	}
	logger, err := cfg.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "build logger: %v\n", err)
		os.Exit(1)
	}
	return logger
}
