package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cscx/pulse/internal/adapters/http/api"
	"github.com/cscx/pulse/internal/adapters/http/swagger"
	"github.com/cscx/pulse/internal/adapters/narrative"
	"github.com/cscx/pulse/internal/adapters/repository"
	app "github.com/cscx/pulse/internal/app"
	"github.com/cscx/pulse/internal/config"
	"github.com/cscx/pulse/internal/domain/scoring"
	"github.com/cscx/pulse/pkg/logger"
)

// HTTP server timeout constants.
const (
	readTimeout            = 10 * time.Second
	writeTimeout           = 10 * time.Second
	idleTimeout            = 60 * time.Second
	readHeaderTimeout      = 5 * time.Second
	shutdownTimeout        = 30 * time.Second
	serviceMetricsInterval = 5 * time.Second
)

func main() {
	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		return
	}
	log := logger.Get()

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		return
	}
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info",
			logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	store, err := repository.Open(ctx, cfg.DBPath)
	if err != nil {
		os.Stderr.WriteString("failed to open store: " + err.Error() + "\n")
		return
	}
	defer func() { _ = store.Close() }()

	opts := []app.Option{
		app.WithLogger(log.Named("service")),
		app.WithWorkerCount(cfg.WorkerCount),
		app.WithQueueSize(cfg.QueueSize),
		app.WithDedupeSize(cfg.DedupeSize),
		app.WithBatchInterval(cfg.BatchInterval),
		app.WithStaleness(cfg.Staleness),
		app.WithMaxHistoryLimit(cfg.MaxHistoryLimit),
		app.WithLowConfidence(cfg.LowConfidence),
		app.WithBundling(cfg.BundleWindow, cfg.BundleCooldown, cfg.ImmediateThreshold, cfg.DigestThreshold),
		app.WithCalibration(cfg.CalibrationMaxDelta, cfg.CalibrationMinSamples),
		app.WithTrendSettings(cfg.TrendWindows, cfg.TrendDeadBand),
		app.WithEntityModels(cfg.EntityModels),
	}
	if cfg.ModelFile != "" {
		models, err := scoring.LoadFile(cfg.ModelFile)
		if err != nil {
			os.Stderr.WriteString("failed to load models: " + err.Error() + "\n")
			return
		}
		opts = append(opts, app.WithModels(models))
	}
	if cfg.NarrativeURL != "" {
		opts = append(opts, app.WithSummarizer(newSummarizer(cfg)))
	}

	svc := app.New(store, opts...)
	if err := svc.Start(ctx); err != nil {
		os.Stderr.WriteString("failed to start service: " + err.Error() + "\n")
		return
	}
	defer svc.Stop(context.Background())

	go startServiceMetricsUpdater(ctx, svc)

	mux := http.NewServeMux()
	swagger.Register(ctx, mux)
	apiServer := api.NewServer(svc, svc)
	apiServer.Register(ctx, mux)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			os.Stderr.WriteString("HTTP server failed: " + err.Error() + "\n")
		}
	}()

	<-ctx.Done()
	log.Info(ctx, "shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}
	log.Info(ctx, "server stopped")
}

func newSummarizer(cfg *config.Config) narrative.Summarizer {
	return narrative.New(cfg.NarrativeURL, narrative.WithTimeout(cfg.NarrativeTimeout))
}

// startServiceMetricsUpdater keeps the stats-driven gauges fresh even
// when nobody polls /stats.
func startServiceMetricsUpdater(ctx context.Context, svc *app.Service) {
	ticker := time.NewTicker(serviceMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = svc.GetStats()
		}
	}
}
