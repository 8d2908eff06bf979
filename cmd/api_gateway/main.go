// cmd/api_gateway serves the analysis HTTP API, the WebSocket scan stream
// and the metrics endpoint. Scheduled scans are pushed to stream clients
// and to the configured alert channels.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"stock-analyzer/config"
	"stock-analyzer/internal/api"
	"stock-analyzer/internal/app"
	"stock-analyzer/internal/execution"
	"stock-analyzer/internal/logger"
	"stock-analyzer/internal/metrics"
	"stock-analyzer/internal/scanner"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log := logger.Init("api_gateway", logger.ParseLevel(cfg.LogLevel))
	log.Info("starting", "addr", cfg.APIAddr, "source", cfg.DataSource, "symbols", len(cfg.Symbols))

	params, err := config.LoadParams(cfg.ParamsFile)
	if err != nil {
		log.Error("params load failed", "file", cfg.ParamsFile, "err", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// ---- Metrics & health ----
	prom := metrics.NewMetrics(nil)
	health := metrics.NewHealthStatus()
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health, promhttp.Handler())
	metricsSrv.Start()

	// ---- Data path ----
	provider, err := app.OpenProvider(cfg, prom, log)
	if err != nil {
		log.Error("data provider init failed", "err", err)
		os.Exit(1)
	}
	defer provider.Close()

	// ---- Journal ----
	if err := os.MkdirAll(filepath.Dir(cfg.JournalPath), 0o755); err != nil {
		log.Error("journal dir", "err", err)
		os.Exit(1)
	}
	journal, err := execution.NewJournal(cfg.JournalPath)
	if err != nil {
		log.Error("journal open failed", "err", err)
		os.Exit(1)
	}
	defer journal.Close()

	// ---- Liveness ----
	sqlDB := journal.DB()
	if provider.Reader != nil {
		sqlDB = provider.Reader.DB()
	}
	if provider.Cache != nil {
		health.StartLivenessChecker(ctx, provider.Cache.Client(), sqlDB, 10*time.Second)
	} else {
		health.StartLivenessChecker(ctx, nil, sqlDB, 10*time.Second)
	}

	// ---- Engines ----
	strat := params.RuleEngine()
	scan := scanner.New(provider, strat, app.ScannerConfig(params), log)

	hub := api.NewHub(log)
	hub.OnClientCount(func(n int) { prom.WSClients.Set(float64(n)) })
	defer hub.Close()

	notifier := app.Notifier(cfg, log)
	sched := scanner.NewScheduler(scan, cfg.Symbols, notifier, log)
	sched.SetObserver(prom)
	sched.Subscribe(func(r scanner.Report) {
		health.SetLastScan(r.Timestamp, len(r.Buys)+len(r.Sells))
		if err := hub.Broadcast("scan", r); err != nil {
			log.Error("scan broadcast failed", "err", err)
		}
	})
	if err := sched.Start(cfg.ScanSchedule); err != nil {
		log.Error("invalid SCAN_SCHEDULE", "schedule", cfg.ScanSchedule, "err", err)
		os.Exit(1)
	}
	defer sched.Stop()

	// ---- HTTP ----
	mux := api.NewRouter(api.Deps{
		Provider: provider,
		Strategy: strat,
		Scanner:  scan,
		Symbols:  cfg.Symbols,
		Backtest: params.Backtest,
		Journal:  journal,
		Observer: prom,
		Calendar: cfg.Calendar(),
		Hub:      hub,
		Logger:   log,
	})
	srv := &http.Server{
		Addr:              cfg.APIAddr,
		Handler:           api.WithCORS(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("api listening", "addr", cfg.APIAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("api server error", "err", err)
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	srv.Shutdown(shutdownCtx)
	metricsSrv.Stop(shutdownCtx)
	log.Info("stopped")
}
