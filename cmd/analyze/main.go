// cmd/analyze runs one-off analyses over a watch list, or keeps running
// and scans on a cron schedule.
//
// Usage:
//
//	go run ./cmd/analyze analyze AAPL MSFT
//	go run ./cmd/analyze --min-confidence=0.7 buy
//	go run ./cmd/analyze --out=analysis_results.json hot
//	go run ./cmd/analyze --schedule="30 16 * * 1-5"
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"stock-analyzer/config"
	"stock-analyzer/internal/app"
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
	log := logger.Init("analyze", logger.ParseLevel(cfg.LogLevel))

	params, err := config.LoadParams(cfg.ParamsFile)
	if err != nil {
		log.Error("params load failed", "file", cfg.ParamsFile, "err", err)
		os.Exit(1)
	}

	minConf := flag.Float64("min-confidence", params.Signal.MinConfidence, "Minimum confidence for buy/sell opportunities")
	out := flag.String("out", "", "Also save the analyses as JSON to this path")
	schedule := flag.String("schedule", "", "Run as a daemon scanning on this cron spec (\"default\" uses SCAN_SCHEDULE)")
	notify := flag.Bool("notify", false, "Send alerts for opportunities found by one-off commands")
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: analyze [flags] [analyze|buy|sell|hot] [SYMBOL...]")
		flag.PrintDefaults()
	}
	flag.Parse()

	cmd := "analyze"
	args := flag.Args()
	if len(args) > 0 {
		cmd, args = strings.ToLower(args[0]), args[1:]
	}
	symbols := cfg.Symbols
	if len(args) > 0 {
		symbols = config.ParseSymbols(strings.Join(args, ","))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var prom *metrics.Metrics
	if *schedule != "" {
		prom = metrics.NewMetrics(nil)
	}
	provider, err := app.OpenProvider(cfg, prom, log)
	if err != nil {
		log.Error("data provider init failed", "err", err)
		os.Exit(1)
	}
	defer provider.Close()

	scanCfg := app.ScannerConfig(params)
	scanCfg.MinConfidence = *minConf
	scan := scanner.New(provider, params.RuleEngine(), scanCfg, log)

	if *schedule != "" {
		spec := *schedule
		if spec == "default" {
			spec = cfg.ScanSchedule
		}
		runDaemon(ctx, cfg, log, scan, symbols, prom, spec, *out)
		return
	}

	report := scan.Scan(ctx, symbols)
	switch cmd {
	case "analyze":
		printJSON(report.Analyses)
	case "buy":
		printJSON(report.Buys)
	case "sell":
		printJSON(report.Sells)
	case "hot":
		printJSON(report.Hot)
		h := report.Hot
		fmt.Fprintf(os.Stderr, "strong buys: %d  buys: %d  sells: %d  strong sells: %d\n",
			len(h.StrongBuys), len(h.Buys), len(h.Sells), len(h.StrongSells))
	default:
		flag.Usage()
		os.Exit(2)
	}

	if *out != "" {
		if err := scanner.SaveJSON(*out, report.Analyses); err != nil {
			log.Error("save results failed", "path", *out, "err", err)
		} else {
			log.Info("results saved", "path", *out)
		}
	}
	if *notify {
		sched := scanner.NewScheduler(scan, symbols, app.Notifier(cfg, log), log)
		sched.RunOnce(ctx)
	}
}

func runDaemon(ctx context.Context, cfg *config.Config, log *slog.Logger, scan *scanner.Scanner, symbols []string, prom *metrics.Metrics, spec, out string) {
	health := metrics.NewHealthStatus()
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health, promhttp.Handler())
	metricsSrv.Start()

	sched := scanner.NewScheduler(scan, symbols, app.Notifier(cfg, log), log)
	sched.SetObserver(prom)
	sched.Subscribe(func(r scanner.Report) {
		health.SetLastScan(r.Timestamp, len(r.Buys)+len(r.Sells))
		if out == "" {
			return
		}
		if err := scanner.SaveJSON(out, r.Analyses); err != nil {
			log.Error("save results failed", "path", out, "err", err)
		}
	})
	if err := sched.Start(spec); err != nil {
		log.Error("invalid schedule", "schedule", spec, "err", err)
		os.Exit(1)
	}

	<-ctx.Done()
	sched.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	metricsSrv.Stop(shutdownCtx)
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}
