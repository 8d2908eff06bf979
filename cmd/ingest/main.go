// cmd/ingest loads daily bars from CSV files or the HTTP provider into the
// SQLite bar store. Downloads run on a small worker pool and feed the
// single batched writer.
//
// Usage:
//
//	go run ./cmd/ingest --source=http --since=2020-01-01
//	go run ./cmd/ingest --source=csv --dir=data/csv AAPL MSFT
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"stock-analyzer/config"
	"stock-analyzer/internal/logger"
	"stock-analyzer/internal/marketdata"
	"stock-analyzer/internal/model"
	sqlitestore "stock-analyzer/internal/store/sqlite"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log := logger.Init("ingest", logger.ParseLevel(cfg.LogLevel))

	source := flag.String("source", config.SourceCSV, "Bar source: csv or http")
	dir := flag.String("dir", cfg.CSVDir, "CSV directory (csv source)")
	since := flag.String("since", time.Now().UTC().AddDate(-5, 0, 0).Format(time.DateOnly), "Earliest date to load YYYY-MM-DD")
	full := flag.Bool("full", false, "Reload the whole range instead of resuming after the last stored bar")
	workers := flag.Int("workers", 4, "Concurrent downloads")
	flag.Parse()

	from, err := time.Parse(time.DateOnly, *since)
	if err != nil {
		log.Error("invalid --since", "value", *since)
		os.Exit(2)
	}
	to := model.Day(time.Now().UTC())

	var provider model.DataProvider
	var symbols []string
	switch strings.ToLower(*source) {
	case config.SourceCSV:
		fp := marketdata.NewFileProvider(*dir)
		provider = fp
		symbols, err = fp.Symbols(context.Background())
		if err != nil {
			log.Error("list csv files failed", "dir", *dir, "err", err)
			os.Exit(1)
		}
	case config.SourceHTTP:
		provider = marketdata.NewHTTPProvider(
			marketdata.WithBaseURL(cfg.HTTPBaseURL),
			marketdata.WithRateLimit(cfg.HTTPRateLimit),
			marketdata.WithLogger(log),
		)
		symbols = cfg.Symbols
	default:
		log.Error("invalid --source", "value", *source)
		os.Exit(2)
	}
	if flag.NArg() > 0 {
		symbols = config.ParseSymbols(strings.Join(flag.Args(), ","))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755); err != nil {
		log.Error("sqlite dir", "err", err)
		os.Exit(1)
	}
	writer, err := sqlitestore.New(sqlitestore.WriterConfig{DBPath: cfg.SQLitePath})
	if err != nil {
		log.Error("sqlite init failed", "err", err)
		os.Exit(1)
	}
	defer writer.Close()

	commits := 0
	writer.OnCommit = func(bars int) { commits++ }

	cal := cfg.Calendar()
	jobs := make(chan string)
	out := make(chan sqlitestore.SymbolBars, *workers)
	written := make(chan int, 1)
	go func() { written <- writer.Run(ctx, out) }()

	var wg sync.WaitGroup
	for i := 0; i < *workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for sym := range jobs {
				start := from
				if !*full {
					if last, ok, err := writer.LastDate(ctx, sym); err == nil && ok && !last.Before(start) {
						start = cal.Next(last)
					}
				}
				if start.After(to) {
					log.Debug("up to date", "symbol", sym)
					continue
				}
				bars, err := provider.FetchBars(ctx, sym, start, to)
				if err != nil {
					log.Error("fetch failed", "symbol", sym, "err", err)
					continue
				}
				log.Info("fetched", "symbol", sym, "bars", bars.Len(), "from", start.Format(time.DateOnly))
				select {
				case out <- sqlitestore.SymbolBars{Symbol: sym, Bars: bars}:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

feed:
	for _, sym := range symbols {
		select {
		case jobs <- sym:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()
	close(out)

	n := <-written
	log.Info("ingest complete", "symbols", len(symbols), "bars", n, "commits", commits)
}
