// cmd/backtest replays daily bars through the rule engine and the account
// simulator, then prints the results and the performance report.
//
// Usage:
//
//	go run ./cmd/backtest --symbols=AAPL,MSFT --start=2023-01-01 --end=2023-12-31 --csv=trades.csv
//	go run ./cmd/backtest --symbols=AAPL --benchmark=SPY --exit-levels=daily
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"stock-analyzer/config"
	"stock-analyzer/internal/app"
	"stock-analyzer/internal/backtest"
	"stock-analyzer/internal/execution"
	"stock-analyzer/internal/logger"
	"stock-analyzer/internal/model"
	"stock-analyzer/internal/performance"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log := logger.Init("backtest", logger.ParseLevel(cfg.LogLevel))

	params, err := config.LoadParams(cfg.ParamsFile)
	if err != nil {
		log.Error("params load failed", "file", cfg.ParamsFile, "err", err)
		os.Exit(1)
	}

	cal := cfg.Calendar()
	today := cal.Previous(time.Now().UTC())
	symbolsFlag := flag.String("symbols", "", "Comma-separated symbols (default: SYMBOLS env)")
	startFlag := flag.String("start", today.AddDate(-1, 0, 0).Format(time.DateOnly), "Start date YYYY-MM-DD")
	endFlag := flag.String("end", today.Format(time.DateOnly), "End date YYYY-MM-DD")
	minConf := flag.Float64("min-confidence", params.Signal.MinConfidence, "Minimum signal confidence to trade")
	capital := flag.Float64("capital", params.Backtest.InitialCapital, "Initial capital")
	benchmark := flag.String("benchmark", "", "Benchmark symbol for alpha/beta (optional)")
	csvOut := flag.String("csv", "", "Write trade history CSV to this path")
	jsonOut := flag.Bool("json", false, "Print results as JSON instead of a table")
	journal := flag.Bool("journal", false, "Record the run in the trade journal (JOURNAL_PATH)")
	exitLevels := flag.String("exit-levels", params.Backtest.ExitLevels, "Stop/target policy: entry or daily")
	flag.Parse()

	start, err1 := time.Parse(time.DateOnly, *startFlag)
	end, err2 := time.Parse(time.DateOnly, *endFlag)
	if err1 != nil || err2 != nil {
		log.Error("invalid date range", "start", *startFlag, "end", *endFlag)
		os.Exit(2)
	}
	symbols := cfg.Symbols
	if *symbolsFlag != "" {
		symbols = config.ParseSymbols(*symbolsFlag)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	provider, err := app.OpenProvider(cfg, nil, log)
	if err != nil {
		log.Error("data provider init failed", "err", err)
		os.Exit(1)
	}
	defer provider.Close()

	btCfg := params.Backtest
	btCfg.InitialCapital = *capital
	switch *exitLevels {
	case backtest.ExitLevelsEntry, backtest.ExitLevelsDaily:
		btCfg.ExitLevels = *exitLevels
	default:
		log.Error("invalid --exit-levels", "value", *exitLevels)
		os.Exit(2)
	}
	strat := params.RuleEngine()
	bt := backtest.New(btCfg, strat, log)
	bt.Calendar = cal

	runID := execution.NewRunID()
	ctx = logger.WithRunID(ctx, runID)
	log.Info("backtest starting", append(logger.RunAttrs(ctx),
		"symbols", len(symbols), "start", *startFlag, "end", *endFlag, "min_confidence", *minConf)...)

	res, err := bt.Run(ctx, provider, symbols, start, end, *minConf)
	if err != nil {
		log.Error("backtest aborted", append(logger.RunAttrs(ctx), "err", err)...)
		os.Exit(1)
	}
	if res.Empty() {
		log.Warn("backtest produced no results (no data or empty range)", logger.RunAttrs(ctx)...)
		os.Exit(0)
	}

	var bench model.Series
	if *benchmark != "" {
		// Fetch from the warm-up window so the first simulated day has a
		// benchmark close even when the start date is not a session.
		from := start.AddDate(0, 0, -bt.Config().LookbackDays)
		bars, err := provider.FetchBars(ctx, *benchmark, from, end)
		if err != nil {
			log.Warn("benchmark unavailable", "symbol", *benchmark, "err", err)
		} else {
			bench = bars
		}
	}
	report := res.Report(bench)

	if *jsonOut {
		if err := writeResultJSON(os.Stdout, runID, res, report); err != nil {
			log.Error("json output failed", "err", err)
		}
	} else {
		printSummary(res, report)
	}

	if *csvOut != "" {
		if err := writeTradeCSV(*csvOut, bt.TradeHistory()); err != nil {
			log.Error("trade csv export failed", "path", *csvOut, "err", err)
		} else {
			log.Info("trade history written", "path", *csvOut, "rows", len(res.Trades))
		}
	}

	if *journal {
		if err := os.MkdirAll(filepath.Dir(cfg.JournalPath), 0o755); err != nil {
			log.Error("journal dir", "err", err)
			os.Exit(1)
		}
		j, err := execution.NewJournal(cfg.JournalPath)
		if err != nil {
			log.Error("journal open failed", "err", err)
			os.Exit(1)
		}
		defer j.Close()
		_, err = j.RecordRun(ctx, execution.RunMeta{
			ID:            runID,
			Strategy:      strat.Name(),
			Symbols:       symbols,
			Start:         start,
			End:           end,
			MinConfidence: *minConf,
			Config:        bt.Config(),
		}, res, report)
		if err != nil {
			log.Error("journal write failed", append(logger.RunAttrs(ctx), "err", err)...)
		} else {
			log.Info("run recorded", logger.RunAttrs(ctx)...)
		}
	}
}

func writeResultJSON(w io.Writer, runID string, res backtest.Results, report performance.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]any{"run_id": runID, "results": res, "report": report})
}

func writeTradeCSV(path string, rows []backtest.TradeRow) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := backtest.WriteCSV(f, rows); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func printSummary(res backtest.Results, r performance.Report) {
	pf := "∞"
	if !res.ProfitFactor.IsInf() {
		pf = fmt.Sprintf("%.2f", float64(res.ProfitFactor))
	}

	fmt.Println()
	fmt.Println("╔══════════════════════════════════════╗")
	fmt.Println("║          BACKTEST RESULTS            ║")
	fmt.Println("╠══════════════════════════════════════╣")
	fmt.Printf("║  Initial capital:  %-17.2f ║\n", res.InitialCapital)
	fmt.Printf("║  Final capital:    %-17.2f ║\n", res.FinalCapital)
	fmt.Printf("║  Total return %%:   %-17.2f ║\n", res.TotalReturnPct)
	fmt.Printf("║  Trades:           %-17d ║\n", res.TotalTrades)
	fmt.Printf("║  Win rate %%:       %-17.2f ║\n", res.WinRate)
	fmt.Printf("║  Avg win:          %-17.2f ║\n", res.AvgWin)
	fmt.Printf("║  Avg loss:         %-17.2f ║\n", res.AvgLoss)
	fmt.Printf("║  Profit factor:    %-17s ║\n", pf)
	fmt.Printf("║  Max drawdown %%:   %-17.2f ║\n", res.MaxDrawdown)
	fmt.Printf("║  Commission paid:  %-17.2f ║\n", res.CommissionPaid)
	fmt.Println("╠══════════════════════════════════════╣")
	fmt.Printf("║  Sharpe:           %-17.2f ║\n", r.SharpeRatio)
	fmt.Printf("║  Sortino:          %-17.2f ║\n", r.SortinoRatio)
	fmt.Printf("║  Calmar:           %-17.2f ║\n", r.CalmarRatio)
	fmt.Printf("║  Volatility %%:     %-17.2f ║\n", r.Volatility)
	fmt.Printf("║  DD duration:      %-17d ║\n", r.MaxDrawdownDuration)
	fmt.Printf("║  Expectancy:       %-17.2f ║\n", r.Expectancy)
	if r.HasBenchmark {
		fmt.Printf("║  Alpha:            %-17.5f ║\n", r.Alpha)
		fmt.Printf("║  Beta:             %-17.3f ║\n", r.Beta)
		fmt.Printf("║  Info ratio:       %-17.2f ║\n", r.InformationRatio)
	}
	fmt.Println("╚══════════════════════════════════════╝")

	if len(res.Trades) > 0 {
		fmt.Println()
		for _, t := range res.Trades {
			fmt.Println(" ", t.String())
		}
	}
}
