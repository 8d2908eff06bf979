package backtest

import (
	"context"
	"errors"
	"strings"
	"time"

	"stock-analyzer/internal/calendar"
	"stock-analyzer/internal/logger"
	"stock-analyzer/internal/model"
	"stock-analyzer/internal/strategy"
)

const maxReasonLen = 100

// Run replays the strategy over [start, end] and returns the results.
//
// Bars are requested from start minus LookbackDays so the long moving
// averages are warm on the first simulated day. Each business day of the
// Calendar, every symbol is evaluated on the bars dated on or before that
// day only. A symbol whose fetch fails or returns nothing is skipped, and a
// run with no data for any symbol returns empty Results. Positions still
// open after the last day are closed at the last observed price, dated end.
//
// The only error returned is ctx's, when it is cancelled mid-run.
func (b *Backtester) Run(ctx context.Context, provider model.DataProvider, symbols []string, start, end time.Time, minConfidence float64) (Results, error) {
	b.Reset()
	started := time.Now()
	start, end = model.Day(start), model.Day(end)

	log := b.log.With(logger.RunAttrs(ctx)...)
	if end.Before(start) {
		log.Warn("empty backtest range", "start", start.Format("2006-01-02"), "end", end.Format("2006-01-02"))
		return Results{}, nil
	}

	from := start.AddDate(0, 0, -b.cfg.LookbackDays)
	data := make(map[string]model.Series, len(symbols))
	order := make([]string, 0, len(symbols))
	for _, sym := range symbols {
		if _, dup := data[sym]; dup {
			continue
		}
		series, err := provider.FetchBars(ctx, sym, from, end)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return Results{}, ctxErr
			}
			if errors.Is(err, model.ErrNoData) {
				log.Warn("no data for symbol", "symbol", sym)
			} else {
				log.Error("fetch bars failed", "symbol", sym, "err", err)
			}
			continue
		}
		if series.Empty() {
			log.Warn("no data for symbol", "symbol", sym)
			continue
		}
		data[sym] = series
		order = append(order, sym)
	}

	if len(order) == 0 {
		log.Error("no historical data available", "symbols", len(symbols))
		return Results{}, nil
	}

	cal := b.Calendar
	if cal == nil {
		cal = calendar.Weekdays
	}
	days := cal.BusinessDays(start, end)
	log.Info("backtest started",
		"symbols", len(order), "days", len(days),
		"start", start.Format("2006-01-02"), "end", end.Format("2006-01-02"))

	for _, day := range days {
		if err := ctx.Err(); err != nil {
			return Results{}, err
		}

		prices := make(map[string]float64, len(order))
		for _, sym := range order {
			window := data[sym].SliceUntil(day)
			if window.Len() < b.cfg.MinHistory {
				log.Debug("insufficient history", "symbol", sym, "date", day.Format("2006-01-02"), "bars", window.Len())
				continue
			}
			bar, _ := window.Last()
			price := bar.Close
			prices[sym] = price

			decision := b.strategy.Evaluate(window)
			b.step(sym, price, day, decision, minConfidence)
		}
		b.UpdatePortfolioValue(day, prices)
	}

	for _, sym := range order {
		if _, open := b.state.Positions[sym]; !open {
			continue
		}
		if price, ok := b.lastPrices[sym]; ok {
			b.ExecuteTrade(sym, strategy.ActionSell, price, end, "End of backtest")
		}
	}

	res := b.Results()
	log.Info("backtest finished",
		"trades", res.TotalTrades, "final_capital", res.FinalCapital,
		"total_return_pct", res.TotalReturnPct, "elapsed", time.Since(started))
	if b.Observer != nil {
		b.Observer.RunCompleted(time.Since(started), res.TotalTrades)
	}
	return res, nil
}

// step applies one symbol-day: exit triggers first, then the signal.
func (b *Backtester) step(sym string, price float64, day time.Time, d strategy.Decision, minConfidence float64) {
	if pos, open := b.state.Positions[sym]; open {
		stop, target := pos.StopLoss, pos.TakeProfit
		if b.cfg.ExitLevels == ExitLevelsDaily {
			stop, target = d.Plan.StopLoss, d.Plan.TargetPrice
		}
		b.CheckStopLossTakeProfit(sym, price, day, stop, target)
	}

	_, open := b.state.Positions[sym]
	switch {
	case d.Signal.Action == strategy.ActionBuy && d.Signal.Confidence >= minConfidence && !open:
		if b.ExecuteTrade(sym, strategy.ActionBuy, price, day, joinReasons(d.Signal.Reasons)) {
			pos := b.state.Positions[sym]
			pos.StopLoss = d.Plan.StopLoss
			pos.TakeProfit = d.Plan.TargetPrice
		}
	case d.Signal.Action == strategy.ActionSell && d.Signal.Confidence >= minConfidence && open:
		b.ExecuteTrade(sym, strategy.ActionSell, price, day, joinReasons(d.Signal.Reasons))
	}
}

func joinReasons(reasons []string) string {
	s := strings.Join(reasons, ", ")
	if len(s) > maxReasonLen {
		s = s[:maxReasonLen]
	}
	return s
}
