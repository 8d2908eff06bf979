package backtest

import (
	"math"

	"stock-analyzer/internal/model"
	"stock-analyzer/internal/performance"
	"stock-analyzer/internal/strategy"
)

// Results summarizes a run. The zero value is the empty result returned
// for a degenerate run (inverted dates, no resolvable symbols).
type Results struct {
	InitialCapital float64           `json:"initial_capital"`
	FinalCapital   float64           `json:"final_capital"`
	TotalReturnPct float64           `json:"total_return_pct"`
	TotalReturn    float64           `json:"total_return"` // same as TotalReturnPct
	TotalTrades    int               `json:"total_trades"` // BUY executions
	WinningTrades  int               `json:"winning_trades"`
	LosingTrades   int               `json:"losing_trades"`
	WinRate        float64           `json:"win_rate"` // percent of TotalTrades
	AvgWin         float64           `json:"avg_win"`
	AvgLoss        float64           `json:"avg_loss"`
	ProfitFactor   performance.Ratio `json:"profit_factor"`
	MaxDrawdown    float64           `json:"max_drawdown"` // percent
	CommissionPaid float64           `json:"commission_paid"`

	Trades          []Trade       `json:"trades"`
	ClosedPositions []*Position   `json:"closed_positions"`
	EquityCurve     []EquityPoint `json:"equity_curve"`
}

// Empty reports whether the run recorded no portfolio values.
func (r Results) Empty() bool { return len(r.EquityCurve) == 0 }

// EquityValues returns the equity curve values in date order.
func (r Results) EquityValues() []float64 {
	out := make([]float64, len(r.EquityCurve))
	for i, p := range r.EquityCurve {
		out[i] = p.Value
	}
	return out
}

// Stats projects the trade summary consumed by performance.GenerateReport.
func (r Results) Stats() performance.TradeStats {
	return performance.TradeStats{
		TotalReturnPct: r.TotalReturnPct,
		WinRate:        r.WinRate,
		ProfitFactor:   float64(r.ProfitFactor),
		AvgWin:         r.AvgWin,
		AvgLoss:        r.AvgLoss,
		TotalTrades:    r.TotalTrades,
		WinningTrades:  r.WinningTrades,
		LosingTrades:   r.LosingTrades,
	}
}

// BenchmarkValues maps benchmark bars onto the equity curve dates. A day
// without a bar takes the latest close on or before it; days before the
// first bar are NaN.
func (r Results) BenchmarkValues(bars model.Series) []float64 {
	out := make([]float64, len(r.EquityCurve))
	for i, p := range r.EquityCurve {
		out[i] = math.NaN()
		if bar, ok := bars.SliceUntil(p.Date).Last(); ok {
			out[i] = bar.Close
		}
	}
	return out
}

// Report generates the extended statistics for these results. benchmark
// is optional; when given it is aligned to the equity curve by date.
func (r Results) Report(benchmark model.Series) performance.Report {
	var bench []float64
	if !benchmark.Empty() {
		bench = r.BenchmarkValues(benchmark)
	}
	return performance.GenerateReport(r.Stats(), r.EquityValues(), bench)
}

// Results computes the summary of the current state. It returns the empty
// Results when no portfolio value has been recorded.
func (b *Backtester) Results() Results {
	st := b.state
	if len(st.PortfolioValues) == 0 {
		return Results{}
	}

	initial := b.cfg.InitialCapital
	res := Results{
		InitialCapital:  initial,
		FinalCapital:    st.Capital,
		CommissionPaid:  st.CommissionPaid,
		Trades:          st.Trades,
		ClosedPositions: st.ClosedPositions,
		EquityCurve:     st.PortfolioValues,
	}
	res.TotalReturnPct = (st.Capital - initial) / initial * 100
	res.TotalReturn = res.TotalReturnPct

	for _, t := range st.Trades {
		if t.Action == strategy.ActionBuy {
			res.TotalTrades++
		}
	}

	var grossProfit, grossLoss float64
	for _, p := range st.ClosedPositions {
		switch {
		case p.ProfitLoss > 0:
			res.WinningTrades++
			grossProfit += p.ProfitLoss
		case p.ProfitLoss < 0:
			res.LosingTrades++
			grossLoss += p.ProfitLoss
		}
	}
	if res.TotalTrades > 0 {
		res.WinRate = float64(res.WinningTrades) / float64(res.TotalTrades) * 100
	}
	if res.WinningTrades > 0 {
		res.AvgWin = grossProfit / float64(res.WinningTrades)
	}
	if res.LosingTrades > 0 {
		res.AvgLoss = grossLoss / float64(res.LosingTrades)
	}
	res.ProfitFactor = performance.Ratio(performance.ProfitFactor(grossProfit, grossLoss))

	// Peak tracking starts from the initial capital, not the first close.
	values := append([]float64{initial}, res.EquityValues()...)
	res.MaxDrawdown, _ = performance.MaxDrawdown(values)
	return res
}
