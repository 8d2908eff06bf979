package performance

import (
	"math"
	"strconv"
)

// Ratio is a float that may legitimately be +Inf (profit factor with no
// losing trades). It encodes non-finite values as JSON null.
type Ratio float64

func (r Ratio) MarshalJSON() ([]byte, error) {
	f := float64(r)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return []byte("null"), nil
	}
	return strconv.AppendFloat(nil, f, 'g', -1, 64), nil
}

// IsInf reports whether r is +Inf.
func (r Ratio) IsInf() bool { return math.IsInf(float64(r), 1) }

// TradeStats is the trade-level summary a backtest hands to GenerateReport.
type TradeStats struct {
	TotalReturnPct float64
	WinRate        float64 // percent, 0–100
	ProfitFactor   float64
	AvgWin         float64
	AvgLoss        float64
	TotalTrades    int
	WinningTrades  int
	LosingTrades   int
}

// Report is the extended statistics block. Alpha, Beta and
// InformationRatio are only set when a benchmark was supplied.
type Report struct {
	SharpeRatio         float64 `json:"sharpe_ratio"`
	SortinoRatio        float64 `json:"sortino_ratio"`
	MaxDrawdown         float64 `json:"max_drawdown"` // percent
	MaxDrawdownDuration int     `json:"max_drawdown_duration"`
	Volatility          float64 `json:"volatility"` // annualized, percent
	CalmarRatio         float64 `json:"calmar_ratio"`
	Expectancy          float64 `json:"expectancy"`
	TotalReturn         float64 `json:"total_return"`
	WinRate             float64 `json:"win_rate"`
	ProfitFactor        Ratio   `json:"profit_factor"`
	WinLossRatio        Ratio   `json:"win_loss_ratio"`
	TotalTrades         int     `json:"total_trades"`
	AvgWin              float64 `json:"avg_win"`
	AvgLoss             float64 `json:"avg_loss"`

	HasBenchmark     bool    `json:"has_benchmark"`
	Alpha            float64 `json:"alpha,omitempty"`
	Beta             float64 `json:"beta,omitempty"`
	InformationRatio float64 `json:"information_ratio,omitempty"`

	empty bool
}

// Empty reports whether the report was generated from an empty curve.
func (r Report) Empty() bool { return r.empty }

// GenerateReport derives the extended statistics from trade stats and the
// daily equity curve. benchmark, when given, holds one price per equity
// point on the same dates, NaN where the benchmark had not started yet;
// it adds alpha, beta and information ratio over the days both are known.
// A benchmark of a different length is ignored. An empty equity curve
// yields an empty report.
func GenerateReport(stats TradeStats, equity []float64, benchmark []float64) Report {
	if len(equity) == 0 {
		return Report{empty: true}
	}

	returns := Returns(equity)
	mdd, mddDur := MaxDrawdown(equity)
	years := float64(len(equity)) / TradingDaysPerYear
	winRate := stats.WinRate / 100

	r := Report{
		SharpeRatio:         SharpeRatio(returns, DefaultRiskFree),
		SortinoRatio:        SortinoRatio(returns, DefaultRiskFree),
		MaxDrawdown:         mdd,
		MaxDrawdownDuration: mddDur,
		Volatility:          Volatility(returns) * 100,
		CalmarRatio:         CalmarRatio(stats.TotalReturnPct, mdd, years),
		Expectancy:          Expectancy(winRate, stats.AvgWin, stats.AvgLoss),
		TotalReturn:         stats.TotalReturnPct,
		WinRate:             stats.WinRate,
		ProfitFactor:        Ratio(stats.ProfitFactor),
		WinLossRatio:        Ratio(WinLossRatio(stats.WinningTrades, stats.LosingTrades)),
		TotalTrades:         stats.TotalTrades,
		AvgWin:              stats.AvgWin,
		AvgLoss:             stats.AvgLoss,
	}

	if len(benchmark) == len(equity) {
		k := 0
		for k < len(benchmark) && math.IsNaN(benchmark[k]) {
			k++
		}
		if len(benchmark)-k > 1 {
			port, bench := pairedReturns(equity[k:], benchmark[k:])
			r.HasBenchmark = true
			r.Alpha, r.Beta = AlphaBeta(port, bench)
			r.InformationRatio = InformationRatio(port, bench)
		}
	}
	return r
}

// pairedReturns computes same-period returns of two date-aligned curves,
// dropping periods where either starts from zero.
func pairedReturns(a, b []float64) ([]float64, []float64) {
	n := len(a) - 1
	ra := make([]float64, 0, n)
	rb := make([]float64, 0, n)
	for i := 1; i < len(a); i++ {
		if a[i-1] == 0 || b[i-1] == 0 {
			continue
		}
		ra = append(ra, a[i]/a[i-1]-1)
		rb = append(rb, b[i]/b[i-1]-1)
	}
	return ra, rb
}
