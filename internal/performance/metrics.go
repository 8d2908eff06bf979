// Package performance computes risk and return statistics over an equity
// curve or a daily returns series. Every function is pure and defines an
// explicit fallback for degenerate input instead of dividing by zero.
package performance

import "math"

// TradingDaysPerYear annualizes daily statistics.
const TradingDaysPerYear = 252

// DefaultRiskFree is the annual risk-free rate used by the report.
const DefaultRiskFree = 0.02

// Returns converts an equity curve into simple period returns
// (v[i]/v[i-1] − 1). Periods starting from a zero value are dropped.
func Returns(values []float64) []float64 {
	if len(values) < 2 {
		return nil
	}
	out := make([]float64, 0, len(values)-1)
	for i := 1; i < len(values); i++ {
		if values[i-1] == 0 {
			continue
		}
		out = append(out, values[i]/values[i-1]-1)
	}
	return out
}

// SharpeRatio = √252 · mean(excess) / std(excess), excess = r − rf/252.
// Returns 0 for an empty series or zero deviation.
func SharpeRatio(returns []float64, riskFree float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	daily := riskFree / TradingDaysPerYear
	excess := make([]float64, len(returns))
	for i, r := range returns {
		excess[i] = r - daily
	}
	sd := stdDev(excess)
	if sd == 0 || math.IsNaN(sd) {
		return 0
	}
	return math.Sqrt(TradingDaysPerYear) * mean(excess) / sd
}

// SortinoRatio is SharpeRatio with the deviation of the negative returns
// only in the denominator. Returns 0 with fewer than two negative returns
// or when they do not vary.
func SortinoRatio(returns []float64, riskFree float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	daily := riskFree / TradingDaysPerYear
	var excessSum float64
	var downside []float64
	for _, r := range returns {
		excessSum += r - daily
		if r < 0 {
			downside = append(downside, r)
		}
	}
	if len(downside) == 0 {
		return 0
	}
	sd := stdDev(downside)
	if sd == 0 || math.IsNaN(sd) {
		return 0
	}
	return math.Sqrt(TradingDaysPerYear) * (excessSum / float64(len(returns))) / sd
}

// MaxDrawdown returns the deepest peak-to-trough decline as a positive
// percentage, and the longest run of consecutive steps spent below a prior
// peak. A drawdown still open at the end of the curve counts up to the
// last index.
func MaxDrawdown(values []float64) (pct float64, duration int) {
	if len(values) == 0 {
		return 0, 0
	}
	peak := values[0]
	start := -1
	for i, v := range values {
		if v >= peak {
			peak = v
			if start >= 0 {
				if d := i - start; d > duration {
					duration = d
				}
				start = -1
			}
			continue
		}
		if peak > 0 {
			if dd := (peak - v) / peak * 100; dd > pct {
				pct = dd
			}
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		if d := len(values) - 1 - start; d > duration {
			duration = d
		}
	}
	return pct, duration
}

// CalmarRatio = (totalReturn / years) / |maxDrawdown|; 0 when the
// drawdown or the period is zero. Both inputs share the same unit.
func CalmarRatio(totalReturn, maxDrawdown, years float64) float64 {
	if maxDrawdown == 0 || years <= 0 {
		return 0
	}
	return (totalReturn / years) / math.Abs(maxDrawdown)
}

// WinLossRatio = wins / losses; +Inf when there are wins and no losses.
func WinLossRatio(wins, losses int) float64 {
	if losses == 0 {
		if wins > 0 {
			return math.Inf(1)
		}
		return 0
	}
	return float64(wins) / float64(losses)
}

// ProfitFactor = |grossProfit / grossLoss|; +Inf when there is profit and
// no loss, 0 when there is neither.
func ProfitFactor(grossProfit, grossLoss float64) float64 {
	if grossLoss == 0 {
		if grossProfit > 0 {
			return math.Inf(1)
		}
		return 0
	}
	return math.Abs(grossProfit / grossLoss)
}

// Expectancy = winRate·avgWin − (1−winRate)·|avgLoss|, winRate in [0,1].
func Expectancy(winRate, avgWin, avgLoss float64) float64 {
	return winRate*avgWin - (1-winRate)*math.Abs(avgLoss)
}

// Volatility is the annualized sample deviation of returns.
func Volatility(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	return stdDev(returns) * math.Sqrt(TradingDaysPerYear)
}

// AlphaBeta regresses portfolio on benchmark returns:
// beta = cov(p, b) / var(b), alpha = mean(p) − beta·mean(b).
// Covariance and variance both use the n−1 denominator, so a series
// against itself has beta 1. The inputs must be paired by date; unequal
// lengths are cut to the common prefix.
func AlphaBeta(portfolio, benchmark []float64) (alpha, beta float64) {
	p, b := align(portfolio, benchmark)
	if len(p) == 0 {
		return 0, 0
	}
	if v := variance(b); v != 0 && len(p) > 1 {
		beta = covariance(p, b) / v
	}
	alpha = mean(p) - beta*mean(b)
	return alpha, beta
}

// InformationRatio = √252 · mean(p − b) / std(p − b); 0 when the tracking
// error is zero.
func InformationRatio(portfolio, benchmark []float64) float64 {
	p, b := align(portfolio, benchmark)
	if len(p) < 2 {
		return 0
	}
	diff := make([]float64, len(p))
	for i := range p {
		diff[i] = p[i] - b[i]
	}
	te := stdDev(diff)
	if te == 0 || math.IsNaN(te) {
		return 0
	}
	return math.Sqrt(TradingDaysPerYear) * mean(diff) / te
}

func align(a, b []float64) ([]float64, []float64) {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	return a[:n], b[:n]
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var s float64
	for _, x := range xs {
		s += x
	}
	return s / float64(len(xs))
}

// stdDev is the sample (n−1) standard deviation; NaN below two points.
func stdDev(xs []float64) float64 {
	if len(xs) < 2 {
		return math.NaN()
	}
	m := mean(xs)
	var ss float64
	for _, x := range xs {
		d := x - m
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(xs)-1))
}

// variance is the sample (n−1) variance; 0 below two points.
func variance(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	m := mean(xs)
	var ss float64
	for _, x := range xs {
		d := x - m
		ss += d * d
	}
	return ss / float64(len(xs)-1)
}

// covariance is the sample (n−1) covariance.
func covariance(a, b []float64) float64 {
	ma, mb := mean(a), mean(b)
	var s float64
	for i := range a {
		s += (a[i] - ma) * (b[i] - mb)
	}
	return s / float64(len(a)-1)
}
