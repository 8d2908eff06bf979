package indicator

// StochasticResult bundles %K and %D.
type StochasticResult struct {
	K []float64
	D []float64
}

// Stochastic computes raw %K = 100*(close-lowestLow)/(highestHigh-lowestLow)
// over window bars, smooths it with a smoothK rolling mean to give %K, and
// takes a smoothD rolling mean of %K for %D. A window whose high equals its
// low has no defined %K.
func Stochastic(highs, lows, closes []float64, window, smoothK, smoothD int) StochasticResult {
	n := minLen(highs, lows, closes)
	raw := nanSeries(n)
	if window > 0 {
		for i := window - 1; i < n; i++ {
			hh, ll := highs[i], lows[i]
			for j := i - window + 1; j <= i; j++ {
				if highs[j] > hh {
					hh = highs[j]
				}
				if lows[j] < ll {
					ll = lows[j]
				}
			}
			if hh == ll {
				continue
			}
			raw[i] = 100 * (closes[i] - ll) / (hh - ll)
		}
	}
	k := rollingMean(raw, smoothK)
	d := rollingMean(k, smoothD)
	return StochasticResult{K: k, D: d}
}
