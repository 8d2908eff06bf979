package indicator

import "math"

// TrueRange returns max(high-low, |high-prevClose|, |low-prevClose|) per bar.
// The first bar has no previous close and uses high-low alone.
func TrueRange(highs, lows, closes []float64) []float64 {
	n := minLen(highs, lows, closes)
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		tr := highs[i] - lows[i]
		if i > 0 {
			tr = math.Max(tr, math.Abs(highs[i]-closes[i-1]))
			tr = math.Max(tr, math.Abs(lows[i]-closes[i-1]))
		}
		out[i] = tr
	}
	return out
}

// ATR returns the rolling mean of the true range over window bars.
func ATR(highs, lows, closes []float64, window int) []float64 {
	return rollingMean(TrueRange(highs, lows, closes), window)
}

func minLen(cols ...[]float64) int {
	n := -1
	for _, c := range cols {
		if n < 0 || len(c) < n {
			n = len(c)
		}
	}
	if n < 0 {
		return 0
	}
	return n
}
