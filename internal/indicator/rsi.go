package indicator

// RSI returns the Relative Strength Index of closes using simple rolling
// averages of gains and losses over window deltas.
//
// The first window positions are NaN (there is no delta for the first bar).
// When the average loss is zero the value saturates to 100, including the
// flat-price case. Every defined value lies in [0, 100].
func RSI(closes []float64, window int) []float64 {
	n := len(closes)
	out := nanSeries(n)
	if window <= 0 || n <= window {
		return out
	}

	gains := nanSeries(n)
	losses := nanSeries(n)
	for i := 1; i < n; i++ {
		delta := closes[i] - closes[i-1]
		gains[i], losses[i] = 0, 0
		if delta > 0 {
			gains[i] = delta
		} else if delta < 0 {
			losses[i] = -delta
		}
	}

	avgGain := rollingMean(gains, window)
	avgLoss := rollingMean(losses, window)
	for i := window; i < n; i++ {
		g, l := avgGain[i], avgLoss[i]
		if g != g || l != l {
			continue
		}
		if l == 0 {
			out[i] = 100.0
			continue
		}
		rs := g / l
		out[i] = 100.0 - (100.0 / (1.0 + rs))
	}
	return out
}
