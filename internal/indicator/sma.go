package indicator

// SMA returns the simple moving average of values over a trailing window.
// The first window-1 positions are NaN.
func SMA(values []float64, window int) []float64 {
	return rollingMean(values, window)
}
