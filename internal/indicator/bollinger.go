package indicator

// BollingerResult bundles the three bands.
type BollingerResult struct {
	Upper  []float64
	Middle []float64
	Lower  []float64
}

// Bollinger returns middle = SMA(window) and upper/lower = middle ± numStd
// times the rolling sample standard deviation.
func Bollinger(closes []float64, window int, numStd float64) BollingerResult {
	middle := SMA(closes, window)
	std := rollingStd(closes, window)

	upper := nanSeries(len(closes))
	lower := nanSeries(len(closes))
	for i := range closes {
		upper[i] = middle[i] + std[i]*numStd
		lower[i] = middle[i] - std[i]*numStd
	}
	return BollingerResult{Upper: upper, Middle: middle, Lower: lower}
}
