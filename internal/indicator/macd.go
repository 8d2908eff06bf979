package indicator

// MACDResult bundles the three MACD lines.
type MACDResult struct {
	MACD      []float64
	Signal    []float64
	Histogram []float64
}

// MACD computes EMA(fast) - EMA(slow), its EMA(signal) signal line and the
// histogram MACD - signal.
func MACD(closes []float64, fast, slow, signal int) MACDResult {
	emaFast := EMA(closes, fast)
	emaSlow := EMA(closes, slow)

	line := make([]float64, len(closes))
	for i := range closes {
		line[i] = emaFast[i] - emaSlow[i]
	}
	sig := EMA(line, signal)

	hist := make([]float64, len(closes))
	for i := range closes {
		hist[i] = line[i] - sig[i]
	}
	return MACDResult{MACD: line, Signal: sig, Histogram: hist}
}
