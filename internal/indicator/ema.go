package indicator

// EMA returns the exponential moving average with alpha = 2/(window+1),
// seeded with the first value and updated recursively:
//
//	ema[t] = v[t]*alpha + ema[t-1]*(1-alpha)
//
// No warm-up positions are NaN; a NaN input leaves the previous value in place.
func EMA(values []float64, window int) []float64 {
	out := nanSeries(len(values))
	if window <= 0 || len(values) == 0 {
		return out
	}
	alpha := 2.0 / float64(window+1)

	seeded := false
	prev := 0.0
	for i, v := range values {
		if v != v { // NaN
			if seeded {
				out[i] = prev
			}
			continue
		}
		if !seeded {
			prev = v
			seeded = true
		} else {
			prev = v*alpha + prev*(1-alpha)
		}
		out[i] = prev
	}
	return out
}
