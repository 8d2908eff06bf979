// Package indicator computes technical indicators over a daily price series.
//
// Every function is pure: it takes one or more ordered columns and returns a
// series of the same length. Positions where the lookback window cannot yet be
// filled hold NaN. A value at index i depends only on inputs[0..i], so slicing
// further into the future never changes an already-computed value.
package indicator

import "math"

// Params holds the lookback windows used by Summary.
type Params struct {
	SMAShort        int     `yaml:"sma_short" json:"sma_short"`
	SMAMedium       int     `yaml:"sma_medium" json:"sma_medium"`
	SMALong         int     `yaml:"sma_long" json:"sma_long"`
	RSIPeriod       int     `yaml:"rsi_period" json:"rsi_period"`
	MACDFast        int     `yaml:"macd_fast" json:"macd_fast"`
	MACDSlow        int     `yaml:"macd_slow" json:"macd_slow"`
	MACDSignal      int     `yaml:"macd_signal" json:"macd_signal"`
	BollingerPeriod int     `yaml:"bollinger_period" json:"bollinger_period"`
	BollingerStd    float64 `yaml:"bollinger_std" json:"bollinger_std"`
	ATRPeriod       int     `yaml:"atr_period" json:"atr_period"`
	StochPeriod     int     `yaml:"stoch_period" json:"stoch_period"`
	StochSmoothK    int     `yaml:"stoch_smooth_k" json:"stoch_smooth_k"`
	StochSmoothD    int     `yaml:"stoch_smooth_d" json:"stoch_smooth_d"`
}

// DefaultParams returns the standard daily-chart settings.
func DefaultParams() Params {
	return Params{
		SMAShort:        20,
		SMAMedium:       50,
		SMALong:         200,
		RSIPeriod:       14,
		MACDFast:        12,
		MACDSlow:        26,
		MACDSignal:      9,
		BollingerPeriod: 20,
		BollingerStd:    2,
		ATRPeriod:       14,
		StochPeriod:     14,
		StochSmoothK:    3,
		StochSmoothD:    3,
	}
}

// WithDefaults fills zero or negative fields from DefaultParams.
func (p Params) WithDefaults() Params {
	d := DefaultParams()
	if p.SMAShort <= 0 {
		p.SMAShort = d.SMAShort
	}
	if p.SMAMedium <= 0 {
		p.SMAMedium = d.SMAMedium
	}
	if p.SMALong <= 0 {
		p.SMALong = d.SMALong
	}
	if p.RSIPeriod <= 0 {
		p.RSIPeriod = d.RSIPeriod
	}
	if p.MACDFast <= 0 {
		p.MACDFast = d.MACDFast
	}
	if p.MACDSlow <= 0 {
		p.MACDSlow = d.MACDSlow
	}
	if p.MACDSignal <= 0 {
		p.MACDSignal = d.MACDSignal
	}
	if p.BollingerPeriod <= 0 {
		p.BollingerPeriod = d.BollingerPeriod
	}
	if p.BollingerStd <= 0 {
		p.BollingerStd = d.BollingerStd
	}
	if p.ATRPeriod <= 0 {
		p.ATRPeriod = d.ATRPeriod
	}
	if p.StochPeriod <= 0 {
		p.StochPeriod = d.StochPeriod
	}
	if p.StochSmoothK <= 0 {
		p.StochSmoothK = d.StochSmoothK
	}
	if p.StochSmoothD <= 0 {
		p.StochSmoothD = d.StochSmoothD
	}
	return p
}

// nanSeries returns a slice of n NaN values.
func nanSeries(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// last returns the final element of v, or NaN if v is empty.
func last(v []float64) float64 {
	if len(v) == 0 {
		return math.NaN()
	}
	return v[len(v)-1]
}

// rollingMean is a trailing mean that, like a pandas rolling window, only
// emits a value once window consecutive defined inputs are available.
func rollingMean(values []float64, window int) []float64 {
	out := nanSeries(len(values))
	if window <= 0 {
		return out
	}
	for i := window - 1; i < len(values); i++ {
		sum := 0.0
		ok := true
		for _, v := range values[i-window+1 : i+1] {
			if math.IsNaN(v) {
				ok = false
				break
			}
			sum += v
		}
		if ok {
			out[i] = sum / float64(window)
		}
	}
	return out
}

// rollingStd is the trailing sample standard deviation (n-1 denominator).
func rollingStd(values []float64, window int) []float64 {
	out := nanSeries(len(values))
	if window <= 1 {
		return out
	}
	for i := window - 1; i < len(values); i++ {
		w := values[i-window+1 : i+1]
		mean := 0.0
		for _, v := range w {
			mean += v
		}
		mean /= float64(window)
		ss := 0.0
		for _, v := range w {
			d := v - mean
			ss += d * d
		}
		out[i] = math.Sqrt(ss / float64(window-1))
	}
	return out
}
