package indicator

import (
	"encoding/json"
	"math"

	"stock-analyzer/internal/model"
)

// Snapshot holds the scalar indicator values as of the last bar of a series.
// Values whose lookback is not yet filled are NaN.
type Snapshot struct {
	LatestPrice   float64
	SMA20         float64
	SMA50         float64
	SMA200        float64
	RSI           float64
	MACD          float64
	MACDSignal    float64
	MACDHistogram float64
	BBUpper       float64
	BBMiddle      float64
	BBLower       float64
	ATR           float64
	StochK        float64
	StochD        float64
}

// Neutral returns the placeholder used when there is no usable data:
// zero prices, RSI 50 and stochastic 50/50.
func Neutral() Snapshot {
	return Snapshot{RSI: 50, StochK: 50, StochD: 50}
}

// IsNeutral reports whether s is the no-data placeholder rather than a
// snapshot computed from real bars.
func (s Snapshot) IsNeutral() bool {
	return s == Neutral()
}

// Summary computes the Snapshot for the last bar of series using p.
// An empty series, or one whose last close is not a positive number,
// yields Neutral().
func Summary(series model.Series, p Params) Snapshot {
	bar, ok := series.Last()
	if !ok || !(bar.Close > 0) || math.IsInf(bar.Close, 0) {
		return Neutral()
	}
	p = p.WithDefaults()

	closes := series.Closes()
	highs := series.Highs()
	lows := series.Lows()

	macd := MACD(closes, p.MACDFast, p.MACDSlow, p.MACDSignal)
	bb := Bollinger(closes, p.BollingerPeriod, p.BollingerStd)
	stoch := Stochastic(highs, lows, closes, p.StochPeriod, p.StochSmoothK, p.StochSmoothD)

	return Snapshot{
		LatestPrice:   bar.Close,
		SMA20:         last(SMA(closes, p.SMAShort)),
		SMA50:         last(SMA(closes, p.SMAMedium)),
		SMA200:        last(SMA(closes, p.SMALong)),
		RSI:           last(RSI(closes, p.RSIPeriod)),
		MACD:          last(macd.MACD),
		MACDSignal:    last(macd.Signal),
		MACDHistogram: last(macd.Histogram),
		BBUpper:       last(bb.Upper),
		BBMiddle:      last(bb.Middle),
		BBLower:       last(bb.Lower),
		ATR:           last(ATR(highs, lows, closes, p.ATRPeriod)),
		StochK:        last(stoch.K),
		StochD:        last(stoch.D),
	}
}

// MarshalJSON encodes undefined (NaN/Inf) values as null.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]*float64{
		"latest_price":   nullable(s.LatestPrice),
		"sma_20":         nullable(s.SMA20),
		"sma_50":         nullable(s.SMA50),
		"sma_200":        nullable(s.SMA200),
		"rsi":            nullable(s.RSI),
		"macd":           nullable(s.MACD),
		"macd_signal":    nullable(s.MACDSignal),
		"macd_histogram": nullable(s.MACDHistogram),
		"bb_upper":       nullable(s.BBUpper),
		"bb_middle":      nullable(s.BBMiddle),
		"bb_lower":       nullable(s.BBLower),
		"atr":            nullable(s.ATR),
		"stoch_k":        nullable(s.StochK),
		"stoch_d":        nullable(s.StochD),
	})
}

func nullable(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
