package strategy

import (
	"math"

	"stock-analyzer/internal/indicator"
	"stock-analyzer/internal/model"
)

// EntryExit derives the levels for entering at the latest close.
// Target and stop are fixed fractions of the entry; ATR and the Bollinger
// bands are reported for display only and do not move the levels.
// The plan is computed regardless of the signal so callers can show
// "if you entered now" levels for a HOLD. An empty series gives a zero plan;
// undefined band or ATR values are reported as 0.
func (r *RuleEngine) EntryExit(series model.Series) EntryExitPlan {
	bar, ok := series.Last()
	if !ok {
		return EntryExitPlan{}
	}
	ind := r.ind.WithDefaults()

	closes := series.Closes()
	bb := indicator.Bollinger(closes, ind.BollingerPeriod, ind.BollingerStd)
	atr := indicator.ATR(series.Highs(), series.Lows(), closes, ind.ATRPeriod)

	entry := bar.Close
	return EntryExitPlan{
		EntryPrice:  entry,
		TargetPrice: entry * (1 + r.params.TargetPct),
		StopLoss:    entry * (1 - r.params.StopPct),
		BBUpper:     orZero(bb.Upper[len(bb.Upper)-1]),
		BBLower:     orZero(bb.Lower[len(bb.Lower)-1]),
		ATR:         orZero(atr[len(atr)-1]),
	}
}

func orZero(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
