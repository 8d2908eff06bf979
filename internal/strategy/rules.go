package strategy

import (
	"fmt"

	"stock-analyzer/internal/indicator"
	"stock-analyzer/internal/model"
)

// Params controls rule thresholds, rule weights and exit levels.
type Params struct {
	RSIOversold   float64 `yaml:"rsi_oversold" json:"rsi_oversold"`
	RSIOverbought float64 `yaml:"rsi_overbought" json:"rsi_overbought"`

	TrendWeight float64 `yaml:"trend_weight" json:"trend_weight"` // SMA ordering
	RSIWeight   float64 `yaml:"rsi_weight" json:"rsi_weight"`
	MACDWeight  float64 `yaml:"macd_weight" json:"macd_weight"`
	PriceWeight float64 `yaml:"price_weight" json:"price_weight"` // price vs MA50/MA200

	TargetPct float64 `yaml:"profit_target_pct" json:"profit_target_pct"` // 0.05 = +5%
	StopPct   float64 `yaml:"stop_loss_pct" json:"stop_loss_pct"`         // 0.03 = -3%
}

// DefaultParams returns the baseline rule set.
func DefaultParams() Params {
	return Params{
		RSIOversold:   30,
		RSIOverbought: 70,
		TrendWeight:   2,
		RSIWeight:     2,
		MACDWeight:    1.5,
		PriceWeight:   1,
		TargetPct:     0.05,
		StopPct:       0.03,
	}
}

// RuleEngine scores a fixed set of indicator rules into a Signal.
// It holds no mutable state and is safe for concurrent use.
type RuleEngine struct {
	name   string
	params Params
	ind    indicator.Params
}

// NewRuleEngine creates a rule-based strategy.
func NewRuleEngine(p Params, ind indicator.Params) *RuleEngine {
	return &RuleEngine{
		name:   "Technical_Rules",
		params: p,
		ind:    ind,
	}
}

func (r *RuleEngine) Name() string { return r.name }

// Params returns the rule parameters in use.
func (r *RuleEngine) Params() Params { return r.params }

// Evaluate computes the snapshot, signal and entry/exit plan for series.
func (r *RuleEngine) Evaluate(series model.Series) Decision {
	snap := indicator.Summary(series, r.ind)
	return Decision{
		Snapshot: snap,
		Signal:   r.Generate(snap),
		Plan:     r.EntryExit(series),
	}
}

// Generate applies the weighted rules to snap. Rules are evaluated in a
// fixed order and Reasons follows that order:
//
//  1. SMA ordering   20>50>200 buy, 20<50<200 sell
//  2. RSI            below oversold buy, above overbought sell
//  3. MACD           line above signal with positive histogram buy, mirror sell
//  4. Price vs MAs   above MA50 and MA200 buy, below both sell
//
// The higher score wins; equal scores give HOLD. Confidence is the winning
// score over the total, so a tie with nonzero scores is a HOLD at 0.5.
// Comparisons against undefined (NaN) values never fire.
func (r *RuleEngine) Generate(snap indicator.Snapshot) Signal {
	p := r.params
	sig := Signal{Reasons: []string{}}

	switch {
	case snap.SMA20 > snap.SMA50 && snap.SMA50 > snap.SMA200:
		sig.BuyScore += p.TrendWeight
		sig.Reasons = append(sig.Reasons, "Golden Cross (SMA 20 > 50 > 200)")
	case snap.SMA20 < snap.SMA50 && snap.SMA50 < snap.SMA200:
		sig.SellScore += p.TrendWeight
		sig.Reasons = append(sig.Reasons, "Death Cross (SMA 20 < 50 < 200)")
	}

	switch {
	case snap.RSI < p.RSIOversold:
		sig.BuyScore += p.RSIWeight
		sig.Reasons = append(sig.Reasons, fmt.Sprintf("RSI Oversold (%.2f)", snap.RSI))
	case snap.RSI > p.RSIOverbought:
		sig.SellScore += p.RSIWeight
		sig.Reasons = append(sig.Reasons, fmt.Sprintf("RSI Overbought (%.2f)", snap.RSI))
	}

	switch {
	case snap.MACD > snap.MACDSignal && snap.MACDHistogram > 0:
		sig.BuyScore += p.MACDWeight
		sig.Reasons = append(sig.Reasons, "MACD Bullish")
	case snap.MACD < snap.MACDSignal && snap.MACDHistogram < 0:
		sig.SellScore += p.MACDWeight
		sig.Reasons = append(sig.Reasons, "MACD Bearish")
	}

	switch {
	case snap.LatestPrice > snap.SMA50 && snap.LatestPrice > snap.SMA200:
		sig.BuyScore += p.PriceWeight
		sig.Reasons = append(sig.Reasons, "Price above MA50 and MA200")
	case snap.LatestPrice < snap.SMA50 && snap.LatestPrice < snap.SMA200:
		sig.SellScore += p.PriceWeight
		sig.Reasons = append(sig.Reasons, "Price below MA50 and MA200")
	}

	if total := sig.BuyScore + sig.SellScore; total > 0 {
		sig.Confidence = max(sig.BuyScore, sig.SellScore) / total
	}

	switch {
	case sig.BuyScore > sig.SellScore:
		sig.Action = ActionBuy
	case sig.SellScore > sig.BuyScore:
		sig.Action = ActionSell
	default:
		sig.Action = ActionHold
	}
	return sig
}
