// Package strategy turns indicator snapshots into trading decisions.
//
// A Strategy evaluates a price series as of its last bar and returns a
// Decision: the indicator Snapshot it saw, a BUY/SELL/HOLD Signal with a
// confidence score and reasons, and the entry/target/stop levels for
// entering at the latest price.
package strategy

import (
	"stock-analyzer/internal/indicator"
	"stock-analyzer/internal/model"
)

// Action represents a trading action.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"
)

// Signal is a single trade decision derived from one snapshot.
type Signal struct {
	Action     Action   `json:"action"`
	Confidence float64  `json:"confidence"` // [0, 1]
	Reasons    []string `json:"reasons"`    // rule evaluation order
	BuyScore   float64  `json:"buy_score"`
	SellScore  float64  `json:"sell_score"`
}

// Buy returns 1 for a BUY signal, else 0.
func (s Signal) Buy() int { return flag(s.Action == ActionBuy) }

// Sell returns 1 for a SELL signal, else 0.
func (s Signal) Sell() int { return flag(s.Action == ActionSell) }

// Hold returns 1 for a HOLD signal, else 0.
func (s Signal) Hold() int { return flag(s.Action == ActionHold) }

func flag(b bool) int {
	if b {
		return 1
	}
	return 0
}

// EntryExitPlan holds the price levels for entering at the latest close.
type EntryExitPlan struct {
	EntryPrice  float64 `json:"entry_price"`
	TargetPrice float64 `json:"target_price"`
	StopLoss    float64 `json:"stop_loss"`
	BBUpper     float64 `json:"bb_upper"`
	BBLower     float64 `json:"bb_lower"`
	ATR         float64 `json:"atr"`
}

// Decision bundles everything a strategy derived from one series prefix.
type Decision struct {
	Snapshot indicator.Snapshot `json:"technical"`
	Signal   Signal             `json:"signal"`
	Plan     EntryExitPlan      `json:"entry_exit"`
}

// Strategy is the interface the backtester and scanner evaluate.
type Strategy interface {
	// Name returns the unique name of the strategy.
	Name() string

	// Evaluate derives a Decision from series as of its last bar.
	// It must only read series; no look-ahead is possible by construction.
	Evaluate(series model.Series) Decision
}
