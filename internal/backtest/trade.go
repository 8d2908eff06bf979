package backtest

import (
	"fmt"
	"time"

	"stock-analyzer/internal/strategy"
)

// Trade is one executed order. Price is the post-slippage fill price.
// ProfitLoss and ProfitLossPct are only set on SELL trades, copied from the
// position the trade closed.
type Trade struct {
	Symbol        string          `json:"symbol"`
	Action        strategy.Action `json:"action"`
	Price         float64         `json:"price"`
	Quantity      int64           `json:"quantity"`
	Date          time.Time       `json:"date"`
	Reason        string          `json:"reason"`
	Commission    float64         `json:"commission"`
	ProfitLoss    float64         `json:"profit_loss"`
	ProfitLossPct float64         `json:"profit_loss_pct"`
}

func (t Trade) String() string {
	return fmt.Sprintf("Trade(%s %s @ $%.2f on %s)", t.Action, t.Symbol, t.Price, t.Date.Format("2006-01-02"))
}

// Position is a long holding in one symbol. It is mutable while open and
// frozen once Close has been called.
type Position struct {
	Symbol     string    `json:"symbol"`
	EntryPrice float64   `json:"entry_price"`
	Quantity   int64     `json:"quantity"`
	EntryDate  time.Time `json:"entry_date"`

	// Exit levels captured from the entry-day plan. Zero disables the check.
	StopLoss   float64 `json:"stop_loss"`
	TakeProfit float64 `json:"take_profit"`

	ExitPrice     float64   `json:"exit_price"`
	ExitDate      time.Time `json:"exit_date"`
	ProfitLoss    float64   `json:"profit_loss"`
	ProfitLossPct float64   `json:"profit_loss_pct"`
	HoldingDays   int       `json:"holding_days"`

	closed bool
}

// NewPosition opens a position.
func NewPosition(symbol string, entryPrice float64, qty int64, entryDate time.Time) *Position {
	return &Position{
		Symbol:     symbol,
		EntryPrice: entryPrice,
		Quantity:   qty,
		EntryDate:  entryDate,
	}
}

// Close fixes the exit price/date and the realized P&L. Calling Close on an
// already closed position has no effect.
func (p *Position) Close(exitPrice float64, exitDate time.Time) {
	if p.closed {
		return
	}
	p.closed = true
	p.ExitPrice = exitPrice
	p.ExitDate = exitDate
	p.ProfitLoss = (exitPrice - p.EntryPrice) * float64(p.Quantity)
	if p.EntryPrice != 0 {
		p.ProfitLossPct = (exitPrice - p.EntryPrice) / p.EntryPrice * 100
	}
	p.HoldingDays = int(exitDate.Sub(p.EntryDate).Hours() / 24)
}

// MarketValue returns quantity × price.
func (p *Position) MarketValue(price float64) float64 {
	return price * float64(p.Quantity)
}

func (p *Position) String() string {
	status := fmt.Sprintf("OPEN @ $%.2f", p.EntryPrice)
	if p.closed {
		status = fmt.Sprintf("CLOSED @ $%.2f (%+.2f%%)", p.ExitPrice, p.ProfitLossPct)
	}
	return fmt.Sprintf("Position(%s %s)", p.Symbol, status)
}
