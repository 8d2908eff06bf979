// Package backtest replays the rule-based strategy over historical daily
// bars with a simulated cash account, one long position per symbol,
// proportional commission and slippage, and per-day mark-to-market.
//
// A Backtester is single-owner state: one Run at a time, no locking.
package backtest

import (
	"log/slog"
	"math"
	"time"

	"stock-analyzer/internal/calendar"
	"stock-analyzer/internal/strategy"
)

// Exit level policies for open positions.
const (
	// ExitLevelsEntry checks the stop and target of the plan made on the
	// entry day for the life of the position.
	ExitLevelsEntry = "entry"
	// ExitLevelsDaily checks each day's freshly computed plan. The plan is
	// anchored on that day's close, so with the default percentages it
	// never triggers.
	ExitLevelsDaily = "daily"
)

// Config holds the account simulation parameters.
type Config struct {
	InitialCapital  float64 `yaml:"initial_capital" json:"initial_capital"`
	Commission      float64 `yaml:"commission" json:"commission"`               // fraction of notional per side
	Slippage        float64 `yaml:"slippage" json:"slippage"`                   // fraction of price, adverse
	PositionSizePct float64 `yaml:"position_size_pct" json:"position_size_pct"` // fraction of capital per entry
	MinHistory      int     `yaml:"min_history" json:"min_history"`             // bars required before a day is evaluated
	LookbackDays    int     `yaml:"lookback_days" json:"lookback_days"`         // calendar days of warm-up history
	ExitLevels      string  `yaml:"exit_levels" json:"exit_levels"`             // ExitLevelsEntry or ExitLevelsDaily
}

// DefaultConfig returns $10k, 0.1% commission, 0.05% slippage, 20% sizing.
func DefaultConfig() Config {
	return Config{
		InitialCapital:  10000,
		Commission:      0.001,
		Slippage:        0.0005,
		PositionSizePct: 0.2,
		MinHistory:      50,
		LookbackDays:    200,
		ExitLevels:      ExitLevelsEntry,
	}
}

// WithDefaults fills zero-valued fields from DefaultConfig. Commission and
// Slippage are left alone since zero is a meaningful setting for both.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.InitialCapital <= 0 {
		c.InitialCapital = d.InitialCapital
	}
	if c.PositionSizePct <= 0 {
		c.PositionSizePct = d.PositionSizePct
	}
	if c.MinHistory <= 0 {
		c.MinHistory = d.MinHistory
	}
	if c.LookbackDays <= 0 {
		c.LookbackDays = d.LookbackDays
	}
	if c.ExitLevels == "" {
		c.ExitLevels = d.ExitLevels
	}
	return c
}

// EquityPoint is one day of the portfolio value curve.
type EquityPoint struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
}

// State is the mutable account: cash, open positions, and the append-only
// trade and equity history.
type State struct {
	Capital         float64              `json:"capital"`
	Positions       map[string]*Position `json:"positions"`
	Trades          []Trade              `json:"trades"`
	ClosedPositions []*Position          `json:"closed_positions"`
	PortfolioValues []EquityPoint        `json:"equity_curve"`
	CommissionPaid  float64              `json:"commission_paid"`
}

// Observer receives execution events. The metrics package provides the
// Prometheus implementation.
type Observer interface {
	TradeExecuted(action string)
	TradeRejected(reason string)
	RunCompleted(d time.Duration, trades int)
}

// Backtester simulates the account. Create with New.
type Backtester struct {
	cfg      Config
	strategy strategy.Strategy
	log      *slog.Logger

	// Observer is optional.
	Observer Observer
	// Calendar selects the simulated days; nil means every weekday.
	Calendar *calendar.Calendar

	state      State
	lastPrices map[string]float64
}

// New creates a backtester in its initial state.
func New(cfg Config, strat strategy.Strategy, logger *slog.Logger) *Backtester {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Backtester{
		cfg:      cfg.WithDefaults(),
		strategy: strat,
		log:      logger,
	}
	b.Reset()
	return b
}

// Config returns the effective configuration.
func (b *Backtester) Config() Config { return b.cfg }

// Reset restores the initial state: full capital, no positions or history.
func (b *Backtester) Reset() {
	b.state = State{
		Capital:   b.cfg.InitialCapital,
		Positions: make(map[string]*Position),
	}
	b.lastPrices = make(map[string]float64)
}

// Capital returns the current cash balance.
func (b *Backtester) Capital() float64 { return b.state.Capital }

// Position returns the open position for symbol, if any.
func (b *Backtester) Position(symbol string) (*Position, bool) {
	p, ok := b.state.Positions[symbol]
	return p, ok
}

// State returns the account state. The returned value shares storage with
// the backtester and must be treated as read-only.
func (b *Backtester) State() State { return b.state }

// PositionSize returns the share count for an entry at price:
// floor(capital × position_size_pct / price), at least 1.
func (b *Backtester) PositionSize(price float64) int64 {
	if price <= 0 {
		return 0
	}
	qty := int64(math.Floor(b.state.Capital * b.cfg.PositionSizePct / price))
	if qty < 1 {
		qty = 1
	}
	return qty
}

// ExecuteTrade attempts a BUY or SELL at the given market price and
// reports whether it happened. BUY fills at price×(1+slippage) and needs
// cash for cost plus commission; it is refused while a position in the
// symbol is open. SELL fills at price×(1−slippage) and needs an open
// position, which it closes in full.
func (b *Backtester) ExecuteTrade(symbol string, action strategy.Action, price float64, date time.Time, reason string) bool {
	if price <= 0 || math.IsNaN(price) || math.IsInf(price, 0) {
		b.reject(symbol, action, "invalid_price")
		return false
	}

	switch action {
	case strategy.ActionBuy:
		return b.buy(symbol, price, date, reason)
	case strategy.ActionSell:
		return b.sell(symbol, price, date, reason)
	default:
		return false
	}
}

func (b *Backtester) buy(symbol string, price float64, date time.Time, reason string) bool {
	if _, open := b.state.Positions[symbol]; open {
		b.reject(symbol, strategy.ActionBuy, "position_open")
		return false
	}

	execPrice := price * (1 + b.cfg.Slippage)
	qty := b.PositionSize(execPrice)
	cost := execPrice * float64(qty)
	commission := cost * b.cfg.Commission

	if b.state.Capital < cost+commission {
		b.reject(symbol, strategy.ActionBuy, "insufficient_capital")
		return false
	}

	b.state.Capital -= cost + commission
	b.state.CommissionPaid += commission
	b.state.Positions[symbol] = NewPosition(symbol, execPrice, qty, date)
	b.state.Trades = append(b.state.Trades, Trade{
		Symbol:     symbol,
		Action:     strategy.ActionBuy,
		Price:      execPrice,
		Quantity:   qty,
		Date:       date,
		Reason:     reason,
		Commission: commission,
	})

	b.log.Info("trade executed",
		"action", "BUY", "symbol", symbol, "qty", qty,
		"price", execPrice, "commission", commission, "date", date.Format("2006-01-02"))
	if b.Observer != nil {
		b.Observer.TradeExecuted(string(strategy.ActionBuy))
	}
	return true
}

func (b *Backtester) sell(symbol string, price float64, date time.Time, reason string) bool {
	pos, open := b.state.Positions[symbol]
	if !open {
		b.reject(symbol, strategy.ActionSell, "no_position")
		return false
	}

	execPrice := price * (1 - b.cfg.Slippage)
	revenue := execPrice * float64(pos.Quantity)
	commission := revenue * b.cfg.Commission

	b.state.Capital += revenue - commission
	b.state.CommissionPaid += commission

	pos.Close(execPrice, date)
	b.state.ClosedPositions = append(b.state.ClosedPositions, pos)
	delete(b.state.Positions, symbol)

	b.state.Trades = append(b.state.Trades, Trade{
		Symbol:        symbol,
		Action:        strategy.ActionSell,
		Price:         execPrice,
		Quantity:      pos.Quantity,
		Date:          date,
		Reason:        reason,
		Commission:    commission,
		ProfitLoss:    pos.ProfitLoss,
		ProfitLossPct: pos.ProfitLossPct,
	})

	b.log.Info("trade executed",
		"action", "SELL", "symbol", symbol, "qty", pos.Quantity,
		"price", execPrice, "pnl", pos.ProfitLoss, "date", date.Format("2006-01-02"))
	if b.Observer != nil {
		b.Observer.TradeExecuted(string(strategy.ActionSell))
	}
	return true
}

func (b *Backtester) reject(symbol string, action strategy.Action, reason string) {
	b.log.Warn("trade rejected", "action", string(action), "symbol", symbol, "reason", reason)
	if b.Observer != nil {
		b.Observer.TradeRejected(reason)
	}
}

// CheckStopLossTakeProfit sells the open position in symbol when price is
// at or below stopLoss, or else at or above takeProfit. A zero level is
// not checked. Stop-loss wins when both would trigger.
func (b *Backtester) CheckStopLossTakeProfit(symbol string, price float64, date time.Time, stopLoss, takeProfit float64) bool {
	if _, open := b.state.Positions[symbol]; !open {
		return false
	}
	if stopLoss > 0 && price <= stopLoss {
		return b.ExecuteTrade(symbol, strategy.ActionSell, price, date, "Stop Loss")
	}
	if takeProfit > 0 && price >= takeProfit {
		return b.ExecuteTrade(symbol, strategy.ActionSell, price, date, "Take Profit")
	}
	return false
}

// UpdatePortfolioValue appends capital + Σ(quantity × current price) to the
// equity curve. A symbol missing from prices is valued at the last price
// seen for it, falling back to its entry price.
func (b *Backtester) UpdatePortfolioValue(date time.Time, prices map[string]float64) float64 {
	for sym, p := range prices {
		b.lastPrices[sym] = p
	}
	value := b.state.Capital
	for sym, pos := range b.state.Positions {
		price, ok := b.lastPrices[sym]
		if !ok {
			price = pos.EntryPrice
		}
		value += pos.MarketValue(price)
	}
	b.state.PortfolioValues = append(b.state.PortfolioValues, EquityPoint{Date: date, Value: value})
	return value
}
