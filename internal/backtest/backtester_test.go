package backtest

import (
	"io"
	"log/slog"
	"math"
	"strings"
	"testing"
	"time"

	"stock-analyzer/internal/strategy"
)

func assertClose(t *testing.T, label string, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Errorf("%s: got %.8f, want %.8f (tol %.8f)", label, got, want, tol)
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func newTestBacktester(capital float64) *Backtester {
	return New(Config{
		InitialCapital:  capital,
		Commission:      0.001,
		Slippage:        0.0005,
		PositionSizePct: 0.2,
	}, nil, quietLogger())
}

// ────────────────────────────────────────────────────────────
// Execution
// ────────────────────────────────────────────────────────────

func TestExecuteTrade_Buy(t *testing.T) {
	b := newTestBacktester(10000)
	if !b.ExecuteTrade("AAPL", strategy.ActionBuy, 100, day(2024, 1, 2), "test") {
		t.Fatal("buy rejected")
	}

	exec := 100 * 1.0005
	qty := int64(math.Floor(10000 * 0.2 / exec)) // 19
	if qty != 19 {
		t.Fatalf("sanity: qty %d", qty)
	}
	cost := exec * float64(qty)

	pos, ok := b.Position("AAPL")
	if !ok {
		t.Fatal("expected open position")
	}
	if pos.Quantity != qty {
		t.Errorf("quantity: got %d, want %d", pos.Quantity, qty)
	}
	assertClose(t, "entry price", pos.EntryPrice, exec, 1e-12)
	assertClose(t, "capital", b.Capital(), 10000-cost-cost*0.001, 1e-9)

	trades := b.State().Trades
	if len(trades) != 1 || trades[0].Action != strategy.ActionBuy || trades[0].Reason != "test" {
		t.Errorf("unexpected trades: %+v", trades)
	}
}

func TestExecuteTrade_MinimumOneShare(t *testing.T) {
	b := newTestBacktester(10000)
	// 10000 × 0.2 / 5000 < 1
	if !b.ExecuteTrade("BRK", strategy.ActionBuy, 5000, day(2024, 1, 2), "") {
		t.Fatal("buy rejected")
	}
	pos, _ := b.Position("BRK")
	if pos.Quantity != 1 {
		t.Errorf("quantity: got %d, want 1", pos.Quantity)
	}
}

func TestExecuteTrade_InsufficientCapital(t *testing.T) {
	b := newTestBacktester(100)
	if b.ExecuteTrade("AAPL", strategy.ActionBuy, 500, day(2024, 1, 2), "") {
		t.Fatal("buy should be rejected")
	}
	if b.Capital() != 100 {
		t.Errorf("capital changed: %v", b.Capital())
	}
	if _, ok := b.Position("AAPL"); ok {
		t.Error("position opened")
	}
	if len(b.State().Trades) != 0 {
		t.Error("trade recorded")
	}
}

func TestExecuteTrade_SingleOpenPosition(t *testing.T) {
	b := newTestBacktester(10000)
	b.ExecuteTrade("AAPL", strategy.ActionBuy, 100, day(2024, 1, 2), "")
	capital := b.Capital()
	if b.ExecuteTrade("AAPL", strategy.ActionBuy, 101, day(2024, 1, 3), "") {
		t.Fatal("second buy accepted while position open")
	}
	if b.Capital() != capital {
		t.Error("capital changed by rejected buy")
	}
	if n := len(b.State().Trades); n != 1 {
		t.Errorf("trades: got %d, want 1", n)
	}
}

func TestExecuteTrade_SellWhileFlat(t *testing.T) {
	b := newTestBacktester(10000)
	if b.ExecuteTrade("AAPL", strategy.ActionSell, 100, day(2024, 1, 2), "") {
		t.Fatal("sell accepted with no position")
	}
	if b.Capital() != 10000 {
		t.Error("capital changed")
	}
}

func TestExecuteTrade_HoldAndBadPrice(t *testing.T) {
	b := newTestBacktester(10000)
	if b.ExecuteTrade("AAPL", strategy.ActionHold, 100, day(2024, 1, 2), "") {
		t.Error("HOLD executed")
	}
	if b.ExecuteTrade("AAPL", strategy.ActionBuy, math.NaN(), day(2024, 1, 2), "") {
		t.Error("NaN price executed")
	}
	if b.ExecuteTrade("AAPL", strategy.ActionBuy, 0, day(2024, 1, 2), "") {
		t.Error("zero price executed")
	}
}

func TestExecuteTrade_RoundTrip(t *testing.T) {
	b := newTestBacktester(10000)
	b.ExecuteTrade("AAPL", strategy.ActionBuy, 100, day(2024, 1, 2), "in")
	if !b.ExecuteTrade("AAPL", strategy.ActionSell, 110, day(2024, 1, 12), "out") {
		t.Fatal("sell rejected")
	}
	if _, ok := b.Position("AAPL"); ok {
		t.Fatal("position still open")
	}

	st := b.State()
	if len(st.ClosedPositions) != 1 {
		t.Fatalf("closed positions: %d", len(st.ClosedPositions))
	}
	pos := st.ClosedPositions[0]
	entry, exit := 100*1.0005, 110*0.9995
	assertClose(t, "pnl", pos.ProfitLoss, (exit-entry)*19, 1e-9)
	assertClose(t, "pnl pct", pos.ProfitLossPct, (exit-entry)/entry*100, 1e-9)
	if pos.HoldingDays != 10 {
		t.Errorf("holding days: got %d, want 10", pos.HoldingDays)
	}

	sell := st.Trades[1]
	if sell.ProfitLoss != pos.ProfitLoss || sell.ProfitLossPct != pos.ProfitLossPct {
		t.Errorf("sell trade P/L not copied: %+v", sell)
	}
	if sell.Quantity != 19 {
		t.Errorf("sell quantity: %d", sell.Quantity)
	}
}

// final == initial + Σ sell P/L − Σ commissions
func TestCapitalConservation(t *testing.T) {
	b := newTestBacktester(50000)
	legs := []struct {
		sym    string
		action strategy.Action
		price  float64
	}{
		{"AAPL", strategy.ActionBuy, 100},
		{"MSFT", strategy.ActionBuy, 300},
		{"AAPL", strategy.ActionSell, 95},
		{"MSFT", strategy.ActionSell, 330},
		{"AAPL", strategy.ActionBuy, 90},
		{"AAPL", strategy.ActionSell, 99},
	}
	for i, l := range legs {
		if !b.ExecuteTrade(l.sym, l.action, l.price, day(2024, 1, 2+i), "") {
			t.Fatalf("leg %d rejected", i)
		}
	}

	st := b.State()
	var sellPnL float64
	for _, tr := range st.Trades {
		if tr.Action == strategy.ActionSell {
			sellPnL += tr.ProfitLoss
		}
	}
	assertClose(t, "final capital", st.Capital, 50000+sellPnL-st.CommissionPaid, 1e-6)
}

// ────────────────────────────────────────────────────────────
// Stop-loss / take-profit
// ────────────────────────────────────────────────────────────

func TestStopLoss(t *testing.T) {
	b := newTestBacktester(10000)
	b.ExecuteTrade("AAPL", strategy.ActionBuy, 100, day(2024, 1, 2), "")
	pos, _ := b.Position("AAPL")
	assertClose(t, "execution price", pos.EntryPrice, 100.05, 1e-9)

	if !b.CheckStopLossTakeProfit("AAPL", 94, day(2024, 1, 10), 95, 0) {
		t.Fatal("stop loss did not fire")
	}
	if _, ok := b.Position("AAPL"); ok {
		t.Fatal("position still open")
	}
	closed := b.State().ClosedPositions[0]
	if closed.ProfitLoss >= 0 {
		t.Errorf("expected loss, got %v", closed.ProfitLoss)
	}
	last := b.State().Trades[1]
	if last.Reason != "Stop Loss" {
		t.Errorf("reason: %q", last.Reason)
	}
}

func TestTakeProfit(t *testing.T) {
	b := newTestBacktester(10000)
	b.ExecuteTrade("AAPL", strategy.ActionBuy, 100, day(2024, 1, 2), "")
	if b.CheckStopLossTakeProfit("AAPL", 104, day(2024, 1, 3), 95, 105) {
		t.Fatal("fired between levels")
	}
	if !b.CheckStopLossTakeProfit("AAPL", 106, day(2024, 1, 4), 95, 105) {
		t.Fatal("take profit did not fire")
	}
	if r := b.State().Trades[1].Reason; r != "Take Profit" {
		t.Errorf("reason: %q", r)
	}
}

func TestStopLossCheckedFirst(t *testing.T) {
	b := newTestBacktester(10000)
	b.ExecuteTrade("AAPL", strategy.ActionBuy, 100, day(2024, 1, 2), "")
	// both conditions hold at 94
	if !b.CheckStopLossTakeProfit("AAPL", 94, day(2024, 1, 3), 95, 90) {
		t.Fatal("nothing fired")
	}
	if r := b.State().Trades[1].Reason; r != "Stop Loss" {
		t.Errorf("reason: got %q, want Stop Loss", r)
	}
}

func TestStopLoss_NoPositionOrLevels(t *testing.T) {
	b := newTestBacktester(10000)
	if b.CheckStopLossTakeProfit("AAPL", 1, day(2024, 1, 3), 95, 105) {
		t.Error("fired with no position")
	}
	b.ExecuteTrade("AAPL", strategy.ActionBuy, 100, day(2024, 1, 2), "")
	if b.CheckStopLossTakeProfit("AAPL", 1, day(2024, 1, 3), 0, 0) {
		t.Error("fired with zero levels")
	}
}

// ────────────────────────────────────────────────────────────
// Valuation and results
// ────────────────────────────────────────────────────────────

func TestUpdatePortfolioValue(t *testing.T) {
	b := newTestBacktester(10000)
	b.ExecuteTrade("AAPL", strategy.ActionBuy, 100, day(2024, 1, 2), "")
	capital := b.Capital()

	v := b.UpdatePortfolioValue(day(2024, 1, 2), map[string]float64{"AAPL": 110})
	assertClose(t, "value", v, capital+19*110, 1e-9)

	// missing price falls back to the last one seen
	v = b.UpdatePortfolioValue(day(2024, 1, 3), map[string]float64{})
	assertClose(t, "carried value", v, capital+19*110, 1e-9)

	if n := len(b.State().PortfolioValues); n != 2 {
		t.Errorf("equity points: %d", n)
	}
}

func TestResults_EmptyWithoutValues(t *testing.T) {
	b := newTestBacktester(10000)
	b.ExecuteTrade("AAPL", strategy.ActionBuy, 100, day(2024, 1, 2), "")
	if res := b.Results(); !res.Empty() {
		t.Error("expected empty results before any valuation")
	}
}

func TestResults(t *testing.T) {
	b := newTestBacktester(10000)
	d := day(2024, 1, 2)
	b.ExecuteTrade("AAPL", strategy.ActionBuy, 100, d, "")
	b.ExecuteTrade("AAPL", strategy.ActionSell, 120, d.AddDate(0, 0, 1), "")
	b.ExecuteTrade("MSFT", strategy.ActionBuy, 100, d.AddDate(0, 0, 2), "")
	b.ExecuteTrade("MSFT", strategy.ActionSell, 90, d.AddDate(0, 0, 3), "")
	b.UpdatePortfolioValue(d.AddDate(0, 0, 3), nil)

	res := b.Results()
	if res.Empty() {
		t.Fatal("unexpected empty results")
	}
	if res.TotalTrades != 2 || res.WinningTrades != 1 || res.LosingTrades != 1 {
		t.Errorf("counts: %d/%d/%d", res.TotalTrades, res.WinningTrades, res.LosingTrades)
	}
	assertClose(t, "win rate", res.WinRate, 50, 1e-12)

	win := res.ClosedPositions[0].ProfitLoss
	loss := res.ClosedPositions[1].ProfitLoss
	assertClose(t, "avg win", res.AvgWin, win, 1e-12)
	assertClose(t, "avg loss", res.AvgLoss, loss, 1e-12)
	assertClose(t, "profit factor", float64(res.ProfitFactor), win/-loss, 1e-12)
	assertClose(t, "total return", res.TotalReturnPct, (res.FinalCapital-10000)/10000*100, 1e-12)
	if res.TotalReturn != res.TotalReturnPct {
		t.Error("total_return alias mismatch")
	}
}

func TestResults_DrawdownFromInitialCapital(t *testing.T) {
	b := newTestBacktester(10000)
	b.UpdatePortfolioValue(day(2024, 1, 2), nil)
	b.state.PortfolioValues[0].Value = 9000

	res := b.Results()
	assertClose(t, "max drawdown", res.MaxDrawdown, 10, 1e-9)
}

// ────────────────────────────────────────────────────────────
// History
// ────────────────────────────────────────────────────────────

func TestTradeHistoryCSV(t *testing.T) {
	b := newTestBacktester(10000)
	b.ExecuteTrade("AAPL", strategy.ActionBuy, 100, day(2024, 1, 2), "Golden Cross, MACD Bullish")
	b.ExecuteTrade("AAPL", strategy.ActionSell, 110, day(2024, 1, 5), "Take Profit")

	rows := b.TradeHistory()
	if len(rows) != 2 {
		t.Fatalf("rows: %d", len(rows))
	}
	assertClose(t, "total", rows[0].Total, rows[0].Price*float64(rows[0].Quantity), 1e-9)

	var sb strings.Builder
	if err := WriteCSV(&sb, rows); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(sb.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("lines: %d\n%s", len(lines), sb.String())
	}
	if !strings.HasPrefix(lines[0], "date,symbol,action") {
		t.Errorf("header: %s", lines[0])
	}
	if !strings.HasPrefix(lines[1], "2024-01-02,AAPL,BUY,100.05,19,") {
		t.Errorf("buy row: %s", lines[1])
	}
	if !strings.Contains(lines[1], `"Golden Cross, MACD Bullish"`) {
		t.Errorf("reason should be quoted: %s", lines[1])
	}
}

func TestJoinReasons(t *testing.T) {
	if got := joinReasons([]string{"a", "b"}); got != "a, b" {
		t.Errorf("got %q", got)
	}
	long := joinReasons([]string{strings.Repeat("x", 80), strings.Repeat("y", 80)})
	if len(long) != 100 {
		t.Errorf("length %d, want 100", len(long))
	}
}
