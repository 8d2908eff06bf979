package backtest

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"
)

// TradeRow is one display row of the trade history.
type TradeRow struct {
	Date          time.Time `json:"date"`
	Symbol        string    `json:"symbol"`
	Action        string    `json:"action"`
	Price         float64   `json:"price"`
	Quantity      int64     `json:"quantity"`
	Total         float64   `json:"total"`
	ProfitLoss    float64   `json:"profit_loss"`
	ProfitLossPct float64   `json:"profit_loss_pct"`
	Reason        string    `json:"reason"`
}

// TradeHistory flattens the executed trades into display rows.
func (b *Backtester) TradeHistory() []TradeRow {
	return TradeRows(b.state.Trades)
}

// TradeRows converts trades to display rows.
func TradeRows(trades []Trade) []TradeRow {
	rows := make([]TradeRow, len(trades))
	for i, t := range trades {
		rows[i] = TradeRow{
			Date:          t.Date,
			Symbol:        t.Symbol,
			Action:        string(t.Action),
			Price:         t.Price,
			Quantity:      t.Quantity,
			Total:         t.Price * float64(t.Quantity),
			ProfitLoss:    t.ProfitLoss,
			ProfitLossPct: t.ProfitLossPct,
			Reason:        t.Reason,
		}
	}
	return rows
}

// WriteCSV writes the rows with a header line.
func WriteCSV(w io.Writer, rows []TradeRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{
		"date", "symbol", "action", "price", "quantity", "total", "profit_loss", "profit_loss_pct", "reason",
	}); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write([]string{
			r.Date.Format("2006-01-02"), r.Symbol, r.Action,
			formatF(r.Price), strconv.FormatInt(r.Quantity, 10), formatF(r.Total),
			formatF(r.ProfitLoss), formatF(r.ProfitLossPct), r.Reason,
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatF(f float64) string { return strconv.FormatFloat(f, 'f', 2, 64) }
