package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"stock-analyzer/internal/model"
)

// Reader serves stored bars. It implements model.BarReader.
type Reader struct {
	db *sql.DB
}

// NewReader opens a SQLite connection for reading.
func NewReader(dbPath string) (*Reader, error) {
	db, err := open(dbPath, 2)
	if err != nil {
		return nil, fmt.Errorf("sqlite open reader: %w", err)
	}
	slog.Info("sqlite reader opened", "path", dbPath)
	return &Reader{db: db}, nil
}

// DB returns the underlying sql.DB for health checks.
func (r *Reader) DB() *sql.DB { return r.db }

// FetchBars returns stored bars with from <= date <= to, ascending.
// ErrNoData when none match.
func (r *Reader) FetchBars(ctx context.Context, symbol string, from, to time.Time) (model.Series, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT date, open, high, low, close, volume
		FROM bars_daily
		WHERE symbol = ? AND date >= ? AND date <= ?
		ORDER BY date ASC
	`, strings.ToUpper(symbol), from.Format(dateLayout), to.Format(dateLayout))
	if err != nil {
		return nil, fmt.Errorf("sqlite query bars: %w", err)
	}
	defer rows.Close()

	var bars model.Series
	for rows.Next() {
		var b model.PriceBar
		var date string
		if err := rows.Scan(&date, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("sqlite scan bars: %w", err)
		}
		if b.Date, err = time.Parse(dateLayout, date); err != nil {
			return nil, fmt.Errorf("sqlite bad date %q: %w", date, err)
		}
		bars = append(bars, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return nil, model.ErrNoData
	}
	return bars, nil
}

// Symbols lists stored symbols in alphabetical order.
func (r *Reader) Symbols(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT symbol FROM bars_daily ORDER BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("sqlite query symbols: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("sqlite scan symbols: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Count returns the number of stored bars for symbol.
func (r *Reader) Count(ctx context.Context, symbol string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM bars_daily WHERE symbol = ?`, strings.ToUpper(symbol),
	).Scan(&n)
	return n, err
}

// Close closes the database.
func (r *Reader) Close() error {
	return r.db.Close()
}
