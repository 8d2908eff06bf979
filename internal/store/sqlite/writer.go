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

const (
	defaultBatchSize  = 20
	defaultFlushDelay = 200 * time.Millisecond
)

// WriterConfig configures the SQLite writer.
type WriterConfig struct {
	DBPath string // path to SQLite database file, e.g. "data/bars.db"
}

// SymbolBars is one symbol's download handed to Writer.Run.
type SymbolBars struct {
	Symbol string
	Bars   model.Series
}

// Writer is a single-connection SQLite writer with transaction batching.
type Writer struct {
	db *sql.DB

	// OnCommit, when set, is called by Run after each committed batch.
	OnCommit func(bars int)
}

// DB returns the underlying sql.DB for health checks.
func (w *Writer) DB() *sql.DB { return w.db }

// New creates a new SQLite Writer, initializes the database with WAL mode and schema.
func New(cfg WriterConfig) (*Writer, error) {
	// single writer connection
	db, err := open(cfg.DBPath, 1)
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	slog.Info("sqlite opened", "path", cfg.DBPath)
	return &Writer{db: db}, nil
}

// WriteBars upserts bars for a symbol in a single transaction. A bar for
// an existing (symbol, date) replaces the stored one.
func (w *Writer) WriteBars(ctx context.Context, symbol string, bars model.Series) error {
	if bars.Empty() {
		return nil
	}
	return w.insertBatch(ctx, []SymbolBars{{Symbol: symbol, Bars: bars}})
}

// Run reads downloads from in and inserts them in batched transactions.
// Flushes every batchSize symbols OR every flushDelay, whichever first.
// Blocks until ctx is cancelled or in is closed, and returns the number of
// bars committed.
func (w *Writer) Run(ctx context.Context, in <-chan SymbolBars) int {
	batch := make([]SymbolBars, 0, defaultBatchSize)
	timer := time.NewTimer(defaultFlushDelay)
	defer timer.Stop()

	written := 0
	flush := func() {
		if len(batch) == 0 {
			return
		}
		start := time.Now()
		// a cancelled ctx must not lose the final batch
		if err := w.insertBatch(context.WithoutCancel(ctx), batch); err != nil {
			slog.Error("sqlite batch insert failed", "symbols", len(batch), "err", err)
		} else {
			n := 0
			for _, sb := range batch {
				n += sb.Bars.Len()
			}
			written += n
			if w.OnCommit != nil {
				w.OnCommit(n)
			}
			slog.Debug("sqlite batch committed", "symbols", len(batch), "bars", n, "elapsed", time.Since(start))
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return written

		case sb, ok := <-in:
			if !ok {
				flush()
				return written
			}
			if sb.Bars.Empty() {
				continue
			}
			batch = append(batch, sb)
			if len(batch) >= defaultBatchSize {
				flush()
				timer.Reset(defaultFlushDelay)
			}

		case <-timer.C:
			flush()
			timer.Reset(defaultFlushDelay)
		}
	}
}

// insertBatch writes all bars of the batch in a single transaction.
func (w *Writer) insertBatch(ctx context.Context, batch []SymbolBars) error {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO bars_daily (symbol, date, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, sb := range batch {
		sym := strings.ToUpper(sb.Symbol)
		for _, b := range sb.Bars {
			if _, err := stmt.ExecContext(ctx, sym, b.Date.Format(dateLayout), b.Open, b.High, b.Low, b.Close, b.Volume); err != nil {
				tx.Rollback()
				return fmt.Errorf("insert %s %s: %w", sym, b.Date.Format(dateLayout), err)
			}
		}
	}

	return tx.Commit()
}

// LastDate returns the most recent stored bar date for symbol. ok is false
// when nothing is stored.
func (w *Writer) LastDate(ctx context.Context, symbol string) (last time.Time, ok bool, err error) {
	var s sql.NullString
	err = w.db.QueryRowContext(ctx,
		`SELECT MAX(date) FROM bars_daily WHERE symbol = ?`, strings.ToUpper(symbol),
	).Scan(&s)
	if err != nil {
		return time.Time{}, false, err
	}
	if !s.Valid {
		return time.Time{}, false, nil
	}
	t, err := time.Parse(dateLayout, s.String)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse stored date %q: %w", s.String, err)
	}
	return t, true, nil
}

// Close closes the database.
func (w *Writer) Close() error {
	return w.db.Close()
}
