// Package execution persists backtest runs and their simulated fills to a
// SQLite journal for later comparison and audit.
package execution

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"stock-analyzer/internal/backtest"
	"stock-analyzer/internal/performance"
)

// Journal persists backtest runs to SQLite.
type Journal struct {
	mu sync.Mutex
	db *sql.DB
}

// NewJournal opens (or creates) a SQLite journal database.
func NewJournal(dbPath string) (*Journal, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id               TEXT PRIMARY KEY,
		strategy         TEXT NOT NULL,
		symbols          TEXT NOT NULL,
		start_date       TEXT NOT NULL,
		end_date         TEXT NOT NULL,
		min_confidence   REAL NOT NULL,
		initial_capital  REAL NOT NULL,
		final_capital    REAL NOT NULL,
		total_return_pct REAL NOT NULL,
		total_trades     INTEGER NOT NULL,
		win_rate         REAL NOT NULL,
		profit_factor    REAL,
		max_drawdown     REAL NOT NULL,
		config           TEXT,
		report           TEXT,
		created_at       DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE TABLE IF NOT EXISTS trades (
		id              INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id          TEXT NOT NULL REFERENCES runs(id),
		symbol          TEXT NOT NULL,
		action          TEXT NOT NULL,
		quantity        INTEGER NOT NULL,
		price           REAL NOT NULL,
		commission      REAL NOT NULL DEFAULT 0,
		profit_loss     REAL NOT NULL DEFAULT 0,
		profit_loss_pct REAL NOT NULL DEFAULT 0,
		reason          TEXT,
		trade_date      TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_trades_run ON trades(run_id);
	CREATE INDEX IF NOT EXISTS idx_trades_symbol ON trades(symbol);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}

	slog.Info("journal opened", "path", dbPath)
	return &Journal{db: db}, nil
}

// DB returns the underlying sql.DB for health checks.
func (j *Journal) DB() *sql.DB { return j.db }

// RunMeta describes the inputs of a backtest run.
type RunMeta struct {
	ID            string // generated when empty
	Strategy      string
	Symbols       []string
	Start, End    time.Time
	MinConfidence float64
	Config        backtest.Config
}

// NewRunID returns a fresh run identifier.
func NewRunID() string { return uuid.NewString() }

// RecordRun stores a run summary and all its trades in one transaction and
// returns the run ID.
func (j *Journal) RecordRun(ctx context.Context, meta RunMeta, res backtest.Results, report performance.Report) (string, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	id := meta.ID
	if id == "" {
		id = NewRunID()
	}
	cfgJSON, err := json.Marshal(meta.Config)
	if err != nil {
		return "", fmt.Errorf("marshal config: %w", err)
	}
	reportJSON, err := json.Marshal(report)
	if err != nil {
		return "", fmt.Errorf("marshal report: %w", err)
	}

	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, strategy, symbols, start_date, end_date, min_confidence,
			initial_capital, final_capital, total_return_pct, total_trades, win_rate,
			profit_factor, max_drawdown, config, report)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, meta.Strategy, strings.Join(meta.Symbols, ","),
		meta.Start.Format("2006-01-02"), meta.End.Format("2006-01-02"), meta.MinConfidence,
		res.InitialCapital, res.FinalCapital, res.TotalReturnPct, res.TotalTrades, res.WinRate,
		finiteOrNull(float64(res.ProfitFactor)), res.MaxDrawdown, string(cfgJSON), string(reportJSON),
	)
	if err != nil {
		tx.Rollback()
		return "", fmt.Errorf("insert run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO trades (run_id, symbol, action, quantity, price, commission, profit_loss, profit_loss_pct, reason, trade_date)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return "", err
	}
	defer stmt.Close()

	for _, t := range res.Trades {
		if _, err := stmt.ExecContext(ctx, id, t.Symbol, string(t.Action), t.Quantity, t.Price,
			t.Commission, t.ProfitLoss, t.ProfitLossPct, t.Reason, t.Date.Format("2006-01-02")); err != nil {
			tx.Rollback()
			return "", fmt.Errorf("insert trade: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}
	return id, nil
}

func finiteOrNull(f float64) any {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return f
}

// RunRecord is a row from the runs table.
type RunRecord struct {
	ID             string          `json:"id"`
	Strategy       string          `json:"strategy"`
	Symbols        []string        `json:"symbols"`
	StartDate      string          `json:"start_date"`
	EndDate        string          `json:"end_date"`
	MinConfidence  float64         `json:"min_confidence"`
	InitialCapital float64         `json:"initial_capital"`
	FinalCapital   float64         `json:"final_capital"`
	TotalReturnPct float64         `json:"total_return_pct"`
	TotalTrades    int             `json:"total_trades"`
	WinRate        float64         `json:"win_rate"`
	ProfitFactor   *float64        `json:"profit_factor"` // nil when unbounded
	MaxDrawdown    float64         `json:"max_drawdown"`
	Report         json.RawMessage `json:"report,omitempty"`
	CreatedAt      string          `json:"created_at"`
}

// ListRuns returns the last N runs, newest first.
func (j *Journal) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	rows, err := j.db.QueryContext(ctx,
		`SELECT id, strategy, symbols, start_date, end_date, min_confidence, initial_capital,
			final_capital, total_return_pct, total_trades, win_rate, profit_factor,
			max_drawdown, COALESCE(report, ''), created_at
		 FROM runs ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		var r RunRecord
		var symbols, report string
		var pf sql.NullFloat64
		if err := rows.Scan(&r.ID, &r.Strategy, &symbols, &r.StartDate, &r.EndDate, &r.MinConfidence,
			&r.InitialCapital, &r.FinalCapital, &r.TotalReturnPct, &r.TotalTrades, &r.WinRate, &pf,
			&r.MaxDrawdown, &report, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if symbols != "" {
			r.Symbols = strings.Split(symbols, ",")
		}
		if pf.Valid {
			v := pf.Float64
			r.ProfitFactor = &v
		}
		if report != "" {
			r.Report = json.RawMessage(report)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// TradeRecord is a row from the trades table.
type TradeRecord struct {
	ID            int64   `json:"id"`
	RunID         string  `json:"run_id"`
	Symbol        string  `json:"symbol"`
	Action        string  `json:"action"`
	Quantity      int64   `json:"quantity"`
	Price         float64 `json:"price"`
	Commission    float64 `json:"commission"`
	ProfitLoss    float64 `json:"profit_loss"`
	ProfitLossPct float64 `json:"profit_loss_pct"`
	Reason        string  `json:"reason"`
	TradeDate     string  `json:"trade_date"`
}

// GetTrades returns the trades of a run in execution order.
func (j *Journal) GetTrades(ctx context.Context, runID string) ([]TradeRecord, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	rows, err := j.db.QueryContext(ctx,
		`SELECT id, run_id, symbol, action, quantity, price, commission, profit_loss, profit_loss_pct,
			COALESCE(reason, ''), trade_date
		 FROM trades WHERE run_id = ? ORDER BY id ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []TradeRecord
	for rows.Next() {
		var t TradeRecord
		if err := rows.Scan(&t.ID, &t.RunID, &t.Symbol, &t.Action, &t.Quantity, &t.Price,
			&t.Commission, &t.ProfitLoss, &t.ProfitLossPct, &t.Reason, &t.TradeDate); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// Close closes the journal database.
func (j *Journal) Close() error {
	return j.db.Close()
}
