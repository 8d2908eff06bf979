package model

import (
	"context"
	"errors"
	"time"
)

// ErrNoData is returned by providers that have nothing for a symbol/range.
var ErrNoData = errors.New("no data")

// ── Data Ports ──
// These interfaces decouple the analysis core from concrete data sources
// (CSV files, HTTP, SQLite, Redis cache). Each adapter satisfies one or more.

// DataProvider fetches daily bars for a symbol.
type DataProvider interface {
	// FetchBars returns bars with from <= date <= to in ascending order.
	// An empty series or ErrNoData means the symbol has no data; callers
	// treat both the same way.
	FetchBars(ctx context.Context, symbol string, from, to time.Time) (Series, error)
}

// ProviderFunc adapts a function to the DataProvider interface.
type ProviderFunc func(ctx context.Context, symbol string, from, to time.Time) (Series, error)

func (f ProviderFunc) FetchBars(ctx context.Context, symbol string, from, to time.Time) (Series, error) {
	return f(ctx, symbol, from, to)
}

// BarWriter persists daily bars.
type BarWriter interface {
	// WriteBars upserts bars for a symbol in a single batch.
	WriteBars(ctx context.Context, symbol string, bars Series) error

	// Close releases underlying resources.
	Close() error
}

// BarReader is a DataProvider backed by storage.
type BarReader interface {
	DataProvider

	// Symbols lists symbols with at least one stored bar.
	Symbols(ctx context.Context) ([]string, error)

	// Close releases underlying resources.
	Close() error
}
