package marketdata

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"stock-analyzer/internal/model"
)

// FileProvider reads <dir>/<SYMBOL>.csv for each request. Files are
// re-read on every call so edits on disk are picked up.
type FileProvider struct {
	dir string
}

// NewFileProvider creates a provider rooted at dir.
func NewFileProvider(dir string) *FileProvider {
	return &FileProvider{dir: dir}
}

// Path returns the file path for symbol.
func (p *FileProvider) Path(symbol string) string {
	return filepath.Join(p.dir, strings.ToUpper(symbol)+".csv")
}

// FetchBars implements model.DataProvider. A missing file is ErrNoData.
func (p *FileProvider) FetchBars(ctx context.Context, symbol string, from, to time.Time) (model.Series, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(p.Path(symbol))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, model.ErrNoData
		}
		return nil, fmt.Errorf("open %s csv: %w", symbol, err)
	}
	defer f.Close()

	series, err := ParseCSV(f)
	if err != nil {
		if errors.Is(err, model.ErrNoData) {
			return nil, err
		}
		return nil, fmt.Errorf("parse %s csv: %w", symbol, err)
	}
	out := series.Between(model.Day(from), model.Day(to))
	if out.Empty() {
		return nil, model.ErrNoData
	}
	return out, nil
}

// Symbols lists the symbols that have a CSV file in the directory.
func (p *FileProvider) Symbols(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(p.dir)
	if err != nil {
		return nil, fmt.Errorf("list csv dir: %w", err)
	}
	var out []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.EqualFold(filepath.Ext(name), ".csv") {
			continue
		}
		out = append(out, strings.ToUpper(strings.TrimSuffix(name, filepath.Ext(name))))
	}
	sort.Strings(out)
	return out, nil
}

// Close is a no-op; it lets FileProvider satisfy model.BarReader.
func (p *FileProvider) Close() error { return nil }
