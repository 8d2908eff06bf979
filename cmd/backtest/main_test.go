package main

import (
	"encoding/json"
	"errors"
	"math"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"stock-analyzer/internal/backtest"
	"stock-analyzer/internal/performance"
)

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func sampleResults() backtest.Results {
	d := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	return backtest.Results{
		InitialCapital: 10000,
		FinalCapital:   10100,
		ProfitFactor:   performance.Ratio(math.Inf(1)),
		EquityCurve:    []backtest.EquityPoint{{Date: d, Value: 10000}, {Date: d.AddDate(0, 0, 1), Value: 10100}},
	}
}

func TestWriteResultJSON(t *testing.T) {
	res := sampleResults()
	var sb strings.Builder
	if err := writeResultJSON(&sb, "run-1", res, res.Report(nil)); err != nil {
		t.Fatalf("writeResultJSON: %v", err)
	}
	var out struct {
		RunID   string         `json:"run_id"`
		Results map[string]any `json:"results"`
		Report  map[string]any `json:"report"`
	}
	if err := json.Unmarshal([]byte(sb.String()), &out); err != nil {
		t.Fatalf("invalid json: %v\n%s", err, sb.String())
	}
	if out.RunID != "run-1" || out.Report == nil {
		t.Errorf("got %+v", out)
	}
	if pf, ok := out.Results["profit_factor"]; !ok || pf != nil {
		t.Errorf("profit factor without losses should be null, got %v", pf)
	}
}

func TestWriteResultJSON_WriteError(t *testing.T) {
	res := sampleResults()
	if err := writeResultJSON(failingWriter{}, "run-1", res, res.Report(nil)); err == nil {
		t.Fatal("expected write error")
	}
}

func TestWriteTradeCSV_BadPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "trades.csv")
	if err := writeTradeCSV(path, nil); err == nil {
		t.Fatal("expected error for missing directory")
	}
}
