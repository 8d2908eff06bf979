package marketdata

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"stock-analyzer/internal/model"
)

const sampleCSV = `Date,Open,High,Low,Close,Adj Close,Volume
2024-01-03,184.22,185.88,183.43,184.25,183.5,58414500
2024-01-02,187.15,188.44,183.89,185.64,184.9,82488700
2024-01-04,182.15,183.09,180.88,181.91,181.2,71983600
bad-date,1,1,1,1,1,1
2024-01-05,181.99,182.76,180.17,null,181.0,62303300
2024-01-08,182.09,185.60,181.50,185.56,184.8,59144500
`

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ────────────────────────────────────────────────────────────
// CSV parsing
// ────────────────────────────────────────────────────────────

func TestParseCSV(t *testing.T) {
	s, err := ParseCSV(strings.NewReader(sampleCSV))
	if err != nil {
		t.Fatalf("ParseCSV: %v", err)
	}
	// bad date and null close are skipped
	if s.Len() != 4 {
		t.Fatalf("bars: got %d, want 4", s.Len())
	}
	if !s[0].Date.Equal(day(2024, 1, 2)) {
		t.Errorf("not sorted: first %s", s[0].Date)
	}
	if s[0].Close != 185.64 || s[0].Volume != 82488700 {
		t.Errorf("first bar: %+v", s[0])
	}
}

func TestParseCSV_ColumnOrderAndNoVolume(t *testing.T) {
	doc := "close,low,high,open,date\n10,9,11,9.5,2024-02-01\n"
	s, err := ParseCSV(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("ParseCSV: %v", err)
	}
	if s.Len() != 1 || s[0].Close != 10 || s[0].Open != 9.5 || s[0].Volume != 0 {
		t.Errorf("bar: %+v", s)
	}
}

func TestParseCSV_Errors(t *testing.T) {
	if _, err := ParseCSV(strings.NewReader("")); !errors.Is(err, model.ErrNoData) {
		t.Errorf("empty input: %v", err)
	}
	if _, err := ParseCSV(strings.NewReader("Date,Open\n2024-01-02,1\n")); err == nil {
		t.Error("missing columns: expected error")
	}
	if _, err := ParseCSV(strings.NewReader("Date,Open,High,Low,Close\n")); !errors.Is(err, model.ErrNoData) {
		t.Errorf("header only: %v", err)
	}
}

func TestWriteCSV_ReadBack(t *testing.T) {
	in, _ := ParseCSV(strings.NewReader(sampleCSV))
	var buf bytes.Buffer
	if err := WriteCSV(&buf, in); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}
	out, err := ParseCSV(&buf)
	if err != nil {
		t.Fatalf("ParseCSV: %v", err)
	}
	if out.Len() != in.Len() {
		t.Fatalf("len %d != %d", out.Len(), in.Len())
	}
	for i := range in {
		if in[i] != out[i] {
			t.Errorf("bar %d: %+v != %+v", i, out[i], in[i])
		}
	}
}

// ────────────────────────────────────────────────────────────
// File provider
// ────────────────────────────────────────────────────────────

func TestFileProvider(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "AAPL.csv"), []byte(sampleCSV), 0o644); err != nil {
		t.Fatal(err)
	}
	os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644)
	p := NewFileProvider(dir)
	ctx := context.Background()

	s, err := p.FetchBars(ctx, "aapl", day(2024, 1, 3), day(2024, 1, 4))
	if err != nil {
		t.Fatalf("FetchBars: %v", err)
	}
	if s.Len() != 2 {
		t.Errorf("range filter: got %d bars", s.Len())
	}

	if _, err := p.FetchBars(ctx, "MSFT", day(2024, 1, 1), day(2024, 2, 1)); !errors.Is(err, model.ErrNoData) {
		t.Errorf("missing file: %v", err)
	}
	if _, err := p.FetchBars(ctx, "AAPL", day(2025, 1, 1), day(2025, 2, 1)); !errors.Is(err, model.ErrNoData) {
		t.Errorf("out of range: %v", err)
	}

	syms, err := p.Symbols(ctx)
	if err != nil || len(syms) != 1 || syms[0] != "AAPL" {
		t.Errorf("Symbols: %v %v", syms, err)
	}
}

// ────────────────────────────────────────────────────────────
// HTTP provider
// ────────────────────────────────────────────────────────────

func TestHTTPProvider(t *testing.T) {
	var gotQuery atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery.Store(r.URL.Query())
		w.Write([]byte(sampleCSV))
	}))
	defer srv.Close()

	p := NewHTTPProvider(WithBaseURL(srv.URL+"/"), WithRateLimit(100))
	s, err := p.FetchBars(context.Background(), "AAPL", day(2024, 1, 2), day(2024, 1, 8))
	if err != nil {
		t.Fatalf("FetchBars: %v", err)
	}
	if s.Len() != 4 {
		t.Errorf("bars: %d", s.Len())
	}

	q := gotQuery.Load().(interface{ Get(string) string })
	if q.Get("s") != "aapl.us" || q.Get("i") != "d" || q.Get("d1") != "20240102" || q.Get("d2") != "20240108" {
		t.Errorf("query: s=%s i=%s d1=%s d2=%s", q.Get("s"), q.Get("i"), q.Get("d1"), q.Get("d2"))
	}
}

func TestHTTPProvider_NoData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("No data"))
	}))
	defer srv.Close()

	p := NewHTTPProvider(WithBaseURL(srv.URL), WithRateLimit(100))
	if _, err := p.FetchBars(context.Background(), "ZZZZ", day(2024, 1, 1), day(2024, 2, 1)); !errors.Is(err, model.ErrNoData) {
		t.Errorf("expected ErrNoData, got %v", err)
	}
}

func TestHTTPProvider_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := NewHTTPProvider(WithBaseURL(srv.URL), WithRateLimit(100))
	_, err := p.FetchBars(context.Background(), "AAPL", day(2024, 1, 1), day(2024, 2, 1))
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusTooManyRequests {
		t.Errorf("expected APIError 429, got %v", err)
	}
}

func TestHTTPProvider_RateLimitHonorsContext(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(sampleCSV))
	}))
	defer srv.Close()

	// one token per hour: the second call must wait and hit the deadline
	p := NewHTTPProvider(WithBaseURL(srv.URL), WithRateLimit(1.0/3600))
	ctx := context.Background()
	if _, err := p.FetchBars(ctx, "AAPL", day(2024, 1, 1), day(2024, 2, 1)); err != nil {
		t.Fatalf("first call: %v", err)
	}
	ctx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	if _, err := p.FetchBars(ctx, "AAPL", day(2024, 1, 1), day(2024, 2, 1)); err == nil {
		t.Fatal("second call should be rate limited")
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("server calls: %d", n)
	}
}
