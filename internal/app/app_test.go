package app

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"stock-analyzer/config"
	"stock-analyzer/internal/metrics"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestOpenProviderCSV(t *testing.T) {
	dir := t.TempDir()
	csv := "Date,Open,High,Low,Close,Volume\n2024-01-02,1,2,0.5,1.5,100\n2024-01-03,1.5,2.5,1,2,200\n"
	if err := os.WriteFile(filepath.Join(dir, "AAPL.csv"), []byte(csv), 0o644); err != nil {
		t.Fatal(err)
	}

	m := metrics.NewMetrics(prometheus.NewRegistry())
	p, err := OpenProvider(&config.Config{DataSource: config.SourceCSV, CSVDir: dir}, m, quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()
	if p.Cache != nil || p.Reader != nil {
		t.Errorf("unexpected cache/reader: %+v", p)
	}

	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars, err := p.FetchBars(context.Background(), "AAPL", from, from.AddDate(0, 1, 0))
	if err != nil || bars.Len() != 2 {
		t.Fatalf("bars=%d err=%v", bars.Len(), err)
	}
	if got := testutil.ToFloat64(m.FetchTotal.WithLabelValues("csv", "ok")); got != 1 {
		t.Errorf("instrumented fetches = %v, want 1", got)
	}
}

func TestOpenProviderSQLite(t *testing.T) {
	cfg := &config.Config{DataSource: config.SourceSQLite, SQLitePath: filepath.Join(t.TempDir(), "bars.db")}
	p, err := OpenProvider(cfg, nil, quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	if p.Reader == nil {
		t.Fatal("sqlite reader not set")
	}
	if err := p.Close(); err != nil {
		t.Errorf("close: %v", err)
	}
}

func TestOpenProviderRedisUnavailable(t *testing.T) {
	cfg := &config.Config{DataSource: config.SourceCSV, CSVDir: t.TempDir(), RedisAddr: "127.0.0.1:1"}
	p, err := OpenProvider(cfg, nil, quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()
	if p.Cache != nil {
		t.Error("cache enabled despite unreachable redis")
	}
}

func TestOpenProviderUnknownSource(t *testing.T) {
	if _, err := OpenProvider(&config.Config{DataSource: "ftp"}, nil, quietLogger()); err == nil {
		t.Error("expected error")
	}
}

func TestNotifierChannels(t *testing.T) {
	cfg := &config.Config{}
	if n := Notifier(cfg, quietLogger()).Len(); n != 1 {
		t.Errorf("default channels = %d, want 1 (log)", n)
	}

	cfg = &config.Config{
		TelegramBotToken: "t", TelegramChatID: "c",
		WebhookURL: "http://example.invalid/hook",
		SMTPHost:   "smtp.example.invalid", AlertEmail: "a@example.invalid",
	}
	if n := Notifier(cfg, quietLogger()).Len(); n != 4 {
		t.Errorf("channels = %d, want 4", n)
	}
}

func TestScannerConfig(t *testing.T) {
	p := config.DefaultParams()
	p.Signal.MinConfidence = 0.7
	c := ScannerConfig(p)
	if c.MinConfidence != 0.7 || c.HotThreshold != 0.8 {
		t.Errorf("config = %+v", c)
	}
}
