package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"LOG_LEVEL", "SQLITE_PATH", "REDIS_ADDR", "REDIS_TTL", "DATA_SOURCE",
		"HTTP_RATE_LIMIT", "SMTP_PORT", "SYMBOLS", "PARAMS_FILE", "HOLIDAYS",
	} {
		t.Setenv(k, "")
	}
	// keep godotenv from picking up a developer .env
	t.Chdir(t.TempDir())
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SQLitePath != "data/bars.db" || cfg.DataSource != SourceSQLite {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if cfg.RedisAddr != "" {
		t.Error("cache should be disabled by default")
	}
	if cfg.RedisTTL != time.Hour || cfg.HTTPRateLimit != 2 || cfg.SMTPPort != 587 {
		t.Errorf("numeric defaults: ttl %v rate %v port %d", cfg.RedisTTL, cfg.HTTPRateLimit, cfg.SMTPPort)
	}
	if len(cfg.Symbols) != len(DefaultSymbols) {
		t.Errorf("symbols: %v", cfg.Symbols)
	}
}

func TestLoad_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATA_SOURCE", "HTTP")
	t.Setenv("REDIS_TTL", "15m")
	t.Setenv("SYMBOLS", "aapl, msft,,AAPL")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DataSource != SourceHTTP {
		t.Errorf("data source: %q", cfg.DataSource)
	}
	if cfg.RedisTTL != 15*time.Minute {
		t.Errorf("ttl: %v", cfg.RedisTTL)
	}
	if len(cfg.Symbols) != 2 || cfg.Symbols[0] != "AAPL" || cfg.Symbols[1] != "MSFT" {
		t.Errorf("symbols: %v", cfg.Symbols)
	}
}

func TestLoad_Holidays(t *testing.T) {
	clearEnv(t)
	t.Setenv("HOLIDAYS", "2024-01-15, 2024-02-19,")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Holidays) != 2 {
		t.Fatalf("holidays: %v", cfg.Holidays)
	}
	cal := cfg.Calendar()
	mlk := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	if cal.IsBusinessDay(mlk) {
		t.Error("2024-01-15 should be a holiday")
	}
	if got := cal.Previous(mlk); !got.Equal(time.Date(2024, 1, 12, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("previous session: %v", got)
	}
	if n := len(cal.BusinessDays(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC))); n != 22 {
		t.Errorf("january sessions: got %d, want 22", n)
	}
}

func TestLoad_Invalid(t *testing.T) {
	cases := map[string]string{
		"REDIS_TTL":       "soon",
		"HTTP_RATE_LIMIT": "-1",
		"SMTP_PORT":       "smtp",
		"DATA_SOURCE":     "ftp",
		"HOLIDAYS":        "2024-01-15,jan 16",
	}
	for key, val := range cases {
		t.Run(key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(key, val)
			if _, err := Load(); err == nil {
				t.Errorf("%s=%s: expected error", key, val)
			}
		})
	}
}

func TestLoadParams_DefaultsWithoutFile(t *testing.T) {
	p, err := LoadParams("")
	if err != nil {
		t.Fatalf("LoadParams: %v", err)
	}
	if p.Technical.SMALong != 200 || p.Signal.MinConfidence != 0.6 || p.Backtest.InitialCapital != 10000 {
		t.Errorf("unexpected defaults: %+v", p)
	}
}

func TestLoadParams_PartialOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "params.yaml")
	doc := `
technical:
  rsi_period: 10
signal:
  rsi_oversold: 25
  min_confidence: 0.7
backtest:
  initial_capital: 50000
  exit_levels: daily
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	p, err := LoadParams(path)
	if err != nil {
		t.Fatalf("LoadParams: %v", err)
	}
	if p.Technical.RSIPeriod != 10 || p.Technical.SMAShort != 20 {
		t.Errorf("technical: %+v", p.Technical)
	}
	if p.Signal.RSIOversold != 25 || p.Signal.RSIOverbought != 70 || p.Signal.MinConfidence != 0.7 {
		t.Errorf("signal: %+v", p.Signal)
	}
	if p.Backtest.InitialCapital != 50000 || p.Backtest.Commission != 0.001 || p.Backtest.ExitLevels != "daily" {
		t.Errorf("backtest: %+v", p.Backtest)
	}
	if p.RuleEngine().Params().RSIOversold != 25 {
		t.Error("rule engine did not pick up overrides")
	}
}

func TestLoadParams_Invalid(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"bad yaml":       "technical: [",
		"confidence":     "signal:\n  min_confidence: 1.5\n",
		"rsi thresholds": "signal:\n  rsi_oversold: 80\n",
		"capital":        "backtest:\n  initial_capital: -1\n",
		"exit levels":    "backtest:\n  exit_levels: weekly\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name+".yaml")
			if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
				t.Fatal(err)
			}
			if _, err := LoadParams(path); err == nil {
				t.Error("expected error")
			}
		})
	}
	if _, err := LoadParams(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("missing file: expected error")
	}
}

func TestParseRecipients(t *testing.T) {
	got := ParseRecipients(" a@x.com, ,b@y.org ")
	if len(got) != 2 || got[0] != "a@x.com" || got[1] != "b@y.org" {
		t.Errorf("got %v", got)
	}
	if got := ParseRecipients(""); len(got) != 0 {
		t.Errorf("empty: %v", got)
	}
}
