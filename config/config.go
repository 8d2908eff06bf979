package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"stock-analyzer/internal/calendar"
)

// DefaultSymbols is the watch list used when SYMBOLS is unset.
var DefaultSymbols = []string{
	"AAPL", "MSFT", "GOOGL", "AMZN", "TSLA",
	"META", "NFLX", "NVDA", "AMD", "INTC",
	"JPM", "BAC", "WFC", "GS", "MS",
	"JNJ", "PFE", "UNH", "ABBV", "MRK",
}

// Data sources accepted by DATA_SOURCE.
const (
	SourceSQLite = "sqlite"
	SourceCSV    = "csv"
	SourceHTTP   = "http"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	LogLevel string

	// Storage
	SQLitePath  string
	JournalPath string

	// Cache (empty RedisAddr disables it)
	RedisAddr     string
	RedisPassword string
	RedisTTL      time.Duration

	// Listeners
	MetricsAddr string
	APIAddr     string

	// Market data
	DataSource    string
	CSVDir        string
	HTTPBaseURL   string
	HTTPRateLimit float64 // requests per second

	Symbols []string

	// Notification channels; each is enabled by its own settings
	TelegramBotToken string
	TelegramChatID   string
	WebhookURL       string
	SMTPHost         string
	SMTPPort         int
	SMTPUser         string
	SMTPPassword     string
	AlertEmail       string

	// Scheduled scans (robfig/cron spec)
	ScanSchedule string

	// Exchange holidays skipped by backtests and date defaults
	Holidays []time.Time

	// YAML analysis parameters; empty means built-in defaults
	ParamsFile string
}

// Load reads configuration from environment variables with sensible defaults.
// A .env file in the working directory is loaded first if present.
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	cfg := &Config{
		LogLevel: getEnv("LOG_LEVEL", "info"),

		SQLitePath:  getEnv("SQLITE_PATH", "data/bars.db"),
		JournalPath: getEnv("JOURNAL_PATH", "data/journal.db"),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),

		MetricsAddr: getEnv("METRICS_ADDR", ":9090"),
		APIAddr:     getEnv("API_ADDR", ":8080"),

		DataSource:  strings.ToLower(getEnv("DATA_SOURCE", SourceSQLite)),
		CSVDir:      getEnv("CSV_DIR", "data/csv"),
		HTTPBaseURL: getEnv("HTTP_BASE_URL", "https://stooq.com/q/d/l/"),

		Symbols: ParseSymbols(getEnv("SYMBOLS", "")),

		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:   getEnv("TELEGRAM_CHAT_ID", ""),
		WebhookURL:       getEnv("WEBHOOK_URL", ""),
		SMTPHost:         getEnv("SMTP_HOST", ""),
		SMTPUser:         getEnv("SMTP_USER", ""),
		SMTPPassword:     getEnv("SMTP_PASSWORD", ""),
		AlertEmail:       getEnv("ALERT_EMAIL", ""),

		ScanSchedule: getEnv("SCAN_SCHEDULE", "30 16 * * 1-5"),
		ParamsFile:   getEnv("PARAMS_FILE", ""),
	}
	if len(cfg.Symbols) == 0 {
		cfg.Symbols = append([]string(nil), DefaultSymbols...)
	}

	var err error
	if cfg.RedisTTL, err = time.ParseDuration(getEnv("REDIS_TTL", "1h")); err != nil {
		return nil, fmt.Errorf("invalid REDIS_TTL: %v", err)
	}
	if cfg.HTTPRateLimit, err = strconv.ParseFloat(getEnv("HTTP_RATE_LIMIT", "2"), 64); err != nil {
		return nil, fmt.Errorf("invalid HTTP_RATE_LIMIT: %v", err)
	}
	if cfg.HTTPRateLimit <= 0 {
		return nil, fmt.Errorf("HTTP_RATE_LIMIT must be > 0")
	}
	if cfg.SMTPPort, err = strconv.Atoi(getEnv("SMTP_PORT", "587")); err != nil {
		return nil, fmt.Errorf("invalid SMTP_PORT: %v", err)
	}
	if cfg.Holidays, err = ParseDates(getEnv("HOLIDAYS", "")); err != nil {
		return nil, fmt.Errorf("invalid HOLIDAYS: %v", err)
	}

	switch cfg.DataSource {
	case SourceSQLite, SourceCSV, SourceHTTP:
	default:
		return nil, fmt.Errorf("invalid DATA_SOURCE %q (want sqlite, csv or http)", cfg.DataSource)
	}
	return cfg, nil
}

// ParseSymbols splits a comma-separated list, upper-cases entries and
// drops blanks and duplicates while keeping order.
func ParseSymbols(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	seen := make(map[string]bool, len(parts))
	for _, p := range parts {
		p = strings.ToUpper(strings.TrimSpace(p))
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}

// ParseRecipients splits a comma-separated address list, dropping blanks.
func ParseRecipients(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ParseDates splits a comma-separated list of YYYY-MM-DD dates.
func ParseDates(s string) ([]time.Time, error) {
	var out []time.Time
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		d, err := time.Parse(time.DateOnly, p)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// Calendar returns the business-day calendar with the configured holidays.
func (c *Config) Calendar() *calendar.Calendar {
	return calendar.New(c.Holidays...)
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}
