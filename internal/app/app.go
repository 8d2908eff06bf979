// Package app wires configuration into the concrete data providers,
// notifiers and engines shared by the commands.
package app

import (
	"errors"
	"fmt"
	"log/slog"

	"stock-analyzer/config"
	"stock-analyzer/internal/marketdata"
	"stock-analyzer/internal/metrics"
	"stock-analyzer/internal/model"
	"stock-analyzer/internal/notification"
	"stock-analyzer/internal/scanner"
	rcache "stock-analyzer/internal/store/redis"
	sqlitestore "stock-analyzer/internal/store/sqlite"
)

// Provider is the configured data source, instrumented and optionally
// cached in Redis.
type Provider struct {
	model.DataProvider

	Source string
	Reader *sqlitestore.Reader // set for the sqlite source
	Cache  *rcache.Cache       // set when REDIS_ADDR is configured

	closers []func() error
}

// OpenProvider builds the provider selected by cfg.DataSource. m may be
// nil to skip instrumentation. A Redis connection failure is logged and
// the cache is skipped.
func OpenProvider(cfg *config.Config, m *metrics.Metrics, logger *slog.Logger) (*Provider, error) {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Provider{Source: cfg.DataSource}

	var base model.DataProvider
	switch cfg.DataSource {
	case config.SourceSQLite:
		r, err := sqlitestore.NewReader(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open bar store: %w", err)
		}
		p.Reader = r
		p.closers = append(p.closers, r.Close)
		base = r
	case config.SourceCSV:
		base = marketdata.NewFileProvider(cfg.CSVDir)
	case config.SourceHTTP:
		base = marketdata.NewHTTPProvider(
			marketdata.WithBaseURL(cfg.HTTPBaseURL),
			marketdata.WithRateLimit(cfg.HTTPRateLimit),
			marketdata.WithLogger(logger),
		)
	default:
		return nil, fmt.Errorf("unknown data source %q", cfg.DataSource)
	}
	if m != nil {
		base = m.InstrumentProvider(cfg.DataSource, base)
	}
	p.DataProvider = base

	if cfg.RedisAddr != "" {
		c, err := rcache.NewCache(rcache.CacheConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			TTL:      cfg.RedisTTL,
		}, base, logger)
		if err != nil {
			logger.Warn("redis cache disabled", "addr", cfg.RedisAddr, "err", err)
		} else {
			if m != nil {
				c.SetObserver(m)
			}
			p.Cache = c
			p.closers = append(p.closers, c.Close)
			p.DataProvider = c
		}
	}

	logger.Info("data provider ready", "source", cfg.DataSource, "cached", p.Cache != nil)
	return p, nil
}

// Close releases the store and cache connections.
func (p *Provider) Close() error {
	var errs []error
	for i := len(p.closers) - 1; i >= 0; i-- {
		if err := p.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Notifier builds the fan-out of every configured alert channel. The log
// channel is always present.
func Notifier(cfg *config.Config, logger *slog.Logger) *notification.Multi {
	ns := []notification.Notifier{notification.NewLogNotifier(logger)}
	if cfg.TelegramBotToken != "" && cfg.TelegramChatID != "" {
		ns = append(ns, notification.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramChatID))
	}
	if cfg.WebhookURL != "" {
		ns = append(ns, notification.NewWebhookNotifier(cfg.WebhookURL))
	}
	if cfg.SMTPHost != "" && cfg.AlertEmail != "" {
		ns = append(ns, notification.NewEmailNotifier(notification.EmailConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUser,
			Password: cfg.SMTPPassword,
			To:       config.ParseRecipients(cfg.AlertEmail),
		}))
	}
	return notification.NewMulti(logger, ns...)
}

// ScannerConfig derives the scanner settings from the parameter file.
func ScannerConfig(p config.Params) scanner.Config {
	c := scanner.DefaultConfig()
	c.MinConfidence = p.Signal.MinConfidence
	c.HotThreshold = p.Signal.HotThreshold
	return c
}
