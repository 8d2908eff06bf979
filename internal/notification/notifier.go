// Package notification delivers signal alerts to external channels
// (log, Telegram, webhooks, email).
package notification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"stock-analyzer/internal/indicator"
	"stock-analyzer/internal/strategy"
)

// AlertLevel represents the severity of an alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// strongConfidence promotes a signal alert to WARNING.
const strongConfidence = 0.8

// SignalPayload is the analysis behind a signal alert.
type SignalPayload struct {
	Symbol     string                 `json:"symbol"`
	Action     strategy.Action        `json:"signal"`
	Confidence float64                `json:"confidence"`
	Reasons    []string               `json:"reasons"`
	Technical  indicator.Snapshot     `json:"technical"`
	Plan       strategy.EntryExitPlan `json:"entry_exit"`
}

// Alert represents a notification to be sent. Signal is set for alerts
// built by SignalAlert and nil for plain operational alerts.
type Alert struct {
	Level   AlertLevel     `json:"level"`
	Title   string         `json:"title"`
	Message string         `json:"message"`
	Time    time.Time      `json:"ts"`
	Signal  *SignalPayload `json:"data,omitempty"`
}

// SignalAlert builds the alert for a symbol's decision.
func SignalAlert(symbol string, d strategy.Decision, at time.Time) Alert {
	level := AlertInfo
	if d.Signal.Action != strategy.ActionHold && d.Signal.Confidence >= strongConfidence {
		level = AlertWarning
	}
	snap := d.Snapshot
	msg := fmt.Sprintf("Price: $%.2f | RSI: %.2f | MACD: %.4f | Confidence: %.0f%%\nTarget: $%.2f | Stop: $%.2f\nReasons: %s",
		snap.LatestPrice, snap.RSI, snap.MACD, d.Signal.Confidence*100,
		d.Plan.TargetPrice, d.Plan.StopLoss, formatReasons(d.Signal.Reasons, "; "))

	return Alert{
		Level:   level,
		Title:   fmt.Sprintf("Stock Alert: %s - %s", symbol, d.Signal.Action),
		Message: msg,
		Time:    at,
		Signal: &SignalPayload{
			Symbol:     symbol,
			Action:     d.Signal.Action,
			Confidence: d.Signal.Confidence,
			Reasons:    d.Signal.Reasons,
			Technical:  snap,
			Plan:       d.Plan,
		},
	}
}

func formatReasons(reasons []string, sep string) string {
	if len(reasons) == 0 {
		return "No specific reasons"
	}
	return strings.Join(reasons, sep)
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	// Send delivers an alert. Returns error if delivery fails.
	Send(ctx context.Context, alert Alert) error
}

// LogNotifier is a simple notifier that logs alerts (useful for development).
type LogNotifier struct {
	log *slog.Logger
}

// NewLogNotifier creates a log-based notifier.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{log: logger}
}

func (n *LogNotifier) Send(ctx context.Context, alert Alert) error {
	attrs := []any{"level", string(alert.Level), "title", alert.Title}
	if s := alert.Signal; s != nil {
		attrs = append(attrs, "symbol", s.Symbol, "action", string(s.Action), "confidence", s.Confidence)
	}
	n.log.Info("alert", attrs...)
	return nil
}

// Multi fans an alert out to every notifier. A failing channel does not
// stop the others; all failures are returned joined.
type Multi struct {
	notifiers []Notifier
	log       *slog.Logger
}

// NewMulti creates a fan-out notifier. Nil entries are dropped.
func NewMulti(logger *slog.Logger, notifiers ...Notifier) *Multi {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Multi{log: logger}
	for _, n := range notifiers {
		if n != nil {
			m.notifiers = append(m.notifiers, n)
		}
	}
	return m
}

// Len returns the number of channels.
func (m *Multi) Len() int { return len(m.notifiers) }

func (m *Multi) Send(ctx context.Context, alert Alert) error {
	var errs []error
	for _, n := range m.notifiers {
		if err := n.Send(ctx, alert); err != nil {
			m.log.Error("notification failed", "channel", fmt.Sprintf("%T", n), "title", alert.Title, "err", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
