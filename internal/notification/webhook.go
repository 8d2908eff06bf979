package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// WebhookNotifier sends alerts to a generic HTTP webhook endpoint.
type WebhookNotifier struct {
	url    string
	client *http.Client
}

// NewWebhookNotifier creates a webhook notifier.
// url: The HTTP endpoint to POST alerts to.
func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{
		url: url,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// webhookPayload carries the generic alert fields, plus symbol/signal and
// the full analysis for signal alerts.
type webhookPayload struct {
	Level   string         `json:"level"`
	Title   string         `json:"title"`
	Message string         `json:"message"`
	TS      string         `json:"ts"`
	Symbol  string         `json:"symbol,omitempty"`
	Signal  string         `json:"signal,omitempty"`
	Data    *SignalPayload `json:"data,omitempty"`
}

func (w *WebhookNotifier) Send(ctx context.Context, alert Alert) error {
	ts := alert.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	payload := webhookPayload{
		Level:   string(alert.Level),
		Title:   alert.Title,
		Message: alert.Message,
		TS:      ts.UTC().Format(time.RFC3339Nano),
		Data:    alert.Signal,
	}
	if alert.Signal != nil {
		payload.Symbol = alert.Signal.Symbol
		payload.Signal = string(alert.Signal.Action)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("webhook: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook: unexpected status %d", resp.StatusCode)
	}

	slog.Debug("webhook alert sent", "url", w.url, "title", alert.Title)
	return nil
}
