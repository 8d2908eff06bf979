package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"stock-analyzer/internal/strategy"
)

const telegramAPIBase = "https://api.telegram.org"

// TelegramNotifier sends alerts via Telegram Bot API.
type TelegramNotifier struct {
	botToken string
	chatID   string
	apiBase  string
	client   *http.Client
}

// NewTelegramNotifier creates a Telegram notifier.
// botToken: Bot API token from @BotFather
// chatID: Target chat/group/channel ID
func NewTelegramNotifier(botToken, chatID string) *TelegramNotifier {
	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		apiBase:  telegramAPIBase,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (t *TelegramNotifier) Send(ctx context.Context, alert Alert) error {
	body, _ := json.Marshal(map[string]interface{}{
		"chat_id":    t.chatID,
		"text":       telegramText(alert),
		"parse_mode": "MarkdownV2",
	})

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.apiBase, t.botToken)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram: unexpected status %d", resp.StatusCode)
	}

	slog.Debug("telegram alert sent", "title", alert.Title)
	return nil
}

func telegramText(alert Alert) string {
	s := alert.Signal
	if s == nil {
		emoji := "ℹ️"
		switch alert.Level {
		case AlertWarning:
			emoji = "⚠️"
		case AlertCritical:
			emoji = "🚨"
		}
		return fmt.Sprintf("%s *%s*\n\n%s", emoji, escapeMarkdown(alert.Title), escapeMarkdown(alert.Message))
	}

	emoji := "🟡"
	switch s.Action {
	case strategy.ActionBuy:
		emoji = "🟢"
	case strategy.ActionSell:
		emoji = "🔴"
	}
	snap := s.Technical
	lines := fmt.Sprintf("Price: $%.2f\nSMA20: $%.2f\nSMA50: $%.2f\nRSI: %.2f\nMACD: %.4f\nTarget: $%.2f\nStop: $%.2f\nConfidence: %.0f%%\nReasons: %s\nTime: %s",
		snap.LatestPrice, snap.SMA20, snap.SMA50, snap.RSI, snap.MACD,
		s.Plan.TargetPrice, s.Plan.StopLoss, s.Confidence*100,
		formatReasons(s.Reasons, ", "), alert.Time.Format("2006-01-02 15:04:05"))
	return fmt.Sprintf("%s *%s %s*\n\n%s", emoji, escapeMarkdown(s.Symbol), s.Action, escapeMarkdown(lines))
}

// escapeMarkdown escapes special characters for Telegram MarkdownV2.
func escapeMarkdown(s string) string {
	specials := []byte{'_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!'}
	var buf bytes.Buffer
	for i := 0; i < len(s); i++ {
		for _, sp := range specials {
			if s[i] == sp {
				buf.WriteByte('\\')
				break
			}
		}
		buf.WriteByte(s[i])
	}
	return buf.String()
}
