package notification

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"
)

// EmailConfig holds SMTP delivery settings.
type EmailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       []string
}

// EmailNotifier sends alerts as HTML email. smtp.SendMail upgrades the
// connection with STARTTLS when the server offers it.
type EmailNotifier struct {
	cfg  EmailConfig
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewEmailNotifier creates an email notifier. From defaults to Username.
func NewEmailNotifier(cfg EmailConfig) *EmailNotifier {
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if cfg.From == "" {
		cfg.From = cfg.Username
	}
	return &EmailNotifier{cfg: cfg, send: smtp.SendMail}
}

func (e *EmailNotifier) Send(ctx context.Context, alert Alert) error {
	if len(e.cfg.To) == 0 {
		return fmt.Errorf("email: no recipients")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var auth smtp.Auth
	if e.cfg.Username != "" {
		auth = smtp.PlainAuth("", e.cfg.Username, e.cfg.Password, e.cfg.Host)
	}
	addr := net.JoinHostPort(e.cfg.Host, strconv.Itoa(e.cfg.Port))
	if err := e.send(addr, auth, e.cfg.From, e.cfg.To, e.message(alert)); err != nil {
		return fmt.Errorf("email: send: %w", err)
	}

	slog.Debug("email alert sent", "to", strings.Join(e.cfg.To, ","), "title", alert.Title)
	return nil
}

func (e *EmailNotifier) message(alert Alert) []byte {
	subject := alert.Title
	if alert.Signal != nil {
		subject = "🚨 " + subject
	}

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", e.cfg.From)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(e.cfg.To, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n\r\n")
	b.WriteString(emailBody(alert))
	return []byte(b.String())
}

func emailBody(alert Alert) string {
	var b strings.Builder
	b.WriteString("<html><body>\n")
	fmt.Fprintf(&b, "<h2>%s</h2>\n", html.EscapeString(alert.Title))

	s := alert.Signal
	if s == nil {
		fmt.Fprintf(&b, "<p>%s</p>\n", html.EscapeString(alert.Message))
		b.WriteString("</body></html>\n")
		return b.String()
	}

	ts := alert.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	fmt.Fprintf(&b, "<p><strong>Time:</strong> %s</p>\n", ts.Format("2006-01-02 15:04:05"))
	b.WriteString("<h3>Technical Analysis</h3>\n<table border=\"1\" style=\"border-collapse: collapse;\">\n")
	row := func(name, value string) {
		fmt.Fprintf(&b, "<tr><td><strong>%s</strong></td><td>%s</td></tr>\n", name, value)
	}
	t := s.Technical
	row("Latest Price", fmt.Sprintf("$%.2f", t.LatestPrice))
	row("SMA 20", fmt.Sprintf("$%.2f", t.SMA20))
	row("SMA 50", fmt.Sprintf("$%.2f", t.SMA50))
	row("RSI", fmt.Sprintf("%.2f", t.RSI))
	row("MACD", fmt.Sprintf("%.4f", t.MACD))
	row("Bollinger Upper", fmt.Sprintf("$%.2f", t.BBUpper))
	row("Bollinger Lower", fmt.Sprintf("$%.2f", t.BBLower))
	row("Target", fmt.Sprintf("$%.2f", s.Plan.TargetPrice))
	row("Stop Loss", fmt.Sprintf("$%.2f", s.Plan.StopLoss))
	row("Confidence", fmt.Sprintf("%.0f%%", s.Confidence*100))
	b.WriteString("</table>\n<h3>Reasons</h3>\n<ul>\n")
	if len(s.Reasons) == 0 {
		b.WriteString("<li>No specific reasons</li>\n")
	}
	for _, r := range s.Reasons {
		fmt.Fprintf(&b, "<li>%s</li>\n", html.EscapeString(r))
	}
	b.WriteString("</ul>\n</body></html>\n")
	return b.String()
}
