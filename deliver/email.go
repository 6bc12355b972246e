package deliver

import (
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"github.com/happycoding7/signal-extract/internal/store"
)

// EmailConfig holds SMTP settings. Delivery is attempted only when Host
// and To are both set.
type EmailConfig struct {
	Host string
	Port int
	User string
	Pass string
	To   string
	From string
}

// Enabled reports whether the config is complete enough to send.
func (c EmailConfig) Enabled() bool { return c.Host != "" && c.To != "" }

// SendDigest emails one digest as plain text over STARTTLS.
func SendDigest(cfg EmailConfig, d *store.Digest) error {
	if !cfg.Enabled() {
		return fmt.Errorf("email not configured")
	}
	date := time.UnixMilli(d.GeneratedAt).UTC().Format("2006-01-02")
	if d.GeneratedAt == 0 {
		date = time.Now().UTC().Format("2006-01-02")
	}
	subject := fmt.Sprintf("[signal] %s - %s", d.Kind, date)
	return send(cfg, subject, d.Content)
}

func send(cfg EmailConfig, subject, body string) error {
	from := cfg.From
	if from == "" {
		from = "signal-extract@localhost"
	}
	port := cfg.Port
	if port == 0 {
		port = 587
	}

	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", from)
	fmt.Fprintf(&msg, "To: %s\r\n", cfg.To)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(body)

	addr := fmt.Sprintf("%s:%d", cfg.Host, port)
	var auth smtp.Auth
	if cfg.User != "" {
		auth = smtp.PlainAuth("", cfg.User, cfg.Pass, cfg.Host)
	}
	// smtp.SendMail negotiates STARTTLS when the server advertises it.
	if err := smtp.SendMail(addr, auth, from, []string{cfg.To}, []byte(msg.String())); err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	return nil
}
