// Package mail delivers verification and password-reset links over SMTP.
package mail

import (
	"context"
	"fmt"
	"net/smtp"
	"net/url"
	"strings"
)

type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string // e.g. "Portal <no-reply@example.com>"
	BaseURL  string // public site base, links are built against it
}

// Mailer implements service.EmailService on a bare SMTP transport. Sends are
// awaited by callers inside their transactions, so a failure here aborts the
// surrounding unit of work.
type Mailer struct {
	cfg  Config
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func New(cfg Config) *Mailer {
	return &Mailer{cfg: cfg, send: smtp.SendMail}
}

func (m *Mailer) SendVerification(ctx context.Context, to, token string) error {
	link := m.link("/verify-email", token)
	body := fmt.Sprintf(
		"Welcome!\r\n\r\nPlease confirm your email address by opening the link below. "+
			"The link is valid for 24 hours.\r\n\r\n%s\r\n", link)
	return m.deliver(ctx, to, "Verify your email address", body)
}

func (m *Mailer) SendPasswordReset(ctx context.Context, to, token string) error {
	link := m.link("/reset-password", token)
	body := fmt.Sprintf(
		"A password reset was requested for your account. "+
			"The link below is valid for 1 hour; if you did not request it, ignore this message.\r\n\r\n%s\r\n", link)
	return m.deliver(ctx, to, "Reset your password", body)
}

// link embeds the raw token as a query parameter on the public base URL.
func (m *Mailer) link(path, token string) string {
	return fmt.Sprintf("%s%s?token=%s",
		strings.TrimRight(m.cfg.BaseURL, "/"), path, url.QueryEscape(token))
}

func (m *Mailer) deliver(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "From: %s\r\n", m.cfg.From)
	fmt.Fprintf(&sb, "To: %s\r\n", to)
	fmt.Fprintf(&sb, "Subject: %s\r\n", subject)
	sb.WriteString("MIME-Version: 1.0\r\n")
	sb.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	sb.WriteString("\r\n")
	sb.WriteString(body)

	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}
	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)
	return m.send(addr, auth, m.cfg.From, []string{to}, []byte(sb.String()))
}
