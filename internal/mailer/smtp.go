package mailer

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"

	"github.com/pribylovaa/taskmaster-auth/internal/pkg/log"
	"github.com/pribylovaa/taskmaster-auth/internal/pkg/redact"
)

// SendFunc совпадает по сигнатуре с smtp.SendMail.
type SendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPConfig — параметры SMTP-сервера.
type SMTPConfig struct {
	Addr     string
	Host     string
	Username string
	Password string
	From     string
}

// SMTPMailer отправляет письма через SMTP (STARTTLS, PLAIN auth).
type SMTPMailer struct {
	cfg  SMTPConfig
	tpl  Templates
	send SendFunc
}

// NewSMTPMailer создаёт SMTPMailer; send == nil означает smtp.SendMail.
func NewSMTPMailer(cfg SMTPConfig, tpl Templates, send SendFunc) *SMTPMailer {
	if send == nil {
		send = smtp.SendMail
	}

	return &SMTPMailer{cfg: cfg, tpl: tpl, send: send}
}

func (m *SMTPMailer) SendVerificationEmail(ctx context.Context, email, code string) error {
	return m.deliver(ctx, "mailer.smtp.SendVerificationEmail", m.tpl.Verification(email, code))
}

func (m *SMTPMailer) SendPasswordResetEmail(ctx context.Context, email, token string) error {
	return m.deliver(ctx, "mailer.smtp.SendPasswordResetEmail", m.tpl.PasswordReset(email, token))
}

func (m *SMTPMailer) deliver(ctx context.Context, op string, msg Message) error {
	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}

	// smtp.SendMail не принимает контекст, поэтому ждём результат или отмену.
	done := make(chan error, 1)
	go func() {
		done <- m.send(m.cfg.Addr, auth, m.cfg.From, []string{msg.To}, m.compose(msg))
	}()

	select {
	case err := <-done:
		if err != nil {
			log.From(ctx).Error("mail_send_failed",
				slog.String("op", op),
				slog.String("to", redact.Email(msg.To)),
				slog.String("err", err.Error()),
			)
			return fmt.Errorf("%s: %w: %v", op, ErrDelivery, err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%s: %w: %w", op, ErrDelivery, ctx.Err())
	}
}

func (m *SMTPMailer) compose(msg Message) []byte {
	var b strings.Builder
	b.WriteString("From: " + m.cfg.From + "\r\n")
	b.WriteString("To: " + msg.To + "\r\n")
	b.WriteString("Subject: " + msg.Subject + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(msg.Body, "\n", "\r\n"))

	return []byte(b.String())
}

var _ Mailer = (*SMTPMailer)(nil)
