package mailer

import (
	"context"
	"log/slog"

	"github.com/pribylovaa/taskmaster-auth/internal/pkg/log"
	"github.com/pribylovaa/taskmaster-auth/internal/pkg/redact"
)

// LogMailer пишет письма в лог вместо отправки.
// Тело письма с секретом попадает в лог только при reveal=true (локальная разработка).
type LogMailer struct {
	tpl    Templates
	reveal bool
}

// NewLogMailer создаёт LogMailer.
func NewLogMailer(tpl Templates, reveal bool) *LogMailer {
	return &LogMailer{tpl: tpl, reveal: reveal}
}

func (m *LogMailer) SendVerificationEmail(ctx context.Context, email, code string) error {
	m.write(ctx, m.tpl.Verification(email, code))
	return nil
}

func (m *LogMailer) SendPasswordResetEmail(ctx context.Context, email, token string) error {
	m.write(ctx, m.tpl.PasswordReset(email, token))
	return nil
}

func (m *LogMailer) write(ctx context.Context, msg Message) {
	body := redact.Token()
	if m.reveal {
		body = msg.Body
	}

	log.From(ctx).Info("mail_logged",
		slog.String("to", redact.Email(msg.To)),
		slog.String("subject", msg.Subject),
		slog.String("body", body),
	)
}

var _ Mailer = (*LogMailer)(nil)
