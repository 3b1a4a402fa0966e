package mailer

import (
	"context"
	"errors"
	"log/slog"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pribylovaa/taskmaster-auth/internal/pkg/log"
)

var testTpl = Templates{PlatformName: "TaskMaster", FrontendURL: "https://app.example.com/"}

// capHandler собирает сообщения и атрибуты записей.
type capHandler struct {
	msgs  []string
	attrs []map[string]any
}

func (h *capHandler) Enabled(context.Context, slog.Level) bool { return true }
func (h *capHandler) Handle(_ context.Context, r slog.Record) error {
	m := map[string]any{}
	r.Attrs(func(a slog.Attr) bool { m[a.Key] = a.Value.Any(); return true })
	h.msgs = append(h.msgs, r.Message)
	h.attrs = append(h.attrs, m)
	return nil
}
func (h *capHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *capHandler) WithGroup(string) slog.Handler      { return h }

func TestTemplates(t *testing.T) {
	t.Parallel()

	v := testTpl.Verification("a@x.com", "0042")
	require.Equal(t, "TaskMaster - Email Verification Required", v.Subject)
	require.Contains(t, v.Body, "0042")
	require.Equal(t, "a@x.com", v.To)

	r := testTpl.PasswordReset("a@x.com", "tok_-abc")
	require.Contains(t, r.Body, "https://app.example.com/reset-password?token=tok_-abc")
}

func TestLogMailer_HidesSecretsUnlessRevealed(t *testing.T) {
	t.Parallel()

	h := &capHandler{}
	ctx := log.Into(context.Background(), slog.New(h))

	require.NoError(t, NewLogMailer(testTpl, false).SendVerificationEmail(ctx, "alice@x.com", "1234"))
	require.Equal(t, "mail_logged", h.msgs[0])
	require.NotContains(t, h.attrs[0]["body"], "1234")
	require.Equal(t, "al***@x.com", h.attrs[0]["to"])

	require.NoError(t, NewLogMailer(testTpl, true).SendPasswordResetEmail(ctx, "alice@x.com", "secret-token"))
	require.Contains(t, h.attrs[1]["body"], "secret-token")
}

func TestSMTPMailer_ComposesAndSends(t *testing.T) {
	t.Parallel()

	var (
		gotAddr string
		gotTo   []string
		gotFrom string
		gotMsg  string
	)
	send := func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, string(msg)
		return nil
	}

	m := NewSMTPMailer(SMTPConfig{Addr: "smtp.example.com:587", Host: "smtp.example.com", From: "robot@example.com"}, testTpl, send)
	require.NoError(t, m.SendVerificationEmail(context.Background(), "bob@x.com", "0007"))

	require.Equal(t, "smtp.example.com:587", gotAddr)
	require.Equal(t, "robot@example.com", gotFrom)
	require.Equal(t, []string{"bob@x.com"}, gotTo)
	require.True(t, strings.HasPrefix(gotMsg, "From: robot@example.com\r\n"))
	require.Contains(t, gotMsg, "Subject: TaskMaster - Email Verification Required\r\n")
	require.Contains(t, gotMsg, "0007")
}

func TestSMTPMailer_TransportFailure(t *testing.T) {
	t.Parallel()

	send := func(string, smtp.Auth, string, []string, []byte) error { return errors.New("421 try later") }
	m := NewSMTPMailer(SMTPConfig{Addr: "x:25"}, testTpl, send)

	err := m.SendPasswordResetEmail(context.Background(), "bob@x.com", "tok")
	require.ErrorIs(t, err, ErrDelivery)
	require.Contains(t, err.Error(), "421")
}

func TestSMTPMailer_ContextCanceled(t *testing.T) {
	t.Parallel()

	block := make(chan struct{})
	defer close(block)
	send := func(string, smtp.Auth, string, []string, []byte) error { <-block; return nil }
	m := NewSMTPMailer(SMTPConfig{Addr: "x:25"}, testTpl, send)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := m.SendVerificationEmail(ctx, "bob@x.com", "0001")
	require.ErrorIs(t, err, ErrDelivery)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
