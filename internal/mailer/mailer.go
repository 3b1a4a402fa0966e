// mailer доставляет письма с кодом подтверждения и ссылкой сброса пароля.
package mailer

//go:generate mockgen -source=mailer.go -destination=../../mocks/mock_mailer.go -package=mocks

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrDelivery — письмо не удалось передать транспорту.
var ErrDelivery = errors.New("mail delivery failed")

// Mailer — исходящая почта сервиса.
type Mailer interface {
	SendVerificationEmail(ctx context.Context, email, code string) error
	SendPasswordResetEmail(ctx context.Context, email, token string) error
}

// Templates формирует тексты писем.
type Templates struct {
	PlatformName string
	FrontendURL  string
}

// Message — готовое письмо.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Verification собирает письмо с кодом подтверждения.
func (t Templates) Verification(email, code string) Message {
	return Message{
		To:      email,
		Subject: fmt.Sprintf("%s - Email Verification Required", t.PlatformName),
		Body: fmt.Sprintf(
			"Welcome to %s!\n\nYour verification code is: %s\n\nThe code expires in 20 minutes.\n",
			t.PlatformName, code,
		),
	}
}

// PasswordReset собирает письмо со ссылкой сброса пароля.
func (t Templates) PasswordReset(email, token string) Message {
	link := strings.TrimRight(t.FrontendURL, "/") + "/reset-password?token=" + url.QueryEscape(token)

	return Message{
		To:      email,
		Subject: fmt.Sprintf("%s - Password Reset", t.PlatformName),
		Body: fmt.Sprintf(
			"A password reset was requested for your %s account.\n\nOpen the link below to choose a new password:\n%s\n\nThe link expires in 1 hour. If you did not request a reset, ignore this email.\n",
			t.PlatformName, link,
		),
	}
}
