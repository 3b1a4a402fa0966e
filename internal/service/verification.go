package service

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/pribylovaa/taskmaster-auth/internal/models"
	"github.com/pribylovaa/taskmaster-auth/internal/pkg/log"
	"github.com/pribylovaa/taskmaster-auth/internal/pkg/redact"
	"github.com/pribylovaa/taskmaster-auth/internal/storage"
)

// verificationCodeSpace — коды равномерно выбираются из [0, 10000).
var verificationCodeSpace = big.NewInt(10000)

// generateVerificationCode возвращает 4-значный код с ведущими нулями и момент его истечения.
func (s *Service) generateVerificationCode() (string, time.Time, error) {
	const op = "service.verification.generateVerificationCode"

	n, err := rand.Int(rand.Reader, verificationCodeSpace)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("%s: %w", op, err)
	}

	return fmt.Sprintf("%04d", n.Int64()), s.now().Add(s.secrets.VerificationCodeTTL), nil
}

// consumeVerificationCode применяет код к аккаунту в памяти: при успехе
// стирает код и срок, отмечает email подтверждённым и активирует PENDING-аккаунт.
func consumeVerificationCode(account *models.Account, code string, now time.Time) error {
	if account.VerificationCode == nil || account.VerificationCodeExpiresAt == nil {
		return ErrInvalidCode
	}

	if subtle.ConstantTimeCompare([]byte(*account.VerificationCode), []byte(code)) != 1 {
		return ErrInvalidCode
	}

	if !now.Before(*account.VerificationCodeExpiresAt) {
		return ErrCodeExpired
	}

	account.ClearVerificationCode()
	account.EmailVerified = true
	if account.Status == models.StatusPending {
		account.Status = models.StatusActive
	}

	return nil
}

// VerifyEmail подтверждает email кодом из письма.
// Код одноразовый: повторное применение того же кода даёт ErrInvalidCode.
func (s *Service) VerifyEmail(ctx context.Context, email, code string) (*models.Account, error) {
	const op = "service.verification.VerifyEmail"

	lg := log.From(ctx)

	normEmail, err := validateEmail(email)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidCode)
	}

	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		account, err := s.storage.AccountByEmail(ctx, normEmail)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return nil, fmt.Errorf("%s: %w", op, ErrInvalidCode)
			}

			return nil, fmt.Errorf("%s: %w", op, err)
		}

		if err := consumeVerificationCode(account, code, s.now()); err != nil {
			lg.Info("verification_code_rejected",
				slog.String("op", op),
				slog.Int64("account_id", account.ID),
				slog.String("reason", err.Error()),
			)
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		err = s.storage.UpdateAccount(ctx, account)
		if errors.Is(err, storage.ErrVersionConflict) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		lg.Info("email_verified",
			slog.String("op", op),
			slog.Int64("account_id", account.ID),
		)
		return account, nil
	}

	return nil, fmt.Errorf("%s: %w", op, ErrConcurrentUpdate)
}

// ResendVerification выдаёт новый код для неподтверждённого аккаунта.
// Результат не зависит от того, существует ли аккаунт: ошибки выдачи
// и доставки только логируются.
func (s *Service) ResendVerification(ctx context.Context, email string) error {
	const op = "service.verification.ResendVerification"

	lg := log.From(ctx)

	normEmail, err := validateEmail(email)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	account, err := s.storage.AccountByEmail(ctx, normEmail)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			lg.Info("verification_resend_unknown_email",
				slog.String("op", op),
				slog.String("email", redact.Email(normEmail)),
			)
			return nil
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	if account.EmailVerified {
		lg.Info("verification_resend_already_verified",
			slog.String("op", op),
			slog.Int64("account_id", account.ID),
		)
		return nil
	}

	code, expiresAt, err := s.generateVerificationCode()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	account.VerificationCode = &code
	account.VerificationCodeExpiresAt = &expiresAt

	if err := s.storage.UpdateAccount(ctx, account); err != nil {
		if errors.Is(err, storage.ErrVersionConflict) {
			// Параллельный запрос уже выдал код; его код остаётся действующим.
			lg.Warn("verification_resend_conflict",
				slog.String("op", op),
				slog.Int64("account_id", account.ID),
			)
			return nil
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	if err := s.mailer.SendVerificationEmail(ctx, account.Email, code); err != nil {
		lg.Error("verification_email_failed",
			slog.String("op", op),
			slog.Int64("account_id", account.ID),
			slog.String("err", err.Error()),
		)
	}

	return nil
}
