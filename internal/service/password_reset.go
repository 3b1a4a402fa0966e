package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"

	"github.com/pribylovaa/taskmaster-auth/internal/pkg/log"
	"github.com/pribylovaa/taskmaster-auth/internal/pkg/redact"
	"github.com/pribylovaa/taskmaster-auth/internal/storage"
)

// resetTokenBytes — энтропия reset-токена.
const resetTokenBytes = 32

// generateResetToken возвращает URL-safe токен без паддинга и его хэш для хранения.
func generateResetToken() (plain, hash string, err error) {
	b := make([]byte, resetTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", "", err
	}

	plain = base64.RawURLEncoding.EncodeToString(b)
	return plain, hashResetToken(plain), nil
}

// hashResetToken — SHA-256 -> base64.RawURLEncoding.
func hashResetToken(plain string) string {
	sum := sha256.Sum256([]byte(plain))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// RequestPasswordReset выдаёт reset-токен и отправляет ссылку на email.
//
// Для несуществующего email метод возвращает тот же nil, что и при успехе.
// Конфликт версий и ошибки почты только логируются, чтобы ответ
// не различался для существующих и несуществующих аккаунтов.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	const op = "service.password_reset.RequestPasswordReset"

	lg := log.From(ctx)

	normEmail, err := validateEmail(email)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	account, err := s.storage.AccountByEmail(ctx, normEmail)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			lg.Info("password_reset_unknown_email",
				slog.String("op", op),
				slog.String("email", redact.Email(normEmail)),
			)
			return nil
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	plain, hash, err := generateResetToken()
	if err != nil {
		lg.Error("reset_rand_failed",
			slog.String("op", op),
			slog.String("err", err.Error()),
		)
		return fmt.Errorf("%s: %w", op, err)
	}

	expiresAt := s.now().Add(s.secrets.ResetTokenTTL)
	account.ResetTokenHash = &hash
	account.ResetTokenExpiresAt = &expiresAt

	if err := s.storage.UpdateAccount(ctx, account); err != nil {
		if errors.Is(err, storage.ErrVersionConflict) {
			// Победивший параллельный запрос уже выдал и отправил свой токен.
			lg.Warn("password_reset_conflict",
				slog.String("op", op),
				slog.Int64("account_id", account.ID),
			)
			return nil
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	if err := s.mailer.SendPasswordResetEmail(ctx, account.Email, plain); err != nil {
		lg.Error("password_reset_email_failed",
			slog.String("op", op),
			slog.Int64("account_id", account.ID),
			slog.String("err", err.Error()),
		)
		return nil
	}

	lg.Info("password_reset_issued",
		slog.String("op", op),
		slog.Int64("account_id", account.ID),
	)

	return nil
}

// ResetPassword меняет пароль по reset-токену и стирает токен тем же обновлением.
func (s *Service) ResetPassword(ctx context.Context, resetToken, newPassword string) error {
	const op = "service.password_reset.ResetPassword"

	lg := log.From(ctx)

	if resetToken == "" {
		return fmt.Errorf("%s: %w", op, ErrResetTokenNotFound)
	}

	hash := hashResetToken(resetToken)

	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		account, err := s.storage.AccountByResetTokenHash(ctx, hash)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return fmt.Errorf("%s: %w", op, ErrResetTokenNotFound)
			}

			return fmt.Errorf("%s: %w", op, err)
		}

		if account.ResetTokenHash == nil ||
			subtle.ConstantTimeCompare([]byte(*account.ResetTokenHash), []byte(hash)) != 1 {
			return fmt.Errorf("%s: %w", op, ErrResetTokenNotFound)
		}

		if account.ResetTokenExpiresAt == nil || !s.now().Before(*account.ResetTokenExpiresAt) {
			lg.Info("reset_token_expired",
				slog.String("op", op),
				slog.Int64("account_id", account.ID),
			)
			return fmt.Errorf("%s: %w", op, ErrResetTokenExpired)
		}

		if err := validatePassword(newPassword); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}

		hashedPassword, err := hashPassword(newPassword)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}

		account.PasswordHash = hashedPassword
		account.ClearResetToken()

		err = s.storage.UpdateAccount(ctx, account)
		if errors.Is(err, storage.ErrVersionConflict) {
			continue
		}
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}

		lg.Info("password_reset_completed",
			slog.String("op", op),
			slog.Int64("account_id", account.ID),
		)
		return nil
	}

	return fmt.Errorf("%s: %w", op, ErrConcurrentUpdate)
}
