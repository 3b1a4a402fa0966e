package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"

	"github.com/pribylovaa/taskmaster-auth/internal/models"
	"github.com/pribylovaa/taskmaster-auth/internal/pkg/log"
	"github.com/pribylovaa/taskmaster-auth/internal/pkg/redact"
	"github.com/pribylovaa/taskmaster-auth/internal/storage"
	"github.com/pribylovaa/taskmaster-auth/internal/token"
)

// RegisterInput — данные регистрации.
type RegisterInput struct {
	Username  string
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// Register создаёт аккаунт в статусе PENDING с ролью USER
// и отправляет код подтверждения на email.
//
// Ошибка почты возвращается после того, как аккаунт уже сохранён;
// новый код можно запросить через ResendVerification.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*models.Account, error) {
	const op = "service.auth.Register"

	lg := log.From(ctx)

	in, err := normalizeRegistration(in)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	taken, err := s.storage.ExistsByEmail(ctx, in.Email)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if taken {
		return nil, fmt.Errorf("%s: %w", op, ErrEmailTaken)
	}

	hashedPassword, err := hashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	role, err := s.storage.RoleByName(ctx, models.RoleUser)
	if err != nil {
		lg.Error("default_role_lookup_failed",
			slog.String("op", op),
			slog.String("err", err.Error()),
		)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	code, expiresAt, err := s.generateVerificationCode()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	account := &models.Account{
		Username:                  in.Username,
		Email:                     in.Email,
		PasswordHash:              hashedPassword,
		FirstName:                 in.FirstName,
		LastName:                  in.LastName,
		Status:                    models.StatusPending,
		EmailVerified:             false,
		VerificationCode:          &code,
		VerificationCodeExpiresAt: &expiresAt,
		Roles:                     []models.Role{*role},
	}

	if err := s.storage.SaveAccount(ctx, account); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			return nil, fmt.Errorf("%s: %w", op, ErrAccountExists)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	lg.Info("account_registered",
		slog.String("op", op),
		slog.Int64("account_id", account.ID),
		slog.String("email", redact.Email(account.Email)),
	)

	if err := s.mailer.SendVerificationEmail(ctx, account.Email, code); err != nil {
		lg.Error("verification_email_failed",
			slog.String("op", op),
			slog.Int64("account_id", account.ID),
			slog.String("err", err.Error()),
		)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return account, nil
}

// Login выполняет вход по email+пароль и выпускает пару токенов.
func (s *Service) Login(ctx context.Context, email, password string) (*models.TokenPair, *models.Account, error) {
	const op = "service.auth.Login"

	lg := log.From(ctx)

	normEmail, err := validateEmail(email)
	if err != nil || password == "" {
		return nil, nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	account, err := s.storage.AccountByEmail(ctx, normEmail)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
		}

		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	if !checkPassword(account.PasswordHash, password) {
		lg.Info("login_bad_password",
			slog.String("op", op),
			slog.Int64("account_id", account.ID),
		)
		return nil, nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	if !account.EmailVerified {
		return nil, nil, fmt.Errorf("%s: %w", op, ErrEmailNotVerified)
	}

	if account.Status != models.StatusActive {
		return nil, nil, fmt.Errorf("%s: %w", op, ErrAccountDisabled)
	}

	now := s.now()
	account.LastLoginAt = &now
	if err := s.storage.UpdateAccount(ctx, account); err != nil {
		if !errors.Is(err, storage.ErrVersionConflict) {
			return nil, nil, fmt.Errorf("%s: %w", op, err)
		}

		// Проверки прошли на согласованном снимке; отметка о входе некритична.
		lg.Warn("last_login_update_conflict",
			slog.String("op", op),
			slog.Int64("account_id", account.ID),
		)
	}

	pair, err := s.issueTokenPair(ctx, account)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	return pair, account, nil
}

// Refresh выпускает новую пару токенов по refresh-токену.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*models.TokenPair, error) {
	const op = "service.auth.Refresh"

	claims, err := s.tokens.Verify(refreshToken)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if claims.Kind != token.KindRefresh {
		return nil, fmt.Errorf("%s: %w", op, token.ErrInvalidToken)
	}

	account, err := s.storage.AccountByUsername(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, token.ErrInvalidToken)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if !account.EmailVerified {
		return nil, fmt.Errorf("%s: %w", op, ErrEmailNotVerified)
	}

	if account.Status != models.StatusActive {
		return nil, fmt.Errorf("%s: %w", op, ErrAccountDisabled)
	}

	return s.issueTokenPair(ctx, account)
}

// Logout отзывает access-токен. Серверного списка отзыва нет,
// поэтому это только сигнал клиенту удалить токен.
func (s *Service) Logout(ctx context.Context, accessToken string) error {
	const op = "service.auth.Logout"

	if err := s.tokens.Revoke(ctx, accessToken); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// issueTokenPair выпускает access- и refresh-токены с subject = username.
func (s *Service) issueTokenPair(ctx context.Context, account *models.Account) (*models.TokenPair, error) {
	const op = "service.auth.issueTokenPair"

	lg := log.From(ctx)

	uid := account.ID
	now := s.now()

	access, err := s.tokens.Issue(account.Username, token.Claims{UserID: &uid, Kind: token.KindAccess}, s.cfg.AccessTokenTTL)
	if err != nil {
		lg.Error("access_token_sign_failed",
			slog.String("op", op),
			slog.String("err", err.Error()),
		)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	refresh, err := s.tokens.Issue(account.Username, token.Claims{UserID: &uid, Kind: token.KindRefresh}, s.cfg.RefreshTokenTTL)
	if err != nil {
		lg.Error("refresh_token_sign_failed",
			slog.String("op", op),
			slog.String("err", err.Error()),
		)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &models.TokenPair{
		AccessToken:     access,
		RefreshToken:    refresh,
		TokenType:       models.TokenTypeBearer,
		ExpiresIn:       s.cfg.AccessTokenTTL,
		AccessExpiresAt: now.Add(s.cfg.AccessTokenTTL),
	}, nil
}

// hashPassword хэширует пароль с помощью bcrypt.
func hashPassword(password string) (string, error) {
	const op = "service.auth.hashPassword"

	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return string(bytes), nil
}

// checkPassword сравнивает пароль с хэшем.
func checkPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// normalizeRegistration обрезает пробелы и проверяет поля регистрации.
func normalizeRegistration(in RegisterInput) (RegisterInput, error) {
	email, err := validateEmail(in.Email)
	if err != nil {
		return in, err
	}
	in.Email = email

	in.Username = strings.TrimSpace(in.Username)
	if n := utf8.RuneCountInString(in.Username); n < 3 || n > 50 {
		return in, ErrInvalidUsername
	}

	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	for _, name := range []string{in.FirstName, in.LastName} {
		if n := utf8.RuneCountInString(name); n < 1 || n > 70 {
			return in, ErrInvalidName
		}
	}

	if err := validatePassword(in.Password); err != nil {
		return in, err
	}

	return in, nil
}

// validateEmail проверяет базовый формат email и обрезает пробелы снаружи.
func validateEmail(raw string) (string, error) {
	const op = "service.auth.validateEmail"

	email := strings.TrimSpace(raw)
	if email == "" {
		return "", fmt.Errorf("%s: %w", op, ErrInvalidEmail)
	}

	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("%s: %w", op, ErrInvalidEmail)
	}

	return strings.ToLower(email), nil
}

// validatePassword проверяет минимальные требования к паролю.
// Политика: длина >= 8, хотя бы одна строчная, заглавная, цифра и спецсимвол.
func validatePassword(pw string) error {
	const op = "service.auth.validatePassword"

	if len(pw) == 0 {
		return fmt.Errorf("%s: %w", op, ErrEmptyPassword)
	}

	if utf8.RuneCountInString(pw) < 8 {
		return fmt.Errorf("%s: %w", op, ErrWeakPassword)
	}

	var hasLower, hasUpper, hasDigit, hasSpecial bool
	for _, r := range pw {
		switch {
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			hasSpecial = true
		}
	}

	if !hasLower || !hasUpper || !hasDigit || !hasSpecial {
		return fmt.Errorf("%s: %w", op, ErrWeakPassword)
	}

	return nil
}
