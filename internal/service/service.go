// service содержит бизнес-логику аутентификации:
// регистрацию, подтверждение email одноразовым кодом, вход и выпуск пары
// токенов, сброс пароля, разрешение принципала и администрирование аккаунтов.
//
// Основные аспекты:
//   - Service не хранит состояние запроса и безопасен для конкурентного
//     использования при условии, что хранилище потокобезопасно.
//   - Записи аккаунта обновляются с оптимистической проверкой версии;
//     конкурентная выдача секрета проигравшим запросом не перезаписывает
//     секрет победителя.
//   - Ошибки возвращаются как обёрнутые sentinel-значения и маппятся
//     транспортом в HTTP-статусы (см. internal/errors).
package service

import (
	"errors"
	"time"

	"github.com/pribylovaa/taskmaster-auth/internal/config"
	"github.com/pribylovaa/taskmaster-auth/internal/mailer"
	"github.com/pribylovaa/taskmaster-auth/internal/storage"
	"github.com/pribylovaa/taskmaster-auth/internal/token"
)

// maxUpdateAttempts — число попыток read-modify-write при конфликте версий.
const maxUpdateAttempts = 3

var (
	// ErrInvalidCredentials — пара email/пароль неверна или аккаунт не найден.
	// Транспорт: HTTP 401.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrEmailNotVerified — email аккаунта ещё не подтверждён. Транспорт: HTTP 401.
	ErrEmailNotVerified = errors.New("email not verified")

	// ErrAccountDisabled — аккаунт отключён или заблокирован. Транспорт: HTTP 401.
	ErrAccountDisabled = errors.New("account disabled")

	// ErrInvalidCode — код подтверждения не совпал или уже использован.
	// Транспорт: HTTP 401.
	ErrInvalidCode = errors.New("invalid verification code")

	// ErrCodeExpired — срок кода подтверждения истёк. Транспорт: HTTP 401.
	ErrCodeExpired = errors.New("verification code expired")

	// ErrResetTokenNotFound — reset-токен не выдавался или уже использован.
	// Транспорт: HTTP 404.
	ErrResetTokenNotFound = errors.New("reset token not found")

	// ErrResetTokenExpired — срок reset-токена истёк. Транспорт: HTTP 401.
	ErrResetTokenExpired = errors.New("reset token expired")

	// ErrEmailTaken — email уже занят. Транспорт: HTTP 400.
	ErrEmailTaken = errors.New("email already taken")

	// ErrAccountExists — username или email заняты (гонка уникальности). Транспорт: HTTP 400.
	ErrAccountExists = errors.New("account already exists")

	// ErrInvalidEmail — email имеет некорректный формат. Транспорт: HTTP 400.
	ErrInvalidEmail = errors.New("invalid email format")

	// ErrWeakPassword — пароль не удовлетворяет политике сложности. Транспорт: HTTP 400.
	ErrWeakPassword = errors.New("password is too weak")

	// ErrEmptyPassword — пароль пустой. Транспорт: HTTP 400.
	ErrEmptyPassword = errors.New("password is empty")

	// ErrInvalidUsername — username вне диапазона 3..50 символов. Транспорт: HTTP 400.
	ErrInvalidUsername = errors.New("invalid username")

	// ErrInvalidName — имя или фамилия вне диапазона 1..70 символов. Транспорт: HTTP 400.
	ErrInvalidName = errors.New("invalid name")

	// ErrInvalidRole — неизвестная роль. Транспорт: HTTP 400.
	ErrInvalidRole = errors.New("invalid role")

	// ErrInvalidStatus — неизвестный статус аккаунта. Транспорт: HTTP 400.
	ErrInvalidStatus = errors.New("invalid status")

	// ErrInvalidPage — отрицательные limit или offset. Транспорт: HTTP 400.
	ErrInvalidPage = errors.New("invalid page")

	// ErrAccountNotFound — аккаунт не найден (админские операции). Транспорт: HTTP 404.
	ErrAccountNotFound = errors.New("account not found")

	// ErrAdminDisableForbidden — аккаунт с ролью ADMIN нельзя отключить. Транспорт: HTTP 403.
	ErrAdminDisableForbidden = errors.New("cannot disable admin account")

	// ErrAdminDeleteForbidden — аккаунт с ролью ADMIN нельзя удалить. Транспорт: HTTP 403.
	ErrAdminDeleteForbidden = errors.New("cannot delete admin account")

	// ErrConcurrentUpdate — аккаунт менялся параллельно, попытки исчерпаны. Транспорт: HTTP 409.
	ErrConcurrentUpdate = errors.New("concurrent account update")

	// ErrUnresolvedPrincipal — принципал запрошен без аккаунта. Транспорт: HTTP 500.
	ErrUnresolvedPrincipal = errors.New("principal has no backing account")
)

// Service описывает бизнес-логику auth-сервиса.
type Service struct {
	storage storage.Storage
	mailer  mailer.Mailer
	tokens  *token.Service
	cfg     config.AuthConfig
	secrets config.SecretsConfig
	now     func() time.Time
}

// Option настраивает Service.
type Option func(*Service)

// WithClock подменяет источник времени (для тестов).
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// New создаёт новый экземпляр Service.
func New(
	st storage.Storage,
	m mailer.Mailer,
	tokens *token.Service,
	cfg config.AuthConfig,
	secrets config.SecretsConfig,
	opts ...Option,
) *Service {
	s := &Service{
		storage: st,
		mailer:  m,
		tokens:  tokens,
		cfg:     cfg,
		secrets: secrets,
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, o := range opts {
		o(s)
	}

	return s
}
