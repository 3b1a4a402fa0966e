// token выпускает и проверяет подписанные JWT (HS256) без серверного состояния.
//
// Service неизменяем после New и безопасен для конкурентного использования.
// Access- и refresh-токены подписываются одним секретом и различаются
// claim'ом typ.
package token

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/pribylovaa/taskmaster-auth/internal/pkg/log"
)

// MinSecretLength — минимальная длина секрета HS256 в байтах.
const MinSecretLength = 32

var (
	// ErrSecretTooShort — секрет подписи короче MinSecretLength.
	ErrSecretTooShort = errors.New("signing secret is too short")
	// ErrInvalidToken — подпись не сходится, структура битая или claims некорректны.
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenExpired — срок действия токена истёк.
	ErrTokenExpired = errors.New("token expired")
	// ErrEmptySubject — попытка выпустить токен без subject.
	ErrEmptySubject = errors.New("empty token subject")
)

// Kind — назначение токена.
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

// Claims — полезная нагрузка токена.
type Claims struct {
	UserID *int64 `json:"userId,omitempty"`
	Kind   Kind   `json:"typ,omitempty"`
	jwt.RegisteredClaims
}

// Service выпускает и проверяет токены.
type Service struct {
	secret []byte
	issuer string
	now    func() time.Time
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

// WithIssuer задаёт iss, который пишется в токен и проверяется при разборе.
func WithIssuer(issuer string) Option {
	return func(s *Service) { s.issuer = issuer }
}

// New создаёт Service. Короткий секрет считается ошибкой конфигурации:
// случайный ключ на процесс вместо него не генерируется.
func New(secret string, opts ...Option) (*Service, error) {
	const op = "token.New"

	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("%s: got %d bytes, need %d: %w", op, len(secret), MinSecretLength, ErrSecretTooShort)
	}

	s := &Service{
		secret: []byte(secret),
		now:    time.Now,
	}
	for _, o := range opts {
		o(s)
	}

	return s, nil
}

// Issue подписывает токен с iat = now и exp = now+ttl.
// Поля RegisteredClaims из claims перезаписываются.
func (s *Service) Issue(subject string, claims Claims, ttl time.Duration) (string, error) {
	const op = "token.Issue"

	if subject == "" {
		return "", fmt.Errorf("%s: %w", op, ErrEmptySubject)
	}

	now := s.now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    s.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return signed, nil
}

// Verify проверяет подпись, алгоритм, срок и issuer и возвращает claims.
func (s *Service) Verify(tokenStr string) (*Claims, error) {
	const op = "token.Verify"

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	tok, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}

		return s.secret, nil
	}, opts...)
	if err != nil {
		// Подпись проверяется раньше claims, поэтому ErrTokenExpired
		// означает корректно подписанный, но просроченный токен.
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%s: %w", op, ErrTokenExpired)
		}

		return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	claims, ok := tok.Claims.(*Claims)
	if !ok || !tok.Valid || claims.Subject == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	return claims, nil
}

// SubjectOf возвращает subject проверенного токена.
func (s *Service) SubjectOf(tokenStr string) (string, error) {
	claims, err := s.Verify(tokenStr)
	if err != nil {
		return "", err
	}

	return claims.Subject, nil
}

// IsValid сообщает, что токен подписан нашим секретом, не просрочен и,
// если expectedSubject не пуст, выпущен на этот subject.
func (s *Service) IsValid(tokenStr, expectedSubject string) bool {
	claims, err := s.Verify(tokenStr)
	if err != nil {
		return false
	}

	return expectedSubject == "" || claims.Subject == expectedSubject
}

// IsExpired возвращает false только для токена, который удалось проверить
// и срок которого ещё не истёк. Нечитаемый токен считается просроченным.
func (s *Service) IsExpired(tokenStr string) bool {
	_, err := s.Verify(tokenStr)
	return err != nil
}

// Revoke ничего не делает: списка отозванных токенов нет, logout сводится
// к удалению токена на стороне клиента.
func (s *Service) Revoke(ctx context.Context, tokenStr string) error {
	log.From(ctx).Debug("token_revoke_noop",
		slog.String("op", "token.Revoke"),
		slog.Bool("valid", s.IsValid(tokenStr, "")),
	)

	return nil
}
