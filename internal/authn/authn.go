// authn разрешает bearer-токен запроса в принципала.
//
// Отказ никогда не является ошибкой: Resolve возвращает исход, а вызывающий
// транспорт (HTTP-мидлвар, gRPC-интерсептор) продолжает запрос анонимно.
// Отклоняет доступ только проверка ролей в access.
package authn

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/pribylovaa/taskmaster-auth/internal/models"
	"github.com/pribylovaa/taskmaster-auth/internal/pkg/log"
	"github.com/pribylovaa/taskmaster-auth/internal/service"
	"github.com/pribylovaa/taskmaster-auth/internal/token"
)

// Outcome — исход разрешения токена; используется как значение метки метрики.
type Outcome string

const (
	OutcomeAuthenticated Outcome = "authenticated"
	OutcomeNoToken       Outcome = "no_token"
	OutcomeMalformed     Outcome = "malformed"
	OutcomeExpired       Outcome = "expired"
	OutcomeInvalid       Outcome = "invalid"
	OutcomeWrongKind     Outcome = "wrong_kind"
	OutcomeUnknown       Outcome = "unknown_principal"
	OutcomeDisabled      Outcome = "disabled"
	OutcomeLookupError   Outcome = "lookup_error"
)

// TokenVerifier проверяет подпись и срок токена.
type TokenVerifier interface {
	Verify(tokenStr string) (*token.Claims, error)
	IsValid(tokenStr, expectedSubject string) bool
}

// PrincipalLoader загружает принципала по subject токена.
type PrincipalLoader interface {
	LoadPrincipal(ctx context.Context, username string) (*models.Principal, error)
}

// Authenticator связывает проверку токена и загрузку принципала.
type Authenticator struct {
	tokens     TokenVerifier
	principals PrincipalLoader
}

// New создаёт Authenticator.
func New(tokens TokenVerifier, principals PrincipalLoader) *Authenticator {
	return &Authenticator{tokens: tokens, principals: principals}
}

// ParseBearer извлекает токен из значения заголовка Authorization.
// Схема сравнивается без учёта регистра; пустой токен считается отсутствующим.
func ParseBearer(header string) (string, Outcome) {
	if header == "" {
		return "", OutcomeNoToken
	}

	scheme, raw, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", OutcomeMalformed
	}

	raw = strings.TrimSpace(raw)
	if raw == "" || strings.ContainsAny(raw, " \t") {
		return "", OutcomeMalformed
	}

	return raw, ""
}

// Resolve проверяет access-токен и загружает принципала.
// Принципал возвращается только при OutcomeAuthenticated.
func (a *Authenticator) Resolve(ctx context.Context, header string) (*models.Principal, Outcome) {
	const op = "authn.Resolve"

	lg := log.From(ctx)

	raw, outcome := ParseBearer(header)
	if outcome != "" {
		return nil, outcome
	}

	claims, err := a.tokens.Verify(raw)
	if err != nil {
		if errors.Is(err, token.ErrTokenExpired) {
			return nil, OutcomeExpired
		}

		return nil, OutcomeInvalid
	}

	if claims.Kind != token.KindAccess {
		return nil, OutcomeWrongKind
	}

	p, err := a.principals.LoadPrincipal(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, service.ErrAccountNotFound) {
			return nil, OutcomeUnknown
		}

		// Ошибка хранилища не прерывает запрос: он продолжается анонимно.
		lg.Warn("principal_lookup_failed",
			slog.String("op", op),
			slog.String("err", err.Error()),
		)
		return nil, OutcomeLookupError
	}

	if !a.tokens.IsValid(raw, p.Username) {
		return nil, OutcomeInvalid
	}

	if !p.Enabled {
		return nil, OutcomeDisabled
	}

	return p, OutcomeAuthenticated
}
