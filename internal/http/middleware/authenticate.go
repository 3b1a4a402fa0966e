package middleware

import (
	"log/slog"
	"net/http"

	"github.com/pribylovaa/taskmaster-auth/internal/authctx"
	"github.com/pribylovaa/taskmaster-auth/internal/authn"
	"github.com/pribylovaa/taskmaster-auth/internal/metrics"
	"github.com/pribylovaa/taskmaster-auth/internal/pkg/log"
)

// Authenticate разрешает Bearer-токен в принципала и кладёт его в контекст запроса.
//
// Мидлвар не отклоняет запросы: при отсутствии или непригодности токена
// запрос продолжается анонимно, а защищённые маршруты отсекает RequireRoles.
// Pre-flight (OPTIONS) пропускается без проверки. Если принципал уже
// в контексте, повторной аутентификации нет.
func Authenticate(a *authn.Authenticator) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			if _, ok := authctx.PrincipalFrom(r.Context()); ok {
				next.ServeHTTP(w, r)
				return
			}

			p, outcome := a.Resolve(r.Context(), r.Header.Get("Authorization"))
			metrics.MiddlewareTotal.WithLabelValues(string(outcome)).Inc()

			if p == nil {
				if outcome != authn.OutcomeNoToken {
					log.From(r.Context()).Debug("request_anonymous",
						slog.String("outcome", string(outcome)),
					)
				}
				next.ServeHTTP(w, r)
				return
			}

			ctx := authctx.WithPrincipal(r.Context(), p)
			ctx = log.With(ctx, slog.Int64("account_id", p.AccountID))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
