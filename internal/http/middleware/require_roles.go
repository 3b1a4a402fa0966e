package middleware

import (
	"log/slog"
	"net/http"

	"github.com/pribylovaa/taskmaster-auth/internal/access"
	apierrors "github.com/pribylovaa/taskmaster-auth/internal/errors"
	"github.com/pribylovaa/taskmaster-auth/internal/metrics"
	"github.com/pribylovaa/taskmaster-auth/internal/models"
	"github.com/pribylovaa/taskmaster-auth/internal/pkg/log"
)

// RequireRoles пропускает запрос, только если принципал имеет хотя бы одну из ролей.
// Анонимный запрос получает 403.
func RequireRoles(roles ...models.RoleName) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := access.Check(r.Context(), roles...); err != nil {
				metrics.AccessDeniedTotal.Inc()
				log.From(r.Context()).Info("access_denied",
					slog.String("path", r.URL.Path),
				)
				apierrors.WriteError(w, r, err)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
