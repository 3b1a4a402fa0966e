// authctx переносит аутентифицированного принципала в контексте одного запроса.
package authctx

import (
	"context"

	"github.com/pribylovaa/taskmaster-auth/internal/models"
)

type principalKey struct{}

// WithPrincipal кладёт принципала в контекст.
func WithPrincipal(ctx context.Context, p *models.Principal) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}

	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom достаёт принципала из контекста.
func PrincipalFrom(ctx context.Context) (*models.Principal, bool) {
	if ctx == nil {
		return nil, false
	}

	p, ok := ctx.Value(principalKey{}).(*models.Principal)
	return p, ok && p != nil
}
