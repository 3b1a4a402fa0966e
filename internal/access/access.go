// access принимает решение о доступе к операции по ролям принципала.
//
// Отсутствующий принципал не имеет полномочий и не проходит ни одну проверку,
// поэтому каждая защищённая операция обязана вызывать Check сама.
package access

import (
	"context"
	"errors"

	"github.com/pribylovaa/taskmaster-auth/internal/authctx"
	"github.com/pribylovaa/taskmaster-auth/internal/models"
)

// ErrRoleDenied — у принципала нет ни одной роли из разрешённого набора.
var ErrRoleDenied = errors.New("access denied")

// Allows сообщает, пересекаются ли полномочия p с allowed.
func Allows(p *models.Principal, allowed ...models.RoleName) bool {
	if p == nil || len(allowed) == 0 {
		return false
	}

	want := make([]string, 0, len(allowed))
	for _, r := range allowed {
		want = append(want, r.Authority())
	}

	return p.HasAnyAuthority(want...)
}

// Check проверяет принципала из контекста против allowed.
func Check(ctx context.Context, allowed ...models.RoleName) error {
	p, _ := authctx.PrincipalFrom(ctx)
	if !Allows(p, allowed...) {
		return ErrRoleDenied
	}

	return nil
}
