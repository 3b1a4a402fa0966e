package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/pribylovaa/taskmaster-auth/internal/models"
	"github.com/pribylovaa/taskmaster-auth/internal/storage"
)

// ResolvePrincipal строит принципала из аккаунта:
// Enabled = status == ACTIVE, полномочия: ROLE_<name> для каждой роли без повторов.
func ResolvePrincipal(account *models.Account) (*models.Principal, error) {
	const op = "service.principal.ResolvePrincipal"

	if account == nil {
		return nil, fmt.Errorf("%s: %w", op, ErrUnresolvedPrincipal)
	}

	authorities := make([]string, 0, len(account.Roles))
	seen := make(map[string]struct{}, len(account.Roles))
	for _, r := range account.Roles {
		a := r.Name.Authority()
		if _, dup := seen[a]; dup {
			continue
		}
		seen[a] = struct{}{}
		authorities = append(authorities, a)
	}

	return &models.Principal{
		AccountID:   account.ID,
		Username:    account.Username,
		Email:       account.Email,
		Enabled:     account.Status == models.StatusActive,
		Authorities: authorities,
	}, nil
}

// LoadPrincipal загружает аккаунт по username (subject токена) и строит принципала.
func (s *Service) LoadPrincipal(ctx context.Context, username string) (*models.Principal, error) {
	const op = "service.principal.LoadPrincipal"

	account, err := s.storage.AccountByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrAccountNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	p, err := ResolvePrincipal(account)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return p, nil
}
