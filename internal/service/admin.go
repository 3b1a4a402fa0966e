package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/pribylovaa/taskmaster-auth/internal/models"
	"github.com/pribylovaa/taskmaster-auth/internal/pkg/log"
	"github.com/pribylovaa/taskmaster-auth/internal/storage"
)

// ListAccounts возвращает страницу аккаунтов, упорядоченную по id.
func (s *Service) ListAccounts(ctx context.Context, page storage.Page) ([]models.Account, error) {
	const op = "service.admin.ListAccounts"

	if page.Limit < 0 || page.Offset < 0 {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidPage)
	}

	accounts, err := s.storage.ListAccounts(ctx, page)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return accounts, nil
}

// AccountByID возвращает аккаунт по id.
func (s *Service) AccountByID(ctx context.Context, id int64) (*models.Account, error) {
	const op = "service.admin.AccountByID"

	account, err := s.storage.AccountByID(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrAccountNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return account, nil
}

// UpdateRole заменяет набор ролей аккаунта одной ролью name.
func (s *Service) UpdateRole(ctx context.Context, id int64, name models.RoleName) (*models.Account, error) {
	const op = "service.admin.UpdateRole"

	if !name.Valid() {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidRole)
	}

	role, err := s.storage.RoleByName(ctx, name)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrInvalidRole)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	account, err := s.updateAccount(ctx, id, func(a *models.Account) error {
		a.Roles = []models.Role{*role}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	log.From(ctx).Info("account_role_updated",
		slog.String("op", op),
		slog.Int64("account_id", id),
		slog.String("role", string(name)),
	)

	return account, nil
}

// UpdateStatus меняет статус аккаунта. ADMIN нельзя перевести в DISABLED или BANNED.
func (s *Service) UpdateStatus(ctx context.Context, id int64, status models.AccountStatus) (*models.Account, error) {
	const op = "service.admin.UpdateStatus"

	if !status.Valid() {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidStatus)
	}

	account, err := s.updateAccount(ctx, id, func(a *models.Account) error {
		if status != models.StatusActive && a.HasRole(models.RoleAdmin) {
			return ErrAdminDisableForbidden
		}
		a.Status = status
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	log.From(ctx).Info("account_status_updated",
		slog.String("op", op),
		slog.Int64("account_id", id),
		slog.String("status", string(status)),
	)

	return account, nil
}

// DeleteAccount удаляет аккаунт. Аккаунты с ролью ADMIN удалить нельзя.
func (s *Service) DeleteAccount(ctx context.Context, id int64) error {
	const op = "service.admin.DeleteAccount"

	account, err := s.AccountByID(ctx, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if account.HasRole(models.RoleAdmin) {
		return fmt.Errorf("%s: %w", op, ErrAdminDeleteForbidden)
	}

	if err := s.storage.DeleteAccount(ctx, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%s: %w", op, ErrAccountNotFound)
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	log.From(ctx).Info("account_deleted",
		slog.String("op", op),
		slog.Int64("account_id", id),
	)

	return nil
}

// updateAccount выполняет read-modify-write с повтором при конфликте версий.
// mutate вызывается заново на каждом свежем снимке.
func (s *Service) updateAccount(ctx context.Context, id int64, mutate func(*models.Account) error) (*models.Account, error) {
	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		account, err := s.AccountByID(ctx, id)
		if err != nil {
			return nil, err
		}

		if err := mutate(account); err != nil {
			return nil, err
		}

		err = s.storage.UpdateAccount(ctx, account)
		switch {
		case err == nil:
			return account, nil
		case errors.Is(err, storage.ErrVersionConflict):
			continue
		case errors.Is(err, storage.ErrNotFound):
			return nil, ErrAccountNotFound
		default:
			return nil, err
		}
	}

	return nil, ErrConcurrentUpdate
}
