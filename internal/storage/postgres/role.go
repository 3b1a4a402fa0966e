package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/pribylovaa/taskmaster-auth/internal/models"
	"github.com/pribylovaa/taskmaster-auth/internal/storage"
)

// RoleByName находит роль по имени.
func (s *Storage) RoleByName(ctx context.Context, name models.RoleName) (*models.Role, error) {
	const op = "storage.postgres.RoleByName"

	query := `
		SELECT id, name, description
		FROM roles
		WHERE name = $1
	`

	var (
		role     models.Role
		roleName string
	)
	err := s.db.QueryRow(ctx, query, string(name)).Scan(&role.ID, &roleName, &role.Description)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}
	role.Name = models.RoleName(roleName)

	return &role, nil
}
