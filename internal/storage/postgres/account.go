package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/pribylovaa/taskmaster-auth/internal/models"
	"github.com/pribylovaa/taskmaster-auth/internal/storage"
)

// defaultPageLimit — размер страницы, если лимит не задан.
const defaultPageLimit = 50

// accountSelect выбирает аккаунт вместе с ролями одной строкой.
const accountSelect = `
	SELECT a.id, a.username, a.email::text AS email, a.password_hash,
	       a.first_name, a.last_name, a.bio, a.avatar_url, a.metadata,
	       a.status, a.email_verified,
	       a.verification_code, a.verification_code_expires_at,
	       a.reset_token_hash, a.reset_token_expires_at,
	       a.last_login_at, a.created_at, a.updated_at, a.version,
	       COALESCE(array_agg(r.id ORDER BY r.id) FILTER (WHERE r.id IS NOT NULL), '{}'::bigint[]) AS role_ids,
	       COALESCE(array_agg(r.name ORDER BY r.id) FILTER (WHERE r.id IS NOT NULL), '{}'::text[]) AS role_names,
	       COALESCE(array_agg(r.description ORDER BY r.id) FILTER (WHERE r.id IS NOT NULL), '{}'::text[]) AS role_descriptions
	FROM accounts a
	LEFT JOIN account_roles ar ON ar.account_id = a.id
	LEFT JOIN roles r ON r.id = ar.role_id
`

type accountRow struct {
	ID                        int64      `db:"id"`
	Username                  string     `db:"username"`
	Email                     string     `db:"email"`
	PasswordHash              string     `db:"password_hash"`
	FirstName                 string     `db:"first_name"`
	LastName                  string     `db:"last_name"`
	Bio                       string     `db:"bio"`
	AvatarURL                 string     `db:"avatar_url"`
	Metadata                  []byte     `db:"metadata"`
	Status                    string     `db:"status"`
	EmailVerified             bool       `db:"email_verified"`
	VerificationCode          *string    `db:"verification_code"`
	VerificationCodeExpiresAt *time.Time `db:"verification_code_expires_at"`
	ResetTokenHash            *string    `db:"reset_token_hash"`
	ResetTokenExpiresAt       *time.Time `db:"reset_token_expires_at"`
	LastLoginAt               *time.Time `db:"last_login_at"`
	CreatedAt                 time.Time  `db:"created_at"`
	UpdatedAt                 time.Time  `db:"updated_at"`
	Version                   int64      `db:"version"`
	RoleIDs                   []int64    `db:"role_ids"`
	RoleNames                 []string   `db:"role_names"`
	RoleDescriptions          []string   `db:"role_descriptions"`
}

func (r *accountRow) toModel() *models.Account {
	acc := &models.Account{
		ID:                        r.ID,
		Username:                  r.Username,
		Email:                     r.Email,
		PasswordHash:              r.PasswordHash,
		FirstName:                 r.FirstName,
		LastName:                  r.LastName,
		Bio:                       r.Bio,
		AvatarURL:                 r.AvatarURL,
		Metadata:                  json.RawMessage(r.Metadata),
		Status:                    models.AccountStatus(r.Status),
		EmailVerified:             r.EmailVerified,
		VerificationCode:          r.VerificationCode,
		VerificationCodeExpiresAt: utcPtr(r.VerificationCodeExpiresAt),
		ResetTokenHash:            r.ResetTokenHash,
		ResetTokenExpiresAt:       utcPtr(r.ResetTokenExpiresAt),
		LastLoginAt:               utcPtr(r.LastLoginAt),
		CreatedAt:                 r.CreatedAt.UTC(),
		UpdatedAt:                 r.UpdatedAt.UTC(),
		Version:                   r.Version,
	}

	for i := range r.RoleIDs {
		acc.Roles = append(acc.Roles, models.Role{
			ID:          r.RoleIDs[i],
			Name:        models.RoleName(r.RoleNames[i]),
			Description: r.RoleDescriptions[i],
		})
	}

	return acc
}

// SaveAccount создает новый аккаунт и назначает ему роли.
func (s *Storage) SaveAccount(ctx context.Context, account *models.Account) error {
	const op = "storage.postgres.SaveAccount"

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	query := `
		INSERT INTO accounts(
			username, email, password_hash, first_name, last_name, bio, avatar_url, metadata,
			status, email_verified, verification_code, verification_code_expires_at,
			reset_token_hash, reset_token_expires_at, last_login_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING id, created_at, updated_at, version
	`

	err = tx.QueryRow(ctx, query,
		account.Username,
		account.Email,
		account.PasswordHash,
		account.FirstName,
		account.LastName,
		account.Bio,
		account.AvatarURL,
		metadataOrEmpty(account.Metadata),
		string(account.Status),
		account.EmailVerified,
		account.VerificationCode,
		account.VerificationCodeExpiresAt,
		account.ResetTokenHash,
		account.ResetTokenExpiresAt,
		account.LastLoginAt,
	).Scan(&account.ID, &account.CreatedAt, &account.UpdatedAt, &account.Version)
	if err != nil {
		return fmt.Errorf("%s: %w", op, mapWriteErr(err))
	}

	if err := replaceRoles(ctx, tx, account.ID, account.Roles); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	account.CreatedAt = account.CreatedAt.UTC()
	account.UpdatedAt = account.UpdatedAt.UTC()

	return nil
}

// AccountByID находит аккаунт по ID.
func (s *Storage) AccountByID(ctx context.Context, id int64) (*models.Account, error) {
	return s.accountBy(ctx, "storage.postgres.AccountByID", "a.id = $1", id)
}

// AccountByEmail находит аккаунт по email (CITEXT, без учёта регистра).
func (s *Storage) AccountByEmail(ctx context.Context, email string) (*models.Account, error) {
	return s.accountBy(ctx, "storage.postgres.AccountByEmail", "a.email = $1", email)
}

// AccountByUsername находит аккаунт по username.
func (s *Storage) AccountByUsername(ctx context.Context, username string) (*models.Account, error) {
	return s.accountBy(ctx, "storage.postgres.AccountByUsername", "a.username = $1", username)
}

// AccountByResetTokenHash находит аккаунт по хэшу reset-токена.
func (s *Storage) AccountByResetTokenHash(ctx context.Context, hash string) (*models.Account, error) {
	return s.accountBy(ctx, "storage.postgres.AccountByResetTokenHash", "a.reset_token_hash = $1", hash)
}

func (s *Storage) accountBy(ctx context.Context, op, where string, arg any) (*models.Account, error) {
	var row accountRow
	err := pgxscan.Get(ctx, s.db, &row, accountSelect+" WHERE "+where+" GROUP BY a.id", arg)
	if err != nil {
		if pgxscan.NotFound(err) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return row.toModel(), nil
}

// ExistsByEmail проверяет, занят ли email.
func (s *Storage) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	const op = "storage.postgres.ExistsByEmail"

	var exists bool
	err := s.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM accounts WHERE email = $1)`, email).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return exists, nil
}

// UpdateAccount сохраняет аккаунт при совпадении версии и перезаписывает роли.
func (s *Storage) UpdateAccount(ctx context.Context, account *models.Account) error {
	const op = "storage.postgres.UpdateAccount"

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	query := `
		UPDATE accounts SET
			username = $3,
			email = $4,
			password_hash = $5,
			first_name = $6,
			last_name = $7,
			bio = $8,
			avatar_url = $9,
			metadata = $10,
			status = $11,
			email_verified = $12,
			verification_code = $13,
			verification_code_expires_at = $14,
			reset_token_hash = $15,
			reset_token_expires_at = $16,
			last_login_at = $17,
			updated_at = now(),
			version = version + 1
		WHERE id = $1 AND version = $2
		RETURNING version, updated_at
	`

	var (
		version   int64
		updatedAt time.Time
	)
	err = tx.QueryRow(ctx, query,
		account.ID,
		account.Version,
		account.Username,
		account.Email,
		account.PasswordHash,
		account.FirstName,
		account.LastName,
		account.Bio,
		account.AvatarURL,
		metadataOrEmpty(account.Metadata),
		string(account.Status),
		account.EmailVerified,
		account.VerificationCode,
		account.VerificationCodeExpiresAt,
		account.ResetTokenHash,
		account.ResetTokenExpiresAt,
		account.LastLoginAt,
	).Scan(&version, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%s: %w", op, s.missingOrStale(ctx, tx, account.ID))
		}

		return fmt.Errorf("%s: %w", op, mapWriteErr(err))
	}

	if err := replaceRoles(ctx, tx, account.ID, account.Roles); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	account.Version = version
	account.UpdatedAt = updatedAt.UTC()

	return nil
}

// missingOrStale различает отсутствие записи и устаревшую версию.
func (s *Storage) missingOrStale(ctx context.Context, tx pgx.Tx, id int64) error {
	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM accounts WHERE id = $1)`, id).Scan(&exists); err != nil {
		return err
	}

	if !exists {
		return storage.ErrNotFound
	}

	return storage.ErrVersionConflict
}

// ListAccounts возвращает страницу аккаунтов.
func (s *Storage) ListAccounts(ctx context.Context, page storage.Page) ([]models.Account, error) {
	const op = "storage.postgres.ListAccounts"

	limit := page.Limit
	if limit <= 0 {
		limit = defaultPageLimit
	}
	offset := page.Offset
	if offset < 0 {
		offset = 0
	}

	var rows []accountRow
	err := pgxscan.Select(ctx, s.db, &rows, accountSelect+" GROUP BY a.id ORDER BY a.id LIMIT $1 OFFSET $2", limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	out := make([]models.Account, 0, len(rows))
	for i := range rows {
		out = append(out, *rows[i].toModel())
	}

	return out, nil
}

// DeleteAccount удаляет аккаунт; назначения ролей удаляются каскадно.
func (s *Storage) DeleteAccount(ctx context.Context, id int64) error {
	const op = "storage.postgres.DeleteAccount"

	tag, err := s.db.Exec(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	return nil
}

// replaceRoles перезаписывает назначения ролей аккаунта внутри транзакции.
func replaceRoles(ctx context.Context, tx pgx.Tx, accountID int64, roles []models.Role) error {
	if _, err := tx.Exec(ctx, `DELETE FROM account_roles WHERE account_id = $1`, accountID); err != nil {
		return err
	}

	if len(roles) == 0 {
		return nil
	}

	names := make([]string, 0, len(roles))
	for _, r := range roles {
		names = append(names, string(r.Name))
	}

	tag, err := tx.Exec(ctx, `
		INSERT INTO account_roles(account_id, role_id)
		SELECT $1, id FROM roles WHERE name = ANY($2)
	`, accountID, names)
	if err != nil {
		return err
	}

	if int(tag.RowsAffected()) != len(uniqueNames(names)) {
		return fmt.Errorf("unknown role in %v: %w", names, storage.ErrNotFound)
	}

	return nil
}

func uniqueNames(names []string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}

	return set
}

// mapWriteErr переводит ошибки уникальности в storage.ErrAlreadyExists.
func mapWriteErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		return storage.ErrAlreadyExists
	}

	return err
}

func metadataOrEmpty(m json.RawMessage) []byte {
	if len(m) == 0 {
		return []byte("{}")
	}

	return m
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}

	u := t.UTC()
	return &u
}
