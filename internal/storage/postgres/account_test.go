package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/pribylovaa/taskmaster-auth/internal/models"
	"github.com/pribylovaa/taskmaster-auth/internal/storage"
)

// Интеграционные тесты репозитория аккаунтов:
// - поднимают PostgreSQL через testcontainers-go (postgres:16-alpine);
// - применяют встроенные goose-миграции через Migrate;
// - проверяют CRUD, CITEXT-уникальность, роли и оптимистическую блокировку.
//
// Запуск локально:
//   GO_TEST_INTEGRATION=1 go test ./internal/storage/postgres -v -race -count=1

// startPostgres поднимает временный PostgreSQL, применяет миграции
// и возвращает хранилище и функцию очистки.
func startPostgres(t *testing.T) (*Storage, func()) {
	t.Helper()
	if os.Getenv("GO_TEST_INTEGRATION") == "" {
		t.Skip("integration tests are disabled (set GO_TEST_INTEGRATION=1)")
	}

	ctx := context.Background()
	req := tc.ContainerRequest{
		Image:        "postgres:16-alpine",
		Env:          map[string]string{"POSTGRES_USER": "user", "POSTGRES_PASSWORD": "pass", "POSTGRES_DB": "db"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}
	c, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{ContainerRequest: req, Started: true})
	require.NoError(t, err)

	host, err := c.Host(ctx)
	require.NoError(t, err)
	port, err := c.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)
	dsn := fmt.Sprintf("postgres://user:pass@%s:%s/db?sslmode=disable", host, port.Port())

	require.NoError(t, Migrate(ctx, dsn))

	st, err := New(ctx, dsn)
	require.NoError(t, err)

	cleanup := func() {
		st.Close()
		_ = c.Terminate(context.Background())
	}
	return st, cleanup
}

func newAccount(username, email string, roles ...models.RoleName) *models.Account {
	code := "0427"
	exp := time.Now().UTC().Add(20 * time.Minute)

	acc := &models.Account{
		Username:                  username,
		Email:                     email,
		PasswordHash:              "hash",
		FirstName:                 "Ada",
		LastName:                  "Lovelace",
		Status:                    models.StatusPending,
		VerificationCode:          &code,
		VerificationCodeExpiresAt: &exp,
	}
	for _, r := range roles {
		acc.Roles = append(acc.Roles, models.Role{Name: r})
	}

	return acc
}

func TestIntegration_SaveAccount_And_Lookups_OK(t *testing.T) {
	st, cleanup := startPostgres(t)
	defer cleanup()
	ctx := context.Background()

	acc := newAccount("ada", "Ada@Example.Com", models.RoleUser)
	require.NoError(t, st.SaveAccount(ctx, acc))
	require.NotZero(t, acc.ID)
	require.Equal(t, int64(1), acc.Version)

	byEmail, err := st.AccountByEmail(ctx, "ada@example.com")
	require.NoError(t, err)
	require.Equal(t, acc.ID, byEmail.ID)
	require.Equal(t, models.StatusPending, byEmail.Status)
	require.NotNil(t, byEmail.VerificationCode)
	require.Equal(t, "0427", *byEmail.VerificationCode)
	require.Len(t, byEmail.Roles, 1)
	require.Equal(t, models.RoleUser, byEmail.Roles[0].Name)
	require.NotEmpty(t, byEmail.Roles[0].Description)

	byName, err := st.AccountByUsername(ctx, "ada")
	require.NoError(t, err)
	require.Equal(t, acc.ID, byName.ID)

	byID, err := st.AccountByID(ctx, acc.ID)
	require.NoError(t, err)
	require.Equal(t, "ada", byID.Username)

	exists, err := st.ExistsByEmail(ctx, "ADA@example.com")
	require.NoError(t, err)
	require.True(t, exists)

	exists, err = st.ExistsByEmail(ctx, "nobody@example.com")
	require.NoError(t, err)
	require.False(t, exists)
}

func TestIntegration_Lookups_NotFound(t *testing.T) {
	st, cleanup := startPostgres(t)
	defer cleanup()
	ctx := context.Background()

	_, err := st.AccountByID(ctx, 4242)
	require.ErrorIs(t, err, storage.ErrNotFound)
	_, err = st.AccountByEmail(ctx, "nobody@example.com")
	require.ErrorIs(t, err, storage.ErrNotFound)
	_, err = st.AccountByUsername(ctx, "nobody")
	require.ErrorIs(t, err, storage.ErrNotFound)
	_, err = st.AccountByResetTokenHash(ctx, "nohash")
	require.ErrorIs(t, err, storage.ErrNotFound)
	_, err = st.RoleByName(ctx, "ROOT")
	require.ErrorIs(t, err, storage.ErrNotFound)
	require.ErrorIs(t, st.DeleteAccount(ctx, 4242), storage.ErrNotFound)
}

func TestIntegration_SaveAccount_UniqueViolations(t *testing.T) {
	st, cleanup := startPostgres(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, st.SaveAccount(ctx, newAccount("ada", "ada@example.com", models.RoleUser)))

	err := st.SaveAccount(ctx, newAccount("ada2", "ADA@EXAMPLE.COM", models.RoleUser))
	require.ErrorIs(t, err, storage.ErrAlreadyExists)

	err = st.SaveAccount(ctx, newAccount("ada", "other@example.com", models.RoleUser))
	require.ErrorIs(t, err, storage.ErrAlreadyExists)
}

func TestIntegration_UpdateAccount_VersionCheck(t *testing.T) {
	st, cleanup := startPostgres(t)
	defer cleanup()
	ctx := context.Background()

	acc := newAccount("ada", "ada@example.com", models.RoleUser)
	require.NoError(t, st.SaveAccount(ctx, acc))

	first, err := st.AccountByID(ctx, acc.ID)
	require.NoError(t, err)
	second, err := st.AccountByID(ctx, acc.ID)
	require.NoError(t, err)

	// Первый писатель выигрывает.
	hashA := "hash-a"
	expA := time.Now().UTC().Add(time.Hour)
	first.ResetTokenHash, first.ResetTokenExpiresAt = &hashA, &expA
	require.NoError(t, st.UpdateAccount(ctx, first))
	require.Equal(t, int64(2), first.Version)

	// Второй писатель со старой версией получает конфликт.
	hashB := "hash-b"
	second.ResetTokenHash, second.ResetTokenExpiresAt = &hashB, &expA
	require.ErrorIs(t, st.UpdateAccount(ctx, second), storage.ErrVersionConflict)

	got, err := st.AccountByResetTokenHash(ctx, "hash-a")
	require.NoError(t, err)
	require.Equal(t, acc.ID, got.ID)

	_, err = st.AccountByResetTokenHash(ctx, "hash-b")
	require.ErrorIs(t, err, storage.ErrNotFound)

	missing := *got
	missing.ID = 99999
	require.ErrorIs(t, st.UpdateAccount(ctx, &missing), storage.ErrNotFound)
}

func TestIntegration_UpdateAccount_ClearsSecretsAndReplacesRoles(t *testing.T) {
	st, cleanup := startPostgres(t)
	defer cleanup()
	ctx := context.Background()

	acc := newAccount("ada", "ada@example.com", models.RoleUser)
	require.NoError(t, st.SaveAccount(ctx, acc))

	got, err := st.AccountByID(ctx, acc.ID)
	require.NoError(t, err)

	now := time.Now().UTC()
	got.ClearVerificationCode()
	got.EmailVerified = true
	got.Status = models.StatusActive
	got.LastLoginAt = &now
	got.Roles = []models.Role{{Name: models.RoleManager}, {Name: models.RoleAdmin}}
	require.NoError(t, st.UpdateAccount(ctx, got))

	after, err := st.AccountByID(ctx, acc.ID)
	require.NoError(t, err)
	require.Nil(t, after.VerificationCode)
	require.Nil(t, after.VerificationCodeExpiresAt)
	require.True(t, after.EmailVerified)
	require.Equal(t, models.StatusActive, after.Status)
	require.NotNil(t, after.LastLoginAt)
	require.WithinDuration(t, now, *after.LastLoginAt, time.Second)
	require.True(t, after.HasRole(models.RoleManager))
	require.True(t, after.HasRole(models.RoleAdmin))
	require.False(t, after.HasRole(models.RoleUser))
}

func TestIntegration_ListAndDelete(t *testing.T) {
	st, cleanup := startPostgres(t)
	defer cleanup()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, st.SaveAccount(ctx, newAccount(fmt.Sprintf("user%d", i), fmt.Sprintf("u%d@example.com", i), models.RoleUser)))
	}

	all, err := st.ListAccounts(ctx, storage.Page{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Less(t, all[0].ID, all[1].ID)

	page, err := st.ListAccounts(ctx, storage.Page{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	require.Equal(t, all[1].ID, page[0].ID)

	require.NoError(t, st.DeleteAccount(ctx, all[0].ID))
	_, err = st.AccountByID(ctx, all[0].ID)
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestIntegration_ContextCanceled(t *testing.T) {
	st, cleanup := startPostgres(t)
	defer cleanup()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := st.AccountByEmail(ctx, "ada@example.com")
	require.Error(t, err)
	require.ErrorIs(t, err, context.Canceled)
}

func TestIntegration_RoleByName_Seeded(t *testing.T) {
	st, cleanup := startPostgres(t)
	defer cleanup()

	for _, name := range []models.RoleName{models.RoleUser, models.RoleManager, models.RoleAdmin} {
		r, err := st.RoleByName(context.Background(), name)
		require.NoError(t, err)
		require.Equal(t, name, r.Name)
		require.NotZero(t, r.ID)
	}
}
