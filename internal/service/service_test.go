package service

import (
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/require"

	"github.com/pribylovaa/taskmaster-auth/internal/config"
	"github.com/pribylovaa/taskmaster-auth/internal/models"
	"github.com/pribylovaa/taskmaster-auth/internal/token"
	"github.com/pribylovaa/taskmaster-auth/mocks"
)

const testSecret = "unit-test-secret-unit-test-secret"

// fakeClock — управляемые часы, общие для Service и token.Service.
type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func testCfg() config.AuthConfig {
	return config.AuthConfig{
		JWTSecret:       testSecret,
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 168 * time.Hour,
		Issuer:          "taskmaster",
	}
}

func testSecrets() config.SecretsConfig {
	return config.SecretsConfig{
		VerificationCodeTTL: 20 * time.Minute,
		ResetTokenTTL:       time.Hour,
	}
}

type fixture struct {
	svc    *Service
	st     *mocks.MockStorage
	mail   *mocks.MockMailer
	tokens *token.Service
	clk    *fakeClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctrl := gomock.NewController(t)

	clk := &fakeClock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	tokens, err := token.New(testSecret, token.WithClock(clk.Now), token.WithIssuer("taskmaster"))
	require.NoError(t, err)

	st := mocks.NewMockStorage(ctrl)
	ml := mocks.NewMockMailer(ctrl)

	return &fixture{
		svc:    New(st, ml, tokens, testCfg(), testSecrets(), WithClock(clk.Now)),
		st:     st,
		mail:   ml,
		tokens: tokens,
		clk:    clk,
	}
}

func mustHashPW(t *testing.T, pw string) string {
	t.Helper()
	h, err := hashPassword(pw)
	require.NoError(t, err)
	return h
}

func strPtr(s string) *string        { return &s }
func timePtr(t time.Time) *time.Time { return &t }

func userRole() models.Role  { return models.Role{ID: 1, Name: models.RoleUser} }
func adminRole() models.Role { return models.Role{ID: 3, Name: models.RoleAdmin} }

// clone возвращает копию аккаунта, чтобы повторные чтения из мока не делили указатель.
func clone(a models.Account) *models.Account { return &a }

// activeAccount — подтверждённый активный аккаунт с ролью USER.
func activeAccount(t *testing.T, pw string) *models.Account {
	t.Helper()
	return &models.Account{
		ID:            42,
		Username:      "bob",
		Email:         "bob@example.com",
		PasswordHash:  mustHashPW(t, pw),
		FirstName:     "Bob",
		LastName:      "Builder",
		Status:        models.StatusActive,
		EmailVerified: true,
		Roles:         []models.Role{userRole()},
		Version:       3,
	}
}
