package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	apierrors "github.com/pribylovaa/taskmaster-auth/internal/errors"
	"github.com/pribylovaa/taskmaster-auth/internal/models"
	"github.com/pribylovaa/taskmaster-auth/internal/service"
	"github.com/pribylovaa/taskmaster-auth/internal/storage"
)

// maxBodyBytes — верхняя граница тела JSON-запроса.
const maxBodyBytes = 1 << 20

// Service — операции auth-сервиса, которые нужны HTTP-слою.
type Service interface {
	Register(ctx context.Context, in service.RegisterInput) (*models.Account, error)
	Login(ctx context.Context, email, password string) (*models.TokenPair, *models.Account, error)
	Refresh(ctx context.Context, refreshToken string) (*models.TokenPair, error)
	Logout(ctx context.Context, accessToken string) error
	VerifyEmail(ctx context.Context, email, code string) (*models.Account, error)
	ResendVerification(ctx context.Context, email string) error
	RequestPasswordReset(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, resetToken, newPassword string) error

	ListAccounts(ctx context.Context, page storage.Page) ([]models.Account, error)
	AccountByID(ctx context.Context, id int64) (*models.Account, error)
	UpdateRole(ctx context.Context, id int64, name models.RoleName) (*models.Account, error)
	UpdateStatus(ctx context.Context, id int64, status models.AccountStatus) (*models.Account, error)
	DeleteAccount(ctx context.Context, id int64) error
}

// Handlers агрегирует зависимости REST-обработчиков.
type Handlers struct {
	svc Service
}

func New(svc Service) *Handlers {
	return &Handlers{svc: svc}
}

// decodeStrict — строгий JSON-декодер: запрещаем неизвестные поля и хвост после объекта.
func decodeStrict(w http.ResponseWriter, r *http.Request, value any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()

	if err := dec.Decode(value); err != nil {
		return apierrors.ErrMalformedBody
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return apierrors.ErrMalformedBody
	}

	return nil
}
