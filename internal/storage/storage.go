package storage

//go:generate mockgen -source=storage.go -destination=../../mocks/mock_storage.go -package=mocks

import (
	"context"
	"errors"

	"github.com/pribylovaa/taskmaster-auth/internal/models"
)

var (
	// ErrNotFound — запись не найдена (аккаунт/роль).
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists — нарушение уникальности (email/username).
	ErrAlreadyExists = errors.New("already exists")
	// ErrVersionConflict — запись изменилась с момента чтения (оптимистическая блокировка).
	ErrVersionConflict = errors.New("version conflict")
)

// Page — параметры постраничной выборки.
type Page struct {
	Limit  int
	Offset int
}

// AccountStorage выполняет операции над аккаунтами.
type AccountStorage interface {
	// SaveAccount создаёт аккаунт вместе с ролями; заполняет ID, Version и таймстемпы.
	SaveAccount(ctx context.Context, account *models.Account) error
	// AccountByID находит аккаунт по ID.
	AccountByID(ctx context.Context, id int64) (*models.Account, error)
	// AccountByEmail находит аккаунт по email (без учёта регистра).
	AccountByEmail(ctx context.Context, email string) (*models.Account, error)
	// AccountByUsername находит аккаунт по username.
	AccountByUsername(ctx context.Context, username string) (*models.Account, error)
	// AccountByResetTokenHash находит аккаунт по хэшу reset-токена.
	AccountByResetTokenHash(ctx context.Context, hash string) (*models.Account, error)
	// ExistsByEmail проверяет, занят ли email.
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	// UpdateAccount сохраняет изменения, если версия в БД равна account.Version,
	// и увеличивает account.Version. Набор ролей перезаписывается.
	UpdateAccount(ctx context.Context, account *models.Account) error
	// ListAccounts возвращает страницу аккаунтов, упорядоченных по ID.
	ListAccounts(ctx context.Context, page Page) ([]models.Account, error)
	// DeleteAccount удаляет аккаунт.
	DeleteAccount(ctx context.Context, id int64) error
}

// RoleStorage читает справочник ролей.
type RoleStorage interface {
	// RoleByName находит роль по имени.
	RoleByName(ctx context.Context, name models.RoleName) (*models.Role, error)
}

// Storage задает контракт работы с БД.
type Storage interface {
	AccountStorage
	RoleStorage
	Close()
}
