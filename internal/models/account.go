package models

import (
	"encoding/json"
	"time"
)

// AccountStatus — состояние жизненного цикла аккаунта.
type AccountStatus string

const (
	StatusPending  AccountStatus = "PENDING"
	StatusActive   AccountStatus = "ACTIVE"
	StatusDisabled AccountStatus = "DISABLED"
	StatusBanned   AccountStatus = "BANNED"
)

// Valid сообщает, входит ли статус в допустимый набор.
func (s AccountStatus) Valid() bool {
	switch s {
	case StatusPending, StatusActive, StatusDisabled, StatusBanned:
		return true
	}

	return false
}

// Account — учётная запись пользователя.
//
// Секреты (код подтверждения, reset-токен) хранятся парой с моментом
// истечения: либо оба поля nil, либо оба заполнены. ResetTokenHash
// содержит только SHA-256 от выданного токена, сам токен не сохраняется.
//
// Version используется для оптимистической блокировки: хранилище
// обновляет запись только если версия в БД совпадает с Version.
type Account struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
	Bio          string
	AvatarURL    string
	Metadata     json.RawMessage

	Status        AccountStatus
	EmailVerified bool

	VerificationCode          *string
	VerificationCodeExpiresAt *time.Time

	ResetTokenHash      *string
	ResetTokenExpiresAt *time.Time

	Roles []Role

	LastLoginAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Version     int64
}

// HasRole сообщает, назначена ли аккаунту роль name.
func (a *Account) HasRole(name RoleName) bool {
	for _, r := range a.Roles {
		if r.Name == name {
			return true
		}
	}

	return false
}

// ClearVerificationCode стирает код подтверждения вместе со сроком.
func (a *Account) ClearVerificationCode() {
	a.VerificationCode = nil
	a.VerificationCodeExpiresAt = nil
}

// ClearResetToken стирает хэш reset-токена вместе со сроком.
func (a *Account) ClearResetToken() {
	a.ResetTokenHash = nil
	a.ResetTokenExpiresAt = nil
}
