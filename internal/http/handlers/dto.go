package handlers

import (
	"regexp"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"

	"github.com/pribylovaa/taskmaster-auth/internal/models"
)

var codeFormat = regexp.MustCompile(`^\d{4}$`)

type registerRequest struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

func (r registerRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Username, validation.Required, validation.RuneLength(3, 50)),
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required),
		validation.Field(&r.FirstName, validation.Required, validation.RuneLength(1, 70)),
		validation.Field(&r.LastName, validation.Required, validation.RuneLength(1, 70)),
	)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r loginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required),
	)
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (r refreshRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.RefreshToken, validation.Required),
	)
}

// emailRequest — тело для resend-verification и forgot-password.
type emailRequest struct {
	Email string `json:"email"`
}

func (r emailRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
	)
}

type verifyQuery struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

func (q verifyQuery) Validate() error {
	return validation.ValidateStruct(&q,
		validation.Field(&q.Email, validation.Required, is.Email),
		validation.Field(&q.Code, validation.Required, validation.Match(codeFormat).Error("must be 4 digits")),
	)
}

type resetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

func (r resetPasswordRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Token, validation.Required),
		validation.Field(&r.NewPassword, validation.Required),
	)
}

type roleRequest struct {
	Role string `json:"role"`
}

func (r roleRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Role, validation.Required,
			validation.In(string(models.RoleUser), string(models.RoleManager), string(models.RoleAdmin))),
	)
}

type statusRequest struct {
	Status string `json:"status"`
}

func (r statusRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Status, validation.Required,
			validation.In(
				string(models.StatusPending),
				string(models.StatusActive),
				string(models.StatusDisabled),
				string(models.StatusBanned),
			)),
	)
}

// accountResponse — публичное представление аккаунта без секретов.
type accountResponse struct {
	ID            int64      `json:"id"`
	Username      string     `json:"username"`
	Email         string     `json:"email"`
	FirstName     string     `json:"firstName"`
	LastName      string     `json:"lastName"`
	Bio           string     `json:"bio,omitempty"`
	AvatarURL     string     `json:"avatarUrl,omitempty"`
	Status        string     `json:"status"`
	EmailVerified bool       `json:"emailVerified"`
	Roles         []string   `json:"roles"`
	LastLoginAt   *time.Time `json:"lastLoginAt,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

func toAccountResponse(a *models.Account) accountResponse {
	roles := make([]string, 0, len(a.Roles))
	for _, r := range a.Roles {
		roles = append(roles, string(r.Name))
	}

	return accountResponse{
		ID:            a.ID,
		Username:      a.Username,
		Email:         a.Email,
		FirstName:     a.FirstName,
		LastName:      a.LastName,
		Bio:           a.Bio,
		AvatarURL:     a.AvatarURL,
		Status:        string(a.Status),
		EmailVerified: a.EmailVerified,
		Roles:         roles,
		LastLoginAt:   a.LastLoginAt,
		CreatedAt:     a.CreatedAt,
		UpdatedAt:     a.UpdatedAt,
	}
}

type tokenResponse struct {
	AccessToken  string           `json:"accessToken"`
	RefreshToken string           `json:"refreshToken"`
	TokenType    string           `json:"tokenType"`
	ExpiresIn    int64            `json:"expiresIn"` // секунды
	User         *accountResponse `json:"user,omitempty"`
}

func toTokenResponse(p *models.TokenPair, a *models.Account) tokenResponse {
	out := tokenResponse{
		AccessToken:  p.AccessToken,
		RefreshToken: p.RefreshToken,
		TokenType:    p.TokenType,
		ExpiresIn:    int64(p.ExpiresIn / time.Second),
	}
	if a != nil {
		u := toAccountResponse(a)
		out.User = &u
	}

	return out
}
