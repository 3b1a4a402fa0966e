package handlers

import (
	"errors"
	"net/http"

	"github.com/pribylovaa/taskmaster-auth/internal/authctx"
	"github.com/pribylovaa/taskmaster-auth/internal/authn"
	apierrors "github.com/pribylovaa/taskmaster-auth/internal/errors"
	"github.com/pribylovaa/taskmaster-auth/internal/metrics"
	"github.com/pribylovaa/taskmaster-auth/internal/service"
	"github.com/pribylovaa/taskmaster-auth/internal/token"
)

func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	var in registerRequest
	if err := decodeStrict(w, r, &in); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}
	if err := in.Validate(); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	acc, err := h.svc.Register(r.Context(), service.RegisterInput{
		Username:  in.Username,
		Email:     in.Email,
		Password:  in.Password,
		FirstName: in.FirstName,
		LastName:  in.LastName,
	})
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	apierrors.WriteJSON(w, r, http.StatusCreated, "User registered successfully. Verification email sent.", toAccountResponse(acc))
}

func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var in loginRequest
	if err := decodeStrict(w, r, &in); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}
	if err := in.Validate(); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	pair, acc, err := h.svc.Login(r.Context(), in.Email, in.Password)
	metrics.LoginTotal.WithLabelValues(loginResult(err)).Inc()
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}
	countIssued()

	apierrors.WriteJSON(w, r, http.StatusOK, "Login successful", toTokenResponse(pair, acc))
}

func (h *Handlers) Refresh(w http.ResponseWriter, r *http.Request) {
	var in refreshRequest
	if err := decodeStrict(w, r, &in); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}
	if err := in.Validate(); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	pair, err := h.svc.Refresh(r.Context(), in.RefreshToken)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}
	countIssued()

	apierrors.WriteJSON(w, r, http.StatusOK, "Token refreshed successfully", toTokenResponse(pair, nil))
}

// VerifyEmail принимает email и код из query: ссылка из письма открывается GET-запросом.
func (h *Handlers) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	q := verifyQuery{
		Email: r.URL.Query().Get("email"),
		Code:  r.URL.Query().Get("code"),
	}
	if err := q.Validate(); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	acc, err := h.svc.VerifyEmail(r.Context(), q.Email, q.Code)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	apierrors.WriteJSON(w, r, http.StatusOK, "Email verified successfully", toAccountResponse(acc))
}

func (h *Handlers) ResendVerification(w http.ResponseWriter, r *http.Request) {
	var in emailRequest
	if err := decodeStrict(w, r, &in); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}
	if err := in.Validate(); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	if err := h.svc.ResendVerification(r.Context(), in.Email); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	apierrors.WriteJSON(w, r, http.StatusOK, "If the account exists and is not yet verified, a new verification code has been sent.", nil)
}

// ForgotPassword отвечает одинаково для существующих и несуществующих email.
func (h *Handlers) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var in emailRequest
	if err := decodeStrict(w, r, &in); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}
	if err := in.Validate(); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	if err := h.svc.RequestPasswordReset(r.Context(), in.Email); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	apierrors.WriteJSON(w, r, http.StatusOK, "If an account with that email exists, a password reset link has been sent.", nil)
}

func (h *Handlers) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var in resetPasswordRequest
	if err := decodeStrict(w, r, &in); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}
	if err := in.Validate(); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	if err := h.svc.ResetPassword(r.Context(), in.Token, in.NewPassword); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	apierrors.WriteJSON(w, r, http.StatusOK, "Password reset successfully", nil)
}

func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	raw, outcome := authn.ParseBearer(r.Header.Get("Authorization"))
	if outcome != "" {
		apierrors.WriteError(w, r, apierrors.ErrUnauthenticated)
		return
	}

	if err := h.svc.Logout(r.Context(), raw); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	apierrors.WriteJSON(w, r, http.StatusOK, "Logged out successfully", nil)
}

// Me возвращает аккаунт текущего принципала.
func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) {
	p, ok := authctx.PrincipalFrom(r.Context())
	if !ok {
		apierrors.WriteError(w, r, apierrors.ErrUnauthenticated)
		return
	}

	acc, err := h.svc.AccountByID(r.Context(), p.AccountID)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	apierrors.WriteJSON(w, r, http.StatusOK, "Current user", toAccountResponse(acc))
}

// loginResult — значение метки auth_login_total.
func loginResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, service.ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, service.ErrEmailNotVerified):
		return "not_verified"
	case errors.Is(err, service.ErrAccountDisabled):
		return "disabled"
	default:
		return "error"
	}
}

func countIssued() {
	metrics.TokenIssuedTotal.WithLabelValues(string(token.KindAccess)).Inc()
	metrics.TokenIssuedTotal.WithLabelValues(string(token.KindRefresh)).Inc()
}
