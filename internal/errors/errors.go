// errors стандартизирует ответы HTTP-слоя.
// На вход он принимает ошибку сервиса (обёрнутое sentinel-значение),
// а на выход даёт:
//   - корректный HTTP-статус;
//   - краткое безопасное message без утечки деталей;
//   - карту ошибок по полям в data для ошибок валидации.
//
// Успешные ответы пишутся в тот же конверт через WriteJSON.
package errors

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation"

	"github.com/pribylovaa/taskmaster-auth/internal/access"
	"github.com/pribylovaa/taskmaster-auth/internal/pkg/log"
	"github.com/pribylovaa/taskmaster-auth/internal/service"
	"github.com/pribylovaa/taskmaster-auth/internal/storage"
	"github.com/pribylovaa/taskmaster-auth/internal/token"
)

// Нестандартный код часто используемый для "клиент закрыл соединение".
const StatusClientClosedRequest = 499

const (
	msgInternal   = "An unexpected error occurred"
	msgValidation = "Validation failed"
)

var (
	// ErrUnauthenticated — операция требует аутентифицированного принципала.
	ErrUnauthenticated = stderrors.New("unauthenticated")
	// ErrMalformedBody — тело запроса не разбирается как JSON.
	ErrMalformedBody = stderrors.New("malformed request body")
)

// Response — единый конверт ответа для фронта.
// RequestID прокидывается из X-Request-Id, если есть (для трассировки).
type Response struct {
	Success    bool   `json:"success"`
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
	Data       any    `json:"data,omitempty"`
	RequestID  string `json:"requestId,omitempty"`
}

type mapping struct {
	target error
	status int
	msg    string
}

// mappings проверяются по порядку через errors.Is; первое совпадение побеждает.
var mappings = []mapping{
	// 401
	{service.ErrInvalidCredentials, http.StatusUnauthorized, "Invalid email or password"},
	{service.ErrEmailNotVerified, http.StatusUnauthorized, "Email not verified. Please verify your email first."},
	{service.ErrAccountDisabled, http.StatusUnauthorized, "Account is disabled"},
	{service.ErrInvalidCode, http.StatusUnauthorized, "Invalid verification code"},
	{service.ErrCodeExpired, http.StatusUnauthorized, "Verification code has expired"},
	{service.ErrResetTokenExpired, http.StatusUnauthorized, "Reset token has expired"},
	{token.ErrTokenExpired, http.StatusUnauthorized, "Token has expired"},
	{token.ErrInvalidToken, http.StatusUnauthorized, "Invalid token"},
	{ErrUnauthenticated, http.StatusUnauthorized, "Authentication required"},

	// 400
	{service.ErrInvalidEmail, http.StatusBadRequest, "Invalid email format"},
	{service.ErrEmptyPassword, http.StatusBadRequest, "Password is required"},
	{service.ErrWeakPassword, http.StatusBadRequest, "Password must be at least 8 characters and contain an uppercase letter, a lowercase letter, a digit and a special character"},
	{service.ErrInvalidUsername, http.StatusBadRequest, "Username must be between 3 and 50 characters"},
	{service.ErrInvalidName, http.StatusBadRequest, "First and last name must be between 1 and 70 characters"},
	{service.ErrInvalidRole, http.StatusBadRequest, "Invalid role"},
	{service.ErrInvalidStatus, http.StatusBadRequest, "Invalid status"},
	{service.ErrInvalidPage, http.StatusBadRequest, "Invalid pagination parameters"},
	{service.ErrEmailTaken, http.StatusBadRequest, "Email already exists"},
	{service.ErrAccountExists, http.StatusBadRequest, "Username or email already exists"},
	{ErrMalformedBody, http.StatusBadRequest, "Malformed request body"},

	// 404
	{service.ErrResetTokenNotFound, http.StatusNotFound, "Reset token not found"},
	{service.ErrAccountNotFound, http.StatusNotFound, "User not found"},

	// 403
	{access.ErrRoleDenied, http.StatusForbidden, "Access denied"},
	{service.ErrAdminDisableForbidden, http.StatusForbidden, "Cannot disable user with ADMIN role"},
	{service.ErrAdminDeleteForbidden, http.StatusForbidden, "Cannot delete user with ADMIN role"},

	// 409
	{service.ErrConcurrentUpdate, http.StatusConflict, "Account was modified concurrently, please retry"},
	{storage.ErrVersionConflict, http.StatusConflict, "Account was modified concurrently, please retry"},

	// Транспорт
	{context.Canceled, StatusClientClosedRequest, "Request canceled"},
	{context.DeadlineExceeded, http.StatusGatewayTimeout, "Request timed out"},
}

// ToHTTP конвертирует ошибку в HTTP-статус и конверт ответа.
//
// Поведение:
//   - err == nil - это программная ошибка вызова: возвращаем 500,
//     чтобы не послать "200 OK" с телом ошибки и не маскировать баг.
//   - validation.Errors - 400 и карта field -> message в data.
//   - известное sentinel-значение - статус и сообщение из mappings.
//   - прочее - 500 без деталей.
func ToHTTP(err error) (int, Response) {
	if err == nil {
		return internal()
	}

	var verrs validation.Errors
	if stderrors.As(err, &verrs) {
		return http.StatusBadRequest, Response{
			StatusCode: http.StatusBadRequest,
			Message:    msgValidation,
			Data:       fieldMessages(verrs),
		}
	}

	for _, m := range mappings {
		if stderrors.Is(err, m.target) {
			return m.status, Response{StatusCode: m.status, Message: m.msg}
		}
	}

	return internal()
}

// WriteError — хелпер для HTTP-хендлеров.
// Пишет статус и тело, добавляет requestId из заголовка, если он есть.
// 5xx логируются с полной ошибкой; клиент видит только общее сообщение.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	status, resp := ToHTTP(err)

	if status >= http.StatusInternalServerError {
		log.From(r.Context()).Error("request_failed",
			slog.String("path", r.URL.Path),
			slog.Int("status", status),
			slog.Any("err", err),
		)
	}

	write(w, r, status, resp)
}

// WriteJSON пишет успешный ответ в общем конверте.
func WriteJSON(w http.ResponseWriter, r *http.Request, status int, message string, data any) {
	write(w, r, status, Response{
		Success:    true,
		StatusCode: status,
		Message:    message,
		Data:       data,
	})
}

func write(w http.ResponseWriter, r *http.Request, status int, resp Response) {
	// Прокидываем requestId для фронта, чтобы он мог репортить баги с привязкой.
	if rid := r.Header.Get("X-Request-Id"); rid != "" {
		resp.RequestID = rid
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

func internal() (int, Response) {
	return http.StatusInternalServerError, Response{
		StatusCode: http.StatusInternalServerError,
		Message:    msgInternal,
	}
}

// fieldMessages разворачивает validation.Errors в плоскую карту field -> message.
// Вложенные ошибки структур склеиваются через точку.
func fieldMessages(verrs validation.Errors) map[string]string {
	out := make(map[string]string, len(verrs))

	for k, err := range verrs {
		var nested validation.Errors
		if stderrors.As(err, &nested) {
			for nk, nv := range fieldMessages(nested) {
				out[k+"."+nk] = nv
			}
			continue
		}
		out[k] = err.Error()
	}

	return out
}
