package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/pribylovaa/taskmaster-auth/internal/authn"
	"github.com/pribylovaa/taskmaster-auth/internal/http/handlers"
	"github.com/pribylovaa/taskmaster-auth/internal/http/middleware"
	"github.com/pribylovaa/taskmaster-auth/internal/models"
)

// anyRole — набор ролей для маршрутов, доступных любому аутентифицированному пользователю.
var anyRole = []models.RoleName{models.RoleUser, models.RoleManager, models.RoleAdmin}

// Options — параметры сборки HTTP-роутера.
type Options struct {
	Logger        *slog.Logger
	Timeout       time.Duration
	BasePath      string // например, "/api/v1"; при пустом значении роуты регистрируются на корне.
	Authenticator *authn.Authenticator
}

// NewRouter собирает http.Handler с chi и подключёнными middleware/роутами.
func NewRouter(svc handlers.Service, opts Options) http.Handler {
	root := chi.NewRouter()

	// Middleware (внешний -> внутренний).
	root.Use(
		middleware.Recover(),            // безопасно ловим паники
		middleware.RequestID(),          // формируем/прокидываем X-Request-Id (до логирования!)
		middleware.Logging(opts.Logger), // кладём request-scoped логгер в контекст и логируем
		tracing,
		middleware.Metrics(),
		middleware.Timeout(opts.Timeout),
		middleware.Authenticate(opts.Authenticator), // fail-open: отказ выносит RequireRoles
	)

	h := handlers.New(svc)

	if opts.BasePath != "" {
		sub := chi.NewRouter()
		registerRoutes(sub, h)
		root.Mount(opts.BasePath, sub)
		return root
	}

	registerRoutes(root, h)
	return root
}

// tracing оборачивает запрос в серверный span; в имени span метод и путь.
func tracing(next http.Handler) http.Handler {
	return otelhttp.NewHandler(next, "http",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
}

// registerRoutes — единая точка регистрации всех REST-эндпойнтов.
// Каждый защищённый маршрут обязан стоять за RequireRoles.
func registerRoutes(r chi.Router, h *handlers.Handlers) {
	// auth, публичные
	r.Post("/auth/register", h.Register)
	r.Post("/auth/login", h.Login)
	r.Post("/auth/refresh", h.Refresh)
	r.Get("/auth/verify", h.VerifyEmail)
	r.Post("/auth/verify/resend", h.ResendVerification)
	r.Post("/auth/forgot-password", h.ForgotPassword)
	r.Post("/auth/reset-password", h.ResetPassword)

	// любой аутентифицированный
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireRoles(anyRole...))
		r.Post("/auth/logout", h.Logout)
		r.Get("/users/me", h.Me)
	})

	// admin
	r.Route("/admin/users", func(r chi.Router) {
		r.Use(middleware.RequireRoles(models.RoleAdmin))
		r.Get("/", h.ListUsers)
		r.Get("/{id}", h.GetUser)
		r.Patch("/{id}/role", h.UpdateUserRole)
		r.Patch("/{id}/status", h.UpdateUserStatus)
		r.Delete("/{id}", h.DeleteUser)
	})
}
