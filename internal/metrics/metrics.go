// metrics объявляет Prometheus-метрики сервиса.
// Все коллекторы регистрируются в prometheus.DefaultRegisterer и
// отдаются через promhttp.Handler() на ops-порту.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "auth"

var (
	// LoginTotal — попытки входа по результату (ok, invalid_credentials, not_verified, disabled, error).
	LoginTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "login_total",
		Help:      "Login attempts by result.",
	}, []string{"result"})

	// TokenIssuedTotal — выпущенные токены по типу (access, refresh).
	TokenIssuedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "token_issued_total",
		Help:      "Issued tokens by kind.",
	}, []string{"kind"})

	// MiddlewareTotal — исходы аутентификации запроса.
	MiddlewareTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "middleware_total",
		Help:      "Request authentication outcomes.",
	}, []string{"outcome"})

	// AccessDeniedTotal — отказы проверки ролей.
	AccessDeniedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "access_denied_total",
		Help:      "Role checks that denied access.",
	})

	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "HTTP requests by method, route pattern and status code.",
	}, []string{"method", "route", "code"})

	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency by method and route pattern.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})
)

// ObserveHTTP записывает один завершённый HTTP-запрос.
// route — шаблон маршрута chi, а не сырой путь, чтобы не раздувать кардинальность.
func ObserveHTTP(method, route string, code int, dur time.Duration) {
	if route == "" {
		route = "unmatched"
	}

	httpRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	httpDuration.WithLabelValues(method, route).Observe(dur.Seconds())
}
