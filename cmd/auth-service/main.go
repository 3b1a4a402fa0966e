package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	grpc_prometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	health "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/pribylovaa/taskmaster-auth/internal/authn"
	"github.com/pribylovaa/taskmaster-auth/internal/config"
	"github.com/pribylovaa/taskmaster-auth/internal/grpc/interceptors"
	api "github.com/pribylovaa/taskmaster-auth/internal/http"
	"github.com/pribylovaa/taskmaster-auth/internal/mailer"
	"github.com/pribylovaa/taskmaster-auth/internal/service"
	"github.com/pribylovaa/taskmaster-auth/internal/storage/postgres"
	"github.com/pribylovaa/taskmaster-auth/internal/telemetry"
	"github.com/pribylovaa/taskmaster-auth/internal/token"
)

// Константы для определения окружения.
const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "path to config file")
	flag.Parse()

	cfg := config.MustLoad(configPath)

	log := setupLogger(cfg.Env)
	slog.SetDefault(log)
	log.Info("starting application", "env", cfg.Env)

	// Корневой контекст по сигналам.
	rootCtx, rootCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	shutdownTracing, err := telemetry.Setup(rootCtx, cfg.Telemetry)
	if err != nil {
		// без трейсов сервис работает
		log.Warn("telemetry_setup_failed", slog.String("err", err.Error()))
	}

	// Миграции и подключение к БД c таймаутом.
	dbCtx, dbCancel := context.WithTimeout(rootCtx, 30*time.Second)
	if err := postgres.Migrate(dbCtx, cfg.DB.DatabaseURL); err != nil {
		dbCancel()
		log.Error("postgres_migrate_failed", slog.String("err", err.Error()))
		rootCancel()
		os.Exit(1)
	}
	str, err := postgres.New(dbCtx, cfg.DB.DatabaseURL)
	dbCancel()
	if err != nil {
		log.Error("postgres_connect_failed", slog.String("err", err.Error()))
		rootCancel()
		os.Exit(1)
	}
	log.Info("postgres_connected")

	// Короткий секрет подписи делает старт невозможным.
	tokens, err := token.New(cfg.Auth.JWTSecret, token.WithIssuer(cfg.Auth.Issuer))
	if err != nil {
		log.Error("token_service_init_failed", slog.String("err", err.Error()))
		rootCancel()
		str.Close()
		os.Exit(1)
	}

	srvc := service.New(str, setupMailer(cfg), tokens, cfg.Auth, cfg.Secrets)
	authenticator := authn.New(tokens, srvc)
	log.Info("service_initialized")

	var ready int32 // 0 — not ready; 1 — ready

	// Публичный REST API.
	apiSrv := &http.Server{
		Addr: cfg.HTTP.Addr(),
		Handler: api.NewRouter(srvc, api.Options{
			Logger:        log,
			Timeout:       cfg.Timeouts.Service,
			BasePath:      cfg.HTTP.BasePath,
			Authenticator: authenticator,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	// Служебный листенер: liveness, readiness, метрики.
	mux := http.NewServeMux()
	mux.HandleFunc("/livez", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if atomic.LoadInt32(&ready) != 1 {
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := str.Ping(ctx); err != nil {
			http.Error(w, "db unavailable", http.StatusServiceUnavailable)
			return
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.Handle("/metrics", promhttp.Handler())

	opsSrv := &http.Server{
		Addr:              cfg.Ops.Addr(),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	for _, srv := range []*http.Server{apiSrv, opsSrv} {
		go func() {
			log.Info("http_listen_start", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("http_serve_failed",
					slog.String("addr", srv.Addr),
					slog.String("err", err.Error()),
				)
			}
		}()
	}

	grpc_prometheus.EnableHandlingTimeHistogram()

	// gRPC-сервер и интерсепторы.
	grpcOpts := []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(
			interceptors.Recover(log),
			interceptors.Logging(log),
			interceptors.Timeout(cfg.Timeouts.Service),
			interceptors.Authenticate(authenticator),
			grpc_prometheus.UnaryServerInterceptor,
		),
		grpc.ChainStreamInterceptor(
			interceptors.RecoverStream(log),
			interceptors.LoggingStream(log),
			interceptors.AuthenticateStream(authenticator),
			grpc_prometheus.StreamServerInterceptor,
		),
	}
	grpcServer := grpc.NewServer(grpcOpts...)

	// Health-check сервис.
	hs := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, hs)

	// Рефлексия только в local/dev.
	if cfg.Env == envLocal || cfg.Env == envDev {
		reflection.Register(grpcServer)
	}

	addr := cfg.GRPC.Addr()
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		log.Error("grpc_listen_failed",
			slog.String("addr", addr),
			slog.String("err", err.Error()),
		)
		rootCancel()
		str.Close()
		os.Exit(1)
	}
	log.Info("grpc_listen_start", slog.String("addr", addr))

	grpc_prometheus.Register(grpcServer)

	// Сервис готов: health -> SERVING и readiness=1
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	atomic.StoreInt32(&ready, 1)

	serveErrCh := make(chan error, 1)
	go func() {
		if err := grpcServer.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			serveErrCh <- err
		}
		close(serveErrCh)
	}()

	// Ожидание сигнала завершения или фатальной ошибки сервера.
	select {
	case <-rootCtx.Done():
		log.Info("shutdown_requested")
	case err := <-serveErrCh:
		if err != nil {
			log.Error("grpc_serve_failed", slog.String("err", err.Error()))
		}
	}

	// Переводим в NOT_SERVING и снимаем ready.
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	atomic.StoreInt32(&ready, 0)

	// Graceful stop с таймаутом.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)

	if err := apiSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http_shutdown_failed", slog.String("err", err.Error()))
	}

	done := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
		log.Info("grpc_stopped")
	case <-shutdownCtx.Done():
		log.Warn("grpc_force_stop")
		grpcServer.Stop()
	}

	_ = opsSrv.Shutdown(shutdownCtx)

	if shutdownTracing != nil {
		if err := shutdownTracing(shutdownCtx); err != nil {
			log.Warn("telemetry_shutdown_failed", slog.String("err", err.Error()))
		}
	}

	// Явная очистка перед выходом.
	shutdownCancel()
	rootCancel()
	str.Close()

	log.Info("service_stopped")
	os.Exit(0)
}

// setupLogger настраивает slog по окружению.
func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	default:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	}

	return log
}

// setupMailer выбирает транспорт почты по конфигу.
// В local лог-транспорт печатает коды и токены целиком, иначе они маскируются.
func setupMailer(cfg *config.Config) mailer.Mailer {
	tpl := mailer.Templates{
		PlatformName: cfg.Mail.PlatformName,
		FrontendURL:  cfg.Mail.FrontendURL,
	}

	if cfg.Mail.Mode == config.MailModeSMTP {
		return mailer.NewSMTPMailer(mailer.SMTPConfig{
			Addr:     cfg.Mail.Addr(),
			Host:     cfg.Mail.Host,
			Username: cfg.Mail.Username,
			Password: cfg.Mail.Password,
			From:     cfg.Mail.From,
		}, tpl, nil)
	}

	return mailer.NewLogMailer(tpl, cfg.Env == envLocal)
}
