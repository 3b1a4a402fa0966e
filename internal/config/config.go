// config предоставляет структуру конфигурации сервиса и функции
// загрузки из файла/переменных окружения с предсказуемым приоритетом.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/pribylovaa/taskmaster-auth/internal/token"
)

// MinSecretLength — минимальная длина секрета подписи HS256 в байтах.
const MinSecretLength = token.MinSecretLength

// Режимы доставки почты.
const (
	MailModeLog  = "log"
	MailModeSMTP = "smtp"
)

var (
	// ErrSecretTooShort — секрет подписи короче MinSecretLength.
	ErrSecretTooShort = errors.New("jwt secret is too short")
	// ErrInvalidTTL — TTL неположителен или access TTL не меньше refresh TTL.
	ErrInvalidTTL = errors.New("invalid token ttl")
	// ErrInvalidMailMode — неизвестный режим доставки почты.
	ErrInvalidMailMode = errors.New("invalid mail mode")
)

// Config — корневая конфигурация сервиса.
// Источники значений (по убыванию приоритета):
//  1. явный путь через флаг --config;
//  2. путь в переменной окружения CONFIG_PATH;
//  3. файл local.yaml из рабочей директории;
//  4. переменные окружения (cleanenv).
type Config struct {
	Env       string          `yaml:"env" env:"ENV" env-default:"local"`
	HTTP      HTTPConfig      `yaml:"http"`
	Ops       OpsConfig       `yaml:"ops"`
	GRPC      GRPCConfig      `yaml:"grpc"`
	Auth      AuthConfig      `yaml:"auth"`
	Secrets   SecretsConfig   `yaml:"secrets"`
	DB        DBConfig        `yaml:"db"`
	Mail      MailConfig      `yaml:"mail"`
	Timeouts  TimeoutConfig   `yaml:"timeouts"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// TimeoutConfig — таймауты сервиса.
type TimeoutConfig struct {
	Service time.Duration `yaml:"service" env:"SERVICE_TIMEOUT" env-default:"5s"`
}

// HTTPConfig — сетевые настройки публичного HTTP API.
type HTTPConfig struct {
	Host     string `yaml:"host" env:"HTTP_HOST" env-default:"0.0.0.0"`
	Port     string `yaml:"port" env:"HTTP_PORT" env-default:"8080"`
	BasePath string `yaml:"base_path" env:"HTTP_BASE_PATH" env-default:"/api/v1"`
}

// OpsConfig — служебный HTTP-листенер (/livez, /healthz, /metrics).
type OpsConfig struct {
	Host string `yaml:"host" env:"OPS_HOST" env-default:"0.0.0.0"`
	Port string `yaml:"port" env:"OPS_PORT" env-default:"50081"`
}

// GRPCConfig описывает сетевые настройки gRPC-сервера.
type GRPCConfig struct {
	Host string `yaml:"host" env:"GRPC_HOST" env-default:"0.0.0.0"`
	Port string `yaml:"port" env:"GRPC_PORT" env-default:"50051"`
}

// Addr возвращает адрес в формате host:port.
func (c HTTPConfig) Addr() string {
	return net.JoinHostPort(c.Host, c.Port)
}

// Addr возвращает адрес в формате host:port.
func (c OpsConfig) Addr() string {
	return net.JoinHostPort(c.Host, c.Port)
}

// Addr возвращает адрес в формате host:port.
func (c GRPCConfig) Addr() string {
	return net.JoinHostPort(c.Host, c.Port)
}

// AuthConfig содержит параметры выпуска и валидации токенов.
type AuthConfig struct {
	JWTSecret       string        `yaml:"jwt_secret" env:"JWT_SECRET" env-required:"true"`
	AccessTokenTTL  time.Duration `yaml:"access_token_ttl" env:"ACCESS_TOKEN_TTL" env-default:"15m"`
	RefreshTokenTTL time.Duration `yaml:"refresh_token_ttl" env:"REFRESH_TOKEN_TTL" env-default:"168h"`
	Issuer          string        `yaml:"issuer" env:"ISSUER" env-default:"taskmaster"`
}

// SecretsConfig — сроки жизни одноразовых секретов.
type SecretsConfig struct {
	VerificationCodeTTL time.Duration `yaml:"verification_code_ttl" env:"VERIFICATION_CODE_TTL" env-default:"20m"`
	ResetTokenTTL       time.Duration `yaml:"reset_token_ttl" env:"RESET_TOKEN_TTL" env-default:"1h"`
}

// DBConfig — настройки подключения к базе данных.
type DBConfig struct {
	DatabaseURL string `yaml:"db_url" env:"DATABASE_URL" env-required:"true"`
}

// MailConfig — доставка писем. В режиме log письма только пишутся в лог.
type MailConfig struct {
	Mode         string `yaml:"mode" env:"MAIL_MODE" env-default:"log"`
	Host         string `yaml:"host" env:"MAIL_HOST"`
	Port         string `yaml:"port" env:"MAIL_PORT" env-default:"587"`
	Username     string `yaml:"username" env:"MAIL_USERNAME"`
	Password     string `yaml:"password" env:"MAIL_PASSWORD"`
	From         string `yaml:"from" env:"MAIL_FROM" env-default:"no-reply@taskmaster.local"`
	PlatformName string `yaml:"platform_name" env:"MAIL_PLATFORM_NAME" env-default:"TaskMaster"`
	FrontendURL  string `yaml:"frontend_url" env:"FRONTEND_URL" env-default:"http://localhost:3000"`
}

// Addr возвращает адрес SMTP-сервера в формате host:port.
func (c MailConfig) Addr() string {
	return net.JoinHostPort(c.Host, c.Port)
}

// TelemetryConfig — экспорт трейсов. Пустой endpoint отключает экспорт.
type TelemetryConfig struct {
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	ServiceName  string `yaml:"service_name" env:"OTEL_SERVICE_NAME" env-default:"taskmaster-auth"`
}

// Validate проверяет инварианты, которые нельзя выразить тегами cleanenv.
func (c *Config) Validate() error {
	const op = "config.Validate"

	if err := c.Auth.Validate(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if c.Secrets.VerificationCodeTTL <= 0 || c.Secrets.ResetTokenTTL <= 0 {
		return fmt.Errorf("%s: secrets: %w", op, ErrInvalidTTL)
	}

	switch c.Mail.Mode {
	case MailModeLog:
	case MailModeSMTP:
		if c.Mail.Host == "" {
			return fmt.Errorf("%s: smtp host is empty: %w", op, ErrInvalidMailMode)
		}
	default:
		return fmt.Errorf("%s: %q: %w", op, c.Mail.Mode, ErrInvalidMailMode)
	}

	return nil
}

// Validate проверяет параметры токенов.
func (c AuthConfig) Validate() error {
	if len(c.JWTSecret) < MinSecretLength {
		return fmt.Errorf("got %d bytes, need at least %d: %w", len(c.JWTSecret), MinSecretLength, ErrSecretTooShort)
	}

	if c.AccessTokenTTL <= 0 || c.RefreshTokenTTL <= 0 {
		return ErrInvalidTTL
	}

	if c.AccessTokenTTL >= c.RefreshTokenTTL {
		return fmt.Errorf("access ttl %s must be less than refresh ttl %s: %w", c.AccessTokenTTL, c.RefreshTokenTTL, ErrInvalidTTL)
	}

	return nil
}

// MustLoad — обёртка над Load с panic при ошибке.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}

	return cfg
}

// Load загружает конфигурацию по приоритету:
// 1) явный путь; 2) CONFIG_PATH; 3) ./local.yaml; 4) ENV.
// После чтения файла ENV-переменные накладываются поверх значений из YAML,
// затем выполняется Validate.
func Load(path string) (*Config, error) {
	cfg, err := read(path)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func read(path string) (*Config, error) {
	var cfg Config

	// чтение файла + overlay ENV.
	tryRead := func(p string) (*Config, error) {
		if _, err := os.Stat(p); err != nil {
			return nil, fmt.Errorf("config file %q stat failed: %w", p, err)
		}

		if err := cleanenv.ReadConfig(p, &cfg); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}

		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("failed to overlay env: %w", err)
		}

		return &cfg, nil
	}

	// 1) Явный путь.
	if path != "" {
		return tryRead(path)
	}

	// 2) CONFIG_PATH.
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		return tryRead(envPath)
	}

	// 3) ./local.yaml.
	if _, err := os.Stat("local.yaml"); err == nil {
		return tryRead("local.yaml")
	}

	// 4) Только ENV.
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("config not found: provide --config, CONFIG_PATH, local.yaml or env vars: %w", err)
	}

	return &cfg, nil
}
