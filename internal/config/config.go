// config предоставляет структуру конфигурации сервиса и функции
// загрузки из файла/переменных окружения с предсказуемым приоритетом.
package config

import (
	"fmt"
	"net"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config — корневая конфигурация сервиса.
// Источники значений (по убыванию приоритета):
//  1. явный путь через флаг --config;
//  2. путь в переменной окружения CONFIG_PATH;
//  3. файл .yaml из рабочей директории;
//  4. переменные окружения (cleanenv).
type Config struct {
	Env       string          `yaml:"env" env:"ENV" env-default:"local"`
	HTTP      HTTPConfig      `yaml:"http"`
	Auth      AuthConfig      `yaml:"auth"`
	DB        DBConfig        `yaml:"db"`
	Redis     RedisConfig     `yaml:"redis"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Analysis  AnalysisConfig  `yaml:"analysis"`
	Backup    BackupConfig    `yaml:"backup"`
	Timeouts  TimeoutConfig   `yaml:"timeouts"`
}

// TimeoutConfig — таймауты сервиса.
type TimeoutConfig struct {
	Service time.Duration `yaml:"service" env:"SERVICE_TIMEOUT" env-default:"30s"`
}

// HTTPConfig — сетевые настройки HTTP-сервера.
type HTTPConfig struct {
	Host string `yaml:"host" env:"HTTP_HOST" env-default:"0.0.0.0"`
	Port string `yaml:"port" env:"HTTP_PORT" env-default:"8000"`
	// BasePath — префикс REST-маршрутов ("/api"); пустой — корень.
	BasePath string `yaml:"base_path" env:"HTTP_BASE_PATH"`
	// CORSOrigin — разрешённый Origin фронта; пустой отключает CORS.
	CORSOrigin string `yaml:"cors_origin" env:"HTTP_CORS_ORIGIN"`
}

// Addr возвращает адрес в формате host:port.
func (h HTTPConfig) Addr() string {
	return net.JoinHostPort(h.Host, h.Port)
}

// AuthConfig содержит параметры выпуска и валидации токенов.
type AuthConfig struct {
	JWTSecret       string        `yaml:"jwt_secret" env:"JWT_SECRET" env-required:"true"`
	AccessTokenTTL  time.Duration `yaml:"access_token_ttl" env:"ACCESS_TOKEN_TTL" env-default:"30m"`
	RefreshTokenTTL time.Duration `yaml:"refresh_token_ttl" env:"REFRESH_TOKEN_TTL" env-default:"168h"`
	Issuer          string        `yaml:"issuer" env:"ISSUER" env-default:"orchard-analysis"`
}

// DBConfig — настройки подключения к базе данных.
type DBConfig struct {
	DatabaseURL string `yaml:"db_url" env:"DATABASE_URL" env-required:"true"`
}

// RedisConfig — опциональный разделяемый стор отозванных токенов.
// Пустой URL отключает его: достаточно для single-instance развёртывания.
type RedisConfig struct {
	RedisURL string `yaml:"redis_url" env:"REDIS_URL"`
}

// ClassLimit — лимит одного класса эндпоинтов.
type ClassLimit struct {
	Class    string        `yaml:"class"`
	Requests int           `yaml:"requests"`
	Window   time.Duration `yaml:"window"`
}

// RateLimitConfig — настройки admission control.
type RateLimitConfig struct {
	// DefaultRequests/DefaultWindow — fallback для немаппированных классов.
	DefaultRequests int           `yaml:"default_requests" env:"RATE_LIMIT_REQUESTS" env-default:"100"`
	DefaultWindow   time.Duration `yaml:"default_window" env:"RATE_LIMIT_WINDOW" env-default:"1h"`
	// Classes — переопределения по классам (upload/start/login и т.п.).
	Classes []ClassLimit `yaml:"classes"`
	// BlockDuration — длительность карательной блокировки IP.
	BlockDuration time.Duration `yaml:"block_duration" env:"RATE_LIMIT_BLOCK" env-default:"5m"`
	// CleanupInterval — период фоновой уборки.
	CleanupInterval time.Duration `yaml:"cleanup_interval" env:"RATE_LIMIT_CLEANUP" env-default:"1m"`
	// Retention — срок хранения меток запросов при уборке.
	Retention time.Duration `yaml:"retention" env:"RATE_LIMIT_RETENTION" env-default:"1h"`
}

// AnalysisConfig — параметры конвейера анализа снимков.
type AnalysisConfig struct {
	UploadDir         string        `yaml:"upload_dir" env:"UPLOAD_DIR" env-default:"data/analyses"`
	MaxFileSize       int64         `yaml:"max_file_size" env:"MAX_FILE_SIZE" env-default:"104857600"`
	AllowedExtensions []string      `yaml:"allowed_extensions" env:"ALLOWED_EXTENSIONS" env-default:"jpg,jpeg,png,tif,tiff"`
	EngineURL         string        `yaml:"engine_url" env:"ENGINE_URL" env-default:"http://localhost:8500"`
	EngineTimeout     time.Duration `yaml:"engine_timeout" env:"ENGINE_TIMEOUT" env-default:"10m"`
}

// BackupConfig — параметры резервного копирования.
type BackupConfig struct {
	Dir           string `yaml:"dir" env:"BACKUP_DIR" env-default:"backups"`
	RetentionDays int    `yaml:"retention_days" env:"BACKUP_RETENTION_DAYS" env-default:"30"`
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
// ВАЖНО: после чтения файла накладываем ENV-переменные поверх значений из YAML.
func Load(path string) (*Config, error) {
	var cfg Config

	// чтение файла + overlay ENV.
	tryRead := func(p string) (*Config, error) {
		if p == "" {
			return nil, fmt.Errorf("empty config path")
		}

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
		c, err := tryRead(path)
		if err != nil {
			return nil, err
		}

		return c, nil
	}

	// 2) CONFIG_PATH.
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		c, err := tryRead(envPath)
		if err != nil {
			return nil, err
		}

		return c, nil
	}

	// 3) ./local.yaml.
	if _, err := os.Stat("local.yaml"); err == nil {
		if err := cleanenv.ReadConfig("local.yaml", &cfg); err != nil {
			return nil, fmt.Errorf("failed to read local.yaml: %w", err)
		}

		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("failed to overlay env: %w", err)
		}

		return &cfg, nil
	}

	// 4) Только ENV.
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("config not found: provide --config, CONFIG_PATH, local.yaml or env vars: %w", err)
	}

	return &cfg, nil
}
