package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const EnvDevelopment = "development"

type Config struct {
	Env          string
	HTTP         HTTPConfig
	DatabaseURL  string
	Database     DatabaseConfig
	Auth         AuthConfig
	Storage      StorageConfig
	AuditLogFile string
	Log          LogConfig
}

type HTTPConfig struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	MaxUploadBytes  int64
}

type DatabaseConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	// WaitTimeout bounds how long cmd/waitfordb polls before giving up.
	WaitTimeout     time.Duration
}

type AuthConfig struct {
	BootstrapEmail    string
	BootstrapPassword string
	BootstrapName     string
	SessionTTL        time.Duration
	CookieSecure      bool
	CleanupInterval   time.Duration
}

type StorageConfig struct {
	PublicDir string
}

type LogConfig struct {
	Level  string
	Format string
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first; variables already set in the environment win.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	env := strings.ToLower(getEnv("APP_ENV", EnvDevelopment))
	cfg := Config{
		Env: env,
		HTTP: HTTPConfig{
			Addr:            getEnv("HTTP_ADDR", ":8080"),
			ReadTimeout:     time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SEC", 10)) * time.Second,
			WriteTimeout:    time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SEC", 30)) * time.Second,
			ShutdownTimeout: time.Duration(getEnvInt("HTTP_SHUTDOWN_TIMEOUT_SEC", 20)) * time.Second,
			MaxUploadBytes:  int64(getEnvInt("HTTP_MAX_UPLOAD_MB", 64)) << 20,
		},
		DatabaseURL: getEnv("DATABASE_URL", ""),
		Database: DatabaseConfig{
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 20),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: time.Duration(getEnvInt("DB_CONN_MAX_LIFETIME_SEC", 300)) * time.Second,
			WaitTimeout:     time.Duration(getEnvInt("DB_WAIT_TIMEOUT_SEC", 60)) * time.Second,
		},
		Auth: AuthConfig{
			BootstrapEmail:    getEnv("AUTH_BOOTSTRAP_EMAIL", "admin@example.com"),
			BootstrapPassword: getEnv("AUTH_BOOTSTRAP_PASSWORD", "admin123"),
			BootstrapName:     getEnv("AUTH_BOOTSTRAP_NAME", "Administrator"),
			SessionTTL:        time.Duration(getEnvInt("AUTH_SESSION_TTL_SEC", 7*24*3600)) * time.Second,
			CookieSecure:      getEnvBool("AUTH_COOKIE_SECURE", env != EnvDevelopment),
			CleanupInterval:   time.Duration(getEnvInt("AUTH_SESSION_CLEANUP_INTERVAL_SEC", 0)) * time.Second,
		},
		Storage: StorageConfig{
			PublicDir: getEnv("STORAGE_PUBLIC_DIR", "./public"),
		},
		AuditLogFile: getEnv("AUDIT_LOG_FILE", "./data/audit.log"),
		Log: LogConfig{
			Level:  strings.ToLower(getEnv("LOG_LEVEL", "info")),
			Format: strings.ToLower(getEnv("LOG_FORMAT", "json")),
		},
	}

	if cfg.HTTP.Addr == "" {
		return Config{}, fmt.Errorf("HTTP_ADDR must not be empty")
	}
	if cfg.HTTP.MaxUploadBytes <= 0 {
		return Config{}, fmt.Errorf("HTTP_MAX_UPLOAD_MB must be > 0")
	}
	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL must not be empty")
	}
	if cfg.Database.MaxOpenConns <= 0 {
		return Config{}, fmt.Errorf("DB_MAX_OPEN_CONNS must be > 0")
	}
	if cfg.Database.MaxIdleConns < 0 || cfg.Database.MaxIdleConns > cfg.Database.MaxOpenConns {
		return Config{}, fmt.Errorf("DB_MAX_IDLE_CONNS must be between 0 and DB_MAX_OPEN_CONNS")
	}
	if cfg.Database.WaitTimeout <= 0 {
		return Config{}, fmt.Errorf("DB_WAIT_TIMEOUT_SEC must be > 0")
	}
	if cfg.Auth.BootstrapEmail == "" || !strings.Contains(cfg.Auth.BootstrapEmail, "@") {
		return Config{}, fmt.Errorf("AUTH_BOOTSTRAP_EMAIL must be a valid email address")
	}
	if cfg.Auth.BootstrapPassword == "" {
		return Config{}, fmt.Errorf("AUTH_BOOTSTRAP_PASSWORD must not be empty")
	}
	if cfg.Auth.SessionTTL <= 0 {
		return Config{}, fmt.Errorf("AUTH_SESSION_TTL_SEC must be > 0")
	}
	if cfg.Auth.CleanupInterval < 0 {
		return Config{}, fmt.Errorf("AUTH_SESSION_CLEANUP_INTERVAL_SEC must be >= 0")
	}
	if cfg.Storage.PublicDir == "" {
		return Config{}, fmt.Errorf("STORAGE_PUBLIC_DIR must not be empty")
	}
	if cfg.AuditLogFile == "" {
		return Config{}, fmt.Errorf("AUDIT_LOG_FILE must not be empty")
	}
	switch cfg.Log.Format {
	case "json", "text":
	default:
		return Config{}, fmt.Errorf("LOG_FORMAT must be json or text")
	}

	return cfg, nil
}

func (c Config) IsDevelopment() bool {
	return c.Env == EnvDevelopment
}

func getEnv(key, fallback string) string {
	val, ok := os.LookupEnv(key)
	if !ok || val == "" {
		return fallback
	}
	return val
}

func getEnvInt(key string, fallback int) int {
	val, ok := os.LookupEnv(key)
	if !ok || val == "" {
		return fallback
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvBool(key string, fallback bool) bool {
	val, ok := os.LookupEnv(key)
	if !ok || val == "" {
		return fallback
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return b
}
