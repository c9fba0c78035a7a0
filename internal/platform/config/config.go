// Package config loads service configuration from the environment, optionally
// seeded from a .env file.
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

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"

	AuthModeJWT = "jwt"
	AuthModeDev = "dev"
)

type RedisConfig struct {
	// Addr is host:port. Empty disables the trip cache.
	Addr     string
	Password string
	DB       int
}

type Config struct {
	Port      string
	LogLevel  string
	LogFormat string // json | console

	StorageBackend string
	DatabaseURL    string
	DBMaxConns     int32

	Redis        RedisConfig
	TripCacheTTL time.Duration

	AuthMode   string
	DevSubject string
	DevIssuer  string
	JWT        JWTConfig // populated only when AuthMode is jwt

	// IdempotencyRetention is how long Idempotency-Key responses are replayed.
	IdempotencyRetention time.Duration

	CORSAllowedOrigins []string
	ShutdownTimeout    time.Duration
}

// Load reads envFile (when present) into the process environment without
// overriding variables that are already set, then parses the environment.
func Load(envFile string) (Config, error) {
	if err := LoadEnvFile(envFile); err != nil {
		return Config{}, err
	}
	return LoadFromEnv()
}

// LoadEnvFile applies envFile to the process environment. A missing file is not an error.
func LoadEnvFile(envFile string) error {
	if envFile == "" {
		return nil
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", envFile, err)
	}
	return nil
}

func LoadFromEnv() (Config, error) {
	cfg := Config{
		Port:               getenv("PORT", "8080"),
		LogLevel:           getenv("LOG_LEVEL", "info"),
		LogFormat:          getenv("LOG_FORMAT", "json"),
		StorageBackend:     getenv("STORAGE_BACKEND", StorageMemory),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		AuthMode:           getenv("AUTH_MODE", AuthModeJWT),
		DevSubject:         getenv("DEV_SUBJECT", "dev|local"),
		DevIssuer:          getenv("DEV_ISSUER", "dev"),
		CORSAllowedOrigins: splitList(getenv("CORS_ALLOWED_ORIGINS", "*")),
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
		},
	}

	var err error
	if cfg.TripCacheTTL, err = envDuration("TRIP_CACHE_TTL", 60*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.ShutdownTimeout, err = envDuration("SHUTDOWN_TIMEOUT", 10*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.IdempotencyRetention, err = envDuration("IDEMPOTENCY_RETENTION", 24*time.Hour); err != nil {
		return Config{}, err
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		if cfg.Redis.DB, err = strconv.Atoi(v); err != nil {
			return Config{}, fmt.Errorf("REDIS_DB must be an integer: %w", err)
		}
	}
	if v := os.Getenv("DB_MAX_CONNS"); v != "" {
		n, err := strconv.ParseInt(v, 10, 32)
		if err != nil || n < 1 {
			return Config{}, fmt.Errorf("DB_MAX_CONNS must be a positive integer")
		}
		cfg.DBMaxConns = int32(n)
	}

	switch cfg.StorageBackend {
	case StorageMemory:
	case StoragePostgres:
		if cfg.DatabaseURL == "" {
			return Config{}, fmt.Errorf("DATABASE_URL is required when STORAGE_BACKEND=postgres")
		}
	default:
		return Config{}, fmt.Errorf("STORAGE_BACKEND must be %q or %q, got %q", StorageMemory, StoragePostgres, cfg.StorageBackend)
	}

	switch cfg.AuthMode {
	case AuthModeDev:
	case AuthModeJWT:
		if cfg.JWT, err = LoadJWTConfigFromEnv(); err != nil {
			return Config{}, err
		}
	default:
		return Config{}, fmt.Errorf("AUTH_MODE must be %q or %q, got %q", AuthModeJWT, AuthModeDev, cfg.AuthMode)
	}

	return cfg, nil
}

// SubjectIssuer is the issuer that scopes stored subjects.
func (c Config) SubjectIssuer() string {
	if c.AuthMode == AuthModeDev {
		return c.DevIssuer
	}
	return c.JWT.Issuer
}

func getenv(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func envDuration(k string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration (e.g. 30s): %w", k, err)
	}
	return d, nil
}

func splitList(s string) []string {
	out := make([]string, 0)
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
