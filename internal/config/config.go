package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	ServerPort  string
	DatabaseURL string
	// DatabaseMaxConns caps the Postgres pool size.
	DatabaseMaxConns int32
	RedisURL    string
	JWTSecret   string
	JWTExpiry   time.Duration
	BcryptCost  int

	CatalogBaseURL    string
	CatalogPageSize   int
	HTTPClientTimeout time.Duration

	SecureStoreDir    string
	SecureStoreSecret string

	// SessionAckTimeout bounds how long a forced logout waits for the user to
	// acknowledge the notification before navigating anyway. Zero waits for
	// the acknowledgment only.
	SessionAckTimeout time.Duration

	LogLevel  string
	LogFormat string
}

func LoadConfig() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("DATABASE_MAX_CONNS", 10)
	v.SetDefault("JWT_EXPIRY", "24h")
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("CATALOG_BASE_URL", "https://fakestoreapi.com")
	v.SetDefault("CATALOG_PAGE_SIZE", 10)
	v.SetDefault("HTTP_CLIENT_TIMEOUT", "10s")
	v.SetDefault("SECURE_STORE_DIR", defaultSecureStoreDir())
	v.SetDefault("SESSION_ACK_TIMEOUT", "5s")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "console")

	expiry, err := parseDuration(v, "JWT_EXPIRY")
	if err != nil {
		return nil, err
	}
	httpTimeout, err := parseDuration(v, "HTTP_CLIENT_TIMEOUT")
	if err != nil {
		return nil, err
	}
	ackTimeout, err := parseDuration(v, "SESSION_ACK_TIMEOUT")
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		ServerPort:        v.GetString("SERVER_PORT"),
		DatabaseURL:       v.GetString("DATABASE_URL"),
		DatabaseMaxConns:  v.GetInt32("DATABASE_MAX_CONNS"),
		RedisURL:          v.GetString("REDIS_URL"),
		JWTSecret:         v.GetString("JWT_SECRET"),
		JWTExpiry:         expiry,
		BcryptCost:        v.GetInt("BCRYPT_COST"),
		CatalogBaseURL:    v.GetString("CATALOG_BASE_URL"),
		CatalogPageSize:   v.GetInt("CATALOG_PAGE_SIZE"),
		HTTPClientTimeout: httpTimeout,
		SecureStoreDir:    v.GetString("SECURE_STORE_DIR"),
		SecureStoreSecret: v.GetString("SECURE_STORE_SECRET"),
		SessionAckTimeout: ackTimeout,
		LogLevel:          v.GetString("LOG_LEVEL"),
		LogFormat:         v.GetString("LOG_FORMAT"),
	}

	// Validate required fields
	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	if cfg.CatalogPageSize <= 0 {
		return nil, errors.New("CATALOG_PAGE_SIZE must be positive")
	}
	if cfg.SessionAckTimeout < 0 {
		return nil, errors.New("SESSION_ACK_TIMEOUT must not be negative")
	}

	return cfg, nil
}

func parseDuration(v *viper.Viper, key string) (time.Duration, error) {
	d, err := time.ParseDuration(v.GetString(key))
	if err != nil {
		return 0, fmt.Errorf("invalid %s format", key)
	}
	return d, nil
}

func defaultSecureStoreDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".storefront"
	}
	return filepath.Join(home, ".storefront")
}
