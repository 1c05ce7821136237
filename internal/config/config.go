package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the totpvault server.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Auth     AuthConfig
	Vault    VaultConfig
}

type ServerConfig struct {
	Port     int
	Env      string
	LogLevel string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	MigrationsDir   string
}

type RedisConfig struct {
	URL                string
	RateLimitPerMinute int
}

// AuthConfig covers account credentials: password hashing, lockout and JWT.
type AuthConfig struct {
	JWTSecret         string
	JWTTTL            time.Duration
	JWTIssuer         string
	LoginMaxFailures  int
	LoginLockDuration time.Duration
	BcryptCost        int
}

// VaultConfig covers the master password gate and secret usage tracking.
type VaultConfig struct {
	SessionTTL        time.Duration
	MasterPasswordMin int
	UsageLogEnabled   bool
}

const minJWTSecretLen = 32

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:     envInt("TOTPVAULT_PORT", 8080),
			Env:      envString("TOTPVAULT_ENV", "development"),
			LogLevel: strings.ToLower(envString("LOG_LEVEL", "info")),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
			MigrationsDir:   envString("MIGRATIONS_DIR", "migrations"),
		},
		Redis: RedisConfig{
			URL:                os.Getenv("REDIS_URL"),
			RateLimitPerMinute: envInt("RATE_LIMIT_PER_MINUTE", 120),
		},
		Auth: AuthConfig{
			JWTSecret:         os.Getenv("JWT_SECRET"),
			JWTTTL:            envDuration("JWT_TTL", 168*time.Hour),
			JWTIssuer:         envString("JWT_ISSUER", "totpvault"),
			LoginMaxFailures:  envInt("LOGIN_MAX_FAILURES", 5),
			LoginLockDuration: envDuration("LOGIN_LOCK_DURATION", 30*time.Minute),
			BcryptCost:        envInt("BCRYPT_COST", 10),
		},
		Vault: VaultConfig{
			SessionTTL:        envDuration("VAULT_SESSION_TTL", 24*time.Hour),
			MasterPasswordMin: envInt("MASTER_PASSWORD_MIN_LENGTH", 6),
			UsageLogEnabled:   envBool("USAGE_LOG_ENABLED", true),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}
	if c.Redis.RateLimitPerMinute <= 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE must be positive, got %d", c.Redis.RateLimitPerMinute)
	}

	if !validLogLevels[c.Server.LogLevel] {
		return fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error; got %q", c.Server.LogLevel)
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if len(c.Auth.JWTSecret) < minJWTSecretLen {
		return fmt.Errorf("JWT_SECRET must be at least %d bytes", minJWTSecretLen)
	}
	if c.Auth.JWTTTL <= 0 {
		return fmt.Errorf("JWT_TTL must be positive")
	}
	if c.Auth.LoginMaxFailures < 1 {
		return fmt.Errorf("LOGIN_MAX_FAILURES must be at least 1, got %d", c.Auth.LoginMaxFailures)
	}
	if c.Auth.LoginLockDuration <= 0 {
		return fmt.Errorf("LOGIN_LOCK_DURATION must be positive")
	}
	if c.Auth.BcryptCost < 10 || c.Auth.BcryptCost > 31 {
		return fmt.Errorf("BCRYPT_COST must be between 10 and 31, got %d", c.Auth.BcryptCost)
	}

	if c.Vault.SessionTTL <= 0 {
		return fmt.Errorf("VAULT_SESSION_TTL must be positive")
	}
	if c.Vault.MasterPasswordMin < 1 {
		return fmt.Errorf("MASTER_PASSWORD_MIN_LENGTH must be at least 1, got %d", c.Vault.MasterPasswordMin)
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func envBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}
