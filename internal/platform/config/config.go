// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package config handles application-wide settings and environment parsing.

It leverages 'caarlos0/env' to map OS environment variables into a strongly-typed
Go struct, providing early validation and default values.

Usage:

	cfg, err := config.Load()
	if err != nil {
	    log.Fatal(err)
	}

Architecture:

  - Immutability: Once loaded, configuration is read-only.
  - DI-Friendly: Passed to core components (DB, Redis, token service) via constructors.
  - Fail Fast: Signing secrets and token lifetimes are validated before any listener starts.
*/
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// # Store Backends

const (
	StorePostgres = "postgres"
	StoreRedis    = "redis"
	StoreMemory   = "memory"
)

// # Validation Bounds

const (
	// MinSecretLength is the minimum byte length of an HS256 signing secret.
	MinSecretLength = 32

	minAccessTTL  = 1 * time.Minute
	maxAccessTTL  = 60 * time.Minute
	minRefreshTTL = 1 * time.Hour
)

// # Configuration Schema

// Config holds all runtime configuration for the auth API server.
type Config struct {

	// Server settings
	ServerPort  string `env:"SERVER_PORT"  envDefault:"8080"`
	Environment string `env:"ENVIRONMENT"  envDefault:"development"`
	Debug       bool   `env:"DEBUG"        envDefault:"false"`

	// Relational Database (PostgreSQL). Users always live here.
	DatabaseURL string `env:"DATABASE_URL,required"`

	// MigrationPath is the filesystem path to the SQL migrations directory.
	MigrationPath string `env:"MIGRATION_PATH" envDefault:"./data/migrations"`

	// Key-Value Cache (Redis). Required only when TokenStore is "redis".
	RedisURL string `env:"REDIS_URL"`

	// TokenStore selects the refresh token backend: postgres, redis or memory.
	TokenStore string `env:"TOKEN_STORE" envDefault:"postgres"`

	// Access token signing
	JWTAccessSecret     string            `env:"JWT_ACCESS_SECRET,required"`
	JWTAccessKeyID      string            `env:"JWT_ACCESS_KEY_ID"      envDefault:"k1"`
	JWTPreviousSecrets  map[string]string `env:"JWT_PREVIOUS_SECRETS"   envKeyValSeparator:":"`
	JWTIssuer           string            `env:"JWT_ISSUER"             envDefault:"authsvc"`
	JWTAccessExpiration time.Duration     `env:"JWT_ACCESS_EXPIRATION"  envDefault:"15m"`

	// Refresh token lifetime
	JWTRefreshExpiration time.Duration `env:"JWT_REFRESH_EXPIRATION" envDefault:"168h"`

	// PurgeInterval is how often expired refresh tokens are physically deleted.
	PurgeInterval time.Duration `env:"PURGE_INTERVAL" envDefault:"1h"`

	// Password hashing (argon2id)
	Argon2MemoryKB    uint32 `env:"ARGON2_MEMORY_KB"   envDefault:"65536"`
	Argon2Time        uint32 `env:"ARGON2_TIME"        envDefault:"3"`
	Argon2Parallelism uint8  `env:"ARGON2_PARALLELISM" envDefault:"2"`

	// TrustedProxies lists the reverse proxies (CIDR or address) whose
	// X-Real-IP and X-Forwarded-For headers identify the client.
	TrustedProxies []string `env:"TRUSTED_PROXIES" envSeparator:","`

	// Cookie transport
	CookieSecure bool   `env:"COOKIE_SECURE" envDefault:"true"`
	CookieDomain string `env:"COOKIE_DOMAIN"`
}

// # Configuration Loading

// DotenvFile is the optional local file read by [Load] before parsing.
const DotenvFile = ".env"

// Load parses environment variables into a [Config] struct and validates it.
func Load() (*Config, error) {
	return LoadFrom(DotenvFile)
}

// LoadFrom is [Load] with an explicit dotenv path. A missing file is ignored
// and variables already present in the process environment take precedence.
func LoadFrom(dotenvPath string) (*Config, error) {
	if dotenvPath != "" {
		if err := godotenv.Load(dotenvPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: failed to read %s: %w", dotenvPath, err)
		}
	}

	// Initialize an empty config struct
	cfg := &Config{}

	// Use the 'env' package to map environment variables to struct fields.
	// This will fail if any field marked with 'required' is missing.
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse environment variables: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate rejects configurations that would make token issuance unsafe.
func (c *Config) Validate() error {
	var errs []error

	if len(c.JWTAccessSecret) < MinSecretLength {
		errs = append(errs, fmt.Errorf("JWT_ACCESS_SECRET must be at least %d bytes", MinSecretLength))
	}
	if strings.TrimSpace(c.JWTAccessKeyID) == "" {
		errs = append(errs, errors.New("JWT_ACCESS_KEY_ID must not be empty"))
	}
	for kid, secret := range c.JWTPreviousSecrets {
		if kid == c.JWTAccessKeyID {
			errs = append(errs, fmt.Errorf("JWT_PREVIOUS_SECRETS reuses the active key id %q", kid))
		}
		if len(secret) < MinSecretLength {
			errs = append(errs, fmt.Errorf("JWT_PREVIOUS_SECRETS[%s] must be at least %d bytes", kid, MinSecretLength))
		}
	}
	if c.JWTAccessExpiration < minAccessTTL || c.JWTAccessExpiration > maxAccessTTL {
		errs = append(errs, fmt.Errorf("JWT_ACCESS_EXPIRATION must be between %s and %s", minAccessTTL, maxAccessTTL))
	}
	if c.JWTRefreshExpiration < minRefreshTTL {
		errs = append(errs, fmt.Errorf("JWT_REFRESH_EXPIRATION must be at least %s", minRefreshTTL))
	}
	if c.JWTRefreshExpiration <= c.JWTAccessExpiration {
		errs = append(errs, errors.New("JWT_REFRESH_EXPIRATION must exceed JWT_ACCESS_EXPIRATION"))
	}
	if c.PurgeInterval <= 0 {
		errs = append(errs, errors.New("PURGE_INTERVAL must be positive"))
	}

	switch c.TokenStore {
	case StorePostgres, StoreMemory:
	case StoreRedis:
		if c.RedisURL == "" {
			errs = append(errs, errors.New("REDIS_URL is required when TOKEN_STORE=redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("TOKEN_STORE %q is not one of postgres, redis, memory", c.TokenStore))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

// IsDevelopment reports whether the server is running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction reports whether the server is running in production mode.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
