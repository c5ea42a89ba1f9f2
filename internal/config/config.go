// Package config loads the server configuration from the environment,
// after an optional .env file. Development runs fall back to dev-safe
// defaults; production refuses to start with the secrets missing.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/inklet-dev/inklet/internal/bus"
)

// Config is everything cmd/server needs to wire the process.
type Config struct {
	Port      int
	ClientURL string
	StoreURI  string
	Bus       bus.Options
	JWTSecret string
	JWTExpiry time.Duration
	Env       string
}

// Development reports whether the process runs with verbose diagnostics
// and relaxed defaults.
func (c Config) Development() bool { return c.Env != "production" }

// Addr is the listen address derived from Port.
func (c Config) Addr() string { return fmt.Sprintf(":%d", c.Port) }

// Load reads the environment, preloaded from .env when one exists. In
// production a missing DATABASE_URL or JWT_SECRET is an error; in
// development they default to empty (in-memory store) and a fixed dev
// secret.
func Load() (Config, error) {
	// Absent .env files are fine; real deployments set the environment
	// directly.
	_ = godotenv.Load()

	cfg := Config{
		Port:      envInt("PORT", 5000),
		ClientURL: env("CLIENT_URL", "http://localhost:3000"),
		StoreURI:  env("DATABASE_URL", ""),
		Bus: bus.Options{
			Addr:     env("REDIS_ADDR", "localhost:6379"),
			Password: env("REDIS_PASSWORD", ""),
			DB:       envInt("REDIS_DB", 0),
		},
		JWTSecret: env("JWT_SECRET", ""),
		Env:       env("APP_ENV", "development"),
	}

	expiry := env("JWT_EXPIRES_IN", "72h")
	d, err := time.ParseDuration(expiry)
	if err != nil || d <= 0 {
		return Config{}, fmt.Errorf("config: bad JWT_EXPIRES_IN %q", expiry)
	}
	cfg.JWTExpiry = d

	if cfg.Development() {
		if cfg.JWTSecret == "" {
			cfg.JWTSecret = "dev-secret-change-in-production"
		}
		return cfg, nil
	}

	var missing []string
	if cfg.StoreURI == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if cfg.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("config: missing required in production: %s", strings.Join(missing, ", "))
	}
	return cfg, nil
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func envInt(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
