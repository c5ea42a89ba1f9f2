// Package db bootstraps the Postgres connection pool and the schema the
// document store runs on.
package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// Open creates a connection pool and verifies connectivity.
func Open(ctx context.Context, url string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse store uri: %w", err)
	}

	cfg.MaxConns = 20
	cfg.MinConns = 2
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 30 * time.Minute
	cfg.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	log.Info().
		Int32("max_conns", cfg.MaxConns).
		Int32("min_conns", cfg.MinConns).
		Msg("postgres connection pool created")

	return pool, nil
}

// EnsureSchema creates the tables on first boot. Idempotent. One
// statement per Exec because the extended protocol refuses batches.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS app_user (
			id            UUID PRIMARY KEY,
			username      TEXT NOT NULL,
			email         TEXT NOT NULL,
			password_hash TEXT NOT NULL,
			created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS app_user_email_key ON app_user (lower(email))`,
		`CREATE TABLE IF NOT EXISTS document (
			id         UUID PRIMARY KEY,
			title      TEXT NOT NULL,
			content    TEXT NOT NULL DEFAULT '',
			version    BIGINT NOT NULL DEFAULT 1,
			owner_id   UUID NOT NULL REFERENCES app_user(id) ON DELETE CASCADE,
			shares     JSONB NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS document_owner_idx ON document (owner_id)`,
		`CREATE INDEX IF NOT EXISTS document_updated_idx ON document (updated_at DESC, id DESC)`,
		`CREATE TABLE IF NOT EXISTS document_history (
			document_id UUID NOT NULL REFERENCES document(id) ON DELETE CASCADE,
			version     BIGINT NOT NULL,
			content     TEXT NOT NULL,
			edited_by   UUID NOT NULL,
			edited_at   TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (document_id, version)
		)`,
	}
	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
