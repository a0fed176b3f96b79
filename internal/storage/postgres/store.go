// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DB is the slice of pgxpool.Pool the store uses. pgxmock satisfies it too,
// which keeps the store testable without a database.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// Store implements every repository interface on top of Postgres.
type Store struct {
	db DB
}

// New connects a pool and returns a Store. It does not run migrations; call
// Migrate separately.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{db: pool}, nil
}

// NewWithDB constructs a Store from an existing pool (primarily for testing).
func NewWithDB(db DB) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	return &Store{db: db}, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.db == nil {
		return
	}
	s.db.Close()
}

// Ping verifies connectivity, for readiness checks.
func (s *Store) Ping(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, "SELECT 1"); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS clients (
	id UUID PRIMARY KEY,
	name TEXT NOT NULL UNIQUE,
	domain TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS import_jobs (
	id UUID PRIMARY KEY,
	client_id UUID NOT NULL REFERENCES clients(id) ON DELETE CASCADE,
	filename TEXT NOT NULL,
	file_type TEXT NOT NULL,
	status TEXT NOT NULL,
	total_lines BIGINT NOT NULL DEFAULT 0,
	processed_lines BIGINT NOT NULL DEFAULT 0,
	imported_lines BIGINT NOT NULL DEFAULT 0,
	skipped_duplicates BIGINT NOT NULL DEFAULT 0,
	skipped_filtered BIGINT NOT NULL DEFAULT 0,
	parse_errors BIGINT NOT NULL DEFAULT 0,
	error_message TEXT,
	started_at TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ
)`,
	`CREATE TABLE IF NOT EXISTS crawl_records (
	id BIGSERIAL PRIMARY KEY,
	client_id UUID NOT NULL REFERENCES clients(id) ON DELETE CASCADE,
	job_id UUID NOT NULL REFERENCES import_jobs(id) ON DELETE CASCADE,
	ts TIMESTAMPTZ NOT NULL,
	log_date DATE NOT NULL,
	ip TEXT NOT NULL DEFAULT '',
	path TEXT NOT NULL,
	http_code INT NOT NULL DEFAULT 0,
	response_size BIGINT NOT NULL DEFAULT 0,
	user_agent TEXT NOT NULL,
	crawler TEXT NOT NULL,
	bot_family TEXT NOT NULL,
	page_type TEXT NOT NULL,
	dedup_key TEXT NOT NULL,
	UNIQUE (client_id, dedup_key)
)`,
	`CREATE TABLE IF NOT EXISTS reference_urls (
	id BIGSERIAL PRIMARY KEY,
	client_id UUID NOT NULL REFERENCES clients(id) ON DELETE CASCADE,
	job_id UUID NOT NULL REFERENCES import_jobs(id) ON DELETE CASCADE,
	url TEXT NOT NULL,
	http_code INT,
	indexability TEXT
)`,
	`CREATE INDEX IF NOT EXISTS idx_crawl_records_client_path ON crawl_records (client_id, path)`,
	`CREATE INDEX IF NOT EXISTS idx_crawl_records_client_log_date ON crawl_records (client_id, log_date)`,
	`CREATE INDEX IF NOT EXISTS idx_crawl_records_client_crawler ON crawl_records (client_id, crawler)`,
	`CREATE INDEX IF NOT EXISTS idx_reference_urls_client_url ON reference_urls (client_id, url)`,
}

// Migrate applies the schema. Statements are idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range migrations {
		if _, err := s.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply migration: %w", err)
		}
	}
	return nil
}
