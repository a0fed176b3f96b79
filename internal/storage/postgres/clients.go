package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/mkessler/crawlscope/internal/store"
)

const uniqueViolation = "23505"

// CreateClient inserts a client row; a taken name maps to ErrDuplicate.
func (s *Store) CreateClient(ctx context.Context, c store.Client) error {
	_, err := s.db.Exec(ctx, `
INSERT INTO clients (id, name, domain, created_at)
VALUES ($1, $2, $3, $4)`,
		c.ID, c.Name, c.Domain, c.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return store.ErrDuplicate
		}
		return fmt.Errorf("insert client: %w", err)
	}
	return nil
}

// GetClient fetches one client.
func (s *Store) GetClient(ctx context.Context, id uuid.UUID) (store.Client, error) {
	var c store.Client
	err := s.db.QueryRow(ctx, `
SELECT id, name, domain, created_at FROM clients WHERE id = $1`, id).
		Scan(&c.ID, &c.Name, &c.Domain, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.Client{}, store.ErrNotFound
	}
	if err != nil {
		return store.Client{}, fmt.Errorf("select client: %w", err)
	}
	return c, nil
}

// ListClients returns every client ordered by name.
func (s *Store) ListClients(ctx context.Context) ([]store.Client, error) {
	rows, err := s.db.Query(ctx, `
SELECT id, name, domain, created_at FROM clients ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("select clients: %w", err)
	}
	defer rows.Close()

	var clients []store.Client
	for rows.Next() {
		var c store.Client
		if err := rows.Scan(&c.ID, &c.Name, &c.Domain, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan client: %w", err)
		}
		clients = append(clients, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate clients: %w", err)
	}
	return clients, nil
}

// DeleteClient removes a client; jobs, records and reference URLs cascade.
func (s *Store) DeleteClient(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM clients WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete client: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}
