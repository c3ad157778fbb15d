package siteconfig

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists the single-row document in Postgres.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ Repo = (*Repository)(nil)

func (r *Repository) Get(ctx context.Context) (*Document, error) {
	var doc Document
	err := r.pool.QueryRow(ctx, `SELECT version, body FROM site_config WHERE id = 1`).Scan(&doc.Version, &doc.Body)
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (r *Repository) Upsert(ctx context.Context, body json.RawMessage) (*Document, error) {
	var doc Document
	err := r.pool.QueryRow(ctx, `
		INSERT INTO site_config (id, version, body) VALUES (1, 1, $1)
		ON CONFLICT (id) DO UPDATE SET version = site_config.version + 1, body = EXCLUDED.body, updated_at = now()
		RETURNING version, body
	`, body).Scan(&doc.Version, &doc.Body)
	if err != nil {
		return nil, err
	}
	return &doc, nil
}
