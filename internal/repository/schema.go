package repository

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schemaSQL holds the application DDL. Every statement is IF NOT EXISTS so
// applying it on an already-provisioned database is a no-op.
//
//go:embed schema.sql
var schemaSQL string

// EnsureSchema creates the application tables on a fresh database. It runs
// at startup alongside the queue migrations, before any seed data is written.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
