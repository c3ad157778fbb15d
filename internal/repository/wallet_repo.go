package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/inflow/backend/internal/models"
)

type WalletRepo struct {
	pool *pgxpool.Pool
}

func NewWalletRepo(pool *pgxpool.Pool) *WalletRepo {
	return &WalletRepo{pool: pool}
}

// CreateTx inserts an immutable wallet transaction inside the given transaction.
func (r *WalletRepo) CreateTx(ctx context.Context, tx pgx.Tx, t *models.WalletTransaction) error {
	return tx.QueryRow(ctx, `
		INSERT INTO wallet_transactions (id, customer_id, type, amount_cents, description, reference)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, t.ID, t.CustomerID, t.Type, t.AmountCents, t.Description, t.Reference).Scan(&t.CreatedAt)
}

func (r *WalletRepo) ListByCustomer(ctx context.Context, customerID uuid.UUID) ([]*models.WalletTransaction, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, customer_id, type, amount_cents, description, reference, created_at
		FROM wallet_transactions WHERE customer_id = $1 ORDER BY created_at DESC
	`, customerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.WalletTransaction
	for rows.Next() {
		var t models.WalletTransaction
		if err := rows.Scan(&t.ID, &t.CustomerID, &t.Type, &t.AmountCents, &t.Description, &t.Reference, &t.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &t)
	}
	return list, rows.Err()
}
