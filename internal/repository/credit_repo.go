package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/inflow/backend/internal/models"
)

const creditColumns = `id, customer_id, project_id, credits_added, credits_consumed, source, status, description, cost_cents, created_at`

type CreditRepo struct {
	pool *pgxpool.Pool
}

func NewCreditRepo(pool *pgxpool.Pool) *CreditRepo {
	return &CreditRepo{pool: pool}
}

// CreateTx inserts a ledger entry inside the given transaction.
func (r *CreditRepo) CreateTx(ctx context.Context, tx pgx.Tx, e *models.CreditLedgerEntry) error {
	return tx.QueryRow(ctx, `
		INSERT INTO credit_ledger (id, customer_id, project_id, credits_added, credits_consumed, source, status, description, cost_cents)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at
	`, e.ID, e.CustomerID, e.ProjectID, e.CreditsAdded, e.CreditsConsumed, e.Source, e.Status, e.Description, e.CostCents).Scan(&e.CreatedAt)
}

// GetByIDForUpdate locks the entry row. Call within a transaction.
func (r *CreditRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.CreditLedgerEntry, error) {
	var e models.CreditLedgerEntry
	err := tx.QueryRow(ctx, `SELECT `+creditColumns+` FROM credit_ledger WHERE id = $1 FOR UPDATE`, id).
		Scan(&e.ID, &e.CustomerID, &e.ProjectID, &e.CreditsAdded, &e.CreditsConsumed, &e.Source, &e.Status, &e.Description, &e.CostCents, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *CreditRepo) UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status string) error {
	_, err := tx.Exec(ctx, `UPDATE credit_ledger SET status = $2 WHERE id = $1`, id, status)
	return err
}

func (r *CreditRepo) ListByCustomer(ctx context.Context, customerID uuid.UUID) ([]*models.CreditLedgerEntry, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+creditColumns+` FROM credit_ledger WHERE customer_id = $1 ORDER BY created_at DESC`, customerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.CreditLedgerEntry
	for rows.Next() {
		var e models.CreditLedgerEntry
		if err := rows.Scan(&e.ID, &e.CustomerID, &e.ProjectID, &e.CreditsAdded, &e.CreditsConsumed, &e.Source, &e.Status, &e.Description, &e.CostCents, &e.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &e)
	}
	return list, rows.Err()
}

// ListPending returns purchase entries awaiting an admin decision.
func (r *CreditRepo) ListPending(ctx context.Context) ([]*models.CreditLedgerEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+creditColumns+` FROM credit_ledger
		WHERE status = $1 AND source = $2 ORDER BY created_at
	`, models.CreditStatusPending, models.CreditSourcePurchase)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.CreditLedgerEntry
	for rows.Next() {
		var e models.CreditLedgerEntry
		if err := rows.Scan(&e.ID, &e.CustomerID, &e.ProjectID, &e.CreditsAdded, &e.CreditsConsumed, &e.Source, &e.Status, &e.Description, &e.CostCents, &e.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &e)
	}
	return list, rows.Err()
}
