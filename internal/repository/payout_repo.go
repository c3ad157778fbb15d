package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/inflow/backend/internal/models"
)

const payoutColumns = `id, partner_id, amount_cents, status, created_at, updated_at`

type PayoutRepo struct {
	pool *pgxpool.Pool
}

func NewPayoutRepo(pool *pgxpool.Pool) *PayoutRepo {
	return &PayoutRepo{pool: pool}
}

func (r *PayoutRepo) CreateTx(ctx context.Context, tx pgx.Tx, p *models.PayoutRequest) error {
	return tx.QueryRow(ctx, `
		INSERT INTO payout_requests (id, partner_id, amount_cents, status)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at
	`, p.ID, p.PartnerID, p.AmountCents, p.Status).Scan(&p.CreatedAt, &p.UpdatedAt)
}

// GetByIDForUpdate locks the payout row. Call within a transaction.
func (r *PayoutRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.PayoutRequest, error) {
	var p models.PayoutRequest
	err := tx.QueryRow(ctx, `SELECT `+payoutColumns+` FROM payout_requests WHERE id = $1 FOR UPDATE`, id).
		Scan(&p.ID, &p.PartnerID, &p.AmountCents, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PayoutRepo) UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status string) error {
	_, err := tx.Exec(ctx, `UPDATE payout_requests SET status = $2, updated_at = now() WHERE id = $1`, id, status)
	return err
}

func (r *PayoutRepo) ListByPartner(ctx context.Context, partnerID uuid.UUID) ([]*models.PayoutRequest, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+payoutColumns+` FROM payout_requests WHERE partner_id = $1 ORDER BY created_at DESC`, partnerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.PayoutRequest
	for rows.Next() {
		var p models.PayoutRequest
		if err := rows.Scan(&p.ID, &p.PartnerID, &p.AmountCents, &p.Status, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, &p)
	}
	return list, rows.Err()
}
