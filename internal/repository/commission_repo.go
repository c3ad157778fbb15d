package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/inflow/backend/internal/models"
)

const commissionColumns = `id, partner_id, lead_id, type, status, customer_name, plan_name, sale_amount_cents, amount_cents, proof_of_work, admin_feedback, created_at, updated_at`

type CommissionRepo struct {
	pool *pgxpool.Pool
}

func NewCommissionRepo(pool *pgxpool.Pool) *CommissionRepo {
	return &CommissionRepo{pool: pool}
}

func (r *CommissionRepo) CreateTx(ctx context.Context, tx pgx.Tx, c *models.CommissionLog) error {
	return tx.QueryRow(ctx, `
		INSERT INTO commission_logs (id, partner_id, lead_id, type, status, customer_name, plan_name, sale_amount_cents, amount_cents, proof_of_work, admin_feedback)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at
	`, c.ID, c.PartnerID, c.LeadID, c.Type, c.Status, c.CustomerName, c.PlanName, c.SaleAmountCents, c.AmountCents, c.ProofOfWork, c.AdminFeedback).Scan(&c.CreatedAt, &c.UpdatedAt)
}

// GetByIDForUpdate locks the commission row. Call within a transaction.
func (r *CommissionRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.CommissionLog, error) {
	var c models.CommissionLog
	err := tx.QueryRow(ctx, `SELECT `+commissionColumns+` FROM commission_logs WHERE id = $1 FOR UPDATE`, id).
		Scan(&c.ID, &c.PartnerID, &c.LeadID, &c.Type, &c.Status, &c.CustomerName, &c.PlanName, &c.SaleAmountCents, &c.AmountCents, &c.ProofOfWork, &c.AdminFeedback, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// UpdateReview sets the status and, when provided, the proof and feedback.
func (r *CommissionRepo) UpdateReview(ctx context.Context, tx pgx.Tx, id uuid.UUID, status string, proof *models.ProofOfWork, feedback string) error {
	_, err := tx.Exec(ctx, `
		UPDATE commission_logs SET
			status = $2,
			proof_of_work = COALESCE($3, proof_of_work),
			admin_feedback = CASE WHEN $4 <> '' THEN $4 ELSE admin_feedback END,
			updated_at = now()
		WHERE id = $1
	`, id, status, proof, feedback)
	return err
}

func (r *CommissionRepo) ListByPartner(ctx context.Context, partnerID uuid.UUID) ([]*models.CommissionLog, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+commissionColumns+` FROM commission_logs WHERE partner_id = $1 ORDER BY created_at DESC`, partnerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.CommissionLog
	for rows.Next() {
		var c models.CommissionLog
		if err := rows.Scan(&c.ID, &c.PartnerID, &c.LeadID, &c.Type, &c.Status, &c.CustomerName, &c.PlanName, &c.SaleAmountCents, &c.AmountCents, &c.ProofOfWork, &c.AdminFeedback, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, &c)
	}
	return list, rows.Err()
}
