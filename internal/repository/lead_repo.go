package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/inflow/backend/internal/models"
)

const leadColumns = `id, partner_id, name, email, phone, company, status, notes, created_at, updated_at`

type LeadRepo struct {
	pool *pgxpool.Pool
}

func NewLeadRepo(pool *pgxpool.Pool) *LeadRepo {
	return &LeadRepo{pool: pool}
}

func (r *LeadRepo) CreateTx(ctx context.Context, tx pgx.Tx, l *models.PartnerLead) error {
	return tx.QueryRow(ctx, `
		INSERT INTO partner_leads (id, partner_id, name, email, phone, company, status, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`, l.ID, l.PartnerID, l.Name, l.Email, l.Phone, l.Company, l.Status, l.Notes).Scan(&l.CreatedAt, &l.UpdatedAt)
}

// GetByIDForUpdate locks the lead row. Call within a transaction.
func (r *LeadRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.PartnerLead, error) {
	var l models.PartnerLead
	err := tx.QueryRow(ctx, `SELECT `+leadColumns+` FROM partner_leads WHERE id = $1 FOR UPDATE`, id).
		Scan(&l.ID, &l.PartnerID, &l.Name, &l.Email, &l.Phone, &l.Company, &l.Status, &l.Notes, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (r *LeadRepo) UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status string) error {
	_, err := tx.Exec(ctx, `UPDATE partner_leads SET status = $2, updated_at = now() WHERE id = $1`, id, status)
	return err
}

func (r *LeadRepo) ListByPartner(ctx context.Context, partnerID uuid.UUID) ([]*models.PartnerLead, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+leadColumns+` FROM partner_leads WHERE partner_id = $1 ORDER BY created_at DESC`, partnerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.PartnerLead
	for rows.Next() {
		var l models.PartnerLead
		if err := rows.Scan(&l.ID, &l.PartnerID, &l.Name, &l.Email, &l.Phone, &l.Company, &l.Status, &l.Notes, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, &l)
	}
	return list, rows.Err()
}
