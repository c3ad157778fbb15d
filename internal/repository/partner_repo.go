package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/inflow/backend/internal/commission"
	"github.com/inflow/backend/internal/models"
)

const partnerColumns = `id, name, email, type, code, password_hash, clicks, signups, wallet_balance_cents, locked_balance_cents, total_earned_cents, created_at, updated_at`

type PartnerRepo struct {
	pool *pgxpool.Pool
}

func NewPartnerRepo(pool *pgxpool.Pool) *PartnerRepo {
	return &PartnerRepo{pool: pool}
}

func scanPartner(row pgx.Row) (*models.Partner, error) {
	var p models.Partner
	err := row.Scan(&p.ID, &p.Name, &p.Email, &p.Type, &p.Code, &p.PasswordHash, &p.Clicks, &p.Signups, &p.WalletBalanceCents, &p.LockedBalanceCents, &p.TotalEarnedCents, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PartnerRepo) Create(ctx context.Context, p *models.Partner) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO partners (id, name, email, type, code, password_hash, clicks, signups, wallet_balance_cents, locked_balance_cents, total_earned_cents)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at
	`, p.ID, p.Name, p.Email, p.Type, p.Code, p.PasswordHash, p.Clicks, p.Signups, p.WalletBalanceCents, p.LockedBalanceCents, p.TotalEarnedCents).Scan(&p.CreatedAt, &p.UpdatedAt)
}

func (r *PartnerRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Partner, error) {
	p, err := scanPartner(r.pool.QueryRow(ctx, `SELECT `+partnerColumns+` FROM partners WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, commission.ErrPartnerNotFound
	}
	return p, err
}

func (r *PartnerRepo) GetByEmail(ctx context.Context, email string) (*models.Partner, error) {
	p, err := scanPartner(r.pool.QueryRow(ctx, `SELECT `+partnerColumns+` FROM partners WHERE email = $1`, email))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, commission.ErrPartnerNotFound
	}
	return p, err
}

func (r *PartnerRepo) List(ctx context.Context) ([]*models.Partner, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+partnerColumns+` FROM partners ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Partner
	for rows.Next() {
		var p models.Partner
		if err := rows.Scan(&p.ID, &p.Name, &p.Email, &p.Type, &p.Code, &p.PasswordHash, &p.Clicks, &p.Signups, &p.WalletBalanceCents, &p.LockedBalanceCents, &p.TotalEarnedCents, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, &p)
	}
	return list, rows.Err()
}

// GetByIDForUpdate locks the partner row. Call within a transaction.
func (r *PartnerRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Partner, error) {
	p, err := scanPartner(tx.QueryRow(ctx, `SELECT `+partnerColumns+` FROM partners WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, commission.ErrPartnerNotFound
	}
	return p, err
}

// GetByCodeForUpdate locks the partner row by referral code.
func (r *PartnerRepo) GetByCodeForUpdate(ctx context.Context, tx pgx.Tx, code string) (*models.Partner, error) {
	p, err := scanPartner(tx.QueryRow(ctx, `SELECT `+partnerColumns+` FROM partners WHERE code = $1 FOR UPDATE`, code))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, commission.ErrPartnerNotFound
	}
	return p, err
}

func (r *PartnerRepo) IncrementClicks(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	_, err := tx.Exec(ctx, `UPDATE partners SET clicks = clicks + 1, updated_at = now() WHERE id = $1`, id)
	return err
}

// ApplyEarning adds the commission to total earned and locked in one statement.
func (r *PartnerRepo) ApplyEarning(ctx context.Context, tx pgx.Tx, id uuid.UUID, amountCents int64, countSignup bool) error {
	signup := 0
	if countSignup {
		signup = 1
	}
	_, err := tx.Exec(ctx, `
		UPDATE partners SET
			total_earned_cents = total_earned_cents + $2,
			locked_balance_cents = locked_balance_cents + $2,
			signups = signups + $3,
			updated_at = now()
		WHERE id = $1
	`, id, amountCents, signup)
	return err
}

// ReleaseLocked moves amountCents from locked to the wallet, flooring locked
// at zero.
func (r *PartnerRepo) ReleaseLocked(ctx context.Context, tx pgx.Tx, id uuid.UUID, amountCents int64) error {
	_, err := tx.Exec(ctx, `
		UPDATE partners SET
			locked_balance_cents = GREATEST(locked_balance_cents - $2, 0),
			wallet_balance_cents = wallet_balance_cents + $2,
			updated_at = now()
		WHERE id = $1
	`, id, amountCents)
	return err
}

func (r *PartnerRepo) AddWalletBalance(ctx context.Context, tx pgx.Tx, id uuid.UUID, amountCents int64) error {
	_, err := tx.Exec(ctx, `UPDATE partners SET wallet_balance_cents = wallet_balance_cents + $2, updated_at = now() WHERE id = $1`, id, amountCents)
	return err
}

// DeductWalletBalance atomically deducts when the wallet covers the amount.
func (r *PartnerRepo) DeductWalletBalance(ctx context.Context, tx pgx.Tx, id uuid.UUID, amountCents int64) error {
	tag, err := tx.Exec(ctx, `
		UPDATE partners SET wallet_balance_cents = wallet_balance_cents - $2, updated_at = now()
		WHERE id = $1 AND wallet_balance_cents >= $2
	`, id, amountCents)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return commission.ErrInsufficientBalance
	}
	return nil
}
