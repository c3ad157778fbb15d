package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/inflow/backend/internal/models"
)

const planColumns = `id, name, monthly_price_cents, yearly_price_cents, currency, features, max_projects, ai_credits, additional_credit_price_cents, recommended, visible, created_at, updated_at`

type PlanRepo struct {
	pool *pgxpool.Pool
}

func NewPlanRepo(pool *pgxpool.Pool) *PlanRepo {
	return &PlanRepo{pool: pool}
}

func (r *PlanRepo) GetByID(ctx context.Context, id string) (*models.PricingPlan, error) {
	var p models.PricingPlan
	err := r.pool.QueryRow(ctx, `SELECT `+planColumns+` FROM pricing_plans WHERE id = $1`, id).
		Scan(&p.ID, &p.Name, &p.MonthlyPriceCents, &p.YearlyPriceCents, &p.Currency, &p.Features, &p.MaxProjects, &p.AICredits, &p.AdditionalCreditPriceCents, &p.Recommended, &p.Visible, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// List returns plans in ascending price order, optionally hidden ones too.
func (r *PlanRepo) List(ctx context.Context, includeHidden bool) ([]*models.PricingPlan, error) {
	q := `SELECT ` + planColumns + ` FROM pricing_plans`
	if !includeHidden {
		q += ` WHERE visible`
	}
	q += ` ORDER BY monthly_price_cents`
	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.PricingPlan
	for rows.Next() {
		var p models.PricingPlan
		if err := rows.Scan(&p.ID, &p.Name, &p.MonthlyPriceCents, &p.YearlyPriceCents, &p.Currency, &p.Features, &p.MaxProjects, &p.AICredits, &p.AdditionalCreditPriceCents, &p.Recommended, &p.Visible, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, &p)
	}
	return list, rows.Err()
}

// Seed upserts the built-in plans. Run once at startup.
func (r *PlanRepo) Seed(ctx context.Context, plans []*models.PricingPlan) error {
	for _, p := range plans {
		_, err := r.pool.Exec(ctx, `
			INSERT INTO pricing_plans (id, name, monthly_price_cents, yearly_price_cents, currency, features, max_projects, ai_credits, additional_credit_price_cents, recommended, visible)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			ON CONFLICT (id) DO UPDATE SET
				name = EXCLUDED.name,
				monthly_price_cents = EXCLUDED.monthly_price_cents,
				yearly_price_cents = EXCLUDED.yearly_price_cents,
				currency = EXCLUDED.currency,
				features = EXCLUDED.features,
				max_projects = EXCLUDED.max_projects,
				ai_credits = EXCLUDED.ai_credits,
				additional_credit_price_cents = EXCLUDED.additional_credit_price_cents,
				recommended = EXCLUDED.recommended,
				visible = EXCLUDED.visible,
				updated_at = now()
		`, p.ID, p.Name, p.MonthlyPriceCents, p.YearlyPriceCents, p.Currency, p.Features, p.MaxProjects, p.AICredits, p.AdditionalCreditPriceCents, p.Recommended, p.Visible)
		if err != nil {
			return err
		}
	}
	return nil
}
