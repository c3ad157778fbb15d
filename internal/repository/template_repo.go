package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/inflow/backend/internal/models"
)

const templateColumns = `id, name, description, webhook_url_template, ai_credit_cost, default_workflow_count, allowed_plan_ids, created_at`

type TemplateRepo struct {
	pool *pgxpool.Pool
}

func NewTemplateRepo(pool *pgxpool.Pool) *TemplateRepo {
	return &TemplateRepo{pool: pool}
}

func (r *TemplateRepo) Create(ctx context.Context, t *models.ProjectTemplate) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO project_templates (id, name, description, webhook_url_template, ai_credit_cost, default_workflow_count, allowed_plan_ids)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`, t.ID, t.Name, t.Description, t.WebhookURLTemplate, t.AICreditCost, t.DefaultWorkflowCount, t.AllowedPlanIDs).Scan(&t.CreatedAt)
}

func (r *TemplateRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.ProjectTemplate, error) {
	var t models.ProjectTemplate
	err := r.pool.QueryRow(ctx, `SELECT `+templateColumns+` FROM project_templates WHERE id = $1`, id).
		Scan(&t.ID, &t.Name, &t.Description, &t.WebhookURLTemplate, &t.AICreditCost, &t.DefaultWorkflowCount, &t.AllowedPlanIDs, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *TemplateRepo) List(ctx context.Context) ([]*models.ProjectTemplate, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+templateColumns+` FROM project_templates ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.ProjectTemplate
	for rows.Next() {
		var t models.ProjectTemplate
		if err := rows.Scan(&t.ID, &t.Name, &t.Description, &t.WebhookURLTemplate, &t.AICreditCost, &t.DefaultWorkflowCount, &t.AllowedPlanIDs, &t.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &t)
	}
	return list, rows.Err()
}

func (r *TemplateRepo) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM project_templates WHERE id = $1`, id)
	return err
}
