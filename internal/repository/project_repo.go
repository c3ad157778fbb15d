package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/inflow/backend/internal/models"
	"github.com/inflow/backend/internal/workflow"
)

const projectColumns = `id, customer_id, name, status, webhook_url, ai_credit_cost, template_id, workflow_count_limit, run_count, created_at, updated_at`

type ProjectRepo struct {
	pool *pgxpool.Pool
}

func NewProjectRepo(pool *pgxpool.Pool) *ProjectRepo {
	return &ProjectRepo{pool: pool}
}

func scanProject(row pgx.Row) (*models.Project, error) {
	var p models.Project
	err := row.Scan(&p.ID, &p.CustomerID, &p.Name, &p.Status, &p.WebhookURL, &p.AICreditCost, &p.TemplateID, &p.WorkflowCountLimit, &p.RunCount, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *ProjectRepo) CreateTx(ctx context.Context, tx pgx.Tx, p *models.Project) error {
	return tx.QueryRow(ctx, `
		INSERT INTO projects (id, customer_id, name, status, webhook_url, ai_credit_cost, template_id, workflow_count_limit, run_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at
	`, p.ID, p.CustomerID, p.Name, p.Status, p.WebhookURL, p.AICreditCost, p.TemplateID, p.WorkflowCountLimit, p.RunCount).Scan(&p.CreatedAt, &p.UpdatedAt)
}

func (r *ProjectRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Project, error) {
	p, err := scanProject(r.pool.QueryRow(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, workflow.ErrProjectNotFound
	}
	return p, err
}

// GetByIDForUpdate locks the project row. Call within a transaction.
func (r *ProjectRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Project, error) {
	p, err := scanProject(tx.QueryRow(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, workflow.ErrProjectNotFound
	}
	return p, err
}

func (r *ProjectRepo) CountByCustomer(ctx context.Context, tx pgx.Tx, customerID uuid.UUID) (int, error) {
	var n int
	err := tx.QueryRow(ctx, `SELECT count(*) FROM projects WHERE customer_id = $1`, customerID).Scan(&n)
	return n, err
}

func (r *ProjectRepo) ListByCustomer(ctx context.Context, customerID uuid.UUID) ([]*models.Project, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+projectColumns+` FROM projects WHERE customer_id = $1 ORDER BY created_at`, customerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Project
	for rows.Next() {
		var p models.Project
		if err := rows.Scan(&p.ID, &p.CustomerID, &p.Name, &p.Status, &p.WebhookURL, &p.AICreditCost, &p.TemplateID, &p.WorkflowCountLimit, &p.RunCount, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, &p)
	}
	return list, rows.Err()
}

func (r *ProjectRepo) IncrementRunCount(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	_, err := tx.Exec(ctx, `UPDATE projects SET run_count = run_count + 1, updated_at = now() WHERE id = $1`, id)
	return err
}

// DeleteTx removes a project only when the customer owns it.
func (r *ProjectRepo) DeleteTx(ctx context.Context, tx pgx.Tx, customerID, projectID uuid.UUID) error {
	tag, err := tx.Exec(ctx, `DELETE FROM projects WHERE id = $1 AND customer_id = $2`, projectID, customerID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return workflow.ErrProjectNotFound
	}
	return nil
}
