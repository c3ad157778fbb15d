package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/inflow/backend/internal/models"
)

const runColumns = `id, customer_id, project_id, template_name, workflow, status, simulated, inputs, response_summary, credits_deducted, created_at`

type RunRepo struct {
	pool *pgxpool.Pool
}

func NewRunRepo(pool *pgxpool.Pool) *RunRepo {
	return &RunRepo{pool: pool}
}

// CreateTx inserts an immutable run record inside the given transaction.
func (r *RunRepo) CreateTx(ctx context.Context, tx pgx.Tx, run *models.WorkflowRun) error {
	return tx.QueryRow(ctx, `
		INSERT INTO workflow_runs (id, customer_id, project_id, template_name, workflow, status, simulated, inputs, response_summary, credits_deducted)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at
	`, run.ID, run.CustomerID, run.ProjectID, run.TemplateName, run.Workflow, run.Status, run.Simulated, run.Inputs, run.ResponseSummary, run.CreditsDeducted).Scan(&run.CreatedAt)
}

func (r *RunRepo) ListByCustomer(ctx context.Context, customerID uuid.UUID) ([]*models.WorkflowRun, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+runColumns+` FROM workflow_runs WHERE customer_id = $1 ORDER BY created_at DESC`, customerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.WorkflowRun
	for rows.Next() {
		var run models.WorkflowRun
		if err := rows.Scan(&run.ID, &run.CustomerID, &run.ProjectID, &run.TemplateName, &run.Workflow, &run.Status, &run.Simulated, &run.Inputs, &run.ResponseSummary, &run.CreditsDeducted, &run.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &run)
	}
	return list, rows.Err()
}
