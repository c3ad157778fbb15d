package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/inflow/backend/internal/models"
	"github.com/inflow/backend/internal/tasks"
)

const taskColumns = `id, customer_id, project_id, title, description, status, priority, due_date, dependencies, history, created_at, updated_at`

type TaskRepo struct {
	pool *pgxpool.Pool
}

func NewTaskRepo(pool *pgxpool.Pool) *TaskRepo {
	return &TaskRepo{pool: pool}
}

func scanTask(row pgx.Row) (*models.Task, error) {
	var t models.Task
	err := row.Scan(&t.ID, &t.CustomerID, &t.ProjectID, &t.Title, &t.Description, &t.Status, &t.Priority, &t.DueDate, &t.Dependencies, &t.History, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *TaskRepo) CreateTx(ctx context.Context, tx pgx.Tx, t *models.Task) error {
	return tx.QueryRow(ctx, `
		INSERT INTO tasks (id, customer_id, project_id, title, description, status, priority, due_date, dependencies, history)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at
	`, t.ID, t.CustomerID, t.ProjectID, t.Title, t.Description, t.Status, t.Priority, t.DueDate, t.Dependencies, t.History).Scan(&t.CreatedAt, &t.UpdatedAt)
}

// GetByIDForUpdate locks the task row. Call within a transaction.
func (r *TaskRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Task, error) {
	t, err := scanTask(tx.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, tasks.ErrTaskNotFound
	}
	return t, err
}

func (r *TaskRepo) UpdateTx(ctx context.Context, tx pgx.Tx, t *models.Task) error {
	_, err := tx.Exec(ctx, `
		UPDATE tasks SET title = $2, description = $3, status = $4, priority = $5, due_date = $6, dependencies = $7, history = $8, updated_at = now()
		WHERE id = $1
	`, t.ID, t.Title, t.Description, t.Status, t.Priority, t.DueDate, t.Dependencies, t.History)
	return err
}

// DeleteTx removes a task only when the customer owns it.
func (r *TaskRepo) DeleteTx(ctx context.Context, tx pgx.Tx, customerID, taskID uuid.UUID) error {
	tag, err := tx.Exec(ctx, `DELETE FROM tasks WHERE id = $1 AND customer_id = $2`, taskID, customerID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return tasks.ErrTaskNotFound
	}
	return nil
}

func (r *TaskRepo) ListByCustomer(ctx context.Context, customerID uuid.UUID) ([]*models.Task, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+taskColumns+` FROM tasks WHERE customer_id = $1 ORDER BY created_at DESC`, customerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Task
	for rows.Next() {
		var t models.Task
		if err := rows.Scan(&t.ID, &t.CustomerID, &t.ProjectID, &t.Title, &t.Description, &t.Status, &t.Priority, &t.DueDate, &t.Dependencies, &t.History, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, &t)
	}
	return list, rows.Err()
}
