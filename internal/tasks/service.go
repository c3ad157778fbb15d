package tasks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/inflow/backend/internal/models"
)

var (
	// ErrTaskNotFound is returned for missing or foreign tasks.
	ErrTaskNotFound = errors.New("task not found")
	// ErrTaskBlocked is returned when an incomplete dependency blocks a
	// status change.
	ErrTaskBlocked = errors.New("task blocked by dependencies")
	// ErrInvalidStatus is returned for unknown status values.
	ErrInvalidStatus = errors.New("invalid task status")
	// ErrMissingTitle is returned when a task is created without a title.
	ErrMissingTitle = errors.New("task requires a title")
)

// TaskBlockedError lists the titles of the dependencies still open.
type TaskBlockedError struct {
	Blocking []string
}

func (e *TaskBlockedError) Error() string {
	return fmt.Sprintf("task blocked by: %s", strings.Join(e.Blocking, ", "))
}

func (e *TaskBlockedError) Unwrap() error { return ErrTaskBlocked }

// TaskRepo stores customer tasks.
type TaskRepo interface {
	CreateTx(ctx context.Context, tx pgx.Tx, t *models.Task) error
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Task, error)
	UpdateTx(ctx context.Context, tx pgx.Tx, t *models.Task) error
	DeleteTx(ctx context.Context, tx pgx.Tx, customerID, taskID uuid.UUID) error
}

// Service is the task engine. Status moves off "todo" only once every
// dependency is done.
type Service struct {
	Tasks TaskRepo
}

// NewService returns a new task Service.
func NewService(tasks TaskRepo) *Service {
	return &Service{Tasks: tasks}
}

// CreateTask validates and stores a new task for the customer.
func (s *Service) CreateTask(ctx context.Context, tx pgx.Tx, customerID uuid.UUID, t *models.Task) (*models.Task, error) {
	if strings.TrimSpace(t.Title) == "" {
		return nil, ErrMissingTitle
	}
	if t.Status == "" {
		t.Status = models.TaskStatusTodo
	}
	if !models.ValidTaskStatus(t.Status) {
		return nil, ErrInvalidStatus
	}
	if t.Priority == "" {
		t.Priority = models.TaskPriorityMedium
	}
	t.ID = uuid.New()
	t.CustomerID = customerID
	t.History = nil
	if err := s.Tasks.CreateTx(ctx, tx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// TaskUpdate carries the mutable fields of a task. Nil fields are left
// untouched.
type TaskUpdate struct {
	Title        *string
	Description  *string
	Status       *string
	Priority     *string
	DueDate      *time.Time
	Dependencies []uuid.UUID
}

// UpdateTask applies the update to a task the customer owns. A status change
// away from todo is refused while any dependency is not done; accepted status
// changes are appended to the task history.
func (s *Service) UpdateTask(ctx context.Context, tx pgx.Tx, customerID, taskID uuid.UUID, upd TaskUpdate) (*models.Task, error) {
	t, err := s.Tasks.GetByIDForUpdate(ctx, tx, taskID)
	if err != nil {
		return nil, err
	}
	if t.CustomerID != customerID {
		return nil, ErrTaskNotFound
	}
	if upd.Title != nil {
		t.Title = *upd.Title
	}
	if upd.Description != nil {
		t.Description = *upd.Description
	}
	if upd.Priority != nil {
		t.Priority = *upd.Priority
	}
	if upd.DueDate != nil {
		t.DueDate = upd.DueDate
	}
	if upd.Dependencies != nil {
		t.Dependencies = upd.Dependencies
	}
	if upd.Status != nil && *upd.Status != t.Status {
		if !models.ValidTaskStatus(*upd.Status) {
			return nil, ErrInvalidStatus
		}
		if *upd.Status != models.TaskStatusTodo {
			blocking, err := s.openDependencies(ctx, tx, t)
			if err != nil {
				return nil, err
			}
			if len(blocking) > 0 {
				return nil, &TaskBlockedError{Blocking: blocking}
			}
		}
		t.History = append(t.History, models.TaskHistoryItem{
			Timestamp: time.Now().UTC(),
			Field:     "status",
			OldValue:  t.Status,
			NewValue:  *upd.Status,
		})
		t.Status = *upd.Status
	}
	if err := s.Tasks.UpdateTx(ctx, tx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// openDependencies returns the titles of dependencies that are not done.
// Dangling ids and tasks owned by another customer are ignored.
func (s *Service) openDependencies(ctx context.Context, tx pgx.Tx, t *models.Task) ([]string, error) {
	var blocking []string
	for _, depID := range t.Dependencies {
		dep, err := s.Tasks.GetByIDForUpdate(ctx, tx, depID)
		if err != nil {
			if errors.Is(err, ErrTaskNotFound) {
				continue
			}
			return nil, err
		}
		if dep.CustomerID != t.CustomerID {
			continue
		}
		if dep.Status != models.TaskStatusDone {
			blocking = append(blocking, dep.Title)
		}
	}
	return blocking, nil
}

// DeleteTask removes a task the customer owns.
func (s *Service) DeleteTask(ctx context.Context, tx pgx.Tx, customerID, taskID uuid.UUID) error {
	return s.Tasks.DeleteTx(ctx, tx, customerID, taskID)
}
