package tasks

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/inflow/backend/internal/models"
)

type mockTasks struct {
	mu    sync.Mutex
	tasks map[uuid.UUID]*models.Task
}

func newMockTasks() *mockTasks {
	return &mockTasks{tasks: make(map[uuid.UUID]*models.Task)}
}

func (m *mockTasks) CreateTx(_ context.Context, _ pgx.Tx, t *models.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.tasks[t.ID] = &cp
	return nil
}

func (m *mockTasks) GetByIDForUpdate(_ context.Context, _ pgx.Tx, id uuid.UUID) (*models.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil, ErrTaskNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *mockTasks) UpdateTx(_ context.Context, _ pgx.Tx, t *models.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.tasks[t.ID] = &cp
	return nil
}

func (m *mockTasks) DeleteTx(_ context.Context, _ pgx.Tx, customerID, taskID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[taskID]
	if !ok || t.CustomerID != customerID {
		return ErrTaskNotFound
	}
	delete(m.tasks, taskID)
	return nil
}

func strptr(s string) *string { return &s }

func TestCreateTask_Defaults(t *testing.T) {
	svc := NewService(newMockTasks())
	customerID := uuid.New()

	task, err := svc.CreateTask(context.Background(), nil, customerID, &models.Task{Title: "Set up WhatsApp bot"})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if task.Status != models.TaskStatusTodo || task.Priority != models.TaskPriorityMedium {
		t.Errorf("defaults: status=%q priority=%q", task.Status, task.Priority)
	}
	if task.CustomerID != customerID {
		t.Errorf("customer id: got %s", task.CustomerID)
	}

	if _, err := svc.CreateTask(context.Background(), nil, customerID, &models.Task{Title: "  "}); err == nil {
		t.Error("empty title must be rejected")
	}
	if _, err := svc.CreateTask(context.Background(), nil, customerID, &models.Task{Title: "x", Status: "archived"}); !errors.Is(err, ErrInvalidStatus) {
		t.Errorf("unknown status: got %v, want ErrInvalidStatus", err)
	}
}

func TestUpdateTask_DependencyGate(t *testing.T) {
	repo := newMockTasks()
	svc := NewService(repo)
	customerID := uuid.New()
	ctx := context.Background()

	dep1, _ := svc.CreateTask(ctx, nil, customerID, &models.Task{Title: "Collect product catalog"})
	dep2, _ := svc.CreateTask(ctx, nil, customerID, &models.Task{Title: "Approve bot persona"})
	task, _ := svc.CreateTask(ctx, nil, customerID, &models.Task{
		Title:        "Launch lead bot",
		Dependencies: []uuid.UUID{dep1.ID, dep2.ID},
	})

	_, err := svc.UpdateTask(ctx, nil, customerID, task.ID, TaskUpdate{Status: strptr(models.TaskStatusInProgress)})
	if !errors.Is(err, ErrTaskBlocked) {
		t.Fatalf("blocked update: got %v, want ErrTaskBlocked", err)
	}
	var blocked *TaskBlockedError
	if !errors.As(err, &blocked) || len(blocked.Blocking) != 2 {
		t.Fatalf("blocking titles: %+v", err)
	}
	if !strings.Contains(err.Error(), "Collect product catalog") {
		t.Errorf("error must name blockers: %v", err)
	}

	// Completing one dependency still leaves one blocker.
	if _, err := svc.UpdateTask(ctx, nil, customerID, dep1.ID, TaskUpdate{Status: strptr(models.TaskStatusDone)}); err != nil {
		t.Fatalf("complete dep1: %v", err)
	}
	_, err = svc.UpdateTask(ctx, nil, customerID, task.ID, TaskUpdate{Status: strptr(models.TaskStatusInProgress)})
	if !errors.As(err, &blocked) || len(blocked.Blocking) != 1 || blocked.Blocking[0] != "Approve bot persona" {
		t.Fatalf("after dep1 done: %v", err)
	}

	if _, err := svc.UpdateTask(ctx, nil, customerID, dep2.ID, TaskUpdate{Status: strptr(models.TaskStatusDone)}); err != nil {
		t.Fatalf("complete dep2: %v", err)
	}
	got, err := svc.UpdateTask(ctx, nil, customerID, task.ID, TaskUpdate{Status: strptr(models.TaskStatusInProgress)})
	if err != nil {
		t.Fatalf("unblocked update: %v", err)
	}
	if got.Status != models.TaskStatusInProgress {
		t.Errorf("status: got %q", got.Status)
	}
}

func TestUpdateTask_ForeignDependencyIgnored(t *testing.T) {
	repo := newMockTasks()
	svc := NewService(repo)
	ctx := context.Background()
	customerID := uuid.New()
	otherID := uuid.New()

	// A dependency owned by another customer must neither gate the task
	// nor surface its title.
	foreign, _ := svc.CreateTask(ctx, nil, otherID, &models.Task{Title: "Confidential rollout"})
	task, _ := svc.CreateTask(ctx, nil, customerID, &models.Task{
		Title:        "Launch lead bot",
		Dependencies: []uuid.UUID{foreign.ID},
	})

	got, err := svc.UpdateTask(ctx, nil, customerID, task.ID, TaskUpdate{Status: strptr(models.TaskStatusInProgress)})
	if err != nil {
		t.Fatalf("update with foreign dependency: %v", err)
	}
	if got.Status != models.TaskStatusInProgress {
		t.Errorf("status: got %q", got.Status)
	}
}

func TestUpdateTask_HistoryAppended(t *testing.T) {
	svc := NewService(newMockTasks())
	customerID := uuid.New()
	ctx := context.Background()

	task, _ := svc.CreateTask(ctx, nil, customerID, &models.Task{Title: "Review launch checklist"})

	got, err := svc.UpdateTask(ctx, nil, customerID, task.ID, TaskUpdate{Status: strptr(models.TaskStatusInProgress)})
	if err != nil {
		t.Fatalf("UpdateTask: %v", err)
	}
	if len(got.History) != 1 {
		t.Fatalf("history entries: got %d, want 1", len(got.History))
	}
	h := got.History[0]
	if h.Field != "status" || h.OldValue != models.TaskStatusTodo || h.NewValue != models.TaskStatusInProgress {
		t.Errorf("history entry: %+v", h)
	}

	// Non-status edits leave history alone.
	got, err = svc.UpdateTask(ctx, nil, customerID, task.ID, TaskUpdate{Title: strptr("Review go-live checklist")})
	if err != nil {
		t.Fatalf("rename: %v", err)
	}
	if len(got.History) != 1 {
		t.Errorf("history after rename: got %d entries, want 1", len(got.History))
	}

	got, _ = svc.UpdateTask(ctx, nil, customerID, task.ID, TaskUpdate{Status: strptr(models.TaskStatusDone)})
	if len(got.History) != 2 || got.History[1].NewValue != models.TaskStatusDone {
		t.Errorf("history after done: %+v", got.History)
	}
}

func TestTaskOwnership(t *testing.T) {
	svc := NewService(newMockTasks())
	owner := uuid.New()
	stranger := uuid.New()
	ctx := context.Background()

	task, _ := svc.CreateTask(ctx, nil, owner, &models.Task{Title: "Private"})

	if _, err := svc.UpdateTask(ctx, nil, stranger, task.ID, TaskUpdate{Title: strptr("hijack")}); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("foreign update: got %v, want ErrTaskNotFound", err)
	}
	if err := svc.DeleteTask(ctx, nil, stranger, task.ID); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("foreign delete: got %v, want ErrTaskNotFound", err)
	}
	if err := svc.DeleteTask(ctx, nil, owner, task.ID); err != nil {
		t.Fatalf("owner delete: %v", err)
	}
}
