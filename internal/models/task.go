package models

import (
	"time"

	"github.com/google/uuid"
)

// Task status and priority enums.
const (
	TaskStatusTodo       = "todo"
	TaskStatusInProgress = "in-progress"
	TaskStatusDone       = "done"

	TaskPriorityLow    = "low"
	TaskPriorityMedium = "medium"
	TaskPriorityHigh   = "high"
)

type TaskHistoryItem struct {
	Timestamp time.Time `json:"timestamp"`
	Field     string    `json:"field"`
	OldValue  string    `json:"old_value"`
	NewValue  string    `json:"new_value"`
}

type Task struct {
	ID           uuid.UUID         `json:"id"`
	CustomerID   uuid.UUID         `json:"customer_id"`
	ProjectID    *uuid.UUID        `json:"project_id,omitempty"`
	Title        string            `json:"title"`
	Description  string            `json:"description"`
	Status       string            `json:"status"`
	Priority     string            `json:"priority"`
	DueDate      *time.Time        `json:"due_date,omitempty"`
	Dependencies []uuid.UUID       `json:"dependencies"`
	History      []TaskHistoryItem `json:"history"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// ValidTaskStatus reports whether s is a known task status.
func ValidTaskStatus(s string) bool {
	return s == TaskStatusTodo || s == TaskStatusInProgress || s == TaskStatusDone
}
