package models

import (
	"time"

	"github.com/google/uuid"
)

// Workflow run status enums.
const (
	RunSuccess = "success"
	RunFailed  = "failed"
)

// WorkflowRun is an immutable record of one execution attempt. Simulated is
// set when the run never reached a live webhook.
type WorkflowRun struct {
	ID              uuid.UUID `json:"id"`
	CustomerID      uuid.UUID `json:"customer_id"`
	ProjectID       uuid.UUID `json:"project_id"`
	TemplateName    string    `json:"template_name"`
	Workflow        string    `json:"workflow"`
	Status          string    `json:"status"`
	Simulated       bool      `json:"simulated"`
	Inputs          string    `json:"inputs"`
	ResponseSummary string    `json:"response_summary"`
	CreditsDeducted int       `json:"credits_deducted"`
	CreatedAt       time.Time `json:"created_at"`
}
