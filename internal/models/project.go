package models

import (
	"time"

	"github.com/google/uuid"
)

// Project status enums.
const (
	ProjectActive = "active"
	ProjectPaused = "paused"
)

type Project struct {
	ID                 uuid.UUID  `json:"id"`
	CustomerID         uuid.UUID  `json:"customer_id"`
	Name               string     `json:"name"`
	Status             string     `json:"status"`
	WebhookURL         string     `json:"webhook_url,omitempty"`
	AICreditCost       int        `json:"ai_credit_cost"`
	TemplateID         *uuid.UUID `json:"template_id,omitempty"`
	WorkflowCountLimit int        `json:"workflow_count_limit"`
	RunCount           int        `json:"run_count"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// ProjectTemplate is an admin-defined blueprint instantiated into a Project.
// An empty AllowedPlanIDs list means every plan may use the template.
type ProjectTemplate struct {
	ID                   uuid.UUID `json:"id"`
	Name                 string    `json:"name"`
	Description          string    `json:"description"`
	WebhookURLTemplate   string    `json:"webhook_url_template"`
	AICreditCost         int       `json:"ai_credit_cost"`
	DefaultWorkflowCount int       `json:"default_workflow_count"`
	AllowedPlanIDs       []string  `json:"allowed_plan_ids"`
	CreatedAt            time.Time `json:"created_at"`
}

// AllowsPlan reports whether a plan may instantiate this template.
func (t *ProjectTemplate) AllowsPlan(planID string) bool {
	if len(t.AllowedPlanIDs) == 0 {
		return true
	}
	for _, id := range t.AllowedPlanIDs {
		if id == planID {
			return true
		}
	}
	return false
}
