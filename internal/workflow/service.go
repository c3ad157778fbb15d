package workflow

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/inflow/backend/internal/ledger"
	"github.com/inflow/backend/internal/models"
)

const dispatchTimeout = 10 * time.Second

// responseSummaryLimit caps how much of a webhook response body is stored.
const responseSummaryLimit = 2048

var (
	// ErrSubscriptionExpired is returned when the customer's term has lapsed.
	ErrSubscriptionExpired = errors.New("subscription expired")
	// ErrRunLimitReached is returned when a project has used all its runs.
	ErrRunLimitReached = errors.New("workflow run limit reached")
	// ErrPlanLimitReached is returned when the plan's project quota is full.
	ErrPlanLimitReached = errors.New("plan project limit reached")
	// ErrTemplateNotAllowed is returned when a template excludes the plan.
	ErrTemplateNotAllowed = errors.New("template not available on this plan")
	// ErrProjectNotFound is returned for missing or foreign projects.
	ErrProjectNotFound = errors.New("project not found")
)

// CustomerRepo is the minimal customer interface for the run engine.
type CustomerRepo interface {
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Customer, error)
}

// PlanRepo resolves pricing plans.
type PlanRepo interface {
	GetByID(ctx context.Context, id string) (*models.PricingPlan, error)
}

// ProjectRepo stores projects.
type ProjectRepo interface {
	CreateTx(ctx context.Context, tx pgx.Tx, p *models.Project) error
	CountByCustomer(ctx context.Context, tx pgx.Tx, customerID uuid.UUID) (int, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Project, error)
	IncrementRunCount(ctx context.Context, tx pgx.Tx, id uuid.UUID) error
	DeleteTx(ctx context.Context, tx pgx.Tx, customerID, projectID uuid.UUID) error
}

// TemplateRepo resolves project templates.
type TemplateRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.ProjectTemplate, error)
	List(ctx context.Context) ([]*models.ProjectTemplate, error)
}

// RunRepo stores immutable run records.
type RunRepo interface {
	CreateTx(ctx context.Context, tx pgx.Tx, run *models.WorkflowRun) error
}

// CreditConsumer deducts AI credits inside the run's transaction. Satisfied
// by the ledger service.
type CreditConsumer interface {
	ConsumeCredits(ctx context.Context, tx pgx.Tx, customerID uuid.UUID, projectID *uuid.UUID, amount int, description string) error
}

// Service creates projects from templates and executes their workflows.
type Service struct {
	Customers CustomerRepo
	Plans     PlanRepo
	Projects  ProjectRepo
	Templates TemplateRepo
	Runs      RunRepo
	Credits   CreditConsumer

	// SimulateOnFailure falls an unreachable webhook back to a simulated
	// success instead of recording a failed run.
	SimulateOnFailure bool

	HTTPClient *http.Client
	Logger     *slog.Logger
}

// NewService returns a run engine with the bounded dispatch HTTP client.
func NewService(customers CustomerRepo, plans PlanRepo, projects ProjectRepo, templates TemplateRepo, runs RunRepo, credits CreditConsumer, simulateOnFailure bool, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		Customers:         customers,
		Plans:             plans,
		Projects:          projects,
		Templates:         templates,
		Runs:              runs,
		Credits:           credits,
		SimulateOnFailure: simulateOnFailure,
		HTTPClient:        &http.Client{Timeout: dispatchTimeout},
		Logger:            logger,
	}
}

// uniquifyWebhookURL appends exactly one userId and one projectId query
// parameter, replacing any the template already carries.
func uniquifyWebhookURL(raw string, customerID, projectID uuid.UUID) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse webhook url: %w", err)
	}
	q := u.Query()
	q.Set("userId", customerID.String())
	q.Set("projectId", projectID.String())
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// CreateProject instantiates a template for the customer, enforcing the
// plan's project quota and the template's plan allow-list.
func (s *Service) CreateProject(ctx context.Context, tx pgx.Tx, customerID, templateID uuid.UUID, name string) (*models.Project, error) {
	cust, err := s.Customers.GetByIDForUpdate(ctx, tx, customerID)
	if err != nil {
		return nil, err
	}
	plan, err := s.Plans.GetByID(ctx, cust.PlanID)
	if err != nil {
		return nil, ledger.ErrUnknownPlan
	}
	count, err := s.Projects.CountByCustomer(ctx, tx, customerID)
	if err != nil {
		return nil, err
	}
	if count >= plan.MaxProjects {
		return nil, ErrPlanLimitReached
	}
	tmpl, err := s.Templates.GetByID(ctx, templateID)
	if err != nil {
		return nil, err
	}
	if !tmpl.AllowsPlan(cust.PlanID) {
		return nil, ErrTemplateNotAllowed
	}
	if strings.TrimSpace(name) == "" {
		name = tmpl.Name
	}
	return s.createFromTemplate(ctx, tx, customerID, tmpl, name)
}

func (s *Service) createFromTemplate(ctx context.Context, tx pgx.Tx, customerID uuid.UUID, tmpl *models.ProjectTemplate, name string) (*models.Project, error) {
	p := &models.Project{
		ID:                 uuid.New(),
		CustomerID:         customerID,
		Name:               name,
		Status:             models.ProjectActive,
		AICreditCost:       tmpl.AICreditCost,
		TemplateID:         &tmpl.ID,
		WorkflowCountLimit: tmpl.DefaultWorkflowCount,
	}
	if tmpl.WebhookURLTemplate != "" {
		hook, err := uniquifyWebhookURL(tmpl.WebhookURLTemplate, customerID, p.ID)
		if err != nil {
			return nil, err
		}
		p.WebhookURL = hook
	}
	if err := s.Projects.CreateTx(ctx, tx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// ProvisionDefaults creates projects from the plan's allowed templates until
// the plan quota is filled. Called once during onboarding.
func (s *Service) ProvisionDefaults(ctx context.Context, tx pgx.Tx, customerID uuid.UUID) ([]*models.Project, error) {
	cust, err := s.Customers.GetByIDForUpdate(ctx, tx, customerID)
	if err != nil {
		return nil, err
	}
	plan, err := s.Plans.GetByID(ctx, cust.PlanID)
	if err != nil {
		return nil, ledger.ErrUnknownPlan
	}
	count, err := s.Projects.CountByCustomer(ctx, tx, customerID)
	if err != nil {
		return nil, err
	}
	templates, err := s.Templates.List(ctx)
	if err != nil {
		return nil, err
	}
	var created []*models.Project
	for _, tmpl := range templates {
		if count+len(created) >= plan.MaxProjects {
			break
		}
		if !tmpl.AllowsPlan(cust.PlanID) {
			continue
		}
		p, err := s.createFromTemplate(ctx, tx, customerID, tmpl, tmpl.Name)
		if err != nil {
			return nil, err
		}
		created = append(created, p)
	}
	return created, nil
}

// DeleteProject removes a project the customer owns.
func (s *Service) DeleteProject(ctx context.Context, tx pgx.Tx, customerID, projectID uuid.UUID) error {
	return s.Projects.DeleteTx(ctx, tx, customerID, projectID)
}

// runPayload is the JSON body sent to the project's webhook.
type runPayload struct {
	ProjectID uuid.UUID       `json:"projectId"`
	UserID    uuid.UUID       `json:"userId"`
	Workflow  string          `json:"workflow"`
	Input     json.RawMessage `json:"input"`
	Timestamp time.Time       `json:"timestamp"`
	Credits   int             `json:"credits"`
}

// RunWorkflow executes one workflow of a project. Preconditions are checked
// in order, subscription then run limit then credits, before anything is
// dispatched or written. Credits are billed for failed runs too; the run
// record carries the failure.
func (s *Service) RunWorkflow(ctx context.Context, tx pgx.Tx, customerID, projectID uuid.UUID, workflowTitle string, input json.RawMessage) (*models.WorkflowRun, error) {
	cust, err := s.Customers.GetByIDForUpdate(ctx, tx, customerID)
	if err != nil {
		return nil, err
	}
	proj, err := s.Projects.GetByIDForUpdate(ctx, tx, projectID)
	if err != nil {
		return nil, err
	}
	if proj.CustomerID != customerID {
		return nil, ErrProjectNotFound
	}
	if !cust.SubscriptionIsActive(time.Now()) {
		return nil, ErrSubscriptionExpired
	}
	if proj.RunCount >= proj.WorkflowCountLimit {
		return nil, ErrRunLimitReached
	}
	cost := proj.AICreditCost
	if cust.AICredits < cost {
		return nil, ledger.ErrInsufficientCredits
	}

	status, simulated, summary := s.dispatch(ctx, cust, proj, workflowTitle, input, cost)

	if err := s.Projects.IncrementRunCount(ctx, tx, projectID); err != nil {
		return nil, err
	}
	if cost > 0 {
		desc := fmt.Sprintf("Run: %s - %s", proj.Name, workflowTitle)
		if err := s.Credits.ConsumeCredits(ctx, tx, customerID, &projectID, cost, desc); err != nil {
			return nil, err
		}
	}
	run := &models.WorkflowRun{
		ID:              uuid.New(),
		CustomerID:      customerID,
		ProjectID:       projectID,
		TemplateName:    proj.Name,
		Workflow:        workflowTitle,
		Status:          status,
		Simulated:       simulated,
		Inputs:          string(input),
		ResponseSummary: summary,
		CreditsDeducted: cost,
	}
	if err := s.Runs.CreateTx(ctx, tx, run); err != nil {
		return nil, err
	}
	return run, nil
}

// dispatch delivers the run to the project webhook, or simulates when the
// project has none. A dead webhook degrades to simulation only when
// SimulateOnFailure is set.
func (s *Service) dispatch(ctx context.Context, cust *models.Customer, proj *models.Project, workflowTitle string, input json.RawMessage, cost int) (status string, simulated bool, summary string) {
	hook := proj.WebhookURL
	if !strings.HasPrefix(hook, "http://") && !strings.HasPrefix(hook, "https://") {
		return models.RunSuccess, true, fmt.Sprintf("Simulated run of %q completed", workflowTitle)
	}

	body, err := json.Marshal(runPayload{
		ProjectID: proj.ID,
		UserID:    cust.ID,
		Workflow:  workflowTitle,
		Input:     input,
		Timestamp: time.Now().UTC(),
		Credits:   cost,
	})
	if err != nil {
		return s.dispatchFailed(proj, workflowTitle, fmt.Sprintf("marshal payload: %v", err))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook, bytes.NewReader(body))
	if err != nil {
		return s.dispatchFailed(proj, workflowTitle, fmt.Sprintf("create request: %v", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+cust.ID.String())

	resp, err := s.HTTPClient.Do(req)
	if err != nil {
		s.Logger.Warn("workflow webhook unreachable", "project_id", proj.ID, "error", err)
		return s.dispatchFailed(proj, workflowTitle, fmt.Sprintf("webhook unreachable: %v", err))
	}
	defer resp.Body.Close()

	preview, _ := io.ReadAll(io.LimitReader(resp.Body, responseSummaryLimit))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		s.Logger.Warn("workflow webhook rejected run", "project_id", proj.ID, "status", resp.StatusCode)
		return s.dispatchFailed(proj, workflowTitle, fmt.Sprintf("webhook returned %d", resp.StatusCode))
	}
	return models.RunSuccess, false, string(preview)
}

func (s *Service) dispatchFailed(proj *models.Project, workflowTitle, reason string) (string, bool, string) {
	if s.SimulateOnFailure {
		return models.RunSuccess, true, fmt.Sprintf("Simulated run of %q completed (%s)", workflowTitle, reason)
	}
	return models.RunFailed, false, reason
}
