package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/inflow/backend/internal/ledger"
	"github.com/inflow/backend/internal/models"
)

type mockCustomers struct {
	mu        sync.Mutex
	customers map[uuid.UUID]*models.Customer
}

func (m *mockCustomers) GetByIDForUpdate(_ context.Context, _ pgx.Tx, id uuid.UUID) (*models.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.customers[id]
	if !ok {
		return nil, fmt.Errorf("customer %s not found", id)
	}
	cp := *c
	return &cp, nil
}

type mockPlans struct {
	plans map[string]*models.PricingPlan
}

func (m *mockPlans) GetByID(_ context.Context, id string) (*models.PricingPlan, error) {
	p, ok := m.plans[id]
	if !ok {
		return nil, fmt.Errorf("plan %s not found", id)
	}
	cp := *p
	return &cp, nil
}

type mockProjects struct {
	mu       sync.Mutex
	projects map[uuid.UUID]*models.Project
}

func newMockProjects(pp ...*models.Project) *mockProjects {
	m := &mockProjects{projects: make(map[uuid.UUID]*models.Project)}
	for _, p := range pp {
		cp := *p
		m.projects[p.ID] = &cp
	}
	return m
}

func (m *mockProjects) get(id uuid.UUID) *models.Project {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *m.projects[id]
	return &cp
}

func (m *mockProjects) CreateTx(_ context.Context, _ pgx.Tx, p *models.Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.projects[p.ID] = &cp
	return nil
}

func (m *mockProjects) CountByCustomer(_ context.Context, _ pgx.Tx, customerID uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, p := range m.projects {
		if p.CustomerID == customerID {
			n++
		}
	}
	return n, nil
}

func (m *mockProjects) GetByIDForUpdate(_ context.Context, _ pgx.Tx, id uuid.UUID) (*models.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[id]
	if !ok {
		return nil, ErrProjectNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *mockProjects) IncrementRunCount(_ context.Context, _ pgx.Tx, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.projects[id].RunCount++
	return nil
}

func (m *mockProjects) DeleteTx(_ context.Context, _ pgx.Tx, customerID, projectID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[projectID]
	if !ok || p.CustomerID != customerID {
		return ErrProjectNotFound
	}
	delete(m.projects, projectID)
	return nil
}

type mockTemplates struct {
	templates []*models.ProjectTemplate
}

func (m *mockTemplates) GetByID(_ context.Context, id uuid.UUID) (*models.ProjectTemplate, error) {
	for _, t := range m.templates {
		if t.ID == id {
			cp := *t
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("template %s not found", id)
}

func (m *mockTemplates) List(_ context.Context) ([]*models.ProjectTemplate, error) {
	out := make([]*models.ProjectTemplate, len(m.templates))
	copy(out, m.templates)
	return out, nil
}

type mockRuns struct {
	mu   sync.Mutex
	runs []*models.WorkflowRun
}

func (m *mockRuns) CreateTx(_ context.Context, _ pgx.Tx, r *models.WorkflowRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *r
	m.runs = append(m.runs, &cp)
	return nil
}

// mockConsumer mirrors the ledger's credit precondition.
type mockConsumer struct {
	mu        sync.Mutex
	customers *mockCustomers
	consumed  []int
}

func (m *mockConsumer) ConsumeCredits(_ context.Context, _ pgx.Tx, customerID uuid.UUID, _ *uuid.UUID, amount int, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.customers.mu.Lock()
	defer m.customers.mu.Unlock()
	c := m.customers.customers[customerID]
	if c.AICredits < amount {
		return ledger.ErrInsufficientCredits
	}
	c.AICredits -= amount
	m.consumed = append(m.consumed, amount)
	return nil
}

type fixture struct {
	svc       *Service
	customers *mockCustomers
	projects  *mockProjects
	runs      *mockRuns
	consumer  *mockConsumer
	cust      *models.Customer
}

func newFixture(t *testing.T, templates ...*models.ProjectTemplate) *fixture {
	t.Helper()
	end := time.Now().AddDate(0, 0, 15)
	cust := &models.Customer{
		ID:                  uuid.New(),
		PlanID:              "starter",
		SubscriptionStatus:  models.SubscriptionActive,
		SubscriptionEndDate: &end,
		AICredits:           100,
	}
	customers := &mockCustomers{customers: map[uuid.UUID]*models.Customer{cust.ID: cust}}
	plans := &mockPlans{plans: map[string]*models.PricingPlan{
		"starter": {ID: "starter", Name: "Starter", MaxProjects: 2, AICredits: 100},
	}}
	projects := newMockProjects()
	runs := &mockRuns{}
	consumer := &mockConsumer{customers: customers}
	svc := NewService(customers, plans, projects, &mockTemplates{templates: templates}, runs, consumer, false, nil)
	return &fixture{svc: svc, customers: customers, projects: projects, runs: runs, consumer: consumer, cust: cust}
}

func leadSyncTemplate(hook string) *models.ProjectTemplate {
	return &models.ProjectTemplate{
		ID:                   uuid.New(),
		Name:                 "WhatsApp Lead Bot",
		WebhookURLTemplate:   hook,
		AICreditCost:         5,
		DefaultWorkflowCount: 3,
	}
}

func (f *fixture) project(t *testing.T, tmpl *models.ProjectTemplate) *models.Project {
	t.Helper()
	p, err := f.svc.CreateProject(context.Background(), nil, f.cust.ID, tmpl.ID, "")
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	return p
}

func TestCreateProject_WebhookUniquified(t *testing.T) {
	tmpl := leadSyncTemplate("https://hooks.example.com/flow?mode=live&userId=TEMPLATE")
	f := newFixture(t, tmpl)

	p := f.project(t, tmpl)

	u, err := url.Parse(p.WebhookURL)
	if err != nil {
		t.Fatalf("parse stored webhook: %v", err)
	}
	q := u.Query()
	if got := q["userId"]; len(got) != 1 || got[0] != f.cust.ID.String() {
		t.Errorf("userId params: got %v", got)
	}
	if got := q["projectId"]; len(got) != 1 || got[0] != p.ID.String() {
		t.Errorf("projectId params: got %v", got)
	}
	if q.Get("mode") != "live" {
		t.Errorf("existing query params must survive: %v", u.RawQuery)
	}
}

func TestCreateProject_PlanLimit(t *testing.T) {
	tmpl := leadSyncTemplate("")
	f := newFixture(t, tmpl)

	f.project(t, tmpl)
	f.project(t, tmpl)
	if _, err := f.svc.CreateProject(context.Background(), nil, f.cust.ID, tmpl.ID, ""); !errors.Is(err, ErrPlanLimitReached) {
		t.Errorf("third project on a 2-project plan: got %v, want ErrPlanLimitReached", err)
	}
}

func TestCreateProject_TemplateNotAllowed(t *testing.T) {
	tmpl := leadSyncTemplate("")
	tmpl.AllowedPlanIDs = []string{"pro", "scale"}
	f := newFixture(t, tmpl)

	if _, err := f.svc.CreateProject(context.Background(), nil, f.cust.ID, tmpl.ID, ""); !errors.Is(err, ErrTemplateNotAllowed) {
		t.Errorf("starter plan on pro-only template: got %v, want ErrTemplateNotAllowed", err)
	}
}

func TestProvisionDefaults(t *testing.T) {
	open := leadSyncTemplate("")
	proOnly := leadSyncTemplate("")
	proOnly.Name = "Invoice Bot"
	proOnly.AllowedPlanIDs = []string{"pro"}
	third := leadSyncTemplate("")
	third.Name = "Review Bot"
	f := newFixture(t, open, proOnly, third)

	created, err := f.svc.ProvisionDefaults(context.Background(), nil, f.cust.ID)
	if err != nil {
		t.Fatalf("ProvisionDefaults: %v", err)
	}
	// Plan allows 2 projects; the pro-only template is skipped.
	if len(created) != 2 {
		t.Fatalf("provisioned: got %d, want 2", len(created))
	}
	if created[0].Name != "WhatsApp Lead Bot" || created[1].Name != "Review Bot" {
		t.Errorf("provisioned names: %s, %s", created[0].Name, created[1].Name)
	}

	// A second onboarding pass has no quota left.
	again, err := f.svc.ProvisionDefaults(context.Background(), nil, f.cust.ID)
	if err != nil {
		t.Fatalf("second ProvisionDefaults: %v", err)
	}
	if len(again) != 0 {
		t.Errorf("re-provision created %d projects, want 0", len(again))
	}
}

func TestRunWorkflow_PreconditionOrder(t *testing.T) {
	tmpl := leadSyncTemplate("")
	f := newFixture(t, tmpl)
	p := f.project(t, tmpl)
	ctx := context.Background()

	// Expired subscription wins over every other failure.
	f.customers.mu.Lock()
	past := time.Now().AddDate(0, 0, -1)
	f.customers.customers[f.cust.ID].SubscriptionEndDate = &past
	f.customers.customers[f.cust.ID].AICredits = 0
	f.customers.mu.Unlock()
	if _, err := f.svc.RunWorkflow(ctx, nil, f.cust.ID, p.ID, "Sync leads", nil); !errors.Is(err, ErrSubscriptionExpired) {
		t.Errorf("expired: got %v, want ErrSubscriptionExpired", err)
	}

	// Run limit is checked before credits.
	f.customers.mu.Lock()
	future := time.Now().AddDate(0, 0, 30)
	f.customers.customers[f.cust.ID].SubscriptionEndDate = &future
	f.customers.mu.Unlock()
	f.projects.mu.Lock()
	f.projects.projects[p.ID].RunCount = f.projects.projects[p.ID].WorkflowCountLimit
	f.projects.mu.Unlock()
	if _, err := f.svc.RunWorkflow(ctx, nil, f.cust.ID, p.ID, "Sync leads", nil); !errors.Is(err, ErrRunLimitReached) {
		t.Errorf("limit: got %v, want ErrRunLimitReached", err)
	}

	f.projects.mu.Lock()
	f.projects.projects[p.ID].RunCount = 0
	f.projects.mu.Unlock()
	if _, err := f.svc.RunWorkflow(ctx, nil, f.cust.ID, p.ID, "Sync leads", nil); !errors.Is(err, ledger.ErrInsufficientCredits) {
		t.Errorf("credits: got %v, want ErrInsufficientCredits", err)
	}

	// Failed preconditions leave no trace.
	if got := f.projects.get(p.ID).RunCount; got != 0 {
		t.Errorf("run count after failed preconditions: got %d, want 0", got)
	}
	if len(f.runs.runs) != 0 {
		t.Errorf("runs recorded after failed preconditions: %d", len(f.runs.runs))
	}
}

func TestRunWorkflow_DispatchesWebhook(t *testing.T) {
	var gotAuth string
	var gotPayload runPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&gotPayload)
		fmt.Fprint(w, `{"ok":true}`)
	}))
	defer srv.Close()

	tmpl := leadSyncTemplate(srv.URL + "/flow")
	f := newFixture(t, tmpl)
	p := f.project(t, tmpl)

	run, err := f.svc.RunWorkflow(context.Background(), nil, f.cust.ID, p.ID, "Sync leads", json.RawMessage(`{"source":"sheet"}`))
	if err != nil {
		t.Fatalf("RunWorkflow: %v", err)
	}
	if run.Status != models.RunSuccess || run.Simulated {
		t.Errorf("run: status=%q simulated=%v", run.Status, run.Simulated)
	}
	if run.CreditsDeducted != 5 {
		t.Errorf("credits deducted: got %d, want 5", run.CreditsDeducted)
	}
	if gotAuth != "Bearer "+f.cust.ID.String() {
		t.Errorf("authorization header: got %q", gotAuth)
	}
	if gotPayload.ProjectID != p.ID || gotPayload.UserID != f.cust.ID || gotPayload.Workflow != "Sync leads" || gotPayload.Credits != 5 {
		t.Errorf("payload: %+v", gotPayload)
	}
	if got := f.projects.get(p.ID).RunCount; got != 1 {
		t.Errorf("run count: got %d, want 1", got)
	}
	f.customers.mu.Lock()
	credits := f.customers.customers[f.cust.ID].AICredits
	f.customers.mu.Unlock()
	if credits != 95 {
		t.Errorf("credits after run: got %d, want 95", credits)
	}
}

func TestRunWorkflow_NoWebhookSimulates(t *testing.T) {
	tmpl := leadSyncTemplate("")
	f := newFixture(t, tmpl)
	p := f.project(t, tmpl)

	run, err := f.svc.RunWorkflow(context.Background(), nil, f.cust.ID, p.ID, "Sync leads", nil)
	if err != nil {
		t.Fatalf("RunWorkflow: %v", err)
	}
	if run.Status != models.RunSuccess || !run.Simulated {
		t.Errorf("run: status=%q simulated=%v, want simulated success", run.Status, run.Simulated)
	}
}

func TestRunWorkflow_DeadWebhook(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	tmpl := leadSyncTemplate(srv.URL)
	f := newFixture(t, tmpl)
	p := f.project(t, tmpl)
	ctx := context.Background()

	// Fallback off: run is recorded failed, credits are still billed.
	run, err := f.svc.RunWorkflow(ctx, nil, f.cust.ID, p.ID, "Sync leads", nil)
	if err != nil {
		t.Fatalf("RunWorkflow: %v", err)
	}
	if run.Status != models.RunFailed || run.Simulated {
		t.Errorf("run: status=%q simulated=%v, want plain failure", run.Status, run.Simulated)
	}
	if run.CreditsDeducted != 5 {
		t.Errorf("failed run must still bill credits: got %d", run.CreditsDeducted)
	}

	// Fallback on: same webhook, simulated success.
	f.svc.SimulateOnFailure = true
	run2, err := f.svc.RunWorkflow(ctx, nil, f.cust.ID, p.ID, "Sync leads", nil)
	if err != nil {
		t.Fatalf("RunWorkflow with fallback: %v", err)
	}
	if run2.Status != models.RunSuccess || !run2.Simulated {
		t.Errorf("fallback run: status=%q simulated=%v", run2.Status, run2.Simulated)
	}
	if got := f.projects.get(p.ID).RunCount; got != 2 {
		t.Errorf("run count: got %d, want 2", got)
	}
}

func TestDeleteProject(t *testing.T) {
	tmpl := leadSyncTemplate("")
	f := newFixture(t, tmpl)
	p := f.project(t, tmpl)
	ctx := context.Background()

	if err := f.svc.DeleteProject(ctx, nil, uuid.New(), p.ID); !errors.Is(err, ErrProjectNotFound) {
		t.Errorf("foreign delete: got %v, want ErrProjectNotFound", err)
	}
	if err := f.svc.DeleteProject(ctx, nil, f.cust.ID, p.ID); err != nil {
		t.Fatalf("DeleteProject: %v", err)
	}
	if _, err := f.projects.GetByIDForUpdate(ctx, nil, p.ID); !errors.Is(err, ErrProjectNotFound) {
		t.Errorf("project still present after delete")
	}
}
