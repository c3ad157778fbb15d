package commission

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/inflow/backend/internal/models"
	"github.com/inflow/backend/internal/notify"
)

type mockPartners struct {
	mu       sync.Mutex
	partners map[uuid.UUID]*models.Partner
}

func newMockPartners(pp ...*models.Partner) *mockPartners {
	m := &mockPartners{partners: make(map[uuid.UUID]*models.Partner)}
	for _, p := range pp {
		cp := *p
		m.partners[p.ID] = &cp
	}
	return m
}

func (m *mockPartners) get(id uuid.UUID) *models.Partner {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *m.partners[id]
	return &cp
}

func (m *mockPartners) GetByIDForUpdate(_ context.Context, _ pgx.Tx, id uuid.UUID) (*models.Partner, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.partners[id]
	if !ok {
		return nil, ErrPartnerNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *mockPartners) GetByCodeForUpdate(_ context.Context, _ pgx.Tx, code string) (*models.Partner, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.partners {
		if p.Code == code {
			cp := *p
			return &cp, nil
		}
	}
	return nil, ErrPartnerNotFound
}

func (m *mockPartners) IncrementClicks(_ context.Context, _ pgx.Tx, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.partners[id].Clicks++
	return nil
}

func (m *mockPartners) ApplyEarning(_ context.Context, _ pgx.Tx, id uuid.UUID, amount int64, countSignup bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.partners[id]
	p.TotalEarnedCents += amount
	p.LockedBalanceCents += amount
	if countSignup {
		p.Signups++
	}
	return nil
}

func (m *mockPartners) ReleaseLocked(_ context.Context, _ pgx.Tx, id uuid.UUID, amount int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.partners[id]
	p.LockedBalanceCents -= amount
	if p.LockedBalanceCents < 0 {
		p.LockedBalanceCents = 0
	}
	p.WalletBalanceCents += amount
	return nil
}

func (m *mockPartners) AddWalletBalance(_ context.Context, _ pgx.Tx, id uuid.UUID, amount int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.partners[id].WalletBalanceCents += amount
	return nil
}

func (m *mockPartners) DeductWalletBalance(_ context.Context, _ pgx.Tx, id uuid.UUID, amount int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.partners[id]
	if p.WalletBalanceCents < amount {
		return ErrInsufficientBalance
	}
	p.WalletBalanceCents -= amount
	return nil
}

type mockLeads struct {
	mu    sync.Mutex
	leads map[uuid.UUID]*models.PartnerLead
}

func newMockLeads() *mockLeads {
	return &mockLeads{leads: make(map[uuid.UUID]*models.PartnerLead)}
}

func (m *mockLeads) CreateTx(_ context.Context, _ pgx.Tx, l *models.PartnerLead) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *l
	m.leads[l.ID] = &cp
	return nil
}

func (m *mockLeads) GetByIDForUpdate(_ context.Context, _ pgx.Tx, id uuid.UUID) (*models.PartnerLead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.leads[id]
	if !ok {
		return nil, fmt.Errorf("lead %s not found", id)
	}
	cp := *l
	return &cp, nil
}

func (m *mockLeads) UpdateStatus(_ context.Context, _ pgx.Tx, id uuid.UUID, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.leads[id].Status = status
	return nil
}

func (m *mockLeads) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.leads)
}

type mockCommissions struct {
	mu   sync.Mutex
	logs map[uuid.UUID]*models.CommissionLog
}

func newMockCommissions() *mockCommissions {
	return &mockCommissions{logs: make(map[uuid.UUID]*models.CommissionLog)}
}

func (m *mockCommissions) CreateTx(_ context.Context, _ pgx.Tx, l *models.CommissionLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *l
	m.logs[l.ID] = &cp
	return nil
}

func (m *mockCommissions) GetByIDForUpdate(_ context.Context, _ pgx.Tx, id uuid.UUID) (*models.CommissionLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.logs[id]
	if !ok {
		return nil, fmt.Errorf("commission %s not found", id)
	}
	cp := *l
	return &cp, nil
}

func (m *mockCommissions) UpdateReview(_ context.Context, _ pgx.Tx, id uuid.UUID, status string, proof *models.ProofOfWork, feedback string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l := m.logs[id]
	l.Status = status
	if proof != nil {
		cp := *proof
		l.ProofOfWork = &cp
	}
	if feedback != "" {
		l.AdminFeedback = feedback
	}
	return nil
}

type mockPayouts struct {
	mu   sync.Mutex
	reqs map[uuid.UUID]*models.PayoutRequest
}

func newMockPayouts() *mockPayouts {
	return &mockPayouts{reqs: make(map[uuid.UUID]*models.PayoutRequest)}
}

func (m *mockPayouts) CreateTx(_ context.Context, _ pgx.Tx, r *models.PayoutRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *r
	m.reqs[r.ID] = &cp
	return nil
}

func (m *mockPayouts) GetByIDForUpdate(_ context.Context, _ pgx.Tx, id uuid.UUID) (*models.PayoutRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reqs[id]
	if !ok {
		return nil, fmt.Errorf("payout %s not found", id)
	}
	cp := *r
	return &cp, nil
}

func (m *mockPayouts) UpdateStatus(_ context.Context, _ pgx.Tx, id uuid.UUID, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reqs[id].Status = status
	return nil
}

func channelPartner() *models.Partner {
	return &models.Partner{
		ID:    uuid.New(),
		Name:  "Rahul Verma",
		Email: "rahul@example.com",
		Type:  models.PartnerChannel,
		Code:  "RAHUL20",
	}
}

type engine struct {
	svc      *Service
	partners *mockPartners
	leads    *mockLeads
	comms    *mockCommissions
	payouts  *mockPayouts
	enqueued []notify.LeadSyncJobArgs
}

func newEngine(p *models.Partner) *engine {
	e := &engine{
		partners: newMockPartners(p),
		leads:    newMockLeads(),
		comms:    newMockCommissions(),
		payouts:  newMockPayouts(),
	}
	insert := func(_ context.Context, _ pgx.Tx, args notify.LeadSyncJobArgs) error {
		e.enqueued = append(e.enqueued, args)
		return nil
	}
	e.svc = NewService(e.partners, e.leads, e.comms, e.payouts, insert, 0, nil)
	return e
}

func checkConservation(t *testing.T, p *models.Partner) {
	t.Helper()
	if p.WalletBalanceCents+p.LockedBalanceCents > p.TotalEarnedCents {
		t.Errorf("wallet %d + locked %d exceeds total earned %d",
			p.WalletBalanceCents, p.LockedBalanceCents, p.TotalEarnedCents)
	}
}

func TestApplyCommission_ChannelRate(t *testing.T) {
	p := channelPartner()
	e := newEngine(p)
	ctx := context.Background()

	log, err := e.svc.ApplyCommission(ctx, nil, "RAHUL20", 10_000_00, "Acme Traders", "Starter")
	if err != nil {
		t.Fatalf("ApplyCommission: %v", err)
	}
	if log == nil {
		t.Fatal("expected a commission log")
	}
	if log.AmountCents != 2000_00 {
		t.Errorf("amount: got %d, want 200000", log.AmountCents)
	}
	if log.Type != models.CommissionTypeSignup || log.Status != models.CommissionLocked {
		t.Errorf("log type/status: got %s/%s", log.Type, log.Status)
	}
	after := e.partners.get(p.ID)
	if after.Signups != 1 {
		t.Errorf("signups: got %d, want 1", after.Signups)
	}
	if after.LockedBalanceCents != 2000_00 || after.TotalEarnedCents != 2000_00 {
		t.Errorf("balances: locked=%d total=%d", after.LockedBalanceCents, after.TotalEarnedCents)
	}
	if after.WalletBalanceCents != 0 {
		t.Errorf("wallet must stay zero until approval: got %d", after.WalletBalanceCents)
	}
	checkConservation(t, after)
}

func TestApplyCommission_UnknownCodeIsNoOp(t *testing.T) {
	p := channelPartner()
	e := newEngine(p)

	log, err := e.svc.ApplyCommission(context.Background(), nil, "NOSUCH", 10_000_00, "Acme", "Starter")
	if err != nil {
		t.Fatalf("unknown code must not error: %v", err)
	}
	if log != nil {
		t.Errorf("unknown code must not create a log: %+v", log)
	}
	if after := e.partners.get(p.ID); after.TotalEarnedCents != 0 || after.Signups != 0 {
		t.Errorf("partner mutated on unknown code: %+v", after)
	}
}

func TestApplyCommission_ReferralRounding(t *testing.T) {
	p := channelPartner()
	p.Type = models.PartnerReferral
	e := newEngine(p)

	// 10% of 2999.00 is 299.90; rounds to 299.90 exactly. 10% of 55 cents
	// is 5.5 and rounds up to 6.
	log, err := e.svc.ApplyCommission(context.Background(), nil, "RAHUL20", 55, "Tiny", "Starter")
	if err != nil {
		t.Fatalf("ApplyCommission: %v", err)
	}
	if log.AmountCents != 6 {
		t.Errorf("rounded amount: got %d, want 6", log.AmountCents)
	}
}

func TestConvertLead(t *testing.T) {
	p := channelPartner()
	e := newEngine(p)
	ctx := context.Background()

	lead, err := e.svc.RegisterLead(ctx, nil, p.ID, "Meera Shah", "meera@example.com", "9876500000", "Shah & Co", "")
	if err != nil {
		t.Fatalf("RegisterLead: %v", err)
	}
	if len(e.enqueued) != 1 || len(e.enqueued[0].Leads) != 1 {
		t.Fatalf("expected one enqueued lead-sync batch, got %+v", e.enqueued)
	}

	log, err := e.svc.ConvertLead(ctx, nil, p.ID, lead.ID, "Pro", 25_000_00)
	if err != nil {
		t.Fatalf("ConvertLead: %v", err)
	}
	if log.Type != models.CommissionTypeOneTime || log.Status != models.CommissionLocked {
		t.Errorf("log type/status: got %s/%s", log.Type, log.Status)
	}
	if log.AmountCents != 5000_00 {
		t.Errorf("amount: got %d, want 500000", log.AmountCents)
	}
	after := e.partners.get(p.ID)
	if after.Signups != 0 {
		t.Errorf("conversion must not count a signup: got %d", after.Signups)
	}
	if got, _ := e.leads.GetByIDForUpdate(ctx, nil, lead.ID); got.Status != models.LeadConverted {
		t.Errorf("lead status: got %q, want Converted", got.Status)
	}

	if _, err := e.svc.ConvertLead(ctx, nil, p.ID, lead.ID, "Pro", 25_000_00); !errors.Is(err, ErrLeadAlreadyConverted) {
		t.Errorf("second conversion: got %v, want ErrLeadAlreadyConverted", err)
	}
	if after := e.partners.get(p.ID); after.TotalEarnedCents != 5000_00 {
		t.Errorf("double conversion credited again: total=%d", after.TotalEarnedCents)
	}
}

func TestImportLeads(t *testing.T) {
	p := channelPartner()
	e := newEngine(p)

	csvBody := strings.Join([]string{
		"name,email,phone,company",
		"Asha Rao,asha@example.com,9000000001,Rao Textiles",
		",missing-name@example.com,9000000002,",
		"Vikram Iyer,vikram@example.com,9000000003,",
	}, "\n")

	leads, err := e.svc.ImportLeads(context.Background(), nil, p.ID, strings.NewReader(csvBody))
	if err != nil {
		t.Fatalf("ImportLeads: %v", err)
	}
	if len(leads) != 2 {
		t.Fatalf("imported leads: got %d, want 2", len(leads))
	}
	if e.leads.count() != 2 {
		t.Errorf("stored leads: got %d, want 2", e.leads.count())
	}
	if len(e.enqueued) != 1 || len(e.enqueued[0].Leads) != 2 {
		t.Fatalf("expected one batch of 2 contacts, got %+v", e.enqueued)
	}
	if e.enqueued[0].PartnerID != p.ID {
		t.Errorf("batch partner id: got %s, want %s", e.enqueued[0].PartnerID, p.ID)
	}

	if _, err := e.svc.ImportLeads(context.Background(), nil, p.ID, strings.NewReader("name,email\n,\n")); !errors.Is(err, ErrEmptyImport) {
		t.Errorf("empty import: got %v, want ErrEmptyImport", err)
	}
}

func TestCommissionLifecycle(t *testing.T) {
	p := channelPartner()
	e := newEngine(p)
	ctx := context.Background()

	log, err := e.svc.ApplyCommission(ctx, nil, "RAHUL20", 10_000_00, "Acme Traders", "Starter")
	if err != nil {
		t.Fatalf("ApplyCommission: %v", err)
	}

	// Approval without submitted work is not allowed.
	if err := e.svc.ApproveWork(ctx, nil, log.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("approve from Locked: got %v, want ErrInvalidTransition", err)
	}

	proof := models.ProofOfWork{Description: "Onboarded the customer", Checklist: []string{"kickoff call", "workflow setup"}}
	if err := e.svc.SubmitWork(ctx, nil, p.ID, log.ID, proof); err != nil {
		t.Fatalf("SubmitWork: %v", err)
	}
	if err := e.svc.RejectWork(ctx, nil, log.ID, "missing workflow screenshots"); err != nil {
		t.Fatalf("RejectWork: %v", err)
	}
	got, _ := e.comms.GetByIDForUpdate(ctx, nil, log.ID)
	if got.Status != models.CommissionChangesRequested || got.AdminFeedback == "" {
		t.Errorf("after rejection: %+v", got)
	}

	// Resubmission from Changes Requested is allowed.
	if err := e.svc.SubmitWork(ctx, nil, p.ID, log.ID, proof); err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	if err := e.svc.ApproveWork(ctx, nil, log.ID); err != nil {
		t.Fatalf("ApproveWork: %v", err)
	}
	after := e.partners.get(p.ID)
	if after.WalletBalanceCents != 2000_00 || after.LockedBalanceCents != 0 {
		t.Errorf("after approval: wallet=%d locked=%d", after.WalletBalanceCents, after.LockedBalanceCents)
	}
	checkConservation(t, after)

	// Second approval of a Payable log must not pay twice.
	if err := e.svc.ApproveWork(ctx, nil, log.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("double approval: got %v, want ErrInvalidTransition", err)
	}
	if after := e.partners.get(p.ID); after.WalletBalanceCents != 2000_00 {
		t.Errorf("wallet after double approval: got %d, want 200000", after.WalletBalanceCents)
	}
}

func TestPayoutLifecycle(t *testing.T) {
	p := channelPartner()
	p.WalletBalanceCents = 5000_00
	p.TotalEarnedCents = 5000_00
	e := newEngine(p)
	ctx := context.Background()

	if _, err := e.svc.RequestPayout(ctx, nil, p.ID, 500_00); !errors.Is(err, ErrBelowMinimumPayout) {
		t.Errorf("below minimum: got %v, want ErrBelowMinimumPayout", err)
	}
	if _, err := e.svc.RequestPayout(ctx, nil, p.ID, 9000_00); !errors.Is(err, ErrInsufficientBalance) {
		t.Errorf("over balance: got %v, want ErrInsufficientBalance", err)
	}

	req, err := e.svc.RequestPayout(ctx, nil, p.ID, 3000_00)
	if err != nil {
		t.Fatalf("RequestPayout: %v", err)
	}
	if got := e.partners.get(p.ID).WalletBalanceCents; got != 2000_00 {
		t.Errorf("wallet after request: got %d, want 200000", got)
	}

	if err := e.svc.RejectPayout(ctx, nil, req.ID); err != nil {
		t.Fatalf("RejectPayout: %v", err)
	}
	if got := e.partners.get(p.ID).WalletBalanceCents; got != 5000_00 {
		t.Errorf("wallet after rejection refund: got %d, want 500000", got)
	}
	if err := e.svc.RejectPayout(ctx, nil, req.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("double rejection: got %v, want ErrInvalidTransition", err)
	}

	req2, err := e.svc.RequestPayout(ctx, nil, p.ID, 2000_00)
	if err != nil {
		t.Fatalf("RequestPayout: %v", err)
	}
	if err := e.svc.ProcessPayout(ctx, nil, req2.ID); err != nil {
		t.Fatalf("ProcessPayout: %v", err)
	}
	got, _ := e.payouts.GetByIDForUpdate(ctx, nil, req2.ID)
	if got.Status != models.PayoutProcessed {
		t.Errorf("payout status: got %q, want Processed", got.Status)
	}
	if err := e.svc.ProcessPayout(ctx, nil, req2.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("double process: got %v, want ErrInvalidTransition", err)
	}
	checkConservation(t, e.partners.get(p.ID))
}

func TestTrackClick(t *testing.T) {
	p := channelPartner()
	e := newEngine(p)
	ctx := context.Background()

	if err := e.svc.TrackClick(ctx, nil, "RAHUL20"); err != nil {
		t.Fatalf("TrackClick: %v", err)
	}
	if err := e.svc.TrackClick(ctx, nil, "NOSUCH"); err != nil {
		t.Errorf("unknown code click must be a no-op: %v", err)
	}
	if got := e.partners.get(p.ID).Clicks; got != 1 {
		t.Errorf("clicks: got %d, want 1", got)
	}
}
