package commission

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/inflow/backend/internal/models"
	"github.com/inflow/backend/internal/notify"
)

// DefaultMinPayoutCents is the smallest payout a partner may request.
const DefaultMinPayoutCents = 1000_00

var (
	// ErrPartnerNotFound is returned when a partner id does not exist.
	ErrPartnerNotFound = errors.New("partner not found")
	// ErrLeadAlreadyConverted is returned on a second conversion of a lead.
	ErrLeadAlreadyConverted = errors.New("lead already converted")
	// ErrInvalidTransition is returned for a commission status change the
	// lifecycle does not allow.
	ErrInvalidTransition = errors.New("invalid commission transition")
	// ErrBelowMinimumPayout is returned when a payout request is under the minimum.
	ErrBelowMinimumPayout = errors.New("payout below minimum")
	// ErrInsufficientBalance is returned when the partner wallet cannot cover a payout.
	ErrInsufficientBalance = errors.New("insufficient partner balance")
	// ErrEmptyImport is returned when a CSV import contains no usable rows.
	ErrEmptyImport = errors.New("no leads in import")
)

// PartnerRepo is the minimal partner repository interface for the engine.
// Balance mutators are atomic conditional updates.
type PartnerRepo interface {
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Partner, error)
	GetByCodeForUpdate(ctx context.Context, tx pgx.Tx, code string) (*models.Partner, error)
	IncrementClicks(ctx context.Context, tx pgx.Tx, id uuid.UUID) error
	// ApplyEarning adds amountCents to both total earned and the locked
	// balance, optionally counting a signup.
	ApplyEarning(ctx context.Context, tx pgx.Tx, id uuid.UUID, amountCents int64, countSignup bool) error
	// ReleaseLocked moves amountCents from locked to the wallet, flooring
	// locked at zero.
	ReleaseLocked(ctx context.Context, tx pgx.Tx, id uuid.UUID, amountCents int64) error
	AddWalletBalance(ctx context.Context, tx pgx.Tx, id uuid.UUID, amountCents int64) error
	DeductWalletBalance(ctx context.Context, tx pgx.Tx, id uuid.UUID, amountCents int64) error
}

// LeadRepo stores partner leads.
type LeadRepo interface {
	CreateTx(ctx context.Context, tx pgx.Tx, lead *models.PartnerLead) error
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.PartnerLead, error)
	UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status string) error
}

// CommissionRepo stores commission logs.
type CommissionRepo interface {
	CreateTx(ctx context.Context, tx pgx.Tx, log *models.CommissionLog) error
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.CommissionLog, error)
	// UpdateReview sets the status and, when non-nil/non-empty, the proof of
	// work and admin feedback.
	UpdateReview(ctx context.Context, tx pgx.Tx, id uuid.UUID, status string, proof *models.ProofOfWork, feedback string) error
}

// PayoutRepo stores payout requests.
type PayoutRepo interface {
	CreateTx(ctx context.Context, tx pgx.Tx, req *models.PayoutRequest) error
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.PayoutRequest, error)
	UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status string) error
}

// InsertLeadSyncTxFunc enqueues a lead-sync job within the given transaction.
// Provided by main using river.Client.InsertTx.
type InsertLeadSyncTxFunc func(ctx context.Context, tx pgx.Tx, args notify.LeadSyncJobArgs) error

// Service is the partner commission engine. Commission amounts are fixed at
// creation time; later plan or rate changes never touch existing logs.
type Service struct {
	Partners       PartnerRepo
	Leads          LeadRepo
	Commissions    CommissionRepo
	Payouts        PayoutRepo
	InsertLeadSync InsertLeadSyncTxFunc
	MinPayoutCents int64

	log *slog.Logger
}

// NewService returns a new commission Service. insertLeadSync may be nil when
// the outbox is disabled (tests).
func NewService(partners PartnerRepo, leads LeadRepo, commissions CommissionRepo, payouts PayoutRepo, insertLeadSync InsertLeadSyncTxFunc, minPayoutCents int64, log *slog.Logger) *Service {
	if minPayoutCents <= 0 {
		minPayoutCents = DefaultMinPayoutCents
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		Partners:       partners,
		Leads:          leads,
		Commissions:    commissions,
		Payouts:        payouts,
		InsertLeadSync: insertLeadSync,
		MinPayoutCents: minPayoutCents,
		log:            log,
	}
}

// commissionFor rounds rate% of the sale to the nearest cent.
func commissionFor(saleAmountCents, ratePct int64) int64 {
	return (saleAmountCents*ratePct + 50) / 100
}

// TrackClick counts one referral-link visit for the given code. Unknown
// codes are ignored.
func (s *Service) TrackClick(ctx context.Context, tx pgx.Tx, code string) error {
	p, err := s.Partners.GetByCodeForUpdate(ctx, tx, code)
	if err != nil {
		if errors.Is(err, ErrPartnerNotFound) {
			return nil
		}
		return err
	}
	return s.Partners.IncrementClicks(ctx, tx, p.ID)
}

// ApplyCommission credits the partner that referred a sale. An unknown
// referral code is not an error; signups without a valid code are common.
func (s *Service) ApplyCommission(ctx context.Context, tx pgx.Tx, refCode string, saleAmountCents int64, customerName, planName string) (*models.CommissionLog, error) {
	code := strings.TrimSpace(refCode)
	if code == "" {
		return nil, nil
	}
	p, err := s.Partners.GetByCodeForUpdate(ctx, tx, code)
	if err != nil {
		if errors.Is(err, ErrPartnerNotFound) {
			s.log.Info("ignoring unknown referral code", "code", code)
			return nil, nil
		}
		return nil, err
	}
	amount := commissionFor(saleAmountCents, p.CommissionRate())
	if err := s.Partners.ApplyEarning(ctx, tx, p.ID, amount, true); err != nil {
		return nil, err
	}
	log := &models.CommissionLog{
		ID:              uuid.New(),
		PartnerID:       p.ID,
		Type:            models.CommissionTypeSignup,
		Status:          models.CommissionLocked,
		CustomerName:    customerName,
		PlanName:        planName,
		SaleAmountCents: saleAmountCents,
		AmountCents:     amount,
	}
	if err := s.Commissions.CreateTx(ctx, tx, log); err != nil {
		return nil, err
	}
	return log, nil
}

// RegisterLead appends one New lead and enqueues it for the lead-processing
// webhook.
func (s *Service) RegisterLead(ctx context.Context, tx pgx.Tx, partnerID uuid.UUID, name, email, phone, company, notes string) (*models.PartnerLead, error) {
	if _, err := s.Partners.GetByIDForUpdate(ctx, tx, partnerID); err != nil {
		return nil, err
	}
	lead := &models.PartnerLead{
		ID:        uuid.New(),
		PartnerID: partnerID,
		Name:      strings.TrimSpace(name),
		Email:     strings.TrimSpace(email),
		Phone:     strings.TrimSpace(phone),
		Company:   strings.TrimSpace(company),
		Status:    models.LeadNew,
		Notes:     notes,
	}
	if lead.Name == "" || lead.Email == "" {
		return nil, fmt.Errorf("lead requires a name and email")
	}
	if err := s.Leads.CreateTx(ctx, tx, lead); err != nil {
		return nil, err
	}
	s.enqueueLeadSync(ctx, tx, partnerID, []*models.PartnerLead{lead})
	return lead, nil
}

// ImportLeads bulk-registers leads from a CSV stream with a
// name,email,phone,company header. Rows without a name or email are skipped.
// The whole batch is forwarded to the lead-processing webhook as one job.
func (s *Service) ImportLeads(ctx context.Context, tx pgx.Tx, partnerID uuid.UUID, r io.Reader) ([]*models.PartnerLead, error) {
	if _, err := s.Partners.GetByIDForUpdate(ctx, tx, partnerID); err != nil {
		return nil, err
	}
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var leads []*models.PartnerLead
	first := true
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		if first {
			first = false
			if len(rec) > 0 && strings.EqualFold(strings.TrimSpace(rec[0]), "name") {
				continue
			}
		}
		lead := &models.PartnerLead{
			ID:        uuid.New(),
			PartnerID: partnerID,
			Name:      strings.TrimSpace(field(rec, 0)),
			Email:     strings.TrimSpace(field(rec, 1)),
			Phone:     strings.TrimSpace(field(rec, 2)),
			Company:   strings.TrimSpace(field(rec, 3)),
			Status:    models.LeadNew,
		}
		if lead.Name == "" || lead.Email == "" {
			continue
		}
		if err := s.Leads.CreateTx(ctx, tx, lead); err != nil {
			return nil, err
		}
		leads = append(leads, lead)
	}
	if len(leads) == 0 {
		return nil, ErrEmptyImport
	}
	s.enqueueLeadSync(ctx, tx, partnerID, leads)
	return leads, nil
}

// enqueueLeadSync hands the batch to the outbox. Failure to enqueue never
// fails the registration itself.
func (s *Service) enqueueLeadSync(ctx context.Context, tx pgx.Tx, partnerID uuid.UUID, leads []*models.PartnerLead) {
	if s.InsertLeadSync == nil {
		return
	}
	contacts := make([]notify.LeadContact, len(leads))
	for i, l := range leads {
		contacts[i] = notify.LeadContact{Name: l.Name, Email: l.Email, Phone: l.Phone, Company: l.Company}
	}
	if err := s.InsertLeadSync(ctx, tx, notify.LeadSyncJobArgs{PartnerID: partnerID, Leads: contacts}); err != nil {
		s.log.Error("enqueue lead sync", "partner_id", partnerID, "error", err)
	}
}

// ConvertLead marks a lead Converted and creates a One-time commission at the
// partner's rate.
func (s *Service) ConvertLead(ctx context.Context, tx pgx.Tx, partnerID, leadID uuid.UUID, planName string, saleAmountCents int64) (*models.CommissionLog, error) {
	lead, err := s.Leads.GetByIDForUpdate(ctx, tx, leadID)
	if err != nil {
		return nil, err
	}
	if lead.PartnerID != partnerID {
		return nil, ErrPartnerNotFound
	}
	if lead.Status == models.LeadConverted {
		return nil, ErrLeadAlreadyConverted
	}
	p, err := s.Partners.GetByIDForUpdate(ctx, tx, partnerID)
	if err != nil {
		return nil, err
	}
	if err := s.Leads.UpdateStatus(ctx, tx, leadID, models.LeadConverted); err != nil {
		return nil, err
	}
	amount := commissionFor(saleAmountCents, p.CommissionRate())
	if err := s.Partners.ApplyEarning(ctx, tx, p.ID, amount, false); err != nil {
		return nil, err
	}
	log := &models.CommissionLog{
		ID:              uuid.New(),
		PartnerID:       p.ID,
		LeadID:          &leadID,
		Type:            models.CommissionTypeOneTime,
		Status:          models.CommissionLocked,
		CustomerName:    lead.Name,
		PlanName:        planName,
		SaleAmountCents: saleAmountCents,
		AmountCents:     amount,
	}
	if err := s.Commissions.CreateTx(ctx, tx, log); err != nil {
		return nil, err
	}
	return log, nil
}

// SubmitWork attaches proof of work and moves the commission under review.
// Allowed from Locked and Changes Requested only.
func (s *Service) SubmitWork(ctx context.Context, tx pgx.Tx, partnerID, commissionID uuid.UUID, proof models.ProofOfWork) error {
	c, err := s.Commissions.GetByIDForUpdate(ctx, tx, commissionID)
	if err != nil {
		return err
	}
	if c.PartnerID != partnerID {
		return ErrInvalidTransition
	}
	if c.Status != models.CommissionLocked && c.Status != models.CommissionChangesRequested {
		return ErrInvalidTransition
	}
	return s.Commissions.UpdateReview(ctx, tx, commissionID, models.CommissionUnderReview, &proof, "")
}

// ApproveWork releases an under-review commission to the partner wallet.
func (s *Service) ApproveWork(ctx context.Context, tx pgx.Tx, commissionID uuid.UUID) error {
	c, err := s.Commissions.GetByIDForUpdate(ctx, tx, commissionID)
	if err != nil {
		return err
	}
	if c.Status != models.CommissionUnderReview {
		return ErrInvalidTransition
	}
	if err := s.Commissions.UpdateReview(ctx, tx, commissionID, models.CommissionPayable, nil, ""); err != nil {
		return err
	}
	return s.Partners.ReleaseLocked(ctx, tx, c.PartnerID, c.AmountCents)
}

// RejectWork sends an under-review commission back with feedback.
func (s *Service) RejectWork(ctx context.Context, tx pgx.Tx, commissionID uuid.UUID, feedback string) error {
	c, err := s.Commissions.GetByIDForUpdate(ctx, tx, commissionID)
	if err != nil {
		return err
	}
	if c.Status != models.CommissionUnderReview {
		return ErrInvalidTransition
	}
	return s.Commissions.UpdateReview(ctx, tx, commissionID, models.CommissionChangesRequested, nil, feedback)
}

// RequestPayout debits the partner wallet and opens a Pending payout request.
// The debit is taken up front; a rejected request refunds it.
func (s *Service) RequestPayout(ctx context.Context, tx pgx.Tx, partnerID uuid.UUID, amountCents int64) (*models.PayoutRequest, error) {
	if amountCents < s.MinPayoutCents {
		return nil, ErrBelowMinimumPayout
	}
	p, err := s.Partners.GetByIDForUpdate(ctx, tx, partnerID)
	if err != nil {
		return nil, err
	}
	if p.WalletBalanceCents < amountCents {
		return nil, ErrInsufficientBalance
	}
	if err := s.Partners.DeductWalletBalance(ctx, tx, partnerID, amountCents); err != nil {
		return nil, err
	}
	req := &models.PayoutRequest{
		ID:          uuid.New(),
		PartnerID:   partnerID,
		AmountCents: amountCents,
		Status:      models.PayoutPending,
	}
	if err := s.Payouts.CreateTx(ctx, tx, req); err != nil {
		return nil, err
	}
	return req, nil
}

// ProcessPayout marks a pending request paid out.
func (s *Service) ProcessPayout(ctx context.Context, tx pgx.Tx, requestID uuid.UUID) error {
	req, err := s.Payouts.GetByIDForUpdate(ctx, tx, requestID)
	if err != nil {
		return err
	}
	if req.Status != models.PayoutPending {
		return ErrInvalidTransition
	}
	return s.Payouts.UpdateStatus(ctx, tx, requestID, models.PayoutProcessed)
}

// RejectPayout refunds the up-front debit of a pending request.
func (s *Service) RejectPayout(ctx context.Context, tx pgx.Tx, requestID uuid.UUID) error {
	req, err := s.Payouts.GetByIDForUpdate(ctx, tx, requestID)
	if err != nil {
		return err
	}
	if req.Status != models.PayoutPending {
		return ErrInvalidTransition
	}
	if err := s.Payouts.UpdateStatus(ctx, tx, requestID, models.PayoutRejected); err != nil {
		return err
	}
	return s.Partners.AddWalletBalance(ctx, tx, req.PartnerID, req.AmountCents)
}

func field(rec []string, i int) string {
	if i < len(rec) {
		return rec[i]
	}
	return ""
}
