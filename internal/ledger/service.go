package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/inflow/backend/internal/models"
)

// Credit purchases below this quantity are approved immediately; larger
// purchases wait for an admin decision.
const creditAutoApproveLimit = 1000

// MinTopUpCents is the smallest accepted wallet top-up, one hundred
// currency units.
const MinTopUpCents = 100 * 100

var (
	// ErrInsufficientFunds is returned when the wallet cannot cover a debit.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrInsufficientCredits is returned when available AI credits cannot cover a run.
	ErrInsufficientCredits = errors.New("insufficient credits")
	// ErrInvalidQuantity is returned for non-positive credit quantities.
	ErrInvalidQuantity = errors.New("invalid credit quantity")
	// ErrInvalidAmount is returned for top-ups below the minimum.
	ErrInvalidAmount = errors.New("invalid top-up amount")
	// ErrInvalidTransition is returned when a ledger entry is not pending review.
	ErrInvalidTransition = errors.New("ledger entry is not pending")
	// ErrUnknownPlan is returned when a customer references a missing plan.
	ErrUnknownPlan = errors.New("unknown pricing plan")
)

// InsufficientFundsError carries the wallet shortfall so callers can direct
// the customer to top up the exact difference.
type InsufficientFundsError struct {
	ShortfallCents int64
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: short by %d", e.ShortfallCents)
}

func (e *InsufficientFundsError) Unwrap() error { return ErrInsufficientFunds }

// CustomerRepo is the minimal customer repository interface for the ledger.
type CustomerRepo interface {
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Customer, error)
	AddWalletBalance(ctx context.Context, tx pgx.Tx, id uuid.UUID, amountCents int64) (newBalance int64, err error)
	DeductWalletBalance(ctx context.Context, tx pgx.Tx, id uuid.UUID, amountCents int64) (newBalance int64, err error)
	AddCredits(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount int) (newCredits int, err error)
	DeductCredits(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount int) (newCredits int, err error)
	SetSubscription(ctx context.Context, tx pgx.Tx, id uuid.UUID, planID, status string, endDate time.Time) error
}

// CreditRepo is the minimal credit-ledger interface for the ledger engine.
type CreditRepo interface {
	CreateTx(ctx context.Context, tx pgx.Tx, e *models.CreditLedgerEntry) error
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.CreditLedgerEntry, error)
	UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status string) error
}

// WalletRepo records immutable wallet transactions.
type WalletRepo interface {
	CreateTx(ctx context.Context, tx pgx.Tx, t *models.WalletTransaction) error
}

// PlanRepo resolves pricing plans.
type PlanRepo interface {
	GetByID(ctx context.Context, id string) (*models.PricingPlan, error)
}

// Service is the wallet and AI-credit accounting engine. All mutating
// methods run inside the caller's transaction; preconditions are checked
// against row-locked state before anything is written.
type Service struct {
	Customers CustomerRepo
	Credits   CreditRepo
	Wallet    WalletRepo
	Plans     PlanRepo
}

// NewService returns a new ledger Service.
func NewService(customers CustomerRepo, credits CreditRepo, wallet WalletRepo, plans PlanRepo) *Service {
	return &Service{Customers: customers, Credits: credits, Wallet: wallet, Plans: plans}
}

func ceilDiv(a, b int64) int64 {
	return (a + b - 1) / b
}

// PurchaseCredits debits the wallet for quantity AI credits at the plan's
// additional-credit price. Quantities under the auto-approve limit are
// granted immediately; larger purchases create a pending ledger entry that
// holds the credits back until an admin decision.
func (s *Service) PurchaseCredits(ctx context.Context, tx pgx.Tx, customerID uuid.UUID, quantity int) (*models.CreditLedgerEntry, error) {
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}
	cust, err := s.Customers.GetByIDForUpdate(ctx, tx, customerID)
	if err != nil {
		return nil, err
	}
	plan, err := s.Plans.GetByID(ctx, cust.PlanID)
	if err != nil {
		return nil, ErrUnknownPlan
	}
	cost := ceilDiv(int64(quantity)*plan.AdditionalCreditPriceCents, 1000)
	if cust.WalletBalanceCents < cost {
		return nil, &InsufficientFundsError{ShortfallCents: cost - cust.WalletBalanceCents}
	}
	if _, err := s.Customers.DeductWalletBalance(ctx, tx, customerID, cost); err != nil {
		return nil, err
	}

	status := models.CreditStatusApproved
	desc := "Wallet purchase (auto-approved)"
	if quantity >= creditAutoApproveLimit {
		status = models.CreditStatusPending
		desc = "Pending admin approval"
	}
	if err := s.Wallet.CreateTx(ctx, tx, &models.WalletTransaction{
		ID:          uuid.New(),
		CustomerID:  customerID,
		Type:        models.WalletDebit,
		AmountCents: cost,
		Description: fmt.Sprintf("Purchased %d AI credits (%s)", quantity, status),
	}); err != nil {
		return nil, err
	}
	entry := &models.CreditLedgerEntry{
		ID:           uuid.New(),
		CustomerID:   customerID,
		CreditsAdded: quantity,
		Source:       models.CreditSourcePurchase,
		Status:       status,
		Description:  desc,
		CostCents:    cost,
	}
	if err := s.Credits.CreateTx(ctx, tx, entry); err != nil {
		return nil, err
	}
	if status == models.CreditStatusApproved {
		if _, err := s.Customers.AddCredits(ctx, tx, customerID, quantity); err != nil {
			return nil, err
		}
	}
	return entry, nil
}

// ApproveCreditPurchase grants the credits held by a pending purchase entry.
func (s *Service) ApproveCreditPurchase(ctx context.Context, tx pgx.Tx, entryID uuid.UUID) error {
	entry, err := s.Credits.GetByIDForUpdate(ctx, tx, entryID)
	if err != nil {
		return err
	}
	if entry.Source != models.CreditSourcePurchase || entry.Status != models.CreditStatusPending {
		return ErrInvalidTransition
	}
	if _, err := s.Customers.GetByIDForUpdate(ctx, tx, entry.CustomerID); err != nil {
		return err
	}
	if err := s.Credits.UpdateStatus(ctx, tx, entryID, models.CreditStatusApproved); err != nil {
		return err
	}
	_, err = s.Customers.AddCredits(ctx, tx, entry.CustomerID, entry.CreditsAdded)
	return err
}

// RejectCreditPurchase refunds the wallet debit of a pending purchase entry.
func (s *Service) RejectCreditPurchase(ctx context.Context, tx pgx.Tx, entryID uuid.UUID) error {
	entry, err := s.Credits.GetByIDForUpdate(ctx, tx, entryID)
	if err != nil {
		return err
	}
	if entry.Source != models.CreditSourcePurchase || entry.Status != models.CreditStatusPending {
		return ErrInvalidTransition
	}
	if _, err := s.Customers.GetByIDForUpdate(ctx, tx, entry.CustomerID); err != nil {
		return err
	}
	if err := s.Credits.UpdateStatus(ctx, tx, entryID, models.CreditStatusRejected); err != nil {
		return err
	}
	if _, err := s.Customers.AddWalletBalance(ctx, tx, entry.CustomerID, entry.CostCents); err != nil {
		return err
	}
	return s.Wallet.CreateTx(ctx, tx, &models.WalletTransaction{
		ID:          uuid.New(),
		CustomerID:  entry.CustomerID,
		Type:        models.WalletCredit,
		AmountCents: entry.CostCents,
		Description: fmt.Sprintf("Credit purchase rejected, refund of %d credits order", entry.CreditsAdded),
	})
}

// TopUpWallet credits the wallet after a successful gateway payment.
// reference is the gateway payment id.
func (s *Service) TopUpWallet(ctx context.Context, tx pgx.Tx, customerID uuid.UUID, amountCents int64, reference string) error {
	if amountCents < MinTopUpCents {
		return ErrInvalidAmount
	}
	if _, err := s.Customers.GetByIDForUpdate(ctx, tx, customerID); err != nil {
		return err
	}
	if _, err := s.Customers.AddWalletBalance(ctx, tx, customerID, amountCents); err != nil {
		return err
	}
	return s.Wallet.CreateTx(ctx, tx, &models.WalletTransaction{
		ID:          uuid.New(),
		CustomerID:  customerID,
		Type:        models.WalletCredit,
		AmountCents: amountCents,
		Description: "Wallet top up",
		Reference:   reference,
	})
}

// RenewSubscription charges the plan's monthly price plus 18% GST from the
// wallet and extends the subscription 30 days from whichever is later, the
// current end date or now.
func (s *Service) RenewSubscription(ctx context.Context, tx pgx.Tx, customerID uuid.UUID) error {
	cust, err := s.Customers.GetByIDForUpdate(ctx, tx, customerID)
	if err != nil {
		return err
	}
	plan, err := s.Plans.GetByID(ctx, cust.PlanID)
	if err != nil {
		return ErrUnknownPlan
	}
	cost := plan.RenewalCostCents()
	if cust.WalletBalanceCents < cost {
		return &InsufficientFundsError{ShortfallCents: cost - cust.WalletBalanceCents}
	}
	if _, err := s.Customers.DeductWalletBalance(ctx, tx, customerID, cost); err != nil {
		return err
	}
	from := time.Now()
	if cust.SubscriptionEndDate != nil && cust.SubscriptionEndDate.After(from) {
		from = *cust.SubscriptionEndDate
	}
	newEnd := from.AddDate(0, 0, 30)
	if err := s.Customers.SetSubscription(ctx, tx, customerID, cust.PlanID, models.SubscriptionActive, newEnd); err != nil {
		return err
	}
	return s.Wallet.CreateTx(ctx, tx, &models.WalletTransaction{
		ID:          uuid.New(),
		CustomerID:  customerID,
		Type:        models.WalletDebit,
		AmountCents: cost,
		Description: fmt.Sprintf("Subscription renewal (%s plan)", plan.Name),
	})
}

// ActivateSubscription applies a completed checkout: sets the plan, starts a
// 30-day term and grants the plan's monthly credits as a bonus ledger entry.
// reference is the gateway payment id recorded for audit.
func (s *Service) ActivateSubscription(ctx context.Context, tx pgx.Tx, customerID uuid.UUID, planID, reference string) error {
	if _, err := s.Customers.GetByIDForUpdate(ctx, tx, customerID); err != nil {
		return err
	}
	plan, err := s.Plans.GetByID(ctx, planID)
	if err != nil {
		return ErrUnknownPlan
	}
	end := time.Now().AddDate(0, 0, 30)
	if err := s.Customers.SetSubscription(ctx, tx, customerID, plan.ID, models.SubscriptionActive, end); err != nil {
		return err
	}
	if plan.AICredits > 0 {
		if _, err := s.Customers.AddCredits(ctx, tx, customerID, plan.AICredits); err != nil {
			return err
		}
		if err := s.Credits.CreateTx(ctx, tx, &models.CreditLedgerEntry{
			ID:           uuid.New(),
			CustomerID:   customerID,
			CreditsAdded: plan.AICredits,
			Source:       models.CreditSourceBonus,
			Status:       models.CreditStatusApproved,
			Description:  fmt.Sprintf("%s plan activation credits", plan.Name),
		}); err != nil {
			return err
		}
	}
	return s.Wallet.CreateTx(ctx, tx, &models.WalletTransaction{
		ID:          uuid.New(),
		CustomerID:  customerID,
		Type:        models.WalletCredit,
		AmountCents: 0,
		Description: fmt.Sprintf("Subscription activated (%s plan)", plan.Name),
		Reference:   reference,
	})
}

// ConsumeCredits deducts run credits and records an approved usage entry.
// Called by the run engine inside the run's transaction.
func (s *Service) ConsumeCredits(ctx context.Context, tx pgx.Tx, customerID uuid.UUID, projectID *uuid.UUID, amount int, description string) error {
	if amount <= 0 {
		return ErrInvalidQuantity
	}
	cust, err := s.Customers.GetByIDForUpdate(ctx, tx, customerID)
	if err != nil {
		return err
	}
	if cust.AICredits < amount {
		return ErrInsufficientCredits
	}
	if _, err := s.Customers.DeductCredits(ctx, tx, customerID, amount); err != nil {
		return err
	}
	return s.Credits.CreateTx(ctx, tx, &models.CreditLedgerEntry{
		ID:              uuid.New(),
		CustomerID:      customerID,
		ProjectID:       projectID,
		CreditsConsumed: amount,
		Source:          models.CreditSourceUsage,
		Status:          models.CreditStatusApproved,
		Description:     description,
	})
}
