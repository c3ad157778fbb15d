package models

import (
	"time"

	"github.com/google/uuid"
)

// Partner tiers. Channel partners earn 20% commission, Referral 10%.
const (
	PartnerReferral = "Referral"
	PartnerChannel  = "Channel"
)

// Lead status enums.
const (
	LeadNew          = "New"
	LeadContacted    = "Contacted"
	LeadInDiscussion = "In-Discussion"
	LeadConverted    = "Converted"
	LeadLost         = "Lost"
)

// Commission lifecycle. Money moves locked -> wallet only through an
// approval; Payable is terminal pending payout.
const (
	CommissionLocked           = "Locked"
	CommissionUnderReview      = "Under Review"
	CommissionPayable          = "Payable"
	CommissionChangesRequested = "Changes Requested"
	CommissionPaid             = "Paid"
	CommissionVoid             = "Void"

	CommissionTypeSignup  = "Signup"
	CommissionTypeOneTime = "One-time"
)

// Payout request status enums.
const (
	PayoutPending   = "Pending"
	PayoutProcessed = "Processed"
	PayoutRejected  = "Rejected"
)

type Partner struct {
	ID                 uuid.UUID `json:"id"`
	Name               string    `json:"name"`
	Email              string    `json:"email"`
	Type               string    `json:"type"`
	Code               string    `json:"code"`
	PasswordHash       string    `json:"-"`
	Clicks             int       `json:"clicks"`
	Signups            int       `json:"signups"`
	WalletBalanceCents int64     `json:"wallet_balance_cents"`
	LockedBalanceCents int64     `json:"locked_balance_cents"`
	TotalEarnedCents   int64     `json:"total_earned_cents"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// CommissionRate returns the partner's rate in percent.
func (p *Partner) CommissionRate() int64 {
	if p.Type == PartnerChannel {
		return 20
	}
	return 10
}

type PartnerLead struct {
	ID         uuid.UUID `json:"id"`
	PartnerID  uuid.UUID `json:"partner_id"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	Phone      string    `json:"phone"`
	Company    string    `json:"company,omitempty"`
	Status     string    `json:"status"`
	Notes      string    `json:"notes,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// ProofOfWork is a partner's evidence that onboarding work was completed.
type ProofOfWork struct {
	Description string   `json:"description"`
	Checklist   []string `json:"checklist"`
}

// CommissionLog is one commission-eligible event. Amount is fixed at
// creation and never recomputed.
type CommissionLog struct {
	ID              uuid.UUID    `json:"id"`
	PartnerID       uuid.UUID    `json:"partner_id"`
	LeadID          *uuid.UUID   `json:"lead_id,omitempty"`
	Type            string       `json:"type"`
	Status          string       `json:"status"`
	CustomerName    string       `json:"customer_name"`
	PlanName        string       `json:"plan_name,omitempty"`
	SaleAmountCents int64        `json:"sale_amount_cents"`
	AmountCents     int64        `json:"amount_cents"`
	ProofOfWork     *ProofOfWork `json:"proof_of_work,omitempty"`
	AdminFeedback   string       `json:"admin_feedback,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

type PayoutRequest struct {
	ID          uuid.UUID `json:"id"`
	PartnerID   uuid.UUID `json:"partner_id"`
	AmountCents int64     `json:"amount_cents"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
