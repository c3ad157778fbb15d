package models

import (
	"time"

	"github.com/google/uuid"
)

// Credit ledger source and status enums. Only approved entries move a
// customer's available credits.
const (
	CreditSourcePurchase = "purchase"
	CreditSourceUsage    = "usage"
	CreditSourceBonus    = "bonus"
	CreditSourceRefund   = "refund"

	CreditStatusPending  = "pending"
	CreditStatusApproved = "approved"
	CreditStatusRejected = "rejected"
)

type CreditLedgerEntry struct {
	ID              uuid.UUID  `json:"id"`
	CustomerID      uuid.UUID  `json:"customer_id"`
	ProjectID       *uuid.UUID `json:"project_id,omitempty"`
	CreditsAdded    int        `json:"credits_added"`
	CreditsConsumed int        `json:"credits_consumed"`
	Source          string     `json:"source"`
	Status          string     `json:"status"`
	Description     string     `json:"description"`
	CostCents       int64      `json:"cost_cents,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}
