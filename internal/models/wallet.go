package models

import (
	"time"

	"github.com/google/uuid"
)

// Wallet transaction type enums.
const (
	WalletCredit = "credit"
	WalletDebit  = "debit"
)

// WalletTransaction is an immutable record of a wallet movement. Reference
// carries the payment-gateway id when the movement came through checkout.
type WalletTransaction struct {
	ID          uuid.UUID `json:"id"`
	CustomerID  uuid.UUID `json:"customer_id"`
	Type        string    `json:"type"`
	AmountCents int64     `json:"amount_cents"`
	Description string    `json:"description"`
	Reference   string    `json:"reference,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
