package models

import (
	"time"

	"github.com/google/uuid"
)

// Subscription status enums.
const (
	SubscriptionActive  = "active"
	SubscriptionExpired = "expired"
)

type Customer struct {
	ID                  uuid.UUID  `json:"id"`
	Email               string     `json:"email"`
	Name                string     `json:"name"`
	Phone               string     `json:"phone"`
	Whatsapp            string     `json:"whatsapp,omitempty"`
	Address             string     `json:"address,omitempty"`
	City                string     `json:"city,omitempty"`
	Pin                 string     `json:"pin,omitempty"`
	State               string     `json:"state,omitempty"`
	BusinessName        string     `json:"business_name,omitempty"`
	Industry            string     `json:"industry,omitempty"`
	GSTNo               string     `json:"gst_no,omitempty"`
	PasswordHash        string     `json:"-"`
	PlanID              string     `json:"plan_id"`
	SubscriptionStatus  string     `json:"subscription_status"`
	SubscriptionEndDate *time.Time `json:"subscription_end_date,omitempty"`
	WalletBalanceCents  int64      `json:"wallet_balance_cents"`
	AICredits           int        `json:"ai_credits"`
	ReferralCode        string     `json:"referral_code,omitempty"`
	OnboardedAt         *time.Time `json:"onboarded_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// SubscriptionIsActive reports whether the customer may run workflows.
// A missing end date means the subscription was never activated.
func (c *Customer) SubscriptionIsActive(now time.Time) bool {
	if c.SubscriptionEndDate == nil {
		return false
	}
	return now.Before(*c.SubscriptionEndDate)
}
