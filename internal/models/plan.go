package models

import "time"

// PricingPlan is an admin-defined subscription tier. Plan IDs are short
// slugs ("starter", "pro") referenced from customers and templates.
type PricingPlan struct {
	ID                         string    `json:"id"`
	Name                       string    `json:"name"`
	MonthlyPriceCents          int64     `json:"monthly_price_cents"`
	YearlyPriceCents           int64     `json:"yearly_price_cents"`
	Currency                   string    `json:"currency"`
	Features                   []string  `json:"features"`
	MaxProjects                int       `json:"max_projects"`
	AICredits                  int       `json:"ai_credits"`
	AdditionalCreditPriceCents int64     `json:"additional_credit_price_cents"` // per 1000 credits
	Recommended                bool      `json:"recommended"`
	Visible                    bool      `json:"visible"`
	CreatedAt                  time.Time `json:"created_at"`
	UpdatedAt                  time.Time `json:"updated_at"`
}

// RenewalCostCents is the monthly price plus 18% GST, in exact integer math.
func (p *PricingPlan) RenewalCostCents() int64 {
	return p.MonthlyPriceCents * 118 / 100
}

// DefaultPlans returns the built-in pricing tiers, seeded at startup.
func DefaultPlans() []*PricingPlan {
	return []*PricingPlan{
		{ID: "free", Name: "Free", MonthlyPriceCents: 0, YearlyPriceCents: 0, Currency: "INR", Features: []string{"1 Basic Workflow", "Community Support", "No AI Credits"}, MaxProjects: 1, AICredits: 0, AdditionalCreditPriceCents: 5000_00, Visible: true},
		{ID: "starter", Name: "Starter", MonthlyPriceCents: 2999_00, YearlyPriceCents: 29990_00, Currency: "INR", Features: []string{"3 Workflows", "Email Support", "100 AI Credits", "1 Project"}, MaxProjects: 1, AICredits: 100, AdditionalCreditPriceCents: 5000_00, Visible: true},
		{ID: "creator", Name: "Creator", MonthlyPriceCents: 5999_00, YearlyPriceCents: 59990_00, Currency: "INR", Features: []string{"5 Workflows", "Priority Email", "300 AI Credits", "2 Projects"}, MaxProjects: 2, AICredits: 300, AdditionalCreditPriceCents: 5000_00, Visible: true},
		{ID: "pro", Name: "Pro", MonthlyPriceCents: 9999_00, YearlyPriceCents: 99990_00, Currency: "INR", Features: []string{"10 Workflows", "WhatsApp Support", "500 AI Credits", "3 Projects"}, MaxProjects: 3, AICredits: 500, AdditionalCreditPriceCents: 5000_00, Recommended: true, Visible: true},
		{ID: "scale", Name: "Scale", MonthlyPriceCents: 19999_00, YearlyPriceCents: 199990_00, Currency: "INR", Features: []string{"Unlimited Workflows", "Dedicated Manager", "1000 AI Credits", "5 Projects"}, MaxProjects: 5, AICredits: 1000, AdditionalCreditPriceCents: 4500_00, Visible: true},
		{ID: "business", Name: "Business", MonthlyPriceCents: 39999_00, YearlyPriceCents: 399990_00, Currency: "INR", Features: []string{"Custom AI Training", "SLA Support", "2500 AI Credits", "10 Projects"}, MaxProjects: 10, AICredits: 2500, AdditionalCreditPriceCents: 4000_00, Visible: true},
		{ID: "enterprise", Name: "Enterprise", MonthlyPriceCents: 99999_00, YearlyPriceCents: 999990_00, Currency: "INR", Features: []string{"White Labeling", "24/7 Phone Support", "Unlimited AI Credits", "Unlimited Projects"}, MaxProjects: 999, AICredits: 10000, AdditionalCreditPriceCents: 3000_00, Visible: true},
	}
}
