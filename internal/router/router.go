package router

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/inflow/backend/internal/admin"
	"github.com/inflow/backend/internal/auth"
	"github.com/inflow/backend/internal/dashboard"
	"github.com/inflow/backend/internal/metrics"
	"github.com/inflow/backend/internal/middleware"
	"github.com/inflow/backend/internal/partnerportal"
)

// Pinger reports backend liveness for the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps carries everything the route table needs.
type Deps struct {
	Auth      *auth.Handler
	Dashboard *dashboard.Handler
	Partner   *partnerportal.Handler
	Admin     *admin.Handler
	Validator middleware.TokenValidator
	AdminKey  string
	DB        Pinger
}

// New returns the API handler. Customer routes require a customer JWT,
// partner routes a partner JWT, admin routes the admin key header.
func New(d Deps) http.Handler {
	mux := http.NewServeMux()
	const base = "/api/v1"

	customer := middleware.JWTAuth(d.Validator, auth.RoleCustomer)
	partner := middleware.JWTAuth(d.Validator, auth.RolePartner)
	adminOnly := middleware.AdminKeyAuth(d.AdminKey)

	handle := func(pattern string, mw func(http.Handler) http.Handler, h http.HandlerFunc) {
		mux.Handle(pattern, mw(h))
	}

	// Public surface.
	mux.HandleFunc("POST "+base+"/auth/register", d.Auth.Register)
	mux.HandleFunc("POST "+base+"/auth/login", d.Auth.Login)
	mux.HandleFunc("POST "+base+"/auth/partner/login", d.Auth.LoginPartner)
	mux.HandleFunc("GET "+base+"/plans", d.Dashboard.ListPlans)
	mux.HandleFunc("GET "+base+"/config", d.Admin.GetConfig)
	mux.HandleFunc("POST "+base+"/partner/track-click", d.Partner.TrackClick)

	// Customer dashboard.
	handle("GET "+base+"/account/me", customer, d.Dashboard.GetMe)
	handle("PATCH "+base+"/account/settings", customer, d.Dashboard.UpdateSettings)
	handle("POST "+base+"/checkout", customer, d.Dashboard.Checkout)
	handle("POST "+base+"/checkout/complete", customer, d.Dashboard.CheckoutComplete)
	handle("POST "+base+"/wallet/topup", customer, d.Dashboard.TopUp)
	handle("POST "+base+"/wallet/topup/complete", customer, d.Dashboard.TopUpComplete)
	handle("GET "+base+"/wallet/transactions", customer, d.Dashboard.ListWalletTransactions)
	handle("POST "+base+"/credits/purchase", customer, d.Dashboard.PurchaseCredits)
	handle("GET "+base+"/credit-ledger", customer, d.Dashboard.ListCreditLedger)
	handle("POST "+base+"/subscription/renew", customer, d.Dashboard.RenewSubscription)
	handle("GET "+base+"/projects", customer, d.Dashboard.ListProjects)
	handle("POST "+base+"/projects", customer, d.Dashboard.CreateProject)
	handle("DELETE "+base+"/projects/{id}", customer, d.Dashboard.DeleteProject)
	handle("POST "+base+"/projects/{id}/run", customer, d.Dashboard.RunWorkflow)
	handle("GET "+base+"/runs", customer, d.Dashboard.ListRuns)
	handle("GET "+base+"/tasks", customer, d.Dashboard.ListTasks)
	handle("POST "+base+"/tasks", customer, d.Dashboard.CreateTask)
	handle("PATCH "+base+"/tasks/{id}", customer, d.Dashboard.UpdateTask)
	handle("DELETE "+base+"/tasks/{id}", customer, d.Dashboard.DeleteTask)

	// Partner portal.
	handle("GET "+base+"/partner/me", partner, d.Partner.GetMe)
	handle("GET "+base+"/partner/leads", partner, d.Partner.ListLeads)
	handle("POST "+base+"/partner/leads", partner, d.Partner.RegisterLead)
	handle("POST "+base+"/partner/leads/import", partner, d.Partner.ImportLeads)
	handle("POST "+base+"/partner/leads/{id}/convert", partner, d.Partner.ConvertLead)
	handle("GET "+base+"/partner/commissions", partner, d.Partner.ListCommissions)
	handle("POST "+base+"/partner/commissions/{id}/submit", partner, d.Partner.SubmitWork)
	handle("GET "+base+"/partner/payouts", partner, d.Partner.ListPayouts)
	handle("POST "+base+"/partner/payouts", partner, d.Partner.RequestPayout)

	// Admin back office.
	handle("POST "+base+"/admin/commissions/{id}/approve", adminOnly, d.Admin.ApproveCommission)
	handle("POST "+base+"/admin/commissions/{id}/reject", adminOnly, d.Admin.RejectCommission)
	handle("POST "+base+"/admin/payouts/{id}/process", adminOnly, d.Admin.ProcessPayout)
	handle("POST "+base+"/admin/payouts/{id}/reject", adminOnly, d.Admin.RejectPayout)
	handle("GET "+base+"/admin/credit-purchases", adminOnly, d.Admin.ListPendingCreditPurchases)
	handle("POST "+base+"/admin/credit-purchases/{id}/approve", adminOnly, d.Admin.ApproveCreditPurchase)
	handle("POST "+base+"/admin/credit-purchases/{id}/reject", adminOnly, d.Admin.RejectCreditPurchase)
	handle("GET "+base+"/admin/config", adminOnly, d.Admin.GetConfig)
	handle("PUT "+base+"/admin/config", adminOnly, d.Admin.PutConfig)
	handle("GET "+base+"/admin/templates", adminOnly, d.Admin.ListTemplates)
	handle("POST "+base+"/admin/templates", adminOnly, d.Admin.CreateTemplate)
	handle("DELETE "+base+"/admin/templates/{id}", adminOnly, d.Admin.DeleteTemplate)
	handle("GET "+base+"/admin/partners", adminOnly, d.Admin.ListPartners)
	handle("POST "+base+"/admin/partners", adminOnly, d.Admin.CreatePartner)

	// Ops.
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		if d.DB != nil {
			if err := d.DB.Ping(r.Context()); err != nil {
				http.Error(w, `{"status":"degraded"}`, http.StatusServiceUnavailable)
				return
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	mux.Handle("GET /metrics", promhttp.Handler())

	return metrics.Instrument(mux)
}
