package admin

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/inflow/backend/internal/auth"
	"github.com/inflow/backend/internal/commission"
	"github.com/inflow/backend/internal/ledger"
	"github.com/inflow/backend/internal/models"
	"github.com/inflow/backend/internal/repository"
	"github.com/inflow/backend/internal/siteconfig"
)

// TxBeginner abstracts transaction creation so tests don't need a pgxpool.Pool.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Handler serves the admin-key protected back office: review queues,
// payouts, site configuration, templates and partner onboarding.
type Handler struct {
	pool        TxBeginner
	partners    *repository.PartnerRepo
	templates   *repository.TemplateRepo
	credits     *repository.CreditRepo
	ledger      *ledger.Service
	commissions *commission.Service
	site        *siteconfig.Service
	log         *slog.Logger
}

func NewHandler(
	pool TxBeginner,
	partners *repository.PartnerRepo,
	templates *repository.TemplateRepo,
	credits *repository.CreditRepo,
	ledgerSvc *ledger.Service,
	commissions *commission.Service,
	site *siteconfig.Service,
	log *slog.Logger,
) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		pool:        pool,
		partners:    partners,
		templates:   templates,
		credits:     credits,
		ledger:      ledgerSvc,
		commissions: commissions,
		site:        site,
		log:         log,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// inTx runs fn inside a transaction and maps common review errors.
func (h *Handler) inTx(w http.ResponseWriter, r *http.Request, fn func(tx pgx.Tx) error) bool {
	tx, err := h.pool.Begin(r.Context())
	if err != nil {
		h.log.Error("begin admin tx", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return false
	}
	defer tx.Rollback(r.Context())

	if err := fn(tx); err != nil {
		switch {
		case errors.Is(err, commission.ErrInvalidTransition), errors.Is(err, ledger.ErrInvalidTransition):
			http.Error(w, `{"error":"invalid state for this action"}`, http.StatusConflict)
		case errors.Is(err, pgx.ErrNoRows):
			http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
		default:
			h.log.Error("admin action failed", "error", err)
			http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		}
		return false
	}
	if err := tx.Commit(r.Context()); err != nil {
		h.log.Error("commit admin tx", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, `{"error":"invalid id"}`, http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

// --- POST /api/v1/admin/commissions/{id}/approve ---

func (h *Handler) ApproveCommission(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if !h.inTx(w, r, func(tx pgx.Tx) error {
		return h.commissions.ApproveWork(r.Context(), tx, id)
	}) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": models.CommissionPayable})
}

// --- POST /api/v1/admin/commissions/{id}/reject ---

func (h *Handler) RejectCommission(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var body struct {
		Feedback string `json:"feedback"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(body.Feedback) == "" {
		http.Error(w, `{"error":"feedback is required"}`, http.StatusBadRequest)
		return
	}
	if !h.inTx(w, r, func(tx pgx.Tx) error {
		return h.commissions.RejectWork(r.Context(), tx, id, body.Feedback)
	}) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": models.CommissionChangesRequested})
}

// --- POST /api/v1/admin/payouts/{id}/process ---

func (h *Handler) ProcessPayout(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if !h.inTx(w, r, func(tx pgx.Tx) error {
		return h.commissions.ProcessPayout(r.Context(), tx, id)
	}) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": models.PayoutProcessed})
}

// --- POST /api/v1/admin/payouts/{id}/reject ---

func (h *Handler) RejectPayout(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if !h.inTx(w, r, func(tx pgx.Tx) error {
		return h.commissions.RejectPayout(r.Context(), tx, id)
	}) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": models.PayoutRejected})
}

// --- GET /api/v1/admin/credit-purchases ---

func (h *Handler) ListPendingCreditPurchases(w http.ResponseWriter, r *http.Request) {
	entries, err := h.credits.ListPending(r.Context())
	if err != nil {
		h.log.Error("list pending purchases failed", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []*models.CreditLedgerEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// --- POST /api/v1/admin/credit-purchases/{id}/approve ---

func (h *Handler) ApproveCreditPurchase(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if !h.inTx(w, r, func(tx pgx.Tx) error {
		return h.ledger.ApproveCreditPurchase(r.Context(), tx, id)
	}) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": models.CreditStatusApproved})
}

// --- POST /api/v1/admin/credit-purchases/{id}/reject ---

func (h *Handler) RejectCreditPurchase(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if !h.inTx(w, r, func(tx pgx.Tx) error {
		return h.ledger.RejectCreditPurchase(r.Context(), tx, id)
	}) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": models.CreditStatusRejected})
}

// --- GET /api/v1/admin/config ---

func (h *Handler) GetConfig(w http.ResponseWriter, r *http.Request) {
	doc, err := h.site.Get(r.Context())
	if err != nil {
		h.log.Error("get site config failed", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// --- PUT /api/v1/admin/config ---

func (h *Handler) PutConfig(w http.ResponseWriter, r *http.Request) {
	var body json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	doc, err := h.site.Update(r.Context(), body)
	if err != nil {
		if errors.Is(err, siteconfig.ErrEmptyDocument) {
			http.Error(w, `{"error":"config document must be a JSON object"}`, http.StatusBadRequest)
			return
		}
		h.log.Error("update site config failed", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// --- GET /api/v1/admin/templates ---

func (h *Handler) ListTemplates(w http.ResponseWriter, r *http.Request) {
	list, err := h.templates.List(r.Context())
	if err != nil {
		h.log.Error("list templates failed", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []*models.ProjectTemplate{}
	}
	writeJSON(w, http.StatusOK, list)
}

// --- POST /api/v1/admin/templates ---

func (h *Handler) CreateTemplate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name                 string   `json:"name"`
		Description          string   `json:"description"`
		WebhookURLTemplate   string   `json:"webhook_url_template"`
		AICreditCost         int      `json:"ai_credit_cost"`
		DefaultWorkflowCount int      `json:"default_workflow_count"`
		AllowedPlanIDs       []string `json:"allowed_plan_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(body.Name) == "" {
		http.Error(w, `{"error":"name is required"}`, http.StatusBadRequest)
		return
	}
	if body.AICreditCost < 0 || body.DefaultWorkflowCount < 0 {
		http.Error(w, `{"error":"costs and limits must not be negative"}`, http.StatusBadRequest)
		return
	}
	tmpl := &models.ProjectTemplate{
		ID:                   uuid.New(),
		Name:                 body.Name,
		Description:          body.Description,
		WebhookURLTemplate:   body.WebhookURLTemplate,
		AICreditCost:         body.AICreditCost,
		DefaultWorkflowCount: body.DefaultWorkflowCount,
		AllowedPlanIDs:       body.AllowedPlanIDs,
	}
	if err := h.templates.Create(r.Context(), tmpl); err != nil {
		h.log.Error("create template failed", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, tmpl)
}

// --- DELETE /api/v1/admin/templates/{id} ---

func (h *Handler) DeleteTemplate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.templates.Delete(r.Context(), id); err != nil {
		h.log.Error("delete template failed", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- GET /api/v1/admin/partners ---

func (h *Handler) ListPartners(w http.ResponseWriter, r *http.Request) {
	list, err := h.partners.List(r.Context())
	if err != nil {
		h.log.Error("list partners failed", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []*models.Partner{}
	}
	writeJSON(w, http.StatusOK, list)
}

// --- POST /api/v1/admin/partners ---

func (h *Handler) CreatePartner(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
		Type     string `json:"type"`
		Code     string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(body.Name) == "" || strings.TrimSpace(body.Email) == "" {
		http.Error(w, `{"error":"name and email are required"}`, http.StatusBadRequest)
		return
	}
	if len(body.Password) < 8 {
		http.Error(w, `{"error":"password must be at least 8 characters"}`, http.StatusBadRequest)
		return
	}
	if body.Type != models.PartnerChannel && body.Type != models.PartnerReferral {
		http.Error(w, `{"error":"type must be Channel or Referral"}`, http.StatusBadRequest)
		return
	}
	code := strings.ToUpper(strings.TrimSpace(body.Code))
	if code == "" {
		code = generateReferralCode()
	}
	hash, err := auth.HashPassword(body.Password)
	if err != nil {
		h.log.Error("hash partner password failed", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	p := &models.Partner{
		ID:           uuid.New(),
		Name:         body.Name,
		Email:        strings.ToLower(strings.TrimSpace(body.Email)),
		Type:         body.Type,
		Code:         code,
		PasswordHash: hash,
	}
	if err := h.partners.Create(r.Context(), p); err != nil {
		h.log.Error("create partner failed", "error", err)
		http.Error(w, `{"error":"create failed"}`, http.StatusConflict)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// generateReferralCode returns a random uppercase code like "P4F2A9C1".
func generateReferralCode() string {
	raw := make([]byte, 4)
	if _, err := rand.Read(raw); err != nil {
		return "P" + strings.ToUpper(uuid.NewString()[:7])
	}
	return "P" + strings.ToUpper(hex.EncodeToString(raw))[:7]
}
