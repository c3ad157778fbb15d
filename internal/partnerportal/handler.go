package partnerportal

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/inflow/backend/internal/commission"
	"github.com/inflow/backend/internal/metrics"
	"github.com/inflow/backend/internal/middleware"
	"github.com/inflow/backend/internal/models"
	"github.com/inflow/backend/internal/repository"
)

// csvImportMaxBytes caps uploaded lead files.
const csvImportMaxBytes = 2 << 20

// TxBeginner abstracts transaction creation so tests don't need a pgxpool.Pool.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Handler serves the authenticated partner surface: profile, leads,
// commissions and payouts.
type Handler struct {
	pool        TxBeginner
	partners    *repository.PartnerRepo
	leads       *repository.LeadRepo
	commissions *repository.CommissionRepo
	payouts     *repository.PayoutRepo
	svc         *commission.Service
	log         *slog.Logger
}

func NewHandler(
	pool TxBeginner,
	partners *repository.PartnerRepo,
	leads *repository.LeadRepo,
	commissions *repository.CommissionRepo,
	payouts *repository.PayoutRepo,
	svc *commission.Service,
	log *slog.Logger,
) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		pool:        pool,
		partners:    partners,
		leads:       leads,
		commissions: commissions,
		payouts:     payouts,
		svc:         svc,
		log:         log,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// --- GET /api/v1/partner/me ---

func (h *Handler) GetMe(w http.ResponseWriter, r *http.Request) {
	partnerID := middleware.SubjectFromCtx(r.Context())
	p, err := h.partners.GetByID(r.Context(), partnerID)
	if err != nil {
		h.log.Error("get partner failed", "error", err)
		http.Error(w, `{"error":"partner not found"}`, http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// --- POST /api/v1/partner/leads ---

func (h *Handler) RegisterLead(w http.ResponseWriter, r *http.Request) {
	partnerID := middleware.SubjectFromCtx(r.Context())
	var body struct {
		Name    string `json:"name"`
		Email   string `json:"email"`
		Phone   string `json:"phone"`
		Company string `json:"company"`
		Notes   string `json:"notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(body.Name) == "" || strings.TrimSpace(body.Email) == "" {
		http.Error(w, `{"error":"name and email are required"}`, http.StatusBadRequest)
		return
	}

	tx, err := h.pool.Begin(r.Context())
	if err != nil {
		h.log.Error("begin lead tx", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	defer tx.Rollback(r.Context())

	lead, err := h.svc.RegisterLead(r.Context(), tx, partnerID, body.Name, body.Email, body.Phone, body.Company, body.Notes)
	if err != nil {
		h.log.Error("register lead failed", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	if err := tx.Commit(r.Context()); err != nil {
		h.log.Error("commit lead tx", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, lead)
}

// --- GET /api/v1/partner/leads ---

func (h *Handler) ListLeads(w http.ResponseWriter, r *http.Request) {
	partnerID := middleware.SubjectFromCtx(r.Context())
	leads, err := h.leads.ListByPartner(r.Context(), partnerID)
	if err != nil {
		h.log.Error("list leads failed", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	if leads == nil {
		leads = []*models.PartnerLead{}
	}
	writeJSON(w, http.StatusOK, leads)
}

// --- POST /api/v1/partner/leads/import ---

// ImportLeads accepts a CSV either as a multipart "file" part or as the raw
// request body.
func (h *Handler) ImportLeads(w http.ResponseWriter, r *http.Request) {
	partnerID := middleware.SubjectFromCtx(r.Context())

	var src io.Reader
	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "multipart/form-data") {
		if err := r.ParseMultipartForm(csvImportMaxBytes); err != nil {
			http.Error(w, `{"error":"invalid multipart form"}`, http.StatusBadRequest)
			return
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			http.Error(w, `{"error":"missing file part"}`, http.StatusBadRequest)
			return
		}
		defer func(f multipart.File) { _ = f.Close() }(file)
		src = file
	} else {
		src = io.LimitReader(r.Body, csvImportMaxBytes)
	}

	tx, err := h.pool.Begin(r.Context())
	if err != nil {
		h.log.Error("begin import tx", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	defer tx.Rollback(r.Context())

	imported, err := h.svc.ImportLeads(r.Context(), tx, partnerID, src)
	if err != nil {
		if errors.Is(err, commission.ErrEmptyImport) {
			http.Error(w, `{"error":"no importable rows"}`, http.StatusBadRequest)
			return
		}
		h.log.Error("import leads failed", "error", err)
		http.Error(w, `{"error":"import failed"}`, http.StatusBadRequest)
		return
	}
	if err := tx.Commit(r.Context()); err != nil {
		h.log.Error("commit import tx", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"imported": len(imported),
		"leads":    imported,
	})
}

// --- POST /api/v1/partner/leads/{id}/convert ---

func (h *Handler) ConvertLead(w http.ResponseWriter, r *http.Request) {
	partnerID := middleware.SubjectFromCtx(r.Context())
	leadID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, `{"error":"invalid lead id"}`, http.StatusBadRequest)
		return
	}
	var body struct {
		PlanName        string `json:"plan_name"`
		SaleAmountCents int64  `json:"sale_amount_cents"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if body.SaleAmountCents <= 0 {
		http.Error(w, `{"error":"sale_amount_cents must be positive"}`, http.StatusBadRequest)
		return
	}

	tx, err := h.pool.Begin(r.Context())
	if err != nil {
		h.log.Error("begin convert tx", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	defer tx.Rollback(r.Context())

	logEntry, err := h.svc.ConvertLead(r.Context(), tx, partnerID, leadID, body.PlanName, body.SaleAmountCents)
	if err != nil {
		switch {
		case errors.Is(err, commission.ErrLeadAlreadyConverted):
			http.Error(w, `{"error":"lead already converted"}`, http.StatusConflict)
		case errors.Is(err, commission.ErrPartnerNotFound), errors.Is(err, pgx.ErrNoRows):
			http.Error(w, `{"error":"lead not found"}`, http.StatusNotFound)
		default:
			h.log.Error("convert lead failed", "error", err)
			http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		}
		return
	}
	if err := tx.Commit(r.Context()); err != nil {
		h.log.Error("commit convert tx", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	metrics.ObserveCommission(logEntry.Type)
	writeJSON(w, http.StatusCreated, logEntry)
}

// --- GET /api/v1/partner/commissions ---

func (h *Handler) ListCommissions(w http.ResponseWriter, r *http.Request) {
	partnerID := middleware.SubjectFromCtx(r.Context())
	list, err := h.commissions.ListByPartner(r.Context(), partnerID)
	if err != nil {
		h.log.Error("list commissions failed", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []*models.CommissionLog{}
	}
	writeJSON(w, http.StatusOK, list)
}

// --- POST /api/v1/partner/commissions/{id}/submit ---

func (h *Handler) SubmitWork(w http.ResponseWriter, r *http.Request) {
	partnerID := middleware.SubjectFromCtx(r.Context())
	commissionID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, `{"error":"invalid commission id"}`, http.StatusBadRequest)
		return
	}
	var proof models.ProofOfWork
	if err := json.NewDecoder(r.Body).Decode(&proof); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}

	tx, err := h.pool.Begin(r.Context())
	if err != nil {
		h.log.Error("begin submit tx", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	defer tx.Rollback(r.Context())

	if err := h.svc.SubmitWork(r.Context(), tx, partnerID, commissionID, proof); err != nil {
		if errors.Is(err, commission.ErrInvalidTransition) {
			http.Error(w, `{"error":"commission is not submittable"}`, http.StatusConflict)
			return
		}
		h.log.Error("submit work failed", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	if err := tx.Commit(r.Context()); err != nil {
		h.log.Error("commit submit tx", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": models.CommissionUnderReview})
}

// --- GET /api/v1/partner/payouts ---

func (h *Handler) ListPayouts(w http.ResponseWriter, r *http.Request) {
	partnerID := middleware.SubjectFromCtx(r.Context())
	list, err := h.payouts.ListByPartner(r.Context(), partnerID)
	if err != nil {
		h.log.Error("list payouts failed", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []*models.PayoutRequest{}
	}
	writeJSON(w, http.StatusOK, list)
}

// --- POST /api/v1/partner/payouts ---

func (h *Handler) RequestPayout(w http.ResponseWriter, r *http.Request) {
	partnerID := middleware.SubjectFromCtx(r.Context())
	var body struct {
		AmountCents int64 `json:"amount_cents"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}

	tx, err := h.pool.Begin(r.Context())
	if err != nil {
		h.log.Error("begin payout tx", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	defer tx.Rollback(r.Context())

	req, err := h.svc.RequestPayout(r.Context(), tx, partnerID, body.AmountCents)
	if err != nil {
		switch {
		case errors.Is(err, commission.ErrBelowMinimumPayout):
			http.Error(w, `{"error":"amount below minimum payout"}`, http.StatusBadRequest)
		case errors.Is(err, commission.ErrInsufficientBalance):
			http.Error(w, `{"error":"insufficient payable balance"}`, http.StatusPaymentRequired)
		default:
			h.log.Error("request payout failed", "error", err)
			http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		}
		return
	}
	if err := tx.Commit(r.Context()); err != nil {
		h.log.Error("commit payout tx", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	metrics.ObservePayoutRequest()
	writeJSON(w, http.StatusCreated, req)
}

// --- POST /api/v1/partner/track-click (public) ---

// TrackClick records a referral link click. Unknown codes are a silent
// success so the endpoint leaks nothing about valid codes.
func (h *Handler) TrackClick(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}

	tx, err := h.pool.Begin(r.Context())
	if err != nil {
		h.log.Error("begin click tx", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	defer tx.Rollback(r.Context())

	if err := h.svc.TrackClick(r.Context(), tx, body.Code); err != nil {
		h.log.Error("track click failed", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	if err := tx.Commit(r.Context()); err != nil {
		h.log.Error("commit click tx", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
