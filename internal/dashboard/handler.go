package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/inflow/backend/internal/commission"
	"github.com/inflow/backend/internal/ledger"
	"github.com/inflow/backend/internal/metrics"
	"github.com/inflow/backend/internal/middleware"
	"github.com/inflow/backend/internal/models"
	"github.com/inflow/backend/internal/payments"
	"github.com/inflow/backend/internal/repository"
	"github.com/inflow/backend/internal/tasks"
	"github.com/inflow/backend/internal/workflow"
)

// TxBeginner abstracts transaction creation so tests don't need a pgxpool.Pool.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Handler serves the authenticated customer surface: account, checkout,
// wallet, credits, projects, runs and tasks.
type Handler struct {
	pool        TxBeginner
	customers   *repository.CustomerRepo
	plans       *repository.PlanRepo
	projects    *repository.ProjectRepo
	wallet      *repository.WalletRepo
	credits     *repository.CreditRepo
	runs        *repository.RunRepo
	taskRepo    *repository.TaskRepo
	ledger      *ledger.Service
	workflows   *workflow.Service
	tasks       *tasks.Service
	commissions *commission.Service
	gateway     payments.Gateway
	log         *slog.Logger
}

func NewHandler(
	pool TxBeginner,
	customers *repository.CustomerRepo,
	plans *repository.PlanRepo,
	projects *repository.ProjectRepo,
	wallet *repository.WalletRepo,
	credits *repository.CreditRepo,
	runs *repository.RunRepo,
	taskRepo *repository.TaskRepo,
	ledgerSvc *ledger.Service,
	workflows *workflow.Service,
	taskSvc *tasks.Service,
	commissions *commission.Service,
	gateway payments.Gateway,
	log *slog.Logger,
) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		pool:        pool,
		customers:   customers,
		plans:       plans,
		projects:    projects,
		wallet:      wallet,
		credits:     credits,
		runs:        runs,
		taskRepo:    taskRepo,
		ledger:      ledgerSvc,
		workflows:   workflows,
		tasks:       taskSvc,
		commissions: commissions,
		gateway:     gateway,
		log:         log,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeShortfall reports a wallet shortfall so the client can prompt a
// top-up of the exact difference.
func writeShortfall(w http.ResponseWriter, err error) bool {
	var insufficient *ledger.InsufficientFundsError
	if errors.As(err, &insufficient) {
		writeJSON(w, http.StatusPaymentRequired, map[string]any{
			"error":           "insufficient wallet balance",
			"shortfall_cents": insufficient.ShortfallCents,
		})
		return true
	}
	if errors.Is(err, ledger.ErrInsufficientFunds) {
		writeJSON(w, http.StatusPaymentRequired, map[string]string{"error": "insufficient wallet balance"})
		return true
	}
	return false
}

// --- GET /api/v1/account/me ---

func (h *Handler) GetMe(w http.ResponseWriter, r *http.Request) {
	customerID := middleware.SubjectFromCtx(r.Context())
	cust, err := h.customers.GetByID(r.Context(), customerID)
	if err != nil {
		h.log.Error("get customer failed", "error", err)
		http.Error(w, `{"error":"account not found"}`, http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, cust)
}

// --- PATCH /api/v1/account/settings ---

func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	customerID := middleware.SubjectFromCtx(r.Context())
	cust, err := h.customers.GetByID(r.Context(), customerID)
	if err != nil {
		http.Error(w, `{"error":"account not found"}`, http.StatusNotFound)
		return
	}
	var body struct {
		Name         *string `json:"name"`
		Phone        *string `json:"phone"`
		Whatsapp     *string `json:"whatsapp"`
		Address      *string `json:"address"`
		City         *string `json:"city"`
		Pin          *string `json:"pin"`
		State        *string `json:"state"`
		BusinessName *string `json:"business_name"`
		Industry     *string `json:"industry"`
		GSTNo        *string `json:"gst_no"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if body.Name != nil {
		cust.Name = *body.Name
	}
	if body.Phone != nil {
		cust.Phone = *body.Phone
	}
	if body.Whatsapp != nil {
		cust.Whatsapp = *body.Whatsapp
	}
	if body.Address != nil {
		cust.Address = *body.Address
	}
	if body.City != nil {
		cust.City = *body.City
	}
	if body.Pin != nil {
		cust.Pin = *body.Pin
	}
	if body.State != nil {
		cust.State = *body.State
	}
	if body.BusinessName != nil {
		cust.BusinessName = *body.BusinessName
	}
	if body.Industry != nil {
		cust.Industry = *body.Industry
	}
	if body.GSTNo != nil {
		cust.GSTNo = *body.GSTNo
	}
	if err := h.customers.UpdateProfile(r.Context(), cust); err != nil {
		h.log.Error("update settings failed", "error", err)
		http.Error(w, `{"error":"update failed"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, cust)
}

// --- GET /api/v1/plans (public) ---

func (h *Handler) ListPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := h.plans.List(r.Context(), false)
	if err != nil {
		h.log.Error("list plans failed", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, plans)
}

// --- POST /api/v1/checkout ---

// Checkout opens a gateway session for a subscription purchase. The charge
// is the monthly price plus GST, same as a renewal.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	customerID := middleware.SubjectFromCtx(r.Context())
	var body struct {
		PlanID string `json:"plan_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	plan, err := h.plans.GetByID(r.Context(), body.PlanID)
	if err != nil {
		http.Error(w, `{"error":"unknown plan"}`, http.StatusBadRequest)
		return
	}
	if plan.MonthlyPriceCents <= 0 {
		http.Error(w, `{"error":"plan has no charge"}`, http.StatusBadRequest)
		return
	}
	cust, err := h.customers.GetByID(r.Context(), customerID)
	if err != nil {
		http.Error(w, `{"error":"account not found"}`, http.StatusNotFound)
		return
	}

	req := payments.CheckoutRequest{
		AmountCents: plan.RenewalCostCents(),
		Currency:    plan.Currency,
		Description: plan.Name + " subscription",
	}
	req.Prefill.Name = cust.Name
	req.Prefill.Email = cust.Email
	req.Prefill.Phone = cust.Phone

	session, err := h.gateway.CreateSession(r.Context(), req)
	if err != nil {
		h.log.Error("create checkout session failed", "error", err)
		http.Error(w, `{"error":"checkout failed"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"session": session,
		"plan_id": plan.ID,
	})
}

// --- POST /api/v1/checkout/complete ---

// CheckoutComplete verifies the gateway payment and, in one transaction,
// activates the subscription, applies the referral commission and provisions
// the plan's default projects.
func (h *Handler) CheckoutComplete(w http.ResponseWriter, r *http.Request) {
	customerID := middleware.SubjectFromCtx(r.Context())
	var body struct {
		PlanID     string `json:"plan_id"`
		SessionID  string `json:"session_id"`
		PaymentRef string `json:"payment_ref"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	plan, err := h.plans.GetByID(r.Context(), body.PlanID)
	if err != nil {
		http.Error(w, `{"error":"unknown plan"}`, http.StatusBadRequest)
		return
	}
	if _, err := h.gateway.VerifyPayment(r.Context(), body.SessionID, body.PaymentRef); err != nil {
		http.Error(w, `{"error":"payment verification failed"}`, http.StatusBadRequest)
		return
	}

	tx, err := h.pool.Begin(r.Context())
	if err != nil {
		h.log.Error("begin checkout tx", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	defer tx.Rollback(r.Context())

	cust, err := h.customers.GetByIDForUpdate(r.Context(), tx, customerID)
	if err != nil {
		http.Error(w, `{"error":"account not found"}`, http.StatusNotFound)
		return
	}

	if err := h.ledger.ActivateSubscription(r.Context(), tx, customerID, plan.ID, body.PaymentRef); err != nil {
		h.log.Error("activate subscription failed", "error", err)
		http.Error(w, `{"error":"activation failed"}`, http.StatusInternalServerError)
		return
	}

	logEntry, err := h.commissions.ApplyCommission(r.Context(), tx, cust.ReferralCode, plan.MonthlyPriceCents, cust.Name, plan.Name)
	if err != nil {
		h.log.Error("apply commission failed", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	if logEntry != nil {
		metrics.ObserveCommission(logEntry.Type)
	}

	provisioned, err := h.workflows.ProvisionDefaults(r.Context(), tx, customerID)
	if err != nil {
		h.log.Error("provision defaults failed", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}

	if err := h.customers.MarkOnboarded(r.Context(), tx, customerID); err != nil {
		h.log.Error("mark onboarded failed", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}

	if err := tx.Commit(r.Context()); err != nil {
		h.log.Error("commit checkout tx", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"plan_id":              plan.ID,
		"provisioned_projects": len(provisioned),
	})
}

// --- POST /api/v1/wallet/topup ---

func (h *Handler) TopUp(w http.ResponseWriter, r *http.Request) {
	customerID := middleware.SubjectFromCtx(r.Context())
	var body struct {
		AmountCents int64 `json:"amount_cents"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if body.AmountCents < ledger.MinTopUpCents {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":           "amount below minimum top-up",
			"min_topup_cents": ledger.MinTopUpCents,
			"requested_cents": body.AmountCents,
		})
		return
	}
	cust, err := h.customers.GetByID(r.Context(), customerID)
	if err != nil {
		http.Error(w, `{"error":"account not found"}`, http.StatusNotFound)
		return
	}

	req := payments.CheckoutRequest{
		AmountCents: body.AmountCents,
		Currency:    "INR",
		Description: "Wallet top-up",
	}
	req.Prefill.Name = cust.Name
	req.Prefill.Email = cust.Email
	req.Prefill.Phone = cust.Phone

	session, err := h.gateway.CreateSession(r.Context(), req)
	if err != nil {
		h.log.Error("create topup session failed", "error", err)
		http.Error(w, `{"error":"checkout failed"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"session": session})
}

// --- POST /api/v1/wallet/topup/complete ---

func (h *Handler) TopUpComplete(w http.ResponseWriter, r *http.Request) {
	customerID := middleware.SubjectFromCtx(r.Context())
	var body struct {
		SessionID  string `json:"session_id"`
		PaymentRef string `json:"payment_ref"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	amount, err := h.gateway.VerifyPayment(r.Context(), body.SessionID, body.PaymentRef)
	if err != nil {
		http.Error(w, `{"error":"payment verification failed"}`, http.StatusBadRequest)
		return
	}

	tx, err := h.pool.Begin(r.Context())
	if err != nil {
		h.log.Error("begin topup tx", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	defer tx.Rollback(r.Context())

	if err := h.ledger.TopUpWallet(r.Context(), tx, customerID, amount, body.PaymentRef); err != nil {
		if errors.Is(err, ledger.ErrInvalidAmount) {
			http.Error(w, `{"error":"amount below minimum top-up"}`, http.StatusBadRequest)
			return
		}
		h.log.Error("topup failed", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	if err := tx.Commit(r.Context()); err != nil {
		h.log.Error("commit topup tx", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"credited_cents": amount})
}

// --- GET /api/v1/wallet/transactions ---

func (h *Handler) ListWalletTransactions(w http.ResponseWriter, r *http.Request) {
	customerID := middleware.SubjectFromCtx(r.Context())
	txs, err := h.wallet.ListByCustomer(r.Context(), customerID)
	if err != nil {
		h.log.Error("list wallet transactions failed", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	if txs == nil {
		txs = []*models.WalletTransaction{}
	}
	writeJSON(w, http.StatusOK, txs)
}

// --- POST /api/v1/credits/purchase ---

func (h *Handler) PurchaseCredits(w http.ResponseWriter, r *http.Request) {
	customerID := middleware.SubjectFromCtx(r.Context())
	var body struct {
		Quantity int `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}

	tx, err := h.pool.Begin(r.Context())
	if err != nil {
		h.log.Error("begin purchase tx", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	defer tx.Rollback(r.Context())

	entry, err := h.ledger.PurchaseCredits(r.Context(), tx, customerID, body.Quantity)
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrInvalidQuantity):
			http.Error(w, `{"error":"quantity must be positive"}`, http.StatusBadRequest)
		case writeShortfall(w, err):
		default:
			h.log.Error("purchase credits failed", "error", err)
			http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		}
		return
	}
	if err := tx.Commit(r.Context()); err != nil {
		h.log.Error("commit purchase tx", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

// --- GET /api/v1/credit-ledger ---

func (h *Handler) ListCreditLedger(w http.ResponseWriter, r *http.Request) {
	customerID := middleware.SubjectFromCtx(r.Context())
	entries, err := h.credits.ListByCustomer(r.Context(), customerID)
	if err != nil {
		h.log.Error("list credit ledger failed", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []*models.CreditLedgerEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// --- POST /api/v1/subscription/renew ---

func (h *Handler) RenewSubscription(w http.ResponseWriter, r *http.Request) {
	customerID := middleware.SubjectFromCtx(r.Context())

	tx, err := h.pool.Begin(r.Context())
	if err != nil {
		h.log.Error("begin renew tx", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	defer tx.Rollback(r.Context())

	if err := h.ledger.RenewSubscription(r.Context(), tx, customerID); err != nil {
		switch {
		case errors.Is(err, ledger.ErrUnknownPlan):
			http.Error(w, `{"error":"no renewable plan"}`, http.StatusBadRequest)
		case writeShortfall(w, err):
		default:
			h.log.Error("renew subscription failed", "error", err)
			http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		}
		return
	}
	if err := tx.Commit(r.Context()); err != nil {
		h.log.Error("commit renew tx", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "renewed"})
}

// --- GET /api/v1/projects ---

func (h *Handler) ListProjects(w http.ResponseWriter, r *http.Request) {
	customerID := middleware.SubjectFromCtx(r.Context())
	projects, err := h.projects.ListByCustomer(r.Context(), customerID)
	if err != nil {
		h.log.Error("list projects failed", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	if projects == nil {
		projects = []*models.Project{}
	}
	writeJSON(w, http.StatusOK, projects)
}

// --- POST /api/v1/projects ---

func (h *Handler) CreateProject(w http.ResponseWriter, r *http.Request) {
	customerID := middleware.SubjectFromCtx(r.Context())
	var body struct {
		TemplateID string `json:"template_id"`
		Name       string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	templateID, err := uuid.Parse(body.TemplateID)
	if err != nil {
		http.Error(w, `{"error":"invalid template_id"}`, http.StatusBadRequest)
		return
	}

	tx, err := h.pool.Begin(r.Context())
	if err != nil {
		h.log.Error("begin project tx", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	defer tx.Rollback(r.Context())

	project, err := h.workflows.CreateProject(r.Context(), tx, customerID, templateID, body.Name)
	if err != nil {
		switch {
		case errors.Is(err, workflow.ErrPlanLimitReached):
			http.Error(w, `{"error":"project limit reached for plan"}`, http.StatusForbidden)
		case errors.Is(err, workflow.ErrTemplateNotAllowed):
			http.Error(w, `{"error":"template not available on plan"}`, http.StatusForbidden)
		default:
			h.log.Error("create project failed", "error", err)
			http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		}
		return
	}
	if err := tx.Commit(r.Context()); err != nil {
		h.log.Error("commit project tx", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, project)
}

// --- DELETE /api/v1/projects/{id} ---

func (h *Handler) DeleteProject(w http.ResponseWriter, r *http.Request) {
	customerID := middleware.SubjectFromCtx(r.Context())
	projectID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, `{"error":"invalid project id"}`, http.StatusBadRequest)
		return
	}

	tx, err := h.pool.Begin(r.Context())
	if err != nil {
		h.log.Error("begin delete tx", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	defer tx.Rollback(r.Context())

	if err := h.workflows.DeleteProject(r.Context(), tx, customerID, projectID); err != nil {
		if errors.Is(err, workflow.ErrProjectNotFound) {
			http.Error(w, `{"error":"project not found"}`, http.StatusNotFound)
			return
		}
		h.log.Error("delete project failed", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	if err := tx.Commit(r.Context()); err != nil {
		h.log.Error("commit delete tx", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- POST /api/v1/projects/{id}/run ---

func (h *Handler) RunWorkflow(w http.ResponseWriter, r *http.Request) {
	customerID := middleware.SubjectFromCtx(r.Context())
	projectID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, `{"error":"invalid project id"}`, http.StatusBadRequest)
		return
	}
	var body struct {
		Workflow string          `json:"workflow"`
		Input    json.RawMessage `json:"input"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}

	tx, err := h.pool.Begin(r.Context())
	if err != nil {
		h.log.Error("begin run tx", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	defer tx.Rollback(r.Context())

	run, err := h.workflows.RunWorkflow(r.Context(), tx, customerID, projectID, body.Workflow, body.Input)
	if err != nil {
		switch {
		case errors.Is(err, workflow.ErrProjectNotFound):
			http.Error(w, `{"error":"project not found"}`, http.StatusNotFound)
		case errors.Is(err, workflow.ErrSubscriptionExpired):
			http.Error(w, `{"error":"subscription expired"}`, http.StatusPaymentRequired)
		case errors.Is(err, workflow.ErrRunLimitReached):
			http.Error(w, `{"error":"workflow run limit reached"}`, http.StatusTooManyRequests)
		case errors.Is(err, ledger.ErrInsufficientCredits):
			http.Error(w, `{"error":"insufficient AI credits"}`, http.StatusPaymentRequired)
		default:
			h.log.Error("run workflow failed", "error", err)
			http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		}
		return
	}
	if err := tx.Commit(r.Context()); err != nil {
		h.log.Error("commit run tx", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	metrics.ObserveWorkflowRun(run.Status, run.Simulated, run.CreditsDeducted)
	writeJSON(w, http.StatusCreated, run)
}

// --- GET /api/v1/runs ---

func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	customerID := middleware.SubjectFromCtx(r.Context())
	runs, err := h.runs.ListByCustomer(r.Context(), customerID)
	if err != nil {
		h.log.Error("list runs failed", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []*models.WorkflowRun{}
	}
	writeJSON(w, http.StatusOK, runs)
}

// --- GET /api/v1/tasks ---

func (h *Handler) ListTasks(w http.ResponseWriter, r *http.Request) {
	customerID := middleware.SubjectFromCtx(r.Context())
	list, err := h.taskRepo.ListByCustomer(r.Context(), customerID)
	if err != nil {
		h.log.Error("list tasks failed", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []*models.Task{}
	}
	writeJSON(w, http.StatusOK, list)
}

// --- POST /api/v1/tasks ---

type createTaskRequest struct {
	Title        string      `json:"title"`
	Description  string      `json:"description"`
	Priority     string      `json:"priority"`
	ProjectID    *uuid.UUID  `json:"project_id"`
	DueDate      *time.Time  `json:"due_date"`
	Dependencies []uuid.UUID `json:"dependencies"`
}

func (h *Handler) CreateTask(w http.ResponseWriter, r *http.Request) {
	customerID := middleware.SubjectFromCtx(r.Context())
	var req createTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}

	tx, err := h.pool.Begin(r.Context())
	if err != nil {
		h.log.Error("begin task tx", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	defer tx.Rollback(r.Context())

	task, err := h.tasks.CreateTask(r.Context(), tx, customerID, &models.Task{
		Title:        req.Title,
		Description:  req.Description,
		Priority:     req.Priority,
		ProjectID:    req.ProjectID,
		DueDate:      req.DueDate,
		Dependencies: req.Dependencies,
	})
	if err != nil {
		if errors.Is(err, tasks.ErrMissingTitle) || errors.Is(err, tasks.ErrInvalidStatus) {
			http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusBadRequest)
			return
		}
		h.log.Error("create task failed", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	if err := tx.Commit(r.Context()); err != nil {
		h.log.Error("commit task tx", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

// --- PATCH /api/v1/tasks/{id} ---

func (h *Handler) UpdateTask(w http.ResponseWriter, r *http.Request) {
	customerID := middleware.SubjectFromCtx(r.Context())
	taskID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, `{"error":"invalid task id"}`, http.StatusBadRequest)
		return
	}
	var body struct {
		Title        *string     `json:"title"`
		Description  *string     `json:"description"`
		Status       *string     `json:"status"`
		Priority     *string     `json:"priority"`
		DueDate      *time.Time  `json:"due_date"`
		Dependencies []uuid.UUID `json:"dependencies"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}

	tx, err := h.pool.Begin(r.Context())
	if err != nil {
		h.log.Error("begin task tx", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	defer tx.Rollback(r.Context())

	task, err := h.tasks.UpdateTask(r.Context(), tx, customerID, taskID, tasks.TaskUpdate{
		Title:        body.Title,
		Description:  body.Description,
		Status:       body.Status,
		Priority:     body.Priority,
		DueDate:      body.DueDate,
		Dependencies: body.Dependencies,
	})
	if err != nil {
		var blocked *tasks.TaskBlockedError
		switch {
		case errors.Is(err, tasks.ErrTaskNotFound):
			http.Error(w, `{"error":"task not found"}`, http.StatusNotFound)
		case errors.As(err, &blocked):
			writeJSON(w, http.StatusConflict, map[string]any{
				"error":    err.Error(),
				"blocking": blocked.Blocking,
			})
		case errors.Is(err, tasks.ErrInvalidStatus):
			http.Error(w, `{"error":"invalid status or priority"}`, http.StatusBadRequest)
		default:
			h.log.Error("update task failed", "error", err)
			http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		}
		return
	}
	if err := tx.Commit(r.Context()); err != nil {
		h.log.Error("commit task tx", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// --- DELETE /api/v1/tasks/{id} ---

func (h *Handler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	customerID := middleware.SubjectFromCtx(r.Context())
	taskID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, `{"error":"invalid task id"}`, http.StatusBadRequest)
		return
	}

	tx, err := h.pool.Begin(r.Context())
	if err != nil {
		h.log.Error("begin task tx", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	defer tx.Rollback(r.Context())

	if err := h.tasks.DeleteTask(r.Context(), tx, customerID, taskID); err != nil {
		if errors.Is(err, tasks.ErrTaskNotFound) {
			http.Error(w, `{"error":"task not found"}`, http.StatusNotFound)
			return
		}
		h.log.Error("delete task failed", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	if err := tx.Commit(r.Context()); err != nil {
		h.log.Error("commit task tx", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
