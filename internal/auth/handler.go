package auth

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
)

type RegisterRequest struct {
	Email        string `json:"email"`
	Password     string `json:"password"`
	Name         string `json:"name"`
	Phone        string `json:"phone"`
	ReferralCode string `json:"referral_code"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token string      `json:"token"`
	User  interface{} `json:"user"`
}

type Handler struct {
	svc Service
	log *slog.Logger
}

func NewHandler(svc Service, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, log: log}
}

// Register handles POST /api/v1/auth/register. A referral code may arrive in
// the body or as a ?ref= query parameter; the query wins.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if ref := r.URL.Query().Get("ref"); ref != "" {
		req.ReferralCode = ref
	}
	if req.Email == "" || req.Password == "" || req.Name == "" {
		http.Error(w, `{"error":"email, password and name are required"}`, http.StatusBadRequest)
		return
	}
	if len(req.Password) < 8 {
		http.Error(w, `{"error":"password must be at least 8 characters"}`, http.StatusBadRequest)
		return
	}
	cust, err := h.svc.RegisterCustomer(r.Context(), req.Email, req.Password, req.Name, req.Phone, req.ReferralCode)
	if err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			http.Error(w, `{"error":"email already registered"}`, http.StatusConflict)
			return
		}
		h.log.Error("register failed", "error", err)
		http.Error(w, `{"error":"registration failed"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, cust)
}

// Login handles POST /api/v1/auth/login for customers.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	token, cust, err := h.svc.LoginCustomer(r.Context(), req.Email, req.Password)
	if err != nil {
		http.Error(w, `{"error":"invalid credentials"}`, http.StatusUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, LoginResponse{Token: token, User: cust})
}

// LoginPartner handles POST /api/v1/auth/partner/login.
func (h *Handler) LoginPartner(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	token, partner, err := h.svc.LoginPartner(r.Context(), req.Email, req.Password)
	if err != nil {
		http.Error(w, `{"error":"invalid credentials"}`, http.StatusUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, LoginResponse{Token: token, User: partner})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
