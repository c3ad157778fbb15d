package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/crypto/bcrypt"

	"github.com/inflow/backend/internal/models"
)

// Token roles.
const (
	RoleCustomer = "customer"
	RolePartner  = "partner"
)

var (
	// ErrDuplicateEmail is returned when registering an email that already exists.
	ErrDuplicateEmail = errors.New("email already registered")
	// ErrInvalidCredentials is returned for a bad email/password pair.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// CustomerStore is the customer subset the auth service needs.
type CustomerStore interface {
	Create(ctx context.Context, c *models.Customer) error
	GetByEmail(ctx context.Context, email string) (*models.Customer, error)
}

// PartnerStore is the partner subset the auth service needs.
type PartnerStore interface {
	GetByEmail(ctx context.Context, email string) (*models.Partner, error)
}

type Service interface {
	RegisterCustomer(ctx context.Context, email, password, name, phone, referralCode string) (*models.Customer, error)
	LoginCustomer(ctx context.Context, email, password string) (string, *models.Customer, error)
	LoginPartner(ctx context.Context, email, password string) (string, *models.Partner, error)
	ValidateToken(token string) (uuid.UUID, string, error)
}

type service struct {
	customers CustomerStore
	partners  PartnerStore
	secret    []byte
	tokenTTL  time.Duration
}

// NewService creates an auth service signing HS256 tokens with secret.
func NewService(customers CustomerStore, partners PartnerStore, secret string) *service {
	return &service{
		customers: customers,
		partners:  partners,
		secret:    []byte(secret),
		tokenTTL:  24 * time.Hour,
	}
}

var _ Service = (*service)(nil)

type claims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

// RegisterCustomer creates a customer on the free plan. A referral code, from
// the ?ref= query or the body, is stored as-is; commission is applied only
// when the first checkout completes.
func (s *service) RegisterCustomer(ctx context.Context, email, password, name, phone, referralCode string) (*models.Customer, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	c := &models.Customer{
		ID:                 uuid.New(),
		Email:              strings.ToLower(strings.TrimSpace(email)),
		Name:               name,
		Phone:              phone,
		PasswordHash:       string(hash),
		PlanID:             "free",
		SubscriptionStatus: models.SubscriptionExpired,
		ReferralCode:       strings.TrimSpace(referralCode),
	}
	if err := s.customers.Create(ctx, c); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrDuplicateEmail
		}
		return nil, err
	}
	return c, nil
}

func (s *service) LoginCustomer(ctx context.Context, email, password string) (string, *models.Customer, error) {
	c, err := s.customers.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return "", nil, ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(c.PasswordHash), []byte(password)) != nil {
		return "", nil, ErrInvalidCredentials
	}
	tok, err := s.issueToken(c.ID, RoleCustomer)
	return tok, c, err
}

func (s *service) LoginPartner(ctx context.Context, email, password string) (string, *models.Partner, error) {
	p, err := s.partners.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return "", nil, ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(p.PasswordHash), []byte(password)) != nil {
		return "", nil, ErrInvalidCredentials
	}
	tok, err := s.issueToken(p.ID, RolePartner)
	return tok, p, err
}

func (s *service) issueToken(subject uuid.UUID, role string) (string, error) {
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject.String(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(s.tokenTTL)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		Role: role,
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	return tok.SignedString(s.secret)
}

// ValidateToken returns the subject id and role of a valid bearer token.
func (s *service) ValidateToken(token string) (uuid.UUID, string, error) {
	tok, err := jwt.ParseWithClaims(token, &claims{}, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil {
		return uuid.Nil, "", err
	}
	c, ok := tok.Claims.(*claims)
	if !ok || !tok.Valid {
		return uuid.Nil, "", errors.New("invalid token")
	}
	id, err := uuid.Parse(c.Subject)
	if err != nil {
		return uuid.Nil, "", err
	}
	return id, c.Role, nil
}

// HashPassword is used when admins provision partner accounts.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(hash), err
}
