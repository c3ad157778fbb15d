package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/inflow/backend/internal/ledger"
	"github.com/inflow/backend/internal/models"
)

const customerColumns = `id, email, name, phone, whatsapp, address, city, pin, state, business_name, industry, gst_no, password_hash, plan_id, subscription_status, subscription_end_date, wallet_balance_cents, ai_credits, referral_code, onboarded_at, created_at, updated_at`

type CustomerRepo struct {
	pool *pgxpool.Pool
}

func NewCustomerRepo(pool *pgxpool.Pool) *CustomerRepo {
	return &CustomerRepo{pool: pool}
}

func scanCustomer(row pgx.Row) (*models.Customer, error) {
	var c models.Customer
	err := row.Scan(&c.ID, &c.Email, &c.Name, &c.Phone, &c.Whatsapp, &c.Address, &c.City, &c.Pin, &c.State, &c.BusinessName, &c.Industry, &c.GSTNo, &c.PasswordHash, &c.PlanID, &c.SubscriptionStatus, &c.SubscriptionEndDate, &c.WalletBalanceCents, &c.AICredits, &c.ReferralCode, &c.OnboardedAt, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *CustomerRepo) Create(ctx context.Context, c *models.Customer) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO customers (id, email, name, phone, whatsapp, address, city, pin, state, business_name, industry, gst_no, password_hash, plan_id, subscription_status, subscription_end_date, wallet_balance_cents, ai_credits, referral_code, onboarded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
		RETURNING created_at, updated_at
	`, c.ID, c.Email, c.Name, c.Phone, c.Whatsapp, c.Address, c.City, c.Pin, c.State, c.BusinessName, c.Industry, c.GSTNo, c.PasswordHash, c.PlanID, c.SubscriptionStatus, c.SubscriptionEndDate, c.WalletBalanceCents, c.AICredits, c.ReferralCode, c.OnboardedAt).Scan(&c.CreatedAt, &c.UpdatedAt)
}

func (r *CustomerRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Customer, error) {
	return scanCustomer(r.pool.QueryRow(ctx, `SELECT `+customerColumns+` FROM customers WHERE id = $1`, id))
}

// CountActiveSubscriptions counts customers whose subscription has not lapsed.
func (r *CustomerRepo) CountActiveSubscriptions(ctx context.Context) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT count(*) FROM customers
		WHERE subscription_status = $1 AND subscription_end_date > now()
	`, models.SubscriptionActive).Scan(&n)
	return n, err
}

func (r *CustomerRepo) GetByEmail(ctx context.Context, email string) (*models.Customer, error) {
	return scanCustomer(r.pool.QueryRow(ctx, `SELECT `+customerColumns+` FROM customers WHERE email = $1`, email))
}

// GetByIDForUpdate locks the customer row. Call within a transaction.
func (r *CustomerRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Customer, error) {
	return scanCustomer(tx.QueryRow(ctx, `SELECT `+customerColumns+` FROM customers WHERE id = $1 FOR UPDATE`, id))
}

// UpdateProfile saves the customer's editable onboarding and contact fields.
func (r *CustomerRepo) UpdateProfile(ctx context.Context, c *models.Customer) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE customers SET name = $2, phone = $3, whatsapp = $4, address = $5, city = $6, pin = $7, state = $8, business_name = $9, industry = $10, gst_no = $11, updated_at = now()
		WHERE id = $1
	`, c.ID, c.Name, c.Phone, c.Whatsapp, c.Address, c.City, c.Pin, c.State, c.BusinessName, c.Industry, c.GSTNo)
	return err
}

// MarkOnboarded stamps onboarded_at once; later calls keep the first stamp.
func (r *CustomerRepo) MarkOnboarded(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	_, err := tx.Exec(ctx, `
		UPDATE customers SET onboarded_at = COALESCE(onboarded_at, now()), updated_at = now() WHERE id = $1
	`, id)
	return err
}

// AddWalletBalance adds amountCents and returns the new balance.
func (r *CustomerRepo) AddWalletBalance(ctx context.Context, tx pgx.Tx, id uuid.UUID, amountCents int64) (newBalance int64, err error) {
	err = tx.QueryRow(ctx, `
		UPDATE customers SET wallet_balance_cents = wallet_balance_cents + $1, updated_at = now()
		WHERE id = $2
		RETURNING wallet_balance_cents
	`, amountCents, id).Scan(&newBalance)
	return newBalance, err
}

// DeductWalletBalance atomically deducts amountCents if the balance covers it.
func (r *CustomerRepo) DeductWalletBalance(ctx context.Context, tx pgx.Tx, id uuid.UUID, amountCents int64) (newBalance int64, err error) {
	err = tx.QueryRow(ctx, `
		UPDATE customers SET wallet_balance_cents = wallet_balance_cents - $1, updated_at = now()
		WHERE id = $2 AND wallet_balance_cents >= $1
		RETURNING wallet_balance_cents
	`, amountCents, id).Scan(&newBalance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ledger.ErrInsufficientFunds
	}
	return newBalance, err
}

// AddCredits adds AI credits and returns the new balance.
func (r *CustomerRepo) AddCredits(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount int) (newCredits int, err error) {
	err = tx.QueryRow(ctx, `
		UPDATE customers SET ai_credits = ai_credits + $1, updated_at = now()
		WHERE id = $2
		RETURNING ai_credits
	`, amount, id).Scan(&newCredits)
	return newCredits, err
}

// DeductCredits atomically deducts AI credits if the balance covers them.
func (r *CustomerRepo) DeductCredits(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount int) (newCredits int, err error) {
	err = tx.QueryRow(ctx, `
		UPDATE customers SET ai_credits = ai_credits - $1, updated_at = now()
		WHERE id = $2 AND ai_credits >= $1
		RETURNING ai_credits
	`, amount, id).Scan(&newCredits)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ledger.ErrInsufficientCredits
	}
	return newCredits, err
}

// SetSubscription sets the plan, status and end date in one statement.
func (r *CustomerRepo) SetSubscription(ctx context.Context, tx pgx.Tx, id uuid.UUID, planID, status string, endDate time.Time) error {
	_, err := tx.Exec(ctx, `
		UPDATE customers SET plan_id = $2, subscription_status = $3, subscription_end_date = $4, updated_at = now()
		WHERE id = $1
	`, id, planID, status, endDate)
	return err
}
