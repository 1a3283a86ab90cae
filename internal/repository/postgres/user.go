package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"campusride/internal/domain"
	"campusride/internal/repository"
)

// UserRepository implements repository.UserRepository using PostgreSQL.
type UserRepository struct {
	q Querier
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{q: db}
}

// NewUserRepositoryWithTx creates a user repository using a transaction.
func NewUserRepositoryWithTx(tx *sql.Tx) *UserRepository {
	return &UserRepository{q: tx}
}

// Upsert creates the user or updates profile and payment references.
func (r *UserRepository) Upsert(ctx context.Context, user *domain.User) error {
	query := `
		INSERT INTO users (id, email, name, stripe_customer_id, default_payment_method_id, connect_account_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE
		SET email = EXCLUDED.email,
			name = EXCLUDED.name,
			stripe_customer_id = COALESCE(EXCLUDED.stripe_customer_id, users.stripe_customer_id),
			default_payment_method_id = COALESCE(EXCLUDED.default_payment_method_id, users.default_payment_method_id),
			connect_account_id = COALESCE(EXCLUDED.connect_account_id, users.connect_account_id)
	`

	_, err := r.q.ExecContext(ctx, query,
		user.ID,
		user.Email,
		user.Name,
		nullString(user.StripeCustomerID),
		nullString(user.DefaultPaymentMethodID),
		nullString(user.ConnectAccountID),
		user.CreatedAt,
	)
	return err
}

// GetByID retrieves a user by ID.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	query := `
		SELECT id, email, name, phone, phone_verified,
			stripe_customer_id, default_payment_method_id, connect_account_id,
			cancellation_strike_count, strike_reset_date, rides_completed, created_at
		FROM users WHERE id = $1
	`

	var user domain.User
	var phone, customerID, paymentMethodID, connectID sql.NullString
	var resetDate sql.NullTime

	err := r.q.QueryRowContext(ctx, query, id).Scan(
		&user.ID,
		&user.Email,
		&user.Name,
		&phone,
		&user.PhoneVerified,
		&customerID,
		&paymentMethodID,
		&connectID,
		&user.CancellationStrikeCount,
		&resetDate,
		&user.RidesCompleted,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}

	user.Phone = phone.String
	user.StripeCustomerID = customerID.String
	user.DefaultPaymentMethodID = paymentMethodID.String
	user.ConnectAccountID = connectID.String
	user.StrikeResetDate = timeOrZero(resetDate)

	return &user, nil
}

// SetPhone stores a verified phone number.
func (r *UserRepository) SetPhone(ctx context.Context, id, phone string) error {
	query := `UPDATE users SET phone = $1, phone_verified = TRUE WHERE id = $2`

	ok, err := affectedOne(r.q.ExecContext(ctx, query, phone, id))
	if err != nil {
		return err
	}
	if !ok {
		return repository.ErrNotFound
	}
	return nil
}

// RecordStrike increments the cancellation strike count and returns the new value.
func (r *UserRepository) RecordStrike(ctx context.Context, id string, now, nextReset time.Time) (int, error) {
	query := `
		UPDATE users
		SET cancellation_strike_count = CASE
				WHEN strike_reset_date IS NOT NULL AND strike_reset_date <= $2 THEN 1
				ELSE cancellation_strike_count + 1
			END,
			strike_reset_date = CASE
				WHEN $3::timestamptz IS NULL THEN strike_reset_date
				WHEN strike_reset_date IS NULL OR strike_reset_date <= $2 THEN $3::timestamptz
				ELSE strike_reset_date
			END
		WHERE id = $1
		RETURNING cancellation_strike_count
	`

	var count int
	err := r.q.QueryRowContext(ctx, query, id, now, nullTime(nextReset)).Scan(&count)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, repository.ErrNotFound
		}
		return 0, err
	}

	return count, nil
}

// IncrementRidesCompleted bumps the completed rides statistic.
func (r *UserRepository) IncrementRidesCompleted(ctx context.Context, id string) error {
	query := `UPDATE users SET rides_completed = rides_completed + 1 WHERE id = $1`

	ok, err := affectedOne(r.q.ExecContext(ctx, query, id))
	if err != nil {
		return err
	}
	if !ok {
		return repository.ErrNotFound
	}
	return nil
}

// Ensure UserRepository implements repository.UserRepository.
var _ repository.UserRepository = (*UserRepository)(nil)
