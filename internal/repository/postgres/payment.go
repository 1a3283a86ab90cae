package postgres

import (
	"context"
	"database/sql"
	"errors"

	"campusride/internal/domain"
	"campusride/internal/repository"
)

// PaymentRepository is a PostgreSQL implementation of repository.PaymentRepository.
type PaymentRepository struct {
	q Querier
}

// NewPaymentRepository creates a new PostgreSQL payment repository.
func NewPaymentRepository(db *sql.DB) *PaymentRepository {
	return &PaymentRepository{q: db}
}

// Create persists a new payment record.
func (r *PaymentRepository) Create(ctx context.Context, record *domain.PaymentRecord) error {
	query := `
		INSERT INTO payment_records (
			id, ride_request_id, ride_id, user_id, kind, amount_cents, fee_cents,
			intent_ref, succeeded, error, idempotency_key, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := r.q.ExecContext(ctx, query,
		record.ID,
		nullString(record.RideRequestID),
		nullString(record.RideID),
		nullString(record.UserID),
		record.Kind,
		record.AmountCents,
		record.FeeCents,
		nullString(record.IntentRef),
		record.Succeeded,
		nullString(record.Error),
		nullString(record.IdempotencyKey),
		record.CreatedAt,
	)
	if isUniqueViolation(err) {
		return repository.ErrConflict
	}

	return err
}

// GetByIdempotencyKey retrieves a successful record by its idempotency key.
// Returns nil if no such record exists.
func (r *PaymentRepository) GetByIdempotencyKey(ctx context.Context, key string) (*domain.PaymentRecord, error) {
	query := `
		SELECT id, ride_request_id, ride_id, user_id, kind, amount_cents, fee_cents,
			intent_ref, succeeded, error, idempotency_key, created_at
		FROM payment_records
		WHERE idempotency_key = $1 AND succeeded
	`

	record, err := scanPaymentRecord(r.q.QueryRowContext(ctx, query, key))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	return record, nil
}

// ListByRideRequest retrieves the records of a ride request, oldest first.
func (r *PaymentRepository) ListByRideRequest(ctx context.Context, rideRequestID string) ([]*domain.PaymentRecord, error) {
	query := `
		SELECT id, ride_request_id, ride_id, user_id, kind, amount_cents, fee_cents,
			intent_ref, succeeded, error, idempotency_key, created_at
		FROM payment_records
		WHERE ride_request_id = $1
		ORDER BY created_at ASC
	`

	rows, err := r.q.QueryContext(ctx, query, rideRequestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*domain.PaymentRecord
	for rows.Next() {
		record, err := scanPaymentRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

func scanPaymentRecord(row rowScanner) (*domain.PaymentRecord, error) {
	var record domain.PaymentRecord
	var requestID, rideID, userID, intentRef, errMsg, key sql.NullString

	err := row.Scan(
		&record.ID,
		&requestID,
		&rideID,
		&userID,
		&record.Kind,
		&record.AmountCents,
		&record.FeeCents,
		&intentRef,
		&record.Succeeded,
		&errMsg,
		&key,
		&record.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	record.RideRequestID = requestID.String
	record.RideID = rideID.String
	record.UserID = userID.String
	record.IntentRef = intentRef.String
	record.Error = errMsg.String
	record.IdempotencyKey = key.String

	return &record, nil
}

// Ensure PaymentRepository implements repository.PaymentRepository.
var _ repository.PaymentRepository = (*PaymentRepository)(nil)
