package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"

	"campusride/internal/domain"
	"campusride/internal/repository"
)

const rideRequestColumns = `
	id, ride_id, passenger_id, status, message,
	payment_intent_id, payment_amount_cents, payment_status,
	checkin_baggage, personal_baggage, authorized_at, created_at, updated_at`

// RideRequestRepository is a PostgreSQL implementation of repository.RideRequestRepository.
type RideRequestRepository struct {
	q Querier
}

// NewRideRequestRepository creates a new PostgreSQL ride request repository.
func NewRideRequestRepository(db *sql.DB) *RideRequestRepository {
	return &RideRequestRepository{q: db}
}

// NewRideRequestRepositoryWithTx creates a ride request repository using a transaction.
func NewRideRequestRepositoryWithTx(tx *sql.Tx) *RideRequestRepository {
	return &RideRequestRepository{q: tx}
}

// Create persists a new ride request.
func (r *RideRequestRepository) Create(ctx context.Context, req *domain.RideRequest) error {
	query := `
		INSERT INTO ride_requests (
			id, ride_id, passenger_id, status, message,
			payment_intent_id, payment_amount_cents, payment_status,
			checkin_baggage, personal_baggage, authorized_at, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err := r.q.ExecContext(ctx, query,
		req.ID,
		req.RideID,
		req.PassengerID,
		req.Status,
		req.Message,
		nullString(req.PaymentIntentID),
		req.PaymentAmountCents,
		req.PaymentStatus,
		req.CheckInBaggage,
		req.PersonalBaggage,
		nullTime(req.AuthorizedAt),
		req.CreatedAt,
		req.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return repository.ErrConflict
	}

	return err
}

// GetByID retrieves a ride request by ID.
func (r *RideRequestRepository) GetByID(ctx context.Context, id string) (*domain.RideRequest, error) {
	query := `SELECT` + rideRequestColumns + ` FROM ride_requests WHERE id = $1`

	req, err := scanRideRequest(r.q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}

	return req, nil
}

// ListByRide retrieves the requests of a ride, optionally filtered by status.
func (r *RideRequestRepository) ListByRide(ctx context.Context, rideID string, statuses ...domain.RequestStatus) ([]*domain.RideRequest, error) {
	query := `SELECT` + rideRequestColumns + `
		FROM ride_requests
		WHERE ride_id = $1 AND ($2::text[] IS NULL OR status = ANY($2))
		ORDER BY created_at ASC
	`

	var filter []string
	for _, s := range statuses {
		filter = append(filter, string(s))
	}

	return r.list(ctx, query, rideID, pq.Array(filter))
}

// FindLive returns the pending or approved request of a passenger on a ride.
// Returns nil if none exists.
func (r *RideRequestRepository) FindLive(ctx context.Context, rideID, passengerID string) (*domain.RideRequest, error) {
	query := `SELECT` + rideRequestColumns + `
		FROM ride_requests
		WHERE ride_id = $1 AND passenger_id = $2 AND status IN ('pending', 'approved')
		ORDER BY created_at DESC
		LIMIT 1
	`

	req, err := scanRideRequest(r.q.QueryRowContext(ctx, query, rideID, passengerID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	return req, nil
}

// ListStaleAuthorized retrieves requests still holding an authorization taken before the cutoff.
func (r *RideRequestRepository) ListStaleAuthorized(ctx context.Context, cutoff time.Time) ([]*domain.RideRequest, error) {
	query := `SELECT` + rideRequestColumns + `
		FROM ride_requests
		WHERE payment_status = 'authorized' AND authorized_at < $1
		ORDER BY authorized_at ASC
	`

	return r.list(ctx, query, cutoff)
}

// TransitionStatus moves a request from one status to another.
func (r *RideRequestRepository) TransitionStatus(ctx context.Context, id string, from, to domain.RequestStatus) (bool, error) {
	query := `UPDATE ride_requests SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3`

	ok, err := affectedOne(r.q.ExecContext(ctx, query, to, id, from))
	if isUniqueViolation(err) {
		return false, repository.ErrConflict
	}

	return ok, err
}

// SetPaymentStatus records the escrow state of a request.
func (r *RideRequestRepository) SetPaymentStatus(ctx context.Context, id string, status domain.PaymentStatus) error {
	query := `UPDATE ride_requests SET payment_status = $1, updated_at = NOW() WHERE id = $2`

	ok, err := affectedOne(r.q.ExecContext(ctx, query, status, id))
	if err != nil {
		return err
	}
	if !ok {
		return repository.ErrNotFound
	}

	return nil
}

func (r *RideRequestRepository) list(ctx context.Context, query string, args ...any) ([]*domain.RideRequest, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var requests []*domain.RideRequest
	for rows.Next() {
		req, err := scanRideRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, req)
	}
	return requests, rows.Err()
}

func scanRideRequest(row rowScanner) (*domain.RideRequest, error) {
	var req domain.RideRequest
	var intentID sql.NullString
	var authorizedAt sql.NullTime

	err := row.Scan(
		&req.ID,
		&req.RideID,
		&req.PassengerID,
		&req.Status,
		&req.Message,
		&intentID,
		&req.PaymentAmountCents,
		&req.PaymentStatus,
		&req.CheckInBaggage,
		&req.PersonalBaggage,
		&authorizedAt,
		&req.CreatedAt,
		&req.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	req.PaymentIntentID = intentID.String
	req.AuthorizedAt = timeOrZero(authorizedAt)

	return &req, nil
}

// Ensure RideRequestRepository implements repository.RideRequestRepository.
var _ repository.RideRequestRepository = (*RideRequestRepository)(nil)
