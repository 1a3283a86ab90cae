package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"campusride/internal/domain"
	"campusride/internal/repository"
)

const rideColumns = `
	id, driver_id, ride_type, origin_city, origin_area, destination_city, destination_area,
	departure_at, arrival_at, seats_total, seats_left,
	checkin_baggage_total, checkin_baggage_left, personal_baggage_total, personal_baggage_left,
	price_cents, gender_preference, vehicle,
	is_started, started_at, is_completed, completed_at,
	is_cancelled, cancelled_by, cancelled_at, cancellation_reason,
	start_verification_code, verification_code, version, created_at`

// RideRepository is a PostgreSQL implementation of repository.RideRepository.
type RideRepository struct {
	q Querier
}

// NewRideRepository creates a new PostgreSQL ride repository.
func NewRideRepository(db *sql.DB) *RideRepository {
	return &RideRepository{q: db}
}

// NewRideRepositoryWithTx creates a ride repository using a transaction.
func NewRideRepositoryWithTx(tx *sql.Tx) *RideRepository {
	return &RideRepository{q: tx}
}

// Create persists a new ride.
func (r *RideRepository) Create(ctx context.Context, ride *domain.Ride) error {
	query := `
		INSERT INTO rides (
			id, driver_id, ride_type, origin_city, origin_area, destination_city, destination_area,
			departure_at, arrival_at, seats_total, seats_left,
			checkin_baggage_total, checkin_baggage_left, personal_baggage_total, personal_baggage_left,
			price_cents, gender_preference, vehicle, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
	`

	_, err := r.q.ExecContext(ctx, query,
		ride.ID,
		ride.DriverID,
		ride.RideType,
		ride.OriginCity,
		ride.OriginArea,
		ride.DestinationCity,
		ride.DestinationArea,
		ride.DepartureAt,
		ride.ArrivalAt,
		ride.SeatsTotal,
		ride.SeatsLeft,
		ride.CheckInBaggageTotal,
		ride.CheckInBaggageLeft,
		ride.PersonalBaggageTotal,
		ride.PersonalBaggageLeft,
		ride.PriceCents,
		ride.GenderPreference,
		ride.Vehicle,
		ride.CreatedAt,
	)

	return err
}

// GetByID retrieves a ride by ID.
func (r *RideRepository) GetByID(ctx context.Context, id string) (*domain.Ride, error) {
	query := `SELECT` + rideColumns + ` FROM rides WHERE id = $1`

	ride, err := scanRide(r.q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}

	return ride, nil
}

// GetForUpdate retrieves a ride and takes its row lock.
func (r *RideRepository) GetForUpdate(ctx context.Context, id string) (*domain.Ride, error) {
	query := `SELECT` + rideColumns + ` FROM rides WHERE id = $1 FOR UPDATE`

	ride, err := scanRide(r.q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}

	return ride, nil
}

// GetAll retrieves upcoming rides, most recent departure first.
func (r *RideRepository) GetAll(ctx context.Context) ([]*domain.Ride, error) {
	query := `SELECT` + rideColumns + `
		FROM rides
		WHERE NOT is_cancelled AND NOT is_completed AND departure_at > NOW()
		ORDER BY departure_at ASC LIMIT 100
	`

	rows, err := r.q.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rides []*domain.Ride
	for rows.Next() {
		ride, err := scanRide(rows)
		if err != nil {
			return nil, err
		}
		rides = append(rides, ride)
	}
	return rides, rows.Err()
}

// ReserveCapacity atomically takes one seat and the given baggage.
// The WHERE clause is re-evaluated under the row lock, so two concurrent
// reservations for the last seat cannot both succeed.
func (r *RideRepository) ReserveCapacity(ctx context.Context, rideID string, b domain.Baggage) (int, error) {
	query := `
		UPDATE rides
		SET seats_left = seats_left - 1,
			checkin_baggage_left = checkin_baggage_left - $2,
			personal_baggage_left = personal_baggage_left - $3,
			version = version + 1
		WHERE id = $1
			AND NOT is_cancelled AND NOT is_started AND NOT is_completed
			AND seats_left > 0
			AND checkin_baggage_left >= $2
			AND personal_baggage_left >= $3
		RETURNING seats_left
	`

	var seatsLeft int
	err := r.q.QueryRowContext(ctx, query, rideID, b.CheckIn, b.Personal).Scan(&seatsLeft)
	if err == nil {
		return seatsLeft, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}

	// Nothing updated: work out which guard failed.
	var current int
	var closed bool
	err = r.q.QueryRowContext(ctx,
		`SELECT seats_left, is_cancelled OR is_started OR is_completed FROM rides WHERE id = $1`,
		rideID,
	).Scan(&current, &closed)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, repository.ErrNotFound
		}
		return 0, err
	}
	if closed {
		return 0, repository.ErrConflict
	}
	if current <= 0 {
		return 0, domain.ErrNoSeatsLeft
	}
	return 0, domain.ErrBaggageCapacity
}

// ReleaseCapacity gives back one seat and the given baggage, clamped to the totals.
func (r *RideRepository) ReleaseCapacity(ctx context.Context, rideID string, b domain.Baggage) error {
	query := `
		UPDATE rides
		SET seats_left = LEAST(seats_total, seats_left + 1),
			checkin_baggage_left = LEAST(checkin_baggage_total, checkin_baggage_left + $2),
			personal_baggage_left = LEAST(personal_baggage_total, personal_baggage_left + $3),
			version = version + 1
		WHERE id = $1
	`

	return r.expectOne(r.q.ExecContext(ctx, query, rideID, b.CheckIn, b.Personal))
}

// SetStartCode stores the start verification code on a ride that has not started.
func (r *RideRepository) SetStartCode(ctx context.Context, rideID, code string) error {
	query := `
		UPDATE rides
		SET start_verification_code = $2, version = version + 1
		WHERE id = $1 AND NOT is_started AND NOT is_cancelled AND NOT is_completed
	`

	return r.expectOne(r.q.ExecContext(ctx, query, rideID, code))
}

// SetCompletionCode stores the completion code on a started, unfinished ride.
func (r *RideRepository) SetCompletionCode(ctx context.Context, rideID, code string) error {
	query := `
		UPDATE rides
		SET verification_code = $2, version = version + 1
		WHERE id = $1 AND is_started AND NOT is_cancelled AND NOT is_completed
	`

	return r.expectOne(r.q.ExecContext(ctx, query, rideID, code))
}

// ConsumeStartCode marks the ride started if code matches, clearing it.
func (r *RideRepository) ConsumeStartCode(ctx context.Context, rideID, code string, at time.Time) (bool, error) {
	query := `
		UPDATE rides
		SET is_started = TRUE, started_at = $3, start_verification_code = NULL, version = version + 1
		WHERE id = $1 AND start_verification_code = $2
			AND NOT is_started AND NOT is_cancelled AND NOT is_completed
	`

	return affectedOne(r.q.ExecContext(ctx, query, rideID, code, at))
}

// ConsumeCompletionCode marks the ride completed if code matches, clearing it.
func (r *RideRepository) ConsumeCompletionCode(ctx context.Context, rideID, code string, at time.Time) (bool, error) {
	query := `
		UPDATE rides
		SET is_completed = TRUE, completed_at = $3, verification_code = NULL, version = version + 1
		WHERE id = $1 AND verification_code = $2
			AND is_started AND NOT is_cancelled AND NOT is_completed
	`

	return affectedOne(r.q.ExecContext(ctx, query, rideID, code, at))
}

// MarkCancelled soft-cancels a ride that has not started or completed.
func (r *RideRepository) MarkCancelled(ctx context.Context, rideID string, by domain.ActorRole, reason string, at time.Time) (bool, error) {
	query := `
		UPDATE rides
		SET is_cancelled = TRUE, cancelled_by = $2, cancellation_reason = $3, cancelled_at = $4,
			start_verification_code = NULL, verification_code = NULL, version = version + 1
		WHERE id = $1 AND NOT is_cancelled AND NOT is_started AND NOT is_completed
	`

	return affectedOne(r.q.ExecContext(ctx, query, rideID, by, nullString(reason), at))
}

func (r *RideRepository) expectOne(result sql.Result, err error) error {
	ok, err := affectedOne(result, err)
	if err != nil {
		return err
	}
	if !ok {
		return repository.ErrConflict
	}
	return nil
}

func affectedOne(result sql.Result, err error) (bool, error) {
	if err != nil {
		return false, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return rowsAffected == 1, nil
}

func scanRide(row rowScanner) (*domain.Ride, error) {
	var ride domain.Ride
	var startedAt, completedAt, cancelledAt sql.NullTime
	var cancelledBy, cancelReason, startCode, completionCode sql.NullString

	err := row.Scan(
		&ride.ID,
		&ride.DriverID,
		&ride.RideType,
		&ride.OriginCity,
		&ride.OriginArea,
		&ride.DestinationCity,
		&ride.DestinationArea,
		&ride.DepartureAt,
		&ride.ArrivalAt,
		&ride.SeatsTotal,
		&ride.SeatsLeft,
		&ride.CheckInBaggageTotal,
		&ride.CheckInBaggageLeft,
		&ride.PersonalBaggageTotal,
		&ride.PersonalBaggageLeft,
		&ride.PriceCents,
		&ride.GenderPreference,
		&ride.Vehicle,
		&ride.IsStarted,
		&startedAt,
		&ride.IsCompleted,
		&completedAt,
		&ride.IsCancelled,
		&cancelledBy,
		&cancelledAt,
		&cancelReason,
		&startCode,
		&completionCode,
		&ride.Version,
		&ride.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	ride.StartedAt = timeOrZero(startedAt)
	ride.CompletedAt = timeOrZero(completedAt)
	ride.CancelledAt = timeOrZero(cancelledAt)
	ride.CancelledBy = domain.ActorRole(cancelledBy.String)
	ride.CancellationReason = cancelReason.String
	ride.StartVerificationCode = startCode.String
	ride.VerificationCode = completionCode.String

	return &ride, nil
}

// Ensure RideRepository implements repository.RideRepository.
var _ repository.RideRepository = (*RideRepository)(nil)
