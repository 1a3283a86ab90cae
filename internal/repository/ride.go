package repository

import (
	"context"
	"time"

	"campusride/internal/domain"
)

// RideRepository defines the persistence operations for rides.
//
// Seat and baggage counters are only changed through ReserveCapacity and
// ReleaseCapacity; lifecycle flags only through the Mark*/Consume* methods.
type RideRepository interface {
	// Create persists a new ride.
	Create(ctx context.Context, ride *domain.Ride) error

	// GetByID retrieves a ride by ID.
	GetByID(ctx context.Context, id string) (*domain.Ride, error)

	// GetForUpdate retrieves a ride and locks its row until the surrounding
	// transaction ends. Outside a transaction it behaves like GetByID.
	GetForUpdate(ctx context.Context, id string) (*domain.Ride, error)

	// GetAll retrieves upcoming rides, most recent departure first.
	GetAll(ctx context.Context) ([]*domain.Ride, error)

	// ReserveCapacity atomically takes one seat and the given baggage on an
	// open ride. It returns the seats left after the reservation, or
	// domain.ErrNoSeatsLeft / domain.ErrBaggageCapacity when the ride cannot
	// take the passenger and ErrConflict when the ride is no longer open.
	ReserveCapacity(ctx context.Context, rideID string, b domain.Baggage) (int, error)

	// ReleaseCapacity gives back one seat and the given baggage, clamped to the totals.
	ReleaseCapacity(ctx context.Context, rideID string, b domain.Baggage) error

	// SetStartCode stores the start verification code on a ride that has not started.
	SetStartCode(ctx context.Context, rideID, code string) error

	// SetCompletionCode stores the completion code on a started, unfinished ride.
	SetCompletionCode(ctx context.Context, rideID, code string) error

	// ConsumeStartCode marks the ride started if code matches the stored one,
	// clearing it. Returns false when nothing matched.
	ConsumeStartCode(ctx context.Context, rideID, code string, at time.Time) (bool, error)

	// ConsumeCompletionCode marks the ride completed if code matches the stored one,
	// clearing it. Returns false when nothing matched.
	ConsumeCompletionCode(ctx context.Context, rideID, code string, at time.Time) (bool, error)

	// MarkCancelled soft-cancels a ride that has not started or completed.
	// Returns false when the ride is no longer cancellable.
	MarkCancelled(ctx context.Context, rideID string, by domain.ActorRole, reason string, at time.Time) (bool, error)
}
