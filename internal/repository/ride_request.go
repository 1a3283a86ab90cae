package repository

import (
	"context"
	"time"

	"campusride/internal/domain"
)

// RideRequestRepository defines the persistence operations for ride requests.
type RideRequestRepository interface {
	// Create persists a new ride request. A second approved request for the
	// same (ride, passenger) pair fails with ErrConflict.
	Create(ctx context.Context, req *domain.RideRequest) error

	// GetByID retrieves a ride request by ID.
	GetByID(ctx context.Context, id string) (*domain.RideRequest, error)

	// ListByRide retrieves the requests of a ride, optionally filtered by status.
	ListByRide(ctx context.Context, rideID string, statuses ...domain.RequestStatus) ([]*domain.RideRequest, error)

	// FindLive returns the pending or approved request of a passenger on a ride.
	// Returns nil if none exists.
	FindLive(ctx context.Context, rideID, passengerID string) (*domain.RideRequest, error)

	// ListStaleAuthorized retrieves requests still holding an authorization
	// taken before the cutoff.
	ListStaleAuthorized(ctx context.Context, cutoff time.Time) ([]*domain.RideRequest, error)

	// TransitionStatus moves a request from one status to another.
	// Returns false if the request was not in the expected status.
	TransitionStatus(ctx context.Context, id string, from, to domain.RequestStatus) (bool, error)

	// SetPaymentStatus records the escrow state of a request.
	SetPaymentStatus(ctx context.Context, id string, status domain.PaymentStatus) error
}
