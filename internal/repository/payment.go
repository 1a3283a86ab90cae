package repository

import (
	"context"

	"campusride/internal/domain"
)

// PaymentRepository stores the audit trail of payment processor calls.
type PaymentRepository interface {
	// Create persists a new payment record.
	Create(ctx context.Context, record *domain.PaymentRecord) error

	// GetByIdempotencyKey retrieves a successful record by its idempotency key.
	// Returns nil if no such record exists.
	GetByIdempotencyKey(ctx context.Context, key string) (*domain.PaymentRecord, error)

	// ListByRideRequest retrieves the records of a ride request, oldest first.
	ListByRideRequest(ctx context.Context, rideRequestID string) ([]*domain.PaymentRecord, error)
}
