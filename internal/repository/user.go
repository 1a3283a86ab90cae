package repository

import (
	"context"
	"time"

	"campusride/internal/domain"
)

// UserRepository defines the persistence operations for users.
type UserRepository interface {
	// Upsert creates the user or updates profile and payment references.
	Upsert(ctx context.Context, user *domain.User) error

	// GetByID retrieves a user by ID.
	GetByID(ctx context.Context, id string) (*domain.User, error)

	// SetPhone stores a verified phone number.
	SetPhone(ctx context.Context, id, phone string) error

	// RecordStrike increments the cancellation strike count and returns the
	// new value. When the stored reset date has passed the count restarts at 1.
	// A non-zero nextReset replaces an expired or missing reset date.
	RecordStrike(ctx context.Context, id string, now, nextReset time.Time) (int, error)

	// IncrementRidesCompleted bumps the completed rides statistic.
	IncrementRidesCompleted(ctx context.Context, id string) error
}
