package repository

import "context"

// Repositories groups the repositories bound to one transaction.
type Repositories struct {
	Rides    RideRepository
	Requests RideRequestRepository
	Users    UserRepository
}

// Transactor runs fn inside a single database transaction. The transaction
// commits when fn returns nil and rolls back otherwise.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
}
