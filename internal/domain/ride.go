package domain

import (
	"strings"
	"time"
)

// RideType distinguishes an offer of capacity from a request for capacity.
type RideType string

const (
	RideTypeDriver    RideType = "driver"
	RideTypePassenger RideType = "passenger"
)

// ActorRole is the role of the user who cancelled a ride.
type ActorRole string

const (
	ActorDriver    ActorRole = "driver"
	ActorPassenger ActorRole = "passenger"
)

// RideState is the lifecycle state derived from the ride flags.
type RideState string

const (
	RideStateCreated   RideState = "created"
	RideStateStarted   RideState = "started"
	RideStateCompleted RideState = "completed"
	RideStateCancelled RideState = "cancelled"
)

// Ride represents a trip posting. The owner is DriverID regardless of RideType.
type Ride struct {
	ID              string
	DriverID        string
	RideType        RideType
	OriginCity      string
	OriginArea      string
	DestinationCity string
	DestinationArea string
	DepartureAt     time.Time
	ArrivalAt       time.Time

	SeatsTotal           int
	SeatsLeft            int
	CheckInBaggageTotal  int
	CheckInBaggageLeft   int
	PersonalBaggageTotal int
	PersonalBaggageLeft  int

	PriceCents       int64 // per seat
	GenderPreference string
	Vehicle          string

	IsStarted          bool
	StartedAt          time.Time
	IsCompleted        bool
	CompletedAt        time.Time
	IsCancelled        bool
	CancelledBy        ActorRole
	CancelledAt        time.Time
	CancellationReason string

	StartVerificationCode string
	VerificationCode      string

	Version   int
	CreatedAt time.Time
}

// State returns the lifecycle state of the ride.
func (r *Ride) State() RideState {
	switch {
	case r.IsCancelled:
		return RideStateCancelled
	case r.IsCompleted:
		return RideStateCompleted
	case r.IsStarted:
		return RideStateStarted
	default:
		return RideStateCreated
	}
}

// IsOpen reports whether the ride still accepts bookings.
func (r *Ride) IsOpen() bool {
	return r.State() == RideStateCreated
}

// CanCancel reports whether the ride may still be cancelled.
func (r *Ride) CanCancel() bool {
	return !r.IsCancelled && !r.IsStarted && !r.IsCompleted
}

// TouchesCity reports whether the route starts or ends in the given city.
func (r *Ride) TouchesCity(city string) bool {
	return strings.EqualFold(strings.TrimSpace(r.OriginCity), city) ||
		strings.EqualFold(strings.TrimSpace(r.DestinationCity), city)
}

// SeatsTaken is the number of seats held by approved requests.
func (r *Ride) SeatsTaken() int {
	return r.SeatsTotal - r.SeatsLeft
}
