package domain

import "time"

// RequestStatus represents the current status of a ride request.
type RequestStatus string

const (
	RequestStatusPending  RequestStatus = "pending"
	RequestStatusApproved RequestStatus = "approved"
	RequestStatusRejected RequestStatus = "rejected"
	RequestStatusCanceled RequestStatus = "canceled"
)

// IsTerminal reports whether no further transition is possible.
func (s RequestStatus) IsTerminal() bool {
	return s != RequestStatusPending
}

// RideRequest is one passenger's claim against one ride's capacity.
type RideRequest struct {
	ID          string
	RideID      string
	PassengerID string
	Status      RequestStatus
	Message     string

	// PaymentIntentID and PaymentStatus together say whether money is held.
	PaymentIntentID    string
	PaymentAmountCents int64
	PaymentStatus      PaymentStatus

	CheckInBaggage  int
	PersonalBaggage int

	AuthorizedAt time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Baggage returns the baggage claimed by the request.
func (r *RideRequest) Baggage() Baggage {
	return Baggage{CheckIn: r.CheckInBaggage, Personal: r.PersonalBaggage}
}

// HoldsFunds reports whether an authorization is currently reserved.
func (r *RideRequest) HoldsFunds() bool {
	return r.PaymentIntentID != "" && r.PaymentStatus == PaymentStatusAuthorized
}
