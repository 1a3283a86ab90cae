package service

import (
	"errors"

	"campusride/internal/domain"
	"campusride/internal/repository"
)

// Kind is the stable, machine-readable category of a service error.
type Kind string

const (
	KindValidation    Kind = "validation"
	KindAuthorization Kind = "authorization"
	KindStateConflict Kind = "state_conflict"
	KindPayment       Kind = "payment"
	KindNotFound      Kind = "not_found"
	KindInternal      Kind = "internal"
)

// Error is a service error with a kind the transport layer can map.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// PaymentFailure wraps a processor error as a payment error.
func PaymentFailure(message string, err error) error {
	return &Error{Kind: KindPayment, Message: message, Err: err}
}

// KindOf returns the kind of err, looking through wrapped errors.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return KindNotFound
	case errors.Is(err, repository.ErrConflict),
		errors.Is(err, domain.ErrNoSeatsLeft),
		errors.Is(err, domain.ErrBaggageCapacity):
		return KindStateConflict
	}
	return KindInternal
}

var (
	// ErrInvalidRideID is returned when ride ID is empty.
	ErrInvalidRideID = newError(KindValidation, "invalid ride id")

	// ErrInvalidRequestID is returned when ride request ID is empty.
	ErrInvalidRequestID = newError(KindValidation, "invalid ride request id")

	// ErrInvalidUserID is returned when the acting user ID is empty.
	ErrInvalidUserID = newError(KindValidation, "invalid user id")

	ErrInvalidBaggage    = newError(KindValidation, "baggage counts must not be negative")
	ErrPriceOutOfRange   = newError(KindValidation, "price outside allowed range")
	ErrRouteOutsideHub   = newError(KindValidation, "ride must start or end in the hub city")
	ErrInvalidSeats      = newError(KindValidation, "invalid seat count")
	ErrInvalidSchedule   = newError(KindValidation, "invalid departure or arrival time")
	ErrInvalidLocation   = newError(KindValidation, "origin and destination are required")
	ErrInvalidRideType   = newError(KindValidation, "invalid ride type")
	ErrSelfRequest       = newError(KindValidation, "cannot request a seat on your own ride")
	ErrWrongCode         = newError(KindValidation, "verification code does not match")
	ErrInvalidPhone      = newError(KindValidation, "invalid phone number")
	ErrInvalidEmail      = newError(KindValidation, "email is required")
	ErrPhoneCodeMismatch = newError(KindValidation, "phone verification code is invalid or expired")

	// ErrNotRideOwner is returned when the actor does not own the ride.
	ErrNotRideOwner = newError(KindAuthorization, "only the ride owner can do this")

	// ErrNotRequestPassenger is returned when the actor is not the passenger of the request.
	ErrNotRequestPassenger = newError(KindAuthorization, "only the requesting passenger can do this")

	// ErrNotRideParticipant is returned when the actor has no approved seat on the ride.
	ErrNotRideParticipant = newError(KindAuthorization, "not an approved passenger of this ride")

	ErrRideNotOpen        = newError(KindStateConflict, "ride is no longer open")
	ErrRideNotDriverOffer = newError(KindStateConflict, "ride does not offer seats")
	ErrRideFull           = newError(KindStateConflict, "no seats left on ride")
	ErrNotEnoughBaggage   = newError(KindStateConflict, "not enough baggage capacity")
	ErrDuplicateRequest   = newError(KindStateConflict, "an active request for this ride already exists")
	ErrRequestNotPending  = newError(KindStateConflict, "ride request is not pending")
	ErrRequestNotApproved = newError(KindStateConflict, "ride request is not approved")
	ErrPaymentNotHeld     = newError(KindStateConflict, "ride request has no authorized payment")
	ErrRideStarted        = newError(KindStateConflict, "ride has already started")
	ErrRideNotStarted     = newError(KindStateConflict, "ride has not started")
	ErrRideCompleted      = newError(KindStateConflict, "ride is already completed")
	ErrRideCancelled      = newError(KindStateConflict, "ride is cancelled")
	ErrNoApprovedRequests = newError(KindStateConflict, "ride has no approved passengers")
	ErrCodeNotIssued      = newError(KindStateConflict, "no active verification code")

	// ErrNoPaymentMethod is returned when the passenger has no stored payment method.
	ErrNoPaymentMethod = newError(KindPayment, "passenger has no payment method on file")

	// ErrNoPayoutAccount is returned when the driver cannot receive payouts.
	ErrNoPayoutAccount = newError(KindPayment, "driver has no payout account")

	ErrRideNotFound    = newError(KindNotFound, "ride not found")
	ErrRequestNotFound = newError(KindNotFound, "ride request not found")
	ErrUserNotFound    = newError(KindNotFound, "user not found")
)

// notFound converts repository.ErrNotFound to the given service error.
func notFound(err error, as *Error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return as
	}
	return err
}
