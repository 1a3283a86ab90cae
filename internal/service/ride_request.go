package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"campusride/internal/domain"
	"campusride/internal/repository"
)

// core holds what every state machine service needs.
type core struct {
	Deps
	now func() time.Time
	log logrus.FieldLogger
}

func newCore(d Deps) core {
	return core{Deps: d, now: d.clock(), log: d.logger()}
}

// releaseHold cancels or refunds what req still holds and stores the new
// payment status. Failures are reported, not returned.
func (c core) releaseHold(ctx context.Context, req *domain.RideRequest) Outcome {
	status, err := c.Escrow.Release(ctx, req)
	if err != nil {
		c.log.WithError(err).WithField("ride_request_id", req.ID).Warn("failed to release payment hold")
		return Outcome{Request: req, Err: err}
	}
	if status != req.PaymentStatus {
		if err := c.Repos.Requests.SetPaymentStatus(ctx, req.ID, status); err != nil {
			c.log.WithError(err).WithField("ride_request_id", req.ID).Error("failed to store payment status")
			return Outcome{Request: req, Err: err}
		}
		req.PaymentStatus = status
	}
	return Outcome{Request: req}
}

func (c core) loadRide(ctx context.Context, rideID string) (*domain.Ride, error) {
	if rideID == "" {
		return nil, ErrInvalidRideID
	}
	ride, err := c.Repos.Rides.GetByID(ctx, rideID)
	if err != nil {
		return nil, notFound(err, ErrRideNotFound)
	}
	return ride, nil
}

func (c core) loadRequest(ctx context.Context, requestID string) (*domain.RideRequest, *domain.Ride, error) {
	if requestID == "" {
		return nil, nil, ErrInvalidRequestID
	}
	req, err := c.Repos.Requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, nil, notFound(err, ErrRequestNotFound)
	}
	ride, err := c.loadRide(ctx, req.RideID)
	if err != nil {
		return nil, nil, err
	}
	return req, ride, nil
}

func (c core) loadUser(ctx context.Context, userID string) (*domain.User, error) {
	if userID == "" {
		return nil, ErrInvalidUserID
	}
	user, err := c.Repos.Users.GetByID(ctx, userID)
	if err != nil {
		return nil, notFound(err, ErrUserNotFound)
	}
	return user, nil
}

// rideStateError maps a ride that is no longer open to its conflict error.
func rideStateError(ride *domain.Ride) error {
	switch ride.State() {
	case domain.RideStateCancelled:
		return ErrRideCancelled
	case domain.RideStateCompleted:
		return ErrRideCompleted
	case domain.RideStateStarted:
		return ErrRideStarted
	}
	return nil
}

// capacityError maps inventory failures to service errors.
func capacityError(err error) error {
	switch {
	case errors.Is(err, domain.ErrNoSeatsLeft):
		return ErrRideFull
	case errors.Is(err, domain.ErrBaggageCapacity):
		return ErrNotEnoughBaggage
	case errors.Is(err, repository.ErrNotFound):
		return ErrRideNotFound
	case errors.Is(err, repository.ErrConflict):
		return ErrRideNotOpen
	}
	return err
}

// RideRequestService runs the ride request state machine:
// pending -> approved | rejected | canceled.
type RideRequestService struct {
	core
}

// NewRideRequestService creates a new RideRequestService.
func NewRideRequestService(d Deps) *RideRequestService {
	return &RideRequestService{core: newCore(d)}
}

// CreateRideRequestInput contains the parameters for requesting a seat.
type CreateRideRequestInput struct {
	RideID          string
	PassengerID     string
	Message         string
	CheckInBaggage  int
	PersonalBaggage int
	PriceCents      int64 // negotiated price; zero means the ride price
}

// RequestResult is a stored request and the notice sent about it.
type RequestResult struct {
	Request      *domain.RideRequest
	Notification NotificationStatus
}

// Create places a fare hold and records a pending request. Nothing is stored
// when the authorization fails.
func (s *RideRequestService) Create(ctx context.Context, in CreateRideRequestInput) (*RequestResult, error) {
	if in.PassengerID == "" {
		return nil, ErrInvalidUserID
	}
	if in.CheckInBaggage < 0 || in.PersonalBaggage < 0 {
		return nil, ErrInvalidBaggage
	}

	ride, err := s.loadRide(ctx, in.RideID)
	if err != nil {
		return nil, err
	}
	passenger, driver, price, err := s.checkBookable(ctx, ride, in.PassengerID, in.PriceCents,
		domain.Baggage{CheckIn: in.CheckInBaggage, Personal: in.PersonalBaggage})
	if err != nil {
		return nil, err
	}

	req := &domain.RideRequest{
		ID:                 uuid.New().String(),
		RideID:             ride.ID,
		PassengerID:        passenger.ID,
		Status:             domain.RequestStatusPending,
		Message:            in.Message,
		PaymentAmountCents: price,
		CheckInBaggage:     in.CheckInBaggage,
		PersonalBaggage:    in.PersonalBaggage,
	}

	ref, err := s.Escrow.Authorize(ctx, Authorization{
		RequestID:   req.ID,
		RideID:      ride.ID,
		Payer:       passenger,
		Payee:       driver,
		AmountCents: price,
	})
	if err != nil {
		return nil, err
	}

	now := s.now()
	req.PaymentIntentID = ref
	req.PaymentStatus = domain.PaymentStatusAuthorized
	req.AuthorizedAt = now
	req.CreatedAt = now
	req.UpdatedAt = now

	err = s.Tx.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		// Under the ride row lock an approval that fills the ride either runs
		// first and this insert fails, or runs after and auto-rejects it.
		locked, err := lockOpenRide(ctx, repos, ride.ID)
		if err != nil {
			return err
		}
		if err := locked.CanTake(req.Baggage()); err != nil {
			return capacityError(err)
		}
		live, err := repos.Requests.FindLive(ctx, ride.ID, passenger.ID)
		if err != nil {
			return err
		}
		if live != nil {
			return ErrDuplicateRequest
		}
		if err := repos.Requests.Create(ctx, req); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return ErrDuplicateRequest
			}
			return err
		}
		return nil
	})
	if err != nil {
		if cerr := s.Escrow.Cancel(ctx, req); cerr != nil {
			s.log.WithError(cerr).WithField("intent", ref).Error("failed to cancel orphan authorization")
		}
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"ride_id":         ride.ID,
		"ride_request_id": req.ID,
		"amount_cents":    price,
	}).Info("ride request created")

	return &RequestResult{Request: req, Notification: s.Notifier.NotifyRequestCreated(ctx, ride, req)}, nil
}

// checkBookable validates that passengerID may hold a seat on ride at the
// given price and returns both parties and the effective price.
func (s *RideRequestService) checkBookable(
	ctx context.Context,
	ride *domain.Ride,
	passengerID string,
	priceOverride int64,
	b domain.Baggage,
) (*domain.User, *domain.User, int64, error) {
	if ride.RideType != domain.RideTypeDriver {
		return nil, nil, 0, ErrRideNotDriverOffer
	}
	if err := rideStateError(ride); err != nil {
		return nil, nil, 0, err
	}
	if ride.DriverID == passengerID {
		return nil, nil, 0, ErrSelfRequest
	}
	if s.Policy.HubCity != "" && !ride.TouchesCity(s.Policy.HubCity) {
		return nil, nil, 0, ErrRouteOutsideHub
	}

	price := ride.PriceCents
	if priceOverride > 0 {
		price = priceOverride
	}
	if !s.Policy.PriceAllowed(price) {
		return nil, nil, 0, ErrPriceOutOfRange
	}

	if ride.SeatsLeft <= 0 {
		return nil, nil, 0, ErrRideFull
	}
	if b.CheckIn > ride.CheckInBaggageLeft || b.Personal > ride.PersonalBaggageLeft {
		return nil, nil, 0, ErrNotEnoughBaggage
	}

	passenger, err := s.loadUser(ctx, passengerID)
	if err != nil {
		return nil, nil, 0, err
	}
	if !passenger.CanPay() {
		return nil, nil, 0, ErrNoPaymentMethod
	}
	driver, err := s.loadUser(ctx, ride.DriverID)
	if err != nil {
		return nil, nil, 0, err
	}
	if !driver.CanReceivePayouts() {
		return nil, nil, 0, ErrNoPayoutAccount
	}

	live, err := s.Repos.Requests.FindLive(ctx, ride.ID, passengerID)
	if err != nil {
		return nil, nil, 0, err
	}
	if live != nil {
		return nil, nil, 0, ErrDuplicateRequest
	}

	return passenger, driver, price, nil
}

// ApprovalResult is the result of approving a request.
type ApprovalResult struct {
	Request      *domain.RideRequest
	SeatsLeft    int
	AutoRejected []Outcome
	Notification NotificationStatus
}

// Approve confirms a pending request. The seat reservation, the status change
// and the rejection of every other pending request once the ride is full
// commit together; their authorizations are released before returning.
func (s *RideRequestService) Approve(ctx context.Context, requestID, driverID string) (*ApprovalResult, error) {
	req, ride, err := s.loadRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if ride.DriverID != driverID {
		return nil, ErrNotRideOwner
	}
	if req.Status != domain.RequestStatusPending {
		return nil, ErrRequestNotPending
	}
	if !req.HoldsFunds() {
		return nil, ErrPaymentNotHeld
	}
	if err := rideStateError(ride); err != nil {
		return nil, err
	}

	var seatsLeft int
	var rejected []*domain.RideRequest

	err = s.Tx.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		// The ride row is locked first so concurrent approvals queue on it.
		left, err := repos.Rides.ReserveCapacity(ctx, ride.ID, req.Baggage())
		if err != nil {
			return capacityError(err)
		}
		seatsLeft = left

		ok, err := repos.Requests.TransitionStatus(ctx, req.ID, domain.RequestStatusPending, domain.RequestStatusApproved)
		if errors.Is(err, repository.ErrConflict) {
			return ErrDuplicateRequest
		}
		if err != nil {
			return err
		}
		if !ok {
			return ErrRequestNotPending
		}

		if left > 0 {
			return nil
		}

		pending, err := repos.Requests.ListByRide(ctx, ride.ID, domain.RequestStatusPending)
		if err != nil {
			return err
		}
		for _, sibling := range pending {
			if sibling.ID == req.ID {
				continue
			}
			ok, err := repos.Requests.TransitionStatus(ctx, sibling.ID, domain.RequestStatusPending, domain.RequestStatusRejected)
			if err != nil {
				return err
			}
			if ok {
				sibling.Status = domain.RequestStatusRejected
				rejected = append(rejected, sibling)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	req.Status = domain.RequestStatusApproved
	result := &ApprovalResult{Request: req, SeatsLeft: seatsLeft}

	for _, sibling := range rejected {
		result.AutoRejected = append(result.AutoRejected, s.releaseHold(ctx, sibling))
	}

	s.log.WithFields(logrus.Fields{
		"ride_id":         ride.ID,
		"ride_request_id": req.ID,
		"seats_left":      seatsLeft,
		"auto_rejected":   len(rejected),
	}).Info("ride request approved")

	result.Notification = s.Notifier.NotifyRequestApproved(ctx, ride, req)
	for i := range result.AutoRejected {
		notice := s.Notifier.NotifyRequestRejected(ctx, ride, result.AutoRejected[i].Request, true)
		result.AutoRejected[i].Notification = &notice
	}

	return result, nil
}

// Reject declines a pending request and releases its authorization.
func (s *RideRequestService) Reject(ctx context.Context, requestID, driverID string) (*Outcome, error) {
	req, ride, err := s.loadRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if ride.DriverID != driverID {
		return nil, ErrNotRideOwner
	}
	if req.Status != domain.RequestStatusPending {
		return nil, ErrRequestNotPending
	}

	if err := s.transition(ctx, req, domain.RequestStatusPending, domain.RequestStatusRejected); err != nil {
		return nil, err
	}

	outcome := s.releaseHold(ctx, req)
	notice := s.Notifier.NotifyRequestRejected(ctx, ride, req, false)
	outcome.Notification = &notice
	return &outcome, nil
}

// CancelByPassenger withdraws a pending request and releases its authorization.
func (s *RideRequestService) CancelByPassenger(ctx context.Context, requestID, passengerID string) (*Outcome, error) {
	req, ride, err := s.loadRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.PassengerID != passengerID {
		return nil, ErrNotRequestPassenger
	}
	if req.Status != domain.RequestStatusPending {
		return nil, ErrRequestNotPending
	}

	if err := s.transition(ctx, req, domain.RequestStatusPending, domain.RequestStatusCanceled); err != nil {
		return nil, err
	}

	outcome := s.releaseHold(ctx, req)
	notice := s.Notifier.NotifyRequestCanceled(ctx, ride, req)
	outcome.Notification = &notice
	return &outcome, nil
}

// CancelByDriver removes an approved passenger from a ride that has not
// started, giving the seat back and cancelling or refunding the payment.
func (s *RideRequestService) CancelByDriver(ctx context.Context, requestID, driverID string) (*Outcome, error) {
	req, ride, err := s.loadRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if ride.DriverID != driverID {
		return nil, ErrNotRideOwner
	}
	if req.Status != domain.RequestStatusApproved {
		return nil, ErrRequestNotApproved
	}
	if err := rideStateError(ride); err != nil {
		return nil, err
	}

	if err := s.Tx.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		if _, err := lockOpenRide(ctx, repos, ride.ID); err != nil {
			return err
		}
		return cancelBooking(ctx, repos, ride.ID, req)
	}); err != nil {
		return nil, err
	}

	outcome := s.releaseHold(ctx, req)
	notice := s.Notifier.NotifyPassengerRemoved(ctx, ride, req)
	outcome.Notification = &notice
	return &outcome, nil
}

// CounterOfferInput contains the parameters for accepting a driver's price offer.
type CounterOfferInput struct {
	RideID          string
	DriverID        string
	PassengerID     string
	PriceCents      int64
	CheckInBaggage  int
	PersonalBaggage int
}

// AcceptCounterOffer books a passenger directly at a price the driver offered.
// The authorization is placed first; the seat reservation and the approved
// request commit together, and the authorization is cancelled if they do not.
func (s *RideRequestService) AcceptCounterOffer(ctx context.Context, in CounterOfferInput) (*RequestResult, error) {
	if in.PassengerID == "" || in.DriverID == "" {
		return nil, ErrInvalidUserID
	}
	if in.CheckInBaggage < 0 || in.PersonalBaggage < 0 {
		return nil, ErrInvalidBaggage
	}
	if in.PriceCents <= 0 {
		return nil, ErrPriceOutOfRange
	}

	ride, err := s.loadRide(ctx, in.RideID)
	if err != nil {
		return nil, err
	}
	if ride.DriverID != in.DriverID {
		return nil, ErrNotRideOwner
	}

	b := domain.Baggage{CheckIn: in.CheckInBaggage, Personal: in.PersonalBaggage}
	passenger, driver, price, err := s.checkBookable(ctx, ride, in.PassengerID, in.PriceCents, b)
	if err != nil {
		return nil, err
	}

	req := &domain.RideRequest{
		ID:                 uuid.New().String(),
		RideID:             ride.ID,
		PassengerID:        passenger.ID,
		Status:             domain.RequestStatusApproved,
		PaymentAmountCents: price,
		CheckInBaggage:     b.CheckIn,
		PersonalBaggage:    b.Personal,
	}

	ref, err := s.Escrow.Authorize(ctx, Authorization{
		RequestID:   req.ID,
		RideID:      ride.ID,
		Payer:       passenger,
		Payee:       driver,
		AmountCents: price,
	})
	if err != nil {
		return nil, err
	}

	now := s.now()
	req.PaymentIntentID = ref
	req.PaymentStatus = domain.PaymentStatusAuthorized
	req.AuthorizedAt = now
	req.CreatedAt = now
	req.UpdatedAt = now

	err = s.Tx.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		if _, err := repos.Rides.ReserveCapacity(ctx, ride.ID, b); err != nil {
			return capacityError(err)
		}
		if err := repos.Requests.Create(ctx, req); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return ErrDuplicateRequest
			}
			return err
		}
		return nil
	})
	if err != nil {
		if cerr := s.Escrow.Cancel(ctx, req); cerr != nil {
			s.log.WithError(cerr).WithField("intent", ref).Error("failed to cancel orphan authorization")
		}
		return nil, err
	}

	return &RequestResult{Request: req, Notification: s.Notifier.NotifyRequestApproved(ctx, ride, req)}, nil
}

// PaymentHistory returns the payment records of a request visible to its
// passenger or the ride owner.
func (s *RideRequestService) PaymentHistory(ctx context.Context, requestID, actorID string) ([]*domain.PaymentRecord, error) {
	req, ride, err := s.loadRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.PassengerID != actorID && ride.DriverID != actorID {
		return nil, ErrNotRequestPassenger
	}
	return s.Payments.ListByRideRequest(ctx, req.ID)
}

// transition performs a single status compare-and-swap outside any larger transaction.
func (s *RideRequestService) transition(ctx context.Context, req *domain.RideRequest, from, to domain.RequestStatus) error {
	ok, err := s.Repos.Requests.TransitionStatus(ctx, req.ID, from, to)
	if err != nil {
		return err
	}
	if !ok {
		if from == domain.RequestStatusApproved {
			return ErrRequestNotApproved
		}
		return ErrRequestNotPending
	}
	req.Status = to
	req.UpdatedAt = s.now()
	return nil
}

// lockOpenRide locks the ride row for the rest of the transaction and fails
// unless the ride has not started, completed or been cancelled.
func lockOpenRide(ctx context.Context, repos repository.Repositories, rideID string) (*domain.Ride, error) {
	ride, err := repos.Rides.GetForUpdate(ctx, rideID)
	if err != nil {
		return nil, notFound(err, ErrRideNotFound)
	}
	if err := rideStateError(ride); err != nil {
		return nil, err
	}
	return ride, nil
}

// cancelBooking gives an approved request's seat back and marks it canceled.
// It must run inside a transaction.
func cancelBooking(ctx context.Context, repos repository.Repositories, rideID string, req *domain.RideRequest) error {
	if err := repos.Rides.ReleaseCapacity(ctx, rideID, req.Baggage()); err != nil {
		return capacityError(err)
	}
	ok, err := repos.Requests.TransitionStatus(ctx, req.ID, domain.RequestStatusApproved, domain.RequestStatusCanceled)
	if err != nil {
		return err
	}
	if !ok {
		return ErrRequestNotApproved
	}
	req.Status = domain.RequestStatusCanceled
	return nil
}
