package service

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"math/big"
	"strings"

	"github.com/sirupsen/logrus"

	"campusride/internal/domain"
	"campusride/internal/repository"
)

const (
	startCodeDigits      = 4
	completionCodeDigits = 6
)

// RideLifecycleService runs the ride state machine:
// created -> started -> completed, created -> cancelled.
type RideLifecycleService struct {
	core
}

// NewRideLifecycleService creates a new RideLifecycleService.
func NewRideLifecycleService(d Deps) *RideLifecycleService {
	return &RideLifecycleService{core: newCore(d)}
}

// GenerateStartCode issues the code an approved passenger submits to start the ride.
func (s *RideLifecycleService) GenerateStartCode(ctx context.Context, rideID, driverID string) (string, error) {
	ride, err := s.loadRide(ctx, rideID)
	if err != nil {
		return "", err
	}
	if ride.DriverID != driverID {
		return "", ErrNotRideOwner
	}
	if err := rideStateError(ride); err != nil {
		return "", err
	}

	approved, err := s.Repos.Requests.ListByRide(ctx, ride.ID, domain.RequestStatusApproved)
	if err != nil {
		return "", err
	}
	if len(approved) == 0 {
		return "", ErrNoApprovedRequests
	}

	code, err := randomDigits(startCodeDigits)
	if err != nil {
		return "", err
	}
	if err := s.Repos.Rides.SetStartCode(ctx, ride.ID, code); err != nil {
		return "", reloadStateError(ctx, s.Repos.Rides, ride.ID, err)
	}
	return code, nil
}

// StartResult is a started ride and the notice sent to its driver.
type StartResult struct {
	Ride         *domain.Ride
	Notification NotificationStatus
}

// VerifyStart starts the ride when an approved passenger submits the start code.
func (s *RideLifecycleService) VerifyStart(ctx context.Context, rideID, passengerID, code string) (*StartResult, error) {
	ride, err := s.loadRide(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if err := s.requireParticipant(ctx, ride, passengerID); err != nil {
		return nil, err
	}
	if err := rideStateError(ride); err != nil {
		if ride.IsStarted && !ride.IsCompleted {
			return nil, ErrCodeNotIssued
		}
		return nil, err
	}
	if err := matchCode(ride.StartVerificationCode, code); err != nil {
		return nil, err
	}

	now := s.now()
	ok, err := s.Repos.Rides.ConsumeStartCode(ctx, ride.ID, strings.TrimSpace(code), now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrCodeNotIssued
	}

	ride.IsStarted = true
	ride.StartedAt = now
	ride.StartVerificationCode = ""

	s.log.WithField("ride_id", ride.ID).Info("ride started")
	return &StartResult{Ride: ride, Notification: s.Notifier.NotifyRideStarted(ctx, ride)}, nil
}

// GenerateCompletionCode issues the code that settles a started ride.
func (s *RideLifecycleService) GenerateCompletionCode(ctx context.Context, rideID, driverID string) (string, error) {
	ride, err := s.loadRide(ctx, rideID)
	if err != nil {
		return "", err
	}
	if ride.DriverID != driverID {
		return "", ErrNotRideOwner
	}
	switch {
	case ride.IsCancelled:
		return "", ErrRideCancelled
	case ride.IsCompleted:
		return "", ErrRideCompleted
	case !ride.IsStarted:
		return "", ErrRideNotStarted
	}

	code, err := randomDigits(completionCodeDigits)
	if err != nil {
		return "", err
	}
	if err := s.Repos.Rides.SetCompletionCode(ctx, ride.ID, code); err != nil {
		return "", reloadStateError(ctx, s.Repos.Rides, ride.ID, err)
	}
	return code, nil
}

// CompletionResult is the settlement of a completed ride.
type CompletionResult struct {
	Ride          *domain.Ride
	Captures      []Outcome
	CapturedCents int64
	FeeCents      int64
	PayoutCents   int64
	Receipts      []Receipt
	Notifications []NotificationStatus
}

// VerifyCompletion completes the ride when the completion code matches, then
// captures every approved authorization. A failed capture is recorded on its
// request and returned; it does not undo the completion.
func (s *RideLifecycleService) VerifyCompletion(ctx context.Context, rideID, passengerID, code string) (*CompletionResult, error) {
	ride, err := s.loadRide(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if err := s.requireParticipant(ctx, ride, passengerID); err != nil {
		return nil, err
	}
	switch {
	case ride.IsCancelled:
		return nil, ErrRideCancelled
	case ride.IsCompleted:
		return nil, ErrRideCompleted
	case !ride.IsStarted:
		return nil, ErrRideNotStarted
	}
	if err := matchCode(ride.VerificationCode, code); err != nil {
		return nil, err
	}

	now := s.now()
	ok, err := s.Repos.Rides.ConsumeCompletionCode(ctx, ride.ID, strings.TrimSpace(code), now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrCodeNotIssued
	}
	ride.IsCompleted = true
	ride.CompletedAt = now
	ride.VerificationCode = ""

	result, err := s.captureApproved(ctx, ride)
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"ride_id":        ride.ID,
		"captured_cents": result.CapturedCents,
		"fee_cents":      result.FeeCents,
		"captures":       len(result.Captures),
	}).Info("ride completed")

	return result, nil
}

// captureApproved captures each approved request of a completed ride
// independently and bumps ride counts for everyone who paid.
func (s *RideLifecycleService) captureApproved(ctx context.Context, ride *domain.Ride) (*CompletionResult, error) {
	approved, err := s.Repos.Requests.ListByRide(ctx, ride.ID, domain.RequestStatusApproved)
	if err != nil {
		return nil, err
	}

	result := &CompletionResult{Ride: ride}

	for _, req := range approved {
		if !req.HoldsFunds() {
			continue
		}
		outcome := captureRequest(ctx, s.core, req)
		result.Captures = append(result.Captures, outcome)
		if outcome.Failed() {
			continue
		}
		fee := s.Policy.FeeCents(req.PaymentAmountCents)
		result.CapturedCents += req.PaymentAmountCents
		result.FeeCents += fee
		result.PayoutCents += req.PaymentAmountCents - fee
		result.Receipts = append(result.Receipts, BuildReceipt(s.Policy, ride, req))
	}

	s.bumpRidesCompleted(ctx, ride.DriverID)
	result.Notifications = append(result.Notifications, s.Notifier.NotifyRideCompleted(ctx, ride, ride.DriverID))
	for _, receipt := range result.Receipts {
		s.bumpRidesCompleted(ctx, receipt.PassengerID)
		result.Notifications = append(result.Notifications, s.Notifier.NotifyReceipt(ctx, receipt))
	}

	return result, nil
}

// captureRequest captures one held request and stores captured or failed.
func captureRequest(ctx context.Context, c core, req *domain.RideRequest) Outcome {
	status := domain.PaymentStatusCaptured
	capErr := c.Escrow.Capture(ctx, req, req.RideID)
	if capErr != nil {
		status = domain.PaymentStatusFailed
	}
	if err := c.Repos.Requests.SetPaymentStatus(ctx, req.ID, status); err != nil {
		c.log.WithError(err).WithField("ride_request_id", req.ID).Error("failed to store payment status")
		if capErr == nil {
			capErr = err
		}
	} else {
		req.PaymentStatus = status
	}
	return Outcome{Request: req, Err: capErr}
}

func (s *RideLifecycleService) bumpRidesCompleted(ctx context.Context, userID string) {
	if err := s.Repos.Users.IncrementRidesCompleted(ctx, userID); err != nil {
		s.log.WithError(err).WithField("user_id", userID).Warn("failed to update ride count")
	}
}

// StrikeResult describes the late cancellation consequences for the actor.
type StrikeResult struct {
	UserID         string
	Count          int
	Warning        bool
	PenaltyCents   int64
	PenaltyApplied bool
	PenaltyRef     string
	Err            error
}

// CancellationResult is the result of cancelling a ride or a seat on it.
type CancellationResult struct {
	Ride         *domain.Ride
	RideCanceled bool
	Requests     []Outcome
	Strike       *StrikeResult
}

// Cancel cancels a ride that has not started. The owner cancels the whole
// ride with every live request on it; an approved passenger cancels only
// their own seat. Inside the late window the actor gets a strike and, past
// the free strikes, a penalty charge. Penalty failures are reported only.
func (s *RideLifecycleService) Cancel(ctx context.Context, rideID, actorID, reason string) (*CancellationResult, error) {
	if actorID == "" {
		return nil, ErrInvalidUserID
	}
	ride, err := s.loadRide(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if err := rideStateError(ride); err != nil {
		return nil, err
	}

	var result *CancellationResult
	var penaltyBase int64
	role := domain.ActorPassenger

	if ride.DriverID == actorID {
		if ride.RideType == domain.RideTypeDriver {
			role = domain.ActorDriver
		}
		var approved []*domain.RideRequest
		result, approved, err = s.cancelRide(ctx, ride, role, reason)
		if err != nil {
			return nil, err
		}
		if role == domain.ActorDriver {
			for _, req := range approved {
				penaltyBase += payoutOf(s.Policy, req)
			}
		} else {
			penaltyBase = ride.PriceCents
		}
	} else {
		result, err = s.cancelSeat(ctx, ride, actorID)
		if err != nil {
			return nil, err
		}
		penaltyBase = ride.PriceCents
	}

	if s.Policy.IsLateCancellation(ride.DepartureAt, s.now()) {
		result.Strike = s.applyStrike(ctx, ride, actorID, penaltyBase)
	}

	s.log.WithFields(logrus.Fields{
		"ride_id":       ride.ID,
		"actor_id":      actorID,
		"role":          role,
		"ride_canceled": result.RideCanceled,
		"requests":      len(result.Requests),
	}).Info("ride cancellation processed")

	return result, nil
}

// cancelRide marks the ride cancelled and cancels every live request on it
// in one transaction, then releases their payment holds. It also returns
// the requests that were approved before the cancellation.
func (s *RideLifecycleService) cancelRide(
	ctx context.Context,
	ride *domain.Ride,
	role domain.ActorRole,
	reason string,
) (*CancellationResult, []*domain.RideRequest, error) {
	now := s.now()
	var canceled, approved []*domain.RideRequest

	err := s.Tx.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		ok, err := repos.Rides.MarkCancelled(ctx, ride.ID, role, reason, now)
		if err != nil {
			return err
		}
		if !ok {
			return reloadStateError(ctx, repos.Rides, ride.ID, repository.ErrConflict)
		}

		live, err := repos.Requests.ListByRide(ctx, ride.ID, domain.RequestStatusPending, domain.RequestStatusApproved)
		if err != nil {
			return err
		}
		for _, req := range live {
			if req.Status == domain.RequestStatusApproved {
				if err := cancelBooking(ctx, repos, ride.ID, req); err != nil {
					return err
				}
				approved = append(approved, req)
			} else {
				ok, err := repos.Requests.TransitionStatus(ctx, req.ID, domain.RequestStatusPending, domain.RequestStatusCanceled)
				if err != nil {
					return err
				}
				if !ok {
					continue
				}
				req.Status = domain.RequestStatusCanceled
			}
			canceled = append(canceled, req)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	ride.IsCancelled = true
	ride.CancelledBy = role
	ride.CancelledAt = now
	ride.CancellationReason = reason
	ride.StartVerificationCode = ""
	ride.VerificationCode = ""

	result := &CancellationResult{Ride: ride, RideCanceled: true}
	for _, req := range canceled {
		outcome := s.releaseHold(ctx, req)
		notice := s.Notifier.NotifyRideCancelled(ctx, ride, req.PassengerID)
		outcome.Notification = &notice
		result.Requests = append(result.Requests, outcome)
	}
	return result, approved, nil
}

// cancelSeat cancels a non-owner passenger's approved booking on a live ride.
func (s *RideLifecycleService) cancelSeat(ctx context.Context, ride *domain.Ride, passengerID string) (*CancellationResult, error) {
	live, err := s.Repos.Requests.FindLive(ctx, ride.ID, passengerID)
	if err != nil {
		return nil, err
	}
	if live == nil || live.Status != domain.RequestStatusApproved {
		return nil, ErrNotRideOwner
	}

	if err := s.Tx.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		if _, err := lockOpenRide(ctx, repos, ride.ID); err != nil {
			return err
		}
		return cancelBooking(ctx, repos, ride.ID, live)
	}); err != nil {
		return nil, err
	}

	outcome := s.releaseHold(ctx, live)
	notice := s.Notifier.NotifyRequestCanceled(ctx, ride, live)
	outcome.Notification = &notice

	return &CancellationResult{Ride: ride, Requests: []Outcome{outcome}}, nil
}

// applyStrike records a late cancellation and charges the penalty when the
// actor is past the free strikes.
func (s *RideLifecycleService) applyStrike(ctx context.Context, ride *domain.Ride, userID string, base int64) *StrikeResult {
	res := &StrikeResult{UserID: userID}

	count, err := s.Strikes.RecordStrike(ctx, userID, s.now())
	if err != nil {
		s.log.WithError(err).WithField("user_id", userID).Error("failed to record strike")
		res.Err = err
		return res
	}
	res.Count = count

	if !s.Strikes.PenaltyDue(count) {
		res.Warning = true
		return res
	}

	amount := s.Policy.PenaltyCents(base)
	if amount <= 0 {
		return res
	}
	res.PenaltyCents = amount

	user, err := s.loadUser(ctx, userID)
	if err != nil {
		res.Err = err
		return res
	}
	ref, err := s.Escrow.ChargePenalty(ctx, ride.ID, user, amount)
	if err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"user_id":       userID,
			"ride_id":       ride.ID,
			"penalty_cents": amount,
		}).Warn("late cancellation penalty not charged")
		res.Err = err
		return res
	}
	res.PenaltyApplied = true
	res.PenaltyRef = ref
	return res
}

// requireParticipant checks that passengerID holds an approved seat on ride.
func (s *RideLifecycleService) requireParticipant(ctx context.Context, ride *domain.Ride, passengerID string) error {
	if passengerID == "" {
		return ErrInvalidUserID
	}
	live, err := s.Repos.Requests.FindLive(ctx, ride.ID, passengerID)
	if err != nil {
		return err
	}
	if live == nil || live.Status != domain.RequestStatusApproved {
		return ErrNotRideParticipant
	}
	return nil
}

// reloadStateError explains a guarded ride update that matched no row.
func reloadStateError(ctx context.Context, rides repository.RideRepository, rideID string, cause error) error {
	ride, err := rides.GetByID(ctx, rideID)
	if err != nil {
		return notFound(err, ErrRideNotFound)
	}
	if err := rideStateError(ride); err != nil {
		return err
	}
	return cause
}

func payoutOf(p Policy, req *domain.RideRequest) int64 {
	return req.PaymentAmountCents - p.FeeCents(req.PaymentAmountCents)
}

// matchCode compares a submitted verification code against the stored one.
func matchCode(stored, submitted string) error {
	if stored == "" {
		return ErrCodeNotIssued
	}
	submitted = strings.TrimSpace(submitted)
	if subtle.ConstantTimeCompare([]byte(stored), []byte(submitted)) != 1 {
		return ErrWrongCode
	}
	return nil
}

func randomDigits(n int) (string, error) {
	max := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
	v, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return fmt.Sprintf("%0*d", n, v), nil
}
