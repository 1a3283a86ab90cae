package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"campusride/internal/domain"
	"campusride/internal/repository"
)

// ErrIntentFinal is returned by a PaymentProcessor when an intent can no
// longer be cancelled or refunded because it already reached a final state.
var ErrIntentFinal = errors.New("payment intent already final")

// AuthorizeParams describes a manual-capture authorization.
type AuthorizeParams struct {
	AmountCents        int64
	FeeCents           int64
	Currency           string
	CustomerID         string
	PaymentMethodID    string
	DestinationAccount string
	IdempotencyKey     string
	Metadata           map[string]string
}

// PenaltyParams describes an immediate charge in favor of the platform.
type PenaltyParams struct {
	AmountCents     int64
	Currency        string
	CustomerID      string
	PaymentMethodID string
	IdempotencyKey  string
	Description     string
}

// IntentStatus is the processor-side state of a payment intent.
type IntentStatus string

const (
	IntentAuthorized IntentStatus = "authorized"
	IntentCaptured   IntentStatus = "captured"
	IntentCanceled   IntentStatus = "canceled"
	IntentRefunded   IntentStatus = "refunded"
	IntentIncomplete IntentStatus = "incomplete"
)

// PaymentProcessor is the external payment provider.
type PaymentProcessor interface {
	Authorize(ctx context.Context, p AuthorizeParams) (string, error)
	Capture(ctx context.Context, intentRef, idempotencyKey string) error
	Cancel(ctx context.Context, intentRef, idempotencyKey string) error
	Refund(ctx context.Context, intentRef, idempotencyKey string) error
	ChargePenalty(ctx context.Context, p PenaltyParams) (string, error)
	IntentStatus(ctx context.Context, intentRef string) (IntentStatus, error)
}

// Authorization is a fare hold to place for one ride request.
type Authorization struct {
	RequestID   string
	RideID      string
	Payer       *domain.User
	Payee       *domain.User
	AmountCents int64
}

// Escrow wraps the payment processor. Every call leaves a PaymentRecord.
type Escrow struct {
	processor PaymentProcessor
	records   repository.PaymentRepository
	policy    Policy
	log       logrus.FieldLogger
	now       func() time.Time
}

// NewEscrow creates a new Escrow.
func NewEscrow(processor PaymentProcessor, records repository.PaymentRepository, policy Policy, log logrus.FieldLogger) *Escrow {
	return &Escrow{
		processor: processor,
		records:   records,
		policy:    policy,
		log:       log,
		now:       time.Now,
	}
}

// Authorize reserves the fare on the payer's instrument with the platform
// fee set aside for the payee transfer. It returns the intent reference.
func (e *Escrow) Authorize(ctx context.Context, a Authorization) (string, error) {
	fee := e.policy.FeeCents(a.AmountCents)
	key := "authorize:" + a.RequestID

	ref, err := e.processor.Authorize(ctx, AuthorizeParams{
		AmountCents:        a.AmountCents,
		FeeCents:           fee,
		Currency:           e.policy.Currency,
		CustomerID:         a.Payer.StripeCustomerID,
		PaymentMethodID:    a.Payer.DefaultPaymentMethodID,
		DestinationAccount: a.Payee.ConnectAccountID,
		IdempotencyKey:     key,
		Metadata: map[string]string{
			"ride_id":         a.RideID,
			"ride_request_id": a.RequestID,
		},
	})

	e.record(ctx, &domain.PaymentRecord{
		RideRequestID:  a.RequestID,
		RideID:         a.RideID,
		UserID:         a.Payer.ID,
		Kind:           domain.PaymentKindAuthorize,
		AmountCents:    a.AmountCents,
		FeeCents:       fee,
		IntentRef:      ref,
		IdempotencyKey: key,
	}, err)

	if err != nil {
		return "", PaymentFailure("payment authorization failed", err)
	}
	return ref, nil
}

// Capture moves the held funds of an approved request. When the processor
// reports the intent as final, the capture succeeds only if the intent was
// in fact captured, as happens when an earlier capture was not stored.
func (e *Escrow) Capture(ctx context.Context, req *domain.RideRequest, rideID string) error {
	key := "capture:" + req.ID
	err := e.processor.Capture(ctx, req.PaymentIntentID, key)
	if errors.Is(err, ErrIntentFinal) {
		err = e.confirmCaptured(ctx, req, err)
	}

	e.record(ctx, &domain.PaymentRecord{
		RideRequestID:  req.ID,
		RideID:         rideID,
		UserID:         req.PassengerID,
		Kind:           domain.PaymentKindCapture,
		AmountCents:    req.PaymentAmountCents,
		FeeCents:       e.policy.FeeCents(req.PaymentAmountCents),
		IntentRef:      req.PaymentIntentID,
		IdempotencyKey: key,
	}, err)

	if err != nil {
		return PaymentFailure("payment capture failed", err)
	}
	return nil
}

func (e *Escrow) confirmCaptured(ctx context.Context, req *domain.RideRequest, captureErr error) error {
	entry := e.log.WithFields(logrus.Fields{
		"ride_request_id": req.ID,
		"intent":          req.PaymentIntentID,
	})
	status, err := e.processor.IntentStatus(ctx, req.PaymentIntentID)
	if err != nil {
		entry.WithError(err).Warn("failed to look up payment intent")
		return captureErr
	}
	if status != IntentCaptured {
		return fmt.Errorf("%w (intent is %s)", captureErr, status)
	}
	entry.Info("payment intent already captured")
	return nil
}

// Cancel releases an authorization. An intent that is already final counts
// as released.
func (e *Escrow) Cancel(ctx context.Context, req *domain.RideRequest) error {
	return e.release(ctx, req, domain.PaymentKindCancel, e.processor.Cancel)
}

// Refund reverses a captured payment. An intent that is already final
// counts as refunded.
func (e *Escrow) Refund(ctx context.Context, req *domain.RideRequest) error {
	return e.release(ctx, req, domain.PaymentKindRefund, e.processor.Refund)
}

// Release cancels or refunds whatever the request still holds and returns
// the resulting payment status. Requests holding nothing are left alone.
func (e *Escrow) Release(ctx context.Context, req *domain.RideRequest) (domain.PaymentStatus, error) {
	if req.PaymentIntentID == "" {
		return req.PaymentStatus, nil
	}

	var err error
	switch req.PaymentStatus {
	case domain.PaymentStatusAuthorized:
		err = e.Cancel(ctx, req)
	case domain.PaymentStatusCaptured:
		err = e.Refund(ctx, req)
	default:
		return req.PaymentStatus, nil
	}
	if err != nil {
		return req.PaymentStatus, err
	}
	return domain.PaymentStatusCanceled, nil
}

// ChargePenalty charges a late-cancellation penalty to the user's stored
// payment method. A penalty already charged for the same ride and user is
// returned as is.
func (e *Escrow) ChargePenalty(ctx context.Context, rideID string, user *domain.User, amount int64) (string, error) {
	key := fmt.Sprintf("penalty:%s:%s", rideID, user.ID)

	if e.records != nil {
		existing, err := e.records.GetByIdempotencyKey(ctx, key)
		if err != nil {
			return "", err
		}
		if existing != nil {
			return existing.IntentRef, nil
		}
	}

	if !user.CanPay() {
		err := PaymentFailure("penalty not charged", ErrNoPaymentMethod)
		e.record(ctx, &domain.PaymentRecord{
			RideID:         rideID,
			UserID:         user.ID,
			Kind:           domain.PaymentKindPenalty,
			AmountCents:    amount,
			IdempotencyKey: key,
		}, err)
		return "", err
	}

	ref, err := e.processor.ChargePenalty(ctx, PenaltyParams{
		AmountCents:     amount,
		Currency:        e.policy.Currency,
		CustomerID:      user.StripeCustomerID,
		PaymentMethodID: user.DefaultPaymentMethodID,
		IdempotencyKey:  key,
		Description:     "Late cancellation penalty for ride " + rideID,
	})

	e.record(ctx, &domain.PaymentRecord{
		RideID:         rideID,
		UserID:         user.ID,
		Kind:           domain.PaymentKindPenalty,
		AmountCents:    amount,
		FeeCents:       amount,
		IntentRef:      ref,
		IdempotencyKey: key,
	}, err)

	if err != nil {
		return "", PaymentFailure("penalty charge failed", err)
	}
	return ref, nil
}

func (e *Escrow) release(
	ctx context.Context,
	req *domain.RideRequest,
	kind domain.PaymentKind,
	call func(ctx context.Context, intentRef, idempotencyKey string) error,
) error {
	key := fmt.Sprintf("%s:%s", kind, req.ID)
	err := call(ctx, req.PaymentIntentID, key)
	if errors.Is(err, ErrIntentFinal) {
		e.log.WithFields(logrus.Fields{
			"ride_request_id": req.ID,
			"intent":          req.PaymentIntentID,
			"kind":            kind,
		}).Info("payment intent already final")
		err = nil
	}

	e.record(ctx, &domain.PaymentRecord{
		RideRequestID:  req.ID,
		RideID:         req.RideID,
		UserID:         req.PassengerID,
		Kind:           kind,
		AmountCents:    req.PaymentAmountCents,
		IntentRef:      req.PaymentIntentID,
		IdempotencyKey: key,
	}, err)

	if err != nil {
		return PaymentFailure(fmt.Sprintf("payment %s failed", kind), err)
	}
	return nil
}

// record appends an audit entry. Storage failures are logged only.
func (e *Escrow) record(ctx context.Context, rec *domain.PaymentRecord, callErr error) {
	rec.ID = uuid.New().String()
	rec.CreatedAt = e.now()
	rec.Succeeded = callErr == nil
	if callErr != nil {
		rec.Error = callErr.Error()
	}

	entry := e.log.WithFields(logrus.Fields{
		"kind":            rec.Kind,
		"ride_id":         rec.RideID,
		"ride_request_id": rec.RideRequestID,
		"amount_cents":    rec.AmountCents,
		"succeeded":       rec.Succeeded,
	})
	if callErr != nil {
		entry.WithError(callErr).Warn("payment call failed")
	} else {
		entry.Debug("payment call succeeded")
	}

	if e.records == nil {
		return
	}
	if err := e.records.Create(ctx, rec); err != nil {
		entry.WithError(err).Error("failed to store payment record")
	}
}
