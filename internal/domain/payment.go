package domain

import "time"

// PaymentStatus represents the escrow state of a ride request's payment.
type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "pending"
	PaymentStatusAuthorized PaymentStatus = "authorized"
	PaymentStatusCaptured   PaymentStatus = "captured"
	PaymentStatusCanceled   PaymentStatus = "canceled"
	PaymentStatusFailed     PaymentStatus = "failed"
)

// PaymentKind is the processor primitive a payment record describes.
type PaymentKind string

const (
	PaymentKindAuthorize PaymentKind = "authorize"
	PaymentKindCapture   PaymentKind = "capture"
	PaymentKindCancel    PaymentKind = "cancel"
	PaymentKindRefund    PaymentKind = "refund"
	PaymentKindPenalty   PaymentKind = "penalty"
)

// PaymentRecord is an audit entry for one call to the payment processor.
type PaymentRecord struct {
	ID             string
	RideRequestID  string
	RideID         string
	UserID         string
	Kind           PaymentKind
	AmountCents    int64
	FeeCents       int64
	IntentRef      string
	Succeeded      bool
	Error          string
	IdempotencyKey string
	CreatedAt      time.Time
}
