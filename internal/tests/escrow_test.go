package tests

import (
	"context"
	"errors"
	"testing"

	"campusride/internal/domain"
	"campusride/internal/service"
)

func newEscrow() (*service.Escrow, *MockProcessor, *MockPaymentRepository) {
	processor := NewMockProcessor()
	records := NewMockPaymentRepository()
	return service.NewEscrow(processor, records, service.DefaultPolicy(), quietLogger()), processor, records
}

func TestEscrow_PenaltyIsChargedOncePerRideAndUser(t *testing.T) {
	t.Parallel()

	escrow, processor, records := newEscrow()
	user := &domain.User{ID: "p1", StripeCustomerID: "cus_p1", DefaultPaymentMethodID: "pm_p1"}
	ctx := context.Background()

	first, err := escrow.ChargePenalty(ctx, "ride-1", user, 800)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := escrow.ChargePenalty(ctx, "ride-1", user, 800)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if first != second {
		t.Errorf("expected the same reference, got %s and %s", first, second)
	}
	if processor.PenaltyCount() != 1 {
		t.Errorf("expected one charge, got %d", processor.PenaltyCount())
	}
	if processor.Penalties[0].IdempotencyKey != "penalty:ride-1:p1" {
		t.Errorf("unexpected idempotency key %s", processor.Penalties[0].IdempotencyKey)
	}
	if len(records.Records(domain.PaymentKindPenalty)) != 1 {
		t.Error("expected one penalty record")
	}
}

func TestEscrow_PenaltyWithoutPaymentMethod(t *testing.T) {
	t.Parallel()

	escrow, processor, records := newEscrow()

	_, err := escrow.ChargePenalty(context.Background(), "ride-1", &domain.User{ID: "p1"}, 800)

	assertErrorIs(t, err, service.ErrNoPaymentMethod)
	assertKind(t, err, service.KindPayment)
	if processor.PenaltyCount() != 0 {
		t.Error("the processor must not be called")
	}
	recs := records.Records(domain.PaymentKindPenalty)
	if len(recs) != 1 || recs[0].Succeeded {
		t.Errorf("expected one failed penalty record, got %+v", recs)
	}
}

func TestEscrow_ReleaseByPaymentStatus(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name       string
		status     domain.PaymentStatus
		intent     string
		wantStatus domain.PaymentStatus
		wantIntent string
		wantKind   domain.PaymentKind
	}{
		{"authorized is cancelled", domain.PaymentStatusAuthorized, "authorized", domain.PaymentStatusCanceled, "canceled", domain.PaymentKindCancel},
		{"captured is refunded", domain.PaymentStatusCaptured, "captured", domain.PaymentStatusCanceled, "refunded", domain.PaymentKindRefund},
		{"failed is left alone", domain.PaymentStatusFailed, "authorized", domain.PaymentStatusFailed, "authorized", ""},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			escrow, processor, records := newEscrow()
			processor.SetIntentState("pi_x", tc.intent)
			req := &domain.RideRequest{ID: "req-1", RideID: "ride-1", PaymentIntentID: "pi_x", PaymentStatus: tc.status}

			status, err := escrow.Release(context.Background(), req)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if status != tc.wantStatus {
				t.Errorf("expected %s, got %s", tc.wantStatus, status)
			}
			if got := processor.IntentState("pi_x"); got != tc.wantIntent {
				t.Errorf("expected intent %s, got %s", tc.wantIntent, got)
			}
			if tc.wantKind != "" && len(records.Records(tc.wantKind)) != 1 {
				t.Errorf("expected a %s record", tc.wantKind)
			}
		})
	}
}

func TestEscrow_CaptureFailureIsPaymentKind(t *testing.T) {
	t.Parallel()

	escrow, processor, records := newEscrow()
	processor.SetIntentState("pi_x", "authorized")
	processor.FailCapture["pi_x"] = errors.New("card expired")
	req := &domain.RideRequest{ID: "req-1", PaymentIntentID: "pi_x", PaymentAmountCents: 3000}

	err := escrow.Capture(context.Background(), req, "ride-1")

	assertKind(t, err, service.KindPayment)
	recs := records.Records(domain.PaymentKindCapture)
	if len(recs) != 1 || recs[0].Succeeded || recs[0].FeeCents != 210 {
		t.Errorf("expected one failed capture record with fee 210, got %+v", recs)
	}
}
