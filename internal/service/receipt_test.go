package service

import (
	"strings"
	"testing"
	"time"

	"campusride/internal/domain"
)

func TestBuildReceipt(t *testing.T) {
	departure := time.Date(2026, 3, 5, 14, 30, 0, 0, time.UTC)
	ride := &domain.Ride{ID: "ride-1", DriverID: "driver-1", OriginCity: "Ithaca", DestinationCity: "New York", DepartureAt: departure}
	req := &domain.RideRequest{ID: "req-1", PassengerID: "p1", PaymentAmountCents: 3000, PaymentStatus: domain.PaymentStatusCaptured}

	r := BuildReceipt(DefaultPolicy(), ride, req)

	if r.AmountCents != 3000 || r.FeeCents != 210 || r.PayoutCents != 2790 {
		t.Errorf("unexpected amounts %+v", r)
	}

	text := FormatReceipt(r)
	for _, want := range []string{"Ithaca -> New York", "Mar 5 14:30", "Fare: $30.00", "driver $27.90", "service fee $2.10", "captured", "Ref: req-1"} {
		if !strings.Contains(text, want) {
			t.Errorf("receipt %q is missing %q", text, want)
		}
	}
}

func TestFormatCents(t *testing.T) {
	for cents, want := range map[int64]string{0: "$0.00", 5: "$0.05", 195: "$1.95", 20000: "$200.00", -558: "-$5.58"} {
		if got := formatCents(cents); got != want {
			t.Errorf("formatCents(%d) = %s, want %s", cents, got, want)
		}
	}
}
