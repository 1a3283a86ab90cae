package service

import (
	"fmt"
	"strings"
	"time"

	"campusride/internal/domain"
)

// Receipt summarizes what one passenger paid for a completed ride.
type Receipt struct {
	RideID          string
	RideRequestID   string
	PassengerID     string
	DriverID        string
	OriginCity      string
	DestinationCity string
	DepartureAt     time.Time
	CompletedAt     time.Time
	AmountCents     int64
	FeeCents        int64
	PayoutCents     int64
	PaymentStatus   domain.PaymentStatus
}

// BuildReceipt builds the receipt for a captured request.
func BuildReceipt(policy Policy, ride *domain.Ride, req *domain.RideRequest) Receipt {
	fee := policy.FeeCents(req.PaymentAmountCents)
	return Receipt{
		RideID:          ride.ID,
		RideRequestID:   req.ID,
		PassengerID:     req.PassengerID,
		DriverID:        ride.DriverID,
		OriginCity:      ride.OriginCity,
		DestinationCity: ride.DestinationCity,
		DepartureAt:     ride.DepartureAt,
		CompletedAt:     ride.CompletedAt,
		AmountCents:     req.PaymentAmountCents,
		FeeCents:        fee,
		PayoutCents:     req.PaymentAmountCents - fee,
		PaymentStatus:   req.PaymentStatus,
	}
}

// FormatReceipt renders the receipt as a short text message.
func FormatReceipt(r Receipt) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Receipt for your ride %s -> %s on %s\n",
		r.OriginCity, r.DestinationCity, r.DepartureAt.Format("Jan 2 15:04"))
	fmt.Fprintf(&b, "Fare: %s (driver %s, service fee %s)\n",
		formatCents(r.AmountCents), formatCents(r.PayoutCents), formatCents(r.FeeCents))
	fmt.Fprintf(&b, "Payment: %s\n", r.PaymentStatus)
	b.WriteString("Ref: " + r.RideRequestID)
	return b.String()
}

func formatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s$%d.%02d", sign, cents/100, cents%100)
}
