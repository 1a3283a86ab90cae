package service

import (
	"math"
	"strings"
	"time"

	"campusride/internal/config"
)

// Policy holds the marketplace rules applied by the state machines.
type Policy struct {
	PlatformFeePercent     float64
	PenaltyPercent         float64
	PenaltyFreeStrikes     int
	LateCancellationWindow time.Duration
	StrikeDecay            time.Duration
	SettlementDeadline     time.Duration
	HubCity                string
	MinPriceCents          int64
	MaxPriceCents          int64
	MaxSeats               int
	Currency               string
}

// DefaultPolicy returns the production defaults.
func DefaultPolicy() Policy {
	return Policy{
		PlatformFeePercent:     7,
		PenaltyPercent:         20,
		PenaltyFreeStrikes:     1,
		LateCancellationWindow: 48 * time.Hour,
		SettlementDeadline:     24 * time.Hour,
		HubCity:                "Ithaca",
		MinPriceCents:          500,
		MaxPriceCents:          20000,
		MaxSeats:               8,
		Currency:               "usd",
	}
}

// PolicyFromConfig builds a Policy from loaded configuration.
func PolicyFromConfig(cfg *config.Config) Policy {
	p := cfg.Policy
	return Policy{
		PlatformFeePercent:     p.PlatformFeePercent,
		PenaltyPercent:         p.PenaltyPercent,
		PenaltyFreeStrikes:     p.PenaltyFreeStrikes,
		LateCancellationWindow: p.LateCancellationWindow,
		StrikeDecay:            p.StrikeDecay,
		SettlementDeadline:     p.SettlementDeadline,
		HubCity:                strings.TrimSpace(p.HubCity),
		MinPriceCents:          p.MinPriceCents,
		MaxPriceCents:          p.MaxPriceCents,
		MaxSeats:               p.MaxSeats,
		Currency:               cfg.Stripe.Currency,
	}
}

// FeeCents returns the platform fee taken from amount.
func (p Policy) FeeCents(amount int64) int64 {
	return percentOf(amount, p.PlatformFeePercent)
}

// PenaltyCents returns the late cancellation penalty on base.
func (p Policy) PenaltyCents(base int64) int64 {
	return percentOf(base, p.PenaltyPercent)
}

// PriceAllowed reports whether a per-seat price is within bounds.
func (p Policy) PriceAllowed(cents int64) bool {
	if cents <= 0 {
		return false
	}
	if p.MinPriceCents > 0 && cents < p.MinPriceCents {
		return false
	}
	if p.MaxPriceCents > 0 && cents > p.MaxPriceCents {
		return false
	}
	return true
}

// IsLateCancellation reports whether cancelling at now falls inside the
// late window before departure.
func (p Policy) IsLateCancellation(departure, now time.Time) bool {
	return departure.Sub(now) < p.LateCancellationWindow
}

// nextStrikeReset returns the reset date for a strike recorded at now,
// or the zero time when strikes never decay.
func (p Policy) nextStrikeReset(now time.Time) time.Time {
	if p.StrikeDecay <= 0 {
		return time.Time{}
	}
	return now.Add(p.StrikeDecay)
}

func percentOf(amount int64, percent float64) int64 {
	if amount <= 0 || percent <= 0 {
		return 0
	}
	return int64(math.Round(float64(amount) * percent / 100))
}
