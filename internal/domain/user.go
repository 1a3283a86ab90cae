package domain

import "time"

// User represents a student account. Identity comes from the external
// provider; the rest is stored locally.
type User struct {
	ID            string
	Email         string
	Name          string
	Phone         string
	PhoneVerified bool

	// Payment references held by the processor.
	StripeCustomerID       string
	DefaultPaymentMethodID string
	ConnectAccountID       string

	CancellationStrikeCount int
	StrikeResetDate         time.Time
	RidesCompleted          int
	CreatedAt               time.Time
}

// CanPay reports whether the user has a stored payment method.
func (u *User) CanPay() bool {
	return u.StripeCustomerID != "" && u.DefaultPaymentMethodID != ""
}

// CanReceivePayouts reports whether the user has a payout account.
func (u *User) CanReceivePayouts() bool {
	return u.ConnectAccountID != ""
}

// Principal is the authenticated caller as resolved from the identity provider.
type Principal struct {
	ID            string
	Email         string
	EmailVerified bool
}
