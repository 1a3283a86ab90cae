package service

import (
	"context"
	"time"

	"campusride/internal/repository"
)

// StrikeLedger counts late cancellations per user.
type StrikeLedger struct {
	users  repository.UserRepository
	policy Policy
}

// NewStrikeLedger creates a new StrikeLedger.
func NewStrikeLedger(users repository.UserRepository, policy Policy) *StrikeLedger {
	return &StrikeLedger{users: users, policy: policy}
}

// RecordStrike increments the user's strike count and returns the new value.
// With StrikeDecay set, a count whose reset date has passed starts over.
func (l *StrikeLedger) RecordStrike(ctx context.Context, userID string, now time.Time) (int, error) {
	if userID == "" {
		return 0, ErrInvalidUserID
	}
	count, err := l.users.RecordStrike(ctx, userID, now, l.policy.nextStrikeReset(now))
	if err != nil {
		return 0, notFound(err, ErrUserNotFound)
	}
	return count, nil
}

// PenaltyDue reports whether a strike count is past the free warnings.
func (l *StrikeLedger) PenaltyDue(count int) bool {
	return count > l.policy.PenaltyFreeStrikes
}
