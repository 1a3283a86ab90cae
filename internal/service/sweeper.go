package service

import (
	"context"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/sirupsen/logrus"

	"campusride/internal/domain"
	"campusride/internal/repository"
)

const sweepLockKey = "settlement-sweep"

// Locker is a distributed mutex keyed by name. Acquire returns a token that
// must be passed to Release.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	Release(ctx context.Context, key, token string) error
}

// SweepAction is what the sweeper did with one stale authorization.
type SweepAction string

const (
	SweepCaptured      SweepAction = "captured"
	SweepCaptureFailed SweepAction = "capture_failed"
	SweepExpired       SweepAction = "expired"
	SweepReleased      SweepAction = "released"
	SweepSkipped       SweepAction = "skipped"
	SweepFailed        SweepAction = "failed"
)

// SweepItem is the outcome for one request.
type SweepItem struct {
	RequestID    string
	RideID       string
	Status       domain.RequestStatus
	Action       SweepAction
	Err          error
	Notification *NotificationStatus
}

// SweepReport aggregates one sweep run.
type SweepReport struct {
	StartedAt  time.Time
	FinishedAt time.Time
	Cutoff     time.Time
	Items      []SweepItem
	Locked     bool // another instance held the sweep lock
}

// Count returns how many items ended with the given action.
func (r *SweepReport) Count(action SweepAction) int {
	n := 0
	for _, it := range r.Items {
		if it.Action == action {
			n++
		}
	}
	return n
}

// Failures returns the number of items that reported an error.
func (r *SweepReport) Failures() int {
	n := 0
	for _, it := range r.Items {
		if it.Err != nil {
			n++
		}
	}
	return n
}

// Sweeper settles authorizations left open past the settlement deadline.
type Sweeper struct {
	core
	lock    Locker
	lockTTL time.Duration
	nrApp   *newrelic.Application
}

// NewSweeper creates a new Sweeper. lock and nrApp may be nil.
func NewSweeper(d Deps, lock Locker, nrApp *newrelic.Application) *Sweeper {
	return &Sweeper{
		core:    newCore(d),
		lock:    lock,
		lockTTL: 15 * time.Minute,
		nrApp:   nrApp,
	}
}

// Run sweeps once per interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		s.log.Warn("settlement sweeper disabled")
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.log.WithField("interval", interval.String()).Info("settlement sweeper started")

	for {
		select {
		case <-ctx.Done():
			s.log.Info("settlement sweeper stopped")
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				s.log.WithError(err).Error("settlement sweep failed")
			}
		}
	}
}

// Sweep runs one sweep under the distributed lock. When another instance
// holds the lock the returned report has Locked set and no items.
func (s *Sweeper) Sweep(ctx context.Context) (*SweepReport, error) {
	txn := s.nrApp.StartTransaction("settlement-sweep")
	defer txn.End()
	ctx = newrelic.NewContext(ctx, txn)

	if s.lock != nil {
		token, ok, err := s.lock.Acquire(ctx, sweepLockKey, s.lockTTL)
		if err != nil {
			txn.NoticeError(err)
			return nil, err
		}
		if !ok {
			s.log.Info("settlement sweep already running elsewhere")
			return &SweepReport{StartedAt: s.now(), FinishedAt: s.now(), Locked: true}, nil
		}
		defer func() {
			if err := s.lock.Release(context.WithoutCancel(ctx), sweepLockKey, token); err != nil {
				s.log.WithError(err).Warn("failed to release sweep lock")
			}
		}()
	}

	report, err := s.RunOnce(ctx)
	if err != nil {
		txn.NoticeError(err)
		return nil, err
	}
	txn.AddAttribute("items", len(report.Items))
	txn.AddAttribute("failures", report.Failures())
	return report, nil
}

// RunOnce resolves every authorization older than the settlement deadline.
// Each request is handled on its own; failures are collected in the report.
func (s *Sweeper) RunOnce(ctx context.Context) (*SweepReport, error) {
	now := s.now()
	report := &SweepReport{StartedAt: now, Cutoff: now.Add(-s.Policy.SettlementDeadline)}

	stale, err := s.Repos.Requests.ListStaleAuthorized(ctx, report.Cutoff)
	if err != nil {
		return nil, err
	}

	for _, req := range stale {
		item := s.sweepOne(ctx, req, now)
		if item.Err != nil {
			s.log.WithError(item.Err).WithFields(logrus.Fields{
				"ride_request_id": item.RequestID,
				"action":          item.Action,
			}).Warn("sweep item failed")
		}
		report.Items = append(report.Items, item)
	}

	report.FinishedAt = s.now()
	s.log.WithFields(logrus.Fields{
		"scanned":  len(stale),
		"captured": report.Count(SweepCaptured),
		"expired":  report.Count(SweepExpired),
		"released": report.Count(SweepReleased),
		"failures": report.Failures(),
	}).Info("settlement sweep finished")

	return report, nil
}

func (s *Sweeper) sweepOne(ctx context.Context, req *domain.RideRequest, now time.Time) SweepItem {
	item := SweepItem{RequestID: req.ID, RideID: req.RideID, Status: req.Status}

	ride, err := s.loadRide(ctx, req.RideID)
	if err != nil {
		item.Action, item.Err = SweepFailed, err
		return item
	}

	switch req.Status {
	case domain.RequestStatusApproved:
		deadline := s.Policy.SettlementDeadline
		switch {
		case ride.IsCompleted:
			outcome := captureRequest(ctx, s.core, req)
			item.Action, item.Err = SweepCaptured, outcome.Err
			if outcome.Err != nil {
				item.Action = SweepCaptureFailed
			}
		case ride.IsCancelled,
			!ride.IsStarted && now.After(ride.DepartureAt.Add(deadline)),
			ride.IsStarted && now.After(ride.StartedAt.Add(deadline)):
			item.Action, item.Notification, item.Err = s.expireBooking(ctx, ride, req)
		default:
			item.Action = SweepSkipped
		}

	case domain.RequestStatusPending:
		ok, err := s.Repos.Requests.TransitionStatus(ctx, req.ID, domain.RequestStatusPending, domain.RequestStatusCanceled)
		if err != nil {
			item.Action, item.Err = SweepFailed, err
			return item
		}
		if !ok {
			item.Action = SweepSkipped
			return item
		}
		req.Status = domain.RequestStatusCanceled
		item.Status = req.Status
		item.Action, item.Err = SweepReleased, s.releaseHold(ctx, req).Err

	default:
		// A terminal request still holding funds is a release that failed earlier.
		item.Action, item.Err = SweepReleased, s.releaseHold(ctx, req).Err
	}

	if item.Err != nil && item.Action != SweepCaptureFailed {
		item.Action = SweepFailed
	}
	return item
}

// expireBooking cancels an approved booking that was never settled.
func (s *Sweeper) expireBooking(ctx context.Context, ride *domain.Ride, req *domain.RideRequest) (SweepAction, *NotificationStatus, error) {
	err := s.Tx.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		return cancelBooking(ctx, repos, ride.ID, req)
	})
	if err != nil {
		return SweepFailed, nil, err
	}

	outcome := s.releaseHold(ctx, req)
	notice := s.Notifier.NotifyBookingExpired(ctx, ride, req)
	return SweepExpired, &notice, outcome.Err
}
