package tests

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"campusride/internal/domain"
	"campusride/internal/repository"
	"campusride/internal/service"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

// testEnv wires the services over in-memory collaborators.
type testEnv struct {
	store     *MemStore
	processor *MockProcessor
	sender    *MockSender
	locker    *MockLocker
	clock     *Clock
	policy    service.Policy
	deps      service.Deps

	requests  *service.RideRequestService
	lifecycle *service.RideLifecycleService
	sweeper   *service.Sweeper
}

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithPolicy(t, service.DefaultPolicy())
}

func newTestEnvWithPolicy(t *testing.T, policy service.Policy) *testEnv {
	t.Helper()

	store := NewMemStore()
	processor := NewMockProcessor()
	sender := &MockSender{}
	clock := NewClock(t0)
	log := quietLogger()
	repos := store.Repositories()

	deps := service.Deps{
		Tx:       store,
		Repos:    repos,
		Payments: store.Payments(),
		Escrow:   service.NewEscrow(processor, store.Payments(), policy, log),
		Notifier: service.NewNotificationService(repos.Users, sender, log),
		Strikes:  service.NewStrikeLedger(repos.Users, policy),
		Policy:   policy,
		Logger:   log,
		Now:      clock.Now,
	}

	env := &testEnv{
		store:     store,
		processor: processor,
		sender:    sender,
		locker:    NewMockLocker(),
		clock:     clock,
		policy:    policy,
		deps:      deps,
		requests:  service.NewRideRequestService(deps),
		lifecycle: service.NewRideLifecycleService(deps),
	}
	env.sweeper = service.NewSweeper(deps, env.locker, nil)

	env.addDriver("driver-1")
	env.addPassenger("p1", "+15550000001")
	env.addPassenger("p2", "+15550000002")
	env.addPassenger("p3", "+15550000003")
	return env
}

func (e *testEnv) addDriver(id string) {
	e.store.AddUser(&domain.User{
		ID:                     id,
		Email:                  id + "@cornell.edu",
		Phone:                  "+15559990000",
		PhoneVerified:          true,
		StripeCustomerID:       "cus_" + id,
		DefaultPaymentMethodID: "pm_" + id,
		ConnectAccountID:       "acct_" + id,
	})
}

func (e *testEnv) addPassenger(id, phone string) {
	e.store.AddUser(&domain.User{
		ID:                     id,
		Email:                  id + "@cornell.edu",
		Phone:                  phone,
		PhoneVerified:          true,
		StripeCustomerID:       "cus_" + id,
		DefaultPaymentMethodID: "pm_" + id,
	})
}

// addRide stores an open driver ride from the hub departing in departIn.
func (e *testEnv) addRide(id string, seats int, price int64, departIn time.Duration) {
	e.store.AddRide(&domain.Ride{
		ID:                   id,
		DriverID:             "driver-1",
		RideType:             domain.RideTypeDriver,
		OriginCity:           "Ithaca",
		DestinationCity:      "New York",
		DepartureAt:          e.clock.Now().Add(departIn),
		ArrivalAt:            e.clock.Now().Add(departIn + 4*time.Hour),
		SeatsTotal:           seats,
		SeatsLeft:            seats,
		CheckInBaggageTotal:  seats,
		CheckInBaggageLeft:   seats,
		PersonalBaggageTotal: seats,
		PersonalBaggageLeft:  seats,
		PriceCents:           price,
		CreatedAt:            e.clock.Now(),
	})
}

func (e *testEnv) request(t *testing.T, rideID, passengerID string) *domain.RideRequest {
	t.Helper()
	res, err := e.requests.Create(context.Background(), service.CreateRideRequestInput{
		RideID:      rideID,
		PassengerID: passengerID,
	})
	if err != nil {
		t.Fatalf("create request for %s: %v", passengerID, err)
	}
	return res.Request
}

func (e *testEnv) approve(t *testing.T, req *domain.RideRequest) *service.ApprovalResult {
	t.Helper()
	res, err := e.requests.Approve(context.Background(), req.ID, "driver-1")
	if err != nil {
		t.Fatalf("approve %s: %v", req.ID, err)
	}
	return res
}

// startRide takes an approved ride through the start code exchange.
func (e *testEnv) startRide(t *testing.T, rideID, passengerID string) {
	t.Helper()
	ctx := context.Background()
	code, err := e.lifecycle.GenerateStartCode(ctx, rideID, "driver-1")
	if err != nil {
		t.Fatalf("generate start code: %v", err)
	}
	if _, err := e.lifecycle.VerifyStart(ctx, rideID, passengerID, code); err != nil {
		t.Fatalf("verify start: %v", err)
	}
}

// interleavedTx runs before once, ahead of the next transaction. It stands
// in for a concurrent writer that commits between a service's checks and
// its transaction.
type interleavedTx struct {
	*MemStore
	before func()
}

func (tx *interleavedTx) WithinTx(ctx context.Context, fn func(ctx context.Context, repos repository.Repositories) error) error {
	if before := tx.before; before != nil {
		tx.before = nil
		before()
	}
	return tx.MemStore.WithinTx(ctx, fn)
}

// startRideConcurrently returns deps whose next transaction first sees the
// ride started by someone else.
func (e *testEnv) startRideConcurrently(rideID string) service.Deps {
	deps := e.deps
	deps.Tx = &interleavedTx{MemStore: e.store, before: func() {
		e.store.MutateRide(rideID, func(r *domain.Ride) {
			r.IsStarted = true
			r.StartedAt = e.clock.Now()
		})
	}}
	return deps
}

func assertErrorIs(t *testing.T, err, want error) {
	t.Helper()
	if !errors.Is(err, want) {
		t.Fatalf("expected %v, got %v", want, err)
	}
}

func assertKind(t *testing.T, err error, want service.Kind) {
	t.Helper()
	if got := service.KindOf(err); got != want {
		t.Fatalf("expected kind %s, got %s (%v)", want, got, err)
	}
}

// assertSeatConservation checks that taken seats equal approved requests.
func assertSeatConservation(t *testing.T, e *testEnv, rideID string) {
	t.Helper()
	ride := e.store.Ride(rideID)
	if ride.SeatsLeft < 0 || ride.SeatsLeft > ride.SeatsTotal {
		t.Fatalf("seats left out of range: %d of %d", ride.SeatsLeft, ride.SeatsTotal)
	}
	approved := e.store.CountByStatus(rideID, domain.RequestStatusApproved)
	if ride.SeatsTaken() != approved {
		t.Fatalf("seats taken %d != approved requests %d", ride.SeatsTaken(), approved)
	}
}
