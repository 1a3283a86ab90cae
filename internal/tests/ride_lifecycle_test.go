package tests

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"campusride/internal/domain"
	"campusride/internal/service"
)

func TestStartCode_ApprovedPassengerStartsRide(t *testing.T) {
	env := newTestEnv(t)
	env.addRide("ride-1", 2, 3000, 72*time.Hour)
	env.approve(t, env.request(t, "ride-1", "p1"))
	ctx := context.Background()

	code, err := env.lifecycle.GenerateStartCode(ctx, "ride-1", "driver-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(code) != 4 {
		t.Errorf("expected a 4 digit code, got %q", code)
	}

	wrong := "0000"
	if code == wrong {
		wrong = "1111"
	}
	_, err = env.lifecycle.VerifyStart(ctx, "ride-1", "p1", wrong)
	assertErrorIs(t, err, service.ErrWrongCode)
	assertKind(t, err, service.KindValidation)
	if env.store.Ride("ride-1").IsStarted {
		t.Fatal("a wrong code must not start the ride")
	}

	started, err := env.lifecycle.VerifyStart(ctx, "ride-1", "p1", code)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !started.Ride.IsStarted || started.Ride.StartedAt.IsZero() {
		t.Error("expected the ride to be started")
	}
	if n := started.Notification; !n.Delivered || n.RecipientID != "driver-1" || n.Type != service.NotificationRideStarted {
		t.Errorf("expected a delivered start notice to the driver, got %+v", n)
	}
	stored := env.store.Ride("ride-1")
	if stored.State() != domain.RideStateStarted || stored.StartVerificationCode != "" {
		t.Errorf("expected started ride with consumed code, got %s/%q", stored.State(), stored.StartVerificationCode)
	}

	_, err = env.lifecycle.VerifyStart(ctx, "ride-1", "p1", code)
	assertErrorIs(t, err, service.ErrCodeNotIssued)
}

func TestStartCode_Restrictions(t *testing.T) {
	env := newTestEnv(t)
	env.addRide("ride-1", 2, 3000, 72*time.Hour)
	pending := env.request(t, "ride-1", "p2")
	ctx := context.Background()

	t.Run("no approved requests", func(t *testing.T) {
		_, err := env.lifecycle.GenerateStartCode(ctx, "ride-1", "driver-1")
		assertErrorIs(t, err, service.ErrNoApprovedRequests)
	})

	env.approve(t, env.request(t, "ride-1", "p1"))

	t.Run("not the owner", func(t *testing.T) {
		_, err := env.lifecycle.GenerateStartCode(ctx, "ride-1", "p1")
		assertErrorIs(t, err, service.ErrNotRideOwner)
	})

	code, err := env.lifecycle.GenerateStartCode(ctx, "ride-1", "driver-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	t.Run("pending passenger", func(t *testing.T) {
		_, err := env.lifecycle.VerifyStart(ctx, "ride-1", pending.PassengerID, code)
		assertErrorIs(t, err, service.ErrNotRideParticipant)
		assertKind(t, err, service.KindAuthorization)
	})

	t.Run("stranger", func(t *testing.T) {
		_, err := env.lifecycle.VerifyStart(ctx, "ride-1", "p3", code)
		assertErrorIs(t, err, service.ErrNotRideParticipant)
	})

	t.Run("completion before start", func(t *testing.T) {
		_, err := env.lifecycle.GenerateCompletionCode(ctx, "ride-1", "driver-1")
		assertErrorIs(t, err, service.ErrRideNotStarted)
	})
}

func TestVerifyCompletion_CapturesFareAndFee(t *testing.T) {
	env := newTestEnv(t)
	env.addRide("ride-1", 2, 3000, 72*time.Hour)
	req := env.request(t, "ride-1", "p1")
	env.approve(t, req)
	env.startRide(t, "ride-1", "p1")
	ctx := context.Background()

	code, err := env.lifecycle.GenerateCompletionCode(ctx, "ride-1", "driver-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(code) != 6 {
		t.Errorf("expected a 6 digit code, got %q", code)
	}

	res, err := env.lifecycle.VerifyCompletion(ctx, "ride-1", "p1", code)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if res.CapturedCents != 3000 || res.FeeCents != 210 || res.PayoutCents != 2790 {
		t.Errorf("expected 3000/210/2790, got %d/%d/%d", res.CapturedCents, res.FeeCents, res.PayoutCents)
	}
	if len(res.Captures) != 1 || res.Captures[0].Failed() {
		t.Fatalf("expected one successful capture, got %+v", res.Captures)
	}

	stored := env.store.Request(req.ID)
	if stored.PaymentStatus != domain.PaymentStatusCaptured {
		t.Errorf("expected captured, got %s", stored.PaymentStatus)
	}
	if env.processor.IntentState(req.PaymentIntentID) != "captured" {
		t.Error("expected processor intent captured")
	}
	if ride := env.store.Ride("ride-1"); ride.State() != domain.RideStateCompleted {
		t.Error("expected ride completed")
	}
	if env.store.User("driver-1").RidesCompleted != 1 || env.store.User("p1").RidesCompleted != 1 {
		t.Error("expected ride counts bumped for driver and passenger")
	}

	if len(res.Receipts) != 1 || res.Receipts[0].PassengerID != "p1" {
		t.Fatalf("expected a receipt for p1, got %+v", res.Receipts)
	}
	sent := env.sender.SentTo("+15550000001")
	if len(sent) == 0 || !strings.Contains(sent[len(sent)-1], "Fare: $30.00") {
		t.Errorf("expected receipt sms for p1, got %v", sent)
	}
	if len(env.store.Payments().Records(domain.PaymentKindCapture)) != 1 {
		t.Error("expected a capture record")
	}
}

func TestVerifyCompletion_CaptureFailureIsIsolated(t *testing.T) {
	env := newTestEnv(t)
	env.addRide("ride-1", 2, 3000, 72*time.Hour)
	a := env.request(t, "ride-1", "p1")
	b := env.request(t, "ride-1", "p2")
	env.approve(t, a)
	env.approve(t, b)
	env.startRide(t, "ride-1", "p1")
	env.processor.FailCapture[b.PaymentIntentID] = errors.New("card expired")
	ctx := context.Background()

	code, err := env.lifecycle.GenerateCompletionCode(ctx, "ride-1", "driver-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	res, err := env.lifecycle.VerifyCompletion(ctx, "ride-1", "p2", code)
	if err != nil {
		t.Fatalf("a capture failure must not fail completion: %v", err)
	}

	if res.CapturedCents != 3000 {
		t.Errorf("expected only one fare captured, got %d", res.CapturedCents)
	}
	if env.store.Request(a.ID).PaymentStatus != domain.PaymentStatusCaptured {
		t.Error("expected first request captured")
	}
	if env.store.Request(b.ID).PaymentStatus != domain.PaymentStatusFailed {
		t.Error("expected second request marked failed")
	}
	if ride := env.store.Ride("ride-1"); ride.State() != domain.RideStateCompleted {
		t.Error("ride must stay completed")
	}
	if env.store.User("p2").RidesCompleted != 0 {
		t.Error("unpaid passenger must not get a completed ride")
	}
}

func TestVerifyCompletion_WrongCode(t *testing.T) {
	env := newTestEnv(t)
	env.addRide("ride-1", 2, 3000, 72*time.Hour)
	env.approve(t, env.request(t, "ride-1", "p1"))
	env.startRide(t, "ride-1", "p1")
	ctx := context.Background()

	_, err := env.lifecycle.VerifyCompletion(ctx, "ride-1", "p1", "123456")
	assertErrorIs(t, err, service.ErrCodeNotIssued)

	code, err := env.lifecycle.GenerateCompletionCode(ctx, "ride-1", "driver-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}
	_, err = env.lifecycle.VerifyCompletion(ctx, "ride-1", "p1", wrong)
	assertErrorIs(t, err, service.ErrWrongCode)
	if env.processor.IntentState("pi_1") != "authorized" {
		t.Error("nothing must be captured on a wrong code")
	}
}

func TestCancelRide_OwnerEarlyCancelReleasesEverything(t *testing.T) {
	env := newTestEnv(t)
	env.addRide("ride-1", 2, 3000, 72*time.Hour)
	approved := env.request(t, "ride-1", "p1")
	pending := env.request(t, "ride-1", "p2")
	env.approve(t, approved)

	res, err := env.lifecycle.Cancel(context.Background(), "ride-1", "driver-1", "car broke down")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !res.RideCanceled || len(res.Requests) != 2 {
		t.Fatalf("expected ride and two requests canceled, got %+v", res)
	}
	if res.Strike != nil {
		t.Error("an early cancellation must not record a strike")
	}

	ride := env.store.Ride("ride-1")
	if ride.State() != domain.RideStateCancelled || ride.CancelledBy != domain.ActorDriver {
		t.Errorf("expected cancelled by driver, got %s/%s", ride.State(), ride.CancelledBy)
	}
	if ride.CancellationReason != "car broke down" {
		t.Errorf("unexpected reason %q", ride.CancellationReason)
	}
	for _, id := range []string{approved.ID, pending.ID} {
		stored := env.store.Request(id)
		if stored.Status != domain.RequestStatusCanceled || stored.PaymentStatus != domain.PaymentStatusCanceled {
			t.Errorf("request %s: expected canceled/canceled, got %s/%s", id, stored.Status, stored.PaymentStatus)
		}
	}
	assertSeatConservation(t, env, "ride-1")
	if ride.SeatsLeft != 2 {
		t.Errorf("expected seats restored, got %d", ride.SeatsLeft)
	}
	if env.store.User("driver-1").CancellationStrikeCount != 0 {
		t.Error("expected no strike")
	}
}

func TestCancelRide_OwnerLateCancelWarnsThenPenalizes(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.addRide("ride-1", 2, 3000, 10*time.Hour)
	env.approve(t, env.request(t, "ride-1", "p1"))

	first, err := env.lifecycle.Cancel(ctx, "ride-1", "driver-1", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.Strike == nil || !first.Strike.Warning || first.Strike.Count != 1 || first.Strike.PenaltyApplied {
		t.Fatalf("expected a first strike warning, got %+v", first.Strike)
	}
	if env.processor.PenaltyCount() != 0 {
		t.Error("a warning must not charge a penalty")
	}
	if len(first.Requests) != 1 || first.Requests[0].Notification == nil || !first.Requests[0].Notification.Delivered {
		t.Errorf("expected p1 to be told of the cancellation, got %+v", first.Requests)
	}

	env.addRide("ride-2", 2, 3000, 10*time.Hour)
	env.approve(t, env.request(t, "ride-2", "p1"))

	second, err := env.lifecycle.Cancel(ctx, "ride-2", "driver-1", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	strike := second.Strike
	if strike == nil || strike.Warning || strike.Count != 2 {
		t.Fatalf("expected a second strike with penalty, got %+v", strike)
	}
	if strike.PenaltyCents != 558 {
		t.Errorf("expected 20%% of the 2790 payout = 558, got %d", strike.PenaltyCents)
	}
	if strike.Err != nil || !strike.PenaltyApplied || strike.PenaltyRef == "" {
		t.Errorf("expected penalty charged, got ref %q err %v", strike.PenaltyRef, strike.Err)
	}
	if env.processor.Penalties[0].CustomerID != "cus_driver-1" {
		t.Errorf("expected the driver to be charged, got %s", env.processor.Penalties[0].CustomerID)
	}
}

func TestCancelRide_LatePassengerWithPriorStrikeIsPenalized(t *testing.T) {
	env := newTestEnv(t)
	env.addRide("ride-1", 2, 4000, 10*time.Hour)
	req := env.request(t, "ride-1", "p1")
	env.approve(t, req)
	env.store.AddUser(&domain.User{
		ID:                      "p1",
		Email:                   "p1@cornell.edu",
		StripeCustomerID:        "cus_p1",
		DefaultPaymentMethodID:  "pm_p1",
		CancellationStrikeCount: 1,
	})

	res, err := env.lifecycle.Cancel(context.Background(), "ride-1", "p1", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if res.RideCanceled {
		t.Error("a passenger must only cancel their own seat")
	}
	if ride := env.store.Ride("ride-1"); ride.State() != domain.RideStateCreated {
		t.Error("ride must stay open")
	}
	if env.store.Request(req.ID).Status != domain.RequestStatusCanceled {
		t.Error("expected the booking canceled")
	}
	assertSeatConservation(t, env, "ride-1")

	if res.Strike == nil || res.Strike.Count != 2 || res.Strike.PenaltyCents != 800 {
		t.Fatalf("expected second strike with 800 penalty, got %+v", res.Strike)
	}
	if len(env.store.Payments().Records(domain.PaymentKindPenalty)) != 1 {
		t.Error("expected a penalty record")
	}
}

func TestCancelRide_PenaltyFailureDoesNotBlockCancellation(t *testing.T) {
	env := newTestEnv(t)
	env.addRide("ride-1", 2, 4000, 10*time.Hour)
	req := env.request(t, "ride-1", "p1")
	env.approve(t, req)
	env.store.AddUser(&domain.User{
		ID:                      "p1",
		Email:                   "p1@cornell.edu",
		StripeCustomerID:        "cus_p1",
		DefaultPaymentMethodID:  "pm_p1",
		CancellationStrikeCount: 1,
	})
	env.processor.PenaltyError = errors.New("insufficient funds")

	res, err := env.lifecycle.Cancel(context.Background(), "ride-1", "p1", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if res.Strike == nil || res.Strike.Err == nil {
		t.Fatalf("expected the penalty failure to be reported, got %+v", res.Strike)
	}
	assertKind(t, res.Strike.Err, service.KindPayment)
	if res.Strike.PenaltyApplied || res.Strike.PenaltyCents != 800 {
		t.Errorf("expected an 800 cent penalty that was not applied, got %+v", res.Strike)
	}
	if env.store.Request(req.ID).Status != domain.RequestStatusCanceled {
		t.Error("the booking must be canceled anyway")
	}
	if env.store.User("p1").CancellationStrikeCount != 2 {
		t.Error("the strike must be recorded anyway")
	}
}

func TestCancelRide_Restrictions(t *testing.T) {
	env := newTestEnv(t)
	env.addRide("ride-1", 2, 3000, 72*time.Hour)
	env.request(t, "ride-1", "p2")
	env.approve(t, env.request(t, "ride-1", "p1"))
	ctx := context.Background()

	t.Run("pending passenger", func(t *testing.T) {
		_, err := env.lifecycle.Cancel(ctx, "ride-1", "p2", "")
		assertErrorIs(t, err, service.ErrNotRideOwner)
	})

	env.startRide(t, "ride-1", "p1")

	t.Run("started ride", func(t *testing.T) {
		_, err := env.lifecycle.Cancel(ctx, "ride-1", "driver-1", "")
		assertErrorIs(t, err, service.ErrRideStarted)
		assertKind(t, err, service.KindStateConflict)
	})
}

func TestCancelRide_StrikesDecay(t *testing.T) {
	policy := service.DefaultPolicy()
	policy.StrikeDecay = 30 * 24 * time.Hour
	env := newTestEnvWithPolicy(t, policy)
	ctx := context.Background()

	env.addRide("ride-1", 2, 3000, 10*time.Hour)
	if _, err := env.lifecycle.Cancel(ctx, "ride-1", "driver-1", ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if env.store.User("driver-1").StrikeResetDate.IsZero() {
		t.Fatal("expected a reset date")
	}

	env.clock.Advance(31 * 24 * time.Hour)
	env.addRide("ride-2", 2, 3000, 10*time.Hour)
	res, err := env.lifecycle.Cancel(ctx, "ride-2", "driver-1", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Strike == nil || res.Strike.Count != 1 || !res.Strike.Warning {
		t.Errorf("expected count to restart at 1, got %+v", res.Strike)
	}
}
