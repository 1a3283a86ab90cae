package tests

import (
	"context"
	"testing"
	"time"

	"campusride/internal/domain"
	"campusride/internal/service"
)

// ──────────────────────────────────────────────
// 1. RIDE POSTING
// ──────────────────────────────────────────────

func validRideInput() service.CreateRideInput {
	departure := time.Now().Add(72 * time.Hour)
	return service.CreateRideInput{
		OwnerID:         "driver-1",
		RideType:        domain.RideTypeDriver,
		OriginCity:      "Ithaca",
		OriginArea:      "Collegetown",
		DestinationCity: "New York",
		DestinationArea: "Port Authority",
		DepartureAt:     departure,
		ArrivalAt:       departure.Add(4 * time.Hour),
		Seats:           3,
		CheckInBaggage:  2,
		PersonalBaggage: 3,
		PriceCents:      3000,
	}
}

func newRideService() (*service.RideService, *MemStore) {
	store := NewMemStore()
	store.AddUser(&domain.User{ID: "driver-1", Email: "driver-1@cornell.edu"})
	repos := store.Repositories()
	return service.NewRideService(repos.Rides, repos.Users, service.DefaultPolicy()), store
}

func TestRideCreation_ValidInput_Succeeds(t *testing.T) {
	t.Parallel()

	rides, store := newRideService()
	in := validRideInput()

	ride, err := rides.CreateRide(context.Background(), in)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	if ride.ID == "" {
		t.Error("expected ride ID to be set")
	}
	if ride.SeatsLeft != 3 || ride.CheckInBaggageLeft != 2 || ride.PersonalBaggageLeft != 3 {
		t.Errorf("expected full inventory, got %d/%d/%d", ride.SeatsLeft, ride.CheckInBaggageLeft, ride.PersonalBaggageLeft)
	}
	if ride.State() != domain.RideStateCreated {
		t.Errorf("expected created state, got %s", ride.State())
	}
	if store.Ride(ride.ID).DriverID != "driver-1" {
		t.Error("expected the ride to be stored")
	}
}

func TestRideCreation_ArrivalDefaultsToDeparture(t *testing.T) {
	t.Parallel()

	rides, _ := newRideService()
	in := validRideInput()
	in.ArrivalAt = time.Time{}

	ride, err := rides.CreateRide(context.Background(), in)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if !ride.ArrivalAt.Equal(in.DepartureAt) {
		t.Errorf("expected arrival %v, got %v", in.DepartureAt, ride.ArrivalAt)
	}
}

func TestRideCreation_InvalidInput_Fails(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name   string
		mutate func(in *service.CreateRideInput)
		want   error
	}{
		{"missing owner", func(in *service.CreateRideInput) { in.OwnerID = "" }, service.ErrInvalidUserID},
		{"unknown ride type", func(in *service.CreateRideInput) { in.RideType = "bus" }, service.ErrInvalidRideType},
		{"missing destination", func(in *service.CreateRideInput) { in.DestinationCity = " " }, service.ErrInvalidLocation},
		{"outside hub", func(in *service.CreateRideInput) { in.OriginCity = "Boston" }, service.ErrRouteOutsideHub},
		{"departure in the past", func(in *service.CreateRideInput) { in.DepartureAt = time.Now().Add(-time.Hour) }, service.ErrInvalidSchedule},
		{"arrival before departure", func(in *service.CreateRideInput) { in.ArrivalAt = in.DepartureAt.Add(-time.Hour) }, service.ErrInvalidSchedule},
		{"no seats", func(in *service.CreateRideInput) { in.Seats = 0 }, service.ErrInvalidSeats},
		{"too many seats", func(in *service.CreateRideInput) { in.Seats = 9 }, service.ErrInvalidSeats},
		{"negative baggage", func(in *service.CreateRideInput) { in.CheckInBaggage = -1 }, service.ErrInvalidBaggage},
		{"price too low", func(in *service.CreateRideInput) { in.PriceCents = 499 }, service.ErrPriceOutOfRange},
		{"price too high", func(in *service.CreateRideInput) { in.PriceCents = 20001 }, service.ErrPriceOutOfRange},
		{"unknown owner", func(in *service.CreateRideInput) { in.OwnerID = "ghost" }, service.ErrUserNotFound},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			rides, _ := newRideService()
			in := validRideInput()
			tc.mutate(&in)

			_, err := rides.CreateRide(context.Background(), in)
			assertErrorIs(t, err, tc.want)
		})
	}
}

func TestRideCreation_PassengerWishFromHub(t *testing.T) {
	t.Parallel()

	rides, _ := newRideService()
	in := validRideInput()
	in.RideType = domain.RideTypePassenger
	in.OriginCity, in.DestinationCity = "New York", "ithaca"

	ride, err := rides.CreateRide(context.Background(), in)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if ride.RideType != domain.RideTypePassenger {
		t.Errorf("expected passenger wish, got %s", ride.RideType)
	}
}

// ──────────────────────────────────────────────
// 2. RIDE LOOKUP
// ──────────────────────────────────────────────

func TestGetRide(t *testing.T) {
	t.Parallel()

	rides, _ := newRideService()
	created, err := rides.CreateRide(context.Background(), validRideInput())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := rides.GetRide(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if got.ID != created.ID {
		t.Errorf("expected %s, got %s", created.ID, got.ID)
	}

	_, err = rides.GetRide(context.Background(), "missing")
	assertErrorIs(t, err, service.ErrRideNotFound)
	assertKind(t, err, service.KindNotFound)

	_, err = rides.GetRide(context.Background(), "")
	assertErrorIs(t, err, service.ErrInvalidRideID)
}
