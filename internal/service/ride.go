package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"campusride/internal/domain"
	"campusride/internal/repository"
)

// RideService handles ride postings.
type RideService struct {
	rideRepo repository.RideRepository
	userRepo repository.UserRepository
	policy   Policy
	now      func() time.Time
}

// NewRideService creates a new RideService.
func NewRideService(rideRepo repository.RideRepository, userRepo repository.UserRepository, policy Policy) *RideService {
	return &RideService{
		rideRepo: rideRepo,
		userRepo: userRepo,
		policy:   policy,
		now:      time.Now,
	}
}

// CreateRideInput contains the parameters for posting a ride.
type CreateRideInput struct {
	OwnerID          string
	RideType         domain.RideType
	OriginCity       string
	OriginArea       string
	DestinationCity  string
	DestinationArea  string
	DepartureAt      time.Time
	ArrivalAt        time.Time
	Seats            int
	CheckInBaggage   int
	PersonalBaggage  int
	PriceCents       int64
	GenderPreference string
	Vehicle          string
}

// CreateRide posts a ride offer or a ride wish.
func (s *RideService) CreateRide(ctx context.Context, in CreateRideInput) (*domain.Ride, error) {
	if err := s.validateCreateInput(in); err != nil {
		return nil, err
	}

	if _, err := s.userRepo.GetByID(ctx, in.OwnerID); err != nil {
		return nil, notFound(err, ErrUserNotFound)
	}

	arrival := in.ArrivalAt
	if arrival.IsZero() {
		arrival = in.DepartureAt
	}

	ride := &domain.Ride{
		ID:                   uuid.New().String(),
		DriverID:             in.OwnerID,
		RideType:             in.RideType,
		OriginCity:           strings.TrimSpace(in.OriginCity),
		OriginArea:           strings.TrimSpace(in.OriginArea),
		DestinationCity:      strings.TrimSpace(in.DestinationCity),
		DestinationArea:      strings.TrimSpace(in.DestinationArea),
		DepartureAt:          in.DepartureAt,
		ArrivalAt:            arrival,
		SeatsTotal:           in.Seats,
		SeatsLeft:            in.Seats,
		CheckInBaggageTotal:  in.CheckInBaggage,
		CheckInBaggageLeft:   in.CheckInBaggage,
		PersonalBaggageTotal: in.PersonalBaggage,
		PersonalBaggageLeft:  in.PersonalBaggage,
		PriceCents:           in.PriceCents,
		GenderPreference:     in.GenderPreference,
		Vehicle:              in.Vehicle,
		CreatedAt:            s.now(),
	}

	if err := s.rideRepo.Create(ctx, ride); err != nil {
		return nil, err
	}
	return ride, nil
}

// GetRide retrieves a ride by ID.
func (s *RideService) GetRide(ctx context.Context, rideID string) (*domain.Ride, error) {
	if rideID == "" {
		return nil, ErrInvalidRideID
	}
	ride, err := s.rideRepo.GetByID(ctx, rideID)
	if err != nil {
		return nil, notFound(err, ErrRideNotFound)
	}
	return ride, nil
}

// ListRides retrieves upcoming rides.
func (s *RideService) ListRides(ctx context.Context) ([]*domain.Ride, error) {
	return s.rideRepo.GetAll(ctx)
}

func (s *RideService) validateCreateInput(in CreateRideInput) error {
	if in.OwnerID == "" {
		return ErrInvalidUserID
	}
	if in.RideType != domain.RideTypeDriver && in.RideType != domain.RideTypePassenger {
		return ErrInvalidRideType
	}
	if strings.TrimSpace(in.OriginCity) == "" || strings.TrimSpace(in.DestinationCity) == "" {
		return ErrInvalidLocation
	}

	route := domain.Ride{OriginCity: in.OriginCity, DestinationCity: in.DestinationCity}
	if s.policy.HubCity != "" && !route.TouchesCity(s.policy.HubCity) {
		return ErrRouteOutsideHub
	}

	if in.DepartureAt.IsZero() || !in.DepartureAt.After(s.now()) {
		return ErrInvalidSchedule
	}
	if !in.ArrivalAt.IsZero() && !in.ArrivalAt.After(in.DepartureAt) {
		return ErrInvalidSchedule
	}

	if in.Seats < 1 || (s.policy.MaxSeats > 0 && in.Seats > s.policy.MaxSeats) {
		return ErrInvalidSeats
	}
	if in.CheckInBaggage < 0 || in.PersonalBaggage < 0 {
		return ErrInvalidBaggage
	}
	if !s.policy.PriceAllowed(in.PriceCents) {
		return ErrPriceOutOfRange
	}
	return nil
}
