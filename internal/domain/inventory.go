package domain

import "errors"

var (
	// ErrNoSeatsLeft is returned when a seat reservation finds the ride full.
	ErrNoSeatsLeft = errors.New("no seats left")

	// ErrBaggageCapacity is returned when the ride cannot carry the requested baggage.
	ErrBaggageCapacity = errors.New("not enough baggage capacity")
)

// Baggage is the baggage a passenger brings along.
type Baggage struct {
	CheckIn  int
	Personal int
}

// CanTake reports whether one more passenger with the given baggage fits.
func (r *Ride) CanTake(b Baggage) error {
	if r.SeatsLeft <= 0 {
		return ErrNoSeatsLeft
	}
	if b.CheckIn > r.CheckInBaggageLeft || b.Personal > r.PersonalBaggageLeft {
		return ErrBaggageCapacity
	}
	return nil
}

// Reserve takes one seat and the given baggage off the ride's remaining
// capacity. Nothing is changed when it returns an error.
func (r *Ride) Reserve(b Baggage) error {
	if err := r.CanTake(b); err != nil {
		return err
	}
	r.SeatsLeft--
	r.CheckInBaggageLeft -= b.CheckIn
	r.PersonalBaggageLeft -= b.Personal
	return nil
}

// Release gives one seat and the given baggage back, clamped to the totals.
func (r *Ride) Release(b Baggage) {
	r.SeatsLeft = clamp(r.SeatsLeft+1, r.SeatsTotal)
	r.CheckInBaggageLeft = clamp(r.CheckInBaggageLeft+b.CheckIn, r.CheckInBaggageTotal)
	r.PersonalBaggageLeft = clamp(r.PersonalBaggageLeft+b.Personal, r.PersonalBaggageTotal)
}

func clamp(v, upper int) int {
	if v > upper {
		return upper
	}
	if v < 0 {
		return 0
	}
	return v
}
