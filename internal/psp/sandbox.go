package psp

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"campusride/internal/service"
)

type intentState string

const (
	stateAuthorized intentState = "authorized"
	stateCaptured   intentState = "captured"
	stateCanceled   intentState = "canceled"
	stateRefunded   intentState = "refunded"
)

// Sandbox is an in-process PaymentProcessor for local development. Every
// call succeeds unless the intent is already final.
type Sandbox struct {
	mu      sync.Mutex
	intents map[string]intentState
	keys    map[string]string
	log     logrus.FieldLogger
}

// NewSandbox creates a new Sandbox.
func NewSandbox(log logrus.FieldLogger) *Sandbox {
	return &Sandbox{
		intents: make(map[string]intentState),
		keys:    make(map[string]string),
		log:     log,
	}
}

func (s *Sandbox) Authorize(ctx context.Context, p service.AuthorizeParams) (string, error) {
	return s.create(p.IdempotencyKey, stateAuthorized, p.AmountCents), nil
}

func (s *Sandbox) ChargePenalty(ctx context.Context, p service.PenaltyParams) (string, error) {
	return s.create(p.IdempotencyKey, stateCaptured, p.AmountCents), nil
}

func (s *Sandbox) Capture(ctx context.Context, intentRef, idempotencyKey string) error {
	return s.move(intentRef, stateAuthorized, stateCaptured)
}

func (s *Sandbox) Cancel(ctx context.Context, intentRef, idempotencyKey string) error {
	return s.move(intentRef, stateAuthorized, stateCanceled)
}

func (s *Sandbox) Refund(ctx context.Context, intentRef, idempotencyKey string) error {
	return s.move(intentRef, stateCaptured, stateRefunded)
}

func (s *Sandbox) IntentStatus(ctx context.Context, intentRef string) (service.IntentStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.intents[intentRef]
	if !ok {
		return "", fmt.Errorf("unknown payment intent %s", intentRef)
	}
	return service.IntentStatus(state), nil
}

func (s *Sandbox) create(key string, state intentState, amount int64) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ref, ok := s.keys[key]; ok && key != "" {
		return ref
	}
	ref := "pi_sandbox_" + uuid.New().String()
	s.intents[ref] = state
	if key != "" {
		s.keys[key] = ref
	}
	s.log.WithFields(logrus.Fields{"intent": ref, "state": state, "amount_cents": amount}).Debug("sandbox intent created")
	return ref
}

func (s *Sandbox) move(ref string, from, to intentState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.intents[ref]
	if !ok {
		return fmt.Errorf("unknown payment intent %s", ref)
	}
	if state == to {
		return nil
	}
	if state != from {
		return fmt.Errorf("%w: %s is %s", service.ErrIntentFinal, ref, state)
	}
	s.intents[ref] = to
	s.log.WithFields(logrus.Fields{"intent": ref, "state": to}).Debug("sandbox intent updated")
	return nil
}

var _ service.PaymentProcessor = (*Sandbox)(nil)
