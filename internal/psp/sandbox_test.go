package psp

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/sirupsen/logrus"

	"campusride/internal/service"
)

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestSandbox_Lifecycle(t *testing.T) {
	s := NewSandbox(quietLogger())
	ctx := context.Background()

	ref, err := s.Authorize(ctx, service.AuthorizeParams{AmountCents: 3000, IdempotencyKey: "authorize:r1"})
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	again, _ := s.Authorize(ctx, service.AuthorizeParams{AmountCents: 3000, IdempotencyKey: "authorize:r1"})
	if again != ref {
		t.Errorf("expected the same intent for a repeated key, got %s and %s", ref, again)
	}

	if err := s.Capture(ctx, ref, "capture:r1"); err != nil {
		t.Fatalf("capture: %v", err)
	}
	if status, err := s.IntentStatus(ctx, ref); err != nil || status != service.IntentCaptured {
		t.Errorf("expected captured status, got %q (%v)", status, err)
	}
	if err := s.Cancel(ctx, ref, "cancel:r1"); !errors.Is(err, service.ErrIntentFinal) {
		t.Errorf("expected ErrIntentFinal cancelling a captured intent, got %v", err)
	}
	if err := s.Refund(ctx, ref, "refund:r1"); err != nil {
		t.Fatalf("refund: %v", err)
	}
	if err := s.Refund(ctx, ref, "refund:r1"); err != nil {
		t.Errorf("a repeated refund must succeed, got %v", err)
	}
}

func TestSandbox_UnknownIntent(t *testing.T) {
	s := NewSandbox(quietLogger())
	if err := s.Cancel(context.Background(), "pi_missing", "k"); err == nil || errors.Is(err, service.ErrIntentFinal) {
		t.Errorf("expected an unknown intent error, got %v", err)
	}
}

func TestSandbox_IntentStatusUnknown(t *testing.T) {
	s := NewSandbox(quietLogger())
	if _, err := s.IntentStatus(context.Background(), "pi_missing"); err == nil {
		t.Error("expected an error for an unknown intent")
	}
}
