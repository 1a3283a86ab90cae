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

func newUserService() (*service.UserService, *MemStore, *MockSender) {
	store := NewMemStore()
	sender := &MockSender{}
	log := quietLogger()
	repos := store.Repositories()
	notifier := service.NewNotificationService(repos.Users, sender, log)
	return service.NewUserService(repos.Users, NewMockCodeStore(), notifier, 10*time.Minute, log), store, sender
}

func TestSyncProfile_CreatesThenKeepsPaymentReferences(t *testing.T) {
	t.Parallel()

	users, _, _ := newUserService()
	principal := domain.Principal{ID: "u1", Email: " Student@Cornell.edu ", EmailVerified: true}
	ctx := context.Background()

	user, err := users.SyncProfile(ctx, principal, service.ProfileInput{
		Name:                   "Sam",
		StripeCustomerID:       "cus_1",
		DefaultPaymentMethodID: "pm_1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user.Email != "student@cornell.edu" {
		t.Errorf("expected normalized email, got %q", user.Email)
	}

	user, err = users.SyncProfile(ctx, principal, service.ProfileInput{Name: "Sam K"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user.Name != "Sam K" || !user.CanPay() {
		t.Errorf("expected name updated and payment method kept, got %+v", user)
	}
}

func TestSyncProfile_RequiresIdentity(t *testing.T) {
	t.Parallel()

	users, _, _ := newUserService()

	_, err := users.SyncProfile(context.Background(), domain.Principal{Email: "a@cornell.edu"}, service.ProfileInput{})
	assertErrorIs(t, err, service.ErrInvalidUserID)

	_, err = users.SyncProfile(context.Background(), domain.Principal{ID: "u1"}, service.ProfileInput{})
	assertErrorIs(t, err, service.ErrInvalidEmail)
}

func TestPhoneVerification(t *testing.T) {
	t.Parallel()

	users, store, sender := newUserService()
	store.AddUser(&domain.User{ID: "u1", Email: "u1@cornell.edu"})
	ctx := context.Background()
	phone := "+16075550100"

	if err := users.StartPhoneVerification(ctx, "u1", phone); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sent := sender.SentTo(phone)
	if len(sent) != 1 {
		t.Fatalf("expected one code sent, got %d", len(sent))
	}
	code := sent[0][len(sent[0])-6:]

	if _, err := users.VerifyPhone(ctx, "u1", phone, code); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	stored := store.User("u1")
	if stored.Phone != phone || !stored.PhoneVerified {
		t.Errorf("expected verified phone, got %q/%v", stored.Phone, stored.PhoneVerified)
	}

	_, err := users.VerifyPhone(ctx, "u1", phone, code)
	assertErrorIs(t, err, service.ErrPhoneCodeMismatch)
}

func TestPhoneVerification_WrongCodeBurnsIt(t *testing.T) {
	t.Parallel()

	users, store, sender := newUserService()
	store.AddUser(&domain.User{ID: "u1", Email: "u1@cornell.edu"})
	ctx := context.Background()
	phone := "+16075550100"

	if err := users.StartPhoneVerification(ctx, "u1", phone); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	msg := sender.SentTo(phone)[0]
	code := msg[len(msg)-6:]
	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}

	_, err := users.VerifyPhone(ctx, "u1", phone, wrong)
	assertErrorIs(t, err, service.ErrPhoneCodeMismatch)

	_, err = users.VerifyPhone(ctx, "u1", phone, code)
	assertErrorIs(t, err, service.ErrPhoneCodeMismatch)
	if store.User("u1").PhoneVerified {
		t.Error("phone must not be verified")
	}
}

func TestPhoneVerification_Errors(t *testing.T) {
	t.Parallel()

	users, store, sender := newUserService()
	store.AddUser(&domain.User{ID: "u1", Email: "u1@cornell.edu"})
	ctx := context.Background()

	err := users.StartPhoneVerification(ctx, "u1", "6075550100")
	assertErrorIs(t, err, service.ErrInvalidPhone)

	err = users.StartPhoneVerification(ctx, "ghost", "+16075550100")
	assertErrorIs(t, err, service.ErrUserNotFound)

	sender.SendError = errors.New("gateway down")
	err = users.StartPhoneVerification(ctx, "u1", "+16075550100")
	assertKind(t, err, service.KindInternal)
	if !strings.Contains(err.Error(), "verification code") {
		t.Errorf("unexpected message %q", err.Error())
	}
}
