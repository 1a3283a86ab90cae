package service

import (
	"context"
	"crypto/subtle"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"campusride/internal/domain"
	"campusride/internal/repository"
)

var phonePattern = regexp.MustCompile(`^\+[1-9][0-9]{7,14}$`)

// CodeStore keeps short-lived verification codes.
type CodeStore interface {
	// Put stores code under key for ttl, replacing any previous code.
	Put(ctx context.Context, key, code string, ttl time.Duration) error
	// Take returns and deletes the code under key; "" when absent or expired.
	Take(ctx context.Context, key string) (string, error)
}

// UserService manages local profiles of authenticated users.
type UserService struct {
	userRepo repository.UserRepository
	codes    CodeStore
	notifier *NotificationService
	codeTTL  time.Duration
	log      logrus.FieldLogger
	now      func() time.Time
}

// NewUserService creates a new UserService.
func NewUserService(
	userRepo repository.UserRepository,
	codes CodeStore,
	notifier *NotificationService,
	codeTTL time.Duration,
	log logrus.FieldLogger,
) *UserService {
	return &UserService{
		userRepo: userRepo,
		codes:    codes,
		notifier: notifier,
		codeTTL:  codeTTL,
		log:      log,
		now:      time.Now,
	}
}

// ProfileInput contains the profile fields a user may set. Empty payment
// references keep what is already stored.
type ProfileInput struct {
	Name                   string
	StripeCustomerID       string
	DefaultPaymentMethodID string
	ConnectAccountID       string
}

// SyncProfile creates or updates the local user for principal.
func (s *UserService) SyncProfile(ctx context.Context, principal domain.Principal, in ProfileInput) (*domain.User, error) {
	if principal.ID == "" {
		return nil, ErrInvalidUserID
	}
	if strings.TrimSpace(principal.Email) == "" {
		return nil, ErrInvalidEmail
	}

	user := &domain.User{
		ID:                     principal.ID,
		Email:                  strings.ToLower(strings.TrimSpace(principal.Email)),
		Name:                   strings.TrimSpace(in.Name),
		StripeCustomerID:       in.StripeCustomerID,
		DefaultPaymentMethodID: in.DefaultPaymentMethodID,
		ConnectAccountID:       in.ConnectAccountID,
		CreatedAt:              s.now(),
	}
	if err := s.userRepo.Upsert(ctx, user); err != nil {
		return nil, err
	}
	return s.GetProfile(ctx, principal.ID)
}

// GetProfile retrieves a user by ID.
func (s *UserService) GetProfile(ctx context.Context, userID string) (*domain.User, error) {
	if userID == "" {
		return nil, ErrInvalidUserID
	}
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, notFound(err, ErrUserNotFound)
	}
	return user, nil
}

// StartPhoneVerification texts a one-time code to phone.
func (s *UserService) StartPhoneVerification(ctx context.Context, userID, phone string) error {
	if _, err := s.GetProfile(ctx, userID); err != nil {
		return err
	}
	phone = strings.TrimSpace(phone)
	if !phonePattern.MatchString(phone) {
		return ErrInvalidPhone
	}

	code, err := randomDigits(completionCodeDigits)
	if err != nil {
		return err
	}
	if err := s.codes.Put(ctx, phoneCodeKey(userID, phone), code, s.codeTTL); err != nil {
		return fmt.Errorf("store phone code: %w", err)
	}
	if err := s.notifier.SendPhoneCode(ctx, phone, code); err != nil {
		s.log.WithError(err).WithField("user_id", userID).Warn("failed to send phone code")
		return &Error{Kind: KindInternal, Message: "could not send verification code", Err: err}
	}
	return nil
}

// VerifyPhone stores phone as verified when code matches the one sent.
// A code can be tried once.
func (s *UserService) VerifyPhone(ctx context.Context, userID, phone, code string) (*domain.User, error) {
	if userID == "" {
		return nil, ErrInvalidUserID
	}
	phone = strings.TrimSpace(phone)
	if !phonePattern.MatchString(phone) {
		return nil, ErrInvalidPhone
	}

	stored, err := s.codes.Take(ctx, phoneCodeKey(userID, phone))
	if err != nil {
		return nil, err
	}
	if stored == "" || subtle.ConstantTimeCompare([]byte(stored), []byte(strings.TrimSpace(code))) != 1 {
		return nil, ErrPhoneCodeMismatch
	}

	if err := s.userRepo.SetPhone(ctx, userID, phone); err != nil {
		return nil, notFound(err, ErrUserNotFound)
	}
	return s.GetProfile(ctx, userID)
}

func phoneCodeKey(userID, phone string) string {
	return "phone:" + userID + ":" + phone
}
