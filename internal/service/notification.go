package service

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"campusride/internal/domain"
	"campusride/internal/repository"
)

// NotificationType represents the type of notification.
type NotificationType string

const (
	NotificationRequestCreated  NotificationType = "REQUEST_CREATED"
	NotificationRequestApproved NotificationType = "REQUEST_APPROVED"
	NotificationRequestRejected NotificationType = "REQUEST_REJECTED"
	NotificationRequestCanceled NotificationType = "REQUEST_CANCELED"
	NotificationPassengerRemove NotificationType = "PASSENGER_REMOVED"
	NotificationRideStarted     NotificationType = "RIDE_STARTED"
	NotificationRideCompleted   NotificationType = "RIDE_COMPLETED"
	NotificationReceipt         NotificationType = "RECEIPT"
	NotificationRideCancelled   NotificationType = "RIDE_CANCELLED"
	NotificationBookingExpired  NotificationType = "BOOKING_EXPIRED"
	NotificationPhoneCode       NotificationType = "PHONE_CODE"
)

// Notification represents a notification to be sent.
type Notification struct {
	Type        NotificationType
	RecipientID string
	Message     string
	CreatedAt   time.Time
}

// NotificationStatus reports what became of one notification. It is
// informational only; the step that triggered it has already committed.
type NotificationStatus struct {
	Type        NotificationType
	RecipientID string
	Delivered   bool
	Detail      string // why it was not delivered
}

// Sender delivers a text message to a phone number.
type Sender interface {
	SendSMS(ctx context.Context, phone, message string) error
}

// NotificationService delivers best-effort SMS notifications. Delivery
// failures are logged and reported in the returned status, never as errors.
type NotificationService struct {
	users  repository.UserRepository
	sender Sender
	log    logrus.FieldLogger
}

// NewNotificationService creates a new NotificationService.
func NewNotificationService(users repository.UserRepository, sender Sender, log logrus.FieldLogger) *NotificationService {
	return &NotificationService{users: users, sender: sender, log: log}
}

// NotifyRequestCreated tells the driver a passenger asked for a seat.
func (s *NotificationService) NotifyRequestCreated(ctx context.Context, ride *domain.Ride, req *domain.RideRequest) NotificationStatus {
	return s.send(ctx, Notification{
		Type:        NotificationRequestCreated,
		RecipientID: ride.DriverID,
		Message: fmt.Sprintf("New seat request for your ride %s to %s on %s.",
			ride.OriginCity, ride.DestinationCity, ride.DepartureAt.Format("Jan 2 15:04")),
	})
}

// NotifyRequestApproved tells the passenger their seat is confirmed.
func (s *NotificationService) NotifyRequestApproved(ctx context.Context, ride *domain.Ride, req *domain.RideRequest) NotificationStatus {
	return s.send(ctx, Notification{
		Type:        NotificationRequestApproved,
		RecipientID: req.PassengerID,
		Message:     fmt.Sprintf("Your seat from %s to %s is confirmed.", ride.OriginCity, ride.DestinationCity),
	})
}

// NotifyRequestRejected tells the passenger the driver declined or the ride filled up.
func (s *NotificationService) NotifyRequestRejected(ctx context.Context, ride *domain.Ride, req *domain.RideRequest, rideFull bool) NotificationStatus {
	msg := fmt.Sprintf("Your request for the ride from %s to %s was declined.", ride.OriginCity, ride.DestinationCity)
	if rideFull {
		msg = fmt.Sprintf("The ride from %s to %s is now full.", ride.OriginCity, ride.DestinationCity)
	}
	return s.send(ctx, Notification{
		Type:        NotificationRequestRejected,
		RecipientID: req.PassengerID,
		Message:     msg + " Your payment hold has been released.",
	})
}

// NotifyRequestCanceled tells the driver a passenger withdrew.
func (s *NotificationService) NotifyRequestCanceled(ctx context.Context, ride *domain.Ride, req *domain.RideRequest) NotificationStatus {
	return s.send(ctx, Notification{
		Type:        NotificationRequestCanceled,
		RecipientID: ride.DriverID,
		Message:     fmt.Sprintf("A passenger cancelled their booking on your ride to %s.", ride.DestinationCity),
	})
}

// NotifyPassengerRemoved tells the passenger the driver removed them.
func (s *NotificationService) NotifyPassengerRemoved(ctx context.Context, ride *domain.Ride, req *domain.RideRequest) NotificationStatus {
	return s.send(ctx, Notification{
		Type:        NotificationPassengerRemove,
		RecipientID: req.PassengerID,
		Message:     fmt.Sprintf("The driver removed you from the ride to %s. Your payment has been released.", ride.DestinationCity),
	})
}

// NotifyRideStarted tells the driver the passenger checked in.
func (s *NotificationService) NotifyRideStarted(ctx context.Context, ride *domain.Ride) NotificationStatus {
	return s.send(ctx, Notification{
		Type:        NotificationRideStarted,
		RecipientID: ride.DriverID,
		Message:     fmt.Sprintf("Your ride to %s has started.", ride.DestinationCity),
	})
}

// NotifyRideCompleted tells a participant the ride was settled.
func (s *NotificationService) NotifyRideCompleted(ctx context.Context, ride *domain.Ride, recipientID string) NotificationStatus {
	return s.send(ctx, Notification{
		Type:        NotificationRideCompleted,
		RecipientID: recipientID,
		Message:     fmt.Sprintf("Your ride to %s is complete. Thanks for riding!", ride.DestinationCity),
	})
}

// NotifyReceipt sends the passenger the receipt of a settled ride.
func (s *NotificationService) NotifyReceipt(ctx context.Context, r Receipt) NotificationStatus {
	return s.send(ctx, Notification{
		Type:        NotificationReceipt,
		RecipientID: r.PassengerID,
		Message:     FormatReceipt(r),
	})
}

// NotifyRideCancelled tells a participant the ride was called off.
func (s *NotificationService) NotifyRideCancelled(ctx context.Context, ride *domain.Ride, recipientID string) NotificationStatus {
	return s.send(ctx, Notification{
		Type:        NotificationRideCancelled,
		RecipientID: recipientID,
		Message: fmt.Sprintf("The ride from %s to %s on %s was cancelled. Any payment hold has been released.",
			ride.OriginCity, ride.DestinationCity, ride.DepartureAt.Format("Jan 2 15:04")),
	})
}

// NotifyBookingExpired tells the passenger an unsettled booking was released.
func (s *NotificationService) NotifyBookingExpired(ctx context.Context, ride *domain.Ride, req *domain.RideRequest) NotificationStatus {
	return s.send(ctx, Notification{
		Type:        NotificationBookingExpired,
		RecipientID: req.PassengerID,
		Message:     fmt.Sprintf("Your booking to %s was not completed in time and the payment hold was released.", ride.DestinationCity),
	})
}

// SendPhoneCode delivers a verification code to an unverified number.
// Unlike the other notifications its failure is returned.
func (s *NotificationService) SendPhoneCode(ctx context.Context, phone, code string) error {
	if s.sender == nil {
		return fmt.Errorf("no sms sender configured")
	}
	return s.sender.SendSMS(ctx, phone, fmt.Sprintf("Your verification code is %s", code))
}

func (s *NotificationService) send(ctx context.Context, n Notification) NotificationStatus {
	n.CreatedAt = time.Now()
	status := NotificationStatus{Type: n.Type, RecipientID: n.RecipientID}
	entry := s.log.WithFields(logrus.Fields{
		"type":      n.Type,
		"recipient": n.RecipientID,
	})

	if s.sender == nil || s.users == nil || n.RecipientID == "" {
		entry.Debug("notification skipped")
		status.Detail = "notifications disabled"
		return status
	}

	user, err := s.users.GetByID(ctx, n.RecipientID)
	if err != nil {
		entry.WithError(err).Warn("notification recipient lookup failed")
		status.Detail = "recipient not found"
		return status
	}
	if user.Phone == "" || !user.PhoneVerified {
		entry.Debug("recipient has no verified phone")
		status.Detail = "no verified phone"
		return status
	}

	if err := s.sender.SendSMS(ctx, user.Phone, n.Message); err != nil {
		entry.WithError(err).Warn("notification delivery failed")
		status.Detail = "delivery failed"
		return status
	}
	entry.Info("notification sent")
	status.Delivered = true
	return status
}
