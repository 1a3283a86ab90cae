package service

import (
	"time"

	"github.com/sirupsen/logrus"

	"campusride/internal/domain"
	"campusride/internal/repository"
)

// Deps contains the collaborators shared by the ride and request services.
type Deps struct {
	Tx       repository.Transactor
	Repos    repository.Repositories
	Payments repository.PaymentRepository
	Escrow   *Escrow
	Notifier *NotificationService
	Strikes  *StrikeLedger
	Policy   Policy
	Logger   logrus.FieldLogger
	Now      func() time.Time
}

func (d Deps) clock() func() time.Time {
	if d.Now != nil {
		return d.Now
	}
	return time.Now
}

func (d Deps) logger() logrus.FieldLogger {
	if d.Logger != nil {
		return d.Logger
	}
	return logrus.StandardLogger()
}

// Outcome is the per-request result of a step that touches the escrow.
// Err holds a payment failure that did not undo the status change.
// Notification is set when the step notified someone about the request.
type Outcome struct {
	Request      *domain.RideRequest
	Err          error
	Notification *NotificationStatus
}

// Failed reports whether the payment side of the step failed.
func (o Outcome) Failed() bool {
	return o.Err != nil
}
