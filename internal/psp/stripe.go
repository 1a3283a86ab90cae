package psp

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"

	"campusride/internal/service"
)

// StripeProcessor places manual-capture PaymentIntents on Stripe. Fares are
// destination charges: the driver's connected account receives the amount
// minus the application fee when the intent is captured.
type StripeProcessor struct {
	api *client.API
	log logrus.FieldLogger
}

// NewStripeProcessor creates a processor using the live Stripe API.
func NewStripeProcessor(secretKey string, log logrus.FieldLogger) *StripeProcessor {
	return NewStripeProcessorWithBackends(secretKey, nil, log)
}

// NewStripeProcessorWithBackends creates a processor on custom backends.
func NewStripeProcessorWithBackends(secretKey string, backends *stripe.Backends, log logrus.FieldLogger) *StripeProcessor {
	api := &client.API{}
	api.Init(secretKey, backends)
	return &StripeProcessor{api: api, log: log}
}

func (p *StripeProcessor) Authorize(ctx context.Context, in service.AuthorizeParams) (string, error) {
	params := &stripe.PaymentIntentParams{
		Amount:               stripe.Int64(in.AmountCents),
		Currency:             stripe.String(in.Currency),
		Customer:             stripe.String(in.CustomerID),
		PaymentMethod:        stripe.String(in.PaymentMethodID),
		CaptureMethod:        stripe.String(string(stripe.PaymentIntentCaptureMethodManual)),
		Confirm:              stripe.Bool(true),
		OffSession:           stripe.Bool(true),
		ApplicationFeeAmount: stripe.Int64(in.FeeCents),
		TransferData: &stripe.PaymentIntentTransferDataParams{
			Destination: stripe.String(in.DestinationAccount),
		},
	}
	params.Context = ctx
	params.SetIdempotencyKey(in.IdempotencyKey)
	for k, v := range in.Metadata {
		params.AddMetadata(k, v)
	}

	pi, err := p.api.PaymentIntents.New(params)
	if err != nil {
		return "", mapError(err)
	}
	if pi.Status != stripe.PaymentIntentStatusRequiresCapture {
		p.log.WithFields(logrus.Fields{"intent": pi.ID, "status": pi.Status}).Warn("authorization not completed")
		return "", fmt.Errorf("payment intent %s is %s, not authorized", pi.ID, pi.Status)
	}
	return pi.ID, nil
}

func (p *StripeProcessor) Capture(ctx context.Context, intentRef, idempotencyKey string) error {
	params := &stripe.PaymentIntentCaptureParams{}
	params.Context = ctx
	params.SetIdempotencyKey(idempotencyKey)

	_, err := p.api.PaymentIntents.Capture(intentRef, params)
	return mapError(err)
}

func (p *StripeProcessor) Cancel(ctx context.Context, intentRef, idempotencyKey string) error {
	params := &stripe.PaymentIntentCancelParams{}
	params.Context = ctx
	params.SetIdempotencyKey(idempotencyKey)

	_, err := p.api.PaymentIntents.Cancel(intentRef, params)
	return mapError(err)
}

func (p *StripeProcessor) Refund(ctx context.Context, intentRef, idempotencyKey string) error {
	params := &stripe.RefundParams{
		PaymentIntent:        stripe.String(intentRef),
		RefundApplicationFee: stripe.Bool(true),
		ReverseTransfer:      stripe.Bool(true),
	}
	params.Context = ctx
	params.SetIdempotencyKey(idempotencyKey)

	_, err := p.api.Refunds.New(params)
	return mapError(err)
}

func (p *StripeProcessor) ChargePenalty(ctx context.Context, in service.PenaltyParams) (string, error) {
	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(in.AmountCents),
		Currency:      stripe.String(in.Currency),
		Customer:      stripe.String(in.CustomerID),
		PaymentMethod: stripe.String(in.PaymentMethodID),
		Confirm:       stripe.Bool(true),
		OffSession:    stripe.Bool(true),
		Description:   stripe.String(in.Description),
	}
	params.Context = ctx
	params.SetIdempotencyKey(in.IdempotencyKey)

	pi, err := p.api.PaymentIntents.New(params)
	if err != nil {
		return "", mapError(err)
	}
	if pi.Status != stripe.PaymentIntentStatusSucceeded {
		return "", fmt.Errorf("penalty intent %s is %s", pi.ID, pi.Status)
	}
	return pi.ID, nil
}

// IntentStatus reads the intent with its latest charge so a refunded
// capture is told apart from a live one.
func (p *StripeProcessor) IntentStatus(ctx context.Context, intentRef string) (service.IntentStatus, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	params.AddExpand("latest_charge")

	pi, err := p.api.PaymentIntents.Get(intentRef, params)
	if err != nil {
		return "", mapError(err)
	}

	switch pi.Status {
	case stripe.PaymentIntentStatusRequiresCapture:
		return service.IntentAuthorized, nil
	case stripe.PaymentIntentStatusCanceled:
		return service.IntentCanceled, nil
	case stripe.PaymentIntentStatusSucceeded:
		if pi.LatestCharge != nil && pi.LatestCharge.Refunded {
			return service.IntentRefunded, nil
		}
		return service.IntentCaptured, nil
	}
	return service.IntentIncomplete, nil
}

// mapError turns Stripe's "already final" errors into service.ErrIntentFinal.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var se *stripe.Error
	if errors.As(err, &se) {
		switch se.Code {
		case stripe.ErrorCodePaymentIntentUnexpectedState, stripe.ErrorCodeChargeAlreadyRefunded:
			return fmt.Errorf("%w: %s", service.ErrIntentFinal, se.Msg)
		}
		return fmt.Errorf("stripe %s: %s", se.Code, se.Msg)
	}
	return err
}

var _ service.PaymentProcessor = (*StripeProcessor)(nil)
