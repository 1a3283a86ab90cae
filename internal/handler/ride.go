package handler

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"campusride/internal/domain"
	"campusride/internal/service"
)

// RideHandler handles HTTP requests for rides and their lifecycle.
type RideHandler struct {
	rideService *service.RideService
	lifecycle   *service.RideLifecycleService
}

// NewRideHandler creates a new RideHandler.
func NewRideHandler(rideService *service.RideService, lifecycle *service.RideLifecycleService) *RideHandler {
	return &RideHandler{
		rideService: rideService,
		lifecycle:   lifecycle,
	}
}

// CreateRideRequest is the HTTP request body for posting a ride.
type CreateRideRequest struct {
	RideType         string    `json:"ride_type"` // driver or passenger
	OriginCity       string    `json:"origin_city"`
	OriginArea       string    `json:"origin_area,omitempty"`
	DestinationCity  string    `json:"destination_city"`
	DestinationArea  string    `json:"destination_area,omitempty"`
	DepartureAt      time.Time `json:"departure_at"`
	ArrivalAt        time.Time `json:"arrival_at,omitempty"`
	Seats            int       `json:"seats"`
	CheckInBaggage   int       `json:"check_in_baggage"`
	PersonalBaggage  int       `json:"personal_baggage"`
	PriceCents       int64     `json:"price_cents"`
	GenderPreference string    `json:"gender_preference,omitempty"`
	Vehicle          string    `json:"vehicle,omitempty"`
}

// CodeRequest is the HTTP request body for submitting a verification code.
type CodeRequest struct {
	Code string `json:"code"`
}

// CancelRideRequest is the HTTP request body for cancelling a ride.
type CancelRideRequest struct {
	Reason string `json:"reason,omitempty"`
}

// RideResponse is the HTTP response for a ride. Verification codes are
// never included.
type RideResponse struct {
	ID                  string `json:"id"`
	DriverID            string `json:"driver_id"`
	RideType            string `json:"ride_type"`
	Status              string `json:"status"`
	OriginCity          string `json:"origin_city"`
	OriginArea          string `json:"origin_area,omitempty"`
	DestinationCity     string `json:"destination_city"`
	DestinationArea     string `json:"destination_area,omitempty"`
	DepartureAt         string `json:"departure_at"`
	ArrivalAt           string `json:"arrival_at,omitempty"`
	SeatsTotal          int    `json:"seats_total"`
	SeatsLeft           int    `json:"seats_left"`
	CheckInBaggageLeft  int    `json:"check_in_baggage_left"`
	PersonalBaggageLeft int    `json:"personal_baggage_left"`
	PriceCents          int64  `json:"price_cents"`
	GenderPreference    string `json:"gender_preference,omitempty"`
	Vehicle             string `json:"vehicle,omitempty"`
	StartedAt           string `json:"started_at,omitempty"`
	CompletedAt         string `json:"completed_at,omitempty"`
	CancelledAt         string `json:"cancelled_at,omitempty"`
	CancelledBy         string `json:"cancelled_by,omitempty"`
	CancellationReason  string `json:"cancellation_reason,omitempty"`
}

// CodeResponse carries a freshly issued verification code to the driver.
type CodeResponse struct {
	RideID string `json:"ride_id"`
	Code   string `json:"code"`
}

// OutcomeResponse is the per-request result of a payment step.
type OutcomeResponse struct {
	RequestID     string                `json:"request_id"`
	Status        string                `json:"status"`
	PaymentStatus string                `json:"payment_status"`
	PaymentError  string                `json:"payment_error,omitempty"`
	Notification  *NotificationResponse `json:"notification,omitempty"`
}

// StartResponse is the ride after check-in plus the driver's notice.
type StartResponse struct {
	RideResponse
	Notification *NotificationResponse `json:"notification"`
}

// CompletionResponse is the HTTP response for completing a ride.
type CompletionResponse struct {
	Ride          RideResponse           `json:"ride"`
	Captures      []OutcomeResponse      `json:"captures"`
	CapturedCents int64                  `json:"captured_cents"`
	FeeCents      int64                  `json:"fee_cents"`
	PayoutCents   int64                  `json:"payout_cents"`
	Notifications []NotificationResponse `json:"notifications"`
}

// StrikeResponse describes a strike recorded for a late cancellation.
type StrikeResponse struct {
	Count          int    `json:"count"`
	Warning        bool   `json:"warning"`
	PenaltyCents   int64  `json:"penalty_cents,omitempty"`
	PenaltyApplied bool   `json:"penalty_applied"`
	PenaltyError   string `json:"penalty_error,omitempty"`
}

// CancellationResponse is the HTTP response for cancelling a ride or a seat.
type CancellationResponse struct {
	Ride         RideResponse      `json:"ride"`
	RideCanceled bool              `json:"ride_canceled"`
	Requests     []OutcomeResponse `json:"requests"`
	Strike       *StrikeResponse   `json:"strike,omitempty"`
}

func toRideResponse(r *domain.Ride) RideResponse {
	return RideResponse{
		ID:                  r.ID,
		DriverID:            r.DriverID,
		RideType:            string(r.RideType),
		Status:              string(r.State()),
		OriginCity:          r.OriginCity,
		OriginArea:          r.OriginArea,
		DestinationCity:     r.DestinationCity,
		DestinationArea:     r.DestinationArea,
		DepartureAt:         formatTime(r.DepartureAt),
		ArrivalAt:           formatTime(r.ArrivalAt),
		SeatsTotal:          r.SeatsTotal,
		SeatsLeft:           r.SeatsLeft,
		CheckInBaggageLeft:  r.CheckInBaggageLeft,
		PersonalBaggageLeft: r.PersonalBaggageLeft,
		PriceCents:          r.PriceCents,
		GenderPreference:    r.GenderPreference,
		Vehicle:             r.Vehicle,
		StartedAt:           formatTime(r.StartedAt),
		CompletedAt:         formatTime(r.CompletedAt),
		CancelledAt:         formatTime(r.CancelledAt),
		CancelledBy:         string(r.CancelledBy),
		CancellationReason:  r.CancellationReason,
	}
}

func toOutcomeResponses(outcomes []service.Outcome) []OutcomeResponse {
	resp := make([]OutcomeResponse, 0, len(outcomes))
	for _, o := range outcomes {
		resp = append(resp, OutcomeResponse{
			RequestID:     o.Request.ID,
			Status:        string(o.Request.Status),
			PaymentStatus: string(o.Request.PaymentStatus),
			PaymentError:  outcomeError(o),
			Notification:  toNotificationResponse(o.Notification),
		})
	}
	return resp
}

// CreateRide handles POST /v1/rides
func (h *RideHandler) CreateRide(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}

	var req CreateRideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}

	ride, err := h.rideService.CreateRide(c.Request.Context(), service.CreateRideInput{
		OwnerID:          userID,
		RideType:         domain.RideType(req.RideType),
		OriginCity:       req.OriginCity,
		OriginArea:       req.OriginArea,
		DestinationCity:  req.DestinationCity,
		DestinationArea:  req.DestinationArea,
		DepartureAt:      req.DepartureAt,
		ArrivalAt:        req.ArrivalAt,
		Seats:            req.Seats,
		CheckInBaggage:   req.CheckInBaggage,
		PersonalBaggage:  req.PersonalBaggage,
		PriceCents:       req.PriceCents,
		GenderPreference: req.GenderPreference,
		Vehicle:          req.Vehicle,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusCreated, toRideResponse(ride))
}

// GetRide handles GET /v1/rides/:id
func (h *RideHandler) GetRide(c *gin.Context) {
	ride, err := h.rideService.GetRide(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, toRideResponse(ride))
}

// GetAll handles GET /v1/rides
func (h *RideHandler) GetAll(c *gin.Context) {
	rides, err := h.rideService.ListRides(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	response := make([]RideResponse, 0, len(rides))
	for _, r := range rides {
		response = append(response, toRideResponse(r))
	}
	respondJSON(c, http.StatusOK, response)
}

// GenerateStartCode handles POST /v1/rides/:id/start-code
func (h *RideHandler) GenerateStartCode(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}

	code, err := h.lifecycle.GenerateStartCode(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusCreated, CodeResponse{RideID: c.Param("id"), Code: code})
}

// VerifyStart handles POST /v1/rides/:id/start
func (h *RideHandler) VerifyStart(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}

	var req CodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}

	result, err := h.lifecycle.VerifyStart(c.Request.Context(), c.Param("id"), userID, req.Code)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, StartResponse{
		RideResponse: toRideResponse(result.Ride),
		Notification: toNotificationResponse(&result.Notification),
	})
}

// GenerateCompletionCode handles POST /v1/rides/:id/completion-code
func (h *RideHandler) GenerateCompletionCode(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}

	code, err := h.lifecycle.GenerateCompletionCode(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusCreated, CodeResponse{RideID: c.Param("id"), Code: code})
}

// VerifyCompletion handles POST /v1/rides/:id/complete
func (h *RideHandler) VerifyCompletion(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}

	var req CodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}

	result, err := h.lifecycle.VerifyCompletion(c.Request.Context(), c.Param("id"), userID, req.Code)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, CompletionResponse{
		Ride:          toRideResponse(result.Ride),
		Captures:      toOutcomeResponses(result.Captures),
		CapturedCents: result.CapturedCents,
		FeeCents:      result.FeeCents,
		PayoutCents:   result.PayoutCents,
		Notifications: toNotificationResponses(result.Notifications),
	})
}

// CancelRide handles POST /v1/rides/:id/cancel
func (h *RideHandler) CancelRide(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}

	var req CancelRideRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		respondBadRequest(c, "invalid request body")
		return
	}

	result, err := h.lifecycle.Cancel(c.Request.Context(), c.Param("id"), userID, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}

	response := CancellationResponse{
		Ride:         toRideResponse(result.Ride),
		RideCanceled: result.RideCanceled,
		Requests:     toOutcomeResponses(result.Requests),
	}
	if s := result.Strike; s != nil {
		response.Strike = &StrikeResponse{
			Count:          s.Count,
			Warning:        s.Warning,
			PenaltyCents:   s.PenaltyCents,
			PenaltyApplied: s.PenaltyApplied,
		}
		if s.Err != nil {
			response.Strike.PenaltyError = outcomeError(service.Outcome{Err: s.Err})
		}
	}
	respondJSON(c, http.StatusOK, response)
}
