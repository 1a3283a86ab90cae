package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"campusride/internal/domain"
	"campusride/internal/service"
)

// RideRequestHandler handles HTTP requests for seat requests.
type RideRequestHandler struct {
	requests *service.RideRequestService
}

// NewRideRequestHandler creates a new RideRequestHandler.
func NewRideRequestHandler(requests *service.RideRequestService) *RideRequestHandler {
	return &RideRequestHandler{requests: requests}
}

// CreateRideRequestBody is the HTTP request body for requesting a seat.
type CreateRideRequestBody struct {
	RideID          string `json:"ride_id"`
	Message         string `json:"message,omitempty"`
	CheckInBaggage  int    `json:"check_in_baggage"`
	PersonalBaggage int    `json:"personal_baggage"`
	PriceCents      int64  `json:"price_cents,omitempty"`
}

// CounterOfferBody is the HTTP request body for accepting a driver's offer.
type CounterOfferBody struct {
	DriverID        string `json:"driver_id"`
	PriceCents      int64  `json:"price_cents"`
	CheckInBaggage  int    `json:"check_in_baggage"`
	PersonalBaggage int    `json:"personal_baggage"`
}

// RideRequestResponse is the HTTP response for a seat request.
type RideRequestResponse struct {
	ID                 string `json:"id"`
	RideID             string `json:"ride_id"`
	PassengerID        string `json:"passenger_id"`
	Status             string `json:"status"`
	Message            string `json:"message,omitempty"`
	PaymentAmountCents int64  `json:"payment_amount_cents"`
	PaymentStatus      string `json:"payment_status"`
	CheckInBaggage     int    `json:"check_in_baggage"`
	PersonalBaggage    int    `json:"personal_baggage"`
	AuthorizedAt       string `json:"authorized_at,omitempty"`
	CreatedAt          string `json:"created_at"`
}

// RideRequestCreatedResponse is a new request plus the notice it triggered.
type RideRequestCreatedResponse struct {
	RideRequestResponse
	Notification *NotificationResponse `json:"notification"`
}

// ApprovalResponse is the HTTP response for approving a request.
type ApprovalResponse struct {
	Request      RideRequestResponse   `json:"request"`
	SeatsLeft    int                   `json:"seats_left"`
	AutoRejected []OutcomeResponse     `json:"auto_rejected"`
	Notification *NotificationResponse `json:"notification"`
}

// PaymentRecordResponse is one entry of a request's payment history.
type PaymentRecordResponse struct {
	ID          string `json:"id"`
	Kind        string `json:"kind"`
	AmountCents int64  `json:"amount_cents"`
	FeeCents    int64  `json:"fee_cents"`
	Succeeded   bool   `json:"succeeded"`
	Error       string `json:"error,omitempty"`
	CreatedAt   string `json:"created_at"`
}

func toRideRequestResponse(r *domain.RideRequest) RideRequestResponse {
	return RideRequestResponse{
		ID:                 r.ID,
		RideID:             r.RideID,
		PassengerID:        r.PassengerID,
		Status:             string(r.Status),
		Message:            r.Message,
		PaymentAmountCents: r.PaymentAmountCents,
		PaymentStatus:      string(r.PaymentStatus),
		CheckInBaggage:     r.CheckInBaggage,
		PersonalBaggage:    r.PersonalBaggage,
		AuthorizedAt:       formatTime(r.AuthorizedAt),
		CreatedAt:          formatTime(r.CreatedAt),
	}
}

// respondOutcome writes the request after a step whose payment side may
// have failed without undoing the status change.
func respondOutcome(c *gin.Context, o *service.Outcome) {
	respondJSON(c, http.StatusOK, OutcomeResponse{
		RequestID:     o.Request.ID,
		Status:        string(o.Request.Status),
		PaymentStatus: string(o.Request.PaymentStatus),
		PaymentError:  outcomeError(*o),
		Notification:  toNotificationResponse(o.Notification),
	})
}

func respondCreated(c *gin.Context, res *service.RequestResult) {
	respondJSON(c, http.StatusCreated, RideRequestCreatedResponse{
		RideRequestResponse: toRideRequestResponse(res.Request),
		Notification:        toNotificationResponse(&res.Notification),
	})
}

// Create handles POST /v1/ride-requests
func (h *RideRequestHandler) Create(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}

	var body CreateRideRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}

	result, err := h.requests.Create(c.Request.Context(), service.CreateRideRequestInput{
		RideID:          body.RideID,
		PassengerID:     userID,
		Message:         body.Message,
		CheckInBaggage:  body.CheckInBaggage,
		PersonalBaggage: body.PersonalBaggage,
		PriceCents:      body.PriceCents,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondCreated(c, result)
}

// Approve handles POST /v1/ride-requests/:id/approve
func (h *RideRequestHandler) Approve(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}

	result, err := h.requests.Approve(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, ApprovalResponse{
		Request:      toRideRequestResponse(result.Request),
		SeatsLeft:    result.SeatsLeft,
		AutoRejected: toOutcomeResponses(result.AutoRejected),
		Notification: toNotificationResponse(&result.Notification),
	})
}

// Reject handles POST /v1/ride-requests/:id/reject
func (h *RideRequestHandler) Reject(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}

	outcome, err := h.requests.Reject(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOutcome(c, outcome)
}

// Cancel handles POST /v1/ride-requests/:id/cancel
func (h *RideRequestHandler) Cancel(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}

	outcome, err := h.requests.CancelByPassenger(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOutcome(c, outcome)
}

// Remove handles POST /v1/ride-requests/:id/remove
func (h *RideRequestHandler) Remove(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}

	outcome, err := h.requests.CancelByDriver(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOutcome(c, outcome)
}

// AcceptCounterOffer handles POST /v1/rides/:id/counter-offers/accept
func (h *RideRequestHandler) AcceptCounterOffer(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}

	var body CounterOfferBody
	if err := c.ShouldBindJSON(&body); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}

	result, err := h.requests.AcceptCounterOffer(c.Request.Context(), service.CounterOfferInput{
		RideID:          c.Param("id"),
		DriverID:        body.DriverID,
		PassengerID:     userID,
		PriceCents:      body.PriceCents,
		CheckInBaggage:  body.CheckInBaggage,
		PersonalBaggage: body.PersonalBaggage,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondCreated(c, result)
}

// Payments handles GET /v1/ride-requests/:id/payments
func (h *RideRequestHandler) Payments(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}

	records, err := h.requests.PaymentHistory(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	response := make([]PaymentRecordResponse, 0, len(records))
	for _, r := range records {
		response = append(response, PaymentRecordResponse{
			ID:          r.ID,
			Kind:        string(r.Kind),
			AmountCents: r.AmountCents,
			FeeCents:    r.FeeCents,
			Succeeded:   r.Succeeded,
			Error:       r.Error,
			CreatedAt:   formatTime(r.CreatedAt),
		})
	}
	respondJSON(c, http.StatusOK, response)
}
