package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"campusride/internal/domain"
	"campusride/internal/middleware"
	"campusride/internal/service"
)

// UserHandler handles HTTP requests for the caller's profile.
type UserHandler struct {
	users *service.UserService
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(users *service.UserService) *UserHandler {
	return &UserHandler{users: users}
}

// ProfileRequest is the HTTP request body for updating the caller's profile.
type ProfileRequest struct {
	Name                   string `json:"name"`
	StripeCustomerID       string `json:"stripe_customer_id,omitempty"`
	DefaultPaymentMethodID string `json:"default_payment_method_id,omitempty"`
	ConnectAccountID       string `json:"connect_account_id,omitempty"`
}

// PhoneRequest is the HTTP request body for the phone verification steps.
type PhoneRequest struct {
	Phone string `json:"phone"`
	Code  string `json:"code,omitempty"`
}

// UserResponse is the HTTP response for user data.
type UserResponse struct {
	ID                      string `json:"id"`
	Email                   string `json:"email"`
	Name                    string `json:"name"`
	Phone                   string `json:"phone,omitempty"`
	PhoneVerified           bool   `json:"phone_verified"`
	CanPay                  bool   `json:"can_pay"`
	CanReceivePayouts       bool   `json:"can_receive_payouts"`
	CancellationStrikeCount int    `json:"cancellation_strike_count"`
	StrikeResetDate         string `json:"strike_reset_date,omitempty"`
	RidesCompleted          int    `json:"rides_completed"`
}

func toUserResponse(u *domain.User) UserResponse {
	return UserResponse{
		ID:                      u.ID,
		Email:                   u.Email,
		Name:                    u.Name,
		Phone:                   u.Phone,
		PhoneVerified:           u.PhoneVerified,
		CanPay:                  u.CanPay(),
		CanReceivePayouts:       u.CanReceivePayouts(),
		CancellationStrikeCount: u.CancellationStrikeCount,
		StrikeResetDate:         formatTime(u.StrikeResetDate),
		RidesCompleted:          u.RidesCompleted,
	}
}

// SyncProfile handles POST /v1/users/me
func (h *UserHandler) SyncProfile(c *gin.Context) {
	principal, ok := middleware.PrincipalFrom(c)
	if !ok {
		respondError(c, service.ErrInvalidUserID)
		return
	}

	var req ProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}

	user, err := h.users.SyncProfile(c.Request.Context(), principal, service.ProfileInput{
		Name:                   req.Name,
		StripeCustomerID:       req.StripeCustomerID,
		DefaultPaymentMethodID: req.DefaultPaymentMethodID,
		ConnectAccountID:       req.ConnectAccountID,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, toUserResponse(user))
}

// GetProfile handles GET /v1/users/me
func (h *UserHandler) GetProfile(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}

	user, err := h.users.GetProfile(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, toUserResponse(user))
}

// StartPhoneVerification handles POST /v1/users/me/phone
func (h *UserHandler) StartPhoneVerification(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}

	var req PhoneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}

	if err := h.users.StartPhoneVerification(c.Request.Context(), userID, req.Phone); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}

// VerifyPhone handles POST /v1/users/me/phone/verify
func (h *UserHandler) VerifyPhone(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}

	var req PhoneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}

	user, err := h.users.VerifyPhone(c.Request.Context(), userID, req.Phone, req.Code)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, toUserResponse(user))
}
