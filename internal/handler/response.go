package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"campusride/internal/middleware"
	"campusride/internal/service"
)

// ErrorBody is the machine-readable part of an error response.
type ErrorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// respondError sends an error response with the appropriate HTTP status code.
func respondError(c *gin.Context, err error) {
	kind := service.KindOf(err)
	message := err.Error()

	var se *service.Error
	if errors.As(err, &se) {
		message = se.Message
	}
	if kind == service.KindInternal {
		message = "internal server error"
	}

	_ = c.Error(err)
	c.JSON(mapKindToHTTPStatus(kind), ErrorResponse{Error: ErrorBody{Kind: string(kind), Message: message}})
}

// respondBadRequest rejects a body that could not be decoded.
func respondBadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Error: ErrorBody{Kind: string(service.KindValidation), Message: message},
	})
}

// respondJSON sends a JSON response with the given status code.
func respondJSON(c *gin.Context, code int, data any) {
	c.JSON(code, data)
}

// mapKindToHTTPStatus maps service error kinds to HTTP status codes.
func mapKindToHTTPStatus(kind service.Kind) int {
	switch kind {
	case service.KindValidation:
		return http.StatusBadRequest
	case service.KindAuthorization:
		return http.StatusForbidden
	case service.KindStateConflict:
		return http.StatusConflict
	case service.KindPayment:
		return http.StatusPaymentRequired
	case service.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// callerID returns the authenticated user's ID. The auth middleware always
// runs before handlers, so a missing principal is a wiring error.
func callerID(c *gin.Context) (string, bool) {
	p, ok := middleware.PrincipalFrom(c)
	if !ok || p.ID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{
			Error: ErrorBody{Kind: string(service.KindAuthorization), Message: "authentication required"},
		})
		return "", false
	}
	return p.ID, true
}

// NotificationResponse reports whether a participant was told about a step.
type NotificationResponse struct {
	Type        string `json:"type"`
	RecipientID string `json:"recipient_id"`
	Delivered   bool   `json:"delivered"`
	Detail      string `json:"detail,omitempty"`
}

func toNotificationResponse(n *service.NotificationStatus) *NotificationResponse {
	if n == nil {
		return nil
	}
	return &NotificationResponse{
		Type:        string(n.Type),
		RecipientID: n.RecipientID,
		Delivered:   n.Delivered,
		Detail:      n.Detail,
	}
}

func toNotificationResponses(ns []service.NotificationStatus) []NotificationResponse {
	resp := make([]NotificationResponse, 0, len(ns))
	for i := range ns {
		resp = append(resp, *toNotificationResponse(&ns[i]))
	}
	return resp
}

// outcomeError renders the payment failure of an outcome, if any.
func outcomeError(o service.Outcome) string {
	if o.Err == nil {
		return ""
	}
	var se *service.Error
	if errors.As(o.Err, &se) {
		return se.Message
	}
	return "payment processor call failed"
}

const timeLayout = "2006-01-02T15:04:05Z07:00"

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(timeLayout)
}
