package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"campusride/internal/service"
)

// SettlementHandler exposes the settlement sweep to operators.
type SettlementHandler struct {
	sweeper *service.Sweeper
}

// NewSettlementHandler creates a new SettlementHandler.
func NewSettlementHandler(sweeper *service.Sweeper) *SettlementHandler {
	return &SettlementHandler{sweeper: sweeper}
}

// SweepItemResponse is the outcome for one stale authorization.
type SweepItemResponse struct {
	RequestID    string                `json:"request_id"`
	RideID       string                `json:"ride_id"`
	Status       string                `json:"status"`
	Action       string                `json:"action"`
	Error        string                `json:"error,omitempty"`
	Notification *NotificationResponse `json:"notification,omitempty"`
}

// SweepResponse is the HTTP response for a settlement sweep.
type SweepResponse struct {
	StartedAt  string              `json:"started_at"`
	FinishedAt string              `json:"finished_at"`
	Cutoff     string              `json:"cutoff,omitempty"`
	Locked     bool                `json:"locked"`
	Failures   int                 `json:"failures"`
	Items      []SweepItemResponse `json:"items"`
}

// Sweep handles POST /v1/admin/settlement/sweep
func (h *SettlementHandler) Sweep(c *gin.Context) {
	report, err := h.sweeper.Sweep(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	response := SweepResponse{
		StartedAt:  formatTime(report.StartedAt),
		FinishedAt: formatTime(report.FinishedAt),
		Cutoff:     formatTime(report.Cutoff),
		Locked:     report.Locked,
		Failures:   report.Failures(),
		Items:      make([]SweepItemResponse, 0, len(report.Items)),
	}
	for _, it := range report.Items {
		item := SweepItemResponse{
			RequestID:    it.RequestID,
			RideID:       it.RideID,
			Status:       string(it.Status),
			Action:       string(it.Action),
			Notification: toNotificationResponse(it.Notification),
		}
		if it.Err != nil {
			item.Error = it.Err.Error()
		}
		response.Items = append(response.Items, item)
	}

	status := http.StatusOK
	if report.Locked {
		status = http.StatusAccepted
	}
	respondJSON(c, status, response)
}
