// api/handlers/alert_handlers.go
package handlers

import (
	"context"
	"database/sql"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"funnelsight/api/detect"
	"funnelsight/api/models"
	"funnelsight/api/store"
)

// AlertDetector is the detection pass the check endpoint triggers.
type AlertDetector interface {
	Run(ctx context.Context, funnel *models.Funnel) (*detect.Result, error)
}

// FunnelLister supplies the funnels to check.
type FunnelLister interface {
	ListActiveFunnels(ctx context.Context) ([]models.Funnel, error)
}

type AlertHandlers struct {
	Detector   AlertDetector
	Funnels    FunnelLister
	AlertStore *store.AlertStore
}

func NewAlertHandlers(detector AlertDetector, funnels FunnelLister, alertStore *store.AlertStore) *AlertHandlers {
	return &AlertHandlers{Detector: detector, Funnels: funnels, AlertStore: alertStore}
}

// CheckAlerts runs the anomaly detector over every active funnel.
func (h *AlertHandlers) CheckAlerts(c *gin.Context) {
	funnels, err := h.Funnels.ListActiveFunnels(c.Request.Context())
	if err != nil {
		log.Error().Err(err).Msg("failed to list funnels for alert check")
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Failed to list funnels"})
		return
	}

	detected, saved := 0, 0
	var alerts []models.Alert
	for i := range funnels {
		result, err := h.Detector.Run(c.Request.Context(), &funnels[i])
		if err != nil {
			log.Error().Err(err).Int("funnel_id", funnels[i].ID).Msg("alert detection failed")
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
			return
		}
		detected += result.Detected
		saved += result.Saved
		alerts = append(alerts, result.Alerts...)
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"detected": detected,
		"saved":    saved,
		"alerts":   alerts,
	})
}

// ListAlerts returns stored alerts for the dashboard, optionally filtered by
// lifecycle status.
func (h *AlertHandlers) ListAlerts(c *gin.Context) {
	funnels, err := h.Funnels.ListActiveFunnels(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list funnels"})
		return
	}

	status := models.AlertStatus(c.Query("status"))
	var all []models.Alert
	for _, f := range funnels {
		alerts, err := h.AlertStore.ListAlerts(c.Request.Context(), f.ID, status)
		if err != nil {
			log.Error().Err(err).Int("funnel_id", f.ID).Msg("failed to list alerts")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve alerts"})
			return
		}
		all = append(all, alerts...)
	}
	c.JSON(http.StatusOK, all)
}

type alertStatusRequest struct {
	Status models.AlertStatus `json:"status" binding:"required"`
}

// UpdateAlertStatus applies a manual acknowledge/resolve transition. The
// detector never resolves alerts on its own.
func (h *AlertHandlers) UpdateAlertStatus(c *gin.Context) {
	var req alertStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	switch req.Status {
	case models.AlertAcknowledged, models.AlertResolved, models.AlertActive:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid status"})
		return
	}

	if err := h.AlertStore.UpdateAlertStatus(c.Request.Context(), c.Param("id"), req.Status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Alert not found"})
			return
		}
		log.Error().Err(err).Str("alert_id", c.Param("id")).Msg("failed to update alert status")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update alert"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Alert updated"})
}
