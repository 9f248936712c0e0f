package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/zycxfyh/adaptive-balancer/internal/autoscaler"
	"github.com/zycxfyh/adaptive-balancer/internal/scaler"
)

const defaultHistoryLimit = 50

type ScalingHandler struct {
	autoscaler *autoscaler.Autoscaler
}

func NewScalingHandler(as *autoscaler.Autoscaler) *ScalingHandler {
	return &ScalingHandler{autoscaler: as}
}

type ManualScaleRequest struct {
	Target int    `json:"target" binding:"required"`
	Reason string `json:"reason"`
}

func (h *ScalingHandler) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, h.autoscaler.Stats())
}

func (h *ScalingHandler) ManualScale(c *gin.Context) {
	var req ManualScaleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	reason := req.Reason
	if reason == "" {
		reason = "manual scale requested"
	}

	event, err := h.autoscaler.ManualScale(c.Request.Context(), req.Target, reason)
	if err != nil {
		if errors.Is(err, scaler.ErrExecutionInProgress) {
			c.JSON(http.StatusConflict, gin.H{"error": "scaling operation already in progress"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, event)
}

func (h *ScalingHandler) History(c *gin.Context) {
	limit := defaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	c.JSON(http.StatusOK, gin.H{"events": h.autoscaler.ScaleHistory(limit)})
}

func (h *ScalingHandler) Alerts(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"alerts": h.autoscaler.ActiveAlerts()})
}
