package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/zycxfyh/adaptive-balancer/internal/metrics"
	"github.com/zycxfyh/adaptive-balancer/internal/provider"
)

type HealthHandler struct {
	provider provider.Provider
	source   metrics.Source
}

func NewHealthHandler(prov provider.Provider, source metrics.Source) *HealthHandler {
	return &HealthHandler{provider: prov, source: source}
}

type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string)
	status := "healthy"

	if h.provider != nil {
		if err := h.provider.HealthCheck(ctx); err != nil {
			checks["provider"] = "unhealthy: " + err.Error()
			status = "unhealthy"
		} else {
			checks["provider"] = "healthy"
		}
	}

	if h.source != nil {
		if err := h.source.HealthCheck(ctx); err != nil {
			checks["metrics"] = "unhealthy: " + err.Error()
			status = "unhealthy"
		} else {
			checks["metrics"] = "healthy"
		}
	}

	statusCode := http.StatusOK
	if status == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
	})
}

func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:    "alive",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}
