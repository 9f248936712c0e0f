package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/zycxfyh/adaptive-balancer/internal/balancer"
)

// ProxyHandler forwards client traffic through the load balancer. The
// client IP is the stickiness key for hash-based algorithms.
type ProxyHandler struct {
	balancer *balancer.LoadBalancer
}

func NewProxyHandler(lb *balancer.LoadBalancer) *ProxyHandler {
	return &ProxyHandler{balancer: lb}
}

func (h *ProxyHandler) Forward(c *gin.Context) {
	c.Request.URL.Path = c.Param("path")

	err := h.balancer.Forward(c.Writer, c.Request, c.ClientIP())
	if err != nil {
		if errors.Is(err, balancer.ErrNoHealthyInstance) {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "no healthy instance available"})
			return
		}
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": "upstream request failed"})
	}
}
