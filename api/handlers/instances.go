package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/zycxfyh/adaptive-balancer/internal/balancer"
	"github.com/zycxfyh/adaptive-balancer/pkg/models"
)

type InstanceHandler struct {
	balancer *balancer.LoadBalancer
}

func NewInstanceHandler(lb *balancer.LoadBalancer) *InstanceHandler {
	return &InstanceHandler{balancer: lb}
}

type RegisterInstanceRequest struct {
	ID       string            `json:"id"`
	URL      string            `json:"url" binding:"required"`
	Weight   float64           `json:"weight"`
	Metadata map[string]string `json:"metadata"`
}

func (h *InstanceHandler) List(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"algorithm": h.balancer.Algorithm(),
		"instances": h.balancer.Stats(),
	})
}

func (h *InstanceHandler) Register(c *gin.Context) {
	var req RegisterInstanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if req.ID == "" {
		req.ID = models.NewUUID()
	}

	h.balancer.AddInstance(req.ID, req.URL, balancer.InstanceOptions{
		Weight:   req.Weight,
		Metadata: req.Metadata,
	})

	c.JSON(http.StatusCreated, gin.H{"id": req.ID})
}

func (h *InstanceHandler) Deregister(c *gin.Context) {
	id := c.Param("id")
	if err := h.balancer.RemoveInstance(id); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "instance not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id})
}
