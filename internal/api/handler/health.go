package handler

import (
	"net/http"

	"github.com/AnantSomani/elara2/internal/service"
	"github.com/gin-gonic/gin"
)

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	jobs *service.JobService
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(jobs *service.JobService) *HealthHandler {
	return &HealthHandler{jobs: jobs}
}

// Health returns the health status of the service.
func (h *HealthHandler) Health(c *gin.Context) {
	if err := h.jobs.Healthy(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "degraded",
			"error":  err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
