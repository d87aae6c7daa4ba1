package handler

import (
	"net/http"
	"strconv"

	"github.com/AnantSomani/elara2/internal/service"
	"github.com/gin-gonic/gin"
)

// AdminHandler exposes operational endpoints.
type AdminHandler struct {
	jobs *service.JobService
}

// NewAdminHandler creates an admin handler.
func NewAdminHandler(jobs *service.JobService) *AdminHandler {
	return &AdminHandler{jobs: jobs}
}

// CacheStats reports the dedup cache contents.
func (h *AdminHandler) CacheStats(c *gin.Context) {
	limit := 10
	if raw := c.Query("recent"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	c.JSON(http.StatusOK, h.jobs.CacheStats(limit))
}
