package handler

import (
	"net/http"

	"github.com/AnantSomani/elara2/internal/pipeline"
	"github.com/AnantSomani/elara2/internal/service"
	"github.com/gin-gonic/gin"
)

const maxBatchSize = 100

// BatchHandler exposes bounded-concurrency batch processing.
type BatchHandler struct {
	jobs *service.JobService
}

// NewBatchHandler creates a batch handler.
func NewBatchHandler(jobs *service.JobService) *BatchHandler {
	return &BatchHandler{jobs: jobs}
}

type batchRequest struct {
	SourceRefs    []string `json:"source_refs" binding:"required"`
	MaxConcurrent int      `json:"max_concurrent"`
	Force         bool     `json:"force_reprocess"`
}

// Run accepts a batch of source references and starts processing in
// the background. Items fail independently; per-item outcomes land in
// the store and are visible through the status endpoint.
func (h *BatchHandler) Run(c *gin.Context) {
	var req batchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(req.SourceRefs) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "source_refs must not be empty"})
		return
	}
	if len(req.SourceRefs) > maxBatchSize {
		c.JSON(http.StatusBadRequest, gin.H{"error": "batch too large"})
		return
	}

	acc := h.jobs.RunBatchAsync(c.Request.Context(), req.SourceRefs, pipeline.Options{Force: req.Force}, req.MaxConcurrent)
	c.JSON(http.StatusAccepted, acc)
}
