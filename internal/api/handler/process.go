package handler

import (
	"net/http"

	"github.com/AnantSomani/elara2/internal/identity"
	"github.com/AnantSomani/elara2/internal/pipeline"
	"github.com/AnantSomani/elara2/internal/service"
	"github.com/gin-gonic/gin"
)

// ProcessHandler exposes episode submission and status endpoints.
type ProcessHandler struct {
	jobs *service.JobService
}

// NewProcessHandler creates a process handler.
func NewProcessHandler(jobs *service.JobService) *ProcessHandler {
	return &ProcessHandler{jobs: jobs}
}

type processRequest struct {
	SourceRef string `json:"source_ref"`
	EpisodeID string `json:"episode_id"`
	Force     bool   `json:"force_reprocess"`
}

// Submit accepts a source reference (or an existing episode id) and
// dispatches processing in the background. Already-processed episodes
// short-circuit with 200 and no work scheduled.
func (h *ProcessHandler) Submit(c *gin.Context) {
	var req processRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.SourceRef == "" && req.EpisodeID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "source_ref or episode_id is required"})
		return
	}

	opts := pipeline.Options{Force: req.Force}
	var acc *service.Accepted
	var err error
	if req.EpisodeID != "" {
		acc, err = h.jobs.DispatchByID(c.Request.Context(), req.EpisodeID, opts)
	} else {
		acc, err = h.jobs.SubmitAsync(c.Request.Context(), req.SourceRef, opts)
	}
	if err != nil {
		respondError(c, err)
		return
	}
	if acc.AlreadyProcessed {
		c.JSON(http.StatusOK, acc)
		return
	}
	c.JSON(http.StatusAccepted, acc)
}

type processFeedRequest struct {
	GUID            string `json:"guid" binding:"required"`
	EnclosureURL    string `json:"enclosure_url" binding:"required"`
	Title           string `json:"title"`
	Description     string `json:"description"`
	DurationSeconds int    `json:"duration_seconds"`
	Force           bool   `json:"force_reprocess"`
}

// SubmitFeed accepts a feed item that carries its own globally unique
// id and metadata.
func (h *ProcessHandler) SubmitFeed(c *gin.Context) {
	var req processFeedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	meta := &identity.Metadata{
		Title:           req.Title,
		Description:     req.Description,
		DurationSeconds: req.DurationSeconds,
	}
	episodeID, err := h.jobs.SubmitGUID(c.Request.Context(), req.GUID, req.EnclosureURL, meta)
	if err != nil {
		respondError(c, err)
		return
	}

	acc, err := h.jobs.DispatchByID(c.Request.Context(), episodeID, pipeline.Options{Force: req.Force})
	if err != nil {
		respondError(c, err)
		return
	}
	if acc.AlreadyProcessed {
		c.JSON(http.StatusOK, acc)
		return
	}
	c.JSON(http.StatusAccepted, acc)
}

// Status reports pipeline progress for one episode.
func (h *ProcessHandler) Status(c *gin.Context) {
	status, err := h.jobs.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// Detail returns the enriched episode with all its segments.
func (h *ProcessHandler) Detail(c *gin.Context) {
	detail, err := h.jobs.Detail(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}
