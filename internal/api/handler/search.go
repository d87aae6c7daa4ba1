package handler

import (
	"net/http"

	"github.com/AnantSomani/elara2/internal/service"
	"github.com/gin-gonic/gin"
)

// SearchHandler exposes semantic search over transcript segments.
type SearchHandler struct {
	search *service.SearchService
}

// NewSearchHandler creates a search handler.
func NewSearchHandler(search *service.SearchService) *SearchHandler {
	return &SearchHandler{search: search}
}

type searchRequest struct {
	Query     string `json:"query" binding:"required"`
	TopK      int    `json:"top_k"`
	EpisodeID string `json:"episode_id"`
}

// Search returns the segments most similar to the query, optionally
// scoped to one episode.
func (h *SearchHandler) Search(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	hits, err := h.search.Search(c.Request.Context(), req.Query, req.TopK, req.EpisodeID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"query": req.Query,
		"hits":  hits,
	})
}
