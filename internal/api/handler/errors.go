package handler

import (
	"errors"
	"net/http"

	"github.com/AnantSomani/elara2/internal/domain"
	"github.com/AnantSomani/elara2/internal/pipeline"
	"github.com/gin-gonic/gin"
)

// respondError maps domain errors onto HTTP status codes.
func respondError(c *gin.Context, err error) {
	var parseErr *domain.ReferenceParseError
	var svcErr *domain.ExternalServiceError

	switch {
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "episode not found"})
	case errors.As(err, &parseErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, pipeline.ErrInFlight):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.As(err, &svcErr):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
