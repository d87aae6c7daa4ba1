package middleware

import (
	"time"

	"github.com/AnantSomani/elara2/internal/logger"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Logger returns a middleware that injects a request-scoped logger and
// logs each request with its id, status and latency.
func Logger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := uuid.New().String()

		reqLog := log.WithFields(logger.Fields{
			logger.FieldRequestID: requestID,
			logger.FieldComponent: "api",
		})
		ctx := reqLog.WithContext(c.Request.Context())
		c.Request = c.Request.WithContext(ctx)
		c.Header("X-Request-ID", requestID)

		c.Next()

		entry := reqLog.WithFields(logger.Fields{
			"method":               c.Request.Method,
			"path":                 c.Request.URL.Path,
			logger.FieldStatus:     c.Writer.Status(),
			logger.FieldDurationMs: time.Since(start).Milliseconds(),
			"client_ip":            c.ClientIP(),
		})
		if len(c.Errors) > 0 {
			entry.WithField("errors", c.Errors.String()).Error("Request failed")
			return
		}
		if c.Writer.Status() >= 500 {
			entry.Error("Request completed")
			return
		}
		entry.Info("Request completed")
	}
}
