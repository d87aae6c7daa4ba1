package api

import (
	"github.com/AnantSomani/elara2/internal/api/handler"
	"github.com/AnantSomani/elara2/internal/api/middleware"
	"github.com/AnantSomani/elara2/internal/logger"
	"github.com/AnantSomani/elara2/internal/service"
	"github.com/gin-gonic/gin"
)

// RouterConfig carries what the router needs beyond the services.
type RouterConfig struct {
	Mode           string
	AllowedOrigins []string
}

// SetupRouter configures the Gin router with all routes. searchService
// may be nil when the vector index is disabled.
func SetupRouter(
	jobService *service.JobService,
	searchService *service.SearchService,
	log *logger.Logger,
	cfg RouterConfig,
) *gin.Engine {
	switch cfg.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.Logger(log))
	r.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins:  cfg.AllowedOrigins,
		AllowAllOrigins: len(cfg.AllowedOrigins) == 0,
	}))

	healthHandler := handler.NewHealthHandler(jobService)
	processHandler := handler.NewProcessHandler(jobService)
	batchHandler := handler.NewBatchHandler(jobService)
	adminHandler := handler.NewAdminHandler(jobService)

	r.GET("/health", healthHandler.Health)

	v1 := r.Group("/api/v1")
	{
		v1.POST("/process", processHandler.Submit)
		v1.POST("/process-feed", processHandler.SubmitFeed)
		v1.GET("/status/:id", processHandler.Status)
		v1.GET("/episodes/:id", processHandler.Detail)

		v1.POST("/batch", batchHandler.Run)

		if searchService != nil {
			searchHandler := handler.NewSearchHandler(searchService)
			v1.POST("/search", searchHandler.Search)
		}

		v1.GET("/cache", adminHandler.CacheStats)
	}

	return r
}
