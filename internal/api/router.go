package api

import (
	"github.com/gin-gonic/gin"

	"github.com/tmn/memelet/internal/api/handler"
	"github.com/tmn/memelet/internal/api/middleware"
	"github.com/tmn/memelet/internal/config"
	"github.com/tmn/memelet/internal/logger"
	"github.com/tmn/memelet/internal/repository"
	"github.com/tmn/memelet/internal/service"
)

// SetupRouter configures the Gin router with all routes
func SetupRouter(
	cfg *config.ServerConfig,
	pipeline *service.Pipeline,
	media *repository.MediaRepository,
	tags *repository.TagRepository,
	jobs *repository.JobRepository,
	log *logger.Logger,
) *gin.Engine {
	// Set Gin mode
	switch cfg.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()

	// Add middleware
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(log))
	r.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins:  cfg.CORS.AllowedOrigins,
		AllowAllOrigins: cfg.CORS.AllowAllOrigins,
	}))

	// Create handlers
	healthHandler := handler.NewHealthHandler()
	jobHandler := handler.NewJobHandler(pipeline, jobs)
	mediaHandler := handler.NewMediaHandler(media, tags)
	tagHandler := handler.NewTagHandler(tags)

	// Health check
	r.GET("/health", healthHandler.Health)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		// Pipeline jobs: trigger and poll
		v1.POST("/jobs", jobHandler.Trigger)
		v1.GET("/jobs", jobHandler.List)
		v1.GET("/jobs/:id", jobHandler.Get)

		// Catalog
		v1.GET("/media", mediaHandler.List)
		v1.GET("/media/:id", mediaHandler.Get)
		v1.GET("/stats", mediaHandler.Stats)

		// Tag vocabulary
		v1.GET("/tags", tagHandler.List)
		v1.POST("/tags", tagHandler.Create)
	}

	return r
}
