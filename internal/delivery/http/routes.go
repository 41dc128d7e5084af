package http

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/pricematch/backend/config"
)

// SetupRouter creates and configures the Gin router
func SetupRouter(cfg *config.Config, handler *Handler, logger zerolog.Logger) *gin.Engine {
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	router.Use(RequestIDMiddleware())
	router.Use(RecoveryMiddleware(logger))
	router.Use(LoggerMiddleware(logger))
	router.Use(CORSMiddleware(cfg.Server.AllowedOrigins))

	router.GET("/health", handler.HealthCheck)

	api := router.Group("/api")
	{
		api.POST("/match-item", handler.MatchItem)
		api.GET("/search-products", handler.SearchProducts)

		admin := api.Group("/admin")
		{
			manual := admin.Group("/manual-mappings")
			manual.GET("", handler.ListManualMappings)
			manual.POST("", handler.CreateManualMapping)
			manual.GET("/:id", handler.GetManualMapping)
			manual.DELETE("/:id", handler.DeleteManualMapping)

			admin.POST("/mappings/refresh", handler.RefreshMappings)
		}
	}

	return router
}
