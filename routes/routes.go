package routes

import (
	"log"
	"net/http"

	"coinforecast/controllers"
	"coinforecast/middleware"
	"coinforecast/services/realtime"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// SetupRoutes sets up all API routes
func SetupRoutes(router *gin.Engine, db *gorm.DB) {
	// Initialize controllers
	authController := controllers.NewAuthController(db)
	pairController := controllers.NewPairController(db)
	predictController := controllers.NewPredictController(db)
	modelController := controllers.NewModelController(db)
	pipelineController := controllers.NewPipelineController(db)

	// API v1 group
	api := router.Group("/api/v1")
	{
		// Auth routes
		auth := api.Group("/auth")
		{
			auth.POST("/login", authController.Login)
		}

		// Pair and candle routes
		pairs := api.Group("/pairs")
		{
			pairs.GET("", pairController.GetPairs)
			pairs.POST("", middleware.JWTAuthMiddleware(), pairController.CreatePair)
			pairs.GET("/:symbol/candles", pairController.GetCandles)
			pairs.GET("/:symbol/price", pairController.GetSpotPrice)
			pairs.POST("/:symbol/sync", middleware.JWTAuthMiddleware(), pairController.SyncCandles)
		}

		// Prediction routes
		api.POST("/predict", predictController.Predict)
		api.GET("/predictions/recent", predictController.RecentPredictions)

		// Model routes
		models := api.Group("/models")
		{
			models.GET("", modelController.GetModels)
			models.GET("/versions", modelController.GetModelVersions)
			models.POST("/refresh", middleware.JWTAuthMiddleware(), modelController.RefreshModels)
		}

		// Pipeline routes
		pipelineRoutes := api.Group("/pipeline")
		{
			pipelineRoutes.GET("/status", pipelineController.GetStatus)
			pipelineRoutes.GET("/runs", pipelineController.GetRuns)
			pipelineRoutes.POST("/run", middleware.JWTAuthMiddleware(), pipelineController.RunPipeline)
		}
	}

	// Websocket market stream
	router.GET("/ws/market", func(c *gin.Context) {
		if realtime.GlobalStreamService == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Stream service not initialized"})
			return
		}
		if err := realtime.GlobalStreamService.HandleConnection(c.Writer, c.Request); err != nil {
			log.Printf("Warning: websocket connection failed: %v", err)
		}
	})
}
