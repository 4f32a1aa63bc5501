package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"coinforecast/config"
	"coinforecast/models"
	"coinforecast/pipeline"
	"coinforecast/routes"
	"coinforecast/scheduler"
	"coinforecast/services"
	"coinforecast/services/datasetstore"
	"coinforecast/services/modelstore"
	"coinforecast/services/predictionlog"
	"coinforecast/services/preprocess"
	"coinforecast/services/realtime"
	"coinforecast/services/serving"

	"github.com/gin-gonic/gin"
)

// dbInitialized tracks whether database has been successfully initialized
// so the /ready endpoint can report readiness across goroutines
var dbInitialized bool
var dbInitMutex sync.RWMutex

// jobScheduler is set by the background init goroutine and read during
// shutdown, so access goes through the mutex
var jobScheduler *scheduler.Scheduler
var jobSchedulerMu sync.Mutex

func setJobScheduler(s *scheduler.Scheduler) {
	jobSchedulerMu.Lock()
	jobScheduler = s
	jobSchedulerMu.Unlock()
}

func currentJobScheduler() *scheduler.Scheduler {
	jobSchedulerMu.Lock()
	defer jobSchedulerMu.Unlock()
	return jobScheduler
}

func main() {
	log.Println("==============================================")
	log.Println("  CoinForecast API - Starting...")
	log.Println("==============================================")

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Printf("Warning: Config load issue: %v", err)
	}

	// Set Gin mode based on environment
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Create Gin router
	router := gin.New()

	// Add middlewares
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())
	router.Use(requestLogger())

	// Setup health check endpoints FIRST so the platform can detect the
	// service is up while the database initializes in background
	setupHealthEndpoints(router)

	// Bind to 0.0.0.0 explicitly for container networking
	server := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Port,
		Handler:           router,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1 MB
	}

	// Start server IMMEDIATELY so the platform knows we're listening
	go func() {
		log.Printf("Server listening on 0.0.0.0:%s", cfg.Port)
		log.Println("==============================================")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Initialize database and setup routes in background
	go func() {
		// Initialize database connection
		db, err := config.InitDB()
		if err != nil {
			log.Printf("ERROR: Database connection failed: %v", err)
			log.Println("Service will continue in limited mode (health check only)")
			return
		}

		// Run database migrations
		log.Println("Running database migrations...")
		if err := runMigrations(); err != nil {
			log.Printf("ERROR: Migration failed: %v", err)
		} else {
			log.Println("Database migrations completed successfully")
		}

		// Seed default admin user and pair universe
		if err := models.SeedDefaultAdminUser(config.DB); err != nil {
			log.Printf("Warning: Could not seed admin user: %v", err)
		}
		if err := models.SeedDefaultPairs(config.DB); err != nil {
			log.Printf("Warning: Could not seed default pairs: %v", err)
		}

		// Initialize global services
		initializeGlobalServices()

		// Mark database as ready
		dbInitMutex.Lock()
		dbInitialized = true
		dbInitMutex.Unlock()

		// Setup all API routes
		routes.SetupRoutes(router, db)

		// Start background scheduler
		jobs := scheduler.NewScheduler(db)
		setJobScheduler(jobs)
		go jobs.Start()

		log.Println("Application fully initialized with database")
	}()

	// Graceful shutdown
	gracefulShutdown(server)
}

// runMigrations runs all database migrations
func runMigrations() error {
	db := config.DB

	if err := models.MigratePairModels(db); err != nil {
		return err
	}

	if err := models.MigrateTrainingModels(db); err != nil {
		return err
	}

	if err := models.MigrateAdminModels(db); err != nil {
		return err
	}

	return nil
}

// initializeGlobalServices initializes global service instances
func initializeGlobalServices() {
	cfg := config.AppConfig

	// Local feature cache backs standalone training runs
	if err := datasetstore.Init(cfg.DatasetDBPath); err != nil {
		log.Printf("Warning: Failed to initialize dataset store: %v", err)
	}

	// Candle service first (pipeline and realtime depend on it)
	if err := services.InitCandleService(config.DB); err != nil {
		log.Printf("Warning: Failed to initialize candle service: %v", err)
	}

	// Object storage for published model artifacts
	store, err := modelstore.New(cfg.MinioEndpoint, cfg.MinioAccessKey,
		cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
	if err != nil {
		log.Printf("Warning: Model store not available: %v", err)
	} else {
		if err := serving.InitLoader(store, cfg.ModelsDir); err != nil {
			log.Printf("Warning: Failed to initialize serving loader: %v", err)
		}
	}

	// Prediction archive if configured
	if err := predictionlog.Init(); err != nil {
		log.Printf("MongoDB not configured or failed to connect: %v", err)
	}

	// Pipeline runner
	if err := pipeline.InitRunner(config.DB, services.GlobalCandleService,
		datasetstore.GlobalDatasetStore, store); err != nil {
		log.Printf("Warning: Failed to initialize pipeline runner: %v", err)
	}

	// Realtime market stream
	if err := realtime.Init(activePairSymbols, fetchSpotPrice, predictPair); err != nil {
		log.Printf("Warning: Failed to initialize realtime stream: %v", err)
	}

	log.Println("Global services initialized")
}

// activePairSymbols lists the symbols the realtime stream covers
func activePairSymbols() []string {
	var pairs []models.CryptoPair
	if err := config.DB.Where("status = ?", "active").Find(&pairs).Error; err != nil {
		log.Printf("Warning: failed to load pairs for stream: %v", err)
		return nil
	}

	symbols := make([]string, len(pairs))
	for i, pair := range pairs {
		symbols[i] = pair.Symbol()
	}
	return symbols
}

// fetchSpotPrice resolves the current market price of a pair symbol
func fetchSpotPrice(symbol string) (float64, error) {
	if services.GlobalCandleService == nil {
		return 0, fmt.Errorf("candle service not initialized")
	}

	currency, compare, err := models.ParsePairSymbol(symbol)
	if err != nil {
		return 0, err
	}

	return services.GlobalCandleService.Client().FetchSpotPrice(currency, compare)
}

// predictPair runs the loaded model of a pair over its stored candles
func predictPair(symbol string) (float64, error) {
	if serving.GlobalLoader == nil || services.GlobalCandleService == nil {
		return 0, fmt.Errorf("prediction services not initialized")
	}

	windowSize, err := serving.GlobalLoader.WindowSize(symbol)
	if err != nil {
		return 0, err
	}

	currency, compare, err := models.ParsePairSymbol(symbol)
	if err != nil {
		return 0, err
	}

	var pair models.CryptoPair
	if err := config.DB.Where("currency = ? AND compare = ?", currency, compare).First(&pair).Error; err != nil {
		return 0, fmt.Errorf("pair not found: %s", symbol)
	}

	candles, err := services.GlobalCandleService.LatestCandles(pair.ID, windowSize+1)
	if err != nil {
		return 0, err
	}
	if len(candles) < windowSize {
		return 0, fmt.Errorf("not enough candle history for %s", symbol)
	}

	rows := preprocess.BuildFeatures(pipeline.CandlesToBars(candles))
	return serving.GlobalLoader.Predict(symbol, rows)
}

// setupHealthEndpoints sets up liveness and readiness probes
func setupHealthEndpoints(router *gin.Engine) {
	// Root endpoint
	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"message": "CoinForecast API",
			"version": "1.0.0",
		})
	})

	// Liveness probe - always returns OK if server is running
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
		})
	})

	// Readiness probe - checks if service is ready to receive traffic
	router.GET("/ready", func(c *gin.Context) {
		dbInitMutex.RLock()
		isDBReady := dbInitialized
		dbInitMutex.RUnlock()

		if !isDBReady {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "not_ready",
				"message": "Database not connected",
			})
			return
		}

		sqlDB, err := config.DB.DB()
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "not_ready",
				"message": "Database connection error",
			})
			return
		}

		if err := sqlDB.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "not_ready",
				"message": "Database ping failed",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status": "ready",
		})
	})

	// Startup probe
	router.GET("/startup", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "started",
		})
	})
}

// corsMiddleware returns a CORS middleware handler
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Requested-With")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// requestLogger returns a request logging middleware
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Skip logging for health checks to reduce noise
		path := c.Request.URL.Path
		if path == "/health" || path == "/ready" || path == "/startup" {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()
		duration := time.Since(start)

		// Only log errors or slow requests
		if c.Writer.Status() >= 400 || duration > 1*time.Second {
			log.Printf("%s %s %d %v", c.Request.Method, path, c.Writer.Status(), duration)
		}
	}
}

// gracefulShutdown handles graceful shutdown of the server
func gracefulShutdown(server *http.Server) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sig := <-quit
	log.Printf("Received signal %v, shutting down gracefully...", sig)

	// Stop scheduler first; it may have been set after startup
	if jobs := currentJobScheduler(); jobs != nil {
		jobs.Stop()
	}

	// Stop the realtime stream and close clients
	if realtime.GlobalStreamService != nil {
		realtime.GlobalStreamService.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Shutdown HTTP server
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	// Close the prediction archive connection
	if predictionlog.GlobalPredictionLog != nil {
		if err := predictionlog.GlobalPredictionLog.Close(); err != nil {
			log.Printf("Warning: failed to close prediction archive: %v", err)
		}
	}

	// Close the local feature cache
	if datasetstore.GlobalDatasetStore != nil {
		if err := datasetstore.GlobalDatasetStore.Close(); err != nil {
			log.Printf("Warning: failed to close dataset store: %v", err)
		}
	}

	// Close database connection
	if config.DB != nil {
		sqlDB, err := config.DB.DB()
		if err == nil {
			sqlDB.Close()
			log.Println("Database connection closed")
		}
	}

	log.Println("Server shutdown completed")
}
