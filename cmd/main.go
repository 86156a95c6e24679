package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"catalog-import-service/internal/clients/magento"
	"catalog-import-service/internal/config"
	"catalog-import-service/internal/events"
	"catalog-import-service/internal/handlers"
	"catalog-import-service/internal/middleware"
	"catalog-import-service/internal/repository"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	// Initialize configuration
	cfg := config.Load()

	// Initialize database
	db, err := config.InitDB(cfg)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	if cfg.Environment == "production" {
		logger.SetLevel(logrus.InfoLevel)
	} else {
		logger.SetLevel(logrus.DebugLevel)
	}

	// Initialize Redis client
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Printf("WARNING: Failed to parse Redis URL: %v (continuing without Redis)", err)
		redisOpts = &redis.Options{
			Addr: "localhost:6379",
		}
	}
	redisClient := redis.NewClient(redisOpts)

	// Test Redis connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Printf("WARNING: Failed to connect to Redis: %v (progress snapshots will be disabled)", err)
	} else {
		log.Println("✓ Redis connected successfully")
	}
	cancel()

	// Initialize repository
	jobsRepo := repository.NewImportJobsRepository(db, redisClient)

	// Initialize event publisher only if NATS_URL is set
	eventsPublisher, err := events.NewPublisher(cfg.NATSURL, logger)
	if err != nil {
		log.Printf("WARNING: Failed to initialize events publisher: %v (continuing without event publishing)", err)
	} else if eventsPublisher != nil {
		log.Println("✓ Events publisher initialized (NATS connected)")
	} else {
		log.Println("NATS_URL not set, skipping event publishing initialization")
	}
	defer eventsPublisher.Close()

	// Initialize Magento client
	magentoClient := magento.NewClient(magento.Config{
		BaseURL:           cfg.MagentoBaseURL,
		AccessToken:       cfg.MagentoAccessToken,
		RequestsPerSecond: cfg.MagentoRPS,
	})
	log.Printf("✓ Magento client initialized for %s", cfg.MagentoBaseURL)

	// Initialize handlers
	healthHandler := handlers.NewHealthHandler()
	importHandler := handlers.NewImportHandler(jobsRepo, magentoClient, magentoClient.ResolveCategoryPath, eventsPublisher, cfg, logger)

	// Initialize Gin router
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(logger))
	router.Use(middleware.CORS())

	// Health check endpoints
	router.GET("/health", healthHandler.Health)
	router.GET("/ready", healthHandler.Ready)

	// API routes
	v1 := router.Group("/api/v1")
	{
		catalogImport := v1.Group("/catalog/import")
		{
			catalogImport.GET("/template", importHandler.GetImportTemplate)
			catalogImport.POST("", importHandler.ImportCatalog)
			catalogImport.GET("/jobs", importHandler.ListJobs)
			catalogImport.GET("/jobs/:id", importHandler.GetJob)
			catalogImport.GET("/jobs/:id/progress", importHandler.GetJobProgress)
			catalogImport.POST("/jobs/:id/cancel", importHandler.CancelJob)
		}
	}

	// Graceful shutdown handling
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("Catalog import service starting on port %s", cfg.Port)
		if err := router.Run(":" + cfg.Port); err != nil {
			log.Fatal("Failed to start server:", err)
		}
	}()

	<-quit
	log.Println("Shutting down catalog-import-service...")
	log.Println("Catalog import service stopped")
}
