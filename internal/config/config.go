package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"catalog-import-service/internal/models"
)

type Config struct {
	// Database
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// Redis
	RedisURL string

	// NATS
	NATSURL string

	// Server
	Port        string
	Environment string

	// Magento
	MagentoBaseURL     string
	MagentoAccessToken string
	MagentoRPS         float64

	// Import tuning
	ImportBatchSize       int
	ImportConcurrency     int
	ImportMaxAttempts     int
	ImportBaseDelay       time.Duration
	ImportInterBatchDelay time.Duration

	// Batch artifact output
	BatchFileDir string
}

func Load() *Config {
	dbPort, _ := strconv.Atoi(getEnv("DB_PORT", "5432"))
	magentoRPS, _ := strconv.ParseFloat(getEnv("MAGENTO_RPS", "10"), 64)
	batchSize, _ := strconv.Atoi(getEnv("IMPORT_BATCH_SIZE", "100"))
	concurrency, _ := strconv.Atoi(getEnv("IMPORT_CONCURRENCY", "5"))
	maxAttempts, _ := strconv.Atoi(getEnv("IMPORT_MAX_ATTEMPTS", "3"))
	baseDelayMs, _ := strconv.Atoi(getEnv("IMPORT_BASE_DELAY_MS", "1000"))
	interBatchMs, _ := strconv.Atoi(getEnv("IMPORT_INTER_BATCH_DELAY_MS", "500"))

	return &Config{
		// Database
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     dbPort,
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", "postgres"),
		DBName:     getEnv("DB_NAME", "catalog_import_db"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		// Redis
		RedisURL: getEnv("REDIS_URL", "redis://localhost:6379/0"),

		// NATS - optional, events are skipped when empty
		NATSURL: getEnv("NATS_URL", ""),

		// Server
		Port:        getEnv("PORT", "8093"),
		Environment: getEnv("ENVIRONMENT", "development"),

		// Magento
		MagentoBaseURL:     getEnv("MAGENTO_BASE_URL", "http://localhost:8080"),
		MagentoAccessToken: getEnv("MAGENTO_ACCESS_TOKEN", ""),
		MagentoRPS:         magentoRPS,

		// Import tuning
		ImportBatchSize:       batchSize,
		ImportConcurrency:     concurrency,
		ImportMaxAttempts:     maxAttempts,
		ImportBaseDelay:       time.Duration(baseDelayMs) * time.Millisecond,
		ImportInterBatchDelay: time.Duration(interBatchMs) * time.Millisecond,

		// Batch artifact output
		BatchFileDir: getEnv("BATCH_FILE_DIR", ""),
	}
}

func InitDB(cfg *Config) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBSSLMode)

	var logLevel logger.LogLevel
	if cfg.Environment == "production" {
		logLevel = logger.Error
	} else {
		logLevel = logger.Info
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})

	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	log.Println("Running auto-migrations...")
	if err := db.AutoMigrate(&models.ImportJob{}); err != nil {
		return nil, fmt.Errorf("failed to run auto-migrations: %w", err)
	}
	log.Println("Auto-migrations completed successfully")

	return db, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
