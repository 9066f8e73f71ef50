package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Config holds all runtime configuration
type Config struct {
	Port        string
	Environment string

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	SQLitePath string

	// Upstream quote provider
	QuoteAPIURL string
	QuoteAPIKey string

	// Live update engine
	UpdateInterval     time.Duration // scheduler tick
	RequestDelay       time.Duration // pacing between per-symbol fetches
	FetchTimeout       time.Duration // per-request deadline
	RateLimitThreshold int           // consecutive rate-limit errors before cooldown
	RateLimitCooldown  time.Duration // how long fetching stays suspended
}

var AppConfig *Config
var DB *gorm.DB

// LoadConfig loads environment variables
func LoadConfig() (*Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	config := &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENVIRONMENT", "development"),

		DBHost:     getEnv("DB_HOST", ""),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBName:     getEnv("DB_NAME", "stock_trader"),
		SQLitePath: getEnv("SQLITE_PATH", "data/stock_trader.db"),

		QuoteAPIURL: getEnv("QUOTE_API_URL", "https://query1.finance.yahoo.com"),
		QuoteAPIKey: getEnv("QUOTE_API_KEY", ""),

		UpdateInterval:     getEnvDuration("UPDATE_INTERVAL", 5*time.Second),
		RequestDelay:       getEnvDuration("REQUEST_DELAY", 100*time.Millisecond),
		FetchTimeout:       getEnvDuration("FETCH_TIMEOUT", 10*time.Second),
		RateLimitThreshold: getEnvInt("RATE_LIMIT_THRESHOLD", 3),
		RateLimitCooldown:  getEnvDuration("RATE_LIMIT_COOLDOWN", 2*time.Minute),
	}

	AppConfig = config
	return config, nil
}

// InitDB initializes the database connection. Postgres is used when DB_HOST is
// configured; otherwise it falls back to a local SQLite file so the service can
// run without external infrastructure.
func InitDB() (*gorm.DB, error) {
	var logLevel logger.LogLevel
	if AppConfig.Environment == "production" {
		logLevel = logger.Error
	} else {
		logLevel = logger.Warn
	}
	gormCfg := &gorm.Config{Logger: logger.Default.LogMode(logLevel)}

	var db *gorm.DB
	var err error

	if AppConfig.DBHost != "" {
		log.Printf("Connecting to database: host=%s port=%s user=%s dbname=%s",
			maskHost(AppConfig.DBHost), AppConfig.DBPort, AppConfig.DBUser, AppConfig.DBName)

		dsn := fmt.Sprintf(
			"host=%s user=%s password=%s dbname=%s port=%s sslmode=require TimeZone=UTC",
			AppConfig.DBHost, AppConfig.DBUser, AppConfig.DBPassword,
			AppConfig.DBName, AppConfig.DBPort,
		)
		db, err = gorm.Open(postgres.Open(dsn), gormCfg)
	} else {
		log.Printf("DB_HOST not set, using SQLite at %s", AppConfig.SQLitePath)
		db, err = gorm.Open(sqlite.Open(AppConfig.SQLitePath), gormCfg)
	}

	if err != nil {
		log.Printf("Database connection error: %v", err)
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	DB = db
	return db, nil
}

// getEnv gets environment variable with fallback
func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

// getEnvInt gets an integer environment variable with fallback
func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
		log.Printf("Invalid value for %s: %q, using default %d", key, value, fallback)
	}
	return fallback
}

// getEnvDuration gets a duration environment variable with fallback
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		log.Printf("Invalid value for %s: %q, using default %v", key, value, fallback)
	}
	return fallback
}

// maskHost masks a hostname for logging
func maskHost(host string) string {
	if len(host) <= 8 {
		return "***"
	}
	return host[:4] + "***" + host[len(host)-4:]
}
