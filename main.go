package main

import (
	"context"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nquinn721/ai-stock-trader-sub001/config"
	"github.com/nquinn721/ai-stock-trader-sub001/controllers"
	"github.com/nquinn721/ai-stock-trader-sub001/middleware"
	"github.com/nquinn721/ai-stock-trader-sub001/models"
	"github.com/nquinn721/ai-stock-trader-sub001/routes"
	"github.com/nquinn721/ai-stock-trader-sub001/scheduler"
	"github.com/nquinn721/ai-stock-trader-sub001/services"
	"github.com/nquinn721/ai-stock-trader-sub001/services/marketdata"
	"github.com/nquinn721/ai-stock-trader-sub001/services/sentiment"
	"github.com/nquinn721/ai-stock-trader-sub001/services/signals"
	"github.com/nquinn721/ai-stock-trader-sub001/services/stream"
	"gopkg.in/natefinch/lumberjack.v2"
)

func main() {
	setupLogging()

	log.Println("==============================================")
	log.Println("  Stock Trader API - Starting...")
	log.Println("==============================================")

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Printf("Warning: Config load issue: %v", err)
	}

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := config.InitDB()
	if err != nil {
		log.Fatalf("Database initialization failed: %v", err)
	}

	log.Println("Running database migrations...")
	if err := models.MigrateStockModels(db); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	// Live quote engine
	cache := marketdata.NewPriceCache()
	guard := marketdata.NewRateLimitGuard(cfg.RateLimitThreshold, cfg.RateLimitCooldown)
	client := marketdata.NewClient(cfg.QuoteAPIURL, cfg.QuoteAPIKey, cfg.FetchTimeout)

	stockService := services.NewStockService(db, cache)
	if err := stockService.SeedDefaultStocks(); err != nil {
		log.Printf("Warning: Could not seed stock universe: %v", err)
	}

	hub := stream.NewHub()
	go hub.Run()

	updateScheduler := marketdata.NewUpdateScheduler(client, cache, guard, hub,
		stockService, cfg.UpdateInterval, cfg.RequestDelay)

	rootCtx, rootCancel := context.WithCancel(context.Background())
	updateScheduler.Start(rootCtx)

	jobScheduler := scheduler.NewScheduler(stockService)
	jobScheduler.Start()

	// HTTP surface
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS())
	router.Use(middleware.RequestLogger())
	setupHealthEndpoints(router)

	generator := signals.NewGenerator(time.Now().UnixNano())
	sentimentService := sentiment.NewService(5 * time.Minute)

	stockController := controllers.NewStockController(stockService, cache, client,
		guard, generator, sentimentService, hub, updateScheduler)
	routes.SetupRoutes(router, stockController, hub)

	server := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Port,
		Handler:           router,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1 MB
	}

	go func() {
		log.Printf("Server listening on 0.0.0.0:%s", cfg.Port)
		log.Println("==============================================")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutdown signal received...")

	rootCancel()
	updateScheduler.Stop()
	jobScheduler.Stop()
	hub.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}

// setupLogging writes to stdout and a rotating file
func setupLogging() {
	logDir := "logs"
	if err := os.MkdirAll(logDir, 0755); err != nil {
		log.Printf("Could not create log directory, logging to stdout only: %v", err)
		return
	}

	fileLogger := &lumberjack.Logger{
		Filename:   filepath.Join(logDir, "app.log"),
		MaxSize:    10, // Megabytes
		MaxBackups: 3,
		MaxAge:     28, // Days
		Compress:   true,
	}
	log.SetOutput(io.MultiWriter(os.Stdout, fileLogger))
}

// setupHealthEndpoints registers liveness and readiness probes
func setupHealthEndpoints(router *gin.Engine) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().Format(time.RFC3339)})
	})
	router.GET("/ready", func(c *gin.Context) {
		if config.DB == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "initializing"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
}
