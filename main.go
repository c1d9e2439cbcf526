package main

import (
	"context"
	"log"
	"time"

	"github.com/beepi/vehicle-lookup-backend/config"
	"github.com/beepi/vehicle-lookup-backend/database"
	"github.com/beepi/vehicle-lookup-backend/handlers"
	"github.com/beepi/vehicle-lookup-backend/jobs"
	"github.com/beepi/vehicle-lookup-backend/services"
	"github.com/beepi/vehicle-lookup-backend/shared"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
)

func main() {
	// Load config
	cfg := config.LoadConfig()
	cfg.ConfigureLogging()

	// Connect to database
	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := database.EnsureSchema(context.Background(), db); err != nil {
		log.Fatalf("Failed to ensure database schema: %v", err)
	}

	// Shared infrastructure
	metrics := shared.NewMetricsRegistry()
	clientFactory := shared.NewHTTPClientFactory(cfg.RequestTimeout)

	// Repositories and services
	logRepo := database.NewLogRepository(db)
	plateService := services.NewPlateService()
	vehicleCache := services.NewCacheService(cfg.VehicleCacheTTL, 1000)
	aiCache := services.NewCacheService(cfg.AISummaryTTL, 1000)
	healthCache := services.NewCacheService(cfg.HealthCacheTTL, 16)
	accessService := services.NewAccessService(logRepo, cfg.HourlyRateLimit, cfg.DailyQuota)
	workerClient := services.NewWorkerClient(cfg.WorkerBaseURL, cfg.ChatServiceURL, cfg.SiteURL, cfg.RequestTimeout, clientFactory, metrics)
	interpreter := services.NewResponseInterpreter()
	lookupService := services.NewLookupService(
		plateService,
		vehicleCache,
		aiCache,
		accessService,
		workerClient,
		interpreter,
		logRepo,
		cfg.VehicleCacheTTL,
		cfg.AISummaryTTL,
	)
	monitorService := services.NewMonitorService(workerClient, healthCache, int(cfg.HealthCacheTTL.Seconds()))

	// Handlers
	lookupHandler := handlers.NewLookupHandler(lookupService, cfg.AdminToken)
	statusHandler := handlers.NewStatusHandler(lookupService)
	adminHandler := handlers.NewAdminHandler(lookupService, monitorService, logRepo, metrics, cfg.AdminToken)

	// Background jobs
	cleanupJob := jobs.NewLogCleanupJob(logRepo, cfg.LogRetentionDays)
	go func() {
		cleanupTicker := time.NewTicker(12 * time.Hour)
		defer cleanupTicker.Stop()
		for range cleanupTicker.C {
			cleanupJob.Run()
		}
	}()

	// Setup Fiber
	app := fiber.New()

	// Middleware
	app.Use(logger.New())
	app.Use(cors.New())

	// Health check endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":    "ok",
			"timestamp": time.Now().Unix(),
		})
	})

	// Routes
	api := app.Group("/api/v1")

	api.Post("/lookup", lookupHandler.Lookup)
	api.Get("/ai-summary/:regNumber", lookupHandler.PollAISummary)
	api.Get("/status", statusHandler.GetStatus)

	// Admin Routes
	admin := api.Group("/admin", adminHandler.RequireToken)
	admin.Get("/upstream-health", adminHandler.GetUpstreamHealth)
	admin.Get("/chat-health", adminHandler.GetChatHealth)
	admin.Post("/cache/clear", adminHandler.ClearCache)
	admin.Get("/stats", adminHandler.GetStats)
	admin.Get("/lookups/failed", adminHandler.GetFailedLookups)
	admin.Get("/lookups/popular", adminHandler.GetPopularSearches)
	admin.Post("/analytics/reset", adminHandler.ResetAnalytics)
	admin.Get("/metrics", adminHandler.GetMetrics)

	// Start server
	log.Printf("Server starting on port %s", cfg.ServerPort)
	if err := app.Listen(":" + cfg.ServerPort); err != nil {
		log.Fatalf("Server failed to start: %v", err)
	}
}
