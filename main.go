package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/snapindex/snapindex/analyzer"
	"github.com/snapindex/snapindex/config"
	"github.com/snapindex/snapindex/database"
	handler "github.com/snapindex/snapindex/handlers"
	"github.com/snapindex/snapindex/logging"
	"github.com/snapindex/snapindex/middleware"
	"github.com/snapindex/snapindex/models"
	"github.com/snapindex/snapindex/repository"
	"github.com/snapindex/snapindex/router"
	"github.com/snapindex/snapindex/service"
	"github.com/snapindex/snapindex/storage"
)

func main() {
	logger := logging.NewLogger()

	port := config.ConfigDefault("PORT", "5000")
	uploadDir := config.ConfigDefault("UPLOAD_DIR", "uploads")
	mlServiceURL := config.ConfigDefault("ML_SERVICE_URL", "http://localhost:5001")
	maxUploadBytes := config.ConfigInt64("MAX_UPLOAD_BYTES", 5*1024*1024)
	analyzeTimeout := config.ConfigDuration("ANALYZE_TIMEOUT", analyzer.DefaultTimeout)

	db := database.GetDB()
	if err := database.MigrateModels(&models.ImageAsset{}, &models.ImageTag{}); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}
	defer func() {
		if err := database.CloseDB(); err != nil {
			logger.Error("closing database", "error", err)
		}
	}()

	store, err := storage.NewLocalStore(uploadDir, maxUploadBytes)
	if err != nil {
		log.Fatalf("Failed to set up upload storage: %v", err)
	}

	mlClient := analyzer.NewClient(mlServiceURL, analyzeTimeout)
	repo := repository.NewImageRepository(db)

	ingestor := service.NewIngestor(store, mlClient, repo, logger)
	queries := service.NewQueries(repo, store, logger)

	images := handler.NewImageHandler(ingestor, queries)
	health := handler.NewHealthHandler(mlClient)
	limiter := middleware.NewRateLimiter(15*time.Minute, 100, 10_000, nil)

	app := fiber.New(fiber.Config{
		// Leave headroom above the payload limit for the multipart framing.
		BodyLimit: int(maxUploadBytes) + 1024*1024,
	})
	app.Use(recover.New())
	app.Use(cors.New())
	app.Static("/uploads", store.Root())

	router.SetupRoutes(app, images, health, limiter, maxUploadBytes)

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		sig := <-quit
		logger.Info("shutting down", "signal", sig.String())
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			logger.Error("forced shutdown", "error", err)
		}
	}()

	logger.Info("server listening", "port", port, "uploads", store.Root(), "analyzer", mlServiceURL)
	if err := app.Listen(":" + port); err != nil {
		log.Fatal(err)
	}
}
