package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	handler "github.com/snapindex/snapindex/handlers"
	"github.com/snapindex/snapindex/middleware"
)

// SetupRoutes wires the HTTP surface onto the app.
func SetupRoutes(app *fiber.App, images *handler.ImageHandler, health *handler.HealthHandler, limiter *middleware.RateLimiter, maxUploadBytes int64) {
	api := app.Group("/api", logger.New())

	api.Get("/health", health.Health)
	api.Get("/models", health.Models)

	api.Post("/upload", limiter.Handler(), middleware.Upload(maxUploadBytes), images.Upload)
	api.Get("/images", images.List)
	api.Get("/tags", images.Tags)
	api.Get("/images/:id", images.GetByID)
	api.Delete("/images/:id", images.Delete)
	api.Put("/images/:id/tags", images.UpdateTags)
}
