package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/snapindex/snapindex/analyzer"
)

// HealthHandler reports server liveness plus the analyzer's reachability.
// The analyzer being down never fails the health endpoint itself; its status
// is data for the caller.
type HealthHandler struct {
	analyzer *analyzer.Client
}

func NewHealthHandler(az *analyzer.Client) *HealthHandler {
	return &HealthHandler{analyzer: az}
}

func (h *HealthHandler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":   "Backend server is running!",
		"analyzer": h.analyzer.HealthCheck(c.UserContext()),
	})
}

// Models lists the classification models the analyzer offers.
func (h *HealthHandler) Models(c *fiber.Ctx) error {
	ms, err := h.analyzer.Models(c.UserContext())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to get available models",
		})
	}
	return c.JSON(ms)
}
