package handlers

import (
	"github.com/beepi/vehicle-lookup-backend/services"
	"github.com/gofiber/fiber/v2"
)

// StatusHandler reports the caller's rate-limit position and the global
// quota, for client-side backoff display.
type StatusHandler struct {
	Service *services.LookupService
}

func NewStatusHandler(service *services.LookupService) *StatusHandler {
	return &StatusHandler{Service: service}
}

func (h *StatusHandler) GetStatus(c *fiber.Ctx) error {
	ip := clientIP(c)
	return c.JSON(fiber.Map{
		"success":    true,
		"rate_limit": h.Service.RateLimitStatus(c.Context(), ip),
		"quota":      h.Service.QuotaStatus(c.Context()),
	})
}
