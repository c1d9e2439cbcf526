package handlers

import (
	"time"

	"github.com/beepi/vehicle-lookup-backend/database"
	"github.com/beepi/vehicle-lookup-backend/services"
	"github.com/beepi/vehicle-lookup-backend/shared"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

// AdminHandler serves the dashboard endpoints: upstream health snapshots,
// log analytics and cache control. All routes sit behind RequireToken.
type AdminHandler struct {
	Lookup  *services.LookupService
	Monitor *services.MonitorService
	Logs    *database.LogRepository
	Metrics *shared.MetricsRegistry
	Token   string
}

func NewAdminHandler(lookup *services.LookupService, monitor *services.MonitorService, logs *database.LogRepository, metrics *shared.MetricsRegistry, token string) *AdminHandler {
	return &AdminHandler{
		Lookup:  lookup,
		Monitor: monitor,
		Logs:    logs,
		Metrics: metrics,
		Token:   token,
	}
}

// RequireToken guards the admin group. An unset token disables the group
// entirely rather than leaving it open.
func (h *AdminHandler) RequireToken(c *fiber.Ctx) error {
	if h.Token == "" || c.Get("X-Admin-Token") != h.Token {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"success": false,
			"error":   "Unauthorized",
		})
	}
	return c.Next()
}

func (h *AdminHandler) GetUpstreamHealth(c *fiber.Ctx) error {
	snapshot, err := h.Monitor.CheckUpstreamHealth(c.Context())
	if err != nil {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"success": false,
			"error":   err.Error(),
		})
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data":    snapshot,
	})
}

func (h *AdminHandler) GetChatHealth(c *fiber.Ctx) error {
	snapshot, err := h.Monitor.CheckChatHealth(c.Context())
	if err != nil {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"success": false,
			"error":   err.Error(),
		})
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data":    snapshot,
	})
}

func (h *AdminHandler) ClearCache(c *fiber.Ctx) error {
	// Local caches are always cleared; the remote worker clear can fail
	// independently and is reported separately.
	err := h.Lookup.ClearCache(c.Context())
	h.Monitor.ClearCachedSnapshots()
	if err != nil {
		logrus.WithError(err).Warn("Worker cache clear failed after local clear")
		return c.JSON(fiber.Map{
			"success":        true,
			"local_cleared":  true,
			"worker_cleared": false,
			"worker_error":   err.Error(),
		})
	}
	return c.JSON(fiber.Map{
		"success":        true,
		"local_cleared":  true,
		"worker_cleared": true,
	})
}

func (h *AdminHandler) GetStats(c *fiber.Ctx) error {
	days := c.QueryInt("days", 30)
	if days < 1 || days > 365 {
		days = 30
	}
	end := time.Now()
	start := end.AddDate(0, 0, -days)

	stats, err := h.Logs.GetStats(c.Context(), start, end)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   err.Error(),
		})
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data":    stats,
	})
}

func (h *AdminHandler) GetFailedLookups(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)
	if limit < 1 || limit > 500 {
		limit = 50
	}

	failed, err := h.Logs.GetFailedLookups(c.Context(), limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   err.Error(),
		})
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data":    failed,
	})
}

func (h *AdminHandler) GetPopularSearches(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 20)
	if limit < 1 || limit > 100 {
		limit = 20
	}
	days := c.QueryInt("days", 7)
	if days < 1 || days > 365 {
		days = 7
	}

	popular, err := h.Logs.GetPopularSearches(c.Context(), limit, days)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   err.Error(),
		})
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data":    popular,
	})
}

func (h *AdminHandler) ResetAnalytics(c *fiber.Ctx) error {
	deleted, err := h.Logs.ResetAnalytics(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   err.Error(),
		})
	}
	logrus.WithField("deleted_rows", deleted).Warn("Lookup analytics reset by admin")
	return c.JSON(fiber.Map{
		"success":      true,
		"deleted_rows": deleted,
	})
}

func (h *AdminHandler) GetMetrics(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"success": true,
		"data":    h.Metrics.SnapshotAll(),
	})
}
