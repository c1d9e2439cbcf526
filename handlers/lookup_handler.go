package handlers

import (
	"github.com/beepi/vehicle-lookup-backend/models"
	"github.com/beepi/vehicle-lookup-backend/services"
	"github.com/gofiber/fiber/v2"
)

// LookupHandler exposes the vehicle lookup and AI summary endpoints.
type LookupHandler struct {
	Service    *services.LookupService
	AdminToken string
}

func NewLookupHandler(service *services.LookupService, adminToken string) *LookupHandler {
	return &LookupHandler{Service: service, AdminToken: adminToken}
}

type lookupPayload struct {
	RegNumber      string `json:"regNumber"`
	IncludeSummary bool   `json:"includeSummary"`
}

func (h *LookupHandler) Lookup(c *fiber.Ctx) error {
	var payload lookupPayload
	if err := c.BodyParser(&payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "Ugyldig forespørsel",
			"code":    "INVALID_REQUEST",
		})
	}

	result := h.Service.Lookup(c.Context(), models.LookupRequest{
		Plate:          payload.RegNumber,
		ClientIP:       clientIP(c),
		UserAgent:      c.Get(fiber.HeaderUserAgent),
		Tier:           requestTier(c),
		IncludeSummary: payload.IncludeSummary,
		IsAdmin:        h.isAdmin(c),
	})

	return c.Status(statusFor(result)).JSON(result)
}

func (h *LookupHandler) PollAISummary(c *fiber.Ctx) error {
	result := h.Service.PollAISummary(c.Context(), models.LookupRequest{
		Plate:     c.Params("regNumber"),
		ClientIP:  clientIP(c),
		UserAgent: c.Get(fiber.HeaderUserAgent),
		Tier:      requestTier(c),
		IsAdmin:   h.isAdmin(c),
	})

	return c.Status(statusFor(result)).JSON(result)
}

func (h *LookupHandler) isAdmin(c *fiber.Ctx) bool {
	return h.AdminToken != "" && c.Get("X-Admin-Token") == h.AdminToken
}

// statusFor maps the failure taxonomy onto HTTP status codes so browser
// clients can treat the endpoint RESTfully while the JSON body stays the
// single source of truth.
func statusFor(result models.LookupResult) int {
	if result.Success {
		return fiber.StatusOK
	}
	switch result.FailureType {
	case models.FailureInvalidPlate:
		return fiber.StatusBadRequest
	case models.FailureRateLimit:
		return fiber.StatusTooManyRequests
	case models.FailureAuthError:
		return fiber.StatusBadGateway
	case models.FailureCircuitBreakerOpen:
		return fiber.StatusServiceUnavailable
	case models.FailureConnectionError, models.FailureHTTPError:
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}

// clientIP resolves the caller address using the proxy headers the limiter
// trusts, falling back to the socket address.
func clientIP(c *fiber.Ctx) string {
	return services.ClientIP(c.Get("X-Forwarded-For"), c.Get("X-Real-IP"), c.IP())
}

func requestTier(c *fiber.Ctx) models.Tier {
	return tierFromHeader(c.Get("X-Access-Tier"))
}

// tierFromHeader maps the access-tier header onto a known tier; anything
// unrecognized degrades to free.
func tierFromHeader(raw string) models.Tier {
	switch models.Tier(raw) {
	case models.TierBasic:
		return models.TierBasic
	case models.TierPremium:
		return models.TierPremium
	case models.TierBusiness:
		return models.TierBusiness
	default:
		return models.TierFree
	}
}
