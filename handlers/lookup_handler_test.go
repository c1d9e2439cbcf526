package handlers

import (
	"net/http"
	"testing"

	"github.com/beepi/vehicle-lookup-backend/models"
	"github.com/stretchr/testify/assert"
)

func TestStatusFor(t *testing.T) {
	cases := []struct {
		name   string
		result models.LookupResult
		want   int
	}{
		{"success", models.LookupResult{Success: true}, http.StatusOK},
		{"invalid plate", models.FailureResult(models.FailureInvalidPlate, "EMPTY", "x"), http.StatusBadRequest},
		{"rate limit", models.FailureResult(models.FailureRateLimit, "RATE_LIMIT_EXCEEDED", "x"), http.StatusTooManyRequests},
		{"auth error", models.FailureResult(models.FailureAuthError, "FORBIDDEN", "x"), http.StatusBadGateway},
		{"breaker open", models.FailureResult(models.FailureCircuitBreakerOpen, "SERVICE_UNAVAILABLE", "x"), http.StatusServiceUnavailable},
		{"connection error", models.FailureResult(models.FailureConnectionError, "", "x"), http.StatusBadGateway},
		{"http error", models.FailureResult(models.FailureHTTPError, "HTTP_ERROR_500", "x"), http.StatusBadGateway},
		{"unknown", models.FailureResult(models.FailureUnknownError, "UNKNOWN_ERROR", "x"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, statusFor(tc.result))
		})
	}
}

func TestRequestTier(t *testing.T) {
	// Header parsing is exercised through a minimal fiber context elsewhere;
	// here the mapping itself: unknown values degrade to free.
	assert.Equal(t, models.TierFree, tierFromHeader(""))
	assert.Equal(t, models.TierFree, tierFromHeader("gold"))
	assert.Equal(t, models.TierBasic, tierFromHeader("basic"))
	assert.Equal(t, models.TierPremium, tierFromHeader("premium"))
	assert.Equal(t, models.TierBusiness, tierFromHeader("business"))
}
