package models

import "encoding/json"

// Tier is the access level attached to a lookup request. Which data fields
// a tier may see is enforced by the rendering layer, not here; the core only
// carries the tier through to the worker and the lookup log.
type Tier string

const (
	TierFree     Tier = "free"
	TierBasic    Tier = "basic"
	TierPremium  Tier = "premium"
	TierBusiness Tier = "business"
)

// FailureType is the closed error taxonomy every upstream or local failure
// is classified into. Nothing above the response interpreter inspects raw
// HTTP status codes or JSON shapes.
type FailureType string

const (
	FailureInvalidPlate       FailureType = "invalid_plate"
	FailureRateLimit          FailureType = "rate_limit"
	FailureAuthError          FailureType = "auth_error"
	FailureConnectionError    FailureType = "connection_error"
	FailureHTTPError          FailureType = "http_error"
	FailureCircuitBreakerOpen FailureType = "circuit_breaker_open"
	FailureUnknownError       FailureType = "unknown_error"
)

// LookupRequest is the per-call input to the orchestrator. The plate is the
// raw, pre-normalization user input.
type LookupRequest struct {
	Plate          string `json:"regNumber"`
	ClientIP       string `json:"-"`
	UserAgent      string `json:"-"`
	Tier           Tier   `json:"-"`
	IncludeSummary bool   `json:"includeSummary"`
	IsAdmin        bool   `json:"-"`
}

// LookupResult is the orchestrator's only output. Success carries the raw
// vehicle payload plus cache metadata; failures carry the classified error
// with enough detail for backoff UI and incident correlation.
type LookupResult struct {
	Success bool `json:"success"`

	Data           json.RawMessage `json:"data,omitempty"`
	FromCache      bool            `json:"is_cached"`
	CacheExpiresIn int             `json:"cache_expires_in,omitempty"`

	ErrorMessage        string      `json:"error,omitempty"`
	FailureType         FailureType `json:"failure_type,omitempty"`
	ErrorCode           string      `json:"code,omitempty"`
	RetryAfter          int         `json:"retry_after,omitempty"`
	CircuitBreakerState string      `json:"circuit_breaker_state,omitempty"`

	CorrelationID  string `json:"correlation_id,omitempty"`
	ResponseTimeMs int64  `json:"response_time_ms,omitempty"`
}

// SuccessResult builds a success result around a raw vehicle payload.
func SuccessResult(data json.RawMessage, correlationID string) LookupResult {
	return LookupResult{
		Success:       true,
		Data:          data,
		CorrelationID: correlationID,
	}
}

// FailureResult builds a classified failure with a user-facing message.
func FailureResult(failureType FailureType, code, message string) LookupResult {
	return LookupResult{
		Success:      false,
		ErrorMessage: message,
		FailureType:  failureType,
		ErrorCode:    code,
	}
}
