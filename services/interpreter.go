package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strconv"

	"github.com/beepi/vehicle-lookup-backend/models"
	"github.com/sirupsen/logrus"
)

// Norwegian user-facing error messages. These are the only strings callers
// ever show; raw upstream payloads stay in the log.
const (
	msgConnectionError    = "Tilkoblingsfeil. Prøv igjen om litt."
	msgServiceUnavailable = "Tjenesten er ikke tilgjengelig for øyeblikket. Prøv igjen senere."
	msgInvalidJSON        = "Ugyldig svar fra server. Prøv igjen."
	msgNoVehicleData      = "Fant ingen kjøretøyinformasjon for dette registreringsnummeret"
	msgUnknownPlate       = "Fant ingen kjøretøy med dette registreringsnummeret"
	msgInvalidPlateFormat = "Ugyldig registreringsnummer format"
	msgRateLimited        = "For mange forespørsler. Vennligst vent litt før du prøver igjen."
	msgAuthError          = "Autentisering mot tjenesten feilet. Kontakt support hvis problemet vedvarer."
	msgCircuitOpen        = "Tjenesten er midlertidig utilgjengelig. Prøv igjen om litt."
	msgUnknownError       = "En ukjent feil oppstod. Prøv igjen senere."
)

// Well-known error codes the interpreter produces itself.
const (
	CodeInvalidJSON     = "INVALID_JSON"
	CodeEmptyResponse   = "EMPTY_RESPONSE"
	CodeInvalidResponse = "INVALID_RESPONSE"
	CodeNoDataAvailable = "NO_DATA_AVAILABLE"
	CodeUnknownError    = "UNKNOWN_ERROR"
	CodeQuotaExceeded   = "QUOTA_EXCEEDED"
)

// minBreakerRetryAfter is the floor applied whenever upstream reports its
// circuit breaker open, regardless of the retry hint it supplied.
const minBreakerRetryAfter = 60

var correlationIDPattern = regexp.MustCompile(`^req-\d+-[a-z0-9]{9}$`)

// workerEnvelope is the duck-typed worker response shell. Error is raw
// because the new format nests an object there while the legacy format puts
// a plain string.
type workerEnvelope struct {
	Error               json.RawMessage `json:"error"`
	Code                string          `json:"code"`
	Message             string          `json:"message"`
	CorrelationID       string          `json:"correlationId"`
	RetryAfter          int             `json:"retryAfter"`
	CircuitBreakerState string          `json:"circuitBreakerState"`
	Responser           []registryEntry `json:"responser"`
}

// structuredError is the new-format nested error object.
type structuredError struct {
	Code                string `json:"code"`
	Message             string `json:"message"`
	CorrelationID       string `json:"correlationId"`
	Timestamp           string `json:"timestamp"`
	RetryAfter          int    `json:"retryAfter"`
	CircuitBreakerState string `json:"circuitBreakerState"`
}

// registryEntry is one element of the legacy Norwegian-registry response.
type registryEntry struct {
	Feilmelding  string          `json:"feilmelding"`
	Kjoretoydata json.RawMessage `json:"kjoretoydata"`
}

// responseContext is the working state threaded through the rule chain.
type responseContext struct {
	statusCode int
	header     http.Header
	body       []byte
	envelope   *workerEnvelope
	parseErr   error
	regNumber  string
}

// classificationRule is one step of the interpreter. Rules run in a fixed
// order; the first one that matches produces the result.
type classificationRule struct {
	name     string
	classify func(*responseContext) (models.LookupResult, bool)
}

// ResponseInterpreter converts raw worker responses into the closed failure
// taxonomy. It is the single place that inspects HTTP status codes and JSON
// shapes; everything above it works with LookupResult only.
type ResponseInterpreter struct {
	lookupRules []classificationRule
	aiRules     []classificationRule
}

// NewResponseInterpreter builds the interpreter with its ordered rule sets.
// Precedence: structured-new > structured-legacy > HTTP-status fallback >
// legacy registry errors > missing payload > success.
func NewResponseInterpreter() *ResponseInterpreter {
	i := &ResponseInterpreter{}

	shared := []classificationRule{
		{name: "empty-success-body", classify: i.classifyEmptyBody},
		{name: "unparseable-body", classify: i.classifyParseFailure},
		{name: "structured-error-new", classify: i.classifyNewStructuredError},
		{name: "structured-error-legacy", classify: i.classifyLegacyStructuredError},
		{name: "http-status-fallback", classify: i.classifyHTTPStatus},
	}

	i.lookupRules = append(append([]classificationRule{}, shared...),
		classificationRule{name: "registry-error", classify: i.classifyRegistryError},
		classificationRule{name: "missing-vehicle-data", classify: i.classifyMissingVehicleData},
		classificationRule{name: "success", classify: i.classifySuccess},
	)

	i.aiRules = append(append([]classificationRule{}, shared...),
		classificationRule{name: "ai-summary-success", classify: i.classifyAISummary},
	)

	return i
}

// ProcessResponse classifies a vehicle-lookup response. transportErr is the
// client's connection-level failure, if any; when set no parsing happens.
func (i *ResponseInterpreter) ProcessResponse(resp *WorkerResponse, transportErr error, regNumber string) models.LookupResult {
	return i.run(i.lookupRules, resp, transportErr, regNumber)
}

// ProcessAISummaryResponse classifies an AI-summary polling response. Same
// rule chain, but a well-formed 200 must carry status and registrationNumber.
func (i *ResponseInterpreter) ProcessAISummaryResponse(resp *WorkerResponse, transportErr error, regNumber string) models.LookupResult {
	return i.run(i.aiRules, resp, transportErr, regNumber)
}

func (i *ResponseInterpreter) run(rules []classificationRule, resp *WorkerResponse, transportErr error, regNumber string) models.LookupResult {
	if transportErr != nil {
		logrus.WithError(transportErr).WithField("reg_number", regNumber).Warn("Upstream transport failure")
		return models.FailureResult(models.FailureConnectionError, "", msgConnectionError)
	}

	ctx := &responseContext{
		statusCode: resp.StatusCode,
		header:     resp.Header,
		body:       resp.Body,
		regNumber:  regNumber,
	}

	if !isEmptyJSONBody(ctx.body) {
		var envelope workerEnvelope
		if err := json.Unmarshal(ctx.body, &envelope); err != nil {
			ctx.parseErr = err
		} else {
			ctx.envelope = &envelope
		}
	}

	for _, rule := range rules {
		if result, ok := rule.classify(ctx); ok {
			if !result.Success {
				logrus.WithFields(logrus.Fields{
					"rule":           rule.name,
					"reg_number":     regNumber,
					"status_code":    ctx.statusCode,
					"failure_type":   result.FailureType,
					"error_code":     result.ErrorCode,
					"correlation_id": result.CorrelationID,
				}).Debug("Upstream response classified as failure")
			}
			return result
		}
	}

	// The final rule in each chain always matches; this is unreachable.
	return models.FailureResult(models.FailureUnknownError, CodeUnknownError, msgUnknownError)
}

// classifyEmptyBody handles 200 responses with nothing usable in them.
func (i *ResponseInterpreter) classifyEmptyBody(ctx *responseContext) (models.LookupResult, bool) {
	if ctx.statusCode != http.StatusOK || !isEmptyJSONBody(ctx.body) {
		return models.LookupResult{}, false
	}
	return models.FailureResult(models.FailureHTTPError, CodeEmptyResponse, msgNoVehicleData), true
}

// classifyParseFailure handles bodies that are not valid JSON. A malformed
// 200 is reported as INVALID_JSON; malformed error pages on non-200 statuses
// fall through to the HTTP-status rule, which knows more than the body does.
func (i *ResponseInterpreter) classifyParseFailure(ctx *responseContext) (models.LookupResult, bool) {
	if ctx.parseErr == nil || ctx.statusCode != http.StatusOK {
		return models.LookupResult{}, false
	}
	logrus.WithError(ctx.parseErr).WithField("reg_number", ctx.regNumber).Warn("JSON decode error in upstream response")
	return models.FailureResult(models.FailureHTTPError, CodeInvalidJSON, msgInvalidJSON), true
}

// classifyNewStructuredError handles the current worker error contract:
// body.error is an object carrying code, message and correlationId.
func (i *ResponseInterpreter) classifyNewStructuredError(ctx *responseContext) (models.LookupResult, bool) {
	if ctx.envelope == nil || len(ctx.envelope.Error) == 0 || !bytes.HasPrefix(bytes.TrimSpace(ctx.envelope.Error), []byte("{")) {
		return models.LookupResult{}, false
	}

	var structured structuredError
	if err := json.Unmarshal(ctx.envelope.Error, &structured); err != nil || structured.Code == "" {
		return models.LookupResult{}, false
	}

	breakerState := structured.CircuitBreakerState
	if breakerState == "" {
		breakerState = ctx.envelope.CircuitBreakerState
	}
	retryAfter := structured.RetryAfter
	if retryAfter == 0 {
		retryAfter = ctx.envelope.RetryAfter
	}
	correlationID := structured.CorrelationID
	if correlationID == "" {
		correlationID = ctx.envelope.CorrelationID
	}

	return i.buildStructuredFailure(structured.Code, correlationID, retryAfter, breakerState), true
}

// classifyLegacyStructuredError handles the older flat contract: body.error
// is a string and body.code exists alongside it.
func (i *ResponseInterpreter) classifyLegacyStructuredError(ctx *responseContext) (models.LookupResult, bool) {
	if ctx.envelope == nil || len(ctx.envelope.Error) == 0 || ctx.envelope.Code == "" {
		return models.LookupResult{}, false
	}

	var errText string
	if err := json.Unmarshal(ctx.envelope.Error, &errText); err != nil {
		return models.LookupResult{}, false
	}

	return i.buildStructuredFailure(ctx.envelope.Code, ctx.envelope.CorrelationID,
		ctx.envelope.RetryAfter, ctx.envelope.CircuitBreakerState), true
}

// buildStructuredFailure maps a structured error code through the fixed
// table and applies the circuit-breaker override: SERVICE_UNAVAILABLE with
// an OPEN breaker never suggests retrying sooner than 60 seconds.
func (i *ResponseInterpreter) buildStructuredFailure(code, correlationID string, retryAfter int, breakerState string) models.LookupResult {
	failureType := mapErrorCode(code)

	result := models.FailureResult(failureType, code, messageForCode(code, failureType))
	result.RetryAfter = retryAfter
	result.CorrelationID = i.validateCorrelationID(correlationID)

	if code == "SERVICE_UNAVAILABLE" && breakerState == "OPEN" {
		result.FailureType = models.FailureCircuitBreakerOpen
		result.CircuitBreakerState = breakerState
		result.ErrorMessage = msgCircuitOpen
		if result.RetryAfter < minBreakerRetryAfter {
			result.RetryAfter = minBreakerRetryAfter
		}
	}

	return result
}

// classifyHTTPStatus is the fallback for non-200 responses without a
// structured error body: 429 becomes rate_limit with the Retry-After header,
// everything else a generic HTTP error tagged with the status.
func (i *ResponseInterpreter) classifyHTTPStatus(ctx *responseContext) (models.LookupResult, bool) {
	if ctx.statusCode == http.StatusOK {
		return models.LookupResult{}, false
	}

	if ctx.statusCode == http.StatusTooManyRequests {
		result := models.FailureResult(models.FailureRateLimit, "RATE_LIMIT_EXCEEDED", msgRateLimited)
		result.RetryAfter = parseRetryAfter(ctx.header)
		return result, true
	}

	code := fmt.Sprintf("HTTP_ERROR_%d", ctx.statusCode)
	return models.FailureResult(models.FailureHTTPError, code, msgServiceUnavailable), true
}

// classifyRegistryError preserves backward compatibility with the old
// Norwegian-registry contract where errors arrive as responser[i].feilmelding.
func (i *ResponseInterpreter) classifyRegistryError(ctx *responseContext) (models.LookupResult, bool) {
	if ctx.envelope == nil {
		return models.LookupResult{}, false
	}

	for _, entry := range ctx.envelope.Responser {
		if entry.Feilmelding == "" {
			continue
		}

		switch entry.Feilmelding {
		case "KJENNEMERKE_UKJENT":
			return models.FailureResult(models.FailureInvalidPlate, "KJENNEMERKE_UKJENT", msgUnknownPlate), true
		case "KJENNEMERKE_UGYLDIG":
			return models.FailureResult(models.FailureInvalidPlate, "KJENNEMERKE_UGYLDIG", msgInvalidPlateFormat), true
		case "TJENESTE_IKKE_TILGJENGELIG":
			return models.FailureResult(models.FailureHTTPError, "TJENESTE_IKKE_TILGJENGELIG", msgServiceUnavailable), true
		default:
			return models.FailureResult(models.FailureInvalidPlate, CodeUnknownError, msgNoVehicleData), true
		}
	}

	return models.LookupResult{}, false
}

// classifyMissingVehicleData catches otherwise-200 registry responses where
// no entry carries vehicle data.
func (i *ResponseInterpreter) classifyMissingVehicleData(ctx *responseContext) (models.LookupResult, bool) {
	if ctx.envelope == nil || len(ctx.envelope.Responser) == 0 {
		return models.LookupResult{}, false
	}

	for _, entry := range ctx.envelope.Responser {
		if len(entry.Kjoretoydata) > 0 && !isEmptyJSONBody(entry.Kjoretoydata) {
			return models.LookupResult{}, false
		}
	}

	return models.FailureResult(models.FailureInvalidPlate, CodeNoDataAvailable, msgNoVehicleData), true
}

// classifySuccess is the terminal rule for vehicle lookups.
func (i *ResponseInterpreter) classifySuccess(ctx *responseContext) (models.LookupResult, bool) {
	correlationID := ""
	if ctx.envelope != nil {
		correlationID = i.validateCorrelationID(ctx.envelope.CorrelationID)
	}
	return models.SuccessResult(json.RawMessage(ctx.body), correlationID), true
}

// classifyAISummary is the terminal rule for AI-summary polling: a 200 body
// must carry status and registrationNumber to count as well formed.
func (i *ResponseInterpreter) classifyAISummary(ctx *responseContext) (models.LookupResult, bool) {
	var summary struct {
		Status             string `json:"status"`
		RegistrationNumber string `json:"registrationNumber"`
	}
	if err := json.Unmarshal(ctx.body, &summary); err != nil || summary.Status == "" || summary.RegistrationNumber == "" {
		logrus.WithField("reg_number", ctx.regNumber).Warn("Malformed AI summary response")
		return models.FailureResult(models.FailureHTTPError, CodeInvalidResponse, msgInvalidJSON), true
	}

	correlationID := ""
	if ctx.envelope != nil {
		correlationID = i.validateCorrelationID(ctx.envelope.CorrelationID)
	}
	return models.SuccessResult(json.RawMessage(ctx.body), correlationID), true
}

// validateCorrelationID checks the worker's req-<timestamp>-<random> format.
// IDs that fail the check are discarded and logged as anomalies rather than
// surfaced to callers.
func (i *ResponseInterpreter) validateCorrelationID(correlationID string) string {
	if correlationID == "" {
		return ""
	}
	if !correlationIDPattern.MatchString(correlationID) {
		logrus.WithField("correlation_id", correlationID).Warn("Discarding correlation ID with unexpected format")
		return ""
	}
	return correlationID
}

// mapErrorCode is the fixed structured-error-code to failure-type table.
func mapErrorCode(code string) models.FailureType {
	switch code {
	case "INVALID_INPUT", "VALIDATION_ERROR", "KJENNEMERKE_UKJENT",
		"UGYLDIG_KJENNEMERKE", "NOT_FOUND", "NO_DATA_AVAILABLE":
		return models.FailureInvalidPlate
	case "RATE_LIMIT_EXCEEDED":
		return models.FailureRateLimit
	case "AUTHENTICATION_FAILED", "FORBIDDEN":
		return models.FailureAuthError
	case "SERVICE_UNAVAILABLE", "TIMEOUT", "NETWORK_ERROR":
		return models.FailureHTTPError
	default:
		return models.FailureUnknownError
	}
}

// messageForCode picks the localized user-facing message for a structured
// error code, falling back to the failure type's generic message.
func messageForCode(code string, failureType models.FailureType) string {
	switch code {
	case "UGYLDIG_KJENNEMERKE":
		return msgInvalidPlateFormat
	case "NO_DATA_AVAILABLE":
		return msgNoVehicleData
	}

	switch failureType {
	case models.FailureInvalidPlate:
		return msgUnknownPlate
	case models.FailureRateLimit:
		return msgRateLimited
	case models.FailureAuthError:
		return msgAuthError
	case models.FailureConnectionError:
		return msgConnectionError
	case models.FailureHTTPError:
		return msgServiceUnavailable
	case models.FailureCircuitBreakerOpen:
		return msgCircuitOpen
	default:
		return msgUnknownError
	}
}

// parseRetryAfter reads a Retry-After header in seconds, defaulting to 60
// when absent or unparseable.
func parseRetryAfter(header http.Header) int {
	if header == nil {
		return 60
	}
	raw := header.Get("Retry-After")
	if raw == "" {
		return 60
	}
	seconds, err := strconv.Atoi(raw)
	if err != nil || seconds < 0 {
		return 60
	}
	return seconds
}

// isEmptyJSONBody reports whether a body carries no usable payload: blank,
// JSON null or an empty object/array.
func isEmptyJSONBody(body []byte) bool {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return true
	}
	switch string(trimmed) {
	case "null", "{}", "[]":
		return true
	}
	return false
}
