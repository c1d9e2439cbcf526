package services

import (
	"context"
	"encoding/json"
	"math"
	"time"

	"github.com/beepi/vehicle-lookup-backend/models"
	"github.com/sirupsen/logrus"
)

// LookupService is the façade in front of the upstream integration layer.
// Per request: normalize → validate → rate/quota checks → cache lookup →
// upstream call on miss → interpretation → cache write → audit log → result.
// Every terminal branch writes exactly one log row; that single-write
// invariant is what makes the read-derived rate and quota counts correct.
type LookupService struct {
	plates       *PlateService
	cache        *CacheService
	aiCache      *CacheService
	access       *AccessService
	client       *WorkerClient
	interpreter  *ResponseInterpreter
	store        LookupLogStore
	vehicleTTL   time.Duration
	aiSummaryTTL time.Duration
}

// NewLookupService wires the orchestrator from its collaborators.
func NewLookupService(
	plates *PlateService,
	cache *CacheService,
	aiCache *CacheService,
	access *AccessService,
	client *WorkerClient,
	interpreter *ResponseInterpreter,
	store LookupLogStore,
	vehicleTTL, aiSummaryTTL time.Duration,
) *LookupService {
	return &LookupService{
		plates:       plates,
		cache:        cache,
		aiCache:      aiCache,
		access:       access,
		client:       client,
		interpreter:  interpreter,
		store:        store,
		vehicleTTL:   vehicleTTL,
		aiSummaryTTL: aiSummaryTTL,
	}
}

// Lookup runs one vehicle lookup end to end.
func (s *LookupService) Lookup(ctx context.Context, req models.LookupRequest) models.LookupResult {
	start := time.Now()

	plate := s.plates.Normalize(req.Plate)

	if validation := s.plates.Validate(plate); !validation.Valid {
		result := models.FailureResult(models.FailureInvalidPlate, validation.Code, validation.Error)
		s.logResult(ctx, plate, req, result, time.Since(start), false)
		return result
	}

	// Administrators bypass the per-IP rate limit but never the global quota.
	if !req.IsAdmin && !s.access.CheckRateLimit(ctx, req.ClientIP) {
		result := models.FailureResult(models.FailureRateLimit, "RATE_LIMIT_EXCEEDED", msgRateLimited)
		s.logResult(ctx, plate, req, result, time.Since(start), false)
		return result
	}

	if !s.access.CheckQuota(ctx) {
		result := models.FailureResult(models.FailureRateLimit, CodeQuotaExceeded, "Daglig grense nådd. Prøv igjen i morgen.")
		s.logResult(ctx, plate, req, result, time.Since(start), false)
		return result
	}

	if entry, ok := s.cache.Get(PlateCacheKey(plate)); ok {
		if payload, ok := entry.Data.(json.RawMessage); ok {
			result := models.SuccessResult(payload, "")
			result.FromCache = true
			result.CacheExpiresIn = int(math.Ceil(entry.RemainingTTL(s.cache.now()).Seconds()))
			s.logResult(ctx, plate, req, result, time.Since(start), true)
			return result
		}
	}

	resp, transportErr := s.client.Lookup(ctx, plate, req.IncludeSummary)
	result := s.interpreter.ProcessResponse(resp, transportErr, plate)
	if resp != nil {
		result.ResponseTimeMs = resp.ResponseTimeMs
	}

	if result.Success {
		// Only successful responses are cached; last writer wins on the
		// same-plate miss race, duplicate upstream calls are tolerated.
		s.cache.SetWithTTL(PlateCacheKey(plate), result.Data, s.vehicleTTL)
	}

	s.logResult(ctx, plate, req, result, time.Since(start), false)
	return result
}

// PollAISummary polls the phase-2 AI summary for a plate. Validation and
// rate limiting apply; successful completed summaries are cached under the
// long AI TTL so repeated polls stop hitting the worker.
func (s *LookupService) PollAISummary(ctx context.Context, req models.LookupRequest) models.LookupResult {
	plate := s.plates.Normalize(req.Plate)

	if validation := s.plates.Validate(plate); !validation.Valid {
		return models.FailureResult(models.FailureInvalidPlate, validation.Code, validation.Error)
	}

	if !req.IsAdmin && !s.access.CheckRateLimit(ctx, req.ClientIP) {
		return models.FailureResult(models.FailureRateLimit, "RATE_LIMIT_EXCEEDED", msgRateLimited)
	}

	cacheKey := "ai_summary_" + PlateCacheKey(plate)
	if entry, ok := s.aiCache.Get(cacheKey); ok {
		if payload, ok := entry.Data.(json.RawMessage); ok {
			result := models.SuccessResult(payload, "")
			result.FromCache = true
			result.CacheExpiresIn = int(math.Ceil(entry.RemainingTTL(s.aiCache.now()).Seconds()))
			return result
		}
	}

	resp, transportErr := s.client.PollAISummary(ctx, plate)
	result := s.interpreter.ProcessAISummaryResponse(resp, transportErr, plate)
	if resp != nil {
		result.ResponseTimeMs = resp.ResponseTimeMs
	}

	if result.Success && aiSummaryCompleted(result.Data) {
		s.aiCache.SetWithTTL(cacheKey, result.Data, s.aiSummaryTTL)
	}

	return result
}

// RateLimitStatus exposes the limiter's display data.
func (s *LookupService) RateLimitStatus(ctx context.Context, ip string) models.RateLimitStatus {
	return s.access.RateLimitStatus(ctx, ip)
}

// QuotaStatus exposes the quota's display data.
func (s *LookupService) QuotaStatus(ctx context.Context) models.QuotaStatus {
	return s.access.QuotaStatus(ctx)
}

// ClearCache drops the local vehicle and AI caches and asks the worker to
// clear its remote cache as well.
func (s *LookupService) ClearCache(ctx context.Context) error {
	s.cache.Clear()
	s.aiCache.Clear()
	return s.client.ClearWorkerCache(ctx)
}

// logResult appends the single audit row for a finished request. Log
// failures must never fail the lookup itself.
func (s *LookupService) logResult(ctx context.Context, plate string, req models.LookupRequest, result models.LookupResult, elapsed time.Duration, cached bool) {
	responseTime := result.ResponseTimeMs
	if responseTime == 0 {
		responseTime = elapsed.Milliseconds()
	}

	entry := &models.LookupLog{
		RegNumber:      plate,
		IPAddress:      req.ClientIP,
		UserAgent:      req.UserAgent,
		Success:        result.Success,
		ErrorMessage:   result.ErrorMessage,
		FailureType:    result.FailureType,
		Tier:           req.Tier,
		ResponseTimeMs: responseTime,
		Cached:         cached,
		ErrorCode:      result.ErrorCode,
		CorrelationID:  result.CorrelationID,
	}

	if err := s.store.LogLookup(ctx, entry); err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"reg_number": plate,
			"ip_address": req.ClientIP,
		}).Error("Failed to write lookup log entry")
	}
}

// aiSummaryCompleted reports whether a summary payload is final. Pending
// generations must not be cached for the full AI TTL.
func aiSummaryCompleted(payload json.RawMessage) bool {
	var summary struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(payload, &summary); err != nil {
		return false
	}
	return summary.Status == "completed"
}
