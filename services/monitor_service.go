package services

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"

	"github.com/beepi/vehicle-lookup-backend/models"
	"github.com/sirupsen/logrus"
)

// Cache keys for health snapshots. Worker and chat service are cached
// independently, each under its own 7-minute TTL.
const (
	healthCacheKeyWorker = "health_check_worker"
	healthCacheKeyChat   = "health_check_chat"
)

// Defaults substituted for sections the upstream health payload omits. A
// partial response must never break the monitor, only degrade to these.
const (
	defaultDailyLimit   = 4500
	defaultCacheMaxSize = 1000
	defaultCacheTTL     = 3600
	defaultAICacheTTL   = 86400
	defaultAIModel      = "gpt-4o-mini"
	defaultAITimeout    = 25000
	defaultBreakerState = "CLOSED"
)

// MonitorService polls the upstream health endpoints and caches the derived
// snapshots. Failed checks are never cached; pollers use CacheExpiresIn to
// skip the network call while a snapshot is fresh.
type MonitorService struct {
	client *WorkerClient
	cache  *CacheService
	ttl    int // seconds
}

// NewMonitorService creates a monitor backed by the given worker client and
// snapshot cache.
func NewMonitorService(client *WorkerClient, cache *CacheService, ttlSeconds int) *MonitorService {
	return &MonitorService{
		client: client,
		cache:  cache,
		ttl:    ttlSeconds,
	}
}

// CheckUpstreamHealth returns the worker health snapshot, cached when fresh.
func (s *MonitorService) CheckUpstreamHealth(ctx context.Context) (*models.HealthSnapshot, error) {
	return s.check(ctx, healthCacheKeyWorker, s.client.CheckHealth, true)
}

// CheckChatHealth returns the secondary chat service health snapshot, same
// pattern as the worker check with a separate cache key.
func (s *MonitorService) CheckChatHealth(ctx context.Context) (*models.HealthSnapshot, error) {
	return s.check(ctx, healthCacheKeyChat, s.client.CheckChatHealth, false)
}

func (s *MonitorService) check(ctx context.Context, cacheKey string, fetch func(context.Context) (*WorkerResponse, error), detailed bool) (*models.HealthSnapshot, error) {
	if entry, ok := s.cache.Get(cacheKey); ok {
		if snapshot, ok := entry.Data.(models.HealthSnapshot); ok {
			cached := snapshot
			cached.Cached = true
			cached.Message = "Health check completed (cached)."
			cached.CacheExpiresIn = int(math.Ceil(entry.RemainingTTL(s.cache.now()).Seconds()))
			return &cached, nil
		}
	}

	resp, err := fetch(ctx)
	if err != nil {
		logrus.WithError(err).WithField("cache_key", cacheKey).Warn("Health check request failed")
		return nil, fmt.Errorf("health check failed: %w", err)
	}

	var body models.UpstreamHealth
	parseErr := json.Unmarshal(resp.Body, &body)

	if resp.StatusCode != http.StatusOK || parseErr != nil || body.Status == "" {
		logrus.WithFields(logrus.Fields{
			"cache_key":   cacheKey,
			"status_code": resp.StatusCode,
		}).Warn("Health check returned unusable response")
		return nil, fmt.Errorf("health check failed with status %d", resp.StatusCode)
	}

	snapshot := models.HealthSnapshot{
		Message:        "Health check completed.",
		Status:         body.Status,
		HealthData:     json.RawMessage(resp.Body),
		ServiceVersion: defaultString(body.Version, "unknown"),
		CorrelationID:  body.CorrelationID,
		Cached:         false,
		CacheTTL:       s.ttl,
	}
	if detailed {
		monitoring := buildMonitoringData(&body)
		snapshot.MonitoringData = &monitoring
	}

	s.cache.SetWithTTL(cacheKey, snapshot, s.cache.defaultTTL)

	return &snapshot, nil
}

// ClearCachedSnapshots drops both health snapshots, forcing fresh checks.
func (s *MonitorService) ClearCachedSnapshots() {
	s.cache.Delete(healthCacheKeyWorker)
	s.cache.Delete(healthCacheKeyChat)
}

// buildMonitoringData flattens the upstream health payload into the
// dashboard's monitoring summary, substituting a documented default for
// every missing field.
func buildMonitoringData(body *models.UpstreamHealth) models.MonitoringData {
	data := models.MonitoringData{
		RateLimiting: models.RateLimitingSummary{
			DailyLimit:       defaultDailyLimit,
			VegvesenQuota:    "0/5000",
			QuotaUtilization: "0%",
		},
		Cache: models.CacheSummary{
			MaxSize:        defaultCacheMaxSize,
			TTL:            defaultCacheTTL,
			VehicleHitRate: "0%",
			AIHitRate:      "0%",
			AICacheTTL:     defaultAICacheTTL,
		},
		AISummary: models.AISummaryStatus{
			Status:                "unknown",
			Model:                 defaultAIModel,
			Timeout:               defaultAITimeout,
			GenerationSuccessRate: "100%",
			CacheUtilization:      "0%",
		},
		CircuitBreaker: models.CircuitBreakerSummary{
			State:               defaultBreakerState,
			SuccessRate:         "100%",
			VehicleCircuitState: defaultBreakerState,
			AICircuitState:      defaultBreakerState,
		},
		Performance: models.PerformanceSummary{
			CacheHitImprovement: "0%",
			TimeoutElimination:  true,
		},
	}

	if rl := body.RateLimiting; rl != nil {
		data.RateLimiting = models.RateLimitingSummary{
			DailyUsage:           rl.GlobalDailyUsage,
			DailyLimit:           defaultInt(rl.GlobalDailyLimit, defaultDailyLimit),
			DailyRemaining:       rl.GlobalDailyRemaining,
			VegvesenQuota:        defaultString(rl.VegvesenQuotaUsage, "0/5000"),
			QuotaUtilization:     defaultString(rl.QuotaUtilization, "0%"),
			ActiveIPsHourly:      rl.ActiveIPsTracked.Hourly,
			ActiveIPsBurst:       rl.ActiveIPsTracked.Burst,
			VehicleEndpointUsage: rl.VehicleEndpointUsage,
			AIEndpointUsage:      rl.AIEndpointUsage,
			AIGenerationRate:     rl.AIGenerationRate,
		}
	}

	if cache := body.Cache; cache != nil {
		maxSize := defaultInt(cache.MaxSize, defaultCacheMaxSize)
		utilization := 0.0
		if maxSize > 0 {
			utilization = math.Round(float64(cache.Entries)/float64(maxSize)*1000) / 10
		}
		data.Cache = models.CacheSummary{
			Entries:             cache.Entries,
			MaxSize:             maxSize,
			TTL:                 defaultInt(cache.TTL, defaultCacheTTL),
			Utilization:         utilization,
			VehicleCacheEntries: cache.VehicleCacheEntries,
			AICacheEntries:      cache.AICacheEntries,
			VehicleHitRate:      defaultString(cache.VehicleHitRate, "0%"),
			AIHitRate:           defaultString(cache.AIHitRate, "0%"),
			AICacheTTL:          defaultInt(cache.AICacheTTL, defaultAICacheTTL),
		}
	}

	if ai := body.AISummary; ai != nil {
		data.AISummary = models.AISummaryStatus{
			Status:                defaultString(ai.Status, "unknown"),
			Model:                 defaultString(ai.Model, defaultAIModel),
			Timeout:               defaultInt(ai.Timeout, defaultAITimeout),
			ActiveGenerations:     ai.ActiveGenerations,
			CompletedToday:        ai.CompletedToday,
			FailedToday:           ai.FailedToday,
			AvgGenerationTime:     ai.AvgGenerationTime,
			GenerationSuccessRate: defaultString(ai.GenerationSuccessRate, "100%"),
			CacheUtilization:      defaultString(ai.CacheUtilization, "0%"),
		}
	}

	if cb := body.CircuitBreaker; cb != nil {
		data.CircuitBreaker = models.CircuitBreakerSummary{
			State:               defaultString(cb.State, defaultBreakerState),
			FailureCount:        cb.FailureCount,
			SuccessRate:         defaultString(cb.SuccessRate, "100%"),
			TotalRequests:       cb.TotalRequests,
			LastFailure:         cb.LastFailure,
			VehicleCircuitState: defaultString(cb.VehicleCircuitState, defaultBreakerState),
			AICircuitState:      defaultString(cb.AICircuitState, defaultBreakerState),
		}
	}

	if perf := body.Performance; perf != nil {
		timeoutElimination := true
		if perf.TimeoutElimination != nil {
			timeoutElimination = *perf.TimeoutElimination
		}
		data.Performance = models.PerformanceSummary{
			VehicleAvgLatency:   perf.VehicleAvgLatency,
			AIAvgLatency:        perf.AIAvgLatency,
			CacheHitImprovement: defaultString(perf.CacheHitImprovement, "0%"),
			TimeoutElimination:  timeoutElimination,
		}
	}

	return data
}

func defaultString(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

func defaultInt(value, fallback int) int {
	if value == 0 {
		return fallback
	}
	return value
}
