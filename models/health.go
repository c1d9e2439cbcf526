package models

import "encoding/json"

// UpstreamHealth is the worker's /health payload. Every field outside
// Status is optional; the monitor substitutes documented defaults so a
// partial response never breaks the dashboard.
type UpstreamHealth struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	CorrelationID string `json:"correlationId"`

	RateLimiting   *UpstreamRateLimiting   `json:"rateLimiting"`
	Cache          *UpstreamCache          `json:"cache"`
	AISummary      *UpstreamAISummary      `json:"aiSummary"`
	CircuitBreaker *UpstreamCircuitBreaker `json:"circuitBreaker"`
	Performance    *UpstreamPerformance    `json:"performance"`
}

type UpstreamRateLimiting struct {
	GlobalDailyUsage     int    `json:"globalDailyUsage"`
	GlobalDailyLimit     int    `json:"globalDailyLimit"`
	GlobalDailyRemaining int    `json:"globalDailyRemaining"`
	VegvesenQuotaUsage   string `json:"vegvesenQuotaUsage"`
	QuotaUtilization     string `json:"quotaUtilization"`
	ActiveIPsTracked     struct {
		Hourly int `json:"hourly"`
		Burst  int `json:"burst"`
	} `json:"activeIPsTracked"`
	VehicleEndpointUsage int     `json:"vehicleEndpointUsage"`
	AIEndpointUsage      int     `json:"aiEndpointUsage"`
	AIGenerationRate     float64 `json:"aiGenerationRate"`
}

type UpstreamCache struct {
	Entries             int    `json:"entries"`
	MaxSize             int    `json:"maxSize"`
	TTL                 int    `json:"ttl"`
	VehicleCacheEntries int    `json:"vehicleCacheEntries"`
	AICacheEntries      int    `json:"aiCacheEntries"`
	VehicleHitRate      string `json:"vehicleHitRate"`
	AIHitRate           string `json:"aiHitRate"`
	AICacheTTL          int    `json:"aiCacheTtl"`
}

type UpstreamAISummary struct {
	Status                string  `json:"status"`
	Model                 string  `json:"model"`
	Timeout               int     `json:"timeout"`
	ActiveGenerations     int     `json:"activeGenerations"`
	CompletedToday        int     `json:"completedToday"`
	FailedToday           int     `json:"failedToday"`
	AvgGenerationTime     float64 `json:"avgGenerationTime"`
	GenerationSuccessRate string  `json:"generationSuccessRate"`
	CacheUtilization      string  `json:"cacheUtilization"`
}

type UpstreamCircuitBreaker struct {
	State               string  `json:"state"`
	FailureCount        int     `json:"failureCount"`
	SuccessRate         string  `json:"successRate"`
	TotalRequests       int     `json:"totalRequests"`
	LastFailure         *string `json:"lastFailure"`
	VehicleCircuitState string  `json:"vehicleCircuitState"`
	AICircuitState      string  `json:"aiCircuitState"`
}

type UpstreamPerformance struct {
	VehicleAvgLatency   float64 `json:"vehicleAvgLatency"`
	AIAvgLatency        float64 `json:"aiAvgLatency"`
	CacheHitImprovement string  `json:"cacheHitImprovement"`
	TimeoutElimination  *bool   `json:"timeoutElimination"`
}

// MonitoringData is the defaulted, flattened view of UpstreamHealth that
// observability consumers depend on.
type MonitoringData struct {
	RateLimiting   RateLimitingSummary   `json:"rate_limiting"`
	Cache          CacheSummary          `json:"cache"`
	AISummary      AISummaryStatus       `json:"ai_summary"`
	CircuitBreaker CircuitBreakerSummary `json:"circuit_breaker"`
	Performance    PerformanceSummary    `json:"performance"`
}

type RateLimitingSummary struct {
	DailyUsage           int     `json:"daily_usage"`
	DailyLimit           int     `json:"daily_limit"`
	DailyRemaining       int     `json:"daily_remaining"`
	VegvesenQuota        string  `json:"vegvesen_quota"`
	QuotaUtilization     string  `json:"quota_utilization"`
	ActiveIPsHourly      int     `json:"active_ips_hourly"`
	ActiveIPsBurst       int     `json:"active_ips_burst"`
	VehicleEndpointUsage int     `json:"vehicle_endpoint_usage"`
	AIEndpointUsage      int     `json:"ai_endpoint_usage"`
	AIGenerationRate     float64 `json:"ai_generation_rate"`
}

type CacheSummary struct {
	Entries             int     `json:"entries"`
	MaxSize             int     `json:"max_size"`
	TTL                 int     `json:"ttl"`
	Utilization         float64 `json:"utilization"`
	VehicleCacheEntries int     `json:"vehicle_cache_entries"`
	AICacheEntries      int     `json:"ai_cache_entries"`
	VehicleHitRate      string  `json:"vehicle_hit_rate"`
	AIHitRate           string  `json:"ai_hit_rate"`
	AICacheTTL          int     `json:"ai_cache_ttl"`
}

type AISummaryStatus struct {
	Status                string  `json:"status"`
	Model                 string  `json:"model"`
	Timeout               int     `json:"timeout"`
	ActiveGenerations     int     `json:"active_generations"`
	CompletedToday        int     `json:"completed_today"`
	FailedToday           int     `json:"failed_today"`
	AvgGenerationTime     float64 `json:"avg_generation_time"`
	GenerationSuccessRate string  `json:"generation_success_rate"`
	CacheUtilization      string  `json:"cache_utilization"`
}

type CircuitBreakerSummary struct {
	State               string  `json:"state"`
	FailureCount        int     `json:"failure_count"`
	SuccessRate         string  `json:"success_rate"`
	TotalRequests       int     `json:"total_requests"`
	LastFailure         *string `json:"last_failure"`
	VehicleCircuitState string  `json:"vehicle_circuit_state"`
	AICircuitState      string  `json:"ai_circuit_state"`
}

type PerformanceSummary struct {
	VehicleAvgLatency   float64 `json:"vehicle_avg_latency"`
	AIAvgLatency        float64 `json:"ai_avg_latency"`
	CacheHitImprovement string  `json:"cache_hit_improvement"`
	TimeoutElimination  bool    `json:"timeout_elimination"`
}

// HealthSnapshot is the monitor's cached output for one upstream service.
// CacheExpiresIn lets pollers skip the network call while a snapshot is
// still fresh.
type HealthSnapshot struct {
	Message        string          `json:"message"`
	Status         string          `json:"status"`
	HealthData     json.RawMessage `json:"health_data,omitempty"`
	MonitoringData *MonitoringData `json:"monitoring_data,omitempty"`
	CorrelationID  string          `json:"correlation_id,omitempty"`
	ServiceVersion string          `json:"service_version"`
	Cached         bool            `json:"cached"`
	CacheTTL       int             `json:"cache_ttl"`
	CacheExpiresIn int             `json:"cache_expires_in,omitempty"`
}
