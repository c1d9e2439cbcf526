package shared

import (
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// EndpointMetrics tracks success and latency for one upstream endpoint
// (vehicle lookup, AI summary, health). The latency figures feed the
// performance section of the monitoring output.
type EndpointMetrics struct {
	Endpoint           string        `json:"endpoint"`
	TotalRequests      int64         `json:"total_requests"`
	SuccessfulRequests int64         `json:"successful_requests"`
	FailedRequests     int64         `json:"failed_requests"`
	TimeoutCount       int64         `json:"timeout_count"`
	TotalLatency       time.Duration `json:"total_latency"`
	AverageLatency     time.Duration `json:"average_latency"`
	MinLatency         time.Duration `json:"min_latency"`
	MaxLatency         time.Duration `json:"max_latency"`
	P95Latency         time.Duration `json:"p95_latency"`
	LastUpdated        time.Time     `json:"last_updated"`

	mutex   sync.RWMutex
	samples []time.Duration
}

// NewEndpointMetrics creates a metrics tracker for a named endpoint.
func NewEndpointMetrics(endpoint string) *EndpointMetrics {
	return &EndpointMetrics{
		Endpoint: endpoint,
		samples:  make([]time.Duration, 0, 1000),
	}
}

// RecordRequest records one call with its outcome and latency.
func (m *EndpointMetrics) RecordRequest(success bool, latency time.Duration, timedOut bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.TotalRequests++
	m.TotalLatency += latency
	m.AverageLatency = time.Duration(int64(m.TotalLatency) / m.TotalRequests)

	if success {
		m.SuccessfulRequests++
	} else {
		m.FailedRequests++
	}
	if timedOut {
		m.TimeoutCount++
	}

	if m.MinLatency == 0 || latency < m.MinLatency {
		m.MinLatency = latency
	}
	if latency > m.MaxLatency {
		m.MaxLatency = latency
	}

	// Keep the last 1000 samples for percentile calculation
	if len(m.samples) >= 1000 {
		m.samples = m.samples[1:]
	}
	m.samples = append(m.samples, latency)
	m.recalculatePercentiles()

	m.LastUpdated = time.Now()
}

func (m *EndpointMetrics) recalculatePercentiles() {
	if len(m.samples) == 0 {
		return
	}

	sorted := make([]time.Duration, len(m.samples))
	copy(sorted, m.samples)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	p95Index := int(float64(len(sorted)) * 0.95)
	if p95Index >= len(sorted) {
		p95Index = len(sorted) - 1
	}
	m.P95Latency = sorted[p95Index]
}

// SuccessRate returns the success rate as a percentage.
func (m *EndpointMetrics) SuccessRate() float64 {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	if m.TotalRequests == 0 {
		return 0.0
	}
	return float64(m.SuccessfulRequests) / float64(m.TotalRequests) * 100.0
}

// Snapshot returns a copy of the current metrics without the sample buffer.
func (m *EndpointMetrics) Snapshot() EndpointMetrics {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	return EndpointMetrics{
		Endpoint:           m.Endpoint,
		TotalRequests:      m.TotalRequests,
		SuccessfulRequests: m.SuccessfulRequests,
		FailedRequests:     m.FailedRequests,
		TimeoutCount:       m.TimeoutCount,
		TotalLatency:       m.TotalLatency,
		AverageLatency:     m.AverageLatency,
		MinLatency:         m.MinLatency,
		MaxLatency:         m.MaxLatency,
		P95Latency:         m.P95Latency,
		LastUpdated:        m.LastUpdated,
	}
}

// LogSummary logs a metrics summary for the endpoint.
func (m *EndpointMetrics) LogSummary() {
	snapshot := m.Snapshot()

	logrus.WithFields(logrus.Fields{
		"endpoint":            snapshot.Endpoint,
		"total_requests":      snapshot.TotalRequests,
		"successful_requests": snapshot.SuccessfulRequests,
		"failed_requests":     snapshot.FailedRequests,
		"timeout_count":       snapshot.TimeoutCount,
		"average_latency":     snapshot.AverageLatency,
		"min_latency":         snapshot.MinLatency,
		"max_latency":         snapshot.MaxLatency,
		"p95_latency":         snapshot.P95Latency,
	}).Info("Endpoint metrics summary")
}

// Reset clears all recorded metrics.
func (m *EndpointMetrics) Reset() {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.TotalRequests = 0
	m.SuccessfulRequests = 0
	m.FailedRequests = 0
	m.TimeoutCount = 0
	m.TotalLatency = 0
	m.AverageLatency = 0
	m.MinLatency = 0
	m.MaxLatency = 0
	m.P95Latency = 0
	m.samples = m.samples[:0]
	m.LastUpdated = time.Now()
}

// MetricsRegistry groups the per-endpoint trackers for the worker client.
type MetricsRegistry struct {
	Vehicle *EndpointMetrics
	AI      *EndpointMetrics
	Health  *EndpointMetrics
}

// NewMetricsRegistry creates trackers for all upstream endpoints.
func NewMetricsRegistry() *MetricsRegistry {
	return &MetricsRegistry{
		Vehicle: NewEndpointMetrics("lookup"),
		AI:      NewEndpointMetrics("ai-summary"),
		Health:  NewEndpointMetrics("health"),
	}
}

// SnapshotAll returns snapshots of every endpoint tracker keyed by endpoint.
func (r *MetricsRegistry) SnapshotAll() map[string]EndpointMetrics {
	return map[string]EndpointMetrics{
		"lookup":     r.Vehicle.Snapshot(),
		"ai_summary": r.AI.Snapshot(),
		"health":     r.Health.Snapshot(),
	}
}
