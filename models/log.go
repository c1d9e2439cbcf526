package models

import (
	"time"

	"github.com/google/uuid"
)

// LookupLog is one append-only row in the lookup log. Every terminal branch
// of the orchestrator writes exactly one row; the rate limiter and quota
// checks are aggregate queries against these rows.
type LookupLog struct {
	ID             uuid.UUID   `json:"id"`
	RegNumber      string      `json:"reg_number"`
	IPAddress      string      `json:"ip_address"`
	UserAgent      string      `json:"user_agent"`
	LookupTime     time.Time   `json:"lookup_time"`
	Success        bool        `json:"success"`
	ErrorMessage   string      `json:"error_message,omitempty"`
	FailureType    FailureType `json:"failure_type,omitempty"`
	Tier           Tier        `json:"tier"`
	ResponseTimeMs int64       `json:"response_time_ms"`
	Cached         bool        `json:"cached"`
	ErrorCode      string      `json:"error_code,omitempty"`
	CorrelationID  string      `json:"correlation_id,omitempty"`
}

// LookupStats aggregates the log over a date range for the admin dashboard.
type LookupStats struct {
	TotalLookups      int     `json:"total_lookups"`
	SuccessfulLookups int     `json:"successful_lookups"`
	FailedLookups     int     `json:"failed_lookups"`
	AvgResponseTimeMs float64 `json:"avg_response_time_ms"`
	CacheHits         int     `json:"cache_hits"`
	HTTPErrors        int     `json:"http_errors"`
	InvalidPlates     int     `json:"invalid_plates"`
	ConnectionErrors  int     `json:"connection_errors"`
	RateLimited       int     `json:"rate_limited"`
}

// PopularSearch is one row of the most-searched-plates report.
type PopularSearch struct {
	RegNumber    string    `json:"reg_number"`
	SearchCount  int       `json:"search_count"`
	LastSearched time.Time `json:"last_searched"`
}

// FailedLookup is one row of the recent-failures report.
type FailedLookup struct {
	RegNumber    string      `json:"reg_number"`
	IPAddress    string      `json:"ip_address"`
	ErrorMessage string      `json:"error_message"`
	FailureType  FailureType `json:"failure_type"`
	LookupTime   time.Time   `json:"lookup_time"`
}

// RateLimitStatus reports hourly usage for one IP, for display.
type RateLimitStatus struct {
	Used      int       `json:"used"`
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	ResetsAt  time.Time `json:"resets_at"`
}

// QuotaStatus reports global daily usage, for display.
type QuotaStatus struct {
	Used      int       `json:"used"`
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	ResetsAt  time.Time `json:"resets_at"`
}
