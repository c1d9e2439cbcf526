package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/beepi/vehicle-lookup-backend/models"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// LogRepository persists lookup attempts and answers the aggregate queries
// the rate limiter and the admin dashboard are built on. The log is
// append-only; retention cleanup is the only deleter.
type LogRepository struct {
	DB *sql.DB
}

// NewLogRepository creates a repository over the given database handle.
func NewLogRepository(db *sql.DB) *LogRepository {
	return &LogRepository{DB: db}
}

// LogLookup appends one lookup attempt to the log.
func (r *LogRepository) LogLookup(ctx context.Context, entry *models.LookupLog) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.LookupTime.IsZero() {
		entry.LookupTime = time.Now()
	}
	if entry.Tier == "" {
		entry.Tier = models.TierFree
	}

	query := `
		INSERT INTO vehicle_lookup_logs
			(id, reg_number, ip_address, user_agent, lookup_time, success,
			 error_message, failure_type, tier, response_time_ms, cached,
			 error_code, correlation_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err := r.DB.ExecContext(ctx, query,
		entry.ID,
		strings.ToUpper(entry.RegNumber),
		entry.IPAddress,
		entry.UserAgent,
		entry.LookupTime,
		entry.Success,
		nullableString(entry.ErrorMessage),
		nullableString(string(entry.FailureType)),
		string(entry.Tier),
		entry.ResponseTimeMs,
		entry.Cached,
		nullableString(entry.ErrorCode),
		nullableString(entry.CorrelationID),
	)
	if err != nil {
		return fmt.Errorf("failed to log lookup: %w", err)
	}
	return nil
}

// CountHourlyRequests counts all attempts from one IP inside the clock-hour
// bucket starting at hourStart. Used by the rate limiter.
func (r *LogRepository) CountHourlyRequests(ctx context.Context, ipAddress string, hourStart time.Time) (int, error) {
	query := `
		SELECT COUNT(*) FROM vehicle_lookup_logs
		WHERE ip_address = $1 AND lookup_time >= $2 AND lookup_time < $3`

	var count int
	err := r.DB.QueryRowContext(ctx, query, ipAddress, hourStart, hourStart.Add(time.Hour)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count hourly requests: %w", err)
	}
	return count, nil
}

// CountDailySuccesses counts successful lookups (cached or not) for the day
// starting at dayStart. Used by the global quota check.
func (r *LogRepository) CountDailySuccesses(ctx context.Context, dayStart time.Time) (int, error) {
	query := `
		SELECT COUNT(*) FROM vehicle_lookup_logs
		WHERE lookup_time >= $1 AND lookup_time < $2 AND success = true`

	var count int
	err := r.DB.QueryRowContext(ctx, query, dayStart, dayStart.Add(24*time.Hour)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count daily successes: %w", err)
	}
	return count, nil
}

// GetStats aggregates the log over a date range for the admin dashboard.
func (r *LogRepository) GetStats(ctx context.Context, startDate, endDate time.Time) (*models.LookupStats, error) {
	query := `
		SELECT
			COUNT(*) AS total_lookups,
			COALESCE(SUM(CASE WHEN success THEN 1 ELSE 0 END), 0) AS successful_lookups,
			COALESCE(AVG(response_time_ms), 0) AS avg_response_time,
			COALESCE(SUM(CASE WHEN cached THEN 1 ELSE 0 END), 0) AS cache_hits,
			COALESCE(SUM(CASE WHEN NOT success AND failure_type = 'http_error' THEN 1 ELSE 0 END), 0) AS http_errors,
			COALESCE(SUM(CASE WHEN NOT success AND failure_type = 'invalid_plate' THEN 1 ELSE 0 END), 0) AS invalid_plates,
			COALESCE(SUM(CASE WHEN NOT success AND failure_type = 'connection_error' THEN 1 ELSE 0 END), 0) AS connection_errors,
			COALESCE(SUM(CASE WHEN NOT success AND failure_type = 'rate_limit' THEN 1 ELSE 0 END), 0) AS rate_limited
		FROM vehicle_lookup_logs
		WHERE lookup_time >= $1 AND lookup_time <= $2`

	stats := &models.LookupStats{}
	err := r.DB.QueryRowContext(ctx, query, startDate, endDate).Scan(
		&stats.TotalLookups,
		&stats.SuccessfulLookups,
		&stats.AvgResponseTimeMs,
		&stats.CacheHits,
		&stats.HTTPErrors,
		&stats.InvalidPlates,
		&stats.ConnectionErrors,
		&stats.RateLimited,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get lookup stats: %w", err)
	}
	stats.FailedLookups = stats.TotalLookups - stats.SuccessfulLookups
	return stats, nil
}

// GetPopularSearches returns the most searched plates over the last N days.
func (r *LogRepository) GetPopularSearches(ctx context.Context, limit, days int) ([]models.PopularSearch, error) {
	query := `
		SELECT reg_number, COUNT(*) AS search_count, MAX(lookup_time) AS last_searched
		FROM vehicle_lookup_logs
		WHERE lookup_time >= $1 AND success = true
		GROUP BY reg_number
		ORDER BY search_count DESC
		LIMIT $2`

	since := time.Now().AddDate(0, 0, -days)
	rows, err := r.DB.QueryContext(ctx, query, since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get popular searches: %w", err)
	}
	defer rows.Close()

	var results []models.PopularSearch
	for rows.Next() {
		var search models.PopularSearch
		if err := rows.Scan(&search.RegNumber, &search.SearchCount, &search.LastSearched); err != nil {
			return nil, fmt.Errorf("failed to scan popular search row: %w", err)
		}
		results = append(results, search)
	}
	return results, rows.Err()
}

// GetFailedLookups returns the most recent failed attempts with details.
func (r *LogRepository) GetFailedLookups(ctx context.Context, limit int) ([]models.FailedLookup, error) {
	query := `
		SELECT reg_number, ip_address, COALESCE(error_message, ''), COALESCE(failure_type, ''), lookup_time
		FROM vehicle_lookup_logs
		WHERE success = false
		ORDER BY lookup_time DESC
		LIMIT $1`

	rows, err := r.DB.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get failed lookups: %w", err)
	}
	defer rows.Close()

	var results []models.FailedLookup
	for rows.Next() {
		var failed models.FailedLookup
		var failureType string
		if err := rows.Scan(&failed.RegNumber, &failed.IPAddress, &failed.ErrorMessage, &failureType, &failed.LookupTime); err != nil {
			return nil, fmt.Errorf("failed to scan failed lookup row: %w", err)
		}
		failed.FailureType = models.FailureType(failureType)
		results = append(results, failed)
	}
	return results, rows.Err()
}

// CleanupOldLogs deletes log rows older than the retention window.
func (r *LogRepository) CleanupOldLogs(ctx context.Context, retentionDays int) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	result, err := r.DB.ExecContext(ctx,
		`DELETE FROM vehicle_lookup_logs WHERE lookup_time < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up old logs: %w", err)
	}

	deleted, _ := result.RowsAffected()
	if deleted > 0 {
		logrus.WithFields(logrus.Fields{
			"deleted_rows":   deleted,
			"retention_days": retentionDays,
		}).Info("Cleaned up old lookup logs")
	}
	return deleted, nil
}

// ResetAnalytics deletes every log row. Admin-only escape hatch.
func (r *LogRepository) ResetAnalytics(ctx context.Context) (int64, error) {
	result, err := r.DB.ExecContext(ctx, `DELETE FROM vehicle_lookup_logs`)
	if err != nil {
		return 0, fmt.Errorf("failed to reset analytics data: %w", err)
	}
	deleted, _ := result.RowsAffected()
	logrus.WithField("deleted_rows", deleted).Info("Analytics data reset")
	return deleted, nil
}

func nullableString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
