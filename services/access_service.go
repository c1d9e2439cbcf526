package services

import (
	"context"
	"net"
	"strings"
	"time"

	"github.com/beepi/vehicle-lookup-backend/models"
	"github.com/sirupsen/logrus"
)

// LookupLogStore is the slice of the log repository the limiter and the
// orchestrator depend on. Counts are aggregate queries over the append-only
// log rather than dedicated counters; check-then-act is therefore not
// atomic and brief overshoot under heavy concurrency is an accepted,
// documented tradeoff bounded by the number of in-flight requests.
type LookupLogStore interface {
	LogLookup(ctx context.Context, entry *models.LookupLog) error
	CountHourlyRequests(ctx context.Context, ipAddress string, hourStart time.Time) (int, error)
	CountDailySuccesses(ctx context.Context, dayStart time.Time) (int, error)
}

// AccessService enforces the per-IP hourly rate limit and the global daily
// quota, both derived from the lookup log.
type AccessService struct {
	store           LookupLogStore
	hourlyRateLimit int
	dailyQuota      int
	now             func() time.Time
}

// NewAccessService creates an access service with the configured limits.
func NewAccessService(store LookupLogStore, hourlyRateLimit, dailyQuota int) *AccessService {
	return &AccessService{
		store:           store,
		hourlyRateLimit: hourlyRateLimit,
		dailyQuota:      dailyQuota,
		now:             time.Now,
	}
}

// CheckRateLimit reports whether the IP is still under its hourly budget.
// Counting errors fail open: an unreachable log store should degrade to
// allowing lookups, not blocking every caller.
func (s *AccessService) CheckRateLimit(ctx context.Context, ipAddress string) bool {
	count, err := s.store.CountHourlyRequests(ctx, ipAddress, s.currentHourBucket())
	if err != nil {
		logrus.WithError(err).WithField("ip_address", ipAddress).Warn("Rate limit count failed, allowing request")
		return true
	}
	return count < s.hourlyRateLimit
}

// CheckQuota reports whether the global daily quota of successful lookups
// has headroom. Applies to every caller, admins included.
func (s *AccessService) CheckQuota(ctx context.Context) bool {
	count, err := s.store.CountDailySuccesses(ctx, s.currentDayBucket())
	if err != nil {
		logrus.WithError(err).Warn("Quota count failed, allowing request")
		return true
	}
	return count < s.dailyQuota
}

// RateLimitStatus returns hourly usage for one IP, for display.
func (s *AccessService) RateLimitStatus(ctx context.Context, ipAddress string) models.RateLimitStatus {
	used, err := s.store.CountHourlyRequests(ctx, ipAddress, s.currentHourBucket())
	if err != nil {
		logrus.WithError(err).Warn("Rate limit status query failed")
	}

	remaining := s.hourlyRateLimit - used
	if remaining < 0 {
		remaining = 0
	}

	return models.RateLimitStatus{
		Used:      used,
		Limit:     s.hourlyRateLimit,
		Remaining: remaining,
		ResetsAt:  s.currentHourBucket().Add(time.Hour),
	}
}

// QuotaStatus returns global daily usage, for display.
func (s *AccessService) QuotaStatus(ctx context.Context) models.QuotaStatus {
	used, err := s.store.CountDailySuccesses(ctx, s.currentDayBucket())
	if err != nil {
		logrus.WithError(err).Warn("Quota status query failed")
	}

	remaining := s.dailyQuota - used
	if remaining < 0 {
		remaining = 0
	}

	return models.QuotaStatus{
		Used:      used,
		Limit:     s.dailyQuota,
		Remaining: remaining,
		ResetsAt:  s.currentDayBucket().Add(24 * time.Hour),
	}
}

func (s *AccessService) currentHourBucket() time.Time {
	return s.now().Truncate(time.Hour)
}

func (s *AccessService) currentDayBucket() time.Time {
	now := s.now()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
}

// ClientIP extracts the caller IP from proxy headers, first hop wins,
// falling back to the transport remote address. Private and unspecified
// addresses in forwarding headers are ignored.
func ClientIP(forwardedFor, realIP, remoteAddr string) string {
	candidates := []string{forwardedFor, realIP}

	for _, header := range candidates {
		if header == "" {
			continue
		}
		first := header
		if idx := strings.Index(header, ","); idx >= 0 {
			first = header[:idx]
		}
		first = strings.TrimSpace(first)
		if ip := net.ParseIP(first); ip != nil && !ip.IsPrivate() && !ip.IsLoopback() && !ip.IsUnspecified() {
			return first
		}
	}

	if remoteAddr != "" {
		return remoteAddr
	}
	return "0.0.0.0"
}
