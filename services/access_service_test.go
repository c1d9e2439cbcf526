package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/beepi/vehicle-lookup-backend/models"
	"github.com/stretchr/testify/assert"
)

// fakeLogStore is an in-memory LookupLogStore for limiter and orchestrator
// tests. Counts replay the same bucket semantics the SQL queries use.
type fakeLogStore struct {
	entries  []*models.LookupLog
	logErr   error
	countErr error
}

func (f *fakeLogStore) LogLookup(ctx context.Context, entry *models.LookupLog) error {
	if f.logErr != nil {
		return f.logErr
	}
	if entry.LookupTime.IsZero() {
		entry.LookupTime = time.Now()
	}
	f.entries = append(f.entries, entry)
	return nil
}

func (f *fakeLogStore) CountHourlyRequests(ctx context.Context, ipAddress string, hourStart time.Time) (int, error) {
	if f.countErr != nil {
		return 0, f.countErr
	}
	count := 0
	for _, e := range f.entries {
		if e.IPAddress == ipAddress && !e.LookupTime.Before(hourStart) && e.LookupTime.Before(hourStart.Add(time.Hour)) {
			count++
		}
	}
	return count, nil
}

func (f *fakeLogStore) CountDailySuccesses(ctx context.Context, dayStart time.Time) (int, error) {
	if f.countErr != nil {
		return 0, f.countErr
	}
	count := 0
	for _, e := range f.entries {
		if e.Success && !e.LookupTime.Before(dayStart) && e.LookupTime.Before(dayStart.Add(24*time.Hour)) {
			count++
		}
	}
	return count, nil
}

func seedEntries(store *fakeLogStore, ip string, n int, success bool, at time.Time) {
	for i := 0; i < n; i++ {
		store.entries = append(store.entries, &models.LookupLog{
			RegNumber:  "CO11204",
			IPAddress:  ip,
			Success:    success,
			LookupTime: at,
		})
	}
}

func TestCheckRateLimit(t *testing.T) {
	store := &fakeLogStore{}
	svc := NewAccessService(store, 5, 100)
	current := time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)
	svc.now = func() time.Time { return current }

	assert.True(t, svc.CheckRateLimit(context.Background(), "203.0.113.7"))

	seedEntries(store, "203.0.113.7", 5, false, current)
	assert.False(t, svc.CheckRateLimit(context.Background(), "203.0.113.7"))

	// Other IPs keep their own budget.
	assert.True(t, svc.CheckRateLimit(context.Background(), "203.0.113.8"))
}

func TestCheckRateLimitResetsNextHour(t *testing.T) {
	store := &fakeLogStore{}
	svc := NewAccessService(store, 5, 100)
	current := time.Date(2026, 3, 1, 12, 59, 0, 0, time.UTC)
	svc.now = func() time.Time { return current }

	seedEntries(store, "203.0.113.7", 5, false, current)
	assert.False(t, svc.CheckRateLimit(context.Background(), "203.0.113.7"))

	current = time.Date(2026, 3, 1, 13, 1, 0, 0, time.UTC)
	assert.True(t, svc.CheckRateLimit(context.Background(), "203.0.113.7"))
}

func TestCheckQuotaCountsOnlySuccesses(t *testing.T) {
	store := &fakeLogStore{}
	svc := NewAccessService(store, 100, 3)
	current := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return current }

	seedEntries(store, "203.0.113.7", 3, false, current)
	assert.True(t, svc.CheckQuota(context.Background()), "failures must not burn quota")

	seedEntries(store, "203.0.113.7", 3, true, current)
	assert.False(t, svc.CheckQuota(context.Background()))
}

func TestAccessChecksFailOpen(t *testing.T) {
	store := &fakeLogStore{countErr: errors.New("connection refused")}
	svc := NewAccessService(store, 1, 1)

	assert.True(t, svc.CheckRateLimit(context.Background(), "203.0.113.7"))
	assert.True(t, svc.CheckQuota(context.Background()))
}

func TestRateLimitStatus(t *testing.T) {
	store := &fakeLogStore{}
	svc := NewAccessService(store, 5, 100)
	current := time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)
	svc.now = func() time.Time { return current }

	seedEntries(store, "203.0.113.7", 2, true, current)

	status := svc.RateLimitStatus(context.Background(), "203.0.113.7")
	assert.Equal(t, 2, status.Used)
	assert.Equal(t, 5, status.Limit)
	assert.Equal(t, 3, status.Remaining)
	assert.Equal(t, time.Date(2026, 3, 1, 13, 0, 0, 0, time.UTC), status.ResetsAt)
}

func TestQuotaStatusRemainingNeverNegative(t *testing.T) {
	store := &fakeLogStore{}
	svc := NewAccessService(store, 100, 2)
	current := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return current }

	seedEntries(store, "203.0.113.7", 4, true, current)

	status := svc.QuotaStatus(context.Background())
	assert.Equal(t, 4, status.Used)
	assert.Equal(t, 0, status.Remaining)
	assert.Equal(t, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), status.ResetsAt)
}

func TestClientIP(t *testing.T) {
	cases := []struct {
		name         string
		forwardedFor string
		realIP       string
		remoteAddr   string
		want         string
	}{
		{"forwarded-for wins", "198.51.100.4", "203.0.113.9", "10.0.0.1", "198.51.100.4"},
		{"first hop of chain", "198.51.100.4, 10.0.0.2", "", "10.0.0.1", "198.51.100.4"},
		{"private forwarded ignored", "10.1.2.3", "203.0.113.9", "10.0.0.1", "203.0.113.9"},
		{"loopback forwarded ignored", "127.0.0.1", "", "192.0.2.5", "192.0.2.5"},
		{"garbage header ignored", "not-an-ip", "", "192.0.2.5", "192.0.2.5"},
		{"fallback to remote", "", "", "192.0.2.5", "192.0.2.5"},
		{"nothing known", "", "", "", "0.0.0.0"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ClientIP(tc.forwardedFor, tc.realIP, tc.remoteAddr))
		})
	}
}
