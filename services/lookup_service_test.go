package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/beepi/vehicle-lookup-backend/models"
	"github.com/beepi/vehicle-lookup-backend/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type lookupFixture struct {
	service *LookupService
	store   *fakeLogStore
	calls   *int32
	server  *httptest.Server
}

func newLookupFixture(t *testing.T, handler http.HandlerFunc, hourlyLimit, dailyQuota int) *lookupFixture {
	t.Helper()

	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		handler(w, r)
	}))
	t.Cleanup(server.Close)

	store := &fakeLogStore{}
	factory := shared.NewHTTPClientFactory(5 * time.Second)
	client := NewWorkerClient(server.URL, server.URL, "https://beepi.no", 5*time.Second, factory, shared.NewMetricsRegistry())

	service := NewLookupService(
		NewPlateService(),
		NewCacheService(time.Hour, 100),
		NewCacheService(24*time.Hour, 100),
		NewAccessService(store, hourlyLimit, dailyQuota),
		client,
		NewResponseInterpreter(),
		store,
		time.Hour,
		24*time.Hour,
	)

	return &lookupFixture{service: service, store: store, calls: &calls, server: server}
}

func vehicleOK(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte(`{"responser":[{"kjoretoydata":{"kjennemerke":"CO11204"}}],"correlationId":"req-1709290000-abc123xyz"}`))
}

func baseRequest(plate string) models.LookupRequest {
	return models.LookupRequest{
		Plate:     plate,
		ClientIP:  "203.0.113.7",
		UserAgent: "test-agent",
		Tier:      models.TierFree,
	}
}

func TestLookupSuccess(t *testing.T) {
	f := newLookupFixture(t, vehicleOK, 50, 5000)

	result := f.service.Lookup(context.Background(), baseRequest("co 11204"))

	require.True(t, result.Success)
	assert.False(t, result.FromCache)
	assert.Equal(t, "req-1709290000-abc123xyz", result.CorrelationID)

	require.Len(t, f.store.entries, 1)
	entry := f.store.entries[0]
	assert.Equal(t, "CO11204", entry.RegNumber, "plate is normalized before anything else")
	assert.Equal(t, "203.0.113.7", entry.IPAddress)
	assert.True(t, entry.Success)
	assert.False(t, entry.Cached)
	assert.Equal(t, models.TierFree, entry.Tier)
}

func TestLookupCacheHit(t *testing.T) {
	f := newLookupFixture(t, vehicleOK, 50, 5000)

	first := f.service.Lookup(context.Background(), baseRequest("CO11204"))
	require.True(t, first.Success)

	// Differently formatted input hits the same cache entry.
	second := f.service.Lookup(context.Background(), baseRequest("co 11204"))
	require.True(t, second.Success)
	assert.True(t, second.FromCache)
	assert.Greater(t, second.CacheExpiresIn, 0)
	assert.LessOrEqual(t, second.CacheExpiresIn, 3600)
	assert.JSONEq(t, string(first.Data), string(second.Data))

	assert.EqualValues(t, 1, atomic.LoadInt32(f.calls), "second lookup must not hit upstream")

	require.Len(t, f.store.entries, 2, "cache hits still get their own audit row")
	assert.False(t, f.store.entries[0].Cached)
	assert.True(t, f.store.entries[1].Cached)
	assert.True(t, f.store.entries[1].Success)
}

func TestLookupInvalidPlate(t *testing.T) {
	f := newLookupFixture(t, vehicleOK, 50, 5000)

	result := f.service.Lookup(context.Background(), baseRequest("AB-1234!"))

	assert.False(t, result.Success)
	assert.Equal(t, models.FailureInvalidPlate, result.FailureType)
	assert.Equal(t, PlateErrorInvalidChars, result.ErrorCode)
	assert.EqualValues(t, 0, atomic.LoadInt32(f.calls), "invalid plates never reach upstream")

	require.Len(t, f.store.entries, 1)
	assert.False(t, f.store.entries[0].Success)
	assert.Equal(t, models.FailureInvalidPlate, f.store.entries[0].FailureType)
}

func TestLookupRateLimit(t *testing.T) {
	f := newLookupFixture(t, vehicleOK, 5, 5000)

	for i := 0; i < 5; i++ {
		result := f.service.Lookup(context.Background(), baseRequest("CO11204"))
		require.True(t, result.Success, "request %d", i+1)
	}

	result := f.service.Lookup(context.Background(), baseRequest("CO11204"))
	assert.False(t, result.Success)
	assert.Equal(t, models.FailureRateLimit, result.FailureType)
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", result.ErrorCode)

	// 5 allowed rows plus the rejected one.
	assert.Len(t, f.store.entries, 6)
}

func TestLookupAdminBypassesRateLimitNotQuota(t *testing.T) {
	f := newLookupFixture(t, vehicleOK, 1, 2)

	req := baseRequest("CO11204")
	req.IsAdmin = true

	// Cache would mask the limiter; aim at distinct plates.
	plates := []string{"CO11204", "CO11205", "CO11206"}

	first := f.service.Lookup(context.Background(), models.LookupRequest{Plate: plates[0], ClientIP: req.ClientIP, IsAdmin: true})
	require.True(t, first.Success)

	second := f.service.Lookup(context.Background(), models.LookupRequest{Plate: plates[1], ClientIP: req.ClientIP, IsAdmin: true})
	require.True(t, second.Success, "admin passes the per-IP limit")

	third := f.service.Lookup(context.Background(), models.LookupRequest{Plate: plates[2], ClientIP: req.ClientIP, IsAdmin: true})
	assert.False(t, third.Success, "the global quota binds admins too")
	assert.Equal(t, CodeQuotaExceeded, third.ErrorCode)
	assert.Equal(t, models.FailureRateLimit, third.FailureType)
}

func TestLookupQuotaExhausted(t *testing.T) {
	f := newLookupFixture(t, vehicleOK, 50, 1)

	first := f.service.Lookup(context.Background(), baseRequest("CO11204"))
	require.True(t, first.Success)

	result := f.service.Lookup(context.Background(), baseRequest("CO11205"))
	assert.False(t, result.Success)
	assert.Equal(t, CodeQuotaExceeded, result.ErrorCode)
	assert.EqualValues(t, 1, atomic.LoadInt32(f.calls))
}

func TestLookupUpstreamFailureLogged(t *testing.T) {
	f := newLookupFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":{"code":"NOT_FOUND","correlationId":"req-1709290000-k3j2h1g4f"}}`))
	}, 50, 5000)

	result := f.service.Lookup(context.Background(), baseRequest("ZZ99999"))

	assert.False(t, result.Success)
	assert.Equal(t, models.FailureInvalidPlate, result.FailureType)

	require.Len(t, f.store.entries, 1)
	entry := f.store.entries[0]
	assert.Equal(t, "NOT_FOUND", entry.ErrorCode)
	assert.Equal(t, "req-1709290000-k3j2h1g4f", entry.CorrelationID)
	assert.Equal(t, models.FailureInvalidPlate, entry.FailureType)
}

func TestLookupFailuresNotCached(t *testing.T) {
	f := newLookupFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"error":{"code":"SERVICE_UNAVAILABLE"}}`))
	}, 50, 5000)

	f.service.Lookup(context.Background(), baseRequest("CO11204"))
	f.service.Lookup(context.Background(), baseRequest("CO11204"))

	assert.EqualValues(t, 2, atomic.LoadInt32(f.calls), "failures always retry upstream")
}

func TestPollAISummary(t *testing.T) {
	t.Run("completed summary cached", func(t *testing.T) {
		f := newLookupFixture(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"status":"completed","registrationNumber":"CO11204","summary":"En flott bil."}`))
		}, 50, 5000)

		first := f.service.PollAISummary(context.Background(), baseRequest("co 11204"))
		require.True(t, first.Success)
		assert.False(t, first.FromCache)

		second := f.service.PollAISummary(context.Background(), baseRequest("CO11204"))
		require.True(t, second.Success)
		assert.True(t, second.FromCache)
		assert.EqualValues(t, 1, atomic.LoadInt32(f.calls))
	})

	t.Run("pending summary not cached", func(t *testing.T) {
		f := newLookupFixture(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"status":"processing","registrationNumber":"CO11204"}`))
		}, 50, 5000)

		f.service.PollAISummary(context.Background(), baseRequest("CO11204"))
		result := f.service.PollAISummary(context.Background(), baseRequest("CO11204"))

		assert.True(t, result.Success)
		assert.False(t, result.FromCache)
		assert.EqualValues(t, 2, atomic.LoadInt32(f.calls))
	})

	t.Run("invalid plate rejected locally", func(t *testing.T) {
		f := newLookupFixture(t, vehicleOK, 50, 5000)

		result := f.service.PollAISummary(context.Background(), baseRequest("way-too-long-plate"))
		assert.False(t, result.Success)
		assert.Equal(t, models.FailureInvalidPlate, result.FailureType)
		assert.EqualValues(t, 0, atomic.LoadInt32(f.calls))
	})
}

func TestClearCacheClearsLocalAndWorker(t *testing.T) {
	var clearCalled int32
	f := newLookupFixture(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/cache/clear" {
			atomic.AddInt32(&clearCalled, 1)
			w.Write([]byte(`{"success":true}`))
			return
		}
		vehicleOK(w, r)
	}, 50, 5000)

	first := f.service.Lookup(context.Background(), baseRequest("CO11204"))
	require.True(t, first.Success)

	require.NoError(t, f.service.ClearCache(context.Background()))
	assert.EqualValues(t, 1, atomic.LoadInt32(&clearCalled))

	second := f.service.Lookup(context.Background(), baseRequest("CO11204"))
	require.True(t, second.Success)
	assert.False(t, second.FromCache)
}
