package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/beepi/vehicle-lookup-backend/shared"
	"github.com/sirupsen/logrus"
)

// WorkerResponse carries a raw upstream response plus the measured call
// duration. The interpreter owns all parsing; the client never looks at the
// body beyond reading it.
type WorkerResponse struct {
	StatusCode     int
	Body           []byte
	Header         http.Header
	ResponseTimeMs int64
}

// WorkerClient issues HTTP calls to the vehicle-lookup worker and the chat
// service. Transport failures (DNS, TLS, timeout, refused connection) are
// wrapped into a uniform connection-error ServiceError. No internal retries;
// retry policy belongs to the caller.
type WorkerClient struct {
	baseURL        string
	chatServiceURL string
	siteURL        string
	client         *http.Client
	metrics        *shared.MetricsRegistry
}

// NewWorkerClient creates a client for the configured worker base URL.
// The Origin header is set to siteURL on every request; the worker uses it
// for CORS allow-listing.
func NewWorkerClient(baseURL, chatServiceURL, siteURL string, timeout time.Duration, factory *shared.HTTPClientFactory, metrics *shared.MetricsRegistry) *WorkerClient {
	return &WorkerClient{
		baseURL:        strings.TrimRight(baseURL, "/"),
		chatServiceURL: strings.TrimRight(chatServiceURL, "/"),
		siteURL:        siteURL,
		client:         factory.CreateOptimizedHTTPClient(timeout),
		metrics:        metrics,
	}
}

// Lookup POSTs a registration number to the worker's /lookup endpoint.
func (c *WorkerClient) Lookup(ctx context.Context, regNumber string, includeSummary bool) (*WorkerResponse, error) {
	payload, err := json.Marshal(map[string]interface{}{
		"registrationNumber": regNumber,
		"includeSummary":     includeSummary,
	})
	if err != nil {
		return nil, shared.NewServiceError(shared.ErrorCategoryValidation, "MARSHAL_FAILED",
			"failed to encode lookup request", "worker-client", "lookup", false, err)
	}

	resp, err := c.do(ctx, http.MethodPost, c.baseURL+"/lookup", payload, c.metrics.Vehicle)
	if err != nil {
		return resp, err
	}

	logrus.WithFields(logrus.Fields{
		"reg_number":       regNumber,
		"status_code":      resp.StatusCode,
		"response_time_ms": resp.ResponseTimeMs,
		"include_summary":  includeSummary,
	}).Debug("Worker lookup completed")

	return resp, nil
}

// PollAISummary GETs the phase-2 AI summary for a plate. Decoupled from the
// main lookup so slow generation never blocks the primary response.
func (c *WorkerClient) PollAISummary(ctx context.Context, regNumber string) (*WorkerResponse, error) {
	endpoint := c.baseURL + "/ai-summary/" + url.PathEscape(regNumber)
	return c.do(ctx, http.MethodGet, endpoint, nil, c.metrics.AI)
}

// CheckHealth GETs the worker's /health endpoint.
func (c *WorkerClient) CheckHealth(ctx context.Context) (*WorkerResponse, error) {
	return c.do(ctx, http.MethodGet, c.baseURL+"/health", nil, c.metrics.Health)
}

// CheckChatHealth GETs the secondary chat service's health endpoint.
func (c *WorkerClient) CheckChatHealth(ctx context.Context) (*WorkerResponse, error) {
	return c.do(ctx, http.MethodGet, c.chatServiceURL+"/api/health", nil, c.metrics.Health)
}

// ClearWorkerCache asks the worker to drop its remote cache.
func (c *WorkerClient) ClearWorkerCache(ctx context.Context) error {
	payload, _ := json.Marshal(map[string]bool{"clearAll": true})

	resp, err := c.do(ctx, http.MethodPost, c.baseURL+"/cache/clear", payload, c.metrics.Vehicle)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return shared.NewServiceError(shared.ErrorCategoryUpstream, "CACHE_CLEAR_FAILED",
			fmt.Sprintf("worker cache clear returned status %d", resp.StatusCode),
			"worker-client", "clear-cache", true, nil)
	}

	logrus.Info("Worker cache cleared successfully")
	return nil
}

func (c *WorkerClient) do(ctx context.Context, method, endpoint string, body []byte, metrics *shared.EndpointMetrics) (*WorkerResponse, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, shared.NewServiceError(shared.ErrorCategoryValidation, "REQUEST_BUILD_FAILED",
			"failed to build upstream request", "worker-client", method+" "+endpoint, false, err)
	}

	req.Header.Set("Origin", c.siteURL)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	elapsed := time.Since(start)

	if err != nil {
		timedOut := isTimeout(err)
		metrics.RecordRequest(false, elapsed, timedOut)

		category := shared.ErrorCategoryNetwork
		if timedOut {
			category = shared.ErrorCategoryTimeout
		}
		return &WorkerResponse{ResponseTimeMs: elapsed.Milliseconds()},
			shared.NewServiceError(category, "CONNECTION_FAILED",
				"upstream request failed", "worker-client", method+" "+endpoint, true, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.RecordRequest(false, elapsed, false)
		return &WorkerResponse{StatusCode: resp.StatusCode, ResponseTimeMs: elapsed.Milliseconds()},
			shared.NewServiceError(shared.ErrorCategoryNetwork, "CONNECTION_FAILED",
				"failed to read upstream response body", "worker-client", method+" "+endpoint, true, err)
	}

	metrics.RecordRequest(resp.StatusCode == http.StatusOK, elapsed, false)

	return &WorkerResponse{
		StatusCode:     resp.StatusCode,
		Body:           raw,
		Header:         resp.Header,
		ResponseTimeMs: elapsed.Milliseconds(),
	}, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}
