package webapp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// StatusResponse is the body of GET /api/status.
type StatusResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Title   string `json:"title"`
}

// HealthChecker probes a running dashboard through its status endpoint.
type HealthChecker struct {
	client *http.Client
}

// NewHealthChecker creates a HealthChecker whose requests give up after
// requestTimeout.
func NewHealthChecker(requestTimeout time.Duration) *HealthChecker {
	return &HealthChecker{
		client: &http.Client{
			Timeout: requestTimeout,
		},
	}
}

// Check requests baseURL/api/status and returns the reported status. A
// transport failure or a non-200 answer is an error.
func (h *HealthChecker) Check(ctx context.Context, baseURL string) (*StatusResponse, error) {
	url := strings.TrimRight(baseURL, "/") + "/api/status"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create health check request for %s: %w", url, err)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("health check request to %s failed: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("health check at %s returned status %s", url, resp.Status)
	}

	status := &StatusResponse{}
	if err := json.NewDecoder(resp.Body).Decode(status); err != nil {
		return nil, fmt.Errorf("health check at %s returned a bad body: %w", url, err)
	}
	if status.Status != "ok" {
		return status, fmt.Errorf("dashboard at %s reports status %q", url, status.Status)
	}
	return status, nil
}
