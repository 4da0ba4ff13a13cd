// Package detector provides the HTTP client for the external anomaly
// detection API.
package detector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/netwatch-labs/ddos-dashboard/internal/types"
)

// Error taxonomy for a poll cycle. Both are transient from the poller's
// point of view: log, skip the cycle, keep the schedule.
var (
	// ErrBadStatus marks a non-2xx response from the detection API.
	ErrBadStatus = errors.New("detection api returned non-success status")
	// ErrMalformedPayload marks a response body that does not decode to the
	// expected shape.
	ErrMalformedPayload = errors.New("malformed detection api payload")
)

// Client handles communication with the detection API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        *logrus.Logger
}

// Config for the detection API client.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// NewClient creates a new detection API client.
func NewClient(cfg Config, log *logrus.Logger) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}

	return &Client{
		baseURL: cfg.BaseURL,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		log: log,
	}
}

// recentResponse is the expected body of GET /anomalies.
type recentResponse struct {
	Recent []types.AnomalyEvent `json:"recent"`
}

// getAnomalies issues the request and checks the status; the caller owns the
// returned body.
func (c *Client) getAnomalies(ctx context.Context) (*http.Response, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("detection client not configured")
	}

	url := fmt.Sprintf("%s/anomalies", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach detection api: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %d", ErrBadStatus, resp.StatusCode)
	}
	return resp, nil
}

// FetchRecent retrieves the detection API's recent anomaly candidates. The
// returned events carry only source-provided fields; the ingestion timestamp
// is assigned later by the stats store.
func (c *Client) FetchRecent(ctx context.Context) ([]types.AnomalyEvent, error) {
	resp, err := c.getAnomalies(ctx)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var body recentResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	c.log.WithField("candidates", len(body.Recent)).Debug("Fetched recent anomalies")

	return body.Recent, nil
}

// Healthy checks whether the detection API is reachable.
func (c *Client) Healthy(ctx context.Context) error {
	resp, err := c.getAnomalies(ctx)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}
