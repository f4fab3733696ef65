package simulation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dpup/prefab/errors"
	"github.com/dpup/prefab/logging"

	"github.com/dpup/rooftrace/server/internal/metrics"
)

var (
	// ErrTooFewPoints is returned when the outline cannot enclose an area
	ErrTooFewPoints = errors.New("polygon must have at least 3 points")

	// ErrInvalidSettings wraps a settings validation failure
	ErrInvalidSettings = errors.New("invalid simulation settings")

	// ErrEmptyResult is returned when the endpoint answers without a usable payload
	ErrEmptyResult = errors.New("simulation returned no usable result")
)

// APIError is a non-2xx answer from the simulation endpoint
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("simulation API error %d: %s", e.StatusCode, e.Detail)
}

// HTTPDoer is the subset of *http.Client the client needs
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client talks to the external energy-simulation service
type Client struct {
	baseURL    string
	httpClient HTTPDoer
}

// NewClient creates a new simulation client
func NewClient(baseURL string, timeout time.Duration) *Client {
	return NewClientWithHTTPDoer(baseURL, &http.Client{
		Timeout: timeout,
	})
}

// NewClientWithHTTPDoer creates a client with a custom transport, for tests
func NewClientWithHTTPDoer(baseURL string, doer HTTPDoer) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: doer,
	}
}

// Calculate posts the request to /api/v1/simulation/calculate
func (c *Client) Calculate(ctx context.Context, request CalculationRequest) (results *Results, err error) {
	start := time.Now()
	defer func() { metrics.ObserveSimulation(start, err) }()
	ctx = logging.EnsureLogger(ctx)

	if len(request.Polygon) < 3 {
		return nil, ErrTooFewPoints
	}

	jsonBody, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/simulation/calculate", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	logging.Debugw(ctx, "Simulation: calculating", "points", len(request.Polygon), "bill_idr", request.BillIDR)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, &APIError{StatusCode: resp.StatusCode, Detail: errorDetail(body)}
	}

	if len(bytes.TrimSpace(body)) == 0 {
		return nil, ErrEmptyResult
	}

	var decoded *Results
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if !decoded.Usable() {
		return nil, ErrEmptyResult
	}

	return decoded, nil
}

// errorDetail extracts the FastAPI style {"detail": ...} message, falling back
// to the raw body
func errorDetail(body []byte) string {
	var payload struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && len(payload.Detail) > 0 {
		var msg string
		if err := json.Unmarshal(payload.Detail, &msg); err == nil {
			return msg
		}
		// Validation errors arrive as a list of objects
		return string(payload.Detail)
	}
	return strings.TrimSpace(string(body))
}
