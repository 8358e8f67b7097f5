package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/couchcryptid/tideguard-telemetry/internal/domain"
)

// Client calls the REST endpoints the telemetry backend exposes next to its stream.
type Client struct {
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
}

// NewClient creates a backend REST client.
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
	}
}

// PredictRequest is the body of POST /predict.
type PredictRequest struct {
	Value float64 `json:"value"`
}

// Prediction is the response of POST /predict.
type Prediction struct {
	Status domain.AlertLevel `json:"status"`
}

// Predict asks the backend to classify a single reading.
func (c *Client) Predict(ctx context.Context, value float64) (Prediction, error) {
	var out Prediction
	if err := c.doRequest(ctx, http.MethodPost, "/predict", PredictRequest{Value: value}, &out); err != nil {
		return Prediction{}, err
	}
	return out, nil
}

// Alerts returns the breach records the backend has logged, newest last.
func (c *Client) Alerts(ctx context.Context) ([]domain.AlertRecord, error) {
	var out []domain.AlertRecord
	if err := c.doRequest(ctx, http.MethodGet, "/alerts", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Series returns the backend's recent sample history, oldest first. Every
// entry goes through domain.ParseSample; the first invalid one fails the call.
func (c *Client) Series(ctx context.Context) ([]domain.TelemetrySample, error) {
	var raw []json.RawMessage
	if err := c.doRequest(ctx, http.MethodGet, "/api/series", nil, &raw); err != nil {
		return nil, err
	}

	samples := make([]domain.TelemetrySample, 0, len(raw))
	for i, r := range raw {
		s, err := domain.ParseSample(r)
		if err != nil {
			return nil, fmt.Errorf("series entry %d: %w", i, err)
		}
		samples = append(samples, s)
	}
	c.logger.Debug("fetched series", "samples", len(samples))
	return samples, nil
}

func (c *Client) doRequest(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("backend API error: %s %s: status %d: %s", method, path, resp.StatusCode, bytes.TrimSpace(msg))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
