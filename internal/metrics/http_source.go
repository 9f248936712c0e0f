package metrics

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/zycxfyh/adaptive-balancer/internal/logger"
	"github.com/zycxfyh/adaptive-balancer/pkg/models"
)

type HTTPSourceConfig struct {
	Endpoint string
	Timeout  time.Duration
}

// HTTPSource polls an HTTP endpoint for the current load signals.
type HTTPSource struct {
	client   *http.Client
	endpoint string
}

func NewHTTPSource(cfg HTTPSourceConfig) *HTTPSource {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}

	return &HTTPSource{
		client: &http.Client{
			Timeout: timeout,
		},
		endpoint: cfg.Endpoint,
	}
}

type metricsResponse struct {
	CPU         float64 `json:"cpu"`
	Memory      float64 `json:"memory"`
	RequestRate float64 `json:"request_rate"`
	ErrorRate   float64 `json:"error_rate"`
	Timestamp   string  `json:"timestamp"`
}

func (s *HTTPSource) CurrentMetrics(ctx context.Context) (models.MetricsSnapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint, nil)
	if err != nil {
		return models.MetricsSnapshot{}, fmt.Errorf("%w: failed to create request: %v", ErrCollectionFailed, err)
	}
	req.Header.Set("Accept", "application/json")

	logger.Debugf("Collecting metrics from %s", s.endpoint)

	resp, err := s.client.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return models.MetricsSnapshot{}, ErrTimeout
		}
		return models.MetricsSnapshot{}, fmt.Errorf("%w: %v", ErrCollectionFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.MetricsSnapshot{}, fmt.Errorf("%w: unexpected status code %d", ErrCollectionFailed, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.MetricsSnapshot{}, fmt.Errorf("%w: failed to read response body: %v", ErrCollectionFailed, err)
	}

	var parsed metricsResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return models.MetricsSnapshot{}, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}

	timestamp := time.Now()
	if parsed.Timestamp != "" {
		if t, err := time.Parse(time.RFC3339, parsed.Timestamp); err == nil {
			timestamp = t
		}
	}

	return models.MetricsSnapshot{
		CPU:         parsed.CPU,
		Memory:      parsed.Memory,
		RequestRate: parsed.RequestRate,
		ErrorRate:   parsed.ErrorRate,
		Timestamp:   timestamp,
	}, nil
}

func (s *HTTPSource) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

func (s *HTTPSource) Close() error {
	s.client.CloseIdleConnections()
	return nil
}
