package metrics

import (
	"context"
	"errors"

	"github.com/zycxfyh/adaptive-balancer/pkg/models"
)

var (
	ErrCollectionFailed = errors.New("metrics collection failed")
	ErrTimeout          = errors.New("metrics collection timeout")
	ErrInvalidResponse  = errors.New("invalid response from metrics source")
)

// Source supplies point-in-time snapshots of the load signals the scaling
// policies vote on.
type Source interface {
	// CurrentMetrics fetches a fresh snapshot.
	CurrentMetrics(ctx context.Context) (models.MetricsSnapshot, error)

	// HealthCheck verifies the source can reach its backing data.
	HealthCheck(ctx context.Context) error

	// Close releases any resources held by the source.
	Close() error
}
