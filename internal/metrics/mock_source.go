package metrics

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/zycxfyh/adaptive-balancer/pkg/models"
)

type MockSourceConfig struct {
	BaseCPU    float64
	BaseMemory float64
	Variance   float64
}

// MockSource produces synthetic load signals around a settable baseline,
// for demo mode and tests.
type MockSource struct {
	mu          sync.Mutex
	baseCPU     float64
	baseMemory  float64
	requestRate float64
	errorRate   float64
	variance    float64
	failErr     error
}

func NewMockSource(cfg MockSourceConfig) *MockSource {
	baseCPU := cfg.BaseCPU
	if baseCPU == 0 {
		baseCPU = 0.5
	}
	baseMemory := cfg.BaseMemory
	if baseMemory == 0 {
		baseMemory = 0.6
	}
	variance := cfg.Variance
	if variance == 0 {
		variance = 0.1
	}

	return &MockSource{
		baseCPU:     baseCPU,
		baseMemory:  baseMemory,
		requestRate: 100,
		variance:    variance,
	}
}

func (s *MockSource) SetBaseCPU(cpu float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.baseCPU = cpu
}

func (s *MockSource) SetBaseMemory(memory float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.baseMemory = memory
}

func (s *MockSource) SetErrorRate(rate float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errorRate = rate
}

func (s *MockSource) SetRequestRate(rate float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requestRate = rate
}

// SetShouldFail makes CurrentMetrics return the given error (nil to reset).
func (s *MockSource) SetShouldFail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failErr = err
}

func (s *MockSource) CurrentMetrics(ctx context.Context) (models.MetricsSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failErr != nil {
		return models.MetricsSnapshot{}, s.failErr
	}

	return models.MetricsSnapshot{
		CPU:         s.jitter(s.baseCPU),
		Memory:      s.jitter(s.baseMemory),
		RequestRate: s.requestRate,
		ErrorRate:   s.errorRate,
		Timestamp:   time.Now(),
	}, nil
}

func (s *MockSource) jitter(base float64) float64 {
	value := base + (rand.Float64()*2-1)*s.variance
	if value < 0 {
		value = 0
	}
	if value > 1 {
		value = 1
	}
	return value
}

func (s *MockSource) HealthCheck(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failErr
}

func (s *MockSource) Close() error {
	return nil
}
