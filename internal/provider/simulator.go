package provider

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/zycxfyh/adaptive-balancer/internal/logger"
	"github.com/zycxfyh/adaptive-balancer/pkg/models"
)

type SimulatorConfig struct {
	ProvisionTime time.Duration
	BasePort      int
}

// Simulator is an in-memory lifecycle provider for demo mode and tests. It
// provisions fake instances with a configurable delay and supports failure
// injection for the executor's partial-success path.
type Simulator struct {
	provisionTime time.Duration
	basePort      int

	mu        sync.Mutex
	running   map[string]*InstanceInfo
	services  map[string]string // instance id -> service
	nextPort  int
	failNext  int
	stopErr   error
}

func NewSimulator(cfg SimulatorConfig) *Simulator {
	if cfg.ProvisionTime < 0 {
		cfg.ProvisionTime = 0
	}
	if cfg.BasePort <= 0 {
		cfg.BasePort = 9100
	}
	return &Simulator{
		provisionTime: cfg.ProvisionTime,
		basePort:      cfg.BasePort,
		running:       make(map[string]*InstanceInfo),
		services:      make(map[string]string),
		nextPort:      cfg.BasePort,
	}
}

// FailNextStarts makes the following n StartInstance calls fail.
func (s *Simulator) FailNextStarts(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = n
}

// FailStops makes StopInstance return the given error (nil to reset).
func (s *Simulator) FailStops(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopErr = err
}

func (s *Simulator) StartInstance(ctx context.Context, serviceName string, opts StartOptions) (*InstanceInfo, error) {
	if s.provisionTime > 0 {
		select {
		case <-ctx.Done():
			return nil, &ProviderError{Op: "start", Err: ErrCallTimeout}
		case <-time.After(s.provisionTime):
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failNext > 0 {
		s.failNext--
		return nil, &ProviderError{Op: "start", Err: ErrStartFailed}
	}

	info := &InstanceInfo{
		ID:     models.NewUUID(),
		URL:    fmt.Sprintf("http://127.0.0.1:%d", s.nextPort),
		Weight: 1.0,
		Metadata: map[string]string{
			"service": serviceName,
			"index":   fmt.Sprintf("%d", opts.Index),
		},
	}
	s.nextPort++
	s.running[info.ID] = info
	s.services[info.ID] = serviceName

	logger.WithInstance(info.ID).Debugf("Simulator provisioned instance at %s", info.URL)
	return info, nil
}

func (s *Simulator) StopInstance(ctx context.Context, instanceID string) (bool, error) {
	select {
	case <-ctx.Done():
		return false, &ProviderError{Op: "stop", InstanceID: instanceID, Err: ErrCallTimeout}
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopErr != nil {
		return false, &ProviderError{Op: "stop", InstanceID: instanceID, Err: s.stopErr}
	}

	if _, ok := s.running[instanceID]; !ok {
		return false, nil
	}
	delete(s.running, instanceID)
	delete(s.services, instanceID)
	return true, nil
}

func (s *Simulator) GetRunningInstances(ctx context.Context, serviceName string) ([]*InstanceInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*InstanceInfo, 0, len(s.running))
	for id, info := range s.running {
		if s.services[id] == serviceName {
			out = append(out, info)
		}
	}
	return out, nil
}

func (s *Simulator) HealthCheck(ctx context.Context) error {
	return nil
}

// RunningCount reports the simulator fleet size, for tests and demo output.
func (s *Simulator) RunningCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.running)
}
