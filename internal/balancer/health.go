package balancer

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/zycxfyh/adaptive-balancer/internal/events"
	"github.com/zycxfyh/adaptive-balancer/internal/logger"
	"github.com/zycxfyh/adaptive-balancer/internal/registry"
)

type HealthCheckerConfig struct {
	Registry  *registry.Registry
	Interval  time.Duration
	Timeout   time.Duration
	Path      string
	Publisher *events.Publisher
}

// HealthChecker probes every registered instance on a fixed interval. A
// failed or timed-out probe flips the instance unhealthy, a successful probe
// flips it back. It never removes an instance; removal is exclusively the
// scaling executor's job.
type HealthChecker struct {
	registry  *registry.Registry
	interval  time.Duration
	timeout   time.Duration
	path      string
	publisher *events.Publisher
	client    *http.Client

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.Mutex
}

func NewHealthChecker(cfg HealthCheckerConfig) *HealthChecker {
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Second
	}
	if cfg.Path == "" {
		cfg.Path = "/health"
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &HealthChecker{
		registry:  cfg.Registry,
		interval:  cfg.Interval,
		timeout:   cfg.Timeout,
		path:      cfg.Path,
		publisher: cfg.Publisher,
		client:    &http.Client{Timeout: cfg.Timeout},
		ctx:       ctx,
		cancel:    cancel,
	}
}

func (h *HealthChecker) Start() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.running {
		return
	}
	h.running = true

	h.wg.Add(1)
	go h.run()
	logger.Info("Health checker started")
}

func (h *HealthChecker) Stop() {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return
	}
	h.running = false
	h.mu.Unlock()

	h.cancel()
	h.wg.Wait()
	logger.Info("Health checker stopped")
}

func (h *HealthChecker) run() {
	defer h.wg.Done()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	h.ProbeAll()

	for {
		select {
		case <-h.ctx.Done():
			return
		case <-ticker.C:
			h.ProbeAll()
		}
	}
}

// ProbeAll issues one probe per registered instance concurrently and waits
// for the round to complete.
func (h *HealthChecker) ProbeAll() {
	var wg sync.WaitGroup
	for _, inst := range h.registry.List() {
		wg.Add(1)
		go func(inst *registry.Instance) {
			defer wg.Done()
			h.probe(inst)
		}(inst)
	}
	wg.Wait()
}

func (h *HealthChecker) probe(inst *registry.Instance) {
	ctx, cancel := context.WithTimeout(h.ctx, h.timeout)
	defer cancel()

	healthy := false
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, inst.URL+h.path, nil)
	if err == nil {
		resp, err := h.client.Do(req)
		if err == nil {
			resp.Body.Close()
			healthy = resp.StatusCode < http.StatusBadRequest
		}
	}

	if !inst.SetHealthy(healthy) {
		return
	}

	if healthy {
		logger.WithInstance(inst.ID).Info("Instance recovered, back in rotation")
		if h.publisher != nil {
			h.publisher.InstanceHealthy(inst.ID)
		}
	} else {
		logger.WithInstance(inst.ID).Warn("Instance failed health check, out of rotation")
		if h.publisher != nil {
			h.publisher.InstanceUnhealthy(inst.ID)
		}
	}
}
