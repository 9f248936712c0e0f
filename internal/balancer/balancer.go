package balancer

import (
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/zycxfyh/adaptive-balancer/internal/events"
	"github.com/zycxfyh/adaptive-balancer/internal/logger"
	"github.com/zycxfyh/adaptive-balancer/internal/registry"
)

// InstanceOptions carries the optional fields of AddInstance.
type InstanceOptions struct {
	Weight   float64
	Metadata map[string]string
}

type Config struct {
	Registry           *registry.Registry
	Algorithm          string
	ResponseTimeWindow int
	VirtualNodes       int
	Publisher          *events.Publisher
}

// LoadBalancer composes the registry, the health checker and a selection
// strategy. Selection increments the chosen instance's connection count;
// callers must pair every Select with a Release.
type LoadBalancer struct {
	registry  *registry.Registry
	strategy  Strategy
	window    int
	publisher *events.Publisher
}

func New(cfg Config) (*LoadBalancer, error) {
	if cfg.Registry == nil {
		cfg.Registry = registry.New()
	}
	if cfg.Algorithm == "" {
		cfg.Algorithm = AlgorithmAdaptive
	}

	strategy, err := NewStrategy(cfg.Algorithm, cfg.Registry, cfg.VirtualNodes)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", err, cfg.Algorithm)
	}

	return &LoadBalancer{
		registry:  cfg.Registry,
		strategy:  strategy,
		window:    cfg.ResponseTimeWindow,
		publisher: cfg.Publisher,
	}, nil
}

func (lb *LoadBalancer) Registry() *registry.Registry {
	return lb.registry
}

func (lb *LoadBalancer) Algorithm() string {
	return lb.strategy.Name()
}

// AddInstance registers an instance as healthy with zero connections.
// Re-adding an existing id overwrites it.
func (lb *LoadBalancer) AddInstance(id, rawURL string, opts InstanceOptions) {
	inst := registry.NewInstance(id, rawURL, opts.Weight, opts.Metadata, lb.window)
	lb.registry.Add(inst)

	if observer, ok := lb.strategy.(fleetObserver); ok {
		observer.InstanceAdded(inst)
	}

	logger.WithInstance(id).Infof("Instance registered: %s (weight %.1f)", rawURL, inst.BaseWeight())
	if lb.publisher != nil {
		lb.publisher.InstanceAdded(id, rawURL)
	}
}

// RemoveInstance deletes an instance from the registry and from any sticky
// routing state.
func (lb *LoadBalancer) RemoveInstance(id string) error {
	inst := lb.registry.Remove(id)
	if inst == nil {
		return fmt.Errorf("%w: %s", ErrInstanceNotFound, id)
	}

	if observer, ok := lb.strategy.(fleetObserver); ok {
		observer.InstanceRemoved(id)
	}

	logger.WithInstance(id).Info("Instance deregistered")
	if lb.publisher != nil {
		lb.publisher.InstanceRemoved(id)
	}
	return nil
}

// Select picks one healthy instance for the given client key and acquires a
// connection on it. Fails with ErrNoHealthyInstance when the healthy subset
// is empty; the caller decides whether to retry.
func (lb *LoadBalancer) Select(clientKey string) (*registry.Instance, error) {
	healthy := lb.registry.Healthy()
	if len(healthy) == 0 {
		return nil, ErrNoHealthyInstance
	}

	inst := lb.strategy.Select(clientKey, healthy)
	inst.AcquireConnection()
	return inst, nil
}

// Release ends one request against an instance. Unknown ids are ignored; the
// instance may have been removed while the request was in flight.
func (lb *LoadBalancer) Release(id string) {
	if inst, ok := lb.registry.Get(id); ok {
		inst.ReleaseConnection()
	}
}

// RecordResponseTime feeds a completed request's latency into the instance's
// sliding window, revising its effective weight.
func (lb *LoadBalancer) RecordResponseTime(id string, ms float64) {
	if inst, ok := lb.registry.Get(id); ok {
		inst.RecordResponseTime(ms, lb.registry.LoadFactor(inst))
	}
}

// Forward proxies one request to a selected instance, then releases the
// connection and records the observed latency.
func (lb *LoadBalancer) Forward(w http.ResponseWriter, r *http.Request, clientKey string) error {
	inst, err := lb.Select(clientKey)
	if err != nil {
		return err
	}

	target, err := url.Parse(inst.URL)
	if err != nil {
		lb.Release(inst.ID)
		return fmt.Errorf("invalid instance url %q: %w", inst.URL, err)
	}

	start := time.Now()
	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logger.WithInstance(inst.ID).Warnf("Proxy error: %v", err)
		w.WriteHeader(http.StatusBadGateway)
	}

	proxy.ServeHTTP(w, r)

	elapsed := float64(time.Since(start).Microseconds()) / 1000.0
	lb.Release(inst.ID)
	lb.RecordResponseTime(inst.ID, elapsed)
	return nil
}

// Stats snapshots every registered instance.
func (lb *LoadBalancer) Stats() []registry.Stats {
	all := lb.registry.List()
	out := make([]registry.Stats, 0, len(all))
	for _, inst := range all {
		out = append(out, inst.Snapshot(lb.registry.LoadFactor(inst)))
	}
	return out
}
