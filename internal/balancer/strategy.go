package balancer

import (
	"math/rand"
	"sync"

	"github.com/zycxfyh/adaptive-balancer/internal/registry"
)

const (
	AlgorithmRoundRobin         = "round_robin"
	AlgorithmLeastConnections   = "least_connections"
	AlgorithmWeightedRoundRobin = "weighted_round_robin"
	AlgorithmIPHash             = "ip_hash"
	AlgorithmPowerOfTwo         = "power_of_two"
	AlgorithmConsistentHashing  = "consistent_hashing"
	AlgorithmLeastResponseTime  = "least_response_time"
	AlgorithmAdaptive           = "adaptive"
)

// Strategy picks one instance from the currently-healthy subset. The healthy
// slice is never empty (the balancer handles that case) and is sorted by
// instance id.
type Strategy interface {
	Name() string
	Select(clientKey string, healthy []*registry.Instance) *registry.Instance
}

// fleetObserver is implemented by strategies that keep per-instance state
// (sticky maps, hash rings) and need add/remove notifications.
type fleetObserver interface {
	InstanceAdded(inst *registry.Instance)
	InstanceRemoved(id string)
}

// NewStrategy builds the strategy for a configured algorithm name.
func NewStrategy(algorithm string, reg *registry.Registry, virtualNodes int) (Strategy, error) {
	switch algorithm {
	case AlgorithmRoundRobin:
		return &roundRobin{}, nil
	case AlgorithmLeastConnections:
		return leastConnections{}, nil
	case AlgorithmWeightedRoundRobin:
		return &weightedRoundRobin{}, nil
	case AlgorithmIPHash:
		return newIPHash(), nil
	case AlgorithmPowerOfTwo:
		return &powerOfTwo{}, nil
	case AlgorithmConsistentHashing:
		return newHashRing(virtualNodes), nil
	case AlgorithmLeastResponseTime:
		return leastResponseTime{}, nil
	case AlgorithmAdaptive:
		return adaptive{registry: reg}, nil
	default:
		return nil, ErrUnknownAlgorithm
	}
}

// roundRobin cycles over the healthy list. The index persists across calls
// and wraps modulo the current list size, so a shrinking list never indexes
// out of range.
type roundRobin struct {
	mu   sync.Mutex
	next int
}

func (s *roundRobin) Name() string { return AlgorithmRoundRobin }

func (s *roundRobin) Select(_ string, healthy []*registry.Instance) *registry.Instance {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.next >= len(healthy) {
		s.next = 0
	}
	inst := healthy[s.next]
	s.next++
	return inst
}

// leastConnections picks the instance with the fewest active connections,
// first match winning ties.
type leastConnections struct{}

func (leastConnections) Name() string { return AlgorithmLeastConnections }

func (leastConnections) Select(_ string, healthy []*registry.Instance) *registry.Instance {
	best := healthy[0]
	bestConns := best.Connections()
	for _, inst := range healthy[1:] {
		if conns := inst.Connections(); conns < bestConns {
			best = inst
			bestConns = conns
		}
	}
	return best
}

// weightedRoundRobin draws an instance with probability proportional to its
// base weight, using a cumulative-weight threshold against a uniform draw.
type weightedRoundRobin struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

func (s *weightedRoundRobin) Name() string { return AlgorithmWeightedRoundRobin }

func (s *weightedRoundRobin) Select(_ string, healthy []*registry.Instance) *registry.Instance {
	var total float64
	for _, inst := range healthy {
		total += inst.BaseWeight()
	}

	s.mu.Lock()
	draw := s.random() * total
	s.mu.Unlock()

	var cumulative float64
	for _, inst := range healthy {
		cumulative += inst.BaseWeight()
		if draw < cumulative {
			return inst
		}
	}
	return healthy[len(healthy)-1]
}

func (s *weightedRoundRobin) random() float64 {
	if s.rnd == nil {
		return rand.Float64()
	}
	return s.rnd.Float64()
}

// powerOfTwo draws two distinct instances uniformly at random and keeps the
// one with fewer connections.
type powerOfTwo struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

func (s *powerOfTwo) Name() string { return AlgorithmPowerOfTwo }

func (s *powerOfTwo) Select(_ string, healthy []*registry.Instance) *registry.Instance {
	if len(healthy) == 1 {
		return healthy[0]
	}

	s.mu.Lock()
	first := s.intn(len(healthy))
	second := s.intn(len(healthy) - 1)
	s.mu.Unlock()

	if second >= first {
		second++
	}

	a, b := healthy[first], healthy[second]
	if b.Connections() < a.Connections() {
		return b
	}
	return a
}

func (s *powerOfTwo) intn(n int) int {
	if s.rnd == nil {
		return rand.Intn(n)
	}
	return s.rnd.Intn(n)
}

// leastResponseTime picks the instance with the lowest mean latency over its
// sliding window.
type leastResponseTime struct{}

func (leastResponseTime) Name() string { return AlgorithmLeastResponseTime }

func (leastResponseTime) Select(_ string, healthy []*registry.Instance) *registry.Instance {
	best := healthy[0]
	bestMean := best.MeanResponseTime()
	for _, inst := range healthy[1:] {
		if mean := inst.MeanResponseTime(); mean < bestMean {
			best = inst
			bestMean = mean
		}
	}
	return best
}

// adaptive scores every healthy instance by
// effectiveWeight / (1 + meanResponseTime + loadFactor + connections)
// and picks the highest score.
type adaptive struct {
	registry *registry.Registry
}

func (adaptive) Name() string { return AlgorithmAdaptive }

func (s adaptive) Select(_ string, healthy []*registry.Instance) *registry.Instance {
	best := healthy[0]
	bestScore := best.Score(s.registry.LoadFactor(best))
	for _, inst := range healthy[1:] {
		if score := inst.Score(s.registry.LoadFactor(inst)); score > bestScore {
			best = inst
			bestScore = score
		}
	}
	return best
}
