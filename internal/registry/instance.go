package registry

import (
	"sync"
	"sync/atomic"

	"github.com/montanaflynn/stats"
)

const defaultSampleWindow = 100

// Instance is one running unit of the balanced service. Counters are atomic
// and the sample windows sit behind their own mutex, so two instances never
// contend with each other and selection never blocks on an unrelated update.
type Instance struct {
	ID       string
	URL      string
	Metadata map[string]string

	baseWeight float64

	healthy     atomic.Bool
	connections atomic.Int64

	mu              sync.Mutex
	responseTimes   []float64
	loadFactors     []float64
	effectiveWeight float64
	windowSize      int
}

func NewInstance(id, url string, weight float64, metadata map[string]string, windowSize int) *Instance {
	if weight <= 0 {
		weight = 1.0
	}
	if windowSize <= 0 {
		windowSize = defaultSampleWindow
	}

	inst := &Instance{
		ID:              id,
		URL:             url,
		Metadata:        metadata,
		baseWeight:      weight,
		effectiveWeight: weight,
		windowSize:      windowSize,
	}
	inst.healthy.Store(true)
	return inst
}

func (i *Instance) Healthy() bool {
	return i.healthy.Load()
}

// SetHealthy updates the health flag and reports whether it changed.
func (i *Instance) SetHealthy(healthy bool) bool {
	return i.healthy.Swap(healthy) != healthy
}

func (i *Instance) Connections() int64 {
	return i.connections.Load()
}

func (i *Instance) AcquireConnection() {
	i.connections.Add(1)
}

// ReleaseConnection decrements the connection count, never below zero.
func (i *Instance) ReleaseConnection() {
	for {
		current := i.connections.Load()
		if current <= 0 {
			return
		}
		if i.connections.CompareAndSwap(current, current-1) {
			return
		}
	}
}

func (i *Instance) BaseWeight() float64 {
	return i.baseWeight
}

func (i *Instance) EffectiveWeight() float64 {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.effectiveWeight
}

// RecordResponseTime pushes one latency sample (milliseconds) and the load
// factor observed at completion time, then revises the effective weight:
// max(0.1, baseWeight / (1 + meanResponseTime + meanLoadFactor)).
func (i *Instance) RecordResponseTime(ms, loadFactor float64) {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.responseTimes = appendBounded(i.responseTimes, ms, i.windowSize)
	i.loadFactors = appendBounded(i.loadFactors, loadFactor, i.windowSize)

	meanRT, _ := stats.Mean(i.responseTimes)
	meanLoad, _ := stats.Mean(i.loadFactors)

	weight := i.baseWeight / (1 + meanRT + meanLoad)
	if weight < 0.1 {
		weight = 0.1
	}
	i.effectiveWeight = weight
}

// MeanResponseTime returns the mean latency over the sliding window, in
// milliseconds. Zero when no samples have been recorded.
func (i *Instance) MeanResponseTime() float64 {
	i.mu.Lock()
	defer i.mu.Unlock()

	if len(i.responseTimes) == 0 {
		return 0
	}
	mean, err := stats.Mean(i.responseTimes)
	if err != nil {
		return 0
	}
	return mean
}

// Score is the adaptive selection score: higher is better.
func (i *Instance) Score(loadFactor float64) float64 {
	meanRT := i.MeanResponseTime()
	conns := float64(i.Connections())
	return i.EffectiveWeight() / (1 + meanRT + loadFactor + conns)
}

func appendBounded(samples []float64, value float64, limit int) []float64 {
	samples = append(samples, value)
	if len(samples) > limit {
		samples = samples[len(samples)-limit:]
	}
	return samples
}

// Stats is a read-only snapshot of an instance for the operational surface.
type Stats struct {
	ID               string            `json:"id"`
	URL              string            `json:"url"`
	Healthy          bool              `json:"healthy"`
	Connections      int64             `json:"connections"`
	BaseWeight       float64           `json:"base_weight"`
	EffectiveWeight  float64           `json:"effective_weight"`
	MeanResponseTime float64           `json:"mean_response_time_ms"`
	LoadFactor       float64           `json:"load_factor"`
	Metadata         map[string]string `json:"metadata,omitempty"`
}

func (i *Instance) Snapshot(loadFactor float64) Stats {
	return Stats{
		ID:               i.ID,
		URL:              i.URL,
		Healthy:          i.Healthy(),
		Connections:      i.Connections(),
		BaseWeight:       i.baseWeight,
		EffectiveWeight:  i.EffectiveWeight(),
		MeanResponseTime: i.MeanResponseTime(),
		LoadFactor:       loadFactor,
		Metadata:         i.Metadata,
	}
}
