package policy

import (
	"fmt"
	"math"

	"github.com/zycxfyh/adaptive-balancer/pkg/config"
	"github.com/zycxfyh/adaptive-balancer/pkg/models"
)

// CPUPolicy votes to scale when average CPU crosses its thresholds. The
// proposed target is the instance count that would bring CPU back to the
// configured target utilization.
type CPUPolicy struct {
	high   float64
	low    float64
	target float64
}

func NewCPUPolicy(cfg config.CPUPolicyConfig) *CPUPolicy {
	if cfg.HighThreshold == 0 {
		cfg.HighThreshold = 0.8
	}
	if cfg.LowThreshold == 0 {
		cfg.LowThreshold = 0.3
	}
	if cfg.Target == 0 {
		cfg.Target = 0.7
	}
	return &CPUPolicy{high: cfg.HighThreshold, low: cfg.LowThreshold, target: cfg.Target}
}

func (p *CPUPolicy) Name() string { return "cpu" }

func (p *CPUPolicy) ShouldScaleUp(snapshot models.MetricsSnapshot, current int) (models.PolicyVote, error) {
	if snapshot.CPU < p.high {
		return noVote(p.Name()), nil
	}

	target := idealInstances(snapshot.CPU, p.target, current)
	if target <= current {
		target = current + 1
	}

	// Confidence grows with how far past the threshold we are.
	confidence := clampConfidence(0.5 + (snapshot.CPU-p.high)/(1-p.high)*0.5)

	return models.PolicyVote{
		Policy:          p.Name(),
		ShouldScale:     true,
		TargetInstances: target,
		Confidence:      confidence,
		Reasoning:       fmt.Sprintf("cpu %.0f%% above threshold %.0f%%", snapshot.CPU*100, p.high*100),
	}, nil
}

func (p *CPUPolicy) ShouldScaleDown(snapshot models.MetricsSnapshot, current int) (models.PolicyVote, error) {
	if snapshot.CPU > p.low {
		return noVote(p.Name()), nil
	}

	target := idealInstances(snapshot.CPU, p.target, current)
	if target >= current {
		return noVote(p.Name()), nil
	}

	confidence := clampConfidence(0.4 + (p.low-snapshot.CPU)/p.low*0.4)

	return models.PolicyVote{
		Policy:          p.Name(),
		ShouldScale:     true,
		TargetInstances: target,
		Confidence:      confidence,
		Reasoning:       fmt.Sprintf("cpu %.0f%% below threshold %.0f%%", snapshot.CPU*100, p.low*100),
	}, nil
}

// MemoryPolicy is the memory analogue of CPUPolicy, stepping one instance at
// a time since memory pressure rarely scales linearly with fleet size.
type MemoryPolicy struct {
	high float64
	low  float64
}

func NewMemoryPolicy(cfg config.MemoryPolicyConfig) *MemoryPolicy {
	if cfg.HighThreshold == 0 {
		cfg.HighThreshold = 0.85
	}
	if cfg.LowThreshold == 0 {
		cfg.LowThreshold = 0.4
	}
	return &MemoryPolicy{high: cfg.HighThreshold, low: cfg.LowThreshold}
}

func (p *MemoryPolicy) Name() string { return "memory" }

func (p *MemoryPolicy) ShouldScaleUp(snapshot models.MetricsSnapshot, current int) (models.PolicyVote, error) {
	if snapshot.Memory < p.high {
		return noVote(p.Name()), nil
	}

	confidence := clampConfidence(0.5 + (snapshot.Memory-p.high)/(1-p.high)*0.5)

	return models.PolicyVote{
		Policy:          p.Name(),
		ShouldScale:     true,
		TargetInstances: current + 1,
		Confidence:      confidence,
		Reasoning:       fmt.Sprintf("memory %.0f%% above threshold %.0f%%", snapshot.Memory*100, p.high*100),
	}, nil
}

func (p *MemoryPolicy) ShouldScaleDown(snapshot models.MetricsSnapshot, current int) (models.PolicyVote, error) {
	if snapshot.Memory > p.low || current <= 1 {
		return noVote(p.Name()), nil
	}

	return models.PolicyVote{
		Policy:          p.Name(),
		ShouldScale:     true,
		TargetInstances: current - 1,
		Confidence:      0.5,
		Reasoning:       fmt.Sprintf("memory %.0f%% below threshold %.0f%%", snapshot.Memory*100, p.low*100),
	}, nil
}

// RequestRatePolicy sizes the fleet from throughput: one instance per
// configured requests-per-second budget.
type RequestRatePolicy struct {
	ratePerInstance float64
}

func NewRequestRatePolicy(cfg config.RequestRatePolicyConfig) *RequestRatePolicy {
	if cfg.RatePerInstance <= 0 {
		cfg.RatePerInstance = 100.0
	}
	return &RequestRatePolicy{ratePerInstance: cfg.RatePerInstance}
}

func (p *RequestRatePolicy) Name() string { return "request_rate" }

func (p *RequestRatePolicy) ShouldScaleUp(snapshot models.MetricsSnapshot, current int) (models.PolicyVote, error) {
	target := p.ideal(snapshot.RequestRate)
	if target <= current {
		return noVote(p.Name()), nil
	}

	return models.PolicyVote{
		Policy:          p.Name(),
		ShouldScale:     true,
		TargetInstances: target,
		Confidence:      0.7,
		Reasoning:       fmt.Sprintf("request rate %.0f/s needs %d instances", snapshot.RequestRate, target),
	}, nil
}

func (p *RequestRatePolicy) ShouldScaleDown(snapshot models.MetricsSnapshot, current int) (models.PolicyVote, error) {
	target := p.ideal(snapshot.RequestRate)
	if target >= current {
		return noVote(p.Name()), nil
	}

	return models.PolicyVote{
		Policy:          p.Name(),
		ShouldScale:     true,
		TargetInstances: target,
		Confidence:      0.6,
		Reasoning:       fmt.Sprintf("request rate %.0f/s only needs %d instances", snapshot.RequestRate, target),
	}, nil
}

func (p *RequestRatePolicy) ideal(rate float64) int {
	target := int(math.Ceil(rate / p.ratePerInstance))
	if target < 1 {
		target = 1
	}
	return target
}

func idealInstances(usage, target float64, current int) int {
	if usage <= 0 || target <= 0 || current <= 0 {
		return current
	}
	ideal := int(math.Ceil(float64(current) * usage / target))
	if ideal < 1 {
		ideal = 1
	}
	return ideal
}
