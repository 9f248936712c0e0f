package fusion

import (
	"math"

	"github.com/zycxfyh/adaptive-balancer/pkg/models"
)

type CostGateConfig struct {
	InstanceCostPerHour float64
	EfficiencyThreshold float64
	ReductionFactor     float64
}

// CostGate sanity-checks a scale-up before it executes. When the estimated
// performance gain per dollar falls below the efficiency threshold, the
// number of instances to add is shrunk by the reduction factor, never below
// one.
type CostGate struct {
	config CostGateConfig
}

func NewCostGate(cfg CostGateConfig) *CostGate {
	if cfg.InstanceCostPerHour <= 0 {
		cfg.InstanceCostPerHour = 0.10
	}
	if cfg.EfficiencyThreshold <= 0 {
		cfg.EfficiencyThreshold = 0.6
	}
	if cfg.ReductionFactor <= 0 {
		cfg.ReductionFactor = 0.3
	}
	return &CostGate{config: cfg}
}

// Adjust returns the possibly-reduced target and whether it was reduced.
func (g *CostGate) Adjust(current, target int, snapshot models.MetricsSnapshot) (int, bool) {
	toAdd := target - current
	if toAdd <= 1 {
		return target, false
	}

	if g.efficiency(current, toAdd, snapshot) >= g.config.EfficiencyThreshold {
		return target, false
	}

	reduced := int(math.Round(float64(toAdd) * (1 - g.config.ReductionFactor)))
	if reduced < 1 {
		reduced = 1
	}
	return current + reduced, reduced != toAdd
}

// efficiency estimates performance gain per unit cost. Gain is the expected
// drop in per-instance CPU from spreading the same load over more instances.
func (g *CostGate) efficiency(current, toAdd int, snapshot models.MetricsSnapshot) float64 {
	if current <= 0 {
		return 1.0
	}

	relieved := snapshot.CPU - snapshot.CPU*float64(current)/float64(current+toAdd)
	cost := float64(toAdd) * g.config.InstanceCostPerHour
	if cost <= 0 {
		return 1.0
	}
	return relieved / cost
}
