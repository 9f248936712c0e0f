package policy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zycxfyh/adaptive-balancer/pkg/config"
	"github.com/zycxfyh/adaptive-balancer/pkg/models"
)

func snapshot(cpu, memory, rate float64) models.MetricsSnapshot {
	return models.MetricsSnapshot{
		CPU:         cpu,
		Memory:      memory,
		RequestRate: rate,
		Timestamp:   time.Now(),
	}
}

func TestCPUPolicy_ScaleUp(t *testing.T) {
	p := NewCPUPolicy(config.CPUPolicyConfig{HighThreshold: 0.8, LowThreshold: 0.3, Target: 0.7})

	tests := []struct {
		name        string
		cpu         float64
		current     int
		shouldScale bool
		target      int
	}{
		{"below threshold", 0.75, 4, false, 0},
		{"sizes to target utilization", 0.90, 4, true, 6}, // ceil(4*0.9/0.7)
		{"always proposes at least one more", 0.85, 1, true, 2},
		{"saturated", 1.0, 6, true, 9},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vote, err := p.ShouldScaleUp(snapshot(tt.cpu, 0.5, 0), tt.current)
			require.NoError(t, err)
			assert.Equal(t, tt.shouldScale, vote.ShouldScale)
			if tt.shouldScale {
				assert.Equal(t, tt.target, vote.TargetInstances)
				assert.Greater(t, vote.Confidence, 0.0)
				assert.LessOrEqual(t, vote.Confidence, 1.0)
			}
		})
	}
}

func TestCPUPolicy_ScaleDown(t *testing.T) {
	p := NewCPUPolicy(config.CPUPolicyConfig{HighThreshold: 0.8, LowThreshold: 0.3, Target: 0.7})

	vote, err := p.ShouldScaleDown(snapshot(0.1, 0.5, 0), 6)
	require.NoError(t, err)
	assert.True(t, vote.ShouldScale)
	assert.Equal(t, 1, vote.TargetInstances) // ceil(6*0.1/0.7)

	vote, err = p.ShouldScaleDown(snapshot(0.5, 0.5, 0), 6)
	require.NoError(t, err)
	assert.False(t, vote.ShouldScale)
}

func TestMemoryPolicy_StepsByOne(t *testing.T) {
	p := NewMemoryPolicy(config.MemoryPolicyConfig{HighThreshold: 0.85, LowThreshold: 0.4})

	up, err := p.ShouldScaleUp(snapshot(0.5, 0.92, 0), 4)
	require.NoError(t, err)
	assert.True(t, up.ShouldScale)
	assert.Equal(t, 5, up.TargetInstances)

	down, err := p.ShouldScaleDown(snapshot(0.5, 0.2, 0), 4)
	require.NoError(t, err)
	assert.True(t, down.ShouldScale)
	assert.Equal(t, 3, down.TargetInstances)
}

func TestMemoryPolicy_NeverBelowOne(t *testing.T) {
	p := NewMemoryPolicy(config.MemoryPolicyConfig{})

	vote, err := p.ShouldScaleDown(snapshot(0.5, 0.1, 0), 1)
	require.NoError(t, err)
	assert.False(t, vote.ShouldScale)
}

func TestRequestRatePolicy_SizesFromThroughput(t *testing.T) {
	p := NewRequestRatePolicy(config.RequestRatePolicyConfig{RatePerInstance: 100})

	up, err := p.ShouldScaleUp(snapshot(0.5, 0.5, 450), 3)
	require.NoError(t, err)
	assert.True(t, up.ShouldScale)
	assert.Equal(t, 5, up.TargetInstances)

	down, err := p.ShouldScaleDown(snapshot(0.5, 0.5, 150), 5)
	require.NoError(t, err)
	assert.True(t, down.ShouldScale)
	assert.Equal(t, 2, down.TargetInstances)

	hold, err := p.ShouldScaleUp(snapshot(0.5, 0.5, 250), 3)
	require.NoError(t, err)
	assert.False(t, hold.ShouldScale)
}
