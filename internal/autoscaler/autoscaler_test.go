package autoscaler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zycxfyh/adaptive-balancer/internal/balancer"
	"github.com/zycxfyh/adaptive-balancer/internal/fusion"
	"github.com/zycxfyh/adaptive-balancer/internal/metrics"
	"github.com/zycxfyh/adaptive-balancer/internal/policy"
	"github.com/zycxfyh/adaptive-balancer/internal/provider"
	"github.com/zycxfyh/adaptive-balancer/internal/scaler"
	"github.com/zycxfyh/adaptive-balancer/pkg/config"
	"github.com/zycxfyh/adaptive-balancer/pkg/models"
)

type harness struct {
	auto   *Autoscaler
	exec   *scaler.Executor
	lb     *balancer.LoadBalancer
	sim    *provider.Simulator
	source *metrics.MockSource
}

func newHarness(t *testing.T, cfg Config, provisionTime time.Duration) *harness {
	t.Helper()

	lb, err := balancer.New(balancer.Config{Algorithm: balancer.AlgorithmLeastConnections})
	require.NoError(t, err)

	sim := provider.NewSimulator(provider.SimulatorConfig{ProvisionTime: provisionTime})
	source := metrics.NewMockSource(metrics.MockSourceConfig{
		BaseCPU:    0.5,
		BaseMemory: 0.5,
		Variance:   0.001,
	})

	exec := scaler.NewExecutor(scaler.ExecutorConfig{
		ServiceName:       "web",
		MinInstances:      1,
		MaxInstances:      10,
		ScaleDownSteps:    3,
		ObservationWindow: time.Millisecond,
		DrainTimeout:      10 * time.Millisecond,
	}, lb, sim, source, nil)

	engine := fusion.NewEngine(fusion.Config{MinInstances: 1, MaxInstances: 10}, []policy.ScalingPolicy{
		policy.NewCPUPolicy(config.CPUPolicyConfig{Enabled: true}),
	})

	if cfg.ServiceName == "" {
		cfg.ServiceName = "web"
	}
	return &harness{
		auto:   New(cfg, engine, exec, source, lb, nil),
		exec:   exec,
		lb:     lb,
		sim:    sim,
		source: source,
	}
}

// seed brings the fleet to the given size without touching the
// autoscaler's cooldown.
func (h *harness) seed(t *testing.T, target int) {
	t.Helper()
	_, err := h.exec.ManualScale(context.Background(), target, "seed")
	require.NoError(t, err)
}

func TestEvaluateOnce_HighCPUProducesScaleUp(t *testing.T) {
	h := newHarness(t, Config{}, 0)
	h.seed(t, 2)

	decision := h.auto.EvaluateOnce(models.MetricsSnapshot{
		CPU:       0.9,
		Memory:    0.5,
		Timestamp: time.Now(),
	})

	assert.Equal(t, models.ActionScaleUp, decision.Action)
	assert.Equal(t, 3, decision.TargetInstances)
	assert.True(t, decision.ShouldExecute())

	stats := h.auto.Stats()
	assert.Equal(t, int64(1), stats.Evaluations)
	assert.Equal(t, decision, stats.LastDecision)
}

func TestEvaluateOnce_CalmLoadProducesNoDecision(t *testing.T) {
	h := newHarness(t, Config{}, 0)
	h.seed(t, 2)

	decision := h.auto.EvaluateOnce(models.MetricsSnapshot{
		CPU:       0.5,
		Memory:    0.5,
		Timestamp: time.Now(),
	})

	assert.Equal(t, models.ActionNone, decision.Action)
	assert.False(t, decision.ShouldExecute())
}

func TestManualScale_ArmsCooldown(t *testing.T) {
	h := newHarness(t, Config{CooldownPeriod: time.Minute}, 0)

	event, err := h.auto.ManualScale(context.Background(), 3, "capacity test")
	require.NoError(t, err)
	assert.Equal(t, models.ScaleEventSuccess, event.Status)
	assert.Equal(t, models.TriggerManual, event.Trigger)
	assert.Equal(t, 3, event.ToInstances)

	stats := h.auto.Stats()
	assert.Equal(t, 3, stats.CurrentInstances)
	assert.True(t, stats.InCooldown)
	require.NotNil(t, stats.LastScaleTime)

	history := h.auto.ScaleHistory(10)
	require.Len(t, history, 1)
	assert.Equal(t, event.ID, history[0].ID)
}

func TestManualScale_NoopLeavesCooldownDisarmed(t *testing.T) {
	h := newHarness(t, Config{CooldownPeriod: time.Minute}, 0)
	h.seed(t, 2)

	event, err := h.auto.ManualScale(context.Background(), 2, "already there")
	require.NoError(t, err)
	assert.Equal(t, models.ScaleEventNoop, event.Status)

	stats := h.auto.Stats()
	assert.False(t, stats.InCooldown)
	assert.Nil(t, stats.LastScaleTime)
}

func TestTick_SkipsDuringCooldown(t *testing.T) {
	h := newHarness(t, Config{CooldownPeriod: time.Minute, EmergencyCPU: 0.95}, 0)
	h.seed(t, 2)

	h.auto.mu.Lock()
	h.auto.lastScale = time.Now()
	h.auto.mu.Unlock()

	h.source.SetBaseCPU(0.9)
	h.auto.tick(context.Background())

	stats := h.auto.Stats()
	assert.Equal(t, int64(1), stats.Evaluations)
	assert.Equal(t, int64(1), stats.SkippedCooldown)
	assert.Equal(t, 2, stats.CurrentInstances)
}

func TestTick_EmergencyCPUBypassesCooldown(t *testing.T) {
	h := newHarness(t, Config{CooldownPeriod: time.Minute, EmergencyCPU: 0.95}, 0)
	h.seed(t, 2)

	h.auto.mu.Lock()
	h.auto.lastScale = time.Now()
	h.auto.mu.Unlock()

	h.source.SetBaseCPU(0.99)
	h.auto.tick(context.Background())

	stats := h.auto.Stats()
	assert.Equal(t, int64(0), stats.SkippedCooldown)
	assert.Greater(t, stats.CurrentInstances, 2)

	history := h.auto.ScaleHistory(10)
	require.NotEmpty(t, history)
	assert.Equal(t, models.TriggerPolicy, history[0].Trigger)
}

func TestTick_SkipsWhenMetricsFail(t *testing.T) {
	h := newHarness(t, Config{}, 0)
	h.seed(t, 2)

	h.source.SetShouldFail(errors.New("collector down"))
	h.auto.tick(context.Background())

	assert.Equal(t, int64(0), h.auto.Stats().Evaluations)
}

func TestTick_SkipsWhenExecutorBusy(t *testing.T) {
	h := newHarness(t, Config{}, 100*time.Millisecond)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = h.exec.ManualScale(context.Background(), 3, "slow seed")
	}()
	require.Eventually(t, h.exec.Busy, time.Second, 5*time.Millisecond)

	h.auto.tick(context.Background())
	<-done

	stats := h.auto.Stats()
	assert.Equal(t, int64(1), stats.SkippedBusy)
	assert.Equal(t, int64(0), stats.Evaluations)
}

func TestStartStop(t *testing.T) {
	h := newHarness(t, Config{EvaluationInterval: 10 * time.Millisecond}, 0)
	h.seed(t, 2)

	h.auto.Start()
	h.auto.Start() // second call is a no-op
	assert.True(t, h.auto.Stats().Running)

	assert.Eventually(t, func() bool {
		return h.auto.Stats().Evaluations >= 2
	}, time.Second, 5*time.Millisecond)

	h.auto.Stop()
	h.auto.Stop()
	assert.False(t, h.auto.Stats().Running)
}

func TestStats_ReflectsFleet(t *testing.T) {
	h := newHarness(t, Config{ServiceName: "api"}, 0)
	h.seed(t, 3)

	stats := h.auto.Stats()
	assert.Equal(t, "api", stats.ServiceName)
	assert.Equal(t, balancer.AlgorithmLeastConnections, stats.Algorithm)
	assert.Equal(t, 3, stats.CurrentInstances)
	assert.Equal(t, 3, stats.HealthyInstances)
	assert.Len(t, stats.Instances, 3)
	assert.Empty(t, h.auto.ActiveAlerts())
}
