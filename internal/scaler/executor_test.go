package scaler

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zycxfyh/adaptive-balancer/internal/balancer"
	"github.com/zycxfyh/adaptive-balancer/internal/metrics"
	"github.com/zycxfyh/adaptive-balancer/internal/provider"
	"github.com/zycxfyh/adaptive-balancer/pkg/models"
)

// flakyProvider wraps the simulator and fails StartInstance after a set
// number of successes, which the simulator alone cannot express.
type flakyProvider struct {
	*provider.Simulator
	succeedFirst int
	started      int
}

func (f *flakyProvider) StartInstance(ctx context.Context, serviceName string, opts provider.StartOptions) (*provider.InstanceInfo, error) {
	if f.started >= f.succeedFirst {
		return nil, &provider.ProviderError{Op: "start", Err: provider.ErrStartFailed}
	}
	f.started++
	return f.Simulator.StartInstance(ctx, serviceName, opts)
}

func testExecutor(t *testing.T, prov provider.Provider, source metrics.Source) (*Executor, *balancer.LoadBalancer) {
	t.Helper()

	lb, err := balancer.New(balancer.Config{Algorithm: balancer.AlgorithmLeastConnections})
	require.NoError(t, err)

	exec := NewExecutor(ExecutorConfig{
		ServiceName:       "web",
		MinInstances:      1,
		MaxInstances:      10,
		ScaleDownSteps:    3,
		ObservationWindow: time.Millisecond,
		DrainTimeout:      20 * time.Millisecond,
	}, lb, prov, source, nil)

	return exec, lb
}

func upDecision(target int) *models.ScalingDecision {
	return &models.ScalingDecision{
		Action:          models.ActionScaleUp,
		TargetInstances: target,
		Confidence:      0.9,
		Reasoning:       "test scale up",
		Timestamp:       time.Now(),
	}
}

func downDecision(target int) *models.ScalingDecision {
	return &models.ScalingDecision{
		Action:          models.ActionScaleDown,
		TargetInstances: target,
		Confidence:      0.9,
		Reasoning:       "test scale down",
		Timestamp:       time.Now(),
	}
}

func TestExecutor_ScaleUpSuccess(t *testing.T) {
	sim := provider.NewSimulator(provider.SimulatorConfig{})
	exec, lb := testExecutor(t, sim, metrics.NewMockSource(metrics.MockSourceConfig{}))

	event, err := exec.Execute(context.Background(), upDecision(4), models.TriggerPolicy)
	require.NoError(t, err)

	assert.Equal(t, models.ScaleEventSuccess, event.Status)
	assert.Equal(t, 0, event.FromInstances)
	assert.Equal(t, 4, event.ToInstances)
	assert.Equal(t, 4, lb.Registry().Len())
	assert.Equal(t, 4, sim.RunningCount())
	assert.Equal(t, 1, exec.History().Len())
	assert.False(t, exec.Busy())
}

func TestExecutor_ScaleUpPartialSuccessRetained(t *testing.T) {
	flaky := &flakyProvider{
		Simulator:    provider.NewSimulator(provider.SimulatorConfig{}),
		succeedFirst: 2,
	}
	exec, lb := testExecutor(t, flaky, metrics.NewMockSource(metrics.MockSourceConfig{}))

	event, err := exec.Execute(context.Background(), upDecision(5), models.TriggerPolicy)
	require.NoError(t, err)

	// Two instances started before the failure; they stay in service.
	assert.Equal(t, models.ScaleEventPartial, event.Status)
	assert.Equal(t, 2, event.ToInstances)
	assert.Equal(t, 2, lb.Registry().Len())

	alerts := exec.History().Alerts()
	require.Len(t, alerts, 1)
	assert.Equal(t, models.AlertScaleUpFailed, alerts[0].Type)
	assert.Equal(t, models.AlertSeverityCritical, alerts[0].Severity)
}

func TestExecutor_ScaleUpImmediateFailure(t *testing.T) {
	sim := provider.NewSimulator(provider.SimulatorConfig{})
	sim.FailNextStarts(1)
	exec, lb := testExecutor(t, sim, metrics.NewMockSource(metrics.MockSourceConfig{}))

	event, err := exec.Execute(context.Background(), upDecision(2), models.TriggerPolicy)
	require.NoError(t, err)

	assert.Equal(t, models.ScaleEventFailed, event.Status)
	assert.Equal(t, 0, lb.Registry().Len())
}

func TestExecutor_NoProviderIsNoop(t *testing.T) {
	exec, lb := testExecutor(t, nil, metrics.NewMockSource(metrics.MockSourceConfig{}))
	lb.AddInstance("i-1", "http://127.0.0.1:9001", balancer.InstanceOptions{})

	event, err := exec.Execute(context.Background(), upDecision(5), models.TriggerPolicy)
	require.NoError(t, err)

	assert.Equal(t, models.ScaleEventNoop, event.Status)
	assert.Equal(t, 1, lb.Registry().Len())
	assert.Equal(t, 1, exec.History().Len())
}

func TestExecutor_TargetAlreadyMetIsNoop(t *testing.T) {
	sim := provider.NewSimulator(provider.SimulatorConfig{})
	exec, _ := testExecutor(t, sim, metrics.NewMockSource(metrics.MockSourceConfig{}))

	_, err := exec.Execute(context.Background(), upDecision(3), models.TriggerPolicy)
	require.NoError(t, err)

	event, err := exec.Execute(context.Background(), upDecision(3), models.TriggerPolicy)
	require.NoError(t, err)

	assert.Equal(t, models.ScaleEventNoop, event.Status)
	assert.Equal(t, models.ActionNone, event.Action)
}

func TestExecutor_ManualScaleClampedToBounds(t *testing.T) {
	sim := provider.NewSimulator(provider.SimulatorConfig{})
	exec, lb := testExecutor(t, sim, metrics.NewMockSource(metrics.MockSourceConfig{}))

	// Above the maximum: the clamped value is what executes and what the
	// event records.
	event, err := exec.ManualScale(context.Background(), 50, "operator override")
	require.NoError(t, err)
	assert.Equal(t, models.TriggerManual, event.Trigger)
	assert.Equal(t, 10, event.ToInstances)
	assert.Equal(t, 10, lb.Registry().Len())

	// Below the minimum clamps up to it.
	event, err = exec.ManualScale(context.Background(), 0, "operator override")
	require.NoError(t, err)
	assert.Equal(t, 1, event.ToInstances)
	assert.Equal(t, 1, lb.Registry().Len())
}

func TestExecutor_ScaleDownInSteps(t *testing.T) {
	sim := provider.NewSimulator(provider.SimulatorConfig{})
	source := metrics.NewMockSource(metrics.MockSourceConfig{BaseCPU: 0.3, BaseMemory: 0.3, Variance: 0.01})
	exec, lb := testExecutor(t, sim, source)

	_, err := exec.Execute(context.Background(), upDecision(6), models.TriggerPolicy)
	require.NoError(t, err)

	event, err := exec.Execute(context.Background(), downDecision(2), models.TriggerPolicy)
	require.NoError(t, err)

	assert.Equal(t, models.ScaleEventSuccess, event.Status)
	assert.Equal(t, 6, event.FromInstances)
	assert.Equal(t, 2, event.ToInstances)
	assert.Equal(t, 2, lb.Registry().Len())
	assert.Equal(t, 2, sim.RunningCount())
}

func TestExecutor_ScaleDownAbortsWhenUnstable(t *testing.T) {
	sim := provider.NewSimulator(provider.SimulatorConfig{})
	source := metrics.NewMockSource(metrics.MockSourceConfig{BaseCPU: 0.3, BaseMemory: 0.3, Variance: 0.01})
	exec, lb := testExecutor(t, sim, source)

	_, err := exec.Execute(context.Background(), upDecision(6), models.TriggerPolicy)
	require.NoError(t, err)

	// Error rate spikes mid-scale-down; the remaining steps must not run.
	source.SetErrorRate(0.25)

	event, err := exec.Execute(context.Background(), downDecision(2), models.TriggerPolicy)
	require.NoError(t, err)

	// toRemove=4 over 3 steps is 2 per step; only the first step ran.
	assert.Equal(t, models.ScaleEventAborted, event.Status)
	assert.Equal(t, 4, event.ToInstances)
	assert.Equal(t, 4, lb.Registry().Len())

	alerts := exec.History().Alerts()
	require.Len(t, alerts, 1)
	assert.Equal(t, models.AlertSystemAnomaly, alerts[0].Type)
}

func TestExecutor_ScaleDownRemovesFewestConnectionsFirst(t *testing.T) {
	sim := provider.NewSimulator(provider.SimulatorConfig{})
	source := metrics.NewMockSource(metrics.MockSourceConfig{BaseCPU: 0.3, BaseMemory: 0.3, Variance: 0.01})
	exec, lb := testExecutor(t, sim, source)

	for i := 1; i <= 3; i++ {
		lb.AddInstance(fmt.Sprintf("i-%d", i), fmt.Sprintf("http://127.0.0.1:%d", 9000+i), balancer.InstanceOptions{})
	}

	// i-1 is idle, i-2 and i-3 hold traffic.
	for _, id := range []string{"i-2", "i-3"} {
		inst, ok := lb.Registry().Get(id)
		require.True(t, ok)
		inst.AcquireConnection()
	}

	event, err := exec.Execute(context.Background(), downDecision(2), models.TriggerPolicy)
	require.NoError(t, err)

	assert.Equal(t, models.ScaleEventSuccess, event.Status)
	_, gone := lb.Registry().Get("i-1")
	assert.False(t, gone)
	assert.Equal(t, 2, lb.Registry().Len())
}

func TestExecutor_ScaleDownDrainsBeforeStop(t *testing.T) {
	sim := provider.NewSimulator(provider.SimulatorConfig{})
	source := metrics.NewMockSource(metrics.MockSourceConfig{BaseCPU: 0.3, BaseMemory: 0.3, Variance: 0.01})
	exec, lb := testExecutor(t, sim, source)

	lb.AddInstance("i-1", "http://127.0.0.1:9001", balancer.InstanceOptions{})
	lb.AddInstance("i-2", "http://127.0.0.1:9002", balancer.InstanceOptions{})

	// i-1 is least connected and will be removed, but still holds one
	// stuck connection.
	busy, _ := lb.Registry().Get("i-1")
	busy.AcquireConnection()
	busier, _ := lb.Registry().Get("i-2")
	busier.AcquireConnection()
	busier.AcquireConnection()

	// The stuck connection is bounded by the drain timeout; the scale-down
	// still completes.
	start := time.Now()
	event, err := exec.Execute(context.Background(), downDecision(1), models.TriggerPolicy)
	require.NoError(t, err)

	assert.Equal(t, models.ScaleEventSuccess, event.Status)
	assert.Equal(t, 1, lb.Registry().Len())
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestExecutor_ReconcileAdoptsRunningInstances(t *testing.T) {
	sim := provider.NewSimulator(provider.SimulatorConfig{})
	exec, lb := testExecutor(t, sim, metrics.NewMockSource(metrics.MockSourceConfig{}))

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := sim.StartInstance(ctx, "web", provider.StartOptions{Index: i})
		require.NoError(t, err)
	}

	require.NoError(t, exec.Reconcile(ctx))
	assert.Equal(t, 3, lb.Registry().Len())
	assert.Equal(t, 3, exec.CurrentInstances())
}
