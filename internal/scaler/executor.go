package scaler

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync/atomic"
	"time"

	"github.com/zycxfyh/adaptive-balancer/internal/balancer"
	"github.com/zycxfyh/adaptive-balancer/internal/events"
	"github.com/zycxfyh/adaptive-balancer/internal/logger"
	"github.com/zycxfyh/adaptive-balancer/internal/metrics"
	"github.com/zycxfyh/adaptive-balancer/internal/provider"
	"github.com/zycxfyh/adaptive-balancer/internal/registry"
	"github.com/zycxfyh/adaptive-balancer/pkg/models"
)

var (
	ErrExecutionInProgress = errors.New("scaling execution already in progress")
	ErrScalingTimeout      = errors.New("scaling operation timed out")
)

type ExecutorConfig struct {
	ServiceName         string
	MinInstances        int
	MaxInstances        int
	ScaleDownSteps      int
	ObservationWindow   time.Duration
	DrainTimeout        time.Duration
	ProviderCallTimeout time.Duration
}

// Executor turns fused decisions into actual instance-count changes.
// Executions are strictly serialized: a second Execute while one is in
// flight fails with ErrExecutionInProgress, and the caller (the evaluation
// loop) simply skips that tick.
type Executor struct {
	config    ExecutorConfig
	balancer  *balancer.LoadBalancer
	provider  provider.Provider
	metrics   metrics.Source
	publisher *events.Publisher
	history   *History
	executing atomic.Bool
}

func NewExecutor(cfg ExecutorConfig, lb *balancer.LoadBalancer, prov provider.Provider, source metrics.Source, pub *events.Publisher) *Executor {
	if cfg.MinInstances <= 0 {
		cfg.MinInstances = 1
	}
	if cfg.MaxInstances < cfg.MinInstances {
		cfg.MaxInstances = cfg.MinInstances
	}
	if cfg.ScaleDownSteps <= 0 {
		cfg.ScaleDownSteps = 3
	}
	if cfg.ObservationWindow <= 0 {
		cfg.ObservationWindow = 60 * time.Second
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = 30 * time.Second
	}
	if cfg.ProviderCallTimeout <= 0 {
		cfg.ProviderCallTimeout = 60 * time.Second
	}

	return &Executor{
		config:    cfg,
		balancer:  lb,
		provider:  prov,
		metrics:   source,
		publisher: pub,
		history:   NewHistory(),
	}
}

func (e *Executor) History() *History {
	return e.history
}

// Busy reports whether an execution is currently in flight.
func (e *Executor) Busy() bool {
	return e.executing.Load()
}

// CurrentInstances is the registry's view of the fleet size.
func (e *Executor) CurrentInstances() int {
	return e.balancer.Registry().Len()
}

// Reconcile registers every instance the provider reports live, so the
// registry matches reality at startup.
func (e *Executor) Reconcile(ctx context.Context) error {
	if e.provider == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, e.config.ProviderCallTimeout)
	defer cancel()

	running, err := e.provider.GetRunningInstances(ctx, e.config.ServiceName)
	if err != nil {
		return fmt.Errorf("reconcile failed: %w", err)
	}

	for _, info := range running {
		e.balancer.AddInstance(info.ID, info.URL, balancer.InstanceOptions{
			Weight:   info.Weight,
			Metadata: info.Metadata,
		})
	}

	logger.WithService(e.config.ServiceName).Infof("Reconciled %d running instances", len(running))
	return nil
}

// Execute runs one fused decision. The returned event is also appended to
// the history and published.
func (e *Executor) Execute(ctx context.Context, decision *models.ScalingDecision, trigger models.ScaleTrigger) (*models.ScaleEvent, error) {
	if !e.executing.CompareAndSwap(false, true) {
		return nil, ErrExecutionInProgress
	}
	defer e.executing.Store(false)

	current := e.CurrentInstances()
	target := e.clamp(decision.TargetInstances)

	if e.provider == nil {
		logger.WithService(e.config.ServiceName).Warn("No lifecycle provider configured, scaling is a no-op")
		event := models.NewScaleEvent(decision.Action, current, current, "no provider configured", trigger, models.ScaleEventNoop).
			WithDecision(decision)
		e.record(event)
		return event, nil
	}

	if target == current {
		event := models.NewScaleEvent(models.ActionNone, current, current, decision.Reasoning, trigger, models.ScaleEventNoop).
			WithDecision(decision)
		e.record(event)
		return event, nil
	}

	if e.publisher != nil {
		e.publisher.ScalingStarted(decision)
	}

	var event *models.ScaleEvent
	if target > current {
		event = e.scaleUp(ctx, decision, trigger, current, target)
	} else {
		event = e.scaleDown(ctx, decision, trigger, current, target)
	}

	e.record(event)
	return event, nil
}

// ManualScale bypasses policy fusion but goes through the same clamped,
// registry-synchronized execution path. The clamped value is observable in
// the resulting event.
func (e *Executor) ManualScale(ctx context.Context, target int, reason string) (*models.ScaleEvent, error) {
	current := e.CurrentInstances()
	clamped := e.clamp(target)

	action := models.ActionNone
	switch {
	case clamped > current:
		action = models.ActionScaleUp
	case clamped < current:
		action = models.ActionScaleDown
	}

	decision := &models.ScalingDecision{
		Action:          action,
		TargetInstances: clamped,
		Confidence:      1.0,
		Reasoning:       reason,
		Timestamp:       time.Now(),
	}

	return e.Execute(ctx, decision, models.TriggerManual)
}

// scaleUp starts instances one at a time, registering each into the load
// balancer as soon as it is up so it receives traffic before the batch
// finishes. A single start failure aborts the remaining starts; instances
// already started are kept.
func (e *Executor) scaleUp(ctx context.Context, decision *models.ScalingDecision, trigger models.ScaleTrigger, current, target int) *models.ScaleEvent {
	toAdd := target - current
	started := 0

	logger.WithService(e.config.ServiceName).Infof("Scaling up: %d -> %d instances", current, target)

	for i := 0; i < toAdd; i++ {
		callCtx, cancel := context.WithTimeout(ctx, e.config.ProviderCallTimeout)
		info, err := e.provider.StartInstance(callCtx, e.config.ServiceName, provider.StartOptions{Index: current + i})
		cancel()

		if err != nil {
			logger.WithService(e.config.ServiceName).Errorf("Instance start failed after %d/%d: %v", started, toAdd, err)
			e.raiseAlert(models.AlertScaleUpFailed, models.AlertSeverityCritical,
				fmt.Sprintf("scale up aborted after %d of %d instances", started, toAdd),
				map[string]interface{}{"error": err.Error(), "started": started, "requested": toAdd})
			if e.publisher != nil {
				e.publisher.ScalingFailed(decision.Reasoning, err)
			}

			status := models.ScaleEventFailed
			if started > 0 {
				status = models.ScaleEventPartial
			}
			return models.NewScaleEvent(models.ActionScaleUp, current, current+started, decision.Reasoning, trigger, status).
				WithDecision(decision)
		}

		e.balancer.AddInstance(info.ID, info.URL, balancer.InstanceOptions{
			Weight:   info.Weight,
			Metadata: info.Metadata,
		})
		started++
	}

	logger.WithService(e.config.ServiceName).Infof("Scale up complete: %d -> %d instances", current, current+started)
	return models.NewScaleEvent(models.ActionScaleUp, current, current+started, decision.Reasoning, trigger, models.ScaleEventSuccess).
		WithDecision(decision)
}

// scaleDown removes instances in bounded steps, fewest-connection instances
// first. After each step it waits an observation window and samples fresh
// metrics; an unstable fleet aborts the remaining steps, leaving the count
// at whatever the last completed step achieved.
func (e *Executor) scaleDown(ctx context.Context, decision *models.ScalingDecision, trigger models.ScaleTrigger, current, target int) *models.ScaleEvent {
	toRemove := current - target
	perStep := int(math.Ceil(float64(toRemove) / float64(e.config.ScaleDownSteps)))
	removed := 0

	logger.WithService(e.config.ServiceName).Infof("Scaling down: %d -> %d instances in steps of %d", current, target, perStep)

	for removed < toRemove {
		n := perStep
		if remaining := toRemove - removed; n > remaining {
			n = remaining
		}

		stepRemoved, err := e.removeStep(ctx, n)
		removed += stepRemoved
		if err != nil {
			e.raiseAlert(models.AlertScaleDownFailed, models.AlertSeverityWarning,
				fmt.Sprintf("scale down stopped after removing %d of %d instances", removed, toRemove),
				map[string]interface{}{"error": err.Error()})
			if e.publisher != nil {
				e.publisher.ScalingFailed(decision.Reasoning, err)
			}
			return models.NewScaleEvent(models.ActionScaleDown, current, current-removed, decision.Reasoning, trigger, models.ScaleEventPartial).
				WithDecision(decision)
		}

		if removed >= toRemove {
			break
		}

		if aborted := e.observe(ctx); aborted {
			e.raiseAlert(models.AlertSystemAnomaly, models.AlertSeverityWarning,
				fmt.Sprintf("scale down aborted after removing %d of %d instances: fleet unstable", removed, toRemove),
				map[string]interface{}{"removed": removed, "requested": toRemove})
			return models.NewScaleEvent(models.ActionScaleDown, current, current-removed, decision.Reasoning, trigger, models.ScaleEventAborted).
				WithDecision(decision)
		}
	}

	logger.WithService(e.config.ServiceName).Infof("Scale down complete: %d -> %d instances", current, current-removed)
	return models.NewScaleEvent(models.ActionScaleDown, current, current-removed, decision.Reasoning, trigger, models.ScaleEventSuccess).
		WithDecision(decision)
}

// removeStep removes up to n instances: deregister from the balancer first
// (no new traffic), drain in-flight connections with a bounded wait, then
// ask the provider to stop the instance.
func (e *Executor) removeStep(ctx context.Context, n int) (int, error) {
	candidates := e.leastConnected(n)
	removed := 0

	for _, inst := range candidates {
		if err := e.balancer.RemoveInstance(inst.ID); err != nil {
			continue
		}

		e.drain(ctx, inst)

		callCtx, cancel := context.WithTimeout(ctx, e.config.ProviderCallTimeout)
		_, err := e.provider.StopInstance(callCtx, inst.ID)
		cancel()

		if err != nil {
			// The instance is already out of rotation; report the stop
			// failure but do not re-register it.
			logger.WithInstance(inst.ID).Errorf("Instance stop failed: %v", err)
			return removed, err
		}

		removed++
		logger.WithInstance(inst.ID).Info("Instance drained and stopped")
	}

	return removed, nil
}

// drain waits for an instance's in-flight connections to finish, bounded by
// the configured drain timeout.
func (e *Executor) drain(ctx context.Context, inst *registry.Instance) {
	deadline := time.NewTimer(e.config.DrainTimeout)
	defer deadline.Stop()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for inst.Connections() > 0 {
		select {
		case <-ctx.Done():
			return
		case <-deadline.C:
			logger.WithInstance(inst.ID).Warnf("Drain timeout with %d connections in flight", inst.Connections())
			return
		case <-ticker.C:
		}
	}
}

// observe waits the observation window, then samples fresh metrics and
// reports whether the remaining steps should be aborted.
func (e *Executor) observe(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	case <-time.After(e.config.ObservationWindow):
	}

	if e.metrics == nil {
		return false
	}

	snapshot, err := e.metrics.CurrentMetrics(ctx)
	if err != nil {
		logger.Warnf("Could not sample metrics between scale-down steps: %v", err)
		return false
	}

	if snapshot.IsUnstable() {
		logger.Warnf("Fleet unstable (cpu=%.2f mem=%.2f err=%.2f), aborting scale down",
			snapshot.CPU, snapshot.Memory, snapshot.ErrorRate)
		return true
	}
	return false
}

// leastConnected returns up to n registered instances ordered by ascending
// connection count; List is id-sorted, so ids break ties.
func (e *Executor) leastConnected(n int) []*registry.Instance {
	all := e.balancer.Registry().List()

	sort.SliceStable(all, func(a, b int) bool {
		return all[a].Connections() < all[b].Connections()
	})

	if n < len(all) {
		all = all[:n]
	}
	return all
}

func (e *Executor) clamp(target int) int {
	if target < e.config.MinInstances {
		return e.config.MinInstances
	}
	if target > e.config.MaxInstances {
		return e.config.MaxInstances
	}
	return target
}

func (e *Executor) record(event *models.ScaleEvent) {
	e.history.Append(event)
	if e.publisher != nil {
		e.publisher.ScalingComplete(event)
	}
}

func (e *Executor) raiseAlert(alertType models.AlertType, severity models.AlertSeverity, message string, details map[string]interface{}) {
	alert := models.NewAlert(alertType, severity, message).WithDetails(details)
	e.history.AppendAlert(alert)
	if e.publisher != nil {
		e.publisher.Alert(alert)
	}
}
