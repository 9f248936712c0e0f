package autoscaler

import (
	"context"
	"sync"
	"time"

	"github.com/zycxfyh/adaptive-balancer/internal/balancer"
	"github.com/zycxfyh/adaptive-balancer/internal/events"
	"github.com/zycxfyh/adaptive-balancer/internal/fusion"
	"github.com/zycxfyh/adaptive-balancer/internal/logger"
	"github.com/zycxfyh/adaptive-balancer/internal/metrics"
	"github.com/zycxfyh/adaptive-balancer/internal/registry"
	"github.com/zycxfyh/adaptive-balancer/internal/scaler"
	"github.com/zycxfyh/adaptive-balancer/pkg/models"
)

type Config struct {
	ServiceName        string
	EvaluationInterval time.Duration
	CooldownPeriod     time.Duration
	EmergencyCPU       float64
}

// Autoscaler drives the evaluate-decide-execute loop. Each tick fetches a
// metrics snapshot, asks the fusion engine for a decision, applies the
// cooldown, and hands the decision to the executor. Ticks that arrive
// while an execution is still running are skipped, not queued.
type Autoscaler struct {
	config    Config
	engine    *fusion.Engine
	executor  *scaler.Executor
	source    metrics.Source
	balancer  *balancer.LoadBalancer
	publisher *events.Publisher

	mu            sync.Mutex
	running       bool
	cancel        context.CancelFunc
	wg            sync.WaitGroup
	lastScale     time.Time
	lastDecision  *models.ScalingDecision
	evaluations   int64
	skippedBusy   int64
	skippedCooled int64
}

// Stats is the operational snapshot returned by the stats endpoint.
type Stats struct {
	ServiceName      string                  `json:"service_name"`
	Running          bool                    `json:"running"`
	Algorithm        string                  `json:"algorithm"`
	CurrentInstances int                     `json:"current_instances"`
	HealthyInstances int                     `json:"healthy_instances"`
	TotalConnections int64                   `json:"total_connections"`
	Evaluations      int64                   `json:"evaluations"`
	SkippedBusy      int64                   `json:"skipped_busy"`
	SkippedCooldown  int64                   `json:"skipped_cooldown"`
	InCooldown       bool                    `json:"in_cooldown"`
	LastScaleTime    *time.Time              `json:"last_scale_time,omitempty"`
	LastDecision     *models.ScalingDecision `json:"last_decision,omitempty"`
	Instances        []registry.Stats        `json:"instances"`
}

func New(cfg Config, engine *fusion.Engine, executor *scaler.Executor, source metrics.Source, lb *balancer.LoadBalancer, pub *events.Publisher) *Autoscaler {
	if cfg.EvaluationInterval <= 0 {
		cfg.EvaluationInterval = 30 * time.Second
	}
	if cfg.CooldownPeriod <= 0 {
		cfg.CooldownPeriod = 3 * time.Minute
	}
	if cfg.EmergencyCPU <= 0 {
		cfg.EmergencyCPU = 0.95
	}

	return &Autoscaler{
		config:    cfg,
		engine:    engine,
		executor:  executor,
		source:    source,
		balancer:  lb,
		publisher: pub,
	}
}

func (a *Autoscaler) Start() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.running {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	a.running = true

	a.wg.Add(1)
	go a.run(ctx)

	logger.WithService(a.config.ServiceName).Infof("Autoscaler started, evaluating every %s", a.config.EvaluationInterval)
}

func (a *Autoscaler) Stop() {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return
	}
	a.running = false
	a.cancel()
	a.mu.Unlock()

	a.wg.Wait()
	logger.WithService(a.config.ServiceName).Info("Autoscaler stopped")
}

func (a *Autoscaler) run(ctx context.Context) {
	defer a.wg.Done()

	ticker := time.NewTicker(a.config.EvaluationInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.tick(ctx)
		}
	}
}

func (a *Autoscaler) tick(ctx context.Context) {
	if a.executor.Busy() {
		a.mu.Lock()
		a.skippedBusy++
		a.mu.Unlock()
		logger.Debug("Skipping evaluation tick, execution in progress")
		return
	}

	snapshot, err := a.source.CurrentMetrics(ctx)
	if err != nil {
		logger.Warnf("Metrics collection failed, skipping tick: %v", err)
		if a.publisher != nil {
			a.publisher.Error("metrics collection failed", err)
		}
		return
	}

	current := a.executor.CurrentInstances()
	decision := a.engine.Evaluate(snapshot, current)

	a.mu.Lock()
	a.evaluations++
	a.lastDecision = decision
	a.mu.Unlock()

	if a.publisher != nil {
		a.publisher.DecisionMade(decision)
	}

	if !decision.ShouldExecute() {
		return
	}

	if a.inCooldown() && !a.emergency(decision, snapshot) {
		a.mu.Lock()
		a.skippedCooled++
		a.mu.Unlock()
		logger.WithService(a.config.ServiceName).Debugf("In cooldown, deferring %s to %d instances", decision.Action, decision.TargetInstances)
		return
	}

	event, err := a.executor.Execute(ctx, decision, models.TriggerPolicy)
	if err != nil {
		logger.Errorf("Scaling execution failed: %v", err)
		return
	}

	if event.Status != models.ScaleEventNoop {
		a.mu.Lock()
		a.lastScale = time.Now()
		a.mu.Unlock()
	}
}

// EvaluateOnce runs a single fusion pass on a snapshot without touching the
// cooldown or the executor. Demo mode and tests use it to step the loop by
// hand.
func (a *Autoscaler) EvaluateOnce(snapshot models.MetricsSnapshot) *models.ScalingDecision {
	current := a.executor.CurrentInstances()
	decision := a.engine.Evaluate(snapshot, current)

	a.mu.Lock()
	a.evaluations++
	a.lastDecision = decision
	a.mu.Unlock()

	if a.publisher != nil {
		a.publisher.DecisionMade(decision)
	}
	return decision
}

func (a *Autoscaler) inCooldown() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.lastScale.IsZero() {
		return false
	}
	return time.Since(a.lastScale) < a.config.CooldownPeriod
}

// emergency lets a scale-up bypass the cooldown when CPU is critical.
func (a *Autoscaler) emergency(decision *models.ScalingDecision, snapshot models.MetricsSnapshot) bool {
	if decision.Action != models.ActionScaleUp {
		return false
	}
	if snapshot.CPU < a.config.EmergencyCPU {
		return false
	}
	logger.WithService(a.config.ServiceName).Warnf("Emergency scale up: CPU %.2f over %.2f, bypassing cooldown", snapshot.CPU, a.config.EmergencyCPU)
	return true
}

// ManualScale clamps and executes an operator-requested target directly,
// then arms the cooldown like any other scale.
func (a *Autoscaler) ManualScale(ctx context.Context, target int, reason string) (*models.ScaleEvent, error) {
	event, err := a.executor.ManualScale(ctx, target, reason)
	if err != nil {
		return nil, err
	}

	if event.Status != models.ScaleEventNoop {
		a.mu.Lock()
		a.lastScale = time.Now()
		a.mu.Unlock()
	}
	return event, nil
}

func (a *Autoscaler) Stats() Stats {
	reg := a.balancer.Registry()

	a.mu.Lock()
	stats := Stats{
		ServiceName:     a.config.ServiceName,
		Running:         a.running,
		Evaluations:     a.evaluations,
		SkippedBusy:     a.skippedBusy,
		SkippedCooldown: a.skippedCooled,
		LastDecision:    a.lastDecision,
	}
	if !a.lastScale.IsZero() {
		t := a.lastScale
		stats.LastScaleTime = &t
		stats.InCooldown = time.Since(t) < a.config.CooldownPeriod
	}
	a.mu.Unlock()

	stats.Algorithm = a.balancer.Algorithm()
	stats.CurrentInstances = reg.Len()
	stats.HealthyInstances = reg.HealthyCount()
	stats.TotalConnections = reg.TotalConnections()
	stats.Instances = a.balancer.Stats()
	return stats
}

// ScaleHistory returns the most recent scale events, newest first.
func (a *Autoscaler) ScaleHistory(limit int) []*models.ScaleEvent {
	return a.executor.History().Events(limit)
}

// ActiveAlerts returns the retained alerts, newest first.
func (a *Autoscaler) ActiveAlerts() []*models.Alert {
	return a.executor.History().Alerts()
}
