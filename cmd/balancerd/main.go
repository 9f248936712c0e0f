package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/zycxfyh/adaptive-balancer/api"
	"github.com/zycxfyh/adaptive-balancer/internal/autoscaler"
	"github.com/zycxfyh/adaptive-balancer/internal/balancer"
	"github.com/zycxfyh/adaptive-balancer/internal/events"
	"github.com/zycxfyh/adaptive-balancer/internal/fusion"
	"github.com/zycxfyh/adaptive-balancer/internal/logger"
	"github.com/zycxfyh/adaptive-balancer/internal/metrics"
	"github.com/zycxfyh/adaptive-balancer/internal/policy"
	"github.com/zycxfyh/adaptive-balancer/internal/provider"
	"github.com/zycxfyh/adaptive-balancer/internal/registry"
	"github.com/zycxfyh/adaptive-balancer/internal/resilience"
	"github.com/zycxfyh/adaptive-balancer/internal/scaler"
	"github.com/zycxfyh/adaptive-balancer/pkg/config"
	"github.com/zycxfyh/adaptive-balancer/pkg/models"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to config file")
	demo := flag.Bool("demo", false, "run a self-contained scaling demo and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger.Setup(cfg.App.LogLevel, cfg.App.Mode)
	logger.Infof("Starting %s in %s mode", cfg.App.Name, cfg.App.Mode)

	if *demo {
		return runDemo(cfg)
	}

	system, err := buildSystem(cfg, false)
	if err != nil {
		return err
	}
	defer system.close()

	reconcileCtx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	if err := system.executor.Reconcile(reconcileCtx); err != nil {
		logger.Warnf("Startup reconcile failed: %v", err)
	}
	cancel()

	system.health.Start()
	system.autoscaler.Start()

	server, err := api.NewServer(cfg, api.Dependencies{
		Balancer:   system.balancer,
		Autoscaler: system.autoscaler,
		Provider:   system.provider,
		Metrics:    system.source,
		Bus:        system.bus,
	})
	if err != nil {
		return err
	}

	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		logger.Infof("API server listening on port %d", cfg.API.Port)
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-shutdownChan:
		logger.Infof("Received signal %v, shutting down", sig)
	}

	system.autoscaler.Stop()
	system.health.Stop()

	shutdownTimeout := cfg.App.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 30 * time.Second
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}

	logger.Info("Server stopped gracefully")
	return nil
}

// system bundles the wired control-loop components.
type system struct {
	bus        *events.EventBus
	balancer   *balancer.LoadBalancer
	health     *balancer.HealthChecker
	provider   provider.Provider
	source     metrics.Source
	executor   *scaler.Executor
	autoscaler *autoscaler.Autoscaler
}

func (s *system) close() {
	s.source.Close()
	s.bus.Close()
}

func buildSystem(cfg *config.Config, mockMetrics bool) (*system, error) {
	bus := events.NewEventBus(cfg.Events.BufferSize)
	publisher := events.NewPublisher(bus, cfg.Autoscaler.ServiceName)

	reg := registry.New()

	lb, err := balancer.New(balancer.Config{
		Registry:           reg,
		Algorithm:          cfg.Balancer.Algorithm,
		ResponseTimeWindow: cfg.Balancer.ResponseTimeWindow,
		VirtualNodes:       cfg.Balancer.VirtualNodes,
		Publisher:          publisher,
	})
	if err != nil {
		return nil, fmt.Errorf("balancer setup failed: %w", err)
	}

	health := balancer.NewHealthChecker(balancer.HealthCheckerConfig{
		Registry:  reg,
		Interval:  cfg.HealthCheck.Interval,
		Timeout:   cfg.HealthCheck.Timeout,
		Path:      cfg.HealthCheck.Path,
		Publisher: publisher,
	})

	prov := buildProvider(cfg)
	source := buildMetricsSource(cfg, mockMetrics)
	engine := buildEngine(cfg)

	executor := scaler.NewExecutor(scaler.ExecutorConfig{
		ServiceName:         cfg.Autoscaler.ServiceName,
		MinInstances:        cfg.Autoscaler.MinInstances,
		MaxInstances:        cfg.Autoscaler.MaxInstances,
		ScaleDownSteps:      cfg.Autoscaler.ScaleDownSteps,
		ObservationWindow:   cfg.Autoscaler.ObservationWindow,
		DrainTimeout:        cfg.Autoscaler.DrainTimeout,
		ProviderCallTimeout: cfg.Autoscaler.ProviderCallTimeout,
	}, lb, prov, source, publisher)

	as := autoscaler.New(autoscaler.Config{
		ServiceName:        cfg.Autoscaler.ServiceName,
		EvaluationInterval: cfg.Autoscaler.EvaluationInterval,
		CooldownPeriod:     cfg.Autoscaler.CooldownPeriod,
		EmergencyCPU:       cfg.Autoscaler.EmergencyCPU,
	}, engine, executor, source, lb, publisher)

	return &system{
		bus:        bus,
		balancer:   lb,
		health:     health,
		provider:   prov,
		source:     source,
		executor:   executor,
		autoscaler: as,
	}, nil
}

func buildProvider(cfg *config.Config) provider.Provider {
	switch cfg.Provider.Type {
	case "simulator":
		return provider.NewSimulator(provider.SimulatorConfig{
			ProvisionTime: cfg.Provider.ProvisionTime,
			BasePort:      cfg.Provider.BasePort,
		})
	default:
		logger.Warnf("Unknown provider type %q, scaling decisions will not execute", cfg.Provider.Type)
		return nil
	}
}

func buildMetricsSource(cfg *config.Config, mock bool) metrics.Source {
	var inner metrics.Source
	if mock || cfg.Metrics.Type == "mock" {
		inner = metrics.NewMockSource(metrics.MockSourceConfig{
			BaseCPU:    0.5,
			BaseMemory: 0.5,
			Variance:   0.05,
		})
	} else {
		inner = metrics.NewHTTPSource(metrics.HTTPSourceConfig{
			Endpoint: cfg.Metrics.Endpoint,
			Timeout:  cfg.Metrics.Timeout,
		})
	}

	return metrics.NewResilientSource(metrics.ResilientSourceConfig{
		Source:        inner,
		MaxFailures:   cfg.Metrics.CircuitBreaker.MaxFailures,
		Timeout:       cfg.Metrics.CircuitBreaker.Timeout,
		RetryAttempts: cfg.Metrics.RetryAttempts,
		RetryDelay:    cfg.Metrics.RetryDelay,
		OnStateChange: func(name string, from, to resilience.State) {
			logger.Warnf("Metrics circuit breaker %s: %s -> %s", name, from, to)
		},
	})
}

func buildEngine(cfg *config.Config) *fusion.Engine {
	var policies []policy.ScalingPolicy
	if cfg.Policies.CPU.Enabled {
		policies = append(policies, policy.NewCPUPolicy(cfg.Policies.CPU))
	}
	if cfg.Policies.Memory.Enabled {
		policies = append(policies, policy.NewMemoryPolicy(cfg.Policies.Memory))
	}
	if cfg.Policies.RequestRate.Enabled {
		policies = append(policies, policy.NewRequestRatePolicy(cfg.Policies.RequestRate))
	}

	engine := fusion.NewEngine(fusion.Config{
		MinInstances: cfg.Autoscaler.MinInstances,
		MaxInstances: cfg.Autoscaler.MaxInstances,
	}, policies)

	if cfg.Predictor.Enabled {
		engine = engine.WithPredictor(fusion.NewPredictor(fusion.PredictorConfig{
			HistorySize:    cfg.Predictor.HistorySize,
			SampleWindow:   cfg.Predictor.SampleWindow,
			ForecastWindow: cfg.Predictor.ForecastWindow,
			LoadThreshold:  cfg.Predictor.LoadThreshold,
		}))
	}

	if cfg.Cost.Enabled {
		engine = engine.WithCostGate(fusion.NewCostGate(fusion.CostGateConfig{
			InstanceCostPerHour: cfg.Cost.InstanceCostPerHour,
			EfficiencyThreshold: cfg.Cost.EfficiencyThreshold,
			ReductionFactor:     cfg.Cost.ReductionFactor,
		}))
	}

	return engine
}

// runDemo drives the control loop against the simulator provider and the
// mock metrics source through a load spike and recovery, logging every bus
// event.
func runDemo(cfg *config.Config) error {
	logger.Info("Running scaling demo")

	cfg.Provider.Type = "simulator"
	if cfg.Provider.ProvisionTime <= 0 {
		cfg.Provider.ProvisionTime = 200 * time.Millisecond
	}

	system, err := buildSystem(cfg, true)
	if err != nil {
		return err
	}
	defer system.close()

	mock := findMockSource(system.source)

	eventChan := system.bus.SubscribeAll()
	go func() {
		for event := range eventChan {
			logger.Infof("[EVENT] %s: %s (severity: %s)", event.Type, event.Message, event.Severity)
		}
	}()

	ctx := context.Background()

	// Seed the fleet at the configured minimum.
	seed, err := system.autoscaler.ManualScale(ctx, cfg.Autoscaler.MinInstances, "demo seed")
	if err != nil {
		return fmt.Errorf("demo seed failed: %w", err)
	}
	logger.Infof("Seeded fleet: %d -> %d instances", seed.FromInstances, seed.ToInstances)

	phases := []struct {
		name   string
		cpu    float64
		memory float64
	}{
		{"steady", 0.50, 0.50},
		{"spike", 0.92, 0.75},
		{"sustained", 0.88, 0.78},
		{"recovery", 0.30, 0.40},
	}

	for _, phase := range phases {
		logger.Infof("Demo phase %q: cpu=%.2f memory=%.2f", phase.name, phase.cpu, phase.memory)
		if mock != nil {
			mock.SetBaseCPU(phase.cpu)
			mock.SetBaseMemory(phase.memory)
		}

		snapshot, err := system.source.CurrentMetrics(ctx)
		if err != nil {
			return fmt.Errorf("demo metrics failed: %w", err)
		}

		decision := system.autoscaler.EvaluateOnce(snapshot)
		logger.Infof("Decision: %s to %d instances (confidence %.2f): %s",
			decision.Action, decision.TargetInstances, decision.Confidence, decision.Reasoning)

		if decision.ShouldExecute() {
			event, err := system.executor.Execute(ctx, decision, models.TriggerPolicy)
			if err != nil {
				return fmt.Errorf("demo execution failed: %w", err)
			}
			logger.Infof("Scaled %d -> %d (%s)", event.FromInstances, event.ToInstances, event.Status)
		}
	}

	stats := system.autoscaler.Stats()
	logger.Infof("Demo complete: %d instances, %d scale events recorded",
		stats.CurrentInstances, len(system.autoscaler.ScaleHistory(0)))
	return nil
}

func findMockSource(source metrics.Source) *metrics.MockSource {
	type unwrapper interface {
		Unwrap() metrics.Source
	}
	for source != nil {
		if mock, ok := source.(*metrics.MockSource); ok {
			return mock
		}
		u, ok := source.(unwrapper)
		if !ok {
			return nil
		}
		source = u.Unwrap()
	}
	return nil
}
