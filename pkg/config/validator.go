package config

import (
	"errors"
	"fmt"
)

var validAlgorithms = map[string]bool{
	"round_robin":         true,
	"least_connections":   true,
	"weighted_round_robin": true,
	"ip_hash":             true,
	"power_of_two":        true,
	"consistent_hashing":  true,
	"least_response_time": true,
	"adaptive":            true,
}

func (c *Config) Validate() error {
	var errs []error

	// App validation
	if c.App.Name == "" {
		errs = append(errs, errors.New("app.name is required"))
	}

	validModes := map[string]bool{"development": true, "production": true, "test": true}
	if !validModes[c.App.Mode] {
		errs = append(errs, fmt.Errorf("app.mode must be one of: development, production, test"))
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.App.LogLevel] {
		errs = append(errs, fmt.Errorf("app.log_level must be one of: debug, info, warn, error"))
	}

	// Balancer validation
	if !validAlgorithms[c.Balancer.Algorithm] {
		errs = append(errs, fmt.Errorf("balancer.algorithm %q is not supported", c.Balancer.Algorithm))
	}
	if c.Balancer.ResponseTimeWindow <= 0 {
		errs = append(errs, errors.New("balancer.response_time_window must be positive"))
	}
	if c.Balancer.VirtualNodes <= 0 {
		errs = append(errs, errors.New("balancer.virtual_nodes must be positive"))
	}

	// Health check validation
	if c.HealthCheck.Interval <= 0 {
		errs = append(errs, errors.New("health_check.interval must be positive"))
	}
	if c.HealthCheck.Timeout <= 0 {
		errs = append(errs, errors.New("health_check.timeout must be positive"))
	}
	if c.HealthCheck.Timeout >= c.HealthCheck.Interval {
		errs = append(errs, errors.New("health_check.timeout must be less than health_check.interval"))
	}

	// Autoscaler validation
	if c.Autoscaler.MinInstances <= 0 {
		errs = append(errs, errors.New("autoscaler.min_instances must be positive"))
	}
	if c.Autoscaler.MaxInstances < c.Autoscaler.MinInstances {
		errs = append(errs, errors.New("autoscaler.max_instances must be >= min_instances"))
	}
	if c.Autoscaler.EvaluationInterval <= 0 {
		errs = append(errs, errors.New("autoscaler.evaluation_interval must be positive"))
	}
	if c.Autoscaler.ScaleDownSteps <= 0 {
		errs = append(errs, errors.New("autoscaler.scale_down_steps must be positive"))
	}

	// Policy validation
	if c.Policies.CPU.Enabled && c.Policies.CPU.HighThreshold <= c.Policies.CPU.LowThreshold {
		errs = append(errs, errors.New("policies.cpu.high_threshold must be greater than low_threshold"))
	}
	if c.Policies.Memory.Enabled && c.Policies.Memory.HighThreshold <= c.Policies.Memory.LowThreshold {
		errs = append(errs, errors.New("policies.memory.high_threshold must be greater than low_threshold"))
	}
	if c.Policies.RequestRate.Enabled && c.Policies.RequestRate.RatePerInstance <= 0 {
		errs = append(errs, errors.New("policies.request_rate.rate_per_instance must be positive"))
	}

	// API validation
	if c.API.Port <= 0 || c.API.Port > 65535 {
		errs = append(errs, errors.New("api.port must be between 1 and 65535"))
	}
	if c.App.Mode == "production" && c.API.JWTSecret == "change-me-in-production" {
		errs = append(errs, errors.New("api.jwt_secret must be changed in production"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed: %v", errs)
	}

	return nil
}
