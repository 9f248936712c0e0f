package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/balancerd")
	}

	v.SetEnvPrefix("AUTOBALANCER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, use defaults and env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("app.name", "adaptive-balancer")
	v.SetDefault("app.mode", "development")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.shutdown_timeout", "30s")

	// Balancer defaults
	v.SetDefault("balancer.algorithm", "adaptive")
	v.SetDefault("balancer.response_time_window", 100)
	v.SetDefault("balancer.virtual_nodes", 100)

	// Health check defaults
	v.SetDefault("health_check.interval", "10s")
	v.SetDefault("health_check.timeout", "3s")
	v.SetDefault("health_check.path", "/health")

	// Autoscaler defaults
	v.SetDefault("autoscaler.service_name", "default")
	v.SetDefault("autoscaler.evaluation_interval", "30s")
	v.SetDefault("autoscaler.min_instances", 2)
	v.SetDefault("autoscaler.max_instances", 20)
	v.SetDefault("autoscaler.cooldown_period", "3m")
	v.SetDefault("autoscaler.emergency_cpu", 0.95)
	v.SetDefault("autoscaler.scale_down_steps", 3)
	v.SetDefault("autoscaler.observation_window", "60s")
	v.SetDefault("autoscaler.drain_timeout", "30s")
	v.SetDefault("autoscaler.provider_call_timeout", "60s")

	// Policy defaults
	v.SetDefault("policies.cpu.enabled", true)
	v.SetDefault("policies.cpu.high_threshold", 0.8)
	v.SetDefault("policies.cpu.low_threshold", 0.3)
	v.SetDefault("policies.cpu.target", 0.7)
	v.SetDefault("policies.memory.enabled", true)
	v.SetDefault("policies.memory.high_threshold", 0.85)
	v.SetDefault("policies.memory.low_threshold", 0.4)
	v.SetDefault("policies.request_rate.enabled", false)
	v.SetDefault("policies.request_rate.rate_per_instance", 100.0)

	// Predictor defaults
	v.SetDefault("predictor.enabled", true)
	v.SetDefault("predictor.history_size", 60)
	v.SetDefault("predictor.sample_window", 10)
	v.SetDefault("predictor.forecast_window", "5m")
	v.SetDefault("predictor.load_threshold", 0.8)

	// Cost defaults
	v.SetDefault("cost.enabled", false)
	v.SetDefault("cost.instance_cost_per_hour", 0.10)
	v.SetDefault("cost.efficiency_threshold", 0.6)
	v.SetDefault("cost.reduction_factor", 0.3)

	// Provider defaults
	v.SetDefault("provider.type", "simulator")
	v.SetDefault("provider.provision_time", "5s")
	v.SetDefault("provider.base_port", 9100)

	// Metrics defaults
	v.SetDefault("metrics.type", "http")
	v.SetDefault("metrics.endpoint", "http://localhost:9000/metrics")
	v.SetDefault("metrics.timeout", "5s")
	v.SetDefault("metrics.retry_attempts", 3)
	v.SetDefault("metrics.retry_delay", "1s")
	v.SetDefault("metrics.circuit_breaker.max_failures", 5)
	v.SetDefault("metrics.circuit_breaker.timeout", "30s")

	// API defaults
	v.SetDefault("api.port", 8080)
	v.SetDefault("api.read_timeout", "15s")
	v.SetDefault("api.write_timeout", "15s")
	v.SetDefault("api.jwt_secret", "change-me-in-production")
	v.SetDefault("api.jwt_duration", "24h")
	v.SetDefault("api.admin_user", "admin")

	// WebSocket defaults
	v.SetDefault("websocket.ping_interval", "30s")
	v.SetDefault("websocket.write_timeout", "10s")
	v.SetDefault("websocket.pong_timeout", "60s")
	v.SetDefault("websocket.max_message_size", 4096)
	v.SetDefault("websocket.broadcast_buffer", 256)
	v.SetDefault("websocket.client_buffer", 64)

	// Events defaults
	v.SetDefault("events.buffer_size", 100)
}
