package config

import "time"

type Config struct {
	App         AppConfig         `mapstructure:"app"`
	Balancer    BalancerConfig    `mapstructure:"balancer"`
	HealthCheck HealthCheckConfig `mapstructure:"health_check"`
	Autoscaler  AutoscalerConfig  `mapstructure:"autoscaler"`
	Policies    PoliciesConfig    `mapstructure:"policies"`
	Predictor   PredictorConfig   `mapstructure:"predictor"`
	Cost        CostConfig        `mapstructure:"cost"`
	Provider    ProviderConfig    `mapstructure:"provider"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
	API         APIConfig         `mapstructure:"api"`
	WebSocket   WebSocketConfig   `mapstructure:"websocket"`
	Events      EventsConfig      `mapstructure:"events"`
}

type AppConfig struct {
	Name            string        `mapstructure:"name"`
	Mode            string        `mapstructure:"mode"`
	LogLevel        string        `mapstructure:"log_level"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type BalancerConfig struct {
	Algorithm          string `mapstructure:"algorithm"`
	ResponseTimeWindow int    `mapstructure:"response_time_window"`
	VirtualNodes       int    `mapstructure:"virtual_nodes"`
}

type HealthCheckConfig struct {
	Interval time.Duration `mapstructure:"interval"`
	Timeout  time.Duration `mapstructure:"timeout"`
	Path     string        `mapstructure:"path"`
}

type AutoscalerConfig struct {
	ServiceName         string        `mapstructure:"service_name"`
	EvaluationInterval  time.Duration `mapstructure:"evaluation_interval"`
	MinInstances        int           `mapstructure:"min_instances"`
	MaxInstances        int           `mapstructure:"max_instances"`
	CooldownPeriod      time.Duration `mapstructure:"cooldown_period"`
	EmergencyCPU        float64       `mapstructure:"emergency_cpu"`
	ScaleDownSteps      int           `mapstructure:"scale_down_steps"`
	ObservationWindow   time.Duration `mapstructure:"observation_window"`
	DrainTimeout        time.Duration `mapstructure:"drain_timeout"`
	ProviderCallTimeout time.Duration `mapstructure:"provider_call_timeout"`
}

type PoliciesConfig struct {
	CPU         CPUPolicyConfig         `mapstructure:"cpu"`
	Memory      MemoryPolicyConfig      `mapstructure:"memory"`
	RequestRate RequestRatePolicyConfig `mapstructure:"request_rate"`
}

type CPUPolicyConfig struct {
	Enabled       bool    `mapstructure:"enabled"`
	HighThreshold float64 `mapstructure:"high_threshold"`
	LowThreshold  float64 `mapstructure:"low_threshold"`
	Target        float64 `mapstructure:"target"`
}

type MemoryPolicyConfig struct {
	Enabled       bool    `mapstructure:"enabled"`
	HighThreshold float64 `mapstructure:"high_threshold"`
	LowThreshold  float64 `mapstructure:"low_threshold"`
}

type RequestRatePolicyConfig struct {
	Enabled         bool    `mapstructure:"enabled"`
	RatePerInstance float64 `mapstructure:"rate_per_instance"`
}

type PredictorConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	HistorySize    int           `mapstructure:"history_size"`
	SampleWindow   int           `mapstructure:"sample_window"`
	ForecastWindow time.Duration `mapstructure:"forecast_window"`
	LoadThreshold  float64       `mapstructure:"load_threshold"`
}

type CostConfig struct {
	Enabled             bool    `mapstructure:"enabled"`
	InstanceCostPerHour float64 `mapstructure:"instance_cost_per_hour"`
	EfficiencyThreshold float64 `mapstructure:"efficiency_threshold"`
	ReductionFactor     float64 `mapstructure:"reduction_factor"`
}

type ProviderConfig struct {
	Type          string        `mapstructure:"type"`
	ProvisionTime time.Duration `mapstructure:"provision_time"`
	BasePort      int           `mapstructure:"base_port"`
}

type MetricsConfig struct {
	Type           string               `mapstructure:"type"`
	Endpoint       string               `mapstructure:"endpoint"`
	Timeout        time.Duration        `mapstructure:"timeout"`
	RetryAttempts  int                  `mapstructure:"retry_attempts"`
	RetryDelay     time.Duration        `mapstructure:"retry_delay"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
}

type CircuitBreakerConfig struct {
	MaxFailures int           `mapstructure:"max_failures"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

type APIConfig struct {
	Port          int           `mapstructure:"port"`
	ReadTimeout   time.Duration `mapstructure:"read_timeout"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout"`
	JWTSecret     string        `mapstructure:"jwt_secret"`
	JWTDuration   time.Duration `mapstructure:"jwt_duration"`
	AdminUser     string        `mapstructure:"admin_user"`
	AdminPassword string        `mapstructure:"admin_password"`
}

type WebSocketConfig struct {
	PingInterval    time.Duration `mapstructure:"ping_interval"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	PongTimeout     time.Duration `mapstructure:"pong_timeout"`
	MaxMessageSize  int64         `mapstructure:"max_message_size"`
	BroadcastBuffer int           `mapstructure:"broadcast_buffer"`
	ClientBuffer    int           `mapstructure:"client_buffer"`
}

type EventsConfig struct {
	BufferSize int `mapstructure:"buffer_size"`
}
