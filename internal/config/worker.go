package config

import (
	"fmt"
	"time"

	"github.com/rezkam/opsflow/internal/env"
)

// WorkerConfig holds all configuration for the worker binary.
type WorkerConfig struct {
	Database      DatabaseConfig
	Engine        EngineConfig
	Batch         BatchConfig
	Scheduler     SchedulerConfig
	Notify        NotifyConfig
	Report        ReportConfig
	Health        HealthConfig
	Observability ObservabilityConfig

	ShutdownTimeout time.Duration `env:"OPSFLOW_SHUTDOWN_TIMEOUT" default:"30s"`
}

// BatchConfig controls the tenant fan-out of one batch run.
type BatchConfig struct {
	Concurrency   int           `env:"OPSFLOW_BATCH_CONCURRENCY" default:"4"`
	TenantTimeout time.Duration `env:"OPSFLOW_BATCH_TENANT_TIMEOUT" default:"30s"`
}

// Validate validates the batch configuration.
func (c *BatchConfig) Validate() error {
	if c.Concurrency < 1 {
		return fmt.Errorf("OPSFLOW_BATCH_CONCURRENCY must be at least 1, got %d", c.Concurrency)
	}
	if c.TenantTimeout < 0 {
		return fmt.Errorf("OPSFLOW_BATCH_TENANT_TIMEOUT must not be negative, got %s", c.TenantTimeout)
	}
	return nil
}

// SchedulerConfig controls the periodic trigger.
type SchedulerConfig struct {
	Interval time.Duration `env:"OPSFLOW_SCHEDULER_INTERVAL" default:"5m"`
	// MaxStartupJitter delays the first run by a random duration up to this value.
	MaxStartupJitter time.Duration `env:"OPSFLOW_SCHEDULER_MAX_STARTUP_JITTER" default:"10s"`
}

// Validate validates the scheduler configuration.
func (c *SchedulerConfig) Validate() error {
	if c.Interval <= 0 {
		return fmt.Errorf("OPSFLOW_SCHEDULER_INTERVAL must be positive, got %s", c.Interval)
	}
	return nil
}

// HealthConfig configures the gRPC health endpoint of the worker.
type HealthConfig struct {
	Enabled bool   `env:"OPSFLOW_HEALTH_ENABLED" default:"true"`
	Addr    string `env:"OPSFLOW_HEALTH_ADDR" default:":8090"`
}

// LoadWorkerConfig loads and validates worker configuration from environment.
func LoadWorkerConfig() (*WorkerConfig, error) {
	cfg := &WorkerConfig{}

	if err := env.Load(cfg); err != nil {
		return nil, fmt.Errorf("failed to load worker config: %w", err)
	}

	return cfg, nil
}
