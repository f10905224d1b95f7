package config

import (
	"fmt"

	"github.com/rezkam/opsflow/internal/env"
)

// TestConfig holds configuration for integration and benchmark tests.
// An empty DSN means PostgreSQL-backed tests are skipped.
type TestConfig struct {
	PostgresDSN string `env:"OPSFLOW_TEST_DB_DSN"`
}

// LoadTestConfig loads test configuration from environment.
func LoadTestConfig() (*TestConfig, error) {
	cfg := &TestConfig{}

	if err := env.Load(cfg); err != nil {
		return nil, fmt.Errorf("failed to load test config: %w", err)
	}

	return cfg, nil
}
