package config

import (
	"fmt"

	"github.com/rezkam/opsflow/internal/env"
)

// CLIConfig holds the configuration of the opsctl binary. It shares the
// database, engine and batch sections with the worker.
type CLIConfig struct {
	Database      DatabaseConfig
	Engine        EngineConfig
	Batch         BatchConfig
	Notify        NotifyConfig
	Report        ReportConfig
	Observability ObservabilityConfig
}

// LoadCLIConfig parses environment variables into a CLIConfig.
func LoadCLIConfig() (*CLIConfig, error) {
	cfg := &CLIConfig{}

	if err := env.Load(cfg); err != nil {
		return nil, fmt.Errorf("failed to load cli config: %w", err)
	}

	return cfg, nil
}
