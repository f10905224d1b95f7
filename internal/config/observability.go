package config

// ObservabilityConfig holds observability configuration.
type ObservabilityConfig struct {
	OTelEnabled bool   `env:"OPSFLOW_OTEL_ENABLED" default:"false"`
	ServiceName string `env:"OTEL_SERVICE_NAME" default:"opsflow"`
	LogLevel    string `env:"OPSFLOW_LOG_LEVEL" default:"info"`
}
