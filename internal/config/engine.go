package config

import (
	"fmt"

	"github.com/rezkam/opsflow/internal/domain"
)

// EngineConfig holds the automation engine policy knobs.
type EngineConfig struct {
	// LookbackDays bounds generation backfill. Zero means unbounded.
	LookbackDays int `env:"OPSFLOW_ENGINE_LOOKBACK_DAYS" default:"14"`

	// EscalationThreshold raises priority every N-th carry-over. Zero disables escalation.
	EscalationThreshold int `env:"OPSFLOW_ENGINE_ESCALATION_THRESHOLD" default:"2"`

	// EscalationCap is the highest priority escalation may reach.
	EscalationCap string `env:"OPSFLOW_ENGINE_ESCALATION_CAP" default:"urgent"`

	// ReminderHorizonDays is the default look-ahead of the reminder feed.
	ReminderHorizonDays int `env:"OPSFLOW_ENGINE_REMINDER_HORIZON_DAYS" default:"1"`
}

// Validate validates the engine configuration.
func (c *EngineConfig) Validate() error {
	if c.LookbackDays < 0 {
		return fmt.Errorf("OPSFLOW_ENGINE_LOOKBACK_DAYS must not be negative, got %d", c.LookbackDays)
	}
	if c.EscalationThreshold < 0 {
		return fmt.Errorf("OPSFLOW_ENGINE_ESCALATION_THRESHOLD must not be negative, got %d", c.EscalationThreshold)
	}
	if c.ReminderHorizonDays < 0 {
		return fmt.Errorf("OPSFLOW_ENGINE_REMINDER_HORIZON_DAYS must not be negative, got %d", c.ReminderHorizonDays)
	}
	if _, err := domain.NewTaskPriority(c.EscalationCap); err != nil {
		return fmt.Errorf("OPSFLOW_ENGINE_ESCALATION_CAP: %w", err)
	}
	return nil
}

// EscalationPolicy converts the config into the domain policy.
func (c *EngineConfig) EscalationPolicy() domain.EscalationPolicy {
	ceiling, err := domain.NewTaskPriority(c.EscalationCap)
	if err != nil {
		ceiling = domain.TaskPriorityUrgent
	}
	return domain.EscalationPolicy{Threshold: c.EscalationThreshold, Ceiling: ceiling}
}
