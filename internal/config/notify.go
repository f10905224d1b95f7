package config

import (
	"fmt"
	"time"
)

// NotifyConfig selects the notification sinks for assignment events.
type NotifyConfig struct {
	// Sinks is a comma separated list of: log, webhook, outbox.
	Sinks []string `env:"OPSFLOW_NOTIFY_SINKS" default:"log"`

	WebhookURL        string        `env:"OPSFLOW_NOTIFY_WEBHOOK_URL"`
	WebhookTimeout    time.Duration `env:"OPSFLOW_NOTIFY_WEBHOOK_TIMEOUT" default:"5s"`
	WebhookMaxRetries int           `env:"OPSFLOW_NOTIFY_WEBHOOK_MAX_RETRIES" default:"3"`
	WebhookBackoff    time.Duration `env:"OPSFLOW_NOTIFY_WEBHOOK_BACKOFF" default:"200ms"`
}

// Validate validates the notification configuration.
func (c *NotifyConfig) Validate() error {
	for _, sink := range c.Sinks {
		switch sink {
		case "log", "outbox":
		case "webhook":
			if c.WebhookURL == "" {
				return fmt.Errorf("OPSFLOW_NOTIFY_WEBHOOK_URL is required when the webhook sink is enabled")
			}
		default:
			return fmt.Errorf("unknown notification sink %q", sink)
		}
	}
	if c.WebhookMaxRetries < 0 {
		return fmt.Errorf("OPSFLOW_NOTIFY_WEBHOOK_MAX_RETRIES must not be negative, got %d", c.WebhookMaxRetries)
	}
	return nil
}
