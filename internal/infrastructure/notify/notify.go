// Package notify delivers assignment events to downstream consumers.
package notify

import (
	"context"
	"errors"
	"log/slog"

	"github.com/rezkam/opsflow/internal/application/automation"
	"github.com/rezkam/opsflow/internal/domain"
)

// LogNotifier writes every assignment event to the structured log.
type LogNotifier struct {
	logger *slog.Logger
}

var _ automation.Notifier = (*LogNotifier)(nil)

// NewLogNotifier creates a log sink. A nil logger uses slog.Default().
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) NotifyAssigned(ctx context.Context, event domain.AssignmentEvent) error {
	n.logger.InfoContext(ctx, "task assigned",
		"event_id", event.ID,
		"tenant_id", event.TenantID,
		"task_id", event.TaskID,
		"staff_id", event.StaffID,
		"assigned_at", event.AssignedAt)
	return nil
}

// Multi fans an event out to every sink. All sinks are attempted; their
// errors are joined.
type Multi []automation.Notifier

var _ automation.Notifier = Multi(nil)

func (m Multi) NotifyAssigned(ctx context.Context, event domain.AssignmentEvent) error {
	var errs []error
	for _, n := range m {
		if err := n.NotifyAssigned(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
