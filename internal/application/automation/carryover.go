package automation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rezkam/opsflow/internal/domain"
)

// CarryOver rolls unfinished work onto the current tenant-local day.
type CarryOver struct {
	repo   Repository
	policy domain.EscalationPolicy
	opts   options
}

// NewCarryOver creates a carry-over processor with the given escalation policy.
func NewCarryOver(repo Repository, policy domain.EscalationPolicy, opts ...Option) *CarryOver {
	if policy.Ceiling == "" {
		policy.Ceiling = domain.TaskPriorityUrgent
	}
	return &CarryOver{
		repo:   repo,
		policy: policy,
		opts:   applyOptions(opts),
	}
}

// Process carries over the tenant's overdue tasks onto its current local day.
func (c *CarryOver) Process(ctx context.Context, tenantID string) (*domain.CarryOverResult, error) {
	today, err := tenantToday(ctx, c.repo, tenantID, c.opts.now())
	if err != nil {
		return nil, err
	}
	return c.ProcessOn(ctx, tenantID, today)
}

// ProcessOn carries over every live task due before today: the counter is
// incremented, the priority escalated per policy, and the task re-queued
// unassigned with today as its due date. Each write is a compare-and-set on
// the task version; a task changed concurrently is left alone.
func (c *CarryOver) ProcessOn(ctx context.Context, tenantID string, today time.Time) (*domain.CarryOverResult, error) {
	result := &domain.CarryOverResult{}

	tasks, err := c.repo.FindOverdueTasks(ctx, tenantID, today)
	if err != nil {
		return result, fmt.Errorf("failed to find overdue tasks: %w", err)
	}

	for _, task := range tasks {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		expectedVersion := task.Version
		escalated, err := task.CarryOver(today, c.opts.now(), c.policy)
		if err != nil {
			slog.WarnContext(ctx, "task not eligible for carry-over",
				"tenant_id", tenantID,
				"task_id", task.ID,
				"status", task.Status,
				"error", err)
			continue
		}

		err = c.repo.UpdateCarriedOverTask(ctx, task, expectedVersion)
		if errors.Is(err, domain.ErrVersionConflict) {
			slog.DebugContext(ctx, "task changed concurrently, skipping carry-over",
				"tenant_id", tenantID,
				"task_id", task.ID)
			continue
		}
		if err != nil {
			return result, fmt.Errorf("failed to carry over task %s: %w", task.ID, err)
		}

		result.CarriedOver++
		if escalated {
			result.Escalated++
		}
	}

	if result.CarriedOver > 0 {
		slog.InfoContext(ctx, "carry-over completed",
			"tenant_id", tenantID,
			"today", domain.FormatDate(today),
			"carried_over_count", result.CarriedOver,
			"escalated_count", result.Escalated)
	}

	return result, nil
}
