package automation

import (
	"context"
	"time"

	"github.com/rezkam/opsflow/internal/domain"
)

// Repository defines the storage operations the automation engine needs.
// Every write is a single conditional statement; implementations never hold
// locks across calls.
type Repository interface {
	// === Tenant Operations ===

	// FindTenantByID retrieves a tenant. Returns domain.ErrTenantNotFound if missing.
	FindTenantByID(ctx context.Context, id string) (*domain.Tenant, error)

	// ListActiveTenants returns all active tenants ordered by ID.
	ListActiveTenants(ctx context.Context) ([]*domain.Tenant, error)

	// MarkCarryOverDone records that carry-over completed for day.
	// The marker only moves forward; an older day is a no-op.
	MarkCarryOverDone(ctx context.Context, tenantID string, day time.Time) error

	// === Generation ===

	// FindActiveTemplates returns the tenant's active templates whose rule
	// starts on or before asOf.
	FindActiveTemplates(ctx context.Context, tenantID string, asOf time.Time) ([]*domain.RecurringTemplate, error)

	// InsertRecurringTask inserts a generated task unless one already exists
	// for the same (template, due date). Reports whether a row was inserted.
	InsertRecurringTask(ctx context.Context, task *domain.Task) (bool, error)

	// SetLastGeneratedDate advances the template watermark to through.
	// The watermark never moves backwards.
	SetLastGeneratedDate(ctx context.Context, templateID string, through time.Time) error

	// === Allocation ===

	// FindAllocationCandidates returns unassigned pending or carried-over tasks
	// due on or before today, each with its preferred staff hint.
	FindAllocationCandidates(ctx context.Context, tenantID string, today time.Time) ([]domain.AllocationCandidate, error)

	// FindStaffLoads returns active staff with a freshly counted open task load.
	FindStaffLoads(ctx context.Context, tenantID string) ([]*domain.StaffLoad, error)

	// AssignTask assigns a task if it is still unassigned and allocatable and
	// the staff member is still active with spare capacity. A carried-over task
	// returns to pending.
	AssignTask(ctx context.Context, tenantID, taskID, staffID string, at time.Time) (domain.AssignOutcome, error)

	// === Carry-Over ===

	// FindOverdueTasks returns live tasks due strictly before today.
	FindOverdueTasks(ctx context.Context, tenantID string, today time.Time) ([]*domain.Task, error)

	// UpdateCarriedOverTask persists a carried-over task if its version still
	// equals expectedVersion. Returns domain.ErrVersionConflict otherwise.
	UpdateCarriedOverTask(ctx context.Context, task *domain.Task, expectedVersion int) error

	// === Reminders ===

	// FindUpcomingAssigned returns assigned live tasks due within [from, to].
	FindUpcomingAssigned(ctx context.Context, tenantID string, from, to time.Time) ([]*domain.Task, error)
}

// Notifier receives assignment events. Delivery is best effort.
type Notifier interface {
	NotifyAssigned(ctx context.Context, event domain.AssignmentEvent) error
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, event domain.AssignmentEvent) error

func (f NotifierFunc) NotifyAssigned(ctx context.Context, event domain.AssignmentEvent) error {
	return f(ctx, event)
}
