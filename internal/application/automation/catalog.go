package automation

import (
	"context"

	"github.com/rezkam/opsflow/internal/domain"
)

// Catalog provisions and inspects the records the engine operates on.
// The engine itself never calls it; operators, the CLI and tests do.
type Catalog interface {
	CreateTenant(ctx context.Context, tenant *domain.Tenant) error
	CreateStaff(ctx context.Context, staff *domain.Staff) error
	CreateClient(ctx context.Context, client *domain.Client) error
	CreateTemplate(ctx context.Context, tmpl *domain.RecurringTemplate) error

	// CreateTask inserts a task and sets its store-assigned Seq and Version.
	CreateTask(ctx context.Context, task *domain.Task) error

	FindTemplateByID(ctx context.Context, id string) (*domain.RecurringTemplate, error)
	FindTaskByID(ctx context.Context, id string) (*domain.Task, error)

	// UpdateTaskStatus moves a task along the status state machine.
	// Returns domain.ErrInvalidTransition for a disallowed move.
	UpdateTaskStatus(ctx context.Context, taskID string, status domain.TaskStatus) error
}

// Store is a complete storage backend.
type Store interface {
	Repository
	Catalog
	Close() error
}
