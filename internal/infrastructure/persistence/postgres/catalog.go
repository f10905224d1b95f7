package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/rezkam/opsflow/internal/domain"
)

// === Catalog Implementation ===
// Implements application/automation.Catalog

// wrapWriteError maps constraint violations onto domain errors, keeping the
// driver error in the chain.
func wrapWriteError(op string, err error) error {
	switch {
	case isUniqueViolation(err):
		return fmt.Errorf("%s: %w: %w", op, domain.ErrAlreadyExists, err)
	case isForeignKeyViolation(err):
		return fmt.Errorf("%s: %w: %w", op, domain.ErrNotFound, err)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

func (s *Store) CreateTenant(ctx context.Context, tenant *domain.Tenant) error {
	if _, err := tenant.Location(); err != nil {
		return err
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO tenants (id, name, timezone, active, last_carry_over_on, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		tenant.ID, tenant.Name, tenant.Timezone, tenant.Active,
		datePtrToPgtype(tenant.LastCarryOverOn), tenant.CreatedAt)
	if err != nil {
		return wrapWriteError("failed to create tenant", err)
	}
	return nil
}

func (s *Store) CreateStaff(ctx context.Context, staff *domain.Staff) error {
	if staff.Capacity < 0 {
		return domain.ErrInvalidCapacity
	}
	tags := staff.Tags
	if tags == nil {
		tags = []string{}
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO staff (id, tenant_id, name, active, capacity, tags)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		staff.ID, staff.TenantID, staff.Name, staff.Active, staff.Capacity, tags)
	if err != nil {
		return wrapWriteError("failed to create staff", err)
	}
	return nil
}

func (s *Store) CreateClient(ctx context.Context, client *domain.Client) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO clients (id, tenant_id, name, assigned_staff_id)
		VALUES ($1, $2, $3, $4)`,
		client.ID, client.TenantID, client.Name, client.AssignedStaffID)
	if err != nil {
		return wrapWriteError("failed to create client", err)
	}
	return nil
}

func (s *Store) CreateTemplate(ctx context.Context, tmpl *domain.RecurringTemplate) error {
	if err := tmpl.Validate(); err != nil {
		return err
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO recurring_templates (`+templateColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		tmpl.ID, tmpl.TenantID, tmpl.Title, string(tmpl.Priority), tmpl.ClientID, tmpl.PreferredStaffID,
		string(tmpl.Rule.Frequency), tmpl.Rule.Interval, weekdaysToDB(tmpl.Rule.Weekdays), tmpl.Rule.DayOfMonth,
		dateToPgtype(tmpl.Rule.StartDate), datePtrToPgtype(tmpl.Rule.EndDate),
		tmpl.Active, datePtrToPgtype(tmpl.LastGeneratedDate), tmpl.CreatedAt, tmpl.UpdatedAt)
	if err != nil {
		return wrapWriteError("failed to create template", err)
	}
	return nil
}

func (s *Store) CreateTask(ctx context.Context, task *domain.Task) error {
	err := s.db.QueryRow(ctx, `
		INSERT INTO tasks (id, tenant_id, client_id, assigned_staff_id, preferred_staff_id,
			title, priority, due_date, status, origin, template_id, occurrence_date,
			carry_over_count, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, 1, $14, $15)
		RETURNING seq, version`,
		task.ID, task.TenantID, task.ClientID, task.AssignedStaffID, task.PreferredStaffID,
		task.Title, string(task.Priority), dateToPgtype(task.DueDate), string(task.Status),
		string(task.Origin), task.TemplateID, datePtrToPgtype(task.OccurrenceDate),
		task.CarryOverCount, task.CreatedAt, task.UpdatedAt,
	).Scan(&task.Seq, &task.Version)
	if err != nil {
		return wrapWriteError("failed to create task", err)
	}
	return nil
}

func (s *Store) FindTemplateByID(ctx context.Context, id string) (*domain.RecurringTemplate, error) {
	tmpl, err := scanTemplate(s.db.QueryRow(ctx,
		`SELECT `+templateColumns+` FROM recurring_templates WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", domain.ErrTemplateNotFound, id)
		}
		return nil, fmt.Errorf("failed to get template: %w", err)
	}
	return tmpl, nil
}

func (s *Store) FindTaskByID(ctx context.Context, id string) (*domain.Task, error) {
	task, err := scanTask(s.db.QueryRow(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", domain.ErrTaskNotFound, id)
		}
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return task, nil
}

func (s *Store) UpdateTaskStatus(ctx context.Context, taskID string, status domain.TaskStatus) error {
	return s.executeInTransaction(ctx, "update_task_status", func(tx *Store) error {
		var current string
		err := tx.db.QueryRow(ctx, `SELECT status FROM tasks WHERE id = $1 FOR UPDATE`, taskID).Scan(&current)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: %s", domain.ErrTaskNotFound, taskID)
		}
		if err != nil {
			return fmt.Errorf("failed to lock task: %w", err)
		}
		if !domain.TaskStatus(current).CanTransitionTo(status) {
			return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, current, status)
		}
		_, err = tx.db.Exec(ctx, `
			UPDATE tasks SET status = $2, version = version + 1, updated_at = now()
			WHERE id = $1`, taskID, string(status))
		if err != nil {
			return fmt.Errorf("failed to update task status: %w", err)
		}
		return nil
	})
}
