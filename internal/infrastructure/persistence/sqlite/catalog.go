package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rezkam/opsflow/internal/domain"
)

// wrapWriteError maps constraint failures onto domain errors. modernc reports
// them as plain errors, so the message is inspected.
func wrapWriteError(op string, err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "UNIQUE constraint failed"):
		return fmt.Errorf("%s: %w: %w", op, domain.ErrAlreadyExists, err)
	case strings.Contains(msg, "FOREIGN KEY constraint failed"):
		return fmt.Errorf("%s: %w: %w", op, domain.ErrNotFound, err)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

func (s *Store) CreateTenant(ctx context.Context, tenant *domain.Tenant) error {
	if _, err := tenant.Location(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tenants (id, name, timezone, active, last_carry_over_on, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		tenant.ID, tenant.Name, tenant.Timezone, tenant.Active,
		formatDatePtr(tenant.LastCarryOverOn), formatTimestamp(tenant.CreatedAt))
	if err != nil {
		return wrapWriteError("failed to create tenant", err)
	}
	return nil
}

func (s *Store) CreateStaff(ctx context.Context, staff *domain.Staff) error {
	if staff.Capacity < 0 {
		return domain.ErrInvalidCapacity
	}
	tags, err := marshalTags(staff.Tags)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO staff (id, tenant_id, name, active, capacity, tags)
		VALUES (?, ?, ?, ?, ?, ?)`,
		staff.ID, staff.TenantID, staff.Name, staff.Active, staff.Capacity, tags)
	if err != nil {
		return wrapWriteError("failed to create staff", err)
	}
	return nil
}

func (s *Store) CreateClient(ctx context.Context, client *domain.Client) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO clients (id, tenant_id, name, assigned_staff_id)
		VALUES (?, ?, ?, ?)`,
		client.ID, client.TenantID, client.Name, nullString(client.AssignedStaffID))
	if err != nil {
		return wrapWriteError("failed to create client", err)
	}
	return nil
}

func (s *Store) CreateTemplate(ctx context.Context, tmpl *domain.RecurringTemplate) error {
	if err := tmpl.Validate(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO recurring_templates (`+templateColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tmpl.ID, tmpl.TenantID, tmpl.Title, string(tmpl.Priority),
		nullString(tmpl.ClientID), nullString(tmpl.PreferredStaffID),
		string(tmpl.Rule.Frequency), tmpl.Rule.Interval, formatWeekdays(tmpl.Rule.Weekdays), tmpl.Rule.DayOfMonth,
		domain.FormatDate(tmpl.Rule.StartDate), formatDatePtr(tmpl.Rule.EndDate),
		tmpl.Active, formatDatePtr(tmpl.LastGeneratedDate),
		formatTimestamp(tmpl.CreatedAt), formatTimestamp(tmpl.UpdatedAt))
	if err != nil {
		return wrapWriteError("failed to create template", err)
	}
	return nil
}

func (s *Store) CreateTask(ctx context.Context, task *domain.Task) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks (id, tenant_id, client_id, assigned_staff_id, preferred_staff_id,
			title, priority, due_date, status, origin, template_id, occurrence_date,
			carry_over_count, seq, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, `+nextSeq+`, 1, ?, ?)`,
		task.ID, task.TenantID, nullString(task.ClientID), nullString(task.AssignedStaffID),
		nullString(task.PreferredStaffID), task.Title, string(task.Priority),
		domain.FormatDate(task.DueDate), string(task.Status), string(task.Origin),
		nullString(task.TemplateID), formatDatePtr(task.OccurrenceDate), task.CarryOverCount,
		formatTimestamp(task.CreatedAt), formatTimestamp(task.UpdatedAt))
	if err != nil {
		return wrapWriteError("failed to create task", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT seq, version FROM tasks WHERE id = ?`, task.ID).
		Scan(&task.Seq, &task.Version); err != nil {
		return fmt.Errorf("failed to read created task: %w", err)
	}
	return nil
}

func (s *Store) FindTemplateByID(ctx context.Context, id string) (*domain.RecurringTemplate, error) {
	tmpl, err := scanTemplate(s.db.QueryRowContext(ctx,
		`SELECT `+templateColumns+` FROM recurring_templates WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", domain.ErrTemplateNotFound, id)
		}
		return nil, fmt.Errorf("failed to get template: %w", err)
	}
	return tmpl, nil
}

func (s *Store) FindTaskByID(ctx context.Context, id string) (*domain.Task, error) {
	task, err := scanTask(s.db.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", domain.ErrTaskNotFound, id)
		}
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return task, nil
}

// UpdateTaskStatus compares-and-sets on the status it read, so a concurrent
// move between the read and the write is reported as a conflict.
func (s *Store) UpdateTaskStatus(ctx context.Context, taskID string, status domain.TaskStatus) error {
	var current string
	err := s.db.QueryRowContext(ctx, `SELECT status FROM tasks WHERE id = ?`, taskID).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", domain.ErrTaskNotFound, taskID)
	}
	if err != nil {
		return fmt.Errorf("failed to get task: %w", err)
	}
	if !domain.TaskStatus(current).CanTransitionTo(status) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, current, status)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET status = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND status = ?`,
		string(status), formatTimestamp(time.Now()), taskID, current)
	if err != nil {
		return fmt.Errorf("failed to update task status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: task %s", domain.ErrVersionConflict, taskID)
	}
	return nil
}
