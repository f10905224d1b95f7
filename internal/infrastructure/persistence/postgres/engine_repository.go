package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/rezkam/opsflow/internal/domain"
)

// === Engine Repository Implementation ===
// Implements application/automation.Repository

// === Tenant Operations ===

func (s *Store) FindTenantByID(ctx context.Context, id string) (*domain.Tenant, error) {
	tenant, err := scanTenant(s.db.QueryRow(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", domain.ErrTenantNotFound, id)
		}
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}
	return tenant, nil
}

func (s *Store) ListActiveTenants(ctx context.Context) ([]*domain.Tenant, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE active ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	defer rows.Close()

	var tenants []*domain.Tenant
	for rows.Next() {
		tenant, err := scanTenant(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tenant: %w", err)
		}
		tenants = append(tenants, tenant)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	return tenants, nil
}

func (s *Store) MarkCarryOverDone(ctx context.Context, tenantID string, day time.Time) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE tenants SET last_carry_over_on = $2
		WHERE id = $1 AND (last_carry_over_on IS NULL OR last_carry_over_on < $2)`,
		tenantID, dateToPgtype(day))
	if err != nil {
		return fmt.Errorf("failed to mark carry-over done: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.requireExists(ctx, "tenants", tenantID, domain.ErrTenantNotFound)
	}
	return nil
}

// requireExists distinguishes "condition not met" from "row missing" after a
// conditional update touched nothing.
func (s *Store) requireExists(ctx context.Context, table, id string, notFound error) error {
	var exists bool
	err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM `+table+` WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check %s: %w", table, err)
	}
	if !exists {
		return fmt.Errorf("%w: %s", notFound, id)
	}
	return nil
}

// === Generation ===

func (s *Store) FindActiveTemplates(ctx context.Context, tenantID string, asOf time.Time) ([]*domain.RecurringTemplate, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+templateColumns+` FROM recurring_templates
		WHERE tenant_id = $1 AND active AND start_date <= $2
		ORDER BY id`,
		tenantID, dateToPgtype(asOf))
	if err != nil {
		return nil, fmt.Errorf("failed to list active templates: %w", err)
	}
	defer rows.Close()

	var templates []*domain.RecurringTemplate
	for rows.Next() {
		tmpl, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan template: %w", err)
		}
		templates = append(templates, tmpl)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list active templates: %w", err)
	}
	return templates, nil
}

// InsertRecurringTask relies on the (template_id, occurrence_date) unique
// constraint; a concurrent generator for the same template converges on one row.
func (s *Store) InsertRecurringTask(ctx context.Context, task *domain.Task) (bool, error) {
	err := s.db.QueryRow(ctx, `
		INSERT INTO tasks (id, tenant_id, client_id, assigned_staff_id, preferred_staff_id,
			title, priority, due_date, status, origin, template_id, occurrence_date,
			carry_over_count, version, created_at, updated_at)
		VALUES ($1, $2, $3, NULL, $4, $5, $6, $7, $8, $9, $10, $11, 0, 1, $12, $12)
		ON CONFLICT (template_id, occurrence_date) DO NOTHING
		RETURNING seq, version`,
		task.ID, task.TenantID, task.ClientID, task.PreferredStaffID,
		task.Title, string(task.Priority), dateToPgtype(task.DueDate), string(task.Status),
		string(task.Origin), task.TemplateID, datePtrToPgtype(task.OccurrenceDate), task.CreatedAt,
	).Scan(&task.Seq, &task.Version)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to insert recurring task: %w", err)
	}
	return true, nil
}

func (s *Store) SetLastGeneratedDate(ctx context.Context, templateID string, through time.Time) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE recurring_templates SET last_generated_date = $2, updated_at = now()
		WHERE id = $1 AND (last_generated_date IS NULL OR last_generated_date < $2)`,
		templateID, dateToPgtype(through))
	if err != nil {
		return fmt.Errorf("failed to set generation watermark: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.requireExists(ctx, "recurring_templates", templateID, domain.ErrTemplateNotFound)
	}
	return nil
}

// === Allocation ===

func (s *Store) FindAllocationCandidates(ctx context.Context, tenantID string, today time.Time) ([]domain.AllocationCandidate, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+qualified("t", taskColumns)+`,
			COALESCE(t.preferred_staff_id, c.assigned_staff_id)
		FROM tasks t
		LEFT JOIN clients c ON c.id = t.client_id AND c.tenant_id = t.tenant_id
		WHERE t.tenant_id = $1
			AND t.assigned_staff_id IS NULL
			AND t.status = ANY($2)
			AND t.due_date <= $3
		ORDER BY t.seq`,
		tenantID, allocatableStatuses(), dateToPgtype(today))
	if err != nil {
		return nil, fmt.Errorf("failed to list allocation candidates: %w", err)
	}
	defer rows.Close()

	var candidates []domain.AllocationCandidate
	for rows.Next() {
		var hint *string
		task, err := scanTask(rows, &hint)
		if err != nil {
			return nil, fmt.Errorf("failed to scan candidate: %w", err)
		}
		candidates = append(candidates, domain.AllocationCandidate{Task: task, Hint: hint})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list allocation candidates: %w", err)
	}
	return candidates, nil
}

func (s *Store) FindStaffLoads(ctx context.Context, tenantID string) ([]*domain.StaffLoad, error) {
	rows, err := s.db.Query(ctx, `
		SELECT s.id, s.tenant_id, s.name, s.active, s.capacity, s.tags,
			(SELECT count(*) FROM tasks t
			 WHERE t.assigned_staff_id = s.id AND t.status = ANY($2))
		FROM staff s
		WHERE s.tenant_id = $1 AND s.active
		ORDER BY s.id`,
		tenantID, liveStatuses())
	if err != nil {
		return nil, fmt.Errorf("failed to list staff loads: %w", err)
	}
	defer rows.Close()

	var loads []*domain.StaffLoad
	for rows.Next() {
		var st domain.Staff
		var open int64
		if err := rows.Scan(&st.ID, &st.TenantID, &st.Name, &st.Active, &st.Capacity, &st.Tags, &open); err != nil {
			return nil, fmt.Errorf("failed to scan staff load: %w", err)
		}
		loads = append(loads, &domain.StaffLoad{Staff: &st, OpenTasks: int(open)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list staff loads: %w", err)
	}
	return loads, nil
}

// AssignTask locks the task row and then the staff row, so concurrent
// assignments to the same staff serialize on its capacity check.
func (s *Store) AssignTask(ctx context.Context, tenantID, taskID, staffID string, at time.Time) (domain.AssignOutcome, error) {
	var outcome domain.AssignOutcome
	err := s.executeInTransaction(ctx, "assign_task", func(tx *Store) error {
		var assigned *string
		var status string
		err := tx.db.QueryRow(ctx, `
			SELECT assigned_staff_id, status FROM tasks
			WHERE id = $1 AND tenant_id = $2
			FOR UPDATE`, taskID, tenantID).Scan(&assigned, &status)
		if errors.Is(err, pgx.ErrNoRows) {
			outcome = domain.AssignOutcomeAlreadyAssigned
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to lock task: %w", err)
		}
		if assigned != nil || !domain.TaskStatus(status).IsAllocatable() {
			outcome = domain.AssignOutcomeAlreadyAssigned
			return nil
		}

		var capacity int
		err = tx.db.QueryRow(ctx, `
			SELECT capacity FROM staff
			WHERE id = $1 AND tenant_id = $2 AND active
			FOR UPDATE`, staffID, tenantID).Scan(&capacity)
		if errors.Is(err, pgx.ErrNoRows) {
			outcome = domain.AssignOutcomeStaffUnavailable
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to lock staff: %w", err)
		}

		var open int
		err = tx.db.QueryRow(ctx, `
			SELECT count(*) FROM tasks
			WHERE assigned_staff_id = $1 AND status = ANY($2)`,
			staffID, liveStatuses()).Scan(&open)
		if err != nil {
			return fmt.Errorf("failed to count open tasks: %w", err)
		}
		if open >= capacity {
			outcome = domain.AssignOutcomeStaffUnavailable
			return nil
		}

		_, err = tx.db.Exec(ctx, `
			UPDATE tasks SET
				assigned_staff_id = $2,
				status = CASE WHEN status = $3 THEN $4 ELSE status END,
				version = version + 1,
				updated_at = $5
			WHERE id = $1`,
			taskID, staffID, string(domain.TaskStatusCarriedOver), string(domain.TaskStatusPending), at)
		if err != nil {
			return fmt.Errorf("failed to assign task: %w", err)
		}
		outcome = domain.AssignOutcomeAssigned
		return nil
	})
	if err != nil {
		return 0, err
	}
	return outcome, nil
}

// === Carry-Over ===

func (s *Store) FindOverdueTasks(ctx context.Context, tenantID string, today time.Time) ([]*domain.Task, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+taskColumns+` FROM tasks
		WHERE tenant_id = $1 AND status = ANY($2) AND due_date < $3
		ORDER BY seq`,
		tenantID, liveStatuses(), dateToPgtype(today))
	if err != nil {
		return nil, fmt.Errorf("failed to list overdue tasks: %w", err)
	}
	tasks, err := collectTasks(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to list overdue tasks: %w", err)
	}
	return tasks, nil
}

func (s *Store) UpdateCarriedOverTask(ctx context.Context, task *domain.Task, expectedVersion int) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE tasks SET
			assigned_staff_id = $3,
			priority = $4,
			due_date = $5,
			status = $6,
			origin = $7,
			carry_over_count = $8,
			version = version + 1,
			updated_at = $9
		WHERE id = $1 AND version = $2`,
		task.ID, expectedVersion, task.AssignedStaffID, string(task.Priority),
		dateToPgtype(task.DueDate), string(task.Status), string(task.Origin),
		task.CarryOverCount, task.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update carried-over task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: task %s", domain.ErrVersionConflict, task.ID)
	}
	task.Version = expectedVersion + 1
	return nil
}

// === Reminders ===

func (s *Store) FindUpcomingAssigned(ctx context.Context, tenantID string, from, to time.Time) ([]*domain.Task, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+taskColumns+` FROM tasks
		WHERE tenant_id = $1
			AND assigned_staff_id IS NOT NULL
			AND status = ANY($2)
			AND due_date BETWEEN $3 AND $4
		ORDER BY seq`,
		tenantID, liveStatuses(), dateToPgtype(from), dateToPgtype(to))
	if err != nil {
		return nil, fmt.Errorf("failed to list upcoming tasks: %w", err)
	}
	tasks, err := collectTasks(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to list upcoming tasks: %w", err)
	}
	return tasks, nil
}
