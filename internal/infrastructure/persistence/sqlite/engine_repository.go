package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rezkam/opsflow/internal/domain"
)

// === Tenant Operations ===

func (s *Store) FindTenantByID(ctx context.Context, id string) (*domain.Tenant, error) {
	tenant, err := scanTenant(s.db.QueryRowContext(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", domain.ErrTenantNotFound, id)
		}
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}
	return tenant, nil
}

func (s *Store) ListActiveTenants(ctx context.Context) ([]*domain.Tenant, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE active = 1 ORDER BY id`)
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
	d := domain.FormatDate(day)
	res, err := s.db.ExecContext(ctx, `
		UPDATE tenants SET last_carry_over_on = ?
		WHERE id = ? AND (last_carry_over_on IS NULL OR last_carry_over_on < ?)`,
		d, tenantID, d)
	if err != nil {
		return fmt.Errorf("failed to mark carry-over done: %w", err)
	}
	return s.requireAffectedOrExists(ctx, res, "tenants", tenantID, domain.ErrTenantNotFound)
}

// requireAffectedOrExists distinguishes "condition not met" from "row missing"
// after a conditional update.
func (s *Store) requireAffectedOrExists(ctx context.Context, res sql.Result, table, id string, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n > 0 {
		return nil
	}
	var exists bool
	err = s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM `+table+` WHERE id = ?)`, id).Scan(&exists)
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
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+templateColumns+` FROM recurring_templates
		WHERE tenant_id = ? AND active = 1 AND start_date <= ?
		ORDER BY id`,
		tenantID, domain.FormatDate(asOf))
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

// nextSeq is evaluated inside the INSERT; the single connection makes it atomic.
const nextSeq = `(SELECT COALESCE(MAX(seq), 0) + 1 FROM tasks)`

func (s *Store) InsertRecurringTask(ctx context.Context, task *domain.Task) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks (id, tenant_id, client_id, assigned_staff_id, preferred_staff_id,
			title, priority, due_date, status, origin, template_id, occurrence_date,
			carry_over_count, seq, version, created_at, updated_at)
		VALUES (?, ?, ?, NULL, ?, ?, ?, ?, ?, ?, ?, ?, 0, `+nextSeq+`, 1, ?, ?)
		ON CONFLICT (template_id, occurrence_date) DO NOTHING`,
		task.ID, task.TenantID, nullString(task.ClientID), nullString(task.PreferredStaffID),
		task.Title, string(task.Priority), domain.FormatDate(task.DueDate), string(task.Status),
		string(task.Origin), nullString(task.TemplateID), formatDatePtr(task.OccurrenceDate),
		formatTimestamp(task.CreatedAt), formatTimestamp(task.CreatedAt))
	if err != nil {
		return false, fmt.Errorf("failed to insert recurring task: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return false, nil
	}
	if err := s.db.QueryRowContext(ctx, `SELECT seq, version FROM tasks WHERE id = ?`, task.ID).
		Scan(&task.Seq, &task.Version); err != nil {
		return true, fmt.Errorf("failed to read inserted task: %w", err)
	}
	return true, nil
}

func (s *Store) SetLastGeneratedDate(ctx context.Context, templateID string, through time.Time) error {
	d := domain.FormatDate(through)
	res, err := s.db.ExecContext(ctx, `
		UPDATE recurring_templates SET last_generated_date = ?, updated_at = ?
		WHERE id = ? AND (last_generated_date IS NULL OR last_generated_date < ?)`,
		d, formatTimestamp(time.Now()), templateID, d)
	if err != nil {
		return fmt.Errorf("failed to set generation watermark: %w", err)
	}
	return s.requireAffectedOrExists(ctx, res, "recurring_templates", templateID, domain.ErrTemplateNotFound)
}

// === Allocation ===

func (s *Store) FindAllocationCandidates(ctx context.Context, tenantID string, today time.Time) ([]domain.AllocationCandidate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+taskColumns+`,
			COALESCE(preferred_staff_id,
				(SELECT c.assigned_staff_id FROM clients c
				 WHERE c.id = tasks.client_id AND c.tenant_id = tasks.tenant_id))
		FROM tasks
		WHERE tenant_id = ?
			AND assigned_staff_id IS NULL
			AND status IN (`+allocatableStatusList+`)
			AND due_date <= ?
		ORDER BY seq`,
		tenantID, domain.FormatDate(today))
	if err != nil {
		return nil, fmt.Errorf("failed to list allocation candidates: %w", err)
	}
	defer rows.Close()

	var candidates []domain.AllocationCandidate
	for rows.Next() {
		var hint sql.NullString
		task, err := scanTask(rows, &hint)
		if err != nil {
			return nil, fmt.Errorf("failed to scan candidate: %w", err)
		}
		candidates = append(candidates, domain.AllocationCandidate{Task: task, Hint: stringPtr(hint)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list allocation candidates: %w", err)
	}
	return candidates, nil
}

// openTaskCount counts the live tasks of the staff row aliased s.
var openTaskCount = `(SELECT COUNT(*) FROM tasks o
	WHERE o.assigned_staff_id = s.id AND o.status IN (` + liveStatusList + `))`

func (s *Store) FindStaffLoads(ctx context.Context, tenantID string) ([]*domain.StaffLoad, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.tenant_id, s.name, s.active, s.capacity, s.tags, `+openTaskCount+`
		FROM staff s
		WHERE s.tenant_id = ? AND s.active = 1
		ORDER BY s.id`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list staff loads: %w", err)
	}
	defer rows.Close()

	var loads []*domain.StaffLoad
	for rows.Next() {
		var st domain.Staff
		var tags string
		var open int
		if err := rows.Scan(&st.ID, &st.TenantID, &st.Name, &st.Active, &st.Capacity, &tags, &open); err != nil {
			return nil, fmt.Errorf("failed to scan staff load: %w", err)
		}
		if st.Tags, err = unmarshalTags(tags); err != nil {
			return nil, err
		}
		loads = append(loads, &domain.StaffLoad{Staff: &st, OpenTasks: open})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list staff loads: %w", err)
	}
	return loads, nil
}

// AssignTask is one conditional UPDATE covering the task state and the staff
// capacity. When it matches nothing, the task row is re-read to tell the two
// failure outcomes apart.
func (s *Store) AssignTask(ctx context.Context, tenantID, taskID, staffID string, at time.Time) (domain.AssignOutcome, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET
			assigned_staff_id = ?,
			status = CASE WHEN status = 'carried_over' THEN 'pending' ELSE status END,
			version = version + 1,
			updated_at = ?
		WHERE id = ? AND tenant_id = ?
			AND assigned_staff_id IS NULL
			AND status IN (`+allocatableStatusList+`)
			AND EXISTS (
				SELECT 1 FROM staff s
				WHERE s.id = ? AND s.tenant_id = ? AND s.active = 1
					AND s.capacity > `+openTaskCount+`
			)`,
		staffID, formatTimestamp(at), taskID, tenantID, staffID, tenantID)
	if err != nil {
		return 0, fmt.Errorf("failed to assign task: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n > 0 {
		return domain.AssignOutcomeAssigned, nil
	}

	var assigned sql.NullString
	var status string
	err = s.db.QueryRowContext(ctx,
		`SELECT assigned_staff_id, status FROM tasks WHERE id = ? AND tenant_id = ?`,
		taskID, tenantID).Scan(&assigned, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.AssignOutcomeAlreadyAssigned, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read task: %w", err)
	}
	if assigned.Valid || !domain.TaskStatus(status).IsAllocatable() {
		return domain.AssignOutcomeAlreadyAssigned, nil
	}
	return domain.AssignOutcomeStaffUnavailable, nil
}

// === Carry-Over ===

func (s *Store) FindOverdueTasks(ctx context.Context, tenantID string, today time.Time) ([]*domain.Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+taskColumns+` FROM tasks
		WHERE tenant_id = ? AND status IN (`+liveStatusList+`) AND due_date < ?
		ORDER BY seq`,
		tenantID, domain.FormatDate(today))
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
	res, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET
			assigned_staff_id = ?,
			priority = ?,
			due_date = ?,
			status = ?,
			origin = ?,
			carry_over_count = ?,
			version = version + 1,
			updated_at = ?
		WHERE id = ? AND version = ?`,
		nullString(task.AssignedStaffID), string(task.Priority), domain.FormatDate(task.DueDate),
		string(task.Status), string(task.Origin), task.CarryOverCount, formatTimestamp(task.UpdatedAt),
		task.ID, expectedVersion)
	if err != nil {
		return fmt.Errorf("failed to update carried-over task: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: task %s", domain.ErrVersionConflict, task.ID)
	}
	task.Version = expectedVersion + 1
	return nil
}

// === Reminders ===

func (s *Store) FindUpcomingAssigned(ctx context.Context, tenantID string, from, to time.Time) ([]*domain.Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+taskColumns+` FROM tasks
		WHERE tenant_id = ?
			AND assigned_staff_id IS NOT NULL
			AND status IN (`+liveStatusList+`)
			AND due_date BETWEEN ? AND ?
		ORDER BY seq`,
		tenantID, domain.FormatDate(from), domain.FormatDate(to))
	if err != nil {
		return nil, fmt.Errorf("failed to list upcoming tasks: %w", err)
	}
	tasks, err := collectTasks(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to list upcoming tasks: %w", err)
	}
	return tasks, nil
}
