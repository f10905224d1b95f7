package postgres

import (
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/rezkam/opsflow/internal/domain"
	"github.com/rezkam/opsflow/internal/ptr"
)

// === pgtype Conversion Helpers ===

// dateToPgtype converts a civil date to pgtype.Date.
func dateToPgtype(t time.Time) pgtype.Date {
	return pgtype.Date{Time: domain.AsDate(t), Valid: true}
}

// datePtrToPgtype converts *time.Time to pgtype.Date, NULL for nil.
func datePtrToPgtype(t *time.Time) pgtype.Date {
	if t == nil {
		return pgtype.Date{Valid: false}
	}
	return dateToPgtype(*t)
}

// pgtypeToDate converts pgtype.Date to a midnight-UTC time (zero if invalid).
func pgtypeToDate(d pgtype.Date) time.Time {
	if !d.Valid {
		return time.Time{}
	}
	return domain.AsDate(d.Time)
}

// pgtypeToDatePtr converts pgtype.Date to *time.Time (nil if invalid).
func pgtypeToDatePtr(d pgtype.Date) *time.Time {
	if !d.Valid {
		return nil
	}
	return ptr.To(pgtypeToDate(d))
}

func weekdaysToDB(days []time.Weekday) []int16 {
	out := make([]int16, len(days))
	for i, d := range days {
		out[i] = int16(d)
	}
	return out
}

func dbToWeekdays(days []int16) []time.Weekday {
	if len(days) == 0 {
		return nil
	}
	out := make([]time.Weekday, len(days))
	for i, d := range days {
		out[i] = time.Weekday(d)
	}
	return out
}

// === Row Scanning ===

const tenantColumns = `id, name, timezone, active, last_carry_over_on, created_at`

func scanTenant(row pgx.Row) (*domain.Tenant, error) {
	var t domain.Tenant
	var lastCarryOver pgtype.Date
	if err := row.Scan(&t.ID, &t.Name, &t.Timezone, &t.Active, &lastCarryOver, &t.CreatedAt); err != nil {
		return nil, err
	}
	t.LastCarryOverOn = pgtypeToDatePtr(lastCarryOver)
	t.CreatedAt = t.CreatedAt.UTC()
	return &t, nil
}

const templateColumns = `id, tenant_id, title, priority, client_id, preferred_staff_id,
	frequency, interval_n, weekdays, day_of_month, start_date, end_date,
	active, last_generated_date, created_at, updated_at`

func scanTemplate(row pgx.Row) (*domain.RecurringTemplate, error) {
	var (
		t                   domain.RecurringTemplate
		priority, frequency string
		weekdays            []int16
		start, end, lastGen pgtype.Date
	)
	err := row.Scan(
		&t.ID, &t.TenantID, &t.Title, &priority, &t.ClientID, &t.PreferredStaffID,
		&frequency, &t.Rule.Interval, &weekdays, &t.Rule.DayOfMonth, &start, &end,
		&t.Active, &lastGen, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	t.Priority = domain.TaskPriority(priority)
	t.Rule.Frequency = domain.Frequency(frequency)
	t.Rule.Weekdays = dbToWeekdays(weekdays)
	t.Rule.StartDate = pgtypeToDate(start)
	t.Rule.EndDate = pgtypeToDatePtr(end)
	t.LastGeneratedDate = pgtypeToDatePtr(lastGen)
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
	return &t, nil
}

const taskColumns = `id, tenant_id, client_id, assigned_staff_id, preferred_staff_id,
	title, priority, due_date, status, origin, template_id, occurrence_date,
	carry_over_count, seq, version, created_at, updated_at`

// scanTask scans taskColumns followed by any extra destinations.
func scanTask(row pgx.Row, extra ...any) (*domain.Task, error) {
	var (
		t                        domain.Task
		priority, status, origin string
		due, occurrence          pgtype.Date
	)
	dest := []any{
		&t.ID, &t.TenantID, &t.ClientID, &t.AssignedStaffID, &t.PreferredStaffID,
		&t.Title, &priority, &due, &status, &origin, &t.TemplateID, &occurrence,
		&t.CarryOverCount, &t.Seq, &t.Version, &t.CreatedAt, &t.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	t.Priority = domain.TaskPriority(priority)
	t.Status = domain.TaskStatus(status)
	t.Origin = domain.TaskOrigin(origin)
	t.DueDate = pgtypeToDate(due)
	t.OccurrenceDate = pgtypeToDatePtr(occurrence)
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
	return &t, nil
}

// qualified prefixes every column of a column list with alias.
func qualified(alias, columns string) string {
	cols := strings.Split(columns, ",")
	for i, c := range cols {
		cols[i] = alias + "." + strings.TrimSpace(c)
	}
	return strings.Join(cols, ", ")
}

func collectTasks(rows pgx.Rows) ([]*domain.Task, error) {
	defer rows.Close()
	var tasks []*domain.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// === Error Classification ===

const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
)

func pgErrorCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func isUniqueViolation(err error) bool {
	return pgErrorCode(err) == codeUniqueViolation
}

func isForeignKeyViolation(err error) bool {
	return pgErrorCode(err) == codeForeignKeyViolation
}

// liveStatuses and allocatableStatuses as SQL text arrays.
func liveStatuses() []string {
	return statusStrings(domain.LiveStatuses)
}

func allocatableStatuses() []string {
	return statusStrings(domain.AllocatableStatuses)
}

func statusStrings(statuses []domain.TaskStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
