package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rezkam/opsflow/internal/application/automation"
	"github.com/rezkam/opsflow/internal/domain"
	"github.com/rezkam/opsflow/internal/ptr"
)

// Store implements the engine repositories on an embedded SQLite database.
// It backs the CLI, local development and the storage compliance tests.
type Store struct {
	db *sql.DB
}

var (
	_ automation.Repository = (*Store)(nil)
	_ automation.Catalog    = (*Store)(nil)
	_ automation.Store      = (*Store)(nil)
)

func newStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// DB returns the underlying database connection.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// timestampLayout is fixed-width so stored timestamps sort as text.
const timestampLayout = "2006-01-02T15:04:05.000000000Z"

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func parseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(timestampLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid stored timestamp %q: %w", s, err)
	}
	return t, nil
}

func formatDatePtr(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: domain.FormatDate(*t), Valid: true}
}

func parseDatePtr(s sql.NullString) (*time.Time, error) {
	if !s.Valid {
		return nil, nil
	}
	t, err := domain.ParseDate(s.String)
	if err != nil {
		return nil, err
	}
	return ptr.To(t), nil
}

func nullString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func stringPtr(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	return ptr.To(s.String)
}

func formatWeekdays(days []time.Weekday) string {
	parts := make([]string, len(days))
	for i, d := range days {
		parts[i] = strconv.Itoa(int(d))
	}
	return strings.Join(parts, ",")
}

func parseWeekdays(s string) ([]time.Weekday, error) {
	if s == "" {
		return nil, nil
	}
	var days []time.Weekday
	for part := range strings.SplitSeq(s, ",") {
		n, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("invalid stored weekday %q: %w", part, err)
		}
		days = append(days, time.Weekday(n))
	}
	return days, nil
}

// statusList renders statuses as a SQL IN list. Values are domain constants.
func statusList(statuses []domain.TaskStatus) string {
	quoted := make([]string, len(statuses))
	for i, s := range statuses {
		quoted[i] = "'" + string(s) + "'"
	}
	return strings.Join(quoted, ", ")
}

var (
	liveStatusList        = statusList(domain.LiveStatuses)
	allocatableStatusList = statusList(domain.AllocatableStatuses)
)

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

const tenantColumns = `id, name, timezone, active, last_carry_over_on, created_at`

func scanTenant(row rowScanner) (*domain.Tenant, error) {
	var (
		t             domain.Tenant
		lastCarryOver sql.NullString
		createdAt     string
	)
	if err := row.Scan(&t.ID, &t.Name, &t.Timezone, &t.Active, &lastCarryOver, &createdAt); err != nil {
		return nil, err
	}
	var err error
	if t.LastCarryOverOn, err = parseDatePtr(lastCarryOver); err != nil {
		return nil, err
	}
	if t.CreatedAt, err = parseTimestamp(createdAt); err != nil {
		return nil, err
	}
	return &t, nil
}

const templateColumns = `id, tenant_id, title, priority, client_id, preferred_staff_id,
	frequency, interval_n, weekdays, day_of_month, start_date, end_date,
	active, last_generated_date, created_at, updated_at`

func scanTemplate(row rowScanner) (*domain.RecurringTemplate, error) {
	var (
		t                                    domain.RecurringTemplate
		priority, frequency, weekdays, start string
		clientID, preferred, end, lastGen    sql.NullString
		createdAt, updatedAt                 string
	)
	err := row.Scan(
		&t.ID, &t.TenantID, &t.Title, &priority, &clientID, &preferred,
		&frequency, &t.Rule.Interval, &weekdays, &t.Rule.DayOfMonth, &start, &end,
		&t.Active, &lastGen, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	t.Priority = domain.TaskPriority(priority)
	t.ClientID = stringPtr(clientID)
	t.PreferredStaffID = stringPtr(preferred)
	t.Rule.Frequency = domain.Frequency(frequency)
	if t.Rule.Weekdays, err = parseWeekdays(weekdays); err != nil {
		return nil, err
	}
	if t.Rule.StartDate, err = domain.ParseDate(start); err != nil {
		return nil, err
	}
	if t.Rule.EndDate, err = parseDatePtr(end); err != nil {
		return nil, err
	}
	if t.LastGeneratedDate, err = parseDatePtr(lastGen); err != nil {
		return nil, err
	}
	if t.CreatedAt, err = parseTimestamp(createdAt); err != nil {
		return nil, err
	}
	if t.UpdatedAt, err = parseTimestamp(updatedAt); err != nil {
		return nil, err
	}
	return &t, nil
}

const taskColumns = `id, tenant_id, client_id, assigned_staff_id, preferred_staff_id,
	title, priority, due_date, status, origin, template_id, occurrence_date,
	carry_over_count, seq, version, created_at, updated_at`

// scanTask scans taskColumns followed by any extra destinations.
func scanTask(row rowScanner, extra ...any) (*domain.Task, error) {
	var (
		t                                   domain.Task
		clientID, assigned, preferred, tmpl sql.NullString
		occurrence                          sql.NullString
		priority, due, status, origin       string
		createdAt, updatedAt                string
	)
	dest := []any{
		&t.ID, &t.TenantID, &clientID, &assigned, &preferred,
		&t.Title, &priority, &due, &status, &origin, &tmpl, &occurrence,
		&t.CarryOverCount, &t.Seq, &t.Version, &createdAt, &updatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}

	var err error
	t.ClientID = stringPtr(clientID)
	t.AssignedStaffID = stringPtr(assigned)
	t.PreferredStaffID = stringPtr(preferred)
	t.TemplateID = stringPtr(tmpl)
	t.Priority = domain.TaskPriority(priority)
	t.Status = domain.TaskStatus(status)
	t.Origin = domain.TaskOrigin(origin)
	if t.DueDate, err = domain.ParseDate(due); err != nil {
		return nil, err
	}
	if t.OccurrenceDate, err = parseDatePtr(occurrence); err != nil {
		return nil, err
	}
	if t.CreatedAt, err = parseTimestamp(createdAt); err != nil {
		return nil, err
	}
	if t.UpdatedAt, err = parseTimestamp(updatedAt); err != nil {
		return nil, err
	}
	return &t, nil
}

func collectTasks(rows *sql.Rows) ([]*domain.Task, error) {
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

func marshalTags(tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("failed to marshal tags: %w", err)
	}
	return string(b), nil
}

func unmarshalTags(s string) ([]string, error) {
	var tags []string
	if err := json.Unmarshal([]byte(s), &tags); err != nil {
		return nil, fmt.Errorf("invalid stored tags: %w", err)
	}
	if len(tags) == 0 {
		return nil, nil
	}
	return tags, nil
}
