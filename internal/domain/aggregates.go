package domain

import (
	"fmt"
	"time"

	"github.com/rezkam/opsflow/internal/ptr"
)

// Tenant is an isolated organization. It owns the local day boundary used by
// carry-over and allocation. Nothing crosses tenants.
type Tenant struct {
	ID       string
	Name     string
	Timezone string // IANA name, empty means UTC
	Active   bool

	// LastCarryOverOn is the last tenant-local day the carry-over processor
	// completed for this tenant. Nil until the first run.
	LastCarryOverOn *time.Time

	CreatedAt time.Time
}

// Location resolves the tenant timezone.
func (t *Tenant) Location() (*time.Location, error) {
	if t.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(t.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidTimezone, t.Timezone, err)
	}
	return loc, nil
}

// Today returns the tenant-local calendar day of now.
func (t *Tenant) Today(now time.Time) (time.Time, error) {
	loc, err := t.Location()
	if err != nil {
		return time.Time{}, err
	}
	return DateIn(now, loc), nil
}

// NeedsCarryOver reports whether the carry-over processor has not yet run for today.
func (t *Tenant) NeedsCarryOver(today time.Time) bool {
	return t.LastCarryOverOn == nil || t.LastCarryOverOn.Before(today)
}

// Staff is a worker who can be assigned tasks.
type Staff struct {
	ID       string
	TenantID string
	Name     string
	Active   bool
	Capacity int // max concurrent open tasks
	Tags     []string
}

// StaffLoad is a staff member together with its open task count.
// It is computed fresh for every allocation run and never cached.
type StaffLoad struct {
	Staff     *Staff
	OpenTasks int
}

// Eligible reports whether the staff member can take one more task.
func (l *StaffLoad) Eligible() bool {
	return l.Staff.Active && l.OpenTasks < l.Staff.Capacity
}

// Client is a customer of a tenant. AssignedStaffID is the client-level
// preferred staff hint used by allocation.
type Client struct {
	ID              string
	TenantID        string
	Name            string
	AssignedStaffID *string
}

// RecurringTemplate produces tasks on a schedule.
type RecurringTemplate struct {
	ID               string
	TenantID         string
	Title            string
	Priority         TaskPriority
	ClientID         *string
	PreferredStaffID *string
	Rule             RecurrenceRule
	Active           bool

	// LastGeneratedDate is the inclusive high-water mark of generated
	// occurrences. Only the generator moves it, and only forward.
	LastGeneratedDate *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate checks the template before occurrences are evaluated from it.
func (t *RecurringTemplate) Validate() error {
	if _, err := NewTitle(t.Title); err != nil {
		return err
	}
	if _, err := NewTaskPriority(string(t.Priority)); err != nil {
		return err
	}
	return t.Rule.Validate()
}

// GenerateFrom returns the exclusive lower bound for the next generation pass:
// the watermark, or the day before StartDate if the template never generated.
func (t *RecurringTemplate) GenerateFrom() time.Time {
	if t.LastGeneratedDate != nil {
		return *t.LastGeneratedDate
	}
	return AddDays(t.Rule.StartDate, -1)
}

// NewTaskFor builds the task for one occurrence of the template.
func (t *RecurringTemplate) NewTaskFor(id string, dueDate, now time.Time) *Task {
	priority := t.Priority
	if priority == "" {
		priority = TaskPriorityMedium
	}
	return &Task{
		ID:               id,
		TenantID:         t.TenantID,
		ClientID:         t.ClientID,
		PreferredStaffID: t.PreferredStaffID,
		Title:            t.Title,
		Priority:         priority,
		DueDate:          dueDate,
		Status:           TaskStatusPending,
		Origin:           TaskOriginRecurring,
		TemplateID:       ptr.To(t.ID),
		OccurrenceDate:   ptr.To(dueDate),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// Task is a unit of work.
type Task struct {
	ID               string
	TenantID         string
	ClientID         *string
	AssignedStaffID  *string
	PreferredStaffID *string

	Title    string
	Priority TaskPriority
	DueDate  time.Time // civil date
	Status   TaskStatus
	Origin   TaskOrigin

	// TemplateID links generated tasks to their template.
	TemplateID *string
	// OccurrenceDate is the rule date a generated task was created for. It
	// never changes, so (TemplateID, OccurrenceDate) stays unique after
	// carry-over moves DueDate.
	OccurrenceDate *time.Time

	CarryOverCount int

	// Seq is the store-assigned creation order.
	Seq int64

	// Optimistic locking version for concurrent update protection
	Version int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// EscalationPolicy controls priority escalation of carried-over tasks.
type EscalationPolicy struct {
	// Threshold escalates every Threshold-th carry-over. Zero disables escalation.
	Threshold int
	// Ceiling is the highest priority escalation may reach.
	Ceiling TaskPriority
}

// Escalates reports whether reaching carry-over count n triggers escalation.
func (p EscalationPolicy) Escalates(n int) bool {
	return p.Threshold > 0 && n > 0 && n%p.Threshold == 0
}

// CarryOver moves an overdue live task onto today. It returns whether the
// priority was raised. Terminal tasks are rejected with ErrInvalidTransition.
func (t *Task) CarryOver(today, now time.Time, policy EscalationPolicy) (bool, error) {
	if !t.Status.CanTransitionTo(TaskStatusCarriedOver) {
		return false, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.Status, TaskStatusCarriedOver)
	}

	t.CarryOverCount++
	escalated := false
	if policy.Escalates(t.CarryOverCount) {
		raised := t.Priority.Raise(policy.Ceiling)
		escalated = raised != t.Priority
		t.Priority = raised
	}

	t.Status = TaskStatusCarriedOver
	t.Origin = TaskOriginCarryOver
	t.DueDate = today
	t.AssignedStaffID = nil
	t.UpdatedAt = now
	return escalated, nil
}

// Overdue reports whether a live task is due strictly before today.
func (t *Task) Overdue(today time.Time) bool {
	return t.Status.IsLive() && t.DueDate.Before(today)
}

// AllocationCandidate is an unassigned task together with its preferred staff
// hint (task preference, else the client's assigned staff).
type AllocationCandidate struct {
	Task *Task
	Hint *string
}

// AssignOutcome is the result of a conditional assignment write.
type AssignOutcome int

const (
	// AssignOutcomeAssigned means the task now belongs to the staff member.
	AssignOutcomeAssigned AssignOutcome = iota
	// AssignOutcomeAlreadyAssigned means another run claimed or closed the task first.
	AssignOutcomeAlreadyAssigned
	// AssignOutcomeStaffUnavailable means the staff member is inactive or full.
	AssignOutcomeStaffUnavailable
)

func (o AssignOutcome) String() string {
	switch o {
	case AssignOutcomeAssigned:
		return "assigned"
	case AssignOutcomeAlreadyAssigned:
		return "already_assigned"
	case AssignOutcomeStaffUnavailable:
		return "staff_unavailable"
	default:
		return "unknown"
	}
}

// AssignmentEvent is emitted to the notification sink for every assignment.
type AssignmentEvent struct {
	ID         string    `json:"id"`
	TenantID   string    `json:"tenant_id"`
	TaskID     string    `json:"task_id"`
	StaffID    string    `json:"staff_id"`
	AssignedAt time.Time `json:"assigned_at"`
}
