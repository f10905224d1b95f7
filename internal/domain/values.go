package domain

// TaskStatus represents the current state of a task.
// Value object - immutable string enum.
type TaskStatus string

const (
	TaskStatusPending     TaskStatus = "pending"
	TaskStatusInProgress  TaskStatus = "in_progress"
	TaskStatusDone        TaskStatus = "done"
	TaskStatusCarriedOver TaskStatus = "carried_over"
	TaskStatusCancelled   TaskStatus = "cancelled"
)

// LiveStatuses are the non-terminal statuses. Tasks in these states count
// towards a staff member's open load.
var LiveStatuses = []TaskStatus{TaskStatusPending, TaskStatusInProgress, TaskStatusCarriedOver}

// AllocatableStatuses are the statuses the allocation engine picks work from.
var AllocatableStatuses = []TaskStatus{TaskStatusPending, TaskStatusCarriedOver}

// IsTerminal reports whether the status has no outgoing transitions.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusDone || s == TaskStatusCancelled
}

// IsLive reports whether the status is one of LiveStatuses.
func (s TaskStatus) IsLive() bool {
	switch s {
	case TaskStatusPending, TaskStatusInProgress, TaskStatusCarriedOver:
		return true
	default:
		return false
	}
}

// IsAllocatable reports whether the allocation engine may assign a task in this status.
func (s TaskStatus) IsAllocatable() bool {
	return s == TaskStatusPending || s == TaskStatusCarriedOver
}

// transitions is the task status state machine.
var transitions = map[TaskStatus][]TaskStatus{
	TaskStatusPending:     {TaskStatusInProgress, TaskStatusCarriedOver, TaskStatusCancelled},
	TaskStatusInProgress:  {TaskStatusDone, TaskStatusCarriedOver, TaskStatusCancelled},
	TaskStatusCarriedOver: {TaskStatusPending, TaskStatusInProgress, TaskStatusDone, TaskStatusCancelled},
}

// CanTransitionTo reports whether moving from s to next is allowed.
// Staying in the same live status (e.g. a second carry-over) is allowed.
func (s TaskStatus) CanTransitionTo(next TaskStatus) bool {
	if s == next {
		return s.IsLive()
	}
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// TaskPriority represents the priority level of a task.
// Priorities are totally ordered: low < medium < high < urgent.
type TaskPriority string

const (
	TaskPriorityLow    TaskPriority = "low"
	TaskPriorityMedium TaskPriority = "medium"
	TaskPriorityHigh   TaskPriority = "high"
	TaskPriorityUrgent TaskPriority = "urgent"
)

var priorityOrder = []TaskPriority{TaskPriorityLow, TaskPriorityMedium, TaskPriorityHigh, TaskPriorityUrgent}

// Rank returns the position of p in the priority order (low = 0).
// Unknown priorities rank as medium.
func (p TaskPriority) Rank() int {
	for i, candidate := range priorityOrder {
		if candidate == p {
			return i
		}
	}
	return 1
}

// Raise returns the next priority level, never exceeding ceiling.
// A priority already at or above ceiling is returned unchanged.
func (p TaskPriority) Raise(ceiling TaskPriority) TaskPriority {
	if p.Rank() >= ceiling.Rank() {
		return p
	}
	return priorityOrder[p.Rank()+1]
}

// TaskOrigin records how a task came into existence.
type TaskOrigin string

const (
	TaskOriginManual    TaskOrigin = "manual"
	TaskOriginRecurring TaskOrigin = "recurring"
	TaskOriginCarryOver TaskOrigin = "carry_over"
)

// Frequency is the recurrence frequency of a template.
type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
)
