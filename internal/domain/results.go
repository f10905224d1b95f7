package domain

// GenerateResult summarizes one generation pass for a tenant.
type GenerateResult struct {
	Created    int
	Duplicates int // occurrences that already existed
	Dropped    int // occurrences older than the lookback window
	Skipped    []TemplateFailure
}

// TemplateFailure names a template the generator could not evaluate.
type TemplateFailure struct {
	TemplateID string
	Reason     string
}

// Assignment pairs a task with the staff member it went to.
type Assignment struct {
	TaskID  string
	StaffID string
}

// AllocationResult summarizes one allocation pass.
type AllocationResult struct {
	Assigned    int
	Assignments []Assignment
	// Unassigned lists tasks left over for lack of capacity, in candidate order.
	Unassigned []string
	// NotifyFailures counts assignment events the notifier rejected.
	NotifyFailures int
}

// CarryOverResult summarizes one carry-over pass.
type CarryOverResult struct {
	CarriedOver int
	Escalated   int
}
