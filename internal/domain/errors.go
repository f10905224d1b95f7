package domain

import "errors"

// Domain errors returned by repository implementations and engine components.

var (
	// ErrNotFound indicates the requested resource does not exist.
	ErrNotFound = errors.New("resource not found")

	// ErrTenantNotFound indicates the specified tenant does not exist.
	ErrTenantNotFound = errors.New("tenant not found")

	// ErrTemplateNotFound indicates the specified recurring template does not exist.
	ErrTemplateNotFound = errors.New("recurring template not found")

	// ErrTaskNotFound indicates the specified task does not exist.
	ErrTaskNotFound = errors.New("task not found")

	// ErrInvalidID indicates the provided ID format is invalid.
	ErrInvalidID = errors.New("invalid ID format")

	// ErrAlreadyExists indicates a record with the same ID already exists.
	ErrAlreadyExists = errors.New("resource already exists")

	// ErrVersionConflict indicates an optimistic concurrency check failed.
	ErrVersionConflict = errors.New("version conflict")
)

// Validation errors.
var (
	ErrTitleRequired       = errors.New("title is required")
	ErrTitleTooLong        = errors.New("title must be at most 255 characters")
	ErrInvalidTaskStatus   = errors.New("invalid task status")
	ErrInvalidTaskPriority = errors.New("invalid task priority")
	ErrInvalidFrequency    = errors.New("invalid recurrence frequency")
	ErrInvalidTimezone     = errors.New("invalid timezone")
	ErrInvalidDate         = errors.New("invalid date")
	ErrInvalidTransition   = errors.New("invalid task status transition")
	ErrInvalidCapacity     = errors.New("capacity must not be negative")

	// ErrInvalidRecurrenceRule is wrapped by every rule validation failure below.
	ErrInvalidRecurrenceRule = errors.New("invalid recurrence rule")
	ErrIntervalTooSmall      = errors.New("interval must be at least 1")
	ErrWeekdaysRequired      = errors.New("weekly rule requires at least one weekday")
	ErrDayOfMonthOutOfRange  = errors.New("day of month must be between 1 and 31")
	ErrStartDateRequired     = errors.New("start date is required")
	ErrEndBeforeStart        = errors.New("end date is before start date")
)
