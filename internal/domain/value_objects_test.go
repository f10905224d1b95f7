package domain

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTitle_TrimsAndValidates(t *testing.T) {
	title, err := NewTitle("  Weekly payroll  ")
	require.NoError(t, err)
	assert.Equal(t, "Weekly payroll", title.String())

	_, err = NewTitle("   ")
	assert.ErrorIs(t, err, ErrTitleRequired)

	_, err = NewTitle(strings.Repeat("x", 256))
	assert.ErrorIs(t, err, ErrTitleTooLong)
}

func TestNewTaskPriority_CaseInsensitive(t *testing.T) {
	p, err := NewTaskPriority("URGENT")
	require.NoError(t, err)
	assert.Equal(t, TaskPriorityUrgent, p)
}

func TestNewTaskPriority_EmptyDefaultsToMedium(t *testing.T) {
	p, err := NewTaskPriority("")
	require.NoError(t, err)
	assert.Equal(t, TaskPriorityMedium, p)
}

func TestNewTaskPriority_Invalid(t *testing.T) {
	_, err := NewTaskPriority("critical")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidTaskPriority))
}

func TestNewTaskStatus(t *testing.T) {
	s, err := NewTaskStatus("Carried_Over")
	require.NoError(t, err)
	assert.Equal(t, TaskStatusCarriedOver, s)

	_, err = NewTaskStatus("archived")
	assert.ErrorIs(t, err, ErrInvalidTaskStatus)
}

func TestNewFrequency(t *testing.T) {
	f, err := NewFrequency("Weekly")
	require.NoError(t, err)
	assert.Equal(t, FrequencyWeekly, f)

	_, err = NewFrequency("yearly")
	assert.ErrorIs(t, err, ErrInvalidFrequency)
}

func TestParseWeekday(t *testing.T) {
	d, err := ParseWeekday("Wed")
	require.NoError(t, err)
	assert.Equal(t, time.Wednesday, d)

	d, err = ParseWeekday("sunday")
	require.NoError(t, err)
	assert.Equal(t, time.Sunday, d)

	_, err = ParseWeekday("funday")
	assert.ErrorIs(t, err, ErrInvalidRecurrenceRule)
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2024-02-29")
	require.NoError(t, err)
	assert.Equal(t, Date(2024, time.February, 29), d)

	_, err = ParseDate("2023-02-29")
	assert.ErrorIs(t, err, ErrInvalidDate)
}
