package automation

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezkam/opsflow/internal/domain"
	"github.com/rezkam/opsflow/internal/ptr"
)

func dailyTemplate(id, tenantID string, start time.Time) *domain.RecurringTemplate {
	return &domain.RecurringTemplate{
		ID:       id,
		TenantID: tenantID,
		Title:    "Daily " + id,
		Priority: domain.TaskPriorityMedium,
		Active:   true,
		Rule:     domain.RecurrenceRule{Frequency: domain.FrequencyDaily, Interval: 1, StartDate: start},
	}
}

func dueDates(repo *fakeRepository, templateID string) []time.Time {
	var out []time.Time
	for _, t := range repo.tasks {
		if t.TemplateID != nil && *t.TemplateID == templateID {
			out = append(out, t.DueDate)
		}
	}
	slices.SortFunc(out, time.Time.Compare)
	return out
}

func TestGenerator_CreatesOccurrencesAndAdvancesWatermark(t *testing.T) {
	repo := newFakeRepository()
	repo.addTenant("tenant-1", "")
	repo.addTemplate(dailyTemplate("tmpl-1", "tenant-1", domain.Date(2024, 1, 1)))

	gen := NewGenerator(repo, 0)
	result, err := gen.Generate(context.Background(), "tenant-1", domain.Date(2024, 1, 5))
	require.NoError(t, err)

	assert.Equal(t, 5, result.Created)
	assert.Zero(t, result.Duplicates)
	require.NotNil(t, repo.templates["tmpl-1"].LastGeneratedDate)
	assert.Equal(t, domain.Date(2024, 1, 5), *repo.templates["tmpl-1"].LastGeneratedDate)

	for _, task := range repo.tasks {
		assert.Equal(t, domain.TaskStatusPending, task.Status)
		assert.Equal(t, domain.TaskOriginRecurring, task.Origin)
		assert.Nil(t, task.AssignedStaffID)
	}
}

func TestGenerator_Idempotent(t *testing.T) {
	repo := newFakeRepository()
	repo.addTenant("tenant-1", "")
	repo.addTemplate(dailyTemplate("tmpl-1", "tenant-1", domain.Date(2024, 1, 1)))

	gen := NewGenerator(repo, 0)
	asOf := domain.Date(2024, 1, 3)

	first, err := gen.Generate(context.Background(), "tenant-1", asOf)
	require.NoError(t, err)
	assert.Equal(t, 3, first.Created)

	second, err := gen.Generate(context.Background(), "tenant-1", asOf)
	require.NoError(t, err)
	assert.Zero(t, second.Created)
	assert.Len(t, repo.tasks, 3)
}

func TestGenerator_DuplicatesCountedWhenWatermarkLags(t *testing.T) {
	// A crash between the inserts and the watermark update leaves rows behind
	// a stale watermark. Re-running must not create them twice.
	repo := newFakeRepository()
	repo.addTenant("tenant-1", "")
	repo.addTemplate(dailyTemplate("tmpl-1", "tenant-1", domain.Date(2024, 1, 1)))

	gen := NewGenerator(repo, 0)
	_, err := gen.Generate(context.Background(), "tenant-1", domain.Date(2024, 1, 3))
	require.NoError(t, err)

	repo.templates["tmpl-1"].LastGeneratedDate = nil

	result, err := gen.Generate(context.Background(), "tenant-1", domain.Date(2024, 1, 4))
	require.NoError(t, err)
	assert.Equal(t, 1, result.Created)
	assert.Equal(t, 3, result.Duplicates)
	assert.Len(t, repo.tasks, 4)
	assert.Equal(t, domain.Date(2024, 1, 4), *repo.templates["tmpl-1"].LastGeneratedDate)
}

func TestGenerator_WeeklyMonWed(t *testing.T) {
	repo := newFakeRepository()
	repo.addTenant("tenant-1", "")
	tmpl := dailyTemplate("tmpl-1", "tenant-1", domain.Date(2024, 1, 1))
	tmpl.Rule = domain.RecurrenceRule{
		Frequency: domain.FrequencyWeekly,
		Interval:  1,
		Weekdays:  []time.Weekday{time.Monday, time.Wednesday},
		StartDate: domain.Date(2024, 1, 1),
	}
	repo.addTemplate(tmpl)

	result, err := NewGenerator(repo, 0).Generate(context.Background(), "tenant-1", domain.Date(2024, 1, 10))
	require.NoError(t, err)

	assert.Equal(t, 4, result.Created)
	assert.Equal(t, []time.Time{
		domain.Date(2024, 1, 1), domain.Date(2024, 1, 3),
		domain.Date(2024, 1, 8), domain.Date(2024, 1, 10),
	}, dueDates(repo, "tmpl-1"))
}

func TestGenerator_LookbackBoundsBackfill(t *testing.T) {
	repo := newFakeRepository()
	repo.addTenant("tenant-1", "")
	repo.addTemplate(dailyTemplate("tmpl-1", "tenant-1", domain.Date(2024, 1, 1)))

	result, err := NewGenerator(repo, 3).Generate(context.Background(), "tenant-1", domain.Date(2024, 1, 10))
	require.NoError(t, err)

	assert.Equal(t, 3, result.Created)
	assert.Equal(t, 7, result.Dropped)
	assert.Equal(t, []time.Time{
		domain.Date(2024, 1, 8), domain.Date(2024, 1, 9), domain.Date(2024, 1, 10),
	}, dueDates(repo, "tmpl-1"))
}

func TestGenerator_SkipsInvalidTemplates(t *testing.T) {
	repo := newFakeRepository()
	repo.addTenant("tenant-1", "")

	broken := dailyTemplate("tmpl-a", "tenant-1", domain.Date(2024, 1, 1))
	broken.Rule.Interval = 0
	repo.addTemplate(broken)
	repo.addTemplate(dailyTemplate("tmpl-b", "tenant-1", domain.Date(2024, 1, 1)))

	result, err := NewGenerator(repo, 0).Generate(context.Background(), "tenant-1", domain.Date(2024, 1, 2))
	require.NoError(t, err)

	assert.Equal(t, 2, result.Created)
	require.Len(t, result.Skipped, 1)
	assert.Equal(t, "tmpl-a", result.Skipped[0].TemplateID)
	assert.Contains(t, result.Skipped[0].Reason, "interval")
	assert.Nil(t, repo.templates["tmpl-a"].LastGeneratedDate)
}

func TestGenerator_NoOccurrencesStillAdvancesWatermark(t *testing.T) {
	repo := newFakeRepository()
	repo.addTenant("tenant-1", "")
	tmpl := dailyTemplate("tmpl-1", "tenant-1", domain.Date(2024, 1, 1))
	tmpl.Rule = domain.RecurrenceRule{Frequency: domain.FrequencyMonthly, Interval: 1, DayOfMonth: 31, StartDate: domain.Date(2024, 2, 1)}
	repo.addTemplate(tmpl)

	result, err := NewGenerator(repo, 0).Generate(context.Background(), "tenant-1", domain.Date(2024, 2, 29))
	require.NoError(t, err)

	assert.Zero(t, result.Created)
	assert.Equal(t, domain.Date(2024, 2, 29), *repo.templates["tmpl-1"].LastGeneratedDate)
}

func TestGenerator_InsertErrorAborts(t *testing.T) {
	repo := newFakeRepository()
	repo.addTenant("tenant-1", "")
	repo.addTemplate(dailyTemplate("tmpl-1", "tenant-1", domain.Date(2024, 1, 1)))

	errDB := errors.New("connection reset")
	repo.insertRecurringTaskFunc = func(context.Context, *domain.Task) (bool, error) {
		return false, errDB
	}

	_, err := NewGenerator(repo, 0).Generate(context.Background(), "tenant-1", domain.Date(2024, 1, 2))
	require.ErrorIs(t, err, errDB)
	assert.Nil(t, repo.templates["tmpl-1"].LastGeneratedDate, "watermark must not advance past failed inserts")
}

func TestGenerator_TemplateListErrorAborts(t *testing.T) {
	repo := newFakeRepository()
	errDB := errors.New("timeout")
	repo.findActiveTemplatesFunc = func(context.Context, string, time.Time) ([]*domain.RecurringTemplate, error) {
		return nil, errDB
	}

	result, err := NewGenerator(repo, 0).Generate(context.Background(), "tenant-1", domain.Date(2024, 1, 2))
	require.ErrorIs(t, err, errDB)
	assert.NotNil(t, result)
}

func TestGenerator_CopiesTemplateFields(t *testing.T) {
	repo := newFakeRepository()
	repo.addTenant("tenant-1", "")
	tmpl := dailyTemplate("tmpl-1", "tenant-1", domain.Date(2024, 1, 1))
	tmpl.Priority = domain.TaskPriorityHigh
	tmpl.ClientID = ptr.To("client-1")
	tmpl.PreferredStaffID = ptr.To("staff-9")
	repo.addTemplate(tmpl)

	_, err := NewGenerator(repo, 0).Generate(context.Background(), "tenant-1", domain.Date(2024, 1, 1))
	require.NoError(t, err)

	require.Len(t, repo.tasks, 1)
	for _, task := range repo.tasks {
		assert.Equal(t, domain.TaskPriorityHigh, task.Priority)
		assert.Equal(t, "client-1", *task.ClientID)
		assert.Equal(t, "staff-9", *task.PreferredStaffID)
		assert.Equal(t, "tenant-1", task.TenantID)
	}
}
