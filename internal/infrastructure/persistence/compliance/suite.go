// Package compliance holds the behavioral test suite every storage backend
// must pass. Backends run it from their own tests.
package compliance

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezkam/opsflow/internal/application/automation"
	"github.com/rezkam/opsflow/internal/domain"
	"github.com/rezkam/opsflow/internal/ptr"
)

// Setup returns a fresh, empty store. Cleanup is registered on t.
type Setup func(t *testing.T) automation.Store

var (
	jan1  = domain.Date(2024, time.January, 1)
	jan3  = domain.Date(2024, time.January, 3)
	jan5  = domain.Date(2024, time.January, 5)
	jan10 = domain.Date(2024, time.January, 10)
	now   = time.Date(2024, time.January, 10, 9, 0, 0, 0, time.UTC)
)

// fixture seeds one tenant with two staff members and a client.
type fixture struct {
	store  automation.Store
	tenant *domain.Tenant
}

func newFixture(t *testing.T, setup Setup) *fixture {
	t.Helper()
	ctx := context.Background()
	store := setup(t)

	tenant := &domain.Tenant{ID: "acme", Name: "Acme", Timezone: "Europe/Berlin", Active: true, CreatedAt: now}
	require.NoError(t, store.CreateTenant(ctx, tenant))
	require.NoError(t, store.CreateStaff(ctx, &domain.Staff{ID: "s1", TenantID: "acme", Name: "Ada", Active: true, Capacity: 2, Tags: []string{"tax"}}))
	require.NoError(t, store.CreateStaff(ctx, &domain.Staff{ID: "s2", TenantID: "acme", Name: "Bob", Active: true, Capacity: 1}))
	require.NoError(t, store.CreateClient(ctx, &domain.Client{ID: "c1", TenantID: "acme", Name: "Client", AssignedStaffID: ptr.To("s2")}))

	return &fixture{store: store, tenant: tenant}
}

func (f *fixture) task(t *testing.T, id string, due time.Time, mutate ...func(*domain.Task)) *domain.Task {
	t.Helper()
	task := &domain.Task{
		ID:        id,
		TenantID:  f.tenant.ID,
		Title:     "Task " + id,
		Priority:  domain.TaskPriorityMedium,
		DueDate:   due,
		Status:    domain.TaskStatusPending,
		Origin:    domain.TaskOriginManual,
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, m := range mutate {
		m(task)
	}
	require.NoError(t, f.store.CreateTask(context.Background(), task))
	return task
}

func (f *fixture) template(t *testing.T, id string, mutate ...func(*domain.RecurringTemplate)) *domain.RecurringTemplate {
	t.Helper()
	tmpl := &domain.RecurringTemplate{
		ID:       id,
		TenantID: f.tenant.ID,
		Title:    "Weekly review",
		Priority: domain.TaskPriorityHigh,
		ClientID: ptr.To("c1"),
		Rule: domain.RecurrenceRule{
			Frequency: domain.FrequencyWeekly,
			Interval:  1,
			Weekdays:  []time.Weekday{time.Monday, time.Wednesday},
			StartDate: jan1,
		},
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, m := range mutate {
		m(tmpl)
	}
	require.NoError(t, f.store.CreateTemplate(context.Background(), tmpl))
	return tmpl
}

// RunRepositoryComplianceTest runs the standard repository behavior tests
// against a storage backend.
func RunRepositoryComplianceTest(t *testing.T, setup Setup) {
	t.Run("Tenants", func(t *testing.T) { testTenants(t, setup) })
	t.Run("Templates", func(t *testing.T) { testTemplates(t, setup) })
	t.Run("RecurringInsert", func(t *testing.T) { testRecurringInsert(t, setup) })
	t.Run("AllocationReads", func(t *testing.T) { testAllocationReads(t, setup) })
	t.Run("AssignTask", func(t *testing.T) { testAssignTask(t, setup) })
	t.Run("CarryOverWrites", func(t *testing.T) { testCarryOverWrites(t, setup) })
	t.Run("UpcomingAssigned", func(t *testing.T) { testUpcomingAssigned(t, setup) })
	t.Run("TaskStatus", func(t *testing.T) { testTaskStatus(t, setup) })
	t.Run("EngineRoundTrip", func(t *testing.T) { testEngineRoundTrip(t, setup) })
	t.Run("GenerateAfterCarryOver", func(t *testing.T) { testGenerateAfterCarryOver(t, setup) })
}

func testTenants(t *testing.T, setup Setup) {
	ctx := context.Background()
	f := newFixture(t, setup)

	require.NoError(t, f.store.CreateTenant(ctx, &domain.Tenant{ID: "dormant", Name: "Dormant", Active: false, CreatedAt: now}))
	require.NoError(t, f.store.CreateTenant(ctx, &domain.Tenant{ID: "aardvark", Name: "A", Active: true, CreatedAt: now}))

	t.Run("find", func(t *testing.T) {
		got, err := f.store.FindTenantByID(ctx, "acme")
		require.NoError(t, err)
		assert.Equal(t, "Europe/Berlin", got.Timezone)
		assert.True(t, got.Active)
		assert.Nil(t, got.LastCarryOverOn)
		assert.True(t, now.Equal(got.CreatedAt))
	})

	t.Run("not found", func(t *testing.T) {
		_, err := f.store.FindTenantByID(ctx, "missing")
		assert.ErrorIs(t, err, domain.ErrTenantNotFound)
	})

	t.Run("duplicate", func(t *testing.T) {
		err := f.store.CreateTenant(ctx, &domain.Tenant{ID: "acme", Name: "again", Active: true, CreatedAt: now})
		assert.ErrorIs(t, err, domain.ErrAlreadyExists)
	})

	t.Run("invalid timezone rejected", func(t *testing.T) {
		err := f.store.CreateTenant(ctx, &domain.Tenant{ID: "mars", Name: "Mars", Timezone: "Mars/Olympus", CreatedAt: now})
		assert.ErrorIs(t, err, domain.ErrInvalidTimezone)
	})

	t.Run("list active ordered by id", func(t *testing.T) {
		tenants, err := f.store.ListActiveTenants(ctx)
		require.NoError(t, err)
		ids := make([]string, len(tenants))
		for i, tn := range tenants {
			ids[i] = tn.ID
		}
		assert.Equal(t, []string{"aardvark", "acme"}, ids)
	})

	t.Run("carry-over marker only moves forward", func(t *testing.T) {
		require.NoError(t, f.store.MarkCarryOverDone(ctx, "acme", jan5))
		require.NoError(t, f.store.MarkCarryOverDone(ctx, "acme", jan3))

		got, err := f.store.FindTenantByID(ctx, "acme")
		require.NoError(t, err)
		require.NotNil(t, got.LastCarryOverOn)
		assert.Equal(t, jan5, *got.LastCarryOverOn)
		assert.False(t, got.NeedsCarryOver(jan5))
		assert.True(t, got.NeedsCarryOver(jan10))

		assert.ErrorIs(t, f.store.MarkCarryOverDone(ctx, "missing", jan5), domain.ErrTenantNotFound)
	})
}

func testTemplates(t *testing.T, setup Setup) {
	ctx := context.Background()
	f := newFixture(t, setup)

	end := jan10
	f.template(t, "tmpl-a", func(tmpl *domain.RecurringTemplate) {
		tmpl.PreferredStaffID = ptr.To("s1")
		tmpl.Rule.EndDate = &end
	})
	f.template(t, "tmpl-inactive", func(tmpl *domain.RecurringTemplate) { tmpl.Active = false })
	f.template(t, "tmpl-future", func(tmpl *domain.RecurringTemplate) { tmpl.Rule.StartDate = domain.Date(2024, time.February, 1) })
	f.template(t, "tmpl-monthly", func(tmpl *domain.RecurringTemplate) {
		tmpl.Rule = domain.RecurrenceRule{Frequency: domain.FrequencyMonthly, Interval: 2, DayOfMonth: 31, StartDate: jan1}
	})

	t.Run("invalid rule rejected on create", func(t *testing.T) {
		err := f.store.CreateTemplate(ctx, &domain.RecurringTemplate{
			ID: "bad", TenantID: "acme", Title: "Bad", Priority: domain.TaskPriorityLow, Active: true,
			Rule: domain.RecurrenceRule{Frequency: domain.FrequencyWeekly, Interval: 1, StartDate: jan1},
		})
		assert.ErrorIs(t, err, domain.ErrInvalidRecurrenceRule)
	})

	t.Run("active templates started by asOf", func(t *testing.T) {
		templates, err := f.store.FindActiveTemplates(ctx, "acme", jan10)
		require.NoError(t, err)
		require.Len(t, templates, 2)
		assert.Equal(t, "tmpl-a", templates[0].ID)
		assert.Equal(t, "tmpl-monthly", templates[1].ID)

		a := templates[0]
		assert.Equal(t, domain.FrequencyWeekly, a.Rule.Frequency)
		assert.Equal(t, []time.Weekday{time.Monday, time.Wednesday}, a.Rule.Weekdays)
		assert.Equal(t, jan1, a.Rule.StartDate)
		require.NotNil(t, a.Rule.EndDate)
		assert.Equal(t, jan10, *a.Rule.EndDate)
		assert.Equal(t, ptr.To("s1"), a.PreferredStaffID)
		assert.Equal(t, ptr.To("c1"), a.ClientID)
		assert.Equal(t, domain.TaskPriorityHigh, a.Priority)
		assert.Nil(t, a.LastGeneratedDate)

		m := templates[1]
		assert.Equal(t, 2, m.Rule.Interval)
		assert.Equal(t, 31, m.Rule.DayOfMonth)
		assert.Empty(t, m.Rule.Weekdays)
		assert.Nil(t, m.Rule.EndDate)
	})

	t.Run("other tenant sees nothing", func(t *testing.T) {
		require.NoError(t, f.store.CreateTenant(ctx, &domain.Tenant{ID: "other", Name: "Other", Active: true, CreatedAt: now}))
		templates, err := f.store.FindActiveTemplates(ctx, "other", jan10)
		require.NoError(t, err)
		assert.Empty(t, templates)
	})

	t.Run("watermark only moves forward", func(t *testing.T) {
		require.NoError(t, f.store.SetLastGeneratedDate(ctx, "tmpl-a", jan5))
		require.NoError(t, f.store.SetLastGeneratedDate(ctx, "tmpl-a", jan3))

		got, err := f.store.FindTemplateByID(ctx, "tmpl-a")
		require.NoError(t, err)
		require.NotNil(t, got.LastGeneratedDate)
		assert.Equal(t, jan5, *got.LastGeneratedDate)

		assert.ErrorIs(t, f.store.SetLastGeneratedDate(ctx, "missing", jan5), domain.ErrTemplateNotFound)
	})

	t.Run("template not found", func(t *testing.T) {
		_, err := f.store.FindTemplateByID(ctx, "missing")
		assert.ErrorIs(t, err, domain.ErrTemplateNotFound)
	})
}

func testRecurringInsert(t *testing.T, setup Setup) {
	ctx := context.Background()
	f := newFixture(t, setup)
	tmpl := f.template(t, "tmpl-a")

	first := tmpl.NewTaskFor("task-1", jan1, now)
	inserted, err := f.store.InsertRecurringTask(ctx, first)
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.Positive(t, first.Seq)
	assert.Equal(t, 1, first.Version)

	dup := tmpl.NewTaskFor("task-2", jan1, now)
	inserted, err = f.store.InsertRecurringTask(ctx, dup)
	require.NoError(t, err)
	assert.False(t, inserted, "same (template, occurrence) must not insert twice")

	_, err = f.store.FindTaskByID(ctx, "task-2")
	assert.ErrorIs(t, err, domain.ErrTaskNotFound)

	second := tmpl.NewTaskFor("task-3", jan3, now)
	inserted, err = f.store.InsertRecurringTask(ctx, second)
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.Greater(t, second.Seq, first.Seq)

	got, err := f.store.FindTaskByID(ctx, "task-1")
	require.NoError(t, err)
	assert.Equal(t, domain.TaskOriginRecurring, got.Origin)
	assert.Equal(t, domain.TaskStatusPending, got.Status)
	assert.Equal(t, ptr.To("tmpl-a"), got.TemplateID)
	assert.Equal(t, ptr.To("c1"), got.ClientID)
	assert.Nil(t, got.AssignedStaffID)
	assert.Equal(t, jan1, got.DueDate)
	assert.Equal(t, ptr.To(jan1), got.OccurrenceDate)
}

func testAllocationReads(t *testing.T, setup Setup) {
	ctx := context.Background()
	f := newFixture(t, setup)

	f.task(t, "open", jan3)
	f.task(t, "preferred", jan3, func(task *domain.Task) { task.PreferredStaffID = ptr.To("s1"); task.ClientID = ptr.To("c1") })
	f.task(t, "via-client", jan3, func(task *domain.Task) { task.ClientID = ptr.To("c1") })
	f.task(t, "carried", jan5, func(task *domain.Task) { task.Status = domain.TaskStatusCarriedOver })
	f.task(t, "future", jan10)
	f.task(t, "assigned", jan3, func(task *domain.Task) { task.AssignedStaffID = ptr.To("s1") })
	f.task(t, "in-progress", jan3, func(task *domain.Task) { task.Status = domain.TaskStatusInProgress })
	f.task(t, "done", jan3, func(task *domain.Task) { task.Status = domain.TaskStatusDone; task.AssignedStaffID = ptr.To("s2") })

	t.Run("candidates", func(t *testing.T) {
		candidates, err := f.store.FindAllocationCandidates(ctx, "acme", jan5)
		require.NoError(t, err)

		hints := map[string]*string{}
		for _, c := range candidates {
			hints[c.Task.ID] = c.Hint
		}
		assert.Len(t, hints, 4)
		assert.Contains(t, hints, "open")
		assert.Contains(t, hints, "carried")
		assert.Nil(t, hints["open"])
		assert.Equal(t, ptr.To("s1"), hints["preferred"], "task preference wins over client staff")
		assert.Equal(t, ptr.To("s2"), hints["via-client"])
	})

	t.Run("staff loads count live tasks only", func(t *testing.T) {
		require.NoError(t, f.store.CreateStaff(ctx, &domain.Staff{ID: "s3", TenantID: "acme", Name: "Gone", Active: false, Capacity: 5}))

		loads, err := f.store.FindStaffLoads(ctx, "acme")
		require.NoError(t, err)
		require.Len(t, loads, 2)

		byID := map[string]*domain.StaffLoad{}
		for _, l := range loads {
			byID[l.Staff.ID] = l
		}
		assert.Equal(t, 1, byID["s1"].OpenTasks)
		assert.Equal(t, 0, byID["s2"].OpenTasks, "done tasks do not count")
		assert.Equal(t, []string{"tax"}, byID["s1"].Staff.Tags)
		assert.Equal(t, 2, byID["s1"].Staff.Capacity)
	})
}

func testAssignTask(t *testing.T, setup Setup) {
	ctx := context.Background()
	f := newFixture(t, setup)

	f.task(t, "t1", jan3)
	f.task(t, "t2", jan3)
	f.task(t, "t3", jan3, func(task *domain.Task) { task.Status = domain.TaskStatusCarriedOver; task.CarryOverCount = 1 })
	f.task(t, "t4", jan3, func(task *domain.Task) { task.Status = domain.TaskStatusDone })

	outcome, err := f.store.AssignTask(ctx, "acme", "t1", "s2", now)
	require.NoError(t, err)
	assert.Equal(t, domain.AssignOutcomeAssigned, outcome)

	got, err := f.store.FindTaskByID(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, ptr.To("s2"), got.AssignedStaffID)
	assert.Equal(t, 2, got.Version)

	t.Run("already assigned", func(t *testing.T) {
		outcome, err := f.store.AssignTask(ctx, "acme", "t1", "s1", now)
		require.NoError(t, err)
		assert.Equal(t, domain.AssignOutcomeAlreadyAssigned, outcome)
	})

	t.Run("staff at capacity", func(t *testing.T) {
		outcome, err := f.store.AssignTask(ctx, "acme", "t2", "s2", now)
		require.NoError(t, err)
		assert.Equal(t, domain.AssignOutcomeStaffUnavailable, outcome)

		got, err := f.store.FindTaskByID(ctx, "t2")
		require.NoError(t, err)
		assert.Nil(t, got.AssignedStaffID)
	})

	t.Run("unknown staff", func(t *testing.T) {
		outcome, err := f.store.AssignTask(ctx, "acme", "t2", "nobody", now)
		require.NoError(t, err)
		assert.Equal(t, domain.AssignOutcomeStaffUnavailable, outcome)
	})

	t.Run("terminal task", func(t *testing.T) {
		outcome, err := f.store.AssignTask(ctx, "acme", "t4", "s1", now)
		require.NoError(t, err)
		assert.Equal(t, domain.AssignOutcomeAlreadyAssigned, outcome)
	})

	t.Run("other tenant's task", func(t *testing.T) {
		outcome, err := f.store.AssignTask(ctx, "other", "t2", "s1", now)
		require.NoError(t, err)
		assert.Equal(t, domain.AssignOutcomeAlreadyAssigned, outcome)
	})

	t.Run("carried over returns to pending", func(t *testing.T) {
		outcome, err := f.store.AssignTask(ctx, "acme", "t3", "s1", now)
		require.NoError(t, err)
		assert.Equal(t, domain.AssignOutcomeAssigned, outcome)

		got, err := f.store.FindTaskByID(ctx, "t3")
		require.NoError(t, err)
		assert.Equal(t, domain.TaskStatusPending, got.Status)
		assert.Equal(t, 1, got.CarryOverCount)
		assert.Equal(t, ptr.To("s1"), got.AssignedStaffID)
	})
}

func testCarryOverWrites(t *testing.T, setup Setup) {
	ctx := context.Background()
	f := newFixture(t, setup)

	f.task(t, "late", jan1, func(task *domain.Task) { task.AssignedStaffID = ptr.To("s1") })
	f.task(t, "late-progress", jan3, func(task *domain.Task) { task.Status = domain.TaskStatusInProgress })
	f.task(t, "late-done", jan1, func(task *domain.Task) { task.Status = domain.TaskStatusDone })
	f.task(t, "today", jan5)

	overdue, err := f.store.FindOverdueTasks(ctx, "acme", jan5)
	require.NoError(t, err)
	require.Len(t, overdue, 2)
	assert.Equal(t, "late", overdue[0].ID, "ordered by creation")
	assert.Equal(t, "late-progress", overdue[1].ID)

	task := overdue[0]
	expected := task.Version
	_, err = task.CarryOver(jan5, now, domain.EscalationPolicy{Threshold: 1, Ceiling: domain.TaskPriorityUrgent})
	require.NoError(t, err)
	require.NoError(t, f.store.UpdateCarriedOverTask(ctx, task, expected))

	got, err := f.store.FindTaskByID(ctx, "late")
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusCarriedOver, got.Status)
	assert.Equal(t, domain.TaskOriginCarryOver, got.Origin)
	assert.Equal(t, jan5, got.DueDate)
	assert.Equal(t, 1, got.CarryOverCount)
	assert.Equal(t, domain.TaskPriorityHigh, got.Priority)
	assert.Nil(t, got.AssignedStaffID)
	assert.Equal(t, expected+1, got.Version)

	t.Run("stale version conflicts", func(t *testing.T) {
		err := f.store.UpdateCarriedOverTask(ctx, task, expected)
		assert.ErrorIs(t, err, domain.ErrVersionConflict)
	})
}

func testUpcomingAssigned(t *testing.T, setup Setup) {
	ctx := context.Background()
	f := newFixture(t, setup)

	f.task(t, "due-today", jan5, func(task *domain.Task) { task.AssignedStaffID = ptr.To("s1") })
	f.task(t, "due-later", jan10, func(task *domain.Task) { task.AssignedStaffID = ptr.To("s1") })
	f.task(t, "unassigned", jan5)
	f.task(t, "finished", jan5, func(task *domain.Task) { task.AssignedStaffID = ptr.To("s2"); task.Status = domain.TaskStatusDone })
	f.task(t, "past", jan3, func(task *domain.Task) { task.AssignedStaffID = ptr.To("s2") })

	tasks, err := f.store.FindUpcomingAssigned(ctx, "acme", jan5, domain.AddDays(jan5, 1))
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "due-today", tasks[0].ID)

	tasks, err = f.store.FindUpcomingAssigned(ctx, "acme", jan5, jan10)
	require.NoError(t, err)
	assert.Len(t, tasks, 2, "range is inclusive on both ends")
}

func testTaskStatus(t *testing.T, setup Setup) {
	ctx := context.Background()
	f := newFixture(t, setup)
	f.task(t, "t1", jan3)

	require.NoError(t, f.store.UpdateTaskStatus(ctx, "t1", domain.TaskStatusInProgress))
	require.NoError(t, f.store.UpdateTaskStatus(ctx, "t1", domain.TaskStatusDone))

	err := f.store.UpdateTaskStatus(ctx, "t1", domain.TaskStatusPending)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	err = f.store.UpdateTaskStatus(ctx, "missing", domain.TaskStatusDone)
	assert.ErrorIs(t, err, domain.ErrTaskNotFound)

	got, err := f.store.FindTaskByID(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusDone, got.Status)
	assert.Equal(t, 3, got.Version)
}

// testEngineRoundTrip drives the engine components over the backend for two
// consecutive days.
func testEngineRoundTrip(t *testing.T, setup Setup) {
	ctx := context.Background()
	f := newFixture(t, setup)
	f.template(t, "tmpl-a")

	clock := func() time.Time { return now }
	gen := automation.NewGenerator(f.store, 0, automation.WithClock(clock))
	alloc := automation.NewAllocator(f.store, nil, automation.WithClock(clock))
	carry := automation.NewCarryOver(f.store, domain.EscalationPolicy{Threshold: 2, Ceiling: domain.TaskPriorityUrgent}, automation.WithClock(clock))

	res, err := gen.Generate(ctx, "acme", jan10)
	require.NoError(t, err)
	assert.Equal(t, 4, res.Created, "Mon/Wed from Jan 1 through Jan 10")

	res, err = gen.Generate(ctx, "acme", jan10)
	require.NoError(t, err)
	assert.Zero(t, res.Created, "second pass is a no-op")

	// Client c1 prefers s2 (capacity 1); the rest spill to s1 (capacity 2).
	allocation, err := alloc.AllocateOn(ctx, "acme", jan10)
	require.NoError(t, err)
	assert.Equal(t, 3, allocation.Assigned)
	assert.Len(t, allocation.Unassigned, 1)

	loads, err := f.store.FindStaffLoads(ctx, "acme")
	require.NoError(t, err)
	for _, l := range loads {
		assert.LessOrEqual(t, l.OpenTasks, l.Staff.Capacity, "staff %s over capacity", l.Staff.ID)
	}

	next := domain.AddDays(jan10, 1)
	carried, err := carry.ProcessOn(ctx, "acme", next)
	require.NoError(t, err)
	assert.Equal(t, 4, carried.CarriedOver)
	assert.Zero(t, carried.Escalated)

	candidates, err := f.store.FindAllocationCandidates(ctx, "acme", next)
	require.NoError(t, err)
	assert.Len(t, candidates, 4, "carried-over tasks are unassigned again")
}

func testGenerateAfterCarryOver(t *testing.T, setup Setup) {
	ctx := context.Background()
	f := newFixture(t, setup)
	f.template(t, "tmpl-daily", func(tmpl *domain.RecurringTemplate) {
		tmpl.Rule = domain.RecurrenceRule{Frequency: domain.FrequencyDaily, Interval: 1, StartDate: jan1}
	})

	clock := func() time.Time { return now }
	gen := automation.NewGenerator(f.store, 0, automation.WithClock(clock))
	carry := automation.NewCarryOver(f.store, domain.EscalationPolicy{Threshold: 2, Ceiling: domain.TaskPriorityUrgent}, automation.WithClock(clock))

	res, err := gen.Generate(ctx, "acme", jan1)
	require.NoError(t, err)
	require.Equal(t, 1, res.Created)

	jan2 := domain.AddDays(jan1, 1)
	carried, err := carry.ProcessOn(ctx, "acme", jan2)
	require.NoError(t, err)
	assert.Equal(t, 1, carried.CarriedOver)

	res, err = gen.Generate(ctx, "acme", jan2)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Created, "the carried task does not occupy Jan 2's occurrence")
	assert.Zero(t, res.Duplicates)

	t.Run("missed day", func(t *testing.T) {
		jan4 := domain.AddDays(jan1, 3)
		res, err := gen.Generate(ctx, "acme", jan4)
		require.NoError(t, err)
		assert.Equal(t, 2, res.Created)

		// Four tasks of one template move onto the same day.
		carried, err := carry.ProcessOn(ctx, "acme", jan5)
		require.NoError(t, err)
		assert.Equal(t, 4, carried.CarriedOver)

		res, err = gen.Generate(ctx, "acme", jan5)
		require.NoError(t, err)
		assert.Equal(t, 1, res.Created)

		candidates, err := f.store.FindAllocationCandidates(ctx, "acme", jan5)
		require.NoError(t, err)
		assert.Len(t, candidates, 5)
		for _, c := range candidates {
			assert.Equal(t, jan5, c.Task.DueDate)
			require.NotNil(t, c.Task.OccurrenceDate)
		}
	})
}
