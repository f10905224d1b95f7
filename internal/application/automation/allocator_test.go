package automation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezkam/opsflow/internal/domain"
	"github.com/rezkam/opsflow/internal/ptr"
)

var allocDay = domain.Date(2024, 3, 4)

func urgentTask(id string, due time.Time) *domain.Task {
	return &domain.Task{ID: id, TenantID: "tenant-1", Title: id, Priority: domain.TaskPriorityUrgent, DueDate: due}
}

func newAllocationFixture(capacities map[string]int) *fakeRepository {
	repo := newFakeRepository()
	repo.addTenant("tenant-1", "")
	for id, c := range capacities {
		repo.addStaff("tenant-1", id, c)
	}
	return repo
}

func TestAllocator_ThreeUrgentTwoStaffCapacityOne(t *testing.T) {
	repo := newAllocationFixture(map[string]int{"s1": 1, "s2": 1})
	repo.addTask(urgentTask("t1", allocDay))
	repo.addTask(urgentTask("t2", allocDay))
	repo.addTask(urgentTask("t3", allocDay))

	result, err := NewAllocator(repo, nil).AllocateOn(context.Background(), "tenant-1", allocDay)
	require.NoError(t, err)

	assert.Equal(t, 2, result.Assigned)
	assert.Equal(t, []domain.Assignment{{TaskID: "t1", StaffID: "s1"}, {TaskID: "t2", StaffID: "s2"}}, result.Assignments)
	assert.Equal(t, []string{"t3"}, result.Unassigned)
}

func TestAllocator_ThreeUrgentTwoStaffCapacityTwo(t *testing.T) {
	repo := newAllocationFixture(map[string]int{"s1": 2, "s2": 2})
	repo.addTask(urgentTask("t1", allocDay))
	repo.addTask(urgentTask("t2", allocDay))
	repo.addTask(urgentTask("t3", allocDay))

	result, err := NewAllocator(repo, nil).AllocateOn(context.Background(), "tenant-1", allocDay)
	require.NoError(t, err)

	assert.Equal(t, 3, result.Assigned)
	assert.Equal(t, []domain.Assignment{
		{TaskID: "t1", StaffID: "s1"},
		{TaskID: "t2", StaffID: "s2"},
		{TaskID: "t3", StaffID: "s1"},
	}, result.Assignments)
	assert.Empty(t, result.Unassigned)
}

func TestAllocator_CandidateOrdering(t *testing.T) {
	repo := newAllocationFixture(map[string]int{"s1": 10})
	repo.addTask(&domain.Task{ID: "low-old", TenantID: "tenant-1", Priority: domain.TaskPriorityLow, DueDate: domain.AddDays(allocDay, -5)})
	repo.addTask(&domain.Task{ID: "high-today", TenantID: "tenant-1", Priority: domain.TaskPriorityHigh, DueDate: allocDay})
	repo.addTask(&domain.Task{ID: "high-yesterday", TenantID: "tenant-1", Priority: domain.TaskPriorityHigh, DueDate: domain.AddDays(allocDay, -1)})
	repo.addTask(&domain.Task{ID: "urgent", TenantID: "tenant-1", Priority: domain.TaskPriorityUrgent, DueDate: allocDay})
	repo.addTask(&domain.Task{ID: "high-today-later", TenantID: "tenant-1", Priority: domain.TaskPriorityHigh, DueDate: allocDay})

	result, err := NewAllocator(repo, nil).AllocateOn(context.Background(), "tenant-1", allocDay)
	require.NoError(t, err)

	var order []string
	for _, a := range result.Assignments {
		order = append(order, a.TaskID)
	}
	assert.Equal(t, []string{"urgent", "high-yesterday", "high-today", "high-today-later", "low-old"}, order)
}

func TestAllocator_PreferredStaff(t *testing.T) {
	t.Run("task preference wins over load", func(t *testing.T) {
		repo := newAllocationFixture(map[string]int{"s1": 5, "s2": 5})
		repo.addTask(&domain.Task{ID: "busy", TenantID: "tenant-1", DueDate: allocDay, AssignedStaffID: ptr.To("s2"), Status: domain.TaskStatusInProgress})
		task := urgentTask("t1", allocDay)
		task.PreferredStaffID = ptr.To("s2")
		repo.addTask(task)

		result, err := NewAllocator(repo, nil).AllocateOn(context.Background(), "tenant-1", allocDay)
		require.NoError(t, err)
		assert.Equal(t, []domain.Assignment{{TaskID: "t1", StaffID: "s2"}}, result.Assignments)
	})

	t.Run("client assigned staff used when task has no preference", func(t *testing.T) {
		repo := newAllocationFixture(map[string]int{"s1": 5, "s2": 5})
		repo.addClient("tenant-1", "c1", ptr.To("s2"))
		task := urgentTask("t1", allocDay)
		task.ClientID = ptr.To("c1")
		repo.addTask(task)

		result, err := NewAllocator(repo, nil).AllocateOn(context.Background(), "tenant-1", allocDay)
		require.NoError(t, err)
		assert.Equal(t, []domain.Assignment{{TaskID: "t1", StaffID: "s2"}}, result.Assignments)
	})

	t.Run("task preference beats client preference", func(t *testing.T) {
		repo := newAllocationFixture(map[string]int{"s1": 5, "s2": 5, "s3": 5})
		repo.addClient("tenant-1", "c1", ptr.To("s2"))
		task := urgentTask("t1", allocDay)
		task.ClientID = ptr.To("c1")
		task.PreferredStaffID = ptr.To("s3")
		repo.addTask(task)

		result, err := NewAllocator(repo, nil).AllocateOn(context.Background(), "tenant-1", allocDay)
		require.NoError(t, err)
		assert.Equal(t, []domain.Assignment{{TaskID: "t1", StaffID: "s3"}}, result.Assignments)
	})

	t.Run("full preferred staff falls back to least loaded", func(t *testing.T) {
		repo := newAllocationFixture(map[string]int{"s1": 1, "s2": 3, "s3": 3})
		repo.addTask(&domain.Task{ID: "s1-busy", TenantID: "tenant-1", DueDate: allocDay, AssignedStaffID: ptr.To("s1")})
		repo.addTask(&domain.Task{ID: "s2-busy", TenantID: "tenant-1", DueDate: allocDay, AssignedStaffID: ptr.To("s2")})
		task := urgentTask("t1", allocDay)
		task.PreferredStaffID = ptr.To("s1")
		repo.addTask(task)

		result, err := NewAllocator(repo, nil).AllocateOn(context.Background(), "tenant-1", allocDay)
		require.NoError(t, err)
		assert.Equal(t, []domain.Assignment{{TaskID: "t1", StaffID: "s3"}}, result.Assignments)
	})

	t.Run("inactive preferred staff ignored", func(t *testing.T) {
		repo := newAllocationFixture(map[string]int{"s1": 5, "s2": 5})
		repo.staff["s2"].Active = false
		task := urgentTask("t1", allocDay)
		task.PreferredStaffID = ptr.To("s2")
		repo.addTask(task)

		result, err := NewAllocator(repo, nil).AllocateOn(context.Background(), "tenant-1", allocDay)
		require.NoError(t, err)
		assert.Equal(t, []domain.Assignment{{TaskID: "t1", StaffID: "s1"}}, result.Assignments)
	})
}

func TestAllocator_IgnoresFutureAndAssignedTasks(t *testing.T) {
	repo := newAllocationFixture(map[string]int{"s1": 5})
	repo.addTask(urgentTask("future", domain.AddDays(allocDay, 1)))
	repo.addTask(&domain.Task{ID: "done", TenantID: "tenant-1", DueDate: allocDay, Status: domain.TaskStatusDone})
	repo.addTask(&domain.Task{ID: "in-progress", TenantID: "tenant-1", DueDate: allocDay, Status: domain.TaskStatusInProgress})

	result, err := NewAllocator(repo, nil).AllocateOn(context.Background(), "tenant-1", allocDay)
	require.NoError(t, err)
	assert.Zero(t, result.Assigned)
	assert.Empty(t, result.Unassigned)
}

func TestAllocator_NoStaffLeavesEverythingUnassigned(t *testing.T) {
	repo := newAllocationFixture(nil)
	repo.addTask(urgentTask("t1", allocDay))
	repo.addTask(urgentTask("t2", allocDay))

	result, err := NewAllocator(repo, nil).AllocateOn(context.Background(), "tenant-1", allocDay)
	require.NoError(t, err)
	assert.Zero(t, result.Assigned)
	assert.Equal(t, []string{"t1", "t2"}, result.Unassigned)
}

func TestAllocator_CarriedOverReturnsToPending(t *testing.T) {
	repo := newAllocationFixture(map[string]int{"s1": 5})
	repo.addTask(&domain.Task{ID: "t1", TenantID: "tenant-1", DueDate: allocDay, Status: domain.TaskStatusCarriedOver, CarryOverCount: 1})

	_, err := NewAllocator(repo, nil).AllocateOn(context.Background(), "tenant-1", allocDay)
	require.NoError(t, err)

	task := repo.task("t1")
	assert.Equal(t, domain.TaskStatusPending, task.Status)
	assert.Equal(t, "s1", *task.AssignedStaffID)
	assert.Equal(t, 1, task.CarryOverCount)
}

func TestAllocator_Deterministic(t *testing.T) {
	build := func() *fakeRepository {
		repo := newAllocationFixture(map[string]int{"s1": 2, "s2": 1, "s3": 2})
		priorities := []domain.TaskPriority{domain.TaskPriorityLow, domain.TaskPriorityHigh, domain.TaskPriorityMedium, domain.TaskPriorityHigh}
		for i, id := range []string{"a", "b", "c", "d", "e", "f", "g"} {
			repo.addTask(&domain.Task{
				ID:       id,
				TenantID: "tenant-1",
				Priority: priorities[i%len(priorities)],
				DueDate:  domain.AddDays(allocDay, -(i % 3)),
			})
		}
		return repo
	}

	first, err := NewAllocator(build(), nil).AllocateOn(context.Background(), "tenant-1", allocDay)
	require.NoError(t, err)

	for range 5 {
		again, err := NewAllocator(build(), nil).AllocateOn(context.Background(), "tenant-1", allocDay)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestAllocator_RespectsCapacityWithExistingLoad(t *testing.T) {
	repo := newAllocationFixture(map[string]int{"s1": 2, "s2": 3})
	repo.addTask(&domain.Task{ID: "pre-1", TenantID: "tenant-1", DueDate: allocDay, AssignedStaffID: ptr.To("s1"), Status: domain.TaskStatusInProgress})
	repo.addTask(&domain.Task{ID: "pre-2", TenantID: "tenant-1", DueDate: allocDay, AssignedStaffID: ptr.To("s2"), Status: domain.TaskStatusCarriedOver})
	for _, id := range []string{"t1", "t2", "t3", "t4", "t5", "t6"} {
		repo.addTask(urgentTask(id, allocDay))
	}

	result, err := NewAllocator(repo, nil).AllocateOn(context.Background(), "tenant-1", allocDay)
	require.NoError(t, err)

	assert.Equal(t, 3, result.Assigned)
	assert.Len(t, result.Unassigned, 3)
	for id, s := range repo.staff {
		assert.LessOrEqual(t, repo.openCount(id), s.Capacity, "staff %s over capacity", id)
	}
}

func TestAllocator_LostRaceExcludedFromResult(t *testing.T) {
	repo := newAllocationFixture(map[string]int{"s1": 5})
	repo.addTask(urgentTask("t1", allocDay))
	repo.addTask(urgentTask("t2", allocDay))

	repo.assignTaskFunc = func(_ context.Context, _, taskID, _ string) (domain.AssignOutcome, bool, error) {
		if taskID == "t1" {
			return domain.AssignOutcomeAlreadyAssigned, true, nil
		}
		return 0, false, nil
	}

	result, err := NewAllocator(repo, nil).AllocateOn(context.Background(), "tenant-1", allocDay)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Assigned)
	assert.Equal(t, []domain.Assignment{{TaskID: "t2", StaffID: "s1"}}, result.Assignments)
	assert.Empty(t, result.Unassigned)
}

func TestAllocator_StaffFilledConcurrentlyTriesNext(t *testing.T) {
	repo := newAllocationFixture(map[string]int{"s1": 5, "s2": 5})
	repo.addTask(urgentTask("t1", allocDay))
	repo.addTask(urgentTask("t2", allocDay))

	repo.assignTaskFunc = func(_ context.Context, _, _, staffID string) (domain.AssignOutcome, bool, error) {
		if staffID == "s1" {
			return domain.AssignOutcomeStaffUnavailable, true, nil
		}
		return 0, false, nil
	}

	result, err := NewAllocator(repo, nil).AllocateOn(context.Background(), "tenant-1", allocDay)
	require.NoError(t, err)

	assert.Equal(t, []domain.Assignment{{TaskID: "t1", StaffID: "s2"}, {TaskID: "t2", StaffID: "s2"}}, result.Assignments)
}

func TestAllocator_StoreErrorAborts(t *testing.T) {
	repo := newAllocationFixture(map[string]int{"s1": 5})
	repo.addTask(urgentTask("t1", allocDay))

	errDB := errors.New("deadlock detected")
	repo.assignTaskFunc = func(context.Context, string, string, string) (domain.AssignOutcome, bool, error) {
		return 0, true, errDB
	}

	_, err := NewAllocator(repo, nil).AllocateOn(context.Background(), "tenant-1", allocDay)
	assert.ErrorIs(t, err, errDB)
}

func TestAllocator_NotifiesAndCountsFailures(t *testing.T) {
	repo := newAllocationFixture(map[string]int{"s1": 5})
	repo.addTask(urgentTask("t1", allocDay))
	repo.addTask(urgentTask("t2", allocDay))

	now := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	var events []domain.AssignmentEvent
	notifier := NotifierFunc(func(_ context.Context, e domain.AssignmentEvent) error {
		events = append(events, e)
		if e.TaskID == "t2" {
			return errors.New("sink down")
		}
		return nil
	})

	result, err := NewAllocator(repo, notifier, WithClock(fixedClock(now))).AllocateOn(context.Background(), "tenant-1", allocDay)
	require.NoError(t, err)

	assert.Equal(t, 2, result.Assigned)
	assert.Equal(t, 1, result.NotifyFailures)
	require.Len(t, events, 2)
	assert.Equal(t, "t1", events[0].TaskID)
	assert.Equal(t, "s1", events[0].StaffID)
	assert.Equal(t, "tenant-1", events[0].TenantID)
	assert.Equal(t, now, events[0].AssignedAt)
	assert.NotEmpty(t, events[0].ID)

	// The failed notification does not roll back the assignment.
	assert.Equal(t, "s1", *repo.task("t2").AssignedStaffID)
}

func TestAllocator_AllocateUsesTenantToday(t *testing.T) {
	repo := newFakeRepository()
	repo.addTenant("tenant-1", "Pacific/Auckland")
	repo.addStaff("tenant-1", "s1", 5)
	repo.addTask(urgentTask("t1", domain.Date(2024, 3, 5)))

	// 20:00 UTC on Mar 4 is already Mar 5 in Auckland.
	now := time.Date(2024, 3, 4, 20, 0, 0, 0, time.UTC)
	result, err := NewAllocator(repo, nil, WithClock(fixedClock(now))).Allocate(context.Background(), "tenant-1")
	require.NoError(t, err)
	assert.Equal(t, 1, result.Assigned)
}

func TestAllocator_UnknownTenant(t *testing.T) {
	_, err := NewAllocator(newFakeRepository(), nil).Allocate(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrTenantNotFound)
}

func TestSortCandidates(t *testing.T) {
	c := []domain.AllocationCandidate{
		{Task: &domain.Task{ID: "b", Priority: domain.TaskPriorityHigh, DueDate: allocDay, Seq: 1}},
		{Task: &domain.Task{ID: "a", Priority: domain.TaskPriorityHigh, DueDate: allocDay, Seq: 1}},
		{Task: &domain.Task{ID: "c", Priority: domain.TaskPriorityHigh, DueDate: allocDay, Seq: 0}},
	}
	SortCandidates(c)
	assert.Equal(t, "c", c[0].Task.ID)
	assert.Equal(t, "a", c[1].Task.ID)
	assert.Equal(t, "b", c[2].Task.ID)
}
