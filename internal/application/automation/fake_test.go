package automation

import (
	"cmp"
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/rezkam/opsflow/internal/domain"
)

// fakeRepository is an in-memory Repository with the same conditional-write
// semantics as the SQL stores. The *Func fields override individual calls.
type fakeRepository struct {
	mu sync.Mutex

	tenants   map[string]*domain.Tenant
	staff     map[string]*domain.Staff
	clients   map[string]*domain.Client
	templates map[string]*domain.RecurringTemplate
	tasks     map[string]*domain.Task
	seq       int64

	insertRecurringTaskFunc   func(ctx context.Context, task *domain.Task) (bool, error)
	assignTaskFunc            func(ctx context.Context, tenantID, taskID, staffID string) (domain.AssignOutcome, bool, error)
	updateCarriedOverTaskFunc func(ctx context.Context, task *domain.Task, expectedVersion int) (bool, error)
	findActiveTemplatesFunc   func(ctx context.Context, tenantID string, asOf time.Time) ([]*domain.RecurringTemplate, error)
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{
		tenants:   map[string]*domain.Tenant{},
		staff:     map[string]*domain.Staff{},
		clients:   map[string]*domain.Client{},
		templates: map[string]*domain.RecurringTemplate{},
		tasks:     map[string]*domain.Task{},
	}
}

func cloneTask(t *domain.Task) *domain.Task {
	c := *t
	return &c
}

// --- seeding helpers ---

func (f *fakeRepository) addTenant(id, timezone string) *domain.Tenant {
	t := &domain.Tenant{ID: id, Name: id, Timezone: timezone, Active: true}
	f.tenants[id] = t
	return t
}

func (f *fakeRepository) addStaff(tenantID, id string, capacity int) *domain.Staff {
	s := &domain.Staff{ID: id, TenantID: tenantID, Name: id, Active: true, Capacity: capacity}
	f.staff[id] = s
	return s
}

func (f *fakeRepository) addClient(tenantID, id string, assigned *string) {
	f.clients[id] = &domain.Client{ID: id, TenantID: tenantID, Name: id, AssignedStaffID: assigned}
}

func (f *fakeRepository) addTemplate(tmpl *domain.RecurringTemplate) {
	f.templates[tmpl.ID] = tmpl
}

func (f *fakeRepository) addTask(task *domain.Task) *domain.Task {
	f.seq++
	task.Seq = f.seq
	if task.Version == 0 {
		task.Version = 1
	}
	if task.Status == "" {
		task.Status = domain.TaskStatusPending
	}
	if task.Priority == "" {
		task.Priority = domain.TaskPriorityMedium
	}
	f.tasks[task.ID] = task
	return task
}

func (f *fakeRepository) task(id string) *domain.Task {
	f.mu.Lock()
	defer f.mu.Unlock()
	return cloneTask(f.tasks[id])
}

func (f *fakeRepository) openCount(staffID string) int {
	n := 0
	for _, t := range f.tasks {
		if t.AssignedStaffID != nil && *t.AssignedStaffID == staffID && t.Status.IsLive() {
			n++
		}
	}
	return n
}

// --- Repository ---

func (f *fakeRepository) FindTenantByID(_ context.Context, id string) (*domain.Tenant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tenants[id]
	if !ok {
		return nil, domain.ErrTenantNotFound
	}
	c := *t
	return &c, nil
}

func (f *fakeRepository) ListActiveTenants(_ context.Context) ([]*domain.Tenant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.Tenant
	for _, id := range slices.Sorted(maps.Keys(f.tenants)) {
		if t := f.tenants[id]; t.Active {
			c := *t
			out = append(out, &c)
		}
	}
	return out, nil
}

func (f *fakeRepository) MarkCarryOverDone(_ context.Context, tenantID string, day time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tenants[tenantID]
	if !ok {
		return domain.ErrTenantNotFound
	}
	if t.LastCarryOverOn == nil || t.LastCarryOverOn.Before(day) {
		t.LastCarryOverOn = &day
	}
	return nil
}

func (f *fakeRepository) FindActiveTemplates(ctx context.Context, tenantID string, asOf time.Time) ([]*domain.RecurringTemplate, error) {
	if f.findActiveTemplatesFunc != nil {
		return f.findActiveTemplatesFunc(ctx, tenantID, asOf)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.RecurringTemplate
	for _, id := range slices.Sorted(maps.Keys(f.templates)) {
		tmpl := f.templates[id]
		if tmpl.TenantID == tenantID && tmpl.Active && !tmpl.Rule.StartDate.After(asOf) {
			c := *tmpl
			out = append(out, &c)
		}
	}
	return out, nil
}

func (f *fakeRepository) InsertRecurringTask(ctx context.Context, task *domain.Task) (bool, error) {
	if f.insertRecurringTaskFunc != nil {
		return f.insertRecurringTaskFunc(ctx, task)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.tasks {
		if existing.TemplateID != nil && task.TemplateID != nil &&
			existing.OccurrenceDate != nil && task.OccurrenceDate != nil &&
			*existing.TemplateID == *task.TemplateID && existing.OccurrenceDate.Equal(*task.OccurrenceDate) {
			return false, nil
		}
	}
	f.addTask(cloneTask(task))
	return true, nil
}

func (f *fakeRepository) SetLastGeneratedDate(_ context.Context, templateID string, through time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	tmpl, ok := f.templates[templateID]
	if !ok {
		return domain.ErrTemplateNotFound
	}
	if tmpl.LastGeneratedDate == nil || tmpl.LastGeneratedDate.Before(through) {
		tmpl.LastGeneratedDate = &through
	}
	return nil
}

// FindAllocationCandidates deliberately returns candidates in map order.
func (f *fakeRepository) FindAllocationCandidates(_ context.Context, tenantID string, today time.Time) ([]domain.AllocationCandidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.AllocationCandidate
	for _, t := range f.tasks {
		if t.TenantID != tenantID || t.AssignedStaffID != nil || t.DueDate.After(today) {
			continue
		}
		if !slices.Contains(domain.AllocatableStatuses, t.Status) {
			continue
		}
		hint := t.PreferredStaffID
		if hint == nil && t.ClientID != nil {
			if c, ok := f.clients[*t.ClientID]; ok {
				hint = c.AssignedStaffID
			}
		}
		out = append(out, domain.AllocationCandidate{Task: cloneTask(t), Hint: hint})
	}
	return out, nil
}

func (f *fakeRepository) FindStaffLoads(_ context.Context, tenantID string) ([]*domain.StaffLoad, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.StaffLoad
	for _, s := range f.staff {
		if s.TenantID == tenantID && s.Active {
			c := *s
			out = append(out, &domain.StaffLoad{Staff: &c, OpenTasks: f.openCount(s.ID)})
		}
	}
	slices.SortFunc(out, func(a, b *domain.StaffLoad) int { return cmp.Compare(b.Staff.ID, a.Staff.ID) })
	return out, nil
}

func (f *fakeRepository) AssignTask(ctx context.Context, tenantID, taskID, staffID string, at time.Time) (domain.AssignOutcome, error) {
	if f.assignTaskFunc != nil {
		if outcome, handled, err := f.assignTaskFunc(ctx, tenantID, taskID, staffID); handled || err != nil {
			return outcome, err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[taskID]
	if !ok || t.TenantID != tenantID || t.AssignedStaffID != nil || !slices.Contains(domain.AllocatableStatuses, t.Status) {
		return domain.AssignOutcomeAlreadyAssigned, nil
	}
	s, ok := f.staff[staffID]
	if !ok || s.TenantID != tenantID || !s.Active || f.openCount(staffID) >= s.Capacity {
		return domain.AssignOutcomeStaffUnavailable, nil
	}
	t.AssignedStaffID = &staffID
	if t.Status == domain.TaskStatusCarriedOver {
		t.Status = domain.TaskStatusPending
	}
	t.Version++
	t.UpdatedAt = at
	return domain.AssignOutcomeAssigned, nil
}

func (f *fakeRepository) FindOverdueTasks(_ context.Context, tenantID string, today time.Time) ([]*domain.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.Task
	for _, t := range f.tasks {
		if t.TenantID == tenantID && t.Overdue(today) {
			out = append(out, cloneTask(t))
		}
	}
	slices.SortFunc(out, func(a, b *domain.Task) int { return cmp.Compare(a.Seq, b.Seq) })
	return out, nil
}

func (f *fakeRepository) UpdateCarriedOverTask(ctx context.Context, task *domain.Task, expectedVersion int) error {
	if f.updateCarriedOverTaskFunc != nil {
		if handled, err := f.updateCarriedOverTaskFunc(ctx, task, expectedVersion); handled {
			return err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.tasks[task.ID]
	if !ok || stored.Version != expectedVersion {
		return domain.ErrVersionConflict
	}
	updated := cloneTask(task)
	updated.Seq = stored.Seq
	updated.OccurrenceDate = stored.OccurrenceDate
	updated.Version = expectedVersion + 1
	f.tasks[task.ID] = updated
	return nil
}

func (f *fakeRepository) FindUpcomingAssigned(_ context.Context, tenantID string, from, to time.Time) ([]*domain.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.Task
	for _, t := range f.tasks {
		if t.TenantID == tenantID && t.AssignedStaffID != nil && t.Status.IsLive() &&
			!t.DueDate.Before(from) && !t.DueDate.After(to) {
			out = append(out, cloneTask(t))
		}
	}
	slices.SortFunc(out, func(a, b *domain.Task) int { return cmp.Compare(a.Seq, b.Seq) })
	return out, nil
}

// fixedClock returns a clock frozen at t.
func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

var _ Repository = (*fakeRepository)(nil)
