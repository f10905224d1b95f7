package automation

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/rezkam/opsflow/internal/domain"
)

// Allocator assigns due, unassigned tasks to staff with spare capacity.
type Allocator struct {
	repo     Repository
	notifier Notifier
	opts     options
}

// NewAllocator creates an allocator. notifier may be nil.
func NewAllocator(repo Repository, notifier Notifier, opts ...Option) *Allocator {
	return &Allocator{
		repo:     repo,
		notifier: notifier,
		opts:     applyOptions(opts),
	}
}

// Allocate runs one allocation pass for the tenant's current local day.
func (a *Allocator) Allocate(ctx context.Context, tenantID string) (*domain.AllocationResult, error) {
	today, err := tenantToday(ctx, a.repo, tenantID, a.opts.now())
	if err != nil {
		return nil, err
	}
	return a.AllocateOn(ctx, tenantID, today)
}

// AllocateOn runs one allocation pass treating today as the tenant-local day.
//
// Candidates are visited by priority (highest first), then due date, then
// creation order. Each goes to its preferred staff member if eligible, else to
// the least-loaded eligible staff member (lowest ID on ties). Tasks left over
// are reported in Unassigned, which is not an error.
func (a *Allocator) AllocateOn(ctx context.Context, tenantID string, today time.Time) (*domain.AllocationResult, error) {
	result := &domain.AllocationResult{}

	candidates, err := a.repo.FindAllocationCandidates(ctx, tenantID, today)
	if err != nil {
		return result, fmt.Errorf("failed to find allocation candidates: %w", err)
	}
	if len(candidates) == 0 {
		return result, nil
	}

	loads, err := a.repo.FindStaffLoads(ctx, tenantID)
	if err != nil {
		return result, fmt.Errorf("failed to find staff loads: %w", err)
	}

	SortCandidates(candidates)
	pool := newStaffPool(loads)

	for _, candidate := range candidates {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		staffID, outcome, err := a.place(ctx, tenantID, candidate, pool)
		if err != nil {
			return result, err
		}

		switch {
		case staffID == "":
			result.Unassigned = append(result.Unassigned, candidate.Task.ID)
		case outcome == domain.AssignOutcomeAlreadyAssigned:
			slog.DebugContext(ctx, "task claimed concurrently",
				"tenant_id", tenantID,
				"task_id", candidate.Task.ID)
		default:
			result.Assigned++
			result.Assignments = append(result.Assignments, domain.Assignment{TaskID: candidate.Task.ID, StaffID: staffID})
			if !a.notify(ctx, tenantID, candidate.Task.ID, staffID) {
				result.NotifyFailures++
			}
		}
	}

	slog.InfoContext(ctx, "allocation completed",
		"tenant_id", tenantID,
		"today", domain.FormatDate(today),
		"candidate_count", len(candidates),
		"assigned_count", result.Assigned,
		"unassigned_count", len(result.Unassigned))

	return result, nil
}

// place tries staff for one candidate until a write succeeds or no eligible
// staff is left. An empty staffID means nobody could take the task.
func (a *Allocator) place(ctx context.Context, tenantID string, candidate domain.AllocationCandidate, pool *staffPool) (string, domain.AssignOutcome, error) {
	for {
		load := pool.pick(candidate.Hint)
		if load == nil {
			return "", domain.AssignOutcomeStaffUnavailable, nil
		}

		outcome, err := a.repo.AssignTask(ctx, tenantID, candidate.Task.ID, load.Staff.ID, a.opts.now())
		if err != nil {
			return "", outcome, fmt.Errorf("failed to assign task %s to staff %s: %w", candidate.Task.ID, load.Staff.ID, err)
		}

		switch outcome {
		case domain.AssignOutcomeAssigned:
			load.OpenTasks++
			return load.Staff.ID, outcome, nil
		case domain.AssignOutcomeAlreadyAssigned:
			return load.Staff.ID, outcome, nil
		default:
			// Filled up or deactivated since the loads were read.
			slog.DebugContext(ctx, "staff unavailable, trying next",
				"tenant_id", tenantID,
				"task_id", candidate.Task.ID,
				"staff_id", load.Staff.ID)
			pool.markFull(load)
		}
	}
}

func (a *Allocator) notify(ctx context.Context, tenantID, taskID, staffID string) bool {
	if a.notifier == nil {
		return true
	}

	id, err := uuid.NewV7()
	if err != nil {
		slog.ErrorContext(ctx, "failed to generate event ID", "task_id", taskID, "error", err)
		return false
	}

	event := domain.AssignmentEvent{
		ID:         id.String(),
		TenantID:   tenantID,
		TaskID:     taskID,
		StaffID:    staffID,
		AssignedAt: a.opts.now(),
	}
	if err := a.notifier.NotifyAssigned(ctx, event); err != nil {
		slog.WarnContext(ctx, "failed to deliver assignment event",
			"tenant_id", tenantID,
			"task_id", taskID,
			"staff_id", staffID,
			"error", err)
		return false
	}
	return true
}

// SortCandidates orders candidates by priority desc, due date asc, creation
// order asc, then ID asc.
func SortCandidates(candidates []domain.AllocationCandidate) {
	slices.SortFunc(candidates, func(x, y domain.AllocationCandidate) int {
		a, b := x.Task, y.Task
		if c := cmp.Compare(b.Priority.Rank(), a.Priority.Rank()); c != 0 {
			return c
		}
		if c := a.DueDate.Compare(b.DueDate); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Seq, b.Seq); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}

// staffPool tracks in-memory load during one allocation pass.
type staffPool struct {
	loads []*domain.StaffLoad
	byID  map[string]*domain.StaffLoad
}

func newStaffPool(loads []*domain.StaffLoad) *staffPool {
	sorted := slices.Clone(loads)
	slices.SortFunc(sorted, func(a, b *domain.StaffLoad) int {
		return cmp.Compare(a.Staff.ID, b.Staff.ID)
	})

	byID := make(map[string]*domain.StaffLoad, len(sorted))
	for _, l := range sorted {
		byID[l.Staff.ID] = l
	}
	return &staffPool{loads: sorted, byID: byID}
}

// pick returns the hinted staff member if eligible, else the least-loaded
// eligible one. Loads are sorted by ID so the first minimum wins ties.
func (p *staffPool) pick(hint *string) *domain.StaffLoad {
	if hint != nil {
		if l, ok := p.byID[*hint]; ok && l.Eligible() {
			return l
		}
	}

	var best *domain.StaffLoad
	for _, l := range p.loads {
		if !l.Eligible() {
			continue
		}
		if best == nil || l.OpenTasks < best.OpenTasks {
			best = l
		}
	}
	return best
}

func (p *staffPool) markFull(l *domain.StaffLoad) {
	l.OpenTasks = max(l.OpenTasks, l.Staff.Capacity)
}
