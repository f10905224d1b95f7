package automation

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/rezkam/opsflow/internal/domain"
)

// Reminders supplies the records for due-soon reminders. Delivery is left to
// whoever consumes the feed.
type Reminders struct {
	repo Repository
	opts options
}

func NewReminders(repo Repository, opts ...Option) *Reminders {
	return &Reminders{repo: repo, opts: applyOptions(opts)}
}

// Upcoming returns assigned live tasks due between the tenant's today and
// today+horizonDays inclusive, ordered by due date then priority.
func (r *Reminders) Upcoming(ctx context.Context, tenantID string, horizonDays int) ([]*domain.Task, error) {
	if horizonDays < 0 {
		return nil, fmt.Errorf("horizon must not be negative, got %d", horizonDays)
	}

	today, err := tenantToday(ctx, r.repo, tenantID, r.opts.now())
	if err != nil {
		return nil, err
	}

	tasks, err := r.repo.FindUpcomingAssigned(ctx, tenantID, today, domain.AddDays(today, horizonDays))
	if err != nil {
		return nil, fmt.Errorf("failed to find upcoming tasks: %w", err)
	}

	slices.SortStableFunc(tasks, func(a, b *domain.Task) int {
		if c := a.DueDate.Compare(b.DueDate); c != 0 {
			return c
		}
		return cmp.Compare(b.Priority.Rank(), a.Priority.Rank())
	})
	return tasks, nil
}
