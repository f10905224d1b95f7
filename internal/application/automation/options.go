package automation

import (
	"context"
	"fmt"
	"time"
)

// Option configures an engine component.
type Option func(*options)

type options struct {
	now func() time.Time
}

func defaultOptions() options {
	return options{now: func() time.Time { return time.Now().UTC() }}
}

func applyOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithClock injects the wall clock. Tenant-local "today" is derived from it.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// tenantToday resolves the tenant-local calendar day for now.
func tenantToday(ctx context.Context, repo Repository, tenantID string, now time.Time) (time.Time, error) {
	tenant, err := repo.FindTenantByID(ctx, tenantID)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to find tenant %s: %w", tenantID, err)
	}
	return tenant.Today(now)
}
