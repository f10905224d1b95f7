package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rezkam/opsflow/internal/application/automation"
	"github.com/rezkam/opsflow/internal/domain"
)

// AssignmentChannel is the LISTEN/NOTIFY channel carrying assignment events.
const AssignmentChannel = "task_assignments"

// Outbox persists assignment events and announces them on AssignmentChannel.
// The NOTIFY is transactional with the insert, so listeners never see an
// event that was not stored.
type Outbox struct {
	pool *pgxpool.Pool
}

var _ automation.Notifier = (*Outbox)(nil)

// NewOutbox creates an outbox on the given pool.
func NewOutbox(pool *pgxpool.Pool) *Outbox {
	return &Outbox{pool: pool}
}

// NotifyAssigned implements automation.Notifier.
func (o *Outbox) NotifyAssigned(ctx context.Context, event domain.AssignmentEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal assignment event: %w", err)
	}

	_, err = o.pool.Exec(ctx, `
		WITH ins AS (
			INSERT INTO assignment_events (id, tenant_id, task_id, staff_id, assigned_at)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id
		)
		SELECT pg_notify($6, $7) FROM ins`,
		event.ID, event.TenantID, event.TaskID, event.StaffID, event.AssignedAt,
		AssignmentChannel, string(payload))
	if err != nil {
		return fmt.Errorf("failed to record assignment event: %w", err)
	}
	return nil
}

// ListEvents returns a tenant's assignment events recorded after since, oldest first.
// Consumers use it to catch up on events missed while not listening.
func (o *Outbox) ListEvents(ctx context.Context, tenantID string, since time.Time, limit int) ([]domain.AssignmentEvent, error) {
	rows, err := o.pool.Query(ctx, `
		SELECT id, tenant_id, task_id, staff_id, assigned_at
		FROM assignment_events
		WHERE tenant_id = $1 AND created_at > $2
		ORDER BY created_at, id
		LIMIT $3`, tenantID, since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list assignment events: %w", err)
	}
	defer rows.Close()

	var events []domain.AssignmentEvent
	for rows.Next() {
		var ev domain.AssignmentEvent
		if err := rows.Scan(&ev.ID, &ev.TenantID, &ev.TaskID, &ev.StaffID, &ev.AssignedAt); err != nil {
			return nil, fmt.Errorf("failed to scan assignment event: %w", err)
		}
		ev.AssignedAt = ev.AssignedAt.UTC()
		events = append(events, ev)
	}
	return events, rows.Err()
}

// Subscribe listens on AssignmentChannel until ctx is cancelled. The returned
// channel is closed when the subscription ends.
func (o *Outbox) Subscribe(ctx context.Context) (<-chan domain.AssignmentEvent, error) {
	// Acquire a dedicated connection for LISTEN/NOTIFY
	conn, err := o.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}

	_, err = conn.Exec(ctx, "LISTEN "+AssignmentChannel)
	if err != nil {
		conn.Release()
		return nil, fmt.Errorf("failed to listen to channel: %w", err)
	}

	ch := make(chan domain.AssignmentEvent, 16)

	go func() {
		defer close(ch)
		defer conn.Release()
		defer func() {
			_, _ = conn.Exec(context.WithoutCancel(ctx), "UNLISTEN "+AssignmentChannel)
		}()

		for {
			notification, err := conn.Conn().WaitForNotification(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				slog.WarnContext(ctx, "assignment subscription interrupted", "error", err)
				return
			}

			var ev domain.AssignmentEvent
			if err := json.Unmarshal([]byte(notification.Payload), &ev); err != nil {
				slog.WarnContext(ctx, "dropping malformed assignment notification", "error", err)
				continue
			}

			select {
			case ch <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	return ch, nil
}
