package notify_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezkam/opsflow/internal/application/automation"
	"github.com/rezkam/opsflow/internal/domain"
	"github.com/rezkam/opsflow/internal/infrastructure/notify"
)

var event = domain.AssignmentEvent{
	ID:         "0190c1b2-0000-7000-8000-000000000001",
	TenantID:   "acme",
	TaskID:     "t1",
	StaffID:    "s1",
	AssignedAt: time.Date(2024, time.January, 10, 9, 0, 0, 0, time.UTC),
}

func TestWebhookNotifier_Delivers(t *testing.T) {
	var got domain.AssignmentEvent
	var idempotencyKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		idempotencyKey = r.Header.Get(notify.IdempotencyHeader)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	n := notify.NewWebhookNotifier(srv.URL, time.Second)
	require.NoError(t, n.NotifyAssigned(context.Background(), event))

	assert.Equal(t, event.TaskID, got.TaskID)
	assert.Equal(t, event.StaffID, got.StaffID)
	assert.True(t, event.AssignedAt.Equal(got.AssignedAt))
	assert.Equal(t, event.ID, idempotencyKey)
}

func TestWebhookNotifier_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := notify.NewWebhookNotifier(srv.URL, time.Second, notify.WithRetries(3, time.Millisecond))
	require.NoError(t, n.NotifyAssigned(context.Background(), event))
	assert.Equal(t, int32(3), calls.Load())
}

func TestWebhookNotifier_GivesUpAfterRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	n := notify.NewWebhookNotifier(srv.URL, time.Second, notify.WithRetries(2, time.Millisecond))
	err := n.NotifyAssigned(context.Background(), event)
	require.Error(t, err)
	assert.Equal(t, int32(3), calls.Load(), "one attempt plus two retries")
}

func TestWebhookNotifier_ClientErrorIsPermanent(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	n := notify.NewWebhookNotifier(srv.URL, time.Second, notify.WithRetries(5, time.Millisecond))
	err := n.NotifyAssigned(context.Background(), event)
	assert.ErrorIs(t, err, notify.ErrWebhookRejected)
	assert.Equal(t, int32(1), calls.Load())
}

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	require.NoError(t, notify.NewLogNotifier(logger).NotifyAssigned(context.Background(), event))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "task assigned", line["msg"])
	assert.Equal(t, "t1", line["task_id"])
	assert.Equal(t, "s1", line["staff_id"])
}

func TestMulti(t *testing.T) {
	boom := errors.New("boom")
	var delivered []string
	sink := func(name string, err error) automation.Notifier {
		return automation.NotifierFunc(func(_ context.Context, ev domain.AssignmentEvent) error {
			delivered = append(delivered, name+":"+ev.TaskID)
			return err
		})
	}

	m := notify.Multi{sink("a", nil), sink("b", boom), sink("c", nil)}
	err := m.NotifyAssigned(context.Background(), event)

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"a:t1", "b:t1", "c:t1"}, delivered, "a failing sink does not stop the others")
	assert.NoError(t, notify.Multi{}.NotifyAssigned(context.Background(), event))
}
