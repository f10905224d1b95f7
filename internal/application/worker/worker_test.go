package worker

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduler_RunsImmediatelyAndOnInterval(t *testing.T) {
	var runs atomic.Int32
	job := JobFunc(func(context.Context) error {
		runs.Add(1)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- NewScheduler(job, WithInterval(10*time.Millisecond)).Run(ctx)
	}()

	require.Eventually(t, func() bool { return runs.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestScheduler_WaitsForInFlightRun(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var finished atomic.Bool

	job := JobFunc(func(ctx context.Context) error {
		close(started)
		<-release
		// The run context survives scheduler shutdown.
		if ctx.Err() != nil {
			return ctx.Err()
		}
		finished.Store(true)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- NewScheduler(job, WithInterval(time.Hour)).Run(ctx)
	}()

	<-started
	cancel()

	select {
	case <-done:
		t.Fatal("scheduler returned before in-flight run completed")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	require.NoError(t, <-done)
	assert.True(t, finished.Load())
}

func TestScheduler_SkipsOverlappingTicks(t *testing.T) {
	var concurrent, maxConcurrent, runs atomic.Int32
	job := JobFunc(func(context.Context) error {
		n := concurrent.Add(1)
		for {
			m := maxConcurrent.Load()
			if n <= m || maxConcurrent.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(30 * time.Millisecond)
		concurrent.Add(-1)
		runs.Add(1)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- NewScheduler(job, WithInterval(5*time.Millisecond)).Run(ctx)
	}()

	require.Eventually(t, func() bool { return runs.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, int32(1), maxConcurrent.Load())
}

func TestScheduler_JitterRespectsCancellation(t *testing.T) {
	var runs atomic.Int32
	job := JobFunc(func(context.Context) error {
		runs.Add(1)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewScheduler(job, WithMaxStartupJitter(time.Hour)).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, runs.Load())
}

func TestScheduler_RunTimeout(t *testing.T) {
	deadlineSeen := make(chan bool, 1)
	job := JobFunc(func(ctx context.Context) error {
		_, ok := ctx.Deadline()
		select {
		case deadlineSeen <- ok:
		default:
		}
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- NewScheduler(job, WithInterval(time.Hour), WithRunTimeout(time.Minute)).Run(ctx)
	}()

	assert.True(t, <-deadlineSeen)
	cancel()
	require.NoError(t, <-done)
}

func TestScheduler_JobErrorDoesNotStopLoop(t *testing.T) {
	var runs atomic.Int32
	job := JobFunc(func(context.Context) error {
		runs.Add(1)
		return errors.New("boom")
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- NewScheduler(job, WithInterval(5*time.Millisecond)).Run(ctx)
	}()

	require.Eventually(t, func() bool { return runs.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
}

func TestErrorClassification(t *testing.T) {
	base := errors.New("connection reset")

	transient := Transient(base)
	assert.True(t, IsRetryable(transient))
	assert.ErrorIs(t, transient, base)
	assert.True(t, IsRetryable(fmt.Errorf("allocate: %w", transient)))

	assert.False(t, IsRetryable(base))
	assert.Nil(t, Transient(nil))

	p := PanicError{Value: "nil map", StackTrace: "goroutine 1"}
	assert.True(t, IsPanic(fmt.Errorf("tenant t1: %w", p)))
	assert.False(t, IsRetryable(p))
	assert.Equal(t, "panic: nil map", p.Error())
}
