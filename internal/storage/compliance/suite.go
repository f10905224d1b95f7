// Package compliance holds the behavioral test suite every report archive
// backend must pass.
package compliance

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezkam/opsflow/internal/application/batch"
	"github.com/rezkam/opsflow/internal/domain"
)

func sampleReport(runID string, started time.Time) *batch.Report {
	return &batch.Report{
		RunID:      runID,
		StartedAt:  started,
		FinishedAt: started.Add(3 * time.Second),
		Results: map[string]*batch.TenantResult{
			"acme": {
				TenantID: "acme",
				Today:    "2024-01-10",
				Generate: &domain.GenerateResult{Created: 4},
				Allocate: &domain.AllocationResult{Assigned: 3, Unassigned: []string{"t4"}},
			},
			"broken": {
				TenantID: "broken",
				Err:      &batch.TenantError{Stage: batch.StageGenerate, Message: "connection reset", Retryable: true},
			},
		},
	}
}

// RunReportArchiveComplianceTest runs a standard set of tests against a
// batch.ReportArchive implementation. setup returns a fresh, empty archive.
func RunReportArchiveComplianceTest(t *testing.T, setup func(t *testing.T) batch.ReportArchive) {
	t.Run("SaveAndLoad", func(t *testing.T) {
		store := setup(t)
		ctx := context.Background()

		report := sampleReport("run-1", time.Date(2024, time.January, 10, 9, 0, 0, 0, time.UTC))
		require.NoError(t, store.Save(ctx, report))

		loaded, err := store.Load(ctx, report.ObjectName())
		require.NoError(t, err)
		assert.Equal(t, report.RunID, loaded.RunID)
		assert.True(t, report.StartedAt.Equal(loaded.StartedAt))
		require.Contains(t, loaded.Results, "acme")
		assert.Equal(t, 4, loaded.Results["acme"].Generate.Created)
		assert.Equal(t, []string{"t4"}, loaded.Results["acme"].Allocate.Unassigned)
		assert.Equal(t, []string{"broken"}, loaded.Failed())
		assert.True(t, loaded.Results["broken"].Err.Retryable)
		assert.Equal(t, report.Totals(), loaded.Totals())
	})

	t.Run("ListNewestFirst", func(t *testing.T) {
		store := setup(t)
		ctx := context.Background()

		older := sampleReport("run-a", time.Date(2024, time.January, 10, 9, 0, 0, 0, time.UTC))
		newer := sampleReport("run-b", time.Date(2024, time.January, 10, 9, 5, 0, 0, time.UTC))
		require.NoError(t, store.Save(ctx, older))
		require.NoError(t, store.Save(ctx, newer))

		names, err := store.List(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{newer.ObjectName(), older.ObjectName()}, names)
	})

	t.Run("EmptyArchive", func(t *testing.T) {
		store := setup(t)

		names, err := store.List(context.Background())
		require.NoError(t, err)
		assert.Empty(t, names)
	})

	t.Run("LoadMissing", func(t *testing.T) {
		store := setup(t)

		_, err := store.Load(context.Background(), "20240101T000000Z_missing.json")
		assert.ErrorIs(t, err, batch.ErrReportNotFound)
	})
}
