package batch

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/rezkam/opsflow/internal/application/worker"
	"github.com/rezkam/opsflow/internal/domain"
)

// Stage names a step of the per-tenant pipeline.
type Stage string

const (
	StageLoad      Stage = "load"
	StageTimezone  Stage = "timezone"
	StageCarryOver Stage = "carry_over"
	StageGenerate  Stage = "generate"
	StageAllocate  Stage = "allocate"
)

// TenantError describes why a tenant pipeline stopped.
type TenantError struct {
	Stage     Stage  `json:"stage"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
	Panic     bool   `json:"panic"`

	cause error
}

func newTenantError(stage Stage, err error) *TenantError {
	return &TenantError{
		Stage:     stage,
		Message:   err.Error(),
		Retryable: worker.IsRetryable(err),
		Panic:     worker.IsPanic(err),
		cause:     err,
	}
}

func (e *TenantError) Error() string {
	return fmt.Sprintf("%s: %s", e.Stage, e.Message)
}

func (e *TenantError) Unwrap() error { return e.cause }

// TenantResult is the outcome of one tenant pipeline. Stage results are nil
// for stages that did not run.
type TenantResult struct {
	TenantID  string                   `json:"tenant_id"`
	Today     string                   `json:"today,omitempty"`
	CarryOver *domain.CarryOverResult  `json:"carry_over,omitempty"`
	Generate  *domain.GenerateResult   `json:"generate,omitempty"`
	Allocate  *domain.AllocationResult `json:"allocate,omitempty"`
	Err       *TenantError             `json:"error,omitempty"`
	Duration  time.Duration            `json:"duration_ns"`
}

// Report aggregates the results of one batch run.
type Report struct {
	RunID      string                   `json:"run_id"`
	StartedAt  time.Time                `json:"started_at"`
	FinishedAt time.Time                `json:"finished_at"`
	Results    map[string]*TenantResult `json:"results"`
}

func newReport(runID string, startedAt time.Time) *Report {
	return &Report{
		RunID:     runID,
		StartedAt: startedAt,
		Results:   make(map[string]*TenantResult),
	}
}

// Failed returns the IDs of tenants whose pipeline ended with an error, sorted.
func (r *Report) Failed() []string {
	var failed []string
	for _, id := range slices.Sorted(maps.Keys(r.Results)) {
		if r.Results[id].Err != nil {
			failed = append(failed, id)
		}
	}
	return failed
}

// Totals sums the per-tenant counters.
type Totals struct {
	Tenants        int `json:"tenants"`
	Failed         int `json:"failed"`
	Generated      int `json:"generated"`
	Duplicates     int `json:"duplicates"`
	Dropped        int `json:"dropped"`
	Skipped        int `json:"skipped_templates"`
	Assigned       int `json:"assigned"`
	Unassigned     int `json:"unassigned"`
	NotifyFailures int `json:"notify_failures"`
	CarriedOver    int `json:"carried_over"`
	Escalated      int `json:"escalated"`
}

// Totals returns the aggregate counters of the run.
func (r *Report) Totals() Totals {
	var t Totals
	for _, res := range r.Results {
		t.Tenants++
		if res.Err != nil {
			t.Failed++
		}
		if g := res.Generate; g != nil {
			t.Generated += g.Created
			t.Duplicates += g.Duplicates
			t.Dropped += g.Dropped
			t.Skipped += len(g.Skipped)
		}
		if a := res.Allocate; a != nil {
			t.Assigned += a.Assigned
			t.Unassigned += len(a.Unassigned)
			t.NotifyFailures += a.NotifyFailures
		}
		if c := res.CarryOver; c != nil {
			t.CarriedOver += c.CarriedOver
			t.Escalated += c.Escalated
		}
	}
	return t
}

// ObjectName is the archive name of the report.
func (r *Report) ObjectName() string {
	return fmt.Sprintf("%s_%s.json", r.StartedAt.UTC().Format("20060102T150405Z"), r.RunID)
}

// ErrReportNotFound is returned when an archived report does not exist.
var ErrReportNotFound = errors.New("report not found")

// ReportStore archives finished reports.
type ReportStore interface {
	Save(ctx context.Context, report *Report) error
}

// ReportArchive is a ReportStore that can read reports back.
type ReportArchive interface {
	ReportStore

	// List returns archived report names, newest first.
	List(ctx context.Context) ([]string, error)

	// Load reads one report by name. Returns ErrReportNotFound if missing.
	Load(ctx context.Context, name string) (*Report, error)
}
