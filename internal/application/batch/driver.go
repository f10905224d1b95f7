package batch

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/rezkam/opsflow/internal/application/automation"
	"github.com/rezkam/opsflow/internal/application/worker"
	"github.com/rezkam/opsflow/internal/domain"
	"github.com/rezkam/opsflow/internal/infrastructure/observability"
)

const tracerName = "github.com/rezkam/opsflow/internal/application/batch"

// Config holds the fan-out settings of a batch run.
type Config struct {
	// Concurrency is the number of tenants processed in parallel.
	Concurrency int
	// TenantTimeout bounds one tenant pipeline. Zero means no bound.
	TenantTimeout time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Concurrency:   4,
		TenantTimeout: 30 * time.Second,
	}
}

// Driver runs the per-tenant pipeline (carry-over at the day boundary, then
// generation, then allocation) for every active tenant. Tenants share no
// state; a failing tenant never affects the others.
type Driver struct {
	repo      automation.Repository
	generator *automation.Generator
	allocator *automation.Allocator
	carryOver *automation.CarryOver
	cfg       Config

	errorHandler worker.ErrorHandler
	metrics      *observability.EngineMetrics
	reports      ReportStore
	tracer       trace.Tracer
	now          func() time.Time
}

// Option configures a Driver.
type Option func(*Driver)

// WithErrorHandler overrides the default slog error handler.
func WithErrorHandler(h worker.ErrorHandler) Option {
	return func(d *Driver) {
		d.errorHandler = h
	}
}

// WithMetrics records run counters on m.
func WithMetrics(m *observability.EngineMetrics) Option {
	return func(d *Driver) {
		d.metrics = m
	}
}

// WithReportStore archives every report produced by RunOnce.
func WithReportStore(s ReportStore) Option {
	return func(d *Driver) {
		d.reports = s
	}
}

// WithClock injects the wall clock used by RunOnce.
func WithClock(now func() time.Time) Option {
	return func(d *Driver) {
		d.now = now
	}
}

// NewDriver creates a batch driver over the given engine components.
func NewDriver(
	repo automation.Repository,
	generator *automation.Generator,
	allocator *automation.Allocator,
	carryOver *automation.CarryOver,
	cfg Config,
	opts ...Option,
) *Driver {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	d := &Driver{
		repo:         repo,
		generator:    generator,
		allocator:    allocator,
		carryOver:    carryOver,
		cfg:          cfg,
		errorHandler: &worker.DefaultErrorHandler{},
		tracer:       otel.Tracer(tracerName),
		now:          func() time.Time { return time.Now().UTC() },
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// RunOnce runs one batch at the current time and archives the report.
// It implements worker.Job.
func (d *Driver) RunOnce(ctx context.Context) error {
	report, err := d.Run(ctx, d.now())
	if err != nil {
		return err
	}

	if d.reports != nil {
		if err := d.reports.Save(ctx, report); err != nil {
			slog.WarnContext(ctx, "failed to archive batch report", "run_id", report.RunID, "error", err)
		}
	}

	if failed := report.Failed(); len(failed) > 0 {
		return fmt.Errorf("%d of %d tenants failed: %v", len(failed), len(report.Results), failed)
	}
	return nil
}

// dayResolver yields the tenant-local day a tenant is processed for.
type dayResolver func(tenant *domain.Tenant) (time.Time, error)

func atInstant(now time.Time) dayResolver {
	return func(tenant *domain.Tenant) (time.Time, error) {
		return tenant.Today(now)
	}
}

func onDay(day time.Time) dayResolver {
	day = domain.AsDate(day)
	return func(*domain.Tenant) (time.Time, error) {
		return day, nil
	}
}

// Run processes every active tenant at instant now, each on its own local
// day. The returned error is non-nil only when the tenant list cannot be
// read; per-tenant failures are captured in the report.
func (d *Driver) Run(ctx context.Context, now time.Time) (*Report, error) {
	return d.run(ctx, now, atInstant(now))
}

// RunOn processes every active tenant as if its local day were day,
// regardless of timezone. Used for manual catch-up runs.
func (d *Driver) RunOn(ctx context.Context, day time.Time) (*Report, error) {
	return d.run(ctx, domain.AsDate(day), onDay(day))
}

func (d *Driver) run(ctx context.Context, startedAt time.Time, resolve dayResolver) (*Report, error) {
	runID, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate run ID: %w", err)
	}

	ctx, span := d.tracer.Start(ctx, "batch.Run", trace.WithAttributes(attribute.String("run_id", runID.String())))
	defer span.End()

	started := time.Now()
	report := newReport(runID.String(), startedAt)

	tenants, err := d.repo.ListActiveTenants(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to list tenants")
		return report, fmt.Errorf("failed to list tenants: %w", err)
	}

	slog.InfoContext(ctx, "batch run started",
		"run_id", report.RunID,
		"tenant_count", len(tenants),
		"concurrency", d.cfg.Concurrency)

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(d.cfg.Concurrency)

	for _, tenant := range tenants {
		g.Go(func() error {
			res := d.processTenant(ctx, tenant, resolve)
			mu.Lock()
			report.Results[tenant.ID] = res
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	report.FinishedAt = report.StartedAt.Add(time.Since(started))

	totals := report.Totals()
	span.SetAttributes(
		attribute.Int("tenants", totals.Tenants),
		attribute.Int("failed", totals.Failed),
	)
	if totals.Failed > 0 {
		span.SetStatus(codes.Error, "tenant failures")
	}
	if d.metrics != nil {
		d.metrics.RunDuration.Record(ctx, time.Since(started).Seconds())
	}

	slog.InfoContext(ctx, "batch run finished",
		"run_id", report.RunID,
		"tenant_count", totals.Tenants,
		"failed_count", totals.Failed,
		"generated_count", totals.Generated,
		"assigned_count", totals.Assigned,
		"unassigned_count", totals.Unassigned,
		"carried_over_count", totals.CarriedOver,
		"escalated_count", totals.Escalated,
		"duration", time.Since(started))

	return report, nil
}

// RunTenant processes a single tenant at instant now, regardless of its active flag.
func (d *Driver) RunTenant(ctx context.Context, tenantID string, now time.Time) (*TenantResult, error) {
	return d.runTenant(ctx, tenantID, atInstant(now))
}

// RunTenantOn processes a single tenant for the given local day.
func (d *Driver) RunTenantOn(ctx context.Context, tenantID string, day time.Time) (*TenantResult, error) {
	return d.runTenant(ctx, tenantID, onDay(day))
}

func (d *Driver) runTenant(ctx context.Context, tenantID string, resolve dayResolver) (*TenantResult, error) {
	tenant, err := d.repo.FindTenantByID(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to find tenant %s: %w", tenantID, err)
	}
	return d.processTenant(ctx, tenant, resolve), nil
}

func (d *Driver) processTenant(ctx context.Context, tenant *domain.Tenant, resolve dayResolver) (res *TenantResult) {
	started := time.Now()
	res = &TenantResult{TenantID: tenant.ID}
	stage := StageLoad

	ctx, span := d.tracer.Start(ctx, "batch.Tenant", trace.WithAttributes(attribute.String("tenant_id", tenant.ID)))
	defer span.End()

	if d.cfg.TenantTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.cfg.TenantTimeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			stackTrace := string(debug.Stack())
			d.errorHandler.HandlePanic(ctx, tenant.ID, string(stage), r, stackTrace)
			res.Err = newTenantError(stage, worker.PanicError{Value: r, StackTrace: stackTrace})
		}
		res.Duration = time.Since(started)
		if res.Err != nil {
			span.SetStatus(codes.Error, res.Err.Error())
		}
		d.record(ctx, res)
	}()

	fail := func(err error) *TenantResult {
		span.RecordError(err)
		d.errorHandler.HandleError(ctx, tenant.ID, string(stage), err)
		res.Err = newTenantError(stage, err)
		return res
	}

	stage = StageTimezone
	today, err := resolve(tenant)
	if err != nil {
		return fail(err)
	}
	res.Today = domain.FormatDate(today)

	if tenant.NeedsCarryOver(today) {
		stage = StageCarryOver
		res.CarryOver, err = d.carryOver.ProcessOn(ctx, tenant.ID, today)
		if err != nil {
			return fail(worker.Transient(err))
		}
		if err := d.repo.MarkCarryOverDone(ctx, tenant.ID, today); err != nil {
			return fail(worker.Transient(err))
		}
	}

	stage = StageGenerate
	res.Generate, err = d.generator.Generate(ctx, tenant.ID, today)
	if err != nil {
		return fail(worker.Transient(err))
	}

	stage = StageAllocate
	res.Allocate, err = d.allocator.AllocateOn(ctx, tenant.ID, today)
	if err != nil {
		return fail(worker.Transient(err))
	}

	return res
}

func (d *Driver) record(ctx context.Context, res *TenantResult) {
	if d.metrics == nil {
		return
	}
	m := d.metrics
	attrs := observability.TenantAttr(res.TenantID)

	if res.Err != nil {
		m.TenantFailures.Add(ctx, 1, attrs)
	}
	if c := res.CarryOver; c != nil {
		observability.Add(ctx, m.TasksCarriedOver, c.CarriedOver, attrs)
		observability.Add(ctx, m.TasksEscalated, c.Escalated, attrs)
	}
	if g := res.Generate; g != nil {
		observability.Add(ctx, m.TasksGenerated, g.Created, attrs)
		observability.Add(ctx, m.TasksDropped, g.Dropped, attrs)
	}
	if a := res.Allocate; a != nil {
		observability.Add(ctx, m.TasksAssigned, a.Assigned, attrs)
		observability.Add(ctx, m.TasksUnassigned, len(a.Unassigned), attrs)
		observability.Add(ctx, m.NotifyFailures, a.NotifyFailures, attrs)
	}
	m.TenantRunDuration.Record(ctx, res.Duration.Seconds(), attrs)
}
