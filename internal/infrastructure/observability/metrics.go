package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/rezkam/opsflow"

// EngineMetrics holds the instruments recorded by batch runs.
type EngineMetrics struct {
	TasksGenerated    metric.Int64Counter
	TasksDropped      metric.Int64Counter
	TasksAssigned     metric.Int64Counter
	TasksUnassigned   metric.Int64Counter
	TasksCarriedOver  metric.Int64Counter
	TasksEscalated    metric.Int64Counter
	TenantFailures    metric.Int64Counter
	NotifyFailures    metric.Int64Counter
	RunDuration       metric.Float64Histogram
	TenantRunDuration metric.Float64Histogram
}

// NewEngineMetrics registers the engine instruments on the global meter provider.
func NewEngineMetrics() (*EngineMetrics, error) {
	return NewEngineMetricsWithMeter(otel.Meter(meterName))
}

// NewEngineMetricsWithMeter registers the engine instruments on meter.
func NewEngineMetricsWithMeter(meter metric.Meter) (*EngineMetrics, error) {
	m := &EngineMetrics{}
	var err error

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&m.TasksGenerated, "opsflow.tasks.generated", "Tasks created from recurring templates"},
		{&m.TasksDropped, "opsflow.tasks.dropped", "Occurrences skipped because they are older than the lookback window"},
		{&m.TasksAssigned, "opsflow.tasks.assigned", "Tasks assigned to staff"},
		{&m.TasksUnassigned, "opsflow.tasks.unassigned", "Due tasks left without staff after allocation"},
		{&m.TasksCarriedOver, "opsflow.tasks.carried_over", "Tasks rolled over to a new day"},
		{&m.TasksEscalated, "opsflow.tasks.escalated", "Tasks whose priority was raised by carry-over"},
		{&m.TenantFailures, "opsflow.tenant.failures", "Tenant pipelines that ended with an error"},
		{&m.NotifyFailures, "opsflow.notify.failures", "Assignment events the notification sink rejected"},
	}
	for _, c := range counters {
		*c.dst, err = meter.Int64Counter(c.name, metric.WithDescription(c.desc), metric.WithUnit("{task}"))
		if err != nil {
			return nil, fmt.Errorf("failed to create counter %s: %w", c.name, err)
		}
	}

	m.RunDuration, err = meter.Float64Histogram("opsflow.batch.duration",
		metric.WithDescription("Duration of a batch run over all tenants"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, fmt.Errorf("failed to create histogram: %w", err)
	}

	m.TenantRunDuration, err = meter.Float64Histogram("opsflow.tenant.duration",
		metric.WithDescription("Duration of one tenant pipeline"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, fmt.Errorf("failed to create histogram: %w", err)
	}

	return m, nil
}

// TenantAttr is the attribute set recorded with per-tenant measurements.
func TenantAttr(tenantID string) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("tenant_id", tenantID))
}

// Add records n on counter when n is positive.
func Add(ctx context.Context, counter metric.Int64Counter, n int, opts ...metric.AddOption) {
	if n > 0 {
		counter.Add(ctx, int64(n), opts...)
	}
}
