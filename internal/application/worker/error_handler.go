package worker

import (
	"context"
	"log/slog"
)

// ErrorHandler processes per-tenant failures for telemetry/alerting.
// Allows custom integration with error tracking services (Sentry, Datadog, etc.).
//
// Pattern from River (https://riverqueue.com/docs/error-handling):
// - HandleError for normal errors
// - HandlePanic for panics
type ErrorHandler interface {
	// HandleError is called when a pipeline stage of a tenant returns an error.
	HandleError(ctx context.Context, tenantID, stage string, err error)

	// HandlePanic is called when a tenant pipeline panics. Includes panic value and stack trace.
	HandlePanic(ctx context.Context, tenantID, stage string, panicVal any, stackTrace string)
}

// DefaultErrorHandler logs errors and panics with structured logging.
type DefaultErrorHandler struct{}

func (h *DefaultErrorHandler) HandleError(ctx context.Context, tenantID, stage string, err error) {
	slog.ErrorContext(ctx, "tenant pipeline failed",
		slog.String("tenant_id", tenantID),
		slog.String("stage", stage),
		slog.String("error", err.Error()),
		slog.Bool("retryable", IsRetryable(err)),
	)
}

func (h *DefaultErrorHandler) HandlePanic(ctx context.Context, tenantID, stage string, panicVal any, stackTrace string) {
	slog.ErrorContext(ctx, "tenant pipeline panicked",
		slog.String("tenant_id", tenantID),
		slog.String("stage", stage),
		slog.Any("panic_value", panicVal),
		slog.String("stack_trace", stackTrace),
	)
}
