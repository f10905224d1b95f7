package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/rezkam/opsflow/internal/app"
	"github.com/rezkam/opsflow/internal/application/worker"
	"github.com/rezkam/opsflow/internal/config"
	"github.com/rezkam/opsflow/internal/infrastructure/observability"
)

// serviceName is the health check service reported by the worker.
const serviceName = "opsflow.worker"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to run: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadWorkerConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	providers, err := observability.Init(ctx, observability.Config{
		Enabled:     cfg.Observability.OTelEnabled,
		ServiceName: cfg.Observability.ServiceName,
		LogLevel:    cfg.Observability.LogLevel,
	})
	if err != nil {
		return fmt.Errorf("failed to init observability: %w", err)
	}
	defer func() {
		// Bounded so an unreachable collector cannot hang exit.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "failed to shutdown observability providers", "error", err)
		}
	}()

	metrics, err := observability.NewEngineMetrics()
	if err != nil {
		return fmt.Errorf("failed to create engine metrics: %w", err)
	}

	engine, err := app.NewEngine(ctx, app.Options{
		Database: cfg.Database,
		Engine:   cfg.Engine,
		Batch:    cfg.Batch,
		Notify:   cfg.Notify,
		Report:   cfg.Report,
		Metrics:  metrics,
	})
	if err != nil {
		return fmt.Errorf("failed to build engine: %w", err)
	}
	defer func() {
		if err := engine.Close(); err != nil {
			slog.Error("failed to close engine", "error", err)
		}
	}()

	slog.InfoContext(ctx, "opsflow worker starting",
		"db_driver", cfg.Database.Driver,
		"interval", cfg.Scheduler.Interval,
		"concurrency", cfg.Batch.Concurrency,
		"notify_sinks", cfg.Notify.Sinks,
		"report_storage", cfg.Report.StorageType)

	healthServer := health.NewServer()
	errResult := make(chan error, 1)

	var grpcServer *grpc.Server
	if cfg.Health.Enabled {
		var lis net.Listener
		grpcServer, lis, err = createHealthServer(ctx, cfg.Health.Addr, healthServer)
		if err != nil {
			return err
		}
		go func() {
			if err := grpcServer.Serve(lis); err != nil {
				errResult <- fmt.Errorf("failed to serve health endpoint: %w", err)
			}
		}()
	}

	scheduler := worker.NewScheduler(engine.Driver,
		worker.WithInterval(cfg.Scheduler.Interval),
		worker.WithMaxStartupJitter(cfg.Scheduler.MaxStartupJitter),
	)

	schedulerDone := make(chan error, 1)
	go func() {
		schedulerDone <- scheduler.Run(ctx)
	}()
	healthServer.SetServingStatus(serviceName, healthpb.HealthCheckResponse_SERVING)

	var runErr error
	select {
	case <-ctx.Done():
		slog.InfoContext(ctx, "shutting down")
	case err := <-errResult:
		runErr = err
		cancel()
	}

	healthServer.Shutdown()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	select {
	case err := <-schedulerDone:
		if err != nil && !errors.Is(err, context.Canceled) {
			slog.ErrorContext(shutdownCtx, "scheduler stopped with error", "error", err)
		}
	case <-shutdownCtx.Done():
		slog.WarnContext(shutdownCtx, "scheduler shutdown timed out, abandoning in-flight run")
	}

	if grpcServer != nil {
		stopGRPC(shutdownCtx, grpcServer)
	}

	slog.InfoContext(shutdownCtx, "opsflow worker stopped")
	return runErr
}

// createHealthServer starts listening on addr and registers the standard gRPC
// health service.
func createHealthServer(ctx context.Context, addr string, healthServer *health.Server) (*grpc.Server, net.Listener, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	healthpb.RegisterHealthServer(s, healthServer)

	slog.InfoContext(ctx, "health server listening", "address", lis.Addr())
	return s, lis, nil
}

func stopGRPC(ctx context.Context, s *grpc.Server) {
	done := make(chan struct{})
	go func() {
		s.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		slog.WarnContext(ctx, "health server shutdown timed out, forcing stop")
		s.Stop()
	}
}
