// Package app assembles the engine from configuration. Both binaries build
// their dependency graph through it.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/rezkam/opsflow/internal/application/automation"
	"github.com/rezkam/opsflow/internal/application/batch"
	"github.com/rezkam/opsflow/internal/config"
	"github.com/rezkam/opsflow/internal/infrastructure/notify"
	"github.com/rezkam/opsflow/internal/infrastructure/observability"
	"github.com/rezkam/opsflow/internal/infrastructure/persistence/postgres"
	"github.com/rezkam/opsflow/internal/infrastructure/persistence/sqlite"
	"github.com/rezkam/opsflow/internal/storage/fs"
	"github.com/rezkam/opsflow/internal/storage/gcs"
)

// ErrOutboxRequiresPostgres is returned when the outbox sink is configured on
// a store without an assignment_events table.
var ErrOutboxRequiresPostgres = errors.New("the outbox notification sink requires the postgres driver")

// Engine is the assembled automation engine.
type Engine struct {
	Store     automation.Store
	Driver    *batch.Driver
	Reminders *automation.Reminders
	// Reports is nil when archiving is disabled.
	Reports batch.ReportArchive

	closers []io.Closer
}

// Close releases the store and the report archive.
func (e *Engine) Close() error {
	var errs []error
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Options carries the configuration sections the engine is built from.
type Options struct {
	Database config.DatabaseConfig
	Engine   config.EngineConfig
	Batch    config.BatchConfig
	Notify   config.NotifyConfig
	Report   config.ReportConfig

	// Metrics is optional.
	Metrics *observability.EngineMetrics
	// Now overrides the wall clock of every engine component.
	Now func() time.Time
}

// NewEngine opens the store and the report archive and wires the engine
// components on top of them. The caller owns the returned Engine and must
// close it.
func NewEngine(ctx context.Context, opts Options) (_ *Engine, err error) {
	e := &Engine{}
	defer func() {
		if err != nil {
			if cerr := e.Close(); cerr != nil {
				slog.ErrorContext(ctx, "failed to release engine resources", "error", cerr)
			}
		}
	}()

	e.Store, err = ProvideStore(ctx, opts.Database)
	if err != nil {
		return nil, err
	}
	e.closers = append(e.closers, e.Store)

	notifier, err := ProvideNotifier(opts.Notify, e.Store)
	if err != nil {
		return nil, err
	}

	archive, closer, err := ProvideReportArchive(ctx, opts.Report)
	if err != nil {
		return nil, err
	}
	if closer != nil {
		e.closers = append(e.closers, closer)
	}
	e.Reports = archive

	e.Driver = ProvideDriver(e.Store, notifier, archive, opts.Engine, opts.Batch, opts.Metrics, opts.Now)
	if opts.Now != nil {
		e.Reminders = automation.NewReminders(e.Store, automation.WithClock(opts.Now))
	} else {
		e.Reminders = automation.NewReminders(e.Store)
	}

	return e, nil
}

// ProvideStore opens the store selected by cfg.Driver.
func ProvideStore(ctx context.Context, cfg config.DatabaseConfig) (automation.Store, error) {
	switch cfg.Driver {
	case "postgres":
		store, err := postgres.NewStoreWithConfig(ctx, postgres.DBConfig{
			DSN:             cfg.DSN,
			MaxOpenConns:    cfg.MaxOpenConns,
			MaxIdleConns:    cfg.MaxIdleConns,
			ConnMaxLifetime: time.Duration(cfg.ConnMaxLifetime) * time.Second,
			ConnMaxIdleTime: time.Duration(cfg.ConnMaxIdleTime) * time.Second,
			AutoMigrate:     cfg.AutoMigrate,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres store: %w", err)
		}
		return store, nil
	case "sqlite":
		store, err := sqlite.NewStore(ctx, cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrUnknownDriver, cfg.Driver)
	}
}

// ProvideNotifier builds the fan-out over the configured sinks. It returns nil
// when no sink is configured.
func ProvideNotifier(cfg config.NotifyConfig, store automation.Store) (automation.Notifier, error) {
	var sinks notify.Multi
	for _, sink := range cfg.Sinks {
		switch sink {
		case "log":
			sinks = append(sinks, notify.NewLogNotifier(slog.Default()))
		case "webhook":
			sinks = append(sinks, notify.NewWebhookNotifier(cfg.WebhookURL, cfg.WebhookTimeout,
				notify.WithRetries(cfg.WebhookMaxRetries, cfg.WebhookBackoff)))
		case "outbox":
			pg, ok := store.(*postgres.Store)
			if !ok {
				return nil, ErrOutboxRequiresPostgres
			}
			sinks = append(sinks, postgres.NewOutbox(pg.Pool()))
		default:
			return nil, fmt.Errorf("unknown notification sink %q", sink)
		}
	}

	switch len(sinks) {
	case 0:
		return nil, nil
	case 1:
		return sinks[0], nil
	default:
		return sinks, nil
	}
}

// ProvideReportArchive opens the archive selected by cfg.StorageType. Both
// return values are nil for "none". The closer, when non-nil, must be closed
// by the caller.
func ProvideReportArchive(ctx context.Context, cfg config.ReportConfig) (batch.ReportArchive, io.Closer, error) {
	switch cfg.StorageType {
	case "", "none":
		return nil, nil, nil
	case "fs":
		store, err := fs.NewStore(cfg.FSDir)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open report directory: %w", err)
		}
		return store, nil, nil
	case "gcs":
		store, err := gcs.NewStore(ctx, cfg.GCSBucket, cfg.GCSPrefix)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open report bucket: %w", err)
		}
		return store, store, nil
	default:
		return nil, nil, fmt.Errorf("unknown report storage %q", cfg.StorageType)
	}
}

// ProvideDriver wires the engine components into a batch driver. archive,
// metrics and now may be nil.
func ProvideDriver(
	repo automation.Repository,
	notifier automation.Notifier,
	archive batch.ReportStore,
	engine config.EngineConfig,
	batchCfg config.BatchConfig,
	metrics *observability.EngineMetrics,
	now func() time.Time,
) *batch.Driver {
	var opts []batch.Option
	var engineOpts []automation.Option
	if archive != nil {
		opts = append(opts, batch.WithReportStore(archive))
	}
	if metrics != nil {
		opts = append(opts, batch.WithMetrics(metrics))
	}
	if now != nil {
		opts = append(opts, batch.WithClock(now))
		engineOpts = append(engineOpts, automation.WithClock(now))
	}

	return batch.NewDriver(
		repo,
		automation.NewGenerator(repo, engine.LookbackDays, engineOpts...),
		automation.NewAllocator(repo, notifier, engineOpts...),
		automation.NewCarryOver(repo, engine.EscalationPolicy(), engineOpts...),
		batch.Config{
			Concurrency:   batchCfg.Concurrency,
			TenantTimeout: batchCfg.TenantTimeout,
		},
		opts...,
	)
}
