// Command opsctl runs the automation engine on demand and inspects its output.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rezkam/opsflow/internal/app"
	"github.com/rezkam/opsflow/internal/config"
	"github.com/rezkam/opsflow/internal/infrastructure/observability"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd(newCLI()).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// cli carries what the commands share. Tests replace the loaders.
type cli struct {
	loadConfig func() (*config.CLIConfig, error)
	openEngine func(ctx context.Context, cfg *config.CLIConfig) (*app.Engine, error)
	now        func() time.Time
}

func newCLI() *cli {
	return &cli{
		loadConfig: config.LoadCLIConfig,
		openEngine: func(ctx context.Context, cfg *config.CLIConfig) (*app.Engine, error) {
			return app.NewEngine(ctx, app.Options{
				Database: cfg.Database,
				Engine:   cfg.Engine,
				Batch:    cfg.Batch,
				Notify:   cfg.Notify,
				Report:   cfg.Report,
			})
		},
		now: func() time.Time { return time.Now().UTC() },
	}
}

// withEngine loads the configuration, opens the engine, runs fn and closes
// the engine again.
func (c *cli) withEngine(ctx context.Context, fn func(engine *app.Engine, cfg *config.CLIConfig) error) error {
	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}

	engine, err := c.openEngine(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := engine.Close(); err != nil {
			slog.ErrorContext(ctx, "failed to close engine", "error", err)
		}
	}()

	return fn(engine, cfg)
}

func newRootCmd(c *cli) *cobra.Command {
	var logLevel string

	root := &cobra.Command{
		Use:   "opsctl",
		Short: "Operate the opsflow task automation engine",
		Long: `opsctl runs the task automation engine on demand and inspects its state.

The database, engine and report settings are read from OPSFLOW_* environment
variables, the same ones the worker uses.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			// Logs go to stderr so command output stays machine readable.
			handler := slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: observability.ParseLevel(logLevel)})
			slog.SetDefault(slog.New(handler))
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level: debug, info, warn, error")

	root.AddCommand(
		newRunCmd(c),
		newPreviewCmd(c),
		newRemindersCmd(c),
		newMigrateCmd(c),
		newReportsCmd(c),
	)
	return root
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return nil
}
