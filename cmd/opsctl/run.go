package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/rezkam/opsflow/internal/app"
	"github.com/rezkam/opsflow/internal/application/batch"
	"github.com/rezkam/opsflow/internal/config"
	"github.com/rezkam/opsflow/internal/domain"
)

type runOptions struct {
	tenantID string
	date     string
	asJSON   bool
}

func newRunCmd(c *cli) *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one engine tick now",
		Long: `Run carry-over, generation and allocation once.

Without --date every tenant is processed on its own local day. With --date
the given day is used for every tenant regardless of timezone, which is how a
missed day is caught up.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var day time.Time
			if opts.date != "" {
				d, err := domain.ParseDate(opts.date)
				if err != nil {
					return err
				}
				day = d
			}

			return c.withEngine(cmd.Context(), func(engine *app.Engine, _ *config.CLIConfig) error {
				if opts.tenantID != "" {
					return c.runTenant(cmd.Context(), cmd.OutOrStdout(), engine, opts, day)
				}
				return c.runAll(cmd.Context(), cmd.OutOrStdout(), engine, opts, day)
			})
		},
	}

	cmd.Flags().StringVar(&opts.tenantID, "tenant", "", "Process only this tenant, active or not")
	cmd.Flags().StringVar(&opts.date, "date", "", "Local day to process (YYYY-MM-DD), overriding each tenant's clock")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "Print the result as JSON")
	return cmd
}

func (c *cli) runTenant(ctx context.Context, out io.Writer, engine *app.Engine, opts runOptions, day time.Time) error {
	var res *batch.TenantResult
	var err error
	if day.IsZero() {
		res, err = engine.Driver.RunTenant(ctx, opts.tenantID, c.now())
	} else {
		res, err = engine.Driver.RunTenantOn(ctx, opts.tenantID, day)
	}
	if err != nil {
		return err
	}

	if opts.asJSON {
		err = writeJSON(out, res)
	} else {
		err = printResults(out, res)
	}
	if err != nil {
		return err
	}

	if res.Err != nil {
		return fmt.Errorf("tenant %s failed: %w", opts.tenantID, res.Err)
	}
	return nil
}

func (c *cli) runAll(ctx context.Context, out io.Writer, engine *app.Engine, opts runOptions, day time.Time) error {
	var report *batch.Report
	var err error
	if day.IsZero() {
		report, err = engine.Driver.Run(ctx, c.now())
	} else {
		report, err = engine.Driver.RunOn(ctx, day)
	}
	if err != nil {
		return err
	}

	if engine.Reports != nil {
		if err := engine.Reports.Save(ctx, report); err != nil {
			slog.WarnContext(ctx, "failed to archive batch report", "run_id", report.RunID, "error", err)
		}
	}

	if opts.asJSON {
		err = writeJSON(out, report)
	} else {
		err = printReport(out, report)
	}
	if err != nil {
		return err
	}

	if failed := report.Failed(); len(failed) > 0 {
		return fmt.Errorf("%d of %d tenants failed: %v", len(failed), len(report.Results), failed)
	}
	return nil
}

func printReport(w io.Writer, report *batch.Report) error {
	ids := slices.Sorted(maps.Keys(report.Results))
	results := make([]*batch.TenantResult, 0, len(ids))
	for _, id := range ids {
		results = append(results, report.Results[id])
	}
	return printResults(w, results...)
}

func printResults(w io.Writer, results ...*batch.TenantResult) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TENANT\tTODAY\tCARRIED\tESCALATED\tGENERATED\tASSIGNED\tUNASSIGNED\tERROR")

	for _, res := range results {
		carried, escalated := "-", "-"
		if res.CarryOver != nil {
			carried = strconv.Itoa(res.CarryOver.CarriedOver)
			escalated = strconv.Itoa(res.CarryOver.Escalated)
		}
		generated := "-"
		if res.Generate != nil {
			generated = strconv.Itoa(res.Generate.Created)
		}
		assigned, unassigned := "-", "-"
		if res.Allocate != nil {
			assigned = strconv.Itoa(res.Allocate.Assigned)
			unassigned = strconv.Itoa(len(res.Allocate.Unassigned))
		}
		errText := ""
		if res.Err != nil {
			errText = res.Err.Error()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			res.TenantID, res.Today, carried, escalated, generated, assigned, unassigned, errText)
	}

	return tw.Flush()
}
