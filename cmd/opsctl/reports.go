package main

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/rezkam/opsflow/internal/app"
	"github.com/rezkam/opsflow/internal/config"
)

var errArchiveDisabled = errors.New("report archiving is disabled, set OPSFLOW_REPORT_STORAGE")

func newReportsCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reports",
		Short: "Inspect archived batch reports",
	}
	cmd.AddCommand(newReportsListCmd(c), newReportsShowCmd(c))
	return cmd
}

func newReportsListCmd(c *cli) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List archived reports, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withEngine(cmd.Context(), func(engine *app.Engine, _ *config.CLIConfig) error {
				if engine.Reports == nil {
					return errArchiveDisabled
				}

				names, err := engine.Reports.List(cmd.Context())
				if err != nil {
					return err
				}
				if limit > 0 && len(names) > limit {
					names = names[:limit]
				}

				out := cmd.OutOrStdout()
				for _, name := range names {
					fmt.Fprintln(out, name)
				}
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of reports to list, 0 for all")
	return cmd
}

func newReportsShowCmd(c *cli) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show NAME",
		Short: "Print one archived report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withEngine(cmd.Context(), func(engine *app.Engine, _ *config.CLIConfig) error {
				if engine.Reports == nil {
					return errArchiveDisabled
				}

				report, err := engine.Reports.Load(cmd.Context(), args[0])
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				if asJSON {
					return writeJSON(out, report)
				}

				totals := report.Totals()
				tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				fmt.Fprintf(tw, "run\t%s\n", report.RunID)
				fmt.Fprintf(tw, "started\t%s\n", report.StartedAt.Format("2006-01-02 15:04:05Z07:00"))
				fmt.Fprintf(tw, "duration\t%s\n", report.FinishedAt.Sub(report.StartedAt))
				fmt.Fprintf(tw, "tenants\t%d (%d failed)\n", totals.Tenants, totals.Failed)
				fmt.Fprintf(tw, "generated\t%d\n", totals.Generated)
				fmt.Fprintf(tw, "assigned\t%d (%d unassigned)\n", totals.Assigned, totals.Unassigned)
				fmt.Fprintf(tw, "carried over\t%d (%d escalated)\n", totals.CarriedOver, totals.Escalated)
				if err := tw.Flush(); err != nil {
					return err
				}

				fmt.Fprintln(out)
				return printReport(out, report)
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the raw report JSON")
	return cmd
}
