package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/rezkam/opsflow/internal/app"
	"github.com/rezkam/opsflow/internal/config"
	"github.com/rezkam/opsflow/internal/domain"
	"github.com/rezkam/opsflow/internal/ptr"
)

// reminder is the JSON shape of one upcoming task.
type reminder struct {
	TaskID   string `json:"task_id"`
	Title    string `json:"title"`
	DueDate  string `json:"due_date"`
	Priority string `json:"priority"`
	Status   string `json:"status"`
	StaffID  string `json:"staff_id"`
}

func newReminder(t *domain.Task) reminder {
	return reminder{
		TaskID:   t.ID,
		Title:    t.Title,
		DueDate:  domain.FormatDate(t.DueDate),
		Priority: string(t.Priority),
		Status:   string(t.Status),
		StaffID:  ptr.Deref(t.AssignedStaffID, ""),
	}
}

func newRemindersCmd(c *cli) *cobra.Command {
	var (
		tenantID string
		horizon  int
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "reminders",
		Short: "List assigned tasks that are due soon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withEngine(cmd.Context(), func(engine *app.Engine, cfg *config.CLIConfig) error {
				if !cmd.Flags().Changed("horizon") {
					horizon = cfg.Engine.ReminderHorizonDays
				}

				tasks, err := engine.Reminders.Upcoming(cmd.Context(), tenantID, horizon)
				if err != nil {
					return err
				}

				reminders := make([]reminder, len(tasks))
				for i, t := range tasks {
					reminders[i] = newReminder(t)
				}

				out := cmd.OutOrStdout()
				if asJSON {
					return writeJSON(out, reminders)
				}

				tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "DUE\tPRIORITY\tSTAFF\tTASK\tTITLE")
				for _, r := range reminders {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.DueDate, r.Priority, r.StaffID, r.TaskID, r.Title)
				}
				return tw.Flush()
			})
		},
	}

	cmd.Flags().StringVar(&tenantID, "tenant", "", "Tenant to list reminders for")
	cmd.Flags().IntVar(&horizon, "horizon", 1, "Days ahead of the tenant's today to include (default from OPSFLOW_ENGINE_REMINDER_HORIZON_DAYS)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print reminders as JSON")
	_ = cmd.MarkFlagRequired("tenant")
	return cmd
}
