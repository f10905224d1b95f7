package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rezkam/opsflow/internal/app"
	"github.com/rezkam/opsflow/internal/config"
	"github.com/rezkam/opsflow/internal/domain"
	"github.com/rezkam/opsflow/internal/recurring"
)

// defaultPreviewDays is the window shown when --to is omitted.
const defaultPreviewDays = 30

type previewOptions struct {
	templateID string

	frequency  string
	interval   int
	weekdays   []string
	dayOfMonth int
	start      string
	end        string

	from   string
	to     string
	asJSON bool
}

func newPreviewCmd(c *cli) *cobra.Command {
	var opts previewOptions

	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Print the occurrence dates of a recurrence rule",
		Long: `Print the dates a recurrence rule produces within [--from, --to].

The rule comes either from a stored template (--template) or from the rule
flags. Only --template needs a database.`,
		Example: `  opsctl preview --frequency weekly --weekdays mon,wed --start 2024-01-01 --to 2024-01-10
  opsctl preview --template tmpl-42 --from 2024-03-01`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var rule domain.RecurrenceRule
			if opts.templateID != "" {
				err := c.withEngine(cmd.Context(), func(engine *app.Engine, _ *config.CLIConfig) error {
					tmpl, err := engine.Store.FindTemplateByID(cmd.Context(), opts.templateID)
					if err != nil {
						return err
					}
					rule = tmpl.Rule
					return nil
				})
				if err != nil {
					return err
				}
			} else {
				r, err := opts.rule()
				if err != nil {
					return err
				}
				rule = r
			}

			if err := rule.Validate(); err != nil {
				return err
			}

			from, to, err := opts.window(rule)
			if err != nil {
				return err
			}

			dates := recurring.Collect(rule, domain.AddDays(from, -1), to)

			out := cmd.OutOrStdout()
			if opts.asJSON {
				formatted := make([]string, len(dates))
				for i, d := range dates {
					formatted[i] = domain.FormatDate(d)
				}
				return writeJSON(out, formatted)
			}
			for _, d := range dates {
				fmt.Fprintf(out, "%s %s\n", domain.FormatDate(d), d.Weekday().String()[:3])
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.templateID, "template", "", "Preview the rule of a stored template")
	f.StringVar(&opts.frequency, "frequency", "", "Rule frequency: daily, weekly or monthly")
	f.IntVar(&opts.interval, "interval", 1, "Repeat every N periods")
	f.StringSliceVar(&opts.weekdays, "weekdays", nil, "Weekdays of a weekly rule, e.g. mon,wed")
	f.IntVar(&opts.dayOfMonth, "day-of-month", 0, "Day of a monthly rule (1-31)")
	f.StringVar(&opts.start, "start", "", "Rule start date (YYYY-MM-DD)")
	f.StringVar(&opts.end, "end", "", "Optional rule end date (YYYY-MM-DD)")
	f.StringVar(&opts.from, "from", "", "First day of the window (default: rule start)")
	f.StringVar(&opts.to, "to", "", "Last day of the window (default: 30 days after --from)")
	f.BoolVar(&opts.asJSON, "json", false, "Print dates as a JSON array")
	cmd.MarkFlagsMutuallyExclusive("template", "frequency")
	return cmd
}

func (o *previewOptions) rule() (domain.RecurrenceRule, error) {
	if o.frequency == "" || o.start == "" {
		return domain.RecurrenceRule{}, fmt.Errorf("either --template or both --frequency and --start are required")
	}

	freq, err := domain.NewFrequency(o.frequency)
	if err != nil {
		return domain.RecurrenceRule{}, err
	}
	start, err := domain.ParseDate(o.start)
	if err != nil {
		return domain.RecurrenceRule{}, fmt.Errorf("--start: %w", err)
	}

	rule := domain.RecurrenceRule{
		Frequency:  freq,
		Interval:   o.interval,
		DayOfMonth: o.dayOfMonth,
		StartDate:  start,
	}
	for _, name := range o.weekdays {
		day, err := domain.ParseWeekday(name)
		if err != nil {
			return domain.RecurrenceRule{}, err
		}
		rule.Weekdays = append(rule.Weekdays, day)
	}
	if o.end != "" {
		end, err := domain.ParseDate(o.end)
		if err != nil {
			return domain.RecurrenceRule{}, fmt.Errorf("--end: %w", err)
		}
		rule.EndDate = &end
	}
	return rule, nil
}

func (o *previewOptions) window(rule domain.RecurrenceRule) (time.Time, time.Time, error) {
	from := rule.StartDate
	if o.from != "" {
		d, err := domain.ParseDate(o.from)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("--from: %w", err)
		}
		from = d
	}

	to := domain.AddDays(from, defaultPreviewDays)
	if o.to != "" {
		d, err := domain.ParseDate(o.to)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("--to: %w", err)
		}
		to = d
	}

	if to.Before(from) {
		return time.Time{}, time.Time{}, fmt.Errorf("--to %s is before --from %s", domain.FormatDate(to), domain.FormatDate(from))
	}
	return from, to, nil
}
