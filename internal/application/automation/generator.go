package automation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/rezkam/opsflow/internal/domain"
	"github.com/rezkam/opsflow/internal/recurring"
)

// Generator materializes tasks from recurring templates. Re-running it for
// the same date is a no-op: inserts are keyed on (template, due date) and the
// template watermark only moves forward.
type Generator struct {
	repo         Repository
	lookbackDays int
	opts         options
}

// NewGenerator creates a generator. lookbackDays bounds how far back a stale
// template is backfilled; zero means unbounded.
func NewGenerator(repo Repository, lookbackDays int, opts ...Option) *Generator {
	return &Generator{
		repo:         repo,
		lookbackDays: lookbackDays,
		opts:         applyOptions(opts),
	}
}

// Generate creates the missing tasks of every active template of the tenant
// for occurrences up to and including asOf.
//
// Templates with an invalid rule are skipped and reported; a storage error
// aborts the pass and is returned together with the partial result.
func (g *Generator) Generate(ctx context.Context, tenantID string, asOf time.Time) (*domain.GenerateResult, error) {
	asOf = domain.AsDate(asOf)
	result := &domain.GenerateResult{}

	templates, err := g.repo.FindActiveTemplates(ctx, tenantID, asOf)
	if err != nil {
		return result, fmt.Errorf("failed to find active templates: %w", err)
	}

	for _, tmpl := range templates {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		if err := tmpl.Validate(); err != nil {
			slog.WarnContext(ctx, "skipping invalid template",
				"tenant_id", tenantID,
				"template_id", tmpl.ID,
				"error", err)
			result.Skipped = append(result.Skipped, domain.TemplateFailure{TemplateID: tmpl.ID, Reason: err.Error()})
			continue
		}

		if err := g.generateTemplate(ctx, tmpl, asOf, result); err != nil {
			return result, err
		}
	}

	return result, nil
}

func (g *Generator) generateTemplate(ctx context.Context, tmpl *domain.RecurringTemplate, asOf time.Time, result *domain.GenerateResult) error {
	from := tmpl.GenerateFrom()
	if !from.Before(asOf) {
		return nil
	}

	if g.lookbackDays > 0 {
		floor := domain.AddDays(asOf, -g.lookbackDays)
		if from.Before(floor) {
			if dropped := recurring.Count(tmpl.Rule, from, floor); dropped > 0 {
				slog.WarnContext(ctx, "dropping occurrences outside lookback window",
					"tenant_id", tmpl.TenantID,
					"template_id", tmpl.ID,
					"from", domain.FormatDate(from),
					"floor", domain.FormatDate(floor),
					"dropped_count", dropped)
				result.Dropped += dropped
			}
			from = floor
		}
	}

	created, duplicates := 0, 0
	for due := range recurring.Occurrences(tmpl.Rule, from, asOf) {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate task ID: %w", err)
		}

		inserted, err := g.repo.InsertRecurringTask(ctx, tmpl.NewTaskFor(id.String(), due, g.opts.now()))
		if err != nil {
			return fmt.Errorf("failed to insert task for template %s on %s: %w", tmpl.ID, domain.FormatDate(due), err)
		}
		if inserted {
			created++
		} else {
			duplicates++
		}
	}

	if err := g.repo.SetLastGeneratedDate(ctx, tmpl.ID, asOf); err != nil {
		return fmt.Errorf("failed to advance watermark of template %s: %w", tmpl.ID, err)
	}

	if created > 0 || duplicates > 0 {
		slog.InfoContext(ctx, "template generated",
			"tenant_id", tmpl.TenantID,
			"template_id", tmpl.ID,
			"through", domain.FormatDate(asOf),
			"created_count", created,
			"duplicate_count", duplicates)
	}

	result.Created += created
	result.Duplicates += duplicates
	return nil
}
