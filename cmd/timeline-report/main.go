// Command timeline-report prints the timeline health of active deals.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/buymart/dealflow-api/internal/config"
	"github.com/buymart/dealflow-api/internal/database"
	"github.com/buymart/dealflow-api/internal/repository"
	"github.com/buymart/dealflow-api/internal/service"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	lookahead := pflag.IntP("lookahead", "l", 0, "upcoming deadline window in days (defaults to timeline.lookaheadDays)")
	onlyAtRisk := pflag.BoolP("at-risk", "r", false, "list only deals that are not on track")
	format := pflag.StringP("format", "f", "table", "output format: table, markdown or csv")
	pflag.Parse()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if *lookahead <= 0 {
		*lookahead = cfg.Timeline.LookaheadDays
	}

	db, err := database.NewDatabase(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	dealRepo := repository.NewDealRepository(db)
	timelines := service.NewTimelineService(dealRepo, repository.NewMilestoneRepository(db), *lookahead, zap.NewNop())

	deals, err := dealRepo.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("failed to list active deals: %w", err)
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle("Active deal timelines")
	t.AppendHeader(table.Row{"Deal", "Status", "Milestones", "Overdue", "Progress", "Time", "Days Left", "Health", "Next Deadline"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 3, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
		{Number: 6, Align: text.AlignRight},
		{Number: 7, Align: text.AlignRight},
	})

	for i := range deals {
		tl, err := timelines.GetDealTimeline(ctx, deals[i].ID)
		if err != nil {
			return fmt.Errorf("failed to compute timeline for %s: %w", deals[i].DealNumber, err)
		}
		if *onlyAtRisk && tl.Metrics.OnTrack {
			continue
		}

		next := "-"
		if len(tl.Upcoming) > 0 {
			next = fmt.Sprintf("%s (%s)", tl.Upcoming[0].Name, tl.Upcoming[0].DueDate.Format("2006-01-02"))
		}
		t.AppendRow(table.Row{
			tl.Deal.DealNumber,
			tl.Deal.Status,
			fmt.Sprintf("%d/%d", tl.Metrics.Completed, tl.Metrics.Total),
			tl.Metrics.Overdue,
			fmt.Sprintf("%d%%", tl.Metrics.ProgressPct),
			fmt.Sprintf("%d%%", tl.Metrics.TimeProgressPct),
			tl.Metrics.RemainingDays,
			tl.Status,
			next,
		})
	}

	summary, err := timelines.Summary(ctx)
	if err != nil {
		return fmt.Errorf("failed to build summary: %w", err)
	}
	t.AppendFooter(table.Row{
		fmt.Sprintf("%d active", summary.TotalActiveDeals),
		"",
		"",
		summary.TotalOverdueMilestones,
		"",
		"",
		"",
		summary.Health,
		fmt.Sprintf("%d upcoming, %d at risk", summary.TotalUpcomingDeadlines, summary.DealsAtRisk),
	})

	switch *format {
	case "markdown":
		t.RenderMarkdown()
	case "csv":
		t.RenderCSV()
	default:
		t.SetStyle(table.StyleLight)
		t.Render()
	}
	return nil
}
