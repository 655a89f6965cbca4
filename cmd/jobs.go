package cmd

import (
	"fmt"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/epam/syndicate-rule-engine-sub000/internal/container"
	"github.com/epam/syndicate-rule-engine-sub000/internal/model"
	"github.com/epam/syndicate-rule-engine-sub000/internal/statistics"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect job records and their results",
}

var jobsGetCmd = &cobra.Command{
	Use:   "get <job-id>",
	Short: "Show one job's record and terminal status",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := container.New(cmd.Context(), containerOptions())
		if err != nil {
			return err
		}
		defer c.Close()

		job, err := c.Jobs.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		fmt.Printf("Job:       %s (%s)\n", job.ID, job.Kind)
		fmt.Printf("Tenant:    %s\n", job.TenantName)
		fmt.Printf("Status:    %s\n", job.Status)
		if job.Reason != model.ReasonNone {
			fmt.Printf("Reason:    %s\n", job.Reason)
		}
		if !job.SubmittedAt.IsZero() {
			fmt.Printf("Submitted: %s\n", humanize.Time(job.SubmittedAt))
		}
		if job.StartedAt != nil && job.StoppedAt != nil {
			fmt.Printf("Duration:  %s\n", job.StoppedAt.Sub(*job.StartedAt).Round(time.Millisecond))
		}
		for _, w := range job.Warnings {
			fmt.Printf("Warning:   %s\n", w)
		}
		return nil
	},
}

var jobsStatsCmd = &cobra.Command{
	Use:   "stats <job-id>",
	Short: "Summarize a finished job's statistics artifact",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := container.New(cmd.Context(), containerOptions())
		if err != nil {
			return err
		}
		defer c.Close()

		items, err := statistics.NewStore(c.Objects).Read(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		printStatsSummary(items)
		return nil
	},
}

// printStatsSummary aggregates a statistics artifact into per-outcome rule
// counts and a scanned-resources total.
func printStatsSummary(items []model.StatisticsItem) {
	p := message.NewPrinter(language.English)

	byOutcome := map[string]int{}
	scanned := 0
	for _, item := range items {
		outcome := "OK"
		if item.ErrorType != model.ErrorNone {
			outcome = string(item.ErrorType)
		} else if item.ScannedResources != nil {
			scanned += *item.ScannedResources
		}
		byOutcome[outcome]++
	}

	outcomes := make([]string, 0, len(byOutcome))
	for outcome := range byOutcome {
		outcomes = append(outcomes, outcome)
	}
	sort.Strings(outcomes)

	p.Printf("Rules attempted:   %d\n", len(items))
	p.Printf("Resources scanned: %d\n", scanned)
	for _, outcome := range outcomes {
		p.Printf("  %-12s %d\n", outcome, byOutcome[outcome])
	}
}

func init() {
	jobsCmd.AddCommand(jobsGetCmd)
	jobsCmd.AddCommand(jobsStatsCmd)
	rootCmd.AddCommand(jobsCmd)
}
