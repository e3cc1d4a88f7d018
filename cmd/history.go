package cmd

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/joescharf/milesync/internal/models"
	"github.com/joescharf/milesync/internal/output"
	"github.com/joescharf/milesync/internal/store"
)

var (
	historyLimit  int
	historySource string
	historyTarget string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List past sync runs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return historyListRun(cmd)
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show a run with its mappings and anomalies",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return historyShowRun(cmd, args[0])
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "l", 20, "Maximum number of runs to list (0 for all)")
	historyCmd.Flags().StringVar(&historySource, "source", "", "Only runs from this source (owner/name)")
	historyCmd.Flags().StringVar(&historyTarget, "target", "", "Only runs into this target (owner/name)")
	historyCmd.AddCommand(historyShowCmd)
	rootCmd.AddCommand(historyCmd)
}

func historyListRun(cmd *cobra.Command) error {
	s, err := getStore()
	if err != nil {
		return err
	}

	runs, err := s.ListRuns(cmd.Context(), store.RunListFilter{
		Source: historySource,
		Target: historyTarget,
		Limit:  historyLimit,
	})
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		ui.Info("No runs recorded yet.")
		return nil
	}

	table := ui.Table([]string{"ID", "Started", "Source", "Target", "Mode", "Milestones", "Issues", "Placeholders"})
	for _, r := range runs {
		issues := "-"
		if r.IssuesTotal > 0 || r.Mode != models.SyncModeMilestones {
			issues = output.RatioColor(r.IssuesSynced, r.IssuesTotal)
		}
		table.Append([]string{
			output.Cyan(shortID(r.ID)),
			r.StartedAt.Local().Format("2006-01-02 15:04"),
			r.Source,
			r.Target,
			string(r.Mode),
			output.RatioColor(r.MilestonesSynced, r.MilestonesTotal),
			issues,
			strconv.Itoa(r.PlaceholdersCreated),
		})
	}
	_ = table.Render()
	return nil
}

func historyShowRun(cmd *cobra.Command, id string) error {
	s, err := getStore()
	if err != nil {
		return err
	}

	run, err := s.GetRun(cmd.Context(), id)
	if err != nil {
		return err
	}

	fmt.Fprintf(ui.Out, "%s  %s\n", output.Cyan(run.ID), run.StartedAt.Local().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(ui.Out, "  %s -> %s (%s)\n", run.Source, run.Target, run.Mode)
	fmt.Fprintf(ui.Out, "  Duration: %s\n", run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond))
	if run.MappingFile != "" {
		fmt.Fprintf(ui.Out, "  Mapping file: %s\n", run.MappingFile)
	}
	fmt.Fprintf(ui.Out, "  Result: %s\n", runResult(run))
	printRunSummary(run)

	if len(run.Issues) > 0 && verbose {
		table := ui.Table([]string{"Source", "Target"})
		for _, src := range run.Issues.SortedKeys() {
			table.Append([]string{"#" + strconv.Itoa(src), "#" + strconv.Itoa(run.Issues[src])})
		}
		_ = table.Render()
	}
	return nil
}

// runResult is "clean", or the anomaly count in red.
func runResult(run *models.Run) string {
	if n := len(run.Anomalies); n > 0 {
		return output.Red(fmt.Sprintf("%d anomaly(ies)", n))
	}
	return output.Green("clean")
}

// shortID returns the first 10 characters of a run id; GetRun accepts the
// prefix.
func shortID(id string) string {
	if len(id) > 10 {
		return id[:10]
	}
	return id
}
