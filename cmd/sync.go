package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/milesync/internal/git"
	"github.com/joescharf/milesync/internal/github"
	"github.com/joescharf/milesync/internal/lock"
	"github.com/joescharf/milesync/internal/models"
	"github.com/joescharf/milesync/internal/output"
	"github.com/joescharf/milesync/internal/store"
	"github.com/joescharf/milesync/internal/syncer"
)

// newRemote builds the remote used by sync, replaceable in tests.
var newRemote = func(cfg github.Config) (syncer.Remote, error) {
	c, err := github.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// originRepoFunc detects the target from the working directory's origin
// remote, replaceable in tests.
var originRepoFunc = func() (models.Repo, error) {
	wd, err := os.Getwd()
	if err != nil {
		return models.Repo{}, err
	}
	return git.NewClient().OriginRepo(wd)
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Sync milestones and issues from the source into the target",
	Long: `Sync milestones, and optionally their issues, from the source repository
into the target repository.

Milestones are matched by title. Issues are matched through the mapping of an
earlier run, then by title. With --preserve-numbers each issue lands on its
source number; gaps are filled with placeholder issues. Numbering problems are
reported as anomalies and never abort the run.

The target defaults to the origin remote of the current git repository.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return syncRun(cmd.Context())
	},
}

func init() {
	f := syncCmd.Flags()
	f.String("source", "", "Source repository (owner/name)")
	f.String("target", "", "Target repository (owner/name, default: origin remote)")
	f.Bool("issues", true, "Sync issues as well as milestones")
	f.Bool("preserve-numbers", false, "Keep source issue numbers in the target")
	f.Bool("bidirectional", false, "Also copy target-only milestones and issues back into the source")
	f.Bool("include-unassigned", false, "Also sync issues without a milestone")
	f.String("placeholder-failure", "continue", "What to do when a placeholder fails: continue or abort")
	f.String("mapping-file", "", "Issue mapping file (default .github/issue-mappings.json)")
	f.Duration("timeout", 0, "HTTP timeout per request (default 30s)")
	f.Bool("history", true, "Record the run in the history database")

	_ = viper.BindPFlag("source", f.Lookup("source"))
	_ = viper.BindPFlag("target", f.Lookup("target"))
	_ = viper.BindPFlag("sync_issues", f.Lookup("issues"))
	_ = viper.BindPFlag("preserve_numbers", f.Lookup("preserve-numbers"))
	_ = viper.BindPFlag("bidirectional", f.Lookup("bidirectional"))
	_ = viper.BindPFlag("include_unassigned", f.Lookup("include-unassigned"))
	_ = viper.BindPFlag("placeholder_failure", f.Lookup("placeholder-failure"))
	_ = viper.BindPFlag("mapping_file", f.Lookup("mapping-file"))
	_ = viper.BindPFlag("timeout", f.Lookup("timeout"))
	_ = viper.BindPFlag("history", f.Lookup("history"))

	rootCmd.AddCommand(syncCmd)
}

// resolveRepo reads a repository from key, or from the owner and repo keys.
// It returns the zero Repo when neither is set.
func resolveRepo(key, ownerKey, repoKey string) (models.Repo, error) {
	if v := viper.GetString(key); v != "" {
		r, err := models.ParseRepo(v)
		if err != nil {
			return models.Repo{}, fmt.Errorf("%s: %w", key, err)
		}
		return r, nil
	}
	owner, name := viper.GetString(ownerKey), viper.GetString(repoKey)
	if owner != "" && name != "" {
		return models.Repo{Owner: owner, Name: name}, nil
	}
	return models.Repo{}, nil
}

// loadSyncConfig resolves the GitHub client config and sync options. Missing
// required values are errors.
func loadSyncConfig() (github.Config, syncer.Options, error) {
	var opts syncer.Options

	cfg := github.Config{
		Token:   viper.GetString("github.token"),
		BaseURL: viper.GetString("github.base_url"),
		Timeout: viper.GetDuration("timeout"),
	}
	if cfg.Token == "" {
		return cfg, opts, errors.New("missing GitHub token: set GITHUB_TOKEN or github.token")
	}

	source, err := resolveRepo("source", "source_owner", "source_repo")
	if err != nil {
		return cfg, opts, err
	}
	if source.IsZero() {
		return cfg, opts, errors.New("missing source repository: set --source, SOURCE_OWNER/SOURCE_REPO or source")
	}

	target, err := resolveRepo("target", "target_owner", "target_repo")
	if err != nil {
		return cfg, opts, err
	}
	if target.IsZero() {
		target, err = originRepoFunc()
		if err != nil {
			return cfg, opts, fmt.Errorf("missing target repository and no usable origin remote: %w", err)
		}
	}
	if source == target {
		return cfg, opts, fmt.Errorf("source and target are the same repository: %s", source)
	}

	policy, err := syncer.ParsePlaceholderPolicy(viper.GetString("placeholder_failure"))
	if err != nil {
		return cfg, opts, err
	}

	mappingFile := viper.GetString("mapping_file")
	opts = syncer.Options{
		Source:            source,
		Target:            target,
		SyncIssues:        viper.GetBool("sync_issues"),
		PreserveNumbers:   viper.GetBool("preserve_numbers"),
		Bidirectional:     viper.GetBool("bidirectional"),
		IncludeUnassigned: viper.GetBool("include_unassigned"),
		PlaceholderPolicy: policy,
		MappingFile:       mappingFile,
		DryRun:            dryRun,
	}
	return cfg, opts, nil
}

func syncRun(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, opts, err := loadSyncConfig()
	if err != nil {
		return err
	}

	if !dryRun {
		l := lock.ForRepo(viper.GetString("state_dir"), opts.Target)
		if err := l.Acquire(); err != nil {
			return fmt.Errorf("lock %s: %w", opts.Target, err)
		}
		defer func() {
			if err := l.Release(); err != nil {
				ui.Warning("Failed to release lock: %v", err)
			}
		}()
	}

	var s store.Store
	if viper.GetBool("history") {
		s, err = getStore()
		if err != nil {
			ui.Warning("Run history disabled: %v", err)
			s = nil
		}
	}
	if s != nil {
		prior, err := s.LatestIssueMapping(ctx, opts.Source.String(), opts.Target.String())
		if err != nil {
			ui.Warning("Could not load previous mapping from history: %v", err)
		} else {
			opts.Prior = prior
		}
	}

	remote, err := newRemote(cfg)
	if err != nil {
		return err
	}

	ui.Info("Syncing %s -> %s (%s)", opts.Source, opts.Target, opts.Mode())
	run, err := syncer.New(remote, ui, opts).Run(ctx)
	if err != nil {
		return err
	}

	printRunSummary(run)

	if s != nil && !run.DryRun {
		if err := s.SaveRun(ctx, run); err != nil {
			ui.Warning("Failed to record run: %v", err)
		} else {
			ui.VerboseLog("Run recorded as %s", run.ID)
		}
	}
	return nil
}

func printRunSummary(run *models.Run) {
	fmt.Fprintln(ui.Out)
	table := ui.Table([]string{"Synced", "Count"})
	table.Append([]string{"Milestones", output.RatioColor(run.MilestonesSynced, run.MilestonesTotal)})
	if run.Mode != models.SyncModeMilestones {
		table.Append([]string{"Issues", output.RatioColor(run.IssuesSynced, run.IssuesTotal)})
	}
	if run.Mode == models.SyncModePreserve {
		table.Append([]string{"Placeholders", strconv.Itoa(run.PlaceholdersCreated)})
	}
	if run.Bidirectional {
		table.Append([]string{"Milestones (reverse)", strconv.Itoa(run.ReverseMilestones)})
		table.Append([]string{"Issues (reverse)", strconv.Itoa(run.ReverseIssues)})
	}
	table.Append([]string{"Anomalies", output.CountColor(len(run.Anomalies))})
	_ = table.Render()

	if len(run.Anomalies) > 0 {
		fmt.Fprintln(ui.Out)
		printAnomalies(run.Anomalies)
	}
	fmt.Fprintln(ui.Out)

	if run.MappingFile != "" {
		ui.Success("Issue mappings saved to %s", run.MappingFile)
	}
	if len(run.Anomalies) > 0 {
		ui.Warning("Sync completed with %d anomaly(ies)", len(run.Anomalies))
		return
	}
	ui.Success("Sync completed")
}

func printAnomalies(anomalies []models.Anomaly) {
	table := ui.Table([]string{"Kind", "Issue", "Intended", "Actual", "Message"})
	for _, a := range anomalies {
		table.Append([]string{
			output.Yellow(string(a.Kind)),
			"#" + strconv.Itoa(a.SourceNumber),
			numberOrDash(a.Intended),
			numberOrDash(a.Actual),
			a.Message,
		})
	}
	_ = table.Render()
}

func numberOrDash(n int) string {
	if n == 0 {
		return "-"
	}
	return "#" + strconv.Itoa(n)
}
