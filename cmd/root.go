package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/milesync/internal/mapping"
	"github.com/joescharf/milesync/internal/output"
	"github.com/joescharf/milesync/internal/store"
)

// Package-level shared dependencies, initialized in cobra.OnInitialize.
var (
	ui        *output.UI
	dataStore store.Store

	verbose bool
	dryRun  bool
)

var rootCmd = &cobra.Command{
	Use:   "milesync",
	Short: "Sync GitHub milestones and issues between repositories",
	Long: `milesync copies milestones and their issues from a source repository
into a target repository. It can keep issue numbers identical by filling
gaps with placeholder issues, records a source-to-target issue mapping,
and keeps a history of every run.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	DisableAutoGenTag: true,
}

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	buildVersion = version
	buildCommit = commit
	buildDate = date

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if dataStore != nil {
		_ = dataStore.Close()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig, initDeps)

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVarP(&dryRun, "dry-run", "n", false, "Show what would happen without making changes")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.config/milesync/config.yaml)")
}

func initConfig() {
	// If --config is explicitly set, use that file
	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: cannot find home directory: %v\n", err)
			os.Exit(1)
		}

		configDir := filepath.Join(home, ".config", "milesync")
		viper.AddConfigPath(configDir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("MILESYNC")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	bindEnv()

	home, _ := os.UserHomeDir()
	setDefaults(filepath.Join(home, ".config", "milesync"))

	// Read config file if it exists (optional)
	_ = viper.ReadInConfig()
}

// bindEnv binds the unprefixed variables the sync workflow conventionally
// provides.
func bindEnv() {
	_ = viper.BindEnv("github.token", "MILESYNC_GITHUB_TOKEN", "GITHUB_TOKEN")
	_ = viper.BindEnv("source_owner", "SOURCE_OWNER")
	_ = viper.BindEnv("source_repo", "SOURCE_REPO")
	_ = viper.BindEnv("target_owner", "TARGET_OWNER")
	_ = viper.BindEnv("target_repo", "TARGET_REPO")
}

func setDefaults(stateDir string) {
	viper.SetDefault("state_dir", stateDir)
	viper.SetDefault("db_path", filepath.Join(stateDir, "milesync.db"))
	viper.SetDefault("history", true)
	viper.SetDefault("github.base_url", "")
	viper.SetDefault("source", "")
	viper.SetDefault("target", "")
	viper.SetDefault("sync_issues", true)
	viper.SetDefault("preserve_numbers", false)
	viper.SetDefault("bidirectional", false)
	viper.SetDefault("include_unassigned", false)
	viper.SetDefault("placeholder_failure", "continue")
	viper.SetDefault("mapping_file", mapping.DefaultPath)
	viper.SetDefault("timeout", 30*time.Second)
}

func initDeps() {
	ui = output.New()
	ui.Verbose = verbose
	ui.DryRun = dryRun

	// The store is opened lazily so config and version run without a db.
}

// getStore returns the shared store, initializing it on first call.
func getStore() (store.Store, error) {
	if dataStore != nil {
		return dataStore, nil
	}

	dbPath := viper.GetString("db_path")
	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	ctx := rootCmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	dataStore = s
	return dataStore, nil
}
