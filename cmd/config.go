package cmd

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"text/template"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var configForce bool

// configDirFunc returns the config directory path, replaceable in tests.
var configDirFunc = defaultConfigDir

func defaultConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "milesync"), nil
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or manage configuration",
	Long: `Show or manage milesync configuration.

Running bare 'milesync config' is the same as 'milesync config show'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create config file with commented defaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configInitRun()
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration with sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Open config file in $EDITOR",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configEditRun()
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite existing config file")
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configEditCmd)
	rootCmd.AddCommand(configCmd)
}

// configTemplate is the template for generating config.yaml with comments.
const configTemplate = `# milesync configuration
# See: milesync config show (for effective values and sources)

# State directory for run locks (default: ~/.config/milesync)
# state_dir: {{ .StateDir }}

# SQLite run history database (default: ~/.config/milesync/milesync.db)
# db_path: {{ .DBPath }}

# Record every run in the history database (default: true)
history: {{ .History }}

# GitHub
github:
  # API token; GITHUB_TOKEN is used when unset
  # token: ""

  # API base URL for GitHub Enterprise (default: public GitHub)
  base_url: "{{ .GitHubBaseURL }}"

# Repositories as owner/name. The target defaults to the origin remote of
# the current git repository.
source: "{{ .Source }}"
target: "{{ .Target }}"

# Sync issues as well as milestones (default: true)
sync_issues: {{ .SyncIssues }}

# Keep source issue numbers in the target using placeholder issues (default: false)
preserve_numbers: {{ .PreserveNumbers }}

# On placeholder failure: continue or abort (default: continue)
placeholder_failure: "{{ .PlaceholderFailure }}"

# Also copy target-only milestones and issues back into the source (default: false)
bidirectional: {{ .Bidirectional }}

# Also sync issues without a milestone (default: false)
include_unassigned: {{ .IncludeUnassigned }}

# Issue mapping file, relative to the working directory
mapping_file: "{{ .MappingFile }}"

# HTTP timeout per request
timeout: {{ .Timeout }}
`

type configTemplateData struct {
	StateDir           string
	DBPath             string
	History            bool
	GitHubBaseURL      string
	Source             string
	Target             string
	SyncIssues         bool
	PreserveNumbers    bool
	PlaceholderFailure string
	Bidirectional      bool
	IncludeUnassigned  bool
	MappingFile        string
	Timeout            string
}

func configFilePath() (string, error) {
	dir, err := configDirFunc()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

func configInitRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	// Check if file already exists
	if _, err := os.Stat(cfgPath); err == nil {
		if !configForce {
			return fmt.Errorf("config file already exists: %s (use --force to overwrite)", cfgPath)
		}
		ui.Warning("Overwriting existing config file")
	}

	// Build template data from current viper values
	data := configTemplateData{
		StateDir:           viper.GetString("state_dir"),
		DBPath:             viper.GetString("db_path"),
		History:            viper.GetBool("history"),
		GitHubBaseURL:      viper.GetString("github.base_url"),
		Source:             viper.GetString("source"),
		Target:             viper.GetString("target"),
		SyncIssues:         viper.GetBool("sync_issues"),
		PreserveNumbers:    viper.GetBool("preserve_numbers"),
		PlaceholderFailure: viper.GetString("placeholder_failure"),
		Bidirectional:      viper.GetBool("bidirectional"),
		IncludeUnassigned:  viper.GetBool("include_unassigned"),
		MappingFile:        viper.GetString("mapping_file"),
		Timeout:            viper.GetDuration("timeout").String(),
	}

	tmpl, err := template.New("config").Parse(configTemplate)
	if err != nil {
		return fmt.Errorf("template parse error: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return fmt.Errorf("template execute error: %w", err)
	}

	if dryRun {
		ui.DryRunMsg("Would create config file: %s", cfgPath)
		fmt.Fprintln(ui.Out)
		fmt.Fprint(ui.Out, buf.String())
		return nil
	}

	// Create config directory
	dir := filepath.Dir(cfgPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(cfgPath, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	ui.Success("Config file created: %s", cfgPath)
	fmt.Fprintln(ui.Out)
	fmt.Fprint(ui.Out, buf.String())
	return nil
}

// configKeyInfo describes a config key for display purposes.
type configKeyInfo struct {
	Key    string
	EnvVar string
	Secret bool
}

var configKeys = []configKeyInfo{
	{Key: "state_dir", EnvVar: "MILESYNC_STATE_DIR"},
	{Key: "db_path", EnvVar: "MILESYNC_DB_PATH"},
	{Key: "history", EnvVar: "MILESYNC_HISTORY"},
	{Key: "github.token", EnvVar: "GITHUB_TOKEN", Secret: true},
	{Key: "github.base_url", EnvVar: "MILESYNC_GITHUB_BASE_URL"},
	{Key: "source", EnvVar: "MILESYNC_SOURCE"},
	{Key: "target", EnvVar: "MILESYNC_TARGET"},
	{Key: "sync_issues", EnvVar: "MILESYNC_SYNC_ISSUES"},
	{Key: "preserve_numbers", EnvVar: "MILESYNC_PRESERVE_NUMBERS"},
	{Key: "placeholder_failure", EnvVar: "MILESYNC_PLACEHOLDER_FAILURE"},
	{Key: "bidirectional", EnvVar: "MILESYNC_BIDIRECTIONAL"},
	{Key: "include_unassigned", EnvVar: "MILESYNC_INCLUDE_UNASSIGNED"},
	{Key: "mapping_file", EnvVar: "MILESYNC_MAPPING_FILE"},
	{Key: "timeout", EnvVar: "MILESYNC_TIMEOUT"},
}

func configShowRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	// Check if config file exists
	if _, err := os.Stat(cfgPath); err == nil {
		ui.Info("Config file: %s", cfgPath)
	} else {
		ui.Info("Config file: (none)")
	}
	fmt.Fprintln(ui.Out)

	// Read config file values to determine file source
	fileValues := readConfigFileValues(cfgPath)

	for _, k := range configKeys {
		val := viper.Get(k.Key)
		if k.Secret {
			val = maskSecret(viper.GetString(k.Key))
		}
		source := detectSource(k.Key, k.EnvVar, fileValues)
		fmt.Fprintf(ui.Out, "  %-22s %v  %s\n", k.Key, val, source)
	}

	return nil
}

// maskSecret keeps the last four characters of a secret.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 4 {
		return "****"
	}
	return "****" + s[len(s)-4:]
}

// readConfigFileValues reads the raw YAML file and returns a flat map of keys present in it.
func readConfigFileValues(path string) map[string]bool {
	result := make(map[string]bool)

	data, err := os.ReadFile(path)
	if err != nil {
		return result
	}

	var parsed map[string]any
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return result
	}

	// Flatten nested keys with dot notation
	flattenKeys("", parsed, result)
	return result
}

// flattenKeys recursively flattens a nested map to dot-notation keys.
func flattenKeys(prefix string, m map[string]any, result map[string]bool) {
	for key, val := range m {
		fullKey := key
		if prefix != "" {
			fullKey = prefix + "." + key
		}
		if nested, ok := val.(map[string]any); ok {
			flattenKeys(fullKey, nested, result)
		} else {
			result[fullKey] = true
		}
	}
}

// detectSource determines where a config value is coming from.
func detectSource(key, envVar string, fileValues map[string]bool) string {
	if _, ok := os.LookupEnv(envVar); ok {
		return fmt.Sprintf("(env: %s)", envVar)
	}
	if fileValues[key] {
		return "(file)"
	}
	return "(default)"
}

func configEditRun() error {
	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = os.Getenv("VISUAL")
	}
	if editor == "" {
		return fmt.Errorf("$EDITOR is not set: set it to your preferred editor (e.g. export EDITOR=vim)")
	}

	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s (run 'milesync config init' first)", cfgPath)
	}

	if dryRun {
		ui.DryRunMsg("Would open %s in %s", cfgPath, editor)
		return nil
	}

	editCmd := exec.Command(editor, cfgPath)
	editCmd.Stdin = os.Stdin
	editCmd.Stdout = os.Stdout
	editCmd.Stderr = os.Stderr
	return editCmd.Run()
}
