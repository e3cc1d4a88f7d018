package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/milesync/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP stdio server over run history and issue mappings",
	Long: `Start an MCP (Model Context Protocol) server on stdio.

This lets an MCP client query past sync runs and resolve issue numbers
between synced repositories. Configure it with:

  {
    "mcpServers": {
      "milesync": { "command": "milesync", "args": ["mcp"] }
    }
  }

Available tools: milesync_list_runs, milesync_run_details,
milesync_lookup_issue`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := getStore()
		if err != nil {
			return err
		}

		defaults := mcp.Defaults{MappingFile: viper.GetString("mapping_file")}
		if r, err := resolveRepo("source", "source_owner", "source_repo"); err == nil && !r.IsZero() {
			defaults.Source = r.String()
		}
		if r, err := resolveRepo("target", "target_owner", "target_repo"); err == nil && !r.IsZero() {
			defaults.Target = r.String()
		}

		return mcp.NewServer(s, defaults, buildVersion).ServeStdio(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
