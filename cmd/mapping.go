package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/milesync/internal/mapping"
	"github.com/joescharf/milesync/internal/models"
)

var (
	mappingFileFlag string
	mappingReverse  bool
)

var mappingCmd = &cobra.Command{
	Use:   "mapping",
	Short: "Inspect the issue mapping file",
}

var mappingShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the issue mapping as a table",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return mappingShowRun()
	},
}

var mappingLookupCmd = &cobra.Command{
	Use:   "lookup <number>",
	Short: "Resolve a source issue number to its target number",
	Long: `Resolve a source issue number to its target number.

With --reverse the number is a target issue and the source number is printed.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return mappingLookupRun(args[0])
	},
}

func init() {
	mappingCmd.PersistentFlags().StringVarP(&mappingFileFlag, "file", "f", "", "Mapping file (default: mapping_file config)")
	mappingLookupCmd.Flags().BoolVarP(&mappingReverse, "reverse", "r", false, "Resolve a target number back to the source")
	mappingCmd.AddCommand(mappingShowCmd)
	mappingCmd.AddCommand(mappingLookupCmd)
	rootCmd.AddCommand(mappingCmd)
}

func loadMappingFile() (*models.IssueMapping, string, error) {
	path := mappingFileFlag
	if path == "" {
		path = viper.GetString("mapping_file")
	}
	if path == "" {
		path = mapping.DefaultPath
	}
	doc, err := mapping.Load(path)
	if err != nil {
		return nil, path, err
	}
	return doc, path, nil
}

func mappingShowRun() error {
	doc, path, err := loadMappingFile()
	if err != nil {
		return err
	}
	m, err := mapping.Numbers(doc)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	ui.Info("%s -> %s (written %s)", doc.Source, doc.Target, doc.Timestamp.Local().Format("2006-01-02 15:04"))
	if len(m) == 0 {
		ui.Info("No issue mappings in %s", path)
		return nil
	}
	fmt.Fprintln(ui.Out)

	table := ui.Table([]string{"Source", "Target", ""})
	for _, src := range m.SortedKeys() {
		dst := m[src]
		note := ""
		if src != dst {
			note = "renumbered"
		}
		table.Append([]string{"#" + strconv.Itoa(src), "#" + strconv.Itoa(dst), note})
	}
	_ = table.Render()
	return nil
}

func mappingLookupRun(arg string) error {
	n, err := strconv.Atoi(arg)
	if err != nil || n <= 0 {
		return fmt.Errorf("invalid issue number: %s", arg)
	}

	doc, path, err := loadMappingFile()
	if err != nil {
		return err
	}
	m, err := mapping.Numbers(doc)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	from, to := doc.Source, doc.Target
	if mappingReverse {
		m = m.Inverse()
		from, to = to, from
	}
	got, ok := m[n]
	if !ok {
		return fmt.Errorf("%s#%d has no mapping in %s", from, n, path)
	}
	fmt.Fprintf(ui.Out, "%s#%d -> %s#%d\n", from, n, to, got)
	return nil
}
