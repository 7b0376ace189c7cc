package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/harrison/suitepilot/internal/logger"
	"github.com/harrison/suitepilot/internal/registry"
)

// NewListCommand creates the list command
func NewListCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list [root]",
		Short: "List the tests a run would execute",
		Long: `Discover test definitions under root without running them.

Files that fail to load are reported as warnings, the same way a run
would skip them. --run and --tag preview a filtered run.`,
		Args: cobra.MaximumNArgs(1),
		RunE: listCommand,
	}
	addFilterFlags(cmd)
	return cmd
}

func listCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	log := logger.NewConsoleLogger(cmd.ErrOrStderr(), cfg.LogLevel)

	catalog, err := discover(cmd, cfg, log)
	if err != nil {
		return err
	}

	if len(catalog.Entries) == 0 {
		fmt.Fprintf(out, "No tests found under %s\n", cfg.Root)
		return &ExitError{Code: ExitNoTests}
	}

	renderCatalog(out, catalog, colorEnabled(out))
	return nil
}

func renderCatalog(w io.Writer, catalog *registry.Catalog, colored bool) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle(fmt.Sprintf("Tests under %s", catalog.Root))
	t.AppendHeader(table.Row{"#", "Test", "Kind", "Tags", "Source"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "#", Align: text.AlignRight},
	})

	for i, e := range catalog.Entries {
		t.AppendRow(table.Row{i + 1, e.Name, e.Kind, strings.Join(e.Tags, ","), e.Source})
	}

	footer := fmt.Sprintf("%d tests", len(catalog.Entries))
	if n := len(catalog.Disabled); n > 0 {
		footer += fmt.Sprintf(", %d skipped by definition", n)
	}
	if n := len(catalog.Skipped); n > 0 {
		footer += fmt.Sprintf(", %d files not loaded", n)
	}
	t.AppendFooter(table.Row{"", footer, "", "", ""})

	if colored {
		t.SetStyle(table.StyleColoredBright)
	} else {
		t.SetStyle(table.StyleLight)
	}
	t.Render()
}
