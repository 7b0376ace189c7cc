package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/harrison/suitepilot/internal/history"
)

// NewHistoryCommand creates the history command
func NewHistoryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded runs, one test's history or flaky tests",
		Long: `Query the run history database written by 'suitepilot run --history'
(or history.enabled in the config file).

Examples:
  suitepilot history                     # recent runs
  suitepilot history --unit test_login   # one test across runs
  suitepilot history --flaky --window 20 # tests that both passed and failed`,
		Args: cobra.NoArgs,
		RunE: historyCommand,
	}

	cmd.Flags().String("db", "", "Path to the history database (default: from config)")
	cmd.Flags().String("unit", "", "Show the history of one test")
	cmd.Flags().Int("limit", 20, "Maximum number of rows")
	cmd.Flags().Bool("flaky", false, "List tests that both passed and failed recently")
	cmd.Flags().Int("window", 10, "Number of recent runs considered by --flaky")

	return cmd
}

func historyCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, nil)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	dbPath := cfg.History.DBPath
	if _, err := os.Stat(dbPath); errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(out, "No history recorded at %s\n", dbPath)
		return nil
	}

	store, err := history.NewStore(dbPath)
	if err != nil {
		return runtimeError("failed to open history: %w", err)
	}
	defer store.Close()

	ctx := cmd.Context()
	unit, _ := cmd.Flags().GetString("unit")
	limit, _ := cmd.Flags().GetInt("limit")
	flaky, _ := cmd.Flags().GetBool("flaky")
	window, _ := cmd.Flags().GetInt("window")

	switch {
	case flaky:
		units, err := store.FlakyUnits(ctx, window)
		if err != nil {
			return runtimeError("failed to query flaky tests: %w", err)
		}
		renderFlaky(out, units, window)
	case unit != "":
		records, err := store.UnitHistory(ctx, unit, limit)
		if err != nil {
			return runtimeError("failed to query history for %s: %w", unit, err)
		}
		renderUnitHistory(out, unit, records)
	default:
		runs, err := store.RecentRuns(ctx, limit)
		if err != nil {
			return runtimeError("failed to query runs: %w", err)
		}
		renderRuns(out, runs)
	}
	return nil
}

func renderRuns(w io.Writer, runs []history.RunRecord) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded")
		return
	}

	t := newHistoryTable(w, "Recent runs")
	t.AppendHeader(table.Row{"Run", "Started", "Total", "Passed", "Failed", "Pass Rate", "Duration", "Root"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Total", Align: text.AlignRight},
		{Name: "Passed", Align: text.AlignRight},
		{Name: "Failed", Align: text.AlignRight},
		{Name: "Pass Rate", Align: text.AlignRight},
		{Name: "Duration", Align: text.AlignRight},
	})
	for _, r := range runs {
		t.AppendRow(table.Row{
			shortID(r.RunID),
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			r.Total,
			r.Passed,
			r.Failed,
			fmt.Sprintf("%.2f%%", r.PassRate),
			fmt.Sprintf("%.2fs", r.Duration),
			r.Root,
		})
	}
	t.Render()
}

func renderUnitHistory(w io.Writer, name string, records []history.UnitRecord) {
	if len(records) == 0 {
		fmt.Fprintf(w, "No history for %s\n", name)
		return
	}

	t := newHistoryTable(w, fmt.Sprintf("History of %s", name))
	t.AppendHeader(table.Row{"Run", "Started", "Status", "Kind", "Duration", "Error"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Duration", Align: text.AlignRight},
		{Name: "Error", WidthMax: 60, WidthMaxEnforcer: text.WrapSoft},
	})
	for _, r := range records {
		t.AppendRow(table.Row{
			shortID(r.RunID),
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			string(r.Status),
			string(r.Kind),
			fmt.Sprintf("%.2fs", r.Duration),
			r.Error,
		})
	}
	t.Render()
}

func renderFlaky(w io.Writer, units []history.FlakyUnit, window int) {
	if len(units) == 0 {
		fmt.Fprintf(w, "No flaky tests in the last %d runs\n", window)
		return
	}

	t := newHistoryTable(w, fmt.Sprintf("Flaky tests (last %d runs)", window))
	t.AppendHeader(table.Row{"Test", "Passes", "Failures", "Last Status"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Passes", Align: text.AlignRight},
		{Name: "Failures", Align: text.AlignRight},
	})
	for _, u := range units {
		t.AppendRow(table.Row{u.Name, u.Passes, u.Failures, string(u.LastStatus)})
	}
	t.Render()
}

func newHistoryTable(w io.Writer, title string) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle(title)
	if colorEnabled(w) {
		t.SetStyle(table.StyleColoredBright)
	} else {
		t.SetStyle(table.StyleLight)
	}
	return t
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
