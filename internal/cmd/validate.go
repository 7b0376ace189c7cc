package cmd

import (
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/harrison/suitepilot/internal/registry"
)

// NewValidateCommand creates and returns the validate subcommand
func NewValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [root]",
		Short: "Check every test definition under root",
		Long: `Parse every test definition under root, compile its schema and assertions
and construct each unit once, without running anything.

Checks:
  - definition files parse (YAML, JSON or Markdown)
  - every unit has a registered kind and a valid task
  - output schemas compile and assertion patterns are valid
  - unit names are unique

Exit code: 0 if valid, 1 if any definition failed to load`,
		Args: cobra.MaximumNArgs(1),
		RunE: validateCommand,
	}
	return cmd
}

func validateCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	problems := &problemCollector{}

	catalog, err := newRegistry().Discover(cfg.Root, problems)
	if err != nil {
		return &ExitError{Code: ExitConfigError, Err: err}
	}

	return writeValidation(out, catalog, problems.messages)
}

// problemCollector gathers discovery warnings instead of logging them.
type problemCollector struct {
	messages []string
}

func (p *problemCollector) LogWarn(msg string) {
	p.messages = append(p.messages, msg)
}

func writeValidation(w io.Writer, catalog *registry.Catalog, problems []string) error {
	sources := make(map[string]bool)
	for _, e := range catalog.Entries {
		sources[e.Source] = true
	}

	if len(problems) == 0 {
		if len(catalog.Entries) == 0 {
			fmt.Fprintf(w, "No test definitions found under %s\n", catalog.Root)
			return nil
		}
		fmt.Fprintf(w, "✓ %d tests in %d files are valid\n", len(catalog.Entries), len(sources))
		return nil
	}

	sort.Strings(problems)
	fmt.Fprintf(w, "✗ Found %d problem(s) under %s:\n", len(problems), catalog.Root)
	for _, p := range problems {
		fmt.Fprintf(w, "  - %s\n", p)
	}
	fmt.Fprintf(w, "\n%d tests in %d files loaded cleanly\n", len(catalog.Entries), len(sources))

	return &ExitError{Code: ExitTestsFailed, Err: fmt.Errorf("%d definition problem(s) found", len(problems))}
}
