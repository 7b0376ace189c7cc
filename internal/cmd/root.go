package cmd

import (
	"github.com/spf13/cobra"
)

// Version is injected at build time via -ldflags
var Version = "dev"

// NewRootCommand creates and returns the root cobra command for suitepilot
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "suitepilot",
		Short: "Concurrent test orchestration and reporting",
		Long: `suitepilot discovers test definitions, runs each one through an external
executor (an agent CLI driving a browser, or a plain HTTP fetch), validates
every result against its JSON Schema and assertions, and writes a report.

Definitions are files named test_*.yaml, test_*.json or test_*.md under the
test root. Configuration is loaded from .suitepilot/config.yaml if present;
CLI flags override configuration file settings.`,
		Version: Version,
		// main prints errors and picks the exit code
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().String("config", "", "Path to config file (default: .suitepilot/config.yaml)")

	cmd.AddCommand(NewRunCommand())
	cmd.AddCommand(NewListCommand())
	cmd.AddCommand(NewValidateCommand())
	cmd.AddCommand(NewHistoryCommand())

	return cmd
}
