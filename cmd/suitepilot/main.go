package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/harrison/suitepilot/internal/cmd"
)

func main() {
	rootCmd := cmd.NewRootCommand()

	if err := rootCmd.Execute(); err != nil {
		var exitErr *cmd.ExitError
		if !errors.As(err, &exitErr) || !exitErr.Silent() {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(cmd.ExitCode(err))
	}
}
