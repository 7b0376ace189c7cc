package config

import (
	"os"
	"path/filepath"
)

const (
	// DirName is the per-project state directory.
	DirName = ".suitepilot"

	// FileName is the config file inside DirName.
	FileName = "config.yaml"

	// EnvConfig overrides config file discovery.
	EnvConfig = "SUITEPILOT_CONFIG"
)

// FindConfigFile returns the config file to load when none was given on the
// command line. Priority order:
//  1. SUITEPILOT_CONFIG environment variable (if set)
//  2. the nearest .suitepilot/config.yaml walking up from start
//  3. .suitepilot/config.yaml under start (may not exist)
func FindConfigFile(start string) string {
	if path := os.Getenv(EnvConfig); path != "" {
		return path
	}

	current, err := filepath.Abs(start)
	if err != nil {
		current = start
	}
	for {
		candidate := filepath.Join(current, DirName, FileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}

		parent := filepath.Dir(current)
		if parent == current {
			break
		}
		current = parent
	}

	return filepath.Join(start, DirName, FileName)
}
