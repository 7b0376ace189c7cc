package executor

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
)

var (
	cleanTmpOnce sync.Once
	cleanTmpDir  string
)

// CleanTmpDir returns the dedicated temp directory handed to agent processes.
// Agents started from an editor terminal otherwise inherit a TMPDIR full of
// editor sockets, which breaks some agent CLIs.
func CleanTmpDir() string {
	cleanTmpOnce.Do(func() {
		cleanTmpDir = filepath.Join(os.TempDir(), "suitepilot-agent")
		_ = os.MkdirAll(cleanTmpDir, 0755)
	})
	return cleanTmpDir
}

// SetCleanEnv copies the current environment into cmd with TMPDIR replaced
// and extra variables appended.
func SetCleanEnv(cmd *exec.Cmd, extra ...string) {
	cmd.Env = os.Environ()

	found := false
	for i, env := range cmd.Env {
		if strings.HasPrefix(env, "TMPDIR=") {
			cmd.Env[i] = "TMPDIR=" + CleanTmpDir()
			found = true
			break
		}
	}
	if !found {
		cmd.Env = append(cmd.Env, "TMPDIR="+CleanTmpDir())
	}
	cmd.Env = append(cmd.Env, extra...)
}
