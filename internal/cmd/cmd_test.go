package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrison/suitepilot/internal/config"
	"github.com/harrison/suitepilot/internal/executor"
	"github.com/harrison/suitepilot/internal/models"
)

// workspace is a throwaway project: a test root plus output dirs.
type workspace struct {
	dir     string
	root    string
	reports string
	logs    string
	config  string
}

func newWorkspace(t *testing.T) *workspace {
	t.Helper()
	dir := t.TempDir()
	ws := &workspace{
		dir:     dir,
		root:    filepath.Join(dir, "tests"),
		reports: filepath.Join(dir, "reports"),
		logs:    filepath.Join(dir, "logs"),
		config:  filepath.Join(dir, "config.yaml"),
	}
	require.NoError(t, os.MkdirAll(ws.root, 0755))
	return ws
}

func (ws *workspace) write(t *testing.T, rel, content string) {
	t.Helper()
	path := filepath.Join(ws.root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

// runArgs returns run arguments that keep every output inside the workspace.
func (ws *workspace) runArgs(extra ...string) []string {
	args := []string{"run", ws.root,
		"--config", ws.config,
		"--reports-dir", ws.reports,
		"--log-dir", ws.logs,
		"--format", "json",
	}
	return append(args, extra...)
}

func (ws *workspace) jsonReport(t *testing.T) models.Report {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(ws.reports, "report_*.json"))
	require.NoError(t, err)
	require.Len(t, matches, 1)

	data, err := os.ReadFile(matches[0])
	require.NoError(t, err)

	var rep models.Report
	require.NoError(t, json.Unmarshal(data, &rep))
	return rep
}

func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

func useExecutor(t *testing.T, exec executor.TaskExecutor) {
	t.Helper()
	previous := newExecutor
	newExecutor = func(*config.Config, string) executor.TaskExecutor { return exec }
	t.Cleanup(func() { newExecutor = previous })
}

func agentOnly(fn executor.Func) executor.TaskExecutor {
	mux := executor.NewMux()
	mux.Handle(models.ExecutorAgent, fn)
	return mux
}

const okDefinition = `task: %s
schema:
  type: object
  required: [ok]
  properties:
    ok: {type: boolean}
assertions:
  - path: ok
    equals: true
`

func definition(task string) string {
	return strings.Replace(okDefinition, "%s", task, 1)
}

// Scenario A: one of three executors raises; only that unit fails.
func TestRun_ExecutorFailureIsIsolated(t *testing.T) {
	ws := newWorkspace(t)
	ws.write(t, "test_one.yaml", definition("first"))
	ws.write(t, "test_two.yaml", definition("explode"))
	ws.write(t, "test_three.yaml", definition("third"))

	useExecutor(t, agentOnly(func(ctx context.Context, unit models.Unit) ([]byte, error) {
		if unit.Task().Instructions == "explode" {
			return nil, errors.New("browser crashed")
		}
		return []byte(`{"ok": true}`), nil
	}))

	out, err := executeCommand(t, ws.runArgs()...)
	require.Error(t, err)
	assert.Equal(t, ExitTestsFailed, ExitCode(err))

	rep := ws.jsonReport(t)
	assert.Equal(t, 3, rep.Summary.Total)
	assert.Equal(t, 2, rep.Summary.Passed)
	assert.Equal(t, 1, rep.Summary.Failed)
	assert.InDelta(t, 66.67, rep.Summary.PassRate, 0.001)

	failures := rep.Failures()
	require.Len(t, failures, 1)
	assert.Equal(t, "two", failures[0].Name)
	assert.Equal(t, models.KindExecution, failures[0].Kind)
	assert.Contains(t, failures[0].Error, "browser crashed")

	assert.Contains(t, out, "json report: ")
	assert.Contains(t, strings.ToLower(out), "3 total, 2 passed, 1 failed")
}

// Scenario B: nothing to run.
func TestRun_NoTests(t *testing.T) {
	ws := newWorkspace(t)
	ws.write(t, "README.md", "# not a test\n")

	calls := int32(0)
	useExecutor(t, agentOnly(func(ctx context.Context, unit models.Unit) ([]byte, error) {
		atomic.AddInt32(&calls, 1)
		return nil, nil
	}))

	out, err := executeCommand(t, ws.runArgs()...)
	require.Error(t, err)
	assert.Equal(t, ExitNoTests, ExitCode(err))
	assert.Contains(t, err.Error(), models.NoTestsMessage)
	assert.Zero(t, atomic.LoadInt32(&calls))

	rep := ws.jsonReport(t)
	assert.Zero(t, rep.Summary.Total)
	assert.True(t, rep.Summary.NoTests)
	assert.Equal(t, models.NoTestsMessage, rep.Summary.Message)
	assert.Zero(t, rep.Summary.PassRate)
	assert.Contains(t, strings.ToLower(out), models.NoTestsMessage)
}

// Scenario C: result missing a required field.
func TestRun_SchemaMismatch(t *testing.T) {
	ws := newWorkspace(t)
	ws.write(t, "test_article.yaml", `task: find the article
schema:
  type: object
  required: [title, author]
  properties:
    title: {type: string}
    author: {type: string}
`)

	useExecutor(t, agentOnly(func(ctx context.Context, unit models.Unit) ([]byte, error) {
		return []byte(`{"title": "Hello"}`), nil
	}))

	_, err := executeCommand(t, ws.runArgs()...)
	assert.Equal(t, ExitTestsFailed, ExitCode(err))

	rep := ws.jsonReport(t)
	require.Len(t, rep.Details, 1)
	o := rep.Details[0]
	assert.Equal(t, models.StatusFailed, o.Status)
	assert.Equal(t, models.KindSchema, o.Kind)
	assert.True(t, strings.HasPrefix(o.Error, "schema mismatch:"), o.Error)
	assert.Contains(t, o.Error, "author")
}

// Scenario D: five units of fixed delay, two at a time.
func TestRun_ConcurrencyBoundsWallClock(t *testing.T) {
	const delay = 150 * time.Millisecond

	ws := newWorkspace(t)
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		ws.write(t, "test_"+name+".yaml", definition("sleep "+name))
	}

	var active, peak int32
	useExecutor(t, agentOnly(func(ctx context.Context, unit models.Unit) ([]byte, error) {
		n := atomic.AddInt32(&active, 1)
		defer atomic.AddInt32(&active, -1)
		for {
			old := atomic.LoadInt32(&peak)
			if n <= old || atomic.CompareAndSwapInt32(&peak, old, n) {
				break
			}
		}
		time.Sleep(delay)
		return []byte(`{"ok": true}`), nil
	}))

	start := time.Now()
	_, err := executeCommand(t, ws.runArgs("--concurrency", "2")...)
	elapsed := time.Since(start)
	require.NoError(t, err)

	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
	assert.GreaterOrEqual(t, elapsed, 3*delay-20*time.Millisecond)
	assert.Less(t, elapsed, 5*delay)

	rep := ws.jsonReport(t)
	assert.Equal(t, 5, rep.Summary.Passed)
	assert.Equal(t, 100.0, rep.Summary.PassRate)
}

func TestRun_AllPassed(t *testing.T) {
	ws := newWorkspace(t)
	ws.write(t, "test_one.yaml", definition("one"))

	useExecutor(t, agentOnly(func(ctx context.Context, unit models.Unit) ([]byte, error) {
		return []byte("```json\n{\"ok\": true}\n```"), nil
	}))

	_, err := executeCommand(t, ws.runArgs("--format", "json,junit,text")...)
	require.NoError(t, err)

	for _, pattern := range []string{"report_*.json", "report_*.xml", "report_*.txt"} {
		matches, err := filepath.Glob(filepath.Join(ws.reports, pattern))
		require.NoError(t, err)
		assert.Len(t, matches, 1, pattern)
	}

	_, err = os.Lstat(filepath.Join(ws.logs, "latest.log"))
	assert.NoError(t, err)
}

func TestRun_AssertionFailure(t *testing.T) {
	ws := newWorkspace(t)
	ws.write(t, "test_one.yaml", definition("one"))

	useExecutor(t, agentOnly(func(ctx context.Context, unit models.Unit) ([]byte, error) {
		return []byte(`{"ok": false}`), nil
	}))

	_, err := executeCommand(t, ws.runArgs()...)
	assert.Equal(t, ExitTestsFailed, ExitCode(err))

	rep := ws.jsonReport(t)
	require.Len(t, rep.Details, 1)
	assert.Equal(t, models.KindAssertion, rep.Details[0].Kind)
}

func TestRun_Filters(t *testing.T) {
	ws := newWorkspace(t)
	ws.write(t, "test_login.yaml", definition("login")+"tags: smoke\n")
	ws.write(t, "test_logout.yaml", definition("logout"))
	ws.write(t, "test_search.yaml", definition("search")+"tags: smoke\n")

	useExecutor(t, agentOnly(func(ctx context.Context, unit models.Unit) ([]byte, error) {
		return []byte(`{"ok": true}`), nil
	}))

	_, err := executeCommand(t, ws.runArgs("--run", "^log", "--tag", "smoke")...)
	require.NoError(t, err)

	rep := ws.jsonReport(t)
	require.Len(t, rep.Details, 1)
	assert.Equal(t, "login", rep.Details[0].Name)
}

func TestRun_RunTimeoutCancelsUnits(t *testing.T) {
	ws := newWorkspace(t)
	ws.write(t, "test_slow.yaml", definition("slow"))

	useExecutor(t, agentOnly(func(ctx context.Context, unit models.Unit) ([]byte, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}))

	out, err := executeCommand(t, ws.runArgs("--timeout", "100ms")...)
	assert.Equal(t, ExitTestsFailed, ExitCode(err))
	assert.Contains(t, out, "run timed out")

	rep := ws.jsonReport(t)
	require.Len(t, rep.Details, 1)
	assert.Equal(t, models.KindCancelled, rep.Details[0].Kind)
}

func TestRun_ConfigErrors(t *testing.T) {
	ws := newWorkspace(t)

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{name: "missing root", args: []string{"run", filepath.Join(ws.dir, "missing"), "--config", ws.config, "--log-dir", ws.logs}, wantErr: "invalid test root"},
		{name: "unknown format", args: ws.runArgs("--format", "pdf"), wantErr: "unknown report format"},
		{name: "zero concurrency", args: ws.runArgs("--concurrency", "0"), wantErr: "concurrency must be >= 1"},
		{name: "bad run pattern", args: ws.runArgs("--run", "("), wantErr: "invalid --run pattern"},
		{name: "bad log level", args: ws.runArgs("--log-level", "loud"), wantErr: "invalid log_level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := executeCommand(t, tt.args...)
			require.Error(t, err)
			assert.Equal(t, ExitConfigError, ExitCode(err))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRun_ConfigFileApplies(t *testing.T) {
	ws := newWorkspace(t)
	ws.write(t, "test_one.yaml", definition("one"))
	require.NoError(t, os.WriteFile(ws.config, []byte("formats: [junit]\n"), 0644))

	useExecutor(t, agentOnly(func(ctx context.Context, unit models.Unit) ([]byte, error) {
		return []byte(`{"ok": true}`), nil
	}))

	_, err := executeCommand(t, "run", ws.root, "--config", ws.config, "--reports-dir", ws.reports, "--log-dir", ws.logs)
	require.NoError(t, err)

	matches, err := filepath.Glob(filepath.Join(ws.reports, "report_*.xml"))
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, ExitOK, ExitCode(nil))
	assert.Equal(t, ExitNoTests, ExitCode(&ExitError{Code: ExitNoTests}))
	assert.Equal(t, ExitConfigError, ExitCode(errors.New("unknown flag: --nope")))
	assert.Equal(t, ExitRuntimeError, ExitCode(runtimeError("boom")))

	silent := &ExitError{Code: ExitTestsFailed}
	assert.True(t, silent.Silent())
	assert.Equal(t, "exit status 1", silent.Error())
}

func TestRunArtifactsDir(t *testing.T) {
	first := runArtifactsDir("reports/artifacts", "1a2b3c4d-0000-4000-8000-000000000001")
	second := runArtifactsDir("reports/artifacts", "5e6f7a8b-0000-4000-8000-000000000002")

	assert.Equal(t, filepath.Join("reports/artifacts", "1a2b3c4d"), first)
	assert.NotEqual(t, first, second)
	assert.Equal(t, "", runArtifactsDir("", "1a2b3c4d"))
}
