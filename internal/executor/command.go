package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/harrison/suitepilot/internal/filelock"
	"github.com/harrison/suitepilot/internal/models"
)

// DefaultSystemPrompt keeps agent output machine readable.
const DefaultSystemPrompt = "You are a test agent driving a browser. Complete the task, then output ONLY valid JSON matching the provided schema. No markdown, no code fences, no prose."

// DefaultAgentCommand is the agent CLI looked up in PATH.
const DefaultAgentCommand = "claude"

// Placeholders substituted into agent arguments.
const (
	PlaceholderTask   = "{task}"
	PlaceholderSchema = "{schema}"
	PlaceholderName   = "{name}"
)

// DefaultAgentArgs invokes the agent CLI in print mode with JSON output.
var DefaultAgentArgs = []string{
	"--system-prompt", DefaultSystemPrompt,
	"-p", PlaceholderTask,
	"--json-schema", PlaceholderSchema,
	"--output-format", "json",
	"--permission-mode", "bypassPermissions",
	"--settings", `{"disableAllHooks": true}`,
}

// waitDelay bounds how long Execute waits for output pipes after the
// process has been killed.
const waitDelay = 5 * time.Second

var artifactUnsafe = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// CommandError describes an agent process that exited unsuccessfully.
type CommandError struct {
	Command  string
	ExitCode int
	Stderr   string
	Err      error
}

// Error implements the error interface for CommandError.
func (e *CommandError) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s exited with code %d", e.Command, e.ExitCode))
	if e.Stderr != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Stderr)
	}
	return sb.String()
}

// Unwrap returns the underlying error.
func (e *CommandError) Unwrap() error {
	return e.Err
}

// CommandExecutor runs an external agent CLI once per unit.
// It is safe for concurrent use; all per-unit state lives in the session.
type CommandExecutor struct {
	// Command is the agent binary. Defaults to DefaultAgentCommand.
	Command string

	// Args are passed to the agent after placeholder substitution.
	// Defaults to DefaultAgentArgs.
	Args []string

	// ArtifactsDir receives the raw output of every run. Empty disables capture.
	ArtifactsDir string

	// Env is appended to the inherited environment.
	Env []string

	mu      sync.Mutex
	claimed map[string]string // artifact base name -> unit name
}

// NewCommandExecutor creates an executor for the given agent command.
func NewCommandExecutor(command string, args []string, artifactsDir string) *CommandExecutor {
	return &CommandExecutor{
		Command:      command,
		Args:         args,
		ArtifactsDir: artifactsDir,
	}
}

// Open prepares a private scratch directory for the unit's agent process.
func (e *CommandExecutor) Open(_ context.Context, unit models.Unit) (Session, error) {
	task := unit.Task()
	if strings.TrimSpace(task.Instructions) == "" {
		return nil, fmt.Errorf("agent task for %s has no instructions", unit.Name())
	}

	workDir, err := os.MkdirTemp(CleanTmpDir(), "unit-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create work dir: %w", err)
	}

	return &commandSession{
		exec:    e,
		name:    unit.Name(),
		task:    task,
		schema:  unit.OutputSchema(),
		workDir: workDir,
	}, nil
}

type commandSession struct {
	exec     *CommandExecutor
	name     string
	task     models.Task
	schema   json.RawMessage
	workDir  string
	artifact string
}

func (s *commandSession) Artifact() string {
	return s.artifact
}

func (s *commandSession) Close() error {
	if s.workDir == "" {
		return nil
	}
	err := os.RemoveAll(s.workDir)
	s.workDir = ""
	return err
}

func (s *commandSession) Execute(ctx context.Context) ([]byte, error) {
	command := s.exec.Command
	if command == "" {
		command = DefaultAgentCommand
	}
	argTemplate := s.exec.Args
	if len(argTemplate) == 0 {
		argTemplate = DefaultAgentArgs
	}

	args := ExpandArgs(argTemplate, map[string]string{
		PlaceholderTask:   s.task.Instructions,
		PlaceholderSchema: compactSchema(s.schema),
		PlaceholderName:   s.name,
	})

	cmd := exec.CommandContext(ctx, command, args...)
	cmd.Dir = s.workDir
	cmd.WaitDelay = waitDelay
	env := append([]string{
		"SUITEPILOT_UNIT=" + s.name,
		"SUITEPILOT_WORKDIR=" + s.workDir,
	}, s.exec.Env...)
	SetCleanEnv(cmd, env...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	s.capture(stdout.Bytes(), stderr.Bytes())

	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if runErr != nil {
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		return nil, &CommandError{
			Command:  command,
			ExitCode: exitCode,
			Stderr:   tail(stderr.String(), 500),
			Err:      runErr,
		}
	}

	return UnwrapEnvelope(stdout.Bytes())
}

// capture saves the raw agent output next to the other run artifacts.
// Capture failures never fail the unit.
func (s *commandSession) capture(stdout, stderr []byte) {
	if s.exec.ArtifactsDir == "" {
		return
	}
	data := stdout
	if len(bytes.TrimSpace(data)) == 0 {
		data = stderr
	}
	if len(data) == 0 {
		return
	}

	ext := ".txt"
	if json.Valid(data) {
		ext = ".json"
	}
	path := filepath.Join(s.exec.ArtifactsDir, s.exec.artifactBase(s.name)+ext)
	if err := filelock.AtomicWrite(path, data); err == nil {
		s.artifact = path
	}
}

// artifactBase returns the file name stem for a unit's captured output.
// Distinct unit names that sanitize to the same stem get numbered suffixes.
func (e *CommandExecutor) artifactBase(unit string) string {
	stem := "history_" + artifactUnsafe.ReplaceAllString(unit, "_")

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.claimed == nil {
		e.claimed = make(map[string]string)
	}
	base := stem
	for n := 2; ; n++ {
		owner, taken := e.claimed[base]
		if !taken || owner == unit {
			e.claimed[base] = unit
			return base
		}
		base = fmt.Sprintf("%s_%d", stem, n)
	}
}

// envelope is the JSON wrapper the agent CLI prints with --output-format json.
type envelope struct {
	Type             string          `json:"type"`
	Subtype          string          `json:"subtype"`
	IsError          bool            `json:"is_error"`
	Result           json.RawMessage `json:"result"`
	StructuredOutput json.RawMessage `json:"structured_output"`
}

// UnwrapEnvelope extracts the task result from agent CLI output.
// Output that is not a result envelope is returned unchanged.
func UnwrapEnvelope(output []byte) ([]byte, error) {
	var env envelope
	if err := json.Unmarshal(bytes.TrimSpace(output), &env); err != nil || env.Type != "result" {
		return output, nil
	}

	result := decodeResultField(env.Result)
	if env.IsError {
		msg := result
		if msg == "" {
			msg = env.Subtype
		}
		return nil, fmt.Errorf("agent reported error: %s", msg)
	}

	if len(env.StructuredOutput) > 0 && string(env.StructuredOutput) != "null" {
		return env.StructuredOutput, nil
	}
	if result != "" {
		return []byte(result), nil
	}
	return nil, fmt.Errorf("agent returned an empty result")
}

// decodeResultField returns the result field as text. The agent usually
// sends a JSON string; anything else is returned verbatim.
func decodeResultField(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// ExpandArgs substitutes placeholders in each argument. An argument that is
// exactly a placeholder with an empty value is dropped together with the
// flag preceding it.
func ExpandArgs(template []string, values map[string]string) []string {
	pairs := make([]string, 0, 2*len(values))
	for k, v := range values {
		pairs = append(pairs, k, v)
	}
	replacer := strings.NewReplacer(pairs...)

	out := make([]string, 0, len(template))
	for _, arg := range template {
		if v, isPlaceholder := values[arg]; isPlaceholder && v == "" {
			if n := len(out); n > 0 && strings.HasPrefix(out[n-1], "-") {
				out = out[:n-1]
			}
			continue
		}
		out = append(out, replacer.Replace(arg))
	}
	return out
}

func compactSchema(schema json.RawMessage) string {
	trimmed := bytes.TrimSpace(schema)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return ""
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, trimmed); err != nil {
		return string(trimmed)
	}
	return buf.String()
}

func tail(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	return "..." + s[len(s)-max:]
}
