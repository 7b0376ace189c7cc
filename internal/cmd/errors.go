package cmd

import (
	"errors"
	"fmt"
)

// Process exit codes.
const (
	ExitOK           = 0 // Every unit passed
	ExitTestsFailed  = 1 // At least one unit failed
	ExitNoTests      = 2 // Discovery found nothing to run
	ExitConfigError  = 3 // Invalid root, config file or flags
	ExitRuntimeError = 4 // Anything else
)

// ExitError carries the process exit code out of a command.
// A nil Err means the command already reported the condition.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// Silent reports whether the error has nothing left to print.
func (e *ExitError) Silent() bool {
	return e.Err == nil
}

func configError(format string, args ...interface{}) error {
	return &ExitError{Code: ExitConfigError, Err: fmt.Errorf(format, args...)}
}

func runtimeError(format string, args ...interface{}) error {
	return &ExitError{Code: ExitRuntimeError, Err: fmt.Errorf(format, args...)}
}

// ExitCode maps a command error to the process exit code.
// Errors without an explicit code are treated as configuration errors,
// since cobra reports bad flags and arguments that way.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitConfigError
}
