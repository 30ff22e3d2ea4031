package pipeline

import (
	"errors"
	"fmt"

	"github.com/vk/modforge/internal/procexec"
	"github.com/vk/modforge/internal/steps"
)

// ErrStepExecution marks a failed step. It is always fatal to the run.
var ErrStepExecution = errors.New("step execution failed")

// ErrCleanup marks a temporary directory that could not be removed. It is
// logged and never fails a run.
var ErrCleanup = errors.New("cleanup failed")

// Output tails kept on a StepError.
const (
	tailLines = 20
	tailChars = 4000
)

// StepError reports which step failed and why. When the cause is a process
// exit, it carries the exit code and the tails of the process output.
type StepError struct {
	Key      string
	Kind     steps.Kind
	ExitCode int
	Stdout   string
	Stderr   string
	Err      error
}

func newStepError(s steps.Step, err error) *StepError {
	se := &StepError{Key: s.Key, Kind: s.Kind, Err: err}
	var exitErr *procexec.ExitError
	if errors.As(err, &exitErr) {
		se.ExitCode = exitErr.ExitCode
		se.Stdout = procexec.Tail(exitErr.Stdout, tailLines, tailChars)
		se.Stderr = procexec.Tail(exitErr.Stderr, tailLines, tailChars)
	}
	return se
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %s failed: %v", e.Key, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

func (e *StepError) Is(target error) bool { return target == ErrStepExecution }

// CleanupError reports a directory left behind after every retry.
type CleanupError struct {
	Path     string
	Attempts int
	Err      error
}

func (e *CleanupError) Error() string {
	return fmt.Sprintf("removing %s failed after %d attempts: %v", e.Path, e.Attempts, e.Err)
}

func (e *CleanupError) Unwrap() error { return e.Err }

func (e *CleanupError) Is(target error) bool { return target == ErrCleanup }
