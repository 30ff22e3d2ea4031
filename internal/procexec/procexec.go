// Package procexec runs external processes on behalf of pipeline steps.
package procexec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/vk/modforge/internal/ctxlog"
)

// ErrorMarker prefixes the line a script prints on stdout to report why it
// failed. The text after the marker becomes the error message.
const ErrorMarker = "::modforge-error::"

// waitDelay bounds how long Run waits for output pipes after the process
// is killed.
const waitDelay = 2 * time.Second

// Invocation describes one process to start.
type Invocation struct {
	Name    string
	Args    []string
	Dir     string
	Env     []string
	Timeout time.Duration
}

func (i Invocation) String() string {
	return strings.TrimSpace(i.Name + " " + strings.Join(i.Args, " "))
}

// Result is what a finished process left behind.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// ExitError is returned when a process exits non-zero or runs past its
// timeout.
type ExitError struct {
	Command  string
	ExitCode int
	TimedOut bool
	Message  string
	Stdout   string
	Stderr   string
}

func (e *ExitError) Error() string {
	switch {
	case e.TimedOut:
		return fmt.Sprintf("%s: timed out", e.Command)
	case e.Message != "":
		return fmt.Sprintf("%s: exit code %d: %s", e.Command, e.ExitCode, e.Message)
	default:
		return fmt.Sprintf("%s: exit code %d", e.Command, e.ExitCode)
	}
}

// Runner starts processes.
type Runner interface {
	Run(ctx context.Context, inv Invocation) (Result, error)
}

// Exec runs processes with os/exec.
type Exec struct{}

// Run starts inv and waits for it. A zero Timeout means no limit beyond ctx.
func (Exec) Run(ctx context.Context, inv Invocation) (Result, error) {
	ctx, logger := ctxlog.With(ctx, "command", inv.Name)

	if inv.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, inv.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, inv.Name, inv.Args...)
	cmd.Dir = inv.Dir
	if len(inv.Env) > 0 {
		cmd.Env = append(os.Environ(), inv.Env...)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = waitDelay

	logger.Debug("Starting process.", "args", inv.Args, "dir", inv.Dir, "timeout", inv.Timeout)
	start := time.Now()
	err := cmd.Run()
	res := Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}
	logger.Debug("Process finished.", "exitCode", res.ExitCode, "duration", res.Duration)

	if err == nil {
		return res, nil
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return res, &ExitError{
			Command:  inv.Name,
			ExitCode: res.ExitCode,
			TimedOut: true,
			Stdout:   res.Stdout,
			Stderr:   res.Stderr,
		}
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return res, NewExitError(inv.Name, res)
	}
	return res, fmt.Errorf("failed to start %s: %w", inv.Name, err)
}

// NewExitError builds the error for a process that exited with res.ExitCode.
func NewExitError(command string, res Result) *ExitError {
	return &ExitError{
		Command:  command,
		ExitCode: res.ExitCode,
		Message:  failureMessage(res.Stdout, res.Stderr),
		Stdout:   res.Stdout,
		Stderr:   res.Stderr,
	}
}

func failureMessage(stdout, stderr string) string {
	for _, line := range strings.Split(stdout, "\n") {
		line = strings.TrimSpace(line)
		if msg, ok := strings.CutPrefix(line, ErrorMarker); ok {
			return strings.TrimSpace(msg)
		}
	}
	return strings.TrimSpace(Tail(stderr, 20, 4000))
}

// Tail returns at most the last maxLines lines and maxChars characters of s.
func Tail(s string, maxLines, maxChars int) string {
	s = strings.TrimRight(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
	if s == "" {
		return ""
	}
	lines := strings.Split(s, "\n")
	if len(lines) > maxLines {
		lines = lines[len(lines)-maxLines:]
	}
	out := strings.Join(lines, "\n")
	if r := []rune(out); len(r) > maxChars {
		out = string(r[len(r)-maxChars:])
	}
	return out
}

// Script returns the invocation that runs script with shell in
// non-interactive mode.
func Script(shell, script string) Invocation {
	return Invocation{
		Name: shell,
		Args: []string{"-NoLogo", "-NoProfile", "-NonInteractive", "-Command", script},
	}
}

// Quote returns s as a single-quoted shell literal.
func Quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
