// Package report turns pipeline progress into console and log output.
package report

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/vk/modforge/internal/pipeline"
	"github.com/vk/modforge/internal/steps"
)

// Semantic color palette.
var (
	colorPrimary = lipgloss.Color("#00BFFF")
	colorSuccess = lipgloss.Color("#00E676")
	colorDanger  = lipgloss.Color("#FF5252")
	colorMuted   = lipgloss.Color("#636363")
)

// Status icons for step states.
const (
	iconRunning = "◎"
	iconDone    = "✓"
	iconFailed  = "✗"
	iconSkipped = "–"
)

// Console prints one line per step event. Colors are dropped when w is not
// a terminal.
type Console struct {
	mu sync.Mutex
	w  io.Writer

	running lipgloss.Style
	done    lipgloss.Style
	failed  lipgloss.Style
	skipped lipgloss.Style
	detail  lipgloss.Style
}

// NewConsole returns a console reporter writing to w.
func NewConsole(w io.Writer) *Console {
	r := lipgloss.NewRenderer(w)
	return &Console{
		w:       w,
		running: r.NewStyle().Foreground(colorPrimary),
		done:    r.NewStyle().Foreground(colorSuccess),
		failed:  r.NewStyle().Foreground(colorDanger).Bold(true),
		skipped: r.NewStyle().Foreground(colorMuted),
		detail:  r.NewStyle().Foreground(colorMuted),
	}
}

func (c *Console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.w, format, args...)
}

func (c *Console) StepStarting(s steps.Step) {
	c.printf("%s %s\n", c.running.Render(iconRunning), s.Key)
}

func (c *Console) StepCompleted(s steps.Step, elapsed time.Duration) {
	c.printf("%s %s %s\n", c.done.Render(iconDone), s.Key, c.detail.Render(elapsed.Round(time.Millisecond).String()))
}

// StepFailed prints the error and, for a failed process, the tails of its
// output.
func (c *Console) StepFailed(s steps.Step, err error) {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n  %s\n", c.failed.Render(iconFailed), s.Key, c.failed.Render(err.Error()))

	var stepErr *pipeline.StepError
	if errors.As(err, &stepErr) {
		c.writeTail(&b, "stdout", stepErr.Stdout)
		c.writeTail(&b, "stderr", stepErr.Stderr)
	}
	c.printf("%s", b.String())
}

func (c *Console) writeTail(b *strings.Builder, name, tail string) {
	if tail == "" {
		return
	}
	fmt.Fprintf(b, "  %s\n", c.detail.Render(name+":"))
	for _, line := range strings.Split(tail, "\n") {
		fmt.Fprintf(b, "    %s\n", c.detail.Render(line))
	}
}

func (c *Console) StepSkipped(s steps.Step) {
	c.printf("%s %s\n", c.skipped.Render(iconSkipped), c.skipped.Render(s.Key+" (skipped)"))
}
