package report

import (
	"context"
	"time"

	"github.com/vk/modforge/internal/ctxlog"
	"github.com/vk/modforge/internal/steps"
)

// Log reports progress through the context logger at debug level.
type Log struct {
	ctx context.Context
}

// NewLog returns a reporter that logs with the logger carried by ctx.
func NewLog(ctx context.Context) *Log {
	return &Log{ctx: ctx}
}

func (l *Log) StepStarting(s steps.Step) {
	ctxlog.FromContext(l.ctx).Debug("Step starting.", "step", s.Key, "kind", s.Kind)
}

func (l *Log) StepCompleted(s steps.Step, elapsed time.Duration) {
	ctxlog.FromContext(l.ctx).Debug("Step completed.", "step", s.Key, "elapsed", elapsed)
}

func (l *Log) StepFailed(s steps.Step, err error) {
	ctxlog.FromContext(l.ctx).Debug("Step failed.", "step", s.Key, "error", err)
}

func (l *Log) StepSkipped(s steps.Step) {
	ctxlog.FromContext(l.ctx).Debug("Step skipped.", "step", s.Key)
}
