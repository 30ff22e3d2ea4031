package pipeline

import (
	"context"
	"time"

	"github.com/vk/modforge/internal/ctxlog"
	"github.com/vk/modforge/internal/steps"
)

// Reporter receives progress for every step that starts: StepStarting,
// then exactly one of StepCompleted or StepFailed.
type Reporter interface {
	StepStarting(step steps.Step)
	StepCompleted(step steps.Step, elapsed time.Duration)
	StepFailed(step steps.Step, err error)
}

// SkipReporter is implemented by reporters that also want to hear about
// steps that never started because an earlier step failed.
type SkipReporter interface {
	StepSkipped(step steps.Step)
}

// safeReporter shields the run from a misbehaving reporter.
type safeReporter struct {
	ctx  context.Context
	next Reporter
}

func (r safeReporter) call(event string, s steps.Step, fn func()) {
	if r.next == nil {
		return
	}
	defer func() {
		if p := recover(); p != nil {
			ctxlog.FromContext(r.ctx).Error("Reporter panicked.", "event", event, "step", s.Key, "panic", p)
		}
	}()
	fn()
}

func (r safeReporter) starting(s steps.Step) {
	r.call("starting", s, func() { r.next.StepStarting(s) })
}

func (r safeReporter) completed(s steps.Step, elapsed time.Duration) {
	r.call("completed", s, func() { r.next.StepCompleted(s, elapsed) })
}

func (r safeReporter) failed(s steps.Step, err error) {
	r.call("failed", s, func() { r.next.StepFailed(s, err) })
}

func (r safeReporter) skipped(s steps.Step) {
	sr, ok := r.next.(SkipReporter)
	if !ok {
		return
	}
	r.call("skipped", s, func() { sr.StepSkipped(s) })
}
