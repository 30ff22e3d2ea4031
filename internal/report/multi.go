package report

import (
	"time"

	"github.com/vk/modforge/internal/pipeline"
	"github.com/vk/modforge/internal/steps"
)

// Multi fans every event out to each reporter in order.
type Multi []pipeline.Reporter

func (m Multi) StepStarting(s steps.Step) {
	for _, r := range m {
		r.StepStarting(s)
	}
}

func (m Multi) StepCompleted(s steps.Step, elapsed time.Duration) {
	for _, r := range m {
		r.StepCompleted(s, elapsed)
	}
}

func (m Multi) StepFailed(s steps.Step, err error) {
	for _, r := range m {
		r.StepFailed(s, err)
	}
}

// StepSkipped forwards to the reporters that implement pipeline.SkipReporter.
func (m Multi) StepSkipped(s steps.Step) {
	for _, r := range m {
		if sr, ok := r.(pipeline.SkipReporter); ok {
			sr.StepSkipped(s)
		}
	}
}
