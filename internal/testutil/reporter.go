package testutil

import (
	"sync"
	"time"

	"github.com/vk/modforge/internal/steps"
)

// Event is one call a RecordingReporter received.
type Event struct {
	Type string
	Key  string
}

// RecordingReporter records every progress callback in order.
type RecordingReporter struct {
	mu     sync.Mutex
	events []Event
}

func (r *RecordingReporter) add(typ string, s steps.Step) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Event{Type: typ, Key: s.Key})
}

func (r *RecordingReporter) StepStarting(s steps.Step) { r.add("starting", s) }

func (r *RecordingReporter) StepCompleted(s steps.Step, _ time.Duration) { r.add("completed", s) }

func (r *RecordingReporter) StepFailed(s steps.Step, _ error) { r.add("failed", s) }

func (r *RecordingReporter) StepSkipped(s steps.Step) { r.add("skipped", s) }

// Events returns a copy of the recorded events.
func (r *RecordingReporter) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}
