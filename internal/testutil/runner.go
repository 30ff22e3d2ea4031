package testutil

import (
	"context"
	"sync"

	"github.com/vk/modforge/internal/procexec"
)

// FakeRunner records invocations instead of starting processes.
type FakeRunner struct {
	// Respond, when set, decides the outcome of each invocation.
	Respond func(inv procexec.Invocation) (procexec.Result, error)

	mu    sync.Mutex
	calls []procexec.Invocation
}

// Run implements procexec.Runner.
func (f *FakeRunner) Run(_ context.Context, inv procexec.Invocation) (procexec.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, inv)
	f.mu.Unlock()

	if f.Respond != nil {
		return f.Respond(inv)
	}
	return procexec.Result{}, nil
}

// Calls returns a copy of the recorded invocations.
func (f *FakeRunner) Calls() []procexec.Invocation {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]procexec.Invocation(nil), f.calls...)
}

// Scripts returns the script text of each recorded invocation.
func (f *FakeRunner) Scripts() []string {
	var out []string
	for _, c := range f.Calls() {
		if n := len(c.Args); n > 0 {
			out = append(out, c.Args[n-1])
		}
	}
	return out
}
