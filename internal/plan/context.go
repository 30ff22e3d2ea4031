package plan

import (
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/vk/modforge/internal/version"
)

// RunContext is the state one run shares between the resolver and the
// executor. Nothing in it outlives the run.
type RunContext struct {
	ID string

	mu       sync.Mutex
	remote   *version.CachingRemote
	ensured  map[string]struct{}
	warnings []string
}

// NewRunContext returns a context with a fresh random run id.
func NewRunContext() *RunContext {
	return NewRunContextWithID(uuid.NewString())
}

// NewRunContextWithID returns a context with a fixed run id.
func NewRunContextWithID(id string) *RunContext {
	return &RunContext{ID: id, ensured: make(map[string]struct{})}
}

// Remote wraps next in the run's lookup cache. The first non-nil next wins
// for the rest of the run. A nil next returns nil, which disables remote
// resolution.
func (rc *RunContext) Remote(next version.RemoteLookup) version.RemoteLookup {
	if next == nil {
		return nil
	}
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rc.remote == nil {
		rc.remote = version.NewCachingRemote(next)
	}
	return rc.remote
}

// EnsureOnce reports true the first time it sees key (case-insensitive) in
// this run and false afterwards. Steps use it for one-time setup such as
// registering a publish repository.
func (rc *RunContext) EnsureOnce(key string) bool {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	key = strings.ToLower(key)
	if _, ok := rc.ensured[key]; ok {
		return false
	}
	rc.ensured[key] = struct{}{}
	return true
}

// Warn records a run-level warning.
func (rc *RunContext) Warn(msg string) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.warnings = append(rc.warnings, msg)
}

// Warnings returns a copy of every warning recorded so far.
func (rc *RunContext) Warnings() []string {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return append([]string(nil), rc.warnings...)
}
