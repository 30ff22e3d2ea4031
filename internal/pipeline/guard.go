package pipeline

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/vk/modforge/internal/ctxlog"
)

// RetryPolicy bounds how hard a Guard tries to remove its directory.
type RetryPolicy struct {
	Attempts int
	Initial  time.Duration
	Factor   float64
	Max      time.Duration
}

// DefaultRetryPolicy is used when an Executor has none.
var DefaultRetryPolicy = RetryPolicy{Attempts: 5, Initial: 100 * time.Millisecond, Factor: 2, Max: 2 * time.Second}

// Delay returns the wait after the given failed attempt, counting from 1.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	d := p.Initial
	for i := 1; i < attempt; i++ {
		d = time.Duration(float64(d) * p.Factor)
		if d >= p.Max {
			return p.Max
		}
	}
	if p.Max > 0 && d > p.Max {
		return p.Max
	}
	return d
}

// Guard owns a temporary directory and removes it exactly once.
type Guard struct {
	path   string
	policy RetryPolicy

	remove func(string) error
	sleep  func(time.Duration)

	once sync.Once
	err  error
}

// NewGuard returns a guard for path.
func NewGuard(path string, policy RetryPolicy) *Guard {
	if policy.Attempts < 1 {
		policy.Attempts = 1
	}
	return &Guard{path: path, policy: policy, remove: os.RemoveAll, sleep: time.Sleep}
}

// Path is the guarded directory.
func (g *Guard) Path() string {
	return g.path
}

// Release removes the directory, retrying with backoff. Later calls return
// the first call's result. A nil Guard releases nothing.
func (g *Guard) Release(ctx context.Context) error {
	if g == nil {
		return nil
	}
	g.once.Do(func() {
		g.err = g.release(ctx)
	})
	return g.err
}

func (g *Guard) release(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx).With("path", g.path)

	var err error
	for attempt := 1; attempt <= g.policy.Attempts; attempt++ {
		if err = g.remove(g.path); err == nil {
			logger.Debug("Removed temporary directory.", "attempt", attempt)
			return nil
		}
		logger.Debug("Failed to remove temporary directory.", "attempt", attempt, "error", err)
		if attempt < g.policy.Attempts {
			g.sleep(g.policy.Delay(attempt))
		}
	}
	cerr := &CleanupError{Path: g.path, Attempts: g.policy.Attempts, Err: err}
	logger.Warn("CleanupFailure", "error", cerr)
	return cerr
}
