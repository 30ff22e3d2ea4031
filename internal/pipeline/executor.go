// Package pipeline runs an ordered step list against registered handlers.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/vk/modforge/internal/ctxlog"
	"github.com/vk/modforge/internal/fsutil"
	"github.com/vk/modforge/internal/registry"
	"github.com/vk/modforge/internal/steps"
)

// Executor runs steps one at a time in list order.
type Executor struct {
	Registry *registry.Registry
	Reporter Reporter
	Retry    RetryPolicy
	// TempDir holds the curated install copy; os.TempDir() when empty.
	TempDir string
}

func (e *Executor) retry() RetryPolicy {
	if e.Retry.Attempts == 0 {
		return DefaultRetryPolicy
	}
	return e.Retry
}

// Run performs list. The first failing step stops the run and every step
// after it is reported as skipped. Generated staging is removed when the run
// ends, whatever the outcome.
func (e *Executor) Run(ctx context.Context, env *registry.Env, list []steps.Step) error {
	ctx, logger := ctxlog.With(ctx, "run", env.Run.ID)

	if err := e.Registry.Validate(ctx, list, steps.KindCleanup); err != nil {
		return err
	}

	var staging *Guard
	if env.Plan.DeleteStagingAfterRun {
		staging = NewGuard(env.Staging(), e.retry())
		defer func() { _ = staging.Release(ctx) }()
	}

	rep := safeReporter{ctx: ctx, next: e.Reporter}
	logger.Info("Starting pipeline.", "module", env.Plan.ModuleName, "version", env.Plan.FullVersion(), "steps", len(list))

	for i, s := range list {
		if cerr := ctx.Err(); cerr != nil {
			skipAll(rep, list[i:])
			return fmt.Errorf("run cancelled before step %s: %w", s.Key, cerr)
		}

		stepLogger := logger.With("step", s.Key)
		stepLogger.Info("▶️ Starting step")
		rep.starting(s)

		start := time.Now()
		if err := e.runStep(ctx, env, s, staging); err != nil {
			stepErr := newStepError(s, err)
			stepLogger.Error("Step failed.", "error", err)
			rep.failed(s, stepErr)
			skipAll(rep, list[i+1:])
			return stepErr
		}

		elapsed := time.Since(start)
		stepLogger.Info("✅ Finished step", "elapsed", elapsed)
		rep.completed(s, elapsed)
	}

	logger.Info("Pipeline finished.", "module", env.Plan.ModuleName)
	return nil
}

func skipAll(rep safeReporter, rest []steps.Step) {
	for _, s := range rest {
		rep.skipped(s)
	}
}

func (e *Executor) runStep(ctx context.Context, env *registry.Env, s steps.Step, staging *Guard) error {
	switch s.Kind {
	case steps.KindCleanup:
		// Failures are logged by the guard and do not fail the step.
		_ = staging.Release(ctx)
		return nil
	case steps.KindInstall:
		return e.runInstall(ctx, env, s)
	}

	return invoke(ctx, e.Registry, env, s)
}

// invoke calls the handler registered for s.Kind. A panicking handler fails
// the step like any other error.
func invoke(ctx context.Context, reg *registry.Registry, env *registry.Env, s steps.Step) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler for %s panicked: %v", s.Kind, r)
		}
	}()

	h, _ := reg.Handler(s.Kind)
	return h.Fn(ctx, env, s)
}

// runInstall hands the install handler a copy of staging filtered through
// the packaging rules and removes the copy afterwards.
func (e *Executor) runInstall(ctx context.Context, env *registry.Env, s steps.Step) error {
	base := e.TempDir
	if base == "" {
		base = os.TempDir()
	}
	dir := filepath.Join(base, fmt.Sprintf("modforge-install-%s", env.Run.ID))

	curated := NewGuard(dir, e.retry())
	defer func() { _ = curated.Release(ctx) }()

	filter := fsutil.Filter{Include: env.Plan.Build.PackageInclude, Exclude: env.Plan.Build.PackageExclude}
	if _, err := fsutil.CopyTree(ctx, env.Staging(), dir, filter); err != nil {
		return fmt.Errorf("preparing install copy: %w", err)
	}

	env.Curated = dir
	defer func() { env.Curated = "" }()

	return invoke(ctx, e.Registry, env, s)
}
