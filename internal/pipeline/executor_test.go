package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/modforge/internal/plan"
	"github.com/vk/modforge/internal/procexec"
	"github.com/vk/modforge/internal/registry"
	"github.com/vk/modforge/internal/steps"
	"github.com/vk/modforge/internal/testutil"
)

func newEnv(t *testing.T, staging string) *registry.Env {
	t.Helper()
	return &registry.Env{
		Plan: plan.Plan{
			ModuleName: "Widget",
			Version:    "1.0.0",
			Build:      plan.BuildSettings{StagingPath: staging},
		},
		Run: plan.NewRunContextWithID("run-1"),
	}
}

func list(kinds ...steps.Kind) []steps.Step {
	out := make([]steps.Step, len(kinds))
	for i, k := range kinds {
		out[i] = steps.Step{Key: string(k), Kind: k}
	}
	return out
}

func TestRun_FailureSkipsRemainingSteps(t *testing.T) {
	// --- Arrange ---
	ctx, logs := testutil.LoggerContext(context.Background())
	reg := registry.New()
	reg.RegisterModules(
		&testutil.NoOpModule{Kinds: []steps.Kind{steps.KindStage, steps.KindBuild, steps.KindFormat, steps.KindTests}},
		&testutil.SimpleModule{Kind: steps.KindManifest, Fn: func(context.Context, *registry.Env, steps.Step) error {
			return errors.New("manifest is read-only")
		}},
	)
	rep := &testutil.RecordingReporter{}
	exec := &Executor{Registry: reg, Reporter: rep}

	// --- Act ---
	err := exec.Run(ctx, newEnv(t, t.TempDir()), list(
		steps.KindStage, steps.KindBuild, steps.KindManifest, steps.KindFormat, steps.KindTests,
	))

	// --- Assert ---
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStepExecution))
	var stepErr *StepError
	require.True(t, errors.As(err, &stepErr))
	assert.Equal(t, "manifest", stepErr.Key)
	assert.Equal(t, steps.KindManifest, stepErr.Kind)

	assert.Equal(t, []testutil.Event{
		{Type: "starting", Key: "stage"},
		{Type: "completed", Key: "stage"},
		{Type: "starting", Key: "build"},
		{Type: "completed", Key: "build"},
		{Type: "starting", Key: "manifest"},
		{Type: "failed", Key: "manifest"},
		{Type: "skipped", Key: "format"},
		{Type: "skipped", Key: "tests"},
	}, rep.Events())
	testutil.AssertStepRan(t, logs.String(), "build")
}

func TestRun_HandlerPanicFailsStep(t *testing.T) {
	// --- Arrange ---
	reg := registry.New()
	reg.RegisterModules(
		&testutil.NoOpModule{Kinds: []steps.Kind{steps.KindStage, steps.KindManifest}},
		&testutil.SimpleModule{Kind: steps.KindBuild, Fn: func(context.Context, *registry.Env, steps.Step) error {
			var counts map[string]int
			counts["files"]++
			return nil
		}},
	)
	rep := &testutil.RecordingReporter{}
	exec := &Executor{Registry: reg, Reporter: rep}

	// --- Act ---
	var err error
	require.NotPanics(t, func() {
		err = exec.Run(context.Background(), newEnv(t, t.TempDir()), list(steps.KindStage, steps.KindBuild, steps.KindManifest))
	})

	// --- Assert ---
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStepExecution))
	assert.Contains(t, err.Error(), "panicked")
	assert.Equal(t, []testutil.Event{
		{Type: "starting", Key: "stage"},
		{Type: "completed", Key: "stage"},
		{Type: "starting", Key: "build"},
		{Type: "failed", Key: "build"},
		{Type: "skipped", Key: "manifest"},
	}, rep.Events())
}

func TestRun_RegistryValidatedBeforeAnyStep(t *testing.T) {
	reg := registry.New()
	reg.RegisterModules(&testutil.NoOpModule{Kinds: []steps.Kind{steps.KindStage}})
	rep := &testutil.RecordingReporter{}

	err := (&Executor{Registry: reg, Reporter: rep}).Run(context.Background(), newEnv(t, t.TempDir()),
		list(steps.KindStage, steps.KindSign, steps.KindCleanup))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "sign")
	assert.False(t, errors.Is(err, ErrStepExecution))
	assert.Empty(t, rep.Events())
}

type panickingReporter struct{ testutil.RecordingReporter }

func (p *panickingReporter) StepStarting(s steps.Step) {
	p.RecordingReporter.StepStarting(s)
	panic("boom")
}

func TestRun_ReporterPanicIsRecovered(t *testing.T) {
	ctx, logs := testutil.LoggerContext(context.Background())
	reg := registry.New()
	reg.RegisterModules(&testutil.NoOpModule{Kinds: []steps.Kind{steps.KindStage, steps.KindBuild}})
	rep := &panickingReporter{}

	err := (&Executor{Registry: reg, Reporter: rep}).Run(ctx, newEnv(t, t.TempDir()), list(steps.KindStage, steps.KindBuild))

	require.NoError(t, err)
	assert.Len(t, rep.Events(), 4)
	assert.Contains(t, logs.String(), "Reporter panicked.")
}

func TestRun_StepErrorCarriesProcessOutput(t *testing.T) {
	reg := registry.New()
	reg.RegisterModules(&testutil.SimpleModule{Kind: steps.KindTests, Fn: func(context.Context, *registry.Env, steps.Step) error {
		return procexec.NewExitError("pwsh", procexec.Result{ExitCode: 4, Stdout: "::modforge-error::2 tests failed", Stderr: "trace"})
	}})

	err := (&Executor{Registry: reg}).Run(context.Background(), newEnv(t, t.TempDir()), list(steps.KindTests))

	var stepErr *StepError
	require.True(t, errors.As(err, &stepErr))
	assert.Equal(t, 4, stepErr.ExitCode)
	assert.Equal(t, "trace", stepErr.Stderr)
	assert.Contains(t, err.Error(), "2 tests failed")
}

func TestRun_GeneratedStagingIsRemoved(t *testing.T) {
	for _, fail := range []bool{false, true} {
		t.Run(map[bool]string{false: "success", true: "failure"}[fail], func(t *testing.T) {
			staging := filepath.Join(t.TempDir(), "staging")
			require.NoError(t, os.MkdirAll(staging, 0o755))
			env := newEnv(t, staging)
			env.Plan.StagingWasGenerated = true
			env.Plan.DeleteStagingAfterRun = true

			reg := registry.New()
			reg.RegisterModules(&testutil.SimpleModule{Kind: steps.KindStage, Fn: func(context.Context, *registry.Env, steps.Step) error {
				if fail {
					return errors.New("copy failed")
				}
				return nil
			}})

			err := (&Executor{Registry: reg}).Run(context.Background(), env, list(steps.KindStage, steps.KindCleanup))

			assert.Equal(t, fail, err != nil)
			assert.NoDirExists(t, staging)
		})
	}
}

func TestRun_InstallWorksFromCuratedCopy(t *testing.T) {
	// --- Arrange ---
	staging := t.TempDir()
	testutil.WriteFiles(t, staging, map[string]string{
		"Widget.toml":       "name = 'Widget'",
		"Widget.psm1":       "",
		"tests/a.Tests.ps1": "",
	})
	env := newEnv(t, staging)
	env.Plan.Build.PackageExclude = []string{"tests/**"}

	var seen []string
	var curated string
	reg := registry.New()
	reg.RegisterModules(&testutil.SimpleModule{Kind: steps.KindInstall, Fn: func(_ context.Context, env *registry.Env, _ steps.Step) error {
		curated = env.Curated
		entries, err := os.ReadDir(env.Curated)
		for _, e := range entries {
			seen = append(seen, e.Name())
		}
		return err
	}})
	tmp := t.TempDir()

	// --- Act ---
	err := (&Executor{Registry: reg, TempDir: tmp}).Run(context.Background(), env, list(steps.KindInstall))

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(tmp, "modforge-install-run-1"), curated)
	assert.Equal(t, []string{"Widget.psm1", "Widget.toml"}, seen)
	assert.NoDirExists(t, curated)
	assert.Empty(t, env.Curated)
	assert.DirExists(t, staging)
}

func TestRun_CancelledBeforeFirstStep(t *testing.T) {
	reg := registry.New()
	reg.RegisterModules(&testutil.NoOpModule{Kinds: []steps.Kind{steps.KindStage}})
	rep := &testutil.RecordingReporter{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := (&Executor{Registry: reg, Reporter: rep}).Run(ctx, newEnv(t, t.TempDir()), list(steps.KindStage))

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []testutil.Event{{Type: "skipped", Key: "stage"}}, rep.Events())
}

func TestGuard(t *testing.T) {
	policy := RetryPolicy{Attempts: 3, Initial: 10 * time.Millisecond, Factor: 2, Max: 15 * time.Millisecond}

	t.Run("retries then succeeds", func(t *testing.T) {
		g := NewGuard("/x", policy)
		calls := 0
		var slept []time.Duration
		g.remove = func(string) error {
			calls++
			if calls < 3 {
				return errors.New("busy")
			}
			return nil
		}
		g.sleep = func(d time.Duration) { slept = append(slept, d) }

		require.NoError(t, g.Release(context.Background()))
		require.NoError(t, g.Release(context.Background()))
		assert.Equal(t, 3, calls)
		assert.Equal(t, []time.Duration{10 * time.Millisecond, 15 * time.Millisecond}, slept)
	})

	t.Run("gives up", func(t *testing.T) {
		g := NewGuard("/x", policy)
		g.remove = func(string) error { return errors.New("busy") }
		g.sleep = func(time.Duration) {}

		err := g.Release(context.Background())

		assert.ErrorIs(t, err, ErrCleanup)
		var cerr *CleanupError
		require.ErrorAs(t, err, &cerr)
		assert.Equal(t, 3, cerr.Attempts)
	})

	t.Run("nil guard", func(t *testing.T) {
		var g *Guard
		assert.NoError(t, g.Release(context.Background()))
	})
}

func TestRetryPolicyDelay(t *testing.T) {
	p := DefaultRetryPolicy
	assert.Equal(t, 100*time.Millisecond, p.Delay(1))
	assert.Equal(t, 200*time.Millisecond, p.Delay(2))
	assert.Equal(t, 1600*time.Millisecond, p.Delay(5))
	assert.Equal(t, 2*time.Second, p.Delay(6))
}
