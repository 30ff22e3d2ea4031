package validate

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/modforge/internal/plan"
	"github.com/vk/modforge/internal/procexec"
	"github.com/vk/modforge/internal/steps"
	"github.com/vk/modforge/internal/testutil"
	"github.com/vk/modforge/internal/usage"
)

func stagedModule() map[string]string {
	return map[string]string{
		"Widget.toml": "name = 'Widget'\nfunctions_to_export = ['Get-Widget', 'Remove-Widget']\n",
		"Widget.psm1": "#requires -Version 7.2\n#requires -Frobnicate\nfunction Get-Widget { 'w' }\n",
		"Legacy.ps1":  "#Requires -Version 5.1 -Modules Vault\n",
	}
}

func TestOnFileConsistency(t *testing.T) {
	testCases := []struct {
		name     string
		severity usage.Severity
		force    bool
		wantErr  bool
	}{
		{"warning records findings", usage.SeverityWarning, false, false},
		{"error fails", usage.SeverityError, false, true},
		{"force downgrades error", usage.SeverityError, true, false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// --- Arrange ---
			env, _ := testutil.NewEnv(t, plan.Plan{Validation: plan.Validation{FileConsistency: tc.severity, Force: tc.force}})
			testutil.WriteFiles(t, env.Staging(), stagedModule())
			m := &Module{}

			// --- Act ---
			err := m.OnFileConsistency(context.Background(), env, steps.Step{Kind: steps.KindValidateFileConsistency})

			// --- Assert ---
			if tc.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrCheckFailed))
				assert.Contains(t, err.Error(), "exported function Remove-Widget is not defined")
				assert.Contains(t, err.Error(), "Widget.psm1:2: unknown #requires parameter -Frobnicate")
				return
			}
			require.NoError(t, err)
			assert.Len(t, env.Run.Warnings(), 2)
		})
	}
}

func TestOnCompatibility(t *testing.T) {
	env, _ := testutil.NewEnv(t, plan.Plan{
		Build:      plan.BuildSettings{MinimumEngineVersion: "7.0"},
		Validation: plan.Validation{Compatibility: usage.SeverityError},
	})
	testutil.WriteFiles(t, env.Staging(), stagedModule())

	err := (&Module{}).OnCompatibility(context.Background(), env, steps.Step{Kind: steps.KindValidateCompatibility})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "Widget.psm1:1: requires engine 7.2.0, above the minimum 7.0.0")
	assert.NotContains(t, err.Error(), "Legacy.ps1")
}

func TestOnCompatibility_NoMinimum(t *testing.T) {
	env, _ := testutil.NewEnv(t, plan.Plan{Validation: plan.Validation{Compatibility: usage.SeverityError}})
	testutil.WriteFiles(t, env.Staging(), stagedModule())

	assert.NoError(t, (&Module{}).OnCompatibility(context.Background(), env, steps.Step{}))
}

func TestOnAnalyzer(t *testing.T) {
	env, runner := testutil.NewEnv(t, plan.Plan{Validation: plan.Validation{Analyzer: usage.SeverityWarning}})
	runner.Respond = func(procexec.Invocation) (procexec.Result, error) {
		return procexec.Result{}, procexec.NewExitError("pwsh", procexec.Result{ExitCode: 1, Stdout: "::modforge-error::3 rule violations"})
	}

	err := (&Module{}).OnAnalyzer(context.Background(), env, steps.Step{Kind: steps.KindValidateAnalyzer})

	require.NoError(t, err)
	require.Len(t, env.Run.Warnings(), 1)
	assert.Contains(t, env.Run.Warnings()[0], "3 rule violations")
	assert.Contains(t, runner.Scripts()[0], "Invoke-ScriptAnalyzer -Path")
}

func TestOnAnalyzer_TimeoutFailsStep(t *testing.T) {
	// --- Arrange ---
	env, runner := testutil.NewEnv(t, plan.Plan{Validation: plan.Validation{Analyzer: usage.SeverityWarning}})
	runner.Respond = func(procexec.Invocation) (procexec.Result, error) {
		return procexec.Result{}, &procexec.ExitError{Command: "pwsh", ExitCode: -1, TimedOut: true}
	}

	// --- Act ---
	err := (&Module{}).OnAnalyzer(context.Background(), env, steps.Step{Kind: steps.KindValidateAnalyzer})

	// --- Assert ---
	require.Error(t, err)
	var exitErr *procexec.ExitError
	require.True(t, errors.As(err, &exitErr))
	assert.True(t, exitErr.TimedOut)
	assert.Empty(t, env.Run.Warnings(), "a timeout is not a finding")
}
