package manifest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	store "github.com/vk/modforge/internal/manifest"
	"github.com/vk/modforge/internal/plan"
	"github.com/vk/modforge/internal/steps"
	"github.com/vk/modforge/internal/testutil"
	"github.com/vk/modforge/internal/version"
)

func TestOnManifest(t *testing.T) {
	// --- Arrange ---
	env, _ := testutil.NewEnv(t, plan.Plan{
		Version:    "1.2.0",
		Prerelease: "beta1",
		Identity:   "0b1d2c3e-0000-4000-8000-000000000001",
		Author:     "Build Team",
		Build: plan.BuildSettings{
			SourceDirs: []string{"Private", "Public"},
			Cmdlets:    []string{"Get-Native"},
		},
		PackageDependencies: []version.ResolvedDependency{
			{Name: "Foo", MinimumVersion: "2.1.0"},
			{Name: "Bar", RequiredVersion: "1.0.0", Identity: "bar-id"},
		},
	})
	testutil.WriteFiles(t, env.Staging(), map[string]string{
		"Widget.toml":           "name = 'Widget'\nversion = '0.0.1'\ndescription = 'kept'\n",
		"Public/Set-Widget.ps1": "",
		"Public/Get-Widget.ps1": "",
		"Private/helper.ps1":    "",
	})

	// --- Act ---
	err := OnManifest(context.Background(), env, steps.Step{Key: "manifest", Kind: steps.KindManifest})

	// --- Assert ---
	require.NoError(t, err)
	d, err := store.ReadDescriptor(env.StagedManifest())
	require.NoError(t, err)
	assert.Equal(t, store.Descriptor{
		Name:        "Widget",
		Version:     "1.2.0",
		Prerelease:  "beta1",
		Identity:    "0b1d2c3e-0000-4000-8000-000000000001",
		Description: "kept",
		Author:      "Build Team",
		RequiredModules: []store.RequiredModule{
			{Name: "Foo", Version: "2.1.0"},
			{Name: "Bar", RequiredVersion: "1.0.0", Identity: "bar-id"},
		},
		FunctionsToExport: []string{"Get-Widget", "Set-Widget"},
		CmdletsToExport:   []string{"Get-Native"},
	}, d)
}

func TestOnManifest_FailuresAreNotFatal(t *testing.T) {
	env, _ := testutil.NewEnv(t, plan.Plan{})
	testutil.WriteFiles(t, env.Staging(), map[string]string{"Widget.toml": "not = [valid"})

	assert.NoError(t, OnManifest(context.Background(), env, steps.Step{Key: "manifest"}))
}
