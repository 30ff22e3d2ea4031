package install

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/modforge/internal/metadata"
	"github.com/vk/modforge/internal/plan"
	"github.com/vk/modforge/internal/steps"
	"github.com/vk/modforge/internal/testutil"
)

func TestOnInstall(t *testing.T) {
	// --- Arrange ---
	root := t.TempDir()
	for _, v := range []string{"0.8.0", "0.9.0", "1.0.0", "notes"} {
		require.NoError(t, os.MkdirAll(filepath.Join(root, "Widget", v), 0o755))
	}
	env, _ := testutil.NewEnv(t, plan.Plan{
		Version: "1.1.0",
		Install: plan.Install{Enabled: true, KeepVersions: 2},
	})
	env.Local = metadata.NewLocal(root)
	env.Curated = t.TempDir()
	testutil.WriteFiles(t, env.Curated, map[string]string{"Widget.toml": "name = 'Widget'\nversion = '1.1.0'\n", "Widget.psm1": ""})

	// --- Act ---
	err := OnInstall(context.Background(), env, steps.Step{Key: "install", Kind: steps.KindInstall})

	// --- Assert ---
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(root, "Widget", "1.1.0", "Widget.psm1"))
	assert.DirExists(t, filepath.Join(root, "Widget", "1.0.0"))
	assert.NoDirExists(t, filepath.Join(root, "Widget", "0.9.0"))
	assert.NoDirExists(t, filepath.Join(root, "Widget", "0.8.0"))
	assert.DirExists(t, filepath.Join(root, "Widget", "notes"))

	versions := env.Local.Versions(context.Background(), "Widget")
	require.Len(t, versions, 1)
	assert.Equal(t, "1.1.0", versions[0].Version.String())
}

func TestOnInstall_NeedsRootsAndCopy(t *testing.T) {
	env, _ := testutil.NewEnv(t, plan.Plan{})
	assert.ErrorContains(t, OnInstall(context.Background(), env, steps.Step{}), "curated")

	env.Curated = t.TempDir()
	assert.ErrorContains(t, OnInstall(context.Background(), env, steps.Step{}), "install roots")
}

func TestPrune_KeepsCurrent(t *testing.T) {
	dir := t.TempDir()
	for _, v := range []string{"1.0.0", "2.0.0", "3.0.0"} {
		require.NoError(t, os.MkdirAll(filepath.Join(dir, v), 0o755))
	}

	removed, err := Prune(dir, 1, "1.0.0")

	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "2.0.0")}, removed)
}
