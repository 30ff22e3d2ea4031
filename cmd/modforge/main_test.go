package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/modforge/internal/cli"
)

func writeModule(t *testing.T, definition string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "Public"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Public", "Get-Widget.ps1"), []byte("function Get-Widget { 'widget' }\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "build.hcl"), []byte(definition), 0o644))
	return dir
}

func exitCode(t *testing.T, err error) int {
	t.Helper()
	var exitErr *cli.ExitError
	require.True(t, errors.As(err, &exitErr), "expected an ExitError, got %v", err)
	return exitErr.Code
}

func TestRun_ShouldExit(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	out := &bytes.Buffer{}

	// --- Act ---
	err := run(context.Background(), out, []string{"-h"})

	// --- Assert ---
	require.NoError(t, err, "run() should return a nil error when shouldExit is true")
	require.Contains(t, out.String(), "Usage:", "Expected help text to be printed to the output buffer")
}

func TestRun_ParseError(t *testing.T) {
	t.Parallel()

	err := run(context.Background(), &bytes.Buffer{}, []string{"build", "--this-is-not-a-valid-flag"})

	require.Error(t, err)
	assert.Equal(t, 2, exitCode(t, err))
	assert.Contains(t, err.Error(), "unknown flag: --this-is-not-a-valid-flag")
}

func TestRun_InvalidDefinition(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	dir := writeModule(t, `
		manifest {
			name = "Widget"
		// Missing closing brace here
	`)

	// --- Act ---
	err := run(context.Background(), &bytes.Buffer{}, []string{"build", dir})

	// --- Assert ---
	require.Error(t, err)
	assert.Equal(t, 1, exitCode(t, err))
	assert.Contains(t, err.Error(), "invalid build definition")
}

func TestRun_Plan(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	dir := writeModule(t, `
manifest {
  name    = "Widget"
  version = "2.0.0"
}
artefact "zip" {
  type = "zip"
}
`)
	out := &bytes.Buffer{}

	// --- Act ---
	err := run(context.Background(), out, []string{"plan", dir, "--log-level", "error"})

	// --- Assert ---
	require.NoError(t, err)
	assert.Contains(t, out.String(), "module_name: Widget")
	assert.Contains(t, out.String(), "- key: artefact:zip")
}

func TestRun_Build(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	dir := writeModule(t, `
manifest {
  name    = "Widget"
  version = "2.0.0"
}
`)
	staging := filepath.Join(t.TempDir(), "staging")
	out := &bytes.Buffer{}

	// --- Act ---
	err := run(context.Background(), out, []string{"build", dir, "--staging", staging})

	// --- Assert ---
	require.NoError(t, err)
	assert.Contains(t, out.String(), "✓ manifest")
	assert.FileExists(t, filepath.Join(staging, "Public", "Get-Widget.ps1"))
	assert.FileExists(t, filepath.Join(staging, "Widget.toml"))
}
