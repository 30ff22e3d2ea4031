package testutil

import (
	"testing"
	"time"

	"github.com/vk/modforge/internal/manifest"
	"github.com/vk/modforge/internal/plan"
	"github.com/vk/modforge/internal/registry"
)

// NewEnv returns a handler environment for p backed by a FakeRunner. Empty
// source root and staging paths are replaced by fresh temp dirs.
func NewEnv(t *testing.T, p plan.Plan) (*registry.Env, *FakeRunner) {
	t.Helper()
	if p.ModuleName == "" {
		p.ModuleName = "Widget"
	}
	if p.Version == "" {
		p.Version = "1.0.0"
	}
	if p.SourceRoot == "" {
		p.SourceRoot = t.TempDir()
	}
	if p.Build.StagingPath == "" {
		p.Build.StagingPath = t.TempDir()
	}
	if p.Build.Timeout == 0 {
		p.Build.Timeout = time.Minute
	}
	runner := &FakeRunner{}
	return &registry.Env{
		Plan:     p,
		Run:      plan.NewRunContextWithID("test-run"),
		Runner:   runner,
		Manifest: manifest.NewStore(),
	}, runner
}
