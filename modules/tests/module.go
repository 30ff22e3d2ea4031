package tests

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/vk/modforge/internal/ctxlog"
	"github.com/vk/modforge/internal/registry"
	"github.com/vk/modforge/internal/steps"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// OnTests runs the test suite against the staged module.
func OnTests(ctx context.Context, env *registry.Env, s steps.Step) error {
	cfg := env.Plan.Tests
	path := cfg.Path
	if path == "" {
		path = "tests"
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(env.Plan.SourceRoot, path)
	}

	params := []registry.Param{
		{Name: "Path", Value: path},
		{Name: "ModulePath", Value: env.Staging()},
	}
	if len(cfg.Tags) > 0 {
		params = append(params, registry.Param{Name: "Tag", List: cfg.Tags})
	}
	if len(cfg.ExcludeTags) > 0 {
		params = append(params, registry.Param{Name: "ExcludeTag", List: cfg.ExcludeTags})
	}

	ctxlog.FromContext(ctx).Info("Running tests.", "path", path)
	if _, err := env.Runner.Run(ctx, env.Script(s.Kind, params...)); err != nil {
		return fmt.Errorf("tests failed: %w", err)
	}
	return nil
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterHandler(steps.KindTests, &registry.RegisteredHandler{Fn: OnTests, Description: "run the test suite"})
}
