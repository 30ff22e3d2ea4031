package docs

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

// OutputDir is where markdown help lives: docs.output_path, or docs/ in the
// source root.
func OutputDir(env *registry.Env) string {
	dir := env.Plan.Docs.OutputPath
	if dir == "" {
		return filepath.Join(env.Plan.SourceRoot, "docs")
	}
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(env.Plan.SourceRoot, dir)
	}
	return dir
}

func run(ctx context.Context, env *registry.Env, s steps.Step, params ...registry.Param) error {
	logger := ctxlog.FromContext(ctx)
	inv := env.Script(s.Kind, params...)
	logger.Debug("Running documentation tool.", "command", env.Tools.Command(s.Kind))
	if _, err := env.Runner.Run(ctx, inv); err != nil {
		return fmt.Errorf("documentation tool failed: %w", err)
	}
	return nil
}

// OnDocsExtract generates markdown help for commands that have none yet.
func OnDocsExtract(ctx context.Context, env *registry.Env, s steps.Step) error {
	return run(ctx, env, s,
		registry.Param{Name: "Module", Value: env.Plan.ModuleName},
		registry.Param{Name: "ModulePath", Value: env.Staging()},
		registry.Param{Name: "OutputFolder", Value: filepath.Join(OutputDir(env), env.Plan.Docs.Locale)},
		registry.Param{Name: "Locale", Value: env.Plan.Docs.Locale},
	)
}

// OnDocsWrite refreshes existing markdown help from the staged module.
func OnDocsWrite(ctx context.Context, env *registry.Env, s steps.Step) error {
	return run(ctx, env, s,
		registry.Param{Name: "Path", Value: filepath.Join(OutputDir(env), env.Plan.Docs.Locale)},
		registry.Param{Name: "ModulePath", Value: env.Staging()},
	)
}

// OnDocsExternalHelp compiles markdown help into staging/<locale>.
func OnDocsExternalHelp(ctx context.Context, env *registry.Env, s steps.Step) error {
	return run(ctx, env, s,
		registry.Param{Name: "Path", Value: filepath.Join(OutputDir(env), env.Plan.Docs.Locale)},
		registry.Param{Name: "OutputPath", Value: filepath.Join(env.Staging(), env.Plan.Docs.Locale)},
		registry.Param{Name: "Force"},
	)
}

// Register registers the handlers with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterHandler(steps.KindDocsExtract, &registry.RegisteredHandler{Fn: OnDocsExtract, Description: "generate markdown help"})
	r.RegisterHandler(steps.KindDocsWrite, &registry.RegisteredHandler{Fn: OnDocsWrite, Description: "update markdown help"})
	r.RegisterHandler(steps.KindDocsExternalHelp, &registry.RegisteredHandler{Fn: OnDocsExternalHelp, Description: "build external help"})
}
