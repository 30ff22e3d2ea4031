package format

import (
	"context"
	"fmt"

	"github.com/vk/modforge/internal/ctxlog"
	"github.com/vk/modforge/internal/registry"
	"github.com/vk/modforge/internal/steps"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// OnFormat runs the formatter over every staged script.
func OnFormat(ctx context.Context, env *registry.Env, s steps.Step) error {
	params := []registry.Param{
		{Name: "Path", Value: env.Staging()},
		{Name: "Recurse"},
	}
	if env.Plan.Format.SettingsPath != "" {
		params = append(params, registry.Param{Name: "Settings", Value: env.Plan.Format.SettingsPath})
	}

	ctxlog.FromContext(ctx).Info("Formatting staged scripts.")
	if _, err := env.Runner.Run(ctx, env.Script(s.Kind, params...)); err != nil {
		return fmt.Errorf("formatter failed: %w", err)
	}
	return nil
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterHandler(steps.KindFormat, &registry.RegisteredHandler{Fn: OnFormat, Description: "format staged scripts"})
}
