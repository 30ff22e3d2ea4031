package sign

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/vk/modforge/internal/ctxlog"
	"github.com/vk/modforge/internal/fsutil"
	"github.com/vk/modforge/internal/registry"
	"github.com/vk/modforge/internal/steps"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// OnSign signs every staged file matching sign.include, one at a time.
func OnSign(ctx context.Context, env *registry.Env, s steps.Step) error {
	logger := ctxlog.FromContext(ctx)
	cfg := env.Plan.Sign

	files, err := fsutil.Walk(env.Staging(), fsutil.Filter{Include: cfg.Include})
	if err != nil {
		return fmt.Errorf("listing files to sign: %w", err)
	}
	if len(files) == 0 {
		logger.Info("No files to sign.", "include", cfg.Include)
		return nil
	}

	for _, rel := range files {
		params := []registry.Param{{Name: "FilePath", Value: filepath.Join(env.Staging(), filepath.FromSlash(rel))}}
		if cfg.CertificateThumbprint != "" {
			params = append(params, registry.Param{Name: "CertificateThumbprint", Value: cfg.CertificateThumbprint})
		}
		if cfg.TimestampServer != "" {
			params = append(params, registry.Param{Name: "TimestampServer", Value: cfg.TimestampServer})
		}
		if _, err := env.Runner.Run(ctx, env.Script(s.Kind, params...)); err != nil {
			return fmt.Errorf("signing %s: %w", rel, err)
		}
	}

	logger.Info("Signed files.", "count", len(files))
	return nil
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterHandler(steps.KindSign, &registry.RegisteredHandler{Fn: OnSign, Description: "sign staged files"})
}
