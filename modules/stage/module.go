package stage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/vk/modforge/internal/ctxlog"
	"github.com/vk/modforge/internal/fsutil"
	"github.com/vk/modforge/internal/manifest"
	"github.com/vk/modforge/internal/procexec"
	"github.com/vk/modforge/internal/registry"
	"github.com/vk/modforge/internal/steps"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// OnStage copies the module sources into staging: every source dir, the
// root script module, the manifest and the extra copy globs.
func OnStage(ctx context.Context, env *registry.Env, _ steps.Step) error {
	p := env.Plan
	logger := ctxlog.FromContext(ctx).With("staging", env.Staging())

	if p.StagingWasGenerated {
		if err := os.RemoveAll(env.Staging()); err != nil {
			return fmt.Errorf("failed to clear staging: %w", err)
		}
	}
	if err := os.MkdirAll(env.Staging(), 0o755); err != nil {
		return fmt.Errorf("failed to create staging: %w", err)
	}

	total := 0
	for _, dir := range p.Build.SourceDirs {
		src := filepath.Join(p.SourceRoot, dir)
		if _, err := os.Stat(src); errors.Is(err, os.ErrNotExist) {
			logger.Debug("Source dir does not exist, skipping.", "dir", dir)
			continue
		}
		copied, err := fsutil.CopyTree(ctx, src, filepath.Join(env.Staging(), dir), nil)
		if err != nil {
			return err
		}
		total += len(copied)
	}

	if len(p.Build.Copy) > 0 {
		copied, err := fsutil.CopyTree(ctx, p.SourceRoot, env.Staging(), fsutil.Filter{Include: p.Build.Copy})
		if err != nil {
			return err
		}
		total += len(copied)
	}

	rootModule := filepath.Join(p.SourceRoot, p.ModuleName+".psm1")
	if _, err := os.Stat(rootModule); err == nil {
		if err := fsutil.CopyFile(rootModule, filepath.Join(env.Staging(), p.ModuleName+".psm1")); err != nil {
			return err
		}
		total++
	}

	if err := stageManifest(env); err != nil {
		return err
	}

	logger.Info("Staged module sources.", "files", total)
	return nil
}

// stageManifest copies the module manifest into staging, or writes a
// minimal one when the source has none.
func stageManifest(env *registry.Env) error {
	src := env.Plan.ManifestPath
	if _, err := os.Stat(src); err == nil {
		return fsutil.CopyFile(src, env.StagedManifest())
	}
	return manifest.WriteDescriptor(env.StagedManifest(), manifest.Descriptor{
		Name:    env.Plan.ModuleName,
		Version: env.Plan.Version,
	})
}

// OnBuild compiles the binary project into staging/bin.
func OnBuild(ctx context.Context, env *registry.Env, _ steps.Step) error {
	p := env.Plan
	logger := ctxlog.FromContext(ctx)

	if p.Build.BinaryProject == "" {
		logger.Info("No binary project configured, skipping compilation.")
		return nil
	}

	project := p.Build.BinaryProject
	if !filepath.IsAbs(project) {
		project = filepath.Join(p.SourceRoot, project)
	}
	args := []string{"build", project, "--configuration", p.Build.Configuration, "--output", filepath.Join(env.Staging(), "bin")}
	if p.Build.Framework != "" {
		args = append(args, "--framework", p.Build.Framework)
	}

	inv := procexec.Invocation{
		Name:    env.Tools.Command(steps.KindBuild),
		Args:    args,
		Dir:     p.SourceRoot,
		Timeout: p.Build.Timeout,
	}

	logger.Info("Compiling binary project.", "project", project, "configuration", p.Build.Configuration)
	if _, err := env.Runner.Run(ctx, inv); err != nil {
		return fmt.Errorf("binary build failed: %w", err)
	}
	return nil
}

// Register registers the handlers with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterHandler(steps.KindStage, &registry.RegisteredHandler{
		Fn:          OnStage,
		Description: "copy module sources into staging",
	})
	r.RegisterHandler(steps.KindBuild, &registry.RegisteredHandler{
		Fn:          OnBuild,
		Description: "compile the binary project",
	})
}
