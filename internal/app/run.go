package app

import (
	"context"
	"fmt"
	"io"

	"github.com/vk/modforge/internal/config"
	"github.com/vk/modforge/internal/ctxlog"
	"github.com/vk/modforge/internal/pipeline"
	"github.com/vk/modforge/internal/plan"
	"github.com/vk/modforge/internal/registry"
	"github.com/vk/modforge/internal/report"
	"github.com/vk/modforge/internal/steps"
	"github.com/vk/modforge/internal/version"
	"gopkg.in/yaml.v3"
)

// Run executes the build once, or keeps rebuilding on source changes when
// the config asks for watch mode.
func (a *App) Run(ctx context.Context) error {
	ctx = a.context(ctx)
	if a.config.Watch {
		return a.Watch(ctx)
	}
	_, err := a.Build(ctx)
	return err
}

// Build resolves the plan and runs every step it asks for. The returned plan
// is the one the run used, and is zero when resolution failed.
func (a *App) Build(ctx context.Context) (plan.Plan, error) {
	ctx = a.context(ctx)
	rc := plan.NewRunContext()
	ctx, logger := ctxlog.With(ctx, "run_id", rc.ID)
	logger.Debug("App.Build method started.")

	p, list, err := a.prepare(ctx, rc)
	if err != nil {
		return plan.Plan{}, err
	}

	env := &registry.Env{
		Plan:     p,
		Run:      rc,
		Runner:   a.runner,
		Manifest: a.manifest,
		Local:    a.local,
		Tools:    registry.Tools{Shell: a.config.Shell},
	}
	if p.Build.ResolveRemote {
		env.Remote = rc.Remote(a.remote)
	}

	exec := &pipeline.Executor{
		Registry: a.registry,
		Reporter: report.Multi{report.NewConsole(a.outW), report.NewLog(ctx)},
		TempDir:  a.tempDir,
	}

	logger.Info("🚀 Starting build...", "module", p.ModuleName, "version", p.FullVersion())
	if err := exec.Run(ctx, env, list); err != nil {
		return p, fmt.Errorf("build failed: %w", err)
	}

	warnings := rc.Warnings()
	if len(warnings) > 0 {
		logger.Warn("Build finished with warnings.", "count", len(warnings))
	}
	logger.Info("🏁 Build finished.", "module", p.ModuleName, "version", p.FullVersion())
	return p, nil
}

// Preview is what a run would do, without doing it.
type Preview struct {
	Plan  plan.Plan    `yaml:"plan"`
	Steps []steps.Step `yaml:"steps"`
}

// Preview resolves the plan and step list without running anything.
func (a *App) Preview(ctx context.Context) (*Preview, error) {
	ctx = a.context(ctx)
	p, list, err := a.prepare(ctx, plan.NewRunContext())
	if err != nil {
		return nil, err
	}
	return &Preview{Plan: p, Steps: list}, nil
}

// WritePreview writes the preview to w as YAML.
func (a *App) WritePreview(ctx context.Context, w io.Writer) error {
	pv, err := a.Preview(ctx)
	if err != nil {
		return err
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(pv); err != nil {
		return fmt.Errorf("failed to render plan: %w", err)
	}
	return enc.Close()
}

func (a *App) prepare(ctx context.Context, rc *plan.RunContext) (plan.Plan, []steps.Step, error) {
	logger := ctxlog.FromContext(ctx)

	segments, err := a.loader.Load(ctx, a.config.Paths...)
	if err != nil {
		return plan.Plan{}, nil, fmt.Errorf("failed to load build definition: %w", err)
	}
	logger.Debug("Build definition loaded.", "segments", len(segments))

	resolver := &plan.Resolver{
		Manifest: a.manifest,
		Local:    a.local,
		Remote:   version.RemoteLookup(a.remote),
		TempDir:  a.tempDir,
	}
	p, err := resolver.Resolve(ctx, rc, a.input(segments))
	if err != nil {
		return plan.Plan{}, nil, fmt.Errorf("failed to resolve plan: %w", err)
	}

	list, err := steps.Build(p)
	if err != nil {
		return plan.Plan{}, nil, fmt.Errorf("failed to build step list: %w", err)
	}
	logger.Debug("Step list built.", "steps", len(list))
	return p, list, nil
}

// input puts the command-line overrides after the definition's own segments
// so they win.
func (a *App) input(segments []config.Segment) plan.Input {
	var overrides []config.Segment
	if a.config.ModuleName != "" {
		overrides = append(overrides, config.ManifestSegment{Name: config.Ptr(a.config.ModuleName)})
	}
	if a.config.StagingPath != "" || a.config.Remote != nil {
		b := config.BuildSegment{ResolveRemote: a.config.Remote}
		if a.config.StagingPath != "" {
			b.StagingPath = config.Ptr(a.config.StagingPath)
		}
		overrides = append(overrides, b)
	}
	return plan.Input{
		SourceRoot: a.config.sourceRoot(),
		Segments:   append(append([]config.Segment(nil), segments...), overrides...),
	}
}
