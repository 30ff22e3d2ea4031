package merge

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/vk/modforge/internal/ctxlog"
	"github.com/vk/modforge/internal/fsutil"
	"github.com/vk/modforge/internal/merge"
	"github.com/vk/modforge/internal/registry"
	"github.com/vk/modforge/internal/steps"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// OnMerge folds the staged source dirs into a single script module, removes
// the merged dirs from staging and records the exports in the staged
// manifest.
func OnMerge(ctx context.Context, env *registry.Env, _ steps.Step) error {
	p := env.Plan
	logger := ctxlog.FromContext(ctx)

	files, err := sourceFiles(env)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		logger.Warn("No script files to merge.", "dirs", p.Build.SourceDirs)
	}

	output := p.Build.MergeFile
	if output == "" {
		output = p.ModuleName + ".psm1"
	}

	req := merge.Request{
		ModuleName: p.ModuleName,
		Files:      files,
		Root:       env.Staging(),
		PublicDirs: env.PublicDirs(),
		Required:   dependencyNames(env),
		Cmdlets:    p.Build.Cmdlets,
		Settings: merge.Settings{
			Approved:          p.Merge.Approved,
			InlineModules:     p.Merge.InlineModules,
			IgnoreModules:     p.Merge.IgnoreModules,
			IgnoreCommands:    p.Merge.IgnoreCommands,
			BuiltinModules:    p.Merge.BuiltinModules,
			BuiltinCommands:   p.Merge.BuiltinCommands,
			DirectivePrefixes: p.Merge.DirectivePrefixes,
		},
		Severity:   p.Validation.MergeCommands,
		Force:      p.Validation.Force,
		OutputPath: filepath.Join(env.Staging(), output),
	}

	m := &merge.Merger{}
	if env.Local != nil {
		m.Index, m.Dependencies, m.Definitions = env.Local, env.Local, env.Local
	}
	outcome, err := m.Run(ctx, req)
	if err != nil {
		return err
	}
	for _, w := range outcome.Report.Warnings {
		env.Run.Warn("merge: " + w.Error())
	}

	for _, dir := range p.Build.SourceDirs {
		if err := os.RemoveAll(filepath.Join(env.Staging(), dir)); err != nil {
			return fmt.Errorf("failed to remove merged dir %s: %w", dir, err)
		}
	}

	exports := outcome.Result.Export.Normalized()
	manifestPath := env.StagedManifest()
	for key, value := range map[string][]string{
		"functions_to_export": exports.Functions,
		"cmdlets_to_export":   exports.Cmdlets,
		"aliases_to_export":   exports.Aliases,
	} {
		if value == nil {
			value = []string{}
		}
		if err := env.Manifest.Write(manifestPath, key, value); err != nil {
			logger.Warn("Failed to record exports in manifest.", "key", key, "error", err)
		}
	}

	logger.Info("Merged module.", "output", output, "files", len(files), "functions", len(exports.Functions))
	return nil
}

// sourceFiles lists staged scripts dir by dir, in source dir order.
func sourceFiles(env *registry.Env) ([]string, error) {
	var out []string
	for _, dir := range env.Plan.Build.SourceDirs {
		root := filepath.Join(env.Staging(), dir)
		if _, err := os.Stat(root); os.IsNotExist(err) {
			continue
		}
		rel, err := fsutil.Walk(root, fsutil.Filter{Include: []string{"**/*.ps1"}})
		if err != nil {
			return nil, fmt.Errorf("listing %s: %w", root, err)
		}
		for _, r := range rel {
			out = append(out, filepath.Join(root, filepath.FromSlash(r)))
		}
	}
	return out, nil
}

// dependencyNames lists every declared dependency, packaged or not; merging
// happens at build time.
func dependencyNames(env *registry.Env) []string {
	var out []string
	for _, d := range env.Plan.BuildDependencies {
		out = append(out, d.Name)
	}
	return out
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterHandler(steps.KindMerge, &registry.RegisteredHandler{
		Fn:          OnMerge,
		Description: "merge source dirs into one script module",
	})
}
