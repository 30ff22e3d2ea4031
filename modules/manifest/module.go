package manifest

import (
	"context"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/vk/modforge/internal/ctxlog"
	"github.com/vk/modforge/internal/fsutil"
	"github.com/vk/modforge/internal/registry"
	"github.com/vk/modforge/internal/steps"
	"github.com/vk/modforge/internal/version"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

type patch struct {
	key   string
	value any
}

// OnManifest writes the resolved version, identity, dependencies and exports
// into the staged manifest. A key that cannot be written is logged and the
// remaining keys are still patched.
func OnManifest(ctx context.Context, env *registry.Env, _ steps.Step) error {
	p := env.Plan
	file := env.StagedManifest()
	logger := ctxlog.FromContext(ctx).With("manifest", file)

	patches := []patch{
		{"name", p.ModuleName},
		{"version", p.Version},
		{"prerelease", p.Prerelease},
	}
	if p.Identity != "" {
		patches = append(patches, patch{"identity", p.Identity})
	}
	if p.Description != "" {
		patches = append(patches, patch{"description", p.Description})
	}
	if p.Author != "" {
		patches = append(patches, patch{"author", p.Author})
	}
	patches = append(patches,
		patch{"required_modules", RequiredModules(p.PackageDependencies)},
		patch{"functions_to_export", publicFunctions(ctx, env)},
		patch{"cmdlets_to_export", nonNil(p.Build.Cmdlets)},
	)

	failed := 0
	for _, pt := range patches {
		if err := env.Manifest.Write(file, pt.key, pt.value); err != nil {
			failed++
			logger.Warn("Failed to patch manifest key.", "key", pt.key, "error", err)
		}
	}
	logger.Info("Patched manifest.", "version", p.FullVersion(), "keys", len(patches)-failed, "failed", failed)
	return nil
}

// RequiredModules renders dependencies as required_modules entries.
func RequiredModules(deps []version.ResolvedDependency) []map[string]any {
	out := make([]map[string]any, 0, len(deps))
	for _, d := range deps {
		entry := map[string]any{"name": d.Name}
		set := func(k, v string) {
			if v != "" {
				entry[k] = v
			}
		}
		set("version", d.MinimumVersion)
		set("required_version", d.RequiredVersion)
		set("maximum_version", d.MaximumVersion)
		set("identity", d.Identity)
		out = append(out, entry)
	}
	return out
}

// publicFunctions lists the script files of the public dirs by base name.
func publicFunctions(ctx context.Context, env *registry.Env) []string {
	logger := ctxlog.FromContext(ctx)
	out := []string{}
	for _, dir := range env.PublicDirs() {
		files, err := fsutil.Walk(filepath.Join(env.Staging(), dir), fsutil.Filter{Include: []string{"**/*.ps1"}})
		if err != nil {
			logger.Debug("Public dir not readable.", "dir", dir, "error", err)
			continue
		}
		for _, f := range files {
			out = append(out, strings.TrimSuffix(path.Base(f), ".ps1"))
		}
	}
	sort.Strings(out)
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterHandler(steps.KindManifest, &registry.RegisteredHandler{
		Fn:          OnManifest,
		Description: "patch the staged manifest",
	})
}
