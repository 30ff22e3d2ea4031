package install

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/vk/modforge/internal/ctxlog"
	"github.com/vk/modforge/internal/fsutil"
	"github.com/vk/modforge/internal/registry"
	"github.com/vk/modforge/internal/steps"
	"github.com/vk/modforge/internal/version"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// OnInstall copies the curated module into <root>/<Name>/<Version> for each
// install root and prunes older versions beyond install.keep_versions.
func OnInstall(ctx context.Context, env *registry.Env, _ steps.Step) error {
	p := env.Plan
	logger := ctxlog.FromContext(ctx)

	if env.Curated == "" {
		return fmt.Errorf("install has no curated copy to work from")
	}

	roots := p.Install.Roots
	if len(roots) == 0 && env.Local != nil {
		roots = env.Local.Roots
	}
	if len(roots) == 0 {
		return fmt.Errorf("no install roots configured")
	}

	for _, root := range roots {
		dest := filepath.Join(root, p.ModuleName, p.Version)
		if err := os.RemoveAll(dest); err != nil {
			return fmt.Errorf("failed to replace %s: %w", dest, err)
		}
		files, err := fsutil.CopyTree(ctx, env.Curated, dest, nil)
		if err != nil {
			return err
		}
		logger.Info("Installed module.", "path", dest, "files", len(files))

		if p.Install.KeepVersions > 0 {
			removed, err := Prune(filepath.Join(root, p.ModuleName), p.Install.KeepVersions, p.Version)
			if err != nil {
				logger.Warn("Failed to prune old versions.", "root", root, "error", err)
			}
			for _, r := range removed {
				logger.Info("Removed old version.", "path", r)
			}
		}
	}

	if env.Local != nil {
		env.Local.Invalidate()
	}
	return nil
}

// Prune keeps the newest keep version directories under moduleDir and
// removes the rest. The current version is never removed. Directories whose
// names are not versions are left alone.
func Prune(moduleDir string, keep int, current string) ([]string, error) {
	entries, err := os.ReadDir(moduleDir)
	if err != nil {
		return nil, err
	}

	type installed struct {
		dir string
		v   version.Version
	}
	var list []installed
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		v, err := version.Parse(e.Name())
		if err != nil {
			continue
		}
		list = append(list, installed{dir: filepath.Join(moduleDir, e.Name()), v: v})
	}
	sort.Slice(list, func(i, j int) bool { return version.Less(list[j].v, list[i].v) })

	var removed []string
	for i, inst := range list {
		if i < keep || filepath.Base(inst.dir) == current {
			continue
		}
		if err := os.RemoveAll(inst.dir); err != nil {
			return removed, fmt.Errorf("removing %s: %w", inst.dir, err)
		}
		removed = append(removed, inst.dir)
	}
	return removed, nil
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterHandler(steps.KindInstall, &registry.RegisteredHandler{Fn: OnInstall, Description: "install into module roots"})
}
