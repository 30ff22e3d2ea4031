package artefact

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/vk/modforge/internal/ctxlog"
	"github.com/vk/modforge/internal/fsutil"
	"github.com/vk/modforge/internal/plan"
	"github.com/vk/modforge/internal/registry"
	"github.com/vk/modforge/internal/steps"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Path returns where artefact a is written. Relative output paths resolve
// against the source root. A zip artefact is <output>/<Name>.<version>.zip
// unless the output path already names a .zip file; a directory artefact is
// <output>/<Name>.
func Path(p plan.Plan, a plan.Artefact) string {
	out := a.OutputPath
	if !filepath.IsAbs(out) {
		out = filepath.Join(p.SourceRoot, out)
	}
	if a.Type == plan.ArtefactDirectory {
		return filepath.Join(out, p.ModuleName)
	}
	if strings.EqualFold(filepath.Ext(out), ".zip") {
		return out
	}
	return filepath.Join(out, fmt.Sprintf("%s.%s.zip", p.ModuleName, p.FullVersion()))
}

// OnArtefact packages staging, filtered by the packaging rules and the
// artefact's own globs.
func OnArtefact(ctx context.Context, env *registry.Env, s steps.Step) error {
	if s.Artefact == nil {
		return fmt.Errorf("step %s has no artefact", s.Key)
	}
	a := *s.Artefact
	p := env.Plan
	dest := Path(p, a)
	logger := ctxlog.FromContext(ctx).With("artefact", a.Name, "type", a.Type, "path", dest)

	filter := fsutil.All{
		{Include: p.Build.PackageInclude, Exclude: p.Build.PackageExclude},
		{Include: a.Include, Exclude: a.Exclude},
	}

	var count int
	switch a.Type {
	case plan.ArtefactDirectory:
		if err := os.RemoveAll(dest); err != nil {
			return fmt.Errorf("failed to clear %s: %w", dest, err)
		}
		files, err := fsutil.CopyTree(ctx, env.Staging(), dest, filter)
		if err != nil {
			return err
		}
		count = len(files)
	case plan.ArtefactZip:
		files, err := fsutil.Walk(env.Staging(), filter)
		if err != nil {
			return fmt.Errorf("listing staging: %w", err)
		}
		if err := writeZip(env.Staging(), files, dest); err != nil {
			return err
		}
		count = len(files)
	default:
		return fmt.Errorf("unknown artefact type '%s'", a.Type)
	}

	logger.Info("Created artefact.", "files", count)
	return nil
}

func writeZip(root string, files []string, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("failed to create artefact directory: %w", err)
	}
	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dest, err)
	}
	defer out.Close()

	zw := zip.NewWriter(out)
	for _, rel := range files {
		if err := addFile(zw, filepath.Join(root, filepath.FromSlash(rel)), rel); err != nil {
			zw.Close()
			return err
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to finish %s: %w", dest, err)
	}
	return out.Close()
}

func addFile(zw *zip.Writer, path, name string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	hdr.Name = name
	hdr.Method = zip.Deflate

	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return fmt.Errorf("failed to add %s: %w", name, err)
	}
	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("failed to add %s: %w", name, err)
	}
	return nil
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterHandler(steps.KindArtefact, &registry.RegisteredHandler{Fn: OnArtefact, Description: "package staging"})
}
