// Package metadata answers questions about installed and published modules:
// which versions exist, what they depend on, and which commands they export.
package metadata

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/vk/modforge/internal/ctxlog"
	"github.com/vk/modforge/internal/manifest"
	"github.com/vk/modforge/internal/merge"
	"github.com/vk/modforge/internal/usage"
	"github.com/vk/modforge/internal/version"
)

// ErrNotInstalled is returned when no module root holds the named module.
var ErrNotInstalled = errors.New("module not installed")

// Installed is one installed version of a module.
type Installed struct {
	Descriptor manifest.Descriptor
	Version    version.Version
	Dir        string
}

type commandEntry struct {
	module string
	kind   usage.CommandKind
}

// Local indexes module descriptors laid out as <root>/<Name>/<Version>/<Name>.toml.
// Earlier roots take precedence when two roots hold the same version. The
// index is built on first use; Invalidate forces a rescan.
type Local struct {
	Roots []string

	mu       sync.Mutex
	loaded   bool
	modules  map[string][]Installed
	commands map[string]commandEntry
}

// NewLocal returns a Local over roots.
func NewLocal(roots ...string) *Local {
	return &Local{Roots: roots}
}

// Invalidate drops the index.
func (l *Local) Invalidate() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.loaded = false
}

// Versions returns every installed version of name, highest first.
func (l *Local) Versions(ctx context.Context, name string) []Installed {
	l.ensure(ctx)
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Installed(nil), l.modules[strings.ToLower(name)]...)
}

// Lookup implements version.LocalLookup.
func (l *Local) Lookup(ctx context.Context, name string) (version.LocalInfo, bool) {
	installed := l.Versions(ctx, name)
	if len(installed) == 0 {
		return version.LocalInfo{}, false
	}
	best := installed[0]
	return version.LocalInfo{Version: best.Version.String(), Identity: best.Descriptor.Identity}, true
}

// DeclaredDependencies implements closure.DependencyLookup using the
// highest installed version.
func (l *Local) DeclaredDependencies(ctx context.Context, name string) ([]string, error) {
	installed := l.Versions(ctx, name)
	if len(installed) == 0 {
		return nil, fmt.Errorf("%s: %w", name, ErrNotInstalled)
	}
	deps := make([]string, 0, len(installed[0].Descriptor.RequiredModules))
	for _, r := range installed[0].Descriptor.RequiredModules {
		deps = append(deps, r.Name)
	}
	return deps, nil
}

// Resolve implements merge.CommandIndex. When several modules export the
// same command, the first module in name order wins.
func (l *Local) Resolve(ctx context.Context, command string) (string, usage.CommandKind, bool) {
	l.ensure(ctx)
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.commands[strings.ToLower(command)]
	return e.module, e.kind, ok
}

// Definition implements merge.DefinitionSource by searching the script
// files of the highest installed version.
func (l *Local) Definition(ctx context.Context, module, command string) (string, error) {
	installed := l.Versions(ctx, module)
	if len(installed) == 0 {
		return "", fmt.Errorf("%s: %w", module, ErrNotInstalled)
	}
	var found string
	err := filepath.WalkDir(installed[0].Dir, func(p string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() || found != "" {
			return err
		}
		ext := strings.ToLower(filepath.Ext(p))
		if ext != ".ps1" && ext != ".psm1" {
			return nil
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		if text, ok := merge.ExtractFunction(string(data), command); ok {
			found = text
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("searching %s for %s: %w", module, command, err)
	}
	if found == "" {
		return "", fmt.Errorf("function %s not found in module %s", command, module)
	}
	return found, nil
}

func (l *Local) ensure(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.loaded {
		return
	}
	l.modules, l.commands = scanRoots(ctx, l.Roots)
	l.loaded = true
}

func scanRoots(ctx context.Context, roots []string) (map[string][]Installed, map[string]commandEntry) {
	logger := ctxlog.FromContext(ctx)
	modules := make(map[string][]Installed)

	for _, root := range roots {
		nameDirs, err := os.ReadDir(root)
		if err != nil {
			logger.Debug("Skipping module root.", "root", root, "error", err)
			continue
		}
		for _, nameDir := range nameDirs {
			if !nameDir.IsDir() {
				continue
			}
			versionDirs, err := os.ReadDir(filepath.Join(root, nameDir.Name()))
			if err != nil {
				continue
			}
			for _, vd := range versionDirs {
				if !vd.IsDir() {
					continue
				}
				dir := filepath.Join(root, nameDir.Name(), vd.Name())
				inst, err := readInstalled(dir, nameDir.Name(), vd.Name())
				if err != nil {
					logger.Debug("Ignoring unreadable descriptor.", "dir", dir, "error", err)
					continue
				}
				key := strings.ToLower(inst.Descriptor.Name)
				if !containsVersion(modules[key], inst.Version) {
					modules[key] = append(modules[key], inst)
				}
			}
		}
	}

	for _, list := range modules {
		sort.SliceStable(list, func(i, j int) bool {
			return version.Less(list[j].Version, list[i].Version)
		})
	}

	names := make([]string, 0, len(modules))
	for key := range modules {
		names = append(names, key)
	}
	sort.Strings(names)

	commands := make(map[string]commandEntry)
	add := func(cmd string, e commandEntry) {
		key := strings.ToLower(cmd)
		if _, taken := commands[key]; !taken {
			commands[key] = e
		}
	}
	for _, key := range names {
		d := modules[key][0].Descriptor
		for _, f := range d.FunctionsToExport {
			add(f, commandEntry{module: d.Name, kind: usage.KindFunction})
		}
		for _, c := range d.CmdletsToExport {
			add(c, commandEntry{module: d.Name, kind: usage.KindCmdlet})
		}
		for _, a := range d.AliasesToExport {
			add(a, commandEntry{module: d.Name, kind: usage.KindAlias})
		}
	}

	logger.Debug("Indexed installed modules.", "modules", len(modules), "commands", len(commands))
	return modules, commands
}

func readInstalled(dir, name, versionDir string) (Installed, error) {
	d, err := manifest.ReadDescriptor(filepath.Join(dir, name+".toml"))
	if err != nil {
		return Installed{}, err
	}
	if d.Name == "" {
		d.Name = name
	}
	raw := d.Version
	if raw == "" {
		raw = versionDir
	}
	if d.Prerelease != "" && !strings.Contains(raw, "-") {
		raw += "-" + d.Prerelease
	}
	v, err := version.Parse(raw)
	if err != nil {
		return Installed{}, err
	}
	return Installed{Descriptor: d, Version: v, Dir: dir}, nil
}

func containsVersion(list []Installed, v version.Version) bool {
	for _, inst := range list {
		if version.Compare(inst.Version, v) == 0 {
			return true
		}
	}
	return false
}
