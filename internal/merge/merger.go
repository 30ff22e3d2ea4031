package merge

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/vk/modforge/internal/closure"
	"github.com/vk/modforge/internal/ctxlog"
	"github.com/vk/modforge/internal/usage"
)

// CommandIndex maps a command name to the module that provides it.
type CommandIndex interface {
	Resolve(ctx context.Context, command string) (module string, kind usage.CommandKind, ok bool)
}

// DefinitionSource returns the source text of a function shipped by an
// installed module.
type DefinitionSource interface {
	Definition(ctx context.Context, module, command string) (string, error)
}

// Settings are the merge options of a build definition.
type Settings struct {
	Approved          []string
	InlineModules     []string
	IgnoreModules     []string
	IgnoreCommands    []string
	BuiltinModules    []string
	BuiltinCommands   []string
	DirectivePrefixes []string
}

// Request describes one merge.
type Request struct {
	ModuleName string
	// Files are merged in this order.
	Files []string
	// Root is the directory Files and PublicDirs are relative to.
	Root string
	// PublicDirs name the directories, relative to Root, whose functions and
	// aliases are exported. Empty exports every function.
	PublicDirs []string
	Required   []string
	Cmdlets    []string
	Settings   Settings
	Severity   usage.Severity
	Force      bool
	OutputPath string
}

// Outcome is everything a merge produced.
type Outcome struct {
	Result  Result
	Report  usage.Report
	Usages  []usage.CommandUsage
	Closure []string
}

// Merger wires the scanner, the closure resolver and the classifier to the
// metadata sources they need. Any source may be nil: a nil Index leaves
// every command unresolved, a nil Dependencies yields an empty closure and a
// nil Definitions disables inlining.
type Merger struct {
	Index        CommandIndex
	Dependencies closure.DependencyLookup
	Definitions  DefinitionSource
}

// Run merges req.Files into req.OutputPath. It returns an error wrapping
// usage.ErrMissingOrUnresolvedCommand when classification fails.
func (m *Merger) Run(ctx context.Context, req Request) (Outcome, error) {
	ctx, logger := ctxlog.With(ctx, "module", req.ModuleName)
	var out Outcome

	files, err := LoadSourceFiles(req.Files)
	if err != nil {
		return out, err
	}
	scan := Scan(files)
	logger.Debug("Scanned source files.", "files", len(files), "functions", len(scan.Functions), "commands", len(scan.Commands))

	local := make(map[string]struct{}, len(scan.Functions))
	for _, fn := range scan.Functions {
		local[strings.ToLower(fn.Name)] = struct{}{}
	}
	for _, aliases := range scan.Aliases {
		for _, a := range aliases {
			local[strings.ToLower(a)] = struct{}{}
		}
	}

	for _, cmd := range scan.Commands {
		if _, ok := local[strings.ToLower(cmd)]; ok {
			continue
		}
		u := usage.CommandUsage{Command: cmd, Kind: usage.KindUnknown}
		if !strings.HasPrefix(cmd, "$") && m.Index != nil {
			if module, kind, ok := m.Index.Resolve(ctx, cmd); ok {
				u.Module, u.Kind = module, kind
			}
		}
		out.Usages = append(out.Usages, u)
	}

	if m.Dependencies != nil {
		out.Closure = closure.Closure(ctx, req.Required, req.Settings.Approved, m.Dependencies)
	}

	inlined, remaining := m.inline(ctx, req, out.Closure, out.Usages)

	sev := req.Severity.Effective(req.Force)
	if sev.Enabled() {
		out.Report = usage.Classify(remaining, usage.Input{
			Required:        req.Required,
			Approved:        req.Settings.Approved,
			Closure:         out.Closure,
			IgnoreModules:   req.Settings.IgnoreModules,
			IgnoreCommands:  req.Settings.IgnoreCommands,
			BuiltinModules:  req.Settings.BuiltinModules,
			BuiltinCommands: req.Settings.BuiltinCommands,
			Force:           req.Force,
			Strict:          sev == usage.SeverityError,
		})
	} else {
		out.Report = usage.Report{Status: usage.StatusPass}
	}
	for _, w := range out.Report.Warnings {
		logger.Warn("Command usage check.", "problem", w.Problem, "module", w.Module, "commands", w.Commands)
	}
	if err := out.Report.Err(); err != nil {
		return out, fmt.Errorf("command usage check failed for module %s: %w", req.ModuleName, err)
	}

	exports := ExportSet{Cmdlets: req.Cmdlets}
	for _, fn := range scan.Functions {
		if isPublic(req.Root, fn.File, req.PublicDirs) {
			exports.Functions = append(exports.Functions, fn.Name)
		}
	}
	for _, f := range files {
		if isPublic(req.Root, f.Path, req.PublicDirs) {
			exports.Aliases = append(exports.Aliases, scan.Aliases[strings.ToLower(f.Path)]...)
		}
	}

	out.Result = Assemble(files, exports, inlined, req.Settings.DirectivePrefixes)

	if req.OutputPath != "" {
		if err := os.MkdirAll(filepath.Dir(req.OutputPath), 0o755); err != nil {
			return out, fmt.Errorf("failed to create merge output directory: %w", err)
		}
		if err := os.WriteFile(req.OutputPath, []byte(out.Result.Render()), 0o644); err != nil {
			return out, fmt.Errorf("failed to write merged file %s: %w", req.OutputPath, err)
		}
		logger.Info("Merged source files.", "output", req.OutputPath, "inlined", len(inlined))
	}
	return out, nil
}

// inline copies definitions of commands supplied by inline modules that are
// not allowed dependencies. Usages satisfied this way are dropped from the
// returned list.
func (m *Merger) inline(ctx context.Context, req Request, closureNames []string, usages []usage.CommandUsage) ([]Definition, []usage.CommandUsage) {
	if m.Definitions == nil || len(req.Settings.InlineModules) == 0 {
		return nil, usages
	}
	logger := ctxlog.FromContext(ctx)

	inlineSet := lowerSet(req.Settings.InlineModules)
	allowed := lowerSet(req.Required, req.Settings.Approved, closureNames)

	var defs []Definition
	remaining := make([]usage.CommandUsage, 0, len(usages))
	for _, u := range usages {
		key := strings.ToLower(u.Module)
		_, isInline := inlineSet[key]
		_, isAllowed := allowed[key]
		if u.Module == "" || !isInline || isAllowed {
			remaining = append(remaining, u)
			continue
		}
		text, err := m.Definitions.Definition(ctx, u.Module, u.Command)
		if err != nil {
			logger.Warn("Could not inline command definition.", "command", u.Command, "source_module", u.Module, "error", err)
			remaining = append(remaining, u)
			continue
		}
		defs = append(defs, Definition{Name: u.Command, Text: text})
	}
	return defs, remaining
}

// isPublic reports whether file lies under one of publicDirs. Only the part
// of the path below root is considered.
func isPublic(root, file string, publicDirs []string) bool {
	if len(publicDirs) == 0 {
		return true
	}
	rel := file
	if root != "" {
		r, err := filepath.Rel(root, file)
		if err != nil || r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
			return false
		}
		rel = r
	}
	dir := strings.ToLower(filepath.ToSlash(filepath.Dir(rel)))
	for _, d := range publicDirs {
		d = strings.ToLower(strings.Trim(filepath.ToSlash(filepath.Clean(d)), "/"))
		if dir == d || strings.HasPrefix(dir, d+"/") {
			return true
		}
	}
	return false
}

func lowerSet(lists ...[]string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, list := range lists {
		for _, s := range list {
			set[strings.ToLower(strings.TrimSpace(s))] = struct{}{}
		}
	}
	return set
}
