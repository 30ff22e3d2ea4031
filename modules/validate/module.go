package validate

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/vk/modforge/internal/ctxlog"
	"github.com/vk/modforge/internal/fsutil"
	"github.com/vk/modforge/internal/manifest"
	"github.com/vk/modforge/internal/merge"
	"github.com/vk/modforge/internal/procexec"
	"github.com/vk/modforge/internal/registry"
	"github.com/vk/modforge/internal/steps"
	"github.com/vk/modforge/internal/usage"
	"github.com/vk/modforge/internal/version"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// ErrCheckFailed is returned by a check whose effective severity is error.
var ErrCheckFailed = errors.New("validation check failed")

var (
	requiresRe        = regexp.MustCompile(`(?i)^#requires\b(.*)$`)
	requiresVersionRe = regexp.MustCompile(`(?i)-version\s+(\S+)`)
	requiresFlagRe    = regexp.MustCompile(`(?:^|\s)-([A-Za-z]+)`)
)

var knownRequiresFlags = map[string]bool{
	"version":            true,
	"modules":            true,
	"psedition":          true,
	"runasadministrator": true,
	"assembly":           true,
	"pssnapin":           true,
	"shellid":            true,
}

// finish applies the check's effective severity to its findings.
func finish(ctx context.Context, env *registry.Env, check string, configured usage.Severity, findings []string) error {
	logger := ctxlog.FromContext(ctx).With("check", check)
	sev := env.Plan.Validation.Effective(configured)

	if len(findings) == 0 {
		logger.Info("Validation check passed.")
		return nil
	}
	if sev == usage.SeverityError {
		return fmt.Errorf("%w: %s: %s", ErrCheckFailed, check, strings.Join(findings, "; "))
	}
	for _, f := range findings {
		logger.Warn("Validation finding.", "finding", f)
		env.Run.Warn(check + ": " + f)
	}
	return nil
}

func stagedScripts(env *registry.Env) ([]merge.SourceFile, error) {
	rel, err := fsutil.Walk(env.Staging(), fsutil.Filter{Include: []string{"**/*.ps1", "**/*.psm1"}})
	if err != nil {
		return nil, fmt.Errorf("listing staged scripts: %w", err)
	}
	paths := make([]string, len(rel))
	for i, r := range rel {
		paths[i] = filepath.Join(env.Staging(), filepath.FromSlash(r))
	}
	return merge.LoadSourceFiles(paths)
}

func relPath(env *registry.Env, path string) string {
	if rel, err := filepath.Rel(env.Staging(), path); err == nil {
		return filepath.ToSlash(rel)
	}
	return path
}

// OnFileConsistency checks that every exported function is defined in the
// staged output and that every #requires directive is well formed.
func (m *Module) OnFileConsistency(ctx context.Context, env *registry.Env, _ steps.Step) error {
	files, err := stagedScripts(env)
	if err != nil {
		return err
	}

	var findings []string
	desc, err := manifest.ReadDescriptor(env.StagedManifest())
	if err != nil {
		findings = append(findings, err.Error())
	}

	defined := make(map[string]bool)
	for _, fn := range merge.Scan(files).Functions {
		defined[strings.ToLower(fn.Name)] = true
	}
	for _, name := range desc.FunctionsToExport {
		if !defined[strings.ToLower(name)] {
			findings = append(findings, fmt.Sprintf("exported function %s is not defined", name))
		}
	}

	for _, f := range files {
		for i, line := range f.Lines {
			match := requiresRe.FindStringSubmatch(strings.TrimSpace(line))
			if match == nil {
				continue
			}
			flags := requiresFlagRe.FindAllStringSubmatch(match[1], -1)
			if len(flags) == 0 {
				findings = append(findings, fmt.Sprintf("%s:%d: #requires without parameters", relPath(env, f.Path), i+1))
			}
			for _, flag := range flags {
				if !knownRequiresFlags[strings.ToLower(flag[1])] {
					findings = append(findings, fmt.Sprintf("%s:%d: unknown #requires parameter -%s", relPath(env, f.Path), i+1, flag[1]))
				}
			}
		}
	}

	return finish(ctx, env, string(steps.KindValidateFileConsistency), env.Plan.Validation.FileConsistency, findings)
}

// OnCompatibility checks that no staged script requires a newer engine than
// build.minimum_engine_version.
func (m *Module) OnCompatibility(ctx context.Context, env *registry.Env, _ steps.Step) error {
	logger := ctxlog.FromContext(ctx)
	if env.Plan.Build.MinimumEngineVersion == "" {
		logger.Debug("No minimum engine version configured, nothing to check.")
		return nil
	}
	minimum, err := version.Parse(env.Plan.Build.MinimumEngineVersion)
	if err != nil {
		return err
	}

	files, err := stagedScripts(env)
	if err != nil {
		return err
	}

	var findings []string
	for _, f := range files {
		for i, line := range f.Lines {
			match := requiresRe.FindStringSubmatch(strings.TrimSpace(line))
			if match == nil {
				continue
			}
			vm := requiresVersionRe.FindStringSubmatch(match[1])
			if vm == nil {
				continue
			}
			required, err := version.Parse(vm[1])
			if err != nil {
				findings = append(findings, fmt.Sprintf("%s:%d: invalid engine version %q", relPath(env, f.Path), i+1, vm[1]))
				continue
			}
			if version.Compare(required, minimum) > 0 {
				findings = append(findings, fmt.Sprintf("%s:%d: requires engine %s, above the minimum %s", relPath(env, f.Path), i+1, required, minimum))
			}
		}
	}

	return finish(ctx, env, string(steps.KindValidateCompatibility), env.Plan.Validation.Compatibility, findings)
}

// OnAnalyzer runs the static analyzer over staging. A failing run is a
// finding like any other; a run that timed out fails the step.
func (m *Module) OnAnalyzer(ctx context.Context, env *registry.Env, s steps.Step) error {
	inv := env.Script(s.Kind,
		registry.Param{Name: "Path", Value: env.Staging()},
		registry.Param{Name: "Recurse"},
		registry.Param{Name: "EnableExit"},
	)

	var findings []string
	if _, err := env.Runner.Run(ctx, inv); err != nil {
		var exitErr *procexec.ExitError
		if !errors.As(err, &exitErr) || exitErr.TimedOut {
			return err
		}
		findings = append(findings, exitErr.Error())
	}
	return finish(ctx, env, string(steps.KindValidateAnalyzer), env.Plan.Validation.Analyzer, findings)
}

// Register registers the handlers with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterHandler(steps.KindValidateFileConsistency, &registry.RegisteredHandler{Fn: m.OnFileConsistency, Description: "check exports and directives"})
	r.RegisterHandler(steps.KindValidateCompatibility, &registry.RegisteredHandler{Fn: m.OnCompatibility, Description: "check engine version requirements"})
	r.RegisterHandler(steps.KindValidateAnalyzer, &registry.RegisteredHandler{Fn: m.OnAnalyzer, Description: "run the static analyzer"})
}
