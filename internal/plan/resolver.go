package plan

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/vk/modforge/internal/config"
	"github.com/vk/modforge/internal/ctxlog"
	"github.com/vk/modforge/internal/usage"
	"github.com/vk/modforge/internal/version"
)

// ManifestReader reads one key of a module descriptor.
type ManifestReader interface {
	ReadString(path, key string) (string, error)
}

// Input is everything Resolve folds into a plan. ModuleName and SourceRoot
// are baselines that segments may override; Base is applied before the
// segments.
type Input struct {
	ModuleName string
	SourceRoot string
	Base       config.BuildSegment
	Segments   []config.Segment
}

// Resolver builds plans. Manifest and Local may be nil; Remote nil disables
// remote version lookups even when a build asks for them.
type Resolver struct {
	Manifest ManifestReader
	Local    version.LocalLookup
	Remote   version.RemoteLookup
	// TempDir hosts generated staging directories. Empty means os.TempDir().
	TempDir string
}

// Resolve applies in.Base and then every segment in order, last write wins
// per field, and resolves version and dependency tokens. Unresolvable
// optional values degrade to warnings; the only errors are
// ErrInvalidConfiguration and, when the dependencies check is "error",
// version.ErrUnresolvedDependency.
func (r *Resolver) Resolve(ctx context.Context, rc *RunContext, in Input) (Plan, error) {
	logger := ctxlog.FromContext(ctx)

	acc := newAccumulator(in)
	acc.applyBuild(in.Base)
	for _, seg := range in.Segments {
		acc.apply(seg)
	}

	p := Plan{RunID: rc.ID}
	var warnings []string
	warn := func(msg string, args ...any) {
		logger.Warn(msg, args...)
		warnings = append(warnings, formatWarning(msg, args...))
	}

	p.ModuleName = strings.TrimSpace(acc.name)
	p.SourceRoot = strings.TrimSpace(acc.sourceRoot)
	if p.ModuleName == "" {
		return Plan{}, fmt.Errorf("%w: module name is required", ErrInvalidConfiguration)
	}
	if p.SourceRoot == "" {
		return Plan{}, fmt.Errorf("%w: source root is required", ErrInvalidConfiguration)
	}
	p.SourceRoot = filepath.Clean(p.SourceRoot)

	var err error
	if p.Validation, err = acc.validation(); err != nil {
		return Plan{}, err
	}

	p.Identity, p.Description, p.Author = acc.identity, acc.description, acc.author
	p.ManifestPath = acc.manifestPath
	if p.ManifestPath == "" {
		p.ManifestPath = p.ModuleName + ".toml"
	}
	if !filepath.IsAbs(p.ManifestPath) {
		p.ManifestPath = filepath.Join(p.SourceRoot, p.ManifestPath)
	}

	r.resolveVersion(acc, &p, warn)

	if p.Build, err = acc.buildSettings(); err != nil {
		return Plan{}, err
	}
	p.Build.StagingPath, p.StagingWasGenerated = r.stagingPath(acc, p.ModuleName, rc.ID)
	p.DeleteStagingAfterRun = p.StagingWasGenerated && !p.Build.KeepStaging

	if err := r.resolveDependencies(ctx, rc, acc, &p, warn); err != nil {
		return Plan{}, err
	}

	p.Merge = acc.merge.clone()
	p.Docs = acc.docs
	p.Format = acc.format
	p.Sign = acc.sign
	p.Sign.Include = cloneStrings(acc.sign.Include)
	p.Tests = acc.tests
	p.Tests.Tags, p.Tests.ExcludeTags = cloneStrings(acc.tests.Tags), cloneStrings(acc.tests.ExcludeTags)
	p.Install = acc.install
	p.Install.Roots = cloneStrings(acc.install.Roots)
	if p.Install.KeepVersions < 0 {
		return Plan{}, fmt.Errorf("%w: install.keep_versions must not be negative", ErrInvalidConfiguration)
	}

	if p.Artefacts, err = acc.artefacts(p.ModuleName); err != nil {
		return Plan{}, err
	}
	if p.Publish, err = acc.publishes(); err != nil {
		return Plan{}, err
	}

	p.Warnings = warnings
	for _, w := range warnings {
		rc.Warn(w)
	}
	logger.Debug("Resolved plan.", "module", p.ModuleName, "version", p.FullVersion(), "dependencies", len(p.BuildDependencies), "warnings", len(warnings))
	return p, nil
}

func (r *Resolver) resolveVersion(acc *accumulator, p *Plan, warn func(string, ...any)) {
	raw := strings.TrimSpace(acc.version)
	p.Prerelease = strings.TrimSpace(acc.prerelease)

	if raw == "" || version.IsToken(raw) {
		committed, err := r.readManifestVersion(p.ManifestPath)
		if err != nil {
			warn("Could not read the committed module version, using the default.", "manifest", p.ManifestPath, "default", DefaultVersion, "error", err)
			p.Version, p.VersionSource = DefaultVersion, VersionDefault
			return
		}
		raw = committed
		p.VersionSource = VersionManifest
		if p.Prerelease == "" && r.Manifest != nil {
			if pre, err := r.Manifest.ReadString(p.ManifestPath, "prerelease"); err == nil {
				p.Prerelease = strings.TrimSpace(pre)
			}
		}
	} else {
		p.VersionSource = VersionDeclared
	}

	v, err := version.Parse(raw)
	if err != nil {
		warn("Module version is not parseable, using the default.", "version", raw, "default", DefaultVersion)
		p.Version, p.VersionSource = DefaultVersion, VersionDefault
		return
	}
	if v.Prerelease != "" {
		if p.Prerelease == "" {
			p.Prerelease = v.Prerelease
		}
		v.Prerelease = ""
	}
	p.Version = v.String()
}

func (r *Resolver) readManifestVersion(path string) (string, error) {
	if r.Manifest == nil {
		return "", errors.New("no manifest reader configured")
	}
	v, err := r.Manifest.ReadString(path, "version")
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(v) == "" {
		return "", errors.New("manifest version is empty")
	}
	return v, nil
}

func (r *Resolver) stagingPath(acc *accumulator, name, runID string) (string, bool) {
	if acc.build.StagingPath != nil && strings.TrimSpace(*acc.build.StagingPath) != "" {
		return filepath.Clean(*acc.build.StagingPath), false
	}
	dir := r.TempDir
	if dir == "" {
		dir = os.TempDir()
	}
	return filepath.Join(dir, fmt.Sprintf("modforge-%s-%s", name, runID)), true
}

func (r *Resolver) resolveDependencies(ctx context.Context, rc *RunContext, acc *accumulator, p *Plan, warn func(string, ...any)) error {
	local := r.Local
	if local == nil {
		local = version.LocalLookupFunc(func(context.Context, string) (version.LocalInfo, bool) {
			return version.LocalInfo{}, false
		})
	}
	var remote version.RemoteLookup
	if p.Build.ResolveRemote {
		remote = rc.Remote(r.Remote)
	}
	resolver := version.Resolver{AllowPrerelease: p.Build.AllowPrerelease, Repositories: p.Build.Repositories}
	strict := p.Validation.Effective(p.Validation.Dependencies) == usage.SeverityError

	if _, ok := acc.deps[""]; ok {
		return fmt.Errorf("%w: dependency name is required", ErrInvalidConfiguration)
	}

	var unresolved []error
	for _, key := range acc.depOrder {
		seg := acc.deps[key]
		draft := version.DependencyDraft{
			Name:            seg.Name,
			MinimumVersion:  deref(seg.Version),
			RequiredVersion: deref(seg.RequiredVersion),
			MaximumVersion:  deref(seg.MaximumVersion),
			Identity:        deref(seg.Identity),
			NoPackage:       seg.Package != nil && !*seg.Package,
		}
		res := resolver.Resolve(ctx, draft, local, remote)
		if res.Err != nil {
			if strict {
				unresolved = append(unresolved, res.Err)
			} else if p.Validation.Dependencies.Enabled() {
				warn("Dependency could not be fully resolved.", "dependency", seg.Name, "error", res.Err)
			}
		}
		if o := res.Dependency.Outdated; o != nil {
			warn("Dependency is outdated.", "dependency", seg.Name, "installed", o.Installed, "available", o.Available)
		}
		p.BuildDependencies = append(p.BuildDependencies, res.Dependency)
		if !draft.NoPackage {
			p.PackageDependencies = append(p.PackageDependencies, res.Dependency)
		}
	}
	if len(unresolved) > 0 {
		return errors.Join(unresolved...)
	}
	return nil
}

// accumulator holds the last-wins state while segments are applied.
type accumulator struct {
	name         string
	sourceRoot   string
	version      string
	prerelease   string
	identity     string
	description  string
	author       string
	manifestPath string

	build config.BuildSegment

	deps     map[string]config.DependencySegment
	depOrder []string

	merge MergeSettings
	valid config.ValidationSegment

	docs    Docs
	format  Format
	sign    Sign
	tests   Tests
	install Install

	arts     map[string]config.ArtefactSegment
	artOrder []string
	pubs     map[string]config.PublishSegment
	pubOrder []string
}

func newAccumulator(in Input) *accumulator {
	return &accumulator{
		name:       in.ModuleName,
		sourceRoot: in.SourceRoot,
		deps:       make(map[string]config.DependencySegment),
		arts:       make(map[string]config.ArtefactSegment),
		pubs:       make(map[string]config.PublishSegment),
		docs:       Docs{Locale: "en-US"},
		sign:       Sign{Include: []string{"**/*.ps1", "**/*.psm1", "**/*.psd1", "**/*.dll"}},
	}
}

// apply dispatches on the closed set of segment variants.
func (a *accumulator) apply(seg config.Segment) {
	switch s := seg.(type) {
	case config.ManifestSegment:
		setString(&a.name, s.Name)
		setString(&a.version, s.Version)
		setString(&a.prerelease, s.Prerelease)
		setString(&a.identity, s.Identity)
		setString(&a.description, s.Description)
		setString(&a.author, s.Author)
		setString(&a.manifestPath, s.ManifestPath)
	case config.BuildSegment:
		a.applyBuild(s)
	case config.DependencySegment:
		key := strings.ToLower(strings.TrimSpace(s.Name))
		if _, ok := a.deps[key]; !ok {
			a.depOrder = append(a.depOrder, key)
		}
		a.deps[key] = s
	case config.MergeSegment:
		setList(&a.merge.Approved, s.Approved)
		setList(&a.merge.InlineModules, s.InlineModules)
		setList(&a.merge.IgnoreModules, s.IgnoreModules)
		setList(&a.merge.IgnoreCommands, s.IgnoreCommands)
		setList(&a.merge.BuiltinModules, s.BuiltinModules)
		setList(&a.merge.BuiltinCommands, s.BuiltinCommands)
		setList(&a.merge.DirectivePrefixes, s.DirectivePrefixes)
	case config.ValidationSegment:
		overlay(&a.valid.MergeCommands, s.MergeCommands)
		overlay(&a.valid.FileConsistency, s.FileConsistency)
		overlay(&a.valid.Compatibility, s.Compatibility)
		overlay(&a.valid.Analyzer, s.Analyzer)
		overlay(&a.valid.Dependencies, s.Dependencies)
		overlay(&a.valid.Force, s.Force)
	case config.DocsSegment:
		setValue(&a.docs.Enabled, s.Enabled)
		setString(&a.docs.OutputPath, s.OutputPath)
		setString(&a.docs.Locale, s.Locale)
		setValue(&a.docs.ExternalHelp, s.ExternalHelp)
	case config.FormatSegment:
		setValue(&a.format.Enabled, s.Enabled)
		setString(&a.format.SettingsPath, s.SettingsPath)
	case config.SignSegment:
		setValue(&a.sign.Enabled, s.Enabled)
		setString(&a.sign.CertificateThumbprint, s.CertificateThumbprint)
		setString(&a.sign.TimestampServer, s.TimestampServer)
		setList(&a.sign.Include, s.Include)
	case config.TestsSegment:
		setValue(&a.tests.Enabled, s.Enabled)
		setString(&a.tests.Path, s.Path)
		setList(&a.tests.Tags, s.Tags)
		setList(&a.tests.ExcludeTags, s.ExcludeTags)
	case config.ArtefactSegment:
		key := strings.ToLower(strings.TrimSpace(s.Name))
		if _, ok := a.arts[key]; !ok {
			a.artOrder = append(a.artOrder, key)
		}
		a.arts[key] = s
	case config.PublishSegment:
		key := strings.ToLower(strings.TrimSpace(s.Name))
		if _, ok := a.pubs[key]; !ok {
			a.pubOrder = append(a.pubOrder, key)
		}
		a.pubs[key] = s
	case config.InstallSegment:
		setValue(&a.install.Enabled, s.Enabled)
		setList(&a.install.Roots, s.Roots)
		setValue(&a.install.KeepVersions, s.KeepVersions)
	default:
		panic(fmt.Sprintf("plan: unhandled segment type %T", seg))
	}
}

func (a *accumulator) applyBuild(s config.BuildSegment) {
	setString(&a.sourceRoot, s.SourceRoot)
	b := &a.build
	overlay(&b.StagingPath, s.StagingPath)
	overlay(&b.KeepStaging, s.KeepStaging)
	setList(&b.SourceDirs, s.SourceDirs)
	setList(&b.Copy, s.Copy)
	overlay(&b.BinaryProject, s.BinaryProject)
	overlay(&b.Configuration, s.Configuration)
	overlay(&b.Framework, s.Framework)
	setList(&b.Cmdlets, s.Cmdlets)
	overlay(&b.Merge, s.Merge)
	overlay(&b.MergeFile, s.MergeFile)
	setList(&b.PackageInclude, s.PackageInclude)
	setList(&b.PackageExclude, s.PackageExclude)
	overlay(&b.TimeoutMinutes, s.TimeoutMinutes)
	overlay(&b.ResolveRemote, s.ResolveRemote)
	overlay(&b.AllowPrerelease, s.AllowPrerelease)
	setList(&b.Repositories, s.Repositories)
	overlay(&b.MinimumEngineVersion, s.MinimumEngineVersion)
}

func (a *accumulator) buildSettings() (BuildSettings, error) {
	b := a.build
	out := BuildSettings{
		KeepStaging:          derefBool(b.KeepStaging),
		SourceDirs:           cloneStrings(b.SourceDirs),
		Copy:                 cloneStrings(b.Copy),
		BinaryProject:        deref(b.BinaryProject),
		Configuration:        deref(b.Configuration),
		Framework:            deref(b.Framework),
		Cmdlets:              cloneStrings(b.Cmdlets),
		Merge:                derefBool(b.Merge),
		MergeFile:            deref(b.MergeFile),
		PackageInclude:       cloneStrings(b.PackageInclude),
		PackageExclude:       cloneStrings(b.PackageExclude),
		Timeout:              DefaultTimeout,
		ResolveRemote:        derefBool(b.ResolveRemote),
		AllowPrerelease:      derefBool(b.AllowPrerelease),
		Repositories:         cloneStrings(b.Repositories),
		MinimumEngineVersion: deref(b.MinimumEngineVersion),
	}
	if b.SourceDirs == nil {
		out.SourceDirs = []string{"Private", "Public"}
	}
	if out.Configuration == "" {
		out.Configuration = "Release"
	}
	if b.TimeoutMinutes != nil {
		if *b.TimeoutMinutes <= 0 {
			return BuildSettings{}, fmt.Errorf("%w: build.timeout_minutes must be positive", ErrInvalidConfiguration)
		}
		out.Timeout = time.Duration(*b.TimeoutMinutes) * time.Minute
	}
	if out.MinimumEngineVersion != "" {
		if _, err := version.Parse(out.MinimumEngineVersion); err != nil {
			return BuildSettings{}, fmt.Errorf("%w: build.minimum_engine_version: %v", ErrInvalidConfiguration, err)
		}
	}
	return out, nil
}

func (a *accumulator) validation() (Validation, error) {
	v := DefaultValidation()
	checks := []struct {
		name string
		raw  *string
		dst  *usage.Severity
	}{
		{"merge_commands", a.valid.MergeCommands, &v.MergeCommands},
		{"file_consistency", a.valid.FileConsistency, &v.FileConsistency},
		{"compatibility", a.valid.Compatibility, &v.Compatibility},
		{"analyzer", a.valid.Analyzer, &v.Analyzer},
		{"dependencies", a.valid.Dependencies, &v.Dependencies},
	}
	for _, c := range checks {
		if c.raw == nil {
			continue
		}
		sev, err := usage.ParseSeverity(*c.raw)
		if err != nil {
			return Validation{}, fmt.Errorf("%w: validation.%s: %v", ErrInvalidConfiguration, c.name, err)
		}
		*c.dst = sev
	}
	v.Force = derefBool(a.valid.Force)
	return v, nil
}

func (a *accumulator) artefacts(moduleName string) ([]Artefact, error) {
	out := make([]Artefact, 0, len(a.artOrder))
	for _, key := range a.artOrder {
		s := a.arts[key]
		art := Artefact{
			Name:       strings.TrimSpace(s.Name),
			Type:       strings.ToLower(deref(s.Type)),
			OutputPath: deref(s.OutputPath),
			Include:    cloneStrings(s.Include),
			Exclude:    cloneStrings(s.Exclude),
		}
		if art.Name == "" {
			return nil, fmt.Errorf("%w: artefact name is required", ErrInvalidConfiguration)
		}
		if art.Type == "" {
			art.Type = ArtefactZip
		}
		if art.Type != ArtefactZip && art.Type != ArtefactDirectory {
			return nil, fmt.Errorf("%w: artefact %q has unknown type %q", ErrInvalidConfiguration, art.Name, art.Type)
		}
		if art.OutputPath == "" {
			art.OutputPath = filepath.Join("out", moduleName)
		}
		out = append(out, art)
	}
	return out, nil
}

func (a *accumulator) publishes() ([]Publish, error) {
	out := make([]Publish, 0, len(a.pubOrder))
	for _, key := range a.pubOrder {
		s := a.pubs[key]
		pub := Publish{
			Name:       strings.TrimSpace(s.Name),
			Type:       strings.ToLower(deref(s.Type)),
			Artefact:   deref(s.Artefact),
			URL:        deref(s.URL),
			Repository: deref(s.Repository),
			APIKeyEnv:  deref(s.APIKeyEnv),
		}
		if pub.Name == "" {
			return nil, fmt.Errorf("%w: publish name is required", ErrInvalidConfiguration)
		}
		switch pub.Type {
		case PublishHTTP:
			if pub.URL == "" {
				return nil, fmt.Errorf("%w: publish %q of type http needs a url", ErrInvalidConfiguration, pub.Name)
			}
		case PublishRepository:
		case "":
			pub.Type = PublishRepository
		default:
			return nil, fmt.Errorf("%w: publish %q has unknown type %q", ErrInvalidConfiguration, pub.Name, pub.Type)
		}
		out = append(out, pub)
	}
	return out, nil
}

func (m MergeSettings) clone() MergeSettings {
	return MergeSettings{
		Approved:          cloneStrings(m.Approved),
		InlineModules:     cloneStrings(m.InlineModules),
		IgnoreModules:     cloneStrings(m.IgnoreModules),
		IgnoreCommands:    cloneStrings(m.IgnoreCommands),
		BuiltinModules:    cloneStrings(m.BuiltinModules),
		BuiltinCommands:   cloneStrings(m.BuiltinCommands),
		DirectivePrefixes: cloneStrings(m.DirectivePrefixes),
	}
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func setValue[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

// overlay keeps the pointer form, for fields whose unset state matters later.
func overlay[T any](dst **T, src *T) {
	if src != nil {
		v := *src
		*dst = &v
	}
}

func setList(dst *[]string, src []string) {
	if src != nil {
		*dst = cloneStrings(src)
	}
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	return append([]string{}, s...)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}

func derefBool(b *bool) bool {
	return b != nil && *b
}

func equalFold(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

func formatWarning(msg string, args ...any) string {
	var b strings.Builder
	b.WriteString(strings.TrimSuffix(msg, "."))
	for i := 0; i+1 < len(args); i += 2 {
		fmt.Fprintf(&b, " %v=%v", args[i], args[i+1])
	}
	return b.String()
}
