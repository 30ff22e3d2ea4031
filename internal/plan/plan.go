// Package plan folds an ordered list of configuration segments into one
// immutable execution Plan.
package plan

import (
	"errors"
	"time"

	"github.com/vk/modforge/internal/usage"
	"github.com/vk/modforge/internal/version"
)

// ErrInvalidConfiguration marks a plan that cannot be built: a required
// field is missing or a value is malformed. It is always fatal and is
// reported before any step runs.
var ErrInvalidConfiguration = errors.New("invalid configuration")

// DefaultVersion is used when the module version is "auto" and no committed
// version can be read from the manifest.
const DefaultVersion = "0.1.0"

// DefaultTimeout bounds every external process a step starts.
const DefaultTimeout = 10 * time.Minute

// VersionSource tells where the module version came from.
type VersionSource string

const (
	VersionDeclared VersionSource = "declared"
	VersionManifest VersionSource = "manifest"
	VersionDefault  VersionSource = "default"
)

// Plan is the fully resolved description of one build run. Plans are built
// by Resolver.Resolve and must be treated as read-only; no slice in a Plan
// aliases the resolver's inputs.
type Plan struct {
	RunID             string        `yaml:"run_id"`
	ModuleName        string        `yaml:"module_name"`
	SourceRoot        string        `yaml:"source_root"`
	Version           string        `yaml:"version"`
	Prerelease        string        `yaml:"prerelease,omitempty"`
	VersionSource     VersionSource `yaml:"version_source"`
	Identity          string        `yaml:"identity,omitempty"`
	Description       string        `yaml:"description,omitempty"`
	Author            string        `yaml:"author,omitempty"`
	ManifestPath      string        `yaml:"manifest_path"`

	// BuildDependencies holds every declared dependency; PackageDependencies
	// leaves out the ones marked package = false.
	BuildDependencies   []version.ResolvedDependency `yaml:"build_dependencies"`
	PackageDependencies []version.ResolvedDependency `yaml:"package_dependencies"`

	Build      BuildSettings `yaml:"build"`
	Merge      MergeSettings `yaml:"merge"`
	Validation Validation    `yaml:"validation"`
	Docs       Docs          `yaml:"docs"`
	Format     Format        `yaml:"format"`
	Sign       Sign          `yaml:"sign"`
	Tests      Tests         `yaml:"tests"`
	Artefacts  []Artefact    `yaml:"artefacts"`
	Publish    []Publish     `yaml:"publish"`
	Install    Install       `yaml:"install"`

	Warnings []string `yaml:"warnings,omitempty"`

	StagingWasGenerated   bool `yaml:"staging_was_generated"`
	DeleteStagingAfterRun bool `yaml:"delete_staging_after_run"`
}

// FullVersion returns the version with its prerelease label, if any.
func (p Plan) FullVersion() string {
	if p.Prerelease == "" {
		return p.Version
	}
	return p.Version + "-" + p.Prerelease
}

// FindArtefact returns the artefact called name (case-insensitive).
func (p Plan) FindArtefact(name string) (Artefact, bool) {
	for _, a := range p.Artefacts {
		if equalFold(a.Name, name) {
			return a, true
		}
	}
	return Artefact{}, false
}

type BuildSettings struct {
	StagingPath          string        `yaml:"staging_path"`
	KeepStaging          bool          `yaml:"keep_staging"`
	SourceDirs           []string      `yaml:"source_dirs"`
	Copy                 []string      `yaml:"copy,omitempty"`
	BinaryProject        string        `yaml:"binary_project,omitempty"`
	Configuration        string        `yaml:"configuration"`
	Framework            string        `yaml:"framework,omitempty"`
	Cmdlets              []string      `yaml:"cmdlets,omitempty"`
	Merge                bool          `yaml:"merge"`
	MergeFile            string        `yaml:"merge_file,omitempty"`
	PackageInclude       []string      `yaml:"package_include,omitempty"`
	PackageExclude       []string      `yaml:"package_exclude,omitempty"`
	Timeout              time.Duration `yaml:"timeout"`
	ResolveRemote        bool          `yaml:"resolve_remote"`
	AllowPrerelease      bool          `yaml:"allow_prerelease"`
	Repositories         []string      `yaml:"repositories,omitempty"`
	MinimumEngineVersion string        `yaml:"minimum_engine_version,omitempty"`
}

type MergeSettings struct {
	Approved          []string `yaml:"approved,omitempty"`
	InlineModules     []string `yaml:"inline_modules,omitempty"`
	IgnoreModules     []string `yaml:"ignore_modules,omitempty"`
	IgnoreCommands    []string `yaml:"ignore_commands,omitempty"`
	BuiltinModules    []string `yaml:"builtin_modules,omitempty"`
	BuiltinCommands   []string `yaml:"builtin_commands,omitempty"`
	DirectivePrefixes []string `yaml:"directive_prefixes,omitempty"`
}

// Validation holds one severity per check plus the global force override.
type Validation struct {
	MergeCommands   usage.Severity `yaml:"merge_commands"`
	FileConsistency usage.Severity `yaml:"file_consistency"`
	Compatibility   usage.Severity `yaml:"compatibility"`
	Analyzer        usage.Severity `yaml:"analyzer"`
	Dependencies    usage.Severity `yaml:"dependencies"`
	Force           bool           `yaml:"force"`
}

// DefaultValidation is the policy used for checks a build does not configure.
func DefaultValidation() Validation {
	return Validation{
		MergeCommands:   usage.SeverityError,
		FileConsistency: usage.SeverityWarning,
		Compatibility:   usage.SeverityWarning,
		Analyzer:        usage.SeverityOff,
		Dependencies:    usage.SeverityWarning,
	}
}

// Effective applies Force to s.
func (v Validation) Effective(s usage.Severity) usage.Severity {
	return s.Effective(v.Force)
}

type Docs struct {
	Enabled      bool   `yaml:"enabled"`
	OutputPath   string `yaml:"output_path,omitempty"`
	Locale       string `yaml:"locale"`
	ExternalHelp bool   `yaml:"external_help"`
}

type Format struct {
	Enabled      bool   `yaml:"enabled"`
	SettingsPath string `yaml:"settings_path,omitempty"`
}

type Sign struct {
	Enabled               bool     `yaml:"enabled"`
	CertificateThumbprint string   `yaml:"certificate_thumbprint,omitempty"`
	TimestampServer       string   `yaml:"timestamp_server,omitempty"`
	Include               []string `yaml:"include"`
}

type Tests struct {
	Enabled     bool     `yaml:"enabled"`
	Path        string   `yaml:"path,omitempty"`
	Tags        []string `yaml:"tags,omitempty"`
	ExcludeTags []string `yaml:"exclude_tags,omitempty"`
}

// Artefact types.
const (
	ArtefactZip       = "zip"
	ArtefactDirectory = "directory"
)

type Artefact struct {
	Name       string   `yaml:"name"`
	Type       string   `yaml:"type"`
	OutputPath string   `yaml:"output_path"`
	Include    []string `yaml:"include,omitempty"`
	Exclude    []string `yaml:"exclude,omitempty"`
}

// Publish types.
const (
	PublishHTTP       = "http"
	PublishRepository = "repository"
)

type Publish struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	Artefact   string `yaml:"artefact"`
	URL        string `yaml:"url,omitempty"`
	Repository string `yaml:"repository,omitempty"`
	APIKeyEnv  string `yaml:"api_key_env,omitempty"`
}

type Install struct {
	Enabled bool     `yaml:"enabled"`
	Roots   []string `yaml:"roots,omitempty"`
	// KeepVersions prunes older installed versions; zero keeps all.
	KeepVersions int `yaml:"keep_versions"`
}
