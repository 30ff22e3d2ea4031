package config

// Segment is one partial configuration fragment. The set of variants is
// closed: only types in this package implement it.
//
// Scalar fields are pointers and list fields are slices; nil means "not set
// by this segment", so a later segment overrides an earlier one field by
// field. A non-nil empty slice clears a list.
type Segment interface {
	segment()
}

// ManifestSegment sets module identity fields.
type ManifestSegment struct {
	Name         *string
	Version      *string
	Prerelease   *string
	Identity     *string
	Description  *string
	Author       *string
	ManifestPath *string
}

// BuildSegment sets how the module is staged and compiled.
type BuildSegment struct {
	SourceRoot           *string
	StagingPath          *string
	KeepStaging          *bool
	SourceDirs           []string
	Copy                 []string
	BinaryProject        *string
	Configuration        *string
	Framework            *string
	Cmdlets              []string
	Merge                *bool
	MergeFile            *string
	PackageInclude       []string
	PackageExclude       []string
	TimeoutMinutes       *int
	ResolveRemote        *bool
	AllowPrerelease      *bool
	Repositories         []string
	MinimumEngineVersion *string
}

// DependencySegment declares one required module. A later segment with the
// same name (case-insensitive) replaces the earlier declaration.
type DependencySegment struct {
	Name            string
	Version         *string
	RequiredVersion *string
	MaximumVersion  *string
	Identity        *string
	// Package false keeps the dependency out of the packaged manifest.
	Package *bool
}

// MergeSegment configures command usage checking for merged builds.
type MergeSegment struct {
	Approved          []string
	InlineModules     []string
	IgnoreModules     []string
	IgnoreCommands    []string
	BuiltinModules    []string
	BuiltinCommands   []string
	DirectivePrefixes []string
}

// ValidationSegment sets per-check severities ("off", "warning", "error").
type ValidationSegment struct {
	MergeCommands   *string
	FileConsistency *string
	Compatibility   *string
	Analyzer        *string
	Dependencies    *string
	Force           *bool
}

type DocsSegment struct {
	Enabled      *bool
	OutputPath   *string
	Locale       *string
	ExternalHelp *bool
}

type FormatSegment struct {
	Enabled      *bool
	SettingsPath *string
}

type SignSegment struct {
	Enabled               *bool
	CertificateThumbprint *string
	TimestampServer       *string
	Include               []string
}

type TestsSegment struct {
	Enabled     *bool
	Path        *string
	Tags        []string
	ExcludeTags []string
}

// ArtefactSegment declares a named package output, keyed by name.
type ArtefactSegment struct {
	Name       string
	Type       *string
	OutputPath *string
	Include    []string
	Exclude    []string
}

// PublishSegment declares a named publish target, keyed by name.
type PublishSegment struct {
	Name       string
	Type       *string
	Artefact   *string
	URL        *string
	Repository *string
	APIKeyEnv  *string
}

type InstallSegment struct {
	Enabled      *bool
	Roots        []string
	KeepVersions *int
}

func (ManifestSegment) segment()   {}
func (BuildSegment) segment()      {}
func (DependencySegment) segment() {}
func (MergeSegment) segment()      {}
func (ValidationSegment) segment() {}
func (DocsSegment) segment()       {}
func (FormatSegment) segment()     {}
func (SignSegment) segment()       {}
func (TestsSegment) segment()      {}
func (ArtefactSegment) segment()   {}
func (PublishSegment) segment()    {}
func (InstallSegment) segment()    {}

// Ptr returns a pointer to v. It keeps segment literals short.
func Ptr[T any](v T) *T {
	return &v
}
