package hcl_adapter

import "github.com/hashicorp/hcl/v2"

// rootSchema lists every top-level block a build definition may contain.
// Blocks are read with Body.Content so their source order is preserved.
var rootSchema = &hcl.BodySchema{
	Blocks: []hcl.BlockHeaderSchema{
		{Type: "manifest"},
		{Type: "build"},
		{Type: "dependency", LabelNames: []string{"name"}},
		{Type: "merge"},
		{Type: "validation"},
		{Type: "docs"},
		{Type: "format"},
		{Type: "sign"},
		{Type: "tests"},
		{Type: "artefact", LabelNames: []string{"name"}},
		{Type: "publish", LabelNames: []string{"name"}},
		{Type: "install"},
	},
}

type manifestBlock struct {
	Name         *string `hcl:"name,optional"`
	Version      *string `hcl:"version,optional"`
	Prerelease   *string `hcl:"prerelease,optional"`
	Identity     *string `hcl:"identity,optional"`
	Description  *string `hcl:"description,optional"`
	Author       *string `hcl:"author,optional"`
	ManifestPath *string `hcl:"manifest_path,optional"`
}

type buildBlock struct {
	SourceRoot           *string   `hcl:"source_root,optional"`
	StagingPath          *string   `hcl:"staging_path,optional"`
	KeepStaging          *bool     `hcl:"keep_staging,optional"`
	SourceDirs           *[]string `hcl:"source_dirs,optional"`
	Copy                 *[]string `hcl:"copy,optional"`
	BinaryProject        *string   `hcl:"binary_project,optional"`
	Configuration        *string   `hcl:"configuration,optional"`
	Framework            *string   `hcl:"framework,optional"`
	Cmdlets              *[]string `hcl:"cmdlets,optional"`
	Merge                *bool     `hcl:"merge,optional"`
	MergeFile            *string   `hcl:"merge_file,optional"`
	PackageInclude       *[]string `hcl:"package_include,optional"`
	PackageExclude       *[]string `hcl:"package_exclude,optional"`
	TimeoutMinutes       *int      `hcl:"timeout_minutes,optional"`
	ResolveRemote        *bool     `hcl:"resolve_remote,optional"`
	AllowPrerelease      *bool     `hcl:"allow_prerelease,optional"`
	Repositories         *[]string `hcl:"repositories,optional"`
	MinimumEngineVersion *string   `hcl:"minimum_engine_version,optional"`
}

type dependencyBlock struct {
	Version         *string `hcl:"version,optional"`
	RequiredVersion *string `hcl:"required_version,optional"`
	MaximumVersion  *string `hcl:"maximum_version,optional"`
	Identity        *string `hcl:"identity,optional"`
	Package         *bool   `hcl:"package,optional"`
}

type mergeBlock struct {
	Approved          *[]string `hcl:"approved,optional"`
	InlineModules     *[]string `hcl:"inline_modules,optional"`
	IgnoreModules     *[]string `hcl:"ignore_modules,optional"`
	IgnoreCommands    *[]string `hcl:"ignore_commands,optional"`
	BuiltinModules    *[]string `hcl:"builtin_modules,optional"`
	BuiltinCommands   *[]string `hcl:"builtin_commands,optional"`
	DirectivePrefixes *[]string `hcl:"directive_prefixes,optional"`
}

type validationBlock struct {
	MergeCommands   *string `hcl:"merge_commands,optional"`
	FileConsistency *string `hcl:"file_consistency,optional"`
	Compatibility   *string `hcl:"compatibility,optional"`
	Analyzer        *string `hcl:"analyzer,optional"`
	Dependencies    *string `hcl:"dependencies,optional"`
	Force           *bool   `hcl:"force,optional"`
}

type docsBlock struct {
	Enabled      *bool   `hcl:"enabled,optional"`
	OutputPath   *string `hcl:"output_path,optional"`
	Locale       *string `hcl:"locale,optional"`
	ExternalHelp *bool   `hcl:"external_help,optional"`
}

type formatBlock struct {
	Enabled      *bool   `hcl:"enabled,optional"`
	SettingsPath *string `hcl:"settings_path,optional"`
}

type signBlock struct {
	Enabled               *bool     `hcl:"enabled,optional"`
	CertificateThumbprint *string   `hcl:"certificate_thumbprint,optional"`
	TimestampServer       *string   `hcl:"timestamp_server,optional"`
	Include               *[]string `hcl:"include,optional"`
}

type testsBlock struct {
	Enabled     *bool     `hcl:"enabled,optional"`
	Path        *string   `hcl:"path,optional"`
	Tags        *[]string `hcl:"tags,optional"`
	ExcludeTags *[]string `hcl:"exclude_tags,optional"`
}

type artefactBlock struct {
	Type       *string   `hcl:"type,optional"`
	OutputPath *string   `hcl:"output_path,optional"`
	Include    *[]string `hcl:"include,optional"`
	Exclude    *[]string `hcl:"exclude,optional"`
}

type publishBlock struct {
	Type       *string `hcl:"type,optional"`
	Artefact   *string `hcl:"artefact,optional"`
	URL        *string `hcl:"url,optional"`
	Repository *string `hcl:"repository,optional"`
	APIKeyEnv  *string `hcl:"api_key_env,optional"`
}

type installBlock struct {
	Enabled      *bool     `hcl:"enabled,optional"`
	Roots        *[]string `hcl:"roots,optional"`
	KeepVersions *int      `hcl:"keep_versions,optional"`
}
