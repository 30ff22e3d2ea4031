// This file contains the logic for translating decoded HCL blocks into the
// format-agnostic segments defined in the config package.

package hcl_adapter

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/vk/modforge/internal/config"
)

// translateBlock decodes one top-level block into its segment.
func translateBlock(block *hcl.Block, evalCtx *hcl.EvalContext) (config.Segment, hcl.Diagnostics) {
	switch block.Type {
	case "manifest":
		var b manifestBlock
		diags := gohcl.DecodeBody(block.Body, evalCtx, &b)
		return config.ManifestSegment{
			Name:         b.Name,
			Version:      b.Version,
			Prerelease:   b.Prerelease,
			Identity:     b.Identity,
			Description:  b.Description,
			Author:       b.Author,
			ManifestPath: b.ManifestPath,
		}, diags

	case "build":
		var b buildBlock
		diags := gohcl.DecodeBody(block.Body, evalCtx, &b)
		return config.BuildSegment{
			SourceRoot:           b.SourceRoot,
			StagingPath:          b.StagingPath,
			KeepStaging:          b.KeepStaging,
			SourceDirs:           list(b.SourceDirs),
			Copy:                 list(b.Copy),
			BinaryProject:        b.BinaryProject,
			Configuration:        b.Configuration,
			Framework:            b.Framework,
			Cmdlets:              list(b.Cmdlets),
			Merge:                b.Merge,
			MergeFile:            b.MergeFile,
			PackageInclude:       list(b.PackageInclude),
			PackageExclude:       list(b.PackageExclude),
			TimeoutMinutes:       b.TimeoutMinutes,
			ResolveRemote:        b.ResolveRemote,
			AllowPrerelease:      b.AllowPrerelease,
			Repositories:         list(b.Repositories),
			MinimumEngineVersion: b.MinimumEngineVersion,
		}, diags

	case "dependency":
		var b dependencyBlock
		diags := gohcl.DecodeBody(block.Body, evalCtx, &b)
		return config.DependencySegment{
			Name:            block.Labels[0],
			Version:         b.Version,
			RequiredVersion: b.RequiredVersion,
			MaximumVersion:  b.MaximumVersion,
			Identity:        b.Identity,
			Package:         b.Package,
		}, diags

	case "merge":
		var b mergeBlock
		diags := gohcl.DecodeBody(block.Body, evalCtx, &b)
		return config.MergeSegment{
			Approved:          list(b.Approved),
			InlineModules:     list(b.InlineModules),
			IgnoreModules:     list(b.IgnoreModules),
			IgnoreCommands:    list(b.IgnoreCommands),
			BuiltinModules:    list(b.BuiltinModules),
			BuiltinCommands:   list(b.BuiltinCommands),
			DirectivePrefixes: list(b.DirectivePrefixes),
		}, diags

	case "validation":
		var b validationBlock
		diags := gohcl.DecodeBody(block.Body, evalCtx, &b)
		return config.ValidationSegment{
			MergeCommands:   b.MergeCommands,
			FileConsistency: b.FileConsistency,
			Compatibility:   b.Compatibility,
			Analyzer:        b.Analyzer,
			Dependencies:    b.Dependencies,
			Force:           b.Force,
		}, diags

	case "docs":
		var b docsBlock
		diags := gohcl.DecodeBody(block.Body, evalCtx, &b)
		return config.DocsSegment{
			Enabled:      b.Enabled,
			OutputPath:   b.OutputPath,
			Locale:       b.Locale,
			ExternalHelp: b.ExternalHelp,
		}, diags

	case "format":
		var b formatBlock
		diags := gohcl.DecodeBody(block.Body, evalCtx, &b)
		return config.FormatSegment{Enabled: b.Enabled, SettingsPath: b.SettingsPath}, diags

	case "sign":
		var b signBlock
		diags := gohcl.DecodeBody(block.Body, evalCtx, &b)
		return config.SignSegment{
			Enabled:               b.Enabled,
			CertificateThumbprint: b.CertificateThumbprint,
			TimestampServer:       b.TimestampServer,
			Include:               list(b.Include),
		}, diags

	case "tests":
		var b testsBlock
		diags := gohcl.DecodeBody(block.Body, evalCtx, &b)
		return config.TestsSegment{
			Enabled:     b.Enabled,
			Path:        b.Path,
			Tags:        list(b.Tags),
			ExcludeTags: list(b.ExcludeTags),
		}, diags

	case "artefact":
		var b artefactBlock
		diags := gohcl.DecodeBody(block.Body, evalCtx, &b)
		return config.ArtefactSegment{
			Name:       block.Labels[0],
			Type:       b.Type,
			OutputPath: b.OutputPath,
			Include:    list(b.Include),
			Exclude:    list(b.Exclude),
		}, diags

	case "publish":
		var b publishBlock
		diags := gohcl.DecodeBody(block.Body, evalCtx, &b)
		return config.PublishSegment{
			Name:       block.Labels[0],
			Type:       b.Type,
			Artefact:   b.Artefact,
			URL:        b.URL,
			Repository: b.Repository,
			APIKeyEnv:  b.APIKeyEnv,
		}, diags

	case "install":
		var b installBlock
		diags := gohcl.DecodeBody(block.Body, evalCtx, &b)
		return config.InstallSegment{
			Enabled:      b.Enabled,
			Roots:        list(b.Roots),
			KeepVersions: b.KeepVersions,
		}, diags
	}

	// The root schema only admits the block types above.
	panic(fmt.Sprintf("hcl_adapter: unhandled block type %q", block.Type))
}

// list keeps the set/unset distinction: an absent attribute stays nil and an
// explicit empty list becomes a non-nil empty slice.
func list(p *[]string) []string {
	if p == nil {
		return nil
	}
	if *p == nil {
		return []string{}
	}
	return *p
}
