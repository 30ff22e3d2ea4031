package registry

import (
	"path/filepath"
	"strings"

	"github.com/vk/modforge/internal/manifest"
	"github.com/vk/modforge/internal/metadata"
	"github.com/vk/modforge/internal/plan"
	"github.com/vk/modforge/internal/procexec"
	"github.com/vk/modforge/internal/steps"
	"github.com/vk/modforge/internal/version"
)

// DefaultShell runs every tool script.
const DefaultShell = "pwsh"

// DefaultScripts names the command each script-driven step invokes.
var DefaultScripts = map[steps.Kind]string{
	steps.KindDocsExtract:      "New-MarkdownHelp",
	steps.KindDocsWrite:        "Update-MarkdownHelp",
	steps.KindDocsExternalHelp: "New-ExternalHelp",
	steps.KindFormat:           "Invoke-Formatter",
	steps.KindSign:             "Set-AuthenticodeSignature",
	steps.KindValidateAnalyzer: "Invoke-ScriptAnalyzer",
	steps.KindTests:            "Invoke-Pester",
	steps.KindPublish:          "Publish-Module",
	steps.KindBuild:            "dotnet",
}

// Tools configures the external programs handlers start.
type Tools struct {
	Shell   string
	Scripts map[steps.Kind]string
}

// Command returns the command configured for kind, falling back to
// DefaultScripts.
func (t Tools) Command(kind steps.Kind) string {
	if c, ok := t.Scripts[kind]; ok && c != "" {
		return c
	}
	return DefaultScripts[kind]
}

func (t Tools) shell() string {
	if t.Shell == "" {
		return DefaultShell
	}
	return t.Shell
}

// Env is everything a handler may use while performing a step. The executor
// builds one Env per run.
type Env struct {
	Plan     plan.Plan
	Run      *plan.RunContext
	Runner   procexec.Runner
	Manifest *manifest.Store
	Local    *metadata.Local
	// Remote may be nil when remote resolution is off.
	Remote version.RemoteLookup
	Tools  Tools

	// Curated is the filtered copy of staging the install step works from.
	// The executor sets it only while that step runs.
	Curated string
}

// Staging is the directory the module is assembled in.
func (e *Env) Staging() string {
	return e.Plan.Build.StagingPath
}

// StagedManifest is the path of the module descriptor inside staging.
func (e *Env) StagedManifest() string {
	return filepath.Join(e.Staging(), e.Plan.ModuleName+".toml")
}

// Param is one named script argument. An empty Value and List render a
// switch.
type Param struct {
	Name  string
	Value string
	List  []string
}

// Script returns the invocation that runs the command configured for kind
// with params, inside staging and bounded by the build timeout.
func (e *Env) Script(kind steps.Kind, params ...Param) procexec.Invocation {
	return e.ScriptCommand(e.Tools.Command(kind), params...)
}

// ScriptCommand is Script for an explicit command.
func (e *Env) ScriptCommand(command string, params ...Param) procexec.Invocation {
	var b strings.Builder
	b.WriteString("$ErrorActionPreference = 'Stop'; ")
	b.WriteString(command)
	for _, p := range params {
		b.WriteString(" -")
		b.WriteString(p.Name)
		switch {
		case len(p.List) > 0:
			quoted := make([]string, len(p.List))
			for i, v := range p.List {
				quoted[i] = procexec.Quote(v)
			}
			b.WriteString(" ")
			b.WriteString(strings.Join(quoted, ","))
		case p.Value != "":
			b.WriteString(" ")
			b.WriteString(procexec.Quote(p.Value))
		}
	}

	inv := procexec.Script(e.Tools.shell(), b.String())
	inv.Dir = e.Staging()
	inv.Timeout = e.Plan.Build.Timeout
	return inv
}

// PublicDirs returns the source dirs whose functions are exported.
func (e *Env) PublicDirs() []string {
	var out []string
	for _, d := range e.Plan.Build.SourceDirs {
		if strings.EqualFold(filepath.Base(d), "Public") {
			out = append(out, d)
		}
	}
	return out
}
