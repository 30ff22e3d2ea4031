// Package steps derives the ordered step list of a run from its Plan.
package steps

import (
	"fmt"
	"strings"

	"github.com/vk/modforge/internal/dag"
	"github.com/vk/modforge/internal/plan"
)

// Kind is the type of work a step performs.
type Kind string

const (
	KindStage                   Kind = "stage"
	KindBuild                   Kind = "build"
	KindManifest                Kind = "manifest"
	KindMerge                   Kind = "merge"
	KindDocsExtract             Kind = "docs:extract"
	KindDocsWrite               Kind = "docs:write"
	KindDocsExternalHelp        Kind = "docs:external-help"
	KindFormat                  Kind = "format"
	KindSign                    Kind = "sign"
	KindValidateFileConsistency Kind = "validate:file-consistency"
	KindValidateCompatibility   Kind = "validate:compatibility"
	KindValidateAnalyzer        Kind = "validate:analyzer"
	KindTests                   Kind = "tests"
	KindArtefact                Kind = "artefact"
	KindPublish                 Kind = "publish"
	KindInstall                 Kind = "install"
	KindCleanup                 Kind = "cleanup"
)

// AllKinds lists every kind in pipeline order.
var AllKinds = []Kind{
	KindStage, KindBuild, KindManifest, KindMerge,
	KindDocsExtract, KindDocsWrite, KindDocsExternalHelp,
	KindFormat, KindSign,
	KindValidateFileConsistency, KindValidateCompatibility, KindValidateAnalyzer,
	KindTests, KindArtefact, KindPublish, KindInstall, KindCleanup,
}

// Step is one unit of work. Artefact is set for artefact steps and for
// publish steps that ship an artefact; Publish is set for publish steps.
// After lists the keys of the steps that must finish first.
type Step struct {
	Key      string         `yaml:"key"`
	Kind     Kind           `yaml:"kind"`
	After    []string       `yaml:"after,omitempty"`
	Artefact *plan.Artefact `yaml:"artefact,omitempty"`
	Publish  *plan.Publish  `yaml:"publish,omitempty"`
}

func (s Step) String() string {
	return s.Key
}

// rank groups kinds that run at the same stage of the pipeline. Every step
// runs after all steps of the closest lower rank present in the list.
var rank = map[Kind]int{
	KindStage:                   0,
	KindBuild:                   1,
	KindManifest:                2,
	KindMerge:                   3,
	KindDocsExtract:             4,
	KindDocsWrite:               5,
	KindDocsExternalHelp:        6,
	KindFormat:                  7,
	KindSign:                    8,
	KindValidateFileConsistency: 9,
	KindValidateCompatibility:   9,
	KindValidateAnalyzer:        9,
	KindTests:                   10,
	KindArtefact:                11,
	KindPublish:                 12,
	KindInstall:                 13,
	KindCleanup:                 14,
}

// Build returns the steps p asks for, in execution order. A publish step
// that names an unknown artefact is an invalid configuration.
func Build(p plan.Plan) ([]Step, error) {
	var candidates []Step
	add := func(s Step) { candidates = append(candidates, s) }

	add(Step{Key: string(KindStage), Kind: KindStage})
	add(Step{Key: string(KindBuild), Kind: KindBuild})
	add(Step{Key: string(KindManifest), Kind: KindManifest})
	if p.Build.Merge {
		add(Step{Key: string(KindMerge), Kind: KindMerge})
	}
	if p.Docs.Enabled {
		add(Step{Key: string(KindDocsExtract), Kind: KindDocsExtract})
		add(Step{Key: string(KindDocsWrite), Kind: KindDocsWrite})
		if p.Docs.ExternalHelp {
			add(Step{Key: string(KindDocsExternalHelp), Kind: KindDocsExternalHelp})
		}
	}
	if p.Format.Enabled {
		add(Step{Key: string(KindFormat), Kind: KindFormat})
	}
	if p.Sign.Enabled {
		add(Step{Key: string(KindSign), Kind: KindSign})
	}
	if p.Validation.FileConsistency.Enabled() {
		add(Step{Key: string(KindValidateFileConsistency), Kind: KindValidateFileConsistency})
	}
	if p.Validation.Compatibility.Enabled() {
		add(Step{Key: string(KindValidateCompatibility), Kind: KindValidateCompatibility})
	}
	if p.Validation.Analyzer.Enabled() {
		add(Step{Key: string(KindValidateAnalyzer), Kind: KindValidateAnalyzer})
	}
	if p.Tests.Enabled {
		add(Step{Key: string(KindTests), Kind: KindTests})
	}

	artefactKeys := make(map[string]string)
	for i := range p.Artefacts {
		a := p.Artefacts[i]
		key := "artefact:" + a.Name
		artefactKeys[strings.ToLower(a.Name)] = key
		add(Step{Key: key, Kind: KindArtefact, Artefact: &a})
	}
	publishDeps := make(map[string]string)
	for i := range p.Publish {
		pub := p.Publish[i]
		s := Step{Key: "publish:" + pub.Name, Kind: KindPublish, Publish: &pub}
		if pub.Artefact != "" {
			art, ok := p.FindArtefact(pub.Artefact)
			if !ok {
				return nil, fmt.Errorf("%w: publish %q references unknown artefact %q", plan.ErrInvalidConfiguration, pub.Name, pub.Artefact)
			}
			s.Artefact = &art
			publishDeps[s.Key] = artefactKeys[strings.ToLower(art.Name)]
		} else if pub.Type == plan.PublishHTTP {
			return nil, fmt.Errorf("%w: publish %q of type http needs an artefact", plan.ErrInvalidConfiguration, pub.Name)
		}
		add(s)
	}
	if p.Install.Enabled {
		add(Step{Key: string(KindInstall), Kind: KindInstall})
	}
	if p.DeleteStagingAfterRun {
		add(Step{Key: string(KindCleanup), Kind: KindCleanup})
	}

	return order(candidates, publishDeps)
}

func order(candidates []Step, extraDeps map[string]string) ([]Step, error) {
	g := dag.New()
	byKey := make(map[string]Step, len(candidates))
	for _, s := range candidates {
		if _, dup := byKey[s.Key]; dup {
			return nil, fmt.Errorf("%w: duplicate step %q", plan.ErrInvalidConfiguration, s.Key)
		}
		byKey[s.Key] = s
		g.AddNode(s.Key)
	}

	var prevRank []string
	for i := 0; i < len(candidates); {
		r := rank[candidates[i].Kind]
		var current []string
		for ; i < len(candidates) && rank[candidates[i].Kind] == r; i++ {
			current = append(current, candidates[i].Key)
		}
		for _, from := range prevRank {
			for _, to := range current {
				if err := g.AddEdge(from, to); err != nil {
					return nil, err
				}
			}
		}
		prevRank = current
	}
	for to, from := range extraDeps {
		if err := g.AddEdge(from, to); err != nil {
			return nil, err
		}
	}

	keys, err := g.TopologicalOrder()
	if err != nil {
		return nil, err
	}
	out := make([]Step, len(keys))
	for i, k := range keys {
		s := byKey[k]
		if s.After, err = g.Dependencies(k); err != nil {
			return nil, err
		}
		out[i] = s
	}
	return out, nil
}
