package steps

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/modforge/internal/plan"
	"github.com/vk/modforge/internal/usage"
)

func keys(steps []Step) []string {
	out := make([]string, len(steps))
	for i, s := range steps {
		out[i] = s.Key
	}
	return out
}

func indexOf(steps []Step, kind Kind) int {
	for i, s := range steps {
		if s.Kind == kind {
			return i
		}
	}
	return -1
}

func minimalPlan() plan.Plan {
	return plan.Plan{
		ModuleName: "Widget",
		Validation: plan.Validation{
			MergeCommands:   usage.SeverityError,
			FileConsistency: usage.SeverityOff,
			Compatibility:   usage.SeverityOff,
			Analyzer:        usage.SeverityOff,
		},
	}
}

func TestBuild_Minimal(t *testing.T) {
	got, err := Build(minimalPlan())

	require.NoError(t, err)
	assert.Equal(t, []string{"stage", "build", "manifest"}, keys(got))
}

func TestBuild_DocsDisabledSignEnabled(t *testing.T) {
	// --- Arrange ---
	p := plan.Plan{
		Validation: plan.DefaultValidation(),
		Format:     plan.Format{Enabled: true},
		Sign:       plan.Sign{Enabled: true},
		Docs:       plan.Docs{Enabled: false, ExternalHelp: true},
	}

	// --- Act ---
	got, err := Build(p)

	// --- Assert ---
	require.NoError(t, err)
	for _, s := range got {
		assert.NotContains(t, []Kind{KindDocsExtract, KindDocsWrite, KindDocsExternalHelp}, s.Kind)
	}
	signs := 0
	for _, s := range got {
		if s.Kind == KindSign {
			signs++
		}
	}
	require.Equal(t, 1, signs)
	sign := indexOf(got, KindSign)
	assert.Greater(t, sign, indexOf(got, KindFormat))
	assert.Less(t, sign, indexOf(got, KindValidateFileConsistency))
	assert.Less(t, sign, indexOf(got, KindValidateCompatibility))
}

func TestBuild_Everything(t *testing.T) {
	p := plan.Plan{
		Build:      plan.BuildSettings{Merge: true},
		Validation: plan.Validation{FileConsistency: usage.SeverityWarning, Compatibility: usage.SeverityError, Analyzer: usage.SeverityWarning},
		Docs:       plan.Docs{Enabled: true, ExternalHelp: true},
		Format:     plan.Format{Enabled: true},
		Sign:       plan.Sign{Enabled: true},
		Tests:      plan.Tests{Enabled: true},
		Artefacts: []plan.Artefact{
			{Name: "zip", Type: plan.ArtefactZip},
			{Name: "dir", Type: plan.ArtefactDirectory},
		},
		Publish: []plan.Publish{
			{Name: "web", Type: plan.PublishHTTP, Artefact: "ZIP", URL: "http://x"},
			{Name: "gallery", Type: plan.PublishRepository},
		},
		Install:               plan.Install{Enabled: true},
		DeleteStagingAfterRun: true,
	}

	got, err := Build(p)

	require.NoError(t, err)
	assert.Equal(t, []string{
		"stage", "build", "manifest", "merge",
		"docs:extract", "docs:write", "docs:external-help",
		"format", "sign",
		"validate:file-consistency", "validate:compatibility", "validate:analyzer",
		"tests", "artefact:zip", "artefact:dir", "publish:web", "publish:gallery",
		"install", "cleanup",
	}, keys(got))

	web := got[indexOf(got, KindPublish)]
	require.NotNil(t, web.Publish)
	require.NotNil(t, web.Artefact)
	assert.Equal(t, "zip", web.Artefact.Name)
}

func TestBuild_StepsListWhatTheyWaitFor(t *testing.T) {
	// --- Arrange ---
	p := minimalPlan()
	p.Artefacts = []plan.Artefact{{Name: "zip", Type: plan.ArtefactZip}, {Name: "dir", Type: plan.ArtefactDirectory}}
	p.Publish = []plan.Publish{{Name: "web", Type: plan.PublishHTTP, Artefact: "zip", URL: "http://x"}}

	// --- Act ---
	got, err := Build(p)

	// --- Assert ---
	require.NoError(t, err)
	assert.Empty(t, got[indexOf(got, KindStage)].After)
	assert.Equal(t, []string{"stage"}, got[indexOf(got, KindBuild)].After)
	assert.Equal(t, []string{"manifest"}, got[indexOf(got, KindArtefact)].After)
	web := got[indexOf(got, KindPublish)]
	assert.Equal(t, "publish:web", web.Key)
	assert.Equal(t, []string{"artefact:zip", "artefact:dir"}, web.After)
}

func TestBuild_ArtefactStepsDoNotAliasPlan(t *testing.T) {
	p := minimalPlan()
	p.Artefacts = []plan.Artefact{{Name: "a"}, {Name: "b"}}

	got, err := Build(p)

	require.NoError(t, err)
	assert.Equal(t, "a", got[3].Artefact.Name)
	assert.Equal(t, "b", got[4].Artefact.Name)
}

func TestBuild_InvalidPublish(t *testing.T) {
	testCases := []struct {
		name string
		pub  plan.Publish
	}{
		{"unknown artefact", plan.Publish{Name: "p", Type: plan.PublishRepository, Artefact: "missing"}},
		{"http without artefact", plan.Publish{Name: "p", Type: plan.PublishHTTP, URL: "http://x"}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			p := minimalPlan()
			p.Publish = []plan.Publish{tc.pub}

			_, err := Build(p)

			assert.True(t, errors.Is(err, plan.ErrInvalidConfiguration))
		})
	}
}
