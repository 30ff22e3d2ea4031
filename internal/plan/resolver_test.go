package plan

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/modforge/internal/config"
	"github.com/vk/modforge/internal/usage"
	"github.com/vk/modforge/internal/version"
)

// fakeManifest serves keys from an in-memory map of path -> key -> value.
type fakeManifest map[string]map[string]string

func (f fakeManifest) ReadString(path, key string) (string, error) {
	doc, ok := f[path]
	if !ok {
		return "", fmt.Errorf("open %s: no such file", path)
	}
	v, ok := doc[key]
	if !ok {
		return "", errors.New("key not found")
	}
	return v, nil
}

func localVersions(m map[string]string) version.LocalLookup {
	return version.LocalLookupFunc(func(_ context.Context, name string) (version.LocalInfo, bool) {
		v, ok := m[strings.ToLower(name)]
		return version.LocalInfo{Version: v}, ok
	})
}

func newTestResolver(t *testing.T) *Resolver {
	t.Helper()
	return &Resolver{
		Manifest: fakeManifest{},
		Local:    localVersions(map[string]string{"foo": "2.3.0", "bar": "1.0.0"}),
		TempDir:  t.TempDir(),
	}
}

func baseInput() Input {
	return Input{ModuleName: "Widget", SourceRoot: "/src/widget"}
}

func TestResolve_RequiresNameAndSourceRoot(t *testing.T) {
	r := newTestResolver(t)
	rc := NewRunContextWithID("run")

	_, err := r.Resolve(context.Background(), rc, Input{SourceRoot: "/src"})
	assert.True(t, errors.Is(err, ErrInvalidConfiguration))

	_, err = r.Resolve(context.Background(), rc, Input{ModuleName: "Widget"})
	assert.True(t, errors.Is(err, ErrInvalidConfiguration))

	// An explicit empty name in a later segment clears the baseline.
	in := baseInput()
	in.Segments = []config.Segment{config.ManifestSegment{Name: config.Ptr("  ")}}
	_, err = r.Resolve(context.Background(), rc, in)
	assert.True(t, errors.Is(err, ErrInvalidConfiguration))
}

func TestResolve_LastWinsPerField(t *testing.T) {
	// --- Arrange ---
	r := newTestResolver(t)
	in := baseInput()
	in.Base = config.BuildSegment{Configuration: config.Ptr("Debug"), TimeoutMinutes: config.Ptr(3)}
	in.Segments = []config.Segment{
		config.ManifestSegment{Version: config.Ptr("1.0.0"), Author: config.Ptr("Jane")},
		config.BuildSegment{SourceDirs: []string{"Lib"}, Merge: config.Ptr(true)},
		config.DependencySegment{Name: "Foo", Version: config.Ptr("1.0.0")},
		config.DependencySegment{Name: "Bar", Version: config.Ptr("0.5.0"), Package: config.Ptr(false)},
		config.ManifestSegment{Version: config.Ptr("1.1.0-rc1")},
		config.BuildSegment{Configuration: config.Ptr("Release")},
		config.DependencySegment{Name: "foo", RequiredVersion: config.Ptr("2.0.0")},
		config.ValidationSegment{MergeCommands: config.Ptr("warning")},
		config.ValidationSegment{Force: config.Ptr(true)},
	}

	// --- Act ---
	p, err := r.Resolve(context.Background(), NewRunContextWithID("run"), in)

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, "1.1.0", p.Version)
	assert.Equal(t, "rc1", p.Prerelease)
	assert.Equal(t, VersionDeclared, p.VersionSource)
	assert.Equal(t, "Jane", p.Author)
	assert.Equal(t, "Release", p.Build.Configuration)
	assert.Equal(t, 3*time.Minute, p.Build.Timeout)
	assert.Equal(t, []string{"Lib"}, p.Build.SourceDirs)
	assert.True(t, p.Build.Merge)
	assert.Equal(t, usage.SeverityWarning, p.Validation.MergeCommands)
	assert.True(t, p.Validation.Force)

	require.Len(t, p.BuildDependencies, 2)
	assert.Equal(t, "foo", p.BuildDependencies[0].Name, "redeclaration replaces the draft in place")
	assert.Equal(t, "2.0.0", p.BuildDependencies[0].RequiredVersion)
	assert.Empty(t, p.BuildDependencies[0].MinimumVersion)
	assert.Equal(t, "Bar", p.BuildDependencies[1].Name)

	require.Len(t, p.PackageDependencies, 1)
	assert.Equal(t, "foo", p.PackageDependencies[0].Name)
}

func TestResolve_RequiredLatestScenario(t *testing.T) {
	r := newTestResolver(t)
	in := baseInput()
	in.Segments = []config.Segment{
		config.DependencySegment{Name: "Foo", Version: config.Ptr("1.0.0"), RequiredVersion: config.Ptr("latest")},
	}

	p, err := r.Resolve(context.Background(), NewRunContextWithID("run"), in)

	require.NoError(t, err)
	require.Len(t, p.BuildDependencies, 1)
	assert.Equal(t, "2.3.0", p.BuildDependencies[0].RequiredVersion)
	assert.Empty(t, p.BuildDependencies[0].MinimumVersion)
	assert.Equal(t, version.ProvenanceLocal, p.BuildDependencies[0].Provenance)
}

func TestResolve_AutoVersion(t *testing.T) {
	r := newTestResolver(t)
	manifestPath := filepath.Join("/src/widget", "Widget.toml")
	r.Manifest = fakeManifest{manifestPath: {"version": "4.2.0", "prerelease": "preview"}}
	in := baseInput()
	in.Segments = []config.Segment{config.ManifestSegment{Version: config.Ptr("auto")}}

	p, err := r.Resolve(context.Background(), NewRunContextWithID("run"), in)

	require.NoError(t, err)
	assert.Equal(t, "4.2.0", p.Version)
	assert.Equal(t, "preview", p.Prerelease)
	assert.Equal(t, VersionManifest, p.VersionSource)
	assert.Equal(t, manifestPath, p.ManifestPath)
	assert.Empty(t, p.Warnings)
}

func TestResolve_AutoVersionFallsBackWithWarning(t *testing.T) {
	r := newTestResolver(t)
	rc := NewRunContextWithID("run")
	in := baseInput()
	in.Segments = []config.Segment{config.ManifestSegment{Version: config.Ptr("auto")}}

	p, err := r.Resolve(context.Background(), rc, in)

	require.NoError(t, err)
	assert.Equal(t, DefaultVersion, p.Version)
	assert.Equal(t, VersionDefault, p.VersionSource)
	require.Len(t, p.Warnings, 1)
	assert.Equal(t, p.Warnings, rc.Warnings())
}

func TestResolve_Idempotent(t *testing.T) {
	r := newTestResolver(t)
	rc := NewRunContextWithID("run")
	in := baseInput()
	in.Segments = []config.Segment{
		config.ManifestSegment{Version: config.Ptr("auto")},
		config.DependencySegment{Name: "Foo", Version: config.Ptr("latest")},
		config.DependencySegment{Name: "Missing", Version: config.Ptr("latest")},
		config.ArtefactSegment{Name: "zip", Exclude: []string{"tests/**"}},
		config.PublishSegment{Name: "gallery", Artefact: config.Ptr("zip")},
	}

	first, err := r.Resolve(context.Background(), rc, in)
	require.NoError(t, err)
	second, err := r.Resolve(context.Background(), rc, in)
	require.NoError(t, err)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("plans differ (-first +second):\n%s", diff)
	}
}

func TestResolve_PlanDoesNotAliasInputs(t *testing.T) {
	r := newTestResolver(t)
	dirs := []string{"Public"}
	in := baseInput()
	in.Segments = []config.Segment{config.BuildSegment{SourceDirs: dirs}}

	p, err := r.Resolve(context.Background(), NewRunContextWithID("run"), in)
	require.NoError(t, err)
	dirs[0] = "Changed"

	assert.Equal(t, []string{"Public"}, p.Build.SourceDirs)
}

func TestResolve_Staging(t *testing.T) {
	r := newTestResolver(t)

	t.Run("generated", func(t *testing.T) {
		p, err := r.Resolve(context.Background(), NewRunContextWithID("abc"), baseInput())
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(r.TempDir, "modforge-Widget-abc"), p.Build.StagingPath)
		assert.True(t, p.StagingWasGenerated)
		assert.True(t, p.DeleteStagingAfterRun)
	})

	t.Run("generated but kept", func(t *testing.T) {
		in := baseInput()
		in.Segments = []config.Segment{config.BuildSegment{KeepStaging: config.Ptr(true)}}
		p, err := r.Resolve(context.Background(), NewRunContextWithID("abc"), in)
		require.NoError(t, err)
		assert.True(t, p.StagingWasGenerated)
		assert.False(t, p.DeleteStagingAfterRun)
	})

	t.Run("explicit", func(t *testing.T) {
		in := baseInput()
		in.Segments = []config.Segment{config.BuildSegment{StagingPath: config.Ptr("/tmp/stage")}}
		p, err := r.Resolve(context.Background(), NewRunContextWithID("abc"), in)
		require.NoError(t, err)
		assert.Equal(t, filepath.Clean("/tmp/stage"), p.Build.StagingPath)
		assert.False(t, p.StagingWasGenerated)
		assert.False(t, p.DeleteStagingAfterRun)
	})
}

func TestResolve_UnresolvedDependencySeverity(t *testing.T) {
	r := newTestResolver(t)
	deps := config.DependencySegment{Name: "Missing", Version: config.Ptr("latest")}

	t.Run("warning by default", func(t *testing.T) {
		in := baseInput()
		in.Segments = []config.Segment{deps}
		p, err := r.Resolve(context.Background(), NewRunContextWithID("run"), in)
		require.NoError(t, err)
		assert.Equal(t, version.ProvenanceUnresolved, p.BuildDependencies[0].Provenance)
		assert.NotEmpty(t, p.Warnings)
	})

	t.Run("error when strict", func(t *testing.T) {
		in := baseInput()
		in.Segments = []config.Segment{deps, config.ValidationSegment{Dependencies: config.Ptr("error")}}
		_, err := r.Resolve(context.Background(), NewRunContextWithID("run"), in)
		assert.True(t, errors.Is(err, version.ErrUnresolvedDependency))
	})

	t.Run("forced", func(t *testing.T) {
		in := baseInput()
		in.Segments = []config.Segment{deps, config.ValidationSegment{Dependencies: config.Ptr("error"), Force: config.Ptr(true)}}
		_, err := r.Resolve(context.Background(), NewRunContextWithID("run"), in)
		assert.NoError(t, err)
	})
}

func TestResolve_InvalidValues(t *testing.T) {
	testCases := []struct {
		name string
		seg  config.Segment
	}{
		{"severity", config.ValidationSegment{Analyzer: config.Ptr("loud")}},
		{"artefact type", config.ArtefactSegment{Name: "x", Type: config.Ptr("tarball")}},
		{"publish type", config.PublishSegment{Name: "x", Type: config.Ptr("ftp")}},
		{"http publish without url", config.PublishSegment{Name: "x", Type: config.Ptr("http")}},
		{"timeout", config.BuildSegment{TimeoutMinutes: config.Ptr(0)}},
		{"engine version", config.BuildSegment{MinimumEngineVersion: config.Ptr("seven")}},
		{"empty dependency name", config.DependencySegment{Name: "  "}},
		{"empty artefact name", config.ArtefactSegment{Name: ""}},
		{"empty publish name", config.PublishSegment{Name: " "}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			in := baseInput()
			in.Segments = []config.Segment{tc.seg}
			_, err := newTestResolver(t).Resolve(context.Background(), NewRunContextWithID("run"), in)
			assert.True(t, errors.Is(err, ErrInvalidConfiguration), "got %v", err)
		})
	}
}

func TestResolve_NilSegmentPanics(t *testing.T) {
	in := baseInput()
	in.Segments = []config.Segment{nil}

	assert.Panics(t, func() {
		_, _ = newTestResolver(t).Resolve(context.Background(), NewRunContextWithID("run"), in)
	})
}

func TestRunContext(t *testing.T) {
	rc := NewRunContext()
	assert.NotEmpty(t, rc.ID)
	assert.NotEqual(t, rc.ID, NewRunContext().ID)

	assert.True(t, rc.EnsureOnce("PSGallery"))
	assert.False(t, rc.EnsureOnce("psgallery"))

	assert.Nil(t, rc.Remote(nil))
}
