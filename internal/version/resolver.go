package version

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/vk/modforge/internal/ctxlog"
)

// ErrUnresolvedDependency marks a version or identity token that could not
// be resolved. It is a warning unless the caller runs in strict mode.
var ErrUnresolvedDependency = errors.New("unresolved dependency")

// Tokens that ask for the best known version or identity.
const (
	TokenLatest = "latest"
	TokenAuto   = "auto"
)

// IsToken reports whether s is one of the "resolve me" sentinels.
func IsToken(s string) bool {
	s = strings.TrimSpace(s)
	return strings.EqualFold(s, TokenLatest) || strings.EqualFold(s, TokenAuto)
}

// Provenance records where a resolved value came from.
type Provenance string

const (
	// ProvenanceDeclared means every field was a literal in the draft.
	ProvenanceDeclared Provenance = "declared"
	// ProvenanceLocal means at least one token was resolved from installed metadata.
	ProvenanceLocal Provenance = "local"
	// ProvenanceRemote means at least one token was resolved from a remote registry.
	ProvenanceRemote Provenance = "remote"
	// ProvenanceUnresolved means at least one token could not be resolved.
	ProvenanceUnresolved Provenance = "unresolved"
)

// DependencyDraft is a dependency as declared by configuration, before any
// token is resolved.
type DependencyDraft struct {
	Name            string
	MinimumVersion  string
	RequiredVersion string
	MaximumVersion  string
	Identity        string
	// NoPackage keeps the dependency out of the packaged manifest.
	NoPackage bool
}

// ResolvedDependency is a draft whose tokens were replaced by concrete
// values. Fields that could not be resolved are empty.
type ResolvedDependency struct {
	Name            string     `yaml:"name"`
	MinimumVersion  string     `yaml:"minimum_version,omitempty"`
	RequiredVersion string     `yaml:"required_version,omitempty"`
	MaximumVersion  string     `yaml:"maximum_version,omitempty"`
	Identity        string     `yaml:"identity,omitempty"`
	NoPackage       bool       `yaml:"no_package,omitempty"`
	Provenance      Provenance `yaml:"provenance"`
	Outdated        *Outdated  `yaml:"outdated,omitempty"`
}

// Outdated reports that a newer version exists remotely than the one installed.
type Outdated struct {
	Installed string `yaml:"installed"`
	Available string `yaml:"available"`
}

// LocalInfo is the best locally known version and identity of a component.
type LocalInfo struct {
	Version  string
	Identity string
}

// LocalLookup returns the highest-precedence locally installed metadata for
// a named component.
type LocalLookup interface {
	Lookup(ctx context.Context, name string) (LocalInfo, bool)
}

// LocalLookupFunc adapts a function to LocalLookup.
type LocalLookupFunc func(ctx context.Context, name string) (LocalInfo, bool)

// Lookup implements LocalLookup.
func (f LocalLookupFunc) Lookup(ctx context.Context, name string) (LocalInfo, bool) {
	return f(ctx, name)
}

// RemoteVersion is one version a remote registry knows for a name.
type RemoteVersion struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// RemoteLookup queries remote registries for versions. Implementations may
// fail; the resolver never lets such failures escape.
type RemoteLookup interface {
	Find(ctx context.Context, names []string, prerelease bool, repositories []string) ([]RemoteVersion, error)
}

// Resolution is the outcome of resolving one draft. Err is informational:
// it is non-nil when some token stayed unresolved, and wraps
// ErrUnresolvedDependency.
type Resolution struct {
	Dependency ResolvedDependency
	Err        error
}

// Resolver resolves dependency drafts. The zero value resolves locally only
// and ignores prerelease versions from remote registries.
type Resolver struct {
	AllowPrerelease bool
	Repositories    []string
}

// Resolve resolves every token of draft. remote may be nil, which disables
// remote resolution.
func (r Resolver) Resolve(ctx context.Context, draft DependencyDraft, local LocalLookup, remote RemoteLookup) Resolution {
	logger := ctxlog.FromContext(ctx).With("dependency", draft.Name)

	out := ResolvedDependency{
		Name:       draft.Name,
		Identity:   strings.TrimSpace(draft.Identity),
		NoPackage:  draft.NoPackage,
		Provenance: ProvenanceDeclared,
	}

	b := &best{resolver: r, name: draft.Name, local: local, remote: remote}
	var problems []string

	resolveField := func(field, raw string) string {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			return ""
		}
		if !IsToken(raw) {
			if _, err := Parse(raw); err != nil {
				logger.Warn("Declared version is not parseable, leaving it unset.", "field", field, "value", raw, "error", err)
				problems = append(problems, fmt.Sprintf("%s %q is not a valid version", field, raw))
				return ""
			}
			return raw
		}
		v, prov := b.version(ctx)
		if v == "" {
			problems = append(problems, fmt.Sprintf("%s %q could not be resolved", field, raw))
			return ""
		}
		out.Provenance = mergeProvenance(out.Provenance, prov)
		logger.Debug("Resolved version token.", "field", field, "token", raw, "version", v, "provenance", prov)
		return v
	}

	out.MinimumVersion = resolveField("version", draft.MinimumVersion)
	out.RequiredVersion = resolveField("required_version", draft.RequiredVersion)
	out.MaximumVersion = resolveField("maximum_version", draft.MaximumVersion)

	if IsToken(out.Identity) {
		info, ok := b.localInfo(ctx)
		if ok && info.Identity != "" {
			out.Identity = info.Identity
			out.Provenance = mergeProvenance(out.Provenance, ProvenanceLocal)
		} else {
			logger.Warn("Identity token could not be resolved from installed metadata.", "token", out.Identity)
			problems = append(problems, fmt.Sprintf("identity %q could not be resolved", out.Identity))
			out.Identity = ""
		}
	}

	// An exact requirement and a minimum never coexist.
	if out.RequiredVersion != "" {
		out.MinimumVersion = ""
	}

	out.Outdated = b.outdated(ctx)
	if out.Outdated != nil {
		logger.Warn("Installed dependency is outdated.", "installed", out.Outdated.Installed, "available", out.Outdated.Available)
	}

	res := Resolution{Dependency: out}
	if len(problems) > 0 {
		res.Dependency.Provenance = ProvenanceUnresolved
		res.Err = fmt.Errorf("%w: %s: %s", ErrUnresolvedDependency, draft.Name, strings.Join(problems, "; "))
	}
	return res
}

// mergeProvenance keeps the most remote source seen so far.
func mergeProvenance(cur, next Provenance) Provenance {
	rank := map[Provenance]int{ProvenanceDeclared: 0, ProvenanceLocal: 1, ProvenanceRemote: 2}
	if rank[next] > rank[cur] {
		return next
	}
	return cur
}

// best memoizes the local and remote lookups for a single draft.
type best struct {
	resolver Resolver
	name     string
	local    LocalLookup
	remote   RemoteLookup

	localDone  bool
	localOK    bool
	localValue LocalInfo
	localVer   Version

	remoteDone bool
	remoteOK   bool
	remoteVer  Version
}

func (b *best) localInfo(ctx context.Context) (LocalInfo, bool) {
	if b.localDone {
		return b.localValue, b.localOK
	}
	b.localDone = true
	if b.local == nil {
		return LocalInfo{}, false
	}
	info, ok := b.local.Lookup(ctx, b.name)
	if !ok {
		return LocalInfo{}, false
	}
	v, err := Parse(info.Version)
	if err != nil {
		ctxlog.FromContext(ctx).Warn("Installed metadata has an unparseable version.", "dependency", b.name, "version", info.Version, "error", err)
		// Identity may still be usable.
		b.localValue = LocalInfo{Identity: info.Identity}
		b.localOK = info.Identity != ""
		return b.localValue, b.localOK
	}
	b.localValue, b.localOK, b.localVer = info, true, v
	return info, true
}

func (b *best) remoteBest(ctx context.Context) (Version, bool) {
	if b.remoteDone {
		return b.remoteVer, b.remoteOK
	}
	b.remoteDone = true
	if b.remote == nil {
		return Version{}, false
	}
	logger := ctxlog.FromContext(ctx)
	found, err := b.remote.Find(ctx, []string{b.name}, b.resolver.AllowPrerelease, b.resolver.Repositories)
	if err != nil {
		logger.Warn("Remote version lookup failed.", "dependency", b.name, "error", err)
		return Version{}, false
	}
	for _, rv := range found {
		if !strings.EqualFold(rv.Name, b.name) {
			continue
		}
		v, err := Parse(rv.Version)
		if err != nil {
			logger.Debug("Ignoring unparseable remote version.", "dependency", b.name, "version", rv.Version)
			continue
		}
		if v.IsPrerelease() && !b.resolver.AllowPrerelease {
			continue
		}
		if !b.remoteOK || Compare(v, b.remoteVer) > 0 {
			b.remoteVer, b.remoteOK = v, true
		}
	}
	return b.remoteVer, b.remoteOK
}

// version returns the best known version: installed first, remote second.
func (b *best) version(ctx context.Context) (string, Provenance) {
	if info, ok := b.localInfo(ctx); ok && !b.localVer.IsZero() {
		return info.Version, ProvenanceLocal
	}
	if v, ok := b.remoteBest(ctx); ok {
		return v.String(), ProvenanceRemote
	}
	return "", ProvenanceUnresolved
}

// outdated compares the installed version against the remote best. It only
// queries the remote when the local lookup already ran for a token.
func (b *best) outdated(ctx context.Context) *Outdated {
	if !b.localDone || !b.localOK || b.localVer.IsZero() || b.remote == nil {
		return nil
	}
	rv, ok := b.remoteBest(ctx)
	if !ok || Compare(rv, b.localVer) <= 0 {
		return nil
	}
	return &Outdated{Installed: b.localValue.Version, Available: rv.String()}
}
