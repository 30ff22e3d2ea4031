// Package closure computes the transitive set of dependencies reachable from
// a set of root components.
package closure

import (
	"context"
	"sort"
	"strings"

	"github.com/vk/modforge/internal/ctxlog"
)

// DependencyLookup returns the names a component declares as its own
// dependencies, usually read from its installed descriptor.
type DependencyLookup interface {
	DeclaredDependencies(ctx context.Context, name string) ([]string, error)
}

// LookupFunc adapts a function to DependencyLookup.
type LookupFunc func(ctx context.Context, name string) ([]string, error)

// DeclaredDependencies implements DependencyLookup.
func (f LookupFunc) DeclaredDependencies(ctx context.Context, name string) ([]string, error) {
	return f(ctx, name)
}

// node is a transient visited-set entry.
type node struct {
	name    string
	visited bool
}

// Closure expands roots depth-first and returns the discovered transitive
// dependencies, sorted case-insensitively. Roots are not part of the result.
// Names in exclude are neither expanded nor reported. Every name is expanded
// at most once, so cycles terminate. A failing lookup is logged and treated
// as a leaf.
func Closure(ctx context.Context, roots, exclude []string, lookup DependencyLookup) []string {
	logger := ctxlog.FromContext(ctx)

	excluded := make(map[string]struct{}, len(exclude))
	for _, n := range exclude {
		excluded[strings.ToLower(n)] = struct{}{}
	}
	isRoot := make(map[string]struct{}, len(roots))
	for _, n := range roots {
		isRoot[strings.ToLower(n)] = struct{}{}
	}

	nodes := make(map[string]*node)
	var stack []string
	push := func(name string) {
		key := strings.ToLower(strings.TrimSpace(name))
		if key == "" {
			return
		}
		if _, skip := excluded[key]; skip {
			return
		}
		if _, seen := nodes[key]; seen {
			return
		}
		nodes[key] = &node{name: strings.TrimSpace(name)}
		stack = append(stack, key)
	}

	// Push in reverse so roots are expanded in declaration order.
	for i := len(roots) - 1; i >= 0; i-- {
		push(roots[i])
	}

	for len(stack) > 0 {
		key := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		n := nodes[key]
		if n.visited {
			continue
		}
		n.visited = true

		deps, err := lookup.DeclaredDependencies(ctx, n.name)
		if err != nil {
			logger.Warn("Could not read declared dependencies, treating as leaf.", "module", n.name, "error", err)
			continue
		}
		logger.Debug("Expanded dependency node.", "module", n.name, "declared", deps)
		for i := len(deps) - 1; i >= 0; i-- {
			push(deps[i])
		}
	}

	out := make([]string, 0, len(nodes))
	for key, n := range nodes {
		if _, root := isRoot[key]; root {
			continue
		}
		out = append(out, n.name)
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i]) < strings.ToLower(out[j])
	})
	return out
}
