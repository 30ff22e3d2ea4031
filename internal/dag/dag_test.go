package dag

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddNode(t *testing.T) {
	g := New()

	g.AddNode("stage")
	g.AddNode("stage") // idempotent
	g.AddNode("build")

	require.Len(t, g.nodes, 2)
	assert.Equal(t, 0, g.nodes["stage"].seq)
	assert.Equal(t, 1, g.nodes["build"].seq)
	assert.NotNil(t, g.nodes["stage"].deps)
	assert.NotNil(t, g.nodes["stage"].dependents)
}

func TestAddEdge(t *testing.T) {
	t.Run("success case", func(t *testing.T) {
		g := New()
		g.AddNode("artefact:zip")
		g.AddNode("publish:gallery")

		require.NoError(t, g.AddEdge("artefact:zip", "publish:gallery"))

		deps, err := g.Dependencies("publish:gallery")
		require.NoError(t, err)
		assert.Equal(t, []string{"artefact:zip"}, deps)
	})

	t.Run("error cases", func(t *testing.T) {
		g := New()
		g.AddNode("a")

		assert.ErrorContains(t, g.AddEdge("dne", "a"), "source node not found")
		assert.ErrorContains(t, g.AddEdge("a", "dne"), "destination node not found")
		assert.ErrorContains(t, g.AddEdge("a", "a"), "self-referential edge")

		_, err := g.Dependencies("dne")
		assert.Error(t, err)
	})
}

func TestDetectCycles(t *testing.T) {
	t.Run("empty graph has no cycles", func(t *testing.T) {
		assert.NoError(t, New().detectCycles())
	})

	t.Run("chain with a transitive edge has no cycles", func(t *testing.T) {
		g := New()
		for _, id := range []string{"a", "b", "c", "d"} {
			g.AddNode(id)
		}
		require.NoError(t, g.AddEdge("a", "b"))
		require.NoError(t, g.AddEdge("b", "c"))
		require.NoError(t, g.AddEdge("a", "c"))
		require.NoError(t, g.AddEdge("c", "d"))
		assert.NoError(t, g.detectCycles())
	})

	t.Run("cycle in a disjoint component is detected", func(t *testing.T) {
		g := New()
		for _, id := range []string{"a", "b", "x", "y", "z"} {
			g.AddNode(id)
		}
		require.NoError(t, g.AddEdge("a", "b"))
		require.NoError(t, g.AddEdge("x", "y"))
		require.NoError(t, g.AddEdge("y", "z"))
		require.NoError(t, g.AddEdge("z", "y"))

		assert.ErrorContains(t, g.detectCycles(), "cycle detected")
	})
}

func TestTopologicalOrder(t *testing.T) {
	t.Run("insertion order breaks ties", func(t *testing.T) {
		g := New()
		for _, id := range []string{"stage", "artefact:a", "publish:p", "artefact:b", "cleanup"} {
			g.AddNode(id)
		}
		require.NoError(t, g.AddEdge("stage", "artefact:a"))
		require.NoError(t, g.AddEdge("stage", "artefact:b"))
		require.NoError(t, g.AddEdge("artefact:b", "publish:p"))
		require.NoError(t, g.AddEdge("publish:p", "cleanup"))

		order, err := g.TopologicalOrder()

		require.NoError(t, err)
		assert.Equal(t, []string{"stage", "artefact:a", "artefact:b", "publish:p", "cleanup"}, order)
	})

	t.Run("cycle is an error", func(t *testing.T) {
		g := New()
		g.AddNode("a")
		g.AddNode("b")
		require.NoError(t, g.AddEdge("a", "b"))
		require.NoError(t, g.AddEdge("b", "a"))

		_, err := g.TopologicalOrder()

		assert.ErrorContains(t, err, "cycle detected")
	})
}
