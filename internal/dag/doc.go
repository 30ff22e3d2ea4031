// Package dag holds a small directed acyclic graph keyed by string IDs. The
// step builder uses it to order pipeline steps: every edge says "this step
// must run after that one", and TopologicalOrder turns the edges into one
// deterministic sequence.
package dag
