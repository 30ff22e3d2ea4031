// Package registry maps step kinds to the Go handlers that perform them.
//
// Step handler packages under modules/ implement Module and register their
// handlers during application startup. Before a run starts the executor
// validates the step list against the registry so that a kind without a
// handler is reported before any work is done.
package registry
