// Package app contains the core application logic. It wires the build
// definition loader, plan resolver, step registry and executor together and
// owns the run lifecycle, decoupled from any specific entrypoint like a CLI.
package app
