package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/vk/modforge/internal/steps"
)

// Module is the interface that all step handler packages must implement to
// be registered.
type Module interface {
	Register(r *Registry)
}

// Handler performs one step.
type Handler func(ctx context.Context, env *Env, step steps.Step) error

// RegisteredHandler holds the compiled Go function behind a step kind.
type RegisteredHandler struct {
	Fn Handler
	// Description is shown by the plan preview.
	Description string
}

// Registry holds all the registered handlers for a single application
// instance.
type Registry struct {
	handlers map[steps.Kind]*RegisteredHandler
}

// New creates and initializes a new Registry instance.
func New() *Registry {
	return &Registry{
		handlers: make(map[steps.Kind]*RegisteredHandler),
	}
}

// RegisterModules calls Register on every module.
func (r *Registry) RegisterModules(modules ...Module) {
	for _, m := range modules {
		m.Register(r)
	}
}

// RegisterHandler registers the Go function for a step kind. Registering a
// kind twice is a programmer error.
func (r *Registry) RegisterHandler(kind steps.Kind, handler *RegisteredHandler) {
	if handler == nil || handler.Fn == nil {
		panic(fmt.Sprintf("handler for step kind '%s' is nil", kind))
	}
	if _, exists := r.handlers[kind]; exists {
		panic(fmt.Sprintf("handler for step kind '%s' already registered", kind))
	}
	slog.Debug("Registering step handler.", "kind", kind)
	r.handlers[kind] = handler
}

// Handler returns the handler registered for kind.
func (r *Registry) Handler(kind steps.Kind) (*RegisteredHandler, bool) {
	h, ok := r.handlers[kind]
	return h, ok
}

// Kinds returns the registered kinds, sorted.
func (r *Registry) Kinds() []steps.Kind {
	out := make([]steps.Kind, 0, len(r.handlers))
	for k := range r.handlers {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
