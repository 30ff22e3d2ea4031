package testutil

import (
	"context"

	"github.com/vk/modforge/internal/registry"
	"github.com/vk/modforge/internal/steps"
)

// SimpleModule is a test helper for easily creating a mock module that
// registers a single step handler.
type SimpleModule struct {
	Kind steps.Kind
	Fn   registry.Handler
}

// Register implements the registry.Module interface.
func (m *SimpleModule) Register(r *registry.Registry) {
	r.RegisterHandler(m.Kind, &registry.RegisteredHandler{Fn: m.Fn})
}

// NoOpModule registers a handler that does nothing for every kind it lists.
type NoOpModule struct {
	Kinds []steps.Kind
}

// Register implements the registry.Module interface.
func (m *NoOpModule) Register(r *registry.Registry) {
	for _, k := range m.Kinds {
		r.RegisterHandler(k, &registry.RegisteredHandler{
			Fn: func(context.Context, *registry.Env, steps.Step) error {
				// No operation
				return nil
			},
		})
	}
}
