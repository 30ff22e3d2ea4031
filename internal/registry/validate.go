package registry

import (
	"context"
	"fmt"
	"strings"

	"github.com/vk/modforge/internal/ctxlog"
	"github.com/vk/modforge/internal/steps"
)

// Validate checks that every step in list has a handler. Kinds in builtin
// are handled by the caller and need no registration.
func (r *Registry) Validate(ctx context.Context, list []steps.Step, builtin ...steps.Kind) error {
	logger := ctxlog.FromContext(ctx)

	skip := make(map[steps.Kind]bool, len(builtin))
	for _, k := range builtin {
		skip[k] = true
	}

	var errs []string
	seen := make(map[steps.Kind]bool)
	for _, s := range list {
		if skip[s.Kind] || seen[s.Kind] {
			continue
		}
		seen[s.Kind] = true
		if _, ok := r.handlers[s.Kind]; !ok {
			errs = append(errs, fmt.Sprintf("step '%s': no handler registered for kind '%s'", s.Key, s.Kind))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("registry validation failed:\n- %s", strings.Join(errs, "\n- "))
	}

	logger.Debug("Registry validated.", "steps", len(list), "kinds", len(seen))
	return nil
}
