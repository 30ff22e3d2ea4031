package config

import (
	"context"
	"fmt"
)

// Loader is the interface for a format-specific build definition loader.
type Loader interface {
	// Load reads every definition file under paths and returns their
	// segments in application order.
	Load(ctx context.Context, paths ...string) ([]Segment, error)
}

// ConfigError reports a definition file that could not be parsed or decoded.
type ConfigError struct {
	Path string
	Err  error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid build definition %s: %v", e.Path, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}
