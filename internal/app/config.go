package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	// Paths are build definition files or directories of them.
	Paths []string

	// ModuleName, StagingPath and Remote override the build definition when
	// set. SourceRoot is only a default the definition may replace.
	ModuleName  string
	SourceRoot  string
	StagingPath string
	Remote      *bool

	RemoteRepository string
	ModuleRoots      []string
	Shell            string

	LogFormat string
	LogLevel  string
	Watch     bool
}

// NewConfig validates cfg and fills in defaults.
func NewConfig(cfg Config) (*Config, error) {
	if len(cfg.Paths) == 0 {
		cfg.Paths = []string{"."}
	}
	for _, p := range cfg.Paths {
		if strings.TrimSpace(p) == "" {
			return nil, errors.New("build definition path cannot be empty")
		}
	}

	cfg.LogFormat = strings.ToLower(cfg.LogFormat)
	switch cfg.LogFormat {
	case "":
		cfg.LogFormat = "text"
	case "text", "json":
	default:
		return nil, fmt.Errorf("invalid log-format %q: must be 'text' or 'json'", cfg.LogFormat)
	}

	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	switch cfg.LogLevel {
	case "":
		cfg.LogLevel = "info"
	case "debug", "info", "warn", "error":
	default:
		return nil, fmt.Errorf("invalid log-level %q: must be 'debug', 'info', 'warn', or 'error'", cfg.LogLevel)
	}

	return &cfg, nil
}

// sourceRoot is the default source root: the explicit one, or the directory
// holding the first build definition.
func (c *Config) sourceRoot() string {
	if c.SourceRoot != "" {
		return c.SourceRoot
	}
	first := c.Paths[0]
	if info, err := os.Stat(first); err == nil && !info.IsDir() {
		return filepath.Dir(first)
	}
	return first
}
