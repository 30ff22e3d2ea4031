package app

import (
	"context"
	"io"
	"log/slog"

	"github.com/vk/modforge/internal/config"
	"github.com/vk/modforge/internal/ctxlog"
	"github.com/vk/modforge/internal/manifest"
	"github.com/vk/modforge/internal/metadata"
	"github.com/vk/modforge/internal/procexec"
	"github.com/vk/modforge/internal/registry"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW     io.Writer
	logger   *slog.Logger
	config   *Config
	loader   config.Loader
	registry *registry.Registry

	runner   procexec.Runner
	manifest *manifest.Store
	local    *metadata.Local
	remote   *metadata.Remote
	// tempDir hosts generated staging and install copies; os.TempDir() when
	// empty.
	tempDir  string
}

// NewApp is the constructor for the main application. It returns a fully
// initialized App instance with its own isolated logger and registry. When
// no modules are given the core step handlers are registered.
func NewApp(outW io.Writer, cfg *Config, loader config.Loader, modules ...registry.Module) *App {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, outW)
	logger.Debug("Logger configured successfully.")

	reg := registry.New()
	if len(modules) == 0 {
		modules = coreModules
	}
	reg.RegisterModules(modules...)
	logger.Debug("All step handlers registered.", "modules", len(modules), "kinds", reg.Kinds())

	return &App{
		outW:     outW,
		logger:   logger,
		config:   cfg,
		loader:   loader,
		registry: reg,
		runner:   procexec.Exec{},
		manifest: manifest.NewStore(),
		local:    metadata.NewLocal(cfg.ModuleRoots...),
		remote:   metadata.NewRemote(cfg.RemoteRepository, 0),
	}
}

// Registry returns the application's registry. This is primarily for testing.
func (a *App) Registry() *registry.Registry {
	return a.registry
}

// Close releases the remote registry client.
func (a *App) Close() error {
	return a.remote.Close()
}

func (a *App) context(ctx context.Context) context.Context {
	return ctxlog.WithLogger(ctx, a.logger)
}
