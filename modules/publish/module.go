package publish

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"

	"github.com/vk/modforge/internal/ctxlog"
	"github.com/vk/modforge/internal/plan"
	"github.com/vk/modforge/internal/registry"
	"github.com/vk/modforge/internal/steps"
	"github.com/vk/modforge/modules/artefact"
)

// RegisterRepositoryCommand registers a publish repository before its first
// use in a run.
const RegisterRepositoryCommand = "Register-PSResourceRepository"

// Module implements the registry.Module interface for this package.
type Module struct {
	// Client uploads http artefacts. http.DefaultClient when nil.
	Client *http.Client
}

func (m *Module) client() *http.Client {
	if m.Client == nil {
		return http.DefaultClient
	}
	return m.Client
}

// OnPublish ships an artefact or the staged module to its destination.
func (m *Module) OnPublish(ctx context.Context, env *registry.Env, s steps.Step) error {
	if s.Publish == nil {
		return fmt.Errorf("step %s has no publish target", s.Key)
	}
	switch s.Publish.Type {
	case plan.PublishHTTP:
		return m.upload(ctx, env, *s.Publish, s.Artefact)
	case plan.PublishRepository:
		return publishToRepository(ctx, env, s)
	default:
		return fmt.Errorf("unknown publish type: '%s'", s.Publish.Type)
	}
}

// upload PUTs a zip artefact to the target url.
func (m *Module) upload(ctx context.Context, env *registry.Env, pub plan.Publish, a *plan.Artefact) error {
	logger := ctxlog.FromContext(ctx).With("publish", pub.Name, "action", "upload")

	if a == nil || a.Type != plan.ArtefactZip {
		return fmt.Errorf("http publish '%s' needs a zip artefact", pub.Name)
	}
	source := artefact.Path(env.Plan, *a)

	file, err := os.Open(source)
	if err != nil {
		return fmt.Errorf("failed to open artefact '%s': %w", source, err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return fmt.Errorf("failed to get file stats for '%s': %w", source, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, pub.URL, file)
	if err != nil {
		return fmt.Errorf("failed to create upload request: %w", err)
	}

	contentType := mime.TypeByExtension(filepath.Ext(source))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	req.Header.Set("Content-Type", contentType)
	req.ContentLength = stat.Size()
	if key := apiKey(pub); key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}

	logger.Info("Uploading artefact", "source", source, "size", stat.Size(), "contentType", contentType)

	resp, err := m.client().Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute upload request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("upload failed with status: %s", resp.Status)
	}

	logger.Info("Successfully uploaded artefact", "status", resp.Status)
	return nil
}

// publishToRepository runs the publish script against a module repository,
// registering the repository once per run.
func publishToRepository(ctx context.Context, env *registry.Env, s steps.Step) error {
	pub := *s.Publish
	logger := ctxlog.FromContext(ctx).With("publish", pub.Name, "repository", pub.Repository)

	if pub.Repository != "" && pub.URL != "" && env.Run.EnsureOnce("repository:"+pub.Repository) {
		logger.Info("Registering repository.", "url", pub.URL)
		inv := env.ScriptCommand(RegisterRepositoryCommand,
			registry.Param{Name: "Name", Value: pub.Repository},
			registry.Param{Name: "Uri", Value: pub.URL},
			registry.Param{Name: "Trusted"},
		)
		if _, err := env.Runner.Run(ctx, inv); err != nil {
			return fmt.Errorf("failed to register repository '%s': %w", pub.Repository, err)
		}
	}

	path := env.Staging()
	if s.Artefact != nil {
		path = artefact.Path(env.Plan, *s.Artefact)
	}
	params := []registry.Param{{Name: "Path", Value: path}}
	if pub.Repository != "" {
		params = append(params, registry.Param{Name: "Repository", Value: pub.Repository})
	}
	inv := env.Script(s.Kind, params...)
	if key := apiKey(pub); key != "" {
		// The key is passed through the environment, never on the command line.
		inv.Env = append(inv.Env, "MODFORGE_API_KEY="+key)
		inv.Args[len(inv.Args)-1] += " -ApiKey $env:MODFORGE_API_KEY"
	}

	logger.Info("Publishing module.", "path", path)
	if _, err := env.Runner.Run(ctx, inv); err != nil {
		return fmt.Errorf("publish to repository failed: %w", err)
	}
	return nil
}

func apiKey(pub plan.Publish) string {
	if pub.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(pub.APIKeyEnv)
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterHandler(steps.KindPublish, &registry.RegisteredHandler{Fn: m.OnPublish, Description: "publish the module"})
}
