package metadata

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/vk/modforge/internal/ctxlog"
	"github.com/vk/modforge/internal/version"
	"resty.dev/v3"
)

// DefaultRemoteTimeout bounds one registry request.
const DefaultRemoteTimeout = 30 * time.Second

// Remote queries module registries over HTTP:
//
//	GET {repository}/v1/versions?names=A,B&prerelease=false
//
// answers with a JSON array of {"name", "version"} objects.
type Remote struct {
	// DefaultRepository is queried when a lookup names no repositories.
	DefaultRepository string

	client *resty.Client
}

// NewRemote returns a Remote with its own HTTP client.
func NewRemote(defaultRepository string, timeout time.Duration) *Remote {
	if timeout <= 0 {
		timeout = DefaultRemoteTimeout
	}
	return &Remote{
		DefaultRepository: strings.TrimRight(defaultRepository, "/"),
		client:            resty.New().SetTimeout(timeout),
	}
}

// Close releases the HTTP client.
func (r *Remote) Close() error {
	return r.client.Close()
}

// Find implements version.RemoteLookup. Each repository is asked in turn;
// the lookup fails only when every repository failed.
func (r *Remote) Find(ctx context.Context, names []string, prerelease bool, repositories []string) ([]version.RemoteVersion, error) {
	logger := ctxlog.FromContext(ctx)

	repos := repositories
	if len(repos) == 0 {
		if r.DefaultRepository == "" {
			return nil, errors.New("no remote repository configured")
		}
		repos = []string{r.DefaultRepository}
	}

	var out []version.RemoteVersion
	var errs []error
	for _, repo := range repos {
		found, err := r.query(ctx, strings.TrimRight(repo, "/"), names, prerelease)
		if err != nil {
			logger.Warn("Remote registry lookup failed.", "repository", repo, "error", err)
			errs = append(errs, err)
			continue
		}
		out = append(out, found...)
	}
	if len(errs) == len(repos) {
		return nil, errors.Join(errs...)
	}
	return out, nil
}

func (r *Remote) query(ctx context.Context, repo string, names []string, prerelease bool) ([]version.RemoteVersion, error) {
	var found []version.RemoteVersion
	resp, err := r.client.R().
		SetContext(ctx).
		SetQueryParam("names", strings.Join(names, ",")).
		SetQueryParam("prerelease", strconv.FormatBool(prerelease)).
		SetResult(&found).
		Get(repo + "/v1/versions")
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", repo, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("querying %s: unexpected status %d", repo, resp.StatusCode())
	}
	return found, nil
}
