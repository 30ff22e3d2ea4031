package version

import (
	"context"
	"strings"
	"sync"
)

// CachingRemote memoizes remote lookups per name for the lifetime of one
// run. Failed lookups are cached too, so an unreachable registry is only
// asked once.
type CachingRemote struct {
	next RemoteLookup

	mu      sync.Mutex
	results map[string]cachedLookup
}

type cachedLookup struct {
	versions []RemoteVersion
	err      error
}

// NewCachingRemote wraps next, which must not be nil.
func NewCachingRemote(next RemoteLookup) *CachingRemote {
	return &CachingRemote{next: next, results: make(map[string]cachedLookup)}
}

// Find implements RemoteLookup.
func (c *CachingRemote) Find(ctx context.Context, names []string, prerelease bool, repositories []string) ([]RemoteVersion, error) {
	var out []RemoteVersion
	var missing []string

	c.mu.Lock()
	for _, name := range names {
		hit, ok := c.results[cacheKey(name, prerelease, repositories)]
		if !ok {
			missing = append(missing, name)
			continue
		}
		if hit.err != nil {
			c.mu.Unlock()
			return nil, hit.err
		}
		out = append(out, hit.versions...)
	}
	c.mu.Unlock()

	if len(missing) == 0 {
		return out, nil
	}

	found, err := c.next.Find(ctx, missing, prerelease, repositories)

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, name := range missing {
		entry := cachedLookup{err: err}
		if err == nil {
			for _, rv := range found {
				if strings.EqualFold(rv.Name, name) {
					entry.versions = append(entry.versions, rv)
				}
			}
		}
		c.results[cacheKey(name, prerelease, repositories)] = entry
	}
	if err != nil {
		return nil, err
	}
	return append(out, found...), nil
}

func cacheKey(name string, prerelease bool, repositories []string) string {
	pre := "release"
	if prerelease {
		pre = "prerelease"
	}
	return strings.ToLower(name) + "|" + pre + "|" + strings.Join(repositories, ",")
}
