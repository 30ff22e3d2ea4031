// Package fsutil provides file system utility functions.
package fsutil

import (
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// FindFilesByExtension recursively searches the given root path for all files ending
// with the specified extension. It returns a slice of their full paths, sorted.
func FindFilesByExtension(rootPath string, extension string) ([]string, error) {
	if extension == "" {
		panic("extension must not be empty")
	}

	var files []string
	err := filepath.WalkDir(rootPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), extension) {
			files = append(files, path)
		}
		return nil
	})

	if err != nil {
		return nil, err
	}

	sort.Strings(files)
	return files, nil
}

// Filter selects files by slash-separated paths relative to a root.
// An empty Include selects everything; Exclude always wins.
type Filter struct {
	Include []string
	Exclude []string
}

// Matcher selects files by relative path.
type Matcher interface {
	Match(rel string) bool
}

// Match reports whether rel passes the filter.
func (f Filter) Match(rel string) bool {
	rel = filepath.ToSlash(rel)
	if matchesAny(f.Exclude, rel) {
		return false
	}
	if len(f.Include) > 0 && !matchesAny(f.Include, rel) {
		return false
	}
	return true
}

// All selects the files every filter selects.
type All []Filter

// Match reports whether rel passes every filter.
func (a All) Match(rel string) bool {
	for _, f := range a {
		if !f.Match(rel) {
			return false
		}
	}
	return true
}

// Walk returns the files under root that m selects as sorted
// slash-separated relative paths. A nil m selects everything.
func Walk(root string, m Matcher) ([]string, error) {
	var out []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if m == nil || m.Match(rel) {
			out = append(out, rel)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(out)
	return out, nil
}

func matchesAny(patterns []string, rel string) bool {
	for _, pattern := range patterns {
		pattern = filepath.ToSlash(strings.TrimSpace(pattern))
		if pattern == "" {
			continue
		}
		if ok, err := doublestar.Match(pattern, rel); err == nil && ok {
			return true
		}
	}
	return false
}
