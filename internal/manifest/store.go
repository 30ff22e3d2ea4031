// Package manifest reads and edits module descriptors stored as TOML.
package manifest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"
)

// ErrKeyNotFound is returned by Read when the descriptor lacks the key.
var ErrKeyNotFound = errors.New("manifest key not found")

// Store edits individual top-level keys of a descriptor file, leaving the
// others untouched.
type Store struct{}

// NewStore returns a Store.
func NewStore() *Store {
	return &Store{}
}

// Read returns the value of a top-level key.
func (s *Store) Read(path, key string) (any, error) {
	doc, err := readDocument(path)
	if err != nil {
		return nil, err
	}
	v, ok := doc[key]
	if !ok {
		return nil, fmt.Errorf("%s in %s: %w", key, path, ErrKeyNotFound)
	}
	return v, nil
}

// ReadString returns a top-level key that must hold a string.
func (s *Store) ReadString(path, key string) (string, error) {
	v, err := s.Read(path, key)
	if err != nil {
		return "", err
	}
	str, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%s in %s is a %T, not a string", key, path, v)
	}
	return str, nil
}

// Write sets a top-level key, creating the file if needed.
func (s *Store) Write(path, key string, value any) error {
	doc, err := readDocument(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	if doc == nil {
		doc = make(map[string]any)
	}
	doc[key] = value
	return writeDocument(path, doc)
}

func readDocument(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest %s: %w", path, err)
	}
	doc := make(map[string]any)
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing manifest %s: %w", path, err)
	}
	return doc, nil
}

func writeDocument(path string, doc any) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}
	data, err := toml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshaling manifest %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing manifest %s: %w", path, err)
	}
	return nil
}
