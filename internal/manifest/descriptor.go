package manifest

import (
	"fmt"
	"os"

	toml "github.com/pelletier/go-toml/v2"
)

// Descriptor is a whole module descriptor.
type Descriptor struct {
	Name              string           `toml:"name"`
	Version           string           `toml:"version"`
	Prerelease        string           `toml:"prerelease,omitempty"`
	Identity          string           `toml:"identity,omitempty"`
	Description       string           `toml:"description,omitempty"`
	Author            string           `toml:"author,omitempty"`
	RequiredModules   []RequiredModule `toml:"required_modules,omitempty"`
	FunctionsToExport []string         `toml:"functions_to_export,omitempty"`
	CmdletsToExport   []string         `toml:"cmdlets_to_export,omitempty"`
	AliasesToExport   []string         `toml:"aliases_to_export,omitempty"`
}

// RequiredModule is one entry of required_modules. Version is the minimum.
type RequiredModule struct {
	Name            string `toml:"name"`
	Version         string `toml:"version,omitempty"`
	RequiredVersion string `toml:"required_version,omitempty"`
	MaximumVersion  string `toml:"maximum_version,omitempty"`
	Identity        string `toml:"identity,omitempty"`
}

// ReadDescriptor parses the descriptor at path.
func ReadDescriptor(path string) (Descriptor, error) {
	var d Descriptor
	data, err := os.ReadFile(path)
	if err != nil {
		return d, fmt.Errorf("reading descriptor %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, &d); err != nil {
		return d, fmt.Errorf("parsing descriptor %s: %w", path, err)
	}
	return d, nil
}

// WriteDescriptor replaces the descriptor at path.
func WriteDescriptor(path string, d Descriptor) error {
	return writeDocument(path, d)
}
