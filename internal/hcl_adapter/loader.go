package hcl_adapter

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/vk/modforge/internal/config"
	"github.com/vk/modforge/internal/ctxlog"
	"github.com/vk/modforge/internal/fsutil"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
)

// Loader is the HCL-specific implementation of the config.Loader interface.
type Loader struct {
	// Env is exposed to expressions as env.NAME.
	Env map[string]string
}

// NewLoader creates a new HCL loader whose expressions see the process
// environment.
func NewLoader() *Loader {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok && k != "" {
			env[k] = v
		}
	}
	return &Loader{Env: env}
}

// Load parses every .hcl file under paths, files in lexical order, and
// returns one segment per block in source order.
func (l *Loader) Load(ctx context.Context, paths ...string) ([]config.Segment, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("HCL loader started.", "path_count", len(paths))

	hclFiles, err := l.findAllHCLFiles(paths)
	if err != nil {
		return nil, err
	}
	logger.Debug("Discovered HCL files.", "count", len(hclFiles))

	parser := hclparse.NewParser()
	evalCtx := l.evalContext()
	var segments []config.Segment

	for _, file := range hclFiles {
		hclFile, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, &config.ConfigError{Path: file, Err: diags}
		}

		content, diags := hclFile.Body.Content(rootSchema)
		if diags.HasErrors() {
			return nil, &config.ConfigError{Path: file, Err: diags}
		}

		for _, block := range content.Blocks {
			seg, diags := translateBlock(block, evalCtx)
			if diags.HasErrors() {
				return nil, &config.ConfigError{Path: file, Err: diags}
			}
			segments = append(segments, seg)
		}
	}

	logger.Debug("HCL loading complete.", "files", len(hclFiles), "segments", len(segments))
	return segments, nil
}

func (l *Loader) evalContext() *hcl.EvalContext {
	env := make(map[string]cty.Value, len(l.Env))
	for k, v := range l.Env {
		env[k] = cty.StringVal(v)
	}
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"env": cty.ObjectVal(env),
		},
		Functions: map[string]function.Function{
			"upper":  stdlib.UpperFunc,
			"lower":  stdlib.LowerFunc,
			"join":   stdlib.JoinFunc,
			"format": stdlib.FormatFunc,
			"concat": stdlib.ConcatFunc,
		},
	}
}

// findAllHCLFiles walks all given paths and returns every .hcl file found,
// sorted by path.
func (l *Loader) findAllHCLFiles(paths []string) ([]string, error) {
	var allFiles []string
	seen := make(map[string]struct{})
	add := func(p string) {
		if _, wasSeen := seen[p]; !wasSeen {
			allFiles = append(allFiles, p)
			seen[p] = struct{}{}
		}
	}

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("error accessing build definition path %s: %w", path, err)
		}

		if info.IsDir() {
			files, err := fsutil.FindFilesByExtension(path, ".hcl")
			if err != nil {
				return nil, err
			}
			for _, f := range files {
				add(f)
			}
		} else if filepath.Ext(path) == ".hcl" {
			add(path)
		}
	}
	sort.Strings(allFiles)
	return allFiles, nil
}
