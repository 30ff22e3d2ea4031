// Package merge combines a module's script files into one distributable
// file and works out which external commands that file depends on.
package merge

import (
	"fmt"
	"os"
	"sort"
	"strings"
)

var defaultDirectivePrefixes = []string{"#requires", "using "}

// DefaultDirectivePrefixes returns the line prefixes hoisted into the merged
// file's header when no prefixes are configured.
func DefaultDirectivePrefixes() []string {
	return append([]string(nil), defaultDirectivePrefixes...)
}

// SourceFile is one script file, split into lines without terminators.
type SourceFile struct {
	Path  string
	Lines []string
}

// LoadSourceFiles reads paths in the given order. CRLF endings are
// normalized away.
func LoadSourceFiles(paths []string) ([]SourceFile, error) {
	files := make([]SourceFile, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("failed to read source file %s: %w", p, err)
		}
		files = append(files, SourceFile{Path: p, Lines: splitLines(string(data))})
	}
	return files, nil
}

func splitLines(s string) []string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.TrimSuffix(s, "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

// ExportSet lists the names a module exposes.
type ExportSet struct {
	Functions []string `yaml:"functions"`
	Cmdlets   []string `yaml:"cmdlets"`
	Aliases   []string `yaml:"aliases"`
}

// Normalized returns a copy with each list de-duplicated case-insensitively
// and sorted.
func (e ExportSet) Normalized() ExportSet {
	return ExportSet{
		Functions: uniqueSorted(e.Functions),
		Cmdlets:   uniqueSorted(e.Cmdlets),
		Aliases:   uniqueSorted(e.Aliases),
	}
}

// Definition is the source text of a function copied in from another module.
type Definition struct {
	Name string
	Text string
}

// Result is an assembled merged file.
type Result struct {
	Directives []string
	Inlined    []Definition
	Body       []string
	Export     ExportSet
}

// Assemble builds the merged file from files in the order given. Lines whose
// trimmed text starts with one of prefixes (case-insensitive) are hoisted
// into a sorted, de-duplicated header. Assemble is pure: equal inputs yield
// byte-identical renderings.
func Assemble(files []SourceFile, exports ExportSet, inline []Definition, prefixes []string) Result {
	if len(prefixes) == 0 {
		prefixes = defaultDirectivePrefixes
	}

	var res Result
	seen := make(map[string]struct{})

	for i, f := range files {
		var lines []string
		for _, line := range f.Lines {
			line = strings.TrimRight(line, "\r")
			trimmed := strings.TrimSpace(line)
			if isDirective(trimmed, prefixes) {
				key := strings.ToLower(trimmed)
				if _, ok := seen[key]; !ok {
					seen[key] = struct{}{}
					res.Directives = append(res.Directives, trimmed)
				}
				continue
			}
			lines = append(lines, line)
		}
		lines = trimBlankEdges(lines)
		if len(lines) == 0 {
			continue
		}
		if i > 0 && len(res.Body) > 0 {
			res.Body = append(res.Body, "")
		}
		res.Body = append(res.Body, lines...)
	}

	sort.SliceStable(res.Directives, func(i, j int) bool {
		return strings.ToLower(res.Directives[i]) < strings.ToLower(res.Directives[j])
	})

	byName := make(map[string]Definition)
	for _, d := range inline {
		key := strings.ToLower(d.Name)
		if _, ok := byName[key]; !ok {
			byName[key] = Definition{Name: d.Name, Text: strings.TrimRight(strings.ReplaceAll(d.Text, "\r\n", "\n"), "\n")}
		}
	}
	for _, key := range sortedMapKeys(byName) {
		res.Inlined = append(res.Inlined, byName[key])
	}

	res.Export = exports.Normalized()
	return res
}

// Render returns the merged file text: directives, inlined definitions,
// body, then the export block. Sections are separated by one blank line.
func (r Result) Render() string {
	var sections []string
	if len(r.Directives) > 0 {
		sections = append(sections, strings.Join(r.Directives, "\n"))
	}
	for _, d := range r.Inlined {
		sections = append(sections, d.Text)
	}
	if len(r.Body) > 0 {
		sections = append(sections, strings.Join(r.Body, "\n"))
	}
	sections = append(sections, renderExport(r.Export))
	return strings.Join(sections, "\n\n") + "\n"
}

func renderExport(e ExportSet) string {
	var b strings.Builder
	fmt.Fprintf(&b, "$ExportedFunctions = %s\n", literalArray(e.Functions))
	fmt.Fprintf(&b, "$ExportedCmdlets = %s\n", literalArray(e.Cmdlets))
	fmt.Fprintf(&b, "$ExportedAliases = %s\n", literalArray(e.Aliases))
	b.WriteString("Export-ModuleMember -Function $ExportedFunctions -Cmdlet $ExportedCmdlets -Alias $ExportedAliases")
	return b.String()
}

func literalArray(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = "'" + strings.ReplaceAll(n, "'", "''") + "'"
	}
	return "@(" + strings.Join(quoted, ", ") + ")"
}

func isDirective(trimmed string, prefixes []string) bool {
	lower := strings.ToLower(trimmed)
	for _, p := range prefixes {
		if p != "" && strings.HasPrefix(lower, strings.ToLower(p)) {
			return true
		}
	}
	return false
}

func trimBlankEdges(lines []string) []string {
	start, end := 0, len(lines)
	for start < end && strings.TrimSpace(lines[start]) == "" {
		start++
	}
	for end > start && strings.TrimSpace(lines[end-1]) == "" {
		end--
	}
	return lines[start:end]
}

func uniqueSorted(names []string) []string {
	set := make(map[string]string)
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		if _, ok := set[strings.ToLower(n)]; !ok {
			set[strings.ToLower(n)] = n
		}
	}
	out := make([]string, 0, len(set))
	for _, key := range sortedMapKeys(set) {
		out = append(out, set[key])
	}
	return out
}

func sortedMapKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
