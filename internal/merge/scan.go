package merge

import (
	"regexp"
	"sort"
	"strings"
)

var (
	functionDefRe = regexp.MustCompile(`(?i)^\s*(?:function|filter)\s+(?:global:|script:)?([A-Za-z_][\w-]*)`)
	aliasAttrRe   = regexp.MustCompile(`(?i)\[Alias\(([^)]*)\)\]`)
	quotedRe      = regexp.MustCompile(`'([^']+)'|"([^"]+)"`)
	commandRe     = regexp.MustCompile(`(?:^|[|;({=]|\breturn\s|\bthrow\s)\s*(?:&\s*|\.\s+)?([A-Za-z][A-Za-z0-9]*-[A-Za-z][A-Za-z0-9_]*)`)
	sigilCallRe   = regexp.MustCompile(`&\s*(\$[A-Za-z_][\w:]*)`)
)

// FunctionDef is a function defined by one of the scanned files.
type FunctionDef struct {
	Name string
	File string
}

// ScanResult is what Scan found in a set of source files.
type ScanResult struct {
	Functions []FunctionDef
	// Aliases maps a lower-cased file path to the alias names declared in it.
	Aliases map[string][]string
	// Commands are the distinct command names referenced anywhere, sorted
	// case-insensitively. Locally defined functions are included.
	Commands []string
}

// Scan finds function definitions, [Alias()] attributes and command
// references. Comments are ignored and string literal contents are blanked
// before command references are matched.
func Scan(files []SourceFile) ScanResult {
	res := ScanResult{Aliases: make(map[string][]string)}
	commands := make(map[string]string)

	for _, f := range files {
		st := &lexState{}
		for _, raw := range f.Lines {
			code := st.strip(raw)
			if strings.TrimSpace(code) == "" {
				continue
			}

			if m := functionDefRe.FindStringSubmatch(code); m != nil {
				res.Functions = append(res.Functions, FunctionDef{Name: m[1], File: f.Path})
			}

			withStrings := st.lastCode
			for _, am := range aliasAttrRe.FindAllStringSubmatch(withStrings, -1) {
				for _, q := range quotedRe.FindAllStringSubmatch(am[1], -1) {
					name := q[1]
					if name == "" {
						name = q[2]
					}
					key := strings.ToLower(f.Path)
					res.Aliases[key] = append(res.Aliases[key], name)
				}
			}

			for _, m := range commandRe.FindAllStringSubmatch(code, -1) {
				addCommand(commands, m[1])
			}
			for _, m := range sigilCallRe.FindAllStringSubmatch(code, -1) {
				addCommand(commands, m[1])
			}
		}
	}

	res.Commands = make([]string, 0, len(commands))
	for _, name := range commands {
		res.Commands = append(res.Commands, name)
	}
	sort.Slice(res.Commands, func(i, j int) bool {
		return strings.ToLower(res.Commands[i]) < strings.ToLower(res.Commands[j])
	})
	return res
}

func addCommand(set map[string]string, name string) {
	key := strings.ToLower(name)
	if _, ok := set[key]; !ok {
		set[key] = name
	}
}

// lexState tracks constructs that span lines: block comments and
// here-strings.
type lexState struct {
	inBlockComment bool
	inHereString   byte
	// lastCode is the last line with comments removed but strings intact.
	lastCode string
}

// strip removes comments and blanks string contents from one line.
func (s *lexState) strip(line string) string {
	line = strings.TrimRight(line, "\r")
	trimmed := strings.TrimSpace(line)

	if s.inHereString != 0 {
		if strings.HasPrefix(trimmed, string(s.inHereString)+"@") {
			s.inHereString = 0
		}
		s.lastCode = ""
		return ""
	}
	if isDirective(trimmed, defaultDirectivePrefixes) {
		s.lastCode = ""
		return ""
	}

	var code, withStrings strings.Builder
	var quote byte
	for i := 0; i < len(line); i++ {
		c := line[i]
		if s.inBlockComment {
			if c == '#' && i+1 < len(line) && line[i+1] == '>' {
				s.inBlockComment = false
				i++
			}
			continue
		}
		if quote != 0 {
			withStrings.WriteByte(c)
			if c == '`' && i+1 < len(line) {
				withStrings.WriteByte(line[i+1])
				i++
				code.WriteString("  ")
				continue
			}
			if c == quote {
				quote = 0
				code.WriteByte(c)
				continue
			}
			code.WriteByte(' ')
			continue
		}
		switch {
		case c == '<' && i+1 < len(line) && line[i+1] == '#':
			s.inBlockComment = true
			i++
			continue
		case c == '#':
			i = len(line)
			continue
		case c == '@' && i+1 < len(line) && (line[i+1] == '"' || line[i+1] == '\'') && strings.TrimSpace(line[i+2:]) == "":
			s.inHereString = line[i+1]
			code.WriteString("@" + string(line[i+1]))
			withStrings.WriteString("@" + string(line[i+1]))
			i = len(line)
			continue
		case c == '\'' || c == '"':
			quote = c
		}
		code.WriteByte(c)
		withStrings.WriteByte(c)
	}
	s.lastCode = withStrings.String()
	return code.String()
}
