package merge

import (
	"regexp"
	"strings"
)

// ExtractFunction returns the full text of the function called name defined
// in src, from its "function" keyword through the matching closing brace.
// Braces inside strings and comments are not counted.
func ExtractFunction(src, name string) (string, bool) {
	src = strings.ReplaceAll(src, "\r\n", "\n")
	re := regexp.MustCompile(`(?im)^[ \t]*(?:function|filter)[ \t]+(?:global:|script:)?` + regexp.QuoteMeta(name) + `\b`)
	loc := re.FindStringIndex(src)
	if loc == nil {
		return "", false
	}
	start := loc[0]
	for start < loc[1] && (src[start] == ' ' || src[start] == '\t') {
		start++
	}

	depth := 0
	opened := false
	var quote byte
	inLineComment, inBlockComment := false, false
	for i := loc[1]; i < len(src); i++ {
		c := src[i]
		switch {
		case inLineComment:
			if c == '\n' {
				inLineComment = false
			}
		case inBlockComment:
			if c == '#' && i+1 < len(src) && src[i+1] == '>' {
				inBlockComment = false
				i++
			}
		case quote != 0:
			if c == '`' {
				i++
			} else if c == quote {
				quote = 0
			}
		case c == '<' && i+1 < len(src) && src[i+1] == '#':
			inBlockComment = true
			i++
		case c == '#':
			inLineComment = true
		case c == '\'' || c == '"':
			quote = c
		case c == '{':
			depth++
			opened = true
		case c == '}':
			depth--
			if opened && depth == 0 {
				return src[start : i+1], true
			}
		}
	}
	return "", false
}
