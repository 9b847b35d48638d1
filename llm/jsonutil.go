package llm

import (
	"regexp"
	"strings"
)

var (
	// fencedBlockPattern matches the body of a ``` or ```json fence.
	fencedBlockPattern = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(.*?)```")
	// trailingCommaPattern matches trailing commas before ] or }.
	trailingCommaPattern = regexp.MustCompile(`,\s*([}\]])`)
)

// ExtractJSON returns the first JSON object in a model response, with
// line comments and trailing commas removed. Models often wrap the object
// in prose or a markdown fence. Returns "" when there is no object.
func ExtractJSON(content string) string {
	if m := fencedBlockPattern.FindStringSubmatch(content); m != nil && strings.Contains(m[1], "{") {
		content = m[1]
	}

	start := strings.IndexByte(content, '{')
	if start < 0 {
		return ""
	}
	end := matchingBrace(content, start)
	if end < 0 {
		end = strings.LastIndexByte(content, '}')
		if end < start {
			return ""
		}
	}
	return cleanJSON(content[start : end+1])
}

// matchingBrace returns the index of the brace closing the one at open,
// ignoring braces inside strings, or -1.
func matchingBrace(s string, open int) int {
	depth := 0
	inString, escaped := false, false
	for i := open; i < len(s); i++ {
		ch := s[i]
		switch {
		case escaped:
			escaped = false
		case inString && ch == '\\':
			escaped = true
		case ch == '"':
			inString = !inString
		case inString:
		case ch == '{':
			depth++
		case ch == '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func cleanJSON(raw string) string {
	lines := strings.Split(raw, "\n")
	for i, line := range lines {
		lines[i] = stripLineComment(line)
	}
	return trailingCommaPattern.ReplaceAllString(strings.Join(lines, "\n"), "$1")
}

// stripLineComment removes a trailing // comment that is outside any
// string value.
func stripLineComment(line string) string {
	if !strings.Contains(line, "//") {
		return line
	}

	inString, escaped := false, false
	for i := 0; i < len(line); i++ {
		ch := line[i]
		switch {
		case escaped:
			escaped = false
		case inString && ch == '\\':
			escaped = true
		case ch == '"':
			inString = !inString
		case !inString && ch == '/' && i+1 < len(line) && line[i+1] == '/':
			return strings.TrimRight(line[:i], " \t")
		}
	}
	return line
}
