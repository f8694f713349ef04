package validatorcfg

import (
	"regexp"
	"strings"
)

const (
	validatorTable = "test.validator"
	cloneArray     = "test.validator.clone"
)

var headerPattern = regexp.MustCompile(`^\s*(\[\[|\[)\s*((?:[A-Za-z0-9_-]+|"[^"]*"|'[^']*')(?:\s*\.\s*(?:[A-Za-z0-9_-]+|"[^"]*"|'[^']*'))*)\s*(\]\]|\])\s*(?:#.*)?$`)

// section is a header line plus every line up to the next header. The
// preamble before the first header is a section with an empty name, as are
// comment runs detached from the end of a generated section.
type section struct {
	name  string
	array bool
	text  string
}

func (s section) body() string {
	if s.name == "" {
		return s.text
	}
	if i := strings.IndexByte(s.text, '\n'); i >= 0 {
		return s.text[i+1:]
	}
	return ""
}

func (s section) generated() bool {
	return (s.name == validatorTable && !s.array) || (s.name == cloneArray && s.array)
}

// split cuts a TOML document into sections. Lines are kept with their line
// endings so joining every section's text reproduces the input exactly.
// Header-looking lines inside multi-line strings and arrays are not headers.
func split(doc string) []section {
	sections := []section{{}}
	var sc scanner
	for _, line := range strings.SplitAfter(doc, "\n") {
		if line == "" {
			continue
		}
		if sc.idle() {
			if name, array, ok := parseHeader(line); ok {
				sections = append(detachComments(sections), section{name: name, array: array, text: line})
				continue
			}
		}
		sc.scan(line)
		last := &sections[len(sections)-1]
		last.text += line
	}
	return detachComments(sections)
}

// detachComments moves the comment lines closing a generated section into an
// unnamed section of their own. They annotate whatever follows and must
// survive the generated section being replaced. Blank lines ahead of the
// first such comment stay behind.
func detachComments(sections []section) []section {
	last := &sections[len(sections)-1]
	if !last.generated() {
		return sections
	}
	lines := strings.SplitAfter(last.text, "\n")
	cut := -1
	for i := len(lines) - 1; i > 0; i-- {
		trimmed := strings.TrimSpace(lines[i])
		if trimmed == "" {
			continue
		}
		if !strings.HasPrefix(trimmed, "#") {
			break
		}
		cut = i
	}
	if cut < 0 {
		return sections
	}
	tail := strings.Join(lines[cut:], "")
	last.text = strings.Join(lines[:cut], "")
	return append(sections, section{text: tail})
}

func parseHeader(line string) (string, bool, bool) {
	m := headerPattern.FindStringSubmatch(strings.TrimRight(line, "\r\n"))
	if m == nil {
		return "", false, false
	}
	opening, closing := m[1], m[3]
	if (opening == "[[") != (closing == "]]") {
		return "", false, false
	}
	return normalizeKey(m[2]), opening == "[[", true
}

func normalizeKey(key string) string {
	var parts []string
	for _, part := range splitDotted(key) {
		part = strings.TrimSpace(part)
		if len(part) >= 2 && (part[0] == '"' || part[0] == '\'') && part[len(part)-1] == part[0] {
			part = part[1 : len(part)-1]
		}
		parts = append(parts, part)
	}
	return strings.Join(parts, ".")
}

func splitDotted(key string) []string {
	var (
		parts []string
		quote byte
		start int
	)
	for i := 0; i < len(key); i++ {
		c := key[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '.':
			parts = append(parts, key[start:i])
			start = i + 1
		}
	}
	return append(parts, key[start:])
}

// scanner tracks whether the document is inside a multi-line string or an
// open array or inline table at the end of a line.
type scanner struct {
	multi string
	depth int
}

func (s *scanner) idle() bool { return s.multi == "" && s.depth == 0 }

func (s *scanner) scan(line string) {
	for i := 0; i < len(line); i++ {
		if s.multi != "" {
			if strings.HasPrefix(line[i:], s.multi) {
				i += len(s.multi) - 1
				s.multi = ""
			} else if s.multi == `"""` && line[i] == '\\' {
				i++
			}
			continue
		}
		switch c := line[i]; c {
		case '#':
			return
		case '"', '\'':
			delim := strings.Repeat(string(c), 3)
			if strings.HasPrefix(line[i:], delim) {
				s.multi = delim
				i += 2
				continue
			}
			i = skipString(line, i)
		case '[', '{':
			s.depth++
		case ']', '}':
			if s.depth > 0 {
				s.depth--
			}
		}
	}
}

// skipString returns the index of the closing quote of the single-line string
// opening at i, or the end of the line when it is unterminated.
func skipString(line string, i int) int {
	quote := line[i]
	for j := i + 1; j < len(line); j++ {
		switch line[j] {
		case '\\':
			if quote == '"' {
				j++
			}
		case quote:
			return j
		}
	}
	return len(line)
}
