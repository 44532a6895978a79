package parser

import (
	"strings"

	"github.com/pkg/errors"
)

var ErrUnbalancedBraces = errors.New("unbalanced braces")

// statement is one ';'-terminated or brace-bodied chunk at a single nesting level
type statement struct {
	Header  string
	Body    string
	HasBody bool
	Line    int
}

// skipLiteral returns the index just past the string or char literal at i.
// i must point at the opening quote (or at '@' / '$' prefixes).
func skipLiteral(s string, i int) int {
	verbatim := false
	for i < len(s) && (s[i] == '@' || s[i] == '$') {
		if s[i] == '@' {
			verbatim = true
		}
		i++
	}
	if i >= len(s) {
		return i
	}

	quote := s[i]
	i++
	for i < len(s) {
		switch {
		case s[i] == '\\' && !verbatim:
			i += 2
			continue
		case s[i] == quote && verbatim && i+1 < len(s) && s[i+1] == quote:
			i += 2
			continue
		case s[i] == quote:
			return i + 1
		case s[i] == '\n' && !verbatim:
			// unterminated regular literal ends at the line break
			return i
		}
		i++
	}

	return i
}

// isLiteralStart reports whether a string or char literal starts at i.
func isLiteralStart(s string, i int) bool {
	switch s[i] {
	case '"', '\'':
		return true
	case '@', '$':
		j := i
		for j < len(s) && (s[j] == '@' || s[j] == '$') {
			j++
		}
		return j < len(s) && s[j] == '"'
	}

	return false
}

// stripComments blanks out // and /* */ comments, keeping line breaks so
// line numbers survive.
func stripComments(src string) string {
	var b strings.Builder
	b.Grow(len(src))

	for i := 0; i < len(src); {
		switch {
		case isLiteralStart(src, i):
			end := skipLiteral(src, i)
			b.WriteString(src[i:end])
			i = end
		case strings.HasPrefix(src[i:], "//"):
			for i < len(src) && src[i] != '\n' {
				i++
			}
		case strings.HasPrefix(src[i:], "/*"):
			end := strings.Index(src[i+2:], "*/")
			stop := len(src)
			if end >= 0 {
				stop = i + 2 + end + 2
			}
			for _, c := range src[i:stop] {
				if c == '\n' {
					b.WriteByte('\n')
				}
			}
			i = stop
		default:
			b.WriteByte(src[i])
			i++
		}
	}

	return b.String()
}

// checkBalance verifies that every brace outside literals is matched.
func checkBalance(s string) error {
	depth, line, openLine := 0, 1, 0
	for i := 0; i < len(s); {
		if isLiteralStart(s, i) {
			end := skipLiteral(s, i)
			line += strings.Count(s[i:end], "\n")
			i = end
			continue
		}

		switch s[i] {
		case '\n':
			line++
		case '{':
			if depth == 0 {
				openLine = line
			}
			depth++
		case '}':
			depth--
			if depth < 0 {
				return errors.Wrapf(ErrUnbalancedBraces, "unexpected '}' on line %d", line)
			}
		}
		i++
	}

	if depth != 0 {
		return errors.Wrapf(ErrUnbalancedBraces, "declaration opened on line %d is never closed", openLine)
	}

	return nil
}

// matchBrace returns the index of the '}' closing the '{' at open, or -1.
func matchBrace(s string, open int) int {
	depth := 0
	for i := open; i < len(s); {
		if isLiteralStart(s, i) {
			i = skipLiteral(s, i)
			continue
		}
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
		i++
	}

	return -1
}

// splitStatements splits s into statements at its outermost level. The
// first line of s is numbered firstLine.
func splitStatements(s string, firstLine int) []statement {
	var stmts []statement
	start := 0

	emit := func(header string, hdrStart int) statement {
		lead := len(header) - len(strings.TrimLeft(header, " \t\r\n"))
		return statement{
			Header: strings.TrimSpace(header),
			Line:   firstLine + strings.Count(s[:hdrStart+lead], "\n"),
		}
	}

	for i := 0; i < len(s); {
		if isLiteralStart(s, i) {
			i = skipLiteral(s, i)
			continue
		}

		switch s[i] {
		case ';':
			st := emit(s[start:i], start)
			if st.Header != "" {
				stmts = append(stmts, st)
			}
			start = i + 1
		case '{':
			end := matchBrace(s, i)
			if end < 0 {
				return stmts
			}
			st := emit(s[start:i], start)
			st.Body = s[i+1 : end]
			st.HasBody = true
			stmts = append(stmts, st)
			i = end + 1
			start = i
			continue
		}
		i++
	}

	return stmts
}

// splitTopLevel splits s on sep where sep is outside parens, brackets,
// angle brackets and literals.
func splitTopLevel(s string, sep byte) []string {
	var parts []string
	depth, start := 0, 0
	for i := 0; i < len(s); {
		if isLiteralStart(s, i) {
			i = skipLiteral(s, i)
			continue
		}
		switch s[i] {
		case '(', '[', '<', '{':
			depth++
		case ')', ']', '>', '}':
			depth--
		case sep:
			if depth == 0 {
				parts = append(parts, strings.TrimSpace(s[start:i]))
				start = i + 1
			}
		}
		i++
	}
	if rest := strings.TrimSpace(s[start:]); rest != "" {
		parts = append(parts, rest)
	}

	return parts
}
