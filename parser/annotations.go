package parser

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/apex/log"

	"github.com/manojsingh/agent-skills/database"
)

// attribute is one C# attribute application, e.g. MaxLength(50)
type attribute struct {
	Name       string
	Positional []string
	Named      map[string]string
}

var (
	reAttrTarget  = regexp.MustCompile(`^(?:field|property|return|param|method|type|assembly|module|event)\s*:\s*`)
	reAttrCall    = regexp.MustCompile(`(?s)^([\w.]+)\s*(?:\((.*)\))?$`)
	reNameof      = regexp.MustCompile(`^nameof\(\s*(?:\w+\.)*(\w+)\s*\)$`)
	reSizedType   = regexp.MustCompile(`(?i)^\s*(n?varchar|n?char)\s*\(\s*(\d+)\s*\)\s*$`)
	reDecimalType = regexp.MustCompile(`(?i)^\s*(decimal|numeric|money)\s*\(\s*(\d+)\s*(?:,\s*(\d+)\s*)?\)\s*$`)
)

// extractAttributes peels the leading [..] groups off a member header.
func extractAttributes(header string) ([]attribute, string) {
	var attrs []attribute
	rest := strings.TrimSpace(header)

	for strings.HasPrefix(rest, "[") {
		end := matchBracket(rest)
		if end < 0 {
			break
		}
		inner := reAttrTarget.ReplaceAllString(strings.TrimSpace(rest[1:end]), "")
		for _, part := range splitTopLevel(inner, ',') {
			if a, ok := parseAttribute(part); ok {
				attrs = append(attrs, a)
			}
		}
		rest = strings.TrimSpace(rest[end+1:])
	}

	return attrs, rest
}

// matchBracket returns the index of the ']' closing s[0].
func matchBracket(s string) int {
	depth := 0
	for i := 0; i < len(s); {
		if isLiteralStart(s, i) {
			i = skipLiteral(s, i)
			continue
		}
		switch s[i] {
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				return i
			}
		}
		i++
	}

	return -1
}

func parseAttribute(text string) (attribute, bool) {
	m := reAttrCall.FindStringSubmatch(strings.TrimSpace(text))
	if m == nil {
		return attribute{}, false
	}

	name := m[1]
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}
	if name != "Attribute" {
		name = strings.TrimSuffix(name, "Attribute")
	}

	a := attribute{Name: name, Named: map[string]string{}}
	for _, arg := range splitTopLevel(m[2], ',') {
		if key, value, ok := strings.Cut(arg, "="); ok && isIdentifier(strings.TrimSpace(key)) {
			a.Named[strings.TrimSpace(key)] = unquote(value)
			continue
		}
		a.Positional = append(a.Positional, unquote(arg))
	}

	return a, true
}

func (a attribute) arg(i int) string {
	if i < len(a.Positional) {
		return a.Positional[i]
	}
	return ""
}

// unquote strips string literal quotes and resolves nameof(...).
func unquote(s string) string {
	s = strings.TrimSpace(s)
	if m := reNameof.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	s = strings.TrimPrefix(s, "@")
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}

	return s
}

func hasAttribute(attrs []attribute, name string) bool {
	for _, a := range attrs {
		if a.Name == name {
			return true
		}
	}
	return false
}

// applyFieldAttributes translates data annotations into field tags.
func applyFieldAttributes(f *database.Field, attrs []attribute) {
	for _, a := range attrs {
		switch a.Name {
		case "Key":
			f.AddTag(database.TagPrimaryKey)
		case "Required":
			f.AddTag(database.TagRequired)
		case "MaxLength":
			if n := a.arg(0); n != "" {
				f.AddTag(database.TagMaxLength + ":" + n)
			}
		case "StringLength":
			n := a.arg(0)
			if n == "" {
				n = a.Named["MaximumLength"]
			}
			if n != "" {
				f.AddTag(database.TagMaxLength + ":" + n)
			}
		case "Precision":
			if p := a.arg(0); p != "" {
				s := a.arg(1)
				if s == "" {
					s = "0"
				}
				f.AddTag(fmt.Sprintf("%s:%s,%s", database.TagPrecision, p, s))
			}
		case "Column":
			if n := a.arg(0); n != "" {
				f.AddTag(database.TagColumn + ":" + n)
			}
			if n := a.Named["Name"]; n != "" {
				f.AddTag(database.TagColumn + ":" + n)
			}
			applyColumnTypeName(f, a.Named["TypeName"])
		case "ForeignKey":
			if n := a.arg(0); n != "" {
				f.AddTag(database.TagForeignKey + ":" + n)
			}
		case "DatabaseGenerated":
			opt := a.arg(0)
			if i := strings.LastIndex(opt, "."); i >= 0 {
				opt = opt[i+1:]
			}
			if opt != "" {
				f.AddTag(database.TagGenerated + ":" + strings.ToLower(opt))
			}
		case "Timestamp":
			f.AddTag(database.TagTimestamp)
		default:
			log.WithField("attribute", a.Name).WithField("field", f.Name).Debug("ignoring attribute")
		}
	}
}

// applyColumnTypeName reads length or precision out of an explicit store type.
func applyColumnTypeName(f *database.Field, typeName string) {
	if typeName == "" {
		return
	}
	if m := reDecimalType.FindStringSubmatch(typeName); m != nil {
		scale := m[3]
		if scale == "" {
			scale = "0"
		}
		f.AddTag(fmt.Sprintf("%s:%s,%s", database.TagPrecision, m[2], scale))
		return
	}
	if m := reSizedType.FindStringSubmatch(typeName); m != nil {
		f.AddTag(database.TagMaxLength + ":" + m[2])
	}
}
