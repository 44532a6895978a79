package parser

import (
	"regexp"
	"strings"

	"github.com/apex/log"

	"github.com/manojsingh/agent-skills/database"
)

var (
	reNamespace = regexp.MustCompile(`^namespace\s+([\w.]+)$`)
	reClassDecl = regexp.MustCompile(`(?s)^((?:(?:public|internal|private|protected|partial|abstract|sealed|static|new|unsafe)\s+)*)(class|record)\s+(\w+)\s*(?:<[^>]*>)?\s*(?::\s*(.*?))?\s*(?:where\s+.*)?$`)
	reTypeToken = regexp.MustCompile(`^[A-Za-z_][\w.]*(?:<[\w.,?<>\[\] ]+>)?\??(?:\[\])*\??$`)
	reIdent     = regexp.MustCompile(`^[A-Za-z_]\w*$`)
	reAccessor  = regexp.MustCompile(`\b(?:get|init)\b`)
	reNested    = regexp.MustCompile(`\b(?:class|struct|interface|enum|record|delegate)\b`)
	reFluentM2M = regexp.MustCompile(`(?s)(?:Entity<(\w+)>\(\)\s*\.)?HasMany\(\s*\w+\s*=>\s*\w+\.(\w+)\s*\)\s*\.WithMany\(\s*(?:\w+\s*=>\s*\w+\.(\w+))?\s*\)\s*\.UsingEntity[^;]*?ToTable\(\s*"(\w+)"`)
)

var memberModifiers = map[string]struct{}{
	"public": {}, "private": {}, "protected": {}, "internal": {}, "virtual": {},
	"override": {}, "new": {}, "required": {}, "readonly": {}, "static": {},
	"const": {}, "abstract": {}, "sealed": {}, "extern": {}, "volatile": {},
	"unsafe": {}, "event": {}, "partial": {}, "async": {}, "fixed": {},
}

// joinTable is an explicit many-to-many table configured fluently
type joinTable struct {
	Entity   string
	Property string
	Inverse  string
	Table    string
}

// FileResult holds the declarations found in one source file
type FileResult struct {
	Path       string
	Entities   []database.Entity
	Abstract   []database.Entity
	JoinTables []joinTable
}

// ParseFile extracts the entity declarations of one file. Files with
// unbalanced braces are rejected as a whole.
func (p *Parser) ParseFile(file database.SourceFile) (*FileResult, error) {
	src := stripComments(string(file.Content))
	if err := checkBalance(src); err != nil {
		return nil, err
	}

	res := &FileResult{Path: file.Path}
	p.scanBlock(res, splitStatements(src, 1), "")

	return res, nil
}

func (p *Parser) scanBlock(res *FileResult, stmts []statement, namespace string) {
	for _, st := range stmts {
		attrs, header := extractAttributes(st.Header)
		if header == "" {
			continue
		}

		if m := reNamespace.FindStringSubmatch(header); m != nil {
			if st.HasBody {
				p.scanBlock(res, splitStatements(st.Body, st.Line), m[1])
			} else {
				namespace = m[1]
			}
			continue
		}

		m := reClassDecl.FindStringSubmatch(header)
		if m == nil || !st.HasBody {
			continue
		}

		modifiers, name, bases := m[1], m[3], strings.TrimSpace(m[4])
		baseType, baseArg := firstBase(bases)

		if p.skipBase(baseType) {
			res.JoinTables = append(res.JoinTables, fluentJoinTables(st.Body, baseArg)...)
			continue
		}

		e := database.Entity{
			Name:       name,
			Namespace:  namespace,
			BaseType:   baseType,
			SourcePath: res.Path,
		}
		applyEntityAttributes(&e, attrs)
		e.Fields = parseMembers(st.Body, st.Line)
		applyClassPrimaryKey(&e, attrs)

		if strings.Contains(" "+modifiers, " abstract ") {
			res.Abstract = append(res.Abstract, e)
			continue
		}
		res.Entities = append(res.Entities, e)
	}
}

// firstBase returns the first type of a base list without its generic
// arguments, plus the first generic argument if there is one.
func firstBase(bases string) (string, string) {
	if bases == "" {
		return "", ""
	}
	first := splitTopLevel(bases, ',')[0]
	name, arg, _ := strings.Cut(first, "<")
	arg = strings.TrimSuffix(strings.TrimSpace(arg), ">")
	if i := strings.Index(arg, ","); i >= 0 {
		arg = arg[:i]
	}

	return strings.TrimSpace(name), strings.TrimSpace(arg)
}

func (p *Parser) skipBase(base string) bool {
	if base == "" {
		return false
	}
	if i := strings.LastIndex(base, "."); i >= 0 {
		base = base[i+1:]
	}
	_, ok := p.skipBases[base]
	return ok
}

func applyEntityAttributes(e *database.Entity, attrs []attribute) {
	for _, a := range attrs {
		if a.Name != "Table" {
			continue
		}
		if n := a.arg(0); n != "" {
			e.TableName = n
		}
		if s := a.Named["Schema"]; s != "" {
			e.Schema = s
		}
	}
}

// applyClassPrimaryKey honours the class-level [PrimaryKey(nameof(X))] form.
func applyClassPrimaryKey(e *database.Entity, attrs []attribute) {
	for _, a := range attrs {
		if a.Name != "PrimaryKey" {
			continue
		}
		for _, key := range a.Positional {
			for i := range e.Fields {
				if e.Fields[i].Name == key {
					e.Fields[i].AddTag(database.TagPrimaryKey)
				}
			}
		}
	}
}

// parseMembers returns the data members of a class body in declaration order.
func parseMembers(body string, firstLine int) []database.Field {
	var fields []database.Field
	for _, st := range splitStatements(body, firstLine) {
		attrs, header := extractAttributes(st.Header)
		if header == "" || strings.HasPrefix(header, "=") {
			continue
		}
		if hasAttribute(attrs, "NotMapped") {
			continue
		}
		if reNested.MatchString(header) {
			continue
		}
		if st.HasBody && !reAccessor.MatchString(st.Body) {
			// methods and constructors
			continue
		}

		declarators := []string{header}
		if !st.HasBody {
			if strings.Contains(header, "=>") {
				continue
			}
			declarators = splitTopLevel(header, ',')
			for k := range declarators {
				declarators[k], _, _ = cutAssignment(declarators[k])
			}
		}

		if len(declarators) == 0 {
			continue
		}
		f, ok := parseMember(declarators[0])
		if !ok {
			continue
		}
		applyFieldAttributes(&f, attrs)
		fields = append(fields, f)

		// int X, Y; declares one field per name
		for _, name := range declarators[1:] {
			if !isIdentifier(name) {
				log.WithField("line", st.Line).Warnf("ignoring declarator %q of field %s", name, f.Name)
				continue
			}
			g := f
			g.Name = name
			g.Tags = append([]string(nil), f.Tags...)
			fields = append(fields, g)
		}
	}

	return fields
}

// cutAssignment splits a field initializer at its first top-level '='.
func cutAssignment(s string) (string, string, bool) {
	depth := 0
	for i := 0; i < len(s); {
		if isLiteralStart(s, i) {
			i = skipLiteral(s, i)
			continue
		}
		switch s[i] {
		case '<', '(', '[':
			depth++
		case '>', ')', ']':
			depth--
		case '=':
			if depth == 0 {
				return strings.TrimSpace(s[:i]), strings.TrimSpace(s[i+1:]), true
			}
		}
		i++
	}

	return s, "", false
}

// parseMember reads "<modifiers> <type> <name>".
func parseMember(header string) (database.Field, bool) {
	words := strings.Fields(header)
	accessible := false
	i := 0
	for ; i < len(words); i++ {
		w := words[i]
		if _, ok := memberModifiers[w]; !ok {
			break
		}
		switch w {
		case "static", "const", "event":
			return database.Field{}, false
		case "public", "internal":
			accessible = true
		}
	}
	if !accessible || len(words)-i < 2 {
		return database.Field{}, false
	}

	name := words[len(words)-1]
	typ := strings.Join(words[i:len(words)-1], "")
	if !reIdent.MatchString(name) || !reTypeToken.MatchString(typ) {
		return database.Field{}, false
	}

	f := database.Field{Name: name}
	f.SourceType, f.Nullable = splitNullable(typ)

	return f, true
}

// splitNullable strips the nullable marker from a type token.
func splitNullable(typ string) (string, bool) {
	if strings.HasSuffix(typ, "?") {
		return strings.TrimSuffix(typ, "?"), true
	}
	if inner, ok := strings.CutPrefix(typ, "Nullable<"); ok && strings.HasSuffix(inner, ">") {
		return strings.TrimSuffix(inner, ">"), true
	}

	return typ, false
}

func isIdentifier(s string) bool {
	return reIdent.MatchString(s)
}

// fluentJoinTables finds HasMany().WithMany().UsingEntity(.. ToTable("x"))
// chains. entity is used when the chain has no Entity<T>() prefix, as in an
// IEntityTypeConfiguration<T> class.
func fluentJoinTables(body, entity string) []joinTable {
	var joins []joinTable
	for _, m := range reFluentM2M.FindAllStringSubmatch(body, -1) {
		j := joinTable{Entity: m[1], Property: m[2], Inverse: m[3], Table: m[4]}
		if j.Entity == "" {
			j.Entity = entity
		}
		if j.Entity == "" {
			continue
		}
		joins = append(joins, j)
	}

	return joins
}
