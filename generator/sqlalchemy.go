package generator

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/manojsingh/agent-skills/database"
	"github.com/manojsingh/agent-skills/naming"
)

const (
	baseModule         = "base"
	associationsModule = "associations"
)

// header is the module docstring shared by both dialects.
func header(e *database.Entity) string {
	origin := e.Name
	if e.Namespace != "" {
		origin = e.Namespace + "." + e.Name
	}
	return fmt.Sprintf("\"\"\"%s model, migrated from %s.\"\"\"\n", e.Name, origin)
}

func renderSQLAlchemy(c *catalog, e *database.Entity) string {
	imports := map[string]struct{}{"Column": {}}
	var fields, rels []string

	for _, f := range e.Fields {
		m := c.mapField(e, f, database.SQLAlchemy)
		imports[m.Name] = struct{}{}

		args := columnArgs(f)
		args = append(args, m.Expr())
		if ref := c.foreignKeyTarget(f); ref != nil {
			imports["ForeignKey"] = struct{}{}
			args = append(args, fmt.Sprintf("ForeignKey(%s)", strconv.Quote(ref.Table()+"."+ref.KeyColumn())))
		}
		if f.PrimaryKey {
			args = append(args, "primary_key=True")
		} else {
			args = append(args, m.NullabilityMarker())
		}
		fields = append(fields, fmt.Sprintf("%s = Column(%s)", naming.Attribute(f.Name), strings.Join(args, ", ")))
	}

	for _, r := range e.Relationships {
		target := c.byName[r.Target]
		switch r.Kind {
		case database.ManyToOne:
			imports["ForeignKey"] = struct{}{}
			col, m := foreignKeyColumn(c, e, r, target)
			imports[m.Name] = struct{}{}
			rels = append(rels, col)

			args := []string{strconv.Quote(target.Name)}
			if r.Inverse != "" {
				args = append(args, "back_populates="+strconv.Quote(naming.Attribute(r.Inverse)))
			}
			if c.manyToOneCount(e.Name, r.Target) > 1 {
				args = append(args, fmt.Sprintf("foreign_keys=[%s]", foreignKeyAttr(r)))
			}
			if r.Target == e.Name {
				args = append(args, "remote_side="+strconv.Quote(fmt.Sprintf("%s.%s", e.Name, naming.Attribute(e.KeyField().Name))))
			}
			rels = append(rels, fmt.Sprintf("%s = relationship(%s)", naming.Attribute(r.Property), strings.Join(args, ", ")))

		case database.OneToMany:
			args := []string{strconv.Quote(target.Name)}
			if r.Inverse != "" {
				args = append(args, "back_populates="+strconv.Quote(naming.Attribute(r.Inverse)))
				if c.manyToOneCount(r.Target, e.Name) > 1 {
					if inv, ok := c.inverseOf(r); ok {
						args = append(args, "foreign_keys="+strconv.Quote(fmt.Sprintf("[%s.%s]", target.Name, foreignKeyAttr(inv))))
					}
				}
			}
			rels = append(rels, fmt.Sprintf("%s = relationship(%s)", naming.Attribute(r.Property), strings.Join(args, ", ")))

		case database.ManyToMany:
			a := c.association(r)
			args := []string{strconv.Quote(target.Name), "secondary=" + strconv.Quote(a.Name)}
			if r.Inverse != "" {
				args = append(args, "back_populates="+strconv.Quote(naming.Attribute(r.Inverse)))
			}
			rels = append(rels, fmt.Sprintf("%s = relationship(%s)", naming.Attribute(r.Property), strings.Join(args, ", ")))
		}
	}

	var b strings.Builder
	b.WriteString(header(e))
	fmt.Fprintf(&b, "from sqlalchemy import %s\n", strings.Join(sortedKeys(imports), ", "))
	if len(e.Relationships) > 0 {
		b.WriteString("from sqlalchemy.orm import relationship\n")
	}
	fmt.Fprintf(&b, "\nfrom .%s import Base\n\n\n", baseModule)

	fmt.Fprintf(&b, "class %s(Base):\n", e.Name)
	fmt.Fprintf(&b, "    __tablename__ = %s\n", strconv.Quote(e.Table()))
	if e.Schema != "" {
		fmt.Fprintf(&b, "    __table_args__ = {\"schema\": %s}\n", strconv.Quote(e.Schema))
	}
	writeBlock(&b, fields)
	writeBlock(&b, rels)

	return b.String()
}

// writeBlock writes lines as one indented, blank-line separated group.
func writeBlock(b *strings.Builder, lines []string) {
	if len(lines) == 0 {
		return
	}
	b.WriteString("\n")
	for _, l := range lines {
		fmt.Fprintf(b, "    %s\n", l)
	}
}

// columnArgs returns the explicit column name argument, if any.
func columnArgs(f database.Field) []string {
	if name := f.ColumnName(); name != "" {
		return []string{strconv.Quote(name)}
	}
	return nil
}

// foreignKeyColumn renders the column behind a many-to-one relationship,
// synthesizing one from the target key when the source declared none.
func foreignKeyColumn(c *catalog, e *database.Entity, r database.Relationship, target *database.Entity) (string, database.MappedType) {
	var (
		f database.Field
		m database.MappedType
	)
	if r.ForeignKey != nil {
		f = *r.ForeignKey
		m = c.mapField(e, f, database.SQLAlchemy)
	} else {
		f = target.KeyField()
		f.Name, f.PrimaryKey, f.Tags = r.ForeignKeyName(), false, nil
		m = database.Map(f, database.SQLAlchemy)
	}

	args := columnArgs(f)
	args = append(args, m.Expr(),
		fmt.Sprintf("ForeignKey(%s)", strconv.Quote(target.Table()+"."+target.KeyColumn())))
	switch {
	case f.PrimaryKey:
		args = append(args, "primary_key=True")
	case r.Nullable:
		args = append(args, "nullable=True")
	default:
		args = append(args, "nullable=False")
	}

	return fmt.Sprintf("%s = Column(%s)", foreignKeyAttr(r), strings.Join(args, ", ")), m
}

// foreignKeyAttr is the Python attribute holding a many-to-one key.
func foreignKeyAttr(r database.Relationship) string {
	if r.ForeignKey != nil {
		return naming.Attribute(r.ForeignKey.Name)
	}
	return naming.Snake(r.ForeignKeyName())
}

// inverseOf returns the many-to-one relationship a collection pairs with.
func (c *catalog) inverseOf(r database.Relationship) (database.Relationship, bool) {
	target := c.byName[r.Target]
	if target == nil {
		return database.Relationship{}, false
	}
	for _, inv := range target.Relationships {
		if inv.Property == r.Inverse && inv.Kind == database.ManyToOne {
			return inv, true
		}
	}
	return database.Relationship{}, false
}

// foreignKeyTarget resolves a [ForeignKey] annotation on a plain scalar to
// the entity it names.
func (c *catalog) foreignKeyTarget(f database.Field) *database.Entity {
	v, ok := f.TagValue(database.TagForeignKey)
	if !ok {
		return nil
	}
	return c.lookup(v)
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// moduleName strips the .py extension from a generated file name.
func moduleName(file string) string {
	return strings.TrimSuffix(file, ".py")
}

func sqlalchemySupport(c *catalog) []File {
	files := []File{{
		Name: baseModule + ".py",
		Content: []byte("\"\"\"Declarative base shared by every generated model.\"\"\"\n" +
			"from sqlalchemy.orm import declarative_base\n\n" +
			"Base = declarative_base()\n"),
	}}

	assocs := c.sortedAssociations()
	if len(assocs) > 0 {
		files = append(files, File{Name: associationsModule + ".py", Content: []byte(renderAssociations(c, assocs))})
	}

	var b strings.Builder
	b.WriteString("\"\"\"Generated SQLAlchemy models.\"\"\"\n")
	fmt.Fprintf(&b, "from .%s import Base\n", baseModule)
	exports := []string{"Base"}
	if len(assocs) > 0 {
		var names []string
		for _, a := range assocs {
			names = append(names, naming.Attribute(a.Name))
		}
		fmt.Fprintf(&b, "from .%s import %s\n", associationsModule, strings.Join(names, ", "))
		exports = append(exports, names...)
	}
	for _, e := range c.entities {
		fmt.Fprintf(&b, "from .%s import %s\n", moduleName(c.fileNames[e.Name]), e.Name)
		exports = append(exports, e.Name)
	}
	b.WriteString("\n__all__ = [\n")
	for _, name := range exports {
		fmt.Fprintf(&b, "    %s,\n", strconv.Quote(name))
	}
	b.WriteString("]\n")
	files = append(files, File{Name: "__init__.py", Content: []byte(b.String())})

	return files
}

func renderAssociations(c *catalog, assocs []database.Association) string {
	imports := map[string]struct{}{"Column": {}, "ForeignKey": {}, "Table": {}}
	var tables []string

	for _, a := range assocs {
		left, right := c.byName[a.Left], c.byName[a.Right]
		if left == nil || right == nil {
			continue
		}
		var cols []string
		for _, side := range []*database.Entity{left, right} {
			m := database.Map(side.KeyField(), database.SQLAlchemy)
			imports[m.Name] = struct{}{}
			cols = append(cols, fmt.Sprintf("    Column(%s, %s, ForeignKey(%s), primary_key=True),",
				strconv.Quote(naming.Snake(side.Name)+"_id"), m.Expr(),
				strconv.Quote(side.Table()+"."+side.KeyColumn())))
		}
		tables = append(tables, fmt.Sprintf("%s = Table(\n    %s,\n    Base.metadata,\n%s\n)\n",
			naming.Attribute(a.Name), strconv.Quote(a.Name), strings.Join(cols, "\n")))
	}

	var b strings.Builder
	b.WriteString("\"\"\"Association tables backing many-to-many relationships.\"\"\"\n")
	fmt.Fprintf(&b, "from sqlalchemy import %s\n\n", strings.Join(sortedKeys(imports), ", "))
	fmt.Fprintf(&b, "from .%s import Base\n", baseModule)
	for _, t := range tables {
		b.WriteString("\n\n")
		b.WriteString(t)
	}

	return b.String()
}
