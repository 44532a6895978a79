package generator

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/manojsingh/agent-skills/database"
	"github.com/manojsingh/agent-skills/naming"
)

// autoFields are the Django key types for integer identities.
var autoFields = map[string]string{
	"IntegerField":      "AutoField",
	"BigIntegerField":   "BigAutoField",
	"SmallIntegerField": "SmallAutoField",
}

func renderDjango(c *catalog, e *database.Entity) string {
	composite := e.CompositeKey()
	var fields, rels, keys []string

	for _, f := range e.Fields {
		m := c.mapField(e, f, database.Django)
		args := append([]string(nil), m.Args...)
		name := m.Name

		if f.ColumnName() != "" {
			args = append(args, "db_column="+strconv.Quote(f.ColumnName()))
		}
		switch {
		case f.PrimaryKey && composite:
			keys = append(keys, naming.Attribute(f.Name))
		case f.PrimaryKey:
			if auto, ok := autoFields[name]; ok && !generatedNone(f) {
				name = auto
			}
			args = append(args, "primary_key=True")
		default:
			if marker := m.NullabilityMarker(); marker != "" {
				args = append(args, marker)
			}
		}
		if ref := c.foreignKeyTarget(f); ref != nil {
			c.flag(e.Name, f.Name, "foreign key to %s has no navigation property; kept as a plain column", ref.Name)
		}
		fields = append(fields, fmt.Sprintf("%s = models.%s(%s)", naming.Attribute(f.Name), name, strings.Join(args, ", ")))
	}

	for _, r := range e.Relationships {
		attr := naming.Attribute(r.Property)
		switch r.Kind {
		case database.ManyToOne:
			args := djangoForeignKeyArgs(c, e, r)
			if shared, ok := e.SharedKey(); ok && shared.Property == r.Property {
				args = append(args, "primary_key=True")
				rels = append(rels, fmt.Sprintf("%s = models.OneToOneField(%s)", attr, strings.Join(args, ", ")))
				continue
			}
			rels = append(rels, fmt.Sprintf("%s = models.ForeignKey(%s)", attr, strings.Join(args, ", ")))
			if r.ForeignKey != nil && r.ForeignKey.PrimaryKey {
				keys = append(keys, attr)
			}

		case database.OneToMany:
			if r.Inverse != "" {
				rels = append(rels, fmt.Sprintf("# %s: reverse accessor of %s.%s", attr, r.Target, naming.Attribute(r.Inverse)))
			} else {
				rels = append(rels, fmt.Sprintf("# %s: collection of %s without a foreign key on %s", attr, r.Target, r.Target))
			}

		case database.ManyToMany:
			a := c.association(r)
			if strings.EqualFold(a.Left, e.Name) {
				args := []string{
					strconv.Quote(r.Target),
					"db_table=" + strconv.Quote(a.Name),
				}
				if r.Inverse != "" {
					args = append(args, "related_name="+strconv.Quote(naming.Attribute(r.Inverse)))
				}
				rels = append(rels, fmt.Sprintf("%s = models.ManyToManyField(%s)", attr, strings.Join(args, ", ")))
			} else {
				rels = append(rels, fmt.Sprintf("# %s: reverse accessor of %s.%s (table %s)",
					attr, r.Target, naming.Attribute(r.Inverse), a.Name))
			}
		}
	}

	meta := []string{"db_table = " + strconv.Quote(e.Table())}
	if len(keys) > 1 {
		quoted := make([]string, len(keys))
		for i, k := range keys {
			quoted[i] = strconv.Quote(k)
		}
		meta = append(meta, fmt.Sprintf("unique_together = [(%s)]", strings.Join(quoted, ", ")))
		c.flag(e.Name, "", "composite primary key (%s) emitted as unique_together; Django adds an implicit `id`", strings.Join(keys, ", "))
	}

	var b strings.Builder
	b.WriteString(header(e))
	b.WriteString("from django.db import models\n\n\n")
	fmt.Fprintf(&b, "class %s(models.Model):\n", e.Name)
	sep := ""
	for _, block := range [][]string{fields, rels} {
		if len(block) == 0 {
			continue
		}
		b.WriteString(sep)
		for _, l := range block {
			fmt.Fprintf(&b, "    %s\n", l)
		}
		sep = "\n"
	}
	fmt.Fprintf(&b, "%s    class Meta:\n", sep)
	for _, l := range meta {
		fmt.Fprintf(&b, "        %s\n", l)
	}

	return b.String()
}

func djangoForeignKeyArgs(c *catalog, e *database.Entity, r database.Relationship) []string {
	target := strconv.Quote(r.Target)
	if r.Target == e.Name {
		target = strconv.Quote("self")
	}
	args := []string{target}
	if r.Nullable {
		args = append(args, "on_delete=models.SET_NULL", "null=True", "blank=True")
	} else {
		args = append(args, "on_delete=models.CASCADE")
	}

	switch {
	case r.Inverse != "":
		args = append(args, "related_name="+strconv.Quote(naming.Attribute(r.Inverse)))
	case c.manyToOneCount(e.Name, r.Target) > 1:
		args = append(args, "related_name="+strconv.Quote(naming.Plural(naming.Snake(e.Name))+"_"+naming.Snake(r.Property)))
	}

	if r.ForeignKey != nil {
		c.mapField(e, *r.ForeignKey, database.Django)
	}
	if col := r.ForeignKeyColumn(); col != naming.Attribute(r.Property)+"_id" {
		args = append(args, "db_column="+strconv.Quote(col))
	}

	return args
}

func generatedNone(f database.Field) bool {
	v, _ := f.TagValue(database.TagGenerated)
	return v == "none"
}

func djangoSupport(c *catalog) []File {
	var b strings.Builder
	b.WriteString("\"\"\"Generated Django models.\"\"\"\n")
	for _, e := range c.entities {
		fmt.Fprintf(&b, "from .%s import %s\n", moduleName(c.fileNames[e.Name]), e.Name)
	}
	b.WriteString("\n__all__ = [\n")
	for _, e := range c.entities {
		fmt.Fprintf(&b, "    %s,\n", strconv.Quote(e.Name))
	}
	b.WriteString("]\n")

	return []File{{Name: "__init__.py", Content: []byte(b.String())}}
}
