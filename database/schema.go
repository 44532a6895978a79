package database

import (
	"fmt"
	"io"
	"strings"

	"github.com/lib/pq"

	"github.com/manojsingh/agent-skills/naming"
)

// Table returns the explicit table name or the snake_case entity name.
func (e *Entity) Table() string {
	if e.TableName != "" {
		return e.TableName
	}
	return naming.Table(e.Name)
}

// Column returns the explicit column name or the snake_case field name.
func (f Field) Column() string {
	if c := f.ColumnName(); c != "" {
		return c
	}
	return naming.Snake(f.Name)
}

// ForeignKeyName returns the member holding a many-to-one reference,
// declared or synthesized.
func (r Relationship) ForeignKeyName() string {
	switch {
	case r.ForeignKey != nil:
		return r.ForeignKey.Name
	case r.KeyName != "":
		return r.KeyName
	}
	return r.Property + "Id"
}

// ForeignKeyColumn returns the column holding a many-to-one reference.
func (r Relationship) ForeignKeyColumn() string {
	if r.ForeignKey != nil {
		return r.ForeignKey.Column()
	}
	return naming.Snake(r.ForeignKeyName())
}

// KeyColumn returns the primary key column of e, "id" when none is declared.
func (e *Entity) KeyColumn() string {
	if pk := e.keyField(); pk != nil {
		return pk.Column()
	}
	return "id"
}

// KeyField returns the primary key field, or an int Id stand-in.
func (e *Entity) KeyField() Field {
	if pk := e.keyField(); pk != nil {
		return *pk
	}
	return Field{Name: "Id", SourceType: "int", PrimaryKey: true}
}

// GenerateSchema writes a PostgreSQL DDL script for the entities.
func GenerateSchema(w io.Writer, entities []Entity, associations []Association, schemaName string) error {
	if schemaName == "" {
		schemaName = "public"
	}
	byName := make(map[string]*Entity, len(entities))
	for i := range entities {
		byName[entities[i].Name] = &entities[i]
	}

	qualify := func(table string) string {
		return pq.QuoteIdentifier(schemaName) + "." + pq.QuoteIdentifier(table)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "-- generated schema\nCREATE SCHEMA IF NOT EXISTS %s;\n\n", pq.QuoteIdentifier(schemaName))

	fmt.Fprintln(&b, "-- Drop existing tables (if any) in reverse order")
	for i := len(associations) - 1; i >= 0; i-- {
		fmt.Fprintf(&b, "DROP TABLE IF EXISTS %s CASCADE;\n", qualify(associations[i].Name))
	}
	for i := len(entities) - 1; i >= 0; i-- {
		fmt.Fprintf(&b, "DROP TABLE IF EXISTS %s CASCADE;\n", qualify(entities[i].Table()))
	}
	fmt.Fprintln(&b)

	var constraints []string
	for i := range entities {
		e := &entities[i]

		identity := e.PrimaryKey() != nil && !e.CompositeKey()
		var cols, keys []string
		for _, f := range e.Fields {
			cols = append(cols, columnDDL(f, identity && f.PrimaryKey))
			if f.PrimaryKey {
				keys = append(keys, pq.QuoteIdentifier(f.Column()))
			}
		}
		for _, r := range e.Relationships {
			if r.Kind != ManyToOne {
				continue
			}
			target, ok := byName[r.Target]
			if !ok {
				continue
			}
			fk := r.ForeignKey
			if fk == nil {
				key := target.KeyField()
				fk = &Field{Name: r.ForeignKeyName(), SourceType: key.SourceType, Nullable: r.Nullable}
			}
			col := r.ForeignKeyColumn()
			cols = append(cols, columnDDL(*fk, false))
			if fk.PrimaryKey {
				keys = append(keys, pq.QuoteIdentifier(col))
			}
			constraints = append(constraints, fmt.Sprintf(
				"ALTER TABLE %s ADD CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s(%s);",
				qualify(e.Table()),
				pq.QuoteIdentifier(fmt.Sprintf("fk_%s_%s", e.Table(), col)),
				pq.QuoteIdentifier(col),
				qualify(target.Table()), pq.QuoteIdentifier(target.KeyColumn()),
			))
		}
		if len(keys) > 0 {
			cols = append(cols, fmt.Sprintf("PRIMARY KEY (%s)", strings.Join(keys, ", ")))
		}
		writeTable(&b, qualify(e.Table()), cols)
	}

	for _, a := range associations {
		left, right := byName[a.Left], byName[a.Right]
		if left == nil || right == nil {
			continue
		}
		lcol, rcol := naming.Snake(left.Name)+"_id", naming.Snake(right.Name)+"_id"
		lt, _ := PostgresType(left.KeyField())
		rt, _ := PostgresType(right.KeyField())
		writeTable(&b, qualify(a.Name), []string{
			fmt.Sprintf("%s %s NOT NULL", pq.QuoteIdentifier(lcol), lt),
			fmt.Sprintf("%s %s NOT NULL", pq.QuoteIdentifier(rcol), rt),
			fmt.Sprintf("PRIMARY KEY (%s, %s)", pq.QuoteIdentifier(lcol), pq.QuoteIdentifier(rcol)),
		})
		for _, side := range []struct {
			col    string
			target *Entity
		}{{lcol, left}, {rcol, right}} {
			constraints = append(constraints, fmt.Sprintf(
				"ALTER TABLE %s ADD CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s(%s) ON DELETE CASCADE;",
				qualify(a.Name),
				pq.QuoteIdentifier(fmt.Sprintf("fk_%s_%s", a.Name, side.col)),
				pq.QuoteIdentifier(side.col),
				qualify(side.target.Table()), pq.QuoteIdentifier(side.target.KeyColumn()),
			))
		}
	}

	fmt.Fprintln(&b, "-- Add foreign key constraints")
	for _, c := range constraints {
		fmt.Fprintln(&b, c)
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func writeTable(b *strings.Builder, table string, cols []string) {
	fmt.Fprintf(b, "CREATE TABLE IF NOT EXISTS %s (\n", table)
	for i, c := range cols {
		comma := ""
		if i+1 < len(cols) {
			comma = ","
		}
		fmt.Fprintf(b, "    %s%s\n", c, comma)
	}
	fmt.Fprint(b, ");\n\n")
}

// columnDDL renders one column definition. Integer single-column keys
// become identities.
func columnDDL(f Field, identity bool) string {
	pg, _ := PostgresType(f)
	if identity && (pg == "INTEGER" || pg == "BIGINT" || pg == "SMALLINT") {
		if v, _ := f.TagValue(TagGenerated); v != "none" {
			pg += " GENERATED BY DEFAULT AS IDENTITY"
		}
	}
	null := ""
	if !f.IsNullable() {
		null = " NOT NULL"
	}

	return fmt.Sprintf("%s %s%s", pq.QuoteIdentifier(f.Column()), pg, null)
}
