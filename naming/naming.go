// Package naming derives Python and SQL identifiers from C# member names.
package naming

import (
	"github.com/jinzhu/inflection"
	"gorm.io/gorm/schema"
)

var strategy = schema.NamingStrategy{SingularTable: true}

var pythonKeywords = map[string]struct{}{
	"and": {}, "as": {}, "assert": {}, "async": {}, "await": {}, "break": {},
	"class": {}, "continue": {}, "def": {}, "del": {}, "elif": {}, "else": {},
	"except": {}, "finally": {}, "for": {}, "from": {}, "global": {}, "if": {},
	"import": {}, "in": {}, "is": {}, "lambda": {}, "nonlocal": {}, "not": {},
	"or": {}, "pass": {}, "raise": {}, "return": {}, "try": {}, "while": {},
	"with": {}, "yield": {},
}

// Snake converts PascalCase to snake_case ("CategoryId" -> "category_id").
func Snake(name string) string {
	return strategy.ColumnName("", name)
}

// Table returns the conventional table name for an entity.
func Table(entity string) string {
	return strategy.TableName(entity)
}

// Plural pluralises a snake_case name ("category" -> "categories").
func Plural(name string) string {
	return inflection.Plural(name)
}

// Attribute returns a snake_case name that is a legal Python attribute.
func Attribute(name string) string {
	s := Snake(name)
	if _, ok := pythonKeywords[s]; ok {
		return s + "_"
	}

	return s
}

// Association names the join table for two entities: their snake_case
// names in sorted order joined with an underscore.
func Association(a, b string) string {
	x, y := Snake(a), Snake(b)
	if y < x {
		x, y = y, x
	}

	return x + "_" + y
}
