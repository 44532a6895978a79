package database

import (
	"fmt"
	"strings"

	"github.com/apex/log"
	"github.com/pkg/errors"
)

// Dialect selects the target ORM output style
type Dialect string

const (
	// SQLAlchemy is the declarative-table style.
	SQLAlchemy Dialect = "sqlalchemy"
	// Django is the active-record style.
	Django Dialect = "django"
)

var ErrUnknownDialect = errors.New("unknown dialect")

// Dialects lists the supported dialects in display order.
var Dialects = []Dialect{SQLAlchemy, Django}

// ParseDialect accepts a dialect selector, case-insensitively.
func ParseDialect(s string) (Dialect, error) {
	d := Dialect(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Dialects {
		if d == known {
			return d, nil
		}
	}

	return "", errors.Wrapf(ErrUnknownDialect, "%q (use %s or %s)", s, SQLAlchemy, Django)
}

// typeMapping is one row of the built-in table
type typeMapping struct {
	sqlalchemy string
	django     string
	postgres   string
}

// builtinTypes maps lowercased C# type tokens onto target types. Read-only.
var builtinTypes = map[string]typeMapping{
	"string":         {"String", "CharField", "VARCHAR"},
	"char":           {"String", "CharField", "CHAR"},
	"int":            {"Integer", "IntegerField", "INTEGER"},
	"int32":          {"Integer", "IntegerField", "INTEGER"},
	"uint":           {"BigInteger", "PositiveIntegerField", "BIGINT"},
	"long":           {"BigInteger", "BigIntegerField", "BIGINT"},
	"int64":          {"BigInteger", "BigIntegerField", "BIGINT"},
	"short":          {"SmallInteger", "SmallIntegerField", "SMALLINT"},
	"int16":          {"SmallInteger", "SmallIntegerField", "SMALLINT"},
	"byte":           {"SmallInteger", "PositiveSmallIntegerField", "SMALLINT"},
	"sbyte":          {"SmallInteger", "SmallIntegerField", "SMALLINT"},
	"bool":           {"Boolean", "BooleanField", "BOOLEAN"},
	"boolean":        {"Boolean", "BooleanField", "BOOLEAN"},
	"decimal":        {"Numeric", "DecimalField", "NUMERIC"},
	"float":          {"Float", "FloatField", "REAL"},
	"single":         {"Float", "FloatField", "REAL"},
	"double":         {"Float", "FloatField", "DOUBLE PRECISION"},
	"datetime":       {"DateTime", "DateTimeField", "TIMESTAMP"},
	"datetimeoffset": {"DateTime", "DateTimeField", "TIMESTAMPTZ"},
	"dateonly":       {"Date", "DateField", "DATE"},
	"timeonly":       {"Time", "TimeField", "TIME"},
	"timespan":       {"Interval", "DurationField", "INTERVAL"},
	"guid":           {"String", "UUIDField", "UUID"},
	"byte[]":         {"LargeBinary", "BinaryField", "BYTEA"},
}

// Fallbacks for tokens outside the table
const (
	unmappedSQLAlchemy = "Text"
	unmappedDjango     = "TextField"
	unmappedPostgres   = "TEXT"
)

const (
	defaultPrecision     = 18
	defaultScale         = 2
	defaultDjangoLength  = 255
	guidLength           = 36
	timestampPrecisionPG = 6
)

// MappedType is a field's type in one dialect
type MappedType struct {
	Dialect  Dialect
	Name     string   // e.g. "Numeric", "DecimalField"
	Args     []string // e.g. "10, 2", "max_digits=10"
	Nullable bool
	Unmapped bool
}

// Expr renders the type expression without nullability.
func (m MappedType) Expr() string {
	args := strings.Join(m.Args, ", ")
	if m.Dialect == Django {
		return fmt.Sprintf("models.%s(%s)", m.Name, args)
	}
	if args == "" {
		return m.Name
	}

	return fmt.Sprintf("%s(%s)", m.Name, args)
}

// NullabilityMarker renders the nullability keyword arguments for the dialect.
func (m MappedType) NullabilityMarker() string {
	if m.Dialect == Django {
		if m.Nullable {
			return "null=True, blank=True"
		}
		return ""
	}
	if m.Nullable {
		return "nullable=True"
	}

	return "nullable=False"
}

// IsKnownType reports whether token is in the built-in table.
func IsKnownType(token string) bool {
	_, ok := builtinTypes[normalizeToken(token)]
	return ok
}

// Map translates a field's source type into the dialect. Unknown tokens map
// to the dialect's text type and are logged.
func Map(f Field, d Dialect) MappedType {
	m := MappedType{Dialect: d, Nullable: f.IsNullable()}

	tm, ok := builtinTypes[normalizeToken(f.SourceType)]
	if !ok {
		log.WithField("field", f.Name).WithField("type", f.SourceType).Warn("unmapped source type")
		m.Unmapped = true
		if d == Django {
			m.Name = unmappedDjango
		} else {
			m.Name = unmappedSQLAlchemy
		}
		return m
	}

	switch d {
	case Django:
		m.Name = tm.django
		m.Args = djangoArgs(f, tm.django)
	default:
		m.Name = tm.sqlalchemy
		m.Args = sqlalchemyArgs(f, normalizeToken(f.SourceType))
	}

	return m
}

func sqlalchemyArgs(f Field, token string) []string {
	switch token {
	case "decimal":
		p, s, ok := f.Precision()
		if !ok {
			p, s = defaultPrecision, defaultScale
		}
		return []string{fmt.Sprintf("%d, %d", p, s)}
	case "string":
		if n, ok := f.MaxLength(); ok {
			return []string{fmt.Sprint(n)}
		}
	case "char":
		return []string{"1"}
	case "guid":
		return []string{fmt.Sprint(guidLength)}
	case "datetimeoffset":
		return []string{"timezone=True"}
	}

	return nil
}

func djangoArgs(f Field, name string) []string {
	switch name {
	case "DecimalField":
		p, s, ok := f.Precision()
		if !ok {
			p, s = defaultPrecision, defaultScale
		}
		return []string{fmt.Sprintf("max_digits=%d", p), fmt.Sprintf("decimal_places=%d", s)}
	case "CharField":
		if normalizeToken(f.SourceType) == "char" {
			return []string{"max_length=1"}
		}
		if n, ok := f.MaxLength(); ok {
			return []string{fmt.Sprintf("max_length=%d", n)}
		}
		return []string{fmt.Sprintf("max_length=%d", defaultDjangoLength)}
	}

	return nil
}

// PostgresType maps a field onto a PostgreSQL column type. The second result
// is false for tokens outside the table.
func PostgresType(f Field) (string, bool) {
	token := normalizeToken(f.SourceType)
	tm, ok := builtinTypes[token]
	if !ok {
		return unmappedPostgres, false
	}

	switch token {
	case "decimal":
		p, s, ok := f.Precision()
		if !ok {
			p, s = defaultPrecision, defaultScale
		}
		return fmt.Sprintf("NUMERIC(%d,%d)", p, s), true
	case "string":
		if n, ok := f.MaxLength(); ok {
			return fmt.Sprintf("VARCHAR(%d)", n), true
		}
		return "TEXT", true
	case "char":
		return "CHAR(1)", true
	case "datetime":
		return fmt.Sprintf("TIMESTAMP(%d)", timestampPrecisionPG), true
	}

	return tm.postgres, true
}

// normalizeToken lowercases a type token and strips the System namespace.
func normalizeToken(token string) string {
	t := strings.ToLower(strings.TrimSpace(token))
	t = strings.TrimSuffix(t, "?")
	t = strings.TrimPrefix(t, "system.")
	return t
}
