package database

import (
	"strconv"
	"strings"
)

// SourceFile is one discovered model file
type SourceFile struct {
	Path    string
	Content []byte
}

// RelationKind enumerates the navigation shapes the parser recognises
type RelationKind string

const (
	OneToMany  RelationKind = "one-to-many"
	ManyToOne  RelationKind = "many-to-one"
	ManyToMany RelationKind = "many-to-many"
)

// Annotation tags attached to fields
const (
	TagPrimaryKey = "primary-key"
	TagRequired   = "required"
	TagMaxLength  = "max-length"
	TagPrecision  = "precision"
	TagColumn     = "column"
	TagForeignKey = "foreign-key"
	TagGenerated  = "generated"
	TagTimestamp  = "timestamp"
)

// Field is a scalar member of an entity
type Field struct {
	Name       string
	SourceType string // type token without the trailing '?'
	Nullable   bool
	PrimaryKey bool
	Tags       []string // order of appearance, no duplicates
}

// Relationship is a navigation member of an entity
type Relationship struct {
	Kind       RelationKind
	Source     string
	Target     string
	Property   string
	Inverse    string // navigation on Target pointing back at Source
	ForeignKey *Field // many-to-one only
	KeyName    string // synthesized key member when ForeignKey is nil
	Nullable   bool
	JoinTable  string // explicit join table, many-to-many only
}

// Entity is one parsed model declaration
type Entity struct {
	Name          string
	Namespace     string
	BaseType      string
	TableName     string
	Schema        string
	SourcePath    string
	Fields        []Field // order of declaration
	Relationships []Relationship
}

// Association is the join construct backing one many-to-many pair
type Association struct {
	Name     string
	Left     string
	Right    string
	Explicit bool
}

// HasTag reports whether the field carries tag, with or without a value.
func (f Field) HasTag(tag string) bool {
	_, ok := f.TagValue(tag)
	return ok
}

// TagValue returns the value part of a "name:value" tag.
func (f Field) TagValue(tag string) (string, bool) {
	for _, t := range f.Tags {
		name, value, _ := strings.Cut(t, ":")
		if name == tag {
			return value, true
		}
	}

	return "", false
}

// AddTag appends tag unless an identical one is present.
func (f *Field) AddTag(tag string) {
	for _, t := range f.Tags {
		if t == tag {
			return
		}
	}
	f.Tags = append(f.Tags, tag)
}

func (f Field) IsRequired() bool {
	return f.HasTag(TagRequired)
}

// MaxLength returns the annotated length, if any.
func (f Field) MaxLength() (int, bool) {
	v, ok := f.TagValue(TagMaxLength)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, false
	}

	return n, true
}

// Precision returns the annotated numeric precision and scale, if any.
func (f Field) Precision() (int, int, bool) {
	v, ok := f.TagValue(TagPrecision)
	if !ok {
		return 0, 0, false
	}
	ps, ss, _ := strings.Cut(v, ",")
	p, err := strconv.Atoi(strings.TrimSpace(ps))
	if err != nil {
		return 0, 0, false
	}
	s := 0
	if ss != "" {
		if s, err = strconv.Atoi(strings.TrimSpace(ss)); err != nil {
			return 0, 0, false
		}
	}

	return p, s, true
}

// ColumnName returns the explicit column name from [Column("...")].
func (f Field) ColumnName() string {
	v, _ := f.TagValue(TagColumn)
	return v
}

// IsNullable folds required and key constraints into the declared nullability.
func (f Field) IsNullable() bool {
	return f.Nullable && !f.IsRequired() && !f.PrimaryKey
}

// PrimaryKey returns the entity's key field, or nil.
func (e *Entity) PrimaryKey() *Field {
	for i := range e.Fields {
		if e.Fields[i].PrimaryKey {
			return &e.Fields[i]
		}
	}

	return nil
}

// HasPrimaryKey reports whether any field, including absorbed foreign keys,
// is part of the primary key.
func (e *Entity) HasPrimaryKey() bool {
	return e.keyField() != nil
}

// keyField prefers a scalar key over a key shared with a reference.
func (e *Entity) keyField() *Field {
	if pk := e.PrimaryKey(); pk != nil {
		return pk
	}
	for _, r := range e.Relationships {
		if r.ForeignKey != nil && r.ForeignKey.PrimaryKey {
			return r.ForeignKey
		}
	}

	return nil
}

// SharedKey returns the reference whose foreign key is the entity's whole
// primary key, as in a one-to-one that borrows its principal's key.
func (e *Entity) SharedKey() (Relationship, bool) {
	if e.PrimaryKey() != nil || e.CompositeKey() {
		return Relationship{}, false
	}
	for _, r := range e.Relationships {
		if r.ForeignKey != nil && r.ForeignKey.PrimaryKey {
			return r, true
		}
	}

	return Relationship{}, false
}

// CompositeKey reports whether the key spans several members.
func (e *Entity) CompositeKey() bool {
	n := 0
	for _, f := range e.Fields {
		if f.PrimaryKey {
			n++
		}
	}
	for _, r := range e.Relationships {
		if r.ForeignKey != nil && r.ForeignKey.PrimaryKey {
			n++
		}
	}

	return n > 1
}

// RelationshipsOf returns the relationships of the given kind, in order.
func (e *Entity) RelationshipsOf(kind RelationKind) []Relationship {
	var rels []Relationship
	for _, r := range e.Relationships {
		if r.Kind == kind {
			rels = append(rels, r)
		}
	}

	return rels
}
