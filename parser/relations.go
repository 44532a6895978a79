package parser

import (
	"fmt"
	"strings"

	"github.com/manojsingh/agent-skills/database"
	"github.com/manojsingh/agent-skills/naming"
)

var collectionTypes = map[string]struct{}{
	"List":                 {},
	"IList":                {},
	"ICollection":          {},
	"IEnumerable":          {},
	"HashSet":              {},
	"ISet":                 {},
	"IReadOnlyCollection":  {},
	"IReadOnlyList":        {},
	"Collection":           {},
	"ObservableCollection": {},
}

type memberKind int

const (
	scalarMember memberKind = iota
	collectionMember
	referenceMember
)

// member is a field awaiting classification
type member struct {
	field   database.Field
	kind    memberKind
	target  int // entity index for navigations
	rel     database.RelationKind
	inverse string
	join    string
	paired  bool
}

// collectionElement returns T for List<T>-like tokens and for T[].
func collectionElement(typ string) (string, bool) {
	if elem, ok := strings.CutSuffix(typ, "[]"); ok {
		if database.IsKnownType(typ) {
			return "", false
		}
		return strings.TrimSuffix(elem, "?"), true
	}

	name, arg, ok := strings.Cut(typ, "<")
	if !ok || !strings.HasSuffix(arg, ">") {
		return "", false
	}
	if _, ok := collectionTypes[simpleName(name)]; !ok {
		return "", false
	}
	arg = strings.TrimSuffix(arg, ">")
	if strings.ContainsAny(arg, ",<") {
		return "", false
	}

	return strings.TrimSuffix(arg, "?"), true
}

// simpleName drops namespace qualification from a type name.
func simpleName(typ string) string {
	if i := strings.LastIndex(typ, "."); i >= 0 {
		return typ[i+1:]
	}
	return typ
}

// classify turns navigation members into relationships, in place.
func classify(entities []database.Entity, joins []joinTable) {
	index := make(map[string]int, len(entities))
	for i, e := range entities {
		index[strings.ToLower(e.Name)] = i
	}

	members := make([][]member, len(entities))
	for i, e := range entities {
		for _, f := range e.Fields {
			m := member{field: f, target: -1}
			if elem, ok := collectionElement(f.SourceType); ok {
				if t, ok := index[strings.ToLower(simpleName(elem))]; ok {
					m.kind, m.target = collectionMember, t
				}
			} else if !database.IsKnownType(f.SourceType) {
				if t, ok := index[strings.ToLower(simpleName(f.SourceType))]; ok {
					m.kind, m.target = referenceMember, t
				}
			}
			members[i] = append(members[i], m)
		}
		markPrimaryKey(e.Name, members[i])
	}

	pairManyToMany(entities, members, joins)
	pairInverses(entities, members)

	for i := range entities {
		entities[i].Fields, entities[i].Relationships = build(entities, i, members[i])
	}
}

// markPrimaryKey applies [Key] or, failing that, the Id / <Entity>Id convention.
func markPrimaryKey(entity string, members []member) {
	found := false
	for j := range members {
		if members[j].kind == scalarMember && members[j].field.HasTag(database.TagPrimaryKey) {
			members[j].field.PrimaryKey = true
			found = true
		}
	}
	if found {
		return
	}

	for _, name := range []string{"id", strings.ToLower(entity) + "id"} {
		for j := range members {
			if members[j].kind == scalarMember && strings.ToLower(members[j].field.Name) == name {
				members[j].field.PrimaryKey = true
				return
			}
		}
	}
}

// pairManyToMany upgrades mutually declared collections to many-to-many,
// once per pair of navigations.
func pairManyToMany(entities []database.Entity, members [][]member, joins []joinTable) {
	for a := range members {
		for i := range members[a] {
			ma := &members[a][i]
			if ma.kind != collectionMember || ma.paired || ma.target == a {
				continue
			}
			b := ma.target
			partner := joinPartner(joins, entities[a].Name, ma.field.Name, entities[b].Name)
			for j := range members[b] {
				mb := &members[b][j]
				if mb.kind != collectionMember || mb.paired || mb.target != a {
					continue
				}
				if partner != "" && mb.field.Name != partner {
					continue
				}
				join := explicitJoin(joins, entities[a].Name, ma.field.Name, entities[b].Name, mb.field.Name)
				*ma = member{field: ma.field, kind: ma.kind, target: b, rel: database.ManyToMany, inverse: mb.field.Name, join: join, paired: true}
				*mb = member{field: mb.field, kind: mb.kind, target: a, rel: database.ManyToMany, inverse: ma.field.Name, join: join, paired: true}
				break
			}
		}
	}
}

// joinPartner returns the inverse navigation a fluent configuration names
// for property pa of a, if any.
func joinPartner(joins []joinTable, a, pa, b string) string {
	for _, j := range joins {
		if strings.EqualFold(j.Entity, a) && j.Property == pa && j.Inverse != "" {
			return j.Inverse
		}
		if strings.EqualFold(j.Entity, b) && j.Inverse == pa {
			return j.Property
		}
	}
	return ""
}

func explicitJoin(joins []joinTable, a, pa, b, pb string) string {
	for _, j := range joins {
		if strings.EqualFold(j.Entity, a) && j.Property == pa {
			return j.Table
		}
		if strings.EqualFold(j.Entity, b) && j.Property == pb {
			return j.Table
		}
	}
	return ""
}

// pairInverses matches each remaining collection with a reference on the
// target pointing back, and classifies the rest.
func pairInverses(entities []database.Entity, members [][]member) {
	for a := range members {
		for i := range members[a] {
			ma := &members[a][i]
			switch {
			case ma.kind == collectionMember && !ma.paired:
				ma.rel = database.OneToMany
			case ma.kind == referenceMember && ma.rel == "":
				ma.rel = database.ManyToOne
			}
		}
	}

	for a := range members {
		for i := range members[a] {
			ma := &members[a][i]
			if ma.rel != database.OneToMany || ma.inverse != "" {
				continue
			}
			b := ma.target
			for j := range members[b] {
				mb := &members[b][j]
				if mb.rel == database.ManyToOne && mb.target == a && mb.inverse == "" {
					ma.inverse = mb.field.Name
					mb.inverse = ma.field.Name
					break
				}
			}
		}
	}
}

// build splits members into the final field and relationship lists,
// absorbing foreign key scalars into their many-to-one relationships.
func build(entities []database.Entity, self int, members []member) ([]database.Field, []database.Relationship) {
	absorbed := map[int]bool{}
	var rels []database.Relationship

	for _, m := range members {
		if m.kind == scalarMember {
			continue
		}
		r := database.Relationship{
			Kind:      m.rel,
			Source:    entities[self].Name,
			Target:    entities[m.target].Name,
			Property:  m.field.Name,
			Inverse:   m.inverse,
			JoinTable: m.join,
			Nullable:  true,
		}
		if m.rel == database.ManyToOne {
			if j := findForeignKey(members, m, entities[self].Name, entities[m.target].Name, absorbed); j >= 0 {
				absorbed[j] = true
				fk := members[j].field
				r.ForeignKey = &fk
				r.Nullable = fk.IsNullable()
			} else {
				r.Nullable = !m.field.IsRequired()
			}
		}
		rels = append(rels, r)
	}

	var fields []database.Field
	for j, m := range members {
		if m.kind == scalarMember && !absorbed[j] {
			fields = append(fields, m.field)
		}
	}
	nameKeys(members, rels)

	return fields, rels
}

// nameKeys picks a member name for every foreign key that has to be
// synthesized, avoiding the names already taken by the entity.
func nameKeys(members []member, rels []database.Relationship) {
	taken := map[string]bool{}
	for _, m := range members {
		taken[naming.Snake(m.field.Name)] = true
		if m.kind == scalarMember {
			taken[m.field.Column()] = true
		}
	}
	for _, r := range rels {
		if r.ForeignKey != nil {
			taken[r.ForeignKey.Column()] = true
		}
	}

	for i := range rels {
		r := &rels[i]
		if r.Kind != database.ManyToOne || r.ForeignKey != nil {
			continue
		}
		name := r.Property + "Id"
		for n := 2; taken[naming.Snake(name)]; n++ {
			name = fmt.Sprintf("%sId%d", r.Property, n)
		}
		taken[naming.Snake(name)] = true
		r.KeyName = name
	}
}

func findForeignKey(members []member, nav member, self, target string, absorbed map[int]bool) int {
	keys := 0
	for _, m := range members {
		if m.kind == scalarMember && m.field.PrimaryKey {
			keys++
		}
	}
	// a sole primary key doubles as the foreign key of a shared-key
	// one-to-one, never of a self reference
	usable := func(j int) bool {
		m := members[j]
		if m.kind != scalarMember || absorbed[j] {
			return false
		}
		return !m.field.PrimaryKey || keys > 1 || !strings.EqualFold(self, target)
	}

	for j := range members {
		if v, ok := members[j].field.TagValue(database.TagForeignKey); ok && v == nav.field.Name && usable(j) {
			return j
		}
	}

	var names []string
	if v, ok := nav.field.TagValue(database.TagForeignKey); ok {
		names = append(names, v)
	}
	names = append(names, nav.field.Name+"Id", target+"Id")

	for _, name := range names {
		for j := range members {
			if strings.EqualFold(members[j].field.Name, name) && usable(j) {
				return j
			}
		}
	}

	return -1
}
