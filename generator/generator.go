// Package generator renders parsed entities as Python ORM models.
package generator

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/manojsingh/agent-skills/database"
	"github.com/manojsingh/agent-skills/naming"
	"github.com/manojsingh/agent-skills/parser"
)

const (
	GuideFileName  = "MIGRATION_GUIDE.md"
	SchemaFileName = "schema.sql"
)

type Options struct {
	Dialect    database.Dialect
	EmitSQL    bool
	SchemaName string
}

// File is one output artifact, relative to the output directory
type File struct {
	Name    string
	Content []byte
}

// Model is the generated source for one entity
type Model struct {
	Entity   string
	FileName string
	Source   string
}

// ReviewItem is something a human has to look at after generation
type ReviewItem struct {
	Entity  string
	Member  string
	Message string
}

type Stats struct {
	Entities      int
	Fields        int
	Relationships int
	Associations  int
	Unmapped      int
	Skipped       int
}

// Result is everything one run produces
type Result struct {
	Dialect      database.Dialect
	Models       []Model
	Support      []File
	Associations []database.Association
	Review       []ReviewItem
	Guide        string
	Schema       string
	Stats        Stats
}

// Files lists the artifacts to write, in a stable order.
func (r *Result) Files() []File {
	var files []File
	for _, m := range r.Models {
		files = append(files, File{Name: m.FileName, Content: []byte(m.Source)})
	}
	files = append(files, r.Support...)
	files = append(files, File{Name: GuideFileName, Content: []byte(r.Guide)})
	if r.Schema != "" {
		files = append(files, File{Name: SchemaFileName, Content: []byte(r.Schema)})
	}

	return files
}

// catalog is the read-only view of a run that renderers work against
type catalog struct {
	entities     []database.Entity
	byName       map[string]*database.Entity
	associations map[string]database.Association // by navigation
	fileNames    map[string]string
	review       []ReviewItem
	unmapped     int

	associationList []database.Association
}

func newCatalog(entities []database.Entity, reserved map[string]struct{}) *catalog {
	c := &catalog{
		entities:     entities,
		byName:       make(map[string]*database.Entity, len(entities)),
		associations: map[string]database.Association{},
		fileNames:    make(map[string]string, len(entities)),
	}

	used := map[string]bool{}
	for name := range reserved {
		used[name] = true
	}
	for i := range entities {
		e := &entities[i]
		c.byName[e.Name] = e

		base := naming.Snake(e.Name)
		file := base + ".py"
		for n := 2; used[file]; n++ {
			file = fmt.Sprintf("%s_model%s.py", base, suffix(n))
		}
		used[file] = true
		c.fileNames[e.Name] = file
	}

	c.collectAssociations()

	return c
}

// collectAssociations assigns one association per pair of navigations.
// Explicit join tables are named first so derived names never take theirs.
func (c *catalog) collectAssociations() {
	var pairs []database.Relationship
	for i := range c.entities {
		for _, r := range c.entities[i].RelationshipsOf(database.ManyToMany) {
			if _, ok := c.associations[navKey(r.Source, r.Property)]; ok {
				continue
			}
			pairs = append(pairs, r)
			c.associations[navKey(r.Source, r.Property)] = database.Association{}
			if r.Inverse != "" {
				c.associations[navKey(r.Target, r.Inverse)] = database.Association{}
			}
		}
	}
	sort.SliceStable(pairs, func(i, j int) bool {
		return pairs[i].JoinTable != "" && pairs[j].JoinTable == ""
	})

	used := map[string]bool{}
	for _, r := range pairs {
		left, right := r.Source, r.Target
		if naming.Snake(right) < naming.Snake(left) {
			left, right = right, left
		}
		a := database.Association{Name: naming.Association(left, right), Left: left, Right: right}
		if r.JoinTable != "" {
			a.Name, a.Explicit = r.JoinTable, true
		}
		shared := false
		switch {
		case used[a.Name] && a.Explicit:
			shared = true
			c.flag(r.Source, r.Property, "join table `%s` is configured for more than one many-to-many pair", a.Name)
		case used[a.Name]:
			taken := a.Name
			a.Name = taken + "_" + naming.Snake(r.Property)
			for n := 2; used[a.Name]; n++ {
				a.Name = fmt.Sprintf("%s_%s%d", taken, naming.Snake(r.Property), n)
			}
			c.flag(r.Source, r.Property, "join table `%s` is already used by another many-to-many pair; generated as `%s`", taken, a.Name)
		}
		used[a.Name] = true

		c.associations[navKey(r.Source, r.Property)] = a
		if r.Inverse != "" {
			c.associations[navKey(r.Target, r.Inverse)] = a
		}
		if !shared {
			c.associationList = append(c.associationList, a)
		}
	}
}

func suffix(n int) string {
	if n == 2 {
		return ""
	}
	return fmt.Sprint(n - 1)
}

// navKey identifies one navigation property.
func navKey(entity, property string) string {
	return strings.ToLower(entity) + "." + property
}

// lookup finds an entity by name, case-insensitively.
func (c *catalog) lookup(name string) *database.Entity {
	if e, ok := c.byName[name]; ok {
		return e
	}
	for i := range c.entities {
		if strings.EqualFold(c.entities[i].Name, name) {
			return &c.entities[i]
		}
	}
	return nil
}

func (c *catalog) association(r database.Relationship) database.Association {
	return c.associations[navKey(r.Source, r.Property)]
}

// sortedAssociations returns the associations in name order.
func (c *catalog) sortedAssociations() []database.Association {
	list := append([]database.Association(nil), c.associationList...)
	sort.SliceStable(list, func(i, j int) bool {
		a, b := list[i], list[j]
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		if a.Left != b.Left {
			return a.Left < b.Left
		}
		return a.Right < b.Right
	})
	return list
}

func (c *catalog) flag(entity, member, format string, args ...interface{}) {
	c.review = append(c.review, ReviewItem{Entity: entity, Member: member, Message: fmt.Sprintf(format, args...)})
}

// mapField maps a field and records unmapped types for review.
func (c *catalog) mapField(e *database.Entity, f database.Field, d database.Dialect) database.MappedType {
	m := database.Map(f, d)
	if m.Unmapped {
		c.unmapped++
		c.flag(e.Name, f.Name, "source type `%s` has no mapping; generated as `%s`", f.SourceType, m.Expr())
	}
	return m
}

// manyToOneCount counts references from source to target.
func (c *catalog) manyToOneCount(source, target string) int {
	e := c.byName[source]
	if e == nil {
		return 0
	}
	n := 0
	for _, r := range e.Relationships {
		if r.Kind == database.ManyToOne && r.Target == target {
			n++
		}
	}
	return n
}

// Generate renders every entity in the selected dialect, plus the guide.
func Generate(parsed *parser.Result, opts Options) (*Result, error) {
	d, ok := dialects[opts.Dialect]
	if !ok {
		return nil, errors.Wrapf(database.ErrUnknownDialect, "%q", opts.Dialect)
	}

	c := newCatalog(parsed.Entities, d.reserved)
	res := &Result{Dialect: opts.Dialect}

	for i := range c.entities {
		e := &c.entities[i]
		res.Models = append(res.Models, Model{
			Entity:   e.Name,
			FileName: c.fileNames[e.Name],
			Source:   d.render(c, e),
		})
		res.Stats.Fields += len(e.Fields)
		res.Stats.Relationships += len(e.Relationships)
		checkEntity(c, e, opts.Dialect)
	}

	res.Associations = c.sortedAssociations()
	res.Support = d.support(c)
	res.Review = c.review
	res.Stats.Entities = len(c.entities)
	res.Stats.Associations = len(res.Associations)
	res.Stats.Unmapped = c.unmapped
	res.Stats.Skipped = len(parsed.Skipped)

	if opts.EmitSQL {
		var b strings.Builder
		if err := database.GenerateSchema(&b, c.entities, res.Associations, opts.SchemaName); err != nil {
			return nil, errors.Wrap(err, "generate schema")
		}
		res.Schema = b.String()
	}

	res.Guide = renderGuide(d, c, parsed, res)

	return res, nil
}

// checkEntity flags structural gaps that apply to every dialect.
func checkEntity(c *catalog, e *database.Entity, d database.Dialect) {
	if !e.HasPrimaryKey() {
		if d == database.Django {
			c.flag(e.Name, "", "no primary key declared; Django adds an implicit `id`")
		} else {
			c.flag(e.Name, "", "no primary key declared; SQLAlchemy mappings require one")
		}
	}

	for _, r := range e.RelationshipsOf(database.OneToMany) {
		if r.Inverse == "" {
			c.flag(e.Name, r.Property, "collection of %s has no inverse navigation; add a foreign key on `%s`",
				r.Target, c.byName[r.Target].Table())
		}
	}
	for _, r := range e.RelationshipsOf(database.ManyToOne) {
		if r.KeyName != "" && r.KeyName != r.Property+"Id" {
			c.flag(e.Name, r.Property, "foreign key generated as `%s` because `%s` is already taken",
				naming.Snake(r.KeyName), naming.Snake(r.Property+"Id"))
		}
	}

	for _, f := range e.Fields {
		if f.HasTag(database.TagTimestamp) {
			c.flag(e.Name, f.Name, "row version column; configure optimistic concurrency by hand")
		}
		if v, ok := f.TagValue(database.TagForeignKey); ok {
			if c.lookup(v) == nil {
				c.flag(e.Name, f.Name, "[ForeignKey(%q)] does not name a parsed entity or navigation", v)
			}
		}
	}
}
