// Package parser extracts entity declarations from C# model sources.
package parser

import (
	"fmt"
	"strings"

	"github.com/apex/log"

	"github.com/manojsingh/agent-skills/database"
)

// DefaultSkipBaseTypes are base types whose subclasses are never entities.
var DefaultSkipBaseTypes = []string{
	"DbContext",
	"IdentityDbContext",
	"Migration",
	"ModelSnapshot",
	"IEntityTypeConfiguration",
}

type Parser struct {
	skipBases map[string]struct{}
}

func NewParser(skipBaseTypes []string) *Parser {
	if len(skipBaseTypes) == 0 {
		skipBaseTypes = DefaultSkipBaseTypes
	}
	p := &Parser{skipBases: make(map[string]struct{}, len(skipBaseTypes))}
	for _, b := range skipBaseTypes {
		p.skipBases[b] = struct{}{}
	}

	return p
}

// SkippedFile is a source that contributed nothing because it failed
type SkippedFile struct {
	Path   string
	Reason string
}

// Duplicate records a repeated entity name; the first declaration wins
type Duplicate struct {
	Name      string
	Path      string
	FirstPath string
}

// Result is the outcome of parsing a whole run
type Result struct {
	Entities   []database.Entity
	Skipped    []SkippedFile
	Duplicates []Duplicate
}

// Skip records a file that could not be used.
func (r *Result) Skip(path string, err error) {
	log.WithField("file", path).WithError(err).Warn("skipping source file")
	r.Skipped = append(r.Skipped, SkippedFile{Path: path, Reason: err.Error()})
}

// Warnings renders every non-fatal problem of the run, one line each.
func (r *Result) Warnings() []string {
	var w []string
	for _, s := range r.Skipped {
		w = append(w, fmt.Sprintf("skipped %s: %s", s.Path, s.Reason))
	}
	for _, d := range r.Duplicates {
		w = append(w, fmt.Sprintf("duplicate entity %s in %s (keeping %s)", d.Name, d.Path, d.FirstPath))
	}

	return w
}

// ParseSources parses every file and resolves relationships across them.
// Files are processed in the order given.
func (p *Parser) ParseSources(files []database.SourceFile) *Result {
	results := make([]*FileResult, 0, len(files))
	res := &Result{}
	for _, f := range files {
		fr, err := p.ParseFile(f)
		if err != nil {
			res.Skip(f.Path, err)
			continue
		}
		results = append(results, fr)
	}

	return Resolve(res, results)
}

// Resolve merges per-file results into res and classifies relationships.
func Resolve(res *Result, files []*FileResult) *Result {
	seen := map[string]string{}
	bases := map[string]database.Entity{}
	var joins []joinTable

	for _, fr := range files {
		for _, a := range fr.Abstract {
			if _, ok := bases[strings.ToLower(a.Name)]; !ok {
				bases[strings.ToLower(a.Name)] = a
			}
		}
		joins = append(joins, fr.JoinTables...)

		for _, e := range fr.Entities {
			key := strings.ToLower(e.Name)
			if first, ok := seen[key]; ok {
				log.WithField("entity", e.Name).WithField("file", fr.Path).Warnf("duplicate entity, keeping the one from %s", first)
				res.Duplicates = append(res.Duplicates, Duplicate{Name: e.Name, Path: fr.Path, FirstPath: first})
				continue
			}
			seen[key] = fr.Path
			res.Entities = append(res.Entities, e)
		}
	}

	for i := range res.Entities {
		res.Entities[i].Fields = inheritFields(res.Entities[i], bases)
	}
	classify(res.Entities, joins)

	return res
}

// inheritFields prepends fields declared on abstract base classes.
func inheritFields(e database.Entity, bases map[string]database.Entity) []database.Field {
	var chain []database.Entity
	visited := map[string]bool{}
	for base := e.BaseType; base != ""; {
		key := strings.ToLower(base)
		b, ok := bases[key]
		if !ok || visited[key] {
			break
		}
		visited[key] = true
		chain = append([]database.Entity{b}, chain...)
		base = b.BaseType
	}
	if len(chain) == 0 {
		return e.Fields
	}

	declared := map[string]bool{}
	for _, f := range e.Fields {
		declared[f.Name] = true
	}

	var fields []database.Field
	for _, b := range chain {
		for _, f := range b.Fields {
			if declared[f.Name] {
				continue
			}
			declared[f.Name] = true
			f.Tags = append([]string(nil), f.Tags...)
			fields = append(fields, f)
		}
	}

	return append(fields, e.Fields...)
}
