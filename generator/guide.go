package generator

import (
	"fmt"
	"strings"

	"github.com/gosimple/slug"

	"github.com/manojsingh/agent-skills/database"
	"github.com/manojsingh/agent-skills/parser"
)

// section is one heading of the guide with its rendered body
type section struct {
	title string
	body  string
}

func (s section) anchor() string {
	return slug.Make(s.title)
}

// renderGuide writes MIGRATION_GUIDE.md. The output depends only on the run's
// inputs, so repeated runs are byte-identical.
func renderGuide(d dialect, c *catalog, parsed *parser.Result, res *Result) string {
	sections := []section{
		{"Summary", guideSummary(d, res)},
		{"Generated models", guideModels(c, res)},
	}
	if len(res.Associations) > 0 {
		sections = append(sections, section{"Association tables", guideAssociations(res.Associations)})
	}
	sections = append(sections, section{"Manual review", guideReview(res.Review)})
	if len(parsed.Skipped) > 0 {
		sections = append(sections, section{"Skipped files", guideSkipped(parsed.Skipped)})
	}
	if len(parsed.Duplicates) > 0 {
		sections = append(sections, section{"Duplicate entities", guideDuplicates(parsed.Duplicates)})
	}
	sections = append(sections, section{"Next steps", guideSteps(d, res)})

	var b strings.Builder
	b.WriteString("# Migration Guide\n\n")
	fmt.Fprintf(&b, "Models generated for %s. Review every item under Manual review before running migrations.\n\n", d.label)
	b.WriteString("## Contents\n\n")
	for _, s := range sections {
		fmt.Fprintf(&b, "- [%s](#%s)\n", s.title, s.anchor())
	}
	for _, s := range sections {
		fmt.Fprintf(&b, "\n## %s\n\n%s", s.title, s.body)
	}

	return b.String()
}

func guideSummary(d dialect, res *Result) string {
	var b strings.Builder
	b.WriteString("| Item | Count |\n|------|-------|\n")
	for _, row := range []struct {
		name  string
		count int
	}{
		{"Entities processed", res.Stats.Entities},
		{"Fields mapped", res.Stats.Fields},
		{"Relationships", res.Stats.Relationships},
		{"Association tables", res.Stats.Associations},
		{"Unmapped fields", res.Stats.Unmapped},
		{"Skipped files", res.Stats.Skipped},
	} {
		fmt.Fprintf(&b, "| %s | %d |\n", row.name, row.count)
	}
	fmt.Fprintf(&b, "\nTarget framework: %s (`%s`).\n", d.label, res.Dialect)

	return b.String()
}

func guideModels(c *catalog, res *Result) string {
	if len(res.Models) == 0 {
		return "No entities were found.\n"
	}
	var b strings.Builder
	b.WriteString("| Entity | File | Table | Fields | Relationships |\n")
	b.WriteString("|--------|------|-------|--------|---------------|\n")
	for i, m := range res.Models {
		e := &c.entities[i]
		fmt.Fprintf(&b, "| %s | `%s` | `%s` | %d | %d |\n", m.Entity, m.FileName, e.Table(), len(e.Fields), len(e.Relationships))
	}

	return b.String()
}

func guideAssociations(assocs []database.Association) string {
	var b strings.Builder
	for _, a := range assocs {
		origin := "derived"
		if a.Explicit {
			origin = "explicit"
		}
		fmt.Fprintf(&b, "- `%s` joins %s and %s (%s name)\n", a.Name, a.Left, a.Right, origin)
	}
	return b.String()
}

func guideReview(items []ReviewItem) string {
	if len(items) == 0 {
		return "Nothing to review.\n"
	}
	var b strings.Builder
	for _, it := range items {
		target := it.Entity
		if it.Member != "" {
			target += "." + it.Member
		}
		fmt.Fprintf(&b, "- [ ] **%s**: %s\n", target, it.Message)
	}
	return b.String()
}

func guideSkipped(skipped []parser.SkippedFile) string {
	var b strings.Builder
	for _, s := range skipped {
		fmt.Fprintf(&b, "- `%s`: %s\n", s.Path, s.Reason)
	}
	return b.String()
}

func guideDuplicates(dups []parser.Duplicate) string {
	var b strings.Builder
	for _, d := range dups {
		fmt.Fprintf(&b, "- `%s` declared again in `%s`; kept the declaration from `%s`\n", d.Name, d.Path, d.FirstPath)
	}
	return b.String()
}

func guideSteps(d dialect, res *Result) string {
	var b strings.Builder
	for i, in := range d.instructions {
		fmt.Fprintf(&b, "%d. %s\n\n   ```%s\n", i+1, in.title, in.lang)
		for _, line := range strings.Split(in.snippet, "\n") {
			fmt.Fprintf(&b, "   %s\n", line)
		}
		b.WriteString("   ```\n\n")
	}
	if res.Schema != "" {
		fmt.Fprintf(&b, "A PostgreSQL preview of the resulting schema is in `%s`.\n", SchemaFileName)
	}

	return b.String()
}
