package parse

import (
	"context"
	"os"
	"strings"

	"github.com/knowcode/knowcode/internal/model"
)

// markdownFrontend splits a document into module + header-scoped section
// entities. Grounded on the teacher's internal/indexer/chunker.go
// splitByHeaders algorithm (split on "## " level-2 headers, track
// start_line/end_line per section), repurposed here to emit entities
// (the Chunker later re-derives chunks from these entities) instead of
// chunks directly.
type markdownFrontend struct{}

func newMarkdownFrontend() Frontend { return markdownFrontend{} }

func (markdownFrontend) Language() string { return "markdown" }

func (markdownFrontend) Parse(ctx context.Context, absPath, relPath string) (*Result, error) {
	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, err
	}
	lines := strings.Split(string(data), "\n")

	moduleID := modulePathFromRel(relPath)
	result := &Result{}
	result.Entities = append(result.Entities, model.Entity{
		ID:            moduleID,
		Kind:          model.KindModule,
		ShortName:     moduleShortName(relPath),
		QualifiedName: moduleID,
		Location:      model.Location{File: relPath, StartLine: 1, EndLine: len(lines)},
	})

	type section struct {
		title     string
		startLine int
	}
	var sections []section
	for i, line := range lines {
		if strings.HasPrefix(line, "## ") {
			sections = append(sections, section{title: strings.TrimSpace(strings.TrimPrefix(line, "## ")), startLine: i + 1})
		}
	}

	for i, sec := range sections {
		end := len(lines)
		if i+1 < len(sections) {
			end = sections[i+1].startLine - 1
		}
		qname := qualify("", sanitizeHeading(sec.title))
		id := moduleID + "::" + qname
		result.Entities = append(result.Entities, model.Entity{
			ID:            id,
			Kind:          model.KindVariable, // prose section; no dedicated entity kind in spec.md
			ShortName:     sec.title,
			QualifiedName: qname,
			Location:      model.Location{File: relPath, StartLine: sec.startLine, EndLine: end},
			SourceCode:    extractLines(lines, sec.startLine, end),
		})
		result.Relations = append(result.Relations, Relation{
			SourceID: moduleID, TargetName: id, Kind: model.RelContains, File: relPath, Line: sec.startLine,
		})
	}

	return result, nil
}

func sanitizeHeading(title string) string {
	title = strings.ToLower(title)
	title = strings.ReplaceAll(title, " ", "_")
	var b strings.Builder
	for _, r := range title {
		if r == '_' || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "section"
	}
	return b.String()
}
