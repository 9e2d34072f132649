package graph

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/knowcode/knowcode/internal/model"
)

// CoverageIngestor reads a Go cover.out profile (the `mode: ...` text
// format `go test -coverprofile` writes) and turns it into a single
// coverage_report entity plus covers/executed_by edges to whichever
// entities' locations overlap each profiled line range. Grounded on the
// teacher's internal/coverage/parser.go, which parses the same format
// line-by-line without pulling in golang.org/x/tools/cover.
//
// Optional: per spec §4.3, ingestion is skipped entirely when no coverage
// profile is supplied.
type CoverageIngestor struct {
	ReportID string // entity id for the single coverage_report entity this run produces
}

type coverageBlock struct {
	file           string
	startLine      int
	endLine        int
	numStatements  int
	executionCount int
}

// Parse reads a cover.out-format profile. The first line is the coverage
// mode ("set", "count", or "atomic") and is otherwise unused here.
func (c *CoverageIngestor) Parse(r io.Reader) ([]coverageBlock, error) {
	scanner := bufio.NewScanner(r)
	var blocks []coverageBlock
	first := true
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if first {
			first = false
			if strings.HasPrefix(line, "mode:") {
				continue
			}
		}
		block, err := parseCoverageLine(line)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, block)
	}
	return blocks, scanner.Err()
}

// parseCoverageLine parses "file.go:startLine.startCol,endLine.endCol numStmt count".
func parseCoverageLine(line string) (coverageBlock, error) {
	colonIdx := strings.Index(line, ":")
	if colonIdx < 0 {
		return coverageBlock{}, fmt.Errorf("malformed coverage line: %q", line)
	}
	file := line[:colonIdx]
	rest := line[colonIdx+1:]
	fields := strings.Fields(rest)
	if len(fields) != 3 {
		return coverageBlock{}, fmt.Errorf("malformed coverage line: %q", line)
	}
	span := strings.Split(fields[0], ",")
	if len(span) != 2 {
		return coverageBlock{}, fmt.Errorf("malformed coverage span: %q", fields[0])
	}
	startLine, err := firstIntField(span[0])
	if err != nil {
		return coverageBlock{}, err
	}
	endLine, err := firstIntField(span[1])
	if err != nil {
		return coverageBlock{}, err
	}
	numStmt, err := strconv.Atoi(fields[1])
	if err != nil {
		return coverageBlock{}, err
	}
	count, err := strconv.Atoi(fields[2])
	if err != nil {
		return coverageBlock{}, err
	}
	return coverageBlock{file: file, startLine: startLine, endLine: endLine, numStatements: numStmt, executionCount: count}, nil
}

func firstIntField(s string) (int, error) {
	idx := strings.Index(s, ".")
	if idx < 0 {
		return strconv.Atoi(s)
	}
	return strconv.Atoi(s[:idx])
}

// Resolve matches each coverage block against the supplied entities
// (typically functions/methods) by file and line overlap, emitting a
// coverage_report entity plus covers/executed_by edges for every entity
// whose span intersects a block with a nonzero execution count.
func (c *CoverageIngestor) Resolve(blocks []coverageBlock, entities []model.Entity) ([]model.Entity, []model.Relationship) {
	report := model.Entity{
		ID:            c.ReportID,
		Kind:          model.KindCoverageReport,
		ShortName:     "coverage",
		QualifiedName: c.ReportID,
	}
	var relationships []model.Relationship
	covered := map[string]bool{}

	for _, blk := range blocks {
		if blk.executionCount == 0 {
			continue
		}
		for _, e := range entities {
			if e.Location.File != blk.file {
				continue
			}
			if e.Location.StartLine > blk.endLine || e.Location.EndLine < blk.startLine {
				continue
			}
			if covered[e.ID] {
				continue
			}
			covered[e.ID] = true
			relationships = append(relationships,
				model.Relationship{SourceID: report.ID, TargetID: e.ID, Kind: model.RelCovers},
				model.Relationship{SourceID: e.ID, TargetID: report.ID, Kind: model.RelExecutedBy},
			)
		}
	}
	return []model.Entity{report}, relationships
}
