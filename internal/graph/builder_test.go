package graph

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/knowcode/knowcode/internal/model"
	"github.com/knowcode/knowcode/internal/parse"
)

func TestBuilder_ResolvesImportAndCall(t *testing.T) {
	b := NewBuilder()

	b.AddFile(FileResult{RelPath: "util.py", Result: &parse.Result{
		Entities: []model.Entity{
			{ID: "util.py", Kind: model.KindModule, QualifiedName: "util"},
			{ID: "util.py::helper", Kind: model.KindFunction, ShortName: "helper", QualifiedName: "helper", Location: model.Location{File: "util.py", StartLine: 1, EndLine: 2}},
		},
		Relations: []parse.Relation{
			{SourceID: "util.py", TargetName: "util.py::helper", Kind: model.RelContains},
		},
	}})

	b.AddFile(FileResult{RelPath: "main.py", Result: &parse.Result{
		Entities: []model.Entity{
			{ID: "main.py", Kind: model.KindModule, QualifiedName: "main"},
			{ID: "main.py::run", Kind: model.KindFunction, ShortName: "run", QualifiedName: "run", Location: model.Location{File: "main.py", StartLine: 1, EndLine: 3}},
		},
		Relations: []parse.Relation{
			{SourceID: "main.py", TargetName: "main.py::run", Kind: model.RelContains},
			{SourceID: "main.py", TargetName: "util", Kind: model.RelImports},
			{SourceID: "main.py::run", TargetName: "helper", Kind: model.RelCalls},
		},
	}})

	entities, relationships, err := b.Resolve()
	require.NoError(t, err)
	require.NotEmpty(t, entities)

	var sawImport, sawCall bool
	for _, r := range relationships {
		if r.Kind == model.RelImports && r.SourceID == "main.py" {
			require.Equal(t, "util.py", r.TargetID)
			sawImport = true
		}
		if r.Kind == model.RelCalls && r.SourceID == "main.py::run" {
			require.Equal(t, "util.py::helper", r.TargetID)
			sawCall = true
		}
	}
	require.True(t, sawImport, "expected import resolved to util module")
	require.True(t, sawCall, "expected call resolved to util.helper")
}

func TestBuilder_UnresolvedCallGetsExternalPlaceholder(t *testing.T) {
	b := NewBuilder()
	b.AddFile(FileResult{RelPath: "main.py", Result: &parse.Result{
		Entities: []model.Entity{
			{ID: "main.py", Kind: model.KindModule, QualifiedName: "main"},
			{ID: "main.py::run", Kind: model.KindFunction, ShortName: "run", QualifiedName: "run"},
		},
		Relations: []parse.Relation{
			{SourceID: "main.py", TargetName: "main.py::run", Kind: model.RelContains},
			{SourceID: "main.py::run", TargetName: "nonexistent", Kind: model.RelCalls},
		},
	}})

	entities, relationships, err := b.Resolve()
	require.NoError(t, err)

	var found bool
	for _, r := range relationships {
		if r.Kind == model.RelCalls {
			require.True(t, r.Attrs["unresolved"].Bool)
			found = true
			var hasExternal bool
			for _, e := range entities {
				if e.ID == r.TargetID {
					hasExternal = true
				}
			}
			require.True(t, hasExternal, "unresolved call target must still reference a real entity")
		}
	}
	require.True(t, found)
}

func TestBuilder_AmbiguousCallKeepsAlternates(t *testing.T) {
	b := NewBuilder()
	b.AddFile(FileResult{RelPath: "a.py", Result: &parse.Result{
		Entities: []model.Entity{
			{ID: "a.py", Kind: model.KindModule, QualifiedName: "a"},
			{ID: "a.py::process", Kind: model.KindFunction, ShortName: "process", QualifiedName: "process"},
		},
		Relations: []parse.Relation{
			{SourceID: "a.py", TargetName: "a.py::process", Kind: model.RelContains},
		},
	}})
	b.AddFile(FileResult{RelPath: "b.py", Result: &parse.Result{
		Entities: []model.Entity{
			{ID: "b.py", Kind: model.KindModule, QualifiedName: "b"},
			{ID: "b.py::process", Kind: model.KindFunction, ShortName: "process", QualifiedName: "process"},
			{ID: "b.py::caller", Kind: model.KindFunction, ShortName: "caller", QualifiedName: "caller"},
		},
		Relations: []parse.Relation{
			{SourceID: "b.py", TargetName: "b.py::process", Kind: model.RelContains},
			{SourceID: "b.py", TargetName: "b.py::caller", Kind: model.RelContains},
			{SourceID: "b.py::caller", TargetName: "process", Kind: model.RelCalls},
		},
	}})

	_, relationships, err := b.Resolve()
	require.NoError(t, err)

	var resolved bool
	for _, r := range relationships {
		if r.Kind == model.RelCalls && r.SourceID == "b.py::caller" {
			resolved = true
			require.Equal(t, "b.py::process", r.TargetID, "same-module candidate should win the tie-break")
			require.Contains(t, r.Attrs["call_alternates"].StrList, "a.py::process")
		}
	}
	require.True(t, resolved)
}

func TestBuilder_RejectsSecondParentInContains(t *testing.T) {
	b := NewBuilder()
	b.AddFile(FileResult{RelPath: "a.py", Result: &parse.Result{
		Entities: []model.Entity{
			{ID: "a.py", Kind: model.KindModule},
			{ID: "a.py::other", Kind: model.KindModule},
			{ID: "a.py::x", Kind: model.KindFunction},
		},
		Relations: []parse.Relation{
			{SourceID: "a.py", TargetName: "a.py::x", Kind: model.RelContains},
			{SourceID: "a.py::other", TargetName: "a.py::x", Kind: model.RelContains},
		},
	}})
	_, _, err := b.Resolve()
	require.Error(t, err)
}

func TestCoverageIngestor_ParsesAndResolves(t *testing.T) {
	profile := "mode: set\n" +
		"pkg/foo.go:3.1,5.2 2 1\n" +
		"pkg/foo.go:8.1,10.2 1 0\n"

	ing := &CoverageIngestor{ReportID: "coverage:run1"}
	blocks, err := ing.Parse(strings.NewReader(profile))
	require.NoError(t, err)
	require.Len(t, blocks, 2)
	require.Equal(t, 1, blocks[0].executionCount)
	require.Equal(t, 0, blocks[1].executionCount)

	entities := []model.Entity{
		{ID: "pkg.foo", Kind: model.KindFunction, Location: model.Location{File: "pkg/foo.go", StartLine: 2, EndLine: 6}},
		{ID: "pkg.bar", Kind: model.KindFunction, Location: model.Location{File: "pkg/foo.go", StartLine: 8, EndLine: 10}},
	}
	reportEntities, relationships := ing.Resolve(blocks, entities)
	require.Len(t, reportEntities, 1)
	var coveredIDs []string
	for _, r := range relationships {
		if r.Kind == model.RelCovers {
			coveredIDs = append(coveredIDs, r.TargetID)
		}
	}
	require.Contains(t, coveredIDs, "pkg.foo")
	require.NotContains(t, coveredIDs, "pkg.bar")
}
