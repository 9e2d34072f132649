package search

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/knowcode/knowcode/internal/hybrid"
	"github.com/knowcode/knowcode/internal/lexical"
	"github.com/knowcode/knowcode/internal/model"
	"github.com/knowcode/knowcode/internal/store"
)

func buildFixtureStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(t.TempDir())
	require.NoError(t, err)

	entities := []model.Entity{
		{ID: "m", Kind: model.KindModule, ShortName: "m", QualifiedName: "m", Location: model.Location{File: "m.py", StartLine: 1, EndLine: 20}},
		{ID: "m::Client", Kind: model.KindClass, ShortName: "Client", QualifiedName: "Client", Location: model.Location{File: "m.py", StartLine: 1, EndLine: 10}},
		{ID: "m::Client.connect", Kind: model.KindMethod, ShortName: "connect", QualifiedName: "Client.connect", Location: model.Location{File: "m.py", StartLine: 2, EndLine: 4}},
		{ID: "m::main", Kind: model.KindFunction, ShortName: "main", QualifiedName: "main", Location: model.Location{File: "m.py", StartLine: 12, EndLine: 18}},
	}
	relationships := []model.Relationship{
		{SourceID: "m", TargetID: "m::Client", Kind: model.RelContains},
		{SourceID: "m::Client", TargetID: "m::Client.connect", Kind: model.RelContains},
		{SourceID: "m", TargetID: "m::main", Kind: model.RelContains},
		{SourceID: "m::main", TargetID: "m::Client.connect", Kind: model.RelCalls},
	}
	require.NoError(t, s.Build(entities, relationships))
	return s
}

func TestEngine_SearchAnchorsChunksToEntities(t *testing.T) {
	lex := lexical.New()
	lex.AddChunk("chunk-connect", "def connect(self): open a socket")
	lex.AddChunk("chunk-main", "def main(): client.connect()")

	hi := hybrid.New(lex, nil, nil, nil)
	st := buildFixtureStore(t)

	lookup := ChunkLookup(func(chunkID string) (ChunkInfo, bool) {
		switch chunkID {
		case "chunk-connect":
			return ChunkInfo{EntityID: "m::Client.connect", ModuleEntityID: "m"}, true
		case "chunk-main":
			return ChunkInfo{EntityID: "m::main", ModuleEntityID: "m"}, true
		}
		return ChunkInfo{}, false
	})

	engine := New(hi, st, lookup)
	result, err := engine.Search(context.Background(), "connect", nil, Options{LimitEntities: 5})
	require.NoError(t, err)
	require.NotEmpty(t, result.Entities)
	// Both chunks hold "connect" once; BM25 length normalization ranks the
	// 4-token main chunk above the 6-token connect chunk.
	require.Equal(t, "m::main", result.Entities[0].EntityID)
	require.NotEmpty(t, result.Evidence)
}

func TestEngine_SearchRespectsLimitEntities(t *testing.T) {
	lex := lexical.New()
	lex.AddChunk("c1", "alpha")
	lex.AddChunk("c2", "alpha")
	lex.AddChunk("c3", "alpha")

	hi := hybrid.New(lex, nil, nil, nil)
	st := buildFixtureStore(t)
	lookup := ChunkLookup(func(chunkID string) (ChunkInfo, bool) {
		return ChunkInfo{EntityID: "m::" + chunkID, ModuleEntityID: "m"}, true
	})

	engine := New(hi, st, lookup)
	result, err := engine.Search(context.Background(), "alpha", nil, Options{LimitEntities: 2})
	require.NoError(t, err)
	require.Len(t, result.Entities, 2)
}

func TestEngine_ExpandDepsAddsOneHopNeighborsAtReducedWeight(t *testing.T) {
	lex := lexical.New()
	lex.AddChunk("chunk-main", "def main(): client.connect()")

	hi := hybrid.New(lex, nil, nil, nil)
	st := buildFixtureStore(t)
	lookup := ChunkLookup(func(chunkID string) (ChunkInfo, bool) {
		if chunkID == "chunk-main" {
			return ChunkInfo{EntityID: "m::main", ModuleEntityID: "m"}, true
		}
		return ChunkInfo{}, false
	})

	engine := New(hi, st, lookup)
	result, err := engine.Search(context.Background(), "main", nil, Options{LimitEntities: 5, ExpandDeps: true})
	require.NoError(t, err)

	var sawExpansion bool
	var directScore, expandedScore float64
	for _, r := range result.Entities {
		if r.EntityID == "m::main" {
			directScore = r.Score
		}
		if r.EntityID == "m::Client.connect" {
			sawExpansion = true
			expandedScore = r.Score
			require.True(t, r.Expanded)
		}
	}
	require.True(t, sawExpansion, "callee of the top-ranked entity should be admitted via expand_deps")
	require.Less(t, expandedScore, directScore)
}

func TestEngine_TieBreakPrefersFunctionOverClassOverModule(t *testing.T) {
	st := buildFixtureStore(t)
	engine := New(nil, st, nil)

	scores := map[string]float64{"m::Client.connect": 1.0, "m::Client": 1.0, "m": 1.0}
	ranked := engine.rankEntities(scores, 10, false)
	require.Equal(t, "m::Client.connect", ranked[0].EntityID)
	require.Equal(t, "m::Client", ranked[1].EntityID)
	require.Equal(t, "m", ranked[2].EntityID)
}
