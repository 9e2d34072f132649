package hybrid

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/knowcode/knowcode/internal/lexical"
	"github.com/knowcode/knowcode/internal/vectorindex"
)

func TestFuseRRF_CombinesTwoLists(t *testing.T) {
	lex := RankedList{"a", "b", "c"}
	vec := RankedList{"b", "a", "d"}

	results := FuseRRF(lex, vec)
	require.Len(t, results, 4)
	// "a": rank1 in lex (1/61) + rank2 in vec (1/62); "b": rank2 in lex (1/62) + rank1 in vec (1/61) -> equal totals.
	require.InDelta(t, results[0].FusedScore, results[1].FusedScore, 1e-9)
	require.Contains(t, []string{"a", "b"}, results[0].ChunkID)
	require.Contains(t, []string{"a", "b"}, results[1].ChunkID)
}

func TestFuseRRF_ChunkOnlyInOneListStillScores(t *testing.T) {
	results := FuseRRF(RankedList{"x"}, RankedList{})
	require.Len(t, results, 1)
	require.Equal(t, "x", results[0].ChunkID)
	require.InDelta(t, 1.0/61.0, results[0].FusedScore, 1e-9)
}

func TestFuseRRF_EmptyListsProduceNoResults(t *testing.T) {
	require.Empty(t, FuseRRF())
	require.Empty(t, FuseRRF(RankedList{}, RankedList{}))
}

type stubReranker struct {
	scores map[string]float64
	err    error
}

func (s stubReranker) Rerank(ctx context.Context, query string, candidates []RerankCandidate) ([]RerankScore, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make([]RerankScore, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, RerankScore{ChunkID: c.ChunkID, Score: s.scores[c.ChunkID]})
	}
	return out, nil
}

func TestIndex_RetrieveFusesLexicalAndVector(t *testing.T) {
	lex := lexical.New()
	lex.AddChunk("a", "func ParseConfig")
	lex.AddChunk("b", "func NewClient")

	vec, err := vectorindex.Open(":memory:", 2)
	require.NoError(t, err)
	defer vec.Close()
	require.NoError(t, vec.Add("a", []float32{1, 0}))
	require.NoError(t, vec.Add("b", []float32{0, 1}))

	idx := New(lex, vec, nil, nil)
	results, err := idx.Retrieve(context.Background(), "ParseConfig", []float32{1, 0}, 5, 0)
	require.NoError(t, err)
	require.NotEmpty(t, results)
}

func TestIndex_RetrieveAppliesRerankToTopM(t *testing.T) {
	lex := lexical.New()
	lex.AddChunk("a", "alpha")
	lex.AddChunk("b", "alpha")
	lex.AddChunk("c", "alpha")

	lookup := TextLookup(func(chunkID string) (string, bool) {
		return "text-" + chunkID, true
	})
	reranker := stubReranker{scores: map[string]float64{"a": 0.1, "b": 0.9, "c": 0.5}}

	idx := New(lex, nil, lookup, reranker)
	results, err := idx.Retrieve(context.Background(), "alpha", nil, 5, 3)
	require.NoError(t, err)
	require.Len(t, results, 3)
	require.Equal(t, "b", results[0].ChunkID)
	require.NotNil(t, results[0].PostRerankScore)
	require.InDelta(t, 0.9, *results[0].PostRerankScore, 1e-9)
}

func TestIndex_RetrieveFallsBackToFusedOrderWhenRerankFails(t *testing.T) {
	lex := lexical.New()
	lex.AddChunk("a", "alpha")
	lex.AddChunk("b", "alpha")

	lookup := TextLookup(func(chunkID string) (string, bool) { return "t", true })
	reranker := stubReranker{err: errors.New("reranker down")}

	idx := New(lex, nil, lookup, reranker)
	results, err := idx.Retrieve(context.Background(), "alpha", nil, 5, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, r := range results {
		require.Nil(t, r.PostRerankScore)
	}
}

func TestIndex_RetrieveWithNilRerankerUsesFusedOrder(t *testing.T) {
	lex := lexical.New()
	lex.AddChunk("a", "alpha")

	idx := New(lex, nil, nil, nil)
	results, err := idx.Retrieve(context.Background(), "alpha", nil, 5, 3)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Nil(t, results[0].PostRerankScore)
}
