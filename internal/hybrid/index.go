package hybrid

import (
	"context"
	"sort"
	"sync"

	"github.com/knowcode/knowcode/internal/lexical"
	"github.com/knowcode/knowcode/internal/vectorindex"
)

// TextLookup resolves a chunk id to its text payload, for the reranker.
type TextLookup func(chunkID string) (string, bool)

// Index coordinates the Lexical Index and Vector Store behind a single
// Retrieve call, mirroring the teacher's SearcherCoordinator: reload/swap
// is mutex-guarded, queries are not.
type Index struct {
	mu       sync.RWMutex
	lexIndex *lexical.Index
	vecIndex *vectorindex.Index
	reranker Reranker
	lookup   TextLookup
}

// New builds a hybrid index over an existing lexical index and vector
// store. reranker may be nil (equivalent to NoopReranker).
func New(lexIndex *lexical.Index, vecIndex *vectorindex.Index, lookup TextLookup, reranker Reranker) *Index {
	if reranker == nil {
		reranker = NoopReranker
	}
	return &Index{lexIndex: lexIndex, vecIndex: vecIndex, reranker: reranker, lookup: lookup}
}

// SetReranker swaps the active reranker, guarded the same way the
// teacher guards searcher swaps during Reload.
func (idx *Index) SetReranker(r Reranker) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if r == nil {
		r = NoopReranker
	}
	idx.reranker = r
}

// Retrieve fuses the top-N lexical and dense hits for query/queryVector,
// optionally reranks the top rerankTopM fused chunks, and returns all
// fused results (reranked prefix first, by PostRerankScore when present,
// remaining by fused order). If reranking is unavailable, errors, or ctx
// expires, the fused order is returned unchanged with PostRerankScore
// left nil on every result, observably distinguishing the fallback.
func (idx *Index) Retrieve(ctx context.Context, query string, queryVector []float32, topN, rerankTopM int) ([]FusedResult, error) {
	idx.mu.RLock()
	lexIndex, vecIndex, reranker, lookup := idx.lexIndex, idx.vecIndex, idx.reranker, idx.lookup
	idx.mu.RUnlock()

	var lexList, vecList RankedList
	if lexIndex != nil {
		for _, r := range lexIndex.Search(query, topN) {
			lexList = append(lexList, r.ChunkID)
		}
	}
	if vecIndex != nil && len(queryVector) > 0 {
		results, err := vecIndex.Search(queryVector, topN)
		if err != nil {
			return nil, err
		}
		for _, r := range results {
			vecList = append(vecList, r.ChunkID)
		}
	}

	fused := FuseRRF(lexList, vecList)
	if reranker == nil || rerankTopM <= 0 || len(fused) == 0 || lookup == nil {
		return fused, nil
	}

	cut := rerankTopM
	if cut > len(fused) {
		cut = len(fused)
	}
	candidates := make([]RerankCandidate, 0, cut)
	for _, r := range fused[:cut] {
		if text, ok := lookup(r.ChunkID); ok {
			candidates = append(candidates, RerankCandidate{ChunkID: r.ChunkID, Text: text})
		}
	}

	scores, err := reranker.Rerank(ctx, query, candidates)
	if err != nil || ctx.Err() != nil {
		// Unavailable or failed: fused order stands, no PostRerankScore.
		return fused, nil
	}

	scoreByID := make(map[string]float64, len(scores))
	for _, s := range scores {
		scoreByID[s.ChunkID] = s.Score
	}
	for i := range fused[:cut] {
		if score, ok := scoreByID[fused[i].ChunkID]; ok {
			v := score
			fused[i].PostRerankScore = &v
		}
	}

	reranked := append([]FusedResult(nil), fused[:cut]...)
	sort.SliceStable(reranked, func(i, j int) bool {
		si, sj := reranked[i].PostRerankScore, reranked[j].PostRerankScore
		if si == nil || sj == nil {
			return false
		}
		return *si > *sj
	})
	return append(reranked, fused[cut:]...), nil
}

// Close releases both underlying indexes.
func (idx *Index) Close() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	var firstErr error
	if idx.vecIndex != nil {
		if err := idx.vecIndex.Close(); err != nil {
			firstErr = err
		}
	}
	return firstErr
}
