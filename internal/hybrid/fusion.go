// Package hybrid implements the Hybrid Index: Reciprocal Rank Fusion of
// lexical and dense retrieval result lists, with an optional reranking
// hook. New component (spec §4.9 has no direct teacher analog); grounded
// on the dual-searcher coordination shape of the teacher's
// internal/mcp/searcher_coordinator.go (mutex-guarded swap, parallel
// index updates, aggregate Close).
package hybrid

import "sort"

// RRFK is the Reciprocal Rank Fusion constant, by convention 60.
const RRFK = 60

// RankedList is one ranked result list to fuse, e.g. lexical hits or
// dense hits, best match first.
type RankedList []string // chunk ids, rank order

// FusedResult is one chunk's fusion outcome.
type FusedResult struct {
	ChunkID        string
	FusedScore     float64
	PreRerankScore float64
	PostRerankScore *float64 // nil if reranking was not applied
}

// FuseRRF combines ranked chunk-id lists with Reciprocal Rank Fusion: the
// fused score for a chunk is Σ 1/(k + rank) over every list it appears
// in, 1-indexed rank, k=RRFK. Returns results sorted by fused score
// descending, ties broken by chunk id for determinism.
func FuseRRF(lists ...RankedList) []FusedResult {
	scores := make(map[string]float64)
	order := make([]string, 0)
	seen := make(map[string]bool)

	for _, list := range lists {
		for i, chunkID := range list {
			rank := i + 1
			if !seen[chunkID] {
				seen[chunkID] = true
				order = append(order, chunkID)
			}
			scores[chunkID] += 1.0 / float64(RRFK+rank)
		}
	}

	results := make([]FusedResult, 0, len(order))
	for _, chunkID := range order {
		results = append(results, FusedResult{ChunkID: chunkID, FusedScore: scores[chunkID], PreRerankScore: scores[chunkID]})
	}
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].FusedScore != results[j].FusedScore {
			return results[i].FusedScore > results[j].FusedScore
		}
		return results[i].ChunkID < results[j].ChunkID
	})
	return results
}
