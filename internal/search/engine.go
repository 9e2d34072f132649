// Package search implements the Search Engine: query → Hybrid Index
// retrieval → anchor-entity mapping → entity scoring → optional
// expand_deps one-hop expansion via the Knowledge Store. Grounded on the
// teacher's internal/graph/searcher.go (QueryRequest/QueryResponse shape,
// one-hop traversal semantics) and internal/mcp/searcher_coordinator.go
// (single retrieval path feeding downstream consumers).
package search

import (
	"context"
	"sort"

	"github.com/knowcode/knowcode/internal/hybrid"
	"github.com/knowcode/knowcode/internal/model"
	"github.com/knowcode/knowcode/internal/store"
)

// expansionWeight scales a one-hop expansion entity's contribution
// relative to a directly retrieved one, per spec §4.10 step 4 ("admit
// them as expansion entities at reduced weight").
const expansionWeight = 0.5

// ChunkInfo is what the Search Engine needs to know about a retrieved
// chunk to anchor it to an entity.
type ChunkInfo struct {
	EntityID       string // empty for module_header/imports chunks
	ModuleEntityID string // the owning file's module entity
}

// ChunkLookup resolves a chunk id to its anchor information. Returns
// false if the chunk id is unknown (e.g. stale index entry).
type ChunkLookup func(chunkID string) (ChunkInfo, bool)

// Options configures a Search call.
type Options struct {
	TaskType      model.TaskType
	LimitEntities int
	ExpandDeps    bool
	TopN          int // chunks retrieved from the Hybrid Index before anchoring
	RerankTopM    int
}

// EntityResult is one ranked entity in a Search outcome.
type EntityResult struct {
	EntityID string
	Score    float64
	Expanded bool // true if admitted via expand_deps rather than direct retrieval
}

// Evidence ties a ranked entity back to the chunk(s) that surfaced it.
type Evidence struct {
	ChunkID  string
	EntityID string
	Score    float64
}

// Result is the Search Engine's output: a ranked entity list plus the
// chunk evidence backing it.
type Result struct {
	Entities []EntityResult
	Evidence []Evidence
}

// Engine ties a Hybrid Index to a Knowledge Store to answer queries.
type Engine struct {
	hybridIndex *hybrid.Index
	store       *store.Store
	lookup      ChunkLookup
}

// New builds a Search Engine over an existing Hybrid Index and Knowledge
// Store.
func New(hybridIndex *hybrid.Index, st *store.Store, lookup ChunkLookup) *Engine {
	return &Engine{hybridIndex: hybridIndex, store: st, lookup: lookup}
}

// Search runs the pipeline described in spec §4.10.
func (e *Engine) Search(ctx context.Context, query string, queryVector []float32, opts Options) (*Result, error) {
	topN := opts.TopN
	if topN <= 0 {
		topN = 50
	}
	limit := opts.LimitEntities
	if limit <= 0 {
		limit = 10
	}

	fused, err := e.hybridIndex.Retrieve(ctx, query, queryVector, topN, opts.RerankTopM)
	if err != nil {
		return nil, err
	}

	entityScore := make(map[string]float64)
	var evidence []Evidence
	for _, chunk := range fused {
		if e.lookup == nil {
			continue
		}
		info, ok := e.lookup(chunk.ChunkID)
		if !ok {
			continue
		}
		anchor := info.EntityID
		if anchor == "" {
			anchor = info.ModuleEntityID
		}
		if anchor == "" {
			continue
		}
		score := chunk.FusedScore
		if chunk.PostRerankScore != nil {
			score = *chunk.PostRerankScore
		}
		entityScore[anchor] += score
		evidence = append(evidence, Evidence{ChunkID: chunk.ChunkID, EntityID: anchor, Score: score})
	}

	entities := e.rankEntities(entityScore, limit, false)

	if opts.ExpandDeps && e.store != nil {
		seen := make(map[string]bool, len(entities))
		for _, r := range entities {
			seen[r.EntityID] = true
		}
		expansionScore := make(map[string]float64)
		for _, r := range entities {
			for _, callerID := range e.store.GetCallers(r.EntityID) {
				if !seen[callerID] {
					expansionScore[callerID] += r.Score * expansionWeight
				}
			}
			for _, calleeID := range e.store.GetCallees(r.EntityID) {
				if !seen[calleeID] {
					expansionScore[calleeID] += r.Score * expansionWeight
				}
			}
		}
		for _, r := range e.rankEntities(expansionScore, limit, true) {
			if !seen[r.EntityID] {
				seen[r.EntityID] = true
				entities = append(entities, r)
			}
		}
	}

	return &Result{Entities: entities, Evidence: evidence}, nil
}

// rankEntities sorts entityScore into EntityResult, applying the tie-break
// rules from spec §4.10: higher score, then entity-kind preference
// (function/method > class > module), then shorter qualified name.
func (e *Engine) rankEntities(entityScore map[string]float64, limit int, expanded bool) []EntityResult {
	ids := make([]string, 0, len(entityScore))
	for id := range entityScore {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		si, sj := entityScore[ids[i]], entityScore[ids[j]]
		if si != sj {
			return si > sj
		}
		ki, kj := e.kindRank(ids[i]), e.kindRank(ids[j])
		if ki != kj {
			return ki < kj
		}
		return len(e.qualifiedName(ids[i])) < len(e.qualifiedName(ids[j]))
	})
	if len(ids) > limit {
		ids = ids[:limit]
	}
	out := make([]EntityResult, 0, len(ids))
	for _, id := range ids {
		out = append(out, EntityResult{EntityID: id, Score: entityScore[id], Expanded: expanded})
	}
	return out
}

func (e *Engine) kindRank(entityID string) int {
	if e.store == nil {
		return 3
	}
	ent, ok := e.store.GetEntity(entityID)
	if !ok {
		return 3
	}
	switch ent.Kind {
	case model.KindFunction, model.KindMethod:
		return 0
	case model.KindClass:
		return 1
	case model.KindModule:
		return 2
	default:
		return 3
	}
}

func (e *Engine) qualifiedName(entityID string) string {
	if e.store == nil {
		return entityID
	}
	if ent, ok := e.store.GetEntity(entityID); ok {
		return ent.QualifiedName
	}
	return entityID
}
