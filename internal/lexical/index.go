package lexical

import (
	"math"
	"sort"
	"sync"

	"github.com/blevesearch/bleve/v2/analysis"

	"github.com/knowcode/knowcode/internal/model"
)

// BM25 parameters per spec §4.8's calibration. Exposed as constants so
// the fusion stage can reason about the scale of lexical scores.
const (
	BM25K1 = 1.2
	BM25B  = 0.75
)

// Result is one hit from Search, ordered best-first.
type Result struct {
	ChunkID string
	Score   float64
}

// Index is an in-memory BM25 index over chunk text, tokenized by the
// identifier-aware analyzer in analyzer.go.
type Index struct {
	mu sync.RWMutex
	az *analysis.DefaultAnalyzer

	// postings maps term -> chunk id -> term frequency in that chunk.
	postings map[string]map[string]int
	// docTermFreq maps chunk id -> term -> frequency, kept to support
	// exact removal without re-tokenizing.
	docTermFreq map[string]map[string]int
	docLength   map[string]int
	totalLength int
}

// New creates an empty lexical index.
func New() *Index {
	return &Index{
		az:          newAnalyzer(),
		postings:    make(map[string]map[string]int),
		docTermFreq: make(map[string]map[string]int),
		docLength:   make(map[string]int),
	}
}

// Len reports how many chunks are currently indexed.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.docLength)
}

// AddChunk indexes (or re-indexes) a single chunk's text.
func (idx *Index) AddChunk(chunkID, text string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.removeLocked(chunkID)

	terms := tokenize(idx.az, text)
	freq := make(map[string]int, len(terms))
	for _, term := range terms {
		freq[term]++
	}
	idx.docTermFreq[chunkID] = freq
	idx.docLength[chunkID] = len(terms)
	idx.totalLength += len(terms)
	for term, count := range freq {
		bucket, ok := idx.postings[term]
		if !ok {
			bucket = make(map[string]int)
			idx.postings[term] = bucket
		}
		bucket[chunkID] = count
	}
}

// IndexChunks bulk-loads chunks, replacing any existing entry for the
// same chunk id.
func (idx *Index) IndexChunks(chunks []model.Chunk) {
	for _, c := range chunks {
		idx.AddChunk(c.ID, c.Text)
	}
}

// Remove deletes a chunk from the index. Removing an absent id is a
// no-op.
func (idx *Index) Remove(chunkID string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.removeLocked(chunkID)
}

func (idx *Index) removeLocked(chunkID string) {
	freq, ok := idx.docTermFreq[chunkID]
	if !ok {
		return
	}
	for term := range freq {
		bucket := idx.postings[term]
		delete(bucket, chunkID)
		if len(bucket) == 0 {
			delete(idx.postings, term)
		}
	}
	idx.totalLength -= idx.docLength[chunkID]
	delete(idx.docTermFreq, chunkID)
	delete(idx.docLength, chunkID)
}

// Search returns the k chunks with highest BM25 score for query,
// best-first. Document-length normalization uses each chunk's own token
// count, per spec §4.8.
func (idx *Index) Search(query string, k int) []Result {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if k <= 0 || len(idx.docLength) == 0 {
		return nil
	}

	queryTerms := tokenize(idx.az, query)
	seen := make(map[string]bool, len(queryTerms))
	var uniqueTerms []string
	for _, t := range queryTerms {
		if !seen[t] {
			seen[t] = true
			uniqueTerms = append(uniqueTerms, t)
		}
	}

	n := float64(len(idx.docLength))
	avgDocLen := float64(idx.totalLength) / n

	scores := make(map[string]float64)
	for _, term := range uniqueTerms {
		bucket, ok := idx.postings[term]
		if !ok {
			continue
		}
		df := float64(len(bucket))
		idf := math.Log(1 + (n-df+0.5)/(df+0.5))
		for chunkID, freq := range bucket {
			docLen := float64(idx.docLength[chunkID])
			f := float64(freq)
			denom := f + BM25K1*(1-BM25B+BM25B*(docLen/avgDocLen))
			scores[chunkID] += idf * (f * (BM25K1 + 1)) / denom
		}
	}

	results := make([]Result, 0, len(scores))
	for chunkID, score := range scores {
		results = append(results, Result{ChunkID: chunkID, Score: score})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ChunkID < results[j].ChunkID
	})
	if len(results) > k {
		results = results[:k]
	}
	return results
}
