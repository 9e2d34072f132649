// Package vectorindex implements the Vector Store: a dense
// approximate-nearest-neighbor index over fixed-dimension chunk
// embeddings. Grounded directly on the teacher's
// internal/storage/vector_index.go (sqlite-vec vec0 virtual table,
// delete-then-insert upsert pattern, cosine-distance KNN query).
package vectorindex

import (
	"database/sql"
	"fmt"
	"sort"
	"sync"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"

	"github.com/knowcode/knowcode/internal/errs"
	"github.com/knowcode/knowcode/internal/model"
)

func init() {
	sqlite_vec.Auto()
}

// Result is one hit from Search, ordered best-first.
type Result struct {
	ChunkID string
	Score   float64 // cosine similarity, higher is better
}

// Index is a sqlite-vec-backed Vector Store. It keeps an in-memory id_map
// (chunk_id membership set) alongside the vec0 table; Open reconstructs
// this map from the table's own rows rather than starting it empty, so a
// reopened index remembers what it holds without re-embedding anything.
type Index struct {
	mu         sync.RWMutex
	db         *sql.DB
	dimensions int
	idMap      map[string]struct{}
}

// Open creates or opens a sqlite-vec index at path (":memory:" for an
// ephemeral index) with the given embedding dimension, then restores the
// id_map from whatever rows already exist in chunks_vec.
func Open(path string, dimensions int) (*Index, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, &errs.KindError{Kind: errs.IOError, Subject: path, Err: err}
	}
	db.SetMaxOpenConns(1)

	createSQL := fmt.Sprintf(`CREATE VIRTUAL TABLE IF NOT EXISTS chunks_vec USING vec0(
		chunk_id TEXT PRIMARY KEY,
		embedding float[%d]
	)`, dimensions)
	if _, err := db.Exec(createSQL); err != nil {
		db.Close()
		return nil, &errs.KindError{Kind: errs.IOError, Subject: path, Err: fmt.Errorf("create vector index: %w", err)}
	}

	idx := &Index{db: db, dimensions: dimensions, idMap: make(map[string]struct{})}
	if err := idx.restoreIDMap(); err != nil {
		db.Close()
		return nil, err
	}
	return idx, nil
}

// restoreIDMap populates idMap from the chunk_ids already present in
// chunks_vec. This is the fix for the named regression: a prior draft of
// this loader left idMap as an empty map after Open, so Remove/Contains
// silently treated every previously-persisted vector as absent.
func (idx *Index) restoreIDMap() error {
	rows, err := idx.db.Query("SELECT chunk_id FROM chunks_vec")
	if err != nil {
		return &errs.KindError{Kind: errs.IOError, Err: fmt.Errorf("restore id_map: %w", err)}
	}
	defer rows.Close()
	for rows.Next() {
		var chunkID string
		if err := rows.Scan(&chunkID); err != nil {
			return &errs.KindError{Kind: errs.IOError, Err: fmt.Errorf("restore id_map: %w", err)}
		}
		idx.idMap[chunkID] = struct{}{}
	}
	return rows.Err()
}

// Dimensions reports the fixed vector width this index was opened with.
func (idx *Index) Dimensions() int { return idx.dimensions }

// Len reports how many vectors the index currently holds.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.idMap)
}

// Contains reports whether chunkID has a vector in the index.
func (idx *Index) Contains(chunkID string) bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	_, ok := idx.idMap[chunkID]
	return ok
}

// Add upserts a vector for chunkID. vec0 has no INSERT OR REPLACE, so an
// existing row is deleted before the insert, matching the teacher's
// UpdateVectorIndex pattern.
func (idx *Index) Add(chunkID string, vector []float32) error {
	if len(vector) != idx.dimensions {
		return &errs.KindError{Kind: errs.IndexInconsistent, Subject: chunkID,
			Err: fmt.Errorf("vector has dimension %d, index expects %d", len(vector), idx.dimensions)}
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	tx, err := idx.db.Begin()
	if err != nil {
		return &errs.KindError{Kind: errs.IOError, Subject: chunkID, Err: err}
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM chunks_vec WHERE chunk_id = ?", chunkID); err != nil {
		return &errs.KindError{Kind: errs.IOError, Subject: chunkID, Err: err}
	}
	embBytes, err := sqlite_vec.SerializeFloat32(vector)
	if err != nil {
		return &errs.KindError{Kind: errs.IOError, Subject: chunkID, Err: err}
	}
	if _, err := tx.Exec("INSERT INTO chunks_vec (chunk_id, embedding) VALUES (?, ?)", chunkID, embBytes); err != nil {
		return &errs.KindError{Kind: errs.IOError, Subject: chunkID, Err: err}
	}
	if err := tx.Commit(); err != nil {
		return &errs.KindError{Kind: errs.IOError, Subject: chunkID, Err: err}
	}

	idx.idMap[chunkID] = struct{}{}
	return nil
}

// AddBatch upserts many vector records in a single transaction.
func (idx *Index) AddBatch(records []model.VectorRecord) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	tx, err := idx.db.Begin()
	if err != nil {
		return &errs.KindError{Kind: errs.IOError, Err: err}
	}
	defer tx.Rollback()

	deleteStmt, err := tx.Prepare("DELETE FROM chunks_vec WHERE chunk_id = ?")
	if err != nil {
		return &errs.KindError{Kind: errs.IOError, Err: err}
	}
	defer deleteStmt.Close()
	insertStmt, err := tx.Prepare("INSERT INTO chunks_vec (chunk_id, embedding) VALUES (?, ?)")
	if err != nil {
		return &errs.KindError{Kind: errs.IOError, Err: err}
	}
	defer insertStmt.Close()

	for _, rec := range records {
		if len(rec.Vector) != idx.dimensions {
			return &errs.KindError{Kind: errs.IndexInconsistent, Subject: rec.ChunkID,
				Err: fmt.Errorf("vector has dimension %d, index expects %d", len(rec.Vector), idx.dimensions)}
		}
		if _, err := deleteStmt.Exec(rec.ChunkID); err != nil {
			return &errs.KindError{Kind: errs.IOError, Subject: rec.ChunkID, Err: err}
		}
		embBytes, err := sqlite_vec.SerializeFloat32(rec.Vector)
		if err != nil {
			return &errs.KindError{Kind: errs.IOError, Subject: rec.ChunkID, Err: err}
		}
		if _, err := insertStmt.Exec(rec.ChunkID, embBytes); err != nil {
			return &errs.KindError{Kind: errs.IOError, Subject: rec.ChunkID, Err: err}
		}
	}
	if err := tx.Commit(); err != nil {
		return &errs.KindError{Kind: errs.IOError, Err: err}
	}
	for _, rec := range records {
		idx.idMap[rec.ChunkID] = struct{}{}
	}
	return nil
}

// Remove deletes chunkID's vector, if present. Removing an absent id is a
// no-op, not an error.
func (idx *Index) Remove(chunkID string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if _, err := idx.db.Exec("DELETE FROM chunks_vec WHERE chunk_id = ?", chunkID); err != nil {
		return &errs.KindError{Kind: errs.IOError, Subject: chunkID, Err: err}
	}
	delete(idx.idMap, chunkID)
	return nil
}

// Search returns the k nearest chunks to queryVector by cosine similarity,
// best match first.
func (idx *Index) Search(queryVector []float32, k int) ([]Result, error) {
	if len(queryVector) != idx.dimensions {
		return nil, &errs.KindError{Kind: errs.IndexInconsistent,
			Err: fmt.Errorf("query vector has dimension %d, index expects %d", len(queryVector), idx.dimensions)}
	}
	if k <= 0 {
		return nil, nil
	}

	queryBytes, err := sqlite_vec.SerializeFloat32(queryVector)
	if err != nil {
		return nil, &errs.KindError{Kind: errs.IOError, Err: err}
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	rows, err := idx.db.Query(`
		SELECT chunk_id, vec_distance_cosine(embedding, ?) as distance
		FROM chunks_vec
		ORDER BY distance
		LIMIT ?
	`, queryBytes, k)
	if err != nil {
		return nil, &errs.KindError{Kind: errs.IOError, Err: fmt.Errorf("vector search: %w", err)}
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var chunkID string
		var distance float64
		if err := rows.Scan(&chunkID, &distance); err != nil {
			return nil, &errs.KindError{Kind: errs.IOError, Err: err}
		}
		results = append(results, Result{ChunkID: chunkID, Score: 1 - distance})
	}
	if err := rows.Err(); err != nil {
		return nil, &errs.KindError{Kind: errs.IOError, Err: err}
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	return results, nil
}

// PruneOrphans removes any vector whose chunk_id is not present in
// liveChunkIDs, per the "orphaned vectors are an error state the loader
// repairs by pruning" invariant.
func (idx *Index) PruneOrphans(liveChunkIDs map[string]struct{}) (int, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	var toPrune []string
	for chunkID := range idx.idMap {
		if _, ok := liveChunkIDs[chunkID]; !ok {
			toPrune = append(toPrune, chunkID)
		}
	}
	if len(toPrune) == 0 {
		return 0, nil
	}

	tx, err := idx.db.Begin()
	if err != nil {
		return 0, &errs.KindError{Kind: errs.IOError, Err: err}
	}
	defer tx.Rollback()
	stmt, err := tx.Prepare("DELETE FROM chunks_vec WHERE chunk_id = ?")
	if err != nil {
		return 0, &errs.KindError{Kind: errs.IOError, Err: err}
	}
	defer stmt.Close()
	for _, chunkID := range toPrune {
		if _, err := stmt.Exec(chunkID); err != nil {
			return 0, &errs.KindError{Kind: errs.IOError, Subject: chunkID, Err: err}
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, &errs.KindError{Kind: errs.IOError, Err: err}
	}
	for _, chunkID := range toPrune {
		delete(idx.idMap, chunkID)
	}
	return len(toPrune), nil
}

// Close releases the underlying database handle.
func (idx *Index) Close() error {
	return idx.db.Close()
}
