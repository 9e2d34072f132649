package vectorindex

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/knowcode/knowcode/internal/model"
)

func unitVector(dims, hot int) []float32 {
	v := make([]float32, dims)
	v[hot%dims] = 1.0
	return v
}

func TestIndex_AddAndSearchReturnsClosestFirst(t *testing.T) {
	idx, err := Open(":memory:", 4)
	require.NoError(t, err)
	defer idx.Close()

	require.NoError(t, idx.Add("chunk-a", unitVector(4, 0)))
	require.NoError(t, idx.Add("chunk-b", unitVector(4, 1)))
	require.NoError(t, idx.Add("chunk-c", unitVector(4, 2)))

	results, err := idx.Search(unitVector(4, 1), 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, "chunk-b", results[0].ChunkID)
}

func TestIndex_AddRejectsWrongDimension(t *testing.T) {
	idx, err := Open(":memory:", 4)
	require.NoError(t, err)
	defer idx.Close()

	err = idx.Add("chunk-a", []float32{1, 2})
	require.Error(t, err)
}

func TestIndex_UpsertReplacesVector(t *testing.T) {
	idx, err := Open(":memory:", 3)
	require.NoError(t, err)
	defer idx.Close()

	require.NoError(t, idx.Add("chunk-a", unitVector(3, 0)))
	require.NoError(t, idx.Add("chunk-a", unitVector(3, 2)))
	require.Equal(t, 1, idx.Len())

	results, err := idx.Search(unitVector(3, 2), 1)
	require.NoError(t, err)
	require.Equal(t, "chunk-a", results[0].ChunkID)
	require.InDelta(t, 1.0, results[0].Score, 1e-6)
}

func TestIndex_RemoveIsNoOpForAbsentID(t *testing.T) {
	idx, err := Open(":memory:", 3)
	require.NoError(t, err)
	defer idx.Close()
	require.NoError(t, idx.Remove("never-added"))
}

func TestIndex_IDMapIsRestoredOnReopen(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "vectors.db")

	idx, err := Open(dbPath, 4)
	require.NoError(t, err)
	require.NoError(t, idx.Add("chunk-a", unitVector(4, 0)))
	require.NoError(t, idx.Add("chunk-b", unitVector(4, 1)))
	require.Equal(t, 2, idx.Len())
	require.NoError(t, idx.Close())

	reopened, err := Open(dbPath, 4)
	require.NoError(t, err)
	defer reopened.Close()

	// The regression this guards against: a loader that recreates idMap
	// as an empty map instead of populating it from the persisted table
	// would report Len()==0 and Contains("chunk-a")==false here.
	require.Equal(t, 2, reopened.Len())
	require.True(t, reopened.Contains("chunk-a"))
	require.True(t, reopened.Contains("chunk-b"))

	results, err := reopened.Search(unitVector(4, 0), 1)
	require.NoError(t, err)
	require.Equal(t, "chunk-a", results[0].ChunkID)
}

func TestIndex_PruneOrphansRemovesDeadChunks(t *testing.T) {
	idx, err := Open(":memory:", 3)
	require.NoError(t, err)
	defer idx.Close()

	require.NoError(t, idx.Add("live", unitVector(3, 0)))
	require.NoError(t, idx.Add("dead", unitVector(3, 1)))

	pruned, err := idx.PruneOrphans(map[string]struct{}{"live": {}})
	require.NoError(t, err)
	require.Equal(t, 1, pruned)
	require.True(t, idx.Contains("live"))
	require.False(t, idx.Contains("dead"))
}

func TestIndex_AddBatchUpsertsAll(t *testing.T) {
	idx, err := Open(":memory:", 2)
	require.NoError(t, err)
	defer idx.Close()

	err = idx.AddBatch([]model.VectorRecord{
		{ChunkID: "a", Vector: unitVector(2, 0)},
		{ChunkID: "b", Vector: unitVector(2, 1)},
	})
	require.NoError(t, err)
	require.Equal(t, 2, idx.Len())
}

func TestManifest_WriteReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	m := model.IndexManifest{
		EmbeddingModel: "voyage-code-3",
		Dimensions:     1024,
		Provider:       "voyageai-compatible",
		ChunkCount:     42,
		SourceHash:     "abc123",
		SchemaVersion:  model.CurrentSchemaVersion,
		BuiltAt:        time.Unix(0, 0).UTC(),
	}
	require.NoError(t, WriteManifest(dir, m))

	loaded, err := ReadManifest(dir)
	require.NoError(t, err)
	require.Equal(t, m.EmbeddingModel, loaded.EmbeddingModel)
	require.Equal(t, m.Dimensions, loaded.Dimensions)
	require.Equal(t, m.SourceHash, loaded.SourceHash)
}

func TestManifest_StaleDetectsConfigDrift(t *testing.T) {
	m := model.IndexManifest{
		EmbeddingModel: "voyage-code-3",
		Dimensions:     1024,
		Provider:       "voyageai-compatible",
		SourceHash:     "abc123",
		SchemaVersion:  model.CurrentSchemaVersion,
	}
	require.False(t, Stale(m, "voyage-code-3", 1024, "voyageai-compatible", "abc123"))
	require.True(t, Stale(m, "voyage-code-3", 1536, "voyageai-compatible", "abc123"))
	require.True(t, Stale(m, "text-embedding-3", 1024, "voyageai-compatible", "abc123"))
	require.True(t, Stale(m, "voyage-code-3", 1024, "voyageai-compatible", "different-hash"))
}

func TestManifest_ReadMissingReturnsError(t *testing.T) {
	dir := t.TempDir()
	_, err := ReadManifest(dir)
	require.Error(t, err)
}
