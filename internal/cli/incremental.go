package cli

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"

	"github.com/knowcode/knowcode/internal/config"
	"github.com/knowcode/knowcode/internal/embed"
	"github.com/knowcode/knowcode/internal/errs"
	"github.com/knowcode/knowcode/internal/lexical"
	"github.com/knowcode/knowcode/internal/model"
	"github.com/knowcode/knowcode/internal/store"
	"github.com/knowcode/knowcode/internal/vectorindex"
)

// incrementalRuntime holds the long-lived state a watch session reuses
// across reindex calls: the open store.db handle, the embedding provider,
// the vector index (sqlite-vec, already file-backed and upsert-only), the
// in-memory lexical index (bleve has no on-disk persistence here, so it is
// rebuilt once from the persisted chunk set at startup and patched in
// place afterward), and the last-seen content hash per chunk id, which is
// what lets reindex tell an unchanged chunk from one worth re-embedding.
//
// Per spec §4.12/§5, a watch-triggered reindex recomputes chunks for every
// file (the Graph Builder's Resolve has no incremental-removal API, so a
// cross-file call/import edge can only be kept correct by re-parsing the
// whole tree) but only re-embeds and re-indexes the chunks whose content
// actually changed, and removes chunks/vectors for ids that disappeared.
type incrementalRuntime struct {
	rootDir string
	cfg     *config.Config

	db       *sql.DB
	provider embed.Provider
	embModel config.EmbeddingModel
	vecIdx   *vectorindex.Index
	lexIdx   *lexical.Index

	chunkHash map[string]string // chunk id -> content_hash, as of the last reindex
}

// openIncrementalRuntime opens outDir's persisted store and vector index
// (both reused as-is) and rebuilds the in-memory lexical index from
// whatever chunks were last persisted, so a watch session started against
// an already-analyzed tree resumes from that tree's state rather than
// starting empty.
func openIncrementalRuntime(rootDir, outDir string, cfg *config.Config) (*incrementalRuntime, error) {
	if len(cfg.EmbeddingModels) == 0 {
		return nil, errs.New(errs.EmbeddingFailure, fmt.Errorf("no embedding models configured"))
	}
	embModel := cfg.EmbeddingModels[0]

	db, err := store.OpenSQLite(filepath.Join(outDir, "store.db"))
	if err != nil {
		return nil, fmt.Errorf("open store.db: %w", err)
	}

	prevDoc, err := store.Load(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("load persisted store: %w", err)
	}

	provider, err := embed.NewProvider(embed.Config{
		Provider:   embModel.Provider,
		Endpoint:   embModel.Endpoint,
		Model:      embModel.Name,
		APIKeyEnv:  embModel.APIKeyEnv,
		Dimensions: embModel.Dimensions,
		BatchSize:  embModel.BatchSize,
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create embedding provider: %w", err)
	}

	vecIdx, err := vectorindex.Open(filepath.Join(outDir, "vectors.db"), embModel.Dimensions)
	if err != nil {
		db.Close()
		provider.Close()
		return nil, fmt.Errorf("open vector index: %w", err)
	}

	lexIdx := lexical.New()
	lexIdx.IndexChunks(prevDoc.Chunks)

	chunkHash := make(map[string]string, len(prevDoc.Chunks))
	for _, c := range prevDoc.Chunks {
		chunkHash[c.ID] = c.ContentHash
	}

	return &incrementalRuntime{
		rootDir:   rootDir,
		cfg:       cfg,
		db:        db,
		provider:  provider,
		embModel:  embModel,
		vecIdx:    vecIdx,
		lexIdx:    lexIdx,
		chunkHash: chunkHash,
	}, nil
}

// reindex re-parses and re-resolves the whole tree, then patches the
// chunk/vector/lexical layers by chunk id: ids no longer present are
// removed from the vector and lexical indexes, ids that are new or whose
// content_hash changed are (re-)embedded and upserted, and everything else
// is left untouched. The Watcher's list of changed paths is not passed
// in: the parse/resolve stage always covers the whole tree; see the
// incrementalRuntime doc comment for why.
func (rt *incrementalRuntime) reindex(ctx context.Context, outDir string, progress *stageProgress) (*analyzeResult, error) {
	tree, err := scanParseResolve(ctx, rt.rootDir, rt.cfg, progress)
	if err != nil {
		return nil, err
	}

	allChunks, err := persistGraphAndChunks(rt.db, rt.rootDir, tree, rt.cfg, progress)
	if err != nil {
		return nil, err
	}

	newHash := make(map[string]string, len(allChunks))
	var toEmbed []model.Chunk
	for _, c := range allChunks {
		newHash[c.ID] = c.ContentHash
		if old, ok := rt.chunkHash[c.ID]; !ok || old != c.ContentHash {
			toEmbed = append(toEmbed, c)
		}
	}
	var toRemove []string
	for id := range rt.chunkHash {
		if _, ok := newHash[id]; !ok {
			toRemove = append(toRemove, id)
		}
	}

	for _, id := range toRemove {
		if err := rt.vecIdx.Remove(id); err != nil {
			return nil, fmt.Errorf("remove obsolete vector %s: %w", id, err)
		}
		rt.lexIdx.Remove(id)
	}

	if len(toEmbed) > 0 {
		texts := make([]string, len(toEmbed))
		for i, c := range toEmbed {
			texts[i] = c.Text
		}
		progress.start("Embedding changed chunks", len(texts))
		progressCh := make(chan embed.BatchProgress, 4)
		done := make(chan struct{})
		go func() {
			defer close(done)
			last := 0
			for bp := range progressCh {
				progress.add(bp.ProcessedChunks - last)
				last = bp.ProcessedChunks
			}
		}()
		vectors, err := embed.EmbedWithProgress(ctx, rt.provider, texts, embed.EmbedModePassage, rt.embModel.BatchSize, progressCh)
		close(progressCh)
		<-done
		progress.finish()
		if err != nil {
			return nil, errs.New(errs.EmbeddingFailure, err)
		}

		records := make([]model.VectorRecord, len(toEmbed))
		for i, c := range toEmbed {
			records[i] = model.VectorRecord{ChunkID: c.ID, Vector: vectors[i]}
			rt.lexIdx.AddChunk(c.ID, c.Text)
		}
		if err := rt.vecIdx.AddBatch(records); err != nil {
			return nil, fmt.Errorf("upsert changed vectors: %w", err)
		}
	}

	rt.chunkHash = newHash

	if err := writeManifest(outDir, rt.embModel, allChunks); err != nil {
		return nil, err
	}

	return &analyzeResult{
		Entities:      tree.Entities,
		Relationships: tree.Relationships,
		ChunkCount:    len(allChunks),
		ParseErrors:   tree.ParseErrors,
	}, nil
}

// Close releases the database handle, vector index, and embedding
// provider backing this watch session.
func (rt *incrementalRuntime) Close() error {
	rt.vecIdx.Close()
	rt.provider.Close()
	return rt.db.Close()
}
