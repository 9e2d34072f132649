package cli

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/knowcode/knowcode/internal/chunk"
	"github.com/knowcode/knowcode/internal/config"
	"github.com/knowcode/knowcode/internal/embed"
	"github.com/knowcode/knowcode/internal/errs"
	"github.com/knowcode/knowcode/internal/graph"
	"github.com/knowcode/knowcode/internal/lexical"
	"github.com/knowcode/knowcode/internal/model"
	"github.com/knowcode/knowcode/internal/parse"
	"github.com/knowcode/knowcode/internal/scan"
	"github.com/knowcode/knowcode/internal/store"
	"github.com/knowcode/knowcode/internal/vectorindex"
)

const indexDirName = ".knowcode"

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Scan, parse, and index the codebase for hybrid retrieval",
	Long: `analyze walks the root directory, parses every recognized source file into
entities and relationships, resolves them into a Knowledge Store, chunks
each file's entities into retrieval units, embeds the chunks, and builds
the lexical and vector sub-indexes.`,
	RunE: runAnalyze,
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\ninterrupted, cancelling analyze...")
		cancel()
	}()

	rootDir, err := resolveRootDir()
	if err != nil {
		return err
	}
	cfg, err := config.LoadConfigFromDir(rootDir)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	outDir := filepath.Join(rootDir, indexDirName)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", indexDirName, err)
	}

	result, err := analyzeRoot(ctx, rootDir, outDir, cfg, newStageProgress(quietFlag))
	if err != nil {
		return err
	}

	if !quietFlag {
		fmt.Printf("analyze complete: %d entities, %d relationships, %d chunks (%d parse errors)\n",
			len(result.Entities), len(result.Relationships), result.ChunkCount, len(result.ParseErrors))
	}
	return nil
}

// analyzeResult summarizes one analyze run for the CLI and for tests.
type analyzeResult struct {
	Entities      []model.Entity
	Relationships []model.Relationship
	ChunkCount    int
	ParseErrors   []string
}

// parsedTree is the output of scanParseResolve: every entity and
// relationship the Graph Builder resolved across the whole tree, plus the
// per-file parse.Result the Chunker needs and the file count/parse errors
// the Knowledge Store's scan metadata records.
type parsedTree struct {
	Entities      []model.Entity
	Relationships []model.Relationship
	ParseResults  map[string]*parse.Result
	FileCount     int
	ParseErrors   []string
}

// scanParseResolve walks rootDir, parses every recognized file, and
// resolves the accumulated per-file results into a whole-tree entity and
// relationship set. The Graph Builder has no incremental-removal API (a
// call resolved against a class in file A still needs file B reparsed if
// B is the one that changed), so both a full analyze and an incremental
// watch reindex always run this stage over every file; only the
// downstream chunk/embed/index stage distinguishes the two.
func scanParseResolve(ctx context.Context, rootDir string, cfg *config.Config, progress *stageProgress) (*parsedTree, error) {
	scanner, err := scan.New(rootDir, cfg.Paths.Ignore)
	if err != nil {
		return nil, errs.Wrap(errs.IOError, rootDir, err)
	}
	files, skipped := scanner.Scan()

	registry := parse.NewDefaultRegistry()
	builder := graph.NewBuilder()
	parseResults := make(map[string]*parse.Result, len(files))

	progress.start("Parsing files", len(files))
	var parseErrors []string
	for _, f := range skipped {
		parseErrors = append(parseErrors, f.Error())
	}
	for _, f := range files {
		frontend, ok := registry.Lookup(f.Language)
		if !ok {
			progress.add(1)
			continue
		}
		res, err := frontend.Parse(ctx, f.AbsPath, f.RelPath)
		if err != nil {
			parseErrors = append(parseErrors, errs.Wrap(errs.ParseError, f.RelPath, err).Error())
			progress.add(1)
			continue
		}
		for _, pe := range res.Errors {
			parseErrors = append(parseErrors, fmt.Sprintf("%s:%d: %s", pe.File, pe.Line, pe.Message))
		}
		parseResults[f.RelPath] = res
		builder.AddFile(graph.FileResult{RelPath: f.RelPath, Result: res})
		progress.add(1)
	}
	progress.finish()

	entities, relationships, err := builder.Resolve()
	if err != nil {
		return nil, fmt.Errorf("resolve graph: %w", err)
	}

	entities, relationships, parseErrors = runOptionalIngestion(ctx, rootDir, cfg, entities, relationships, parseErrors)

	return &parsedTree{
		Entities:      entities,
		Relationships: relationships,
		ParseResults:  parseResults,
		FileCount:     len(files),
		ParseErrors:   parseErrors,
	}, nil
}

// runOptionalIngestion runs the Graph Builder's two optional ingestion
// passes (spec §4.3), each gated by cfg.Ingestion and self-skipping when
// its prerequisite is missing: Temporal needs a .git directory, coverage
// needs CoverageProfile to name a readable file. A pass's own failure
// (e.g. git not installed, a malformed profile) is recorded as a
// non-fatal parse error rather than aborting the whole analyze/reindex.
func runOptionalIngestion(ctx context.Context, rootDir string, cfg *config.Config, entities []model.Entity, relationships []model.Relationship, parseErrors []string) ([]model.Entity, []model.Relationship, []string) {
	if cfg.Ingestion.Temporal {
		if _, statErr := os.Stat(filepath.Join(rootDir, ".git")); statErr == nil {
			fileToModule := make(map[string]string, len(entities))
			for _, e := range entities {
				if e.Kind == model.KindModule {
					fileToModule[e.Location.File] = e.ID
				}
			}
			ingestor := &graph.TemporalIngestor{RepoRoot: rootDir}
			tEntities, tRelationships, err := ingestor.Ingest(ctx, func(relPath string) (string, bool) {
				id, ok := fileToModule[relPath]
				return id, ok
			})
			if err != nil {
				parseErrors = append(parseErrors, fmt.Sprintf("temporal ingestion: %s", err))
			} else {
				entities = append(entities, tEntities...)
				relationships = append(relationships, tRelationships...)
			}
		}
	}

	if cfg.Ingestion.CoverageProfile != "" {
		profilePath := cfg.Ingestion.CoverageProfile
		if !filepath.IsAbs(profilePath) {
			profilePath = filepath.Join(rootDir, profilePath)
		}
		if f, err := os.Open(profilePath); err == nil {
			ingestor := &graph.CoverageIngestor{ReportID: "coverage:" + filepath.Base(profilePath)}
			blocks, parseErr := ingestor.Parse(f)
			f.Close()
			if parseErr != nil {
				parseErrors = append(parseErrors, fmt.Sprintf("coverage ingestion: %s", parseErr))
			} else {
				cEntities, cRelationships := ingestor.Resolve(blocks, entities)
				entities = append(entities, cEntities...)
				relationships = append(relationships, cRelationships...)
			}
		}
	}

	return entities, relationships, parseErrors
}

// persistGraphAndChunks rebuilds the in-memory Knowledge Store from tree,
// overwrites store.db with its entities/relationships, chunks every parsed
// file, and overwrites store.db's chunk table with the result. db is
// caller-owned (left open). Returns every chunk in the tree, keyed on the
// same deterministic ids chunk.New always assigns, so a caller can diff
// this run's chunks against a previously persisted set.
func persistGraphAndChunks(db *sql.DB, rootDir string, tree *parsedTree, cfg *config.Config, progress *stageProgress) ([]model.Chunk, error) {
	st, err := store.New(rootDir)
	if err != nil {
		return nil, fmt.Errorf("create knowledge store: %w", err)
	}
	defer st.Close()
	if err := st.Build(tree.Entities, tree.Relationships); err != nil {
		return nil, fmt.Errorf("build knowledge store: %w", err)
	}

	doc := store.Document{
		Entities:      tree.Entities,
		Relationships: tree.Relationships,
		ScanMetadata:  store.ScanMetadata{FileCount: tree.FileCount, Errors: tree.ParseErrors},
	}
	if err := store.Save(db, doc); err != nil {
		return nil, fmt.Errorf("persist knowledge store: %w", err)
	}

	chunker := chunk.New(cfg.Chunking.MaxClassTokens)
	var allChunks []model.Chunk
	progress.start("Chunking files", len(tree.ParseResults))
	for relPath, res := range tree.ParseResults {
		chunks, err := chunker.ChunkFile(res, relPath)
		if err != nil {
			tree.ParseErrors = append(tree.ParseErrors, errs.Wrap(errs.ParseError, relPath, err).Error())
			progress.add(1)
			continue
		}
		allChunks = append(allChunks, chunks...)
		progress.add(1)
	}
	progress.finish()

	// Persist chunk metadata (and text) alongside entities so a later
	// process can rebuild the Lexical Index and a Search Engine
	// ChunkLookup without re-scanning or re-parsing the source tree.
	doc.Chunks = allChunks
	if err := store.Save(db, doc); err != nil {
		return nil, fmt.Errorf("persist chunk metadata: %w", err)
	}
	return allChunks, nil
}

// analyzeRoot runs the full scan -> parse -> graph -> store -> chunk ->
// embed -> index pipeline and persists every artifact under outDir. It is
// factored out of runAnalyze so it is directly unit-testable without a
// cobra command context. Every chunk is (re-)embedded and every index is
// rebuilt from scratch; internal/watch's incremental path
// (incrementalRuntime.reindex) instead embeds only chunks whose content
// changed and updates the lexical/vector indexes by chunk id.
func analyzeRoot(ctx context.Context, rootDir, outDir string, cfg *config.Config, progress *stageProgress) (*analyzeResult, error) {
	tree, err := scanParseResolve(ctx, rootDir, cfg, progress)
	if err != nil {
		return nil, err
	}

	db, err := store.OpenSQLite(filepath.Join(outDir, "store.db"))
	if err != nil {
		return nil, fmt.Errorf("open store.db: %w", err)
	}
	defer db.Close()

	allChunks, err := persistGraphAndChunks(db, rootDir, tree, cfg, progress)
	if err != nil {
		return nil, err
	}

	if len(cfg.EmbeddingModels) == 0 {
		return nil, errs.New(errs.EmbeddingFailure, fmt.Errorf("no embedding models configured"))
	}
	embModel := cfg.EmbeddingModels[0]
	apiKey, _ := config.ResolveAPIKey(embModel.APIKeyEnv)
	provider, err := embed.NewProvider(embed.Config{
		Provider:   embModel.Provider,
		Endpoint:   embModel.Endpoint,
		Model:      embModel.Name,
		APIKeyEnv:  embModel.APIKeyEnv,
		Dimensions: embModel.Dimensions,
		BatchSize:  embModel.BatchSize,
	})
	if err != nil {
		return nil, fmt.Errorf("create embedding provider: %w", err)
	}
	defer provider.Close()
	_ = apiKey // resolved for providers that need it directly from the environment

	texts := make([]string, len(allChunks))
	for i, c := range allChunks {
		texts[i] = c.Text
	}

	progress.start("Embedding chunks", len(texts))
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
	vectors, err := embed.EmbedWithProgress(ctx, provider, texts, embed.EmbedModePassage, embModel.BatchSize, progressCh)
	close(progressCh)
	<-done
	progress.finish()
	if err != nil {
		return nil, errs.New(errs.EmbeddingFailure, err)
	}

	vecIdx, err := vectorindex.Open(filepath.Join(outDir, "vectors.db"), embModel.Dimensions)
	if err != nil {
		return nil, fmt.Errorf("open vector index: %w", err)
	}
	defer vecIdx.Close()

	records := make([]model.VectorRecord, len(allChunks))
	for i, c := range allChunks {
		records[i] = model.VectorRecord{ChunkID: c.ID, Vector: vectors[i]}
	}
	if err := vecIdx.AddBatch(records); err != nil {
		return nil, fmt.Errorf("populate vector index: %w", err)
	}
	live := make(map[string]struct{}, len(allChunks))
	for _, c := range allChunks {
		live[c.ID] = struct{}{}
	}
	if _, err := vecIdx.PruneOrphans(live); err != nil {
		return nil, fmt.Errorf("prune orphaned vectors: %w", err)
	}

	lexIdx := lexical.New()
	lexIdx.IndexChunks(allChunks)

	if err := writeManifest(outDir, embModel, allChunks); err != nil {
		return nil, err
	}

	return &analyzeResult{
		Entities:      tree.Entities,
		Relationships: tree.Relationships,
		ChunkCount:    len(allChunks),
		ParseErrors:   tree.ParseErrors,
	}, nil
}

// writeManifest computes the source hash over every chunk's (file,
// content_hash) pair and writes the index manifest used by Stale checks.
func writeManifest(outDir string, embModel config.EmbeddingModel, chunks []model.Chunk) error {
	var pathHashes []string
	for _, c := range chunks {
		pathHashes = append(pathHashes, c.File+":"+c.ContentHash)
	}
	manifest := model.IndexManifest{
		EmbeddingModel: embModel.Name,
		Dimensions:     embModel.Dimensions,
		Provider:       embModel.Provider,
		ChunkCount:     len(chunks),
		SourceHash:     vectorindex.HashSourceSet(pathHashes),
		SchemaVersion:  model.CurrentSchemaVersion,
	}
	if err := vectorindex.WriteManifest(outDir, manifest); err != nil {
		return fmt.Errorf("write index manifest: %w", err)
	}
	return nil
}
