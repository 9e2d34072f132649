package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/knowcode/knowcode/internal/config"
	"github.com/knowcode/knowcode/internal/embed"
	"github.com/knowcode/knowcode/internal/errs"
	"github.com/knowcode/knowcode/internal/hybrid"
	"github.com/knowcode/knowcode/internal/lexical"
	"github.com/knowcode/knowcode/internal/model"
	"github.com/knowcode/knowcode/internal/search"
	"github.com/knowcode/knowcode/internal/store"
	"github.com/knowcode/knowcode/internal/synth"
	"github.com/knowcode/knowcode/internal/vectorindex"
)

// queryRuntime is the set of in-memory structures rebuilt from a prior
// analyze run's persisted artifacts (store.db, vectors.db, manifest.json)
// without re-scanning or re-parsing the source tree.
type queryRuntime struct {
	cfg      *config.Config
	st       *store.Store
	engine   *search.Engine
	synth    *synth.Synthesizer
	embedder embed.Provider
	hybrid   *hybrid.Index
}

func (r *queryRuntime) Close() {
	if r.embedder != nil {
		r.embedder.Close()
	}
	if r.hybrid != nil {
		r.hybrid.Close()
	}
	if r.st != nil {
		r.st.Close()
	}
}

// openQueryRuntime rebuilds the retrieval stack for rootDir from its
// .knowcode index directory. It is the query-side counterpart of
// analyzeRoot: chunk metadata and text persisted in store.db reconstruct
// the Lexical Index in memory, and vectors.db is reopened read/write (the
// sqlite-vec table is already populated) rather than rebuilt.
func openQueryRuntime(ctx context.Context, rootDir string) (*queryRuntime, error) {
	cfg, err := config.LoadConfigFromDir(rootDir)
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	outDir := filepath.Join(rootDir, indexDirName)

	manifest, err := vectorindex.ReadManifest(outDir)
	if err != nil {
		return nil, fmt.Errorf("read index manifest (run 'knowcode analyze' first): %w", err)
	}

	db, err := store.OpenSQLite(filepath.Join(outDir, "store.db"))
	if err != nil {
		return nil, fmt.Errorf("open store.db: %w", err)
	}
	defer db.Close()
	doc, err := store.Load(db)
	if err != nil {
		return nil, fmt.Errorf("load knowledge store: %w", err)
	}

	st, err := store.New(rootDir)
	if err != nil {
		return nil, fmt.Errorf("create knowledge store: %w", err)
	}
	if err := st.Build(doc.Entities, doc.Relationships); err != nil {
		st.Close()
		return nil, fmt.Errorf("build knowledge store: %w", err)
	}

	moduleByFile := make(map[string]string)
	for _, e := range doc.Entities {
		if e.Kind == model.KindModule {
			moduleByFile[e.Location.File] = e.ID
		}
	}
	chunkInfo := make(map[string]search.ChunkInfo, len(doc.Chunks))
	chunkText := make(map[string]string, len(doc.Chunks))
	for _, c := range doc.Chunks {
		chunkInfo[c.ID] = search.ChunkInfo{EntityID: c.EntityID, ModuleEntityID: moduleByFile[c.File]}
		chunkText[c.ID] = c.Text
	}
	lookup := search.ChunkLookup(func(chunkID string) (search.ChunkInfo, bool) {
		info, ok := chunkInfo[chunkID]
		return info, ok
	})
	textLookup := hybrid.TextLookup(func(chunkID string) (string, bool) {
		text, ok := chunkText[chunkID]
		return text, ok
	})

	lexIdx := lexical.New()
	lexIdx.IndexChunks(doc.Chunks)

	vecIdx, err := vectorindex.Open(filepath.Join(outDir, "vectors.db"), manifest.Dimensions)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("open vector index: %w", err)
	}

	reranker := buildReranker(cfg)
	hybridIdx := hybrid.New(lexIdx, vecIdx, textLookup, reranker)

	engine := search.New(hybridIdx, st, lookup)
	synthesizer := synth.New(st)

	var embedder embed.Provider
	if len(cfg.EmbeddingModels) > 0 {
		embModel := cfg.EmbeddingModels[0]
		embedder, err = embed.NewProvider(embed.Config{
			Provider:   embModel.Provider,
			Endpoint:   embModel.Endpoint,
			Model:      embModel.Name,
			APIKeyEnv:  embModel.APIKeyEnv,
			Dimensions: embModel.Dimensions,
			BatchSize:  embModel.BatchSize,
		})
		if err != nil {
			// A provider that cannot be created (e.g. its credential env
			// var is unset) disables semantic search: embedQuery returns a
			// nil vector and retrieval runs lexical-only.
			embedder = nil
		}
	}

	return &queryRuntime{cfg: cfg, st: st, engine: engine, synth: synthesizer, embedder: embedder, hybrid: hybridIdx}, nil
}

// buildReranker wires the configured reranking model, if any, degrading
// to NoopReranker (fused order) when none is configured or its provider
// is "noop" — the same "missing feature degrades rather than aborts"
// policy EmbeddingModel credentials follow.
func buildReranker(cfg *config.Config) hybrid.Reranker {
	if len(cfg.RerankingModels) == 0 {
		return hybrid.NoopReranker
	}
	rm := cfg.RerankingModels[0]
	if rm.Provider != "http" {
		return hybrid.NoopReranker
	}
	return hybrid.NewHTTPReranker(hybrid.HTTPRerankerConfig{
		Endpoint:  rm.Endpoint,
		Model:     rm.Name,
		APIKeyEnv: rm.APIKeyEnv,
	})
}

// embedQuery embeds query text for semantic retrieval, returning a nil
// vector (lexical-only retrieval) when no embedding provider is
// configured or the embedding call fails — matching the Hybrid Index's
// tolerance for a missing retrieval modality.
func (r *queryRuntime) embedQuery(ctx context.Context, query string) []float32 {
	if r.embedder == nil {
		return nil
	}
	vectors, err := r.embedder.Embed(ctx, []string{query}, embed.EmbedModeQuery)
	if err != nil || len(vectors) == 0 {
		return nil
	}
	return vectors[0]
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

var (
	queryMaxTokens     int
	queryLimitEntities int
	queryExpandDeps    bool
	queryTaskType      string
	queryPattern       string
	queryLimit         int
	queryDirection     string
	queryDepth         int
	queryMaxDepth      int
)

var retrieveCmd = &cobra.Command{
	Use:   "retrieve-context [query]",
	Short: "retrieve_context_for_query: build a task-aware context bundle for a natural-language query",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rootDir, err := resolveRootDir()
		if err != nil {
			return err
		}
		rt, err := openQueryRuntime(cmd.Context(), rootDir)
		if err != nil {
			return err
		}
		defer rt.Close()

		query := args[0]
		queryVector := rt.embedQuery(cmd.Context(), query)

		res, err := rt.engine.Search(cmd.Context(), query, queryVector, search.Options{
			TaskType:      model.TaskType(queryTaskType),
			LimitEntities: queryLimitEntities,
			ExpandDeps:    queryExpandDeps,
			TopN:          rt.cfg.Retrieval.TopN,
			RerankTopM:    rt.cfg.Retrieval.RerankTopM,
		})
		if err != nil {
			return errs.New(errs.RetrievalEmpty, err)
		}

		selected := make([]synth.SelectedEntity, len(res.Entities))
		for i, e := range res.Entities {
			selected[i] = synth.SelectedEntity{EntityID: e.EntityID, Score: e.Score}
		}
		evidence := make([]model.Evidence, len(res.Evidence))
		for i, ev := range res.Evidence {
			evidence[i] = model.Evidence{ChunkID: ev.ChunkID, EntityID: ev.EntityID, Score: ev.Score}
		}

		bundle := rt.synth.Synthesize(synth.Request{
			Entities:  selected,
			Evidence:  evidence,
			Query:     query,
			TaskHint:  model.TaskType(queryTaskType),
			MaxTokens: queryMaxTokens,
		})
		return printJSON(bundle)
	},
}

var searchCmd = &cobra.Command{
	Use:   "search [pattern]",
	Short: "search_codebase: find entities by name or qualified-name substring",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rootDir, err := resolveRootDir()
		if err != nil {
			return err
		}
		rt, err := openQueryRuntime(cmd.Context(), rootDir)
		if err != nil {
			return err
		}
		defer rt.Close()

		results := rt.st.Search(args[0])
		if queryLimit > 0 && len(results) > queryLimit {
			results = results[:queryLimit]
		}
		return printJSON(results)
	},
}

var entityContextCmd = &cobra.Command{
	Use:   "entity-context [entity-id]",
	Short: "get_entity_context: build a context bundle anchored on one known entity",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rootDir, err := resolveRootDir()
		if err != nil {
			return err
		}
		rt, err := openQueryRuntime(cmd.Context(), rootDir)
		if err != nil {
			return err
		}
		defer rt.Close()

		entityID := args[0]
		if _, ok := rt.st.GetEntity(entityID); !ok {
			return errs.Newf(errs.RetrievalEmpty, entityID, "unknown entity id")
		}
		bundle := rt.synth.Synthesize(synth.Request{
			Entities:  []synth.SelectedEntity{{EntityID: entityID, Score: 1}},
			TaskHint:  model.TaskType(queryTaskType),
			MaxTokens: queryMaxTokens,
		})
		return printJSON(bundle)
	},
}

var traceCallsCmd = &cobra.Command{
	Use:   "trace-calls [entity-id]",
	Short: "trace_calls: breadth-first traversal of the call graph from an entity",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rootDir, err := resolveRootDir()
		if err != nil {
			return err
		}
		rt, err := openQueryRuntime(cmd.Context(), rootDir)
		if err != nil {
			return err
		}
		defer rt.Close()

		direction := store.DirectionCallees
		if queryDirection == "callers" {
			direction = store.DirectionCallers
		}
		results := rt.st.TraceCalls(args[0], direction, queryDepth, 0)
		return printJSON(results)
	},
}

var impactCmd = &cobra.Command{
	Use:   "impact [entity-id]",
	Short: "get_impact: dependents, affected files, and a risk score for a proposed change",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rootDir, err := resolveRootDir()
		if err != nil {
			return err
		}
		rt, err := openQueryRuntime(cmd.Context(), rootDir)
		if err != nil {
			return err
		}
		defer rt.Close()

		result := rt.st.GetImpact(args[0], queryMaxDepth)
		return printJSON(result)
	},
}

func init() {
	retrieveCmd.Flags().IntVar(&queryMaxTokens, "max-tokens", 4000, "token budget for the synthesized context bundle")
	retrieveCmd.Flags().IntVar(&queryLimitEntities, "limit-entities", 10, "maximum entities to retrieve")
	retrieveCmd.Flags().BoolVar(&queryExpandDeps, "expand-deps", false, "admit one-hop callers/callees at reduced weight")
	retrieveCmd.Flags().StringVar(&queryTaskType, "task-type", string(model.TaskAuto), "explain|debug|extend|review|locate|general|auto")

	searchCmd.Flags().IntVar(&queryLimit, "limit", 20, "maximum entities to return")

	entityContextCmd.Flags().IntVar(&queryMaxTokens, "max-tokens", 4000, "token budget for the synthesized context bundle")
	entityContextCmd.Flags().StringVar(&queryTaskType, "task-type", string(model.TaskAuto), "explain|debug|extend|review|locate|general|auto")

	traceCallsCmd.Flags().StringVar(&queryDirection, "direction", "callees", "callers|callees")
	traceCallsCmd.Flags().IntVar(&queryDepth, "depth", 3, "maximum breadth-first depth")

	impactCmd.Flags().IntVar(&queryMaxDepth, "max-depth", 5, "maximum transitive-dependent depth")

	rootCmd.AddCommand(retrieveCmd, searchCmd, entityContextCmd, traceCallsCmd, impactCmd)
}
