// Package config defines KnowCode's configuration document and loads it
// from .knowcode/config.yml layered with KNOWCODE_* environment variable
// overrides. Grounded on the teacher's internal/config/config.go struct
// shape and internal/config/loader.go's viper wiring, generalized to
// spec §6's embedding_models[]/reranking_models[]/retrieval-defaults
// document instead of a single embedding provider.
package config

// Config is KnowCode's complete configuration document.
type Config struct {
	EmbeddingModels  []EmbeddingModel  `yaml:"embedding_models" mapstructure:"embedding_models"`
	RerankingModels  []RerankingModel  `yaml:"reranking_models" mapstructure:"reranking_models"`
	Retrieval        RetrievalConfig   `yaml:"retrieval" mapstructure:"retrieval"`
	Paths            PathsConfig       `yaml:"paths" mapstructure:"paths"`
	Chunking         ChunkingConfig    `yaml:"chunking" mapstructure:"chunking"`
	Watch            WatchConfig       `yaml:"watch" mapstructure:"watch"`
	Ingestion        IngestionConfig   `yaml:"ingestion" mapstructure:"ingestion"`
}

// EmbeddingModel describes one configured dense-embedding provider.
// A missing credential (APIKeyEnv unset in the environment) does not fail
// configuration load. The retrieval commands and the MCP server then run
// lexical-only retrieval; analyze and watch return an error, as they do
// not run without an embedding provider.
type EmbeddingModel struct {
	Name       string `yaml:"name" mapstructure:"name"`
	Provider   string `yaml:"provider" mapstructure:"provider"` // "openai-compatible", "voyageai-compatible", "mock"
	APIKeyEnv  string `yaml:"api_key_env" mapstructure:"api_key_env"`
	Dimensions int    `yaml:"dimensions" mapstructure:"dimensions"`
	BatchSize  int    `yaml:"batch_size" mapstructure:"batch_size"`
	Endpoint   string `yaml:"endpoint" mapstructure:"endpoint"`
}

// RerankingModel describes one configured cross-encoder reranker.
type RerankingModel struct {
	Name      string `yaml:"name" mapstructure:"name"`
	Provider  string `yaml:"provider" mapstructure:"provider"`
	APIKeyEnv string `yaml:"api_key_env" mapstructure:"api_key_env"`
	Endpoint  string `yaml:"endpoint" mapstructure:"endpoint"`
}

// RetrievalConfig holds the hybrid retrieval defaults spec §6 names.
type RetrievalConfig struct {
	RRFK       int  `yaml:"rrf_k" mapstructure:"rrf_k"`
	TopN       int  `yaml:"top_n" mapstructure:"top_n"`
	RerankTopM int  `yaml:"rerank_top_m" mapstructure:"rerank_top_m"`
	ExpandDeps bool `yaml:"expand_deps" mapstructure:"expand_deps"`
}

// PathsConfig defines which files to index and which to ignore, beyond
// the Scanner's built-in .gitignore handling.
type PathsConfig struct {
	Code   []string `yaml:"code" mapstructure:"code"`
	Docs   []string `yaml:"docs" mapstructure:"docs"`
	Ignore []string `yaml:"ignore" mapstructure:"ignore"`
}

// ChunkingConfig controls the Chunker's target unit sizes.
type ChunkingConfig struct {
	MaxClassTokens int `yaml:"max_class_tokens" mapstructure:"max_class_tokens"`
}

// WatchConfig controls the Watcher's debounce behavior.
type WatchConfig struct {
	DebounceMS int `yaml:"debounce_ms" mapstructure:"debounce_ms"`
}

// IngestionConfig gates the Graph Builder's two optional ingestion passes
// (spec §4.3). Both are additionally self-skipping: Temporal has nothing
// to walk without a .git directory, and coverage has nothing to parse
// without CoverageProfile pointing at a real file; these flags are the
// master switch on top of that, so a repo with a .git directory someone
// doesn't want git-log shelled out against can still disable Temporal.
type IngestionConfig struct {
	Temporal        bool   `yaml:"temporal" mapstructure:"temporal"`
	CoverageProfile string `yaml:"coverage_profile" mapstructure:"coverage_profile"`
}

// Default returns a configuration with sensible defaults: a local
// embedding provider needing no credentials, and the spec's named
// retrieval defaults (rrf_k=60, matching internal/hybrid.RRFK).
func Default() *Config {
	return &Config{
		EmbeddingModels: []EmbeddingModel{
			{
				Name:       "mock-minilm",
				Provider:   "mock",
				Dimensions: 384,
				BatchSize:  32,
			},
		},
		RerankingModels: nil,
		Retrieval: RetrievalConfig{
			RRFK:       60,
			TopN:       50,
			RerankTopM: 20,
			ExpandDeps: false,
		},
		Paths: PathsConfig{
			Code: []string{
				"**/*.go", "**/*.ts", "**/*.tsx", "**/*.js", "**/*.jsx",
				"**/*.py", "**/*.java",
			},
			Docs: []string{"**/*.md", "**/*.yaml", "**/*.yml"},
			Ignore: []string{
				"node_modules/**", "vendor/**", ".git/**", "dist/**",
				"build/**", "__pycache__/**", ".knowcode/**",
			},
		},
		Chunking:  ChunkingConfig{MaxClassTokens: 2000},
		Watch:     WatchConfig{DebounceMS: 500},
		Ingestion: IngestionConfig{Temporal: true},
	}
}
