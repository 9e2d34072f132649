package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Loader loads a Config from file and environment variables.
type Loader interface {
	Load() (*Config, error)
}

type loader struct {
	rootDir string
}

// NewLoader creates a configuration loader rooted at rootDir. Config is
// read from rootDir/.knowcode/config.yml.
func NewLoader(rootDir string) Loader {
	return &loader{rootDir: rootDir}
}

// Load reads configuration with the following priority, highest first:
//  1. KNOWCODE_* environment variables
//  2. .knowcode/config.yml
//  3. Default()
func (l *loader) Load() (*Config, error) {
	v := viper.New()

	configDir := filepath.Join(l.rootDir, ".knowcode")
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)

	v.SetEnvPrefix("KNOWCODE")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.BindEnv("retrieval.rrf_k")
	v.BindEnv("retrieval.top_n")
	v.BindEnv("retrieval.rerank_top_m")
	v.BindEnv("retrieval.expand_deps")
	v.BindEnv("chunking.max_class_tokens")
	v.BindEnv("watch.debounce_ms")
	v.BindEnv("ingestion.temporal")
	v.BindEnv("ingestion.coverage_profile")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("embedding_models", toMapSlice(d.EmbeddingModels))
	v.SetDefault("reranking_models", toMapSlice(d.RerankingModels))

	v.SetDefault("retrieval.rrf_k", d.Retrieval.RRFK)
	v.SetDefault("retrieval.top_n", d.Retrieval.TopN)
	v.SetDefault("retrieval.rerank_top_m", d.Retrieval.RerankTopM)
	v.SetDefault("retrieval.expand_deps", d.Retrieval.ExpandDeps)

	v.SetDefault("paths.code", d.Paths.Code)
	v.SetDefault("paths.docs", d.Paths.Docs)
	v.SetDefault("paths.ignore", d.Paths.Ignore)

	v.SetDefault("chunking.max_class_tokens", d.Chunking.MaxClassTokens)
	v.SetDefault("watch.debounce_ms", d.Watch.DebounceMS)

	v.SetDefault("ingestion.temporal", d.Ingestion.Temporal)
	v.SetDefault("ingestion.coverage_profile", d.Ingestion.CoverageProfile)
}

// toMapSlice round-trips a slice of structs through viper's default
// mechanism, which only accepts plain values for nested slice-of-struct
// defaults when no config file sets that key.
func toMapSlice(v any) []map[string]any {
	switch t := v.(type) {
	case []EmbeddingModel:
		out := make([]map[string]any, 0, len(t))
		for _, m := range t {
			out = append(out, map[string]any{
				"name": m.Name, "provider": m.Provider, "api_key_env": m.APIKeyEnv,
				"dimensions": m.Dimensions, "batch_size": m.BatchSize, "endpoint": m.Endpoint,
			})
		}
		return out
	case []RerankingModel:
		out := make([]map[string]any, 0, len(t))
		for _, m := range t {
			out = append(out, map[string]any{
				"name": m.Name, "provider": m.Provider, "api_key_env": m.APIKeyEnv, "endpoint": m.Endpoint,
			})
		}
		return out
	default:
		return nil
	}
}

// LoadConfig loads configuration rooted at the current working directory.
func LoadConfig() (*Config, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("get working directory: %w", err)
	}
	return NewLoader(wd).Load()
}

// LoadConfigFromDir loads configuration rooted at rootDir.
func LoadConfigFromDir(rootDir string) (*Config, error) {
	return NewLoader(rootDir).Load()
}

// ResolveAPIKey reads the environment variable named by envVar, reporting
// whether it was set and non-empty. An unset credential does not fail
// configuration load (see EmbeddingModel for how each command handles it).
func ResolveAPIKey(envVar string) (string, bool) {
	if envVar == "" {
		return "", false
	}
	v, ok := os.LookupEnv(envVar)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return v, true
}
