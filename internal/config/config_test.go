package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefault_PassesValidation(t *testing.T) {
	require.NoError(t, Validate(Default()))
}

func TestLoadConfigFromDir_NoConfigFileUsesDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadConfigFromDir(dir)
	require.NoError(t, err)
	require.Equal(t, 60, cfg.Retrieval.RRFK)
	require.NotEmpty(t, cfg.EmbeddingModels)
}

func TestLoadConfigFromDir_NoConfigFileDefaultsEnableTemporalOnly(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadConfigFromDir(dir)
	require.NoError(t, err)
	require.True(t, cfg.Ingestion.Temporal)
	require.Empty(t, cfg.Ingestion.CoverageProfile)
}

func TestLoadConfigFromDir_ConfigFileOverridesIngestion(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".knowcode"), 0o755))
	yaml := "ingestion:\n  temporal: false\n  coverage_profile: cover.out\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".knowcode", "config.yml"), []byte(yaml), 0o644))

	cfg, err := LoadConfigFromDir(dir)
	require.NoError(t, err)
	require.False(t, cfg.Ingestion.Temporal)
	require.Equal(t, "cover.out", cfg.Ingestion.CoverageProfile)
}

func TestLoadConfigFromDir_ConfigFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".knowcode"), 0o755))
	yaml := "retrieval:\n  rrf_k: 30\n  top_n: 10\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".knowcode", "config.yml"), []byte(yaml), 0o644))

	cfg, err := LoadConfigFromDir(dir)
	require.NoError(t, err)
	require.Equal(t, 30, cfg.Retrieval.RRFK)
	require.Equal(t, 10, cfg.Retrieval.TopN)
}

func TestLoadConfigFromDir_EnvVarOverridesConfigFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".knowcode"), 0o755))
	yaml := "retrieval:\n  rrf_k: 30\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".knowcode", "config.yml"), []byte(yaml), 0o644))

	t.Setenv("KNOWCODE_RETRIEVAL_RRF_K", "99")

	cfg, err := LoadConfigFromDir(dir)
	require.NoError(t, err)
	require.Equal(t, 99, cfg.Retrieval.RRFK)
}

func TestValidate_RejectsNoEmbeddingModels(t *testing.T) {
	cfg := Default()
	cfg.EmbeddingModels = nil
	require.ErrorIs(t, Validate(cfg), ErrNoEmbeddingModels)
}

func TestValidate_RejectsUnknownProvider(t *testing.T) {
	cfg := Default()
	cfg.EmbeddingModels[0].Provider = "carrier-pigeon"
	require.Error(t, Validate(cfg))
}

func TestValidate_RejectsNonPositiveDimensions(t *testing.T) {
	cfg := Default()
	cfg.EmbeddingModels[0].Dimensions = 0
	require.Error(t, Validate(cfg))
}

func TestValidate_RejectsNonPositiveRRFK(t *testing.T) {
	cfg := Default()
	cfg.Retrieval.RRFK = 0
	require.Error(t, Validate(cfg))
}

func TestValidate_AccumulatesMultipleErrors(t *testing.T) {
	cfg := Default()
	cfg.EmbeddingModels = nil
	cfg.Retrieval.RRFK = 0
	err := Validate(cfg)
	require.Error(t, err)
	require.Contains(t, err.Error(), "validation errors")
}

func TestResolveAPIKey_MissingEnvDegrades(t *testing.T) {
	_, ok := ResolveAPIKey("KNOWCODE_TEST_NONEXISTENT_KEY")
	require.False(t, ok)
}

func TestResolveAPIKey_SetEnvResolves(t *testing.T) {
	t.Setenv("KNOWCODE_TEST_KEY", "secret")
	v, ok := ResolveAPIKey("KNOWCODE_TEST_KEY")
	require.True(t, ok)
	require.Equal(t, "secret", v)
}
