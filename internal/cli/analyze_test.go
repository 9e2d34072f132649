package cli

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/knowcode/knowcode/internal/config"
)

func writeFixture(t *testing.T, dir string) {
	t.Helper()
	content := `"""greeting utilities"""


def greet(name):
    """Say hello."""
    return helper(name)


def helper(name):
    return "hello " + name
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "greet.py"), []byte(content), 0o644))
}

func TestAnalyzeRoot_BuildsEntitiesChunksAndManifest(t *testing.T) {
	root := t.TempDir()
	writeFixture(t, root)

	outDir := filepath.Join(root, indexDirName)
	require.NoError(t, os.MkdirAll(outDir, 0o755))

	cfg := config.Default()
	result, err := analyzeRoot(context.Background(), root, outDir, cfg, newStageProgress(true))
	require.NoError(t, err)
	require.Empty(t, result.ParseErrors)
	require.NotEmpty(t, result.Entities)
	require.Greater(t, result.ChunkCount, 0)

	var sawGreet, sawHelper bool
	for _, e := range result.Entities {
		if e.ShortName == "greet" {
			sawGreet = true
		}
		if e.ShortName == "helper" {
			sawHelper = true
		}
	}
	require.True(t, sawGreet)
	require.True(t, sawHelper)

	var sawCall bool
	for _, r := range result.Relationships {
		if r.Kind == "calls" {
			sawCall = true
		}
	}
	require.True(t, sawCall, "expected a calls relationship from greet to helper")

	require.FileExists(t, filepath.Join(outDir, "store.db"))
	require.FileExists(t, filepath.Join(outDir, "vectors.db"))
	require.FileExists(t, filepath.Join(outDir, "manifest.json"))
}

func TestAnalyzeRoot_CoverageIngestionAddsCoverageReportWhenConfigured(t *testing.T) {
	root := t.TempDir()
	writeFixture(t, root)
	require.NoError(t, os.WriteFile(filepath.Join(root, "cover.out"), []byte(
		"mode: set\ngreet.py:4.1,6.30 2 5\n"), 0o644))

	outDir := filepath.Join(root, indexDirName)
	require.NoError(t, os.MkdirAll(outDir, 0o755))

	cfg := config.Default()
	cfg.Ingestion.CoverageProfile = "cover.out"
	result, err := analyzeRoot(context.Background(), root, outDir, cfg, newStageProgress(true))
	require.NoError(t, err)

	var sawReport bool
	for _, e := range result.Entities {
		if e.Kind == "coverage_report" {
			sawReport = true
		}
	}
	require.True(t, sawReport, "expected a coverage_report entity when a profile is configured")

	var sawCovers bool
	for _, r := range result.Relationships {
		if r.Kind == "covers" {
			sawCovers = true
		}
	}
	require.True(t, sawCovers, "expected at least one covers edge over greet's span")
}

func TestAnalyzeRoot_CoverageIngestionSkippedWhenNoProfileConfigured(t *testing.T) {
	root := t.TempDir()
	writeFixture(t, root)
	outDir := filepath.Join(root, indexDirName)
	require.NoError(t, os.MkdirAll(outDir, 0o755))

	cfg := config.Default()
	require.Empty(t, cfg.Ingestion.CoverageProfile)
	result, err := analyzeRoot(context.Background(), root, outDir, cfg, newStageProgress(true))
	require.NoError(t, err)

	for _, e := range result.Entities {
		require.NotEqual(t, "coverage_report", string(e.Kind))
	}
}

func TestAnalyzeRoot_TemporalIngestionSkippedWithoutGitDirectory(t *testing.T) {
	root := t.TempDir()
	writeFixture(t, root)
	outDir := filepath.Join(root, indexDirName)
	require.NoError(t, os.MkdirAll(outDir, 0o755))

	cfg := config.Default()
	require.True(t, cfg.Ingestion.Temporal)
	result, err := analyzeRoot(context.Background(), root, outDir, cfg, newStageProgress(true))
	require.NoError(t, err)

	for _, e := range result.Entities {
		require.NotEqual(t, "commit", string(e.Kind))
	}
}

func TestAnalyzeRoot_PersistsChunksForQueryReload(t *testing.T) {
	root := t.TempDir()
	writeFixture(t, root)
	outDir := filepath.Join(root, indexDirName)
	require.NoError(t, os.MkdirAll(outDir, 0o755))

	cfg := config.Default()
	_, err := analyzeRoot(context.Background(), root, outDir, cfg, newStageProgress(true))
	require.NoError(t, err)

	rt, err := openQueryRuntime(context.Background(), root)
	require.NoError(t, err)
	defer rt.Close()

	results := rt.st.Search("greet")
	require.NotEmpty(t, results)
}
