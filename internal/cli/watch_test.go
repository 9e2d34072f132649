package cli

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/knowcode/knowcode/internal/config"
)

func TestGlobExtensions_ExtractsSingleExtensionPatterns(t *testing.T) {
	out := globExtensions([]string{"**/*.go", "**/*.ts", "**/*.tsx", "**/*.md"})
	require.ElementsMatch(t, []string{".go", ".ts", ".tsx", ".md"}, out)
}

func TestGlobExtensions_SkipsNonTrivialPatternsAndDedupes(t *testing.T) {
	out := globExtensions([]string{"**/*.go", "**/*.go", "vendor/**", "*.{go,ts}"})
	require.Equal(t, []string{".go"}, out)
}

func TestIncrementalRuntime_OnlyReembedsChangedChunks(t *testing.T) {
	root := t.TempDir()
	writeFixture(t, root)
	outDir := filepath.Join(root, indexDirName)
	require.NoError(t, os.MkdirAll(outDir, 0o755))

	cfg := config.Default()
	ctx := context.Background()
	_, err := analyzeRoot(ctx, root, outDir, cfg, newStageProgress(true))
	require.NoError(t, err)

	rt, err := openIncrementalRuntime(root, outDir, cfg)
	require.NoError(t, err)
	defer rt.Close()
	require.NotEmpty(t, rt.chunkHash, "runtime should resume from the persisted chunk set")

	// Reindexing with no filesystem changes should find every chunk's
	// content_hash unchanged and re-embed nothing.
	result, err := rt.reindex(ctx, outDir, newStageProgress(true))
	require.NoError(t, err)
	require.Greater(t, result.ChunkCount, 0)

	unchangedVectorCount := rt.vecIdx.Len()
	unchangedLexicalCount := rt.lexIdx.Len()

	// Append a new function to the fixture so the next reindex finds a new
	// chunk (extra) to embed; greet's and helper's code is untouched.
	content, err := os.ReadFile(filepath.Join(root, "greet.py"))
	require.NoError(t, err)
	edited := string(content) + "\n\ndef extra():\n    return 1\n"
	require.NoError(t, os.WriteFile(filepath.Join(root, "greet.py"), []byte(edited), 0o644))

	result, err = rt.reindex(ctx, outDir, newStageProgress(true))
	require.NoError(t, err)
	require.Greater(t, result.ChunkCount, 0)

	// A real edit grows the chunk/vector/lexical population by the new
	// function's chunk; it must not shrink to zero and rebuild from
	// scratch (that would indicate a full-tree index replacement).
	require.GreaterOrEqual(t, rt.vecIdx.Len(), unchangedVectorCount)
	require.GreaterOrEqual(t, rt.lexIdx.Len(), unchangedLexicalCount)

	results := rt.lexIdx.Search("extra", 5)
	require.NotEmpty(t, results, "the new function's chunk should be searchable without reopening the index")
}
