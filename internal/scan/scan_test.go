package scan

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	full := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
}

func TestScan_SkipsBuiltinDenylist(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "main.go", "package main")
	writeFile(t, root, "vendor/dep/dep.go", "package dep")
	writeFile(t, root, ".git/HEAD", "ref: refs/heads/main")
	writeFile(t, root, "node_modules/pkg/index.js", "module.exports = {}")

	s, err := New(root, nil)
	require.NoError(t, err)

	files, skips := s.Scan()
	require.Empty(t, skips)

	var rels []string
	for _, f := range files {
		rels = append(rels, f.RelPath)
	}
	require.Contains(t, rels, "main.go")
	require.NotContains(t, rels, "vendor/dep/dep.go")
	require.NotContains(t, rels, ".git/HEAD")
	require.NotContains(t, rels, "node_modules/pkg/index.js")
}

func TestScan_UserIgnorePatterns(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/app.py", "x = 1")
	writeFile(t, root, "generated/schema.py", "x = 2")

	s, err := New(root, []string{"generated/**"})
	require.NoError(t, err)

	files, _ := s.Scan()
	var rels []string
	for _, f := range files {
		rels = append(rels, f.RelPath)
	}
	require.Contains(t, rels, "src/app.py")
	require.NotContains(t, rels, "generated/schema.py")
}

func TestScan_GitignorePrecedenceOverride(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, ".gitignore", "*.log\n!important.log\n")
	writeFile(t, root, "app.log", "noise")
	writeFile(t, root, "important.log", "keep me")

	s, err := New(root, nil)
	require.NoError(t, err)

	files, _ := s.Scan()
	var rels []string
	for _, f := range files {
		rels = append(rels, f.RelPath)
	}
	require.NotContains(t, rels, "app.log")
	require.Contains(t, rels, "important.log")
}

func TestScan_LanguageTagging(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.py", "x = 1")
	writeFile(t, root, "b.ts", "const x = 1")
	writeFile(t, root, "c.unknownext", "???")

	s, err := New(root, nil)
	require.NoError(t, err)

	files, _ := s.Scan()
	byRel := map[string]File{}
	for _, f := range files {
		byRel[f.RelPath] = f
	}
	require.Equal(t, "python", byRel["a.py"].Language)
	require.Equal(t, "typescript", byRel["b.ts"].Language)
	require.Equal(t, "", byRel["c.unknownext"].Language)
}

func TestScan_StableSortedOutput(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "z.py", "")
	writeFile(t, root, "a.py", "")
	writeFile(t, root, "m.py", "")

	s, err := New(root, nil)
	require.NoError(t, err)

	files, _ := s.Scan()
	var rels []string
	for _, f := range files {
		rels = append(rels, f.RelPath)
	}
	require.Equal(t, []string{"a.py", "m.py", "z.py"}, rels)
}
