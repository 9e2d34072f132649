package parse

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/knowcode/knowcode/internal/model"
)

func writeTemp(t *testing.T, content string, ext string) (abs, rel string) {
	t.Helper()
	dir := t.TempDir()
	rel = "sample" + ext
	abs = filepath.Join(dir, rel)
	require.NoError(t, os.WriteFile(abs, []byte(content), 0o644))
	return abs, rel
}

func TestPythonFrontend_ExtractsClassAndMethod(t *testing.T) {
	src := `class Greeter:
    """Greets people."""
    def greet(self, name):
        return helper(name)

def helper(name):
    return name
`
	abs, rel := writeTemp(t, src, ".py")
	f := newPythonFrontend()
	res, err := f.Parse(context.Background(), abs, rel)
	require.NoError(t, err)

	var kinds []model.EntityKind
	var names []string
	for _, e := range res.Entities {
		kinds = append(kinds, e.Kind)
		names = append(names, e.QualifiedName)
	}
	require.Contains(t, names, "Greeter")
	require.Contains(t, names, "Greeter.greet")
	require.Contains(t, names, "helper")

	var sawCall bool
	for _, r := range res.Relations {
		if r.Kind == model.RelCalls && r.TargetName == "helper" {
			sawCall = true
		}
	}
	require.True(t, sawCall, "expected a calls relation from greet to helper")
}

func TestPythonFrontend_SyntaxErrorStillYieldsPriorEntities(t *testing.T) {
	src := `def ok_function():
    return 1

def broken_function(
`
	abs, rel := writeTemp(t, src, ".py")
	f := newPythonFrontend()
	res, err := f.Parse(context.Background(), abs, rel)
	require.NoError(t, err)

	var names []string
	for _, e := range res.Entities {
		names = append(names, e.QualifiedName)
	}
	require.Contains(t, names, "ok_function")
	require.NotEmpty(t, res.Errors)
}

func TestYAMLFrontend_EmitsConfigKeys(t *testing.T) {
	src := `embedding:
  provider: local
  dimensions: 384
`
	abs, rel := writeTemp(t, src, ".yml")
	f := newYAMLFrontend()
	res, err := f.Parse(context.Background(), abs, rel)
	require.NoError(t, err)

	var qnames []string
	for _, e := range res.Entities {
		if e.Kind == model.KindConfigKey {
			qnames = append(qnames, e.QualifiedName)
		}
	}
	require.Contains(t, qnames, "embedding")
	require.Contains(t, qnames, "embedding.provider")
	require.Contains(t, qnames, "embedding.dimensions")
}

func TestMarkdownFrontend_SplitsByHeaders(t *testing.T) {
	src := `# Title

intro text

## Usage

how to use it

## API

the api
`
	abs, rel := writeTemp(t, src, ".md")
	f := newMarkdownFrontend()
	res, err := f.Parse(context.Background(), abs, rel)
	require.NoError(t, err)

	var names []string
	for _, e := range res.Entities {
		names = append(names, e.ShortName)
	}
	require.Contains(t, names, "Usage")
	require.Contains(t, names, "API")
}

func TestRegistry_LooksUpByLanguage(t *testing.T) {
	r := NewDefaultRegistry()
	for _, lang := range []string{"python", "javascript", "typescript", "java", "markdown", "yaml", "ruby", "rust", "c", "php"} {
		_, ok := r.Lookup(lang)
		require.True(t, ok, "expected frontend registered for %s", lang)
	}
	_, ok := r.Lookup("cobol")
	require.False(t, ok)
}
