// Package parse defines the Parser Frontend capability: a small interface
// polymorphic over {parse(file) -> (entities, local relations, parse
// errors)}, plus a registry keyed by language name. Grounded on the
// teacher's per-language parsers under internal/indexer/parsers, unified
// here behind one capability interface (the teacher dispatches by
// concrete type per CLI command; we dispatch through a registry, matching
// spec §9's "tagged-variant or small-interface dispatch, with a registry
// keyed by language/provider name").
package parse

import (
	"context"

	"github.com/knowcode/knowcode/internal/model"
)

// Relation is a local, unresolved relationship a frontend emits. The
// target is a symbolic name (e.g. "os.path.join", "Base", "./util") that
// the Graph Builder resolves against the rest of the codebase; frontends
// never attempt cross-file resolution themselves.
type Relation struct {
	SourceID   string
	TargetName string
	Kind       model.RelationKind
	File       string
	Line       int
}

// ParseError records a region of a file the frontend could not parse. It
// becomes a KindParseError entity rather than being silently dropped, per
// spec §4.2.
type ParseError struct {
	File    string
	Line    int
	Message string
}

// Result is everything one frontend invocation produces for one file.
type Result struct {
	Entities  []model.Entity
	Relations []Relation
	Errors    []ParseError
}

// Frontend is the capability every language parser implements.
type Frontend interface {
	// Language returns the registry key this frontend handles.
	Language() string
	// Parse extracts entities, local relations, and parse errors from a
	// single source file. relPath is the path recorded on emitted
	// entities (repo-relative, slash-separated).
	Parse(ctx context.Context, absPath, relPath string) (*Result, error)
}

// Registry dispatches to a Frontend by language tag.
type Registry struct {
	frontends map[string]Frontend
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{frontends: make(map[string]Frontend)}
}

// Register adds or replaces the frontend for its own Language().
func (r *Registry) Register(f Frontend) {
	r.frontends[f.Language()] = f
}

// Lookup returns the frontend registered for language, if any.
func (r *Registry) Lookup(language string) (Frontend, bool) {
	f, ok := r.frontends[language]
	return f, ok
}

// NewDefaultRegistry builds a registry with every frontend this build
// ships: Python, TypeScript/JavaScript, Java, Markdown, YAML, and a
// generic structural frontend for Ruby/Rust/C/PHP.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(newPythonFrontend())
	jsts := newJavaScriptFrontend()
	r.frontends["javascript"] = jsts
	r.frontends["typescript"] = jsts
	r.Register(newJavaFrontend())
	r.Register(newMarkdownFrontend())
	r.Register(newYAMLFrontend())
	for _, f := range newGenericFrontends() {
		r.Register(f)
	}
	return r
}
