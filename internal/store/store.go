// Package store implements the Knowledge Store: an in-memory directed graph
// of entities and relationships with O(1) id lookup and inverted adjacency
// per relation kind, backed by a SQLite persistence document. Grounded on
// the teacher's internal/graph/searcher.go (reverse-index maps, the
// dominikbraun/graph in-memory digraph, the otter file cache for context
// snippets) generalized from Go-specific query operations to the spec's
// get_callers/get_callees/get_children/get_parent/get_dependencies/
// get_dependents/trace_calls/get_impact surface.
package store

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/dominikbraun/graph"
	"github.com/maypok86/otter"

	"github.com/knowcode/knowcode/internal/model"
)

// Risk-score constants for get_impact, chosen so a single-file isolated
// function scores near 0 and a widely imported core utility scores near 1.
const (
	riskWeightTransitive = 0.35
	riskWeightSpread     = 0.5
	maxFileCacheWeight   = 50 * 1024 * 1024
)

// TraceResult is one entity visited by TraceCalls, annotated with the
// breadth-first depth at which it was reached.
type TraceResult struct {
	EntityID  string
	CallDepth int
}

// ImpactResult is the return value of GetImpact.
type ImpactResult struct {
	DirectDependents      []string
	TransitiveDependents  []string
	AffectedFiles         []string
	RiskScore             float64
}

// Direction selects which edge direction TraceCalls follows.
type Direction string

const (
	DirectionCallers Direction = "callers"
	DirectionCallees Direction = "callees"
)

// Store is the in-memory Knowledge Store.
type Store struct {
	mu sync.RWMutex

	rootDir  string
	entities map[string]model.Entity
	order    []string
	byKind   map[model.EntityKind][]string

	callers      map[string][]string // callee id -> [caller ids]
	callees      map[string][]string // caller id -> [callee ids]
	importers    map[string][]string // imported module id -> [importer ids]
	imports      map[string][]string // importer id -> [imported module ids]
	children     map[string][]string // parent id -> [child ids]
	parent       map[string]string   // child id -> parent id
	inheritedBy  map[string][]string // base id -> [subclass ids]
	inheritsFrom map[string][]string // subclass id -> [base ids]
	changedBy    map[string][]string // entity id -> [commit ids], in relationship order (most recent first)
	graph        graph.Graph[string, model.Entity]

	fileCache otter.Cache[string, []string]
}

// New creates an empty Store. rootDir is used to resolve relative file
// paths when extracting evidence snippets.
func New(rootDir string) (*Store, error) {
	cache, err := otter.MustBuilder[string, []string](maxFileCacheWeight).
		Cost(func(key string, value []string) uint32 {
			return uint32(len(value) * 100)
		}).
		Build()
	if err != nil {
		return nil, fmt.Errorf("create file cache: %w", err)
	}
	return &Store{
		rootDir:   rootDir,
		entities:  make(map[string]model.Entity),
		byKind:    make(map[model.EntityKind][]string),
		callers:   make(map[string][]string),
		callees:   make(map[string][]string),
		importers: make(map[string][]string),
		imports:   make(map[string][]string),
		children:     make(map[string][]string),
		parent:       make(map[string]string),
		inheritedBy:  make(map[string][]string),
		inheritsFrom: make(map[string][]string),
		changedBy:    make(map[string][]string),
		fileCache:    cache,
	}, nil
}

// Build replaces the store's contents with the given entities and
// relationships, rebuilding every reverse-adjacency index and the
// dominikbraun/graph digraph from scratch.
func (s *Store) Build(entities []model.Entity, relationships []model.Relationship) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entities = make(map[string]model.Entity, len(entities))
	s.order = make([]string, 0, len(entities))
	s.byKind = make(map[model.EntityKind][]string)
	s.callers = make(map[string][]string)
	s.callees = make(map[string][]string)
	s.importers = make(map[string][]string)
	s.imports = make(map[string][]string)
	s.children = make(map[string][]string)
	s.parent = make(map[string]string)
	s.inheritedBy = make(map[string][]string)
	s.inheritsFrom = make(map[string][]string)
	s.changedBy = make(map[string][]string)
	s.graph = graph.New(func(e model.Entity) string { return e.ID }, graph.Directed())

	for _, e := range entities {
		s.entities[e.ID] = e
		s.order = append(s.order, e.ID)
		s.byKind[e.Kind] = append(s.byKind[e.Kind], e.ID)
		if err := s.graph.AddVertex(e); err != nil {
			return fmt.Errorf("add vertex %s: %w", e.ID, err)
		}
	}

	for _, r := range relationships {
		_ = s.graph.AddEdge(r.SourceID, r.TargetID)
		switch r.Kind {
		case model.RelCalls:
			s.callees[r.SourceID] = appendUnique(s.callees[r.SourceID], r.TargetID)
			s.callers[r.TargetID] = appendUnique(s.callers[r.TargetID], r.SourceID)
		case model.RelImports:
			s.imports[r.SourceID] = appendUnique(s.imports[r.SourceID], r.TargetID)
			s.importers[r.TargetID] = appendUnique(s.importers[r.TargetID], r.SourceID)
		case model.RelContains:
			s.children[r.SourceID] = appendUnique(s.children[r.SourceID], r.TargetID)
			s.parent[r.TargetID] = r.SourceID
		case model.RelInherits:
			s.inheritedBy[r.TargetID] = appendUnique(s.inheritedBy[r.TargetID], r.SourceID)
			s.inheritsFrom[r.SourceID] = appendUnique(s.inheritsFrom[r.SourceID], r.TargetID)
		case model.RelChangedBy:
			s.changedBy[r.SourceID] = appendUnique(s.changedBy[r.SourceID], r.TargetID)
		}
	}

	s.fileCache.Clear()
	return nil
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}

// GetEntity returns an entity by id.
func (s *Store) GetEntity(id string) (model.Entity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entities[id]
	return e, ok
}

// GetEntitiesByKind returns every entity of the given kind, in insertion
// order.
func (s *Store) GetEntitiesByKind(k model.EntityKind) []model.Entity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.byKind[k]
	out := make([]model.Entity, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.entities[id])
	}
	return out
}

// Search performs a case-insensitive substring match over each entity's
// short name and qualified name, sorted by (exact-name-match,
// prefix-match, length, id).
func (s *Store) Search(pattern string) []model.Entity {
	s.mu.RLock()
	defer s.mu.RUnlock()

	needle := strings.ToLower(pattern)
	var matches []model.Entity
	for _, id := range s.order {
		e := s.entities[id]
		name := strings.ToLower(e.ShortName)
		qname := strings.ToLower(e.QualifiedName)
		if strings.Contains(name, needle) || strings.Contains(qname, needle) {
			matches = append(matches, e)
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		aExact := strings.EqualFold(a.ShortName, pattern)
		bExact := strings.EqualFold(b.ShortName, pattern)
		if aExact != bExact {
			return aExact
		}
		aPrefix := strings.HasPrefix(strings.ToLower(a.ShortName), needle)
		bPrefix := strings.HasPrefix(strings.ToLower(b.ShortName), needle)
		if aPrefix != bPrefix {
			return aPrefix
		}
		if len(a.QualifiedName) != len(b.QualifiedName) {
			return len(a.QualifiedName) < len(b.QualifiedName)
		}
		return a.ID < b.ID
	})
	return matches
}

// GetCallers returns the deduplicated one-hop callers of id.
func (s *Store) GetCallers(id string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneStrings(s.callers[id])
}

// GetCallees returns the deduplicated one-hop callees of id.
func (s *Store) GetCallees(id string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneStrings(s.callees[id])
}

// GetChildren returns id's direct contains-children.
func (s *Store) GetChildren(id string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneStrings(s.children[id])
}

// GetParent returns id's contains-parent, if any.
func (s *Store) GetParent(id string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.parent[id]
	return p, ok
}

// GetDependencies returns the modules id imports.
func (s *Store) GetDependencies(id string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneStrings(s.imports[id])
}

// GetDependents returns the modules that import id.
func (s *Store) GetDependents(id string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneStrings(s.importers[id])
}

// GetInheritsFrom returns the base classes id directly inherits from.
func (s *Store) GetInheritsFrom(id string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneStrings(s.inheritsFrom[id])
}

// GetInheritedBy returns the direct subclasses of id.
func (s *Store) GetInheritedBy(id string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneStrings(s.inheritedBy[id])
}

// GetChangedBy returns the commit entity ids that modified id, in the
// order the temporal ingestor emitted them (most recent first).
func (s *Store) GetChangedBy(id string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneStrings(s.changedBy[id])
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

// TraceCalls performs a breadth-first traversal of the call graph from id
// in the given direction, emitting each visited entity with its call
// depth. Traversal stops at depth or once maxResults entities have been
// emitted (a maxResults of zero or less means no cap); a visited set keyed
// on id detects cycles. A missing id yields an empty result, never an
// error.
//
// Each candidate neighbor is confirmed against the dominikbraun/graph
// digraph via Vertex before it is emitted, exactly as the teacher's
// searcher.queryCallers/queryCallees confirm a reverse-index hit against
// s.graph.Vertex (graph/searcher.go:341): the adjacency maps below are
// built from every relationship, including ones whose target was never
// resolved to a local entity (an unresolved external call), so a raw map
// hit can name an id the graph never saw a vertex for.
func (s *Store) TraceCalls(id string, direction Direction, depth, maxResults int) []TraceResult {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if maxResults <= 0 {
		maxResults = math.MaxInt
	}

	adjacency := s.callees
	if direction == DirectionCallers {
		adjacency = s.callers
	}

	var out []TraceResult
	visited := map[string]bool{id: true}
	frontier := []string{id}

	for d := 1; d <= depth && len(out) < maxResults; d++ {
		var next []string
		for _, cur := range frontier {
			for _, neighbor := range adjacency[cur] {
				if visited[neighbor] {
					continue
				}
				visited[neighbor] = true
				if _, err := s.graph.Vertex(neighbor); err != nil {
					// Unresolved external reference: present in the
					// adjacency map but never added as a vertex.
					continue
				}
				out = append(out, TraceResult{EntityID: neighbor, CallDepth: d})
				next = append(next, neighbor)
				if len(out) >= maxResults {
					break
				}
			}
			if len(out) >= maxResults {
				break
			}
		}
		frontier = next
		if len(frontier) == 0 {
			break
		}
	}
	if len(out) > maxResults {
		out = out[:maxResults]
	}
	return out
}

// GetImpact analyzes the blast radius of changing id: direct dependents
// (1-hop callers and importers), transitive dependents (BFS up to
// maxDepth over the same combined caller/importer adjacency), the set of
// affected files (resolved through the dominikbraun/graph digraph), and a
// risk score in [0,1].
func (s *Store) GetImpact(id string, maxDepth int) ImpactResult {
	s.mu.RLock()
	defer s.mu.RUnlock()

	direct := map[string]bool{}
	for _, c := range s.callers[id] {
		direct[c] = true
	}
	for _, imp := range s.importers[id] {
		direct[imp] = true
	}

	transitive := map[string]bool{}
	visited := map[string]bool{id: true}
	for d := range direct {
		visited[d] = true
	}
	frontier := make([]string, 0, len(direct))
	for d := range direct {
		frontier = append(frontier, d)
	}

	for depth := 2; depth <= maxDepth && len(frontier) > 0; depth++ {
		var next []string
		for _, cur := range frontier {
			for _, c := range append(append([]string{}, s.callers[cur]...), s.importers[cur]...) {
				if visited[c] {
					continue
				}
				visited[c] = true
				transitive[c] = true
				next = append(next, c)
			}
		}
		frontier = next
	}

	// Resolve each dependent id to its entity through the dominikbraun/graph
	// digraph (graph/searcher.go:605,637,677 do the same Vertex lookup when
	// turning a reverse-index hit into a node worth reporting) rather than
	// the flat entities map, so an id the graph never vertexed is excluded
	// the same way TraceCalls excludes it.
	affectedFiles := map[string]bool{}
	for depID := range direct {
		if e, err := s.graph.Vertex(depID); err == nil && e.Location.File != "" {
			affectedFiles[e.Location.File] = true
		}
	}
	for depID := range transitive {
		if e, err := s.graph.Vertex(depID); err == nil && e.Location.File != "" {
			affectedFiles[e.Location.File] = true
		}
	}

	spread := 0.0
	if total := len(direct) + len(transitive); total > 0 {
		spread = float64(len(affectedFiles)) / float64(total)
	}
	risk := riskWeightTransitive*math.Log(1+float64(len(transitive))) + riskWeightSpread*spread
	if risk > 1 {
		risk = 1
	}
	if risk < 0 {
		risk = 0
	}

	return ImpactResult{
		DirectDependents:     sortedKeys(direct),
		TransitiveDependents: sortedKeys(transitive),
		AffectedFiles:        sortedKeys(affectedFiles),
		RiskScore:            risk,
	}
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// EvidenceSnippet returns a context window of lines around [startLine,
// endLine] in relPath, padded by contextLines on each side. File contents
// are cached (Otter, weight-bounded) after the first read.
func (s *Store) EvidenceSnippet(ctx context.Context, relPath string, startLine, endLine, contextLines int) (string, error) {
	lines, err := s.fileLines(relPath)
	if err != nil {
		return "", err
	}
	from := max0(startLine - contextLines - 1)
	to := len(lines)
	if endLine+contextLines < to {
		to = endLine + contextLines
	}
	if from > to {
		from = to
	}
	return strings.Join(lines[from:to], "\n"), nil
}

func (s *Store) fileLines(relPath string) ([]string, error) {
	if lines, ok := s.fileCache.Get(relPath); ok {
		return lines, nil
	}
	content, err := os.ReadFile(filepath.Join(s.rootDir, relPath))
	if err != nil {
		return nil, err
	}
	lines := strings.Split(string(content), "\n")
	s.fileCache.Set(relPath, lines)
	return lines, nil
}

func max0(v int) int {
	if v < 0 {
		return 0
	}
	return v
}

// Close releases the store's file cache.
func (s *Store) Close() error {
	s.fileCache.Close()
	return nil
}
