// Package graph resolves the per-file output of Parser Frontends into the
// global semantic graph: import/call/inherits edges resolved against the
// rest of the codebase, contains-forest verification, and optional
// temporal (git) and coverage ingestion passes. Grounded on the teacher's
// internal/graph/builder.go (merge per-file data into a global graph) and
// interface_matcher.go (best-match resolution scoring), generalized from
// Go-only import maps to the spec's symbolic cross-language resolution.
package graph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/knowcode/knowcode/internal/model"
	"github.com/knowcode/knowcode/internal/parse"
)

// FileResult is one frontend's output for one file, tagged with the file
// it came from so the Builder can report which file an error belongs to.
type FileResult struct {
	RelPath string
	Result  *parse.Result
}

// Builder merges FileResults into a resolved semantic graph.
type Builder struct {
	entities     map[string]model.Entity
	order        []string // insertion order, for deterministic output
	rawRelations []parse.Relation
	parent       map[string]string // child id -> parent id, from contains relations
	children     map[string][]string
}

// NewBuilder creates an empty Builder.
func NewBuilder() *Builder {
	return &Builder{
		entities: make(map[string]model.Entity),
		parent:   make(map[string]string),
		children: make(map[string][]string),
	}
}

// AddFile merges one file's frontend output into the builder's working
// set. Entities are deduplicated by id (a re-run on the same file
// replaces its previous entities); contains relations are buffered for
// forest verification at Resolve time.
func (b *Builder) AddFile(fr FileResult) {
	for _, e := range fr.Result.Entities {
		if _, exists := b.entities[e.ID]; !exists {
			b.order = append(b.order, e.ID)
		}
		b.entities[e.ID] = e
	}
	b.rawRelations = append(b.rawRelations, fr.Result.Relations...)
}

// Resolve produces the final entity and relationship lists: import, call,
// and inherits edges are resolved against the whole merged entity set;
// contains edges are verified to form a forest.
func (b *Builder) Resolve() ([]model.Entity, []model.Relationship, error) {
	var contains []parse.Relation
	var imports []parse.Relation
	var inherits []parse.Relation
	var calls []parse.Relation

	for _, r := range b.rawRelations {
		switch r.Kind {
		case model.RelContains:
			contains = append(contains, r)
		case model.RelImports:
			imports = append(imports, r)
		case model.RelInherits:
			inherits = append(inherits, r)
		case model.RelCalls:
			calls = append(calls, r)
		}
	}

	var relationships []model.Relationship

	containsRels, err := b.resolveContains(contains)
	if err != nil {
		return nil, nil, err
	}
	relationships = append(relationships, containsRels...)

	relationships = append(relationships, b.resolveImports(imports)...)
	relationships = append(relationships, b.resolveInherits(inherits)...)
	relationships = append(relationships, b.resolveCalls(calls)...)

	entities := make([]model.Entity, 0, len(b.order))
	for _, id := range b.order {
		entities = append(entities, b.entities[id])
	}

	return entities, relationships, nil
}

// resolveContains records the parent/child structure and rejects a second
// parent for any child by returning a contains-forest-violation error
// rather than silently duplicating — the forest invariant (one parent per
// child) is enforced here.
func (b *Builder) resolveContains(contains []parse.Relation) ([]model.Relationship, error) {
	var out []model.Relationship
	for _, r := range contains {
		if r.SourceID == "" || r.TargetName == "" {
			continue
		}
		child := r.TargetName // contains relations already carry a resolved child id in TargetName
		if existingParent, ok := b.parent[child]; ok && existingParent != r.SourceID {
			return nil, fmt.Errorf("contains forest violation: %s already has parent %s, rejecting second parent %s", child, existingParent, r.SourceID)
		}
		b.parent[child] = r.SourceID
		b.children[r.SourceID] = append(b.children[r.SourceID], child)
		out = append(out, model.Relationship{SourceID: r.SourceID, TargetID: child, Kind: model.RelContains})
	}
	return out, nil
}

// ensureExternalEntity synthesizes a placeholder module entity for a
// symbolic name that never resolved to anything concrete, so every
// relationship's TargetID still references an existing entity while the
// "unresolved" attribute preserves provenance, per spec §4.3.
func (b *Builder) ensureExternalEntity(name string) string {
	id := "external:" + name
	if _, ok := b.entities[id]; !ok {
		b.entities[id] = model.Entity{
			ID:            id,
			Kind:          model.KindModule,
			ShortName:     name,
			QualifiedName: name,
			Location:      model.Location{File: "", StartLine: 1, EndLine: 1},
		}
		b.order = append(b.order, id)
	}
	return id
}

// resolveImports matches each symbolic import target against module
// entities by best-match on qualified name: exact match first, then the
// module whose qualified name most specifically suffixes (or is
// suffixed by) the import target.
func (b *Builder) resolveImports(imports []parse.Relation) []model.Relationship {
	modules := b.modulesByQName()
	var out []model.Relationship
	for _, r := range imports {
		targetID, resolved := bestModuleMatch(modules, r.TargetName)
		attrs := model.Attrs{}
		if !resolved {
			targetID = b.ensureExternalEntity(r.TargetName)
			attrs["unresolved"] = model.AttrValue{Bool: true}
		}
		out = append(out, model.Relationship{SourceID: r.SourceID, TargetID: targetID, Kind: model.RelImports, Attrs: attrs})
	}
	return out
}

// resolveInherits matches a symbolic base-class name against class
// entities the same way resolveImports matches modules.
func (b *Builder) resolveInherits(inherits []parse.Relation) []model.Relationship {
	classes := b.entitiesByKind(model.KindClass)
	var out []model.Relationship
	for _, r := range inherits {
		targetID, resolved := bestNameMatch(classes, r.TargetName)
		attrs := model.Attrs{}
		if !resolved {
			targetID = b.ensureExternalEntity(r.TargetName)
			attrs["unresolved"] = model.AttrValue{Bool: true}
		}
		out = append(out, model.Relationship{SourceID: r.SourceID, TargetID: targetID, Kind: model.RelInherits, Attrs: attrs})
	}
	return out
}

// resolveCalls resolves a call target name against every function and
// method entity whose short name or last qualified-name component equals
// the target's last dotted component (or whose qualified name equals the
// target), tie-breaking by (a) same-module match, (b) most-specific
// qualified name, (c) lexicographic id, per spec §4.3. Candidates are not
// narrowed or ranked by the caller's local, enclosing-class or
// imported-module scope. All alternate candidates are recorded
// in the edge's call_alternates attribute rather than dropped (the spec's
// Open Question, resolved in favor of keeping every alternate).
func (b *Builder) resolveCalls(calls []parse.Relation) []model.Relationship {
	functions := b.entitiesByKinds(model.KindFunction, model.KindMethod)
	var out []model.Relationship
	for _, r := range calls {
		callerModule := b.moduleOf(r.SourceID)
		candidates := matchCallTarget(functions, r.TargetName)
		if len(candidates) == 0 {
			targetID := b.ensureExternalEntity(r.TargetName)
			out = append(out, model.Relationship{
				SourceID: r.SourceID, TargetID: targetID, Kind: model.RelCalls,
				Attrs: model.Attrs{"unresolved": {Bool: true}},
			})
			continue
		}
		sort.SliceStable(candidates, func(i, j int) bool {
			return callTieBreakLess(candidates[i], candidates[j], callerModule, b)
		})
		top := candidates[0]
		var alternates []string
		for _, c := range candidates[1:] {
			alternates = append(alternates, c.ID)
		}
		attrs := model.Attrs{}
		if len(alternates) > 0 {
			attrs["call_alternates"] = model.AttrValue{StrList: alternates}
		}
		out = append(out, model.Relationship{SourceID: r.SourceID, TargetID: top.ID, Kind: model.RelCalls, Attrs: attrs})
	}
	return out
}

func callTieBreakLess(x, y model.Entity, callerModule string, b *Builder) bool {
	xSame := b.moduleOf(x.ID) == callerModule
	ySame := b.moduleOf(y.ID) == callerModule
	if xSame != ySame {
		return xSame
	}
	if len(x.QualifiedName) != len(y.QualifiedName) {
		return len(x.QualifiedName) > len(y.QualifiedName)
	}
	return x.ID < y.ID
}

func (b *Builder) moduleOf(id string) string {
	cur := id
	for {
		parent, ok := b.parent[cur]
		if !ok {
			if e, ok := b.entities[cur]; ok && e.Kind == model.KindModule {
				return e.QualifiedName
			}
			return ""
		}
		cur = parent
	}
}

func (b *Builder) modulesByQName() map[string]model.Entity {
	return b.entitiesByKind(model.KindModule)
}

func (b *Builder) entitiesByKind(k model.EntityKind) map[string]model.Entity {
	return b.entitiesByKinds(k)
}

func (b *Builder) entitiesByKinds(kinds ...model.EntityKind) map[string]model.Entity {
	out := make(map[string]model.Entity)
	for _, id := range b.order {
		e := b.entities[id]
		for _, k := range kinds {
			if e.Kind == k {
				out[e.ID] = e
				break
			}
		}
	}
	return out
}

// bestModuleMatch finds the module entity whose qualified name best
// matches target: exact match wins; otherwise, among modules whose short
// name equals target, whose qualified name is a dotted suffix of target,
// or which have target as a dotted suffix, the longest qualified name
// wins (ties broken by id).
func bestModuleMatch(modules map[string]model.Entity, target string) (string, bool) {
	if e, ok := findExact(modules, target); ok {
		return e.ID, true
	}
	return bestNameMatch(modules, target)
}

func bestNameMatch(pool map[string]model.Entity, target string) (string, bool) {
	var best model.Entity
	found := false
	for _, e := range pool {
		if e.QualifiedName == target || e.ShortName == target ||
			strings.HasSuffix(target, "."+e.QualifiedName) ||
			strings.HasSuffix(e.QualifiedName, "."+target) {
			if !found || len(e.QualifiedName) > len(best.QualifiedName) ||
				(len(e.QualifiedName) == len(best.QualifiedName) && e.ID < best.ID) {
				best = e
				found = true
			}
		}
	}
	return best.ID, found
}

func findExact(pool map[string]model.Entity, target string) (model.Entity, bool) {
	for _, e := range pool {
		if e.QualifiedName == target {
			return e, true
		}
	}
	return model.Entity{}, false
}

// matchCallTarget returns every function/method entity whose short or
// qualified name matches the (possibly receiver-qualified) call target
// text, e.g. "self.foo" and "obj.foo" both match a method named "foo".
func matchCallTarget(pool map[string]model.Entity, target string) []model.Entity {
	simple := target
	if idx := strings.LastIndex(target, "."); idx >= 0 {
		simple = target[idx+1:]
	}
	var out []model.Entity
	for _, e := range pool {
		if e.ShortName == simple || e.QualifiedName == target || strings.HasSuffix(e.QualifiedName, "."+simple) {
			out = append(out, e)
		}
	}
	return out
}
