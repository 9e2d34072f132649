// Package model defines the data types shared across KnowCode's extraction,
// indexing, and retrieval subsystems: Entity, Relationship, Chunk, vector
// records, index manifests, and context bundles. Grounded on the teacher's
// internal/graph/types.go Node/Edge pair, generalized from Go-only kinds to
// the full cross-language entity taxonomy the spec requires.
package model

import "time"

// EntityKind enumerates the semantic element kinds KnowCode recognizes.
type EntityKind string

const (
	KindModule         EntityKind = "module"
	KindClass          EntityKind = "class"
	KindFunction       EntityKind = "function"
	KindMethod         EntityKind = "method"
	KindVariable       EntityKind = "variable"
	KindConfigKey      EntityKind = "config_key"
	KindAPIEndpoint    EntityKind = "api_endpoint"
	KindCommit         EntityKind = "commit"
	KindAuthor         EntityKind = "author"
	KindCoverageReport EntityKind = "coverage_report"
	KindParseError     EntityKind = "parse_error"
)

// Location pinpoints an entity's source span. Lines are 1-based; End >=
// Start always holds.
type Location struct {
	File      string `json:"file"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
}

// AttrValue is a tagged value in an entity or relationship's attribute bag.
// Modeled as a typed union rather than `any` so a downstream consumer can
// evolve fields with a migration instead of a type assertion guess.
type AttrValue struct {
	Str    string   `json:"str,omitempty"`
	Int    int64    `json:"int,omitempty"`
	Float  float64  `json:"float,omitempty"`
	Bool   bool     `json:"bool,omitempty"`
	StrList []string `json:"str_list,omitempty"`
}

// Attrs is a typed attribute bag keyed by attribute name.
type Attrs map[string]AttrValue

// Entity is a uniquely identified semantic element of code.
//
// Invariants: ID is unique within a Knowledge Store; QualifiedName is
// unique per Kind within a module; Location lines are 1-based with End >=
// Start; a method's QualifiedName is its enclosing class's QualifiedName
// plus "." plus its ShortName.
type Entity struct {
	ID            string     `json:"id"`
	Kind          EntityKind `json:"kind"`
	ShortName     string     `json:"name"`
	QualifiedName string     `json:"qualified_name"`
	Location      Location   `json:"location"`
	SourceCode    string     `json:"source_code,omitempty"`
	Docstring     string     `json:"docstring,omitempty"`
	Signature     string     `json:"signature,omitempty"`
	Attrs         Attrs      `json:"attributes,omitempty"`
}

// RelationKind enumerates the directed edge kinds between entities.
type RelationKind string

const (
	RelCalls      RelationKind = "calls"
	RelImports    RelationKind = "imports"
	RelContains   RelationKind = "contains"
	RelInherits   RelationKind = "inherits"
	RelAuthored   RelationKind = "authored"
	RelModified   RelationKind = "modified"
	RelChangedBy  RelationKind = "changed_by"
	RelCovers     RelationKind = "covers"
	RelExecutedBy RelationKind = "executed_by"
)

// Relationship is a directed, typed edge between two entity ids.
//
// Invariants: both SourceID and TargetID resolve to existing entities
// after graph resolution (or the edge is marked unresolved via the
// "unresolved" attribute); Contains forms a forest; Inherits is acyclic;
// Calls and Imports may be many-to-many.
type Relationship struct {
	SourceID string       `json:"source_id"`
	TargetID string       `json:"target_id"`
	Kind     RelationKind `json:"kind"`
	Attrs    Attrs        `json:"attributes,omitempty"`
}

// ChunkKind enumerates the retrieval-unit kinds the Chunker emits.
type ChunkKind string

const (
	ChunkModuleHeader ChunkKind = "module_header"
	ChunkImports      ChunkKind = "imports"
	ChunkEntity       ChunkKind = "entity"
)

// Chunk is a retrieval unit of text derived from a single source file.
//
// Invariants: Text is UTF-8; a chunk never crosses a file boundary; for
// ChunkEntity, Span lies within the entity's location and ID maps 1:1 with
// EntityID.
type Chunk struct {
	ID          string    `json:"id"`
	Kind        ChunkKind `json:"kind"`
	EntityID    string    `json:"entity_id,omitempty"`
	Text        string    `json:"text"`
	File        string    `json:"file"`
	StartLine   int       `json:"start_line"`
	EndLine     int       `json:"end_line"`
	ContentHash string    `json:"content_hash"`
}

// VectorRecord pairs a chunk id with its dense embedding.
type VectorRecord struct {
	ChunkID string
	Vector  []float32
}

// IndexManifest describes a persisted hybrid index.
//
// Invariant: an index whose manifest disagrees with the current
// configuration (model name, dimension, provider) must be rebuilt, not
// loaded.
type IndexManifest struct {
	EmbeddingModel string    `json:"embedding_model"`
	Dimensions     int       `json:"dimensions"`
	Provider       string    `json:"provider"`
	ChunkCount     int       `json:"chunk_count"`
	SourceHash     string    `json:"source_hash"`
	SchemaVersion  int       `json:"schema_version"`
	BuiltAt        time.Time `json:"built_at"`
}

// CurrentSchemaVersion is the schema_version this build writes and the
// newest version it will load.
const CurrentSchemaVersion = 1

// TaskType selects section priorities in the Context Synthesizer.
type TaskType string

const (
	TaskExplain TaskType = "explain"
	TaskDebug   TaskType = "debug"
	TaskExtend  TaskType = "extend"
	TaskReview  TaskType = "review"
	TaskLocate  TaskType = "locate"
	TaskGeneral TaskType = "general"
	TaskAuto    TaskType = "auto"
)

// RetrievalMode reports which retrieval path actually produced results.
type RetrievalMode string

const (
	ModeSemantic RetrievalMode = "semantic"
	ModeLexical  RetrievalMode = "lexical"
	ModeHybrid   RetrievalMode = "hybrid"
)

// Evidence points a bundle section back to the chunk or entity that
// justifies it.
type Evidence struct {
	ChunkID  string   `json:"chunk_id,omitempty"`
	EntityID string   `json:"entity_id,omitempty"`
	Location Location `json:"location"`
	Score    float64  `json:"score"`
}

// BundleSection is one rendered, possibly truncated, piece of a context
// bundle.
type BundleSection struct {
	Name      string `json:"name"`
	Text      string `json:"text"`
	Truncated bool   `json:"truncated"`
}

// ContextBundle is the externally visible result of a retrieval query.
type ContextBundle struct {
	Sections          []BundleSection `json:"sections"`
	ContextText       string          `json:"context_text"`
	TotalTokens       int             `json:"total_tokens"`
	Evidence          []Evidence      `json:"evidence"`
	TaskType          TaskType        `json:"task_type"`
	RetrievalMode     RetrievalMode   `json:"retrieval_mode"`
	SufficiencyScore  float64         `json:"sufficiency_score"`
	SelectedEntities  []string        `json:"selected_entities"`
}

// EstimateTokens approximates token count by word count, the same
// order-of-magnitude heuristic the teacher's chunker uses for "target size
// in tokens" (roughly 0.75 words per token inverted -> ~1.3 tokens/word;
// we keep the simpler 1 token ~ 1 word approximation the teacher uses).
func EstimateTokens(s string) int {
	n := 0
	inWord := false
	for _, r := range s {
		isSpace := r == ' ' || r == '\n' || r == '\t' || r == '\r'
		if isSpace {
			inWord = false
			continue
		}
		if !inWord {
			n++
			inWord = true
		}
	}
	return n
}
