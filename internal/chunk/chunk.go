// Package chunk implements the Chunker: it turns one file's Parser
// Frontend output into retrieval-unit chunks (module_header, imports, and
// one chunk per top-level entity) with deterministic, content-addressed
// ids. Grounded on the teacher's internal/indexer/chunker.go
// (splitByHeaders/processSection size-bound splitting algorithm,
// generalized here from markdown-only sections to code entities) and
// internal/storage/encoding.go's hashing idiom, applied to sha1 content
// hashing instead of float encoding.
package chunk

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/knowcode/knowcode/internal/model"
	"github.com/knowcode/knowcode/internal/parse"
)

// Chunker splits one file's entities into chunks. MaxClassTokens bounds
// how large a class (header + all its methods) can be before the class is
// split so each method becomes its own chunk.
type Chunker struct {
	MaxClassTokens int
}

// New creates a Chunker with the given class size bound, in tokens.
func New(maxClassTokens int) *Chunker {
	if maxClassTokens <= 0 {
		maxClassTokens = 800
	}
	return &Chunker{MaxClassTokens: maxClassTokens}
}

// ChunkFile builds the chunk set for one file. result is that file's
// Parser Frontend output (already produced, not re-parsed); relPath
// identifies the file. Partial parser failure
// (result.Errors non-empty) must not discard the chunks collected for
// entities that did parse successfully — this function only ever reads
// from the already-committed result, so the file-scoped atomic-commit
// guarantee lives in the caller that assembles result before calling
// ChunkFile.
func (c *Chunker) ChunkFile(result *parse.Result, relPath string) ([]model.Chunk, error) {
	if result == nil {
		return nil, fmt.Errorf("chunk: nil parse result for %s", relPath)
	}

	byID := make(map[string]model.Entity, len(result.Entities))
	for _, e := range result.Entities {
		byID[e.ID] = e
	}
	children := make(map[string][]string)
	for _, r := range result.Relations {
		if r.Kind == model.RelContains {
			children[r.SourceID] = append(children[r.SourceID], r.TargetName)
		}
	}

	var moduleEntity model.Entity
	var haveModule bool
	for _, e := range result.Entities {
		if e.Kind == model.KindModule {
			moduleEntity = e
			haveModule = true
			break
		}
	}

	var chunks []model.Chunk

	if haveModule {
		chunks = append(chunks, moduleHeaderChunk(moduleEntity, relPath))
		if importsChunk, ok := importsChunk(result, moduleEntity.ID, relPath); ok {
			chunks = append(chunks, importsChunk)
		}
	}

	topLevelKind := func(k model.EntityKind) bool {
		return k == model.KindClass || k == model.KindFunction || k == model.KindVariable || k == model.KindConfigKey || k == model.KindAPIEndpoint
	}

	var topLevel []string
	if haveModule {
		topLevel = children[moduleEntity.ID]
	} else {
		// frontends with no module concept (e.g. generic grammars) still
		// emit top-level entities directly.
		for _, e := range result.Entities {
			if topLevelKind(e.Kind) {
				topLevel = append(topLevel, e.ID)
			}
		}
	}

	for _, id := range topLevel {
		e, ok := byID[id]
		if !ok || !topLevelKind(e.Kind) {
			continue
		}
		if e.Kind == model.KindClass {
			chunks = append(chunks, c.classChunks(e, children[e.ID], byID, relPath)...)
			continue
		}
		chunks = append(chunks, entityChunk(e, relPath))
	}

	return chunks, nil
}

func chunkID(relPath, kind, span string) string {
	sum := sha1.Sum([]byte(relPath + "|" + kind + "|" + span))
	return hex.EncodeToString(sum[:])
}

func metadataHeader(relPath string, e model.Entity) string {
	return fmt.Sprintf("// file: %s\n// entity: %s (%s)\n", relPath, e.QualifiedName, e.Kind)
}

func moduleHeaderChunk(mod model.Entity, relPath string) model.Chunk {
	text := fmt.Sprintf("// file: %s\n// module: %s\n%s", relPath, mod.QualifiedName, mod.Docstring)
	return model.Chunk{
		ID:          chunkID(relPath, string(model.ChunkModuleHeader), mod.QualifiedName),
		Kind:        model.ChunkModuleHeader,
		EntityID:    mod.ID,
		Text:        text,
		File:        relPath,
		StartLine:   mod.Location.StartLine,
		EndLine:     mod.Location.StartLine,
		ContentHash: sha1Hex(text),
	}
}

func importsChunk(result *parse.Result, moduleID, relPath string) (model.Chunk, bool) {
	var names []string
	for _, r := range result.Relations {
		if r.Kind == model.RelImports && r.SourceID == moduleID {
			names = append(names, r.TargetName)
		}
	}
	if len(names) == 0 {
		return model.Chunk{}, false
	}
	text := fmt.Sprintf("// file: %s\n// imports\n%s", relPath, strings.Join(names, "\n"))
	return model.Chunk{
		ID:          chunkID(relPath, string(model.ChunkImports), "imports"),
		Kind:        model.ChunkImports,
		Text:        text,
		File:        relPath,
		StartLine:   1,
		EndLine:     1,
		ContentHash: sha1Hex(text),
	}, true
}

func entityChunk(e model.Entity, relPath string) model.Chunk {
	text := metadataHeader(relPath, e) + e.SourceCode
	return model.Chunk{
		ID:          chunkID(relPath, string(model.ChunkEntity), e.QualifiedName),
		Kind:        model.ChunkEntity,
		EntityID:    e.ID,
		Text:        text,
		File:        relPath,
		StartLine:   e.Location.StartLine,
		EndLine:     e.Location.EndLine,
		ContentHash: sha1Hex(text),
	}
}

// classChunks implements the size-bound split: a class and all its
// methods become one chunk when the whole thing fits MaxClassTokens;
// otherwise the class header becomes its own chunk and each method
// becomes its own chunk.
func (c *Chunker) classChunks(class model.Entity, methodIDs []string, byID map[string]model.Entity, relPath string) []model.Chunk {
	var methods []model.Entity
	for _, id := range methodIDs {
		if m, ok := byID[id]; ok && m.Kind == model.KindMethod {
			methods = append(methods, m)
		}
	}

	combinedText := metadataHeader(relPath, class) + class.SourceCode
	totalTokens := model.EstimateTokens(combinedText)
	for _, m := range methods {
		totalTokens += model.EstimateTokens(m.SourceCode)
	}

	if totalTokens <= c.MaxClassTokens {
		var b strings.Builder
		b.WriteString(combinedText)
		for _, m := range methods {
			b.WriteString("\n\n")
			b.WriteString(m.SourceCode)
		}
		text := b.String()
		return []model.Chunk{{
			ID:          chunkID(relPath, string(model.ChunkEntity), class.QualifiedName),
			Kind:        model.ChunkEntity,
			EntityID:    class.ID,
			Text:        text,
			File:        relPath,
			StartLine:   class.Location.StartLine,
			EndLine:     class.Location.EndLine,
			ContentHash: sha1Hex(text),
		}}
	}

	headerSpan := class.QualifiedName + "#header"
	headerText := metadataHeader(relPath, class) + class.SourceCode
	out := []model.Chunk{{
		ID:          chunkID(relPath, string(model.ChunkEntity), headerSpan),
		Kind:        model.ChunkEntity,
		EntityID:    class.ID,
		Text:        headerText,
		File:        relPath,
		StartLine:   class.Location.StartLine,
		EndLine:     class.Location.StartLine,
		ContentHash: sha1Hex(headerText),
	}}
	for _, m := range methods {
		out = append(out, entityChunk(m, relPath))
	}
	return out
}

func sha1Hex(s string) string {
	sum := sha1.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}
