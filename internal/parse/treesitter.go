package parse

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/knowcode/knowcode/internal/model"
)

// nodeTable describes, for one language, which tree-sitter node kinds
// correspond to which KnowCode entity/relation concepts. Grounded on the
// teacher's per-language extractStructure functions (python.go, java.go,
// typescript.go), generalized into data instead of one bespoke function
// per language so the same walker serves every tree-sitter-backed
// frontend.
type nodeTable struct {
	classKinds    []string // struct/class/interface-like container
	functionKinds []string // free function or method definition
	callKinds     []string // call-expression node kind
	importKinds   []string // import/require/use statement node kind
	inheritsField string   // field name on a class node holding its superclass/bases, "" if unsupported
	nameField     string   // field name holding an identifier, defaults to "name"
	docCapture    func(n *sitter.Node, source []byte) string
}

// treeSitterFrontend implements Frontend for one tree-sitter grammar using
// a nodeTable to interpret the parse tree generically.
type treeSitterFrontend struct {
	lang     string
	language *sitter.Language
	table    nodeTable
}

func newTreeSitterFrontend(lang string, language *sitter.Language, table nodeTable) *treeSitterFrontend {
	if table.nameField == "" {
		table.nameField = "name"
	}
	return &treeSitterFrontend{lang: lang, language: language, table: table}
}

func (f *treeSitterFrontend) Language() string { return f.lang }

func (f *treeSitterFrontend) Parse(ctx context.Context, absPath, relPath string) (*Result, error) {
	source, err := os.ReadFile(absPath)
	if err != nil {
		return nil, err
	}

	result := &Result{}

	parser := sitter.NewParser()
	defer parser.Close()
	if err := parser.SetLanguage(f.language); err != nil {
		return nil, fmt.Errorf("set language %s: %w", f.lang, err)
	}

	tree := parser.Parse(source, nil)
	if tree == nil {
		result.Errors = append(result.Errors, ParseError{File: relPath, Line: 1, Message: "tree-sitter returned no parse tree"})
		return result, nil
	}
	defer tree.Close()

	root := tree.RootNode()
	lines := strings.Split(string(source), "\n")

	moduleID := modulePathFromRel(relPath)
	result.Entities = append(result.Entities, model.Entity{
		ID:            moduleID,
		Kind:          model.KindModule,
		ShortName:     moduleShortName(relPath),
		QualifiedName: moduleID,
		Location:      model.Location{File: relPath, StartLine: 1, EndLine: len(lines)},
	})

	w := &walker{
		frontend: f,
		source:   source,
		lines:    lines,
		relPath:  relPath,
		moduleID: moduleID,
		result:   result,
	}
	w.walkTopLevel(root, moduleID, "")

	if root.HasError() {
		result.Errors = append(result.Errors, ParseError{
			File:    relPath,
			Line:    1,
			Message: "source contains one or more syntax errors; partial structure extracted",
		})
		result.Entities = append(result.Entities, model.Entity{
			ID:            moduleID + "::parse_error::" + uuid.NewString(),
			Kind:          model.KindParseError,
			ShortName:     "parse_error",
			QualifiedName: moduleID + ".parse_error",
			Location:      model.Location{File: relPath, StartLine: 1, EndLine: len(lines)},
		})
	}

	return result, nil
}

// walker carries per-file state while recursing over the tree.
type walker struct {
	frontend *treeSitterFrontend
	source   []byte
	lines    []string
	relPath  string
	moduleID string
	result   *Result
}

// walkTopLevel recurses looking for class/function/call/import nodes,
// scoping calls to the nearest enclosing function/method entity id.
func (w *walker) walkTopLevel(n *sitter.Node, enclosingID string, enclosingQName string) {
	if n == nil {
		return
	}
	t := w.frontend.table
	kind := n.Kind()

	switch {
	case contains(t.importKinds, kind):
		w.emitImport(n)
	case contains(t.classKinds, kind):
		w.emitClass(n, enclosingID, enclosingQName)
		return // class walker recurses into its own members
	case contains(t.functionKinds, kind):
		w.emitFunction(n, enclosingID, enclosingQName, "")
		return // function walker recurses into its own body for calls
	case contains(t.callKinds, kind):
		w.emitCall(n, enclosingID)
	}

	for i := 0; i < int(n.ChildCount()); i++ {
		w.walkTopLevel(n.Child(uint(i)), enclosingID, enclosingQName)
	}
}

func (w *walker) emitImport(n *sitter.Node) {
	text := strings.TrimSpace(nodeText(n, w.source))
	if text == "" {
		return
	}
	w.result.Relations = append(w.result.Relations, Relation{
		SourceID:   w.moduleID,
		TargetName: importTargetName(text),
		Kind:       model.RelImports,
		File:       w.relPath,
		Line:       int(n.StartPosition().Row) + 1,
	})
}

func (w *walker) emitClass(n *sitter.Node, parentID, parentQName string) {
	name := fieldText(n, w.frontend.table.nameField, w.source)
	if name == "" {
		name = "anonymous"
	}
	qname := qualify(parentQName, name)
	id := w.moduleID + "::" + qname
	start := int(n.StartPosition().Row) + 1
	end := int(n.EndPosition().Row) + 1

	w.result.Entities = append(w.result.Entities, model.Entity{
		ID:            id,
		Kind:          model.KindClass,
		ShortName:     name,
		QualifiedName: qname,
		Location:      model.Location{File: w.relPath, StartLine: start, EndLine: end},
		SourceCode:    extractLines(w.lines, start, end),
		Docstring:     w.frontend.docFor(n, w.source),
	})
	w.result.Relations = append(w.result.Relations, Relation{
		SourceID: parentID, TargetName: id, Kind: model.RelContains, File: w.relPath, Line: start,
	})

	if field := w.frontend.table.inheritsField; field != "" {
		if base := n.ChildByFieldName(field); base != nil {
			baseName := strings.TrimSpace(nodeText(base, w.source))
			if baseName != "" {
				w.result.Relations = append(w.result.Relations, Relation{
					SourceID: id, TargetName: baseName, Kind: model.RelInherits, File: w.relPath, Line: start,
				})
			}
		}
	}

	for i := 0; i < int(n.ChildCount()); i++ {
		w.walkTopLevel(n.Child(uint(i)), id, qname)
	}
}

func (w *walker) emitFunction(n *sitter.Node, parentID, parentQName, _ string) {
	name := fieldText(n, w.frontend.table.nameField, w.source)
	if name == "" {
		name = "anonymous"
	}
	qname := qualify(parentQName, name)
	id := w.moduleID + "::" + qname
	start := int(n.StartPosition().Row) + 1
	end := int(n.EndPosition().Row) + 1

	kind := model.KindFunction
	if parentQName != "" {
		kind = model.KindMethod
	}

	w.result.Entities = append(w.result.Entities, model.Entity{
		ID:            id,
		Kind:          kind,
		ShortName:     name,
		QualifiedName: qname,
		Location:      model.Location{File: w.relPath, StartLine: start, EndLine: end},
		SourceCode:    extractLines(w.lines, start, end),
		Docstring:     w.frontend.docFor(n, w.source),
		Signature:     functionSignature(n, name, w.source),
	})
	w.result.Relations = append(w.result.Relations, Relation{
		SourceID: parentID, TargetName: id, Kind: model.RelContains, File: w.relPath, Line: start,
	})

	for i := 0; i < int(n.ChildCount()); i++ {
		w.walkTopLevel(n.Child(uint(i)), id, qname)
	}
}

func (w *walker) emitCall(n *sitter.Node, callerID string) {
	if callerID == "" {
		callerID = w.moduleID
	}
	fn := n.ChildByFieldName("function")
	if fn == nil {
		fn = firstNamedChild(n)
	}
	if fn == nil {
		return
	}
	target := strings.TrimSpace(nodeText(fn, w.source))
	if target == "" {
		return
	}
	w.result.Relations = append(w.result.Relations, Relation{
		SourceID:   callerID,
		TargetName: target,
		Kind:       model.RelCalls,
		File:       w.relPath,
		Line:       int(n.StartPosition().Row) + 1,
	})
}

func (f *treeSitterFrontend) docFor(n *sitter.Node, source []byte) string {
	if f.table.docCapture == nil {
		return ""
	}
	return f.table.docCapture(n, source)
}

// --- generic tree-sitter helpers, grounded on treesitter.go ---

func nodeText(n *sitter.Node, source []byte) string {
	if n == nil {
		return ""
	}
	return string(source[n.StartByte():n.EndByte()])
}

func fieldText(n *sitter.Node, field string, source []byte) string {
	child := n.ChildByFieldName(field)
	if child == nil {
		return ""
	}
	return nodeText(child, source)
}

func extractLines(lines []string, startLine, endLine int) string {
	if startLine < 1 || startLine > len(lines) {
		return ""
	}
	start := startLine - 1
	end := endLine
	if end > len(lines) {
		end = len(lines)
	}
	if end < start {
		end = start
	}
	return strings.Join(lines[start:end], "\n")
}

func firstNamedChild(n *sitter.Node) *sitter.Node {
	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(uint(i))
		if c.IsNamed() {
			return c
		}
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func qualify(parentQName, name string) string {
	if parentQName == "" {
		return name
	}
	return parentQName + "." + name
}

func modulePathFromRel(relPath string) string {
	p := strings.TrimSuffix(relPath, pathExt(relPath))
	p = strings.TrimSuffix(p, ".")
	return strings.ReplaceAll(p, "/", ".")
}

func moduleShortName(relPath string) string {
	parts := strings.Split(relPath, "/")
	return parts[len(parts)-1]
}

func pathExt(relPath string) string {
	idx := strings.LastIndex(relPath, ".")
	if idx < 0 {
		return ""
	}
	return relPath[idx:]
}

func functionSignature(n *sitter.Node, name string, source []byte) string {
	params := n.ChildByFieldName("parameters")
	if params == nil {
		return name + "()"
	}
	return name + nodeText(params, source)
}

// importTargetName normalizes a raw import statement's text down to the
// module path the Graph Builder will resolve against, stripping quotes and
// leading keywords. Good-enough heuristic shared by every tree-sitter
// frontend rather than one bespoke parser per import grammar.
func importTargetName(raw string) string {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "import ")
	raw = strings.TrimPrefix(raw, "from ")
	raw = strings.TrimPrefix(raw, "require(")
	raw = strings.TrimSuffix(raw, ")")
	if idx := strings.IndexAny(raw, " \t"); idx >= 0 {
		raw = raw[:idx]
	}
	raw = strings.Trim(raw, `"'`+"`;")
	return raw
}
