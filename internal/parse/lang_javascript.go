package parse

import (
	sitter "github.com/tree-sitter/go-tree-sitter"
	typescript "github.com/tree-sitter/tree-sitter-typescript/bindings/go"
)

// newJavaScriptFrontend serves both .js/.jsx and .ts/.tsx: the
// tree-sitter-typescript grammar package the teacher depends on parses
// plain JavaScript as a strict subset, so one frontend covers both
// languages the spec names ("JS/TS frontend"), grounded on the teacher's
// internal/indexer/parsers/typescript.go.
func newJavaScriptFrontend() Frontend {
	lang := sitter.NewLanguage(typescript.LanguageTypescript())
	return newTreeSitterFrontend("typescript", lang, nodeTable{
		classKinds:    []string{"class_declaration"},
		functionKinds: []string{"function_declaration", "method_definition"},
		callKinds:     []string{"call_expression"},
		importKinds:   []string{"import_statement"},
		inheritsField: "",
		docCapture:    jsDocComment,
	})
}

// jsDocComment returns the nearest preceding sibling comment node's text,
// the JSDoc convention; a best-effort scan since tree-sitter attaches
// comments as ordinary siblings rather than trivia on the node.
func jsDocComment(n *sitter.Node, source []byte) string {
	prev := n.PrevSibling()
	if prev == nil || prev.Kind() != "comment" {
		return ""
	}
	return nodeText(prev, source)
}
