package parse

import (
	sitter "github.com/tree-sitter/go-tree-sitter"
	java "github.com/tree-sitter/tree-sitter-java/bindings/go"
)

// newJavaFrontend grounds its node table on the teacher's
// internal/indexer/parsers/java.go (class_declaration/interface_declaration,
// method_declaration, import_declaration, superclass field).
func newJavaFrontend() Frontend {
	lang := sitter.NewLanguage(java.Language())
	return newTreeSitterFrontend("java", lang, nodeTable{
		classKinds:    []string{"class_declaration", "interface_declaration", "enum_declaration"},
		functionKinds: []string{"method_declaration", "constructor_declaration"},
		callKinds:     []string{"method_invocation"},
		importKinds:   []string{"import_declaration"},
		inheritsField: "superclass",
		docCapture:    javadocComment,
	})
}

func javadocComment(n *sitter.Node, source []byte) string {
	prev := n.PrevSibling()
	if prev == nil || prev.Kind() != "block_comment" {
		return ""
	}
	return nodeText(prev, source)
}
