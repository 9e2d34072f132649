package parse

import (
	sitter "github.com/tree-sitter/go-tree-sitter"
	python "github.com/tree-sitter/tree-sitter-python/bindings/go"
)

// newPythonFrontend grounds its node table on the teacher's
// internal/indexer/parsers/python.go (class_definition, function_definition,
// import_statement/import_from_statement).
func newPythonFrontend() Frontend {
	lang := sitter.NewLanguage(python.Language())
	return newTreeSitterFrontend("python", lang, nodeTable{
		classKinds:    []string{"class_definition"},
		functionKinds: []string{"function_definition"},
		callKinds:     []string{"call"},
		importKinds:   []string{"import_statement", "import_from_statement"},
		inheritsField: "superclasses",
		docCapture:    pythonDocstring,
	})
}

// pythonDocstring returns the first statement of a class/function body if
// it is a bare string expression, the same convention the teacher's
// extractor follows for docstring attachment.
func pythonDocstring(n *sitter.Node, source []byte) string {
	body := n.ChildByFieldName("body")
	if body == nil || body.NamedChildCount() == 0 {
		return ""
	}
	first := body.NamedChild(0)
	if first == nil || first.Kind() != "expression_statement" {
		return ""
	}
	if first.NamedChildCount() == 0 {
		return ""
	}
	strNode := first.NamedChild(0)
	if strNode.Kind() != "string" {
		return ""
	}
	return nodeText(strNode, source)
}
