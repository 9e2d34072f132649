package parse

import (
	"context"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/knowcode/knowcode/internal/model"
)

// yamlFrontend emits one config_key entity per top-level and nested
// scalar/mapping key. New frontend: the teacher has no YAML parser, but
// spec.md names config_key as an entity kind, so this is built fresh in
// the same capability-interface shape as the tree-sitter frontends,
// using yaml.v3's Node tree (the same library teacher's config loader
// pulls in transitively, promoted here to a direct dependency).
type yamlFrontend struct{}

func newYAMLFrontend() Frontend { return yamlFrontend{} }

func (yamlFrontend) Language() string { return "yaml" }

func (yamlFrontend) Parse(ctx context.Context, absPath, relPath string) (*Result, error) {
	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, err
	}

	var doc yaml.Node
	result := &Result{}
	moduleID := modulePathFromRel(relPath)
	lineCount := len(strings.Split(string(data), "\n"))
	result.Entities = append(result.Entities, model.Entity{
		ID:            moduleID,
		Kind:          model.KindModule,
		ShortName:     moduleShortName(relPath),
		QualifiedName: moduleID,
		Location:      model.Location{File: relPath, StartLine: 1, EndLine: lineCount},
	})

	if err := yaml.Unmarshal(data, &doc); err != nil {
		result.Errors = append(result.Errors, ParseError{File: relPath, Line: 1, Message: err.Error()})
		return result, nil
	}
	if len(doc.Content) == 0 {
		return result, nil
	}

	walkYAMLMapping(doc.Content[0], moduleID, "", relPath, result)
	return result, nil
}

// walkYAMLMapping recurses over mapping nodes, emitting a config_key
// entity per key and a contains edge from its parent (module or enclosing
// key).
func walkYAMLMapping(n *yaml.Node, parentID, parentQName, relPath string, result *Result) {
	if n == nil || n.Kind != yaml.MappingNode {
		return
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		keyNode := n.Content[i]
		valNode := n.Content[i+1]
		qname := qualify(parentQName, keyNode.Value)
		id := moduleIDFromParent(parentID) + "::" + qname

		result.Entities = append(result.Entities, model.Entity{
			ID:            id,
			Kind:          model.KindConfigKey,
			ShortName:     keyNode.Value,
			QualifiedName: qname,
			Location:      model.Location{File: relPath, StartLine: keyNode.Line, EndLine: valNode.Line},
			SourceCode:    valNode.Value,
		})
		result.Relations = append(result.Relations, Relation{
			SourceID: parentID, TargetName: id, Kind: model.RelContains, File: relPath, Line: keyNode.Line,
		})

		if valNode.Kind == yaml.MappingNode {
			walkYAMLMapping(valNode, id, qname, relPath, result)
		}
	}
}

// moduleIDFromParent strips any "::qualifiedname" suffix the parent id may
// carry, leaving just the module id prefix new ids are built from.
func moduleIDFromParent(parentID string) string {
	if idx := strings.Index(parentID, "::"); idx >= 0 {
		return parentID[:idx]
	}
	return parentID
}
