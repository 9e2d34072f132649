package synth

import (
	"fmt"
	"strings"

	"github.com/knowcode/knowcode/internal/model"
	"github.com/knowcode/knowcode/internal/store"
)

// sectionPriorities gives the ordered section names per task_type, per
// spec §4.11's calibration table. "header" is handled separately: it is
// always emitted first and is never dropped or truncated, since the
// Context bundle's entity header is part of every bundle regardless of
// task_type.
var sectionPriorities = map[model.TaskType][]string{
	model.TaskExplain: {"signature", "docstring", "source", "callers", "callees", "inherits"},
	model.TaskDebug:   {"source", "callers", "recent_changes", "callees"},
	model.TaskExtend:  {"signature", "source", "callers", "inherits", "imports"},
	model.TaskReview:  {"source", "callers", "callees", "recent_changes", "impact"},
	model.TaskLocate:  {"signature", "docstring"},
	model.TaskGeneral: {"signature", "docstring", "source", "callers", "callees"},
}

// minUsefulSectionTokens: sections that would truncate to fewer tokens
// than this are dropped instead, per spec §4.11 ("sections below a
// minimum useful size are dropped rather than truncated to near-empty").
const minUsefulSectionTokens = 8

// elisionMarker is appended to a truncated section so a reader can see
// content was cut.
const elisionMarker = "\n... [truncated]"

// buildSection renders the named section's full (untruncated) text for
// entityID using the Knowledge Store. Returns "", false if the section
// has no content to show (e.g. no callers).
func buildSection(st *store.Store, entityID, name string) (string, bool) {
	ent, ok := st.GetEntity(entityID)
	if !ok {
		return "", false
	}
	switch name {
	case "signature":
		if ent.Signature == "" {
			return "", false
		}
		return ent.Signature, true
	case "docstring":
		if ent.Docstring == "" {
			return "", false
		}
		return ent.Docstring, true
	case "source":
		if ent.SourceCode == "" {
			return "", false
		}
		return ent.SourceCode, true
	case "callers":
		return renderQualifiedNameList(st, "Callers", st.GetCallers(entityID))
	case "callees":
		return renderQualifiedNameList(st, "Callees", st.GetCallees(entityID))
	case "inherits":
		return renderQualifiedNameList(st, "Inherits from", st.GetInheritsFrom(entityID))
	case "imports":
		return renderQualifiedNameList(st, "Imports", st.GetDependencies(entityID))
	case "recent_changes":
		return renderRecentChanges(st, entityID)
	case "impact":
		return renderImpact(st, entityID)
	default:
		return "", false
	}
}

func renderQualifiedNameList(st *store.Store, label string, ids []string) (string, bool) {
	if len(ids) == 0 {
		return "", false
	}
	var sb strings.Builder
	sb.WriteString(label + ":\n")
	for _, id := range ids {
		name := id
		if ent, ok := st.GetEntity(id); ok {
			name = ent.QualifiedName
		}
		sb.WriteString("  - " + name + "\n")
	}
	return strings.TrimRight(sb.String(), "\n"), true
}

func renderRecentChanges(st *store.Store, entityID string) (string, bool) {
	commitIDs := st.GetChangedBy(entityID)
	if len(commitIDs) == 0 {
		return "", false
	}
	var sb strings.Builder
	sb.WriteString("Recent changes:\n")
	for _, id := range commitIDs {
		if ent, ok := st.GetEntity(id); ok {
			sb.WriteString("  - " + ent.QualifiedName + "\n")
		}
	}
	return strings.TrimRight(sb.String(), "\n"), true
}

func renderImpact(st *store.Store, entityID string) (string, bool) {
	impact := st.GetImpact(entityID, 5)
	if len(impact.DirectDependents) == 0 && len(impact.TransitiveDependents) == 0 {
		return "", false
	}
	return fmt.Sprintf(
		"Impact: %d direct dependents, %d transitive dependents across %d files, risk_score=%.2f",
		len(impact.DirectDependents), len(impact.TransitiveDependents), len(impact.AffectedFiles), impact.RiskScore,
	), true
}

func buildHeader(ent model.Entity) string {
	return fmt.Sprintf("%s %s (%s:%d-%d)", ent.Kind, ent.QualifiedName, ent.Location.File, ent.Location.StartLine, ent.Location.EndLine)
}
