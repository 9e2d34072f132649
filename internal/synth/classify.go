package synth

import (
	"strings"

	"github.com/knowcode/knowcode/internal/model"
)

// keyword lists for auto task_type classification, per spec §4.11.
var taskKeywords = []struct {
	taskType model.TaskType
	keywords []string
}{
	{model.TaskDebug, []string{"error", "bug", "trace", "crash", "panic", "fail", "exception", "stack trace"}},
	{model.TaskExplain, []string{"why", "how does", "how do", "what is", "what does", "explain", "understand"}},
	{model.TaskExtend, []string{"add", "extend", "implement", "new feature", "support for"}},
	{model.TaskReview, []string{"review", "audit", "impact of", "safe to change", "breaking"}},
	{model.TaskLocate, []string{"where is", "find", "locate", "which file"}},
}

// ClassifyTaskType maps a natural-language query to a task_type using
// lightweight keyword heuristics. Falls back to TaskGeneral when nothing
// matches. A non-auto hint is returned unchanged.
func ClassifyTaskType(query string, hint model.TaskType) model.TaskType {
	if hint != "" && hint != model.TaskAuto {
		return hint
	}
	lower := strings.ToLower(query)
	for _, entry := range taskKeywords {
		for _, kw := range entry.keywords {
			if strings.Contains(lower, kw) {
				return entry.taskType
			}
		}
	}
	return model.TaskGeneral
}
