package pathway

import (
	"fmt"
	"regexp"
	"strings"

	"inquest/internal/types"
)

// BuiltTask is the fully-expanded task handed to a level worker.
type BuiltTask struct {
	Purpose              string                 `json:"purpose"`
	KeyTasks             []string               `json:"keyTasks"`
	EndState             string                 `json:"endState"`
	RequiredOutputSchema []types.RequiredOutput `json:"requiredOutputSchema,omitempty"`
	WorkerTemplate       string                 `json:"workerTemplate"`
	LevelName            string                 `json:"levelName"`
}

// TaskContext is the template expansion scope. Dotted paths in templates
// resolve against these three roots: evidence.*, parent.*, outputPath.
type TaskContext struct {
	Evidence   *types.EvidenceItem
	Parent     *types.LevelOutput
	OutputPath string
}

var templateToken = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_.]+)\s*\}\}`)

// BuildTask expands a level definition's task templates against the given
// context. Unresolved paths keep their original {{...}} token so the task
// text remains inspectable.
func BuildTask(level *types.LevelDef, tctx TaskContext) BuiltTask {
	built := BuiltTask{
		Purpose:              Interpolate(level.Task.Purpose, tctx),
		EndState:             Interpolate(level.Task.EndState, tctx),
		RequiredOutputSchema: level.RequiredOutputs,
		WorkerTemplate:       level.WorkerTemplate,
		LevelName:            level.Name,
	}
	built.KeyTasks = make([]string, len(level.Task.KeyTasks))
	for i, kt := range level.Task.KeyTasks {
		built.KeyTasks[i] = Interpolate(kt, tctx)
	}
	return built
}

// Interpolate replaces every {{dotted.path}} token in text with its value
// from the context. Unknown paths are left intact.
func Interpolate(text string, tctx TaskContext) string {
	return templateToken.ReplaceAllStringFunc(text, func(token string) string {
		path := templateToken.FindStringSubmatch(token)[1]
		if val, ok := resolvePath(path, tctx); ok {
			return val
		}
		return token
	})
}

// resolvePath walks a dotted path through the context roots.
func resolvePath(path string, tctx TaskContext) (string, bool) {
	parts := strings.Split(path, ".")
	switch parts[0] {
	case "outputPath":
		if len(parts) == 1 {
			return tctx.OutputPath, true
		}
		return "", false
	case "evidence":
		if tctx.Evidence == nil {
			return "", false
		}
		return resolveEvidenceField(parts[1:], tctx.Evidence)
	case "parent":
		if tctx.Parent == nil {
			return "", false
		}
		return resolveParentField(parts[1:], tctx.Parent)
	default:
		return "", false
	}
}

func resolveEvidenceField(parts []string, ev *types.EvidenceItem) (string, bool) {
	if len(parts) != 1 {
		return "", false
	}
	switch parts[0] {
	case "id":
		return ev.ID, true
	case "type":
		return string(ev.Type), true
	case "sourceRating":
		return ev.SourceRating, true
	case "infoRating":
		return fmt.Sprintf("%d", ev.InfoRating), true
	case "description":
		return ev.Description, true
	case "citation":
		return ev.Citation, true
	case "triggeredPathway":
		return ev.TriggeredPathway, true
	default:
		return "", false
	}
}

func resolveParentField(parts []string, parent *types.LevelOutput) (string, bool) {
	if len(parts) == 0 {
		return "", false
	}
	switch parts[0] {
	case "pathwayId":
		return parent.PathwayID, true
	case "depth":
		return fmt.Sprintf("%d", parent.Depth), true
	case "sourceRating":
		return parent.SourceRating, true
	case "infoRating":
		return fmt.Sprintf("%d", parent.InfoRating), true
	case "findings":
		return resolveMapPath(parts[1:], parent.Findings)
	case "branchSignals":
		return resolveMapPath(parts[1:], parent.BranchSignals)
	default:
		return "", false
	}
}

// resolveMapPath walks the remaining path segments through nested maps.
func resolveMapPath(parts []string, m map[string]interface{}) (string, bool) {
	if len(parts) == 0 || m == nil {
		return "", false
	}
	var current interface{} = m
	for _, part := range parts {
		node, ok := current.(map[string]interface{})
		if !ok {
			return "", false
		}
		current, ok = node[part]
		if !ok {
			return "", false
		}
	}
	if current == nil {
		return "", false
	}
	return coerceString(current), true
}

// Describe renders a built task as the plain-text description handed to
// the spawned worker, including where it must write its output.
func (t BuiltTask) Describe(outputPath string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Level: %s\n\nPurpose: %s\n\nKey tasks:\n", t.LevelName, t.Purpose)
	for i, kt := range t.KeyTasks {
		fmt.Fprintf(&b, "%d. %s\n", i+1, kt)
	}
	fmt.Fprintf(&b, "\nEnd state: %s\n", t.EndState)
	if len(t.RequiredOutputSchema) > 0 {
		b.WriteString("\nRequired output fields:\n")
		for _, ro := range t.RequiredOutputSchema {
			fmt.Fprintf(&b, "- %s (%s): %s\n", ro.Field, ro.Type, ro.Description)
		}
	}
	fmt.Fprintf(&b, "\nWrite your JSON output to: %s\n", outputPath)
	return b.String()
}
