package pathway

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"inquest/internal/types"
)

func taskContext() TaskContext {
	return TaskContext{
		Evidence: &types.EvidenceItem{
			ID:           "ev-1",
			Type:         types.EvidenceScientific,
			SourceRating: "B",
			InfoRating:   2,
			Description:  "lead levels in municipal water",
		},
		Parent: &types.LevelOutput{
			PathwayID:    "P-SCI",
			Depth:        1,
			SourceRating: "A",
			Findings: map[string]interface{}{
				"studyDOI": "10.1000/xyz",
				"nested":   map[string]interface{}{"journal": "Env Health"},
			},
		},
		OutputPath: "/proj/ev-1-level-2.json",
	}
}

func TestInterpolateResolvesPaths(t *testing.T) {
	tctx := taskContext()

	tests := []struct {
		in   string
		want string
	}{
		{"Investigate {{evidence.description}}", "Investigate lead levels in municipal water"},
		{"Type {{evidence.type}} rated {{evidence.sourceRating}}{{evidence.infoRating}}", "Type SCI rated B2"},
		{"Follow up on {{parent.findings.studyDOI}}", "Follow up on 10.1000/xyz"},
		{"In {{parent.findings.nested.journal}}", "In Env Health"},
		{"Write to {{outputPath}}", "Write to /proj/ev-1-level-2.json"},
		{"Depth {{parent.depth}}", "Depth 1"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Interpolate(tt.in, tctx))
	}
}

func TestInterpolateKeepsUnresolvedTokens(t *testing.T) {
	tctx := taskContext()
	got := Interpolate("check {{parent.findings.absent}} and {{bogus.path}}", tctx)
	assert.Equal(t, "check {{parent.findings.absent}} and {{bogus.path}}", got)
}

func TestInterpolateNilParent(t *testing.T) {
	tctx := taskContext()
	tctx.Parent = nil
	got := Interpolate("{{parent.findings.studyDOI}} stays", tctx)
	assert.Equal(t, "{{parent.findings.studyDOI}} stays", got)
}

func TestBuildTask(t *testing.T) {
	level := &types.LevelDef{
		Depth:          2,
		Name:           "replication-check",
		WorkerTemplate: "researcher",
		Task: types.TaskDef{
			Purpose:  "Verify replication of {{evidence.description}}",
			KeyTasks: []string{"Search for replications of {{parent.findings.studyDOI}}", "Rate each source"},
			EndState: "JSON written to {{outputPath}}",
		},
		RequiredOutputs: []types.RequiredOutput{
			{Field: "replicationExists", Type: "boolean", Description: "any replication found"},
		},
	}

	built := BuildTask(level, taskContext())
	assert.Equal(t, "Verify replication of lead levels in municipal water", built.Purpose)
	assert.Equal(t, "Search for replications of 10.1000/xyz", built.KeyTasks[0])
	assert.Equal(t, "JSON written to /proj/ev-1-level-2.json", built.EndState)
	assert.Equal(t, "researcher", built.WorkerTemplate)
	assert.Equal(t, "replication-check", built.LevelName)

	desc := built.Describe("/proj/ev-1-level-2.json")
	if !strings.Contains(desc, "replicationExists (boolean)") {
		t.Errorf("description missing required output schema:\n%s", desc)
	}
	if !strings.Contains(desc, "/proj/ev-1-level-2.json") {
		t.Error("description missing output path")
	}
}
