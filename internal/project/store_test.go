package project

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inquest/internal/types"
)

func TestCreateAndLoad(t *testing.T) {
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)

	p, err := s.Create("lead in municipal water")
	require.NoError(t, err)
	assert.NotEmpty(t, p.ID)
	assert.Equal(t, types.StatusPending, p.Status)

	loaded, err := s.Load(p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.Topic, loaded.Topic)
}

func TestCreateRequiresTopic(t *testing.T) {
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)
	_, err = s.Create("")
	assert.Error(t, err)
}

func TestStatusMonotonic(t *testing.T) {
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)
	p, err := s.Create("topic")
	require.NoError(t, err)

	for _, st := range []types.ProjectStatus{
		types.StatusPlanning, types.StatusClassifying, types.StatusInvestigating,
	} {
		_, err := s.UpdateStatus(p.ID, st, "")
		require.NoError(t, err)
	}

	// Regression is rejected.
	_, err = s.UpdateStatus(p.ID, types.StatusPlanning, "")
	assert.Error(t, err)

	// Error is reachable from any non-terminal state.
	p2, err := s.UpdateStatus(p.ID, types.StatusError, "worker timed out")
	require.NoError(t, err)
	assert.Equal(t, "worker timed out", p2.StatusDetail)

	// Terminal states are final.
	_, err = s.UpdateStatus(p.ID, types.StatusComplete, "")
	assert.Error(t, err)
}

func TestArtifactRoundTrip(t *testing.T) {
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)
	p, err := s.Create("topic")
	require.NoError(t, err)

	plan := types.Plan{Topic: "topic", SubQuestions: []types.SubQuestion{
		{ID: "sq-1", Question: "What is the exposure?"},
	}}
	require.NoError(t, s.SaveArtifact(p.ID, "plan.json", plan))

	var loaded types.Plan
	require.NoError(t, s.LoadArtifact(p.ID, "plan.json", &loaded))
	assert.Equal(t, plan.SubQuestions, loaded.SubQuestions)
}

func TestListNewestFirst(t *testing.T) {
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)
	first, err := s.Create("first")
	require.NoError(t, err)
	second, err := s.Create("second")
	require.NoError(t, err)

	// Force a created-time ordering regardless of clock resolution.
	p1, _ := s.Load(first.ID)
	p1.Created = p1.Created.Add(-1e9)
	require.NoError(t, s.write(p1))

	list, err := s.List()
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)
	assert.Equal(t, first.ID, list[1].ID)
}
