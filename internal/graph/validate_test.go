package graph

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"inquest/internal/types"
)

// validGraph builds the smallest graph satisfying every invariant: one
// domain root, the recommendations subtree, and full topic coverage.
func validGraph() *types.Graph {
	g := &types.Graph{
		Nodes: []types.Node{
			{ID: "water-quality", Label: "WATER QUALITY", Type: types.NodeDomain},
			{ID: "recommendations", Label: "RECOMMENDATIONS", Type: types.NodeDomain},
			{ID: "lead", Label: "LEAD", Type: types.NodeContaminant, Parent: "water-quality", Confidence: "verified"},
			{ID: "cognitive-decline", Label: "COGNITIVE DECLINE", Type: types.NodeHealthEffect, Parent: "water-quality"},
			{ID: "rec-filter", Label: "USE A FILTER", Type: types.NodeRecommendation, Parent: "recommendations"},
			{ID: "rec-test", Label: "TEST ANNUALLY", Type: types.NodeRecommendation, Parent: "recommendations"},
			{ID: "rec-flush", Label: "FLUSH PIPES", Type: types.NodeRecommendation, Parent: "recommendations"},
		},
		Edges: []types.Edge{
			{Source: "lead", Target: "cognitive-decline", Label: "CAUSES", Type: types.EdgeCausation},
			{Source: "rec-filter", Target: "lead", Label: "REDUCES", Type: types.EdgeAddresses},
			{Source: "rec-test", Target: "lead", Label: "DETECTS", Type: types.EdgeAddresses},
			{Source: "rec-flush", Target: "lead", Label: "REDUCES", Type: types.EdgeAddresses},
		},
		Topics: map[string]types.Topic{
			"lead":              {Title: "Lead", Sections: []string{"Lead contamination overview."}},
			"cognitive-decline": {Title: "Cognitive decline", Sections: []string{"Effects on cognition."}},
			"rec-filter":        {Title: "Filtration", Sections: []string{"Point-of-use filters."}},
			"rec-test":          {Title: "Testing", Sections: []string{"Annual testing."}},
			"rec-flush":         {Title: "Flushing", Sections: []string{"Flush stagnant lines."}},
		},
	}
	return g
}

func assertHasError(t *testing.T, res ValidationResult, substr string) {
	t.Helper()
	for _, msg := range res.Errors {
		if strings.Contains(msg, substr) {
			return
		}
	}
	t.Errorf("no error containing %q in %v", substr, res.Errors)
}

func TestValidGraphPasses(t *testing.T) {
	res := Validate(validGraph())
	if !res.Valid {
		t.Fatalf("expected valid, errors: %v", res.Errors)
	}
	if len(res.Warnings) != 0 {
		t.Errorf("unexpected warnings: %v", res.Warnings)
	}
}

func TestDuplicateNodeIDs(t *testing.T) {
	g := validGraph()
	g.Nodes = append(g.Nodes, types.Node{ID: "lead", Label: "LEAD AGAIN", Type: types.NodeContaminant})
	res := Validate(g)
	if res.Valid {
		t.Fatal("duplicate ids must fail validation")
	}
	assertHasError(t, res, "duplicate node id")
}

func TestUnresolvedReferences(t *testing.T) {
	g := validGraph()
	g.Edges = append(g.Edges, types.Edge{Source: "lead", Target: "ghost", Label: "X", Type: types.EdgeEvidence})
	g.Nodes[3].Parent = "nowhere"
	res := Validate(g)
	if res.Valid {
		t.Fatal("unresolved references must fail validation")
	}
	assertHasError(t, res, "target does not resolve")
	assertHasError(t, res, `parent "nowhere" does not resolve`)
}

func TestLegacyAliasNormalizesCleanly(t *testing.T) {
	g := validGraph()
	e := BuildEdge(types.Edge{Source: "rec-filter", Target: "lead", Label: "fixes", Type: "solution"})
	if e.Type != types.EdgeAddresses {
		t.Fatalf("legacy alias not normalized: %q", e.Type)
	}
	g.Edges = append(g.Edges, e)
	res := Validate(g)
	for _, msg := range res.Errors {
		if strings.Contains(msg, "invalid type") {
			t.Errorf("normalized alias must not produce a type error: %s", msg)
		}
	}
}

func TestTopicCoverageRequired(t *testing.T) {
	g := validGraph()
	delete(g.Topics, "rec-flush")
	res := Validate(g)
	if res.Valid {
		t.Fatal("missing topic entry must fail validation")
	}
	assertHasError(t, res, `node "rec-flush" has no topics entry`)
}

func TestTopicShape(t *testing.T) {
	g := validGraph()
	g.Topics["lead"] = types.Topic{Title: "", Sections: nil}
	res := Validate(g)
	assertHasError(t, res, "missing title")
	assertHasError(t, res, "sections is not a list")
}

func TestLowConfidenceMustSurfaceQualification(t *testing.T) {
	g := validGraph()
	g.Nodes[3].Confidence = "disputed"
	res := Validate(g)
	assertHasError(t, res, "never surface the qualification")

	g.Topics["cognitive-decline"] = types.Topic{
		Title:    "Cognitive decline",
		Sections: []string{"This link is disputed; studies conflict."},
	}
	res = Validate(g)
	if !res.Valid {
		t.Errorf("qualified topic should pass, errors: %v", res.Errors)
	}
}

func TestRetractedNodesRejected(t *testing.T) {
	g := validGraph()
	g.Nodes[2].Confidence = "retracted"
	res := Validate(g)
	assertHasError(t, res, "retracted")
}

func TestRecommendationsSubtree(t *testing.T) {
	g := validGraph()
	g.Nodes[6].Type = types.NodeSolution // drop below 3 recommendation children
	res := Validate(g)
	assertHasError(t, res, "at least 3 required")
}

func TestEdgeConstraintWarnings(t *testing.T) {
	g := validGraph()
	// causation from a recommendation is outside the allowed source set
	g.Edges = append(g.Edges, types.Edge{
		Source: "rec-filter", Target: "cognitive-decline", Label: "X", Type: types.EdgeCausation,
	})
	res := Validate(g)
	if !res.Valid {
		t.Fatalf("constraint mismatch must stay a warning, errors: %v", res.Errors)
	}
	found := false
	for _, w := range res.Warnings {
		if strings.Contains(w, "does not allow source type") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a constraint warning, got %v", res.Warnings)
	}
}

func TestIsolatedNodeWarning(t *testing.T) {
	g := validGraph()
	g.Nodes = append(g.Nodes, types.Node{ID: "orphan", Label: "ORPHAN", Type: types.NodeContext})
	g.Topics["orphan"] = types.Topic{Title: "Orphan", Sections: []string{"n/a"}}
	res := Validate(g)
	if !res.Valid {
		t.Fatalf("isolation is a warning only, errors: %v", res.Errors)
	}
	found := false
	for _, w := range res.Warnings {
		if strings.Contains(w, `"orphan" is isolated`) {
			found = true
		}
	}
	if !found {
		t.Errorf("expected isolation warning, got %v", res.Warnings)
	}
}

func TestParentCycleWarning(t *testing.T) {
	g := validGraph()
	// lead -> cognitive-decline -> lead
	g.Nodes[2].Parent = "cognitive-decline"
	g.Nodes[3].Parent = "lead"
	res := Validate(g)
	if !res.Valid {
		t.Fatalf("parent cycle is a warning only, errors: %v", res.Errors)
	}
	found := false
	for _, w := range res.Warnings {
		if strings.Contains(w, "parent cycle") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected parent cycle warning, got %v", res.Warnings)
	}
}

func TestValidateJSONShape(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"not object", `[1,2]`, "not a JSON object"},
		{"nodes missing", `{"edges":[]}`, `missing "nodes" array`},
		{"nodes not array", `{"nodes":{},"edges":[]}`, `"nodes" is not an array`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := ValidateJSON([]byte(tc.in))
			if res.Valid {
				t.Fatal("expected invalid")
			}
			if !strings.Contains(res.Errors[0], tc.want) {
				t.Errorf("got %q, want substring %q", res.Errors[0], tc.want)
			}
		})
	}
}

func TestBuildNodeThenValidate(t *testing.T) {
	g := validGraph()
	n := BuildNode(types.Node{
		ID: "New Context Node", Label: "new context", Type: types.NodeContext,
		Confidence: "plausible",
	})
	if n.ID != "new-context-node" {
		t.Errorf("kebab id: got %q", n.ID)
	}
	if n.Label != "NEW CONTEXT NODE" {
		t.Errorf("uppercase label: got %q", n.Label)
	}
	if n.ConfidenceScore == nil || *n.ConfidenceScore != 0.67 {
		t.Fatalf("plausible midpoint: got %v", n.ConfidenceScore)
	}
	g.Nodes = append(g.Nodes, n)
	g.Edges = append(g.Edges, types.Edge{Source: n.ID, Target: "lead", Label: "ABOUT", Type: types.EdgeContextualizes})
	g.Topics[n.ID] = types.Topic{Title: "Context", Sections: []string{"background"}}
	res := Validate(g)
	if !res.Valid {
		t.Errorf("built node should validate, errors: %v", res.Errors)
	}
}

func TestBuildNodeClampsScore(t *testing.T) {
	over := 1.7
	n := BuildNode(types.Node{ID: "x", Label: "x", Type: types.NodeContext, ConfidenceScore: &over})
	if *n.ConfidenceScore != 1 {
		t.Errorf("expected clamp to 1, got %v", *n.ConfidenceScore)
	}
	under := -0.2
	e := BuildEdge(types.Edge{Source: "a", Target: "b", Type: types.EdgeEvidence, Confidence: &under})
	if *e.Confidence != 0 {
		t.Errorf("expected clamp to 0, got %v", *e.Confidence)
	}
}

func TestCategoricalMidpoints(t *testing.T) {
	want := map[string]float64{
		"verified":   0.93,
		"plausible":  0.67,
		"unverified": 0.34,
		"disputed":   0.12,
	}
	for word, score := range want {
		n := BuildNode(types.Node{ID: "x", Label: "X", Type: types.NodeContext, Confidence: word})
		if n.ConfidenceScore == nil || *n.ConfidenceScore != score {
			t.Errorf("%s: got %v, want %v", word, n.ConfidenceScore, score)
		}
	}
}

func TestTopologyMetricsEmptyGraph(t *testing.T) {
	got := ComputeTopologyMetrics(&types.Graph{})
	want := TopologyMetrics{}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("empty graph metrics (-want +got):\n%s", diff)
	}
}

func TestTopologyMetrics(t *testing.T) {
	g := &types.Graph{
		Nodes: []types.Node{{ID: "a"}, {ID: "b"}, {ID: "c"}, {ID: "d"}},
		Edges: []types.Edge{
			{Source: "a", Target: "b"},
			{Source: "b", Target: "c"},
			{Source: "x", Target: "y"}, // unresolved, ignored
		},
	}
	got := ComputeTopologyMetrics(g)
	// 2 resolvable edges over 4 nodes: density 2/12, degree 4/4, components {a,b,c} and {d}
	want := TopologyMetrics{
		Density:                 2.0 / 12.0,
		AverageDegree:           1.0,
		ConnectedComponentCount: 2,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("metrics (-want +got):\n%s", diff)
	}
}
