// Package graph validates the knowledge-graph artifact a synthesis worker
// produces and provides the pure helpers used to build well-formed nodes
// and edges. Validation never mutates the graph; edges may form cycles and
// the validator does not assume a DAG.
package graph

import (
	"encoding/json"
	"fmt"
	"strings"

	"inquest/internal/logging"
	"inquest/internal/types"
)

// ValidationResult is the validator's verdict. A graph is Valid when it
// has no errors; warnings never fail validation.
type ValidationResult struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

func (r *ValidationResult) errorf(format string, args ...interface{}) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

func (r *ValidationResult) warnf(format string, args ...interface{}) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// edgeConstraints restricts which node types each edge type may connect.
// A nil set means any type is allowed. Violations are warnings, not errors.
var edgeConstraints = map[types.EdgeType]struct {
	sources map[types.NodeType]bool
	targets map[types.NodeType]bool
}{
	types.EdgeCausation: {
		sources: nodeSet(types.NodeContaminant, types.NodeContext),
		targets: nodeSet(types.NodeHealthEffect),
	},
	types.EdgeEvidence: {},
	types.EdgeComposition: {
		sources: nodeSet(types.NodeDomain),
		targets: nodeSet(types.NodeContaminant, types.NodeSolution, types.NodeContext,
			types.NodeHealthEffect, types.NodeProduct, types.NodeRecommendation,
			types.NodeInvestigation),
	},
	types.EdgeAddresses: {
		sources: nodeSet(types.NodeSolution, types.NodeProduct, types.NodeRecommendation),
		targets: nodeSet(types.NodeHealthEffect, types.NodeContaminant),
	},
	types.EdgeGap: {},
	types.EdgeContextualizes: {
		sources: nodeSet(types.NodeContext),
	},
	types.EdgeInvestigates: {
		sources: nodeSet(types.NodeInvestigation),
	},
}

func nodeSet(nt ...types.NodeType) map[types.NodeType]bool {
	s := make(map[types.NodeType]bool, len(nt))
	for _, t := range nt {
		s[t] = true
	}
	return s
}

// ValidateJSON checks the raw artifact bytes: the document must be a JSON
// object with array nodes and edges. Structurally sound documents are then
// decoded and passed through Validate.
func ValidateJSON(data []byte) ValidationResult {
	var shape map[string]json.RawMessage
	if err := json.Unmarshal(data, &shape); err != nil {
		return ValidationResult{Errors: []string{"graph is not a JSON object"}}
	}
	for _, field := range []string{"nodes", "edges"} {
		raw, ok := shape[field]
		if !ok {
			return ValidationResult{Errors: []string{fmt.Sprintf("graph missing %q array", field)}}
		}
		var arr []json.RawMessage
		if err := json.Unmarshal(raw, &arr); err != nil {
			return ValidationResult{Errors: []string{fmt.Sprintf("graph %q is not an array", field)}}
		}
	}

	var g types.Graph
	if err := json.Unmarshal(data, &g); err != nil {
		return ValidationResult{Errors: []string{fmt.Sprintf("graph failed to decode: %v", err)}}
	}
	return Validate(&g)
}

// Validate checks every graph invariant: unique ids, resolved references,
// closed type sets (after legacy edge alias normalization), full topic
// coverage of non-domain nodes, qualified low-confidence topics, the
// recommendations subtree, and the absence of retracted nodes. Edge-type
// constraint mismatches, isolated nodes, and parent cycles come back as
// warnings.
func Validate(g *types.Graph) ValidationResult {
	var res ValidationResult
	if g == nil {
		res.errorf("graph is nil")
		return res
	}

	byID := make(map[string]*types.Node, len(g.Nodes))
	for i := range g.Nodes {
		n := &g.Nodes[i]
		if n.ID == "" {
			res.errorf("node %d missing id", i)
			continue
		}
		if _, dup := byID[n.ID]; dup {
			res.errorf("duplicate node id %q", n.ID)
			continue
		}
		byID[n.ID] = n

		if n.Label == "" {
			res.errorf("node %q missing label", n.ID)
		}
		if n.Type == "" {
			res.errorf("node %q missing type", n.ID)
		} else if !n.Type.Valid() {
			res.errorf("node %q has invalid type %q", n.ID, n.Type)
		}
		if n.ConfidenceScore != nil && (*n.ConfidenceScore < 0 || *n.ConfidenceScore > 1) {
			res.errorf("node %q confidenceScore %v outside [0,1]", n.ID, *n.ConfidenceScore)
		}
		if n.Confidence == "retracted" {
			res.errorf("node %q has retracted confidence; retracted evidence must be excluded upstream", n.ID)
		}
	}

	for i := range g.Nodes {
		n := &g.Nodes[i]
		if n.Parent != "" {
			if _, ok := byID[n.Parent]; !ok {
				res.errorf("node %q parent %q does not resolve", n.ID, n.Parent)
			}
		}
	}

	degree := make(map[string]int, len(g.Nodes))
	for i := range g.Edges {
		e := &g.Edges[i]
		if e.Source == "" || e.Target == "" {
			res.errorf("edge %d missing source or target", i)
			continue
		}
		src, srcOK := byID[e.Source]
		tgt, tgtOK := byID[e.Target]
		if !srcOK {
			res.errorf("edge %q -> %q source does not resolve", e.Source, e.Target)
		}
		if !tgtOK {
			res.errorf("edge %q -> %q target does not resolve", e.Source, e.Target)
		}
		if srcOK {
			degree[e.Source]++
		}
		if tgtOK {
			degree[e.Target]++
		}

		canonical := types.CanonicalEdgeType(e.Type)
		if e.Type == "" {
			res.errorf("edge %q -> %q missing type", e.Source, e.Target)
			continue
		}
		if !canonical.Valid() {
			res.errorf("edge %q -> %q has invalid type %q", e.Source, e.Target, e.Type)
			continue
		}
		if e.Confidence != nil && (*e.Confidence < 0 || *e.Confidence > 1) {
			res.errorf("edge %q -> %q confidence %v outside [0,1]", e.Source, e.Target, *e.Confidence)
		}

		if srcOK && tgtOK {
			checkEdgeConstraint(&res, canonical, src, tgt)
		}
	}

	validateTopics(&res, g, byID)
	validateRecommendations(&res, g, byID)

	for id, n := range byID {
		if n.Type == types.NodeDomain {
			continue
		}
		if degree[id] == 0 {
			res.warnf("node %q is isolated (no edges)", id)
		}
	}
	warnParentCycles(&res, g, byID)

	res.Valid = len(res.Errors) == 0
	logging.Graph("Validated graph: %d nodes, %d edges, valid=%v (%d errors, %d warnings)",
		len(g.Nodes), len(g.Edges), res.Valid, len(res.Errors), len(res.Warnings))
	return res
}

func checkEdgeConstraint(res *ValidationResult, t types.EdgeType, src, tgt *types.Node) {
	c, ok := edgeConstraints[t]
	if !ok {
		return
	}
	if c.sources != nil && !c.sources[src.Type] {
		res.warnf("edge type %q does not allow source type %q (node %q)", t, src.Type, src.ID)
	}
	if c.targets != nil && !c.targets[tgt.Type] {
		res.warnf("edge type %q does not allow target type %q (node %q)", t, tgt.Type, tgt.ID)
	}
}

// validateTopics enforces full topic coverage over non-domain nodes and
// the shape of every topic entry. Low-confidence nodes must surface their
// qualification somewhere in the topic text.
func validateTopics(res *ValidationResult, g *types.Graph, byID map[string]*types.Node) {
	nonDomain := 0
	covered := 0
	for id, n := range byID {
		if n.Type == types.NodeDomain {
			continue
		}
		nonDomain++
		topic, ok := g.Topics[id]
		if !ok {
			res.errorf("non-domain node %q has no topics entry", id)
			continue
		}
		covered++
		if topic.Title == "" {
			res.errorf("topic for %q missing title", id)
		}
		if topic.Sections == nil {
			res.errorf("topic for %q sections is not a list", id)
		}
		if n.Confidence == "unverified" || n.Confidence == "disputed" {
			if !topicMentions(topic, n.Confidence) {
				res.errorf("node %q is %s but its topic sections never surface the qualification", id, n.Confidence)
			}
		}
	}
	if nonDomain > 0 && covered < nonDomain {
		coverage := float64(covered) / float64(nonDomain)
		res.errorf("topic coverage %.0f%% of non-domain nodes; 100%% required", coverage*100)
	}
}

func topicMentions(topic types.Topic, word string) bool {
	for _, s := range topic.Sections {
		if strings.Contains(strings.ToLower(s), word) {
			return true
		}
	}
	return false
}

// validateRecommendations enforces the recommendations subtree: a domain
// node with id "recommendations" holding at least 3 recommendation children.
func validateRecommendations(res *ValidationResult, g *types.Graph, byID map[string]*types.Node) {
	root, ok := byID["recommendations"]
	if !ok || root.Type != types.NodeDomain {
		res.errorf("graph missing domain node %q", "recommendations")
		return
	}
	children := 0
	for i := range g.Nodes {
		n := &g.Nodes[i]
		if n.Parent == "recommendations" && n.Type == types.NodeRecommendation {
			children++
		}
	}
	if children < 3 {
		res.errorf("recommendations node has %d recommendation children; at least 3 required", children)
	}
}

// warnParentCycles walks every parent chain looking for a loop. Parent is
// meant to form a tree; a cycle is reported as a warning rather than an
// error so a synthesis worker's near-miss does not fail the project.
func warnParentCycles(res *ValidationResult, g *types.Graph, byID map[string]*types.Node) {
	for i := range g.Nodes {
		start := &g.Nodes[i]
		seen := map[string]bool{start.ID: true}
		cur := start
		for cur.Parent != "" {
			next, ok := byID[cur.Parent]
			if !ok {
				break // unresolved parent already reported as an error
			}
			if seen[next.ID] {
				res.warnf("parent cycle through node %q", start.ID)
				break
			}
			seen[next.ID] = true
			cur = next
		}
	}
}
