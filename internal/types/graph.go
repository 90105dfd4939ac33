package types

// NodeType classifies a knowledge-graph node. Closed set.
type NodeType string

const (
	NodeDomain         NodeType = "domain"
	NodeContaminant    NodeType = "contaminant"
	NodeHealthEffect   NodeType = "health-effect"
	NodeSolution       NodeType = "solution"
	NodeProduct        NodeType = "product"
	NodeRecommendation NodeType = "recommendation"
	NodeContext        NodeType = "context"
	NodeInvestigation  NodeType = "investigation"
)

// AllNodeTypes lists the closed node-type set.
var AllNodeTypes = []NodeType{
	NodeDomain, NodeContaminant, NodeHealthEffect, NodeSolution,
	NodeProduct, NodeRecommendation, NodeContext, NodeInvestigation,
}

// Valid reports whether t is a known node type.
func (t NodeType) Valid() bool {
	for _, known := range AllNodeTypes {
		if t == known {
			return true
		}
	}
	return false
}

// EdgeType classifies a knowledge-graph edge. Closed set; legacy aliases
// normalize via CanonicalEdgeType.
type EdgeType string

const (
	EdgeCausation      EdgeType = "causation"
	EdgeEvidence       EdgeType = "evidence"
	EdgeComposition    EdgeType = "composition"
	EdgeAddresses      EdgeType = "addresses"
	EdgeGap            EdgeType = "gap"
	EdgeContextualizes EdgeType = "contextualizes"
	EdgeInvestigates   EdgeType = "investigates"
)

// AllEdgeTypes lists the canonical edge-type set.
var AllEdgeTypes = []EdgeType{
	EdgeCausation, EdgeEvidence, EdgeComposition, EdgeAddresses,
	EdgeGap, EdgeContextualizes, EdgeInvestigates,
}

// legacyEdgeAliases maps edge types emitted by older synthesis workers to
// their canonical names.
var legacyEdgeAliases = map[EdgeType]EdgeType{
	"solution":      EdgeAddresses,
	"context":       EdgeContextualizes,
	"investigation": EdgeInvestigates,
}

// CanonicalEdgeType normalizes legacy aliases. Unknown types pass through
// unchanged so the validator can report them.
func CanonicalEdgeType(t EdgeType) EdgeType {
	if canonical, ok := legacyEdgeAliases[t]; ok {
		return canonical
	}
	return t
}

// Valid reports whether t is canonical or a known legacy alias.
func (t EdgeType) Valid() bool {
	t = CanonicalEdgeType(t)
	for _, known := range AllEdgeTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Node is one knowledge-graph node. ID is kebab-case and unique within the
// graph; Label is uppercase display text.
type Node struct {
	ID                   string   `json:"id"`
	Label                string   `json:"label"`
	Type                 NodeType `json:"type"`
	Parent               string   `json:"parent,omitempty"`
	Summary              string   `json:"summary,omitempty"`
	KeyStats             string   `json:"keyStats,omitempty"`
	Confidence           string   `json:"confidence,omitempty"` // lowercase category word
	ConfidenceScore      *float64 `json:"confidenceScore,omitempty"`
	ConfidenceRationale  string   `json:"confidenceRationale,omitempty"`
	InvestigationPathway string   `json:"investigationPathway,omitempty"`
	Severity             string   `json:"severity,omitempty"`
}

// Edge is one knowledge-graph edge. Source and Target are node ids.
type Edge struct {
	Source     string   `json:"source"`
	Target     string   `json:"target"`
	Label      string   `json:"label"`
	Type       EdgeType `json:"type"`
	Citation   string   `json:"citation,omitempty"`
	Confidence *float64 `json:"confidence,omitempty"`
	Weight     *float64 `json:"weight,omitempty"`
}

// Topic is the narrative content behind a non-domain node.
type Topic struct {
	Title     string   `json:"title"`
	Sections  []string `json:"sections"`
	Citations []string `json:"citations,omitempty"`
}

// Graph is the single artifact a completed project produces.
type Graph struct {
	Nodes  []Node           `json:"nodes"`
	Edges  []Edge           `json:"edges"`
	Topics map[string]Topic `json:"topics"`
}

// NodeByID returns the node with the given id, or nil.
func (g *Graph) NodeByID(id string) *Node {
	for i := range g.Nodes {
		if g.Nodes[i].ID == id {
			return &g.Nodes[i]
		}
	}
	return nil
}
